// Package hgclient is the thin shell-out adapter to the `hg` executable
// that stands in for the two external collaborators spec.md §1 places out
// of scope: the Mercurial wire client (clone/pull/push) and the Mercurial
// repository library (changelog, manifest, commit construction). Nothing
// above this package knows how a changeset is actually stored on disk.
//
// Grounded on reposurgeon's VCS capability table (surgeon/vcs.go), which
// drives every VCS it supports the same way: a struct of command templates
// run through os/exec rather than a bound library. Here there is exactly
// one VCS, so the table collapses to a set of methods, but the shelling
// idiom — run a command, check its exit status, scrape stdout — is the
// same one reposurgeon's extractor classes use.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package hgclient

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	shutil "github.com/termie/go-shutil"
)

// Client operates on a single local working clone rooted at Dir.
type Client struct {
	Dir    string // the clone directory, e.g. <GIT_DIR>/hg/<uuid>/clone
	Binary string // defaults to "hg"
}

// New returns a Client for the clone at dir.
func New(dir string) *Client {
	return &Client{Dir: dir, Binary: "hg"}
}

func (c *Client) bin() string {
	if c.Binary == "" {
		return "hg"
	}
	return c.Binary
}

// run executes `hg <args...>` with cwd = c.Dir (except Clone, which has no
// clone directory yet) and HGPLAIN/HGRCPATH forced, per spec.md §6's
// environment contract.
func (c *Client) run(dir string, args ...string) (string, error) {
	cmd := exec.Command(c.bin(), args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "HGPLAIN=1", "HGRCPATH=")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String(), &CommandError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.String(), nil
}

func (c *Client) hg(args ...string) (string, error) {
	return c.run(c.Dir, args...)
}

// CommandError wraps a failed `hg` invocation with its captured stderr, so
// callers can pattern-match on abort text (e.g. the "creates new remote
// head" push rejection).
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("hg %s: %v: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Stderr))
}

func (e *CommandError) Unwrap() error { return e.Err }

// PushRejectedNewHead is returned by Push when the upstream peer refuses
// because the push would create a new remote head — the one push failure
// the export consumer recovers from (spec.md §4.G, §7).
type PushRejectedNewHead struct {
	Detail string
}

func (e *PushRejectedNewHead) Error() string {
	return "push creates new remote head: " + e.Detail
}

// Exists reports whether the clone directory already holds a working hg
// repository.
func (c *Client) Exists() bool {
	info, err := os.Stat(filepath.Join(c.Dir, ".hg"))
	return err == nil && info.IsDir()
}

// Clone clones url into c.Dir. Per SPEC_FULL.md's DOMAIN STACK, the clone
// lands in a temporary sibling directory first and is promoted into place
// with shutil.CopyTree + remove, so a process crash mid-clone can never
// leave a half-initialized clone/ that a later Exists() would mistake for
// real state.
func (c *Client) Clone(url string) error {
	parent := filepath.Dir(c.Dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("hgclient: creating %s: %w", parent, err)
	}
	tmp := c.Dir + ".tmp-clone"
	os.RemoveAll(tmp)
	if _, err := c.run(parent, "clone", "--noupdate", url, tmp); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	if err := shutil.CopyTree(tmp, c.Dir, nil); err != nil {
		os.RemoveAll(tmp)
		return fmt.Errorf("hgclient: promoting clone into place: %w", err)
	}
	os.RemoveAll(tmp)
	if _, err := c.hg("update"); err != nil {
		return err
	}
	return nil
}

// Pull fetches new changesets from the upstream peer into the existing
// clone.
func (c *Client) Pull(url string) error {
	_, err := c.hg("pull", url)
	return err
}

// Push pushes the clone's local state to the upstream peer, setting
// --new-branch when newBranch is true (a named branch never seen upstream
// is being created). It returns *PushRejectedNewHead when the upstream
// abort text matches that specific rejection, per §4.G's rollback trigger.
func (c *Client) Push(url string, newBranch bool) error {
	args := []string{"push"}
	if newBranch {
		args = append(args, "--new-branch")
	}
	args = append(args, url)
	_, err := c.hg(args...)
	if err == nil {
		return nil
	}
	var cerr *CommandError
	if ce, ok := err.(*CommandError); ok {
		cerr = ce
	}
	if cerr != nil && strings.Contains(cerr.Stderr, "creates new remote head") {
		return &PushRejectedNewHead{Detail: strings.TrimSpace(cerr.Stderr)}
	}
	return err
}

// PushBookmark explicitly propagates a bookmark move to the peer. hg push
// already moves bookmarks reachable from the pushed revisions, but an
// explicit -B makes a bookmark-only move (no new commits) visible too.
func (c *Client) PushBookmark(url, name string) error {
	_, err := c.hg("push", "-B", name, url)
	if err != nil {
		// pushing a bookmark that didn't move is not an error worth
		// surfacing as a rollback trigger.
		if ce, ok := err.(*CommandError); ok && strings.Contains(ce.Stderr, "no changes found") {
			return nil
		}
	}
	return err
}

// Strip removes nodes (and their descendants) from the local clone via the
// strip extension, starting at the minimum — the one choice §9's Open
// Question (c) calls out as needing replication for observable-behavior
// parity. All of nodes are passed to a single `hg strip`, which itself
// works out the lowest revision among them and the full set to remove,
// as the original mq-based implementation relied on.
func (c *Client) Strip(nodes []string) error {
	if len(nodes) == 0 {
		return nil
	}
	args := append([]string{"--config", "extensions.strip=", "strip", "--no-backup"}, nodes...)
	_, err := c.hg(args...)
	return err
}
