// Package session implements the session controller, component H: the
// remote-helper verb loop (capabilities/list/import/export), environment
// setup, working-clone acquisition, and mark-store lifecycle around it.
//
// Grounded on gitifyhg/gitifyhg.py:HGRemote (its process/do_capabilities/
// do_list/do_import/do_export dispatch) and on reposurgeon's own
// main-as-orchestrator shape (surgeon/reposurgeon.go:main): set up
// process-wide state once, loop until the input stream closes, recover a
// single top-level panic at the boundary.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package session

import (
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gitlab.com/esr/git-remote-hg/internal/author"
	"gitlab.com/esr/git-remote-hg/internal/config"
	"gitlab.com/esr/git-remote-hg/internal/diag"
	"gitlab.com/esr/git-remote-hg/internal/gitstream"
	"gitlab.com/esr/git-remote-hg/internal/hgclient"
	"gitlab.com/esr/git-remote-hg/internal/hgexport"
	"gitlab.com/esr/git-remote-hg/internal/hgimport"
	"gitlab.com/esr/git-remote-hg/internal/markstore"
	"gitlab.com/esr/git-remote-hg/internal/reflist"
	"gitlab.com/esr/git-remote-hg/internal/refs"
)

// Session owns every long-lived collaborator for one alias+URL pair, from
// argv through the final mark-store Store call.
type Session struct {
	Cfg   config.Config
	Diag  *diag.Diag
	Alias string
	URL   string

	root     string // <GitDir>/hg/<url-sha1-hex>
	hg       *hgclient.Client
	marks    *markstore.Store
	gitMarks *markstore.GitMarksFile
	authorT  *author.Translator

	in  *gitstream.Reader
	out io.Writer // the real stdout, captured before anything can shadow it
}

// New resolves the per-remote storage root from cfg and url and wires the
// collaborators that don't need the clone to exist yet.
func New(cfg config.Config, d *diag.Diag, alias, url string) (*Session, error) {
	if cfg.GitDir == "" {
		return nil, fmt.Errorf("session: GIT_DIR is not set")
	}
	digest := sha1.Sum([]byte(url))
	root := filepath.Join(cfg.GitDir, "hg", fmt.Sprintf("%x", digest))

	authorT, err := author.NewTranslator("")
	if err != nil {
		return nil, err
	}

	s := &Session{
		Cfg:     cfg,
		Diag:    d,
		Alias:   alias,
		URL:     url,
		root:    root,
		hg:      hgclient.New(filepath.Join(root, "clone")),
		marks:   markstore.New(filepath.Join(root, "marks-hg")),
		authorT: authorT,
	}
	s.gitMarks = &markstore.GitMarksFile{Path: filepath.Join(root, "marks-git")}
	return s, nil
}

// Hijack installs the neutralized Mercurial-library environment (§6) and
// captures the real stdout handle before any collaborator has a chance to
// write to it directly. Per spec.md §5, everything the core itself prints
// after this point must go through s.out, not a bare fmt.Print*.
func (s *Session) Hijack() {
	os.Setenv("HGPLAIN", "1")
	os.Setenv("HGRCPATH", "")
	s.out = os.Stdout
	s.in = gitstream.NewReader(os.Stdin)
}

// Prepare clones or pulls the upstream peer into the working clone (I),
// rewrites a local-path URL to an absolute one in the calling remote's git
// config, and loads + upgrades the mark store. Must run once, after
// Hijack, before the request loop.
func (s *Session) Prepare() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("session: creating %s: %w", s.root, err)
	}

	if s.hg.Exists() {
		if err := s.hg.Pull(s.URL); err != nil {
			return fmt.Errorf("session: pulling %s: %w", s.URL, err)
		}
	} else {
		if err := s.hg.Clone(s.URL); err != nil {
			return fmt.Errorf("session: cloning %s: %w", s.URL, err)
		}
	}

	s.rewriteLocalURL()

	marks, err := markstore.Load(filepath.Join(s.root, "marks-hg"))
	if err != nil {
		return fmt.Errorf("session: loading mark store: %w", err)
	}
	s.marks = marks
	if err := s.marks.UpgradeSchema(s.Alias, s.hg); err != nil {
		return fmt.Errorf("session: upgrading mark store: %w", err)
	}
	return nil
}

// rewriteLocalURL implements the FEATURE SUPPLEMENT item from
// SPEC_FULL.md §4.H: a filesystem-path URL gets its calling alias's
// remote.<alias>.url git config entry rewritten to an absolute path, so a
// later `cd` elsewhere doesn't leave the remote pointing at a relative
// path that no longer resolves. Skipped entirely for anything that looks
// like a URL (contains "://") or isn't resolvable on disk.
func (s *Session) rewriteLocalURL() {
	if strings.Contains(s.URL, "://") {
		return
	}
	abs, err := filepath.Abs(s.URL)
	if err != nil {
		return
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return
	}
	if abs == s.URL {
		return
	}
	cmd := exec.Command("git", "config", fmt.Sprintf("remote.%s.url", s.Alias), abs)
	cmd.Dir = s.Cfg.GitDir
	if err := cmd.Run(); err != nil {
		s.Diag.Warnf("could not rewrite remote.%s.url to %s: %v", s.Alias, abs, err)
	}
}

// Run drives the verb loop until standard input closes, per spec.md §4.H
// and §5: capabilities/list/import/export, with EOF as the one form of
// graceful shutdown (persist the mark store, return nil).
func (s *Session) Run() error {
	for {
		line, ok := s.in.ReadLine()
		if !ok {
			return s.marks.Store()
		}
		switch {
		case line == "":
			continue
		case line == "capabilities":
			if err := s.doCapabilities(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "list"):
			if err := s.doList(); err != nil {
				return err
			}
		case strings.HasPrefix(line, "import "):
			if err := s.doImport(strings.TrimPrefix(line, "import ")); err != nil {
				return err
			}
		case line == "export":
			if err := s.doExport(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("session: unrecognized command %q", line)
		}
	}
}

func (s *Session) doCapabilities() error {
	fmt.Fprintln(s.out, "import")
	fmt.Fprintln(s.out, "export")
	fmt.Fprintln(s.out, "refspec refs/heads/branches/*:"+refs.GitifyRef(s.Alias, refs.Logical{Type: refs.Branch, Name: "*"}))
	fmt.Fprintln(s.out, "refspec refs/heads/*:"+refs.GitifyRef(s.Alias, refs.Logical{Type: refs.Bookmark, Name: "*"}))
	fmt.Fprintln(s.out, "refspec refs/tags/*:"+refs.GitifyRef(s.Alias, refs.Logical{Type: refs.Tag, Name: "*"}))
	if s.gitMarks.Exists() {
		fmt.Fprintln(s.out, "*import-marks="+s.gitMarks.Path)
	}
	fmt.Fprintln(s.out, "*export-marks="+s.gitMarks.Path)
	fmt.Fprintln(s.out)
	return nil
}

// doList drives the reference lister (E) and renders its entries per
// spec.md §6's two line shapes.
func (s *Session) doList() error {
	lister := &reflist.Lister{
		HG:                  s.hg,
		Marks:               s.marks,
		GitMarks:            s.gitMarks,
		Alias:               s.Alias,
		AllowClosedBranches: s.Cfg.AllowClosedBranches,
		Diag:                s.Diag,
	}
	entries, err := lister.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsHead {
			fmt.Fprintf(s.out, "@%s HEAD\n", e.Target)
			continue
		}
		fmt.Fprintf(s.out, "%s %s\n", e.Hash, e.Ref)
	}
	fmt.Fprintln(s.out)
	return nil
}

// doImport collects the first ref plus any further `import <ref>` lines
// arriving back-to-back (spec.md §4.H), resolves each to its current hg
// head, then drives the import generator (F) once per ref before the
// shared trailing `done`.
func (s *Session) doImport(firstRef string) error {
	refsToImport := []string{firstRef}
	for {
		line, ok := s.in.Peek()
		if !ok || !strings.HasPrefix(line, "import ") {
			break
		}
		s.in.ReadLine()
		refsToImport = append(refsToImport, strings.TrimPrefix(line, "import "))
	}

	iw := gitstream.NewImportWriter(s.out)
	if err := hgimport.DeclareFeatures(iw, s.gitMarks.Path, s.gitMarks.Exists()); err != nil {
		return err
	}

	gen := &hgimport.Generator{
		HG:        s.hg,
		Marks:     s.marks,
		Author:    s.authorT,
		Out:       iw,
		Alias:     s.Alias,
		NotesUUID: s.notesUUID(),
		Diag:      s.Diag,
	}

	for _, gitRef := range refsToImport {
		logical, ok := refs.ParseGitRef(gitRef)
		if !ok {
			return fmt.Errorf("session: import: don't understand ref %q", gitRef)
		}
		head, rev, err := s.resolveRequestedHead(logical)
		if err != nil {
			return fmt.Errorf("session: import %s: %w", gitRef, err)
		}
		if err := gen.ImportRef(hgimport.Ref{Logical: logical, HeadNode: head, HeadRev: rev}); err != nil {
			return fmt.Errorf("session: import %s: %w", gitRef, err)
		}
	}

	fmt.Fprintln(s.out, "done")
	return nil
}

// resolveRequestedHead finds the current hg head node and revision number
// a requested logical ref names, the piece of §4.F the generator itself
// doesn't own since it has no reason to know about branch/bookmark/tag
// dispatch.
func (s *Session) resolveRequestedHead(logical refs.Logical) (node string, rev int, err error) {
	switch logical.Type {
	case refs.Branch:
		node, err = s.hg.BranchTip(logical.Name)
	case refs.Bookmark:
		var bookmarks []hgclient.Bookmark
		bookmarks, err = s.hg.Bookmarks()
		if err == nil {
			for _, bm := range bookmarks {
				if bm.Name == logical.Name {
					node = bm.Node
				}
			}
			if node == "" {
				err = fmt.Errorf("bookmark %q not found", logical.Name)
			}
		}
	case refs.Tag:
		var tags []hgclient.Tag
		tags, err = s.hg.Tags()
		if err == nil {
			for _, tag := range tags {
				if tag.Name == logical.Name {
					node = tag.Node
				}
			}
			if node == "" {
				err = fmt.Errorf("tag %q not found", logical.Name)
			}
		}
	}
	if err != nil {
		return "", 0, err
	}
	cs, err := s.hg.ChangesetByNode(node)
	if err != nil {
		return "", 0, err
	}
	return node, cs.Rev, nil
}

// notesUUID derives a stable per-remote identifier for the notes ref,
// keyed off the storage root (the SHA-1 of the URL), so remotes for
// different URLs sharing one GIT_DIR never collide; aliases of the same
// URL share one notes ref.
func (s *Session) notesUUID() string {
	return filepath.Base(s.root)
}

// doExport drives the export consumer (G) and renders its acks per
// spec.md §6's `ok`/`error` line shapes, including the "up to date"
// suffix from the FEATURE SUPPLEMENT.
func (s *Session) doExport() error {
	consumer := &hgexport.Consumer{
		HG:          s.hg,
		Marks:       s.marks,
		GitMarks:    s.gitMarks,
		Author:      s.authorT,
		In:          s.in,
		Alias:       s.Alias,
		UpstreamURL: s.URL,
		Diag:        s.Diag,
	}
	acks, err := consumer.Run()
	if err != nil {
		return err
	}
	for _, a := range acks {
		switch {
		case a.OK && a.UpToDate:
			fmt.Fprintf(s.out, "ok %s up to date\n", a.Ref)
		case a.OK:
			fmt.Fprintf(s.out, "ok %s\n", a.Ref)
		default:
			fmt.Fprintf(s.out, "error %s %s\n", a.Ref, a.Reason)
		}
	}
	fmt.Fprintln(s.out)
	return nil
}
