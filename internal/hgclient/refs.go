package hgclient

import (
	"fmt"
	"strings"
)

// Branch is one entry of `hg branches`: its name, tip node, and whether it
// is closed (no open heads remain on it).
type Branch struct {
	Name   string
	Node   string
	Closed bool
}

// Branches lists every named branch. includeClosed mirrors the
// GIT_REMOTE_HG_ALLOW_CLOSED_BRANCHES policy gate the reference lister
// applies (spec.md §4.E).
func (c *Client) Branches(includeClosed bool) ([]Branch, error) {
	args := []string{"branches", "--template", "{branch}\x01{node}\x01{closed}\x02"}
	if includeClosed {
		args = []string{"branches", "-c", "--template", "{branch}\x01{node}\x01{closed}\x02"}
	}
	out, err := c.hg(args...)
	if err != nil {
		return nil, err
	}
	var branches []Branch
	for _, record := range splitRecords(out) {
		fields := strings.Split(record, "\x01")
		if len(fields) != 3 {
			continue
		}
		branches = append(branches, Branch{
			Name:   fields[0],
			Node:   fields[1],
			Closed: fields[2] == "1",
		})
	}
	return branches, nil
}

// Bookmark is one entry of `hg bookmarks`.
type Bookmark struct {
	Name   string
	Node   string
	Active bool
}

// Bookmarks lists every bookmark.
func (c *Client) Bookmarks() ([]Bookmark, error) {
	out, err := c.hg("bookmarks", "--template", "{bookmark}\x01{node}\x01{active}\x02")
	if err != nil {
		return nil, err
	}
	var marks []Bookmark
	for _, record := range splitRecords(out) {
		fields := strings.Split(record, "\x01")
		if len(fields) != 3 {
			continue
		}
		marks = append(marks, Bookmark{
			Name:   fields[0],
			Node:   fields[1],
			Active: fields[2] == "True",
		})
	}
	return marks, nil
}

// Tag is one entry of `hg tags`, excluding the synthetic "tip" tag.
type Tag struct {
	Name string
	Node string
}

// Tags lists every real tag (hg always reports a "tip" pseudo-tag; it is
// filtered out here since it names a moving target, not a changeset).
func (c *Client) Tags() ([]Tag, error) {
	out, err := c.hg("tags", "--template", "{tag}\x01{node}\x02")
	if err != nil {
		return nil, err
	}
	var tags []Tag
	for _, record := range splitRecords(out) {
		fields := strings.Split(record, "\x01")
		if len(fields) != 2 || fields[0] == "tip" {
			continue
		}
		tags = append(tags, Tag{Name: fields[0], Node: fields[1]})
	}
	return tags, nil
}

// CurrentBookmark returns the active bookmark name, or "" if none is active.
func (c *Client) CurrentBookmark() (string, error) {
	out, err := c.hg("log", "-r", ".", "--template", "{activebookmark}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// BranchTip returns the node hex at the head of branch. Assumes a single
// head per branch, the same assumption the reference lister's anonymous-
// extra-heads handling makes explicit.
func (c *Client) BranchTip(branch string) (string, error) {
	out, err := c.hg("log", "-r", fmt.Sprintf("head() and branch(%q)", branch), "--template", "{node}\n")
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return "", fmt.Errorf("hgclient: no head found for branch %q", branch)
	}
	return lines[0], nil
}

// Heads lists every open head `hg heads` reports, one entry per head
// rather than one per branch name — unlike Branches, a branch with more
// than one open head yields more than one entry here, which is what lets
// the reference lister actually detect anonymous extra heads instead of
// only ever seeing each branch's single advertised tip. Grounded on the
// original's branchheads() call, which walks repo.branchmap() the same
// way.
func (c *Client) Heads(includeClosed bool) ([]Branch, error) {
	args := []string{"heads", "--template", "{branch}\x01{node}\x01{closed}\x02"}
	if includeClosed {
		args = []string{"heads", "--closed", "--template", "{branch}\x01{node}\x01{closed}\x02"}
	}
	out, err := c.hg(args...)
	if err != nil {
		return nil, err
	}
	var heads []Branch
	for _, record := range splitRecords(out) {
		fields := strings.Split(record, "\x01")
		if len(fields) != 3 {
			continue
		}
		heads = append(heads, Branch{
			Name:   fields[0],
			Node:   fields[1],
			Closed: fields[2] == "1",
		})
	}
	return heads, nil
}

// BookmarkSet forcibly moves (or creates) bookmark name to point at node.
func (c *Client) BookmarkSet(name, node string) error {
	_, err := c.hg("bookmark", "-f", "-r", node, name)
	return err
}

func splitRecords(out string) []string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(out), "\x02")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\x02")
}
