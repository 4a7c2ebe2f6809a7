package hgexport

import (
	"fmt"
	"strings"

	"gitlab.com/esr/git-remote-hg/internal/hgclient"
	"gitlab.com/esr/git-remote-hg/internal/refs"
)

type stagedRef struct {
	Ref       string
	Logical   refs.Logical
	NewBranch bool
	OldNode   string
	NewNode   string
	UpToDate  bool
}

type bookmarkMove struct {
	Name    string
	OldNode string
	NewNode string
}

// stage walks the pending-ref map collected during parse and applies each
// target locally: branches need nothing beyond what commitToHg already did,
// bookmarks move via the hg client, and tags get a synthesized changeset
// appending to .hgtags, per §4.G.
func (c *Consumer) stage() ([]stagedRef, error) {
	existingBookmarks := make(map[string]string)
	bookmarks, err := c.HG.Bookmarks()
	if err != nil {
		return nil, fmt.Errorf("hgexport: listing bookmarks before stage: %w", err)
	}
	for _, bm := range bookmarks {
		existingBookmarks[bm.Name] = bm.Node
	}

	var staged []stagedRef
	var bookmarkMoves []bookmarkMove

	for ref, pending := range c.pendingRefs {
		logical, ok := refs.ParseGitRef(ref)
		if !ok {
			return nil, fmt.Errorf("hgexport: don't know how to stage ref %q", ref)
		}
		node := c.nodeForMark(pending.FromMark)
		upToDate := pending.FromMark != 0 && !c.processedMarks[pending.FromMark]

		switch logical.Type {
		case refs.Branch:
			staged = append(staged, stagedRef{
				Ref:       ref,
				Logical:   logical,
				NewBranch: !c.existingBranches[logical.Name],
				NewNode:   node,
				UpToDate:  upToDate,
			})
		case refs.Bookmark:
			old := existingBookmarks[logical.Name]
			if node != "" {
				if err := c.HG.BookmarkSet(logical.Name, node); err != nil {
					return nil, fmt.Errorf("hgexport: moving bookmark %s: %w", logical.Name, err)
				}
			}
			bookmarkMoves = append(bookmarkMoves, bookmarkMove{Name: logical.Name, OldNode: old, NewNode: node})
			staged = append(staged, stagedRef{Ref: ref, Logical: logical, OldNode: old, NewNode: node, UpToDate: old == node})
		case refs.Tag:
			tagNode, err := c.commitTag(logical.Name, node)
			if err != nil {
				return nil, fmt.Errorf("hgexport: tagging %s: %w", logical.Name, err)
			}
			staged = append(staged, stagedRef{Ref: ref, Logical: logical, NewNode: tagNode})
		}
	}

	c.bookmarkMoves = bookmarkMoves
	return staged, nil
}

func (c *Consumer) nodeForMark(mark int) string {
	if mark == 0 {
		return ""
	}
	if node, ok := c.markToNode[mark]; ok {
		return node
	}
	if node, ok := c.Marks.MarkToNode(mark); ok {
		return node
	}
	return ""
}

// commitTag appends taggedNode to the .hgtags file on its own branch's tip
// and commits the result, per §4.G: read current .hgtags, append unless the
// exact line already exists, commit with the buffered tagger/message if the
// stream carried a `tag` record, else a synthesized one.
func (c *Consumer) commitTag(name, taggedNode string) (string, error) {
	cs, err := c.HG.ChangesetByNode(taggedNode)
	if err != nil {
		return "", fmt.Errorf("reading tagged changeset %s: %w", taggedNode, err)
	}
	branch := cs.Branch
	tip, err := c.HG.BranchTip(branch)
	if err != nil {
		return "", fmt.Errorf("finding tip of branch %s: %w", branch, err)
	}

	var current []byte
	if existing, err := c.HG.FileData(tip, ".hgtags"); err == nil {
		current = existing
	}
	newLine := fmt.Sprintf("%s %s\n", taggedNode, name)
	if strings.Contains(string(current), newLine) {
		return tip, nil // identical line already present; nothing to do
	}
	content := append(append([]byte{}, current...), []byte(newLine)...)

	tagger := whoAmI()
	var seconds int64
	var tz int
	message := fmt.Sprintf("Added tag %s for changeset %s", name, shortNode(taggedNode))
	if buffered, ok := c.pendingTags[name]; ok && buffered.HasTag {
		tagger = buffered.Tagger.User
		seconds = buffered.Tagger.Seconds
		tz = buffered.Tagger.TZOffsetSeconds
		message = buffered.Message
	}

	changes := map[string]hgclient.FileChange{
		".hgtags": {Data: content},
	}
	return c.HG.CommitChangeset(tip, "", branch, tagger, seconds, tz, message, changes)
}

func shortNode(node string) string {
	if len(node) > 12 {
		return node[:12]
	}
	return node
}
