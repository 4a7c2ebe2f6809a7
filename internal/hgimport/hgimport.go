// Package hgimport implements the import stream generator, component F: it
// reads a range of Mercurial changesets off the local clone and emits a Git
// fast-import stream realizing them, then a companion notes stream mapping
// the new commits back to their hg node hex.
//
// Grounded on gitifyhg/hgimporter.py:HGImporter.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package hgimport

import (
	"fmt"
	"strings"

	"gitlab.com/esr/git-remote-hg/internal/author"
	"gitlab.com/esr/git-remote-hg/internal/diag"
	"gitlab.com/esr/git-remote-hg/internal/filemode"
	"gitlab.com/esr/git-remote-hg/internal/gitstream"
	"gitlab.com/esr/git-remote-hg/internal/hgclient"
	"gitlab.com/esr/git-remote-hg/internal/markstore"
	"gitlab.com/esr/git-remote-hg/internal/refs"
)

// progressInterval is how often a `progress` record is emitted, per §8 P7.
const progressInterval = 100

// Generator drives component F against a single working clone and mark
// store, writing to a shared ImportWriter. One Generator instance is
// reused across every `import <ref>` line in a session (spec.md §4.H:
// "multiple import lines may arrive back-to-back").
type Generator struct {
	HG         *hgclient.Client
	Marks      *markstore.Store
	Author     *author.Translator
	Out        *gitstream.ImportWriter
	Alias      string
	NotesUUID  string
	Diag       *diag.Diag

	newMarksThisRef []markedNode // reset per ref, fed into the notes pass
}

type markedNode struct {
	mark int
	node string
}

// Ref describes one requested logical ref and its current hg head.
type Ref struct {
	Logical   refs.Logical
	HeadNode  string
	HeadRev   int
}

// DeclareFeatures emits the feature block fast-import expects up front,
// once per batch of `import` lines (spec.md §4.F, grounded on
// gitifyhg/hgimporter.py:HGImporter.process). import-marks is only
// declared when the git marks file already exists, since fast-import
// otherwise errors on a missing import-marks path.
func DeclareFeatures(out *gitstream.ImportWriter, gitMarksPath string, gitMarksExists bool) error {
	out.Feature("done")
	out.Feature("notes")
	if gitMarksExists {
		out.Feature("import-marks=" + gitMarksPath)
	}
	out.Feature("export-marks=" + gitMarksPath)
	return out.Flush()
}

// ImportRef emits a fast-import stream for one requested ref, per §4.F's
// algorithm: half-open revision range from the persisted tip, idempotent
// skip of already-marked nodes, commit records with translated author/
// committer and manifest-diff file ops, periodic progress, and a trailing
// unconditional reset.
func (g *Generator) ImportRef(ref Ref) error {
	destRef := refs.GitifyRef(g.Alias, ref.Logical)
	t0 := g.Marks.Tip(destRef)
	if g.Diag != nil {
		g.Diag.Debugf("importing %s from revision %d through %d", destRef, t0, ref.HeadRev)
	}
	g.newMarksThisRef = g.newMarksThisRef[:0]

	var lastMark int
	count := 0
	for rev := t0; rev <= ref.HeadRev; rev++ {
		cs, err := g.HG.ChangesetByRev(rev)
		if err != nil {
			return fmt.Errorf("hgimport: reading revision %d: %w", rev, err)
		}
		if g.Marks.IsMarked(cs.Node) {
			continue // idempotent re-run, §8 P2
		}

		if len(cs.Parents) == 0 && rev != t0 {
			g.Out.Reset(destRef)
		}

		mark := g.Marks.GetOrAssignMark(cs.Node)
		g.Out.CommitHeader(destRef, mark)

		authorLine, committerLine := g.authorAndCommitter(cs)
		g.Out.Author(authorLine)
		g.Out.Committer(committerLine)
		g.Out.Data([]byte(cs.Description))

		var parentMark, mergeMark int
		if len(cs.ParentNodes) > 0 {
			parentMark = g.Marks.GetOrAssignMark(cs.ParentNodes[0])
			g.Out.From(parentMark)
		}
		if len(cs.ParentNodes) > 1 {
			mergeMark = g.Marks.GetOrAssignMark(cs.ParentNodes[1])
			g.Out.Merge(mergeMark)
		}

		if err := g.emitFileOps(cs); err != nil {
			return err
		}
		g.Out.Blank()

		g.newMarksThisRef = append(g.newMarksThisRef, markedNode{mark: mark, node: cs.Node})
		lastMark = mark
		count++
		if count%progressInterval == 0 {
			g.Out.Progress(fmt.Sprintf("revision %d on %s (%d)", rev, ref.Logical.Name, count))
			if err := g.Out.Flush(); err != nil {
				return err
			}
		}
	}

	if lastMark == 0 {
		// no new commits this run; re-point at whatever was already marked
		if mark, ok := g.Marks.NodeToMark(ref.HeadNode); ok {
			lastMark = mark
		}
	}
	if lastMark != 0 {
		g.Out.Reset(destRef)
		g.Out.From(lastMark)
		g.Out.Blank()
	}

	g.Marks.SetTip(destRef, ref.HeadRev)
	g.emitNotes()
	return g.Out.Flush()
}

// emitNotes appends one notes commit per finished ref, mapping every new
// (mark, hg-node) pair produced this call onto the notes branch, per §4.F.
// A ref with no new commits emits no notes commit at all, avoiding an
// empty notes commit on no-op imports.
func (g *Generator) emitNotes() {
	if len(g.newMarksThisRef) == 0 {
		return
	}
	previousNotesMark := g.Marks.NotesMark()
	var fresh []markedNode
	for _, mn := range g.newMarksThisRef {
		if mn.mark > previousNotesMark {
			fresh = append(fresh, mn)
		}
	}
	if len(fresh) == 0 {
		return
	}

	notesRef := refs.NotesRef(g.NotesUUID)
	notesMark := g.Marks.NewNotesMark()
	g.Out.CommitHeader(notesRef, notesMark)
	g.Out.Author("git-remote-hg <git-remote-hg@localhost> 0 +0000")
	g.Out.Committer("git-remote-hg <git-remote-hg@localhost> 0 +0000")
	g.Out.Data([]byte("Notes for hg node identities\n"))
	for _, mn := range fresh {
		g.Out.NoteAdd(mn.mark, mn.node)
	}
	g.Out.Blank()
}

// authorAndCommitter applies spec.md §4.F: author/committer both come from
// the changeset's user field, unless an extra "committer" field is present,
// in which case it is parsed (via the export author-line grammar, since
// the extra holds the same "Name <email> secs tz" shape a Git committer
// line carries; this repository's own exporter never writes that extra,
// see DESIGN.md) and used for the committer line instead.
func (g *Generator) authorAndCommitter(cs hgclient.Changeset) (authorLine, committerLine string) {
	translated := g.Author.ToGit(cs.User)
	gitTZ := author.GitTZ(cs.TZ)
	authorLine = fmt.Sprintf("%s %d %s", translated, cs.Date, gitTZ)
	committerLine = authorLine
	if raw, ok := cs.Extra["committer"]; ok {
		if parsed, ok := author.ParseExportLine("committer " + stripNameEmailOnly(raw)); ok {
			committerLine = fmt.Sprintf("%s %d %s", parsed.User, parsed.Seconds, author.GitTZ(parsed.TZOffsetSeconds))
		}
	}
	return authorLine, committerLine
}

// stripNameEmailOnly is a defensive no-op hook: the committer extra is
// already in "Name <email> secs tz" form as hg stored it, so there is
// nothing to transform before handing it to ParseExportLine.
func stripNameEmailOnly(raw string) string { return raw }

// emitFileOps computes the diff against the first parent (every path, for
// a root commit) via `hg status` and emits M/D records, per §4.F.
func (g *Generator) emitFileOps(cs hgclient.Changeset) error {
	parent := "null"
	if len(cs.ParentNodes) > 0 {
		parent = cs.ParentNodes[0]
	}
	changed, removed, err := g.HG.DiffStatus(parent, cs.Node)
	if err != nil {
		return fmt.Errorf("hgimport: diffing %s against %s: %w", cs.Node, parent, err)
	}
	if len(changed) == 0 && len(removed) == 0 {
		return nil
	}

	target, err := g.HG.Manifest(cs.Node)
	if err != nil {
		return fmt.Errorf("hgimport: manifest of %s: %w", cs.Node, err)
	}
	for _, path := range changed {
		data, err := g.HG.FileData(cs.Node, path)
		if err != nil {
			return fmt.Errorf("hgimport: reading %s at %s: %w", path, cs.Node, err)
		}
		g.Out.Modify(filemode.ToGit(target[path].Flags), normalizePath(path), data)
	}
	for _, path := range removed {
		g.Out.Delete(normalizePath(path))
	}
	return nil
}

// normalizePath strips any leading slash so every path is relative, per
// §4.F's "Paths are normalized to be relative".
func normalizePath(path string) string {
	return strings.TrimPrefix(path, "/")
}
