// Package markstore maintains the persistent bijection between integer
// marks and Mercurial/Git object identities, plus the per-ref import tips
// that make incremental imports idempotent.
//
// Grounded on gitifyhg/util.py (HGMarks, GitMarks) and generalized the way
// reposurgeon generalizes its own ordered maps (surgeon/inner.go,
// surgeon/selection.go) by using github.com/emirpasic/gods so iteration
// order is deterministic across runs instead of Go's randomized map order.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package markstore

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	orderedmap "github.com/emirpasic/gods/maps/linkedhashmap"
)

// schemaVersion is the current marks_version. See SPEC_FULL.md §4.A for the
// v1 -> v2 -> v3 upgrade path.
const schemaVersion = 3

// NodeResolver is the one external collaborator UpgradeSchema may call: it
// resolves a legacy integer hg revision number to its 40-char node hex via
// the (out-of-scope) changelog. No other Store operation touches it.
type NodeResolver interface {
	NodeForRevision(rev int) (string, error)
}

// onDiskV3 is the persisted JSON shape. Older schemas are decoded
// permissively (see load) and migrated in memory before first use.
type onDiskV3 struct {
	MarksVersion       int               `json:"marks_version"`
	LastMark           int               `json:"last_mark"`
	RevisionsToMarks   map[string]int    `json:"revisions_to_marks"`
	Tips               map[string]int    `json:"tips"`
	NotesMark          *int              `json:"notes_mark,omitempty"`
}

// Store is the mark store, component A. All mutating operations assume a
// single-threaded caller (the session controller); there is no internal
// locking.
type Store struct {
	path string

	lastMark         int
	revisionsToMarks map[string]int  // hg node hex -> mark
	marksToRevisions map[int]string  // mark -> hg node hex (reconstructed)
	tips             *orderedmap.Map // gitify-ref -> last-exported hg revision number
	notesMark        int             // 0 means "absent"
	version          int             // marks_version as loaded; see UpgradeSchema
}

// New creates an empty, unpersisted Store at path.
func New(path string) *Store {
	return &Store{
		path:             path,
		revisionsToMarks: make(map[string]int),
		marksToRevisions: make(map[int]string),
		tips:             orderedmap.New(),
	}
}

// Load reads the JSON store at path. A missing file is a clean empty start
// (Invariant: matches New). A malformed file is fatal — the caller should
// treat the returned error as a diagnostic pointing at debug mode, per
// spec.md §7's "state corruption" error class.
func Load(path string) (*Store, error) {
	s := New(path)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("markstore: opening %s: %w", path, err)
	}
	defer f.Close()

	var disk onDiskV3
	if err := json.NewDecoder(f).Decode(&disk); err != nil {
		return nil, fmt.Errorf("markstore: malformed marks file %s: %w", path, err)
	}

	s.lastMark = disk.LastMark
	s.revisionsToMarks = disk.RevisionsToMarks
	if s.revisionsToMarks == nil {
		s.revisionsToMarks = make(map[string]int)
	}
	s.marksToRevisions = make(map[int]string, len(s.revisionsToMarks))
	for node, mark := range s.revisionsToMarks {
		s.marksToRevisions[mark] = node
	}
	tipRefs := make([]string, 0, len(disk.Tips))
	for ref := range disk.Tips {
		tipRefs = append(tipRefs, ref)
	}
	sort.Strings(tipRefs)
	for _, ref := range tipRefs {
		s.tips.Put(ref, disk.Tips[ref])
	}
	if disk.NotesMark != nil {
		s.notesMark = *disk.NotesMark
	}
	if disk.MarksVersion == 0 {
		disk.MarksVersion = 1
	}
	s.version = disk.MarksVersion
	return s, nil
}

// Store writes the current state back to path as JSON, atomically (write
// to a temp file in the same directory, then rename).
func (s *Store) Store() error {
	disk := onDiskV3{
		MarksVersion:     schemaVersion,
		LastMark:         s.lastMark,
		RevisionsToMarks: s.revisionsToMarks,
		Tips:             s.tipsAsMap(),
	}
	if s.notesMark != 0 {
		nm := s.notesMark
		disk.NotesMark = &nm
	}
	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("markstore: creating %s: %w", tmp, err)
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(disk); err != nil {
		f.Close()
		return fmt.Errorf("markstore: encoding: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) tipsAsMap() map[string]int {
	out := make(map[string]int, s.tips.Size())
	it := s.tips.Iterator()
	for it.Next() {
		out[it.Key().(string)] = it.Value().(int)
	}
	return out
}

// GetOrAssignMark returns node's mark, assigning a fresh one if this is the
// first time node has been seen. Idempotent per node.
func (s *Store) GetOrAssignMark(node string) int {
	if mark, ok := s.revisionsToMarks[node]; ok {
		return mark
	}
	s.lastMark++
	s.revisionsToMarks[node] = s.lastMark
	s.marksToRevisions[s.lastMark] = node
	return s.lastMark
}

// AssignMark records that mark (assigned externally, by git fast-export)
// belongs to node. Used by the export consumer, where the
// mark comes from the incoming stream rather than being freshly minted.
func (s *Store) AssignMark(node string, mark int) {
	s.revisionsToMarks[node] = mark
	s.marksToRevisions[mark] = node
	if mark > s.lastMark {
		s.lastMark = mark
	}
}

// NodeToMark returns the mark assigned to node, if any.
func (s *Store) NodeToMark(node string) (int, bool) {
	m, ok := s.revisionsToMarks[node]
	return m, ok
}

// MarkToNode returns the node assigned to mark, if any.
func (s *Store) MarkToNode(mark int) (string, bool) {
	n, ok := s.marksToRevisions[mark]
	return n, ok
}

// IsMarked reports whether node already has a mark.
func (s *Store) IsMarked(node string) bool {
	_, ok := s.revisionsToMarks[node]
	return ok
}

// NewNotesMark mints and records a fresh mark reserved for a notes commit.
func (s *Store) NewNotesMark() int {
	s.lastMark++
	s.notesMark = s.lastMark
	return s.lastMark
}

// NotesMark returns the last mark used for a notes commit, or 0 if none.
func (s *Store) NotesMark() int {
	return s.notesMark
}

// Tip returns the last-exported hg revision number for a gitify-ref, or 0
// (meaning "from the beginning") if the ref has never been imported.
func (s *Store) Tip(gitifyRef string) int {
	if v, ok := s.tips.Get(gitifyRef); ok {
		return v.(int)
	}
	return 0
}

// SetTip records that gitifyRef has now been imported through hgRev. The
// export consumer does not call it.
func (s *Store) SetTip(gitifyRef string, hgRev int) {
	s.tips.Put(gitifyRef, hgRev)
}

// Snapshot returns a deep copy suitable as an export checkpoint (§4.G:
// "reloads the Mark store from the last checkpoint"). Restore installs it
// back.
func (s *Store) Snapshot() *Store {
	cp := New(s.path)
	cp.lastMark = s.lastMark
	cp.notesMark = s.notesMark
	cp.version = s.version
	for k, v := range s.revisionsToMarks {
		cp.revisionsToMarks[k] = v
	}
	for k, v := range s.marksToRevisions {
		cp.marksToRevisions[k] = v
	}
	it := s.tips.Iterator()
	for it.Next() {
		cp.tips.Put(it.Key(), it.Value())
	}
	return cp
}

// Restore replaces s's mutable state with snapshot's, in place, so existing
// references to s observe the rollback.
func (s *Store) Restore(snapshot *Store) {
	s.lastMark = snapshot.lastMark
	s.notesMark = snapshot.notesMark
	s.version = snapshot.version
	s.revisionsToMarks = make(map[string]int, len(snapshot.revisionsToMarks))
	for k, v := range snapshot.revisionsToMarks {
		s.revisionsToMarks[k] = v
	}
	s.marksToRevisions = make(map[int]string, len(snapshot.marksToRevisions))
	for k, v := range snapshot.marksToRevisions {
		s.marksToRevisions[k] = v
	}
	s.tips = orderedmap.New()
	it := snapshot.tips.Iterator()
	for it.Next() {
		s.tips.Put(it.Key(), it.Value())
	}
}

// UpgradeSchema migrates a store loaded from an older version forward,
// v1 -> v2 -> v3, using resolver only for the v1 -> v2 step (resolving
// legacy integer revisions to node hex via the changelog). A store already
// current is a no-op. The path is strictly forward: see SPEC_FULL.md §4.A.
func (s *Store) UpgradeSchema(alias string, resolver NodeResolver) error {
	if s.version == 0 {
		s.version = schemaVersion
		return nil
	}
	if s.version == 1 {
		migratedRevToMark := make(map[string]int, len(s.revisionsToMarks))
		migratedMarkToRev := make(map[int]string, len(s.marksToRevisions))
		for revStr, mark := range s.revisionsToMarks {
			rev, err := strconv.Atoi(revStr)
			if err != nil {
				return fmt.Errorf("markstore: v1 upgrade: bad revision key %q: %w", revStr, err)
			}
			node, err := resolver.NodeForRevision(rev)
			if err != nil {
				return fmt.Errorf("markstore: v1 upgrade: resolving revision %d: %w", rev, err)
			}
			migratedRevToMark[node] = mark
			migratedMarkToRev[mark] = node
		}
		s.revisionsToMarks = migratedRevToMark
		s.marksToRevisions = migratedMarkToRev
		s.version = 2
	}
	if s.version == 2 {
		migrated := orderedmap.New()
		it := s.tips.Iterator()
		for it.Next() {
			key := it.Key().(string)
			if !strings.HasPrefix(key, "refs/hg/") {
				key = fmt.Sprintf("refs/hg/%s/%s", alias, key)
			}
			migrated.Put(key, it.Value())
		}
		s.tips = migrated
		s.version = 3
	}
	return nil
}
