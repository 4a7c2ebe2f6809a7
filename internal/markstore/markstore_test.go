package markstore

import (
	"path/filepath"
	"testing"
)

func TestGetOrAssignMarkIsIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "marks-hg"))
	node := "a1b2c3d4e5f6a1b2c3d4e5f6a1b2c3d4e5f6a1b2"
	m1 := s.GetOrAssignMark(node)
	m2 := s.GetOrAssignMark(node)
	if m1 != m2 {
		t.Fatalf("GetOrAssignMark not idempotent: %d != %d", m1, m2)
	}
	if !s.IsMarked(node) {
		t.Fatal("expected node to be marked")
	}
}

func TestBijection(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "marks-hg"))
	nodes := []string{"aaaa", "bbbb", "cccc"}
	for _, n := range nodes {
		mark := s.GetOrAssignMark(n)
		gotNode, ok := s.MarkToNode(mark)
		if !ok || gotNode != n {
			t.Fatalf("MarkToNode(%d) = %q, %v; want %q, true", mark, gotNode, ok, n)
		}
		gotMark, ok := s.NodeToMark(n)
		if !ok || gotMark != mark {
			t.Fatalf("NodeToMark(%q) = %d, %v; want %d, true", n, gotMark, ok, mark)
		}
	}
}

func TestStoreAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marks-hg")
	s := New(path)
	mark := s.GetOrAssignMark("deadbeef")
	s.SetTip("refs/hg/origin/bookmarks/master", 7)
	notesMark := s.NewNotesMark()
	if err := s.Store(); err != nil {
		t.Fatalf("Store: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, ok := loaded.NodeToMark("deadbeef"); !ok || got != mark {
		t.Errorf("NodeToMark after reload = %d, %v; want %d, true", got, ok, mark)
	}
	if got := loaded.Tip("refs/hg/origin/bookmarks/master"); got != 7 {
		t.Errorf("Tip after reload = %d, want 7", got)
	}
	if got := loaded.NotesMark(); got != notesMark {
		t.Errorf("NotesMark after reload = %d, want %d", got, notesMark)
	}
}

func TestLoadMissingFileIsCleanEmptyStart(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Load of missing file should not error: %v", err)
	}
	if s.IsMarked("anything") {
		t.Error("fresh store should have no marks")
	}
}

func TestSnapshotAndRestoreRollback(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "marks-hg"))
	s.GetOrAssignMark("before")
	checkpoint := s.Snapshot()

	s.GetOrAssignMark("after-rollback-should-vanish")
	if !s.IsMarked("after-rollback-should-vanish") {
		t.Fatal("setup: expected node to be marked before rollback")
	}

	s.Restore(checkpoint)
	if s.IsMarked("after-rollback-should-vanish") {
		t.Error("Restore did not roll back a mark assigned after the checkpoint")
	}
	if !s.IsMarked("before") {
		t.Error("Restore lost a mark that predates the checkpoint")
	}
}

type fakeResolver struct{ nodes map[int]string }

func (f fakeResolver) NodeForRevision(rev int) (string, error) {
	return f.nodes[rev], nil
}

func TestUpgradeSchemaV1ToV3(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "marks-hg"))
	s.version = 1
	s.revisionsToMarks = map[string]int{"0": 1, "1": 2}
	s.marksToRevisions = map[int]string{1: "0", 2: "1"}
	s.tips.Put("default", 1)

	resolver := fakeResolver{nodes: map[int]string{0: "node0hex", 1: "node1hex"}}
	if err := s.UpgradeSchema("origin", resolver); err != nil {
		t.Fatalf("UpgradeSchema: %v", err)
	}
	if mark, ok := s.NodeToMark("node0hex"); !ok || mark != 1 {
		t.Errorf("after upgrade, node0hex -> %d, %v; want 1, true", mark, ok)
	}
	if tip := s.Tip("refs/hg/origin/default"); tip != 1 {
		t.Errorf("tips key should have been rewritten under refs/hg/origin/, got tip=%d", tip)
	}
	if s.version != schemaVersion {
		t.Errorf("version after upgrade = %d, want %d", s.version, schemaVersion)
	}
}
