package reflist

import (
	"testing"

	"gitlab.com/esr/git-remote-hg/internal/hgclient"
)

func TestBranchTipsBuildsOneEntryPerBranch(t *testing.T) {
	l := &Lister{}
	branches := []hgclient.Branch{
		{Name: "default", Node: "aaaa"},
		{Name: "stable", Node: "bbbb"},
	}
	tips := l.branchTips(branches)
	if tips.Size() != 2 {
		t.Fatalf("expected 2 tips, got %d", tips.Size())
	}
	if v, _ := tips.Get("default"); v != "aaaa" {
		t.Errorf("default tip = %v, want aaaa", v)
	}
}

func TestExtraHeadPairsFindsDivergentHead(t *testing.T) {
	l := &Lister{}
	tips := l.branchTips([]hgclient.Branch{{Name: "default", Node: "aaaa"}})
	heads := []hgclient.Branch{
		{Name: "default", Node: "aaaa"}, // the tip itself: not a conflict
		{Name: "default", Node: "cccc"}, // an anonymous extra head
	}
	conflicts := extraHeadPairs(tips, heads)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d: %+v", len(conflicts), conflicts)
	}
	if conflicts[0].Branch != "default" || conflicts[0].Tip != "aaaa" || conflicts[0].Extra != "cccc" {
		t.Errorf("unexpected conflict: %+v", conflicts[0])
	}
}

func TestExtraHeadPairsNoConflictOnSingleHead(t *testing.T) {
	l := &Lister{}
	tips := l.branchTips([]hgclient.Branch{{Name: "default", Node: "aaaa"}})
	heads := []hgclient.Branch{{Name: "default", Node: "aaaa"}}
	if conflicts := extraHeadPairs(tips, heads); len(conflicts) != 0 {
		t.Errorf("expected no conflicts, got %+v", conflicts)
	}
}

func TestExtraHeadPairsIgnoresUnknownBranch(t *testing.T) {
	l := &Lister{}
	tips := l.branchTips([]hgclient.Branch{{Name: "default", Node: "aaaa"}})
	heads := []hgclient.Branch{{Name: "closed-branch", Node: "zzzz"}}
	if conflicts := extraHeadPairs(tips, heads); len(conflicts) != 0 {
		t.Errorf("a head on a branch not in tips should never be reported, got %+v", conflicts)
	}
}
