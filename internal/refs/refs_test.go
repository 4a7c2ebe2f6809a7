package refs

import "testing"

func TestRoundTripNonDefault(t *testing.T) {
	cases := []Logical{
		{Branch, "stable"},
		{Bookmark, "feature"},
		{Tag, "v1.0"},
	}
	for _, l := range cases {
		ref := GitRef(l)
		got, ok := ParseGitRef(ref)
		if !ok {
			t.Fatalf("ParseGitRef(%q) reported unknown", ref)
		}
		if got != l {
			t.Errorf("round trip mismatch: %+v -> %q -> %+v", l, ref, got)
		}
	}
}

func TestDefaultMasterCanonicalization(t *testing.T) {
	if GitRef(Logical{Branch, DefaultBranch}) != "refs/heads/master" {
		t.Error("default branch must canonicalize to refs/heads/master")
	}
	got, ok := ParseGitRef("refs/heads/master")
	if !ok || got != (Logical{Branch, DefaultBranch}) {
		t.Errorf("refs/heads/master must parse back to (Branch, default), got %+v ok=%v", got, ok)
	}
}

func TestMasterBookmarkRejected(t *testing.T) {
	if _, ok := ParseGitRef("refs/heads/master_not_a_branch"); !ok {
		t.Fatal("refs/heads/master_not_a_branch should parse as a bookmark")
	}
	if got, _ := ParseGitRef("refs/heads/" + MasterBranch); got.Type == Bookmark {
		t.Fatal("refs/heads/master must not parse as a bookmark (collides with default-branch alias)")
	}
}

func TestGitifyRefDefaultBranchUsesBookmarksNamespace(t *testing.T) {
	got := GitifyRef("origin", Logical{Branch, DefaultBranch})
	want := "refs/hg/origin/bookmarks/master"
	if got != want {
		t.Errorf("GitifyRef(default) = %q, want %q", got, want)
	}
}

func TestGitifyRefEscapesSpaces(t *testing.T) {
	got := GitifyRef("origin", Logical{Bookmark, "my feature"})
	want := "refs/hg/origin/bookmarks/my___feature"
	if got != want {
		t.Errorf("GitifyRef(spaces) = %q, want %q", got, want)
	}
}

func TestSpaceEscapeRoundTrip(t *testing.T) {
	name := "a name with spaces"
	if UnescapeSpaces(EscapeSpaces(name)) != name {
		t.Error("space escape must round trip")
	}
}
