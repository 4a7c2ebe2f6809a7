package hgimport

import (
	"testing"

	"gitlab.com/esr/git-remote-hg/internal/author"
	"gitlab.com/esr/git-remote-hg/internal/hgclient"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	translator, err := author.NewTranslator("")
	if err != nil {
		t.Fatalf("NewTranslator: %v", err)
	}
	return &Generator{Author: translator}
}

func TestAuthorAndCommitterSameWhenNoCommitterExtra(t *testing.T) {
	g := newTestGenerator(t)
	cs := hgclient.Changeset{
		User: "Jane Doe <jane@example.com>",
		Date: 1000,
		TZ:   0,
	}
	a, c := g.authorAndCommitter(cs)
	if a != c {
		t.Errorf("author and committer should match absent a committer extra: %q vs %q", a, c)
	}
	want := "Jane Doe <jane@example.com> 1000 +0000"
	if a != want {
		t.Errorf("authorAndCommitter author = %q, want %q", a, want)
	}
}

func TestAuthorAndCommitterHonorsCommitterExtra(t *testing.T) {
	g := newTestGenerator(t)
	cs := hgclient.Changeset{
		User: "Jane Doe <jane@example.com>",
		Date: 1000,
		TZ:   0,
		Extra: map[string]string{
			"committer": "John Roe <john@example.com> 2000 +0100",
		},
	}
	a, c := g.authorAndCommitter(cs)
	wantAuthor := "Jane Doe <jane@example.com> 1000 +0000"
	wantCommitter := "John Roe <john@example.com> 2000 +0100"
	if a != wantAuthor {
		t.Errorf("author = %q, want %q", a, wantAuthor)
	}
	if c != wantCommitter {
		t.Errorf("committer = %q, want %q", c, wantCommitter)
	}
}

func TestNormalizePathStripsLeadingSlash(t *testing.T) {
	if got := normalizePath("/a/b.txt"); got != "a/b.txt" {
		t.Errorf("normalizePath(/a/b.txt) = %q", got)
	}
	if got := normalizePath("a/b.txt"); got != "a/b.txt" {
		t.Errorf("normalizePath(a/b.txt) = %q", got)
	}
}
