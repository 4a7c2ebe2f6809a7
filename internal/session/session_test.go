package session

import (
	"testing"

	"gitlab.com/esr/git-remote-hg/internal/config"
)

func TestNotesUUIDDerivesFromStorageRoot(t *testing.T) {
	s := &Session{root: "/tmp/gitdir/hg/deadbeef"}
	if got := s.notesUUID(); got != "deadbeef" {
		t.Errorf("notesUUID() = %q, want %q", got, "deadbeef")
	}
}

func TestNewRejectsMissingGitDir(t *testing.T) {
	if _, err := New(config.Config{}, nil, "origin", "http://example.com/repo"); err == nil {
		t.Error("New should reject an empty GitDir")
	}
}
