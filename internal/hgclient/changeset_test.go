package hgclient

import "testing"

func TestParseChangesetSingleParentWithExtras(t *testing.T) {
	record := "abc123\x011\x01default\x010\x01-1\x01def000\x01\x01Jane <jane@x.com>\x011577836800 0\x01a commit\x01branch=default\x03committer=John <john@x.com> 1577836800 +0000\x03"
	cs, err := parseChangeset(record)
	if err != nil {
		t.Fatalf("parseChangeset: %v", err)
	}
	if cs.Node != "abc123" || cs.Rev != 1 || cs.Branch != "default" {
		t.Errorf("unexpected core fields: %+v", cs)
	}
	if len(cs.Parents) != 1 || cs.Parents[0] != 0 || cs.ParentNodes[0] != "def000" {
		t.Errorf("expected a single first parent, got %+v / %+v", cs.Parents, cs.ParentNodes)
	}
	if cs.Date != 1577836800 || cs.TZ != 0 {
		t.Errorf("date/tz = %d/%d", cs.Date, cs.TZ)
	}
	if cs.Extra["committer"] != "John <john@x.com> 1577836800 +0000" {
		t.Errorf("extras = %+v", cs.Extra)
	}
}

func TestParseChangesetRootCommitHasNoParents(t *testing.T) {
	record := "abc\x010\x01default\x01-1\x01-1\x01\x01\x01Jane <jane@x.com>\x011000 0\x01root\x01"
	cs, err := parseChangeset(record)
	if err != nil {
		t.Fatalf("parseChangeset: %v", err)
	}
	if len(cs.Parents) != 0 {
		t.Errorf("root commit should have no parents, got %+v", cs.Parents)
	}
}

func TestParseChangesetRejectsWrongFieldCount(t *testing.T) {
	if _, err := parseChangeset("too\x01few\x01fields"); err == nil {
		t.Error("parseChangeset should reject a record with the wrong field count")
	}
}
