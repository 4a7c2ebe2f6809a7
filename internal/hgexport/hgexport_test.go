package hgexport

import "testing"

func TestParseMarkRef(t *testing.T) {
	got, err := parseMarkRef(":42")
	if err != nil {
		t.Fatalf("parseMarkRef: %v", err)
	}
	if got != 42 {
		t.Errorf("parseMarkRef(:42) = %d, want 42", got)
	}
	if _, err := parseMarkRef("42"); err == nil {
		t.Error("parseMarkRef should reject a token missing its leading colon")
	}
}

func TestParseFileOpLineModify(t *testing.T) {
	op, err := parseFileOpLine("M 100644 :7 path/to/file.txt")
	if err != nil {
		t.Fatalf("parseFileOpLine: %v", err)
	}
	if op.Delete || op.Mode != "100644" || op.BlobMark != 7 || op.Path != "path/to/file.txt" {
		t.Errorf("parseFileOpLine modify = %+v", op)
	}
}

func TestParseFileOpLineDelete(t *testing.T) {
	op, err := parseFileOpLine("D path/to/file.txt")
	if err != nil {
		t.Fatalf("parseFileOpLine: %v", err)
	}
	if !op.Delete || op.Path != "path/to/file.txt" {
		t.Errorf("parseFileOpLine delete = %+v", op)
	}
}

func TestParseFileOpLineRejectsUnknown(t *testing.T) {
	if _, err := parseFileOpLine("R old new"); err == nil {
		t.Error("parseFileOpLine should reject an unrecognized op letter")
	}
}

func TestUnquotePath(t *testing.T) {
	if got := unquotePath(`"a\tb"`); got != "a\tb" {
		t.Errorf("unquotePath(quoted) = %q", got)
	}
	if got := unquotePath("plain/path"); got != "plain/path" {
		t.Errorf("unquotePath(plain) = %q", got)
	}
}

func TestShortNode(t *testing.T) {
	full := "0123456789abcdef0123456789abcdef01234567"
	if got := shortNode(full); got != full[:12] {
		t.Errorf("shortNode = %q", got)
	}
	if got := shortNode("abcd"); got != "abcd" {
		t.Errorf("shortNode of a short string should be unchanged, got %q", got)
	}
}

func TestNormalizePath(t *testing.T) {
	if got := normalizePath("/a/b"); got != "a/b" {
		t.Errorf("normalizePath(/a/b) = %q", got)
	}
}
