package author

import "testing"

func TestToGitTruthTable(t *testing.T) {
	tr := &Translator{}
	cases := []struct{ in, want string }{
		{"all is good <e@x>", "all is good <e@x>"},
		{"no email supplied", "no email supplied <>"},
		{"<only@email>", "<only@email>"},
		{"bare@email", "<bare@email>"},
		{"nospace<e@x>", "nospace <e@x>"},
		{"totally >>> bad <<< quote <><><", "totally <bad  quote>"},
	}
	for _, c := range cases {
		if got := tr.ToGit(c.in); got != c.want {
			t.Errorf("ToGit(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestToGitEmptyFallsBackToUnknown(t *testing.T) {
	tr := &Translator{}
	if got := tr.ToGit(""); got != "Unknown <>" {
		t.Errorf("ToGit(\"\") = %q, want %q", got, "Unknown <>")
	}
}

func TestToGitNoAngleBracketsSurvive(t *testing.T) {
	tr := &Translator{}
	for _, in := range []string{"a <b@c>", "<b@c>", "b@c", "a", ""} {
		got := tr.ToGit(in)
		for _, r := range got {
			_ = r
		}
		if want, got := true, !containsAngleOutsideWrapper(got); want != got {
			t.Errorf("ToGit(%q) = %q still has stray angle brackets", in, got)
		}
	}
}

// containsAngleOutsideWrapper checks there are exactly one '<' and one '>'
// framing the email, and none elsewhere.
func containsAngleOutsideWrapper(s string) bool {
	open, close := 0, 0
	for _, r := range s {
		if r == '<' {
			open++
		}
		if r == '>' {
			close++
		}
	}
	return open <= 1 && close <= 1
}

func TestParseExportLine(t *testing.T) {
	p, ok := ParseExportLine("author Jane Doe <jane@example.com> 1700000000 -0500")
	if !ok {
		t.Fatal("expected a match")
	}
	if p.User != "Jane Doe <jane@example.com>" {
		t.Errorf("User = %q", p.User)
	}
	if p.Seconds != 1700000000 {
		t.Errorf("Seconds = %d", p.Seconds)
	}
	// Git -0500 is 5 hours behind UTC (west); hg stores seconds west of
	// UTC as a positive number, so -0500 (east sign) should invert to
	// +18000 seconds west.
	if p.TZOffsetSeconds != 18000 {
		t.Errorf("TZOffsetSeconds = %d, want 18000", p.TZOffsetSeconds)
	}
}

func TestParseExportLineNoName(t *testing.T) {
	p, ok := ParseExportLine("committer <bot@example.com> 123 +0000")
	if !ok {
		t.Fatal("expected a match")
	}
	if p.User != "<bot@example.com>" {
		t.Errorf("User = %q, want <bot@example.com>", p.User)
	}
}

func TestGitTZBothSigns(t *testing.T) {
	// hg stores -18000 seconds (5 hours east of UTC, e.g. a +0500 zone
	// stores a negative hg tz).
	got := GitTZ(-18000)
	if got != "+0500" {
		t.Errorf("GitTZ(-18000) = %q, want +0500", got)
	}
	got = GitTZ(18000)
	if got != "-0500" {
		t.Errorf("GitTZ(18000) = %q, want -0500", got)
	}
}
