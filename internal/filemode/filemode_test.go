package filemode

import "testing"

func TestToGit(t *testing.T) {
	cases := []struct {
		hgFlags string
		want    string
	}{
		{"", GitRegular},
		{"x", GitExecutable},
		{"l", GitSymlink},
	}
	for _, c := range cases {
		if got := ToGit(c.hgFlags); got != c.want {
			t.Errorf("ToGit(%q) = %q, want %q", c.hgFlags, got, c.want)
		}
	}
}

func TestToHg(t *testing.T) {
	cases := []struct {
		gitMode string
		want    string
	}{
		{GitRegular, ""},
		{GitExecutable, "x"},
		{GitSymlink, "l"},
	}
	for _, c := range cases {
		if got := ToHg(c.gitMode); got != c.want {
			t.Errorf("ToHg(%q) = %q, want %q", c.gitMode, got, c.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, mode := range []string{GitRegular, GitExecutable, GitSymlink} {
		if got := ToGit(ToHg(mode)); got != mode {
			t.Errorf("round trip %s -> %s -> %s", mode, ToHg(mode), got)
		}
	}
}
