// Package filemode translates between Mercurial's per-file flag characters
// ('x' executable, 'l' symlink, '' plain) and Git's fast-import mode
// strings. Grounded on gitifyhg/util.py (gitmode, hgmode).
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package filemode

const (
	GitRegular    = "100644"
	GitExecutable = "100755"
	GitSymlink    = "120000"
)

// ToGit converts a Mercurial flag string ("", "x", or "l") to a Git
// fast-import mode.
func ToGit(hgFlags string) string {
	switch {
	case containsRune(hgFlags, 'l'):
		return GitSymlink
	case containsRune(hgFlags, 'x'):
		return GitExecutable
	default:
		return GitRegular
	}
}

// ToHg converts a Git fast-import mode back to a Mercurial flag character
// (empty string for a plain file).
func ToHg(gitMode string) string {
	switch gitMode {
	case GitExecutable:
		return "x"
	case GitSymlink:
		return "l"
	default:
		return ""
	}
}

func containsRune(s string, r rune) bool {
	for _, c := range s {
		if c == r {
			return true
		}
	}
	return false
}
