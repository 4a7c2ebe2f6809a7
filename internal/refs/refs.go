// Package refs translates between Mercurial's reference namespace (named
// branches, bookmarks, tags) and Git's (refs/heads/..., refs/tags/...), plus
// the helper-private "gitify" namespace used as the fast-import/export
// destination.
//
// Grounded on gitifyhg/util.py (ref_to_name_reftype, name_reftype_to_ref,
// hg_to_git_spaces/git_to_hg_spaces) and gitifyhg/gitifyhg.py
// (HGRemote.make_gitify_ref).
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package refs

import "strings"

// Type is the three-way reftype tag. A tagged variant, not a hierarchy: see
// DESIGN.md.
type Type int

const (
	Branch Type = iota
	Bookmark
	Tag
)

func (t Type) String() string {
	switch t {
	case Branch:
		return "branch"
	case Bookmark:
		return "bookmark"
	case Tag:
		return "tag"
	default:
		return "unknown"
	}
}

// DefaultBranch is the Mercurial name that aliases Git's "master".
const DefaultBranch = "default"

// MasterBranch is the Git name that aliases the hg default branch.
const MasterBranch = "master"

const spaceEscape = "___"

// EscapeSpaces encodes literal spaces the way Git ref names cannot carry
// them. The escape sequence is assumed not to already occur in hand-written
// names, a limitation inherited from the original implementation: a name
// that already contains "___" comes back from UnescapeSpaces with spaces
// in its place.
func EscapeSpaces(name string) string {
	return strings.ReplaceAll(name, " ", spaceEscape)
}

// UnescapeSpaces reverses EscapeSpaces.
func UnescapeSpaces(name string) string {
	return strings.ReplaceAll(name, spaceEscape, " ")
}

// Logical is a (reftype, name) pair — what spec.md calls a "logical ref".
type Logical struct {
	Type Type
	Name string
}

// ParseGitRef converts a Git ref (as advertised or requested by the git
// client) into its logical hg identity. ok is false for refs this helper
// does not understand.
func ParseGitRef(ref string) (Logical, bool) {
	switch {
	case ref == "refs/heads/master":
		return Logical{Branch, DefaultBranch}, true
	case strings.HasPrefix(ref, "refs/heads/branches/"):
		name := strings.TrimPrefix(ref, "refs/heads/branches/")
		return Logical{Branch, name}, true
	case strings.HasPrefix(ref, "refs/heads/"):
		name := strings.TrimPrefix(ref, "refs/heads/")
		if name == MasterBranch {
			// collides with the default-branch alias; not a legal bookmark ref
			return Logical{}, false
		}
		return Logical{Bookmark, name}, true
	case strings.HasPrefix(ref, "refs/tags/"):
		name := strings.TrimPrefix(ref, "refs/tags/")
		return Logical{Tag, name}, true
	default:
		return Logical{}, false
	}
}

// GitRef converts a logical hg identity back into the public Git ref.
func GitRef(l Logical) string {
	switch l.Type {
	case Branch:
		if l.Name == DefaultBranch {
			return "refs/heads/master"
		}
		return "refs/heads/branches/" + l.Name
	case Bookmark:
		return "refs/heads/" + l.Name
	case Tag:
		return "refs/tags/" + l.Name
	default:
		panic("refs: unknown reftype")
	}
}

// GitifyRef builds the helper-private fast-import/export destination ref
// under refs/hg/<alias>/..., so the Git side keeps a non-conflicting mirror
// distinct from the public refs the user actually sees.
//
// The default branch is special-cased into the bookmarks sub-namespace
// (bookmarks/master) rather than branches/default — this asymmetry is
// inherited verbatim from HGRemote.make_gitify_ref and documented in
// SPEC_FULL.md §3; it is what keeps a gitify-ref for "master" from
// colliding with an actual "master"-named bookmark mirror.
func GitifyRef(alias string, l Logical) string {
	prefix := "refs/hg/" + alias
	switch l.Type {
	case Branch:
		if l.Name == DefaultBranch {
			return prefix + "/bookmarks/master"
		}
		return prefix + "/branches/" + EscapeSpaces(l.Name)
	case Bookmark:
		return prefix + "/bookmarks/" + EscapeSpaces(l.Name)
	case Tag:
		return prefix + "/tags/" + EscapeSpaces(l.Name)
	default:
		panic("refs: unknown reftype")
	}
}

// NotesRef names the notes branch the import generator appends hg-node
// annotations to, keyed by a per-remote UUID so multiple remotes sharing one
// GIT_DIR don't collide.
func NotesRef(uuid string) string {
	return "refs/notes/hg-" + uuid
}
