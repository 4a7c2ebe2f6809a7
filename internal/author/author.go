// Package author normalizes Mercurial's free-form user strings to Git's
// "Name <email>" form and parses that form back out of a fast-export
// author/committer/tagger line.
//
// Grounded on gitifyhg/hgimporter.py (sanitize_author, used on import) and
// gitifyhg/gitifyhg.py (GitRemoteParser.read_author, used on export).
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package author

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
)

// UnknownName is substituted when no name survives parsing.
const UnknownName = "Unknown"

var importPattern = regexp.MustCompile(`^([^<>]+)?(<(?:[^<>]*)>| [^ ]*@.*|[<>].*)$`)

// Translator decodes Mercurial user strings in a configurable source
// encoding before normalizing them. Mercurial itself is agnostic about the
// byte encoding of the user field, so a repository-wide default of UTF-8
// is assumed unless told otherwise (mirrors gitifyhg's temporary
// encoding.encoding = 'utf-8' override, generalized to a real decode step
// since Go strings are not bytes-with-an-implicit-locale the way Python 2
// str was).
type Translator struct {
	decoder *encoding.Decoder
}

// NewTranslator builds a Translator for the named IANA encoding. An empty
// name, or "utf-8"/"UTF-8", means no transcoding is performed.
func NewTranslator(encodingName string) (*Translator, error) {
	if encodingName == "" || strings.EqualFold(encodingName, "utf-8") || strings.EqualFold(encodingName, "utf8") {
		return &Translator{}, nil
	}
	enc, err := ianaindex.IANA.Encoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("author: unknown encoding %q: %w", encodingName, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("author: unsupported encoding %q", encodingName)
	}
	return &Translator{decoder: enc.NewDecoder()}, nil
}

func (t *Translator) decode(raw string) string {
	if t == nil || t.decoder == nil {
		return raw
	}
	out, err := t.decoder.String(raw)
	if err != nil {
		// Never fatal: translation loss is warned by the caller, not here.
		return raw
	}
	return out
}

// ToGit normalizes a raw Mercurial user string into Git's "Name <email>"
// form, applying gitifyhg's precedence rules in order:
//  1. a <email> block present -> text before it is the name, block content
//     (minus angle brackets) is the email;
//  2. otherwise, an '@' anywhere -> the whole string is a bare email;
//  3. otherwise -> the whole string is a bare name.
//
// The result always matches `name <email>` with no stray angle brackets,
// and name is empty only when email is non-empty (eliding the leading
// space before '<').
func (t *Translator) ToGit(raw string) string {
	raw = t.decode(raw)
	raw = strings.ReplaceAll(raw, `"`, "")

	var name, email string
	if m := importPattern.FindStringSubmatch(raw); m != nil {
		// Precedence 1: a <email> block is present.
		if m[1] != "" {
			name = strings.TrimSpace(m[1])
		}
		email = stripAngles(m[2])
	} else {
		bare := stripAngles(raw)
		if strings.Contains(bare, "@") {
			// Precedence 2: a bare email, no brackets.
			email = bare
		} else {
			// Precedence 3: a bare name.
			name = bare
		}
	}

	// Only a wholly unparseable string (no name AND no email survived)
	// falls back to the placeholder; a bare email or a name-only string
	// with no email keeps its empty half empty, per the truth table in
	// SPEC_FULL.md/spec.md section 8.
	if name == "" && email == "" {
		name = UnknownName
	}

	if name == "" {
		return fmt.Sprintf("<%s>", email)
	}
	return fmt.Sprintf("%s <%s>", name, email)
}

func stripAngles(s string) string {
	s = strings.ReplaceAll(s, "<", "")
	s = strings.ReplaceAll(s, ">", "")
	return strings.TrimSpace(s)
}

// Parsed is a decoded fast-export author/committer/tagger line.
type Parsed struct {
	// User is the "Name <email>" string, already reassembled.
	User string
	// Seconds is the Unix timestamp.
	Seconds int64
	// TZOffsetSeconds is the zone offset in Mercurial's own tz convention,
	// seconds WEST of UTC: the sign-inverse of the offset one adds to UTC
	// to get local time (Git's "+HHMM"/"-HHMM" is EAST of UTC).
	TZOffsetSeconds int
}

var exportPattern = regexp.MustCompile(`^(?:author|committer|tagger)(?: ([^<>]+)?)? <([^<>]*)> (\d+) ([+-]\d{4})$`)

// ParseExportLine parses a `author|committer|tagger Name <email> seconds
// +HHMM` record from a fast-export stream.
func ParseExportLine(line string) (Parsed, bool) {
	m := exportPattern.FindStringSubmatch(strings.TrimRight(line, "\n"))
	if m == nil {
		return Parsed{}, false
	}
	name, email, secs, tz := m[1], m[2], m[3], m[4]
	user := strings.TrimSpace(name)
	if user == "" {
		user = fmt.Sprintf("<%s>", email)
	} else {
		user = fmt.Sprintf("%s <%s>", user, email)
	}
	seconds, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return Parsed{}, false
	}
	sign := 1
	if tz[0] == '-' {
		sign = -1
	}
	hh, _ := strconv.Atoi(tz[1:3])
	mm, _ := strconv.Atoi(tz[3:5])
	gitOffset := sign * (hh*3600 + mm*60)
	return Parsed{User: user, Seconds: seconds, TZOffsetSeconds: -gitOffset}, true
}

// GitTZ renders a Mercurial-style tz offset (seconds WEST of UTC) as Git's
// "+HHMM"/"-HHMM" form (east of UTC), the inverse of the sign flip in
// ParseExportLine. Grounded on gitifyhg/util.py:gittz.
func GitTZ(hgTZSeconds int) string {
	east := -hgTZSeconds
	sign := "+"
	if east < 0 {
		sign = "-"
		east = -east
	}
	return fmt.Sprintf("%s%02d%02d", sign, east/3600, (east%3600)/60)
}
