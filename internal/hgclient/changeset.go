package hgclient

import (
	"fmt"
	"strconv"
	"strings"
)

// Changeset is the subset of a Mercurial changeset's metadata the import
// generator and mark-store upgrade need. Parents are hg revision numbers;
// hg's -1 "no such parent" entries (changelog.parentrevs) are left out.
type Changeset struct {
	Node        string
	Rev         int
	Branch      string
	Parents     []int // 0, 1, or 2 entries, already filtered of -1/null parents
	ParentNodes []string
	User        string
	Date        int64
	TZ          int // seconds WEST of UTC, hg's native convention
	Description string
	Extra       map[string]string // e.g. "committer" -> "name <email> secs tz"
}

// fields used in the hg log template below; \x01 separates fields within a
// record, \x02 separates records, and \x03 separates repeated extra
// key=value pairs. None of these bytes can appear in hg's own templated
// output, so no further escaping is needed.
const logTemplate = `{node}\x01{rev}\x01{branch}\x01{p1rev}\x01{p2rev}\x01{p1node}\x01{p2node}\x01{author}\x01{date|hgdate}\x01{desc}\x01{extras % "{extra}={extraval}\x03"}\x02`

func parseChangeset(record string) (Changeset, error) {
	fields := strings.Split(record, "\x01")
	if len(fields) != 11 {
		return Changeset{}, fmt.Errorf("hgclient: unexpected log record shape (%d fields)", len(fields))
	}
	rev, err := strconv.Atoi(fields[1])
	if err != nil {
		return Changeset{}, fmt.Errorf("hgclient: bad rev %q: %w", fields[1], err)
	}
	cs := Changeset{
		Node:   fields[0],
		Rev:    rev,
		Branch: fields[2],
		User:   fields[7],
	}
	p1rev, _ := strconv.Atoi(fields[3])
	p2rev, _ := strconv.Atoi(fields[4])
	if p1rev >= 0 {
		cs.Parents = append(cs.Parents, p1rev)
		cs.ParentNodes = append(cs.ParentNodes, fields[5])
	}
	if p2rev >= 0 {
		cs.Parents = append(cs.Parents, p2rev)
		cs.ParentNodes = append(cs.ParentNodes, fields[6])
	}
	dateFields := strings.Fields(fields[8])
	if len(dateFields) == 2 {
		secs, _ := strconv.ParseInt(dateFields[0], 10, 64)
		tz, _ := strconv.Atoi(dateFields[1])
		cs.Date = secs
		cs.TZ = tz
	}
	cs.Description = fields[9]
	cs.Extra = make(map[string]string)
	for _, kv := range strings.Split(fields[10], "\x03") {
		if kv == "" {
			continue
		}
		idx := strings.IndexByte(kv, '=')
		if idx < 0 {
			continue
		}
		cs.Extra[kv[:idx]] = kv[idx+1:]
	}
	return cs, nil
}

// ChangesetByRev looks up a changeset by its local revision number.
func (c *Client) ChangesetByRev(rev int) (Changeset, error) {
	return c.changesetByRevset(strconv.Itoa(rev))
}

// ChangesetByNode looks up a changeset by node hex or any hg revset (a
// branch tip, bookmark, or tag name).
func (c *Client) ChangesetByNode(revset string) (Changeset, error) {
	return c.changesetByRevset(revset)
}

func (c *Client) changesetByRevset(revset string) (Changeset, error) {
	out, err := c.hg("log", "-r", revset, "--template", logTemplate)
	if err != nil {
		return Changeset{}, err
	}
	record := strings.TrimSuffix(strings.TrimSpace(out), "\x02")
	if record == "" {
		return Changeset{}, fmt.Errorf("hgclient: no such changeset %q", revset)
	}
	return parseChangeset(record)
}

// NodeForRevision implements markstore.NodeResolver for schema upgrade.
func (c *Client) NodeForRevision(rev int) (string, error) {
	cs, err := c.ChangesetByRev(rev)
	if err != nil {
		return "", err
	}
	return cs.Node, nil
}

// ManifestEntry is one path's metadata at a given changeset.
type ManifestEntry struct {
	Flags string // "", "x", or "l"
}

// manifestDecorWidth is the fixed width of the "<mode> <flag> " prefix
// `hg manifest -v` puts in front of every path: a 3-digit octal mode, a
// space, a one-character flag ('*' executable, '@' symlink, or ' ' for
// neither), and a trailing space. `--debug` does not turn this decor on
// (it is gated on ui.verbose, not ui.debugflag); only -v does.
const manifestDecorWidth = 6

// Manifest returns every tracked path and its flags at revset.
func (c *Client) Manifest(revset string) (map[string]ManifestEntry, error) {
	out, err := c.hg("manifest", "-v", "-r", revset)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]ManifestEntry)
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		if len(line) <= manifestDecorWidth {
			continue
		}
		flag, path := line[4], line[manifestDecorWidth:]
		switch flag {
		case '*':
			entries[path] = ManifestEntry{Flags: "x"}
		case '@':
			entries[path] = ManifestEntry{Flags: "l"}
		default:
			entries[path] = ManifestEntry{Flags: ""}
		}
	}
	return entries, nil
}

// FileData returns path's content at revset.
func (c *Client) FileData(revset, path string) ([]byte, error) {
	out, err := c.hg("cat", "-r", revset, path)
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}
