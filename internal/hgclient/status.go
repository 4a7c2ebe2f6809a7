package hgclient

import "strings"

// DiffStatus reports the paths that differ between two revisions (fromRev
// may be "null" for the root commit case), split into changed (added or
// modified — the caller re-reads full content for these) and removed.
// Grounded on `hg status`, the one hg subcommand built exactly for this
// two-revision comparison; it replaces a hand-rolled manifest diff.
func (c *Client) DiffStatus(fromRev, toRev string) (changed, removed []string, err error) {
	out, err := c.hg("status", "--rev", fromRev, "--rev", toRev)
	if err != nil {
		return nil, nil, err
	}
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 3 {
			continue
		}
		code, path := line[0], line[2:]
		switch code {
		case 'A', 'M':
			changed = append(changed, path)
		case 'R':
			removed = append(removed, path)
		}
	}
	return changed, removed, nil
}
