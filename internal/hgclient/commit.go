package hgclient

import (
	"fmt"
	"os"
	"path/filepath"

	"gitlab.com/esr/git-remote-hg/internal/filemode"
)

// FileChange is one path's target state for CommitChangeset: either Data
// (and Flags) for an add/modify, or Deleted for a removal. Flags follows
// the hg manifest convention ("", "x", "l").
type FileChange struct {
	Deleted bool
	Flags   string
	Data    []byte
}

// CommitChangeset materializes a single new hg changeset whose full
// manifest, relative to its first parent, differs exactly by changes. It is
// the write side the export consumer (component G) uses to turn a
// fast-export commit record into a real Mercurial revision.
//
// Because the `hg` CLI has no "commit with arbitrary given parents"
// primitive, this follows the same trick hg-git and similar bridges use:
// update the working copy to parent1 (or the null revision), overwrite it
// to match the target tree, then use the debugsetparents plumbing command
// to force the dirstate's second parent before committing. debugsetparents
// never touches the working copy, so it is safe to call after the tree is
// already staged.
func (c *Client) CommitChangeset(parent1, parent2, branch, user string, date int64, tzWest int, description string, changes map[string]FileChange) (string, error) {
	updateTarget := parent1
	if updateTarget == "" {
		updateTarget = "null"
	}
	if _, err := c.hg("update", "--clean", "-r", updateTarget); err != nil {
		return "", fmt.Errorf("hgclient: staging parent %s: %w", updateTarget, err)
	}

	for path, change := range changes {
		full := filepath.Join(c.Dir, filepath.FromSlash(path))
		if change.Deleted {
			os.Remove(full)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			return "", fmt.Errorf("hgclient: creating directory for %s: %w", path, err)
		}
		if err := writeWorkingFile(full, change.Data, change.Flags); err != nil {
			return "", fmt.Errorf("hgclient: writing %s: %w", path, err)
		}
	}

	if branch != "" {
		if _, err := c.hg("branch", "--force", branch); err != nil {
			return "", fmt.Errorf("hgclient: setting branch %s: %w", branch, err)
		}
	}

	if parent2 != "" {
		if _, err := c.hg("debugsetparents", parent1, parent2); err != nil {
			return "", fmt.Errorf("hgclient: setting merge parents: %w", err)
		}
	}

	msgFile, err := os.CreateTemp(c.Dir, ".hg-commit-msg-*")
	if err != nil {
		return "", fmt.Errorf("hgclient: creating commit message file: %w", err)
	}
	defer os.Remove(msgFile.Name())
	if _, err := msgFile.WriteString(description); err != nil {
		msgFile.Close()
		return "", fmt.Errorf("hgclient: writing commit message: %w", err)
	}
	msgFile.Close()

	dateArg := fmt.Sprintf("%d %d", date, tzWest)
	if _, err := c.hg("commit", "--addremove", "-u", user, "-d", dateArg, "-l", filepath.Base(msgFile.Name())); err != nil {
		return "", fmt.Errorf("hgclient: committing: %w", err)
	}

	node, err := c.hg("log", "-r", ".", "--template", "{node}")
	if err != nil {
		return "", err
	}
	return node, nil
}

func writeWorkingFile(full string, data []byte, flags string) error {
	switch filemode.ToHg(filemode.ToGit(flags)) {
	case "l":
		os.Remove(full)
		return os.Symlink(string(data), full)
	case "x":
		if err := os.WriteFile(full, data, 0o755); err != nil {
			return err
		}
		return os.Chmod(full, 0o755)
	default:
		if err := os.WriteFile(full, data, 0o644); err != nil {
			return err
		}
		return os.Chmod(full, 0o644)
	}
}
