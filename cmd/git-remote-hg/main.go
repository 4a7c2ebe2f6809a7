// Command git-remote-hg is a Git remote helper bridging Git and Mercurial:
// invoked by Git itself as `git-remote-hg <alias> <url>` whenever a remote
// URL carries the `hg::` prefix, it speaks the remote-helper line protocol
// on stdin/stdout and translates changesets to and from Git fast-import/
// fast-export streams.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package main

import (
	"fmt"
	"os"

	"gitlab.com/esr/git-remote-hg/internal/config"
	"gitlab.com/esr/git-remote-hg/internal/diag"
	"gitlab.com/esr/git-remote-hg/internal/session"
)

var version string // patched by -X at build time

func main() {
	var d *diag.Diag

	defer func() {
		if r := recover(); r != nil {
			if d != nil {
				d.Die("%v", r)
			}
			fmt.Fprintf(os.Stderr, "git-remote-hg: %v\n", r)
			os.Exit(1)
		}
	}()

	args := os.Args[1:]
	if len(args) == 1 && (args[0] == "-v" || args[0] == "--version") {
		fmt.Println("git-remote-hg", versionString())
		return
	}
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: git-remote-hg <alias> <url>")
		os.Exit(1)
	}
	alias, url := args[0], args[1]

	cfg := config.FromEnvironment()
	d = diag.New(cfg.Debug)

	sess, err := session.New(cfg, d, alias, url)
	if err != nil {
		d.Die("%v", err)
	}
	sess.Hijack()
	if err := sess.Prepare(); err != nil {
		d.Die("%v", err)
	}
	if err := sess.Run(); err != nil {
		d.Die("%v", err)
	}
}

func versionString() string {
	if version == "" {
		return "(unknown version)"
	}
	return version
}
