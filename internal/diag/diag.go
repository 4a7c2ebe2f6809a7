// Package diag carries the logging and panic/recover error-handling idiom
// used throughout git-remote-hg.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package diag

import (
	"fmt"
	"os"
	"sync"
)

// Two recoverable error classes, per the session's error taxonomy. Anything
// thrown outside these classes is presumed unrecoverable: catch() re-panics
// it so it unwinds all the way to main's deferred recovery.
const (
	ClassParse = "parse" // malformed fast-import/export stream, octopus merge
	ClassPeer  = "peer"  // clone/pull/push refused by the upstream hg peer
)

// Exception is the payload passed to panic() by Throw and unwrapped by Catch.
type Exception struct {
	Class   string
	Message string
}

func (e *Exception) Error() string {
	return e.Message
}

// Throw constructs an Exception. Callers still say `panic(Throw(...))`
// themselves, which keeps the compiler happy about missing returns at the
// call site.
func Throw(class string, format string, args ...interface{}) *Exception {
	return &Exception{Class: class, Message: fmt.Sprintf(format, args...)}
}

// Catch recovers x only if it is an *Exception of the requested class;
// anything else (a different class, or a bare runtime panic) is re-panicked
// so it propagates to an outer recover.
func Catch(accept string, x interface{}) *Exception {
	if x == nil {
		return nil
	}
	if e, ok := x.(*Exception); ok {
		if e.Class == accept {
			return e
		}
		fmt.Fprintf(os.Stderr, "git-remote-hg: caught a %s exception while awaiting a %s exception\n", e.Class, accept)
	}
	panic(x)
}

// Diag is the process-wide logging sink: everything goes to stderr, since
// stdout is reserved for the remote-helper protocol (see session.Hijack).
type Diag struct {
	mu      sync.Mutex
	debug   bool
	aborted bool
}

// New constructs a Diag. debug mirrors the presence of GIT_REMOTE_HG_DEBUG.
func New(debug bool) *Diag {
	return &Diag{debug: debug}
}

// Debugf logs only when debug mode is enabled.
func (d *Diag) Debugf(format string, args ...interface{}) {
	if d.debug {
		d.write("DEBUG", format, args...)
	}
}

// Warnf always logs, but never sets the abort flag — the caller continues.
func (d *Diag) Warnf(format string, args ...interface{}) {
	d.write("WARNING", format, args...)
}

// Croak logs an error and marks the session as having hit a reportable
// failure, mirroring gitifyhg's util.log(msg, "ERROR") plus reposurgeon's
// abortScript flag. It does not itself exit or panic.
func (d *Diag) Croak(format string, args ...interface{}) {
	d.write("ERROR", format, args...)
	d.mu.Lock()
	d.aborted = true
	d.mu.Unlock()
}

// Aborted reports whether Croak was ever called.
func (d *Diag) Aborted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.aborted
}

// Die logs an error and exits the process immediately with status 1. Use
// only from main or from the top of the session loop for unrecoverable
// conditions with no cleanup left to do.
func (d *Diag) Die(format string, args ...interface{}) {
	d.write("ERROR", format, args...)
	os.Exit(1)
}

func (d *Diag) write(level string, format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(os.Stderr, "%s: %s\n", level, fmt.Sprintf(format, args...))
}
