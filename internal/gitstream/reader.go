// Package gitstream implements the protocol framer (spec.md §4.D): a
// peekable line reader shared by the remote-helper verb loop and the
// fast-export stream parser, plus the fast-import stream writer.
//
// Grounded on gitifyhg/gitifyhg.py:GitRemoteParser (peek_stack, read_line,
// read_mark, read_data, read_author, read_block) and on reposurgeon's own
// StreamParser readline/pushback pair (surgeon/inner.go), generalized from
// reposurgeon's single-source-file model to a live bidirectional pipe.
//
// Copyright by Eric S. Raymond
// SPDX-License-Identifier: BSD-2-Clause
package gitstream

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gitlab.com/esr/git-remote-hg/internal/author"
)

// Reader is the peekable line/byte reader. A single Reader is shared for
// the whole session: the verb loop and the fast-export parser read from the
// same underlying pipe.
type Reader struct {
	r    *bufio.Reader
	peek []string // one-slot-in-practice pushback stack; see Peek
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024)}
}

// ReadLine returns the next line with its trailing newline stripped, and
// true; at EOF it returns "", false.
func (p *Reader) ReadLine() (string, bool) {
	if n := len(p.peek); n > 0 {
		line := p.peek[0]
		p.peek = p.peek[1:]
		return line, true
	}
	line, err := p.r.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimRight(line, "\n"), true
}

// Peek looks at the next line without consuming it: the line is pushed
// back so the next ReadLine call still returns it.
func (p *Reader) Peek() (string, bool) {
	line, ok := p.ReadLine()
	if !ok {
		return "", false
	}
	p.peek = append(p.peek, line)
	return line, true
}

// ReadMark parses a "mark :<n>" line into n.
func (p *Reader) ReadMark() (int, error) {
	line, ok := p.ReadLine()
	if !ok {
		return 0, fmt.Errorf("gitstream: EOF while reading mark")
	}
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return 0, fmt.Errorf("gitstream: malformed mark line %q", line)
	}
	return strconv.Atoi(strings.TrimSpace(line[idx+1:]))
}

// ReadData reads a "data <n>" line followed by exactly n raw bytes (the
// fast-import/export "data N" block is never line-delimited internally, so
// it may contain embedded newlines or binary content).
func (p *Reader) ReadData() ([]byte, error) {
	line, ok := p.ReadLine()
	if !ok {
		return nil, fmt.Errorf("gitstream: EOF while reading data header")
	}
	if !strings.HasPrefix(line, "data ") {
		return nil, fmt.Errorf("gitstream: expected data header, got %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[len("data "):]))
	if err != nil {
		return nil, fmt.Errorf("gitstream: bad byte count in %q: %w", line, err)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		return nil, fmt.Errorf("gitstream: short data block: %w", err)
	}
	return buf, nil
}

// ReadAuthor reads and parses an author/committer/tagger line.
func (p *Reader) ReadAuthor() (author.Parsed, bool) {
	line, ok := p.ReadLine()
	if !ok {
		return author.Parsed{}, false
	}
	return author.ParseExportLine(line)
}

// ForEachLine calls fn with every line up to (not including) a line equal
// to sentinel, which is consumed. Passing "" as the sentinel matches the
// first blank line, matching the fast-export per-commit terminator; passing
// "done" matches the terminator of a whole fast-export stream.
func (p *Reader) ForEachLine(sentinel string, fn func(line string) error) error {
	for {
		line, ok := p.ReadLine()
		if !ok {
			return fmt.Errorf("gitstream: EOF before sentinel %q", sentinel)
		}
		if line == sentinel {
			return nil
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}
