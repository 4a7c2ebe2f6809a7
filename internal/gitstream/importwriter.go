package gitstream

import (
	"bufio"
	"fmt"
	"io"
)

// ImportWriter emits a Git fast-import stream. It is the output half of the
// import generator, component F. Every write is buffered; callers must
// call Flush after each response block (spec.md §5: "stdout is buffered and
// must be flushed after every response block").
type ImportWriter struct {
	w *bufio.Writer
}

// NewImportWriter wraps w.
func NewImportWriter(w io.Writer) *ImportWriter {
	return &ImportWriter{w: bufio.NewWriter(w)}
}

func (iw *ImportWriter) line(format string, args ...interface{}) {
	fmt.Fprintf(iw.w, format+"\n", args...)
}

// Feature emits a `feature ...` declaration.
func (iw *ImportWriter) Feature(feature string) { iw.line("feature %s", feature) }

// Reset emits `reset <ref>`.
func (iw *ImportWriter) Reset(ref string) { iw.line("reset %s", ref) }

// CommitHeader emits `commit <ref>` followed by `mark :<mark>`.
func (iw *ImportWriter) CommitHeader(ref string, mark int) {
	iw.line("commit %s", ref)
	iw.line("mark :%d", mark)
}

// Author emits an `author ...` line, already formatted as
// "name <email> seconds ±HHMM".
func (iw *ImportWriter) Author(formatted string) { iw.line("author %s", formatted) }

// Committer emits a `committer ...` line, same format as Author.
func (iw *ImportWriter) Committer(formatted string) { iw.line("committer %s", formatted) }

// Data emits a `data <n>` header followed by the raw bytes and one newline.
// The newline is not counted in n; fast-import accepts it as the optional
// LF after a data block.
func (iw *ImportWriter) Data(payload []byte) {
	iw.line("data %d", len(payload))
	iw.w.Write(payload)
	iw.w.WriteByte('\n')
}

// From emits `from :<mark>`.
func (iw *ImportWriter) From(mark int) { iw.line("from :%d", mark) }

// Merge emits `merge :<mark>`.
func (iw *ImportWriter) Merge(mark int) { iw.line("merge :%d", mark) }

// Modify emits `M <mode> inline <path>` followed by the file's `data` block.
func (iw *ImportWriter) Modify(gitMode string, path string, data []byte) {
	iw.line("M %s inline %s", gitMode, path)
	iw.Data(data)
}

// Delete emits `D <path>`.
func (iw *ImportWriter) Delete(path string) { iw.line("D %s", path) }

// NoteAdd emits `N inline :<mark>` followed by a `data 40` block carrying
// the 40-char hg node hex.
func (iw *ImportWriter) NoteAdd(mark int, hgNodeHex string) {
	iw.line("N inline :%d", mark)
	iw.line("data %d", len(hgNodeHex))
	iw.w.WriteString(hgNodeHex)
	iw.w.WriteByte('\n')
}

// Progress emits a `progress ...` line.
func (iw *ImportWriter) Progress(text string) { iw.line("progress %s", text) }

// Blank emits an empty separator line.
func (iw *ImportWriter) Blank() { iw.w.WriteByte('\n') }

// Flush must be called after every response block per spec.md §5.
func (iw *ImportWriter) Flush() error { return iw.w.Flush() }
