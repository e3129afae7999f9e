package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/TheEdward162/thermobench/internal/errors"
)

// Writer owns the trace output stream: the metadata comment, the
// header, and one CSV record per tick. It is the only writer of the
// stream for the whole run.
type Writer struct {
	out     *bufio.Writer
	closer  io.Closer
	columns *Columns
	rows    int
}

// NewWriter wraps an open stream. The caller keeps ownership of w
// unless it is an io.Closer passed through Open.
func NewWriter(w io.Writer, columns *Columns) *Writer {
	tw := &Writer{
		out:     bufio.NewWriter(w),
		columns: columns,
	}
	if c, ok := w.(io.Closer); ok {
		tw.closer = c
	}

	return tw
}

// Open creates the trace file, or returns a stdout-backed writer for
// the "-" target.
func Open(path string, columns *Columns) (*Writer, error) {
	if path == "-" {
		w := NewWriter(os.Stdout, columns)
		w.closer = nil // never close stdout
		return w, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrTraceOpen, err)
	}

	return NewWriter(f, columns), nil
}

// WriteMeta emits the leading comment line recording when and how the
// trace was produced.
func (w *Writer) WriteMeta(version string, startedAt time.Time, invocation string) error {
	_, err := fmt.Fprintf(w.out, "# Started at: %s, Version: %s, Generated by: %s\n",
		startedAt.Format("2006-01-02 15:04:05"), version, invocation)
	if err != nil {
		return errors.New().Wrap(errors.ErrTraceWrite, err)
	}

	return w.flush()
}

// WriteHeader emits the column header and seals the registry; all
// columns must be known before the first data row.
func (w *Writer) WriteHeader() error {
	w.columns.Seal()

	names := w.columns.Names()
	escaped := make([]string, len(names))
	for i, name := range names {
		escaped[i] = Escape(name)
	}

	if _, err := fmt.Fprintln(w.out, strings.Join(escaped, ",")); err != nil {
		return errors.New().Wrap(errors.ErrTraceWrite, err)
	}

	return w.flush()
}

// WriteRow emits one record with exactly one field per column, in
// column order. Cells never populated this tick serialize as empty
// fields, never omitted.
func (w *Writer) WriteRow(row *Row) error {
	fields := make([]string, w.columns.Len())
	for i := range fields {
		fields[i] = Escape(row.Value(ColumnID(i)))
	}

	if _, err := fmt.Fprintln(w.out, strings.Join(fields, ",")); err != nil {
		return errors.New().Wrap(errors.ErrTraceWrite, err)
	}
	w.rows++

	// Flush per row so the trace can be followed while the benchmark
	// is still running.
	return w.flush()
}

// Rows returns the number of data rows written so far.
func (w *Writer) Rows() int {
	return w.rows
}

func (w *Writer) flush() error {
	if err := w.out.Flush(); err != nil {
		return errors.New().Wrap(errors.ErrTraceWrite, err)
	}

	return nil
}

// Close flushes and closes the underlying stream.
func (w *Writer) Close() error {
	if err := w.flush(); err != nil {
		return err
	}

	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			return errors.New().Wrap(errors.ErrTraceClose, err)
		}
	}

	return nil
}

// Escape applies CSV quoting: a field containing a comma, a space, or
// a double quote is wrapped in double quotes, with embedded double
// quotes doubled.
func Escape(field string) string {
	if !strings.ContainsAny(field, ", \"") {
		return field
	}

	return "\"" + strings.ReplaceAll(field, "\"", "\"\"") + "\""
}
