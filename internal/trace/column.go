package trace

import (
	"strconv"

	"github.com/TheEdward162/thermobench/internal/errors"
)

// ColumnID is a stable index into the column arena. Columns are only
// ever appended, so an ID handed out during setup stays valid for the
// whole run.
type ColumnID int

// Columns is the append-only registry of trace columns. Order is
// assigned once, at first reference, as the current column count.
// Once sealed (at header-write time) no further columns can be added;
// every row then has exactly one cell per column.
type Columns struct {
	names  []string
	byName map[string]ColumnID
	sealed bool
}

func NewColumns() *Columns {
	return &Columns{byName: make(map[string]ColumnID)}
}

// ColumnFor returns the column for name, creating it at the next free
// order index if it has not been seen before. Creation fails once the
// registry is sealed.
func (c *Columns) ColumnFor(name string) (ColumnID, error) {
	if id, ok := c.byName[name]; ok {
		return id, nil
	}

	if c.sealed {
		return -1, errors.New().WithData(errors.ErrColumnSealed, name)
	}

	id := ColumnID(len(c.names))
	c.names = append(c.names, name)
	c.byName[name] = id

	return id, nil
}

// Lookup returns the column for name without creating it.
func (c *Columns) Lookup(name string) (ColumnID, bool) {
	id, ok := c.byName[name]
	return id, ok
}

func (c *Columns) Len() int {
	return len(c.names)
}

func (c *Columns) Names() []string {
	names := make([]string, len(c.names))
	copy(names, c.names)

	return names
}

// Seal freezes the column set. Called when the header is written.
func (c *Columns) Seal() {
	c.sealed = true
}

func (c *Columns) Sealed() bool {
	return c.sealed
}

// Row holds the cells of one sampling tick. A cell may be set at most
// once; later writes within the same row are ignored.
type Row struct {
	cells []string
	set   []bool
}

// NewRow returns an empty row sized for the current column count.
func (c *Columns) NewRow() *Row {
	return &Row{
		cells: make([]string, len(c.names)),
		set:   make([]bool, len(c.names)),
	}
}

// Set writes a cell value. The first writer wins.
func (r *Row) Set(id ColumnID, value string) {
	if id < 0 || int(id) >= len(r.cells) || r.set[id] {
		return
	}
	r.cells[id] = value
	r.set[id] = true
}

// SetFloat writes a numeric cell in the shortest round-trip format.
func (r *Row) SetFloat(id ColumnID, value float64) {
	r.Set(id, strconv.FormatFloat(value, 'g', -1, 64))
}

// Value returns the cell value, or "" for a missing cell.
func (r *Row) Value(id ColumnID) string {
	if id < 0 || int(id) >= len(r.cells) {
		return ""
	}

	return r.cells[id]
}

// IsSet reports whether the cell was populated this tick.
func (r *Row) IsSet(id ColumnID) bool {
	return id >= 0 && int(id) < len(r.set) && r.set[id]
}
