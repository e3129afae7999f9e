package trace_test

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/TheEdward162/thermobench/internal/trace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnOrderIsFirstSeen(t *testing.T) {
	columns := trace.NewColumns()

	timeID, err := columns.ColumnFor("time")
	require.NoError(t, err)
	sensorA, err := columns.ColumnFor("sensorA")
	require.NoError(t, err)
	sensorB, err := columns.ColumnFor("sensorB")
	require.NoError(t, err)

	assert.Equal(t, trace.ColumnID(0), timeID)
	assert.Equal(t, trace.ColumnID(1), sensorA)
	assert.Equal(t, trace.ColumnID(2), sensorB)

	// Re-referencing never changes an assigned order.
	again, err := columns.ColumnFor("sensorA")
	require.NoError(t, err)
	assert.Equal(t, sensorA, again)
	assert.Equal(t, []string{"time", "sensorA", "sensorB"}, columns.Names())
}

func TestColumnForAfterSeal(t *testing.T) {
	columns := trace.NewColumns()
	_, err := columns.ColumnFor("time")
	require.NoError(t, err)

	columns.Seal()

	// Existing columns stay reachable.
	id, err := columns.ColumnFor("time")
	require.NoError(t, err)
	assert.Equal(t, trace.ColumnID(0), id)

	// New columns are rejected once the header width is fixed.
	_, err = columns.ColumnFor("late")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sealed")
}

func TestRowFirstWriterWins(t *testing.T) {
	columns := trace.NewColumns()
	id, err := columns.ColumnFor("load")
	require.NoError(t, err)

	row := columns.NewRow()
	row.Set(id, "1")
	row.Set(id, "2")

	assert.Equal(t, "1", row.Value(id))
	assert.True(t, row.IsSet(id))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "plain", trace.Escape("plain"))
	assert.Equal(t, "\"a,b\"\"c\"", trace.Escape("a,b\"c"))
	assert.Equal(t, "\"two words\"", trace.Escape("two words"))
	assert.Equal(t, "", trace.Escape(""))
}

func TestEscapeRoundTripsThroughCSVReader(t *testing.T) {
	field := "a,b\"c"

	record, err := csv.NewReader(strings.NewReader(trace.Escape(field) + "\n")).Read()
	require.NoError(t, err)
	require.Len(t, record, 1)
	assert.Equal(t, field, record[0])
}

func TestWriterPadsMissingCells(t *testing.T) {
	columns := trace.NewColumns()
	timeID, _ := columns.ColumnFor("time")
	a, _ := columns.ColumnFor("a")
	b, _ := columns.ColumnFor("b")

	var buf bytes.Buffer
	w := trace.NewWriter(&buf, columns)
	require.NoError(t, w.WriteHeader())

	row := columns.NewRow()
	row.Set(timeID, "0.1")
	row.Set(b, "7")
	_ = a
	require.NoError(t, w.WriteRow(row))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "time,a,b", lines[0])
	assert.Equal(t, "0.1,,7", lines[1], "Expected the unset cell to serialize as empty, not omitted")
}

func TestWriterRowWidthMatchesHeader(t *testing.T) {
	columns := trace.NewColumns()
	for _, name := range []string{"time", "cpu_m°C", "gpu_m°C", "work_done"} {
		_, err := columns.ColumnFor(name)
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	w := trace.NewWriter(&buf, columns)
	require.NoError(t, w.WriteHeader())

	for i := 0; i < 3; i++ {
		row := columns.NewRow()
		row.SetFloat(trace.ColumnID(0), float64(i)/10)
		require.NoError(t, w.WriteRow(row))
	}

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, record := range records {
		assert.Len(t, record, 4, "Every record must have the header's width")
	}
	assert.Equal(t, 3, w.Rows())
}

func TestWriteMeta(t *testing.T) {
	columns := trace.NewColumns()
	var buf bytes.Buffer
	w := trace.NewWriter(&buf, columns)

	started := time.Date(2026, 8, 30, 12, 0, 5, 0, time.UTC)
	require.NoError(t, w.WriteMeta("2.0", started, "thermobench -p 100 ./bench"))

	line := strings.TrimRight(buf.String(), "\n")
	assert.True(t, strings.HasPrefix(line, "# "), "Metadata must be a comment line")
	assert.Contains(t, line, "Started at: 2026-08-30 12:00:05")
	assert.Contains(t, line, "Version: 2.0")
	assert.Contains(t, line, "Generated by: thermobench -p 100 ./bench")
}
