package bench

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/TheEdward162/thermobench/internal/config"
	"github.com/TheEdward162/thermobench/internal/logger"
	"github.com/TheEdward162/thermobench/internal/telemetry"
	"github.com/TheEdward162/thermobench/internal/trace"
)

// tick performs one sampling step: read every file sensor, drain every
// captured pipe, and emit exactly one trace row. Sensor failures cost
// a cell, never the tick; only a trace write failure is fatal.
func (b *Benchmark) tick(ctx context.Context) error {
	now := time.Now()
	elapsed := now.Sub(b.startTime).Seconds()
	if elapsed < b.lastElapsed {
		// Wall clock stepped backwards; hold the timestamp so the
		// trace stays non-decreasing.
		elapsed = b.lastElapsed
	}

	row := b.columns.NewRow()
	row.Set(b.timeID, formatSeconds(elapsed))

	for i, s := range b.set.Sensors {
		value, err := s.ReadOnce()
		if err != nil {
			logger.Warn().Err(err).Str("sensor", s.Column).Msg("sensor read failed")
			continue
		}
		row.Set(b.sensorIDs[i], value)
	}

	for i := range b.set.Execs {
		if !b.sampleExec(row, i) {
			logger.Debug().Str("column", b.set.Execs[i].Column).Msg("exec sensor produced no line this tick")
		}
	}

	b.sampleBenchStdout(row, elapsed)

	cpuLoad := b.sampleCPU(row)

	if err := b.writer.WriteRow(row); err != nil {
		return err
	}
	b.lastElapsed = elapsed

	cellsSet := 0
	for id := 0; id < b.columns.Len(); id++ {
		if row.IsSet(trace.ColumnID(id)) {
			cellsSet++
		}
	}

	snapshot := &telemetry.TickSnapshot{
		Timestamp:    now,
		Elapsed:      elapsed,
		CellsSet:     cellsSet,
		CellsMissing: b.columns.Len() - cellsSet,
		CPULoad:      cpuLoad,
	}
	if err := b.collector.Record(ctx, snapshot); err != nil {
		logger.Warn().Err(err).Msg("telemetry record failed")
	}

	return nil
}

// sampleExec drains one exec sensor's buffered lines into the row.
// The most recent line wins; no line means a missing cell this tick,
// never a repeat of a stale value. Reports whether any cell was set.
func (b *Benchmark) sampleExec(row *trace.Row, i int) bool {
	child := b.execChildren[i]
	spec := b.set.Execs[i]

	if child == nil {
		if b.cfg.ExecRespawn == config.RespawnTick {
			b.spawnExec(i, spec)
		}
		return false
	}

	latest := make(map[trace.ColumnID]string)
	for _, line := range child.Poll() {
		id, value, ok := b.routeExecLine(spec, b.execIDs[i], line)
		if !ok {
			continue
		}
		latest[id] = value
	}
	for id, value := range latest {
		row.Set(id, value)
	}

	if !child.Alive() {
		if code := child.ExitCode(); code != 0 {
			logger.Warn().Int("code", code).Str("column", spec.Column).Msg("exec sensor exited nonzero")
		}
		// Long-lived sensors stay dead; per-tick sensors come back
		// next tick.
		b.execChildren[i] = nil
		if b.cfg.ExecRespawn == config.RespawnTick {
			b.spawnExec(i, spec)
		}
	}

	return len(latest) > 0
}

// routeExecLine maps one exec sensor output line to a column. A
// KEY=value line must name a declared column; a bare line must be
// numeric and is the value of the sensor's own column. Anything else
// costs the cell and emits a diagnostic.
func (b *Benchmark) routeExecLine(spec config.ExecSpec, ownID trace.ColumnID, line string) (trace.ColumnID, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, "", false
	}

	if key, value, ok := strings.Cut(line, "="); ok {
		key = strings.TrimSpace(key)
		if id, found := b.columns.Lookup(key); found {
			return id, strings.TrimSpace(value), true
		}
		logger.Warn().Str("column", spec.Column).Str("key", key).Msg("exec sensor line names an undeclared column")

		return 0, "", false
	}

	if _, err := strconv.ParseFloat(line, 64); err != nil {
		logger.Warn().Str("column", spec.Column).Str("line", line).Msg("exec sensor output not numeric")

		return 0, "", false
	}

	return ownID, line, true
}

// sampleBenchStdout drains the workload's stdout: KEY=value lines
// populate their pre-declared columns (most recent wins), everything
// is mirrored to the stdout log when one is configured.
func (b *Benchmark) sampleBenchStdout(row *trace.Row, elapsed float64) {
	if b.benchChild == nil {
		return
	}

	latest := make(map[trace.ColumnID]string)
	for _, line := range b.benchChild.Poll() {
		b.logStdoutLine(elapsed, line)

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)

		id, found := b.columns.Lookup(key)
		if !found {
			logger.Debug().Str("key", key).Msg("undeclared stdout column, line ignored")
			continue
		}
		latest[id] = strings.TrimSpace(value)
	}

	for id, value := range latest {
		row.Set(id, value)
	}
}

func (b *Benchmark) logStdoutLine(elapsed float64, line string) {
	if b.stdoutLog == nil {
		return
	}

	if _, err := fmt.Fprintf(b.stdoutLog, "%s %s\n", formatSeconds(elapsed), line); err != nil {
		logger.Warn().Err(err).Msg("stdout log write failed")
	}
}

// sampleCPU populates the CPU utilization columns and returns the
// aggregate load (NaN when tracking is off or the interval was empty).
func (b *Benchmark) sampleCPU(row *trace.Row) float64 {
	if b.usage == nil {
		return math.NaN()
	}

	values, err := b.usage.Sample()
	if err != nil {
		logger.Warn().Err(err).Msg("CPU sample failed")
		return math.NaN()
	}

	for i, value := range values {
		if i >= len(b.cpuIDs) || math.IsNaN(value) {
			continue
		}
		row.Set(b.cpuIDs[i], strconv.FormatFloat(value, 'f', 1, 64))
	}

	if len(values) > 0 {
		return values[0]
	}

	return math.NaN()
}

func formatSeconds(elapsed float64) string {
	return strconv.FormatFloat(elapsed, 'f', 3, 64)
}
