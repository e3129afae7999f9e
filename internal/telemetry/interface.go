package telemetry

import (
	"context"
	"time"
)

// Collector records per-tick run telemetry.
type Collector interface {
	Record(ctx context.Context, snapshot *TickSnapshot) error
	Close() error
}

// Repository defines the interface for telemetry storage.
type Repository interface {
	Record(snapshot *TickSnapshot) error
	Close() error
}

// TickSnapshot summarizes one sampling tick: how complete the row was
// and the measured CPU load, if any.
type TickSnapshot struct {
	Timestamp    time.Time
	Elapsed      float64
	CellsSet     int
	CellsMissing int
	CPULoad      float64 // NaN when CPU usage tracking is off
}
