package cpu

import (
	"fmt"
	"math"

	"github.com/TheEdward162/thermobench/internal/errors"
	"github.com/shirou/gopsutil/cpu"
)

// Usage computes instantaneous CPU utilization over the elapsed
// interval from the host accounting counters: the busy share of the
// tick time between two counter snapshots.
type Usage struct {
	perCore bool
	prev    []cpu.TimesStat
}

// NewUsage primes the tracker with an initial counter snapshot so the
// first Sample already has an interval to measure over.
func NewUsage(perCore bool) (*Usage, error) {
	u := &Usage{perCore: perCore}

	times, err := cpu.Times(perCore)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrCPUSample, err)
	}
	u.prev = times

	return u, nil
}

// Columns returns the trace column names, aggregate load first.
func (u *Usage) Columns() []string {
	columns := []string{"cpu_load"}
	if u.perCore {
		for i := range u.prev {
			columns = append(columns, fmt.Sprintf("cpu%d_load", i))
		}
	}

	return columns
}

// Sample returns one utilization percentage per column. NaN marks a
// column with no measurable interval yet (counters unchanged since
// the previous tick); the caller records it as missing.
func (u *Usage) Sample() ([]float64, error) {
	times, err := cpu.Times(u.perCore)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrCPUSample, err)
	}

	values := make([]float64, 0, len(times)+1)
	if u.perCore {
		var busySum, totalSum float64
		perCore := make([]float64, 0, len(times))
		for i := range times {
			if i >= len(u.prev) {
				break
			}
			busy, total := delta(u.prev[i], times[i])
			busySum += busy
			totalSum += total
			perCore = append(perCore, percent(busy, total))
		}
		values = append(values, percent(busySum, totalSum))
		values = append(values, perCore...)
	} else {
		var busy, total float64
		if len(times) > 0 && len(u.prev) > 0 {
			busy, total = delta(u.prev[0], times[0])
		}
		values = append(values, percent(busy, total))
	}

	u.prev = times

	return values, nil
}

// delta returns the busy and total counter increments between two
// snapshots. Idle and iowait both count as idle time.
func delta(prev, cur cpu.TimesStat) (busy, total float64) {
	total = cur.Total() - prev.Total()
	idle := (cur.Idle + cur.Iowait) - (prev.Idle + prev.Iowait)

	return total - idle, total
}

func percent(busy, total float64) float64 {
	if total <= 0 {
		return math.NaN()
	}

	return 100 * busy / total
}
