package bench

import (
	"context"
	"os"
	"time"

	"github.com/TheEdward162/thermobench/internal/config"
	"github.com/TheEdward162/thermobench/internal/cpu"
	"github.com/TheEdward162/thermobench/internal/errors"
	"github.com/TheEdward162/thermobench/internal/logger"
	"github.com/TheEdward162/thermobench/internal/proc"
	"github.com/TheEdward162/thermobench/internal/sensor"
	"github.com/TheEdward162/thermobench/internal/telemetry"
	"github.com/TheEdward162/thermobench/internal/trace"
)

// State is the run lifecycle state. Idle is initial, Finalized is
// terminal for success and failure alike.
type State int

const (
	Idle State = iota
	WaitTemp
	FanOn
	Running
	Terminating
	Finalized
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case WaitTemp:
		return "wait-temp"
	case FanOn:
		return "fan-on"
	case Running:
		return "running"
	case Terminating:
		return "terminating"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

const defaultGrace = 5 * time.Second

// InterruptExitCode is returned when an operator interrupt cut the run
// short: 128 + SIGINT, the conventional shell code, so callers can
// tell it apart from a configuration failure.
const InterruptExitCode = 130

// Options carries run parameters that are not user configuration.
type Options struct {
	Version     string
	Invocation  string
	ThermalRoot string        // sensor discovery root, "" = the host's
	Grace       time.Duration // SIGTERM-to-SIGKILL escalation interval
}

// Benchmark supervises one run: the workload child, the sensor set,
// the sampling loop, and the trace output.
type Benchmark struct {
	cfg  *config.Config
	opts Options

	set       *sensor.Set
	sup       *proc.Supervisor
	columns   *trace.Columns
	writer    *trace.Writer
	usage     *cpu.Usage
	collector telemetry.Collector

	state       State
	startTime   time.Time
	lastElapsed float64

	timeID    trace.ColumnID
	sensorIDs []trace.ColumnID
	execIDs   []trace.ColumnID
	cpuIDs    []trace.ColumnID

	benchChild   *proc.Child
	execChildren []*proc.Child
	stdoutLog    *os.File
}

func New(cfg *config.Config, opts Options) *Benchmark {
	if opts.ThermalRoot == "" {
		opts.ThermalRoot = sensor.DefaultThermalRoot
	}
	if opts.Grace <= 0 {
		opts.Grace = defaultGrace
	}

	return &Benchmark{
		cfg:   cfg,
		opts:  opts,
		sup:   proc.NewSupervisor(),
		state: Idle,
	}
}

// Run drives the whole lifecycle and returns the process exit code:
// the benchmark's own exit code when it ran to completion, 0 when the
// time bound cut it short, and an error for supervisor-level failures.
func (b *Benchmark) Run(ctx context.Context) (int, error) {
	set, err := sensor.Resolve(b.cfg, b.opts.ThermalRoot)
	if err != nil {
		return 0, err
	}
	b.set = set

	collector, err := b.newCollector()
	if err != nil {
		return 0, err
	}
	b.collector = collector

	defer b.finalize()

	if b.cfg.WaitEnabled {
		b.transition(WaitTemp)
		if err := b.waitForTemperature(ctx); err != nil {
			return 0, err
		}
	}

	b.transition(FanOn)
	if b.cfg.FanCmd != "" {
		b.fan("1")
	}

	if err := b.setup(); err != nil {
		return 0, err
	}

	b.transition(Running)
	if err := b.spawnChildren(); err != nil {
		return 0, err
	}

	return b.loop(ctx)
}

func (b *Benchmark) transition(next State) {
	logger.Debug().Str("from", b.state.String()).Str("to", next.String()).Msg("state transition")
	b.state = next
}

// State returns the current lifecycle state.
func (b *Benchmark) State() State {
	return b.state
}

func (b *Benchmark) newCollector() (telemetry.Collector, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.Enabled = b.cfg.Telemetry
	if b.cfg.TelemetryDB != "" {
		tcfg.DBPath = b.cfg.TelemetryDB
	}

	return telemetry.NewService(tcfg)
}

// waitForTemperature polls the first configured sensor at the sampling
// period until its value drops to the configured threshold. There is
// no internal timeout; only external cancellation ends the wait early.
func (b *Benchmark) waitForTemperature(ctx context.Context) error {
	errFactory := errors.New()

	if len(b.set.Sensors) == 0 {
		return errFactory.WithMessage(errors.ErrNoSensors, "wait threshold needs at least one file sensor")
	}

	gate := b.set.Sensors[0]
	period := time.Duration(b.cfg.Period) * time.Millisecond

	logger.Info().
		Str("sensor", gate.Column).
		Float64("threshold", b.cfg.Wait).
		Msg("waiting for temperature")

	for {
		value, err := gate.ReadValue()
		if err != nil {
			logger.Warn().Err(err).Str("sensor", gate.Column).Msg("wait gate read failed")
		} else {
			logger.Debug().Float64("value", value).Msg("wait gate sample")
			if value <= b.cfg.Wait {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return errFactory.Wrap(errors.ErrWaitInterrupt, ctx.Err())
		case <-time.After(period):
		}
	}
}

// fan invokes the fan command with the literal argument "1" or "0".
// Fire and forget: failure is a warning, never fatal, and a wedged fan
// script never holds up the run.
func (b *Benchmark) fan(arg string) {
	child, err := b.sup.SpawnShell(b.cfg.FanCmd+" "+arg, false)
	if err != nil {
		logger.Warn().Err(err).Str("arg", arg).Msg("fan command failed to start")
		return
	}

	go func() {
		if !child.Wait(b.opts.Grace) {
			logger.Warn().Str("arg", arg).Msg("fan command did not finish in time")
		} else if child.ExitCode() != 0 {
			logger.Warn().Int("code", child.ExitCode()).Str("arg", arg).Msg("fan command exited nonzero")
		}
	}()
}

// setup registers every column and writes the trace preamble. All
// columns must be known here; the registry seals at header time.
func (b *Benchmark) setup() error {
	b.columns = trace.NewColumns()

	b.timeID, _ = b.columns.ColumnFor("time")

	b.sensorIDs = make([]trace.ColumnID, len(b.set.Sensors))
	for i, s := range b.set.Sensors {
		b.sensorIDs[i], _ = b.columns.ColumnFor(s.Column)
	}

	b.execIDs = make([]trace.ColumnID, len(b.set.Execs))
	for i, spec := range b.set.Execs {
		b.execIDs[i], _ = b.columns.ColumnFor(spec.Column)
	}

	for _, name := range b.cfg.Columns {
		if _, err := b.columns.ColumnFor(name); err != nil {
			return err
		}
	}

	if b.cfg.CPUUsage {
		usage, err := cpu.NewUsage(b.cfg.CPUPerCore)
		if err != nil {
			logger.Warn().Err(err).Msg("CPU usage tracking unavailable")
		} else {
			b.usage = usage
			for _, name := range usage.Columns() {
				id, _ := b.columns.ColumnFor(name)
				b.cpuIDs = append(b.cpuIDs, id)
			}
		}
	}

	writer, err := trace.Open(b.cfg.Output, b.columns)
	if err != nil {
		return err
	}
	b.writer = writer

	if b.cfg.StdoutLog != "" {
		f, err := os.Create(b.cfg.StdoutLog)
		if err != nil {
			return errors.New().Wrap(errors.ErrTraceOpen, err)
		}
		b.stdoutLog = f
	}

	if err := b.writer.WriteMeta(b.opts.Version, time.Now(), b.opts.Invocation); err != nil {
		return err
	}

	return b.writer.WriteHeader()
}

// spawnChildren starts the benchmark and the exec sensors. A benchmark
// spawn failure is fatal; an exec sensor failing to start only costs
// its column.
func (b *Benchmark) spawnChildren() error {
	b.startTime = time.Now()

	child, err := b.sup.Spawn(b.cfg.Command, true)
	if err != nil {
		return err
	}
	b.benchChild = child
	logger.Info().Strs("command", b.cfg.Command).Int("pid", child.Pid()).Msg("benchmark started")

	b.execChildren = make([]*proc.Child, len(b.set.Execs))
	for i, spec := range b.set.Execs {
		b.spawnExec(i, spec)
	}

	return nil
}

func (b *Benchmark) spawnExec(i int, spec config.ExecSpec) {
	child, err := b.sup.SpawnShell(spec.Command, true)
	if err != nil {
		logger.Warn().Err(err).Str("column", spec.Column).Msg("exec sensor failed to start")
		return
	}
	b.execChildren[i] = child
}

// loop multiplexes the sampling tick, the benchmark's exit, the run
// time bound, and external cancellation. Rows are only ever produced
// at tick boundaries.
func (b *Benchmark) loop(ctx context.Context) (int, error) {
	period := time.Duration(b.cfg.Period) * time.Millisecond
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var timeout <-chan time.Time
	if b.cfg.Time > 0 {
		timer := time.NewTimer(time.Duration(b.cfg.Time * float64(time.Second)))
		defer timer.Stop()
		timeout = timer.C
	}

	timedOut := false
	interrupted := false

	for {
		select {
		case <-ctx.Done():
			interrupted = true
		case <-b.benchChild.Done():
			logger.Info().Int("code", b.benchChild.ExitCode()).Msg("benchmark exited")
		case <-timeout:
			// Not an error: the configured time bound elapsed.
			logger.Info().Float64("time", b.cfg.Time).Msg("time bound reached, terminating benchmark")
			timedOut = true
		case <-ticker.C:
			if err := b.tick(ctx); err != nil {
				b.transition(Terminating)
				b.benchChild.Shutdown(b.opts.Grace)
				return 0, err
			}
			continue
		}

		break
	}

	b.transition(Terminating)
	if timedOut || interrupted {
		b.benchChild.Shutdown(b.opts.Grace)
	}

	// One final tick drains stdout lines that arrived since the last
	// full interval, so a workload's closing KEY=value report still
	// lands in the trace.
	if err := b.tick(ctx); err != nil {
		return 0, err
	}

	if interrupted {
		return InterruptExitCode, nil
	}
	if timedOut {
		return 0, nil
	}

	return b.benchChild.ExitCode(), nil
}

// finalize reaps all children, restores the fan, and closes the trace.
// Reached from every path out of Run.
func (b *Benchmark) finalize() {
	b.sup.ReapAll(b.opts.Grace)

	if b.cfg.FanCmd != "" {
		b.fan("0")
	}

	if b.writer != nil {
		if err := b.writer.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close trace")
		}
	}

	if b.stdoutLog != nil {
		if err := b.stdoutLog.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close stdout log")
		}
	}

	if b.collector != nil {
		if err := b.collector.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close telemetry")
		}
	}

	b.transition(Finalized)
	logger.Info().Int("rows", b.rows()).Msg("trace finalized")
}

func (b *Benchmark) rows() int {
	if b.writer == nil {
		return 0
	}

	return b.writer.Rows()
}
