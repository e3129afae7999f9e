package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/TheEdward162/thermobench/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultPeriodMs = 100
	defaultRespawn  = RespawnOnce
)

// SensorSpec is one parsed -S argument or sensors-file line:
// FILE [NAME [UNIT]].
type SensorSpec struct {
	Path string
	Name string
	Unit string
}

// Column returns the trace column name for the sensor, with the unit
// appended the way the downstream fitting tool expects it.
func (s SensorSpec) Column() string {
	name := s.Name
	if name == "" {
		name = s.Path
	}
	if s.Unit != "" {
		return name + "_" + s.Unit
	}

	return name
}

// ExecSpec is one parsed -e argument or a !-prefixed sensors-file
// line: [(COL)]CMD. CMD is run through the shell.
type ExecSpec struct {
	Column  string
	Command string
}

type Config struct {
	Sensors     []SensorSpec
	SensorsFile string
	Execs       []ExecSpec
	Columns     []string
	StdoutLog   string
	Period      int // milliseconds
	Time        float64
	Wait        float64
	WaitEnabled bool
	FanCmd      string
	CPUUsage    bool
	CPUPerCore  bool
	Output      string
	Overwrite   bool
	ExecRespawn string
	Telemetry   bool
	TelemetryDB string
	Verbose     bool
	Debug       bool
	Command     []string
}

const (
	RespawnOnce = "once"
	RespawnTick = "tick"
)

// Load parses the command line and the optional TOML config file.
// Flags always win over file settings. args is os.Args[1:].
func Load(args []string) (*Config, error) {
	errFactory := errors.New()
	config := &Config{}

	fs := pflag.NewFlagSet("thermobench", pflag.ContinueOnError)
	fs.SetInterspersed(false)

	sensors := fs.StringArrayP("sensor", "S", nil, "sensor specification: FILE [NAME [UNIT]] (repeatable)")
	fs.StringVarP(&config.SensorsFile, "sensors_file", "s", "", "file with one sensor specification per line")
	execs := fs.StringArrayP("exec", "e", nil, "exec sensor specification: [(COL)]CMD (repeatable)")
	fs.StringArrayVarP(&config.Columns, "column", "c", nil, "benchmark stdout column KEY (repeatable)")
	fs.StringVarP(&config.StdoutLog, "stdout_log", "l", "", "log benchmark stdout to this file")
	fs.IntVarP(&config.Period, "period", "p", defaultPeriodMs, "sampling period in milliseconds")
	fs.Float64VarP(&config.Time, "time", "t", 0, "run time bound in seconds (0 = until benchmark exits)")
	fs.Float64VarP(&config.Wait, "wait", "w", 0, "wait for the first sensor to reach this value before starting")
	fs.StringVarP(&config.FanCmd, "fan-cmd", "f", "", "fan control command, invoked with argument 1/0")
	fs.BoolVarP(&config.CPUUsage, "cpu-usage", "u", false, "record CPU utilization")
	fs.StringVarP(&config.Output, "output", "o", "", "trace output file (\"-\" for stdout)")
	name := fs.StringP("name", "n", "", "derive the trace file name as NAME.csv")
	fs.BoolVarP(&config.Overwrite, "overwrite", "O", false, "overwrite an existing trace file")
	fs.StringVar(&config.ExecRespawn, "exec_respawn", defaultRespawn, "exec sensor respawn strategy: once or tick")
	fs.BoolVar(&config.Telemetry, "telemetry", false, "record tick telemetry to a sqlite database")
	fs.StringVar(&config.TelemetryDB, "telemetry_db", "", "telemetry database path")
	fs.BoolVar(&config.CPUPerCore, "cpu-usage-cores", false, "record per-core CPU utilization columns")
	fs.BoolVar(&config.Verbose, "verbose", false, "enable verbose logging")
	fs.BoolVar(&config.Debug, "debug", false, "enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := mergeConfigFile(config, fs); err != nil {
		return nil, err
	}

	config.WaitEnabled = fs.Changed("wait")
	config.Command = fs.Args()

	for _, spec := range *sensors {
		parsed, err := ParseSensorSpec(spec)
		if err != nil {
			return nil, err
		}
		config.Sensors = append(config.Sensors, parsed)
	}

	for _, spec := range *execs {
		parsed, err := ParseExecSpec(spec)
		if err != nil {
			return nil, err
		}
		config.Execs = append(config.Execs, parsed)
	}

	if err := resolveOutput(config, *name); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// mergeConfigFile loads scalar settings from an optional TOML file.
// The file location is taken from THERMOBENCH_CONFIG, falling back to
// thermobench.toml in the working directory and /etc.
func mergeConfigFile(config *Config, fs *pflag.FlagSet) error {
	errFactory := errors.New()

	v := viper.New()
	if path := os.Getenv("THERMOBENCH_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("thermobench")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return nil
		}

		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	// File settings apply only where the flag was not given.
	if !fs.Changed("period") && v.IsSet("period") {
		config.Period = v.GetInt("period")
	}
	if !fs.Changed("fan-cmd") && v.IsSet("fan_cmd") {
		config.FanCmd = v.GetString("fan_cmd")
	}
	if !fs.Changed("exec_respawn") && v.IsSet("exec_respawn") {
		config.ExecRespawn = v.GetString("exec_respawn")
	}
	if !fs.Changed("telemetry") && v.IsSet("telemetry") {
		config.Telemetry = v.GetBool("telemetry")
	}
	if !fs.Changed("telemetry_db") && v.IsSet("telemetry_db") {
		config.TelemetryDB = v.GetString("telemetry_db")
	}
	if !fs.Changed("cpu-usage") && v.IsSet("cpu_usage") {
		config.CPUUsage = v.GetBool("cpu_usage")
	}
	if !fs.Changed("cpu-usage-cores") && v.IsSet("cpu_usage_cores") {
		config.CPUPerCore = v.GetBool("cpu_usage_cores")
	}
	if !fs.Changed("verbose") && v.IsSet("verbose") {
		config.Verbose = v.GetBool("verbose")
	}
	if !fs.Changed("debug") && v.IsSet("debug") {
		config.Debug = v.GetBool("debug")
	}

	return nil
}

// ParseSensorSpec parses the FILE [NAME [UNIT]] grammar.
func ParseSensorSpec(spec string) (SensorSpec, error) {
	errFactory := errors.New()

	fields := strings.Fields(spec)
	switch len(fields) {
	case 1:
		return SensorSpec{Path: fields[0]}, nil
	case 2:
		return SensorSpec{Path: fields[0], Name: fields[1]}, nil
	case 3:
		return SensorSpec{Path: fields[0], Name: fields[1], Unit: fields[2]}, nil
	default:
		return SensorSpec{}, errFactory.WithData(errors.ErrInvalidSensorSpec, spec)
	}
}

// ParseExecSpec parses the [(COL)]CMD grammar. Without an explicit
// column the command's first word names the column.
func ParseExecSpec(spec string) (ExecSpec, error) {
	errFactory := errors.New()

	column := ""
	command := spec
	if strings.HasPrefix(spec, "(") {
		end := strings.Index(spec, ")")
		if end < 0 {
			return ExecSpec{}, errFactory.WithData(errors.ErrInvalidExecSpec, spec)
		}
		column = strings.TrimSpace(spec[1:end])
		command = strings.TrimSpace(spec[end+1:])
	}

	if strings.TrimSpace(command) == "" {
		return ExecSpec{}, errFactory.WithData(errors.ErrInvalidExecSpec, spec)
	}

	if column == "" {
		column = filepath.Base(strings.Fields(command)[0])
	}

	return ExecSpec{Column: column, Command: command}, nil
}

// resolveOutput turns the -o/-n/-O flag combination into a concrete
// output path. -o and -n conflict; an existing file without -O is an
// error so a finished trace is never clobbered by accident.
func resolveOutput(config *Config, name string) error {
	errFactory := errors.New()

	if config.Output != "" && name != "" {
		return errFactory.WithData(errors.ErrConflictingOutput, "-o and -n are mutually exclusive")
	}

	if name != "" {
		config.Output = name + ".csv"
	}

	if config.Output == "" {
		if len(config.Command) > 0 {
			config.Output = filepath.Base(config.Command[0]) + ".csv"
		} else {
			config.Output = "-"
		}
	}

	if config.Output != "-" && !config.Overwrite {
		if _, err := os.Stat(config.Output); err == nil {
			return errFactory.WithData(errors.ErrOutputExists, config.Output)
		}
	}

	return nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Period < 1 {
		return errFactory.WithData(errors.ErrInvalidPeriod, c.Period)
	}

	if c.ExecRespawn != RespawnOnce && c.ExecRespawn != RespawnTick {
		return errFactory.WithData(errors.ErrInvalidConfig, "exec_respawn must be once or tick")
	}

	if len(c.Command) == 0 {
		return errFactory.New(errors.ErrMissingCommand)
	}

	return nil
}
