package sensor

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/TheEdward162/thermobench/internal/config"
	"github.com/TheEdward162/thermobench/internal/errors"
	"github.com/TheEdward162/thermobench/internal/logger"
)

// DefaultThermalRoot is where thermal zones are auto-discovered when no
// sensors are configured.
const DefaultThermalRoot = "/sys/class/thermal"

// Set is the resolved collection of sensor sources, in configuration
// order. File sensors and exec sensors keep their own families because
// they are sampled differently, but share the missing-value policy.
type Set struct {
	Sensors []Sensor
	Execs   []config.ExecSpec
}

// Resolve builds the sensor set from explicit -S specs, the optional
// sensors file, and thermal-zone discovery when neither is supplied.
// A sensor path that does not currently exist is not an error here;
// it yields missing cells until it becomes readable.
func Resolve(cfg *config.Config, thermalRoot string) (*Set, error) {
	set := &Set{}

	for _, spec := range cfg.Sensors {
		set.Sensors = append(set.Sensors, Sensor{Path: spec.Path, Column: spec.Column()})
	}
	set.Execs = append(set.Execs, cfg.Execs...)

	if cfg.SensorsFile != "" {
		if err := set.loadSensorsFile(cfg.SensorsFile); err != nil {
			return nil, err
		}
	}

	if len(cfg.Sensors) == 0 && cfg.SensorsFile == "" {
		discovered, err := Discover(thermalRoot)
		if err != nil {
			return nil, err
		}
		set.Sensors = discovered
	}

	return set, nil
}

// loadSensorsFile reads one sensor specification per line. Lines
// prefixed with ! declare exec sensors in the -e grammar; blank lines
// and #-comments are skipped.
func (s *Set) loadSensorsFile(path string) error {
	errFactory := errors.New()

	f, err := os.Open(path)
	if err != nil {
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if strings.HasPrefix(line, "!") {
			spec, err := config.ParseExecSpec(strings.TrimSpace(line[1:]))
			if err != nil {
				return err
			}
			s.Execs = append(s.Execs, spec)
			continue
		}

		spec, err := config.ParseSensorSpec(line)
		if err != nil {
			return err
		}
		s.Sensors = append(s.Sensors, Sensor{Path: spec.Path, Column: spec.Column()})
	}

	if err := scanner.Err(); err != nil {
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

// Discover enumerates thermal zone temperature files under root and
// constructs one sensor per zone, in filesystem enumeration order.
// Zone values are millidegrees, hence the m°C column suffix; the zone
// type file supplies the display name.
func Discover(root string) ([]Sensor, error) {
	errFactory := errors.New()

	paths, err := filepath.Glob(filepath.Join(root, "thermal_zone*", "temp"))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrNoSensors, err)
	}
	sort.Strings(paths)

	seen := make(map[string]bool)
	sensors := make([]Sensor, 0, len(paths))
	for _, path := range paths {
		zone := filepath.Base(filepath.Dir(path))

		name := zone
		if data, err := os.ReadFile(filepath.Join(filepath.Dir(path), "type")); err == nil {
			if typ := strings.TrimSpace(string(data)); typ != "" {
				name = typ
			}
		}
		if seen[name] {
			name = name + "_" + zone
		}
		seen[name] = true

		sensors = append(sensors, Sensor{Path: path, Column: name + "_m°C"})
	}

	if len(sensors) == 0 {
		logger.Warn().Str("root", root).Msg("no thermal zones discovered")
	}

	return sensors, nil
}
