package sensor

import (
	"os"
	"strconv"
	"strings"

	"github.com/TheEdward162/thermobench/internal/errors"
)

// Sensor is a single file-backed numeric source. It is immutable after
// construction; reads happen once per sampling tick.
type Sensor struct {
	Path   string
	Column string
}

// ReadOnce reads the sensor file and returns the trimmed numeric value
// as written by the kernel. The raw text is preserved so scaled values
// (e.g. millidegrees) reach the trace untouched.
func (s Sensor) ReadOnce() (string, error) {
	errFactory := errors.New()

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", errFactory.Wrap(errors.ErrSensorRead, err)
	}

	value := strings.TrimSpace(string(data))
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return "", errFactory.WithData(errors.ErrSensorParse, s.Path+": "+value)
	}

	return value, nil
}

// ReadValue reads the sensor as a float, for the wait-temperature gate.
func (s Sensor) ReadValue() (float64, error) {
	raw, err := s.ReadOnce()
	if err != nil {
		return 0, err
	}

	return strconv.ParseFloat(raw, 64)
}
