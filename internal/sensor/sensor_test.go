package sensor_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/TheEdward162/thermobench/internal/config"
	"github.com/TheEdward162/thermobench/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReadOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	writeFile(t, path, "48000\n")

	s := sensor.Sensor{Path: path, Column: "cpu_m°C"}

	value, err := s.ReadOnce()
	require.NoError(t, err)
	assert.Equal(t, "48000", value, "Expected the raw trimmed value")

	temp, err := s.ReadValue()
	require.NoError(t, err)
	assert.InDelta(t, 48000.0, temp, 0.001)
}

func TestReadOnceMissingFile(t *testing.T) {
	s := sensor.Sensor{Path: filepath.Join(t.TempDir(), "gone"), Column: "x"}

	_, err := s.ReadOnce()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read sensor")
}

func TestReadOnceUnparsable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	writeFile(t, path, "not a number\n")

	s := sensor.Sensor{Path: path, Column: "x"}

	_, err := s.ReadOnce()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to parse sensor value")
}

func TestReadRecoversAfterFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "temp")
	s := sensor.Sensor{Path: path, Column: "x"}

	_, err := s.ReadOnce()
	require.Error(t, err, "Expected failure while the file is absent")

	writeFile(t, path, "51000")
	value, err := s.ReadOnce()
	require.NoError(t, err, "Expected the sensor to recover once readable")
	assert.Equal(t, "51000", value)
}

func TestResolveExplicitSensors(t *testing.T) {
	cfg := &config.Config{
		Sensors: []config.SensorSpec{
			{Path: "/sys/foo/temp", Name: "soc", Unit: "°C"},
			{Path: "/sys/bar/rpm"},
		},
		Execs: []config.ExecSpec{{Column: "remote", Command: "ssh m cat /t"}},
	}

	set, err := sensor.Resolve(cfg, t.TempDir())
	require.NoError(t, err)

	require.Len(t, set.Sensors, 2)
	assert.Equal(t, "soc_°C", set.Sensors[0].Column)
	assert.Equal(t, "/sys/bar/rpm", set.Sensors[1].Column)
	require.Len(t, set.Execs, 1)
	assert.Equal(t, "remote", set.Execs[0].Column)
}

func TestResolveSensorsFile(t *testing.T) {
	dir := t.TempDir()
	sensorsFile := filepath.Join(dir, "sensors.txt")
	writeFile(t, sensorsFile, `
# board sensors
/sys/foo/temp soc m°C

!(ambient)ssh meter read
/sys/bar/fan fan rpm
`)

	cfg := &config.Config{SensorsFile: sensorsFile}
	set, err := sensor.Resolve(cfg, dir)
	require.NoError(t, err)

	require.Len(t, set.Sensors, 2)
	assert.Equal(t, "soc_m°C", set.Sensors[0].Column)
	assert.Equal(t, "fan_rpm", set.Sensors[1].Column)
	require.Len(t, set.Execs, 1)
	assert.Equal(t, "ambient", set.Execs[0].Column)
	assert.Equal(t, "ssh meter read", set.Execs[0].Command)
}

func TestResolveSensorsFileMalformed(t *testing.T) {
	dir := t.TempDir()
	sensorsFile := filepath.Join(dir, "sensors.txt")
	writeFile(t, sensorsFile, "/sys/foo/temp soc m°C extra\n")

	_, err := sensor.Resolve(&config.Config{SensorsFile: sensorsFile}, dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Malformed sensor spec")
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "thermal_zone0", "temp"), "41000")
	writeFile(t, filepath.Join(root, "thermal_zone0", "type"), "cpu-thermal\n")
	writeFile(t, filepath.Join(root, "thermal_zone1", "temp"), "39000")
	writeFile(t, filepath.Join(root, "thermal_zone1", "type"), "gpu-thermal\n")

	sensors, err := sensor.Discover(root)
	require.NoError(t, err)

	require.Len(t, sensors, 2)
	assert.Equal(t, "cpu-thermal_m°C", sensors[0].Column)
	assert.Equal(t, "gpu-thermal_m°C", sensors[1].Column)
}

func TestDiscoverDuplicateZoneTypes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "thermal_zone0", "temp"), "41000")
	writeFile(t, filepath.Join(root, "thermal_zone0", "type"), "soc")
	writeFile(t, filepath.Join(root, "thermal_zone1", "temp"), "39000")
	writeFile(t, filepath.Join(root, "thermal_zone1", "type"), "soc")

	sensors, err := sensor.Discover(root)
	require.NoError(t, err)

	require.Len(t, sensors, 2)
	assert.Equal(t, "soc_m°C", sensors[0].Column)
	assert.Equal(t, "soc_thermal_zone1_m°C", sensors[1].Column)
}

func TestResolveAutoDiscoversWhenUnconfigured(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "thermal_zone0", "temp"), "41000")
	writeFile(t, filepath.Join(root, "thermal_zone0", "type"), "cpu")

	set, err := sensor.Resolve(&config.Config{}, root)
	require.NoError(t, err)

	require.Len(t, set.Sensors, 1)
	assert.Equal(t, "cpu_m°C", set.Sensors[0].Column)
}
