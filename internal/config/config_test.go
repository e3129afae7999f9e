package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/TheEdward162/thermobench/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("THERMOBENCH_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := config.Load([]string{"sleep", "1"})
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Period, "Expected default Period 100")
	assert.Equal(t, 0.0, cfg.Time, "Expected default Time 0")
	assert.False(t, cfg.WaitEnabled, "Expected WaitEnabled false")
	assert.Equal(t, config.RespawnOnce, cfg.ExecRespawn)
	assert.Equal(t, []string{"sleep", "1"}, cfg.Command)
	assert.Equal(t, "sleep.csv", cfg.Output, "Expected output derived from command name")
}

func TestLoadConfigFile(t *testing.T) {
	configContent := []byte(`
period = 250
fan_cmd = "/usr/local/bin/fan.sh"
telemetry = true
telemetry_db = "/tmp/thermobench.db"
verbose = true
`)
	configPath := filepath.Join(t.TempDir(), "thermobench.toml")
	require.NoError(t, os.WriteFile(configPath, configContent, 0o600))
	t.Setenv("THERMOBENCH_CONFIG", configPath)

	cfg, err := config.Load([]string{"-O", "stress"})
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Period, "Expected Period from config file")
	assert.Equal(t, "/usr/local/bin/fan.sh", cfg.FanCmd)
	assert.True(t, cfg.Telemetry)
	assert.Equal(t, "/tmp/thermobench.db", cfg.TelemetryDB)
	assert.True(t, cfg.Verbose)
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	configContent := []byte(`
period = 250
`)
	configPath := filepath.Join(t.TempDir(), "thermobench.toml")
	require.NoError(t, os.WriteFile(configPath, configContent, 0o600))
	t.Setenv("THERMOBENCH_CONFIG", configPath)

	cfg, err := config.Load([]string{"-p", "50", "-O", "stress"})
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Period, "Expected flag to win over config file")
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configContent := []byte(`
This is not a valid TOML file
`)
	configPath := filepath.Join(t.TempDir(), "thermobench.toml")
	require.NoError(t, os.WriteFile(configPath, configContent, 0o600))
	t.Setenv("THERMOBENCH_CONFIG", configPath)

	_, err := config.Load([]string{"sleep", "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read configuration")
}

func TestParseSensorSpec(t *testing.T) {
	spec, err := config.ParseSensorSpec("/sys/class/thermal/thermal_zone0/temp cpu m°C")
	require.NoError(t, err)
	assert.Equal(t, "/sys/class/thermal/thermal_zone0/temp", spec.Path)
	assert.Equal(t, "cpu", spec.Name)
	assert.Equal(t, "m°C", spec.Unit)
	assert.Equal(t, "cpu_m°C", spec.Column())

	spec, err = config.ParseSensorSpec("/sys/devices/soc/fan/rpm")
	require.NoError(t, err)
	assert.Equal(t, "/sys/devices/soc/fan/rpm", spec.Column(), "Expected path as column when no name given")

	_, err = config.ParseSensorSpec("a b c d")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Malformed sensor spec")

	_, err = config.ParseSensorSpec("   ")
	require.Error(t, err)
}

func TestParseExecSpec(t *testing.T) {
	spec, err := config.ParseExecSpec("(ambient)ssh meter cat /tmp/temp")
	require.NoError(t, err)
	assert.Equal(t, "ambient", spec.Column)
	assert.Equal(t, "ssh meter cat /tmp/temp", spec.Command)

	spec, err = config.ParseExecSpec("/usr/bin/sensor-read --loop")
	require.NoError(t, err)
	assert.Equal(t, "sensor-read", spec.Column, "Expected column named after the command")

	_, err = config.ParseExecSpec("(unterminated cmd")
	require.Error(t, err)

	_, err = config.ParseExecSpec("(col)")
	require.Error(t, err)
}

func TestOutputFlags(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("THERMOBENCH_CONFIG", filepath.Join(tempDir, "missing.toml"))

	cfg, err := config.Load([]string{"-n", "run1", "-O", "sleep", "1"})
	require.NoError(t, err)
	assert.Equal(t, "run1.csv", cfg.Output)

	_, err = config.Load([]string{"-n", "run1", "-o", "out.csv", "sleep", "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Conflicting output flags")

	existing := filepath.Join(tempDir, "exists.csv")
	require.NoError(t, os.WriteFile(existing, []byte("x"), 0o600))
	_, err = config.Load([]string{"-o", existing, "sleep", "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	cfg, err = config.Load([]string{"-o", existing, "-O", "sleep", "1"})
	require.NoError(t, err)
	assert.Equal(t, existing, cfg.Output)
}

func TestValidate(t *testing.T) {
	t.Setenv("THERMOBENCH_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))

	_, err := config.Load([]string{"-p", "0", "sleep", "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid sampling period")

	_, err = config.Load([]string{"--exec_respawn", "sometimes", "sleep", "1"})
	require.Error(t, err)

	_, err = config.Load([]string{"-O"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No benchmark command")
}
