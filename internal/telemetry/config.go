package telemetry

import "github.com/TheEdward162/thermobench/internal/errors"

const (
	defaultDirPerm      = 0o755
	defaultDBPath       = "thermobench-telemetry.db"
	defaultBatchSize    = 32
	defaultBatchTimeout = 5 // seconds
)

type Config struct {
	Enabled      bool
	DBPath       string
	BatchSize    int
	BatchTimeout int
}

func DefaultConfig() Config {
	return Config{
		Enabled:      false,
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Enabled && c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}

	return nil
}
