package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/TheEdward162/thermobench/internal/bench"
	"github.com/TheEdward162/thermobench/internal/config"
	"github.com/TheEdward162/thermobench/internal/errors"
	"github.com/TheEdward162/thermobench/internal/logger"
	"github.com/TheEdward162/thermobench/internal/pid"
)

const version = "2.0"

// Exit codes for thermobench's own failures. A benchmark that ran to
// completion propagates its exit code instead.
const (
	exitConfigError     = 1
	exitSupervisorError = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "thermobench: %v\n", err)

		return exitConfigError
	}

	logger.Init(cfg.Debug, cfg.Verbose)
	logger.Debug().Str("output", cfg.Output).Int("period_ms", cfg.Period).Msg("Config loaded")

	if err := pid.Write(); err != nil {
		logger.Error().Err(err).Msg("failed to write PID file")

		return exitSupervisorError
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	b := bench.New(cfg, bench.Options{
		Version:    version,
		Invocation: strings.Join(os.Args, " "),
	})

	code, err := b.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("benchmark run failed")

		return exitSupervisorError
	}

	return code
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
