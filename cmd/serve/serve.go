package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/speedfmt/fmtd/config"
	"github.com/speedfmt/fmtd/dispatch"
	"github.com/speedfmt/fmtd/metrics"
	"github.com/speedfmt/fmtd/server"
	"github.com/speedfmt/fmtd/stats"
)

func Run(v *viper.Viper, statz *stats.Stats, cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v, paths are only accepted with --stdin", args)
	}

	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// cpu profiling
	if cfg.CPUProfile != "" {
		cpuProfile, err := os.Create(cfg.CPUProfile)
		if err != nil {
			return fmt.Errorf("failed to open file for writing cpu profile: %w", err)
		} else if err = pprof.StartCPUProfile(cpuProfile); err != nil {
			return fmt.Errorf("failed to start cpu profile: %w", err)
		}

		defer func() {
			pprof.StopCPUProfile()

			if err := cpuProfile.Close(); err != nil {
				log.Errorf("failed to close cpu profile: %v", err)
			}
		}()
	}

	runner := dispatch.NewSubprocessRunner(cfg.WorkingDirectory)

	dispatcher, err := dispatch.New(cfg, statz, runner)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	srv := server.New(cfg, dispatcher, metrics.New())

	// create an app context and listen for shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		exit := make(chan os.Signal, 1)
		signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
		<-exit
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	log.Infof(
		"handled %d request(s) in %v: %d matched, %d formatted, %d failed",
		statz.Value(stats.Received),
		statz.Elapsed().Round(time.Millisecond),
		statz.Value(stats.Matched),
		statz.Value(stats.Formatted),
		statz.Value(stats.Failed),
	)

	return nil
}
