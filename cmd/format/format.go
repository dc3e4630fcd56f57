package format

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/speedfmt/fmtd/config"
	"github.com/speedfmt/fmtd/dispatch"
	"github.com/speedfmt/fmtd/stats"
)

// Run pipes stdin through a single formatter and writes the result to stdout.
// The formatter is selected by --language when given, otherwise by the path
// argument's name.
func Run(v *viper.Viper, statz *stats.Stats, cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if len(args) > 1 {
		return errors.New("at most one path may be specified when using the --stdin flag")
	}

	var filename string
	if len(args) == 1 {
		filename = args[0]
	}

	if cfg.Language == "" && filename == "" {
		return errors.New("a path or --language must be specified when using the --stdin flag")
	}

	input, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}

	runner := dispatch.NewSubprocessRunner(cfg.WorkingDirectory)

	dispatcher, err := dispatch.New(cfg, statz, runner)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	// listen for shutdown so a stuck formatter can be interrupted
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		exit := make(chan os.Signal, 1)
		signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
		<-exit
		cancel()
	}()

	res, err := dispatcher.Dispatch(ctx, dispatch.Request{
		Code:     string(input),
		Language: cfg.Language,
		Filename: filename,
	})
	if err != nil {
		return fmt.Errorf("failed to format: %w", err)
	}

	if _, err := fmt.Fprint(cmd.OutOrStdout(), res.Output); err != nil {
		return fmt.Errorf("failed to write formatted output: %w", err)
	}

	return nil
}
