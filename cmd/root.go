package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/speedfmt/fmtd/build"
	"github.com/speedfmt/fmtd/cmd/format"
	_init "github.com/speedfmt/fmtd/cmd/init"
	"github.com/speedfmt/fmtd/cmd/serve"
	"github.com/speedfmt/fmtd/config"
	"github.com/speedfmt/fmtd/stats"
)

func NewRoot() (*cobra.Command, *stats.Stats) {
	var (
		fmtdInit   bool
		configFile string
	)

	// create a viper instance for reading in config
	v, err := config.NewViper()
	if err != nil {
		cobra.CheckErr(fmt.Errorf("failed to create viper instance: %w", err))
	}

	// create a new stats instance
	statz := stats.New()

	// create our root command
	cmd := &cobra.Command{
		Use:     build.Name + " [path]",
		Short:   "A code formatting service",
		Version: build.Version,
		// a path may be passed in stdin mode, it must not be mistaken for a
		// subcommand
		Args: cobra.ArbitraryArgs,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			// pick up a .env file from the current directory if present
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runE(v, &statz, cmd, args)
		},
	}

	// update version template
	cmd.SetVersionTemplate("fmtd {{.Version}}")

	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(&cobra.Command{
		Use:       "completions [bash|zsh|fish]",
		Short:     "Generate shell completions",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"bash", "zsh", "fish"},
		RunE:      generateShellCompletions,
	})

	fs := cmd.Flags()

	// add our config flags to the command's flag set
	config.SetFlags(fs)

	// add a couple of special flags which don't have a corresponding entry in fmtd.toml
	fs.StringVar(
		&configFile, "config-file", "",
		"Load the config file from the given path (defaults to searching upwards for fmtd.toml or "+
			".fmtd.toml).",
	)
	fs.BoolVarP(
		&fmtdInit, "init", "i", false,
		"Create a fmtd.toml file in the current directory.",
	)

	// bind our command's flags to viper
	if err := v.BindPFlags(fs); err != nil {
		cobra.CheckErr(fmt.Errorf("failed to bind global config to viper: %w", err))
	}

	return cmd, &statz
}

func runE(v *viper.Viper, statz *stats.Stats, cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	// change working directory if required
	workingDir, err := filepath.Abs(v.GetString("working-dir"))
	if err != nil {
		return fmt.Errorf("failed to get absolute path for working directory: %w", err)
	} else if err = os.Chdir(workingDir); err != nil {
		return fmt.Errorf("failed to change working directory: %w", err)
	}

	// check if we are running the init command
	if init, err := flags.GetBool("init"); err != nil {
		return fmt.Errorf("failed to read init flag: %w", err)
	} else if init {
		if err := _init.Run(); err != nil {
			return fmt.Errorf("failed to run init command: %w", err)
		}

		return nil
	}

	// otherwise attempt to find a config file

	// use the path specified by the flag
	configFile, err := flags.GetString("config-file")
	if err != nil {
		return fmt.Errorf("failed to read config-file flag: %w", err)
	}

	// fallback to env
	if configFile == "" {
		configFile = os.Getenv("FMTD_CONFIG")
	}

	// search up from the working directory
	if configFile == "" {
		configFile, _, _ = config.FindUp(workingDir, "fmtd.toml", ".fmtd.toml")
	}

	// fallback to the user's config directory
	if configFile == "" {
		configFile, _ = xdg.SearchConfigFile(filepath.Join(build.Name, "fmtd.toml"))
	}

	// read the config file if we found one, otherwise the builtin formatters
	// apply
	if configFile != "" {
		log.Debugf("using config file: %s", configFile)

		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file '%s': %w", configFile, err)
		}
	}

	// configure logging
	if logFile := v.GetString("log-file"); logFile != "" {
		log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}))
	} else {
		log.SetOutput(os.Stderr)
	}

	log.SetReportTimestamp(false)

	if v.GetBool("quiet") {
		// if quiet, we only log errors
		log.SetLevel(log.ErrorLevel)
	} else {
		// otherwise, the verbose flag controls the log level
		switch v.GetInt("verbose") {
		case 0:
			log.SetLevel(log.WarnLevel)
		case 1:
			log.SetLevel(log.InfoLevel)
		default:
			log.SetLevel(log.DebugLevel)
		}
	}

	// format stdin directly, otherwise serve HTTP
	if v.GetBool("stdin") {
		return format.Run(v, statz, cmd, args) //nolint:wrapcheck
	}

	return serve.Run(v, statz, cmd, args) //nolint:wrapcheck
}
