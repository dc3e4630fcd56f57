package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	ErrInvalidPort        = fmt.Errorf("port must be between 0 and 65,535")
	ErrInvalidConcurrency = fmt.Errorf("concurrency must be zero or a positive integer")
)

// Config is used to represent the service configuration and the list of
// configured Formatters.
type Config struct {
	Addr                  string        `mapstructure:"addr"                    toml:"addr,omitempty"`
	AllowMissingFormatter bool          `mapstructure:"allow-missing-formatter" toml:"allow-missing-formatter,omitempty"`
	Concurrency           int           `mapstructure:"concurrency"             toml:"concurrency,omitempty"`
	CPUProfile            string        `mapstructure:"cpu-profile"             toml:"cpu-profile,omitempty"`
	Formatters            []string      `mapstructure:"formatters"              toml:"formatters,omitempty"`
	Language              string        `mapstructure:"language"                toml:"-"` // not allowed in config
	LogFile               string        `mapstructure:"log-file"                toml:"log-file,omitempty"`
	Port                  int           `mapstructure:"port"                    toml:"port,omitempty"`
	Quiet                 bool          `mapstructure:"quiet"                   toml:"quiet,omitempty"`
	Stdin                 bool          `mapstructure:"stdin"                   toml:"-"` // not allowed in config
	Timeout               time.Duration `mapstructure:"timeout"                 toml:"timeout,omitempty"`
	Verbose               uint8         `mapstructure:"verbose"                 toml:"verbose,omitempty"`
	WorkingDirectory      string        `mapstructure:"working-dir"             toml:"-"`

	FormatterConfigs map[string]*Formatter `mapstructure:"formatter" toml:"formatter,omitempty"`
}

// ListenAddr returns the host:port pair the HTTP server should bind to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Addr, c.Port)
}

// SetFlags appends our flags to the provided flag set.
// We have a flag matching most entries in Config, taking care to ensure the name matches the field name defined in the
// mapstructure tag.
// We rely on a flag's default value being provided in the event the same value was not specified in the config file.
func SetFlags(fs *pflag.FlagSet) {
	fs.String(
		"addr", "0.0.0.0",
		"The address on which the HTTP server listens. (env $FMTD_ADDR)",
	)
	fs.Bool(
		"allow-missing-formatter", true,
		"Start even if a configured formatter is missing from PATH, reporting the failure per request "+
			"instead of refusing to boot. (env $FMTD_ALLOW_MISSING_FORMATTER)",
	)
	fs.Int(
		"concurrency", runtime.NumCPU(),
		"The maximum number of formatter processes to run concurrently, 0 meaning no limit. "+
			"(env $FMTD_CONCURRENCY)",
	)
	fs.String(
		"cpu-profile", "",
		"The file into which a cpu profile will be written. (env $FMTD_CPU_PROFILE)",
	)
	fs.StringSliceP(
		"formatters", "f", nil,
		"Specify formatters to enable. Defaults to all configured formatters. (env $FMTD_FORMATTERS)",
	)
	fs.String(
		"language", "",
		"The language of the code passed via stdin. Only used with --stdin.",
	)
	fs.String(
		"log-file", "",
		"Write logs to the specified file (rotated) in addition to stderr. (env $FMTD_LOG_FILE)",
	)
	fs.IntP(
		"port", "p", 3000,
		"The port on which the HTTP server listens. (env $FMTD_PORT)",
	)
	fs.BoolP(
		"quiet", "q", false,
		"Only log errors. (env $FMTD_QUIET)",
	)
	fs.Bool(
		"stdin", false,
		"Format the code passed in via stdin and print the result to stdout instead of serving.",
	)
	fs.Duration(
		"timeout", 30*time.Second,
		"The maximum time a formatter may run before it is interrupted, 0 meaning no limit. "+
			"(env $FMTD_TIMEOUT)",
	)
	fs.CountP(
		"verbose", "v",
		"Set the verbosity of logs e.g. -vv. (env $FMTD_VERBOSE)",
	)
	fs.StringP(
		"working-dir", "C",
		".",
		"Run as if fmtd was started in the specified working directory instead of the current working "+
			"directory. Formatter processes are spawned there. (env $FMTD_WORKING_DIR)",
	)
}

// NewViper creates a Viper instance pre-configured with the following options:
// * TOML config type
// * automatic env enabled
// * `FMTD_` env prefix for environment variables
// * replacement of `-` and `.` with `_` when mapping flags to env e.g. `log-file` => `FMTD_LOG_FILE`.
func NewViper() (*viper.Viper, error) {
	v := viper.New()

	// Enforce toml (may open this up to other formats in the future)
	v.SetConfigType("toml")

	// Allow env overrides for config and flags.
	v.SetEnvPrefix("fmtd")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// unset some env variables that we don't want automatically applied
	if err := os.Unsetenv("FMTD_STDIN"); err != nil {
		return nil, fmt.Errorf("failed to unset FMTD_STDIN: %w", err)
	}

	return v, nil
}

// FromViper takes a viper instance and produces a Config instance.
func FromViper(v *viper.Viper) (*Config, error) {
	configReset := map[string]any{
		"language":    "",
		"stdin":       false,
		"working-dir": ".",
	}

	// reset certain values which are not allowed to be specified in the config file
	if err := v.MergeConfigMap(configReset); err != nil {
		return nil, fmt.Errorf("failed to overwrite config values: %w", err)
	}

	// read config from viper
	var err error

	cfg := &Config{}

	if err = v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// resolve the working directory to an absolute path
	cfg.WorkingDirectory, err = filepath.Abs(cfg.WorkingDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for working directory: %w", err)
	}

	// fall back to the built-in formatter table when the config declares none
	if len(cfg.FormatterConfigs) == 0 {
		cfg.FormatterConfigs = DefaultFormatters()
	}

	// filter formatters based on provided names
	if len(cfg.Formatters) > 0 {
		filtered := make(map[string]*Formatter)

		// check if the provided names exist in the config
		for _, name := range cfg.Formatters {
			formatterCfg, ok := cfg.FormatterConfigs[name]
			if !ok {
				return nil, fmt.Errorf("formatter %v not found in config", name)
			}

			filtered[name] = formatterCfg
		}

		// updated formatters
		cfg.FormatterConfigs = filtered
	}

	if !(0 <= cfg.Port && cfg.Port <= 65535) {
		return nil, ErrInvalidPort
	}

	if cfg.Concurrency < 0 {
		return nil, ErrInvalidConcurrency
	}

	return cfg, nil
}

// FindUp searches dir and all of its parents for one of fileNames, returning
// the full path and containing directory of the first match.
func FindUp(searchDir string, fileNames ...string) (path string, dir string, err error) {
	for _, dir := range eachDir(searchDir) {
		for _, f := range fileNames {
			path := filepath.Join(dir, f)
			if fileExists(path) {
				return path, dir, nil
			}
		}
	}

	return "", "", fmt.Errorf("could not find %s in %s", fileNames, searchDir)
}

func eachDir(path string) (paths []string) {
	path, err := filepath.Abs(path)
	if err != nil {
		return
	}

	paths = []string{path}

	if path == "/" {
		return
	}

	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == os.PathSeparator {
			path = path[:i]
			if path == "" {
				path = "/"
			}

			paths = append(paths, path)
		}
	}

	return
}

func fileExists(path string) bool {
	// Some broken filesystems like SSHFS return file information on stat() but
	// then cannot open the file. So we use os.Open.
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	// Next, check that the file is a regular file.
	fi, err := f.Stat()
	if err != nil {
		return false
	}

	return fi.Mode().IsRegular()
}
