package cmd_test

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/speedfmt/fmtd/cmd"
	"github.com/speedfmt/fmtd/config"
	"github.com/speedfmt/fmtd/dispatch"
	"github.com/speedfmt/fmtd/stats"
	"github.com/speedfmt/fmtd/test"
)

// catConfig declares a single formatter which pipes its input straight back
// out, letting tests cover the full stdin path with a real subprocess.
func catConfig() *config.Config {
	return &config.Config{
		FormatterConfigs: map[string]*config.Formatter{
			"cat": {
				Command:   "cat",
				Languages: []string{"text"},
				Includes:  []string{"*.txt"},
			},
		},
	}
}

func TestInit(t *testing.T) {
	as := require.New(t)

	tempDir := t.TempDir()
	test.ChangeWorkDir(t, tempDir)

	fmtd(t,
		withArgs("--init"),
		withNoError(t),
		withOutput(func(out []byte) {
			as.Contains(string(out), "Generated fmtd.toml")
		}),
	)

	// the sample must decode into our config shape with the builtin formatters
	var cfg config.Config
	_, err := toml.DecodeFile(filepath.Join(tempDir, "fmtd.toml"), &cfg)
	as.NoError(err)
	as.Contains(cfg.FormatterConfigs, "prettier")
	as.Contains(cfg.FormatterConfigs, "rustfmt")
}

func TestVersion(t *testing.T) {
	as := require.New(t)

	fmtd(t,
		withArgs("--version"),
		withNoError(t),
		withOutput(func(out []byte) {
			as.Contains(string(out), "fmtd v")
		}),
	)
}

func TestCompletions(t *testing.T) {
	as := require.New(t)

	for _, shell := range []string{"bash", "zsh", "fish"} {
		t.Run(shell, func(t *testing.T) {
			fmtd(t,
				withArgs("completions", shell),
				withNoError(t),
				withOutput(func(out []byte) {
					as.NotEmpty(out)
					as.Contains(string(out), "fmtd")
				}),
			)
		})
	}

	fmtd(t,
		withArgs("completions", "powershell"),
		withError(func(err error) {
			as.ErrorContains(err, "invalid argument")
		}),
	)
}

func TestServeRejectsPaths(t *testing.T) {
	as := require.New(t)

	fmtd(t,
		withArgs("hello.js"),
		withError(func(err error) {
			as.ErrorContains(err, "unexpected arguments")
		}),
	)
}

func TestStdinByLanguage(t *testing.T) {
	as := require.New(t)

	tempDir := t.TempDir()
	test.ChangeWorkDir(t, tempDir)

	fmtd(t,
		withConfig(filepath.Join(tempDir, "fmtd.toml"), catConfig()),
		withArgs("--stdin", "--language", "text"),
		withInput("pick up milk\n"),
		withNoError(t),
		withStats(t, map[stats.Type]int64{
			stats.Received:  1,
			stats.Matched:   1,
			stats.Formatted: 1,
			stats.Failed:    0,
		}),
		withOutput(func(out []byte) {
			as.Contains(string(out), "pick up milk")
		}),
	)
}

func TestStdinByFilename(t *testing.T) {
	as := require.New(t)

	tempDir := t.TempDir()
	test.ChangeWorkDir(t, tempDir)

	fmtd(t,
		withConfig(filepath.Join(tempDir, "fmtd.toml"), catConfig()),
		withArgs("--stdin", "todo.txt"),
		withInput("return library books\n"),
		withNoError(t),
		withOutput(func(out []byte) {
			as.Contains(string(out), "return library books")
		}),
	)

	// a name no formatter wants is rejected without running anything
	fmtd(t,
		withArgs("--stdin", "photo.png"),
		withInput("not really a png"),
		withError(func(err error) {
			as.ErrorContains(err, "does not match any configured formatter")
		}),
	)
}

func TestStdinRequiresTarget(t *testing.T) {
	as := require.New(t)

	fmtd(t,
		withArgs("--stdin"),
		withError(func(err error) {
			as.ErrorContains(err, "a path or --language must be specified")
		}),
	)
}

func TestStdinUnsupportedLanguage(t *testing.T) {
	as := require.New(t)

	tempDir := t.TempDir()
	test.ChangeWorkDir(t, tempDir)

	fmtd(t,
		withArgs("--stdin", "--language", "python"),
		withInput("print('hi')"),
		withError(func(err error) {
			as.ErrorContains(err, "Language 'python' is not supported yet")
		}),
		withStats(t, map[stats.Type]int64{
			stats.Received:  1,
			stats.Matched:   0,
			stats.Formatted: 0,
			stats.Failed:    0,
		}),
	)
}

func TestConfigFileFlag(t *testing.T) {
	as := require.New(t)

	tempDir := t.TempDir()
	test.ChangeWorkDir(t, tempDir)

	// not discoverable by searching upwards
	configPath := filepath.Join(t.TempDir(), "custom.toml")

	fmtd(t,
		withConfig(configPath, catConfig()),
		withArgs("--config-file", configPath, "--stdin", "--language", "text"),
		withInput("hello\n"),
		withNoError(t),
		withOutput(func(out []byte) {
			as.Contains(string(out), "hello")
		}),
	)
}

func TestConfigFileEnv(t *testing.T) {
	as := require.New(t)

	tempDir := t.TempDir()
	test.ChangeWorkDir(t, tempDir)

	configPath := filepath.Join(t.TempDir(), "custom.toml")
	t.Setenv("FMTD_CONFIG", configPath)

	fmtd(t,
		withConfig(configPath, catConfig()),
		withArgs("--stdin", "--language", "text"),
		withInput("hello\n"),
		withNoError(t),
		withOutput(func(out []byte) {
			as.Contains(string(out), "hello")
		}),
	)
}

func TestWorkingDirFlag(t *testing.T) {
	as := require.New(t)

	fixtures := test.TempFixtures(t)
	test.WriteConfig(t, filepath.Join(fixtures, "fmtd.toml"), catConfig())

	// run from a different directory, pointing -C at the fixture tree
	test.ChangeWorkDir(t, t.TempDir())

	fmtd(t,
		withArgs("-C", fixtures, "--stdin", "notes/todo.txt"),
		withInput("from the fixtures\n"),
		withNoError(t),
		withOutput(func(out []byte) {
			as.Contains(string(out), "from the fixtures")
		}),
	)
}

func TestFormattersFilter(t *testing.T) {
	as := require.New(t)

	tempDir := t.TempDir()
	test.ChangeWorkDir(t, tempDir)

	cfg := catConfig()
	cfg.FormatterConfigs["md"] = &config.Formatter{
		Command:  "cat",
		Includes: []string{"*.md"},
	}

	configPath := filepath.Join(tempDir, "fmtd.toml")

	// with only md enabled, txt files no longer match
	fmtd(t,
		withConfig(configPath, cfg),
		withArgs("-f", "md", "--stdin", "todo.txt"),
		withInput("x"),
		withError(func(err error) {
			as.ErrorContains(err, "does not match any configured formatter")
		}),
	)

	fmtd(t,
		withArgs("-f", "unknown", "--stdin", "todo.txt"),
		withInput("x"),
		withError(func(err error) {
			as.ErrorContains(err, "formatter unknown not found in config")
		}),
	)
}

func TestMissingFormatter(t *testing.T) {
	as := require.New(t)

	tempDir := t.TempDir()
	test.ChangeWorkDir(t, tempDir)

	cfg := &config.Config{
		FormatterConfigs: map[string]*config.Formatter{
			"nope": {
				Command:   "fmtd-test-missing",
				Languages: []string{"text"},
			},
		},
	}

	configPath := filepath.Join(tempDir, "fmtd.toml")

	// by default the formatter stays registered and the failure surfaces when
	// it is asked to run
	fmtd(t,
		withConfig(configPath, cfg),
		withArgs("--stdin", "--language", "text"),
		withInput("x"),
		withError(func(err error) {
			as.ErrorContains(err, "failed to spawn")
		}),
		withStats(t, map[stats.Type]int64{
			stats.Received: 1,
			stats.Matched:  1,
			stats.Failed:   1,
		}),
	)

	// strict mode refuses to start at all
	t.Setenv("FMTD_ALLOW_MISSING_FORMATTER", "false")

	fmtd(t,
		withArgs("--stdin", "--language", "text"),
		withInput("x"),
		withError(func(err error) {
			as.ErrorIs(err, dispatch.ErrCommandNotFound)
		}),
	)
}

func TestStdinTimeout(t *testing.T) {
	as := require.New(t)

	tempDir := t.TempDir()
	test.ChangeWorkDir(t, tempDir)

	cfg := &config.Config{
		FormatterConfigs: map[string]*config.Formatter{
			"slow": {
				Command:   "sleep",
				Options:   []string{"5"},
				Languages: []string{"text"},
			},
		},
	}

	fmtd(t,
		withConfig(filepath.Join(tempDir, "fmtd.toml"), cfg),
		withArgs("--stdin", "--language", "text", "--timeout", "100ms"),
		withInput(""),
		withError(func(err error) {
			as.ErrorContains(err, "timed out after")
		}),
	)
}

func TestLogFile(t *testing.T) {
	as := require.New(t)

	tempDir := t.TempDir()
	test.ChangeWorkDir(t, tempDir)

	logPath := filepath.Join(t.TempDir(), "fmtd.log")

	fmtd(t,
		withConfig(filepath.Join(tempDir, "fmtd.toml"), catConfig()),
		withArgs("--stdin", "--language", "text", "--log-file", logPath, "-vv"),
		withInput("hello\n"),
		withNoError(t),
	)

	contents, err := os.ReadFile(logPath)
	as.NoError(err)
	as.Contains(string(contents), "executing: ")
}

type options struct {
	args  []string
	input string

	config struct {
		path  string
		value *config.Config
	}

	assertOut   func([]byte)
	assertError func(error)
	assertStats func(*stats.Stats)
}

type option func(*options)

func withArgs(args ...string) option {
	return func(o *options) {
		o.args = args
	}
}

func withInput(input string) option {
	return func(o *options) {
		o.input = input
	}
}

func withConfig(path string, cfg *config.Config) option {
	return func(o *options) {
		o.config.path = path
		o.config.value = cfg
	}
}

func withStats(t *testing.T, expected map[stats.Type]int64) option {
	return func(o *options) {
		o.assertStats = func(s *stats.Stats) {
			for k, v := range expected {
				require.Equal(t, v, s.Value(k), k.String())
			}
		}
	}
}

func withError(fn func(error)) option {
	return func(o *options) {
		o.assertError = fn
	}
}

func withNoError(t *testing.T) option {
	return func(o *options) {
		o.assertError = func(err error) {
			require.NoError(t, err)
		}
	}
}

func withOutput(fn func([]byte)) option {
	return func(o *options) {
		o.assertOut = fn
	}
}

func fmtd(
	t *testing.T,
	opt ...option,
) {
	t.Helper()

	// build options
	opts := &options{}
	for _, option := range opt {
		option(opts)
	}

	// default args if nil
	// we must pass an empty array otherwise cobra will use os.Args[1:]
	args := opts.args
	if args == nil {
		args = []string{}
	}

	// write config
	if opts.config.value != nil {
		test.WriteConfig(t, opts.config.path, opts.config.value)
	}

	t.Logf("fmtd %s", strings.Join(args, " "))

	tempDir := t.TempDir()
	tempOut := test.TempFile(t, tempDir, "combined_output", nil)

	// capture standard outputs before swapping them
	stdout := os.Stdout
	stderr := os.Stderr

	// swap them temporarily
	os.Stdout = tempOut
	os.Stderr = tempOut

	log.SetOutput(tempOut)

	defer func() {
		// swap outputs back
		os.Stdout = stdout
		os.Stderr = stderr
		log.SetOutput(stderr)
	}()

	// run the command
	root, statz := cmd.NewRoot()

	root.SetArgs(args)
	root.SetIn(strings.NewReader(opts.input))
	root.SetOut(tempOut)
	root.SetErr(tempOut)

	// execute the command
	cmdErr := root.Execute()

	// reset and read the temporary output
	if _, resetErr := tempOut.Seek(0, 0); resetErr != nil {
		t.Fatal(fmt.Errorf("failed to reset temp output for reading: %w", resetErr))
	}

	out, readErr := io.ReadAll(tempOut)
	if readErr != nil {
		t.Fatal(fmt.Errorf("failed to read temp output: %w", readErr))
	}

	t.Log("\n" + string(out))

	if opts.assertStats != nil {
		opts.assertStats(statz)
	}

	if opts.assertOut != nil {
		opts.assertOut(out)
	}

	if opts.assertError != nil {
		opts.assertError(cmdErr)
	}
}
