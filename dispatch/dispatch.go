package dispatch

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/speedfmt/fmtd/config"
	"github.com/speedfmt/fmtd/stats"
	"golang.org/x/sync/semaphore"
)

// Request describes a single piece of code to be formatted.
type Request struct {
	// Code is the source to format. It may be empty or arbitrarily large.
	Code string
	// Language selects a formatter by language token, matched exactly and
	// case-sensitively against the configured languages.
	Language string
	// Formatter, when set, skips language routing and selects a configured
	// formatter by name.
	Formatter string
	// Filename, when set and neither Formatter nor Language are given,
	// selects the first formatter whose includes match its base name.
	Filename string
}

// Result is the outcome of a successful dispatch.
type Result struct {
	// Output is the formatted code read from the formatter's stdout.
	Output string
	// FormatterUsed is the name of the formatter which produced Output.
	FormatterUsed string
}

// Dispatcher routes requests to configured formatters and pipes code through
// them via a Runner. It holds no per-request state and is safe for
// concurrent use.
type Dispatcher struct {
	log    *log.Logger
	runner Runner

	timeout time.Duration
	sem     *semaphore.Weighted
	stats   *stats.Stats

	formatters map[string]*Formatter
	languages  map[string]*Formatter

	// formatters in name order, for deterministic filename matching
	ordered []*Formatter
}

// New creates a Dispatcher for the configured formatters, executing them
// through the provided runner.
func New(cfg *config.Config, statz *stats.Stats, runner Runner) (*Dispatcher, error) {
	d := &Dispatcher{
		log:        log.WithPrefix("dispatch"),
		runner:     runner,
		timeout:    cfg.Timeout,
		stats:      statz,
		formatters: make(map[string]*Formatter),
		languages:  make(map[string]*Formatter),
	}

	// bound the number of concurrently running formatter processes
	if cfg.Concurrency > 0 {
		d.sem = semaphore.NewWeighted(int64(cfg.Concurrency))
	}

	// iterate in name order so config errors are deterministic
	for _, name := range slices.Sorted(maps.Keys(cfg.FormatterConfigs)) {
		formatterCfg := cfg.FormatterConfigs[name]

		formatter, err := newFormatter(name, formatterCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialise formatter %v: %w", name, err)
		}

		// a language token may only be claimed once
		for _, language := range formatterCfg.Languages {
			if existing, ok := d.languages[language]; ok {
				return nil, fmt.Errorf(
					"language %v is claimed by both %v and %v",
					language, existing.Name(), name,
				)
			}

			d.languages[language] = formatter
		}

		d.formatters[name] = formatter
		d.ordered = append(d.ordered, formatter)
	}

	// probe for missing commands up front so operators hear about them at
	// startup rather than from failing requests
	if prober, ok := runner.(Prober); ok {
		for _, f := range d.ordered {
			if _, err := prober.LookPath(f.config.Command); err == nil {
				continue
			}

			if !cfg.AllowMissingFormatter {
				return nil, fmt.Errorf("failed to initialise formatter %v: %w", f.name, ErrCommandNotFound)
			}

			f.log.Warnf("command not found in PATH: %v", f.config.Command)
		}
	}

	return d, nil
}

// Formatters returns the configured formatters in name order.
func (d *Dispatcher) Formatters() []*Formatter {
	return d.ordered
}

// Dispatch selects a formatter for the request and pipes the code through it,
// returning the formatted output. Selection failures return before any
// process is spawned.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	d.stats.Add(stats.Received, 1)

	formatter, err := d.resolve(req)
	if err != nil {
		return nil, err
	}

	d.stats.Add(stats.Matched, 1)

	res, err := d.run(ctx, formatter, []byte(req.Code))
	if err != nil {
		d.stats.Add(stats.Failed, 1)

		return nil, err
	}

	d.stats.Add(stats.Formatted, 1)

	return &Result{
		Output:        lossyString(res.Stdout),
		FormatterUsed: formatter.name,
	}, nil
}

// resolve selects a formatter for the request, preferring an explicit
// formatter name over the language token over the filename.
func (d *Dispatcher) resolve(req Request) (*Formatter, error) {
	if req.Formatter != "" {
		formatter, ok := d.formatters[req.Formatter]
		if !ok {
			return nil, &UnknownFormatterError{Name: req.Formatter}
		}

		return formatter, nil
	}

	if req.Language != "" {
		formatter, ok := d.languages[req.Language]
		if !ok {
			return nil, &UnsupportedLanguageError{Language: req.Language}
		}

		return formatter, nil
	}

	if req.Filename != "" {
		filename := filepath.Base(req.Filename)
		for _, formatter := range d.ordered {
			if formatter.Wants(filename) {
				return formatter, nil
			}
		}

		return nil, &UnmatchedFilenameError{Filename: req.Filename}
	}

	return nil, &UnsupportedLanguageError{Language: req.Language}
}

func (d *Dispatcher) run(ctx context.Context, f *Formatter, input []byte) (*RunResult, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	// waiting for a slot counts against the request's time budget
	if d.sem != nil {
		if err := d.sem.Acquire(ctx, 1); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, &TimeoutError{Formatter: f.name, Limit: d.timeout}
			}

			return nil, fmt.Errorf("failed to acquire a formatter slot: %w", err)
		}

		defer d.sem.Release(1)
	}

	start := time.Now()

	res, err := d.runner.Run(ctx, f.config.Command, f.config.Options, input)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &TimeoutError{Formatter: f.name, Limit: d.timeout}
		}

		return nil, err
	}

	f.log.Debugf("%d byte(s) processed in %v", len(input), time.Since(start))

	return res, nil
}

// lossyString decodes b as UTF-8, replacing invalid sequences with the
// replacement character rather than failing.
func lossyString(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}

	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
