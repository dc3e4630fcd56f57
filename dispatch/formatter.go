package dispatch

import (
	"fmt"
	"regexp"

	"github.com/charmbracelet/log"
	"github.com/gobwas/glob"
	"github.com/speedfmt/fmtd/config"
)

var nameRegex = regexp.MustCompile("^[a-zA-Z0-9_-]+$")

// Formatter represents a command code can be piped through.
type Formatter struct {
	name   string
	config *config.Formatter

	log *log.Logger

	// internal, compiled version of Includes.
	includes []glob.Glob
}

func (f *Formatter) Name() string {
	return f.name
}

func (f *Formatter) Command() string {
	return f.config.Command
}

func (f *Formatter) Languages() []string {
	return f.config.Languages
}

func (f *Formatter) Includes() []string {
	return f.config.Includes
}

// Wants is used to determine if a Formatter wants to process a file based on
// its configured Includes patterns.
// Returns true if the Formatter should be selected for filename, false otherwise.
func (f *Formatter) Wants(filename string) bool {
	match := pathMatches(filename, f.includes)
	if match {
		f.log.Debugf("match: %v", filename)
	}

	return match
}

// newFormatter is used to create a new Formatter.
func newFormatter(
	name string,
	cfg *config.Formatter,
) (*Formatter, error) {
	var err error

	// check the name is valid
	if !nameRegex.MatchString(name) {
		return nil, ErrInvalidName
	}

	f := Formatter{}

	// capture config and the formatter's name
	f.name = name
	f.config = cfg

	// initialise internal state
	f.log = log.WithPrefix(fmt.Sprintf("dispatch | %s", name))

	f.includes, err = compileGlobs(cfg.Includes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile formatter '%v' includes: %w", f.name, err)
	}

	return &f, nil
}
