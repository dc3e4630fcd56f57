package config

type Formatter struct {
	// Command is the command to invoke when dispatching to this Formatter.
	Command string `mapstructure:"command" toml:"command"`
	// Options are an optional list of args to be passed to Command.
	Options []string `mapstructure:"options,omitempty" toml:"options,omitempty"`
	// Languages is the list of language tokens routed to this Formatter.
	// Tokens are matched exactly and case-sensitively, and a token may be
	// claimed by at most one formatter.
	Languages []string `mapstructure:"languages,omitempty" toml:"languages,omitempty"`
	// Includes is a list of glob patterns used to select this Formatter when a
	// request carries a filename instead of a language.
	Includes []string `mapstructure:"includes,omitempty" toml:"includes,omitempty"`
}

// DefaultFormatters returns the built-in formatter table used when no config
// file declares one. The invocations write the full source to stdin and read
// the formatted result from stdout.
func DefaultFormatters() map[string]*Formatter {
	return map[string]*Formatter{
		"prettier": {
			Command:   "npx",
			Options:   []string{"prettier", "--stdin-filepath", "file.js", "--parser", "babel"},
			Languages: []string{"javascript", "typescript", "js", "ts"},
			Includes:  []string{"*.js", "*.jsx", "*.mjs", "*.cjs", "*.ts", "*.tsx"},
		},
		"rustfmt": {
			Command:   "rustfmt",
			Options:   []string{"--emit", "stdout"},
			Languages: []string{"rust"},
			Includes:  []string{"*.rs"},
		},
	}
}
