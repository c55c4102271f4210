package auditor

import (
	"log/slog"
	"regexp"

	"orm-check/internal/model"
	"orm-check/internal/suggestion"
)

// Option customizes an analyzer at construction time.
type Option func(*settings)

type settings struct {
	logger              *slog.Logger
	suggestions         *suggestion.Factory
	minQueries          int
	maxMeanGap          float64
	tablePrefixes       []string
	childPatterns       []string
	independentPatterns []string
	schema              *model.SchemaCtx
}

func defaultSettings() settings {
	return settings{
		minQueries:          DefaultMinJoinQueries,
		maxMeanGap:          DefaultMaxMeanGap,
		tablePrefixes:       []string{"tbl_"},
		childPatterns:       DefaultChildPatterns,
		independentPatterns: DefaultIndependentPatterns,
	}
}

func applyOptions(opts []Option) settings {
	s := defaultSettings()
	for _, o := range opts {
		o(&s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.suggestions == nil {
		s.suggestions = suggestion.NewFactory(nil)
	}
	return s
}

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func WithSuggestions(f *suggestion.Factory) Option {
	return func(s *settings) { s.suggestions = f }
}

// WithSchema gives analyzers that can use it the table and index layout.
func WithSchema(schema *model.SchemaCtx) Option {
	return func(s *settings) { s.schema = schema }
}

// WithMinQueries sets how many queries the JOIN analyzer needs before it
// reports anything.
func WithMinQueries(n int) Option {
	return func(s *settings) { s.minQueries = n }
}

// WithMaxMeanGap sets the largest mean positional distance between a table's
// matching queries that still counts as sequential.
func WithMaxMeanGap(gap float64) Option {
	return func(s *settings) { s.maxMeanGap = gap }
}

// WithTablePrefixes sets table-name prefixes stripped before deriving an
// entity name.
func WithTablePrefixes(prefixes ...string) Option {
	return func(s *settings) { s.tablePrefixes = append([]string(nil), prefixes...) }
}

// WithChildPatterns replaces the entity-name suffixes that suggest a
// composition child.
func WithChildPatterns(patterns ...string) Option {
	return func(s *settings) { s.childPatterns = append([]string(nil), patterns...) }
}

// WithIndependentPatterns replaces the entity-name suffixes that suggest a
// shared reference entity.
func WithIndependentPatterns(patterns ...string) Option {
	return func(s *settings) { s.independentPatterns = append([]string(nil), patterns...) }
}

// suffixPattern compiles name suffixes into one anchored, optionally plural
// matcher.
func suffixPattern(suffixes []string) *regexp.Regexp {
	if len(suffixes) == 0 {
		return regexp.MustCompile(`$^`)
	}
	alt := ""
	for i, s := range suffixes {
		if i > 0 {
			alt += "|"
		}
		alt += regexp.QuoteMeta(s)
	}
	return regexp.MustCompile(`(?:` + alt + `)(?:s|es)?$`)
}
