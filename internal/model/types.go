package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is wrapped by every constructor-time validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Frame is one call-site entry of a captured backtrace
type Frame struct {
	File     string `json:"file,omitempty"`
	Line     int    `json:"line,omitempty"`
	Function string `json:"function,omitempty"`
	Class    string `json:"class,omitempty"`
}

func (f Frame) String() string {
	fn := f.Function
	if f.Class != "" {
		fn = f.Class + "::" + f.Function
	}
	if f.File == "" {
		return fn
	}
	return fmt.Sprintf("%s:%d %s", f.File, f.Line, fn)
}

// QueryRecord is a single captured query execution.
type QueryRecord struct {
	SQL             string  `json:"sql"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
	RowCount        *int    `json:"row_count,omitempty"`
	Backtrace       []Frame `json:"backtrace,omitempty"`
}

// Location returns the first backtrace frame that points at a file, if any.
func (q QueryRecord) Location() (Frame, bool) {
	for _, f := range q.Backtrace {
		if f.File != "" {
			return f, true
		}
	}
	return Frame{}, false
}

// Severity of a detected issue
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank below info.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	}
	return 0
}

// ParseSeverity accepts the three severity names in any case.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(strings.ToLower(strings.TrimSpace(s)))
	if sev.Rank() == 0 {
		return "", fmt.Errorf("%w: unknown severity %q", ErrInvalidConfig, s)
	}
	return sev, nil
}

// Category groups issues by concern
type Category string

const (
	CategoryPerformance   Category = "performance"
	CategoryIntegrity     Category = "integrity"
	CategoryConfiguration Category = "configuration"
	CategoryGeneral       Category = "general"
)

// SuggestionMetadata is always populated by the suggestion factory.
type SuggestionMetadata struct {
	Severity Severity `json:"severity"`
	Category Category `json:"category"`
	Tags     []string `json:"tags"`
}

// Suggestion is a remediation hint attached to an issue
type Suggestion struct {
	Code        string             `json:"code"`
	Description string             `json:"description"`
	Metadata    SuggestionMetadata `json:"metadata"`
}

// MaxIssueQueries bounds the number of query records carried by one issue.
const MaxIssueQueries = 20

// Issue represents a problem found by an analyzer. Analyzers build issues
// once and never touch them afterwards.
type Issue struct {
	Type        string         `json:"type"` // e.g. "lazy_loading", "too_many_joins"
	Category    Category       `json:"category"`
	Severity    Severity       `json:"severity"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
	Suggestion  *Suggestion    `json:"suggestion,omitempty"`
	Backtrace   []Frame        `json:"backtrace,omitempty"`
	Queries     []QueryRecord  `json:"queries,omitempty"`
}

// CapQueries copies at most MaxIssueQueries records.
func CapQueries(records []QueryRecord) []QueryRecord {
	n := min(len(records), MaxIssueQueries)
	out := make([]QueryRecord, n)
	copy(out, records[:n])
	return out
}

// Key identifies duplicates: same type, title and data signature.
func (i Issue) Key() string {
	// fmt prints map keys in sorted order, so the signature is stable.
	return i.Type + "\x00" + i.Title + "\x00" + fmt.Sprintf("%v", i.Data)
}

// SchemaCtx represents the loaded database schema context
type SchemaCtx struct {
	Tables map[string]*Table
}

type Table struct {
	Name    string
	Columns map[string]*Column
	Indexes []*Index
}

type Column struct {
	Name    string
	Type    string // Simplified type representation
	NotNull bool
}

type Index struct {
	Name    string
	Columns []string // Ordered list of column names in the index
	Unique  bool
}

// Column looks a column up by table and column name, case-insensitively.
func (s *SchemaCtx) Column(table, column string) (*Column, bool) {
	if s == nil {
		return nil, false
	}
	for name, t := range s.Tables {
		if !strings.EqualFold(name, table) {
			continue
		}
		for cname, c := range t.Columns {
			if strings.EqualFold(cname, column) {
				return c, true
			}
		}
	}
	return nil, false
}
