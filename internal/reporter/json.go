package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"orm-check/internal/model"

	"github.com/google/uuid"
)

// Summary counts issues per severity.
type Summary struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Info     int `json:"info"`
}

func Summarize(issues []model.Issue) Summary {
	s := Summary{Total: len(issues)}
	for _, issue := range issues {
		switch issue.Severity {
		case model.SeverityCritical:
			s.Critical++
		case model.SeverityWarning:
			s.Warning++
		case model.SeverityInfo:
			s.Info++
		}
	}
	return s
}

// Document is the JSON report layout.
type Document struct {
	RunID       string        `json:"run_id"`
	GeneratedAt time.Time     `json:"generated_at"`
	Summary     Summary       `json:"summary"`
	Issues      []model.Issue `json:"issues"`
}

type JSONReporter struct {
	out io.Writer
	now func() time.Time
}

func NewJSONReporter(out io.Writer) *JSONReporter {
	return &JSONReporter{out: out, now: time.Now}
}

func (r *JSONReporter) Report(issues []model.Issue) error {
	if issues == nil {
		issues = []model.Issue{}
	}
	doc := Document{
		RunID:       uuid.NewString(),
		GeneratedAt: r.now().UTC(),
		Summary:     Summarize(issues),
		Issues:      issues,
	}

	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	return nil
}
