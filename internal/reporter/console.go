package reporter

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sort"

	"orm-check/internal/model"
	"orm-check/internal/parser"

	"github.com/fatih/color"
)

var severityOrder = []model.Severity{model.SeverityCritical, model.SeverityWarning, model.SeverityInfo}

type ConsoleReporter struct {
	out io.Writer
}

func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleReporter{out: out}
}

func levelColor(s model.Severity) *color.Color {
	switch s {
	case model.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	case model.SeverityWarning:
		return color.New(color.FgYellow, color.Bold)
	case model.SeverityInfo:
		return color.New(color.FgBlue, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

// Report prints issues grouped by severity, most severe first. Within a
// group the analyzer order is kept.
func (r *ConsoleReporter) Report(issues []model.Issue) error {
	if len(issues) == 0 {
		fmt.Fprintln(r.out, color.GreenString("✔ No ORM issues found! Great job."))
		return nil
	}

	groups := make(map[model.Severity][]model.Issue)
	for _, issue := range issues {
		groups[issue.Severity] = append(groups[issue.Severity], issue)
	}

	for _, sev := range slices.Concat(severityOrder, unranked(groups)) {
		group := groups[sev]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(r.out, "%s (%d)\n\n", levelColor(sev).Sprint(string(sev)), len(group))
		for _, issue := range group {
			r.printIssue(issue)
		}
	}

	fmt.Fprintf(r.out, "%s found %d issues (%s).\n", color.RedString("✘"), len(issues), summaryLine(Summarize(issues)))
	return nil
}

func (r *ConsoleReporter) printIssue(issue model.Issue) {
	header := fmt.Sprintf("[%s] %s", issue.Type, issue.Title)
	if loc, ok := location(issue); ok {
		header = loc.String() + ": " + header
	}
	fmt.Fprintln(r.out, levelColor(issue.Severity).Sprint(header))
	if issue.Description != "" {
		fmt.Fprintf(r.out, "\t%s\n", issue.Description)
	}
	if len(issue.Queries) > 0 {
		fmt.Fprintf(r.out, "\tQuery: %s\n", color.CyanString(parser.Truncate(issue.Queries[0].SQL, 80)))
	}
	if issue.Suggestion != nil {
		fmt.Fprintf(r.out, "\tSuggestion: %s\n", issue.Suggestion.Description)
	}
	fmt.Fprintln(r.out)
}

// location is the issue's own backtrace, else the first located query.
func location(issue model.Issue) (model.Frame, bool) {
	if loc, ok := (model.QueryRecord{Backtrace: issue.Backtrace}).Location(); ok {
		return loc, true
	}
	for _, q := range issue.Queries {
		if loc, ok := q.Location(); ok {
			return loc, true
		}
	}
	return model.Frame{}, false
}

func unranked(groups map[model.Severity][]model.Issue) []model.Severity {
	var out []model.Severity
	for sev := range groups {
		if sev.Rank() == 0 {
			out = append(out, sev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func summaryLine(s Summary) string {
	return fmt.Sprintf("%d critical, %d warning, %d info", s.Critical, s.Warning, s.Info)
}
