package auditor

import (
	"fmt"
	"log/slog"
	"strconv"

	"orm-check/internal/model"
	"orm-check/internal/parser"
	"orm-check/internal/suggestion"
)

const (
	DefaultMaxJoinsRecommended = 5
	DefaultMaxJoinsCritical    = 8
	DefaultMinJoinQueries      = 3
	maxJoinLimit               = 100
	queryPreviewLength         = 200
)

// JoinOptimizationAnalyzer flags queries joining too many tables and JOINs
// whose alias is never used.
type JoinOptimizationAnalyzer struct {
	maxRecommended int
	maxCritical    int
	minQueries     int
	suggestions    *suggestion.Factory
	logger         *slog.Logger
}

func NewJoinOptimizationAnalyzer(maxRecommended, maxCritical int, opts ...Option) (*JoinOptimizationAnalyzer, error) {
	s := applyOptions(opts)
	if maxRecommended < 1 || maxRecommended > maxJoinLimit {
		return nil, fmt.Errorf("%w: max recommended joins must be in [1, %d], got %d", model.ErrInvalidConfig, maxJoinLimit, maxRecommended)
	}
	if maxCritical <= maxRecommended || maxCritical > maxJoinLimit {
		return nil, fmt.Errorf("%w: max critical joins must be in (%d, %d], got %d", model.ErrInvalidConfig, maxRecommended, maxJoinLimit, maxCritical)
	}
	if s.minQueries < 1 {
		return nil, fmt.Errorf("%w: minimum query count must be positive, got %d", model.ErrInvalidConfig, s.minQueries)
	}
	return &JoinOptimizationAnalyzer{
		maxRecommended: maxRecommended,
		maxCritical:    maxCritical,
		minQueries:     s.minQueries,
		suggestions:    s.suggestions,
		logger:         s.logger,
	}, nil
}

func (r *JoinOptimizationAnalyzer) Name() string { return "join_optimization" }

func (r *JoinOptimizationAnalyzer) Description() string {
	return "Detects performance problems in JOIN usage: too many joins in one query and unused joined tables"
}

func (r *JoinOptimizationAnalyzer) Analyze(queries model.QueryCollection) model.IssueCollection {
	return model.NewIssueCollection(func(yield func(model.Issue) bool) {
		if queries.Len() < r.minQueries {
			return
		}
		reported := make(map[string]bool)

		for _, q := range queries.All() {
			if !parser.IsSelect(q.SQL) {
				continue
			}
			joins := parser.ExtractJoins(q.SQL)
			if len(joins) == 0 {
				continue
			}
			shape := parser.Shape(q.SQL)

			if issue, ok := r.tooManyJoins(q, len(joins)); ok && !reported[shape] {
				reported[shape] = true
				if !yield(issue) {
					return
				}
			}

			if parser.SelectsAllColumns(q.SQL) {
				continue
			}
			for _, jc := range joins {
				// derived tables and NATURAL joins have no alias to reference
				if jc.Derived() || jc.Type == parser.JoinNatural || parser.AliasReferenced(q.SQL, jc) {
					continue
				}
				if !yield(r.unusedJoin(q, jc)) {
					return
				}
			}
		}
		r.logger.Debug("join analysis done", "queries", queries.Len(), "oversized_shapes", len(reported))
	})
}

func (r *JoinOptimizationAnalyzer) tooManyJoins(q model.QueryRecord, count int) (model.Issue, bool) {
	var severity model.Severity
	switch {
	case count > r.maxCritical:
		severity = model.SeverityCritical
	case count > r.maxRecommended:
		severity = model.SeverityWarning
	default:
		return model.Issue{}, false
	}

	code := suggestion.CodeSplitQuery
	if parser.SelectsAllColumns(q.SQL) {
		code = suggestion.CodeSelectColumns
	}
	sugg := r.suggestions.ForCodeRef(code, map[string]string{"join_count": strconv.Itoa(count)})
	return model.Issue{
		Type:     "too_many_joins",
		Category: model.CategoryPerformance,
		Severity: severity,
		Title:    "Too Many JOINs",
		Description: fmt.Sprintf("Query contains %d JOINs (recommended maximum %d, critical above %d). "+
			"Large join graphs multiply rows and make the planner's job harder.", count, r.maxRecommended, r.maxCritical),
		Data: map[string]any{
			"join_count":      count,
			"max_recommended": r.maxRecommended,
			"query":           parser.Truncate(q.SQL, queryPreviewLength),
			"execution_time":  q.ExecutionTimeMs,
		},
		Suggestion: sugg,
		Backtrace:  q.Backtrace,
		Queries:    model.CapQueries([]model.QueryRecord{q}),
	}, true
}

func (r *JoinOptimizationAnalyzer) unusedJoin(q model.QueryRecord, jc parser.JoinClause) model.Issue {
	return model.Issue{
		Type:        "unused_join",
		Category:    model.CategoryPerformance,
		Severity:    model.SeverityWarning,
		Title:       "Unused JOIN",
		Description: fmt.Sprintf("%s JOIN on table %q (alias %q) is never referenced outside its ON clause.", jc.Type, jc.Table, jc.Alias),
		Data: map[string]any{
			"table": jc.Table,
			"alias": jc.Alias,
		},
		Suggestion: r.suggestions.ForCodeRef(suggestion.CodeRemoveUnusedJoin, map[string]string{"table": jc.Table, "alias": jc.Alias}),
		Backtrace:  q.Backtrace,
		Queries:    model.CapQueries([]model.QueryRecord{q}),
	}
}
