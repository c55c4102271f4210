package auditor

import (
	"errors"
	"fmt"
	"testing"

	"orm-check/internal/model"
	"orm-check/internal/suggestion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJoinAnalyzer(t *testing.T) *JoinOptimizationAnalyzer {
	t.Helper()
	a, err := NewJoinOptimizationAnalyzer(DefaultMaxJoinsRecommended, DefaultMaxJoinsCritical)
	require.NoError(t, err)
	return a
}

func TestJoinOptimization_Thresholds(t *testing.T) {
	tests := []struct {
		joins    int
		want     bool
		severity model.Severity
	}{
		{joins: 0, want: false},
		{joins: 5, want: false},
		{joins: 6, want: true, severity: model.SeverityWarning},
		{joins: 8, want: true, severity: model.SeverityWarning},
		{joins: 9, want: true, severity: model.SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d joins", tt.joins), func(t *testing.T) {
			a := newJoinAnalyzer(t)
			issues := a.Analyze(queriesOf(joinQuery(tt.joins), "SELECT 1", "SELECT 2")).ToArray()

			if !tt.want {
				assert.Empty(t, issues)
				return
			}
			require.Len(t, issues, 1)
			assert.Equal(t, "too_many_joins", issues[0].Type)
			assert.Equal(t, "Too Many JOINs", issues[0].Title)
			assert.Equal(t, tt.severity, issues[0].Severity)
			assert.Equal(t, model.CategoryPerformance, issues[0].Category)
			assert.Equal(t, tt.joins, issues[0].Data["join_count"])
			assert.Equal(t, DefaultMaxJoinsRecommended, issues[0].Data["max_recommended"])
			assertSuggested(t, issues[0].Suggestion, suggestion.CodeSplitQuery)
			assert.Contains(t, issues[0].Suggestion.Description, fmt.Sprintf("joins %d tables", tt.joins))
		})
	}
}

func TestJoinOptimization_TooFewQueries(t *testing.T) {
	a := newJoinAnalyzer(t)
	assert.Empty(t, a.Analyze(queriesOf(joinQuery(12), joinQuery(12))).ToArray())
}

func TestJoinOptimization_RepeatedQueryReportedOnce(t *testing.T) {
	a := newJoinAnalyzer(t)
	q := joinQuery(7)

	issues := a.Analyze(queriesOf(q, q, q)).ToArray()

	require.Len(t, issues, 1)
	assert.Equal(t, 7, issues[0].Data["join_count"])
}

func TestJoinOptimization_UnusedJoin(t *testing.T) {
	a := newJoinAnalyzer(t)
	unused := "SELECT o.id, o.total FROM orders o LEFT JOIN customers c ON c.id = o.customer_id WHERE o.id > 10"
	used := "SELECT o.id, c.name FROM orders o LEFT JOIN customers c ON c.id = o.customer_id"

	issues := a.Analyze(queriesOf(unused, used, "SELECT 1")).ToArray()

	require.Len(t, issues, 1)
	assert.Equal(t, "unused_join", issues[0].Type)
	assert.Equal(t, "Unused JOIN", issues[0].Title)
	assert.Equal(t, "customers", issues[0].Data["table"])
	assert.Equal(t, "c", issues[0].Data["alias"])
	assert.Equal(t, model.SeverityWarning, issues[0].Severity)
	assertSuggested(t, issues[0].Suggestion, suggestion.CodeRemoveUnusedJoin)
	assert.Contains(t, issues[0].Suggestion.Code, "JOIN customers c ON")
}

func TestJoinOptimization_DerivedTableCountsButIsNeverUnused(t *testing.T) {
	a := newJoinAnalyzer(t)
	q := joinQuery(5) + " LEFT JOIN (SELECT l.user_id FROM audit_log l JOIN users u2 ON u2.id = l.user_id) recent ON recent.user_id = t0.id"

	issues := a.Analyze(queriesOf(q, "SELECT 1", "SELECT 2")).ToArray()

	require.Len(t, issues, 1)
	assert.Equal(t, "too_many_joins", issues[0].Type)
	assert.Equal(t, 6, issues[0].Data["join_count"])
}

func TestJoinOptimization_NaturalAndCrossJoins(t *testing.T) {
	a := newJoinAnalyzer(t)
	natural := "SELECT o.id FROM orders o NATURAL JOIN order_meta"
	cross := "SELECT o.id FROM orders o CROSS JOIN calendar cal"

	issues := a.Analyze(queriesOf(natural, cross, "SELECT 1")).ToArray()

	require.Len(t, issues, 1)
	assert.Equal(t, "unused_join", issues[0].Type)
	assert.Equal(t, "calendar", issues[0].Data["table"])
	assert.Contains(t, issues[0].Description, "CROSS JOIN")
}

func TestJoinOptimization_SelectStarUsesEveryJoin(t *testing.T) {
	a := newJoinAnalyzer(t)
	q := "SELECT * FROM orders o LEFT JOIN customers c ON c.id = o.customer_id"

	assert.Empty(t, a.Analyze(queriesOf(q, q, q)).ToArray())
}

func TestJoinOptimization_AliasUsedInLaterJoin(t *testing.T) {
	a := newJoinAnalyzer(t)
	q := "SELECT a.name FROM orders o JOIN customers c ON c.id = o.customer_id JOIN addresses a ON a.id = c.address_id"

	assert.Empty(t, a.Analyze(queriesOf(q, "SELECT 1", "SELECT 2")).ToArray())
}

func TestJoinOptimization_IgnoresWrites(t *testing.T) {
	a := newJoinAnalyzer(t)
	q := "UPDATE orders o JOIN customers c ON c.id = o.customer_id SET o.flag = 1"

	assert.Empty(t, a.Analyze(queriesOf(q, q, q)).ToArray())
}

func TestJoinOptimization_Deterministic(t *testing.T) {
	a := newJoinAnalyzer(t)
	queries := queriesOf(joinQuery(9), joinQuery(6),
		"SELECT o.id FROM orders o LEFT JOIN customers c ON c.id = o.customer_id")

	first := a.Analyze(queries).ToArray()
	second := a.Analyze(queries).ToArray()

	assert.Equal(t, first, second)
}

func TestNewJoinOptimizationAnalyzer_Validation(t *testing.T) {
	tests := []struct {
		name                  string
		recommended, critical int
		opts                  []Option
	}{
		{name: "zero recommended", recommended: 0, critical: 8},
		{name: "critical not above recommended", recommended: 5, critical: 5},
		{name: "critical above limit", recommended: 5, critical: 101},
		{name: "non-positive min queries", recommended: 5, critical: 8, opts: []Option{WithMinQueries(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewJoinOptimizationAnalyzer(tt.recommended, tt.critical, tt.opts...)
			assert.True(t, errors.Is(err, model.ErrInvalidConfig), "got %v", err)
		})
	}
}
