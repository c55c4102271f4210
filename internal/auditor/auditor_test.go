package auditor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"orm-check/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockAnalyzer returns a fixed set of issues.
type MockAnalyzer struct {
	name   string
	issues []model.Issue
	calls  int
}

func (m *MockAnalyzer) Name() string        { return m.name }
func (m *MockAnalyzer) Description() string { return "mock analyzer" }
func (m *MockAnalyzer) Analyze(model.QueryCollection) model.IssueCollection {
	m.calls++
	return model.IssuesOf(m.issues...)
}

type panickingAnalyzer struct{}

func (panickingAnalyzer) Name() string        { return "panicking" }
func (panickingAnalyzer) Description() string { return "always panics" }
func (panickingAnalyzer) Analyze(model.QueryCollection) model.IssueCollection {
	return model.NewIssueCollection(func(yield func(model.Issue) bool) {
		if !yield(model.Issue{Type: "partial", Title: "before panic"}) {
			return
		}
		panic("boom")
	})
}

func TestAuditor_Audit(t *testing.T) {
	a := NewAuditor(nil)
	a.Register(&MockAnalyzer{name: "first", issues: []model.Issue{{Type: "A", Title: "a"}}})
	a.Register(&MockAnalyzer{name: "second", issues: []model.Issue{{Type: "B", Title: "b"}, {Type: "C", Title: "c"}}})

	issues, err := a.Audit(context.Background(), queriesOf("SELECT 1"))
	require.NoError(t, err)

	got := issues.ToArray()
	require.Len(t, got, 3)
	assert.Equal(t, "A", got[0].Type)
	assert.Equal(t, "B", got[1].Type)
	assert.Equal(t, "C", got[2].Type)
}

func TestAuditor_AuditOrderIgnoresParallelism(t *testing.T) {
	for _, parallel := range []int{1, 8} {
		a := NewAuditor(nil)
		a.SetParallelism(parallel)
		for _, name := range []string{"a", "b", "c", "d", "e"} {
			a.Register(&MockAnalyzer{name: name, issues: []model.Issue{{Type: name, Title: name}}})
		}

		issues, err := a.Audit(context.Background(), queriesOf("SELECT 1"))
		require.NoError(t, err)

		var types []string
		for _, i := range issues.ToArray() {
			types = append(types, i.Type)
		}
		assert.Equal(t, []string{"a", "b", "c", "d", "e"}, types)
	}
}

func TestAuditor_PanicIsolated(t *testing.T) {
	var logs bytes.Buffer
	a := NewAuditor(slog.New(slog.NewTextHandler(&logs, nil)))
	a.Register(panickingAnalyzer{})
	a.Register(&MockAnalyzer{name: "healthy", issues: []model.Issue{{Type: "ok", Title: "ok"}}})

	issues, err := a.Audit(context.Background(), queriesOf("SELECT 1"))
	require.NoError(t, err)

	got := issues.ToArray()
	require.Len(t, got, 2)
	assert.Equal(t, "partial", got[0].Type)
	assert.Equal(t, "ok", got[1].Type)
	assert.Contains(t, logs.String(), "analyzer=panicking")
}

func TestAuditor_Cancelled(t *testing.T) {
	a := NewAuditor(nil)
	a.Register(&MockAnalyzer{name: "never"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Audit(ctx, queriesOf("SELECT 1"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestAuditor_StreamIsLazy(t *testing.T) {
	first := &MockAnalyzer{name: "first", issues: []model.Issue{{Type: "A", Title: "a"}}}
	second := &MockAnalyzer{name: "second", issues: []model.Issue{{Type: "B", Title: "b"}}}
	a := NewAuditor(nil)
	a.Register(first)
	a.Register(second)

	stream := a.Stream(queriesOf("SELECT 1"))
	assert.Equal(t, 0, first.calls)

	for issue := range stream.All() {
		assert.Equal(t, "A", issue.Type)
		break
	}
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
}

func TestAuditor_EndToEnd(t *testing.T) {
	join, err := NewJoinOptimizationAnalyzer(DefaultMaxJoinsRecommended, DefaultMaxJoinsCritical)
	require.NoError(t, err)
	lazy, err := NewLazyLoadingAnalyzer(DefaultLazyLoadingThreshold)
	require.NoError(t, err)

	a := NewAuditor(nil)
	a.Register(join)
	a.Register(lazy)
	assert.Len(t, a.Analyzers(), 2)
	assert.Equal(t, []string{"join_optimization", "lazy_loading"}, a.Names())

	sqls := append([]string{joinQuery(9)}, lookups("users", 12)...)
	issues, err := a.Audit(context.Background(), queriesOf(sqls...))
	require.NoError(t, err)

	got := issues.ToArray()
	require.Len(t, got, 2)
	assert.Equal(t, "too_many_joins", got[0].Type)
	assert.Equal(t, model.SeverityCritical, got[0].Severity)
	assert.Equal(t, "lazy_loading", got[1].Type)
}
