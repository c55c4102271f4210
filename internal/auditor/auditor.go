package auditor

import (
	"context"
	"fmt"
	"log/slog"

	"orm-check/internal/model"

	"golang.org/x/sync/errgroup"
)

// Auditor runs a set of analyzers over one query collection and merges
// their findings.
type Auditor struct {
	analyzers []model.Analyzer
	logger    *slog.Logger
	parallel  int
}

func NewAuditor(logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Auditor{
		analyzers: make([]model.Analyzer, 0),
		logger:    logger,
		parallel:  4,
	}
}

// SetParallelism bounds how many analyzers Audit runs at once.
func (a *Auditor) SetParallelism(n int) {
	if n > 0 {
		a.parallel = n
	}
}

func (a *Auditor) Register(analyzer model.Analyzer) {
	a.analyzers = append(a.analyzers, analyzer)
}

// Analyzers returns the registered analyzers in registration order.
func (a *Auditor) Analyzers() []model.Analyzer {
	return append([]model.Analyzer(nil), a.analyzers...)
}

func (a *Auditor) Names() []string {
	names := make([]string, len(a.analyzers))
	for i, an := range a.analyzers {
		names[i] = an.Name()
	}
	return names
}

// Stream chains every analyzer lazily, one after the other.
func (a *Auditor) Stream(queries model.QueryCollection) model.IssueCollection {
	cols := make([]model.IssueCollection, 0, len(a.analyzers))
	for _, an := range a.analyzers {
		cols = append(cols, a.guarded(an, queries))
	}
	return model.MergeIssues(cols...)
}

// Audit runs the analyzers concurrently and concatenates their output in
// registration order, so the result does not depend on scheduling.
func (a *Auditor) Audit(ctx context.Context, queries model.QueryCollection) (model.IssueCollection, error) {
	results := make([][]model.Issue, len(a.analyzers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallel)
	for i, an := range a.analyzers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.guarded(an, queries).ToArray()
			a.logger.Debug("analyzer finished", "analyzer", an.Name(), "issues", len(results[i]))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.IssueCollection{}, fmt.Errorf("audit cancelled: %w", err)
	}

	var all []model.Issue
	for _, r := range results {
		all = append(all, r...)
	}
	return model.IssuesOf(all...), nil
}

// guarded wraps an analyzer so a panic inside it ends that analyzer's
// output instead of the whole run.
func (a *Auditor) guarded(an model.Analyzer, queries model.QueryCollection) model.IssueCollection {
	return model.NewIssueCollection(func(yield func(model.Issue) bool) {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("analyzer panicked", "analyzer", an.Name(), "panic", fmt.Sprint(r))
			}
		}()
		for issue := range an.Analyze(queries).All() {
			if !yield(issue) {
				return
			}
		}
	})
}
