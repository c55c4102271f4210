package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"orm-check/internal/auditor"
	"orm-check/internal/config"
	"orm-check/internal/metadata"
	"orm-check/internal/model"
	"orm-check/internal/parser"
	"orm-check/internal/querylog"
	"orm-check/internal/reporter"
	"orm-check/internal/scanner"
)

var errFailOn = errors.New("issues at or above the fail-on severity were found")

type inputs struct {
	Queries  string
	Metadata string
	Schema   string
}

// analyzerSet splits analyzers by what they read: query analyzers run once
// per query log, metadata analyzers once per run.
type analyzerSet struct {
	query    []model.Analyzer
	metadata []model.Analyzer
}

func (s analyzerSet) all() []model.Analyzer {
	return append(append([]model.Analyzer(nil), s.query...), s.metadata...)
}

// buildAnalyzers constructs every analyzer from cfg, skipping disabled ones.
// provider may be nil, in which case the mapping analyzers are left out.
func buildAnalyzers(cfg *config.Configuration, provider model.MetadataProvider, schema *model.SchemaCtx, logger *slog.Logger) (analyzerSet, error) {
	a := cfg.Analyzers
	common := []auditor.Option{auditor.WithLogger(logger), auditor.WithSchema(schema)}
	opts := func(extra ...auditor.Option) []auditor.Option {
		return append(append([]auditor.Option(nil), common...), extra...)
	}

	var set analyzerSet
	add := func(dst *[]model.Analyzer, an model.Analyzer, err error) error {
		if err != nil {
			return err
		}
		if !cfg.Disabled(an.Name()) {
			*dst = append(*dst, an)
		}
		return nil
	}

	joins, err := auditor.NewJoinOptimizationAnalyzer(a.Joins.MaxRecommended, a.Joins.MaxCritical, opts(auditor.WithMinQueries(a.Joins.MinQueries))...)
	if err := add(&set.query, joins, err); err != nil {
		return set, fmt.Errorf("join optimization: %w", err)
	}
	lazy, err := auditor.NewLazyLoadingAnalyzer(a.LazyLoading.Threshold, opts(
		auditor.WithMaxMeanGap(a.LazyLoading.MaxMeanGap),
		auditor.WithTablePrefixes(a.LazyLoading.TablePrefixes...),
	)...)
	if err := add(&set.query, lazy, err); err != nil {
		return set, fmt.Errorf("lazy loading: %w", err)
	}
	slow, err := auditor.NewSlowQueryAnalyzer(a.SlowQuery.ThresholdMs, opts()...)
	if err := add(&set.query, slow, err); err != nil {
		return set, fmt.Errorf("slow query: %w", err)
	}
	findAll, err := auditor.NewFindAllWithoutLimitAnalyzer(a.FindAll.RowThreshold, opts()...)
	if err := add(&set.query, findAll, err); err != nil {
		return set, fmt.Errorf("find all: %w", err)
	}
	if div := auditor.NewDivisionByZeroAnalyzer(opts()...); !cfg.Disabled(div.Name()) {
		set.query = append(set.query, div)
	}

	if provider == nil {
		return set, nil
	}
	patterns := opts(
		auditor.WithChildPatterns(a.Composition.ChildPatterns...),
		auditor.WithIndependentPatterns(a.Composition.IndependentPatterns...),
	)
	cascadeAll, err := auditor.NewCascadeAllAnalyzer(provider, patterns...)
	if err := add(&set.metadata, cascadeAll, err); err != nil {
		return set, fmt.Errorf("cascade all: %w", err)
	}
	orphans, err := auditor.NewMissingOrphanRemovalAnalyzer(provider, patterns...)
	if err := add(&set.metadata, orphans, err); err != nil {
		return set, fmt.Errorf("missing orphan removal: %w", err)
	}
	orphanCascade, err := auditor.NewOrphanWithoutCascadeAnalyzer(provider, patterns...)
	if err := add(&set.metadata, orphanCascade, err); err != nil {
		return set, fmt.Errorf("orphan removal without cascade: %w", err)
	}
	return set, nil
}

func newAuditor(analyzers []model.Analyzer, logger *slog.Logger) *auditor.Auditor {
	a := auditor.NewAuditor(logger)
	for _, an := range analyzers {
		a.Register(an)
	}
	return a
}

func run(ctx context.Context, cfg *config.Configuration, in inputs, logger *slog.Logger, stdout io.Writer) error {
	if in.Queries == "" && in.Metadata == "" {
		return errors.New("nothing to analyze: pass --queries and/or --metadata")
	}

	var schema *model.SchemaCtx
	if in.Schema != "" {
		var err error
		logger.Info("loading schema", "path", in.Schema)
		schema, err = parser.NewSQLParser().LoadSchema(in.Schema)
		if err != nil {
			return fmt.Errorf("failed to load schema: %w", err)
		}
		logger.Info("schema loaded", "tables", len(schema.Tables))
	}

	var provider model.MetadataProvider
	if in.Metadata != "" {
		p, err := metadata.Load(in.Metadata, schema)
		if err != nil {
			return err
		}
		logger.Info("metadata loaded", "entities", len(p.EntityNames()))
		provider = p
	}

	set, err := buildAnalyzers(cfg, provider, schema, logger)
	if err != nil {
		return err
	}

	var collected []model.IssueCollection
	if in.Queries != "" {
		issues, err := auditQueryLogs(ctx, cfg, in.Queries, newAuditor(set.query, logger), logger)
		if err != nil {
			return err
		}
		collected = append(collected, issues...)
	}
	if len(set.metadata) > 0 {
		issues, err := newAuditor(set.metadata, logger).Audit(ctx, model.NewQueryCollection())
		if err != nil {
			return err
		}
		collected = append(collected, issues)
	}
	issues := model.MergeIssues(collected...).ToArray()
	logger.Info("analysis complete", "issues", len(issues))

	if err := writeReport(cfg, issues, stdout); err != nil {
		return err
	}

	if floor := cfg.FailOn(); floor != "" && model.IssuesOf(issues...).FilterMinSeverity(floor).Len() > 0 {
		return errFailOn
	}
	return nil
}

// auditQueryLogs treats every decoded file as its own execution-ordered
// collection.
func auditQueryLogs(ctx context.Context, cfg *config.Configuration, root string, a *auditor.Auditor, logger *slog.Logger) ([]model.IssueCollection, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("query log path: %w", err)
	}

	mgr := querylog.NewDefaultManager(cfg.Input.JSONArrayPath)
	walker := scanner.NewFileWalker(mgr.Extensions(), cfg.Input.Exclude)
	pool := scanner.NewWorkerPool(cfg.Input.Workers, mgr.Decode)

	logger.Info("scanning query logs", "path", root)
	results, err := scanner.Collect(ctx, walker, pool, root)
	if err != nil {
		return nil, fmt.Errorf("scan query logs: %w", err)
	}

	var out []model.IssueCollection
	for _, res := range results {
		if res.Error != nil {
			logger.Warn("skipping query log", "file", res.File, "error", res.Error)
			continue
		}
		logger.Debug("decoded query log", "file", res.File, "records", len(res.Records))
		issues, err := a.Audit(ctx, model.NewQueryCollection(res.Records...))
		if err != nil {
			return nil, err
		}
		out = append(out, issues)
	}
	logger.Info("scan complete", "files", len(results))
	return out, nil
}

func writeReport(cfg *config.Configuration, issues []model.Issue, stdout io.Writer) (err error) {
	out := stdout
	if cfg.Report.Output != "" {
		f, cerr := os.Create(cfg.Report.Output)
		if cerr != nil {
			return fmt.Errorf("create report file: %w", cerr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close report file: %w", cerr)
			}
		}()
		out = f
	}

	var rpt model.Reporter
	switch cfg.Report.Format {
	case "json":
		rpt = reporter.NewJSONReporter(out)
	default:
		rpt = reporter.NewConsoleReporter(out)
	}
	if err := rpt.Report(issues); err != nil {
		return fmt.Errorf("reporting failed: %w", err)
	}
	return nil
}

// listAnalyzers prints every analyzer, metadata ones included, with an
// empty snapshot standing in for the provider.
func listAnalyzers(w io.Writer, cfg *config.Configuration) error {
	empty, err := metadata.NewProvider(metadata.Snapshot{}, nil)
	if err != nil {
		return err
	}
	set, err := buildAnalyzers(cfg, empty, nil, nil)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, an := range set.all() {
		fmt.Fprintf(tw, "%s\t%s\n", an.Name(), an.Description())
	}
	return tw.Flush()
}
