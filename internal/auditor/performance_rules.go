package auditor

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"orm-check/internal/model"
	"orm-check/internal/parser"
	"orm-check/internal/suggestion"

	"github.com/pingcap/tidb/parser/ast"
)

const (
	DefaultSlowQueryThresholdMs = 100.0
	maxSlowQueryThresholdMs     = 100000.0
	DefaultFindAllRowThreshold  = 100
	maxFindAllRowThreshold      = 10_000_000
	// criticalFactor scales a threshold into the critical band.
	criticalFactor = 10
)

// SlowQueryAnalyzer reports queries whose execution time exceeds a
// threshold. Repeats of one query shape produce a single issue for the
// slowest occurrence.
type SlowQueryAnalyzer struct {
	thresholdMs float64
	schema      *model.SchemaCtx
	suggestions *suggestion.Factory
	logger      *slog.Logger
}

func NewSlowQueryAnalyzer(thresholdMs float64, opts ...Option) (*SlowQueryAnalyzer, error) {
	if thresholdMs <= 0 || thresholdMs > maxSlowQueryThresholdMs {
		return nil, fmt.Errorf("%w: slow query threshold must be in (0, %g] ms, got %g", model.ErrInvalidConfig, maxSlowQueryThresholdMs, thresholdMs)
	}
	s := applyOptions(opts)
	return &SlowQueryAnalyzer{
		thresholdMs: thresholdMs,
		schema:      s.schema,
		suggestions: s.suggestions,
		logger:      s.logger,
	}, nil
}

func (r *SlowQueryAnalyzer) Name() string { return "slow_query" }

func (r *SlowQueryAnalyzer) Description() string {
	return "Detects slow queries that exceed the execution time threshold (performance)"
}

func (r *SlowQueryAnalyzer) Analyze(queries model.QueryCollection) model.IssueCollection {
	return model.NewIssueCollection(func(yield func(model.Issue) bool) {
		var order []string
		slowest := make(map[string]model.QueryRecord)
		seen := make(map[string]int)

		for _, q := range queries.SlowerThan(r.thresholdMs).All() {
			shape := parser.Shape(q.SQL)
			prev, ok := slowest[shape]
			if !ok {
				order = append(order, shape)
			}
			seen[shape]++
			if !ok || q.ExecutionTimeMs > prev.ExecutionTimeMs {
				slowest[shape] = q
			}
		}

		p := parser.NewSQLParser()
		for _, shape := range order {
			if !yield(r.issue(p, slowest[shape], seen[shape])) {
				return
			}
		}
	})
}

func (r *SlowQueryAnalyzer) issue(p *parser.SQLParser, q model.QueryRecord, occurrences int) model.Issue {
	severity := model.SeverityWarning
	if q.ExecutionTimeMs > r.thresholdMs*criticalFactor {
		severity = model.SeverityCritical
	}
	elapsed := strconv.FormatFloat(q.ExecutionTimeMs, 'f', 2, 64)

	data := map[string]any{
		"execution_time": q.ExecutionTimeMs,
		"threshold":      r.thresholdMs,
		"query":          parser.Truncate(q.SQL, queryPreviewLength),
		"occurrences":    occurrences,
	}
	desc := fmt.Sprintf("Query took %sms, above the %gms threshold.", elapsed, r.thresholdMs)
	if miss, ok := r.indexMiss(p, q.SQL); ok {
		data["index_miss"] = miss
		desc += fmt.Sprintf(" Its WHERE clause on %s (%v) does not start with the leading column of any index.", miss.Table, miss.Columns)
	}

	return model.Issue{
		Type:        "slow_query",
		Category:    model.CategoryPerformance,
		Severity:    severity,
		Title:       fmt.Sprintf("Slow Query: %sms", elapsed),
		Description: desc,
		Data:        data,
		Suggestion: r.suggestions.ForCodeRef(suggestion.CodeIndexSlowQuery, map[string]string{
			"execution_time": elapsed,
			"query":          parser.Truncate(q.SQL, queryPreviewLength),
		}),
		Backtrace: q.Backtrace,
		Queries:   model.CapQueries([]model.QueryRecord{q}),
	}
}

// IndexMiss names the filtered columns of a query none of whose indexes
// can serve as a leftmost prefix.
type IndexMiss struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

func (r *SlowQueryAnalyzer) indexMiss(p *parser.SQLParser, sql string) (IndexMiss, bool) {
	if r.schema == nil {
		return IndexMiss{}, false
	}
	stmt, err := p.Parse(sql)
	if err != nil {
		r.logger.Debug("slow query not parseable, skipping index check", "error", err)
		return IndexMiss{}, false
	}

	var (
		tableName string
		where     ast.ExprNode
	)
	switch s := stmt.(type) {
	case *ast.SelectStmt:
		where = s.Where
		if tables := parser.ExtractTableNames(s); len(tables) > 0 {
			tableName = tables[0]
		}
	case *ast.UpdateStmt:
		where = s.Where
		if tables := parser.ExtractTableNames(s); len(tables) > 0 {
			tableName = tables[0]
		}
	case *ast.DeleteStmt:
		where = s.Where
		if tables := parser.ExtractTableNames(s); len(tables) > 0 {
			tableName = tables[0]
		}
	}
	if tableName == "" || where == nil {
		return IndexMiss{}, false
	}
	table, ok := r.schema.Tables[tableName]
	if !ok {
		return IndexMiss{}, false
	}

	used := make(map[string]bool)
	where.Accept(&columnVisitor{cols: used})
	if len(used) == 0 {
		return IndexMiss{}, false
	}
	for _, idx := range table.Indexes {
		if len(idx.Columns) > 0 && used[idx.Columns[0]] {
			return IndexMiss{}, false
		}
	}

	cols := make([]string, 0, len(used))
	for c := range used {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return IndexMiss{Table: tableName, Columns: cols}, true
}

type columnVisitor struct {
	cols map[string]bool
}

func (v *columnVisitor) Enter(in ast.Node) (ast.Node, bool) {
	if col, ok := in.(*ast.ColumnName); ok {
		v.cols[col.Name.O] = true
	}
	return in, false
}

func (v *columnVisitor) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}

// FindAllWithoutLimitAnalyzer reports SELECTs that read a whole table:
// no WHERE, no LIMIT, no GROUP BY.
type FindAllWithoutLimitAnalyzer struct {
	rowThreshold int
	suggestions  *suggestion.Factory
	logger       *slog.Logger
}

func NewFindAllWithoutLimitAnalyzer(rowThreshold int, opts ...Option) (*FindAllWithoutLimitAnalyzer, error) {
	if rowThreshold < 1 || rowThreshold > maxFindAllRowThreshold {
		return nil, fmt.Errorf("%w: find-all row threshold must be in [1, %d], got %d", model.ErrInvalidConfig, maxFindAllRowThreshold, rowThreshold)
	}
	s := applyOptions(opts)
	return &FindAllWithoutLimitAnalyzer{
		rowThreshold: rowThreshold,
		suggestions:  s.suggestions,
		logger:       s.logger,
	}, nil
}

func (r *FindAllWithoutLimitAnalyzer) Name() string { return "find_all_without_limit" }

func (r *FindAllWithoutLimitAnalyzer) Description() string {
	return "Detects unbounded full-table reads without WHERE or LIMIT (performance and memory)"
}

func (r *FindAllWithoutLimitAnalyzer) Analyze(queries model.QueryCollection) model.IssueCollection {
	return model.NewIssueCollection(func(yield func(model.Issue) bool) {
		p := parser.NewSQLParser()
		reported := make(map[string]bool)

		for _, q := range queries.All() {
			if !parser.IsSelect(q.SQL) {
				continue
			}
			if q.RowCount != nil && *q.RowCount < r.rowThreshold {
				continue
			}
			stmt, err := p.Parse(q.SQL)
			if err != nil {
				r.logger.Debug("query not parseable, skipping", "analyzer", r.Name(), "error", err)
				continue
			}
			table, ok := parser.FullTableRead(stmt)
			if !ok {
				continue
			}
			shape := parser.Shape(q.SQL)
			if reported[shape] {
				continue
			}
			reported[shape] = true
			if !yield(r.issue(q, table)) {
				return
			}
		}
	})
}

func (r *FindAllWithoutLimitAnalyzer) issue(q model.QueryRecord, table string) model.Issue {
	severity := model.SeverityWarning
	data := map[string]any{
		"table": table,
		"query": parser.Truncate(q.SQL, queryPreviewLength),
	}
	desc := fmt.Sprintf("Query loads every row of %q without WHERE or LIMIT. Memory use grows with the table.", table)
	if q.RowCount != nil {
		data["row_count"] = *q.RowCount
		desc = fmt.Sprintf("Query loaded %d rows of %q without WHERE or LIMIT.", *q.RowCount, table)
		if *q.RowCount > r.rowThreshold*criticalFactor {
			severity = model.SeverityCritical
		}
	}

	return model.Issue{
		Type:        "find_all_without_limit",
		Category:    model.CategoryPerformance,
		Severity:    severity,
		Title:       "Unbounded Query on " + table,
		Description: desc,
		Data:        data,
		Suggestion:  r.suggestions.ForCodeRef(suggestion.CodePaginateFindAll, map[string]string{"table": table}),
		Backtrace:   q.Backtrace,
		Queries:     model.CapQueries([]model.QueryRecord{q}),
	}
}
