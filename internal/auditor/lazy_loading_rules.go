package auditor

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"orm-check/internal/model"
	"orm-check/internal/parser"
	"orm-check/internal/suggestion"
)

const (
	DefaultLazyLoadingThreshold = 10
	DefaultMaxMeanGap           = 5.0
	maxLazyLoadingThreshold     = 10000
	maxMeanGapLimit             = 1000.0
)

var getterFrame = regexp.MustCompile(`^get([A-Z]\w*)$`)

// getters that belong to the ORM or query layer rather than an entity relation
var infrastructureGetters = map[string]bool{
	"getResult": true, "getSingleResult": true, "getOneOrNullResult": true, "getArrayResult": true,
	"getScalarResult": true, "getRepository": true, "getReference": true, "getConnection": true,
	"getEntityManager": true, "getQuery": true, "getIterator": true, "getValues": true,
	"getSnapshot": true, "getUnitOfWork": true, "getClassMetadata": true,
}

// LazyLoadingAnalyzer detects N+1 storms: more than threshold single-row
// primary-key fetches against one table whose mean positional gap stays
// within maxMeanGap.
type LazyLoadingAnalyzer struct {
	threshold   int
	maxMeanGap  float64
	prefixes    []string
	suggestions *suggestion.Factory
	logger      *slog.Logger
}

func NewLazyLoadingAnalyzer(threshold int, opts ...Option) (*LazyLoadingAnalyzer, error) {
	s := applyOptions(opts)
	if threshold < 2 || threshold > maxLazyLoadingThreshold {
		return nil, fmt.Errorf("%w: lazy loading threshold must be in [2, %d], got %d", model.ErrInvalidConfig, maxLazyLoadingThreshold, threshold)
	}
	if s.maxMeanGap <= 0 || s.maxMeanGap > maxMeanGapLimit {
		return nil, fmt.Errorf("%w: max mean gap must be in (0, %g], got %g", model.ErrInvalidConfig, maxMeanGapLimit, s.maxMeanGap)
	}
	return &LazyLoadingAnalyzer{
		threshold:   threshold,
		maxMeanGap:  s.maxMeanGap,
		prefixes:    s.tablePrefixes,
		suggestions: s.suggestions,
		logger:      s.logger,
	}, nil
}

func (r *LazyLoadingAnalyzer) Name() string { return "lazy_loading" }

func (r *LazyLoadingAnalyzer) Description() string {
	return "Detects lazy loading (N+1) performance problems: sequences of single-row fetches by primary key against the same table"
}

// tableMatches holds every primary-key fetch of one table, in execution order.
type tableMatches struct {
	table     string
	positions []int
	records   []model.QueryRecord
}

func (r *LazyLoadingAnalyzer) Analyze(queries model.QueryCollection) model.IssueCollection {
	return model.NewIssueCollection(func(yield func(model.Issue) bool) {
		p := parser.NewSQLParser()
		var order []string
		byTable := make(map[string]*tableMatches)

		for i, q := range queries.All() {
			table, ok := r.fingerprint(p, q.SQL)
			if !ok {
				continue
			}
			key := strings.ToLower(table)
			m, seen := byTable[key]
			if !seen {
				m = &tableMatches{table: table}
				byTable[key] = m
				order = append(order, key)
			}
			m.positions = append(m.positions, i)
			m.records = append(m.records, q)
		}

		for _, key := range order {
			m := byTable[key]
			count, meanGap := len(m.positions), averageGap(m.positions)
			if meanGap > r.maxMeanGap {
				r.logger.Debug("lazy loading candidate too sparse",
					"table", m.table, "matches", count, "mean_gap", meanGap)
				continue
			}
			if count <= r.threshold {
				r.logger.Debug("lazy loading candidate below threshold",
					"table", m.table, "matches", count)
				continue
			}
			if !yield(r.issue(m.table, count, meanGap, m.records)) {
				return
			}
		}
	})
}

// fingerprint returns the table of a single-row primary-key fetch. SQL the
// TiDB grammar rejects or misreads (it takes $1 for an identifier) gets a
// lexical second chance.
func (r *LazyLoadingAnalyzer) fingerprint(p *parser.SQLParser, sql string) (string, bool) {
	if !parser.IsSelect(sql) {
		return "", false
	}
	if stmt, err := p.Parse(sql); err == nil {
		if table, ok := parser.PrimaryKeyLookup(stmt); ok {
			return table, true
		}
	}
	return parser.LexicalPrimaryKeyLookup(sql)
}

// averageGap is the mean distance between consecutive positions, 0 for
// fewer than two.
func averageGap(positions []int) float64 {
	n := len(positions)
	if n < 2 {
		return 0
	}
	return float64(positions[n-1]-positions[0]) / float64(n-1)
}

func (r *LazyLoadingAnalyzer) issue(table string, count int, meanGap float64, records []model.QueryRecord) model.Issue {
	entity := EntityName(table, r.prefixes)
	relation, frame, found := relationFromBacktrace(records)

	desc := fmt.Sprintf("%d single-row fetches by primary key on table %q (entity %s) ran in a tight sequence, "+
		"which is the signature of lazy loading (N+1 queries).", count, table, entity)
	data := map[string]any{
		"table":       table,
		"entity":      entity,
		"query_count": count,
		"mean_gap":    meanGap,
	}
	relationVar := strings.ToLower(entity[:1]) + entity[1:]
	if found {
		desc += fmt.Sprintf(" Likely trigger: %s() loading the %q relation.", frameName(frame), relation)
		data["relation"] = relation
		relationVar = relation
	}

	var backtrace []model.Frame
	if len(records) > 0 {
		backtrace = records[0].Backtrace
	}

	return model.Issue{
		Type:        "lazy_loading",
		Category:    model.CategoryPerformance,
		Severity:    model.SeverityWarning,
		Title:       fmt.Sprintf("Lazy Loading Detected: %d queries", count),
		Description: desc,
		Data:        data,
		Suggestion: r.suggestions.ForCodeRef(suggestion.CodeFetchJoin, map[string]string{
			"entity":   entity,
			"table":    table,
			"relation": relationVar,
		}),
		Backtrace: backtrace,
		Queries:   model.CapQueries(records),
	}
}

// EntityName derives an upper-camel entity name from a table name after
// dropping a schema qualifier and the first matching prefix.
func EntityName(table string, prefixes []string) string {
	name := table
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	lower := strings.ToLower(name)
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(lower, strings.ToLower(p)) && len(name) > len(p) {
			name = name[len(p):]
			break
		}
	}

	var b strings.Builder
	for _, part := range strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == ' ' }) {
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	if b.Len() == 0 {
		return table
	}
	return b.String()
}

func relationFromBacktrace(records []model.QueryRecord) (string, model.Frame, bool) {
	for _, rec := range records {
		for _, f := range rec.Backtrace {
			m := getterFrame.FindStringSubmatch(f.Function)
			if m == nil || infrastructureGetters[f.Function] {
				continue
			}
			return strings.ToLower(m[1][:1]) + m[1][1:], f, true
		}
	}
	return "", model.Frame{}, false
}

func frameName(f model.Frame) string {
	if f.Class != "" {
		return f.Class + "::" + f.Function
	}
	return f.Function
}
