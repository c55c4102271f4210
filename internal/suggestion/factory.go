// Package suggestion builds remediation suggestions with consistent metadata.
// Analyzers never construct model.Suggestion directly.
package suggestion

import (
	"sort"
	"strings"

	"orm-check/internal/model"
)

// Template is the fixed configuration behind one suggestion code.
// Placeholders in Description and Snippet use the {{name}} form.
type Template struct {
	Description string
	Snippet     string
	Severity    model.Severity
	Category    model.Category
	Tags        []string
}

// Codes understood by DefaultTemplates
const (
	CodeSplitQuery       = "joins.split_query"
	CodeSelectColumns    = "joins.select_needed_columns"
	CodeRemoveUnusedJoin = "joins.remove_unused"
	CodeFetchJoin        = "lazy_loading.fetch_join"
	CodeExplicitCascade  = "cascade.explicit_set"
	CodeEnableOrphans    = "cascade.enable_orphan_removal"
	CodeAddCascadeRemove = "cascade.add_remove"
	CodeIndexSlowQuery   = "slow_query.optimize"
	CodeGuardDivision    = "division.nullif"
	CodePaginateFindAll  = "find_all.paginate"
)

const (
	defaultCategory = model.CategoryGeneral
	defaultSeverity = model.SeverityInfo
)

// DefaultTemplates returns a fresh copy of the built-in template table.
func DefaultTemplates() map[string]Template {
	return map[string]Template{
		CodeSplitQuery: {
			Description: "Query joins {{join_count}} tables. Split it into smaller queries or load secondary data separately.",
			Snippet:     "-- load the root rows first\nSELECT o.* FROM orders o WHERE ...;\n-- then fetch related rows in one batched query\nSELECT i.* FROM items i WHERE i.order_id IN (...);",
			Severity:    model.SeverityWarning,
			Category:    model.CategoryPerformance,
			Tags:        []string{"joins", "query-design"},
		},
		CodeSelectColumns: {
			Description: "Select only the columns you need from the joined tables.",
			Snippet:     "SELECT o.id, o.total, c.name FROM orders o INNER JOIN customers c ON c.id = o.customer_id",
			Severity:    model.SeverityInfo,
			Category:    model.CategoryPerformance,
			Tags:        []string{"joins", "projection"},
		},
		CodeRemoveUnusedJoin: {
			Description: "Table {{table}} is joined as {{alias}} but none of its columns are used. Remove the JOIN.",
			Snippet:     "-- before\n... JOIN {{table}} {{alias}} ON ...\n-- after\n(remove the JOIN)",
			Severity:    model.SeverityWarning,
			Category:    model.CategoryPerformance,
			Tags:        []string{"joins", "dead-code"},
		},
		CodeFetchJoin: {
			Description: "Load {{entity}} rows with the parent query using a fetch join or a batched IN query instead of one query per row.",
			Snippet:     "SELECT p, r FROM Parent p LEFT JOIN p.{{relation}} r\n-- or\nSELECT * FROM {{table}} WHERE id IN (?, ?, ...)",
			Severity:    model.SeverityWarning,
			Category:    model.CategoryPerformance,
			Tags:        []string{"n+1", "lazy-loading"},
		},
		CodeExplicitCascade: {
			Description: "Replace cascade=all on {{entity}}::{{field}} with an explicit set of operations.",
			Snippet:     "cascade: [{{recommended}}]",
			Severity:    model.SeverityWarning,
			Category:    model.CategoryConfiguration,
			Tags:        []string{"cascade", "data-safety"},
		},
		CodeEnableOrphans: {
			Description: "{{target_entity}} looks like a composition child of {{entity}}. Enable orphan removal on {{field}}.",
			Snippet:     "orphan_removal: true\ncascade: [persist, remove]",
			Severity:    model.SeverityWarning,
			Category:    model.CategoryIntegrity,
			Tags:        []string{"cascade", "orphan-removal"},
		},
		CodeAddCascadeRemove: {
			Description: "{{entity}}::{{field}} removes orphans but does not cascade remove. Make the intent explicit.",
			Snippet:     "orphan_removal: true\ncascade: [persist, remove]",
			Severity:    model.SeverityWarning,
			Category:    model.CategoryConfiguration,
			Tags:        []string{"cascade", "orphan-removal"},
		},
		CodeIndexSlowQuery: {
			Description: "Query took {{execution_time}}ms. Check its execution plan and add an index on the filtered columns.",
			Snippet:     "EXPLAIN {{query}}",
			Severity:    model.SeverityWarning,
			Category:    model.CategoryPerformance,
			Tags:        []string{"slow-query", "index"},
		},
		CodeGuardDivision: {
			Description: "Guard the divisor with NULLIF so a zero value yields NULL instead of an error.",
			Snippet:     "SELECT total / NULLIF(quantity, 0) FROM ...",
			Severity:    model.SeverityWarning,
			Category:    model.CategoryIntegrity,
			Tags:        []string{"division", "runtime-error"},
		},
		CodePaginateFindAll: {
			Description: "Query reads the whole {{table}} table. Add a WHERE clause or paginate with LIMIT.",
			Snippet:     "SELECT ... FROM {{table}} ORDER BY id LIMIT 100 OFFSET 0",
			Severity:    model.SeverityWarning,
			Category:    model.CategoryPerformance,
			Tags:        []string{"pagination", "memory"},
		},
	}
}

// Factory creates suggestions from an immutable template table.
type Factory struct {
	templates map[string]Template
}

// NewFactory copies templates; nil means DefaultTemplates.
func NewFactory(templates map[string]Template) *Factory {
	if templates == nil {
		templates = DefaultTemplates()
	}
	cp := make(map[string]Template, len(templates))
	for k, t := range templates {
		t.Tags = append([]string(nil), t.Tags...)
		cp[k] = t
	}
	return &Factory{templates: cp}
}

// Create builds a suggestion, filling in any missing metadata.
func (f *Factory) Create(code, description string, severity model.Severity, category model.Category, tags ...string) model.Suggestion {
	if severity.Rank() == 0 {
		severity = defaultSeverity
	}
	if category == "" {
		category = defaultCategory
	}
	t := make([]string, 0, len(tags))
	t = append(t, tags...)
	return model.Suggestion{
		Code:        code,
		Description: description,
		Metadata: model.SuggestionMetadata{
			Severity: severity,
			Category: category,
			Tags:     t,
		},
	}
}

// ForCode renders the template registered under key. Unknown keys still
// yield a usable suggestion so a missing template never drops an issue.
func (f *Factory) ForCode(key string, vars map[string]string) model.Suggestion {
	t, ok := f.templates[key]
	if !ok {
		return f.Create("", key, defaultSeverity, defaultCategory, key)
	}
	r := replacer(vars)
	return f.Create(r.Replace(t.Snippet), r.Replace(t.Description), t.Severity, t.Category, t.Tags...)
}

// ForCodeRef is ForCode returning a pointer, for embedding in an Issue.
func (f *Factory) ForCodeRef(key string, vars map[string]string) *model.Suggestion {
	s := f.ForCode(key, vars)
	return &s
}

// Codes lists the registered codes in sorted order.
func (f *Factory) Codes() []string {
	out := make([]string, 0, len(f.templates))
	for k := range f.templates {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func replacer(vars map[string]string) *strings.Replacer {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...)
}
