package auditor

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"orm-check/internal/model"
	"orm-check/internal/parser"
	"orm-check/internal/suggestion"

	"github.com/pingcap/tidb/parser/ast"
	"github.com/pingcap/tidb/parser/format"
	"github.com/pingcap/tidb/parser/opcode"
	"github.com/pingcap/tidb/parser/test_driver"
)

// DivisionByZeroAnalyzer reports divisions whose divisor may be zero: any
// divisor that is not a non-zero literal or wrapped in NULLIF.
type DivisionByZeroAnalyzer struct {
	suggestions *suggestion.Factory
	logger      *slog.Logger
}

func NewDivisionByZeroAnalyzer(opts ...Option) *DivisionByZeroAnalyzer {
	s := applyOptions(opts)
	return &DivisionByZeroAnalyzer{suggestions: s.suggestions, logger: s.logger}
}

func (r *DivisionByZeroAnalyzer) Name() string { return "division_by_zero" }

func (r *DivisionByZeroAnalyzer) Description() string {
	return "Detects unguarded divisions that can fail or return NULL on a zero divisor (data integrity)"
}

// unsafeDivision is one divisor found by divisionVisitor.
type unsafeDivision struct {
	operator string
	divisor  string
	literal  bool
}

func (r *DivisionByZeroAnalyzer) Analyze(queries model.QueryCollection) model.IssueCollection {
	return model.NewIssueCollection(func(yield func(model.Issue) bool) {
		p := parser.NewSQLParser()
		reported := make(map[string]bool)

		for _, q := range queries.All() {
			if !strings.ContainsAny(q.SQL, "/%") && !containsWord(q.SQL, "DIV") && !containsWord(q.SQL, "MOD") {
				continue
			}
			stmt, err := p.Parse(q.SQL)
			if err != nil {
				r.logger.Debug("query not parseable, skipping", "analyzer", r.Name(), "error", err)
				continue
			}
			v := &divisionVisitor{}
			stmt.Accept(v)
			if len(v.found) == 0 {
				continue
			}
			shape := parser.Shape(q.SQL)
			if reported[shape] {
				continue
			}
			reported[shape] = true
			if !yield(r.issue(q, v.found)) {
				return
			}
		}
	})
}

func (r *DivisionByZeroAnalyzer) issue(q model.QueryRecord, found []unsafeDivision) model.Issue {
	severity := model.SeverityWarning
	divisors := make([]string, 0, len(found))
	for _, d := range found {
		if d.literal {
			severity = model.SeverityCritical
		}
		divisors = append(divisors, d.divisor)
	}
	title := "Unguarded Division"
	if severity == model.SeverityCritical {
		title = "Division by Literal Zero"
	}

	return model.Issue{
		Type:        "division_by_zero",
		Category:    model.CategoryIntegrity,
		Severity:    severity,
		Title:       title,
		Description: fmt.Sprintf("Query divides by %s without a NULLIF guard. A zero divisor raises an error in strict mode or silently yields NULL.", strings.Join(divisors, ", ")),
		Data: map[string]any{
			"operator": found[0].operator,
			"divisors": divisors,
			"query":    parser.Truncate(q.SQL, queryPreviewLength),
		},
		Suggestion: r.suggestions.ForCodeRef(suggestion.CodeGuardDivision, nil),
		Backtrace:  q.Backtrace,
		Queries:    model.CapQueries([]model.QueryRecord{q}),
	}
}

type divisionVisitor struct {
	found []unsafeDivision
}

func (v *divisionVisitor) Enter(in ast.Node) (ast.Node, bool) {
	bin, ok := in.(*ast.BinaryOperationExpr)
	if !ok {
		return in, false
	}
	switch bin.Op {
	case opcode.Div, opcode.IntDiv, opcode.Mod:
	default:
		return in, false
	}

	divisor := unwrapParens(bin.R)
	switch d := divisor.(type) {
	case *test_driver.ValueExpr:
		if !isZero(d) {
			return in, false
		}
		v.found = append(v.found, unsafeDivision{operator: bin.Op.String(), divisor: "0", literal: true})
	case *ast.FuncCallExpr:
		if d.FnName.L == "nullif" {
			return in, false
		}
		v.found = append(v.found, unsafeDivision{operator: bin.Op.String(), divisor: restore(divisor)})
	default:
		v.found = append(v.found, unsafeDivision{operator: bin.Op.String(), divisor: restore(divisor)})
	}
	return in, false
}

func (v *divisionVisitor) Leave(in ast.Node) (ast.Node, bool) {
	return in, true
}

func unwrapParens(e ast.ExprNode) ast.ExprNode {
	for {
		p, ok := e.(*ast.ParenthesesExpr)
		if !ok {
			return e
		}
		e = p.Expr
	}
}

func isZero(v *test_driver.ValueExpr) bool {
	switch n := v.GetValue().(type) {
	case int64:
		return n == 0
	case uint64:
		return n == 0
	case float64:
		return n == 0
	case *test_driver.MyDecimal:
		f, err := strconv.ParseFloat(n.String(), 64)
		return err == nil && f == 0
	case string:
		return strings.TrimSpace(n) == "0"
	case nil:
		// dividing by NULL yields NULL, not an error
		return false
	}
	return false
}

// restore renders an expression back to SQL for messages.
func restore(e ast.ExprNode) string {
	var b strings.Builder
	if err := e.Restore(format.NewRestoreCtx(format.DefaultRestoreFlags, &b)); err != nil {
		return "?"
	}
	return b.String()
}

func containsWord(sql, word string) bool {
	upper := strings.ToUpper(sql)
	for i := strings.Index(upper, word); i >= 0; {
		end := i + len(word)
		if (i == 0 || !isIdentByte(upper[i-1])) && (end == len(upper) || !isIdentByte(upper[end])) {
			return true
		}
		next := strings.Index(upper[end:], word)
		if next < 0 {
			return false
		}
		i = end + next
	}
	return false
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}
