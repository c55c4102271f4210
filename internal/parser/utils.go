package parser

import (
	"strings"

	"github.com/pingcap/tidb/parser/ast"
	"github.com/pingcap/tidb/parser/opcode"
	"github.com/pingcap/tidb/parser/test_driver"
)

// ExtractTableNames extracts all table names mentioned in a SQL statement.
// Currently supports Select, Update, Delete and Insert statements.
func ExtractTableNames(node ast.StmtNode) []string {
	var tables []string

	switch stmt := node.(type) {
	case *ast.SelectStmt:
		if stmt.From != nil {
			extractTableRefs(stmt.From.TableRefs, &tables)
		}
	case *ast.UpdateStmt:
		if stmt.TableRefs != nil && stmt.TableRefs.TableRefs != nil {
			extractTableRefs(stmt.TableRefs.TableRefs, &tables)
		}
	case *ast.DeleteStmt:
		if stmt.TableRefs != nil && stmt.TableRefs.TableRefs != nil {
			extractTableRefs(stmt.TableRefs.TableRefs, &tables)
		}
	case *ast.InsertStmt:
		if stmt.Table != nil {
			extractTableRefs(stmt.Table.TableRefs, &tables)
		}
	}

	return tables
}

func extractTableRefs(join *ast.Join, tables *[]string) {
	if join == nil {
		return
	}

	if join.Left != nil {
		extractTableSource(join.Left, tables)
	}
	if join.Right != nil {
		extractTableSource(join.Right, tables)
	}
}

func extractTableSource(r ast.ResultSetNode, tables *[]string) {
	if ts, ok := r.(*ast.TableSource); ok {
		if tn, ok := ts.Source.(*ast.TableName); ok {
			*tables = append(*tables, tn.Name.O)
		}
	} else if join, ok := r.(*ast.Join); ok {
		extractTableRefs(join, tables)
	}
}

// singleTable returns the table and alias of a FROM clause that names
// exactly one base table.
func singleTable(from *ast.TableRefsClause) (table, alias string, ok bool) {
	if from == nil || from.TableRefs == nil || from.TableRefs.Right != nil {
		return "", "", false
	}
	ts, isSource := from.TableRefs.Left.(*ast.TableSource)
	if !isSource {
		return "", "", false
	}
	tn, isName := ts.Source.(*ast.TableName)
	if !isName {
		return "", "", false
	}
	return tn.Name.O, ts.AsName.O, true
}

// PrimaryKeyLookup reports whether stmt is a single-row fetch of the form
// SELECT ... FROM <table> [alias] WHERE [<table|alias>.]id = <value>,
// returning the table name.
func PrimaryKeyLookup(node ast.StmtNode) (string, bool) {
	stmt, ok := node.(*ast.SelectStmt)
	if !ok || stmt.Where == nil {
		return "", false
	}
	table, alias, ok := singleTable(stmt.From)
	if !ok {
		return "", false
	}

	where := stmt.Where
	if p, isParen := where.(*ast.ParenthesesExpr); isParen {
		where = p.Expr
	}
	bin, ok := where.(*ast.BinaryOperationExpr)
	if !ok || bin.Op != opcode.EQ {
		return "", false
	}

	col, val := bin.L, bin.R
	if _, isCol := col.(*ast.ColumnNameExpr); !isCol {
		col, val = bin.R, bin.L
	}
	cn, ok := col.(*ast.ColumnNameExpr)
	if !ok || !isValue(val) {
		return "", false
	}
	if !strings.EqualFold(cn.Name.Name.O, "id") {
		return "", false
	}
	qualifier := cn.Name.Table.O
	if qualifier != "" && !strings.EqualFold(qualifier, table) && !strings.EqualFold(qualifier, alias) {
		return "", false
	}
	return table, true
}

func isValue(e ast.ExprNode) bool {
	switch e.(type) {
	case *test_driver.ValueExpr, *test_driver.ParamMarkerExpr:
		return true
	}
	return false
}

// FullTableRead reports the table read by a SELECT that has a FROM clause
// but neither WHERE nor LIMIT, and is not an aggregate-only projection.
func FullTableRead(node ast.StmtNode) (string, bool) {
	stmt, ok := node.(*ast.SelectStmt)
	if !ok || stmt.From == nil || stmt.Where != nil || stmt.Limit != nil || stmt.GroupBy != nil {
		return "", false
	}
	tables := ExtractTableNames(stmt)
	if len(tables) == 0 {
		return "", false
	}
	if stmt.Fields != nil && len(stmt.Fields.Fields) > 0 {
		aggregateOnly := true
		for _, f := range stmt.Fields.Fields {
			if _, isAgg := f.Expr.(*ast.AggregateFuncExpr); !isAgg {
				aggregateOnly = false
				break
			}
		}
		if aggregateOnly {
			return "", false
		}
	}
	return tables[0], true
}
