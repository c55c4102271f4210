package parser

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"orm-check/internal/model"

	"github.com/pingcap/tidb/parser"
	"github.com/pingcap/tidb/parser/ast"
	_ "github.com/pingcap/tidb/parser/test_driver"
)

// ErrEmptySQL is returned for blank input.
var ErrEmptySQL = errors.New("empty SQL")

// SQLParser wraps the TiDB parser
type SQLParser struct {
	p *parser.Parser
}

func NewSQLParser() *SQLParser {
	return &SQLParser{
		p: parser.New(),
	}
}

// Parse converts a SQL string into an AST. Only the first statement is
// returned. The TiDB parser is not safe for concurrent use, so callers
// running in parallel need one SQLParser each.
func (sp *SQLParser) Parse(sql string) (ast.StmtNode, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, ErrEmptySQL
	}
	stmtNodes, _, err := sp.p.Parse(sql, "", "")
	if err != nil {
		return nil, err
	}
	if len(stmtNodes) == 0 {
		return nil, fmt.Errorf("no valid SQL found")
	}
	return stmtNodes[0], nil
}

// LoadSchema reads a SQL file and populates the SchemaCtx
func (sp *SQLParser) LoadSchema(path string) (*model.SchemaCtx, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return sp.ParseSchema(string(content))
}

// ParseSchema builds a SchemaCtx from CREATE TABLE statements; other
// statements are ignored.
func (sp *SQLParser) ParseSchema(ddl string) (*model.SchemaCtx, error) {
	schema := &model.SchemaCtx{
		Tables: make(map[string]*model.Table),
	}

	stmts, _, err := sp.p.Parse(ddl, "", "")
	if err != nil {
		return nil, fmt.Errorf("schema parse error: %w", err)
	}

	for _, stmt := range stmts {
		if createTable, ok := stmt.(*ast.CreateTableStmt); ok {
			table := parseCreateTable(createTable)
			schema.Tables[table.Name] = table
		}
	}

	return schema, nil
}

func parseCreateTable(node *ast.CreateTableStmt) *model.Table {
	t := &model.Table{
		Name:    node.Table.Name.O,
		Columns: make(map[string]*model.Column),
		Indexes: make([]*model.Index, 0),
	}

	// 1. Columns; a primary key column is implicitly NOT NULL
	for _, col := range node.Cols {
		c := &model.Column{
			Name: col.Name.Name.O,
			Type: col.Tp.String(),
		}
		for _, opt := range col.Options {
			switch opt.Tp {
			case ast.ColumnOptionNotNull, ast.ColumnOptionPrimaryKey:
				c.NotNull = true
			}
			if opt.Tp == ast.ColumnOptionPrimaryKey && !hasPrimary(t) {
				t.Indexes = append(t.Indexes, &model.Index{Name: "PRIMARY", Unique: true, Columns: []string{c.Name}})
			}
		}
		t.Columns[c.Name] = c
	}

	// 2. Table constraints
	for _, cons := range node.Constraints {
		switch cons.Tp {
		case ast.ConstraintPrimaryKey, ast.ConstraintKey, ast.ConstraintIndex, ast.ConstraintUniq:
			idx := &model.Index{
				Name:    cons.Name,
				Unique:  cons.Tp == ast.ConstraintPrimaryKey || cons.Tp == ast.ConstraintUniq,
				Columns: make([]string, 0),
			}
			if cons.Tp == ast.ConstraintPrimaryKey {
				if hasPrimary(t) {
					continue
				}
				if idx.Name == "" {
					idx.Name = "PRIMARY"
				}
			}
			for _, keyCol := range cons.Keys {
				if keyCol.Column == nil {
					continue
				}
				idx.Columns = append(idx.Columns, keyCol.Column.Name.O)
				if cons.Tp == ast.ConstraintPrimaryKey {
					if c, ok := t.Columns[keyCol.Column.Name.O]; ok {
						c.NotNull = true
					}
				}
			}
			t.Indexes = append(t.Indexes, idx)
		}
	}

	return t
}

func hasPrimary(t *model.Table) bool {
	for _, idx := range t.Indexes {
		if idx.Name == "PRIMARY" {
			return true
		}
	}
	return false
}
