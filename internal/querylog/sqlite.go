package querylog

import (
	"database/sql"
	"fmt"

	"orm-check/internal/model"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"
)

// SQLiteDecoder reads a profiler store: a SQLite database with a queries
// table holding one row per execution.
//
//	CREATE TABLE queries (
//	    position     INTEGER NOT NULL,
//	    sql          TEXT    NOT NULL,
//	    execution_ms REAL    NOT NULL DEFAULT 0,
//	    row_count    INTEGER,
//	    backtrace    TEXT    -- JSON array of {file, line, function, class}
//	);
type SQLiteDecoder struct{}

func NewSQLiteDecoder() *SQLiteDecoder {
	return &SQLiteDecoder{}
}

const selectQueries = `SELECT sql, execution_ms, row_count, backtrace FROM queries ORDER BY position`

func (d *SQLiteDecoder) Decode(filePath string) ([]model.QueryRecord, error) {
	db, err := sql.Open("sqlite3", "file:"+filePath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open profiler store: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(selectQueries)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries table: %w", err)
	}
	defer rows.Close()

	var records []model.QueryRecord
	for rows.Next() {
		var (
			text      string
			ms        float64
			rowCount  sql.NullInt64
			backtrace sql.NullString
		)
		if err := rows.Scan(&text, &ms, &rowCount, &backtrace); err != nil {
			return nil, fmt.Errorf("failed to scan query row: %w", err)
		}
		rec := model.QueryRecord{SQL: text, ExecutionTimeMs: ms}
		if rowCount.Valid {
			n := int(rowCount.Int64)
			rec.RowCount = &n
		}
		if backtrace.Valid && gjson.Valid(backtrace.String) {
			rec.Backtrace = framesFrom(gjson.Parse(backtrace.String))
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
