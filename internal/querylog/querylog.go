// Package querylog decodes captured query executions into model.QueryRecord
// slices. Every decoder preserves execution order.
package querylog

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"orm-check/internal/model"

	"github.com/tidwall/gjson"
)

// Manager selects the appropriate decoder based on file extension
type Manager struct {
	decoders map[string]model.QueryDecoder
	fallback model.QueryDecoder
}

func NewManager() *Manager {
	return &Manager{
		decoders: make(map[string]model.QueryDecoder),
		fallback: NewTextDecoder(),
	}
}

// NewDefaultManager registers the built-in decoders. arrayPath is the gjson
// path to the query array inside JSON logs; empty means the document root.
func NewDefaultManager(arrayPath string) *Manager {
	m := NewManager()
	js := NewJSONDecoder(arrayPath)
	m.Register("json", js)
	m.Register("jsonl", NewJSONLinesDecoder())
	text := NewTextDecoder()
	m.Register("log", text)
	m.Register("txt", text)
	db := NewSQLiteDecoder()
	for _, ext := range []string{"db", "sqlite", "sqlite3"} {
		m.Register(ext, db)
	}
	return m
}

func (m *Manager) Register(ext string, dec model.QueryDecoder) {
	m.decoders[strings.ToLower(strings.TrimPrefix(ext, "."))] = dec
}

// Extensions lists the registered extensions in sorted order.
func (m *Manager) Extensions() []string {
	out := make([]string, 0, len(m.decoders))
	for ext := range m.decoders {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) Decode(filePath string) ([]model.QueryRecord, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filePath), "."))
	dec, ok := m.decoders[ext]
	if !ok {
		dec = m.fallback
	}
	records, err := dec.Decode(filePath)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	return records, nil
}

// field aliases accepted by the JSON-based decoders
var (
	sqlKeys       = []string{"sql", "query", "statement"}
	timeKeys      = []string{"execution_ms", "execution_time_ms", "executionMS", "time_ms", "duration_ms", "time"}
	rowKeys       = []string{"row_count", "rows", "rowCount"}
	backtraceKeys = []string{"backtrace", "trace", "stack"}
)

func firstOf(r gjson.Result, keys []string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

// recordFrom maps one JSON object onto a QueryRecord. Objects without SQL
// text are rejected.
func recordFrom(obj gjson.Result) (model.QueryRecord, bool) {
	sqlText := strings.TrimSpace(firstOf(obj, sqlKeys).String())
	if sqlText == "" {
		return model.QueryRecord{}, false
	}
	rec := model.QueryRecord{
		SQL:             sqlText,
		ExecutionTimeMs: firstOf(obj, timeKeys).Float(),
		Backtrace:       framesFrom(firstOf(obj, backtraceKeys)),
	}
	if rows := firstOf(obj, rowKeys); rows.Exists() && rows.Type == gjson.Number {
		n := int(rows.Int())
		rec.RowCount = &n
	}
	return rec, true
}

func framesFrom(r gjson.Result) []model.Frame {
	if !r.IsArray() {
		return nil
	}
	var frames []model.Frame
	for _, f := range r.Array() {
		frames = append(frames, model.Frame{
			File:     f.Get("file").String(),
			Line:     int(f.Get("line").Int()),
			Function: f.Get("function").String(),
			Class:    f.Get("class").String(),
		})
	}
	return frames
}
