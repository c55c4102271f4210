package querylog

import (
	"bufio"
	"bytes"
	"os"
	"regexp"
	"strconv"
	"strings"

	"orm-check/internal/model"
)

// maxLineBytes bounds a single log line; long generated queries exceed
// bufio's 64KiB default.
const maxLineBytes = 4 * 1024 * 1024

var (
	// [12.3ms] SELECT ...   or   [12.3 ms] [rows=4] SELECT ...
	timedLine = regexp.MustCompile(`^\s*\[\s*(\d+(?:\.\d+)?)\s*ms\s*\]\s*(?:\[\s*rows\s*=\s*(\d+)\s*\]\s*)?(.+)$`)
	sqlStart  = regexp.MustCompile(`(?i)^\s*(?:\(\s*)*(?:SELECT|INSERT|UPDATE|DELETE|REPLACE|WITH)\b`)
)

// TextDecoder reads plain-text query logs, one statement per line,
// optionally prefixed with the execution time.
type TextDecoder struct{}

func NewTextDecoder() *TextDecoder {
	return &TextDecoder{}
}

func (d *TextDecoder) Decode(filePath string) ([]model.QueryRecord, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var records []model.QueryRecord
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		if m := timedLine.FindStringSubmatch(line); m != nil {
			ms, _ := strconv.ParseFloat(m[1], 64)
			rec := model.QueryRecord{SQL: strings.TrimSpace(m[3]), ExecutionTimeMs: ms}
			if m[2] != "" {
				n, _ := strconv.Atoi(m[2])
				rec.RowCount = &n
			}
			records = append(records, rec)
			continue
		}
		if sqlStart.MatchString(line) {
			records = append(records, model.QueryRecord{SQL: strings.TrimSpace(line)})
		}
	}
	return records, scanner.Err()
}
