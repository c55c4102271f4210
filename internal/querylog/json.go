package querylog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"

	"orm-check/internal/model"

	"github.com/tidwall/gjson"
)

// JSONDecoder reads a JSON document holding an array of query objects.
// ArrayPath is a gjson path such as "data.queries"; when the path does not
// resolve to an array the document root is tried instead.
type JSONDecoder struct {
	ArrayPath string
}

func NewJSONDecoder(arrayPath string) *JSONDecoder {
	return &JSONDecoder{ArrayPath: arrayPath}
}

func (d *JSONDecoder) Decode(filePath string) ([]model.QueryRecord, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(content) {
		return nil, errors.New("invalid JSON")
	}

	path := d.ArrayPath
	if path == "" {
		path = "@this"
	}
	result := gjson.GetBytes(content, path)
	if !result.IsArray() {
		root := gjson.ParseBytes(content)
		if !root.IsArray() {
			return nil, fmt.Errorf("expected an array at path %q, got %s", path, result.Type)
		}
		result = root
	}

	var records []model.QueryRecord
	for _, item := range result.Array() {
		if rec, ok := recordFrom(item); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// JSONLinesDecoder reads one query object per line. Blank and malformed
// lines are skipped.
type JSONLinesDecoder struct{}

func NewJSONLinesDecoder() *JSONLinesDecoder {
	return &JSONLinesDecoder{}
}

func (d *JSONLinesDecoder) Decode(filePath string) ([]model.QueryRecord, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var records []model.QueryRecord
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || !gjson.ValidBytes(line) {
			continue
		}
		if rec, ok := recordFrom(gjson.ParseBytes(line)); ok {
			records = append(records, rec)
		}
	}
	return records, scanner.Err()
}
