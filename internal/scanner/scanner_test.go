package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"orm-check/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T, files ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, f := range files {
		path := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("SELECT 1\n"), 0o644))
	}
	return root
}

func walkAll(t *testing.T, w *FileWalker, root string) []string {
	t.Helper()
	paths, errs := w.Walk(context.Background(), root)
	var got []string
	for p := range paths {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		got = append(got, filepath.ToSlash(rel))
	}
	require.NoError(t, <-errs)
	sort.Strings(got)
	return got
}

func TestFileWalker_Walk(t *testing.T) {
	root := makeTree(t,
		"profile.json",
		"queries.log",
		"notes.md",
		"nightly/run.sqlite",
		"nightly/old.log.bak",
		"vendor/dump.json",
		"archive/2023.json",
		".cache/hidden.json",
		"nightly/skip_me.json",
	)

	tests := []struct {
		name     string
		exts     []string
		excludes []string
		want     []string
	}{
		{
			name:     "json only",
			exts:     []string{"json"},
			excludes: []string{"vendor", "archive"},
			want:     []string{"nightly/skip_me.json", "profile.json"},
		},
		{
			name:     "all query logs",
			exts:     []string{"json", ".log", "sqlite"},
			excludes: []string{"vendor", "archive", "skip_*"},
			want:     []string{"nightly/run.sqlite", "profile.json", "queries.log"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, walkAll(t, NewFileWalker(tt.exts, tt.excludes), root))
		})
	}
}

func TestFileWalker_SingleFileRoot(t *testing.T) {
	root := makeTree(t, "capture.out")
	w := NewFileWalker([]string{"json"}, nil)

	paths, errs := w.Walk(context.Background(), filepath.Join(root, "capture.out"))
	var got []string
	for p := range paths {
		got = append(got, filepath.Base(p))
	}

	require.NoError(t, <-errs)
	assert.Equal(t, []string{"capture.out"}, got)
}

func TestFileWalker_MissingRoot(t *testing.T) {
	w := NewFileWalker([]string{"json"}, nil)
	paths, errs := w.Walk(context.Background(), filepath.Join(t.TempDir(), "nope"))
	for range paths {
	}
	assert.Error(t, <-errs)
}

func TestWorkerPool_Start(t *testing.T) {
	proc := func(path string) ([]model.QueryRecord, error) {
		if path == "bad" {
			return nil, errors.New("cannot decode")
		}
		return []model.QueryRecord{{SQL: "SELECT 1"}}, nil
	}

	pool := NewWorkerPool(2, proc)
	paths := make(chan string, 5)
	for _, p := range []string{"a", "b", "bad", "c", "d"} {
		paths <- p
	}
	close(paths)

	var ok, failed int
	for res := range pool.Start(context.Background(), paths) {
		if res.Error != nil {
			failed++
			continue
		}
		assert.Len(t, res.Records, 1)
		ok++
	}

	assert.Equal(t, 4, ok)
	assert.Equal(t, 1, failed)
}

func TestCollect_SortedByPath(t *testing.T) {
	root := makeTree(t, "c.log", "a.log", "sub/b.log")
	w := NewFileWalker([]string{"log"}, nil)
	pool := NewWorkerPool(3, func(path string) ([]model.QueryRecord, error) {
		return []model.QueryRecord{{SQL: filepath.Base(path)}}, nil
	})

	results, err := Collect(context.Background(), w, pool, root)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, filepath.Join(root, "a.log"), results[0].File)
	assert.Equal(t, filepath.Join(root, "c.log"), results[1].File)
	assert.Equal(t, filepath.Join(root, "sub", "b.log"), results[2].File)
}
