// Package scanner discovers query-log files and decodes them concurrently.
package scanner

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"orm-check/internal/model"
)

// FileWalker is responsible for traversing directories and feeding files to a channel
type FileWalker struct {
	Extensions map[string]struct{}
	Excludes   []string
}

func NewFileWalker(exts []string, excludes []string) *FileWalker {
	e := make(map[string]struct{})
	for _, ext := range exts {
		e[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &FileWalker{
		Extensions: e,
		Excludes:   excludes,
	}
}

// excluded matches a glob against the base name, or a plain name against
// any path component.
func (fw *FileWalker) excluded(path string) bool {
	name := filepath.Base(path)
	for _, exclude := range fw.Excludes {
		if matched, _ := filepath.Match(exclude, name); matched {
			return true
		}
		for _, part := range strings.Split(filepath.ToSlash(path), "/") {
			if part == exclude {
				return true
			}
		}
	}
	return false
}

func (fw *FileWalker) accepts(path string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	_, ok := fw.Extensions[ext]
	return ok
}

// Walk starts the traversal and returns a channel of file paths.
// It runs in a separate goroutine and closes the channel when done.
// A root that is a regular file is emitted as is, whatever its extension.
func (fw *FileWalker) Walk(ctx context.Context, root string) (<-chan string, <-chan error) {
	paths := make(chan string, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(paths)
		defer close(errs)

		if info, err := os.Stat(root); err == nil && !info.IsDir() {
			select {
			case paths <- root:
			case <-ctx.Done():
				errs <- ctx.Err()
			}
			return
		}

		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if d.IsDir() {
				if path == root {
					return nil
				}
				if fw.excluded(path) || strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}

			if fw.excluded(path) || !fw.accepts(path) {
				return nil
			}
			select {
			case paths <- path:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})

		if err != nil {
			errs <- err
		}
	}()

	return paths, errs
}

type ScanResult struct {
	File    string
	Records []model.QueryRecord
	Error   error
}

// Processor decodes one file
type Processor func(path string) ([]model.QueryRecord, error)

// WorkerPool manages concurrent processing
type WorkerPool struct {
	Concurrency int
	Processor   Processor
}

func NewWorkerPool(concurrency int, proc Processor) *WorkerPool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &WorkerPool{
		Concurrency: concurrency,
		Processor:   proc,
	}
}

func (wp *WorkerPool) Start(ctx context.Context, paths <-chan string) <-chan ScanResult {
	results := make(chan ScanResult)
	var wg sync.WaitGroup

	for i := 0; i < wp.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range paths {
				if ctx.Err() != nil {
					return
				}
				res, err := wp.Processor(path)
				// decode errors are reported, not fatal
				select {
				case results <- ScanResult{File: path, Records: res, Error: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

// Collect walks root, decodes every accepted file and returns the results
// sorted by path, so runs over the same tree are reproducible.
func Collect(ctx context.Context, walker *FileWalker, pool *WorkerPool, root string) ([]ScanResult, error) {
	paths, errs := walker.Walk(ctx, root)
	results := pool.Start(ctx, paths)

	var out []ScanResult
	for res := range results {
		out = append(out, res)
	}
	if err := <-errs; err != nil {
		return out, err
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}
