package model

import (
	"iter"
)

// QueryCollection is an ordered, read-only sequence of query records.
// Insertion order is execution order and is never re-sorted.
type QueryCollection struct {
	records []QueryRecord
}

// NewQueryCollection copies records so later changes to the slice do not leak in.
func NewQueryCollection(records ...QueryRecord) QueryCollection {
	cp := make([]QueryRecord, len(records))
	copy(cp, records)
	return QueryCollection{records: cp}
}

func (c QueryCollection) Len() int { return len(c.records) }

func (c QueryCollection) At(i int) QueryRecord { return c.records[i] }

// All yields records with their execution position.
func (c QueryCollection) All() iter.Seq2[int, QueryRecord] {
	return func(yield func(int, QueryRecord) bool) {
		for i, r := range c.records {
			if !yield(i, r) {
				return
			}
		}
	}
}

// Records returns a copy of the underlying records.
func (c QueryCollection) Records() []QueryRecord {
	cp := make([]QueryRecord, len(c.records))
	copy(cp, c.records)
	return cp
}

// Filter returns a new collection with the records matching keep, in order.
func (c QueryCollection) Filter(keep func(QueryRecord) bool) QueryCollection {
	var out []QueryRecord
	for _, r := range c.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return QueryCollection{records: out}
}

// SlowerThan keeps records whose execution time is strictly above ms.
func (c QueryCollection) SlowerThan(ms float64) QueryCollection {
	return c.Filter(func(r QueryRecord) bool { return r.ExecutionTimeMs > ms })
}

// IssueCollection is a lazily produced, deduplicated sequence of issues.
// Iterating it runs the producer; duplicates (see Issue.Key) are dropped
// in first-seen order.
type IssueCollection struct {
	seq iter.Seq[Issue]
}

// NewIssueCollection wraps a producer. A nil producer yields nothing.
func NewIssueCollection(seq iter.Seq[Issue]) IssueCollection {
	return IssueCollection{seq: seq}
}

// IssuesOf builds a collection from already materialized issues.
func IssuesOf(issues ...Issue) IssueCollection {
	cp := make([]Issue, len(issues))
	copy(cp, issues)
	return NewIssueCollection(func(yield func(Issue) bool) {
		for _, i := range cp {
			if !yield(i) {
				return
			}
		}
	})
}

// MergeIssues concatenates collections in order.
func MergeIssues(cols ...IssueCollection) IssueCollection {
	return NewIssueCollection(func(yield func(Issue) bool) {
		for _, c := range cols {
			if c.seq == nil {
				continue
			}
			for i := range c.seq {
				if !yield(i) {
					return
				}
			}
		}
	})
}

// All yields deduplicated issues in detection order.
func (c IssueCollection) All() iter.Seq[Issue] {
	return func(yield func(Issue) bool) {
		if c.seq == nil {
			return
		}
		seen := make(map[string]struct{})
		for i := range c.seq {
			k := i.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			if !yield(i) {
				return
			}
		}
	}
}

// ToArray materializes the collection.
func (c IssueCollection) ToArray() []Issue {
	var out []Issue
	for i := range c.All() {
		out = append(out, i)
	}
	return out
}

// Len materializes the collection to count it.
func (c IssueCollection) Len() int {
	n := 0
	for range c.All() {
		n++
	}
	return n
}

// FilterMinSeverity keeps issues at or above floor.
func (c IssueCollection) FilterMinSeverity(floor Severity) IssueCollection {
	return NewIssueCollection(func(yield func(Issue) bool) {
		for i := range c.All() {
			if i.Severity.Rank() < floor.Rank() {
				continue
			}
			if !yield(i) {
				return
			}
		}
	})
}
