package model

// Analyzer is a single detection rule.
type Analyzer interface {
	// Name returns a stable, human-readable identifier.
	Name() string
	// Description explains what the analyzer looks for.
	Description() string
	// Analyze inspects the queries and returns any issues found. It never
	// fails: malformed input is skipped.
	Analyze(queries QueryCollection) IssueCollection
}

// MetadataProvider exposes the association metadata of mapped entities.
type MetadataProvider interface {
	// EntityNames lists every mapped entity.
	EntityNames() []string
	// EntityMetadata loads one entity; errors are scoped to that entity.
	EntityMetadata(name string) (*EntityMetadata, error)
}

// QueryDecoder reads captured query executions from a file
type QueryDecoder interface {
	Decode(filePath string) ([]QueryRecord, error)
}

// Reporter defines how to output results
type Reporter interface {
	Report(issues []Issue) error
}
