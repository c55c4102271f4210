package auditor

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"orm-check/internal/model"
)

// DefaultChildPatterns are entity-name suffixes typical of records that only
// exist inside a parent (OrderItem, InvoiceLine, JournalEntry).
var DefaultChildPatterns = []string{
	"Item", "Line", "Entry", "Detail", "Element", "Row", "Part", "Attachment", "Translation",
}

// DefaultIndependentPatterns are entity-name suffixes typical of shared
// reference data that outlives any single parent.
var DefaultIndependentPatterns = []string{
	"User", "Customer", "Client", "Product", "Category", "Company", "Account", "Organization",
	"Country", "Currency", "Tag", "Author", "Brand", "Supplier", "Vendor", "Store", "Warehouse",
	"Language", "Role", "Team",
}

var errNoProvider = errors.New("metadata provider is required")

// CompositionSignals are the independent hints that an association owns
// its target's lifecycle.
type CompositionSignals struct {
	CascadeRemove bool
	ChildNaming   bool
	NotNullFK     bool
}

func (s CompositionSignals) Count() int {
	n := 0
	for _, b := range []bool{s.CascadeRemove, s.ChildNaming, s.NotNullFK} {
		if b {
			n++
		}
	}
	return n
}

// IsComposition holds when at least two signals agree.
func (s CompositionSignals) IsComposition() bool { return s.Count() >= 2 }

// Names lists the signals that hold, for reporting.
func (s CompositionSignals) Names() []string {
	out := make([]string, 0, 3)
	if s.CascadeRemove {
		out = append(out, "cascade_remove")
	}
	if s.ChildNaming {
		out = append(out, "child_naming")
	}
	if s.NotNullFK {
		out = append(out, "not_null_fk")
	}
	return out
}

// CompositionScorer evaluates association metadata against naming patterns.
type CompositionScorer struct {
	child       *regexp.Regexp
	independent *regexp.Regexp
}

func NewCompositionScorer(childPatterns, independentPatterns []string) *CompositionScorer {
	return &CompositionScorer{
		child:       suffixPattern(childPatterns),
		independent: suffixPattern(independentPatterns),
	}
}

func (c *CompositionScorer) Score(a model.AssociationMetadata) CompositionSignals {
	return CompositionSignals{
		CascadeRemove: a.Cascade.Has(model.CascadeRemove),
		ChildNaming:   c.child.MatchString(model.ShortName(a.TargetEntity)),
		NotNullFK:     !a.NullableForeignKey,
	}
}

// IsIndependent reports whether entity looks like shared reference data.
func (c *CompositionScorer) IsIndependent(entity string) bool {
	return c.independent.MatchString(model.ShortName(entity))
}

// metadataSource walks every association of every entity. An entity that
// fails to load, or panics while loading, is logged and skipped.
type metadataSource struct {
	provider model.MetadataProvider
	logger   *slog.Logger
}

func (m metadataSource) associations(yield func(model.AssociationMetadata) bool) {
	for _, name := range m.provider.EntityNames() {
		meta, err := m.load(name)
		if err != nil {
			m.logger.Warn("skipping entity metadata", "entity", name, "error", err)
			continue
		}
		for _, a := range meta.Associations {
			if a.SourceEntity == "" {
				a.SourceEntity = meta.Name
			}
			if !yield(a) {
				return
			}
		}
	}
}

func (m metadataSource) load(name string) (meta *model.EntityMetadata, err error) {
	defer func() {
		if r := recover(); r != nil {
			meta, err = nil, fmt.Errorf("metadata for %s panicked: %v", name, r)
		}
	}()
	meta, err = m.provider.EntityMetadata(name)
	if err == nil && meta == nil {
		err = fmt.Errorf("no metadata for %s", name)
	}
	return meta, err
}

// associationData is the payload shared by every cascade-family issue.
func associationData(a model.AssociationMetadata) map[string]any {
	return map[string]any{
		"entity":             a.SourceEntity,
		"field":              a.Field,
		"target_entity":      a.TargetEntity,
		"association_type":   string(a.Type),
		"cascade":            a.Cascade.Strings(),
		"has_cascade_remove": a.Cascade.Has(model.CascadeRemove),
		"nullable_fk":        a.NullableForeignKey,
	}
}

func associationLabel(a model.AssociationMetadata) string {
	return model.ShortName(a.SourceEntity) + "::" + a.Field
}
