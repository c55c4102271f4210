package auditor

import (
	"fmt"
	"log/slog"

	"orm-check/internal/model"
	"orm-check/internal/suggestion"
)

// The cascade-family analyzers read entity metadata, not the query log; the
// queries argument of Analyze is accepted for interface uniformity only.

type cascadeBase struct {
	source      metadataSource
	scorer      *CompositionScorer
	suggestions *suggestion.Factory
	logger      *slog.Logger
}

func newCascadeBase(provider model.MetadataProvider, opts []Option) (cascadeBase, error) {
	if provider == nil {
		return cascadeBase{}, fmt.Errorf("%w: %v", model.ErrInvalidConfig, errNoProvider)
	}
	s := applyOptions(opts)
	return cascadeBase{
		source:      metadataSource{provider: provider, logger: s.logger},
		scorer:      NewCompositionScorer(s.childPatterns, s.independentPatterns),
		suggestions: s.suggestions,
		logger:      s.logger,
	}, nil
}

// CascadeAllAnalyzer flags associations cascading every operation.
type CascadeAllAnalyzer struct {
	cascadeBase
}

func NewCascadeAllAnalyzer(provider model.MetadataProvider, opts ...Option) (*CascadeAllAnalyzer, error) {
	base, err := newCascadeBase(provider, opts)
	if err != nil {
		return nil, err
	}
	return &CascadeAllAnalyzer{cascadeBase: base}, nil
}

func (r *CascadeAllAnalyzer) Name() string { return "cascade_all" }

func (r *CascadeAllAnalyzer) Description() string {
	return "Detects cascade=all associations that can propagate deletes into shared data (data integrity risk)"
}

func (r *CascadeAllAnalyzer) Analyze(_ model.QueryCollection) model.IssueCollection {
	return model.NewIssueCollection(func(yield func(model.Issue) bool) {
		for a := range r.source.associations {
			if !a.Cascade.IsAll() {
				continue
			}
			if !yield(r.issue(a)) {
				return
			}
		}
	})
}

func (r *CascadeAllAnalyzer) issue(a model.AssociationMetadata) model.Issue {
	severity := model.SeverityWarning
	recommended := "persist, remove"
	desc := fmt.Sprintf("%s cascades every operation to %s. Merge, detach and refresh are rarely wanted and remove may delete more than intended.",
		associationLabel(a), model.ShortName(a.TargetEntity))
	independent := r.scorer.IsIndependent(a.TargetEntity)
	if independent {
		severity = model.SeverityCritical
		recommended = "persist"
		desc = fmt.Sprintf("%s cascades every operation, including remove, to %s, which looks like shared reference data. "+
			"Removing one %s would delete a record other entities still point to.",
			associationLabel(a), model.ShortName(a.TargetEntity), model.ShortName(a.SourceEntity))
	}

	data := associationData(a)
	data["independent_target"] = independent

	return model.Issue{
		Type:        "cascade_all",
		Category:    model.CategoryIntegrity,
		Severity:    severity,
		Title:       "Dangerous cascade=all on " + associationLabel(a),
		Description: desc,
		Data:        data,
		Suggestion: r.suggestions.ForCodeRef(suggestion.CodeExplicitCascade, map[string]string{
			"entity":      model.ShortName(a.SourceEntity),
			"field":       a.Field,
			"recommended": recommended,
		}),
	}
}

// MissingOrphanRemovalAnalyzer flags compositions that leave orphans behind
// when a child is removed from its parent's collection.
type MissingOrphanRemovalAnalyzer struct {
	cascadeBase
}

func NewMissingOrphanRemovalAnalyzer(provider model.MetadataProvider, opts ...Option) (*MissingOrphanRemovalAnalyzer, error) {
	base, err := newCascadeBase(provider, opts)
	if err != nil {
		return nil, err
	}
	return &MissingOrphanRemovalAnalyzer{cascadeBase: base}, nil
}

func (r *MissingOrphanRemovalAnalyzer) Name() string { return "missing_orphan_removal" }

func (r *MissingOrphanRemovalAnalyzer) Description() string {
	return "Detects composition associations without orphan removal, which leave orphaned child rows (data integrity risk)"
}

func (r *MissingOrphanRemovalAnalyzer) Analyze(_ model.QueryCollection) model.IssueCollection {
	return model.NewIssueCollection(func(yield func(model.Issue) bool) {
		for a := range r.source.associations {
			if a.OrphanRemoval || (a.Type != model.OneToMany && a.Type != model.OneToOne) {
				continue
			}
			signals := r.scorer.Score(a)
			if !signals.IsComposition() {
				continue
			}
			if !yield(r.issue(a, signals)) {
				return
			}
		}
	})
}

func (r *MissingOrphanRemovalAnalyzer) issue(a model.AssociationMetadata, signals CompositionSignals) model.Issue {
	severity := model.SeverityWarning
	consequence := "Removed children keep a NULL foreign key and stay in the table unnoticed."
	if signals.NotNullFK {
		severity = model.SeverityCritical
		consequence = "The foreign key is NOT NULL, so a removed child cannot even be detached and the flush fails or leaves an invalid row."
	}

	data := associationData(a)
	data["signals"] = signals.Names()

	return model.Issue{
		Type:     "missing_orphan_removal",
		Category: model.CategoryIntegrity,
		Severity: severity,
		Title:    "Missing orphanRemoval on " + associationLabel(a),
		Description: fmt.Sprintf("%s looks like a composition (%d of 3 signals: %v) but orphan removal is disabled. %s",
			associationLabel(a), signals.Count(), signals.Names(), consequence),
		Data: data,
		Suggestion: r.suggestions.ForCodeRef(suggestion.CodeEnableOrphans, map[string]string{
			"entity":        model.ShortName(a.SourceEntity),
			"field":         a.Field,
			"target_entity": model.ShortName(a.TargetEntity),
		}),
	}
}

// OrphanWithoutCascadeAnalyzer flags orphanRemoval=true without cascade
// remove. Current ORM versions correct this themselves, so it mostly fires
// on older mappings.
type OrphanWithoutCascadeAnalyzer struct {
	cascadeBase
}

func NewOrphanWithoutCascadeAnalyzer(provider model.MetadataProvider, opts ...Option) (*OrphanWithoutCascadeAnalyzer, error) {
	base, err := newCascadeBase(provider, opts)
	if err != nil {
		return nil, err
	}
	return &OrphanWithoutCascadeAnalyzer{cascadeBase: base}, nil
}

func (r *OrphanWithoutCascadeAnalyzer) Name() string { return "orphan_removal_without_cascade" }

func (r *OrphanWithoutCascadeAnalyzer) Description() string {
	return "Detects orphanRemoval without cascade remove, an inconsistent configuration (configuration issue)"
}

func (r *OrphanWithoutCascadeAnalyzer) Analyze(_ model.QueryCollection) model.IssueCollection {
	return model.NewIssueCollection(func(yield func(model.Issue) bool) {
		for a := range r.source.associations {
			if !a.OrphanRemoval || a.Cascade.Has(model.CascadeRemove) {
				continue
			}
			issue := model.Issue{
				Type:     "orphan_removal_without_cascade",
				Category: model.CategoryConfiguration,
				Severity: model.SeverityWarning,
				Title:    "orphanRemoval without cascade remove on " + associationLabel(a),
				Description: fmt.Sprintf("%s deletes orphans but does not cascade remove to %s. "+
					"Removing the parent then depends on ORM-version specific behavior.", associationLabel(a), model.ShortName(a.TargetEntity)),
				Data: associationData(a),
				Suggestion: r.suggestions.ForCodeRef(suggestion.CodeAddCascadeRemove, map[string]string{
					"entity": model.ShortName(a.SourceEntity),
					"field":  a.Field,
				}),
			}
			if !yield(issue) {
				return
			}
		}
	})
}
