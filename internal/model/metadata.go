package model

import (
	"fmt"
	"strings"
)

// AssociationType is the kind of mapped relationship
type AssociationType string

const (
	ManyToOne  AssociationType = "ManyToOne"
	OneToMany  AssociationType = "OneToMany"
	ManyToMany AssociationType = "ManyToMany"
	OneToOne   AssociationType = "OneToOne"
)

// ParseAssociationType accepts the four names case-insensitively, with or
// without separators ("many_to_one", "many-to-one").
func ParseAssociationType(s string) (AssociationType, error) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(s))
	for _, t := range []AssociationType{ManyToOne, OneToMany, ManyToMany, OneToOne} {
		if strings.ToLower(string(t)) == key {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown association type %q", s)
}

// CascadeOp is one operation an ORM can propagate along an association.
type CascadeOp string

const (
	CascadePersist CascadeOp = "persist"
	CascadeRemove  CascadeOp = "remove"
	CascadeMerge   CascadeOp = "merge"
	CascadeDetach  CascadeOp = "detach"
	CascadeRefresh CascadeOp = "refresh"
)

// AllCascadeOps is what a literal "all" expands to.
var AllCascadeOps = []CascadeOp{CascadePersist, CascadeRemove, CascadeMerge, CascadeDetach, CascadeRefresh}

// CascadeSet is an ordered set of cascade operations.
type CascadeSet []CascadeOp

// ParseCascade normalizes case and expands "all".
func ParseCascade(values []string) (CascadeSet, error) {
	var set CascadeSet
	for _, v := range values {
		op := CascadeOp(strings.ToLower(strings.TrimSpace(v)))
		if op == "all" {
			for _, o := range AllCascadeOps {
				set = set.with(o)
			}
			continue
		}
		known := false
		for _, o := range AllCascadeOps {
			if o == op {
				known = true
				break
			}
		}
		if !known {
			return nil, fmt.Errorf("unknown cascade operation %q", v)
		}
		set = set.with(op)
	}
	return set, nil
}

func (s CascadeSet) with(op CascadeOp) CascadeSet {
	if s.Has(op) {
		return s
	}
	return append(s, op)
}

func (s CascadeSet) Has(op CascadeOp) bool {
	for _, o := range s {
		if o == op {
			return true
		}
	}
	return false
}

// IsAll reports whether every cascade operation is present.
func (s CascadeSet) IsAll() bool {
	for _, o := range AllCascadeOps {
		if !s.Has(o) {
			return false
		}
	}
	return true
}

// Strings lists the operations, collapsing a full set to "all".
func (s CascadeSet) Strings() []string {
	if s.IsAll() {
		return []string{"all"}
	}
	out := make([]string, len(s))
	for i, o := range s {
		out[i] = string(o)
	}
	return out
}

// AssociationMetadata is a read-only snapshot of one declared association.
type AssociationMetadata struct {
	SourceEntity       string
	Field              string
	TargetEntity       string
	Type               AssociationType
	Cascade            CascadeSet
	OrphanRemoval      bool
	NullableForeignKey bool
	IsInverseSide      bool
	MappedBy           string
	JoinColumn         string
}

// EntityMetadata groups the associations of one mapped entity.
type EntityMetadata struct {
	Name         string
	Table        string
	Associations []AssociationMetadata
}

// ShortName strips a namespace or package qualifier from an entity name.
func ShortName(entity string) string {
	if i := strings.LastIndexAny(entity, `\./`); i >= 0 {
		return entity[i+1:]
	}
	return entity
}
