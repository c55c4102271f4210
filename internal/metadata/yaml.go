// Package metadata loads entity association metadata from a YAML snapshot
// exported by the application's ORM.
package metadata

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"orm-check/internal/model"

	"gopkg.in/yaml.v3"
)

// Snapshot is the top-level structure of a metadata file.
type Snapshot struct {
	Entities []EntityDoc `yaml:"entities"`
}

// EntityDoc is one mapped entity.
type EntityDoc struct {
	Name         string           `yaml:"name"`
	Table        string           `yaml:"table"`
	Associations []AssociationDoc `yaml:"associations"`
}

// AssociationDoc is one association as declared in the mapping. Nullable
// applies to the owning side's join column; nil means the ORM default (true).
type AssociationDoc struct {
	Field         string   `yaml:"field"`
	Target        string   `yaml:"target"`
	Type          string   `yaml:"type"`
	Cascade       []string `yaml:"cascade"`
	OrphanRemoval bool     `yaml:"orphan_removal"`
	MappedBy      string   `yaml:"mapped_by"`
	InversedBy    string   `yaml:"inversed_by"`
	JoinColumn    string   `yaml:"join_column"`
	Nullable      *bool    `yaml:"nullable"`
}

var errDuplicateEntity = errors.New("duplicate entity")

// Provider serves EntityMetadata from a snapshot. Entities are validated
// lazily so one malformed entry only affects its own entity.
type Provider struct {
	order  []string
	docs   map[string]*EntityDoc
	schema *model.SchemaCtx
}

// Load reads a snapshot file. schema may be nil; when given, NOT NULL
// constraints on join columns override the declared nullability.
func Load(path string, schema *model.SchemaCtx) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata snapshot: %w", err)
	}
	return Parse(data, schema)
}

func Parse(data []byte, schema *model.SchemaCtx) (*Provider, error) {
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse metadata snapshot: %w", err)
	}
	return NewProvider(snap, schema)
}

func NewProvider(snap Snapshot, schema *model.SchemaCtx) (*Provider, error) {
	p := &Provider{docs: make(map[string]*EntityDoc), schema: schema}
	for i := range snap.Entities {
		doc := &snap.Entities[i]
		name := strings.TrimSpace(doc.Name)
		if name == "" {
			return nil, fmt.Errorf("entity #%d has no name", i+1)
		}
		if _, dup := p.docs[name]; dup {
			return nil, fmt.Errorf("%w: %s", errDuplicateEntity, name)
		}
		p.docs[name] = doc
		p.order = append(p.order, name)
	}
	return p, nil
}

func (p *Provider) EntityNames() []string {
	return append([]string(nil), p.order...)
}

func (p *Provider) EntityMetadata(name string) (*model.EntityMetadata, error) {
	doc, ok := p.docs[name]
	if !ok {
		return nil, fmt.Errorf("unknown entity %s", name)
	}

	meta := &model.EntityMetadata{Name: name, Table: doc.Table}
	for _, a := range doc.Associations {
		assoc, err := p.association(name, doc, a)
		if err != nil {
			return nil, fmt.Errorf("%s::%s: %w", model.ShortName(name), a.Field, err)
		}
		meta.Associations = append(meta.Associations, assoc)
	}
	return meta, nil
}

func (p *Provider) association(entity string, doc *EntityDoc, a AssociationDoc) (model.AssociationMetadata, error) {
	if a.Field == "" {
		return model.AssociationMetadata{}, errors.New("association has no field name")
	}
	if a.Target == "" {
		return model.AssociationMetadata{}, errors.New("association has no target entity")
	}
	typ, err := model.ParseAssociationType(a.Type)
	if err != nil {
		return model.AssociationMetadata{}, err
	}
	cascade, err := model.ParseCascade(a.Cascade)
	if err != nil {
		return model.AssociationMetadata{}, err
	}

	inverse := a.MappedBy != "" || typ == model.OneToMany
	out := model.AssociationMetadata{
		SourceEntity:  entity,
		Field:         a.Field,
		TargetEntity:  a.Target,
		Type:          typ,
		Cascade:       cascade,
		OrphanRemoval: a.OrphanRemoval,
		IsInverseSide: inverse,
		MappedBy:      a.MappedBy,
		JoinColumn:    a.JoinColumn,
	}
	if inverse {
		out.NullableForeignKey = p.inverseNullable(a)
	} else {
		out.NullableForeignKey = p.owningNullable(doc.Table, a)
	}
	return out, nil
}

// owningNullable resolves the join column on the entity's own table.
func (p *Provider) owningNullable(table string, a AssociationDoc) bool {
	if col, ok := p.schema.Column(table, a.JoinColumn); ok && table != "" && a.JoinColumn != "" {
		return !col.NotNull
	}
	if a.Nullable != nil {
		return *a.Nullable
	}
	return true
}

// inverseNullable follows mapped_by to the owning association on the target
// entity. The foreign key lives there, so its nullability decides.
func (p *Provider) inverseNullable(a AssociationDoc) bool {
	target, ok := p.docs[a.Target]
	if ok && a.MappedBy != "" {
		for _, owning := range target.Associations {
			if owning.Field == a.MappedBy {
				return p.owningNullable(target.Table, owning)
			}
		}
	}
	if a.Nullable != nil {
		return *a.Nullable
	}
	return true
}
