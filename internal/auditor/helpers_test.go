package auditor

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"orm-check/internal/model"
	"orm-check/internal/suggestion"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queriesOf(sqls ...string) model.QueryCollection {
	records := make([]model.QueryRecord, 0, len(sqls))
	for _, s := range sqls {
		records = append(records, model.QueryRecord{SQL: s, ExecutionTimeMs: 1})
	}
	return model.NewQueryCollection(records...)
}

// joinQuery builds a SELECT over n joined tables, every alias used in the
// projection.
func joinQuery(n int) string {
	cols := []string{"t0.id"}
	var joins []string
	for i := 1; i <= n; i++ {
		alias := fmt.Sprintf("j%d", i)
		cols = append(cols, alias+".name")
		joins = append(joins, fmt.Sprintf("INNER JOIN table_%d %s ON %s.parent_id = t0.id", i, alias, alias))
	}
	return "SELECT " + strings.Join(cols, ", ") + " FROM root t0 " + strings.Join(joins, " ")
}

type stubProvider struct {
	entities map[string]*model.EntityMetadata
	order    []string
	failing  map[string]error
	panics   map[string]bool
}

func newStubProvider(entities ...*model.EntityMetadata) *stubProvider {
	p := &stubProvider{
		entities: make(map[string]*model.EntityMetadata),
		failing:  make(map[string]error),
		panics:   make(map[string]bool),
	}
	for _, e := range entities {
		p.entities[e.Name] = e
		p.order = append(p.order, e.Name)
	}
	return p
}

func (p *stubProvider) EntityNames() []string { return p.order }

func (p *stubProvider) EntityMetadata(name string) (*model.EntityMetadata, error) {
	if p.panics[name] {
		panic("corrupt mapping for " + name)
	}
	if err := p.failing[name]; err != nil {
		return nil, err
	}
	e, ok := p.entities[name]
	if !ok {
		return nil, errors.New("unknown entity")
	}
	return e, nil
}

func entity(name string, assocs ...model.AssociationMetadata) *model.EntityMetadata {
	for i := range assocs {
		assocs[i].SourceEntity = name
	}
	return &model.EntityMetadata{Name: name, Associations: assocs}
}

func cascade(ops ...string) model.CascadeSet {
	set, err := model.ParseCascade(ops)
	if err != nil {
		panic(err)
	}
	return set
}

// assertSuggested checks that s was rendered from the template registered
// under key: same metadata, and no placeholder left unfilled.
func assertSuggested(t *testing.T, s *model.Suggestion, key string) {
	t.Helper()
	require.NotNil(t, s)
	tmpl, ok := suggestion.DefaultTemplates()[key]
	require.True(t, ok, "no template %s", key)
	assert.Equal(t, tmpl.Severity, s.Metadata.Severity)
	assert.Equal(t, tmpl.Category, s.Metadata.Category)
	assert.Equal(t, tmpl.Tags, s.Metadata.Tags)
	assert.NotEmpty(t, s.Code)
	assert.NotContains(t, s.Code, "{{")
	assert.NotContains(t, s.Description, "{{")
}
