package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"orm-check/internal/model"
	"orm-check/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const snapshot = `
entities:
  - name: App\Entity\Order
    table: orders
    associations:
      - field: items
        target: App\Entity\OrderItem
        type: one_to_many
        cascade: [persist, remove]
        mapped_by: order
      - field: customer
        target: App\Entity\Customer
        type: ManyToOne
        cascade: [all]
        join_column: customer_id
  - name: App\Entity\OrderItem
    table: order_items
    associations:
      - field: order
        target: App\Entity\Order
        type: many-to-one
        inversed_by: items
        join_column: order_id
        nullable: false
  - name: App\Entity\Broken
    associations:
      - field: things
        target: App\Entity\Thing
        type: SomeToMany
`

func find(t *testing.T, meta *model.EntityMetadata, field string) model.AssociationMetadata {
	t.Helper()
	for _, a := range meta.Associations {
		if a.Field == field {
			return a
		}
	}
	t.Fatalf("association %s not found", field)
	return model.AssociationMetadata{}
}

func TestProvider_Parse(t *testing.T) {
	p, err := Parse([]byte(snapshot), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{`App\Entity\Order`, `App\Entity\OrderItem`, `App\Entity\Broken`}, p.EntityNames())

	order, err := p.EntityMetadata(`App\Entity\Order`)
	require.NoError(t, err)
	assert.Equal(t, "orders", order.Table)
	require.Len(t, order.Associations, 2)

	items := find(t, order, "items")
	assert.Equal(t, model.OneToMany, items.Type)
	assert.True(t, items.IsInverseSide)
	assert.Equal(t, "order", items.MappedBy)
	assert.True(t, items.Cascade.Has(model.CascadeRemove))
	assert.False(t, items.NullableForeignKey, "resolved through OrderItem::order")

	customer := find(t, order, "customer")
	assert.True(t, customer.Cascade.IsAll())
	assert.True(t, customer.NullableForeignKey, "join columns are nullable by default")
	assert.Equal(t, `App\Entity\Order`, customer.SourceEntity)
}

func TestProvider_BrokenEntityIsIsolated(t *testing.T) {
	p, err := Parse([]byte(snapshot), nil)
	require.NoError(t, err)

	_, err = p.EntityMetadata(`App\Entity\Broken`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Broken::things")

	_, err = p.EntityMetadata(`App\Entity\OrderItem`)
	assert.NoError(t, err)

	_, err = p.EntityMetadata(`App\Entity\Nope`)
	assert.Error(t, err)
}

func TestProvider_SchemaOverridesNullability(t *testing.T) {
	schema, err := parser.NewSQLParser().ParseSchema(`
		CREATE TABLE orders (id BIGINT PRIMARY KEY, customer_id BIGINT NOT NULL);
		CREATE TABLE order_items (id BIGINT PRIMARY KEY, order_id BIGINT NULL);`)
	require.NoError(t, err)

	p, err := Parse([]byte(snapshot), schema)
	require.NoError(t, err)

	order, err := p.EntityMetadata(`App\Entity\Order`)
	require.NoError(t, err)
	assert.False(t, find(t, order, "customer").NullableForeignKey)
	assert.True(t, find(t, order, "items").NullableForeignKey, "schema says order_items.order_id is nullable")
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("entities: [\n"), nil)
	assert.Error(t, err)

	_, err = Parse([]byte("entities:\n  - table: x\n"), nil)
	assert.Error(t, err)

	_, err = Parse([]byte("entities:\n  - name: A\n  - name: A\n"), nil)
	assert.ErrorIs(t, err, errDuplicateEntity)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.yaml")
	require.NoError(t, os.WriteFile(path, []byte(snapshot), 0o644))

	p, err := Load(path, nil)
	require.NoError(t, err)
	assert.Len(t, p.EntityNames(), 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}
