package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashStableAcrossFieldDeclarationOrder(t *testing.T) {
	a := NewEntity()
	a.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})
	a.SetField("email", FieldDescriptor{Type: TypeString})

	b := NewEntity()
	b.SetField("email", FieldDescriptor{Type: TypeString})
	b.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})

	ma, err := BuildModel(map[string]Entity{"User": a})
	require.NoError(t, err)
	mb, err := BuildModel(map[string]Entity{"User": b})
	require.NoError(t, err)

	// Field names are sorted within an entity for hashing purposes, so
	// permuting declaration order alone must not change the hash. Declared
	// order is still preserved separately on Table.ColumnOrder for DDL
	// generation, which is order-sensitive.
	assert.Equal(t, ma.Hash, mb.Hash)
	assert.Equal(t, []string{"id", "email"}, ma.Tables["user"].ColumnOrder)
	assert.Equal(t, []string{"email", "id"}, mb.Tables["user"].ColumnOrder)
}

func TestHashStableAcrossEntityDeclarationOrder(t *testing.T) {
	entities1 := map[string]Entity{}
	entities2 := map[string]Entity{}

	u := NewEntity()
	u.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})
	p := NewEntity()
	p.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})

	entities1["User"] = u
	entities1["Post"] = p
	entities2["Post"] = p
	entities2["User"] = u

	m1, err := BuildModel(entities1)
	require.NoError(t, err)
	m2, err := BuildModel(entities2)
	require.NoError(t, err)
	assert.Equal(t, m1.Hash, m2.Hash)
}

func TestHashChangesWithSchemaContent(t *testing.T) {
	e := NewEntity()
	e.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})
	m1, err := BuildModel(map[string]Entity{"User": e})
	require.NoError(t, err)

	e2 := NewEntity()
	e2.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})
	e2.SetField("email", FieldDescriptor{Type: TypeString})
	m2, err := BuildModel(map[string]Entity{"User": e2})
	require.NoError(t, err)

	assert.NotEqual(t, m1.Hash, m2.Hash)
}

func TestHashEmptyModelIsStable(t *testing.T) {
	m1, err := BuildModel(map[string]Entity{})
	require.NoError(t, err)
	m2, err := BuildModel(map[string]Entity{})
	require.NoError(t, err)
	assert.Equal(t, m1.Hash, m2.Hash)
	assert.Len(t, m1.Hash, 64)
}
