package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestBuildModelEmptyEntities(t *testing.T) {
	m, err := BuildModel(map[string]Entity{})
	require.NoError(t, err)
	assert.Empty(t, m.Tables)
	assert.NotEmpty(t, m.Hash)
}

func TestBuildModelDerivesSnakeCaseTableName(t *testing.T) {
	e := NewEntity()
	e.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})

	m, err := BuildModel(map[string]Entity{"UserAccount": e})
	require.NoError(t, err)

	tbl := m.FindTable("user_account")
	require.NotNil(t, tbl)
	assert.Equal(t, "user_account", tbl.Name)
}

func TestBuildModelExplicitTableName(t *testing.T) {
	e := NewEntity()
	e.Table = "accounts"
	e.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})

	m, err := BuildModel(map[string]Entity{"User": e})
	require.NoError(t, err)
	assert.NotNil(t, m.FindTable("accounts"))
	assert.Nil(t, m.FindTable("user"))
}

func TestBuildModelLogicalTypeMapping(t *testing.T) {
	e := NewEntity()
	e.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})
	e.SetField("name", FieldDescriptor{Type: TypeString, MaxLength: 64})
	e.SetField("bio", FieldDescriptor{Type: TypeString})
	e.SetField("body", FieldDescriptor{Type: TypeText})
	e.SetField("age", FieldDescriptor{Type: TypeInteger})
	e.SetField("active", FieldDescriptor{Type: TypeBoolean})
	e.SetField("createdAt", FieldDescriptor{Type: TypeTimestamp})
	e.SetField("meta", FieldDescriptor{Type: TypeJSONB})
	e.SetField("tags", FieldDescriptor{Type: TypeJSON})

	m, err := BuildModel(map[string]Entity{"User": e})
	require.NoError(t, err)
	tbl := m.FindTable("user")
	require.NotNil(t, tbl)

	assert.Equal(t, "UUID", tbl.FindColumn("id").SQLType)
	assert.Equal(t, "VARCHAR(64)", tbl.FindColumn("name").SQLType)
	assert.Equal(t, "VARCHAR(255)", tbl.FindColumn("bio").SQLType)
	assert.Equal(t, "TEXT", tbl.FindColumn("body").SQLType)
	assert.Equal(t, "INTEGER", tbl.FindColumn("age").SQLType)
	assert.Equal(t, "BOOLEAN", tbl.FindColumn("active").SQLType)
	assert.Equal(t, "TIMESTAMP", tbl.FindColumn("createdAt").SQLType)
	assert.Equal(t, "JSONB", tbl.FindColumn("meta").SQLType)
	assert.Equal(t, "JSON", tbl.FindColumn("tags").SQLType)
}

func TestBuildModelUnknownTypeFallsBackToUppercase(t *testing.T) {
	e := NewEntity()
	e.SetField("point", FieldDescriptor{Type: "geometry"})

	m, err := BuildModel(map[string]Entity{"Place": e})
	require.NoError(t, err)
	assert.Equal(t, "GEOMETRY", m.FindTable("place").FindColumn("point").SQLType)
}

func TestBuildModelDBTypeOverrideWins(t *testing.T) {
	e := NewEntity()
	e.SetField("id", FieldDescriptor{Type: TypeString, DBType: "CHAR(36)"})

	m, err := BuildModel(map[string]Entity{"Thing": e})
	require.NoError(t, err)
	assert.Equal(t, "CHAR(36)", m.FindTable("thing").FindColumn("id").SQLType)
}

func TestBuildModelPrimaryKeyForcedNonNull(t *testing.T) {
	e := NewEntity()
	e.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true, Nullable: boolPtr(true)})

	m, err := BuildModel(map[string]Entity{"Thing": e})
	require.NoError(t, err)
	assert.False(t, m.FindTable("thing").FindColumn("id").Nullable)
}

func TestBuildModelRequiredIsInverseOfNullable(t *testing.T) {
	e := NewEntity()
	e.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})
	email := FieldDescriptor{Type: TypeString}
	email.SetRequired(true)
	e.SetField("email", email)
	nickname := FieldDescriptor{Type: TypeString}
	e.SetField("nickname", nickname)

	m, err := BuildModel(map[string]Entity{"User": e})
	require.NoError(t, err)
	tbl := m.FindTable("user")
	assert.False(t, tbl.FindColumn("email").Nullable)
	assert.True(t, tbl.FindColumn("nickname").Nullable)
}

func TestBuildModelDuplicatePhysicalColumnNameIsValidationError(t *testing.T) {
	e := NewEntity()
	e.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})
	e.SetField("other", FieldDescriptor{Type: TypeString, Column: "id"})

	_, err := BuildModel(map[string]Entity{"Thing": e})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate physical column name")
}

func TestBuildModelUniqueFieldSynthesizesIndex(t *testing.T) {
	e := NewEntity()
	e.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})
	req := FieldDescriptor{Type: TypeString, Unique: true}
	e.SetField("email", req)

	m, err := BuildModel(map[string]Entity{"User": e})
	require.NoError(t, err)
	tbl := m.FindTable("user")
	idx := tbl.FindIndex("user_email_idx")
	require.NotNil(t, idx)
	assert.True(t, idx.Unique)
	assert.Equal(t, []string{"email"}, idx.Columns)
}

func TestBuildModelReferenceSynthesizesForeignKey(t *testing.T) {
	e := NewEntity()
	e.SetField("id", FieldDescriptor{Type: TypeUUID, PrimaryKey: true})
	e.SetField("authorId", FieldDescriptor{Type: TypeUUID, References: "users.id"})

	m, err := BuildModel(map[string]Entity{"Post": e})
	require.NoError(t, err)
	tbl := m.FindTable("post")
	fk := tbl.FindForeignKey("post_authorId_fkey")
	require.NotNil(t, fk)
	assert.Equal(t, "users", fk.ReferencedTable)
	assert.Equal(t, []string{"id"}, fk.ReferencedColumns)
}

func TestBuildModelInvalidReferenceIsValidationError(t *testing.T) {
	e := NewEntity()
	e.SetField("authorId", FieldDescriptor{Type: TypeUUID, References: "badref"})

	_, err := BuildModel(map[string]Entity{"Post": e})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid reference")
}
