package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "lattice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testAtom(uuid, prev string, content map[string]any) model.Atom {
	return model.Atom{
		UUID:         uuid,
		SchemaName:   "user",
		SourcePubKey: "pk-test",
		Content:      content,
		ContentHash:  "hash-" + uuid,
		PrevAtomUUID: prev,
		Status:       model.AtomStatusActive,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteAtom(context.Background(), testAtom("a-1", "", map[string]any{"value": 1})))
	require.NoError(t, s.Close())

	// Reopening an existing database must not re-run DDL destructively.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetAtom(context.Background(), "a-1")
	require.NoError(t, err)
	assert.Equal(t, "user", got.SchemaName)
}

func TestAtomRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	atom := testAtom("a-1", "", map[string]any{"value": "hello", "n": float64(3)})
	require.NoError(t, s.WriteAtom(ctx, atom))

	got, err := s.GetAtom(ctx, "a-1")
	require.NoError(t, err)
	assert.Equal(t, atom.UUID, got.UUID)
	assert.Equal(t, atom.Content, got.Content)
	assert.Equal(t, atom.ContentHash, got.ContentHash)
	assert.Empty(t, got.PrevAtomUUID)
	assert.Equal(t, model.AtomStatusActive, got.Status)
	assert.True(t, atom.CreatedAt.Equal(got.CreatedAt))
}

func TestAtomChainLink(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteAtom(ctx, testAtom("a-1", "", map[string]any{"value": 1})))
	require.NoError(t, s.WriteAtom(ctx, testAtom("a-2", "a-1", map[string]any{"value": 2})))

	got, err := s.GetAtom(ctx, "a-2")
	require.NoError(t, err)
	assert.Equal(t, "a-1", got.PrevAtomUUID)
}

func TestAtomDuplicateUUIDRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteAtom(ctx, testAtom("a-1", "", map[string]any{"value": 1})))
	err := s.WriteAtom(ctx, testAtom("a-1", "", map[string]any{"value": 2}))
	assert.Error(t, err, "atoms are append-only")
}

func TestGetAtomNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetAtom(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
}

func TestRefSingleRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ref := model.AtomRef{
		UUID:      "r-1",
		Kind:      model.RefKindSingle,
		AtomUUID:  "a-1",
		UpdatedBy: "pk-test",
		UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, s.WriteRef(ctx, ref))

	got, err := s.GetRef(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, model.RefKindSingle, got.Kind)
	assert.Equal(t, "a-1", got.AtomUUID)
	assert.Empty(t, got.Entries)
}

func TestRefUpsertMovesHead(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ref := model.AtomRef{UUID: "r-1", Kind: model.RefKindSingle, AtomUUID: "a-1", UpdatedBy: "pk", UpdatedAt: time.Now()}
	require.NoError(t, s.WriteRef(ctx, ref))

	ref.AtomUUID = "a-2"
	require.NoError(t, s.WriteRef(ctx, ref))

	got, err := s.GetRef(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "a-2", got.AtomUUID)
}

func TestRefKeyedEntries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ref := model.AtomRef{
		UUID: "r-1",
		Kind: model.RefKindRange,
		Entries: map[string]string{
			"1": "a-1",
			"2": "a-2",
		},
		UpdatedBy: "pk",
		UpdatedAt: time.Now(),
	}
	require.NoError(t, s.WriteRef(ctx, ref))

	// Move one partition head, add another.
	ref.Entries["1"] = "a-3"
	ref.Entries["9"] = "a-9"
	require.NoError(t, s.WriteRef(ctx, ref))

	got, err := s.GetRef(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "a-3", "2": "a-2", "9": "a-9"}, got.Entries)
}

func TestGetRefNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRef(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
}

func testSchema(name string) model.Schema {
	return model.Schema{
		Name: name,
		Fields: map[string]model.Field{
			"age": {FieldType: model.RefKindSingle, RefAtomUUID: "r-age"},
		},
	}
}

func TestSchemaWriteAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteSchema(ctx, testSchema("user"), model.SchemaStateAvailable, true))

	got, err := s.GetSchema(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, "user", got.Name)
	assert.Equal(t, "r-age", got.Fields["age"].RefAtomUUID)

	state, loaded, err := s.GetSchemaState(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, model.SchemaStateAvailable, state)
	assert.True(t, loaded)
}

func TestSchemaDuplicateNameRejected(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteSchema(ctx, testSchema("user"), model.SchemaStateAvailable, true))

	err := s.WriteSchema(ctx, testSchema("user"), model.SchemaStateAvailable, true)
	require.Error(t, err)
	assert.Equal(t, fault.CodeInvalidData, fault.CodeOf(err))
}

func TestSchemaStateTransitions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteSchema(ctx, testSchema("user"), model.SchemaStateAvailable, true))
	require.NoError(t, s.SetSchemaState(ctx, "user", model.SchemaStateApproved, true))

	state, _, err := s.GetSchemaState(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, model.SchemaStateApproved, state)

	approved, err := s.ListSchemasByState(ctx, model.SchemaStateApproved)
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, approved)

	available, err := s.ListSchemasByState(ctx, model.SchemaStateAvailable)
	require.NoError(t, err)
	assert.Empty(t, available)
}

func TestUpdateSchemaDefinition(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteSchema(ctx, testSchema("user"), model.SchemaStateAvailable, true))

	updated := testSchema("user")
	field := updated.Fields["age"]
	field.RefAtomUUID = "r-shared"
	updated.Fields["age"] = field
	require.NoError(t, s.UpdateSchemaDefinition(ctx, updated))

	got, err := s.GetSchema(ctx, "user")
	require.NoError(t, err)
	assert.Equal(t, "r-shared", got.Fields["age"].RefAtomUUID)
}

func TestRegistrySnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tr := model.NewTransform("a + b", []string{"user.a", "user.b"}, "user.sum")
	fieldMap := map[string][]string{"user.a": {"t-sum"}, "user.b": {"t-sum"}}
	transformMap := map[string][]string{"t-sum": {"user.a", "user.b"}}

	require.NoError(t, s.WriteRegistrySnapshot(ctx, "t-sum", tr, fieldMap, transformMap))

	got, err := s.GetTransform(ctx, "t-sum")
	require.NoError(t, err)
	assert.Equal(t, "a + b", got.Logic)
	assert.Equal(t, "user.sum", got.Output)

	fields, err := s.ReadRegistryMap(ctx, KeyFieldToTransforms)
	require.NoError(t, err)
	assert.Equal(t, fieldMap, fields)

	transforms, err := s.ReadRegistryMap(ctx, KeyTransformToFields)
	require.NoError(t, err)
	assert.Equal(t, transformMap, transforms)
}

func TestRegistrySnapshotNilTransformDeletes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	tr := model.NewTransform("a + 1", []string{"user.a"}, "user.b")
	require.NoError(t, s.WriteRegistrySnapshot(ctx, "t-1", tr,
		map[string][]string{"user.a": {"t-1"}}, map[string][]string{"t-1": {"user.a"}}))

	require.NoError(t, s.WriteRegistrySnapshot(ctx, "t-1", nil,
		map[string][]string{}, map[string][]string{}))

	_, err := s.GetTransform(ctx, "t-1")
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))

	fields, err := s.ReadRegistryMap(ctx, KeyFieldToTransforms)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestReadRegistryMapMissingKeyIsEmpty(t *testing.T) {
	s := openTestStore(t)

	m, err := s.ReadRegistryMap(context.Background(), KeyFieldToTransforms)
	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Empty(t, m)
}

func TestListTransforms(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteTransform(ctx, "t-1", model.NewTransform("a + 1", []string{"user.a"}, "user.b")))
	require.NoError(t, s.WriteTransform(ctx, "t-2", model.NewTransform("b * 2", []string{"user.b"}, "user.c")))

	all, err := s.ListTransforms(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "user.c", all["t-2"].Output)
}
