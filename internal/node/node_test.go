package node

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/testutil"
)

func startNode(t *testing.T, perm Permission) *Node {
	t.Helper()
	s := testutil.OpenStore(t)
	return startNodeOver(t, s, perm)
}

func startNodeOver(t *testing.T, s *store.Store, perm Permission) *Node {
	t.Helper()
	n := New(testutil.FastConfig(), s, perm)
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(n.Close)
	return n
}

// calcSchema has two writable inputs and a derived sum field.
func calcSchema() model.Schema {
	return model.Schema{
		Name: "calc",
		Fields: map[string]model.Field{
			"a": {FieldType: model.RefKindSingle},
			"b": {FieldType: model.RefKindSingle},
			"sum": {
				FieldType: model.RefKindSingle,
				Transform: &model.TransformSpec{Logic: "a + b"},
			},
		},
	}
}

func scalar(v any) map[string]any {
	return map[string]any{"value": v}
}

func TestMutateThenQuery(t *testing.T) {
	n := startNode(t, AllowAll{})
	ctx := context.Background()

	require.NoError(t, n.LoadSchema(ctx, model.Schema{
		Name:   "user",
		Fields: map[string]model.Field{"age": {FieldType: model.RefKindSingle}},
	}))

	result, err := n.ExecuteMutation(ctx, Mutation{
		Schema: "user",
		Fields: map[string]map[string]any{"age": scalar(float64(30))},
		PubKey: "pk",
		Op:     MutationOpUpdate,
	})
	require.NoError(t, err)
	require.NoError(t, result.Fields["age"].Err)
	assert.NotEmpty(t, result.Fields["age"].AtomUUID)

	q, err := n.ExecuteQuery(ctx, Query{Schema: "user", Fields: []string{"age"}, PubKey: "pk"})
	require.NoError(t, err)
	require.NoError(t, q.Fields["age"].Err)
	assert.Equal(t, float64(30), q.Fields["age"].Value)
}

func TestQueryBeforeMutationReturnsPlaceholder(t *testing.T) {
	n := startNode(t, AllowAll{})
	ctx := context.Background()

	require.NoError(t, n.LoadSchema(ctx, model.Schema{
		Name:   "user",
		Fields: map[string]model.Field{"age": {FieldType: model.RefKindSingle}},
	}))

	q, err := n.ExecuteQuery(ctx, Query{Schema: "user", Fields: []string{"age"}, PubKey: "pk"})
	require.NoError(t, err)
	require.NoError(t, q.Fields["age"].Err)

	content, ok := q.Fields["age"].Value.(map[string]any)
	require.True(t, ok, "pre-mutation value is the placeholder content")
	assert.Contains(t, content, "_uninitialized")
}

func TestMutationCascadeComputesDerivedField(t *testing.T) {
	n := startNode(t, AllowAll{})
	ctx := context.Background()

	require.NoError(t, n.LoadSchema(ctx, calcSchema()))

	_, err := n.ExecuteMutation(ctx, Mutation{
		Schema: "calc",
		Fields: map[string]map[string]any{
			"a": scalar(float64(15)),
			"b": scalar(float64(25)),
		},
		PubKey: "pk",
		Op:     MutationOpUpdate,
	})
	require.NoError(t, err)

	q, err := n.ExecuteQuery(ctx, Query{Schema: "calc", Fields: []string{"sum"}, PubKey: "pk"})
	require.NoError(t, err)
	require.NoError(t, q.Fields["sum"].Err)
	assert.Equal(t, float64(40), q.Fields["sum"].Value)
}

func TestMutationUnknownFieldRejectsWhole(t *testing.T) {
	n := startNode(t, AllowAll{})
	ctx := context.Background()

	require.NoError(t, n.LoadSchema(ctx, calcSchema()))

	_, err := n.ExecuteMutation(ctx, Mutation{
		Schema: "calc",
		Fields: map[string]map[string]any{
			"a":     scalar(float64(1)),
			"ghost": scalar(float64(2)),
		},
		PubKey: "pk",
	})
	require.Error(t, err)
	assert.Equal(t, fault.CodeInvalidField, fault.CodeOf(err))

	// Nothing was written: a still holds its placeholder.
	q, err := n.ExecuteQuery(ctx, Query{Schema: "calc", Fields: []string{"a"}, PubKey: "pk"})
	require.NoError(t, err)
	_, isPlaceholder := q.Fields["a"].Value.(map[string]any)
	assert.True(t, isPlaceholder)
}

func TestMutationUnloadedSchema(t *testing.T) {
	n := startNode(t, AllowAll{})

	_, err := n.ExecuteMutation(context.Background(), Mutation{
		Schema: "ghost",
		Fields: map[string]map[string]any{"x": scalar(1)},
		PubKey: "pk",
	})
	require.Error(t, err)
	assert.True(t, fault.IsNotFound(err))
}

func TestPermissionDenialGatesWholeMutation(t *testing.T) {
	n := startNode(t, TrustDistancePermission{})
	ctx := context.Background()

	guarded := model.Schema{
		Name: "vault",
		Fields: map[string]model.Field{
			"open":   {FieldType: model.RefKindSingle},
			"secret": {FieldType: model.RefKindSingle, PermissionPolicy: model.PermissionPolicy{ExplicitTrustDistance: 2}},
		},
	}
	require.NoError(t, n.LoadSchema(ctx, guarded))

	_, err := n.ExecuteMutation(ctx, Mutation{
		Schema: "vault",
		Fields: map[string]map[string]any{
			"open":   scalar(float64(1)),
			"secret": scalar(float64(2)),
		},
		PubKey:        "pk-remote",
		TrustDistance: 5,
	})
	require.Error(t, err)
	assert.Equal(t, fault.CodeInvalidPermission, fault.CodeOf(err))

	// The permitted sibling was not written either: denial precedes writes.
	q, err := n.ExecuteQuery(ctx, Query{Schema: "vault", Fields: []string{"open"}, PubKey: "pk-remote", TrustDistance: 1})
	require.NoError(t, err)
	_, isPlaceholder := q.Fields["open"].Value.(map[string]any)
	assert.True(t, isPlaceholder)
}

func TestQueryPermissionDenialIsPerField(t *testing.T) {
	n := startNode(t, TrustDistancePermission{})
	ctx := context.Background()

	guarded := model.Schema{
		Name: "vault",
		Fields: map[string]model.Field{
			"open":   {FieldType: model.RefKindSingle},
			"secret": {FieldType: model.RefKindSingle, PermissionPolicy: model.PermissionPolicy{ExplicitTrustDistance: 2}},
		},
	}
	require.NoError(t, n.LoadSchema(ctx, guarded))

	q, err := n.ExecuteQuery(ctx, Query{
		Schema:        "vault",
		Fields:        []string{"open", "secret"},
		PubKey:        "pk-remote",
		TrustDistance: 5,
	})
	require.NoError(t, err, "field-level denial never aborts the query")

	assert.NoError(t, q.Fields["open"].Err)
	require.Error(t, q.Fields["secret"].Err)
	assert.Equal(t, fault.CodeInvalidPermission, fault.CodeOf(q.Fields["secret"].Err))
}

func TestRangeFieldPartitionIsolation(t *testing.T) {
	n := startNode(t, AllowAll{})
	ctx := context.Background()

	require.NoError(t, n.LoadSchema(ctx, model.Schema{
		Name: "game",
		Fields: map[string]model.Field{
			"scores": {FieldType: model.RefKindRange, RangeKey: "game_id"},
		},
	}))

	for _, w := range []map[string]any{
		{"game_id": "1", "score": float64(10)},
		{"game_id": "2", "score": float64(20)},
	} {
		result, err := n.ExecuteMutation(ctx, Mutation{
			Schema: "game",
			Fields: map[string]map[string]any{"scores": w},
			PubKey: "pk",
		})
		require.NoError(t, err)
		require.NoError(t, result.Fields["scores"].Err)
	}

	// Filtering by range key returns exactly that partition. The partition
	// key is the VALUE of the declared range-key attribute.
	q, err := n.ExecuteQuery(ctx, Query{
		Schema: "game",
		Fields: []string{"scores"},
		PubKey: "pk",
		Filter: &QueryFilter{RangeKey: "1"},
	})
	require.NoError(t, err)
	require.NoError(t, q.Fields["scores"].Err)

	got, ok := q.Fields["scores"].Value.(map[string]any)
	require.True(t, ok)
	require.Len(t, got, 1, "exactly one partition")
	entry, ok := got["1"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(10), entry["score"])

	// Unfiltered query sees both partitions.
	q, err = n.ExecuteQuery(ctx, Query{Schema: "game", Fields: []string{"scores"}, PubKey: "pk"})
	require.NoError(t, err)
	all, ok := q.Fields["scores"].Value.(map[string]any)
	require.True(t, ok)
	assert.Len(t, all, 2)
}

func TestRangeWriteWithoutRangeKeyAttribute(t *testing.T) {
	n := startNode(t, AllowAll{})
	ctx := context.Background()

	require.NoError(t, n.LoadSchema(ctx, model.Schema{
		Name: "game",
		Fields: map[string]model.Field{
			"scores": {FieldType: model.RefKindRange, RangeKey: "game_id"},
		},
	}))

	result, err := n.ExecuteMutation(ctx, Mutation{
		Schema: "game",
		Fields: map[string]map[string]any{"scores": {"score": float64(10)}},
		PubKey: "pk",
	})
	require.NoError(t, err)
	require.Error(t, result.Fields["scores"].Err)
	assert.Equal(t, fault.CodeInvalidField, fault.CodeOf(result.Fields["scores"].Err))
}

func TestCollectionWriteRequiresKeyEntry(t *testing.T) {
	n := startNode(t, AllowAll{})
	ctx := context.Background()

	require.NoError(t, n.LoadSchema(ctx, model.Schema{
		Name: "user",
		Fields: map[string]model.Field{
			"orders": {FieldType: model.RefKindCollection},
			"age":    {FieldType: model.RefKindSingle},
		},
	}))

	result, err := n.ExecuteMutation(ctx, Mutation{
		Schema: "user",
		Fields: map[string]map[string]any{
			"orders": {"total": float64(9)},
			"age":    scalar(float64(30)),
		},
		PubKey: "pk",
	})
	require.NoError(t, err)

	require.Error(t, result.Fields["orders"].Err, "collection write without a key entry")
	assert.NoError(t, result.Fields["age"].Err, "sibling write proceeds")
}

func TestCollectionWriteAndQuery(t *testing.T) {
	n := startNode(t, AllowAll{})
	ctx := context.Background()

	require.NoError(t, n.LoadSchema(ctx, model.Schema{
		Name:   "user",
		Fields: map[string]model.Field{"orders": {FieldType: model.RefKindCollection}},
	}))

	for _, w := range []map[string]any{
		{"key": "o-1", "total": float64(10)},
		{"key": "o-2", "total": float64(20)},
	} {
		result, err := n.ExecuteMutation(ctx, Mutation{
			Schema: "user",
			Fields: map[string]map[string]any{"orders": w},
			PubKey: "pk",
		})
		require.NoError(t, err)
		require.NoError(t, result.Fields["orders"].Err)
	}

	q, err := n.ExecuteQuery(ctx, Query{Schema: "user", Fields: []string{"orders"}, PubKey: "pk"})
	require.NoError(t, err)
	got, ok := q.Fields["orders"].Value.(map[string]any)
	require.True(t, ok)
	assert.Len(t, got, 2)
}

func TestDeleteWritesTombstone(t *testing.T) {
	n := startNode(t, AllowAll{})
	ctx := context.Background()

	require.NoError(t, n.LoadSchema(ctx, model.Schema{
		Name:   "user",
		Fields: map[string]model.Field{"age": {FieldType: model.RefKindSingle}},
	}))

	_, err := n.ExecuteMutation(ctx, Mutation{
		Schema: "user",
		Fields: map[string]map[string]any{"age": scalar(float64(30))},
		PubKey: "pk",
	})
	require.NoError(t, err)

	_, err = n.ExecuteMutation(ctx, Mutation{
		Schema: "user",
		Fields: map[string]map[string]any{"age": {}},
		PubKey: "pk",
		Op:     MutationOpDelete,
	})
	require.NoError(t, err)

	q, err := n.ExecuteQuery(ctx, Query{Schema: "user", Fields: []string{"age"}, PubKey: "pk"})
	require.NoError(t, err)
	content, ok := q.Fields["age"].Value.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, content["deleted"])

	// The tombstone extends the chain; the previous value is still in
	// history.
	s, err := n.Schemas().Get("user")
	require.NoError(t, err)
	history, err := n.Atoms().GetHistory(ctx, s.Fields["age"].RefAtomUUID, "")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(history), 3)
	assert.Equal(t, map[string]any{"value": float64(30)}, history[1].Content)
}

func TestQueryErrorIsolation(t *testing.T) {
	n := startNode(t, AllowAll{})
	ctx := context.Background()

	require.NoError(t, n.LoadSchema(ctx, model.Schema{
		Name:   "user",
		Fields: map[string]model.Field{"age": {FieldType: model.RefKindSingle}},
	}))

	q, err := n.ExecuteQuery(ctx, Query{Schema: "user", Fields: []string{"age", "ghost"}, PubKey: "pk"})
	require.NoError(t, err)

	assert.NoError(t, q.Fields["age"].Err)
	require.Error(t, q.Fields["ghost"].Err)
	assert.Equal(t, fault.CodeInvalidField, fault.CodeOf(q.Fields["ghost"].Err))
}

func TestExecuteOperationDispatch(t *testing.T) {
	n := startNode(t, AllowAll{})
	ctx := context.Background()

	require.NoError(t, n.LoadSchema(ctx, model.Schema{
		Name:   "user",
		Fields: map[string]model.Field{"age": {FieldType: model.RefKindSingle}},
	}))

	_, err := n.ExecuteOperation(ctx, Mutation{
		Schema: "user",
		Fields: map[string]map[string]any{"age": scalar(float64(1))},
		PubKey: "pk",
	})
	assert.NoError(t, err)

	_, err = n.ExecuteOperation(ctx, Query{Schema: "user", Fields: []string{"age"}, PubKey: "pk"})
	assert.NoError(t, err)

	_, err = n.ExecuteOperation(ctx, "not an operation")
	require.Error(t, err)
	assert.Equal(t, fault.CodeInvalidData, fault.CodeOf(err))
}

func TestRestartRestoresApprovedSchemaAndRegistry(t *testing.T) {
	s := testutil.OpenStore(t)
	ctx := context.Background()

	first := New(testutil.FastConfig(), s, AllowAll{})
	require.NoError(t, first.Start(ctx))
	require.NoError(t, first.LoadSchema(ctx, calcSchema()))
	require.NoError(t, first.Schemas().Approve(ctx, "calc"))

	_, err := first.ExecuteMutation(ctx, Mutation{
		Schema: "calc",
		Fields: map[string]map[string]any{"a": scalar(float64(1)), "b": scalar(float64(2))},
		PubKey: "pk",
	})
	require.NoError(t, err)
	first.Close()

	second := startNodeOver(t, s, AllowAll{})

	// Approved schema is active again and its registry entry still cascades.
	_, err = second.ExecuteMutation(ctx, Mutation{
		Schema: "calc",
		Fields: map[string]map[string]any{"a": scalar(float64(10))},
		PubKey: "pk",
	})
	require.NoError(t, err)

	q, err := second.ExecuteQuery(ctx, Query{Schema: "calc", Fields: []string{"sum"}, PubKey: "pk"})
	require.NoError(t, err)
	require.NoError(t, q.Fields["sum"].Err)
	assert.Equal(t, float64(12), q.Fields["sum"].Value)

	transforms := second.ListTransforms()
	assert.Equal(t, "calc.sum", transforms["calc.sum"])
}

func TestMappedFieldSharesChainAcrossSchemas(t *testing.T) {
	n := startNode(t, AllowAll{})
	ctx := context.Background()

	require.NoError(t, n.LoadSchema(ctx, model.Schema{
		Name:   "user",
		Fields: map[string]model.Field{"age": {FieldType: model.RefKindSingle}},
	}))
	require.NoError(t, n.LoadSchema(ctx, model.Schema{
		Name: "profile",
		Fields: map[string]model.Field{
			"years": {
				FieldType:    model.RefKindSingle,
				FieldMappers: []model.FieldMapper{{SourceSchema: "user", SourceField: "age"}},
			},
		},
	}))

	_, err := n.ExecuteMutation(ctx, Mutation{
		Schema: "user",
		Fields: map[string]map[string]any{"age": scalar(float64(44))},
		PubKey: "pk",
	})
	require.NoError(t, err)

	// The mapped field reads the same chain the source writes.
	q, err := n.ExecuteQuery(ctx, Query{Schema: "profile", Fields: []string{"years"}, PubKey: "pk"})
	require.NoError(t, err)
	require.NoError(t, q.Fields["years"].Err)
	assert.Equal(t, float64(44), q.Fields["years"].Value)
}
