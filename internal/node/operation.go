package node

// MutationOp distinguishes mutation intents. Deletion writes a tombstone
// atom; the chain itself is only removed by garbage collection, which is
// out of scope here.
type MutationOp string

const (
	MutationOpCreate MutationOp = "create"
	MutationOpUpdate MutationOp = "update"
	MutationOpDelete MutationOp = "delete"
)

// Mutation writes one value per named field of a schema.
//
// Value conventions per field variant:
//   - Single: any object; scalars conventionally as {"value": v}
//   - Collection: object containing "key" (the item key) plus the content
//   - Range: object containing the field's declared range-key attribute;
//     that attribute's VALUE partitions the write
type Mutation struct {
	Schema        string
	Fields        map[string]map[string]any
	PubKey        string
	TrustDistance int
	Op            MutationOp
}

// Query reads the named fields of a schema. Filter narrows Range fields to
// one partition; it is ignored for other variants.
type Query struct {
	Schema        string
	Fields        []string
	PubKey        string
	TrustDistance int
	Filter        *QueryFilter
}

// QueryFilter narrows a query. RangeKey selects one partition of a Range
// field by its declared range-key value.
type QueryFilter struct {
	RangeKey string
}

// FieldWrite reports one field's outcome within a mutation.
type FieldWrite struct {
	FieldKey string
	AtomUUID string
	Err      error
}

// MutationResult collects per-field outcomes. A failed field does not roll
// back its siblings; callers inspect each outcome.
type MutationResult struct {
	Fields map[string]FieldWrite
}

// FieldResult captures one field's query outcome. Errors are per-field:
// one bad field never aborts the rest of the query.
type FieldResult struct {
	Value any
	Err   error
}

// QueryResult maps requested field names to their outcomes.
type QueryResult struct {
	Fields map[string]FieldResult
}
