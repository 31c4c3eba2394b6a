package node

import (
	"context"

	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
)

// ExecuteQuery resolves each requested field to its current value. Errors
// are captured per field; a missing value or denied field never aborts the
// rest of the query.
func (n *Node) ExecuteQuery(ctx context.Context, q Query) (QueryResult, error) {
	result := QueryResult{Fields: make(map[string]FieldResult)}

	s, err := n.schemas.Get(q.Schema)
	if err != nil {
		return result, err
	}

	for _, fieldName := range q.Fields {
		result.Fields[fieldName] = n.queryField(ctx, s, fieldName, q)
	}
	return result, nil
}

func (n *Node) queryField(ctx context.Context, s model.Schema, fieldName string, q Query) FieldResult {
	field, ok := s.Fields[fieldName]
	if !ok {
		return FieldResult{Err: fault.New(fault.CodeInvalidField, "schema %s has no field %q", s.Name, fieldName)}
	}
	if !n.perm.HasReadPermission(q.PubKey, field.PermissionPolicy, q.TrustDistance) {
		return FieldResult{Err: fault.New(fault.CodeInvalidPermission,
			"read of %s denied", model.FieldKey(s.Name, fieldName))}
	}
	if field.RefAtomUUID == "" {
		return FieldResult{Err: fault.New(fault.CodeInvalidField, "field %s.%s has no ref binding", s.Name, fieldName)}
	}

	switch field.FieldType {
	case model.RefKindSingle:
		content, err := n.atoms.GetFieldValue(ctx, field.RefAtomUUID, "")
		if err != nil {
			return FieldResult{Err: err}
		}
		return FieldResult{Value: unwrapScalar(content)}

	case model.RefKindCollection:
		return n.queryKeyed(ctx, field.RefAtomUUID, "")

	case model.RefKindRange:
		rangeKey := ""
		if q.Filter != nil {
			rangeKey = q.Filter.RangeKey
		}
		return n.queryKeyed(ctx, field.RefAtomUUID, rangeKey)

	default:
		return FieldResult{Err: fault.New(fault.CodeInvalidData, "unknown field variant %q", field.FieldType)}
	}
}

// queryKeyed reads a Collection/Range ref. A non-empty filterKey narrows
// the result to exactly that partition: data stored under other keys is
// never included.
func (n *Node) queryKeyed(ctx context.Context, refUUID, filterKey string) FieldResult {
	ref, err := n.atoms.GetRef(ctx, refUUID)
	if err != nil {
		return FieldResult{Err: err}
	}

	out := make(map[string]any)
	for key := range ref.Entries {
		if filterKey != "" && key != filterKey {
			continue
		}
		content, err := n.atoms.GetFieldValue(ctx, refUUID, key)
		if err != nil {
			return FieldResult{Err: err}
		}
		out[key] = unwrapScalar(content)
	}
	return FieldResult{Value: out}
}

// unwrapScalar unwraps the {"value": v} convention used for scalar writes,
// leaving richer objects untouched.
func unwrapScalar(content map[string]any) any {
	if len(content) == 1 {
		if v, ok := content["value"]; ok {
			return v
		}
	}
	return content
}
