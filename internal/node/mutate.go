package node

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/lattice/internal/atoms"
	"github.com/roach88/lattice/internal/bus"
	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
)

// ExecuteMutation writes each named field through the event bus and runs
// the transform cascade for every field that acknowledged successfully.
//
// The permission check gates the whole mutation: a caller rejected for any
// named field writes nothing. Per-field write failures after that are
// collected in the result; cascade failures are observable only through
// logs and execution results, never through the mutation's own outcome.
func (n *Node) ExecuteMutation(ctx context.Context, m Mutation) (MutationResult, error) {
	result := MutationResult{Fields: make(map[string]FieldWrite)}

	s, err := n.schemas.Get(m.Schema)
	if err != nil {
		return result, err
	}

	// Permission pass over every named field before any write.
	for fieldName := range m.Fields {
		field, ok := s.Fields[fieldName]
		if !ok {
			return result, fault.New(fault.CodeInvalidField, "schema %s has no field %q", m.Schema, fieldName)
		}
		if !n.perm.HasWritePermission(m.PubKey, field.PermissionPolicy, m.TrustDistance) {
			return result, fault.New(fault.CodeInvalidPermission,
				"write to %s denied", model.FieldKey(m.Schema, fieldName))
		}
	}

	consumer := bus.Subscribe[atoms.FieldValueSetResponse](n.bus)
	if consumer == nil {
		return result, fault.New(fault.CodeDisconnected, "bus closed")
	}
	defer consumer.Close()

	for fieldName, value := range m.Fields {
		field := s.Fields[fieldName]
		fieldKey := model.FieldKey(m.Schema, fieldName)

		write := n.writeField(consumer, m, s.Name, fieldName, field, value)
		result.Fields[fieldName] = write
		if write.Err != nil {
			slog.Warn("field write failed", "field", fieldKey, "err", write.Err)
			continue
		}

		// A successful update triggers the dependents of this field key.
		// Cascade failures do not fail the mutation.
		for _, res := range n.transforms.Trigger(ctx, fieldKey) {
			if !res.OK {
				slog.Warn("cascade execution failed",
					"trigger", fieldKey, "transform", res.TransformID, "err", res.Err)
			}
		}
	}

	return result, nil
}

func (n *Node) writeField(
	consumer *bus.Consumer[atoms.FieldValueSetResponse],
	m Mutation,
	schemaName, fieldName string,
	field model.Field,
	value map[string]any,
) FieldWrite {
	fieldKey := model.FieldKey(schemaName, fieldName)
	write := FieldWrite{FieldKey: fieldKey}

	if field.RefAtomUUID == "" {
		write.Err = fault.New(fault.CodeInvalidField, "field %s has no ref binding", fieldKey)
		return write
	}

	key, err := mutationKey(field, value)
	if err != nil {
		write.Err = err
		return write
	}

	content := value
	if m.Op == MutationOpDelete {
		content = map[string]any{"deleted": true}
	}

	req := atoms.FieldValueSetRequest{
		CorrelationID: atoms.NewCorrelationID(),
		SchemaName:    schemaName,
		FieldName:     fieldName,
		RefUUID:       field.RefAtomUUID,
		Key:           key,
		Value:         content,
		SourcePubKey:  m.PubKey,
	}

	resp, err := atoms.Set(n.bus, consumer, req, n.cfg.RequestTimeout, n.cfg.PollInterval)
	if err != nil {
		write.Err = err
		return write
	}
	if !resp.Success {
		write.Err = fault.New(fault.CodeInvalidData, "write rejected: %s", resp.Error)
		return write
	}
	write.AtomUUID = resp.AtomUUID
	return write
}

// mutationKey derives the chain key for a write. Range fields partition by
// the declared range-key attribute's VALUE, never by a sub-field name.
// Collection fields take an explicit "key" entry.
func mutationKey(field model.Field, value map[string]any) (string, error) {
	switch field.FieldType {
	case model.RefKindSingle:
		return "", nil

	case model.RefKindCollection:
		raw, ok := value["key"]
		if !ok {
			return "", fault.New(fault.CodeInvalidField, "collection write requires a \"key\" entry")
		}
		key, ok := raw.(string)
		if !ok || key == "" {
			return "", fault.New(fault.CodeInvalidField, "collection key must be a non-empty string")
		}
		return key, nil

	case model.RefKindRange:
		raw, ok := value[field.RangeKey]
		if !ok {
			return "", fault.New(fault.CodeInvalidField,
				"range write requires the declared range-key attribute %q", field.RangeKey)
		}
		key := fmt.Sprintf("%v", raw)
		if key == "" {
			return "", fault.New(fault.CodeInvalidField, "range key value must be non-empty")
		}
		return key, nil

	default:
		return "", fault.New(fault.CodeInvalidData, "unknown field variant %q", field.FieldType)
	}
}
