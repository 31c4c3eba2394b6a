package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
)

// Well-known registry_kv keys for the serialized dependency maps.
const (
	KeyFieldToTransforms = "field_to_transforms"
	KeyTransformToFields = "transform_to_fields"
)

// WriteTransform upserts one transform definition.
func (s *Store) WriteTransform(ctx context.Context, id string, t *model.Transform) error {
	inputs, err := json.Marshal(t.Inputs)
	if err != nil {
		return fault.New(fault.CodeInvalidData, "marshal transform %s inputs: %v", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transforms (id, logic, inputs, output)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			logic = excluded.logic,
			inputs = excluded.inputs,
			output = excluded.output
	`, id, t.Logic, string(inputs), t.Output)
	if err != nil {
		return fmt.Errorf("write transform %s: %w", id, err)
	}
	return nil
}

// DeleteTransform removes one transform definition. Deleting a missing id
// is not an error; unregistration is idempotent.
func (s *Store) DeleteTransform(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM transforms WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transform %s: %w", id, err)
	}
	return nil
}

// GetTransform reads one transform by id.
func (s *Store) GetTransform(ctx context.Context, id string) (*model.Transform, error) {
	var logic, inputsJSON, output string
	err := s.db.QueryRowContext(ctx,
		`SELECT logic, inputs, output FROM transforms WHERE id = ?`, id,
	).Scan(&logic, &inputsJSON, &output)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.CodeNotFound, "transform %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transform %s: %w", id, err)
	}

	var inputs []string
	if err := json.Unmarshal([]byte(inputsJSON), &inputs); err != nil {
		return nil, fault.New(fault.CodeInvalidData, "transform %s inputs: %v", id, err)
	}
	return model.NewTransform(logic, inputs, output), nil
}

// ListTransforms returns all persisted transforms keyed by id.
func (s *Store) ListTransforms(ctx context.Context) (map[string]*model.Transform, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, logic, inputs, output FROM transforms ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list transforms: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*model.Transform)
	for rows.Next() {
		var id, logic, inputsJSON, output string
		if err := rows.Scan(&id, &logic, &inputsJSON, &output); err != nil {
			return nil, fmt.Errorf("scan transform: %w", err)
		}
		var inputs []string
		if err := json.Unmarshal([]byte(inputsJSON), &inputs); err != nil {
			return nil, fault.New(fault.CodeInvalidData, "transform %s inputs: %v", id, err)
		}
		out[id] = model.NewTransform(logic, inputs, output)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transforms: %w", err)
	}
	return out, nil
}

// WriteRegistrySnapshot persists a transform definition (or deletion) and
// both dependency-map blobs in ONE transaction. The registry mutates its
// in-memory maps only after this commits, so durable state and memory never
// diverge on partial failure.
//
// transform may be nil, meaning "delete id" (unregistration).
func (s *Store) WriteRegistrySnapshot(
	ctx context.Context,
	id string,
	transform *model.Transform,
	fieldToTransforms map[string][]string,
	transformToFields map[string][]string,
) error {
	fieldBlob, err := json.Marshal(fieldToTransforms)
	if err != nil {
		return fault.New(fault.CodeInvalidData, "marshal field map: %v", err)
	}
	transformBlob, err := json.Marshal(transformToFields)
	if err != nil {
		return fault.New(fault.CodeInvalidData, "marshal transform map: %v", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("registry snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if transform != nil {
		inputs, err := json.Marshal(transform.Inputs)
		if err != nil {
			return fault.New(fault.CodeInvalidData, "marshal transform %s inputs: %v", id, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transforms (id, logic, inputs, output)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				logic = excluded.logic,
				inputs = excluded.inputs,
				output = excluded.output
		`, id, transform.Logic, string(inputs), transform.Output)
		if err != nil {
			return fmt.Errorf("registry snapshot: transform %s: %w", id, err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transforms WHERE id = ?`, id); err != nil {
			return fmt.Errorf("registry snapshot: delete %s: %w", id, err)
		}
	}

	for key, blob := range map[string][]byte{
		KeyFieldToTransforms: fieldBlob,
		KeyTransformToFields: transformBlob,
	} {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO registry_kv (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, key, string(blob))
		if err != nil {
			return fmt.Errorf("registry snapshot: blob %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("registry snapshot: commit: %w", err)
	}
	return nil
}

// ReadRegistryMap loads one serialized dependency-map blob. A missing key
// yields an empty map (fresh database).
func (s *Store) ReadRegistryMap(ctx context.Context, key string) (map[string][]string, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM registry_kv WHERE key = ?`, key,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string][]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry map %s: %w", key, err)
	}

	out := map[string][]string{}
	if err := json.Unmarshal([]byte(blob), &out); err != nil {
		return nil, fault.New(fault.CodeInvalidData, "registry map %s: %v", key, err)
	}
	return out, nil
}
