package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
)

// WriteSchema inserts a schema definition. Schemas are immutable: writing a
// name that already exists fails with an InvalidData fault ("already
// exists") regardless of whether the definitions differ.
//
// The lifecycle row is created alongside, inside one transaction.
func (s *Store) WriteSchema(ctx context.Context, schema model.Schema, state model.SchemaState, loaded bool) error {
	def, err := json.Marshal(schema)
	if err != nil {
		return fault.New(fault.CodeInvalidData, "marshal schema %s: %v", schema.Name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write schema %s: begin tx: %w", schema.Name, err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx,
		`INSERT INTO schemas (name, definition) VALUES (?, ?)`,
		schema.Name, string(def),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fault.New(fault.CodeInvalidData, "schema %q already exists", schema.Name)
		}
		return fmt.Errorf("write schema %s: %w", schema.Name, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_states (name, state, loaded) VALUES (?, ?, ?)`,
		schema.Name, string(state), boolToInt(loaded),
	)
	if err != nil {
		return fmt.Errorf("write schema %s state: %w", schema.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write schema %s: commit: %w", schema.Name, err)
	}
	return nil
}

// UpdateSchemaDefinition rewrites the stored definition in place.
// Reserved for internal rebinding (placeholder refs, field mappers);
// user-visible schema content is immutable.
func (s *Store) UpdateSchemaDefinition(ctx context.Context, schema model.Schema) error {
	def, err := json.Marshal(schema)
	if err != nil {
		return fault.New(fault.CodeInvalidData, "marshal schema %s: %v", schema.Name, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schemas SET definition = ? WHERE name = ?`,
		string(def), schema.Name,
	)
	if err != nil {
		return fmt.Errorf("update schema %s: %w", schema.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update schema %s: %w", schema.Name, err)
	}
	if n == 0 {
		return fault.New(fault.CodeNotFound, "schema %q not found", schema.Name)
	}
	return nil
}

// GetSchema reads a schema definition by name.
func (s *Store) GetSchema(ctx context.Context, name string) (model.Schema, error) {
	var def string
	err := s.db.QueryRowContext(ctx,
		`SELECT definition FROM schemas WHERE name = ?`, name,
	).Scan(&def)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Schema{}, fault.New(fault.CodeNotFound, "schema %q not found", name)
	}
	if err != nil {
		return model.Schema{}, fmt.Errorf("get schema %s: %w", name, err)
	}

	var schema model.Schema
	if err := json.Unmarshal([]byte(def), &schema); err != nil {
		return model.Schema{}, fault.New(fault.CodeInvalidData, "schema %s definition: %v", name, err)
	}
	return schema, nil
}

// SetSchemaState updates the approval state and loaded flag.
func (s *Store) SetSchemaState(ctx context.Context, name string, state model.SchemaState, loaded bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schema_states SET state = ?, loaded = ? WHERE name = ?`,
		string(state), boolToInt(loaded), name,
	)
	if err != nil {
		return fmt.Errorf("set schema %s state: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set schema %s state: %w", name, err)
	}
	if n == 0 {
		return fault.New(fault.CodeNotFound, "schema %q not found", name)
	}
	return nil
}

// GetSchemaState reads the approval state and loaded flag.
func (s *Store) GetSchemaState(ctx context.Context, name string) (model.SchemaState, bool, error) {
	var (
		state  string
		loaded int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT state, loaded FROM schema_states WHERE name = ?`, name,
	).Scan(&state, &loaded)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, fault.New(fault.CodeNotFound, "schema %q not found", name)
	}
	if err != nil {
		return "", false, fmt.Errorf("get schema %s state: %w", name, err)
	}
	return model.SchemaState(state), loaded != 0, nil
}

// ListSchemasByState returns schema names in the given state, sorted.
func (s *Store) ListSchemasByState(ctx context.Context, state model.SchemaState) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM schema_states
		WHERE state = ?
		ORDER BY name ASC
	`, string(state))
	if err != nil {
		return nil, fmt.Errorf("list schemas by state: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan schema name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema names: %w", err)
	}
	return names, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
