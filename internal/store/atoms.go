package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/lattice/internal/canonical"
	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
)

// WriteAtom inserts an atom record. Atoms are append-only; a duplicate uuid
// is an InvalidData fault rather than a silent overwrite.
//
// Content is serialized to canonical JSON so a row read back hashes to the
// same ContentHash it was written with.
func (s *Store) WriteAtom(ctx context.Context, atom model.Atom) error {
	contentJSON, err := canonical.Marshal(atom.Content)
	if err != nil {
		return fault.New(fault.CodeInvalidData, "write atom %s: %v", atom.UUID, err)
	}

	var prev any
	if atom.PrevAtomUUID != "" {
		prev = atom.PrevAtomUUID
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO atoms
		(uuid, schema_name, source_pub_key, content, content_hash, prev_atom_uuid, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		atom.UUID,
		atom.SchemaName,
		atom.SourcePubKey,
		string(contentJSON),
		atom.ContentHash,
		prev,
		string(atom.Status),
		atom.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write atom %s: %w", atom.UUID, err)
	}
	return nil
}

// GetAtom reads one atom by uuid. Returns a NotFound fault if absent.
func (s *Store) GetAtom(ctx context.Context, uuid string) (model.Atom, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, schema_name, source_pub_key, content, content_hash, prev_atom_uuid, status, created_at
		FROM atoms
		WHERE uuid = ?
	`, uuid)

	atom, err := scanAtom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Atom{}, fault.New(fault.CodeNotFound, "atom %s not found", uuid)
	}
	if err != nil {
		return model.Atom{}, fmt.Errorf("get atom %s: %w", uuid, err)
	}
	return atom, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAtom(row rowScanner) (model.Atom, error) {
	var (
		atom      model.Atom
		content   string
		prev      sql.NullString
		status    string
		createdAt string
	)
	err := row.Scan(
		&atom.UUID, &atom.SchemaName, &atom.SourcePubKey,
		&content, &atom.ContentHash, &prev, &status, &createdAt,
	)
	if err != nil {
		return model.Atom{}, err
	}

	if err := json.Unmarshal([]byte(content), &atom.Content); err != nil {
		return model.Atom{}, fault.New(fault.CodeInvalidData, "atom %s content: %v", atom.UUID, err)
	}
	if prev.Valid {
		atom.PrevAtomUUID = prev.String
	}
	atom.Status = model.AtomStatus(status)

	atom.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return model.Atom{}, fault.New(fault.CodeInvalidData, "atom %s created_at: %v", atom.UUID, err)
	}
	return atom, nil
}
