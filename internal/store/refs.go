package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
)

// WriteRef upserts a ref row and, for Collection/Range refs, replaces the
// entry rows for the keys present in ref.Entries. The row write and entry
// writes happen in one transaction so a crash never leaves a ref half
// mirrored.
func (s *Store) WriteRef(ctx context.Context, ref model.AtomRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write ref %s: begin tx: %w", ref.UUID, err)
	}
	defer tx.Rollback() // No-op if committed

	var head any
	if ref.AtomUUID != "" {
		head = ref.AtomUUID
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO refs (uuid, kind, atom_uuid, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET
			atom_uuid = excluded.atom_uuid,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`,
		ref.UUID,
		string(ref.Kind),
		head,
		ref.UpdatedBy,
		ref.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("write ref %s: %w", ref.UUID, err)
	}

	for key, atomUUID := range ref.Entries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ref_entries (ref_uuid, entry_key, atom_uuid)
			VALUES (?, ?, ?)
			ON CONFLICT(ref_uuid, entry_key) DO UPDATE SET atom_uuid = excluded.atom_uuid
		`, ref.UUID, key, atomUUID)
		if err != nil {
			return fmt.Errorf("write ref %s entry %q: %w", ref.UUID, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write ref %s: commit: %w", ref.UUID, err)
	}
	return nil
}

// GetRef reads a ref and, for Collection/Range kinds, all of its entries.
// Returns a NotFound fault if absent.
func (s *Store) GetRef(ctx context.Context, uuid string) (model.AtomRef, error) {
	var (
		ref       model.AtomRef
		kind      string
		head      sql.NullString
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT uuid, kind, atom_uuid, updated_by, updated_at
		FROM refs WHERE uuid = ?
	`, uuid).Scan(&ref.UUID, &kind, &head, &ref.UpdatedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AtomRef{}, fault.New(fault.CodeNotFound, "ref %s not found", uuid)
	}
	if err != nil {
		return model.AtomRef{}, fmt.Errorf("get ref %s: %w", uuid, err)
	}

	ref.Kind = model.RefKind(kind)
	if head.Valid {
		ref.AtomUUID = head.String
	}
	ref.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return model.AtomRef{}, fault.New(fault.CodeInvalidData, "ref %s updated_at: %v", uuid, err)
	}

	switch ref.Kind {
	case model.RefKindSingle:
		// No entries.
	case model.RefKindCollection, model.RefKindRange:
		ref.Entries, err = s.readRefEntries(ctx, uuid)
		if err != nil {
			return model.AtomRef{}, err
		}
	default:
		return model.AtomRef{}, fault.New(fault.CodeInvalidData, "ref %s has unknown kind %q", uuid, kind)
	}

	return ref, nil
}

func (s *Store) readRefEntries(ctx context.Context, refUUID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entry_key, atom_uuid FROM ref_entries
		WHERE ref_uuid = ?
		ORDER BY entry_key ASC
	`, refUUID)
	if err != nil {
		return nil, fmt.Errorf("get ref %s entries: %w", refUUID, err)
	}
	defer rows.Close()

	entries := make(map[string]string)
	for rows.Next() {
		var key, atomUUID string
		if err := rows.Scan(&key, &atomUUID); err != nil {
			return nil, fmt.Errorf("scan ref %s entry: %w", refUUID, err)
		}
		entries[key] = atomUUID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ref %s entries: %w", refUUID, err)
	}
	return entries, nil
}
