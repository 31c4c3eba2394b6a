// Package model defines the core data types shared across the node:
// atoms, atom refs, schemas, and transforms. The package is pure data:
// no storage, no bus, no evaluation.
package model

import "time"

// AtomStatus marks the lifecycle of an atom's content.
type AtomStatus string

const (
	// AtomStatusActive is ordinary written content.
	AtomStatusActive AtomStatus = "active"

	// AtomStatusPlaceholder marks the auto-provisioned atom bound to a
	// field at schema-store time, before any mutation has occurred.
	AtomStatusPlaceholder AtomStatus = "placeholder"

	// AtomStatusDeleted tombstones a value without breaking the chain.
	AtomStatusDeleted AtomStatus = "deleted"
)

// Atom is an immutable content unit. Every write to a field creates a new
// atom linked to the previous head via PrevAtomUUID, forming a singly-linked
// version chain back to the field's origin. Atoms are never mutated.
type Atom struct {
	UUID         string         `json:"uuid"`
	SchemaName   string         `json:"schema_name"`
	SourcePubKey string         `json:"source_pub_key"`
	Content      map[string]any `json:"content"`
	ContentHash  string         `json:"content_hash"`
	PrevAtomUUID string         `json:"prev_atom_uuid,omitempty"` // empty at chain origin
	Status       AtomStatus     `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}
