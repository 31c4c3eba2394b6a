package model

import "time"

// RefKind discriminates the AtomRef variants. The set is closed; all
// dispatch over it must switch exhaustively.
type RefKind string

const (
	// RefKindSingle points at one head atom for a scalar field.
	RefKindSingle RefKind = "single"

	// RefKindCollection maps an item key to a head atom; each key has an
	// independent version chain.
	RefKindCollection RefKind = "collection"

	// RefKindRange maps a range key (the externally meaningful partition
	// value) to a head atom.
	RefKindRange RefKind = "range"
)

// AtomRef is the mutable pointer from a field (or field key) to the current
// head of its atom chain.
//
// Single refs use AtomUUID; Collection and Range refs use Entries keyed by
// item key or range key respectively. At any instant a ref (or ref entry)
// has exactly one head, and following PrevAtomUUID from that head yields one
// unbroken linear chain.
//
// Range invariant: Entries are keyed by the declared range-key VALUE of the
// field, never by a sub-field name of the stored content. Keying by anything
// else leaks data across partitions.
type AtomRef struct {
	UUID      string            `json:"uuid"`
	Kind      RefKind           `json:"kind"`
	AtomUUID  string            `json:"atom_uuid,omitempty"` // head, Single only
	Entries   map[string]string `json:"entries,omitempty"`   // key -> head, Collection/Range
	UpdatedBy string            `json:"updated_by"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Head returns the head atom uuid for the given key. For Single refs the
// key is ignored. Returns false if there is no head for the key.
func (r *AtomRef) Head(key string) (string, bool) {
	switch r.Kind {
	case RefKindSingle:
		return r.AtomUUID, r.AtomUUID != ""
	case RefKindCollection, RefKindRange:
		uuid, ok := r.Entries[key]
		return uuid, ok
	default:
		return "", false
	}
}
