// Package atoms implements the atom/ref store manager.
//
// The manager owns the in-memory atom and ref caches, mirrors every write
// into durable storage synchronously before acknowledging it, and runs the
// background worker that consumes FieldValueSetRequest events off the bus.
package atoms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/lattice/internal/bus"
	"github.com/roach88/lattice/internal/canonical"
	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
)

// Manager owns the atom/ref caches and their durable mirror.
//
// Thread-safety: caches sit behind an RWMutex so the query path reads
// concurrently. Updates to the SAME ref are serialized by a per-ref lock so
// the version chain stays linear; updates to different refs proceed in
// parallel with no cross-ordering guarantee.
type Manager struct {
	store *store.Store

	mu        sync.RWMutex
	atomCache map[string]model.Atom
	refCache  map[string]model.AtomRef

	refLockMu sync.Mutex
	refLocks  map[string]*sync.Mutex
}

// NewManager creates a manager over the given store.
func NewManager(s *store.Store) *Manager {
	return &Manager{
		store:     s,
		atomCache: make(map[string]model.Atom),
		refCache:  make(map[string]model.AtomRef),
		refLocks:  make(map[string]*sync.Mutex),
	}
}

// Run starts the background worker consuming FieldValueSetRequest events.
// One worker per request type; the handler publishes exactly one response
// per request. Returns immediately; the worker exits with ctx or bus close.
func (m *Manager) Run(ctx context.Context, b *bus.Bus) {
	bus.Serve(ctx, b, func(req FieldValueSetRequest) FieldValueSetResponse {
		return m.HandleSet(ctx, req)
	})
}

// HandleSet appends one value to the field's chain and swaps the ref head.
// The durable write completes before the response is built: there are no
// unacknowledged writes.
func (m *Manager) HandleSet(ctx context.Context, req FieldValueSetRequest) FieldValueSetResponse {
	resp := FieldValueSetResponse{
		CorrelationID: req.CorrelationID,
		RefUUID:       req.RefUUID,
		FieldKey:      model.FieldKey(req.SchemaName, req.FieldName),
	}

	atom, err := m.setFieldValue(ctx, req)
	if err != nil {
		slog.Error("field value set failed",
			"field", resp.FieldKey, "ref", req.RefUUID, "err", err)
		resp.Error = err.Error()
		return resp
	}

	resp.Success = true
	resp.AtomUUID = atom.UUID
	return resp
}

func (m *Manager) setFieldValue(ctx context.Context, req FieldValueSetRequest) (model.Atom, error) {
	unlock := m.lockRef(req.RefUUID)
	defer unlock()

	ref, err := m.GetRef(ctx, req.RefUUID)
	if err != nil {
		return model.Atom{}, err
	}

	prev, _ := ref.Head(req.Key)
	atom, err := m.CreateAtom(ctx, req.SchemaName, req.SourcePubKey, prev, req.Value, model.AtomStatusActive)
	if err != nil {
		return model.Atom{}, err
	}

	switch ref.Kind {
	case model.RefKindSingle:
		err = m.updateRefLocked(ctx, &ref, atom.UUID, "", req.SourcePubKey)
	case model.RefKindCollection, model.RefKindRange:
		if req.Key == "" {
			return model.Atom{}, fault.New(fault.CodeInvalidField,
				"%s ref %s requires a key", ref.Kind, ref.UUID)
		}
		err = m.updateRefLocked(ctx, &ref, atom.UUID, req.Key, req.SourcePubKey)
	default:
		err = fault.New(fault.CodeInvalidData, "ref %s has unknown kind %q", ref.UUID, ref.Kind)
	}
	if err != nil {
		return model.Atom{}, err
	}
	return atom, nil
}

// CreateAtom appends one immutable atom. Pure append: it only fails if
// canonicalization or the backing write fails.
func (m *Manager) CreateAtom(
	ctx context.Context,
	schemaName, sourcePubKey, prevUUID string,
	content map[string]any,
	status model.AtomStatus,
) (model.Atom, error) {
	hash, err := canonical.ContentHash(content)
	if err != nil {
		return model.Atom{}, fault.New(fault.CodeInvalidData, "create atom: %v", err)
	}

	atom := model.Atom{
		UUID:         uuid.NewString(),
		SchemaName:   schemaName,
		SourcePubKey: sourcePubKey,
		Content:      content,
		ContentHash:  hash,
		PrevAtomUUID: prevUUID,
		Status:       status,
		CreatedAt:    time.Now().UTC(),
	}

	if err := m.store.WriteAtom(ctx, atom); err != nil {
		return model.Atom{}, err
	}

	m.mu.Lock()
	m.atomCache[atom.UUID] = atom
	m.mu.Unlock()
	return atom, nil
}

// CreateRef provisions a fresh ref of the given kind with no head.
func (m *Manager) CreateRef(ctx context.Context, kind model.RefKind, sourcePubKey string) (model.AtomRef, error) {
	ref := model.AtomRef{
		UUID:      uuid.NewString(),
		Kind:      kind,
		UpdatedBy: sourcePubKey,
		UpdatedAt: time.Now().UTC(),
	}
	if kind == model.RefKindCollection || kind == model.RefKindRange {
		ref.Entries = make(map[string]string)
	}

	if err := m.store.WriteRef(ctx, ref); err != nil {
		return model.AtomRef{}, err
	}

	m.mu.Lock()
	m.refCache[ref.UUID] = ref
	m.mu.Unlock()
	return ref, nil
}

// UpdateRef swaps the head of a Single ref.
func (m *Manager) UpdateRef(ctx context.Context, refUUID, atomUUID, sourcePubKey string) error {
	return m.updateRefByKey(ctx, refUUID, atomUUID, "", sourcePubKey, model.RefKindSingle)
}

// UpdateRefCollection swaps the head for one item key of a Collection ref.
func (m *Manager) UpdateRefCollection(ctx context.Context, refUUID, atomUUID, itemKey, sourcePubKey string) error {
	return m.updateRefByKey(ctx, refUUID, atomUUID, itemKey, sourcePubKey, model.RefKindCollection)
}

// UpdateRefRange swaps the head for one range key of a Range ref. The key
// must be the declared range-key VALUE of the field, never a sub-field name
// of the stored content.
func (m *Manager) UpdateRefRange(ctx context.Context, refUUID, atomUUID, rangeKey, sourcePubKey string) error {
	return m.updateRefByKey(ctx, refUUID, atomUUID, rangeKey, sourcePubKey, model.RefKindRange)
}

func (m *Manager) updateRefByKey(ctx context.Context, refUUID, atomUUID, key, sourcePubKey string, want model.RefKind) error {
	unlock := m.lockRef(refUUID)
	defer unlock()

	ref, err := m.GetRef(ctx, refUUID)
	if err != nil {
		return err
	}
	if ref.Kind != want {
		return fault.New(fault.CodeInvalidField, "ref %s is %s, not %s", refUUID, ref.Kind, want)
	}
	if want != model.RefKindSingle && key == "" {
		return fault.New(fault.CodeInvalidField, "%s ref %s requires a key", want, refUUID)
	}
	return m.updateRefLocked(ctx, &ref, atomUUID, key, sourcePubKey)
}

// updateRefLocked performs the head swap. Caller holds the per-ref lock.
func (m *Manager) updateRefLocked(ctx context.Context, ref *model.AtomRef, atomUUID, key, sourcePubKey string) error {
	switch ref.Kind {
	case model.RefKindSingle:
		ref.AtomUUID = atomUUID
	case model.RefKindCollection, model.RefKindRange:
		if ref.Entries == nil {
			ref.Entries = make(map[string]string)
		}
		ref.Entries[key] = atomUUID
	default:
		return fault.New(fault.CodeInvalidData, "ref %s has unknown kind %q", ref.UUID, ref.Kind)
	}
	ref.UpdatedBy = sourcePubKey
	ref.UpdatedAt = time.Now().UTC()

	// Durable mirror before the cache so an acknowledged head is on disk.
	if err := m.store.WriteRef(ctx, *ref); err != nil {
		return err
	}

	m.mu.Lock()
	m.refCache[ref.UUID] = *ref
	m.mu.Unlock()
	return nil
}

// GetAtom returns an atom from cache or storage.
func (m *Manager) GetAtom(ctx context.Context, uuid string) (model.Atom, error) {
	m.mu.RLock()
	atom, ok := m.atomCache[uuid]
	m.mu.RUnlock()
	if ok {
		return atom, nil
	}

	atom, err := m.store.GetAtom(ctx, uuid)
	if err != nil {
		return model.Atom{}, err
	}

	m.mu.Lock()
	m.atomCache[uuid] = atom
	m.mu.Unlock()
	return atom, nil
}

// GetRef returns a ref from cache or storage.
func (m *Manager) GetRef(ctx context.Context, uuid string) (model.AtomRef, error) {
	m.mu.RLock()
	ref, ok := m.refCache[uuid]
	m.mu.RUnlock()
	if ok {
		return ref, nil
	}

	ref, err := m.store.GetRef(ctx, uuid)
	if err != nil {
		return model.AtomRef{}, err
	}

	m.mu.Lock()
	m.refCache[uuid] = ref
	m.mu.Unlock()
	return ref, nil
}

// GetFieldValue resolves ref head -> atom -> content for one field key.
// key is ignored for Single refs.
func (m *Manager) GetFieldValue(ctx context.Context, refUUID, key string) (map[string]any, error) {
	ref, err := m.GetRef(ctx, refUUID)
	if err != nil {
		return nil, err
	}
	head, ok := ref.Head(key)
	if !ok {
		return nil, fault.New(fault.CodeNotFound, "ref %s has no head for key %q", refUUID, key)
	}
	atom, err := m.GetAtom(ctx, head)
	if err != nil {
		return nil, err
	}
	return atom.Content, nil
}

// GetHistory walks the version chain from the current head backwards and
// returns atoms newest-first. key selects the chain for Collection/Range
// refs and is ignored for Single refs.
//
// A missing link truncates the walk: the partial chain is returned with a
// logged diagnostic instead of failing the whole call.
func (m *Manager) GetHistory(ctx context.Context, refUUID, key string) ([]model.Atom, error) {
	ref, err := m.GetRef(ctx, refUUID)
	if err != nil {
		return nil, err
	}

	head, ok := ref.Head(key)
	if !ok {
		return []model.Atom{}, nil
	}

	var history []model.Atom
	cursor := head
	for cursor != "" {
		atom, err := m.GetAtom(ctx, cursor)
		if err != nil {
			slog.Warn("version chain broken; returning partial history",
				"ref", refUUID, "missing_atom", cursor, "walked", len(history), "err", err)
			break
		}
		history = append(history, atom)
		cursor = atom.PrevAtomUUID
	}
	return history, nil
}

// lockRef acquires the per-ref mutex, creating it on first use.
func (m *Manager) lockRef(refUUID string) func() {
	m.refLockMu.Lock()
	lock, ok := m.refLocks[refUUID]
	if !ok {
		lock = &sync.Mutex{}
		m.refLocks[refUUID] = lock
	}
	m.refLockMu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// NewCorrelationID returns a fresh time-sortable correlation id.
func NewCorrelationID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Set publishes a FieldValueSetRequest and waits for its response.
// Convenience wrapper used by the orchestrator and the cascade path.
func Set(b *bus.Bus, resp *bus.Consumer[FieldValueSetResponse], req FieldValueSetRequest, timeout, poll time.Duration) (FieldValueSetResponse, error) {
	if !bus.Publish(b, req) {
		return FieldValueSetResponse{}, fault.New(fault.CodeDisconnected, "bus closed")
	}
	r, err := bus.Await(resp, req.CorrelationID, timeout, poll)
	if err != nil {
		return FieldValueSetResponse{}, fmt.Errorf("await %s: %w", req.CorrelationID, err)
	}
	return r, nil
}
