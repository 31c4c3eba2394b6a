// Package schema implements the schema lifecycle: validation, storage,
// placeholder ref provisioning, approval state machine, field mappers, and
// the in-memory active set.
package schema

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/lattice/internal/atoms"
	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
)

// PlaceholderMarker is set in the content of the atom auto-provisioned for
// a field at schema-store time. A query before any mutation returns this
// well-defined placeholder rather than an error.
const PlaceholderMarker = "_uninitialized"

// Core owns schema storage and the in-memory active set. Passed by explicit
// handle; never a package-level singleton.
type Core struct {
	store *store.Store
	atoms *atoms.Manager

	mu     sync.RWMutex
	active map[string]model.Schema
}

// NewCore creates a schema core over the given store and atom manager.
func NewCore(s *store.Store, a *atoms.Manager) *Core {
	return &Core{
		store:  s,
		atoms:  a,
		active: make(map[string]model.Schema),
	}
}

// LoadApproved restores the active set on process start: every schema whose
// persisted state is Approved is reloaded; merely-Available schemas stay
// unloaded until asked for.
func (c *Core) LoadApproved(ctx context.Context) error {
	names, err := c.store.ListSchemasByState(ctx, model.SchemaStateApproved)
	if err != nil {
		return fmt.Errorf("load approved schemas: %w", err)
	}

	for _, name := range names {
		schema, err := c.store.GetSchema(ctx, name)
		if err != nil {
			return fmt.Errorf("load approved schema %s: %w", name, err)
		}
		if err := c.store.SetSchemaState(ctx, name, model.SchemaStateApproved, true); err != nil {
			return err
		}
		c.mu.Lock()
		c.active[name] = schema
		c.mu.Unlock()
		slog.Info("approved schema reloaded", "schema", name)
	}
	return nil
}

// StoreSchema validates and persists a new schema, provisioning refs for
// fields that lack a binding so every stored field is queryable immediately.
// The schema enters the active set in state Available, loaded.
//
// Re-storing an existing name fails regardless of content differences.
func (c *Core) StoreSchema(ctx context.Context, s model.Schema) error {
	if err := Validate(s); err != nil {
		return err
	}

	// Reject duplicates before provisioning so a re-store of an existing
	// name leaves no orphan refs or placeholder atoms behind.
	if _, _, err := c.store.GetSchemaState(ctx, s.Name); err == nil {
		return fault.New(fault.CodeInvalidData, "schema %q already exists", s.Name)
	} else if !fault.IsNotFound(err) {
		return err
	}

	for fieldName, field := range s.Fields {
		if field.RefAtomUUID != "" {
			continue
		}
		bound, err := c.provisionField(ctx, s.Name, fieldName, field)
		if err != nil {
			return fmt.Errorf("provision %s.%s: %w", s.Name, fieldName, err)
		}
		s.Fields[fieldName] = bound
	}

	if err := c.store.WriteSchema(ctx, s, model.SchemaStateAvailable, true); err != nil {
		return err
	}

	c.mu.Lock()
	c.active[s.Name] = s
	c.mu.Unlock()

	slog.Info("schema stored", "schema", s.Name, "fields", len(s.Fields))
	return nil
}

// provisionField binds a fresh ref to a field. Single fields additionally
// get a placeholder atom as their head so a pre-mutation query has a value
// to return; Collection and Range fields start with an empty key set, which
// is itself a well-defined query result.
func (c *Core) provisionField(ctx context.Context, schemaName, fieldName string, field model.Field) (model.Field, error) {
	ref, err := c.atoms.CreateRef(ctx, field.FieldType, "")
	if err != nil {
		return field, err
	}

	if field.FieldType == model.RefKindSingle {
		placeholder, err := c.atoms.CreateAtom(ctx, schemaName, "", "",
			map[string]any{PlaceholderMarker: true}, model.AtomStatusPlaceholder)
		if err != nil {
			return field, err
		}
		if err := c.atoms.UpdateRef(ctx, ref.UUID, placeholder.UUID, ""); err != nil {
			return field, err
		}
	}

	field.RefAtomUUID = ref.UUID
	return field, nil
}

// Approve moves a schema from Available to Approved.
func (c *Core) Approve(ctx context.Context, name string) error {
	return c.transition(ctx, name, model.SchemaStateAvailable, model.SchemaStateApproved)
}

// Block moves a schema to Blocked. Allowed from Available or Approved:
// blocking a bad schema must not require approving it first.
func (c *Core) Block(ctx context.Context, name string) error {
	state, _, err := c.store.GetSchemaState(ctx, name)
	if err != nil {
		return err
	}
	if state == model.SchemaStateBlocked {
		return nil
	}
	if err := c.store.SetSchemaState(ctx, name, model.SchemaStateBlocked, false); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.active, name)
	c.mu.Unlock()
	slog.Info("schema blocked", "schema", name)
	return nil
}

func (c *Core) transition(ctx context.Context, name string, from, to model.SchemaState) error {
	state, loaded, err := c.store.GetSchemaState(ctx, name)
	if err != nil {
		return err
	}
	if state != from {
		return fault.New(fault.CodeInvalidData,
			"schema %s is %s, cannot transition to %s (requires %s)", name, state, to, from)
	}
	if err := c.store.SetSchemaState(ctx, name, to, loaded); err != nil {
		return err
	}
	slog.Info("schema state changed", "schema", name, "from", from, "to", to)
	return nil
}

// Unload removes a schema from the active set without touching its on-disk
// definition or approval state.
func (c *Core) Unload(ctx context.Context, name string) error {
	state, _, err := c.store.GetSchemaState(ctx, name)
	if err != nil {
		return err
	}
	if err := c.store.SetSchemaState(ctx, name, state, false); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.active, name)
	c.mu.Unlock()
	return nil
}

// Reload puts a stored schema back into the active set.
func (c *Core) Reload(ctx context.Context, name string) error {
	schema, err := c.store.GetSchema(ctx, name)
	if err != nil {
		return err
	}
	state, _, err := c.store.GetSchemaState(ctx, name)
	if err != nil {
		return err
	}
	if state == model.SchemaStateBlocked {
		return fault.New(fault.CodeInvalidData, "schema %s is blocked", name)
	}
	if err := c.store.SetSchemaState(ctx, name, state, true); err != nil {
		return err
	}
	c.mu.Lock()
	c.active[name] = schema
	c.mu.Unlock()
	return nil
}

// Get returns a schema from the active set.
func (c *Core) Get(name string) (model.Schema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.active[name]
	if !ok {
		return model.Schema{}, fault.New(fault.CodeNotFound, "schema %q is not loaded", name)
	}
	return s, nil
}

// GetStored returns a schema definition from storage whether loaded or not.
func (c *Core) GetStored(ctx context.Context, name string) (model.Schema, error) {
	return c.store.GetSchema(ctx, name)
}

// ListByState returns schema names currently in the given approval state.
func (c *Core) ListByState(ctx context.Context, state model.SchemaState) ([]string, error) {
	return c.store.ListSchemasByState(ctx, state)
}

// Available filters names down to those present in the active set.
// Used as the availability callback by network-facing collaborators.
func (c *Core) Available(names []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subset := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := c.active[name]; ok {
			subset = append(subset, name)
		}
	}
	return subset
}

// MapFields resolves field mappers for one schema: each field carrying
// mappers adopts the ref binding of its source field, aliasing the two
// fields onto one atom chain. The rewritten definition is persisted and the
// active set updated.
func (c *Core) MapFields(ctx context.Context, schemaName string) error {
	c.mu.RLock()
	schema, ok := c.active[schemaName]
	c.mu.RUnlock()
	if !ok {
		return fault.New(fault.CodeNotFound, "schema %q is not loaded", schemaName)
	}

	changed := false
	for fieldName, field := range schema.Fields {
		for _, mapper := range field.FieldMappers {
			source, err := c.lookupField(ctx, mapper.SourceSchema, mapper.SourceField)
			if err != nil {
				return fault.New(fault.CodeMapping,
					"map %s.%s from %s.%s: %v", schemaName, fieldName, mapper.SourceSchema, mapper.SourceField, err)
			}
			if source.RefAtomUUID == "" {
				return fault.New(fault.CodeMapping,
					"map %s.%s: source %s.%s has no ref binding", schemaName, fieldName, mapper.SourceSchema, mapper.SourceField)
			}
			if source.FieldType != field.FieldType {
				return fault.New(fault.CodeMapping,
					"map %s.%s: variant mismatch (%s vs %s)", schemaName, fieldName, field.FieldType, source.FieldType)
			}
			field.RefAtomUUID = source.RefAtomUUID
			schema.Fields[fieldName] = field
			changed = true
		}
	}

	if !changed {
		return nil
	}

	if err := c.store.UpdateSchemaDefinition(ctx, schema); err != nil {
		return err
	}
	c.mu.Lock()
	c.active[schemaName] = schema
	c.mu.Unlock()
	return nil
}

func (c *Core) lookupField(ctx context.Context, schemaName, fieldName string) (model.Field, error) {
	c.mu.RLock()
	s, ok := c.active[schemaName]
	c.mu.RUnlock()
	if !ok {
		stored, err := c.store.GetSchema(ctx, schemaName)
		if err != nil {
			return model.Field{}, err
		}
		s = stored
	}
	field, ok := s.Fields[fieldName]
	if !ok {
		return model.Field{}, fault.New(fault.CodeInvalidField, "schema %s has no field %q", schemaName, fieldName)
	}
	return field, nil
}
