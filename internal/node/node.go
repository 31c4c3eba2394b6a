// Package node composes the storage and computation core: store, event bus,
// atom manager, schema core, transform registry, and the cascade manager,
// exposed through the mutation/query entry points.
package node

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/lattice/internal/atoms"
	"github.com/roach88/lattice/internal/bus"
	"github.com/roach88/lattice/internal/config"
	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/schema"
	"github.com/roach88/lattice/internal/store"
	"github.com/roach88/lattice/internal/transform"
)

// Node owns the wired core. All managers are reached through the Node
// handle; nothing here is a process-wide singleton.
type Node struct {
	cfg   config.Config
	store *store.Store
	bus   *bus.Bus

	atoms      *atoms.Manager
	schemas    *schema.Core
	registry   *transform.Registry
	transforms *transform.Manager
	perm       Permission

	cancel context.CancelFunc
}

// New wires a node over an opened store. Start must be called before the
// node serves operations.
func New(cfg config.Config, s *store.Store, perm Permission) *Node {
	n := &Node{
		cfg:   cfg,
		store: s,
		bus:   bus.New(),
		perm:  perm,
	}
	n.atoms = atoms.NewManager(s)
	n.schemas = schema.NewCore(s, n.atoms)
	n.registry = transform.NewRegistry(s)
	n.transforms = transform.NewManager(
		n.registry, n.atoms, n.bus, n,
		cfg.RequestTimeout, cfg.PollInterval, cfg.MaxCascadeDepth,
	)
	return n
}

// Start restores persisted state (approved schemas, transform registry) and
// launches the background workers.
func (n *Node) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	if err := n.schemas.LoadApproved(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	if err := n.registry.Load(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	n.atoms.Run(ctx, n.bus)
	slog.Info("node started", "db", n.cfg.DBPath)
	return nil
}

// Close stops the workers and shuts the bus down. The store is owned by the
// caller and stays open.
func (n *Node) Close() {
	if n.cancel != nil {
		n.cancel()
	}
	n.bus.Close()
}

// Bus exposes the event bus for observers (tests, network collaborators).
func (n *Node) Bus() *bus.Bus { return n.bus }

// Atoms exposes the atom manager for history introspection.
func (n *Node) Atoms() *atoms.Manager { return n.atoms }

// Schemas exposes the schema core.
func (n *Node) Schemas() *schema.Core { return n.schemas }

// Registry exposes the transform registry.
func (n *Node) Registry() *transform.Registry { return n.registry }

// Transforms exposes the cascade manager.
func (n *Node) Transforms() *transform.Manager { return n.transforms }

// ResolveFieldRef implements transform.FieldResolver over the active
// schema set.
func (n *Node) ResolveFieldRef(fieldKey string) (string, model.RefKind, error) {
	schemaName, fieldName := splitFieldKey(fieldKey)
	s, err := n.schemas.Get(schemaName)
	if err != nil {
		return "", "", err
	}
	field, ok := s.Fields[fieldName]
	if !ok {
		return "", "", fault.New(fault.CodeInvalidField, "schema %s has no field %q", schemaName, fieldName)
	}
	if field.RefAtomUUID == "" {
		return "", "", fault.New(fault.CodeInvalidField, "field %s has no ref binding", fieldKey)
	}
	return field.RefAtomUUID, field.FieldType, nil
}

// LoadSchema is the full schema intake path: validate and store, resolve
// field mappers, and register embedded transforms.
func (n *Node) LoadSchema(ctx context.Context, s model.Schema) error {
	if err := n.schemas.StoreSchema(ctx, s); err != nil {
		return err
	}
	if err := n.schemas.MapFields(ctx, s.Name); err != nil {
		return err
	}
	stored, err := n.schemas.Get(s.Name)
	if err != nil {
		return err
	}
	return n.registry.RegisterSchemaTransforms(ctx, stored)
}

// ExecuteOperation is the single entry point exposed to network/API
// collaborators: op must be a Mutation or a Query.
func (n *Node) ExecuteOperation(ctx context.Context, op any) (any, error) {
	switch o := op.(type) {
	case Mutation:
		return n.ExecuteMutation(ctx, o)
	case Query:
		return n.ExecuteQuery(ctx, o)
	default:
		return nil, fault.New(fault.CodeInvalidData, "unsupported operation type %T", op)
	}
}

// ListTransforms returns transform id -> output field key.
func (n *Node) ListTransforms() map[string]string {
	return n.registry.List()
}

func splitFieldKey(fieldKey string) (schemaName, fieldName string) {
	for i := len(fieldKey) - 1; i >= 0; i-- {
		if fieldKey[i] == '.' {
			return fieldKey[:i], fieldKey[i+1:]
		}
	}
	return "", fieldKey
}
