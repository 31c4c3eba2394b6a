// Package transform implements the transform registry and the cascade
// execution manager.
//
// The registry maintains four maps: transform definitions, field->transforms
// (who depends on a field), transform->fields (what a transform reads), and
// transform->output. Registration and unregistration persist the definition
// and both serialized dependency maps in one staged transaction; in-memory
// state changes only after the commit, so memory and disk never diverge on
// partial failure.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/lattice/internal/dsl"
	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
	"github.com/roach88/lattice/internal/store"
)

// Registry is the bidirectional dependency graph between fields and
// transforms. Passed by explicit handle; never a package-level singleton.
type Registry struct {
	store *store.Store

	mu                sync.RWMutex
	transforms        map[string]*model.Transform
	fieldToTransforms map[string]map[string]struct{} // field key -> transform ids
	transformToFields map[string]map[string]struct{} // transform id -> field keys
	transformOutputs  map[string]string              // transform id -> output field key
}

// NewRegistry creates an empty registry over the given store.
func NewRegistry(s *store.Store) *Registry {
	return &Registry{
		store:             s,
		transforms:        make(map[string]*model.Transform),
		fieldToTransforms: make(map[string]map[string]struct{}),
		transformToFields: make(map[string]map[string]struct{}),
		transformOutputs:  make(map[string]string),
	}
}

// Load restores the registry from storage on process start.
func (r *Registry) Load(ctx context.Context) error {
	transforms, err := r.store.ListTransforms(ctx)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	fieldMap, err := r.store.ReadRegistryMap(ctx, store.KeyFieldToTransforms)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	transformMap, err := r.store.ReadRegistryMap(ctx, store.KeyTransformToFields)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.transforms = transforms
	r.fieldToTransforms = inflate(fieldMap)
	r.transformToFields = inflate(transformMap)
	r.transformOutputs = make(map[string]string, len(transforms))
	for id, t := range transforms {
		r.transformOutputs[id] = t.Output
	}

	slog.Info("transform registry loaded", "transforms", len(transforms))
	return nil
}

// Register validates and stores a transform, merging it into all four maps.
// inputs are field keys ("schema.field"); when empty, they are derived by
// static dependency analysis of the logic, qualified against defaultSchema.
func (r *Registry) Register(ctx context.Context, id string, t *model.Transform, inputs []string, output string, defaultSchema string) error {
	if err := dsl.Validate(t.Logic); err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}
	if output == "" {
		return fault.New(fault.CodeInvalidTransform, "register %s: output field key required", id)
	}

	if len(inputs) == 0 {
		derived, err := t.EffectiveInputs()
		if err != nil {
			return fmt.Errorf("register %s: %w", id, err)
		}
		for _, name := range derived {
			inputs = append(inputs, qualify(name, defaultSchema))
		}
		sort.Strings(inputs)
	}

	t.Inputs = inputs
	t.Output = output

	r.mu.Lock()
	defer r.mu.Unlock()

	// Stage the post-registration view of both maps.
	fieldMap := deflate(r.fieldToTransforms)
	transformMap := deflate(r.transformToFields)
	for _, key := range inputs {
		fieldMap[key] = appendUnique(fieldMap[key], id)
	}
	transformMap[id] = appendUnique(nil, inputs...)

	// Commit durably, then mutate memory.
	if err := r.store.WriteRegistrySnapshot(ctx, id, t, fieldMap, transformMap); err != nil {
		return fmt.Errorf("register %s: %w", id, err)
	}

	r.transforms[id] = t
	for _, key := range inputs {
		if r.fieldToTransforms[key] == nil {
			r.fieldToTransforms[key] = make(map[string]struct{})
		}
		r.fieldToTransforms[key][id] = struct{}{}
	}
	fields := make(map[string]struct{}, len(inputs))
	for _, key := range inputs {
		fields[key] = struct{}{}
	}
	r.transformToFields[id] = fields
	r.transformOutputs[id] = output

	slog.Info("transform registered", "id", id, "inputs", inputs, "output", output)
	return nil
}

// Unregister removes a transform and symmetrically prunes every reverse-map
// entry that becomes empty. Unknown ids are a no-op.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.transforms[id]; !ok {
		return nil
	}

	fieldMap := deflate(r.fieldToTransforms)
	transformMap := deflate(r.transformToFields)
	delete(transformMap, id)
	for key, ids := range fieldMap {
		fieldMap[key] = removeString(ids, id)
		if len(fieldMap[key]) == 0 {
			delete(fieldMap, key)
		}
	}

	if err := r.store.WriteRegistrySnapshot(ctx, id, nil, fieldMap, transformMap); err != nil {
		return fmt.Errorf("unregister %s: %w", id, err)
	}

	delete(r.transforms, id)
	delete(r.transformOutputs, id)
	for key := range r.transformToFields[id] {
		delete(r.fieldToTransforms[key], id)
		if len(r.fieldToTransforms[key]) == 0 {
			delete(r.fieldToTransforms, key)
		}
	}
	delete(r.transformToFields, id)

	slog.Info("transform unregistered", "id", id)
	return nil
}

// RegisterSchemaTransforms registers every embedded transform of a schema
// under the derived id "schema.field", with that field as output. Declared
// inputs pass through; undeclared inputs are inferred from the logic and
// qualified against the schema's own name.
func (r *Registry) RegisterSchemaTransforms(ctx context.Context, s model.Schema) error {
	for fieldName, field := range s.Fields {
		if field.Transform == nil {
			continue
		}
		id := model.FieldKey(s.Name, fieldName)
		t := model.NewTransform(field.Transform.Logic, nil, id)
		if err := r.Register(ctx, id, t, field.Transform.Inputs, id, s.Name); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a registered transform.
func (r *Registry) Get(id string) (*model.Transform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transforms[id]
	if !ok {
		return nil, fault.New(fault.CodeNotFound, "transform %q not registered", id)
	}
	return t, nil
}

// DependentsOf returns the transforms reading the given field key, sorted
// for deterministic cascade order.
func (r *Registry) DependentsOf(fieldKey string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.fieldToTransforms[fieldKey]))
	for id := range r.fieldToTransforms[fieldKey] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// InputsOf returns a transform's input field keys, sorted.
func (r *Registry) InputsOf(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.transformToFields[id]))
	for key := range r.transformToFields[id] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// OutputOf returns a transform's output field key.
func (r *Registry) OutputOf(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out, ok := r.transformOutputs[id]
	return out, ok
}

// List returns transform id -> output field key for every registration.
func (r *Registry) List() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.transformOutputs))
	for id, output := range r.transformOutputs {
		out[id] = output
	}
	return out
}

// qualify turns a bare analyzed name into a field key. Names that already
// contain a dot are taken as fully qualified.
func qualify(name, defaultSchema string) string {
	for _, c := range name {
		if c == '.' {
			return name
		}
	}
	return model.FieldKey(defaultSchema, name)
}

func inflate(m map[string][]string) map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{}, len(m))
	for key, vals := range m {
		set := make(map[string]struct{}, len(vals))
		for _, v := range vals {
			set[v] = struct{}{}
		}
		out[key] = set
	}
	return out
}

func deflate(m map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(m))
	for key, set := range m {
		vals := make([]string, 0, len(set))
		for v := range set {
			vals = append(vals, v)
		}
		sort.Strings(vals)
		out[key] = vals
	}
	return out
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		found := false
		for _, existing := range dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	sort.Strings(dst)
	return dst
}

func removeString(vals []string, target string) []string {
	out := vals[:0]
	for _, v := range vals {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
