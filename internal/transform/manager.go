package transform

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/lattice/internal/atoms"
	"github.com/roach88/lattice/internal/bus"
	"github.com/roach88/lattice/internal/dsl"
	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
)

// FieldResolver maps a field key to its ref binding. Implemented by the
// orchestrator over the schema core; the manager itself stays schema-blind.
type FieldResolver interface {
	ResolveFieldRef(fieldKey string) (refUUID string, kind model.RefKind, err error)
}

// Result reports one transform execution within a cascade.
// Failures are captured here and logged; they never abort sibling
// executions and never surface through the triggering mutation's result.
type Result struct {
	TransformID string
	Affected    int
	OK          bool
	Err         error
}

// Triggered is published on the bus for each transform execution, making
// cascade activity observable without coupling callers to the manager.
type Triggered struct {
	TransformID string
	FieldKey    string
	OK          bool
}

// Manager executes transforms: one-shot via ExecuteTransform and cascading
// via Trigger. Output writes go through the event bus as ordinary field-set
// requests, so a transform's output update is indistinguishable from a
// caller mutation and transitively triggers further cascades.
type Manager struct {
	registry *Registry
	atoms    *atoms.Manager
	bus      *bus.Bus
	resolver FieldResolver

	timeout  time.Duration
	poll     time.Duration
	maxDepth int
}

// NewManager wires a cascade manager.
func NewManager(r *Registry, a *atoms.Manager, b *bus.Bus, resolver FieldResolver, timeout, poll time.Duration, maxDepth int) *Manager {
	return &Manager{
		registry: r,
		atoms:    a,
		bus:      b,
		resolver: resolver,
		timeout:  timeout,
		poll:     poll,
		maxDepth: maxDepth,
	}
}

// Trigger runs the cascade for one updated field key: every transform
// reading that field executes, and each successful output write recursively
// triggers its own dependents within the same cascade scope.
//
// Per-transform failures are captured in the returned results; one failing
// transform never stops its siblings.
func (m *Manager) Trigger(ctx context.Context, fieldKey string) []Result {
	scope := newCascadeScope(m.maxDepth)
	return m.trigger(ctx, fieldKey, scope)
}

func (m *Manager) trigger(ctx context.Context, fieldKey string, scope *cascadeScope) []Result {
	var results []Result
	for _, id := range m.registry.DependentsOf(fieldKey) {
		res := m.executeScoped(ctx, id, scope)
		results = append(results, res.results...)
	}
	return results
}

// ExecuteTransform runs one transform immediately with a fresh cascade
// scope. Returns the number of affected field updates (the output write
// plus everything its cascade wrote), overall success, and the first error.
func (m *Manager) ExecuteTransform(ctx context.Context, id string) (int, bool, error) {
	scope := newCascadeScope(m.maxDepth)
	run := m.executeScoped(ctx, id, scope)

	affected := 0
	ok := true
	var firstErr error
	for _, r := range run.results {
		affected += r.Affected
		if !r.OK {
			ok = false
			if firstErr == nil {
				firstErr = r.Err
			}
		}
	}
	return affected, ok, firstErr
}

// scopedRun wraps the flattened results of one execution plus its cascade.
type scopedRun struct {
	results []Result
}

func (m *Manager) executeScoped(ctx context.Context, id string, scope *cascadeScope) scopedRun {
	fail := func(err error) scopedRun {
		slog.Error("transform execution failed", "transform", id, "err", err)
		bus.Publish(m.bus, Triggered{TransformID: id, OK: false})
		return scopedRun{results: []Result{{TransformID: id, OK: false, Err: err}}}
	}

	if scope.wouldCycle(id) {
		return fail(fault.New(fault.CodeCycleDetected,
			"transform %s already executed in this cascade", id))
	}
	if scope.exceeded() {
		return fail(fault.New(fault.CodeCycleDetected,
			"cascade depth limit %d reached at transform %s", scope.maxDepth, id))
	}
	scope.record(id)

	t, err := m.registry.Get(id)
	if err != nil {
		return fail(err)
	}
	output, ok := m.registry.OutputOf(id)
	if !ok {
		return fail(fault.New(fault.CodeNotFound, "transform %s has no output binding", id))
	}

	bindings, err := m.gatherInputs(ctx, id)
	if err != nil {
		return fail(err)
	}

	expr, err := t.Parsed()
	if err != nil {
		return fail(err)
	}
	value, err := dsl.Evaluate(expr, bindings)
	if err != nil {
		return fail(err)
	}

	if err := m.writeOutput(output, value); err != nil {
		return fail(err)
	}

	slog.Debug("transform executed", "transform", id, "output", output)
	bus.Publish(m.bus, Triggered{TransformID: id, FieldKey: output, OK: true})

	run := scopedRun{results: []Result{{TransformID: id, Affected: 1, OK: true}}}

	// The output may itself be some other transform's input.
	scope.depth++
	run.results = append(run.results, m.trigger(ctx, output, scope)...)
	scope.depth--
	return run
}

// gatherInputs resolves every input field key to its current head content
// and binds it under the field's bare name. Content written as
// {"value": v} binds the scalar v; anything else binds the whole object.
func (m *Manager) gatherInputs(ctx context.Context, id string) (dsl.Bindings, error) {
	bindings := make(dsl.Bindings)
	for _, fieldKey := range m.registry.InputsOf(id) {
		refUUID, _, err := m.resolver.ResolveFieldRef(fieldKey)
		if err != nil {
			return nil, fault.New(fault.CodeInvalidField, "input %s: %v", fieldKey, err)
		}
		content, err := m.atoms.GetFieldValue(ctx, refUUID, "")
		if err != nil {
			return nil, fault.New(fault.CodeNotFound, "input %s has no value: %v", fieldKey, err)
		}

		value, err := dsl.FromAny(unwrapScalar(content))
		if err != nil {
			return nil, fault.New(fault.CodeInvalidTransform, "input %s: %v", fieldKey, err)
		}
		bindings[bareName(fieldKey)] = value
	}
	return bindings, nil
}

// writeOutput publishes the output value as an ordinary field-set request
// and waits for the manager's acknowledgement. Only Single output fields
// are supported: a keyed output would need a partition key no expression
// can supply.
func (m *Manager) writeOutput(fieldKey string, value dsl.Value) error {
	refUUID, kind, err := m.resolver.ResolveFieldRef(fieldKey)
	if err != nil {
		return fault.New(fault.CodeInvalidField, "output %s: %v", fieldKey, err)
	}
	if kind != model.RefKindSingle {
		return fault.New(fault.CodeInvalidTransform,
			"output %s is a %s field; transform outputs must be single", fieldKey, kind)
	}

	schemaName, fieldName := splitFieldKey(fieldKey)
	req := atoms.FieldValueSetRequest{
		CorrelationID: atoms.NewCorrelationID(),
		SchemaName:    schemaName,
		FieldName:     fieldName,
		RefUUID:       refUUID,
		Value:         map[string]any{"value": dsl.ToAny(value)},
		SourcePubKey:  "transform:" + fieldKey,
	}

	consumer := bus.Subscribe[atoms.FieldValueSetResponse](m.bus)
	if consumer == nil {
		return fault.New(fault.CodeDisconnected, "bus closed")
	}
	defer consumer.Close()

	resp, err := atoms.Set(m.bus, consumer, req, m.timeout, m.poll)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fault.New(fault.CodeInvalidData, "output %s write rejected: %s", fieldKey, resp.Error)
	}
	return nil
}

// unwrapScalar unwraps the {"value": v} convention used for scalar writes.
func unwrapScalar(content map[string]any) any {
	if len(content) == 1 {
		if v, ok := content["value"]; ok {
			return v
		}
	}
	return content
}

func bareName(fieldKey string) string {
	if i := strings.LastIndex(fieldKey, "."); i >= 0 {
		return fieldKey[i+1:]
	}
	return fieldKey
}

func splitFieldKey(fieldKey string) (schemaName, fieldName string) {
	if i := strings.LastIndex(fieldKey, "."); i >= 0 {
		return fieldKey[:i], fieldKey[i+1:]
	}
	return "", fieldKey
}
