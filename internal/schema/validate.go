package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/lattice/internal/dsl"
	"github.com/roach88/lattice/internal/fault"
	"github.com/roach88/lattice/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// Values can only unify within one *cue.Context, so the compiled contract
// and its context live together. Access is serialized: cue.Context is not
// safe for concurrent use.
var (
	cueMu      sync.Mutex
	cueCtx     *cue.Context
	schemaDef  cue.Value
	compileErr error
)

// schemaDefinition compiles the embedded CUE contract once.
// Caller must hold cueMu.
func schemaDefinition() (cue.Value, error) {
	if cueCtx == nil && compileErr == nil {
		cueCtx = cuecontext.New()
		v := cueCtx.CompileString(schemaCUE)
		if err := v.Err(); err != nil {
			compileErr = fmt.Errorf("compile embedded schema contract: %w", err)
			return schemaDef, compileErr
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Schema"))
		if err := schemaDef.Err(); err != nil {
			compileErr = fmt.Errorf("lookup #Schema: %w", err)
		}
	}
	return schemaDef, compileErr
}

// Validate checks a schema document against the embedded CUE contract and
// pre-flights any embedded transform logic through the DSL parser.
func Validate(s model.Schema) error {
	// Round-trip through JSON so the CUE value sees the same shape the
	// store persists (json tags, omitted empties).
	doc, err := json.Marshal(s)
	if err != nil {
		return fault.New(fault.CodeInvalidData, "marshal schema %s: %v", s.Name, err)
	}

	cueMu.Lock()
	defer cueMu.Unlock()

	def, err := schemaDefinition()
	if err != nil {
		return err
	}

	v := cueCtx.CompileBytes(doc)
	if err := v.Err(); err != nil {
		return fault.New(fault.CodeInvalidData, "schema %s: %v", s.Name, err)
	}

	// The document is plain JSON, so the unified value must be fully
	// concrete; a constraint the document leaves unsatisfied (a range field
	// without its range_key) shows up as a non-concrete residue.
	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fault.New(fault.CodeInvalidData, "schema %s does not satisfy contract: %v", s.Name, err)
	}

	for fieldName, field := range s.Fields {
		if field.Transform == nil {
			continue
		}
		if err := dsl.Validate(field.Transform.Logic); err != nil {
			return fault.New(fault.CodeInvalidTransform,
				"schema %s field %s transform: %v", s.Name, fieldName, err)
		}
	}
	return nil
}
