package dsl

// AnalyzeDependencies collects the root names an expression reads: every
// Variable reference plus the base name of every FieldAccess chain, minus
// names introduced by enclosing let-bindings.
//
// Used to derive a transform's input list when none is declared.
func AnalyzeDependencies(expr Expr) map[string]struct{} {
	deps := make(map[string]struct{})
	collectDeps(expr, map[string]bool{}, deps)
	return deps
}

func collectDeps(expr Expr, bound map[string]bool, deps map[string]struct{}) {
	switch e := expr.(type) {
	case *Literal:
		// No dependencies.

	case *Variable:
		if !bound[e.Name] {
			deps[e.Name] = struct{}{}
		}

	case *FieldAccess:
		// Only the chain's base object is a dependency; intermediate field
		// names are projections, not inputs.
		collectDeps(e.Object, bound, deps)

	case *BinaryOp:
		collectDeps(e.Left, bound, deps)
		collectDeps(e.Right, bound, deps)

	case *UnaryOp:
		collectDeps(e.Operand, bound, deps)

	case *LetBinding:
		collectDeps(e.Value, bound, deps)
		if bound[e.Name] {
			collectDeps(e.Body, bound, deps)
			return
		}
		bound[e.Name] = true
		collectDeps(e.Body, bound, deps)
		delete(bound, e.Name)

	case *IfElse:
		collectDeps(e.Cond, bound, deps)
		collectDeps(e.Then, bound, deps)
		collectDeps(e.Else, bound, deps)

	case *FunctionCall:
		for _, arg := range e.Args {
			collectDeps(arg, bound, deps)
		}
	}
}

// Validate checks that source parses. It never evaluates; use it for
// pre-flight checks before registering a transform.
func Validate(source string) error {
	_, err := Parse(source)
	return err
}
