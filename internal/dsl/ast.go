// Package dsl implements the transform expression language: lexer, parser,
// AST, pure interpreter, and static dependency analysis.
//
// The language is expression-only. Numeric semantics are IEEE-754 double
// precision. Evaluation is deterministic and side-effect free; all failures
// surface as typed errors, never panics.
package dsl

import "encoding/json"

// Expr is the sealed AST node interface.
// Only the node types in this file implement it.
type Expr interface {
	expr() // sealed
}

// Literal is a number, boolean, or string constant.
type Literal struct {
	Value Value
}

// Variable references a binding by name.
type Variable struct {
	Name string
}

// FieldAccess projects a field out of an object expression.
type FieldAccess struct {
	Object Expr
	Field  string
}

// BinaryOp applies an infix operator.
type BinaryOp struct {
	Left  Expr
	Op    string
	Right Expr
}

// UnaryOp applies a prefix operator ("-" or "!").
type UnaryOp struct {
	Op      string
	Operand Expr
}

// LetBinding introduces a name for the duration of its body.
type LetBinding struct {
	Name  string
	Value Expr
	Body  Expr
}

// IfElse selects between two branches. Both branches are required so the
// expression always has a value.
type IfElse struct {
	Cond Expr
	Then Expr
	Else Expr
}

// FunctionCall invokes a built-in by name.
type FunctionCall struct {
	Name string
	Args []Expr
}

func (*Literal) expr()      {}
func (*Variable) expr()     {}
func (*FieldAccess) expr()  {}
func (*BinaryOp) expr()     {}
func (*UnaryOp) expr()      {}
func (*LetBinding) expr()   {}
func (*IfElse) expr()       {}
func (*FunctionCall) expr() {}

// The MarshalJSON implementations tag each node with a "type" discriminator
// so AST snapshots are stable and self-describing (used by golden tests and
// the CLI's --format json output).

func (e *Literal) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"type": "literal", "value": ToAny(e.Value)})
}

func (e *Variable) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"type": "variable", "name": e.Name})
}

func (e *FieldAccess) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"type": "field_access", "object": e.Object, "field": e.Field})
}

func (e *BinaryOp) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"type": "binary_op", "op": e.Op, "left": e.Left, "right": e.Right})
}

func (e *UnaryOp) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"type": "unary_op", "op": e.Op, "operand": e.Operand})
}

func (e *LetBinding) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"type": "let", "name": e.Name, "value": e.Value, "body": e.Body})
}

func (e *IfElse) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"type": "if", "cond": e.Cond, "then": e.Then, "else": e.Else})
}

func (e *FunctionCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"type": "call", "name": e.Name, "args": e.Args})
}
