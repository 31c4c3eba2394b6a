package dsl

import (
	"strconv"

	"github.com/roach88/lattice/internal/fault"
)

// Parse compiles DSL source into an AST. It never evaluates anything; a
// malformed input yields an InvalidTransform fault describing the position.
//
// Grammar (precedence low to high):
//
//	expr    := "let" IDENT "=" expr ";" expr
//	         | "if" expr "then" expr "else" expr
//	         | or
//	or      := and ("||" and)*
//	and     := cmp ("&&" cmp)*
//	cmp     := add (("=="|"!="|"<"|"<="|">"|">=") add)?
//	add     := mul (("+"|"-") mul)*
//	mul     := pow (("*"|"/") pow)*
//	pow     := unary ("^" pow)?          right-associative
//	unary   := ("-"|"!") unary | postfix
//	postfix := primary ("." IDENT)*
//	primary := NUMBER | STRING | "true" | "false"
//	         | IDENT | IDENT "(" expr ("," expr)* ")" | "(" expr ")"
func Parse(source string) (Expr, error) {
	tokens, err := lex(source)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected trailing input %q", p.peek().text)
	}
	return expr, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) acceptOp(op string) bool {
	if t := p.peek(); t.kind == tokOp && t.text == op {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectOp(op string) error {
	if !p.acceptOp(op) {
		return p.errorf("expected %q, got %q", op, p.peek().text)
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fault.New(fault.CodeInvalidTransform, "syntax error at offset %d: "+format,
		append([]any{p.peek().pos}, args...)...)
}

func (p *parser) parseExpr() (Expr, error) {
	t := p.peek()
	if t.kind == tokKeyword && t.text == "let" {
		return p.parseLet()
	}
	if t.kind == tokKeyword && t.text == "if" {
		return p.parseIf()
	}
	return p.parseOr()
}

func (p *parser) parseLet() (Expr, error) {
	p.next() // let
	name := p.next()
	if name.kind != tokIdent {
		return nil, p.errorf("expected identifier after let, got %q", name.text)
	}
	if err := p.expectOp("="); err != nil {
		return nil, err
	}
	value, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(";"); err != nil {
		return nil, err
	}
	body, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &LetBinding{Name: name.text, Value: value, Body: body}, nil
}

func (p *parser) parseIf() (Expr, error) {
	p.next() // if
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.next(); t.kind != tokKeyword || t.text != "then" {
		return nil, p.errorf("expected 'then', got %q", t.text)
	}
	thenExpr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if t := p.next(); t.kind != tokKeyword || t.text != "else" {
		return nil, p.errorf("expected 'else', got %q", t.text)
	}
	elseExpr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &IfElse{Cond: cond, Then: thenExpr, Else: elseExpr}, nil
}

// parseBinaryLeft handles one left-associative precedence level.
func (p *parser) parseBinaryLeft(ops []string, operand func() (Expr, error)) (Expr, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		matched := false
		for _, op := range ops {
			if p.acceptOp(op) {
				right, err := operand()
				if err != nil {
					return nil, err
				}
				left = &BinaryOp{Left: left, Op: op, Right: right}
				matched = true
				break
			}
		}
		if !matched {
			return left, nil
		}
	}
}

func (p *parser) parseOr() (Expr, error) {
	return p.parseBinaryLeft([]string{"||"}, p.parseAnd)
}

func (p *parser) parseAnd() (Expr, error) {
	return p.parseBinaryLeft([]string{"&&"}, p.parseCmp)
}

func (p *parser) parseCmp() (Expr, error) {
	left, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	// Comparison is non-associative: at most one comparison per level.
	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if p.acceptOp(op) {
			right, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			return &BinaryOp{Left: left, Op: op, Right: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseAdd() (Expr, error) {
	return p.parseBinaryLeft([]string{"+", "-"}, p.parseMul)
}

func (p *parser) parseMul() (Expr, error) {
	return p.parseBinaryLeft([]string{"*", "/"}, p.parsePow)
}

func (p *parser) parsePow() (Expr, error) {
	base, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.acceptOp("^") {
		exp, err := p.parsePow() // right-associative
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Left: base, Op: "^", Right: exp}, nil
	}
	return base, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.acceptOp("-") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: "-", Operand: operand}, nil
	}
	if p.acceptOp("!") {
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: "!", Operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokDot {
		p.next()
		field := p.next()
		if field.kind != tokIdent {
			return nil, p.errorf("expected field name after '.', got %q", field.text)
		}
		expr = &FieldAccess{Object: expr, Field: field.text}
	}
	return expr, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", t.text)
		}
		return &Literal{Value: Number(f)}, nil

	case tokString:
		p.next()
		return &Literal{Value: String(t.text)}, nil

	case tokKeyword:
		switch t.text {
		case "true":
			p.next()
			return &Literal{Value: Bool(true)}, nil
		case "false":
			p.next()
			return &Literal{Value: Bool(false)}, nil
		}
		return nil, p.errorf("unexpected keyword %q", t.text)

	case tokIdent:
		p.next()
		if p.peek().kind == tokLParen {
			return p.parseCall(t.text)
		}
		return &Variable{Name: t.text}, nil

	case tokLParen:
		p.next()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorf("expected ')', got %q", p.peek().text)
		}
		p.next()
		return expr, nil

	default:
		return nil, p.errorf("unexpected token %q", t.text)
	}
}

func (p *parser) parseCall(name string) (Expr, error) {
	p.next() // (
	var args []Expr
	if p.peek().kind != tokRParen {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().kind == tokComma {
				p.next()
				continue
			}
			break
		}
	}
	if p.peek().kind != tokRParen {
		return nil, p.errorf("expected ')' in call to %s, got %q", name, p.peek().text)
	}
	p.next()
	return &FunctionCall{Name: name, Args: args}, nil
}
