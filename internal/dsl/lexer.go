package dsl

import (
	"strings"
	"unicode"

	"github.com/roach88/lattice/internal/fault"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokKeyword // let, if, then, else, true, false
	tokOp      // + - * / ^ < > <= >= == != && || ! = ;
	tokLParen
	tokRParen
	tokComma
	tokDot
)

type token struct {
	kind tokenKind
	text string
	pos  int // byte offset in source, for diagnostics
}

var keywords = map[string]bool{
	"let": true, "if": true, "then": true, "else": true,
	"true": true, "false": true,
}

// twoCharOps are matched before single-character operators.
var twoCharOps = []string{"==", "!=", "<=", ">=", "&&", "||"}

// lex tokenizes source. Returns a syntax fault on any unrecognized input.
func lex(source string) ([]token, error) {
	var tokens []token
	i := 0
	n := len(source)

	for i < n {
		c := source[i]

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c >= '0' && c <= '9':
			start := i
			for i < n && (source[i] >= '0' && source[i] <= '9' || source[i] == '.') {
				i++
			}
			tokens = append(tokens, token{tokNumber, source[start:i], start})

		case c == '"':
			start := i
			i++
			var sb strings.Builder
			for i < n && source[i] != '"' {
				if source[i] == '\\' && i+1 < n {
					i++
				}
				sb.WriteByte(source[i])
				i++
			}
			if i >= n {
				return nil, fault.New(fault.CodeInvalidTransform, "unterminated string at offset %d", start)
			}
			i++ // closing quote
			tokens = append(tokens, token{tokString, sb.String(), start})

		case isIdentStart(rune(c)):
			start := i
			for i < n && isIdentPart(rune(source[i])) {
				i++
			}
			text := source[start:i]
			kind := tokIdent
			if keywords[text] {
				kind = tokKeyword
			}
			tokens = append(tokens, token{kind, text, start})

		case c == '(':
			tokens = append(tokens, token{tokLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")", i})
			i++
		case c == ',':
			tokens = append(tokens, token{tokComma, ",", i})
			i++
		case c == '.':
			tokens = append(tokens, token{tokDot, ".", i})
			i++

		default:
			matched := false
			for _, op := range twoCharOps {
				if strings.HasPrefix(source[i:], op) {
					tokens = append(tokens, token{tokOp, op, i})
					i += 2
					matched = true
					break
				}
			}
			if matched {
				break
			}
			if strings.ContainsRune("+-*/^<>=!;", rune(c)) {
				tokens = append(tokens, token{tokOp, string(c), i})
				i++
				break
			}
			return nil, fault.New(fault.CodeInvalidTransform, "unexpected character %q at offset %d", c, i)
		}
	}

	tokens = append(tokens, token{tokEOF, "", n})
	return tokens, nil
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
