package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/relatedb/s4/internal/value"
)

// Parser compiles the textual condition language straight into a
// Filter/Combiner tree, reusing the teacher's tokenizer (lexer.go) and
// recursive-descent shape but targeting this package's domain model
// instead of the teacher's ComparisonNode/AndNode/OrNode AST. This is a
// secondary, optional surface: programs are expected to build Condition
// trees directly with NewEqual/NewAnd/etc; the language exists for
// ad-hoc tooling (a REPL, a CLI flag) the way the teacher's query
// language served its issue tracker.
//
//	key=value, key!=value, key<value, key<=value, key>value, key>=value
//	AND, OR, NOT, parentheses for grouping
//
// Unquoted values parse as an int when they look like one; quoted values
// and everything else become a casefold string comparison, matching the
// index's own default ordering.
type Parser struct {
	lexer   *Lexer
	pool    *value.Pool
	current Token
	peeked  *Token
}

// NewParser creates a Parser for input, interning field names and
// string operands against pool.
func NewParser(input string, pool *value.Pool) *Parser {
	return &Parser{lexer: NewLexer(input), pool: pool}
}

// Parse compiles the textual condition into a Condition tree.
func (p *Parser) Parse() (Condition, error) {
	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.current.Type == TokenEOF {
		return nil, fmt.Errorf("empty query")
	}

	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d (expected end of query)", p.current.Value, p.current.Pos)
	}
	return cond, nil
}

// Compile is a convenience function parsing input against pool.
func Compile(input string, pool *value.Pool) (Condition, error) {
	return NewParser(input, pool).Parse()
}

func (p *Parser) advance() error {
	if p.peeked != nil {
		p.current = *p.peeked
		p.peeked = nil
		return nil
	}
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

func (p *Parser) parseOr() (Condition, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = NewOr(left, right)
	}
	return left, nil
}

func (p *Parser) parseAnd() (Condition, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = NewAnd(left, right)
	}
	return left, nil
}

func (p *Parser) parseNot() (Condition, error) {
	if p.current.Type == TokenNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return NewNot(operand), nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Condition, error) {
	if p.current.Type == TokenLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		cond, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, fmt.Errorf("expected ')' at position %d, got %s", p.current.Pos, p.current.Type.String())
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return cond, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (Condition, error) {
	if p.current.Type != TokenIdent {
		return nil, fmt.Errorf("expected key name at position %d, got %s", p.current.Pos, p.current.Type.String())
	}
	field := strings.ToLower(p.current.Value)
	if err := p.advance(); err != nil {
		return nil, err
	}

	kind := Equal
	switch p.current.Type {
	case TokenEquals:
		kind = Equal
	case TokenNotEquals:
		kind = NotEqual
	case TokenLess:
		kind = Smaller
	case TokenLessEq:
		kind = SmallerEq
	case TokenGreater:
		kind = Greater
	case TokenGreaterEq:
		kind = GreaterEq
	default:
		return nil, fmt.Errorf("expected comparison operator at position %d, got %s", p.current.Pos, p.current.Type.String())
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	var operand string
	quoted := false
	switch p.current.Type {
	case TokenIdent, TokenString, TokenNumber:
		operand = p.current.Value
		quoted = p.current.Type == TokenString
	default:
		return nil, fmt.Errorf("expected value at position %d, got %s", p.current.Pos, p.current.Type.String())
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	key := p.pool.InternStr(field)
	val := operandValue(operand)
	if quoted {
		sv := value.Str(operand)
		val = &sv
	}

	switch kind {
	case Equal:
		return NewEqual(key, val, value.Caseless), nil
	case NotEqual:
		return NewNotEqual(key, val, value.Caseless), nil
	case Smaller:
		return NewSmaller(key, val, value.Caseless), nil
	case SmallerEq:
		return NewSmallerEq(key, val, value.Caseless), nil
	case Greater:
		return NewGreater(key, val, value.Caseless), nil
	case GreaterEq:
		return NewGreaterEq(key, val, value.Caseless), nil
	default:
		return nil, fmt.Errorf("unreachable comparison kind %d", kind)
	}
}

func operandValue(s string) *value.Value {
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		v := value.Int(int32(n))
		return &v
	}
	v := value.Str(s)
	return &v
}
