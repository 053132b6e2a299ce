package filter

import (
	"strconv"
	"strings"
)

// Structural characters of the filter grammar.
const (
	Colon = ':'
	Comma = ','
	And   = Comma
	Or    = '|'
	Eq    = '='
	Like  = '~'
	Not   = '!'
	Lt    = '<'
	Gt    = '>'

	quote  = '"'
	squote = '\''
	escape = '\\'
	lparen = '('
	rparen = ')'
	dot    = '.'
)

// isOperatorChar reports whether r may appear in an operator run.
func isOperatorChar(r rune) bool {
	switch r {
	case Colon, Comma, Or, Eq, Like, Not, Lt, Gt:
		return true
	}
	return false
}

// Kind is the lexical class of a Token.
type Kind int

const (
	Literal Kind = iota
	QuotedString
	Operator
	LParen
	RParen
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "Literal"
	case QuotedString:
		return "QuotedString"
	case Operator:
		return "Operator"
	case LParen:
		return "LParen"
	case RParen:
		return "RParen"
	default:
		return "<unknown>"
	}
}

// Token is a lexical unit of a filter query. Tokens are values and are
// never modified after the lexer produces them.
type Token struct {
	Kind Kind
	Text string

	// pos is the rune offset of the token within the caller's query.
	pos int
}

// String returns the token text as it appeared in the query, without
// quotes for quoted strings.
func (t Token) String() string {
	return t.Text
}

// IsValue reports whether the token can stand in a value position.
func (t Token) IsValue() bool {
	return t.Kind == Literal || t.Kind == QuotedString
}

// AsValue coerces the token text. Bare literals are tried as an unsigned
// integer, then as a boolean; everything else is a string.
func (t Token) AsValue() TokenValue {
	switch t.Kind {
	case Literal:
		if n, err := strconv.ParseUint(t.Text, 10, 64); err == nil {
			return NumberValue(n)
		}
		switch t.Text {
		case "true":
			return BoolValue(true)
		case "false":
			return BoolValue(false)
		}
		return StringValue(t.Text)
	case QuotedString, Operator, LParen, RParen:
		return StringValue(t.Text)
	default:
		return StringValue(t.Text)
	}
}

// quoted renders the token the way it would have to be typed.
func (t Token) quoted() string {
	if t.Kind != QuotedString {
		return t.Text
	}
	var b strings.Builder
	b.WriteRune(quote)
	for _, r := range t.Text {
		if r == quote {
			b.WriteRune(escape)
		}
		b.WriteRune(r)
	}
	b.WriteRune(quote)
	return b.String()
}

// TokenValue is the coerced form of a token.
type TokenValue interface {
	tokenValue()
	String() string
}

// StringValue is a token that is neither a number nor a boolean.
type StringValue string

func (StringValue) tokenValue()      {}
func (v StringValue) String() string { return string(v) }

// NumberValue is a bare literal that parses as an unsigned integer.
type NumberValue uint64

func (NumberValue) tokenValue()      {}
func (v NumberValue) String() string { return strconv.FormatUint(uint64(v), 10) }

// BoolValue is a bare literal spelled true or false.
type BoolValue bool

func (BoolValue) tokenValue()      {}
func (v BoolValue) String() string { return strconv.FormatBool(bool(v)) }
