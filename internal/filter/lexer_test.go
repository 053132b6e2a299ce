package filter

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// describe renders tokens as Kind(text) for readable comparisons.
// tokenize lexes input and drops the synthetic leading separator.
func tokenize(input string) ([]Token, error) {
	tokens, err := lexQuery(input)
	if err != nil {
		return nil, err
	}
	return tokens[1:], nil
}

func describe(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = fmt.Sprintf("%s(%s)", t.Kind, t.Text)
	}
	return out
}

func TestCursor(t *testing.T) {
	t.Parallel()

	c := newCursor("añb")
	c.rewind()
	assert.Equal(t, 0, c.pos, "rewind at start must not underflow")

	r, ok := c.next()
	require.True(t, ok)
	assert.Equal(t, 'a', r)

	r, ok = c.next()
	require.True(t, ok)
	assert.Equal(t, 'ñ', r)

	c.rewind()
	r, _ = c.next()
	assert.Equal(t, 'ñ', r)

	r, ok = c.next()
	require.True(t, ok)
	assert.Equal(t, 'b', r)

	_, ok = c.next()
	assert.False(t, ok)
}

func TestLexer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "simple predicates",
			input: "name:elmer,age:20",
			want: []string{
				"Literal(name)", "Operator(:)", "Literal(elmer)",
				"Operator(,)",
				"Literal(age)", "Operator(:)", "Literal(20)",
			},
		},
		{
			name:  "pipe inside double quotes",
			input: `name:"one|two"`,
			want:  []string{"Literal(name)", "Operator(:)", "QuotedString(one|two)"},
		},
		{
			name:  "equal sign inside double quotes",
			input: `name:"one=two"`,
			want:  []string{"Literal(name)", "Operator(:)", "QuotedString(one=two)"},
		},
		{
			name:  "parens inside double quotes",
			input: `name:"(one|two)"`,
			want:  []string{"Literal(name)", "Operator(:)", "QuotedString((one|two))"},
		},
		{
			name:  "space inside double quotes",
			input: `name:"hello world"`,
			want:  []string{"Literal(name)", "Operator(:)", "QuotedString(hello world)"},
		},
		{
			name:  "spaces around operators",
			input: `name = "elmer" , age > 20`,
			want: []string{
				"Literal(name)", "Operator(=)", "QuotedString(elmer)",
				"Operator(,)",
				"Literal(age)", "Operator(>)", "Literal(20)",
			},
		},
		{
			name:  "like operator",
			input: "name~elmer*",
			want:  []string{"Literal(name)", "Operator(~)", "Literal(elmer*)"},
		},
		{
			name:  "compound operator",
			input: "age>=20",
			want:  []string{"Literal(age)", "Operator(>=)", "Literal(20)"},
		},
		{
			name:  "or group",
			input: "name=(one|two|three)",
			want: []string{
				"Literal(name)", "Operator(=)", "LParen(()",
				"Literal(one)", "Operator(|)", "Literal(two)", "Operator(|)", "Literal(three)",
				"RParen())",
			},
		},
		{
			name:  "and group",
			input: "name=(one,two,three)",
			want: []string{
				"Literal(name)", "Operator(=)", "LParen(()",
				"Literal(one)", "Operator(,)", "Literal(two)", "Operator(,)", "Literal(three)",
				"RParen())",
			},
		},
		{
			name:  "single quotes",
			input: "name:'elmer'",
			want:  []string{"Literal(name)", "Operator(:)", "QuotedString(elmer)"},
		},
		{
			name:  "quoted group elements",
			input: "label=('k1: v1', 'k2: v2')",
			want: []string{
				"Literal(label)", "Operator(=)", "LParen(()",
				"QuotedString(k1: v1)", "Operator(,)", "QuotedString(k2: v2)",
				"RParen())",
			},
		},
		{
			name:  "escaped quote",
			input: `name:'it\'s'`,
			want:  []string{"Literal(name)", "Operator(:)", "QuotedString(it's)"},
		},
		{
			name:  "backslash not before quote is kept",
			input: `path:"a\b"`,
			want:  []string{"Literal(path)", "Operator(:)", `QuotedString(a\b)`},
		},
		{
			name:  "other quote character is plain text",
			input: `q:"it's"`,
			want:  []string{"Literal(q)", "Operator(:)", "QuotedString(it's)"},
		},
		{
			name:  "tab separates tokens",
			input: "name:elmer\t,\tage:20",
			want: []string{
				"Literal(name)", "Operator(:)", "Literal(elmer)",
				"Operator(,)", "Literal(age)", "Operator(:)", "Literal(20)",
			},
		},
		{
			name:  "escaped quote alone",
			input: `q:'\''`,
			want:  []string{"Literal(q)", "Operator(:)", "QuotedString(')"},
		},
		{
			name:  "quote ends a pending literal",
			input: `ab"cd"`,
			want:  []string{"Literal(ab)", "QuotedString(cd)"},
		},
		{
			name:  "paren ends a pending literal",
			input: `ab(cd)`,
			want:  []string{"Literal(ab)", "LParen(()", "Literal(cd)", "RParen())"},
		},
		{
			name:  "multibyte literals",
			input: "näme:wért",
			want:  []string{"Literal(näme)", "Operator(:)", "Literal(wért)"},
		},
		{
			name:  "only spaces",
			input: "   ",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tokens, err := tokenize(tt.input)
			require.NoError(t, err)

			if diff := cmp.Diff(tt.want, describe(tokens)); diff != "" {
				t.Errorf("tokenize(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestLexerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		code     ErrorCode
		position int
	}{
		{name: "unterminated double quote", input: `name:"elmer`, code: ErrorCodeUnterminatedQuote, position: 5},
		{name: "unterminated single quote", input: `name:'elmer`, code: ErrorCodeUnterminatedQuote, position: 5},
		{name: "escaped closing quote", input: `name:'elmer\'`, code: ErrorCodeUnterminatedQuote, position: 5},
		{name: "operator at end", input: "name:", code: ErrorCodeUnterminatedOperator, position: 4},
		{name: "empty single quotes", input: `name:''`, code: ErrorCodeEmptyQuote, position: 5},
		{name: "empty double quotes", input: `name:""`, code: ErrorCodeEmptyQuote, position: 5},
		{name: "empty quotes in group", input: `cat=('',a)`, code: ErrorCodeEmptyQuote, position: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tokenize(tt.input)
			require.Error(t, err)

			pe, ok := AsParseError(err)
			require.True(t, ok, "expected ParseError, got %T", err)
			assert.Equal(t, tt.code, pe.Code)
			assert.Equal(t, tt.position, pe.Position)
			assert.Equal(t, tt.input, pe.Query)
		})
	}
}

func TestLexQueryPositions(t *testing.T) {
	t.Parallel()

	tokens, err := lexQuery("ä:b (c)")
	require.NoError(t, err)
	require.Len(t, tokens, 7)

	assert.Equal(t, "Operator(,)", describe(tokens[:1])[0], "synthetic separator comes first")

	positions := make([]int, 0, len(tokens)-1)
	for _, tok := range tokens[1:] {
		positions = append(positions, tok.pos)
	}
	assert.Equal(t, []int{0, 1, 2, 4, 5, 6}, positions)
}

func TestLexQueryErrorPosition(t *testing.T) {
	t.Parallel()

	_, err := lexQuery(`a:"b`)
	require.Error(t, err)

	pe, ok := AsParseError(err)
	require.True(t, ok)
	assert.Equal(t, 2, pe.Position)
	assert.Equal(t, `a:"b`, pe.Query)
}
