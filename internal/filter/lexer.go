package filter

import (
	"unicode"
)

type lexer struct {
	cur    *cursor
	query  string // what the caller typed, for error reports
	offset int    // runes prepended to query before lexing
	buf    []rune
	start  int // cursor position of buf[0]
	tokens []Token
}

// lexQuery tokenizes a caller query behind a synthetic leading separator,
// so that every predicate is preceded by an operator token. Token positions
// and errors still refer to the caller's query.
func lexQuery(query string) ([]Token, error) {
	l := &lexer{
		cur:    newCursor(string(Comma) + query),
		query:  query,
		offset: 1,
	}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) run() error {
	for {
		ch, ok := l.cur.next()
		if !ok {
			break
		}

		switch {
		case ch == quote || ch == squote:
			l.cur.rewind()
			l.flush()
			tok, err := l.readQuoted()
			if err != nil {
				return err
			}
			l.tokens = append(l.tokens, tok)

		case unicode.IsSpace(ch):
			l.flush()

		case ch == lparen:
			l.flush()
			l.tokens = append(l.tokens, Token{Kind: LParen, Text: "(", pos: l.position(l.cur.pos - 1)})

		case ch == rparen:
			l.flush()
			l.tokens = append(l.tokens, Token{Kind: RParen, Text: ")", pos: l.position(l.cur.pos - 1)})

		case isOperatorChar(ch):
			l.cur.rewind()
			l.flush()
			tok, err := l.readOperator()
			if err != nil {
				return err
			}
			l.tokens = append(l.tokens, tok)

		default:
			if len(l.buf) == 0 {
				l.start = l.cur.pos - 1
			}
			l.buf = append(l.buf, ch)
		}
	}
	l.flush()
	return nil
}

// flush emits the pending literal, if there is one.
func (l *lexer) flush() {
	if len(l.buf) == 0 {
		return
	}
	l.tokens = append(l.tokens, Token{Kind: Literal, Text: string(l.buf), pos: l.position(l.start)})
	l.buf = l.buf[:0]
}

// readQuoted reads a quoted string starting at the opening quote. A quote
// preceded by a backslash is kept as text and the backslash is dropped.
// Token text is never empty, so '' is rejected.
func (l *lexer) readQuoted() (Token, error) {
	start := l.cur.pos
	q, _ := l.cur.next()

	var (
		b    []rune
		prev rune
	)
	for {
		ch, ok := l.cur.next()
		if !ok {
			return Token{}, newParseError(ErrorCodeUnterminatedQuote, l.query, l.position(start), string(q),
				"unterminated quoted string: missing closing %c", q)
		}
		if ch == q {
			if prev != escape {
				if len(b) == 0 {
					return Token{}, newParseError(ErrorCodeEmptyQuote, l.query, l.position(start), string(q)+string(q),
						"empty quoted string")
				}
				return Token{Kind: QuotedString, Text: string(b), pos: l.position(start)}, nil
			}
			b[len(b)-1] = ch
		} else {
			b = append(b, ch)
		}
		prev = ch
	}
}

// readOperator reads a maximal run of operator characters.
func (l *lexer) readOperator() (Token, error) {
	start := l.cur.pos

	var b []rune
	for {
		ch, ok := l.cur.next()
		if !ok {
			return Token{}, newParseError(ErrorCodeUnterminatedOperator, l.query, l.position(start), string(b),
				"operator %q is not followed by a value", string(b))
		}
		if !isOperatorChar(ch) {
			l.cur.rewind()
			return Token{Kind: Operator, Text: string(b), pos: l.position(start)}, nil
		}
		b = append(b, ch)
	}
}

// position maps a cursor position back onto the caller's query.
func (l *lexer) position(p int) int {
	return p - l.offset
}
