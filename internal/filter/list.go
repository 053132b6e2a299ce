package filter

// listBuilder collects a parenthesised value group such as (red|blue|green).
type listBuilder struct {
	tokens *tokenCursor
	query  string
}

// build consumes tokens up to and including the closing paren. The token
// cursor must be positioned on the opening paren.
func (b *listBuilder) build() (Value, error) {
	open, _ := b.tokens.next()

	var v Value
	for {
		tok, ok := b.tokens.next()
		if !ok {
			return nil, newParseError(ErrorCodeUnterminatedGroup, b.query, open.pos, open.Text,
				"missing closing ) for group")
		}

		switch tok.Kind {
		case Literal, QuotedString:
			v = append(v, tok)
		case Operator:
			if tok.Text != string(And) && tok.Text != string(Or) {
				return nil, newParseError(ErrorCodeInvalidSeparator, b.query, tok.pos, tok.Text,
					"list separator must be %q or %q, got %q", And, Or, tok.Text)
			}
			v = append(v, tok)
		case LParen:
			// Groups do not nest; a stray ( is ignored.
		case RParen:
			if err := b.validate(v, open); err != nil {
				return nil, err
			}
			return v, nil
		}
	}
}

// validate checks that v alternates value, separator, value with a single
// separator throughout.
func (b *listBuilder) validate(v Value, open Token) error {
	if len(v) == 0 {
		return newParseError(ErrorCodeEmptyGroup, b.query, open.pos, open.Text, "list cannot be empty")
	}

	var sep string
	for i, tok := range v {
		if i%2 == 0 {
			if !tok.IsValue() {
				return newParseError(ErrorCodeGroupOrder, b.query, tok.pos, tok.Text,
					"expected a value at list position %d, got %s %q", i, tok.Kind, tok.Text)
			}
			continue
		}

		if tok.Kind != Operator {
			return newParseError(ErrorCodeGroupOrder, b.query, tok.pos, tok.Text,
				"expected a separator at list position %d, got %s %q", i, tok.Kind, tok.Text)
		}
		if sep == "" {
			sep = tok.Text
		} else if tok.Text != sep {
			return newParseError(ErrorCodeMixedSeparators, b.query, tok.pos, tok.Text,
				"mixed separators in list: %q and %q", sep, tok.Text)
		}
	}

	if len(v)%2 == 0 {
		last := v[len(v)-1]
		return newParseError(ErrorCodeGroupOrder, b.query, last.pos, last.Text, "list ends with separator %q", last.Text)
	}
	return nil
}
