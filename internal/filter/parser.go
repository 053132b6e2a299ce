package filter

// Parse parses a filter query such as
//
//	name:elmer,age>=20,category=(a|b|c),app.tag.id=0
//
// into an ordered Filter. An empty query yields an empty Filter. On error
// no Filter is returned; the error is a ParseError.
func Parse(query string) (*Filter, error) {
	if query == "" {
		return &Filter{}, nil
	}

	tokens, err := lexQuery(query)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: &tokenCursor{tokens: tokens}, query: query}
	predicates, err := p.parse()
	if err != nil {
		return nil, err
	}
	return &Filter{predicates: predicates}, nil
}

type parserState int

const (
	awaitSeparator parserState = iota
	awaitField
	awaitOperator
	awaitValue
)

func (s parserState) expecting() string {
	switch s {
	case awaitSeparator:
		return "separator"
	case awaitField:
		return "field name"
	case awaitOperator:
		return "operator"
	case awaitValue:
		return "value"
	default:
		return "token"
	}
}

type parser struct {
	tokens *tokenCursor
	query  string
}

// parse runs the predicate state machine:
//
//	separator -> field -> operator -> value -> separator ...
func (p *parser) parse() ([]Predicate, error) {
	var (
		state      = awaitSeparator
		cur        Predicate
		predicates []Predicate
	)

	for {
		tok, ok := p.tokens.next()
		if !ok {
			break
		}

		switch state {
		case awaitSeparator:
			if tok.Kind != Operator {
				return nil, p.unexpected(state, tok)
			}
			cur = Predicate{Separator: tok}
			state = awaitField

		case awaitField:
			if tok.Kind != Literal {
				return nil, p.unexpected(state, tok)
			}
			cur.Field = tok
			state = awaitOperator

		case awaitOperator:
			if tok.Kind != Operator {
				return nil, p.unexpected(state, tok)
			}
			cur.Operator = tok
			state = awaitValue

		case awaitValue:
			switch tok.Kind {
			case Literal, QuotedString:
				cur.Value = Value{tok}
			case LParen:
				p.tokens.rewind()
				lb := &listBuilder{tokens: p.tokens, query: p.query}
				v, err := lb.build()
				if err != nil {
					return nil, err
				}
				cur.Value = v
			case Operator, RParen:
				return nil, p.unexpected(state, tok)
			}
			predicates = append(predicates, cur)
			cur = Predicate{}
			state = awaitSeparator
		}
	}

	if state != awaitSeparator {
		return nil, newParseError(ErrorCodeIncompletePredicate, p.query, len([]rune(p.query)), "",
			"unexpected end of filter: expected %s", state.expecting())
	}
	return predicates, nil
}

func (p *parser) unexpected(state parserState, tok Token) error {
	return newParseError(ErrorCodeSyntax, p.query, tok.pos, tok.Text,
		"expected %s, got %s %q", state.expecting(), tok.Kind, tok.Text)
}
