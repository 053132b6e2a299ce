// Package match evaluates parsed filters against in-memory documents.
package match

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gobwas/glob"

	"github.com/ata-marzban/filterd/internal/filter"
)

// ErrUnsupportedOperator is returned for operator tokens the matcher does
// not give a meaning to, such as <>.
var ErrUnsupportedOperator = errors.New("unsupported operator")

// Document resolves a dotted field path to its value.
type Document interface {
	Lookup(path string) (string, bool)
}

// Fields is a Document over a flat map of dotted paths. Lookups fall back
// to a case-insensitive key match; when several keys fold to the same path
// the lexically smallest one wins.
type Fields map[string]string

func (f Fields) Lookup(path string) (string, bool) {
	if v, ok := f[path]; ok {
		return v, true
	}
	var keys []string
	for k := range f {
		if strings.EqualFold(k, path) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", false
	}
	sort.Strings(keys)
	return f[keys[0]], true
}

type comparison int

const (
	opEq comparison = iota
	opLike
	opLt
	opLte
	opGt
	opGte
)

// Match reports whether doc satisfies every predicate of f. An empty
// filter matches everything.
func Match(f *filter.Filter, doc Document) (bool, error) {
	for _, p := range f.Predicates() {
		ok, err := evalPredicate(p, doc)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Validate checks that every operator in f is one the matcher understands.
func Validate(f *filter.Filter) error {
	for _, p := range f.Predicates() {
		if _, _, err := parseOperator(p.Operator.Text); err != nil {
			return err
		}
	}
	return nil
}

func evalPredicate(p filter.Predicate, doc Document) (bool, error) {
	op, negate, err := parseOperator(p.Operator.Text)
	if err != nil {
		return false, err
	}

	actual, found := doc.Lookup(Path(p.Field.Text))
	if !found {
		return negate, nil
	}

	// A single value or an OR group holds when any element holds; an AND
	// group needs all of them.
	anyOf := p.Value.Separator() != filter.And
	result := !anyOf
	for _, v := range p.Value.Values() {
		ok, err := evalComparison(op, actual, v)
		if err != nil {
			return false, err
		}
		if anyOf && ok {
			result = true
			break
		}
		if !anyOf && !ok {
			result = false
			break
		}
	}

	if negate {
		return !result, nil
	}
	return result, nil
}

// Path converts a raw field text into a lookup path, unescaping dots.
func Path(field string) string {
	return strings.ReplaceAll(field, `\.`, ".")
}

func parseOperator(text string) (op comparison, negate bool, err error) {
	switch text {
	case ":", "=", "==":
		return opEq, false, nil
	case "!=", "!:":
		return opEq, true, nil
	case "~":
		return opLike, false, nil
	case "!~":
		return opLike, true, nil
	case "<":
		return opLt, false, nil
	case "<=":
		return opLte, false, nil
	case ">":
		return opGt, false, nil
	case ">=":
		return opGte, false, nil
	default:
		return 0, false, fmt.Errorf("%w: %q", ErrUnsupportedOperator, text)
	}
}

func evalComparison(op comparison, actual string, tok filter.Token) (bool, error) {
	if op == opLike {
		g, err := glob.Compile(tok.Text)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", tok.Text, err)
		}
		return g.Match(actual), nil
	}

	c := compare(actual, tok)
	switch op {
	case opEq:
		return c == 0, nil
	case opLt:
		return c < 0, nil
	case opLte:
		return c <= 0, nil
	case opGt:
		return c > 0, nil
	case opGte:
		return c >= 0, nil
	default:
		return false, nil
	}
}

// compare orders actual against the token value. Numbers compare by value
// when the document side is also a decimal integer, booleans when it is
// exactly true or false; everything else compares as text.
func compare(actual string, tok filter.Token) int {
	switch v := tok.AsValue().(type) {
	case filter.NumberValue:
		if n, err := strconv.ParseUint(actual, 10, 64); err == nil {
			switch {
			case n < uint64(v):
				return -1
			case n > uint64(v):
				return 1
			default:
				return 0
			}
		}
	case filter.BoolValue:
		if actual == "true" || actual == "false" {
			b := actual == "true"
			switch {
			case b == bool(v):
				return 0
			case !b:
				return -1
			default:
				return 1
			}
		}
	}
	return strings.Compare(actual, tok.Text)
}
