package filter

import (
	"strings"
)

// Value is the right-hand side of a predicate: a single value token, or
// the tokens of a group in order, separators included.
type Value []Token

// ByKind returns, in order, the tokens whose kind is one of kinds.
func (v Value) ByKind(kinds ...Kind) Value {
	var matched Value
	for _, t := range v {
		for _, k := range kinds {
			if t.Kind == k {
				matched = append(matched, t)
				break
			}
		}
	}
	return matched
}

// Values returns the value tokens, dropping separators.
func (v Value) Values() Value {
	return v.ByKind(Literal, QuotedString)
}

// Separators returns the separator tokens of a group.
func (v Value) Separators() Value {
	return v.ByKind(Operator)
}

// IsList reports whether the value came from a parenthesised group with
// more than one element.
func (v Value) IsList() bool {
	return len(v) > 1
}

// Separator returns the separator shared by the group: And, Or, or 0 for
// a single value.
func (v Value) Separator() rune {
	for _, t := range v {
		if t.Kind == Operator {
			return []rune(t.Text)[0]
		}
	}
	return 0
}

func (v Value) String() string {
	if len(v) == 1 {
		return v[0].quoted()
	}
	var b strings.Builder
	b.WriteRune(lparen)
	for _, t := range v {
		b.WriteString(t.quoted())
	}
	b.WriteRune(rparen)
	return b.String()
}

// Predicate is one field-operator-value condition. Separator is the token
// that preceded the predicate in the query; it carries no meaning.
type Predicate struct {
	Separator Token
	Field     Token
	Operator  Token
	Value     Value
}

// AsField wraps p in the Field accessor view.
func (p Predicate) AsField() Field {
	return Field{predicate: p}
}

func (p Predicate) String() string {
	return p.Field.Text + p.Operator.Text + p.Value.String()
}

// Filter is the ordered set of predicates parsed from a query. A nil
// *Filter behaves like an empty one.
type Filter struct {
	predicates []Predicate
}

// Predicates returns a copy of the predicates in query order.
func (f *Filter) Predicates() []Predicate {
	if f == nil {
		return nil
	}
	out := make([]Predicate, len(f.predicates))
	copy(out, f.predicates)
	return out
}

func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.predicates)
}

func (f *Filter) IsEmpty() bool {
	return f.Len() == 0
}

// Field returns the first predicate whose field matches name, ignoring case.
func (f *Filter) Field(name string) (Field, bool) {
	fields := f.Fields(name)
	if len(fields) == 0 {
		return Field{}, false
	}
	return fields[0], true
}

// Fields returns every predicate whose field matches name, ignoring case.
func (f *Filter) Fields(name string) []Field {
	if f == nil {
		return nil
	}
	name = strings.ToLower(name)

	var fields []Field
	for _, p := range f.predicates {
		if strings.ToLower(p.Field.Text) == name {
			fields = append(fields, Field{predicate: p})
		}
	}
	return fields
}

// Resource returns a new Filter holding the predicates whose field has the
// resource prefix r (ignoring case), with that prefix removed. Scoping
// chains: Resource("app").Resource("tag") selects app.tag.* fields.
func (f *Filter) Resource(r string) *Filter {
	scoped := &Filter{}
	if f == nil {
		return scoped
	}
	r = strings.ToLower(r)

	for _, p := range f.predicates {
		resource, ok, name := splitField(p.Field.Text)
		if !ok || strings.ToLower(resource) != r {
			continue
		}
		p.Field = Token{Kind: p.Field.Kind, Text: name, pos: p.Field.pos}
		scoped.predicates = append(scoped.predicates, p)
	}
	return scoped
}

// String renders the filter in canonical form. Parsing the result yields
// an equivalent filter.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	parts := make([]string, len(f.predicates))
	for i, p := range f.predicates {
		parts[i] = p.String()
	}
	return strings.Join(parts, string(Comma))
}

// Field is a read-only view of one predicate.
type Field struct {
	predicate Predicate
}

func (f Field) Predicate() Predicate {
	return f.predicate
}

// Split divides the field path at the first unescaped dot. For app.tag.id
// it returns ("app", true, "tag.id"); for a\.b it returns ("", false, "a.b").
func (f Field) Split() (resource string, ok bool, name string) {
	return splitField(f.predicate.Field.Text)
}

// Name returns the part of the field path after the resource prefix, or
// the whole path when there is no prefix.
func (f Field) Name() string {
	_, _, name := f.Split()
	return name
}

// Resource returns the resource prefix of the field path.
func (f Field) Resource() (string, bool) {
	resource, ok, _ := f.Split()
	return resource, ok
}

func (f Field) Value() Value {
	return f.predicate.Value
}

func (f Field) Operator() Token {
	return f.predicate.Operator
}

// splitField splits at the first dot not preceded by a backslash. Escaped
// dots before the split lose their backslash; the rest is kept verbatim.
func splitField(s string) (resource string, ok bool, name string) {
	runes := []rune(s)

	var b strings.Builder
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch == escape && i+1 < len(runes) && runes[i+1] == dot {
			b.WriteRune(dot)
			i++
			continue
		}
		if ch == dot {
			return b.String(), true, string(runes[i+1:])
		}
		b.WriteRune(ch)
	}
	return "", false, b.String()
}
