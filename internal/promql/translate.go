package promql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/prometheus/prometheus/model/labels"
	"github.com/prometheus/prometheus/promql/parser"

	"github.com/ata-marzban/filterd/internal/filter"
	"github.com/ata-marzban/filterd/internal/match"
)

// ErrUntranslatable is returned for filters that have no label matcher
// equivalent, such as ordering comparisons.
var ErrUntranslatable = errors.New("filter cannot be expressed as label matchers")

// LabelName converts a filter field path to a Prometheus label name.
//
// Dots become underscores and any other character outside [a-zA-Z0-9_]
// is replaced with an underscore; a leading digit gets a "_" prefix.
//
// Example: "labels.zone" → "labels_zone"
// Example: "app.tag-id" → "app_tag_id"
func LabelName(field string) string {
	path := match.Path(field)
	var b strings.Builder
	b.Grow(len(path) + 1)
	for i, r := range path {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// GlobToRegexp translates a glob pattern (* and ?) into an RE2 expression.
// Everything else is matched literally.
func GlobToRegexp(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	return b.String()
}

// Matchers maps every predicate of f to label matchers.
//
//   - =, :, ==   → MatchEqual
//   - !=, !:     → MatchNotEqual
//   - ~          → MatchRegexp (glob translated)
//   - !~         → MatchNotRegexp
//
// A list joined with | becomes a single regexp alternation; a list joined
// with , becomes one matcher per element. Negated , lists and ordering
// operators return ErrUntranslatable.
func Matchers(f *filter.Filter) ([]*labels.Matcher, error) {
	var out []*labels.Matcher
	for _, p := range f.Predicates() {
		ms, err := predicateMatchers(p)
		if err != nil {
			return nil, fmt.Errorf("predicate %s: %w", p, err)
		}
		out = append(out, ms...)
	}
	return out, nil
}

func predicateMatchers(p filter.Predicate) ([]*labels.Matcher, error) {
	name := LabelName(p.Field.Text)
	values := p.Value.Values()

	var like, negate bool
	switch p.Operator.Text {
	case ":", "=", "==":
	case "!=", "!:":
		negate = true
	case "~":
		like = true
	case "!~":
		like, negate = true, true
	case "<", "<=", ">", ">=":
		return nil, fmt.Errorf("%w: ordering operator %q", ErrUntranslatable, p.Operator.Text)
	default:
		return nil, fmt.Errorf("%w: %q", match.ErrUnsupportedOperator, p.Operator.Text)
	}

	pattern := func(v filter.Token) string {
		if like {
			return GlobToRegexp(v.Text)
		}
		return regexp.QuoteMeta(v.Text)
	}

	if len(values) > 1 && p.Value.Separator() == filter.Or {
		alts := make([]string, len(values))
		for i, v := range values {
			alts[i] = pattern(v)
		}
		t := labels.MatchRegexp
		if negate {
			t = labels.MatchNotRegexp
		}
		m, err := labels.NewMatcher(t, name, strings.Join(alts, "|"))
		if err != nil {
			return nil, err
		}
		return []*labels.Matcher{m}, nil
	}

	if len(values) > 1 && negate {
		return nil, fmt.Errorf("%w: negated %q list", ErrUntranslatable, string(filter.And))
	}

	out := make([]*labels.Matcher, 0, len(values))
	for _, v := range values {
		var (
			m   *labels.Matcher
			err error
		)
		switch {
		case like && negate:
			m, err = labels.NewMatcher(labels.MatchNotRegexp, name, pattern(v))
		case like:
			m, err = labels.NewMatcher(labels.MatchRegexp, name, pattern(v))
		case negate:
			m, err = labels.NewMatcher(labels.MatchNotEqual, name, v.Text)
		default:
			m, err = labels.NewMatcher(labels.MatchEqual, name, v.Text)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Selector renders f as a PromQL vector selector. When metric is not empty
// the selector is restricted to that metric name.
func Selector(metric string, f *filter.Filter) (string, error) {
	ms, err := Matchers(f)
	if err != nil {
		return "", err
	}
	return renderSelector(metric, ms)
}

func renderSelector(metric string, ms []*labels.Matcher) (string, error) {
	if metric != "" {
		ms = append([]*labels.Matcher{labels.MustNewMatcher(labels.MatchEqual, labels.MetricName, metric)}, ms...)
	}
	if len(ms) == 0 {
		return "", fmt.Errorf("%w: empty selector needs a metric name", ErrUntranslatable)
	}
	vs := &parser.VectorSelector{Name: metric, LabelMatchers: ms}
	return vs.String(), nil
}
