package filter

import (
	"errors"
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// ErrorCode categorizes parse errors.
type ErrorCode int

const (
	ErrorCodeUnknown ErrorCode = iota
	ErrorCodeUnterminatedQuote
	ErrorCodeUnterminatedOperator
	ErrorCodeUnterminatedGroup
	ErrorCodeEmptyGroup
	ErrorCodeInvalidSeparator
	ErrorCodeGroupOrder
	ErrorCodeMixedSeparators
	ErrorCodeSyntax
	ErrorCodeIncompletePredicate
	ErrorCodeEmptyQuote
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeUnterminatedQuote:
		return "unterminated_quote"
	case ErrorCodeUnterminatedOperator:
		return "unterminated_operator"
	case ErrorCodeUnterminatedGroup:
		return "unterminated_group"
	case ErrorCodeEmptyGroup:
		return "empty_group"
	case ErrorCodeInvalidSeparator:
		return "invalid_separator"
	case ErrorCodeGroupOrder:
		return "group_order"
	case ErrorCodeMixedSeparators:
		return "mixed_separators"
	case ErrorCodeSyntax:
		return "syntax"
	case ErrorCodeIncompletePredicate:
		return "incomplete_predicate"
	case ErrorCodeEmptyQuote:
		return "empty_quote"
	default:
		return "unknown"
	}
}

// ParseError describes why a filter query was rejected.
type ParseError struct {
	Message  string
	Position int    // rune offset into Query
	Query    string // the query as passed to Parse
	Token    string // text of the offending token, if any
	Code     ErrorCode
}

func (e ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s", e.Position, e.Message)
}

func newParseError(code ErrorCode, query string, position int, token string, format string, args ...any) error {
	if position < 0 {
		position = 0
	}
	return goerrors.New(ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: position,
		Query:    query,
		Token:    token,
		Code:     code,
	})
}

// AsParseError extracts the ParseError carried by err.
func AsParseError(err error) (ParseError, bool) {
	var pe ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return ParseError{}, false
}

// IsErrorCode reports whether err is a ParseError with the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	pe, ok := AsParseError(err)
	return ok && pe.Code == code
}
