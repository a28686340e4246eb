// Package check holds the outcome of a single page check.
package check

import "strings"

type Kind int

const (
	Found Kind = iota + 1
	NotFound
	FetchError
)

func (k Kind) String() string {
	switch k {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	case FetchError:
		return "fetch_error"
	default:
		return "unknown"
	}
}

// Result is produced once per cycle and never mutated afterwards.
// Detail is only meaningful for FetchError.
type Result struct {
	Kind   Kind
	Detail string
}

func NewFound() Result    { return Result{Kind: Found} }
func NewNotFound() Result { return Result{Kind: NotFound} }

func NewFetchError(detail string) Result {
	return Result{Kind: FetchError, Detail: detail}
}

// Evaluate reports whether needle occurs in content (case-sensitive).
func Evaluate(content, needle string) Result {
	if strings.Contains(content, needle) {
		return NewFound()
	}
	return NewNotFound()
}

func (r Result) String() string {
	if r.Kind == FetchError && r.Detail != "" {
		return r.Kind.String() + ": " + r.Detail
	}
	return r.Kind.String()
}
