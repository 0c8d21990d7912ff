package args

import (
	"errors"
	"fmt"
)

var (
	ErrArgumentMissing = errors.New("missing argument")
	ErrArgumentInvalid = errors.New("invalid argument")
)

type Kind int

const (
	Missing Kind = iota
	Invalid
)

func (k Kind) String() string {
	if k == Missing {
		return "missing"
	}
	return "invalid"
}

// Error is the single error type of the pipeline. Commands react to it
// uniformly, usually by replying with Usage.
type Error struct {
	Kind     Kind
	Argument string
	// Position is the 1-based index of the failing param.
	Position int
	// Input is the token or text that failed to parse, empty when missing.
	Input string
	Usage string
	Err   error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case Missing:
		msg = fmt.Sprintf("%s %q", ErrArgumentMissing, e.Argument)
	default:
		msg = fmt.Sprintf("%s %q: %q", ErrArgumentInvalid, e.Argument, e.Input)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	switch e.Kind {
	case Missing:
		return target == ErrArgumentMissing
	default:
		return target == ErrArgumentInvalid
	}
}

func missing(name string) *Error {
	return &Error{Kind: Missing, Argument: name}
}

func invalid(name, input string, err error) *Error {
	return &Error{Kind: Invalid, Argument: name, Input: input, Err: err}
}
