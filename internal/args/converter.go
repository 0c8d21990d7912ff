package args

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ReplyContext exposes the text of the message the command replies to.
type ReplyContext interface {
	ReplyText() (string, bool)
}

// Converter turns a prefix of input into a value and reports how many bytes
// of input it consumed. Input never starts with whitespace.
type Converter[T any] interface {
	Name() string
	Convert(rc ReplyContext, input string) (T, int, error)
}

type ConvertFunc[T any] func(rc ReplyContext, input string) (T, int, error)

type converter[T any] struct {
	name string
	fn   ConvertFunc[T]
}

func NewConverter[T any](name string, fn ConvertFunc[T]) Converter[T] {
	return converter[T]{name: name, fn: fn}
}

func (c converter[T]) Name() string {
	return c.name
}

func (c converter[T]) Convert(rc ReplyContext, input string) (T, int, error) {
	return c.fn(rc, input)
}

// Param is a converter bound to the variable receiving its value.
type Param interface {
	Name() string
	apply(rc ReplyContext, input string) (int, error)
}

type boundParam[T any] struct {
	dst  *T
	conv Converter[T]
}

func Bind[T any](dst *T, c Converter[T]) Param {
	return boundParam[T]{dst: dst, conv: c}
}

func (s boundParam[T]) Name() string {
	return s.conv.Name()
}

func (s boundParam[T]) apply(rc ReplyContext, input string) (int, error) {
	v, n, err := s.conv.Convert(rc, input)
	if err != nil {
		return 0, err
	}
	*s.dst = v
	return n, nil
}

// Convert runs params left to right over text. Each param sees what the
// previous ones left, with leading whitespace skipped. The first failure
// stops the pipeline; destinations of later params are left untouched.
// Text left over after the last param is ignored.
func Convert(rc ReplyContext, text string, params ...Param) error {
	offset := 0
	for i, param := range params {
		rest := text[offset:]
		input := strings.TrimLeftFunc(rest, unicode.IsSpace)
		offset += len(rest) - len(input)

		n, err := param.apply(rc, input)
		if err != nil {
			return wrapError(param.Name(), i+1, input, err)
		}
		if n < 0 || n > len(input) {
			return wrapError(param.Name(), i+1, input,
				fmt.Errorf("converter consumed %d bytes of %d", n, len(input)))
		}
		offset += n
	}
	return nil
}

func wrapError(name string, position int, input string, err error) *Error {
	var argErr *Error
	if !errors.As(err, &argErr) {
		token, _ := nextToken(input)
		argErr = invalid(name, token, err)
	}
	if argErr.Argument == "" {
		argErr.Argument = name
	}
	argErr.Position = position
	return argErr
}

func Convert1[A any](rc ReplyContext, text string, a Converter[A]) (A, error) {
	var va A
	err := Convert(rc, text, Bind(&va, a))
	return va, err
}

func Convert2[A, B any](rc ReplyContext, text string, a Converter[A], b Converter[B]) (A, B, error) {
	var (
		va A
		vb B
	)
	err := Convert(rc, text, Bind(&va, a), Bind(&vb, b))
	return va, vb, err
}

func Convert3[A, B, C any](rc ReplyContext, text string, a Converter[A], b Converter[B], c Converter[C]) (A, B, C, error) {
	var (
		va A
		vb B
		vc C
	)
	err := Convert(rc, text, Bind(&va, a), Bind(&vb, b), Bind(&vc, c))
	return va, vb, vc, err
}

// nextToken returns the first whitespace-delimited word of input and the
// number of bytes up to its end.
func nextToken(input string) (string, int) {
	end := strings.IndexFunc(input, unicode.IsSpace)
	if end < 0 {
		end = len(input)
	}
	return input[:end], end
}
