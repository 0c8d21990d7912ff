package args

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	errEmptyMention = errors.New("mention must look like @username")
	errNoHost       = errors.New("url has no host")
)

func token[T any](name string, parse func(string) (T, error)) Converter[T] {
	return NewConverter(name, func(_ ReplyContext, input string) (T, int, error) {
		var zero T
		tok, n := nextToken(input)
		if tok == "" {
			return zero, 0, missing(name)
		}
		v, err := parse(tok)
		if err != nil {
			return zero, 0, invalid(name, tok, err)
		}
		return v, n, nil
	})
}

// String consumes one word.
func String(name string) Converter[string] {
	return token(name, func(s string) (string, error) {
		return s, nil
	})
}

func Int(name string) Converter[int] {
	return token(name, strconv.Atoi)
}

func IntRange(name string, minValue, maxValue int) Converter[int] {
	return token(name, func(s string) (int, error) {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, err
		}
		if v < minValue || v > maxValue {
			return 0, fmt.Errorf("must be between %d and %d", minValue, maxValue)
		}
		return v, nil
	})
}

func Float(name string) Converter[float64] {
	return token(name, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// FloatRange also rejects NaN.
func FloatRange(name string, minValue, maxValue float64) Converter[float64] {
	return token(name, func(s string) (float64, error) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		if !(v >= minValue && v <= maxValue) {
			return 0, fmt.Errorf("must be between %g and %g", minValue, maxValue)
		}
		return v, nil
	})
}

// Mention consumes a @username word and yields the username without "@".
func Mention(name string) Converter[string] {
	return token(name, func(s string) (string, error) {
		username, ok := strings.CutPrefix(s, "@")
		if !ok || username == "" {
			return "", errEmptyMention
		}
		for _, r := range username {
			if r != '_' && (r < '0' || r > '9') && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
				return "", errEmptyMention
			}
		}
		return username, nil
	})
}

// StringGreedy consumes the rest of the input.
func StringGreedy(name string) Converter[string] {
	return NewConverter(name, func(_ ReplyContext, input string) (string, int, error) {
		value := strings.TrimSpace(input)
		if value == "" {
			return "", 0, missing(name)
		}
		return value, len(input), nil
	})
}

// StringGreedyOrReply consumes the rest of the input, or, when nothing is
// left, takes the text of the replied-to message.
func StringGreedyOrReply(name string) Converter[string] {
	return NewConverter(name, func(rc ReplyContext, input string) (string, int, error) {
		if value := strings.TrimSpace(input); value != "" {
			return value, len(input), nil
		}
		if rc != nil {
			if text, ok := rc.ReplyText(); ok {
				if text = strings.TrimSpace(text); text != "" {
					return text, 0, nil
				}
			}
		}
		return "", 0, missing(name)
	})
}

// URLGreedyOrReply behaves like StringGreedyOrReply and parses the value as
// a URL. Input without a scheme is treated as http.
func URLGreedyOrReply(name string) Converter[*url.URL] {
	text := StringGreedyOrReply(name)
	return NewConverter(name, func(rc ReplyContext, input string) (*url.URL, int, error) {
		raw, n, err := text.Convert(rc, input)
		if err != nil {
			return nil, 0, err
		}
		u, err := parseURL(raw)
		if err != nil {
			return nil, 0, invalid(name, raw, err)
		}
		return u, n, nil
	})
}

func parseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err == nil && u.Scheme != "" && strings.HasPrefix(raw[len(u.Scheme):], "://") {
		if u.Hostname() == "" {
			return nil, errNoHost
		}
		return u, nil
	}
	u, err = url.Parse("http://" + raw)
	if err != nil {
		return nil, err
	}
	if u.Hostname() == "" || strings.ContainsAny(u.Host, " \t\n") {
		return nil, errNoHost
	}
	return u, nil
}
