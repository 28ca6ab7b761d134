// Package assert provides predicate-or-error checks for case bodies.
// Every function returns nil when the check holds, or an error describing the mismatch.
// A trailing message replaces the default text.
package assert

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/jedib0t/go-pretty/v6/text"
)

var highlight = text.Colors{text.FgYellow, text.Bold}

// cmpOpts lets cmp look inside unexported fields, so values like errors.New("x") compare by content
var cmpOpts = []cmp.Option{cmp.Exporter(func(reflect.Type) bool { return true })}

func value(v any) string {
	return highlight.Sprint(fmt.Sprintf("%v", v))
}

func failure(msg []string, format string, args ...any) error {
	if len(msg) > 0 && msg[0] != "" {
		return errors.New(strings.Join(msg, " "))
	}
	return fmt.Errorf(format, args...)
}

// Equal checks deep equality, reporting the diff on mismatch
func Equal(actual, expected any, msg ...string) error {
	if cmp.Equal(actual, expected, cmpOpts...) {
		return nil
	}
	return failure(msg, "Expected %s to deeply equal %s\n%s", value(actual), value(expected), cmp.Diff(expected, actual, cmpOpts...))
}

// NotEqual checks that the values differ
func NotEqual(actual, expected any, msg ...string) error {
	if !cmp.Equal(actual, expected, cmpOpts...) {
		return nil
	}
	return failure(msg, "Expected %s not to equal %s", value(actual), value(expected))
}

func True(actual bool, msg ...string) error {
	if actual {
		return nil
	}
	return failure(msg, "Expected %s to be true", value(actual))
}

func False(actual bool, msg ...string) error {
	if !actual {
		return nil
	}
	return failure(msg, "Expected %s to be false", value(actual))
}

// NoError checks that err is nil
func NoError(err error, msg ...string) error {
	if err == nil {
		return nil
	}
	return failure(msg, "Expected no error, got %s", value(err))
}

// Contains checks that s contains substr
func Contains(s, substr string, msg ...string) error {
	if strings.Contains(s, substr) {
		return nil
	}
	return failure(msg, "Expected %s to contain %s", value(s), value(substr))
}

// Panics checks that fn panics with a value whose message is want
func Panics(fn func(), want string, msg ...string) (err error) {
	defer func() {
		p := recover()
		if p == nil {
			err = failure(msg, "Expected a panic")
			return
		}
		got := fmt.Sprint(p)
		if e, ok := p.(error); ok {
			got = e.Error()
		}
		if got != want {
			err = failure(msg, "Expected panic message to be %s, but got %s", value(want), value(got))
		}
	}()
	fn()
	return nil
}

// Fails checks that fn returns an error whose message is want
func Fails(fn func() error, want string, msg ...string) error {
	got := fn()
	if got == nil {
		return failure(msg, "Expected an error to be returned")
	}
	if got.Error() != want {
		return failure(msg, "Expected error message to be %s, but got %s", value(want), value(got.Error()))
	}
	return nil
}

// NoDuplicates checks that a slice holds no repeated elements
func NoDuplicates[T comparable](items []T, msg ...string) error {
	seen := make(map[T]bool, len(items))
	var dups []T
	for _, item := range items {
		if seen[item] {
			dups = append(dups, item)
			continue
		}
		seen[item] = true
	}
	if len(dups) == 0 {
		return nil
	}
	return failure(msg, "Duplicates found: %s", value(dups))
}

// Empty checks that v is nil or has length zero
func Empty(v any, msg ...string) error {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array, reflect.Chan:
		if rv.Len() == 0 {
			return nil
		}
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	}
	return failure(msg, "Expected %s to be empty", value(v))
}

// All returns the first failing check, or nil
func All(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
