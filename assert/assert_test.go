package assert

import (
	"errors"
	"testing"

	"github.com/acarl005/stripansi"
	"github.com/stretchr/testify/require"
)

func msgOf(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return stripansi.Strip(err.Error())
}

func TestEqual(t *testing.T) {
	type point struct{ X, Y int }

	require.NoError(t, Equal(point{1, 2}, point{1, 2}))
	require.NoError(t, Equal([]string{"a"}, []string{"a"}))
	require.NoError(t, Equal(map[string]int{"a": 1}, map[string]int{"a": 1}))

	msg := msgOf(t, Equal(1, 2))
	require.Contains(t, msg, "Expected 1 to deeply equal 2")

	require.EqualError(t, Equal(1, 2, "custom"), "custom")
}

func TestNotEqual(t *testing.T) {
	require.NoError(t, NotEqual("a", "b"))
	require.Equal(t, "Expected a not to equal a", msgOf(t, NotEqual("a", "a")))
}

type pair struct{ a, b int }

func TestEqual_UnexportedFields(t *testing.T) {
	require.NotPanics(t, func() {
		require.NoError(t, Equal(pair{1, 2}, pair{1, 2}))
		require.NoError(t, Equal(errors.New("x"), errors.New("x")))
		require.Error(t, NotEqual(pair{1, 2}, pair{1, 2}))
	})

	msg := msgOf(t, Equal(pair{1, 2}, pair{1, 3}))
	require.Contains(t, msg, "Expected {1 2} to deeply equal {1 3}")
	require.Contains(t, msg, "b:")

	require.Error(t, Equal(errors.New("x"), errors.New("y")))
	require.NoError(t, NotEqual(errors.New("x"), errors.New("y")))
}

func TestBooleans(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "true holds", err: True(true)},
		{name: "true fails", err: True(false), want: "Expected false to be true"},
		{name: "false holds", err: False(false)},
		{name: "false fails", err: False(true), want: "Expected true to be false"},
		{name: "override", err: False(true, "flag must be off"), want: "flag must be off"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.want == "" {
				require.NoError(t, tt.err)
				return
			}
			require.Equal(t, tt.want, msgOf(t, tt.err))
		})
	}
}

func TestPanics(t *testing.T) {
	require.NoError(t, Panics(func() { panic("bad input") }, "bad input"))
	require.NoError(t, Panics(func() { panic(errors.New("wrapped")) }, "wrapped"))

	require.Equal(t, "Expected a panic", msgOf(t, Panics(func() {}, "x")))
	require.Equal(t, "Expected panic message to be x, but got y",
		msgOf(t, Panics(func() { panic("y") }, "x")))
}

func TestFails(t *testing.T) {
	require.NoError(t, Fails(func() error { return errors.New("nope") }, "nope"))
	require.Equal(t, "Expected an error to be returned", msgOf(t, Fails(func() error { return nil }, "nope")))
	require.Equal(t, "Expected error message to be nope, but got other",
		msgOf(t, Fails(func() error { return errors.New("other") }, "nope")))
}

func TestNoDuplicates(t *testing.T) {
	require.NoError(t, NoDuplicates([]int{1, 2, 3}))
	require.Equal(t, "Duplicates found: [2 3]", msgOf(t, NoDuplicates([]int{1, 2, 2, 3, 3})))
}

func TestContainsAndErrors(t *testing.T) {
	require.NoError(t, Contains("hello world", "world"))
	require.Equal(t, "Expected hello to contain bye", msgOf(t, Contains("hello", "bye")))

	require.NoError(t, NoError(nil))
	require.Equal(t, "Expected no error, got boom", msgOf(t, NoError(errors.New("boom"))))
}

func TestEmpty(t *testing.T) {
	var nilSlice []int
	require.NoError(t, Empty(nil))
	require.NoError(t, Empty(""))
	require.NoError(t, Empty(nilSlice))
	require.Error(t, Empty([]int{1}))
}

func TestAll(t *testing.T) {
	first := errors.New("first")
	require.NoError(t, All(nil, nil))
	require.Equal(t, first, All(nil, first, errors.New("second")))
}
