package session

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Counter struct {
	Count int `json:"count"`
}

type named string

func (n named) String() string { return string(n) }

type ids []int

func TestValue(t *testing.T) {
	m := NewMemory(Of(1, 2))

	_, ok, err := Value[string](m, "greeting")
	require.NoError(t, err)
	assert.False(t, ok, "absent before any put")

	m.Put("greeting", "hello")
	m.Put("answer", 42)

	got, ok, err := Value[string](m, "greeting")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", got)

	n, ok, err := Value[int](m, "answer")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 42, n)
}

func TestValue_TypeMismatch(t *testing.T) {
	m := NewMemory(Of(1, 2))
	m.Put("answer", 42)

	got, ok, err := Value[string](m, "answer")
	require.ErrorIs(t, err, ErrTypeMismatch)
	assert.False(t, ok)
	assert.Empty(t, got)
}

func TestValue_InterfaceType(t *testing.T) {
	m := NewMemory(Of(1, 2))
	m.Put("name", named("nene"))

	s, ok, err := Value[fmt.Stringer](m, "name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "nene", s.String())

	v, ok, err := Value[any](m, "name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, named("nene"), v)
}

func TestValue_NilIsAbsent(t *testing.T) {
	m := NewMemory(Of(1, 2))
	m.Put("nothing", nil)

	_, ok, err := Value[*Counter](m, "nothing")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, m.ContainsKey("nothing"))
}

func TestValueIn(t *testing.T) {
	m := NewMemory(Of(1, 2))
	mainTree, other := NewTree("main"), NewTree("other")

	require.NoError(t, m.PutIn("step", mainTree, 3))

	got, ok, err := ValueIn[int](m, "step", mainTree)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, got)

	_, ok, err = ValueIn[int](m, "step", other)
	require.NoError(t, err)
	assert.False(t, ok, "other tree must not see the value")

	_, ok, err = Value[int](m, "step")
	require.NoError(t, err)
	assert.False(t, ok, "global namespace must not see the value")
}

func TestValueIn_NilTree(t *testing.T) {
	m := NewMemory(Of(1, 2))

	_, _, err := ValueIn[int](m, "step", nil)
	assert.ErrorIs(t, err, ErrNoTree)
}

func TestValueLocal(t *testing.T) {
	m := NewMemory(Of(1, 2))

	_, _, err := ValueLocal[string](m, "draft")
	require.ErrorIs(t, err, ErrNoTree, "no current tree")

	m.Put("draft", "global")
	m.SetCurrentTree(NewTree("editor"))

	_, ok, err := ValueLocal[string](m, "draft")
	require.NoError(t, err)
	assert.False(t, ok, "global value must not leak into the local namespace")

	require.NoError(t, m.PutLocal("draft", "local"))

	got, ok, err := ValueLocal[string](m, "draft")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "local", got)

	direct, ok, err := m.GetLocal("draft")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, direct, got)

	global, _, err := Value[string](m, "draft")
	require.NoError(t, err)
	assert.Equal(t, "global", global)
}

func TestComponentLifecycle(t *testing.T) {
	m := NewMemory(Of(1, 2))

	_, err := m.AddComponent(Counter{Count: 0})
	require.NoError(t, err)

	assert.True(t, ContainsComponent[Counter](m))

	got, ok, err := Component[Counter](m)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Counter{Count: 0}, got)

	removed, ok, err := RemoveComponent[Counter](m)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Counter{Count: 0}, removed)

	assert.False(t, ContainsComponent[Counter](m))

	_, ok, err = Component[Counter](m)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestComponent_ExactType(t *testing.T) {
	m := NewMemory(Of(1, 2))

	_, err := m.AddComponent(&Counter{Count: 7})
	require.NoError(t, err)

	assert.False(t, ContainsComponent[Counter](m))
	_, ok, err := Component[Counter](m)
	require.NoError(t, err)
	assert.False(t, ok)

	ptr, ok, err := Component[*Counter](m)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, ptr.Count)
}

func TestRemoveComponent_Absent(t *testing.T) {
	m := NewMemory(Of(1, 2))

	got, ok, err := RemoveComponent[Counter](m)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Counter{}, got)
}

func TestValue_AssignableIsNotIdentical(t *testing.T) {
	m := NewMemory(Of(1, 2))
	m.Put("ids", []int{1, 2})
	m.Put("updates", make(chan int))
	m.Put("tags", map[string]int{"a": 1})

	assert.NotPanics(t, func() {
		got, ok, err := Value[ids](m, "ids")
		assert.ErrorIs(t, err, ErrTypeMismatch)
		assert.False(t, ok)
		assert.Nil(t, got)

		_, ok, err = Value[<-chan int](m, "updates")
		assert.ErrorIs(t, err, ErrTypeMismatch)
		assert.False(t, ok)

		_, ok, err = Value[map[string]int](m, "tags")
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	plain, ok, err := Value[[]int](m, "ids")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2}, plain)
}

func TestContainsComponent_MatchesComponent(t *testing.T) {
	key := ComponentKey(reflect.TypeFor[Counter]())

	tests := []struct {
		name    string
		stored  any
		present bool
		wantErr bool
	}{
		{name: "nil", stored: nil},
		{name: "wrong type", stored: "seven", wantErr: true},
		{name: "undecodable json", stored: json.RawMessage(`{"count":"seven"}`), wantErr: true},
		{name: "json null", stored: json.RawMessage(`null`)},
		{name: "decodable json", stored: json.RawMessage(`{"count":7}`), present: true},
		{name: "counter", stored: Counter{Count: 7}, present: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMemory(Of(1, 2))
			m.Put(key, tt.stored)

			contains := ContainsComponent[Counter](m)
			_, ok, err := Component[Counter](m)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.present, ok)
			assert.Equal(t, ok, contains)
		})
	}
}

func TestValue_DecodesRestoredJSON(t *testing.T) {
	m := NewMemory(Of(1, 2))
	m.Put("counter", json.RawMessage(`{"count":5}`))

	got, ok, err := Value[Counter](m, "counter")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, Counter{Count: 5}, got)

	stored, _ := m.Get("counter")
	assert.Equal(t, Counter{Count: 5}, stored, "decoded value replaces the raw JSON")
}
