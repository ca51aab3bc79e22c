package session

import (
	"fmt"
	"reflect"
)

// Value returns the value stored under key as a T.
func Value[T any](m Memory, key string) (T, bool, error) {
	return typed[T](m.GetAs(key, reflect.TypeFor[T]()))
}

// ValueIn returns the value stored under key in the namespace of tree as a T.
func ValueIn[T any](m Memory, key string, tree *Tree) (T, bool, error) {
	return typed[T](m.GetInAs(key, tree, reflect.TypeFor[T]()))
}

// ValueLocal returns the value stored under key in the namespace of the
// current tree as a T.
func ValueLocal[T any](m Memory, key string) (T, bool, error) {
	return typed[T](m.GetLocalAs(key, reflect.TypeFor[T]()))
}

// Component returns the component of type T.
func Component[T any](m Memory) (T, bool, error) {
	return typed[T](m.GetComponent(reflect.TypeFor[T]()))
}

// RemoveComponent removes the component of type T and returns it.
func RemoveComponent[T any](m Memory) (T, bool, error) {
	return typed[T](m.RemoveComponent(reflect.TypeFor[T]()))
}

// ContainsComponent reports whether a component of type T is present.
func ContainsComponent[T any](m Memory) bool {
	return m.ContainsComponent(reflect.TypeFor[T]())
}

func typed[T any](v any, ok bool, err error) (T, bool, error) {
	var zero T
	if err != nil || !ok {
		return zero, false, err
	}
	t, isT := v.(T)
	if !isT {
		return zero, false, fmt.Errorf("%w: have %T, want %s", ErrTypeMismatch, v, reflect.TypeFor[T]())
	}
	return t, true, nil
}
