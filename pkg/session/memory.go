package session

import (
	"reflect"

	"github.com/mymmrac/telego"
)

// Memory is the per-session key/value store.
//
// The global map is addressed by plain keys. Trees have their own namespace in
// the same map, reachable through the *In variants for an explicit tree and the
// *Local variants for the current tree. Components are values addressed by the
// name of their type.
//
// The *As methods take the type the caller expects. They report false for a
// missing key and ErrTypeMismatch when the stored value cannot be used as that
// type. See Value and friends for the generic forms.
type Memory interface {
	Identifier() Identifier

	Put(key string, value any)
	ContainsKey(key string) bool
	Get(key string) (any, bool)
	GetAs(key string, t reflect.Type) (any, bool, error)
	Remove(key string) (any, bool)

	PutIn(key string, tree *Tree, value any) error
	ContainsKeyIn(key string, tree *Tree) (bool, error)
	GetIn(key string, tree *Tree) (any, bool, error)
	GetInAs(key string, tree *Tree, t reflect.Type) (any, bool, error)
	RemoveIn(key string, tree *Tree) (any, bool, error)

	PutLocal(key string, value any) error
	ContainsKeyLocal(key string) (bool, error)
	GetLocal(key string) (any, bool, error)
	GetLocalAs(key string, t reflect.Type) (any, bool, error)
	RemoveLocal(key string) (any, bool, error)

	AddComponent(value any) (string, error)
	GetComponent(t reflect.Type) (any, bool, error)
	RemoveComponent(t reflect.Type) (any, bool, error)
	ContainsComponent(t reflect.Type) bool

	CurrentTree() *Tree
	SetCurrentTree(tree *Tree)

	UserRole() *Role
	SetUserRole(name string) error

	LanguageCode() string
	SetLanguageCode(code string)

	LastSentMessage() *telego.Message
	SetLastSentMessage(msg *telego.Message)

	Registry(name string) []telego.Message
	ClearRegistry(name string) []telego.Message
	PutToRegistry(name string, msg telego.Message)

	Snapshot() (*Snapshot, error)
}

// ComponentKey is the memory key under which components of type t are kept.
func ComponentKey(t reflect.Type) string {
	if t.Kind() == reflect.Pointer && t.Name() == "" {
		return "*" + ComponentKey(t.Elem())
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
