package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/mymmrac/telego"
)

var rawMessageType = reflect.TypeFor[json.RawMessage]()

// MapMemory is the in-process Memory implementation. All methods are safe for
// concurrent use.
type MapMemory struct {
	id    Identifier
	roles map[string]Role

	mu          sync.RWMutex
	values      map[string]any
	currentTree *Tree
	userRole    *Role
	language    string
	lastSent    *telego.Message
	registries  map[string][]telego.Message
}

type MemoryOption func(*MapMemory)

// WithRoleMap sets the roles SetUserRole can pick from.
func WithRoleMap(roles map[string]Role) MemoryOption {
	return func(m *MapMemory) { m.roles = roles }
}

func WithLanguageCode(code string) MemoryOption {
	return func(m *MapMemory) { m.language = code }
}

func NewMemory(id Identifier, opts ...MemoryOption) *MapMemory {
	m := &MapMemory{
		id:         id,
		roles:      map[string]Role{},
		values:     make(map[string]any),
		registries: make(map[string][]telego.Message),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MapMemory) Identifier() Identifier {
	return m.id
}

func (m *MapMemory) Put(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
}

func (m *MapMemory) ContainsKey(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.values[key]
	return ok
}

func (m *MapMemory) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MapMemory) GetAs(key string, t reflect.Type) (any, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.typedLocked(key, t)
}

func (m *MapMemory) Remove(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	delete(m.values, key)
	return v, ok
}

func (m *MapMemory) PutIn(key string, tree *Tree, value any) error {
	k, err := localKey(tree, key)
	if err != nil {
		return err
	}
	m.Put(k, value)
	return nil
}

func (m *MapMemory) ContainsKeyIn(key string, tree *Tree) (bool, error) {
	k, err := localKey(tree, key)
	if err != nil {
		return false, err
	}
	return m.ContainsKey(k), nil
}

func (m *MapMemory) GetIn(key string, tree *Tree) (any, bool, error) {
	k, err := localKey(tree, key)
	if err != nil {
		return nil, false, err
	}
	v, ok := m.Get(k)
	return v, ok, nil
}

func (m *MapMemory) GetInAs(key string, tree *Tree, t reflect.Type) (any, bool, error) {
	k, err := localKey(tree, key)
	if err != nil {
		return nil, false, err
	}
	return m.GetAs(k, t)
}

func (m *MapMemory) RemoveIn(key string, tree *Tree) (any, bool, error) {
	k, err := localKey(tree, key)
	if err != nil {
		return nil, false, err
	}
	v, ok := m.Remove(k)
	return v, ok, nil
}

func (m *MapMemory) PutLocal(key string, value any) error {
	return m.PutIn(key, m.CurrentTree(), value)
}

func (m *MapMemory) ContainsKeyLocal(key string) (bool, error) {
	return m.ContainsKeyIn(key, m.CurrentTree())
}

func (m *MapMemory) GetLocal(key string) (any, bool, error) {
	return m.GetIn(key, m.CurrentTree())
}

func (m *MapMemory) GetLocalAs(key string, t reflect.Type) (any, bool, error) {
	return m.GetInAs(key, m.CurrentTree(), t)
}

func (m *MapMemory) RemoveLocal(key string) (any, bool, error) {
	return m.RemoveIn(key, m.CurrentTree())
}

// AddComponent stores value under the name of its dynamic type and returns
// that key.
func (m *MapMemory) AddComponent(value any) (string, error) {
	if value == nil {
		return "", fmt.Errorf("add component: %w", ErrNilValue)
	}
	key := ComponentKey(reflect.TypeOf(value))
	m.Put(key, value)
	return key, nil
}

func (m *MapMemory) GetComponent(t reflect.Type) (any, bool, error) {
	return m.GetAs(ComponentKey(t), t)
}

// RemoveComponent leaves the memory untouched when the stored value is not of
// type t.
func (m *MapMemory) RemoveComponent(t reflect.Type) (any, bool, error) {
	key := ComponentKey(t)

	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok, err := m.typedLocked(key, t)
	if err != nil {
		return nil, false, err
	}
	delete(m.values, key)
	return v, ok, nil
}

// ContainsComponent reports true exactly when GetComponent would return a
// value.
func (m *MapMemory) ContainsComponent(t reflect.Type) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok, err := m.typedLocked(ComponentKey(t), t)
	return ok && err == nil
}

func (m *MapMemory) CurrentTree() *Tree {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentTree
}

func (m *MapMemory) SetCurrentTree(tree *Tree) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTree = tree
}

func (m *MapMemory) UserRole() *Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userRole
}

func (m *MapMemory) SetUserRole(name string) error {
	role, ok := m.roles[name]
	if !ok {
		return fmt.Errorf("set role %q for %s: %w", name, m.id, ErrUnknownRole)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.userRole = &role
	return nil
}

func (m *MapMemory) LanguageCode() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.language
}

func (m *MapMemory) SetLanguageCode(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.language = code
}

func (m *MapMemory) LastSentMessage() *telego.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastSent
}

func (m *MapMemory) SetLastSentMessage(msg *telego.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSent = msg
}

func (m *MapMemory) Registry(name string) []telego.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.registries[name])
}

// ClearRegistry empties the registry and returns what it held.
func (m *MapMemory) ClearRegistry(name string) []telego.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.registries[name]
	delete(m.registries, name)
	return msgs
}

func (m *MapMemory) PutToRegistry(name string, msg telego.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registries[name] = append(m.registries[name], msg)
}

// typedLocked must be called with mu held for writing: restored raw JSON is
// decoded in place. A nil value and a raw JSON null are both absent.
func (m *MapMemory) typedLocked(key string, t reflect.Type) (any, bool, error) {
	v, ok := m.values[key]
	if !ok || v == nil {
		return nil, false, nil
	}

	if raw, isRaw := v.(json.RawMessage); isRaw && t != rawMessageType {
		if isNull(raw) {
			return nil, false, nil
		}
		decoded, err := decodeRaw(raw, t)
		if err != nil {
			return nil, false, fmt.Errorf("decode %q as %s: %w", key, t, err)
		}
		if decoded == nil {
			return nil, false, nil
		}
		if t.Kind() != reflect.Interface {
			m.values[key] = decoded
		}
		v = decoded
	}

	if !hasType(v, t) {
		return nil, false, fmt.Errorf("get %q: %w: have %T, want %s", key, ErrTypeMismatch, v, t)
	}
	return v, true, nil
}

// hasType reports whether v can be returned as a t without conversion: the
// exact dynamic type for concrete t, an implementation for interface t.
func hasType(v any, t reflect.Type) bool {
	vt := reflect.TypeOf(v)
	if t.Kind() == reflect.Interface {
		return vt.Implements(t)
	}
	return vt == t
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeRaw(raw json.RawMessage, t reflect.Type) (any, error) {
	ptr := reflect.New(t)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
