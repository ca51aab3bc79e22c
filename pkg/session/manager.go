package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mymmrac/telego"
)

// Persister stores session snapshots outside the process.
type Persister interface {
	Save(ctx context.Context, s *Snapshot) error
	Load(ctx context.Context, id Identifier) (*Snapshot, error)
	Delete(ctx context.Context, id Identifier) (bool, error)
}

// Initializer prepares a freshly created session memory.
type Initializer func(m Memory)

// Manager owns the live sessions of a bot.
type Manager struct {
	typ         Type
	roles       map[string]Role
	initializer Initializer
	persister   Persister
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[Identifier]*MapMemory
}

type ManagerOption func(*Manager)

func WithType(typ Type) ManagerOption {
	return func(m *Manager) { m.typ = typ }
}

func WithRoles(roles ...Role) ManagerOption {
	return func(m *Manager) {
		for _, r := range roles {
			m.roles[r.Name] = r
		}
	}
}

func WithInitializer(fn Initializer) ManagerOption {
	return func(m *Manager) { m.initializer = fn }
}

func WithPersister(p Persister) ManagerOption {
	return func(m *Manager) { m.persister = p }
}

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		typ:      TypeChat,
		roles:    make(map[string]Role),
		logger:   slog.Default(),
		sessions: make(map[Identifier]*MapMemory),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Type() Type {
	return m.typ
}

func (m *Manager) HasPersister() bool {
	return m.persister != nil
}

func (m *Manager) IdentifierFor(update telego.Update) (Identifier, bool) {
	return IdentifierFor(update, m.typ)
}

// Create starts a new session, replacing any live session with the same
// identifier.
func (m *Manager) Create(id Identifier) Memory {
	mem := m.newMemory(id)

	m.mu.Lock()
	m.sessions[id] = mem
	m.mu.Unlock()

	m.logger.Debug("session created", "session", id.Key())
	return mem
}

// Resolve returns the live session, creating it when absent.
func (m *Manager) Resolve(id Identifier) Memory {
	m.mu.RLock()
	mem, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		return mem
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if mem, ok := m.sessions[id]; ok {
		return mem
	}
	mem = m.newMemory(id)
	m.sessions[id] = mem
	m.logger.Debug("session created", "session", id.Key())
	return mem
}

// Acquire returns the live session, then a persisted one, and creates a new
// session when neither exists.
func (m *Manager) Acquire(ctx context.Context, id Identifier) (Memory, error) {
	if mem, ok := m.Memory(id); ok {
		return mem, nil
	}
	if m.persister == nil {
		return m.Resolve(id), nil
	}

	mem, err := m.Restore(ctx, id)
	switch {
	case err == nil:
		return mem, nil
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionExists):
		return m.Resolve(id), nil
	default:
		return nil, err
	}
}

// Load registers a memory obtained elsewhere, usually a restored snapshot.
func (m *Manager) Load(mem Memory) error {
	impl, ok := mem.(*MapMemory)
	if !ok {
		return fmt.Errorf("load %T: %w", mem, ErrForeignMemory)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[impl.id]; exists {
		m.logger.Warn("unable to load session", "session", impl.id.Key(), "error", ErrSessionExists)
		return fmt.Errorf("load %s: %w", impl.id, ErrSessionExists)
	}
	m.sessions[impl.id] = impl
	return nil
}

func (m *Manager) Kill(id Identifier) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	m.logger.Debug("session killed", "session", id.Key())
}

func (m *Manager) Reinitialize(id Identifier) Memory {
	m.Kill(id)
	return m.Create(id)
}

func (m *Manager) Memory(id Identifier) (Memory, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mem, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return mem, true
}

func (m *Manager) Sessions() []Identifier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]Identifier, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) Save(ctx context.Context, id Identifier) error {
	if m.persister == nil {
		return ErrNoPersister
	}

	mem, ok := m.Memory(id)
	if !ok {
		return fmt.Errorf("save %s: %w", id, ErrSessionNotFound)
	}

	snap, err := mem.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot %s: %w", id, err)
	}
	if err := m.persister.Save(ctx, snap); err != nil {
		return fmt.Errorf("save %s: %w", id, err)
	}
	return nil
}

func (m *Manager) SaveAll(ctx context.Context) error {
	var errs []error
	for _, id := range m.Sessions() {
		if err := m.Save(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Restore loads a persisted session into the manager.
func (m *Manager) Restore(ctx context.Context, id Identifier) (Memory, error) {
	if m.persister == nil {
		return nil, ErrNoPersister
	}

	snap, err := m.persister.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", id, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("restore %s: %w", id, ErrSessionNotFound)
	}

	mem, err := FromSnapshot(snap, WithRoleMap(m.roles))
	if err != nil {
		return nil, err
	}
	if err := m.Load(mem); err != nil {
		return nil, err
	}

	m.logger.Debug("session restored", "session", id.Key())
	return mem, nil
}

// Forget kills the session and deletes its persisted snapshot.
func (m *Manager) Forget(ctx context.Context, id Identifier) error {
	m.Kill(id)
	if m.persister == nil {
		return nil
	}
	if _, err := m.persister.Delete(ctx, id); err != nil {
		return fmt.Errorf("forget %s: %w", id, err)
	}
	return nil
}

func (m *Manager) newMemory(id Identifier) *MapMemory {
	mem := NewMemory(id, WithRoleMap(m.roles))
	if m.initializer != nil {
		m.initializer(mem)
	}
	return mem
}
