package session

import (
	"encoding/json"
	"fmt"

	"github.com/mymmrac/telego"
)

// Snapshot is the serialisable image of a session memory.
type Snapshot struct {
	Identifier      Identifier                  `json:"identifier"`
	Values          map[string]json.RawMessage  `json:"values"`
	CurrentTree     string                      `json:"current_tree,omitempty"`
	Role            string                      `json:"role,omitempty"`
	LanguageCode    string                      `json:"language_code,omitempty"`
	LastSentMessage *telego.Message             `json:"last_sent_message,omitempty"`
	Registries      map[string][]telego.Message `json:"registries,omitempty"`
}

func (m *MapMemory) Snapshot() (*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := &Snapshot{
		Identifier:      m.id,
		Values:          make(map[string]json.RawMessage, len(m.values)),
		LanguageCode:    m.language,
		LastSentMessage: m.lastSent,
		Registries:      make(map[string][]telego.Message, len(m.registries)),
	}

	for key, v := range m.values {
		if v == nil {
			continue
		}
		if raw, ok := v.(json.RawMessage); ok {
			s.Values[key] = raw
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", key, err)
		}
		s.Values[key] = data
	}

	if m.currentTree != nil {
		s.CurrentTree = m.currentTree.Name
	}
	if m.userRole != nil {
		s.Role = m.userRole.Name
	}
	for name, msgs := range m.registries {
		s.Registries[name] = append([]telego.Message(nil), msgs...)
	}

	return s, nil
}

// FromSnapshot rebuilds a memory. Values stay raw JSON until a typed read
// decodes them.
func FromSnapshot(s *Snapshot, opts ...MemoryOption) (*MapMemory, error) {
	m := NewMemory(s.Identifier, opts...)

	for key, raw := range s.Values {
		m.values[key] = raw
	}
	if s.CurrentTree != "" {
		m.currentTree = NewTree(s.CurrentTree)
	}
	if s.LanguageCode != "" {
		m.language = s.LanguageCode
	}
	m.lastSent = s.LastSentMessage
	for name, msgs := range s.Registries {
		m.registries[name] = append([]telego.Message(nil), msgs...)
	}

	if s.Role != "" {
		if err := m.SetUserRole(s.Role); err != nil {
			return nil, fmt.Errorf("restore %s: %w", s.Identifier, err)
		}
	}

	return m, nil
}
