// Package state is the in-memory form of a record: identity, type and a
// schemaless map of field values, plus the atomic operations queued against
// it since it was loaded.
package state

import (
	"strings"

	"github.com/google/uuid"
)

type State struct {
	ID     uuid.UUID
	TypeID uuid.UUID
	Values map[string]any

	// SkipIndex saves the record without touching its index rows.
	SkipIndex bool

	isNew    bool
	ops      []Op
	original []byte
}

// Ref points at another record without embedding it.
type Ref struct {
	ID     uuid.UUID
	TypeID uuid.UUID
}

// New creates a state with a fresh time-ordered id.
func New(typeID uuid.UUID) *State {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return &State{ID: id, TypeID: typeID, Values: map[string]any{}, isNew: true}
}

// Existing wraps values that were read from the database.
func Existing(id, typeID uuid.UUID, values map[string]any) *State {
	if values == nil {
		values = map[string]any{}
	}
	return &State{ID: id, TypeID: typeID, Values: values}
}

func (s *State) IsNew() bool {
	return s.isNew
}

// MarkSaved is called once the record row is written.
func (s *State) MarkSaved() {
	s.isNew = false
	s.ops = nil
}

func (s *State) Ref() Ref {
	return Ref{ID: s.ID, TypeID: s.TypeID}
}

func (s *State) Get(name string) any {
	return s.Values[name]
}

func (s *State) Put(name string, value any) *State {
	if s.Values == nil {
		s.Values = map[string]any{}
	}
	s.Values[name] = value
	return s
}

// GetByPath walks "a/b/c" through embedded states and nested maps.
func (s *State) GetByPath(path string) any {
	if path == "" {
		return s.Values
	}
	cur := s.Values
	parts := strings.Split(path, "/")
	for i, part := range parts {
		v, ok := cur[part]
		if !ok {
			return nil
		}
		if i == len(parts)-1 {
			return v
		}
		switch t := v.(type) {
		case *State:
			cur = t.Values
		case map[string]any:
			cur = t
		default:
			return nil
		}
	}
	return nil
}

// OriginalData is the serialized record exactly as it was read.
func (s *State) OriginalData() []byte {
	return s.original
}

func (s *State) SetOriginalData(data []byte) {
	s.original = data
}
