package query

import (
	"strings"

	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/indexes"
	"github.com/drpcorg/recdb/recdb_errors"
)

// Keys that address the record itself rather than a field.
const (
	IDKey    = "_id"
	TypeKey  = "_type"
	AnyKey   = "_any"
	LabelKey = "_label"
)

// MappedKey is a query key resolved against the class metadata.
type MappedKey struct {
	Key     string
	Special string

	// Field holds the values. For a key that crosses a reference it is the
	// reference field and SubKey is the rest of the path.
	Field    *classes.Field
	Prefixes []*classes.Field
	Indexes  []*classes.Index

	Collection bool

	SubKey   string
	SubTypes []string
}

func (m *MappedKey) HasSubQuery() bool {
	return m.SubKey != ""
}

// IndexKey is the symbol name of ix when reached through this key.
func (m *MappedKey) IndexKey(ix *classes.Index) string {
	return indexes.UniqueName(ix, m.Prefixes)
}

// Map resolves key for a query over the named classes, all classes if none.
func Map(env *classes.Environment, types []string, key string) (*MappedKey, error) {
	switch key {
	case IDKey, TypeKey, AnyKey, LabelKey:
		return &MappedKey{Key: key, Special: key}, nil
	}
	structs, err := structsOf(env, types)
	if err != nil {
		return nil, err
	}
	m := &MappedKey{Key: key}
	parts := strings.Split(key, "/")
	for i, part := range parts {
		field, candidates := findField(env, structs, part)
		if field == nil {
			return nil, &recdb_errors.UnsupportedIndexError{Key: key, Reason: "no field named " + part}
		}
		m.Collection = m.Collection || field.Collection
		last := i == len(parts)-1
		if last {
			m.Field = field
			m.Indexes = candidates
			break
		}
		if field.Type != classes.Record {
			return nil, &recdb_errors.UnsupportedIndexError{Key: key, Reason: part + " is not a record field"}
		}
		targets, err := structsOf(env, field.Types)
		if err != nil {
			return nil, err
		}
		if field.Embedded || allEmbedded(targets) {
			if len(candidates) == 0 {
				return nil, &recdb_errors.UnsupportedIndexError{Key: key, Reason: part + " is embedded but not indexed"}
			}
			m.Prefixes = append(m.Prefixes, field)
			structs = targets
			continue
		}
		m.Field = field
		m.Indexes = candidates
		m.SubKey = strings.Join(parts[i+1:], "/")
		m.SubTypes = field.Types
		break
	}
	if len(m.Indexes) == 0 {
		return nil, &recdb_errors.UnsupportedIndexError{Key: key}
	}
	return m, nil
}

func structsOf(env *classes.Environment, types []string) ([]*classes.Class, error) {
	var list []*classes.Class
	if len(types) == 0 {
		for c := range env.Classes() {
			list = append(list, c)
		}
		return list, nil
	}
	for _, name := range types {
		c, err := env.ClassByName(name)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, nil
}

func allEmbedded(list []*classes.Class) bool {
	for _, c := range list {
		if !c.Embedded {
			return false
		}
	}
	return len(list) > 0
}

// findField looks the name up in the classes first, then globally, and
// collects every index whose first field it is.
func findField(env *classes.Environment, structs []*classes.Class, name string) (*classes.Field, []*classes.Index) {
	var found *classes.Field
	var candidates []*classes.Index
	for _, c := range structs {
		if f, ok := c.Field(name); ok && found == nil {
			found = f
		}
		candidates = append(candidates, c.IndexesOn(name)...)
	}
	if g, ok := env.Field(name); ok {
		if found == nil {
			found = g
		}
		candidates = append(candidates, env.IndexesOn(name)...)
	}
	return found, candidates
}
