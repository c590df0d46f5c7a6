package classes

import (
	"fmt"
	"iter"
	"sort"
	"sync"

	"github.com/drpcorg/recdb/recdb_errors"
	"github.com/google/uuid"
)

// Environment is the set of known classes plus the global fields and
// indexes.
type Environment struct {
	Fields  Fields
	Indexes []*Index

	lock   sync.RWMutex
	byID   map[uuid.UUID]*Class
	byName map[string]*Class
}

func NewEnvironment() *Environment {
	return &Environment{
		byID:   make(map[uuid.UUID]*Class),
		byName: make(map[string]*Class),
	}
}

// AddGlobal declares a global field and, optionally, a global index on it.
func (e *Environment) AddGlobal(field Field, indexes ...*Index) error {
	field.Declaring = ""
	if !field.Valid() {
		return fmt.Errorf("classes: bad field name %q", field.Name)
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	if e.Fields.FindName(field.Name) < 0 {
		e.Fields = append(e.Fields, field)
	}
	for _, ix := range indexes {
		ix.Declaring = ""
		if err := resolveIndex(ix, e.Fields, e.Fields); err != nil {
			return err
		}
		e.Indexes = append(e.Indexes, ix)
	}
	return nil
}

// Add registers a class, resolving the item type of each of its indexes.
func (e *Environment) Add(c *Class) error {
	if c.Name == "" {
		return fmt.Errorf("classes: class without a name")
	}
	if c.ID == uuid.Nil {
		c.ID = ClassID(c.Name)
	}
	for i := range c.Fields {
		if !c.Fields[i].Valid() {
			return fmt.Errorf("classes: %s: bad field name %q", c.Name, c.Fields[i].Name)
		}
		c.Fields[i].Declaring = c.Name
	}
	e.lock.Lock()
	defer e.lock.Unlock()
	for _, ix := range c.Indexes {
		ix.Declaring = c.Name
		if err := resolveIndex(ix, c.Fields, e.Fields); err != nil {
			return fmt.Errorf("classes: %s: %w", c.Name, err)
		}
	}
	e.byID[c.ID] = c
	e.byName[c.Name] = c
	return nil
}

func resolveIndex(ix *Index, fields, globals Fields) error {
	if len(ix.Fields) == 0 {
		return fmt.Errorf("classes: index without fields")
	}
	for _, name := range ix.Fields {
		if fields.FindName(name) < 0 && globals.FindName(name) < 0 {
			return fmt.Errorf("classes: index on unknown field %q", name)
		}
	}
	first := fields.FindName(ix.Field())
	if first >= 0 {
		ix.Type = fields[first].Type
	} else {
		ix.Type = globals[globals.FindName(ix.Field())].Type
	}
	return nil
}

func (e *Environment) ClassByID(id uuid.UUID) (*Class, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	c, ok := e.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", recdb_errors.ErrUnknownClass, id)
	}
	return c, nil
}

func (e *Environment) ClassByName(name string) (*Class, error) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	c, ok := e.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", recdb_errors.ErrUnknownClass, name)
	}
	return c, nil
}

// Classes iterates classes sorted by name.
func (e *Environment) Classes() iter.Seq[*Class] {
	e.lock.RLock()
	list := make([]*Class, 0, len(e.byName))
	for _, c := range e.byName {
		list = append(list, c)
	}
	e.lock.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return func(yield func(*Class) bool) {
		for _, c := range list {
			if !yield(c) {
				return
			}
		}
	}
}

func (e *Environment) Field(name string) (*Field, bool) {
	e.lock.RLock()
	defer e.lock.RUnlock()
	i := e.Fields.FindName(name)
	if i < 0 {
		return nil, false
	}
	return &e.Fields[i], true
}

func (e *Environment) IndexesOn(name string) []*Index {
	e.lock.RLock()
	defer e.lock.RUnlock()
	return indexesOn(e.Indexes, name)
}

// AllIndexes lists global indexes followed by class indexes.
func (e *Environment) AllIndexes() []*Index {
	e.lock.RLock()
	all := append([]*Index(nil), e.Indexes...)
	e.lock.RUnlock()
	for c := range e.Classes() {
		all = append(all, c.Indexes...)
	}
	return all
}
