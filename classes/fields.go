package classes

// A class is a named bag of fields plus the indexes declared over them.
// Fields and indexes may also be declared globally on the Environment; a
// global index applies to every object that has the named fields.
// Field values live in schemaless records, the class only says how to
// index and query them.

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

type ItemType string

const (
	Text     ItemType = "text"
	Number   ItemType = "number"
	Boolean  ItemType = "boolean"
	Date     ItemType = "date"
	UUID     ItemType = "uuid"
	Record   ItemType = "record"
	Location ItemType = "location"
	Region   ItemType = "region"
	Locale   ItemType = "locale"
	Map      ItemType = "map"
)

type Field struct {
	Name       string   `yaml:"name"`
	Type       ItemType `yaml:"type"`
	Collection bool     `yaml:"collection"`
	Embedded   bool     `yaml:"embedded"`
	// Types restricts a record field to the named classes.
	Types []string `yaml:"types"`

	// Compute makes the field a computed one. It receives the values of the
	// object that holds the field.
	Compute func(values map[string]any) any `yaml:"-"`

	// name of the declaring class, empty for global fields
	Declaring string `yaml:"-"`
}

// Fields
type Fields []Field

func (f Field) Valid() bool {
	for _, l := range f.Name { // has unsafe chars
		if l < ' ' || l == '/' || l == ',' {
			return false
		}
	}
	return len(f.Name) > 0 && utf8.ValidString(f.Name)
}

func (f Field) Computed() bool {
	return f.Compute != nil
}

// UniqueName is "Declaring/name" for class fields and "name" for global ones.
func (f Field) UniqueName() string {
	if f.Declaring == "" {
		return f.Name
	}
	return f.Declaring + "/" + f.Name
}

func (f Fields) FindName(name string) (ndx int) {
	for i := 0; i < len(f); i++ {
		if f[i].Name == name {
			return i
		}
	}
	return -1
}

type Index struct {
	Fields        []string `yaml:"fields"`
	CaseSensitive bool     `yaml:"caseSensitive"`

	// item type of the first field, resolved when the class is added
	Type      ItemType `yaml:"-"`
	Declaring string   `yaml:"-"`
}

func (ix *Index) Compound() bool {
	return len(ix.Fields) > 1
}

// Field is the first field, it decides the physical table.
func (ix *Index) Field() string {
	if len(ix.Fields) == 0 {
		return ""
	}
	return ix.Fields[0]
}

// UniqueName is the symbol name of the index: "Declaring/f1,f2" for class
// indexes, "f1,f2" for global ones.
func (ix *Index) UniqueName() string {
	if ix.Declaring == "" {
		return strings.Join(ix.Fields, ",")
	}
	return ix.Declaring + "/" + strings.Join(ix.Fields, ",")
}

type Class struct {
	ID       uuid.UUID `yaml:"id"`
	Name     string    `yaml:"name"`
	Embedded bool      `yaml:"embedded"`
	Fields   Fields    `yaml:"fields"`
	Indexes  []*Index  `yaml:"indexes"`
}

var classNamespace = uuid.MustParse("6f1d3a52-2a5e-4c55-9a7e-3b7e0c3c2f10")

// ClassID derives a stable type id from the class name.
func ClassID(name string) uuid.UUID {
	return uuid.NewSHA1(classNamespace, []byte(name))
}

func (c *Class) Field(name string) (*Field, bool) {
	i := c.Fields.FindName(name)
	if i < 0 {
		return nil, false
	}
	return &c.Fields[i], true
}

// IndexesOn lists indexes whose first field is name.
func (c *Class) IndexesOn(name string) []*Index {
	return indexesOn(c.Indexes, name)
}

func indexesOn(indexes []*Index, name string) (found []*Index) {
	for _, ix := range indexes {
		if ix.Field() == name {
			found = append(found, ix)
		}
	}
	return
}
