package indexes

import (
	"reflect"
	"strings"

	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/scalar"
	"github.com/drpcorg/recdb/state"
	"github.com/google/uuid"
)

// IndexValue is everything one index contributes for one object: one tuple
// per combination of the index fields' values.
type IndexValue struct {
	Index *classes.Index
	// embedding fields leading to the object holding the index fields
	Prefixes []*classes.Field
	Tuples   [][]scalar.Value
}

func (v *IndexValue) UniqueName() string {
	return UniqueName(v.Index, v.Prefixes)
}

// UniqueName names an index reached through embedding fields. Without
// prefixes it is the index's own unique name. With them it is the first
// prefix's unique name, the remaining prefix names and the index fields,
// joined by "/".
func UniqueName(ix *classes.Index, prefixes []*classes.Field) string {
	if len(prefixes) == 0 {
		return ix.UniqueName()
	}
	var b strings.Builder
	b.WriteString(prefixes[0].UniqueName())
	for _, p := range prefixes[1:] {
		b.WriteByte('/')
		b.WriteString(p.Name)
	}
	b.WriteByte('/')
	b.WriteString(strings.Join(ix.Fields, ","))
	return b.String()
}

type structure struct {
	fields  classes.Fields
	indexes []*classes.Index
	globals classes.Fields
}

func (s structure) field(name string) *classes.Field {
	if i := s.fields.FindName(name); i >= 0 {
		return &s.fields[i]
	}
	if i := s.globals.FindName(name); i >= 0 {
		return &s.globals[i]
	}
	return nil
}

type extractor struct {
	env   *classes.Environment
	root  *state.State
	found []*IndexValue
}

// Find collects the index values of s from the global indexes and those of
// its class. An unknown class yields nothing.
func Find(env *classes.Environment, s *state.State) []*IndexValue {
	class, err := env.ClassByID(s.TypeID)
	if err != nil {
		return nil
	}
	x := &extractor{env: env, root: s}
	x.collectAll(nil, class, s.Values)
	return x.found
}

func (x *extractor) collectAll(prefixes []*classes.Field, class *classes.Class, values map[string]any) {
	global := structure{fields: x.env.Fields, indexes: x.env.Indexes}
	for _, ix := range global.indexes {
		x.collectIndex(prefixes, global, values, ix)
	}
	typed := structure{fields: class.Fields, indexes: class.Indexes, globals: x.env.Fields}
	for _, ix := range typed.indexes {
		x.collectIndex(prefixes, typed, values, ix)
	}
}

func (x *extractor) collectIndex(prefixes []*classes.Field, st structure, values map[string]any, ix *classes.Index) {
	perField := make([][]scalar.Value, 0, len(ix.Fields))
	for _, name := range ix.Fields {
		field := st.field(name)
		if field == nil {
			return
		}
		var raw any
		if field.Computed() {
			raw = field.Compute(x.holder(prefixes, values))
		} else {
			raw = values[field.Name]
		}
		set := &valueSet{seen: map[string]bool{}}
		x.collectField(prefixes, field, set, raw)
		// one empty component drops the whole index for this object
		if len(set.list) == 0 {
			return
		}
		perField = append(perField, set.list)
	}
	x.found = append(x.found, &IndexValue{
		Index:    ix,
		Prefixes: prefixes,
		Tuples:   cartesian(perField),
	})
}

// holder finds the values of the object reached by the prefix path. Paths
// through collections are ambiguous, those fall back to the values being
// walked.
func (x *extractor) holder(prefixes []*classes.Field, values map[string]any) map[string]any {
	switch t := x.root.GetByPath(prefixPath(prefixes)).(type) {
	case map[string]any:
		return t
	case *state.State:
		return t.Values
	}
	return values
}

func prefixPath(prefixes []*classes.Field) string {
	names := make([]string, len(prefixes))
	for i, p := range prefixes {
		names[i] = p.Name
	}
	return strings.Join(names, "/")
}

type valueSet struct {
	seen map[string]bool
	list []scalar.Value
}

func (s *valueSet) add(v scalar.Value) {
	k := v.Key()
	if s.seen[k] {
		return
	}
	s.seen[k] = true
	s.list = append(s.list, v)
}

func (x *extractor) collectField(prefixes []*classes.Field, field *classes.Field, set *valueSet, value any) {
	switch t := value.(type) {
	case nil:
		return
	case *state.State:
		x.collectRecord(prefixes, field, set, t)
		return
	case state.Ref:
		set.add(scalar.OfUUID(t.ID))
		return
	case []byte, string, uuid.UUID:
		if v, ok := scalar.Of(t); ok {
			set.add(v)
		}
		return
	case []any:
		for _, item := range t {
			x.collectField(prefixes, field, set, item)
		}
		return
	case map[string]any:
		for _, item := range t {
			x.collectField(prefixes, field, set, item)
		}
		return
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			x.collectField(prefixes, field, set, rv.Index(i).Interface())
		}
		return
	case reflect.Map:
		iter := rv.MapRange()
		for iter.Next() {
			x.collectField(prefixes, field, set, iter.Value().Interface())
		}
		return
	}
	if v, ok := scalar.Of(value); ok {
		set.add(v)
	}
}

// collectRecord indexes an embedded record under the prefix chain, or
// reduces a plain reference to its id.
func (x *extractor) collectRecord(prefixes []*classes.Field, field *classes.Field, set *valueSet, rec *state.State) {
	class, err := x.env.ClassByID(rec.TypeID)
	embedded := field.Embedded || (err == nil && class.Embedded)
	if !embedded {
		set.add(scalar.OfUUID(rec.ID))
		return
	}
	if class == nil {
		return
	}
	chain := make([]*classes.Field, len(prefixes), len(prefixes)+1)
	copy(chain, prefixes)
	chain = append(chain, field)
	x.collectAll(chain, class, rec.Values)
}

func cartesian(sets [][]scalar.Value) [][]scalar.Value {
	tuples := [][]scalar.Value{{}}
	for _, set := range sets {
		next := make([][]scalar.Value, 0, len(tuples)*len(set))
		for _, tuple := range tuples {
			for _, v := range set {
				t := make([]scalar.Value, len(tuple), len(tuple)+1)
				copy(t, tuple)
				next = append(next, append(t, v))
			}
		}
		tuples = next
	}
	return tuples
}
