// Package query is the abstract query language: a predicate tree over
// "/"-separated field keys, sorters, and options for the executor.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/drpcorg/recdb/geo"
)

type Operator string

const (
	EqualsAny    Operator = "="
	NotEqualsAll Operator = "!="
	Contains     Operator = "contains"
	StartsWith   Operator = "startsWith"
	Less         Operator = "<"
	LessEqual    Operator = "<="
	Greater      Operator = ">"
	GreaterEqual Operator = ">="
)

func (op Operator) IsRange() bool {
	switch op {
	case Less, LessEqual, Greater, GreaterEqual:
		return true
	}
	return false
}

type CompoundOperator string

const (
	And CompoundOperator = "and"
	Or  CompoundOperator = "or"
	Not CompoundOperator = "not"
)

type Predicate interface {
	String() string
	predicate()
}

type Compound struct {
	Op       CompoundOperator
	Children []Predicate
}

type Comparison struct {
	Key    string
	Op     Operator
	Values []any
}

func (*Compound) predicate()   {}
func (*Comparison) predicate() {}

func (c *Compound) String() string {
	parts := make([]string, len(c.Children))
	for i, child := range c.Children {
		parts[i] = child.String()
	}
	if c.Op == Not {
		return "not (" + strings.Join(parts, " and ") + ")"
	}
	return "(" + strings.Join(parts, " "+string(c.Op)+" ") + ")"
}

func (c *Comparison) String() string {
	parts := make([]string, len(c.Values))
	for i, v := range c.Values {
		if s, ok := v.(string); ok {
			parts[i] = "'" + s + "'"
		} else {
			parts[i] = fmt.Sprint(v)
		}
	}
	return c.Key + " " + string(c.Op) + " " + strings.Join(parts, ", ")
}

type missingValue struct{}

func (missingValue) String() string { return "missing" }

// Missing stands for "no index row for this key".
var Missing any = missingValue{}

func IsMissing(v any) bool {
	_, ok := v.(missingValue)
	return ok
}

// AndOf drops nil children and unwraps single ones.
func AndOf(children ...Predicate) Predicate {
	return compound(And, children)
}

func OrOf(children ...Predicate) Predicate {
	return compound(Or, children)
}

func NotOf(child Predicate) Predicate {
	return &Compound{Op: Not, Children: []Predicate{child}}
}

func compound(op CompoundOperator, children []Predicate) Predicate {
	kept := make([]Predicate, 0, len(children))
	for _, c := range children {
		if c != nil {
			kept = append(kept, c)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	}
	return &Compound{Op: op, Children: kept}
}

// Compare builds a comparison; slice values are expanded.
func Compare(key string, op Operator, values ...any) *Comparison {
	return &Comparison{Key: key, Op: op, Values: flatten(values)}
}

func flatten(values []any) []any {
	var out []any
	for _, v := range values {
		switch t := v.(type) {
		case []any:
			out = append(out, flatten(t)...)
		case []string:
			for _, s := range t {
				out = append(out, s)
			}
		default:
			out = append(out, v)
		}
	}
	return out
}

type SortOperator string

const (
	Ascending  SortOperator = "ascending"
	Descending SortOperator = "descending"
	Closest    SortOperator = "closest"
	Farthest   SortOperator = "farthest"
)

type Sorter struct {
	Op    SortOperator
	Key   string
	Point geo.Location
}

// Option names understood by the executors.
const (
	// ConnectionOption carries a host.Querier to run the read on.
	ConnectionOption = "recdb.connection"
	// ReturnOriginalDataOption keeps the raw record bytes on the result.
	ReturnOriginalDataOption = "recdb.returnOriginalData"
	// NoCacheOption bypasses the record cache.
	NoCacheOption = "recdb.noCache"
	// DisableByIDIteratorOption streams unsorted iteration in one statement.
	DisableByIDIteratorOption = "recdb.disableByIdIterator"
)

type Query struct {
	// Types are class names, empty means every class.
	Types     []string
	Predicate Predicate
	Sorters   []Sorter
	Timeout   time.Duration
	// Comment is prefixed to every statement as /*comment*/.
	Comment string
	Options map[string]any
}

func From(types ...string) *Query {
	return &Query{Types: types}
}

// Where ANDs p into the query predicate.
func (q *Query) Where(p Predicate) *Query {
	q.Predicate = AndOf(q.Predicate, p)
	return q
}

func (q *Query) SortAscending(key string) *Query {
	q.Sorters = append(q.Sorters, Sorter{Op: Ascending, Key: key})
	return q
}

func (q *Query) SortDescending(key string) *Query {
	q.Sorters = append(q.Sorters, Sorter{Op: Descending, Key: key})
	return q
}

func (q *Query) SortClosest(key string, to geo.Location) *Query {
	q.Sorters = append(q.Sorters, Sorter{Op: Closest, Key: key, Point: to})
	return q
}

func (q *Query) SortFarthest(key string, to geo.Location) *Query {
	q.Sorters = append(q.Sorters, Sorter{Op: Farthest, Key: key, Point: to})
	return q
}

func (q *Query) WithTimeout(d time.Duration) *Query {
	q.Timeout = d
	return q
}

func (q *Query) WithComment(c string) *Query {
	q.Comment = c
	return q
}

func (q *Query) Option(name string, value any) *Query {
	if q.Options == nil {
		q.Options = map[string]any{}
	}
	q.Options[name] = value
	return q
}

func (q *Query) BoolOption(name string) bool {
	b, _ := q.Options[name].(bool)
	return b
}

// Clone copies the query shallowly, sharing the predicate tree.
func (q *Query) Clone() *Query {
	c := *q
	c.Types = append([]string(nil), q.Types...)
	c.Sorters = append([]Sorter(nil), q.Sorters...)
	if q.Options != nil {
		c.Options = make(map[string]any, len(q.Options))
		for k, v := range q.Options {
			c.Options[k] = v
		}
	}
	return &c
}

// Keys lists every key the predicate and sorters reference, in order.
func (q *Query) Keys() []string {
	seen := map[string]bool{}
	var keys []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch t := p.(type) {
		case *Compound:
			for _, c := range t.Children {
				walk(c)
			}
		case *Comparison:
			add(t.Key)
		}
	}
	walk(q.Predicate)
	for _, s := range q.Sorters {
		add(s.Key)
	}
	return keys
}
