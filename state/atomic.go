package state

import (
	"fmt"
	"reflect"

	"github.com/drpcorg/recdb/recdb_errors"
)

type OpKind uint8

const (
	OpIncrement OpKind = iota + 1
	OpAdd
	OpRemove
	OpReplace
)

func (k OpKind) String() string {
	switch k {
	case OpIncrement:
		return "increment"
	case OpAdd:
		return "add"
	case OpRemove:
		return "remove"
	case OpReplace:
		return "replace"
	}
	return "unknown"
}

// Op is a field change that is replayed against the latest stored values
// instead of overwriting them.
type Op struct {
	Kind  OpKind
	Field string
	Value any
}

func (s *State) queue(op Op) *State {
	if s.Values == nil {
		s.Values = map[string]any{}
	}
	// the local copy sees the change right away
	_ = op.Apply(s.Values)
	s.ops = append(s.ops, op)
	return s
}

func (s *State) Increment(field string, delta float64) *State {
	return s.queue(Op{Kind: OpIncrement, Field: field, Value: delta})
}

// Add appends an item to a list field.
func (s *State) Add(field string, item any) *State {
	return s.queue(Op{Kind: OpAdd, Field: field, Value: item})
}

// Remove drops every occurrence of item from a list field.
func (s *State) Remove(field string, item any) *State {
	return s.queue(Op{Kind: OpRemove, Field: field, Value: item})
}

// Replace sets the field, but only as part of the atomic replay.
func (s *State) Replace(field string, value any) *State {
	return s.queue(Op{Kind: OpReplace, Field: field, Value: value})
}

func (s *State) AtomicOps() []Op {
	return s.ops
}

func (op Op) Apply(values map[string]any) error {
	switch op.Kind {
	case OpIncrement:
		cur, ok := toFloat(values[op.Field])
		if !ok && values[op.Field] != nil {
			return fmt.Errorf("%w: can't increment %s of %T", recdb_errors.ErrIllegalArgument, op.Field, values[op.Field])
		}
		delta, _ := toFloat(op.Value)
		values[op.Field] = cur + delta
	case OpAdd:
		values[op.Field] = append(toList(values[op.Field]), op.Value)
	case OpRemove:
		list := toList(values[op.Field])
		kept := list[:0]
		for _, item := range list {
			if !sameValue(item, op.Value) {
				kept = append(kept, item)
			}
		}
		values[op.Field] = kept
	case OpReplace:
		values[op.Field] = op.Value
	default:
		return fmt.Errorf("%w: unknown atomic operation %d", recdb_errors.ErrIllegalArgument, op.Kind)
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case float32:
		return float64(t), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func toList(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return append([]any(nil), t...)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		list := make([]any, rv.Len())
		for i := range list {
			list[i] = rv.Index(i).Interface()
		}
		return list
	}
	return []any{v}
}

// sameValue compares values in their stored form, so 1 and int64(1) match.
func sameValue(a, b any) bool {
	fa, oka := toFloat(a)
	fb, okb := toFloat(b)
	if oka && okb {
		return fa == fb
	}
	return reflect.DeepEqual(toSimple(a), toSimple(b))
}
