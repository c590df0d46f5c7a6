package state

import (
	"fmt"
	"reflect"
	"time"

	"github.com/drpcorg/recdb/geo"
	"github.com/google/uuid"
	"github.com/ugorji/go/codec"
	"golang.org/x/text/language"
)

// Stored records are canonical msgpack maps. Nested records, references and
// geometries are tagged maps so they survive the round trip.
const (
	keyID       = "_id"
	keyType     = "_type"
	keyRef      = "_ref"
	keyLocation = "_location"
	keyRegion   = "_region"
)

var handle = newHandle()

func newHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{WriteExt: true}
	h.Canonical = true
	h.RawToString = true
	h.MapType = reflect.TypeOf(map[string]any(nil))
	return h
}

func Serialize(values map[string]any) ([]byte, error) {
	var out []byte
	enc := codec.NewEncoderBytes(&out, handle)
	if err := enc.Encode(toSimple(values)); err != nil {
		return nil, fmt.Errorf("state: encode: %w", err)
	}
	return out, nil
}

func Decode(data []byte) (map[string]any, error) {
	var simple map[string]any
	dec := codec.NewDecoderBytes(data, handle)
	if err := dec.Decode(&simple); err != nil {
		return nil, fmt.Errorf("state: decode: %w", err)
	}
	values, _ := fromSimple(simple).(map[string]any)
	if values == nil {
		values = map[string]any{}
	}
	return values, nil
}

func toSimple(v any) any {
	switch t := v.(type) {
	case nil, string, bool, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	case *State:
		m := simpleMap(t.Values)
		m[keyID] = t.ID.String()
		m[keyType] = t.TypeID.String()
		return m
	case Ref:
		return map[string]any{keyRef: t.ID.String(), keyType: t.TypeID.String()}
	case uuid.UUID:
		return t.String()
	case time.Time:
		return t.UnixMilli()
	case language.Tag:
		return t.String()
	case geo.Location:
		return map[string]any{keyLocation: t.WKT()}
	case geo.Region:
		return map[string]any{keyRegion: t.WKT()}
	case map[string]any:
		return simpleMap(t)
	case []any:
		list := make([]any, len(t))
		for i, item := range t {
			list[i] = toSimple(item)
		}
		return list
	case fmt.Stringer:
		return t.String()
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		list := make([]any, rv.Len())
		for i := range list {
			list[i] = toSimple(rv.Index(i).Interface())
		}
		return list
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = toSimple(iter.Value().Interface())
		}
		return m
	case reflect.String:
		return rv.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	}
	return fmt.Sprint(v)
}

func simpleMap(values map[string]any) map[string]any {
	m := make(map[string]any, len(values))
	for k, v := range values {
		m[k] = toSimple(v)
	}
	return m
}

func fromSimple(v any) any {
	switch t := v.(type) {
	case []any:
		for i, item := range t {
			t[i] = fromSimple(item)
		}
		return t
	case map[string]any:
		if wkt, ok := t[keyLocation].(string); ok && len(t) == 1 {
			if g, err := geo.Parse(wkt); err == nil {
				if l, err := geo.FromGeometry(g); err == nil {
					return l
				}
			}
		}
		if wkt, ok := t[keyRegion].(string); ok && len(t) == 1 {
			if g, err := geo.Parse(wkt); err == nil {
				if r, err := geo.FromGeometry(g); err == nil {
					return r
				}
			}
		}
		typeID, _ := uuid.Parse(stringOf(t[keyType]))
		if ref, ok := t[keyRef]; ok {
			id, _ := uuid.Parse(stringOf(ref))
			return Ref{ID: id, TypeID: typeID}
		}
		for k, item := range t {
			t[k] = fromSimple(item)
		}
		if raw, ok := t[keyID]; ok {
			id, _ := uuid.Parse(stringOf(raw))
			delete(t, keyID)
			delete(t, keyType)
			return Existing(id, typeID, t)
		}
		return t
	}
	return v
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
