// Package scalar normalizes arbitrary Go values into the closed set of
// variants that index tables and the query compiler understand.
package scalar

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/drpcorg/recdb/geo"
	"github.com/google/uuid"
	"golang.org/x/text/language"
)

type Kind uint8

const (
	Missing Kind = iota
	Text
	Number
	UUID
	Point
	Region
)

func (k Kind) String() string {
	switch k {
	case Text:
		return "text"
	case Number:
		return "number"
	case UUID:
		return "uuid"
	case Point:
		return "point"
	case Region:
		return "region"
	}
	return "missing"
}

type Value struct {
	Kind   Kind
	Text   string
	Number float64
	UUID   uuid.UUID
	Point  geo.Location
	Region geo.Region
}

var MissingValue = Value{Kind: Missing}

func OfText(s string) Value { return Value{Kind: Text, Text: s} }
func OfNumber(f float64) Value { return Value{Kind: Number, Number: f} }
func OfUUID(id uuid.UUID) Value { return Value{Kind: UUID, UUID: id} }
func OfPoint(l geo.Location) Value { return Value{Kind: Point, Point: l} }
func OfRegion(r geo.Region) Value { return Value{Kind: Region, Region: r} }

// Of converts a single non-collection value. Dates become epoch
// milliseconds, locales their BCP 47 tag, named enums their name. It reports
// false for nil.
func Of(v any) (Value, bool) {
	switch t := v.(type) {
	case nil:
		return MissingValue, false
	case Value:
		return t, t.Kind != Missing
	case string:
		return OfText(t), true
	case []byte:
		return OfText(string(t)), true
	case rune:
		return OfNumber(float64(t)), true
	case bool:
		return OfText(strconv.FormatBool(t)), true
	case int:
		return OfNumber(float64(t)), true
	case int8:
		return OfNumber(float64(t)), true
	case int16:
		return OfNumber(float64(t)), true
	case int64:
		return OfNumber(float64(t)), true
	case uint:
		return OfNumber(float64(t)), true
	case uint8:
		return OfNumber(float64(t)), true
	case uint16:
		return OfNumber(float64(t)), true
	case uint32:
		return OfNumber(float64(t)), true
	case uint64:
		return OfNumber(float64(t)), true
	case float32:
		return OfNumber(float64(t)), true
	case float64:
		return OfNumber(t), true
	case time.Time:
		return OfNumber(float64(t.UnixMilli())), true
	case uuid.UUID:
		return OfUUID(t), true
	case geo.Location:
		return OfPoint(t), true
	case geo.Region:
		return OfRegion(t), true
	case language.Tag:
		return OfText(t.String()), true
	case fmt.Stringer:
		return OfText(t.String()), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return OfText(rv.String()), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return OfNumber(float64(rv.Int())), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return OfNumber(float64(rv.Uint())), true
	case reflect.Float32, reflect.Float64:
		return OfNumber(rv.Float()), true
	}
	return OfText(fmt.Sprint(v)), true
}

func (v Value) IsMissing() bool {
	return v.Kind == Missing
}

// AsText is the string form used by the string table.
func (v Value) AsText() (string, bool) {
	switch v.Kind {
	case Text:
		return v.Text, true
	case Number:
		return strconv.FormatFloat(v.Number, 'f', -1, 64), true
	case UUID:
		return v.UUID.String(), true
	case Point:
		return v.Point.WKT(), true
	case Region:
		return v.Region.WKT(), true
	}
	return "", false
}

func (v Value) AsNumber() (float64, bool) {
	switch v.Kind {
	case Number:
		return v.Number, !math.IsNaN(v.Number)
	case Text:
		f, err := strconv.ParseFloat(v.Text, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func (v Value) AsUUID() (uuid.UUID, bool) {
	switch v.Kind {
	case UUID:
		return v.UUID, true
	case Text:
		id, err := uuid.Parse(v.Text)
		return id, err == nil
	}
	return uuid.Nil, false
}

// Key is a stable identity used to de-duplicate values of one field.
func (v Value) Key() string {
	s, _ := v.AsText()
	return v.Kind.String() + ":" + s
}

func (v Value) String() string {
	if v.Kind == Missing {
		return "missing"
	}
	s, _ := v.AsText()
	return s
}
