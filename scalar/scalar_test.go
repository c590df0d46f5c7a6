package scalar

import (
	"testing"
	"time"

	"github.com/drpcorg/recdb/geo"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

type color int

func (c color) String() string {
	return [...]string{"RED", "GREEN"}[c]
}

func TestOf(t *testing.T) {
	id := uuid.New()
	date := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	cases := []struct {
		in   any
		want Value
	}{
		{"foo", OfText("foo")},
		{42, OfNumber(42)},
		{int64(-7), OfNumber(-7)},
		{2.5, OfNumber(2.5)},
		{true, OfText("true")},
		{id, OfUUID(id)},
		{date, OfNumber(float64(date.UnixMilli()))},
		{language.MustParse("en-US"), OfText("en-US")},
		{color(1), OfText("GREEN")},
		{geo.Location{X: 1, Y: 2}, OfPoint(geo.Location{X: 1, Y: 2})},
	}
	for _, c := range cases {
		got, ok := Of(c.in)
		assert.True(t, ok, "%v", c.in)
		assert.Equal(t, c.want, got, "%v", c.in)
	}

	_, ok := Of(nil)
	assert.False(t, ok)
}

func TestConversions(t *testing.T) {
	f, ok := OfText("12.5").AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 12.5, f)

	_, ok = OfText("twelve").AsNumber()
	assert.False(t, ok)

	s, ok := OfNumber(3).AsText()
	assert.True(t, ok)
	assert.Equal(t, "3", s)

	id := uuid.New()
	got, ok := OfText(id.String()).AsUUID()
	assert.True(t, ok)
	assert.Equal(t, id, got)

	_, ok = OfNumber(1).AsUUID()
	assert.False(t, ok)
	assert.NotEqual(t, OfText("1").Key(), OfNumber(1).Key())
}
