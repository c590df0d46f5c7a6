// Package dialect hides the differences between relational backends: DDL,
// bind placeholders, string matching functions and error classification.
// Spatial SQL is written with ST_* functions that both backends provide.
package dialect

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

type ColumnType uint8

const (
	TextColumn ColumnType = iota
	UUIDColumn
	BlobColumn
	DoubleColumn
	IntColumn
)

type Dialect interface {
	Name() string
	DriverName() string

	// Bind is the n-th (1-based) bind parameter for a column of type t.
	Bind(n int, t ColumnType) string

	// CreateTables lists idempotent DDL statements.
	CreateTables(spatial bool) []string

	// StartsWith and Contains take an already quoted literal.
	StartsWith(column, literal string, runes int) string
	Contains(column, literal string) string

	// NowSeconds selects the database clock in epoch seconds.
	NowSeconds() string

	IsTimeout(err error) bool
	IsRetryable(err error) bool
	IsConnectionError(err error) bool
}

// Quote makes a SQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func QuoteNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// GeometryLiteral turns WKT into a geometry expression.
func GeometryLiteral(wkt string) string {
	return "ST_GeomFromText(" + Quote(wkt) + ")"
}

func isContextTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func mentionsTimeout(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}

// Placeholders renders n consecutive bind parameters starting at from.
func Placeholders(d Dialect, from int, types ...ColumnType) string {
	var b strings.Builder
	for i, t := range types {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Bind(from+i, t))
	}
	return b.String()
}
