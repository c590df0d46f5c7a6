package host

import (
	"context"
	"database/sql"

	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/utils"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Host interface {
	Logger() utils.Logger
	Dialect() dialect.Dialect
	Environment() *classes.Environment
	IndexSpatial() bool
}
