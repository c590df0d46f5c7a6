package dialect

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres expects PostGIS when spatial indexing is on.
type Postgres struct{}

var _ Dialect = Postgres{}

func OpenPostgres(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

func (Postgres) Name() string { return "postgres" }

func (Postgres) DriverName() string { return "pgx" }

var pgTypes = map[ColumnType]string{
	TextColumn:   "text",
	UUIDColumn:   "uuid",
	BlobColumn:   "bytea",
	DoubleColumn: "float8",
	IntColumn:    "int4",
}

func (Postgres) Bind(n int, t ColumnType) string {
	return "$" + strconv.Itoa(n) + "::" + pgTypes[t]
}

func (Postgres) CreateTables(spatial bool) []string {
	var stmts []string
	if spatial {
		stmts = append(stmts, `CREATE EXTENSION IF NOT EXISTS postgis`)
	}
	stmts = append(stmts,
		`CREATE TABLE IF NOT EXISTS Record (
			id UUID NOT NULL,
			typeId UUID NOT NULL,
			data BYTEA NOT NULL,
			PRIMARY KEY (id, typeId))`,
		`CREATE INDEX IF NOT EXISTS k_Record_typeId ON Record (typeId, id)`,
		`CREATE TABLE IF NOT EXISTS RecordUpdate (
			id UUID NOT NULL PRIMARY KEY,
			typeId UUID NOT NULL,
			updateDate DOUBLE PRECISION NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS k_RecordUpdate_typeId ON RecordUpdate (typeId, updateDate)`,
		`CREATE INDEX IF NOT EXISTS k_RecordUpdate_updateDate ON RecordUpdate (updateDate)`,
		`CREATE TABLE IF NOT EXISTS Symbol (
			symbolId SERIAL PRIMARY KEY,
			value VARCHAR(500) NOT NULL UNIQUE)`,
	)
	stmts = append(stmts, pgIndexTable("RecordString", "VARCHAR(500)", true)...)
	stmts = append(stmts, pgIndexTable("RecordNumber", "DOUBLE PRECISION", true)...)
	stmts = append(stmts, pgIndexTable("RecordUuid", "UUID", true)...)
	if spatial {
		stmts = append(stmts, pgIndexTable("RecordLocation", "GEOMETRY", false)...)
		stmts = append(stmts, pgIndexTable("RecordRegion", "GEOMETRY", false)...)
	}
	return stmts
}

func pgIndexTable(name, valueType string, btree bool) []string {
	// geometry values are indexed with GIST, not in the primary key
	key := ",\n\t\t\tPRIMARY KEY (symbolId, value, typeId, id)"
	if !btree {
		key = ""
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + name + ` (
			id UUID NOT NULL,
			typeId UUID NOT NULL,
			symbolId INT NOT NULL,
			value ` + valueType + ` NOT NULL` + key + `)`,
		`CREATE INDEX IF NOT EXISTS k_` + name + `_id ON ` + name + ` (id, symbolId)`,
	}
	if !btree {
		stmts = append(stmts,
			`CREATE INDEX IF NOT EXISTS k_`+name+`_symbol ON `+name+` (symbolId, typeId, id)`,
			`CREATE INDEX IF NOT EXISTS k_`+name+`_value ON `+name+` USING GIST (value)`)
	}
	return stmts
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// StartsWith uses LIKE so the btree on value can serve it.
func (Postgres) StartsWith(column, literal string, runes int) string {
	if len(literal) >= 2 && literal[0] == '\'' && literal[len(literal)-1] == '\'' {
		return column + " LIKE " + "'" + escapeLike(literal[1:len(literal)-1]) + "%'"
	}
	return "starts_with(" + column + ", " + literal + ")"
}

func (Postgres) Contains(column, literal string) string {
	return "strpos(" + column + ", " + literal + ") > 0"
}

func (Postgres) NowSeconds() string {
	return "SELECT EXTRACT(EPOCH FROM clock_timestamp())::float8"
}

func pgCode(err error) string {
	var e *pgconn.PgError
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func (Postgres) IsTimeout(err error) bool {
	return isContextTimeout(err) || pgCode(err) == "57014" || mentionsTimeout(err)
}

func (Postgres) IsRetryable(err error) bool {
	switch pgCode(err) {
	case "40001", "40P01":
		return true
	}
	return false
}

func (Postgres) IsConnectionError(err error) bool {
	if strings.HasPrefix(pgCode(err), "08") {
		return true
	}
	var ce *pgconn.ConnectError
	return errors.As(err, &ce) || errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)
}
