package dialect

import (
	"database/sql"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type SQLite struct{}

var _ Dialect = SQLite{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) DriverName() string { return "sqlite" }

func (SQLite) Bind(int, ColumnType) string { return "?" }

// OpenSQLite opens a database file in WAL mode. Transactions take the write
// lock up front so concurrent writers queue on busy_timeout instead of
// failing on lock upgrade.
func OpenSQLite(path string) (*sql.DB, error) {
	if err := registerSpatial(); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_txlock", "immediate")
	return sql.Open("sqlite", "file:"+path+"?"+q.Encode())
}

func (SQLite) CreateTables(spatial bool) []string {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS Record (
			id TEXT NOT NULL,
			typeId TEXT NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (id, typeId))`,
		`CREATE INDEX IF NOT EXISTS k_Record_typeId ON Record (typeId, id)`,
		`CREATE TABLE IF NOT EXISTS RecordUpdate (
			id TEXT NOT NULL PRIMARY KEY,
			typeId TEXT NOT NULL,
			updateDate DOUBLE NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS k_RecordUpdate_typeId ON RecordUpdate (typeId, updateDate)`,
		`CREATE INDEX IF NOT EXISTS k_RecordUpdate_updateDate ON RecordUpdate (updateDate)`,
		`CREATE TABLE IF NOT EXISTS Symbol (
			symbolId INTEGER PRIMARY KEY AUTOINCREMENT,
			value TEXT NOT NULL UNIQUE)`,
	}
	stmts = append(stmts, sqliteIndexTable("RecordString", "TEXT")...)
	stmts = append(stmts, sqliteIndexTable("RecordNumber", "DOUBLE")...)
	stmts = append(stmts, sqliteIndexTable("RecordUuid", "TEXT")...)
	if spatial {
		stmts = append(stmts, sqliteIndexTable("RecordLocation", "TEXT")...)
		stmts = append(stmts, sqliteIndexTable("RecordRegion", "TEXT")...)
	}
	return stmts
}

func sqliteIndexTable(name, valueType string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS ` + name + ` (
			id TEXT NOT NULL,
			typeId TEXT NOT NULL,
			symbolId INTEGER NOT NULL,
			value ` + valueType + ` NOT NULL,
			PRIMARY KEY (symbolId, value, typeId, id))`,
		`CREATE INDEX IF NOT EXISTS k_` + name + `_id ON ` + name + ` (id, symbolId)`,
	}
}

func (SQLite) StartsWith(column, literal string, runes int) string {
	return "substr(" + column + ", 1, " + strconv.Itoa(runes) + ") = " + literal
}

func (SQLite) Contains(column, literal string) string {
	return "instr(" + column + ", " + literal + ") > 0"
}

func (SQLite) NowSeconds() string {
	return "SELECT (julianday('now') - 2440587.5) * 86400.0"
}

func sqliteCode(err error) int {
	var e *sqlite.Error
	if errors.As(err, &e) {
		return e.Code() & 0xff
	}
	return 0
}

func (SQLite) IsTimeout(err error) bool {
	return isContextTimeout(err) || sqliteCode(err) == sqlite3.SQLITE_INTERRUPT || mentionsTimeout(err)
}

func (SQLite) IsRetryable(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

func (SQLite) IsConnectionError(err error) bool {
	switch sqliteCode(err) {
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_NOTADB:
		return true
	}
	return errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed")
}
