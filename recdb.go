// Package recdb stores schemaless records in a relational database and keeps
// one row per indexed value in a small family of typed index tables, so that
// queries over record fields compile to joins against those tables.
package recdb

import (
	"context"
	"database/sql"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"

	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/host"
	"github.com/drpcorg/recdb/indexes"
	"github.com/drpcorg/recdb/recdb_errors"
	"github.com/drpcorg/recdb/sqlgen"
	"github.com/drpcorg/recdb/symbols"
	"github.com/drpcorg/recdb/utils"
)

type Options struct {
	Dialect dialect.Dialect
	// Catalog names the database in logs and metrics.
	Catalog      string
	IndexSpatial bool

	// ReadTimeout applies to reads whose query sets no timeout. Zero means
	// no limit.
	ReadTimeout time.Duration

	MaxWriteRetries   int
	ConnectionRetries int
	// RetryDelay is the mean pause between connection retries, jittered
	// by half either way.
	RetryDelay time.Duration

	RecordCacheSize int
	NowOffsetTTL    time.Duration

	Logger utils.Logger
}

func (o *Options) SetDefaults() {
	if o.Dialect == nil {
		o.Dialect = dialect.SQLite{}
	}
	if o.Catalog == "" {
		o.Catalog = "default"
	}
	if o.MaxWriteRetries == 0 {
		o.MaxWriteRetries = 5
	}
	if o.ConnectionRetries == 0 {
		o.ConnectionRetries = 5
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 10 * time.Millisecond
	}
	if o.RecordCacheSize == 0 {
		o.RecordCacheSize = 1024
	}
	if o.NowOffsetTTL == 0 {
		o.NowOffsetTTL = 5 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo)
	}
}

type DB struct {
	write *sql.DB
	read  *sql.DB
	opts  Options
	env   *classes.Environment

	symbols  *symbols.Dictionary
	indexes  *indexes.IndexManager
	compiler *sqlgen.Compiler
	cache    *lru.Cache[uuid.UUID, Row]
	clock    clock

	spatial atomic.Bool
	closed  atomic.Bool

	// beforeCAS runs between reading a record and its conditional update.
	beforeCAS func(ctx context.Context, q host.Querier) error
}

var _ host.Host = (*DB)(nil)

// Open wraps two pools, one for writes and one for reads; they may be the
// same pool.
func Open(write, read *sql.DB, env *classes.Environment, opts Options) (*DB, error) {
	if write == nil {
		return nil, errors.Wrap(recdb_errors.ErrIllegalArgument, "no write database")
	}
	if read == nil {
		read = write
	}
	if env == nil {
		env = classes.NewEnvironment()
	}
	opts.SetDefaults()
	db := &DB{
		write: write,
		read:  read,
		opts:  opts,
		env:   env,
	}
	db.spatial.Store(opts.IndexSpatial)
	db.symbols = symbols.New(write, opts.Dialect, opts.Logger)
	db.indexes = indexes.NewIndexManager(db)
	db.compiler = sqlgen.New(opts.Dialect, env, db.symbols, db.indexes)
	db.cache, _ = lru.New[uuid.UUID, Row](opts.RecordCacheSize)
	db.clock.ttl = opts.NowOffsetTTL
	db.clock.read = db.readClock
	db.clock.log = opts.Logger
	return db, nil
}

// OpenSQLite opens a SQLite file for both reads and writes.
func OpenSQLite(path string, env *classes.Environment, opts Options) (*DB, error) {
	sqldb, err := dialect.OpenSQLite(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	opts.Dialect = dialect.SQLite{}
	return Open(sqldb, sqldb, env, opts)
}

// OpenPostgres opens a PostgreSQL database for both reads and writes.
func OpenPostgres(dsn string, env *classes.Environment, opts Options) (*DB, error) {
	sqldb, err := dialect.OpenPostgres(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	opts.Dialect = dialect.Postgres{}
	return Open(sqldb, sqldb, env, opts)
}

func (db *DB) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return recdb_errors.ErrClosed
	}
	db.InvalidateCaches()
	err := db.write.Close()
	if db.read != db.write {
		if rerr := db.read.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

func (db *DB) Logger() utils.Logger               { return db.opts.Logger }
func (db *DB) Dialect() dialect.Dialect           { return db.opts.Dialect }
func (db *DB) Environment() *classes.Environment { return db.env }
func (db *DB) IndexSpatial() bool                 { return db.spatial.Load() }

func (db *DB) ctx(ctx context.Context) context.Context {
	return utils.WithDefaultArgs(ctx, "catalog", db.opts.Catalog)
}

func (db *DB) check() error {
	if db.closed.Load() {
		return recdb_errors.ErrClosed
	}
	return nil
}

// SetUp creates the tables unless the Record table already exists. When the
// schema predates spatial indexing, spatial tables are left alone and
// spatial indexing is turned off.
func (db *DB) SetUp(ctx context.Context) error {
	if err := db.check(); err != nil {
		return err
	}
	ctx = db.ctx(ctx)
	exists, err := db.tableExists(ctx, "Record")
	if err != nil {
		return err
	}
	if !exists {
		for _, stmt := range db.opts.Dialect.CreateTables(db.opts.IndexSpatial) {
			if err := db.exec(ctx, db.write, "setup", stmt); err != nil {
				return err
			}
		}
		db.opts.Logger.InfoCtx(ctx, "created tables", "spatial", db.opts.IndexSpatial)
	} else if db.opts.IndexSpatial {
		ok, err := db.tableExists(ctx, indexes.LocationTable.Name)
		if err != nil {
			return err
		}
		if !ok {
			db.opts.Logger.WarnCtx(ctx, "spatial tables are missing, spatial indexing disabled")
			db.spatial.Store(false)
		}
	}
	db.InvalidateCaches()
	return nil
}

func (db *DB) tableExists(ctx context.Context, name string) (bool, error) {
	stmt := "SELECT COUNT(*) FROM " + name + " WHERE 1 = 0"
	err := db.withRetry(ctx, "setup", func() error {
		var n int
		return db.write.QueryRowContext(ctx, stmt).Scan(&n)
	})
	var ce *recdb_errors.ConnectionError
	if errors.As(err, &ce) {
		return false, err
	}
	return err == nil, nil
}

// InvalidateCaches drops cached symbols, table choices, records and the
// clock offset.
func (db *DB) InvalidateCaches() {
	db.symbols.Reset()
	db.indexes.Reset()
	db.cache.Purge()
	db.clock.reset()
}

// FindSymbolID returns the id of an index name, creating it if asked.
// Without create an unknown name yields -1.
func (db *DB) FindSymbolID(ctx context.Context, name string, create bool) (int, error) {
	if err := db.check(); err != nil {
		return 0, err
	}
	ctx = db.ctx(ctx)
	var id int
	err := db.withRetry(ctx, "symbol", func() error {
		if create {
			var err error
			id, err = db.symbols.ResolveOrCreate(ctx, name)
			return err
		}
		found, ok, err := db.symbols.Resolve(ctx, name)
		if err == nil && !ok {
			found = -1
		}
		id = found
		return err
	})
	return id, err
}

// Compiler exposes the SQL the read executors run, for tooling.
func (db *DB) Compiler() *sqlgen.Compiler {
	return db.compiler
}
