// Package config reads recdb settings from an optional YAML file and
// prefixed environment variables.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/drpcorg/recdb"
	"github.com/drpcorg/recdb/classes"
	"github.com/drpcorg/recdb/dialect"
	"github.com/drpcorg/recdb/utils"
)

const EnvPrefix = "RECDB_"

type Config struct {
	// Driver is "sqlite" or "postgres".
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	// ReadDSN, if set, opens a separate pool for reads.
	ReadDSN string `mapstructure:"read_dsn"`
	// Classes is the path of the class definitions.
	Classes string `mapstructure:"classes"`

	Catalog           string        `mapstructure:"catalog"`
	IndexSpatial      bool          `mapstructure:"index_spatial"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	MaxWriteRetries   int           `mapstructure:"max_write_retries"`
	ConnectionRetries int           `mapstructure:"connection_retries"`
	RecordCacheSize   int           `mapstructure:"record_cache_size"`
	LogLevel          string        `mapstructure:"log_level"`
}

// Load fills target from the YAML file at path, if any, then from
// environment variables. RECDB_READ_TIMEOUT sets read_timeout.
func Load(prefix, path string, target any) error {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
	}
	prefix = strings.ToUpper(prefix)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		v.Set(strings.ToLower(strings.TrimPrefix(key, prefix)), value)
	}
	if err := v.Unmarshal(target); err != nil {
		return errors.Wrap(err, "decode config")
	}
	return nil
}

func (c *Config) Dialect() (dialect.Dialect, error) {
	switch strings.ToLower(c.Driver) {
	case "", "sqlite":
		return dialect.SQLite{}, nil
	case "postgres", "pgx":
		return dialect.Postgres{}, nil
	}
	return nil, errors.Errorf("unknown driver %q", c.Driver)
}

func (c *Config) Options(logger utils.Logger) (recdb.Options, error) {
	d, err := c.Dialect()
	if err != nil {
		return recdb.Options{}, err
	}
	return recdb.Options{
		Dialect:           d,
		Catalog:           c.Catalog,
		IndexSpatial:      c.IndexSpatial,
		ReadTimeout:       c.ReadTimeout,
		MaxWriteRetries:   c.MaxWriteRetries,
		ConnectionRetries: c.ConnectionRetries,
		RecordCacheSize:   c.RecordCacheSize,
		Logger:            logger,
	}, nil
}

// Environment loads the class definitions, or an empty environment when no
// file is configured.
func (c *Config) Environment() (*classes.Environment, error) {
	if c.Classes == "" {
		return classes.NewEnvironment(), nil
	}
	return classes.LoadYAML(c.Classes)
}

// Open connects both pools. SetUp is left to the caller.
func (c *Config) Open(logger utils.Logger) (*recdb.DB, error) {
	opts, err := c.Options(logger)
	if err != nil {
		return nil, err
	}
	env, err := c.Environment()
	if err != nil {
		return nil, err
	}
	open := dialect.OpenSQLite
	if _, ok := opts.Dialect.(dialect.Postgres); ok {
		open = dialect.OpenPostgres
	}
	if c.DSN == "" {
		return nil, errors.New("no dsn configured")
	}
	write, err := open(c.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "open write pool")
	}
	read := write
	if c.ReadDSN != "" {
		if read, err = open(c.ReadDSN); err != nil {
			_ = write.Close()
			return nil, errors.Wrap(err, "open read pool")
		}
	}
	return recdb.Open(write, read, env, opts)
}
