package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/drpcorg/recdb"
	"github.com/drpcorg/recdb/config"
	"github.com/drpcorg/recdb/query"
	"github.com/drpcorg/recdb/repl"
	"github.com/drpcorg/recdb/utils"
)

var (
	configPath string
	cfg        config.Config
)

func newLogger(level string) utils.Logger {
	var ll slog.Level
	if err := ll.UnmarshalText([]byte(level)); err != nil {
		ll = slog.LevelInfo
	}
	return utils.NewLogger(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      ll,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}

func openDB(ctx context.Context) (*recdb.DB, error) {
	db, err := cfg.Open(newLogger(cfg.LogLevel))
	if err != nil {
		return nil, err
	}
	if err := db.SetUp(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

var rootCmd = &cobra.Command{
	Use:           "recdb",
	Short:         "Schemaless records over SQL",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.Load(config.EnvPrefix, configPath, &cfg); err != nil {
			return err
		}
		flags := cmd.Flags()
		if flags.Changed("dsn") {
			cfg.DSN, _ = flags.GetString("dsn")
		}
		if flags.Changed("driver") {
			cfg.Driver, _ = flags.GetString("driver")
		}
		if flags.Changed("classes") {
			cfg.Classes, _ = flags.GetString("classes")
		}
		if flags.Changed("spatial") {
			cfg.IndexSpatial, _ = flags.GetBool("spatial")
		}
		return nil
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the record and index tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		fmt.Printf("ready, spatial indexing %v\n", db.IndexSpatial())
		return nil
	},
}

var symbolCmd = &cobra.Command{
	Use:   "symbol <name>",
	Short: "Look up the id of an index name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		create, _ := cmd.Flags().GetBool("create")
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		id, err := db.FindSymbolID(cmd.Context(), args[0], create)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var sqlCmd = &cobra.Command{
	Use:   "sql <class>[,<class>] [predicate]",
	Short: "Print the SQL a query compiles to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		q := query.From(strings.Split(args[0], ",")...)
		if len(args) > 1 {
			p, err := query.Parse(strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			q.Where(p)
		}
		stmt, err := db.Compiler().Select(cmd.Context(), q, 0, 0)
		if err != nil {
			return err
		}
		fmt.Println(stmt)
		return nil
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive shell",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		r := repl.New(db)
		if err := r.Open(); err != nil {
			return err
		}
		defer r.Close()
		return r.Run(cmd.Context())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "YAML config file")
	pf.String("dsn", "", "database file or connection string")
	pf.String("driver", "", "sqlite or postgres")
	pf.String("classes", "", "YAML class definitions")
	pf.Bool("spatial", false, "index locations and regions")
	symbolCmd.Flags().Bool("create", false, "create the symbol if absent")

	rootCmd.AddCommand(setupCmd, symbolCmd, sqlCmd, replCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
