// Package repl is an interactive shell over a recdb database.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ergochat/readline"

	"github.com/drpcorg/recdb"
)

// REPL per se.
type REPL struct {
	DB  *recdb.DB
	Out io.Writer

	rl *readline.Instance
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("classes"),
	readline.PcItem("count"),
	readline.PcItem("select"),
	readline.PcItem("sql"),
	readline.PcItem("symbol"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func New(db *recdb.DB) *REPL {
	return &REPL{DB: db, Out: os.Stdout}
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "recdb> ",
		HistoryFile:     ".recdb_history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

// Run reads and executes lines until exit or end of input.
func (repl *REPL) Run(ctx context.Context) error {
	for {
		line, err := repl.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		err = repl.Execute(ctx, line)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			_, _ = fmt.Fprintf(repl.Out, "%s\n", err.Error())
		}
	}
}

// Execute runs one command line. It returns io.EOF on exit.
func (repl *REPL) Execute(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "help":
		return repl.CommandHelp()
	case "classes":
		return repl.CommandClasses()
	case "count":
		return repl.CommandCount(ctx, arg)
	case "select":
		return repl.CommandSelect(ctx, arg)
	case "sql":
		return repl.CommandSQL(ctx, arg)
	case "symbol":
		return repl.CommandSymbol(ctx, arg)
	case "exit", "quit":
		return io.EOF
	}
	return fmt.Errorf("command unknown: %s", cmd)
}
