package repl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/drpcorg/recdb/query"
)

// rows printed by select
const selectLimit = 20

var (
	HelpCount  = errors.New("count Article [title = 'x' and score > 2]")
	HelpSelect = errors.New("select Article [title startsWith 'x']")
	HelpSQL    = errors.New("sql Article,Person [name = 'x']")
	HelpSymbol = errors.New("symbol Article/title [create]")
)

// parseQuery reads "Class[,Class] [predicate]". A class of * means any.
func parseQuery(arg string) (*query.Query, error) {
	types, rest, _ := strings.Cut(arg, " ")
	if types == "" {
		return nil, errors.New("class expected")
	}
	q := query.From()
	if types != "*" {
		q.Types = strings.Split(types, ",")
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return q, nil
	}
	p, err := query.Parse(rest)
	if err != nil {
		return nil, err
	}
	return q.Where(p), nil
}

func (repl *REPL) CommandHelp() error {
	for _, h := range []error{HelpCount, HelpSelect, HelpSQL, HelpSymbol} {
		_, _ = fmt.Fprintln(repl.Out, h.Error())
	}
	_, _ = fmt.Fprintln(repl.Out, "classes")
	_, _ = fmt.Fprintln(repl.Out, "exit")
	return nil
}

func (repl *REPL) CommandClasses() error {
	for c := range repl.DB.Environment().Classes() {
		names := make([]string, 0, len(c.Fields))
		for _, f := range c.Fields {
			names = append(names, f.Name+":"+string(f.Type))
		}
		_, _ = fmt.Fprintf(repl.Out, "%s\t%s\t%s\n", c.Name, c.ID, strings.Join(names, " "))
	}
	return nil
}

func (repl *REPL) CommandCount(ctx context.Context, arg string) error {
	q, err := parseQuery(arg)
	if err != nil {
		return errors.Join(err, HelpCount)
	}
	n, err := repl.DB.ReadCount(ctx, q)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(repl.Out, "%d\n", n)
	return nil
}

func (repl *REPL) CommandSelect(ctx context.Context, arg string) error {
	q, err := parseQuery(arg)
	if err != nil {
		return errors.Join(err, HelpSelect)
	}
	page, err := repl.DB.ReadPartial(ctx, q, 0, selectLimit)
	if err != nil {
		return err
	}
	for _, row := range page.Items {
		s, err := row.State()
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(s.Values))
		for k := range s.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, len(keys))
		for i, k := range keys {
			fields[i] = fmt.Sprintf("%s=%v", k, s.Values[k])
		}
		_, _ = fmt.Fprintf(repl.Out, "%s\t%s\n", row.ID, strings.Join(fields, " "))
	}
	if page.HasNext() {
		_, _ = fmt.Fprintln(repl.Out, "...")
	}
	return nil
}

func (repl *REPL) CommandSQL(ctx context.Context, arg string) error {
	q, err := parseQuery(arg)
	if err != nil {
		return errors.Join(err, HelpSQL)
	}
	stmt, err := repl.DB.Compiler().Select(ctx, q, 0, 0)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(repl.Out, stmt)
	return nil
}

func (repl *REPL) CommandSymbol(ctx context.Context, arg string) error {
	name, flag, _ := strings.Cut(arg, " ")
	if name == "" {
		return HelpSymbol
	}
	id, err := repl.DB.FindSymbolID(ctx, name, strings.TrimSpace(flag) == "create")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(repl.Out, "%d\n", id)
	return nil
}
