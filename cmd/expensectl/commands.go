package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"expenses/internal/client"
	"expenses/internal/core"
)

type app struct {
	api    *client.Client
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, envServer string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("expensectl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { printUsage(stderr) }

	server := envServer
	if server == "" {
		server = defaultServer
	}
	global.StringVar(&server, "server", server, "API base URL")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		printUsage(stderr)
		return 2
	}

	a := &app{
		api:    client.New(server, client.WithUserAgent("expensectl/1")),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	var err error
	switch cmd {
	case "list":
		err = a.list(ctx, rest)
	case "get":
		err = a.get(ctx, rest)
	case "add":
		err = a.add(ctx, rest)
	case "update":
		err = a.update(ctx, rest)
	case "delete":
		err = a.delete(ctx, rest)
	case "balance":
		err = a.balance(ctx)
	case "health":
		err = a.health(ctx)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		printUsage(stderr)
		return 2
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) || errors.Is(err, errUsage) {
			return 2
		}
		fmt.Fprintln(stderr, "error:", describe(err))
		return 1
	}
	return 0
}

var errUsage = errors.New("usage")

func describe(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, client.ErrNetwork):
		return "cannot reach the server: " + err.Error()
	default:
		return err.Error()
	}
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// parseArgs lets the positional ID appear before or after the flags.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func (a *app) idArg(fs *flag.FlagSet, args []string) (int64, error) {
	positional, err := parseArgs(fs, args)
	if err != nil {
		return 0, err
	}
	if len(positional) != 1 {
		fmt.Fprintf(a.stderr, "%s: expected exactly one expense ID\n", fs.Name())
		return 0, errUsage
	}
	id, err := strconv.ParseInt(positional[0], 10, 64)
	if err != nil {
		fmt.Fprintf(a.stderr, "%s: invalid expense ID %q\n", fs.Name(), positional[0])
		return 0, errUsage
	}
	return id, nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := a.flagSet("list")
	category := fs.String("category", "", "only show this category")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	items, err := a.api.List(ctx, *category)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.stdout, "No expenses found.")
		return nil
	}
	a.printTable(items)
	return nil
}

func (a *app) get(ctx context.Context, args []string) error {
	id, err := a.idArg(a.flagSet("get"), args)
	if err != nil {
		return err
	}
	e, err := a.api.Get(ctx, id)
	if err != nil {
		return err
	}
	a.printTable([]core.Expense{e})
	return nil
}

type expenseFlags struct {
	description, amount, category, date *string
}

func bindExpenseFlags(fs *flag.FlagSet, defaultDate string) expenseFlags {
	return expenseFlags{
		description: fs.String("description", "", "what the money was spent on"),
		amount:      fs.String("amount", "", "amount, e.g. 12.50 (negative for refunds)"),
		category:    fs.String("category", "", "category, e.g. Food"),
		date:        fs.String("date", defaultDate, "date as YYYY-MM-DD"),
	}
}

func (f expenseFlags) input() core.ExpenseInput {
	return core.ExpenseInput{
		Description: *f.description,
		Amount:      *f.amount,
		Category:    *f.category,
		Date:        *f.date,
	}
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := a.flagSet("add")
	fields := bindExpenseFlags(fs, time.Now().Format(core.DateLayout))
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	e, err := a.api.Create(ctx, fields.input())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Created expense %d\n", e.ID)
	a.printTable([]core.Expense{e})
	return nil
}

func (a *app) update(ctx context.Context, args []string) error {
	fs := a.flagSet("update")
	fields := bindExpenseFlags(fs, "")
	id, err := a.idArg(fs, args)
	if err != nil {
		return err
	}
	e, err := a.api.Update(ctx, id, fields.input())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Updated expense %d\n", e.ID)
	a.printTable([]core.Expense{e})
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	fs := a.flagSet("delete")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	id, err := a.idArg(fs, args)
	if err != nil {
		return err
	}
	if !*yes && !a.confirm(fmt.Sprintf("Are you sure you want to delete expense %d? [y/N] ", id)) {
		fmt.Fprintln(a.stdout, "Aborted.")
		return nil
	}
	msg, err := a.api.Delete(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, msg)
	return nil
}

func (a *app) balance(ctx context.Context) error {
	total, err := a.api.Balance(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Total: %s\n", total)
	return nil
}

func (a *app) health(ctx context.Context) error {
	h, err := a.api.Health(ctx)
	if h.Status != "" {
		fmt.Fprintf(a.stdout, "status=%s database=%s\n", h.Status, h.Database)
	}
	return err
}

func (a *app) confirm(prompt string) bool {
	fmt.Fprint(a.stdout, prompt)
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (a *app) printTable(items []core.Expense) {
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tCATEGORY\tAMOUNT\tDESCRIPTION")
	for _, e := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.Date, e.Category, e.Amount, e.Description)
	}
	tw.Flush()
}
