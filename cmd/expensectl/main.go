// Command expensectl manages expenses through the REST API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"expenses/internal/cli"
)

const defaultServer = "http://localhost:3000/api"

const usage = `Usage: expensectl [-server URL] <command> [flags]

Commands:
  list    [-category C]                                   list expenses
  get     ID                                              show one expense
  add     -description D -amount A -category C [-date D]  add an expense
  update  ID -description D -amount A -category C -date D replace an expense
  delete  ID [-yes]                                       delete an expense
  balance                                                 total of all expenses
  health                                                  server and database status

The server defaults to $EXPENSES_API_URL or ` + defaultServer + `.
`

func main() {
	cli.LoadEnvFile()
	ctx, stop := cli.SignalContext(context.Background())
	code := run(ctx, os.Args[1:], os.Getenv("EXPENSES_API_URL"), os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, usage)
}
