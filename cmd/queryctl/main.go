// queryctl runs criteria queries against a contacts dataset, either a
// JSON fixture file (in-memory engine) or a SQL database (sqlite3 or
// postgres). It exists to exercise the library end to end from a shell.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

var (
	fileFlag = &cli.StringFlag{
		Name:    "file",
		Aliases: []string{"f"},
		Usage:   "JSON fixture file with an array of contacts",
	}
	driverFlag = &cli.StringFlag{
		Name:  "driver",
		Usage: "SQL driver (sqlite3 or postgres)",
	}
	dsnFlag = &cli.StringFlag{
		Name:  "dsn",
		Usage: "SQL data source name",
	}
	whereFlag = &cli.StringSliceFlag{
		Name:    "where",
		Aliases: []string{"w"},
		Usage:   "condition \"Field op value\", repeatable, combined with AND",
	}
	orWhereFlag = &cli.StringSliceFlag{
		Name:  "or-where",
		Usage: "condition combined with OR against the rest of the filter",
	}
	orderByFlag = &cli.StringSliceFlag{
		Name:  "order-by",
		Usage: "ascending sort key, repeatable",
	}
	orderDescFlag = &cli.StringSliceFlag{
		Name:  "order-desc",
		Usage: "descending sort key, repeatable",
	}
	includeDeletedFlag = &cli.BoolFlag{
		Name:  "include-deleted",
		Usage: "bypass the soft-delete global filter",
	}
)

func main() {
	cmd := &cli.Command{
		Name:  "queryctl",
		Usage: "Run composable criteria queries against a contacts dataset",
		Flags: []cli.Flag{
			fileFlag, driverFlag, dsnFlag,
			whereFlag, orWhereFlag, orderByFlag, orderDescFlag,
			includeDeletedFlag,
		},
		Commands: []*cli.Command{
			newListCommand(),
			newCountCommand(),
			newPageCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Print every matching contact",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "lazy",
				Usage: "stream results one per line instead of one array",
			},
		},
		Action: listAction,
	}
}

func newCountCommand() *cli.Command {
	return &cli.Command{
		Name:   "count",
		Usage:  "Print the number of matching contacts",
		Action: countAction,
	}
}

func newPageCommand() *cli.Command {
	return &cli.Command{
		Name:  "page",
		Usage: "Print one page of matching contacts with page metadata",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Usage: "1-based page number", Value: 1},
			&cli.IntFlag{Name: "size", Aliases: []string{"s"}, Usage: "page size", Value: 20},
		},
		Action: pageAction,
	}
}

func listAction(ctx context.Context, cmd *cli.Command) error {
	contacts, closer, err := storeFromCommand(ctx, cmd)
	if err != nil {
		return err
	}
	defer closer()

	crit, err := criteriaFromCommand(cmd)
	if err != nil {
		return err
	}

	if cmd.Bool("lazy") {
		enc := json.NewEncoder(os.Stdout)
		for contact, err := range contacts.LazySequence(ctx, crit) {
			if err != nil {
				return err
			}
			if err := enc.Encode(contact); err != nil {
				return err
			}
		}
		return nil
	}

	rows, err := contacts.List(ctx, crit)
	if err != nil {
		return err
	}
	return printJSON(rows)
}

func countAction(ctx context.Context, cmd *cli.Command) error {
	contacts, closer, err := storeFromCommand(ctx, cmd)
	if err != nil {
		return err
	}
	defer closer()

	crit, err := criteriaFromCommand(cmd)
	if err != nil {
		return err
	}

	n, err := contacts.Count(ctx, crit)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, n)
	return nil
}

func pageAction(ctx context.Context, cmd *cli.Command) error {
	contacts, closer, err := storeFromCommand(ctx, cmd)
	if err != nil {
		return err
	}
	defer closer()

	crit, err := criteriaFromCommand(cmd)
	if err != nil {
		return err
	}

	window, err := contacts.PagedList(ctx, crit, int(cmd.Int("page")), int(cmd.Int("size")))
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"page":         window.Page,
		"size":         window.Size,
		"total_count":  window.TotalCount,
		"total_pages":  window.TotalPages(),
		"has_next":     window.HasNext(),
		"has_previous": window.HasPrevious(),
		"is_last":      window.IsLast(),
		"items":        window.Items,
	})
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(data))
	return nil
}
