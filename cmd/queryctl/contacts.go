package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/querykit/criteria"
	"github.com/robert-malhotra/querykit/memquery"
	"github.com/robert-malhotra/querykit/predicate"
	"github.com/robert-malhotra/querykit/sqlquery"
	"github.com/robert-malhotra/querykit/store"
)

// Contact is the demo row shape.
type Contact struct {
	ID        int64  `db:"id" json:"id"`
	FirstName string `db:"first_name" json:"first_name"`
	LastName  string `db:"last_name" json:"last_name"`
	Email     string `db:"email" json:"email"`
	Age       int    `db:"age" json:"age"`
	Deleted   bool   `db:"is_deleted" json:"deleted"`
}

var contactColumns = map[string]string{
	"ID":        "id",
	"FirstName": "first_name",
	"LastName":  "last_name",
	"Email":     "email",
	"Age":       "age",
	"Deleted":   "is_deleted",
}

// storeFromCommand builds a contact store over the source selected by the
// global flags: a JSON fixture file or a SQL database. Both sources carry
// a soft-delete global filter that --include-deleted bypasses.
func storeFromCommand(ctx context.Context, cmd *cli.Command) (*store.Store[Contact], func() error, error) {
	file := cmd.String(fileFlag.Name)
	driver := cmd.String(driverFlag.Name)

	switch {
	case file != "" && driver != "":
		return nil, nil, fmt.Errorf("flags --file and --driver are mutually exclusive")
	case file != "":
		provider, err := fileProvider(file)
		if err != nil {
			return nil, nil, err
		}
		contacts, err := store.New[Contact](provider)
		if err != nil {
			return nil, nil, err
		}
		return contacts, func() error { return nil }, nil
	case driver != "":
		dsn := cmd.String(dsnFlag.Name)
		if dsn == "" {
			return nil, nil, fmt.Errorf("flag --dsn is required with --driver")
		}
		db, err := sqlx.Open(driver, dsn)
		if err != nil {
			return nil, nil, err
		}
		provider, err := sqlProvider(driver, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		contacts, err := store.New[Contact](provider)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return contacts, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("one of --file or --driver is required")
	}
}

func fileProvider(path string) (*memquery.Provider[Contact], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []Contact
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return memquery.NewProvider(rows,
		memquery.WithGlobalFilter[Contact](func(c predicate.Var) predicate.Expression {
			return c.Field("Deleted").Eq(false)
		}),
	), nil
}

func sqlProvider(driver string, db *sqlx.DB) (*sqlquery.Provider[Contact], error) {
	table := sqlquery.Table[Contact]{
		Name:          "contacts",
		Columns:       contactColumns,
		GlobalFilters: []sq.Sqlizer{sq.Eq{"is_deleted": false}},
	}
	var opts []sqlquery.ProviderOption[Contact]
	if driver == "postgres" {
		opts = append(opts, sqlquery.WithPlaceholderFormat[Contact](sq.Dollar))
	}
	return sqlquery.NewProvider(db, table, opts...)
}

// criteriaFromCommand assembles the criteria from the filter and ordering
// flags. Each --where condition is ANDed; each --or-where condition is
// composed in through criteria disjunction.
func criteriaFromCommand(cmd *cli.Command) (criteria.Criteria[Contact], error) {
	crit := criteria.New[Contact]()

	if wheres := cmd.StringSlice(whereFlag.Name); len(wheres) > 0 {
		builders := make([]conditionBuilder, 0, len(wheres))
		for _, raw := range wheres {
			build, err := parseCondition(raw)
			if err != nil {
				return crit, err
			}
			builders = append(builders, build)
		}
		crit = crit.Where(func(c predicate.Var) predicate.Expression {
			exprs := make([]predicate.Expression, len(builders))
			for i, build := range builders {
				exprs[i] = build(c)
			}
			return predicate.And(exprs...)
		})
	}

	for _, raw := range cmd.StringSlice(orWhereFlag.Name) {
		build, err := parseCondition(raw)
		if err != nil {
			return crit, err
		}
		other := criteria.New[Contact]().Where(func(c predicate.Var) predicate.Expression {
			return build(c)
		})
		crit = crit.Or(other)
	}

	for _, path := range cmd.StringSlice(orderByFlag.Name) {
		if _, ok := contactColumns[path]; !ok {
			return crit, fmt.Errorf("unknown field %q", path)
		}
		crit = crit.OrderBy(path)
	}
	for _, path := range cmd.StringSlice(orderDescFlag.Name) {
		if _, ok := contactColumns[path]; !ok {
			return crit, fmt.Errorf("unknown field %q", path)
		}
		crit = crit.OrderByDescending(path)
	}

	if cmd.Bool(includeDeletedFlag.Name) {
		crit = crit.BypassGlobalFilters()
	}
	return crit, nil
}
