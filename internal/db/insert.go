package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// maxParams is the Postgres bind parameter limit per statement.
const maxParams = 65535

// InsertConfig defines a multi-row INSERT.
type InsertConfig struct {
	Table     string   // target table, optionally schema-qualified
	Columns   []string // columns being inserted, in row order
	Returning []string // columns to return; empty means no RETURNING clause
}

// InsertReturning inserts rows with one parameterized multi-row INSERT per
// parameter-limit chunk. When cfg.Returning is set, scan is called once per
// returned row. Returns the number of rows returned (or affected when there
// is no RETURNING clause). Policies on the table may legitimately return
// fewer rows than were inserted.
func InsertReturning(ctx context.Context, q Querier, cfg InsertConfig, rows [][]any, scan func(pgx.Rows) error) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: insert: no columns specified")
	}
	for i, r := range rows {
		if len(r) != len(cfg.Columns) {
			return 0, eris.Errorf("db: insert: row %d has %d values, want %d", i, len(r), len(cfg.Columns))
		}
	}

	per := maxParams / len(cfg.Columns)
	total := 0
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		n, err := insertChunk(ctx, q, cfg, rows[start:end], scan)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func insertChunk(ctx context.Context, q Querier, cfg InsertConfig, rows [][]any, scan func(pgx.Rows) error) (int, error) {
	sql, args := BuildInsert(cfg, rows)

	if len(cfg.Returning) == 0 {
		tag, err := q.Exec(ctx, sql, args...)
		if err != nil {
			return 0, eris.Wrapf(err, "db: insert into %s", cfg.Table)
		}
		return int(tag.RowsAffected()), nil
	}

	res, err := q.Query(ctx, sql, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "db: insert into %s", cfg.Table)
	}
	defer res.Close()

	n := 0
	for res.Next() {
		if scan != nil {
			if err := scan(res); err != nil {
				return n, eris.Wrapf(err, "db: scan %s returning row", cfg.Table)
			}
		}
		n++
	}
	if err := res.Err(); err != nil {
		return n, eris.Wrapf(err, "db: insert into %s", cfg.Table)
	}
	return n, nil
}

// BuildInsert renders the INSERT statement and flattened args for rows.
func BuildInsert(cfg InsertConfig, rows [][]any) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", sanitizeTable(cfg.Table), quoteAndJoin(cfg.Columns))

	args := make([]any, 0, len(rows)*len(cfg.Columns))
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range r {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", len(args)+1)
			args = append(args, r[j])
		}
		b.WriteByte(')')
	}

	if len(cfg.Returning) > 0 {
		b.WriteString(" RETURNING ")
		b.WriteString(quoteAndJoin(cfg.Returning))
	}
	return b.String(), args
}

// sanitizeTable handles schema-qualified table names like "crm.deals".
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

// quoteAndJoin quotes each column name and joins with commas.
func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
