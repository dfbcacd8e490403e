package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

// ErrNoRows is returned by SelectOne when nothing matched
var ErrNoRows = sql.ErrNoRows

// Select runs s on q and scans every row into dst, a pointer to a slice.
// Column names map onto struct fields through their json tags.
func Select(ctx context.Context, q dialect.ExecQuerier, s *entsql.Selector, dst any) error {
	query, args := s.Query()
	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return err
	}
	defer rows.Close()
	return entsql.ScanSlice(rows, dst)
}

// SelectOne returns the first row of s or ErrNoRows
func SelectOne[T any](ctx context.Context, q dialect.ExecQuerier, s *entsql.Selector) (*T, error) {
	var out []*T
	if err := Select(ctx, q, s.Limit(1), &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNoRows
	}
	return out[0], nil
}

// Exec runs a statement and returns the number of affected rows
func Exec(ctx context.Context, q dialect.ExecQuerier, stmt entsql.Querier) (int64, error) {
	query, args := stmt.Query()
	var res sql.Result
	if err := q.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Int64 runs a single-column select and returns its first value
func Int64(ctx context.Context, q dialect.ExecQuerier, s *entsql.Selector) (int64, error) {
	query, args := s.Query()
	rows := &entsql.Rows{}
	if err := q.Query(ctx, query, args, rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	return entsql.ScanInt64(rows)
}

// WithTx runs fn inside a transaction bounded by the client's tx timeout.
// The transaction commits when fn returns nil and rolls back otherwise.
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context, tx dialect.Tx) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, c.txTimeout)
	defer cancel()

	if c.observeTx != nil {
		start := time.Now()
		defer func() {
			outcome := "commit"
			if err != nil {
				outcome = "rollback"
			}
			c.observeTx(outcome, time.Since(start))
		}()
	}

	tx, err := c.Driver.Tx(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
			err = fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
