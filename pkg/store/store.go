// Package store holds the typed SQL queries behind every table the service owns.
// A Store is bound either to the connection pool or to one transaction.
package store

import (
	"context"
	"errors"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/jordanlanch/contentforge/pkg/database"
)

// ErrNotFound is returned when a lookup matched no row
var ErrNotFound = errors.New("store: not found")

// Store runs queries against a database or an open transaction
type Store struct {
	db  *database.Client
	q   dialect.ExecQuerier
	now func() time.Time
}

// New returns a store bound to the connection pool
func New(db *database.Client) *Store {
	return &Store{
		db:  db,
		q:   db.Driver,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source used for timestamps
func (s *Store) WithClock(now func() time.Time) *Store {
	c := *s
	c.now = now
	return &c
}

// Now returns the store's current time in UTC
func (s *Store) Now() time.Time {
	return s.now().UTC()
}

// DB returns the underlying client
func (s *Store) DB() *database.Client {
	return s.db
}

// Tx runs fn with a store bound to a single transaction.
// Every query made through txStore commits or rolls back together.
func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, txStore *Store) error) error {
	return s.db.WithTx(ctx, func(ctx context.Context, tx dialect.Tx) error {
		c := *s
		c.q = tx
		return fn(ctx, &c)
	})
}

func (s *Store) sql() *entsql.DialectBuilder {
	return s.db.SQL()
}

func (s *Store) table(name string) *entsql.SelectTable {
	return s.sql().Table(name)
}

func one[T any](ctx context.Context, s *Store, sel *entsql.Selector) (*T, error) {
	v, err := database.SelectOne[T](ctx, s.q, sel)
	if errors.Is(err, database.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func all[T any](ctx context.Context, s *Store, sel *entsql.Selector) ([]*T, error) {
	var out []*T
	if err := database.Select(ctx, s.q, sel, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) exec(ctx context.Context, stmt entsql.Querier) (int64, error) {
	return database.Exec(ctx, s.q, stmt)
}
