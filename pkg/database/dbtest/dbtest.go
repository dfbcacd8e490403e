// Package dbtest opens migrated in-memory SQLite databases for store tests.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/contentforge/pkg/database"
)

// Open returns a fresh, migrated database private to the test
func Open(t testing.TB) *database.Client {
	return OpenWithTimeout(t, 5*time.Second)
}

// OpenWithTimeout is Open with a custom transaction timeout
func OpenWithTimeout(t testing.TB, txTimeout time.Duration) *database.Client {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1&_busy_timeout=5000", uuid.NewString())
	db, err := sql.Open(dialect.SQLite, dsn)
	require.NoError(t, err)

	client := database.NewFromDB(dialect.SQLite, db, txTimeout)
	require.NoError(t, client.Migrate(context.Background()))

	// One connection serializes writers the way a single SQLite file would.
	// The shared cache keeps the in-memory database alive on that connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	t.Cleanup(func() { _ = client.Close() })
	return client
}
