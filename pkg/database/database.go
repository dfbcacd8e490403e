package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultTxTimeout bounds a transaction when the client was built without one
const DefaultTxTimeout = 5 * time.Second

// Client holds the database client
type Client struct {
	Driver    *entsql.Driver
	db        *sql.DB // Underlying database for pool stats
	txTimeout time.Duration
	observeTx func(outcome string, d time.Duration)
}

// PoolConfig holds connection pool configuration
type PoolConfig struct {
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum amount of time a connection may be reused
	ConnMaxIdleTime time.Duration // Maximum amount of time a connection may be idle
}

// SSLConfig holds SSL/TLS configuration for database connections
type SSLConfig struct {
	Mode         string // disable, require, verify-ca, verify-full
	CertPath     string // Path to client certificate
	KeyPath      string // Path to client key
	RootCertPath string // Path to root CA certificate
}

// DefaultPoolConfig returns sensible defaults for connection pooling
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}
}

// BuildConnectionString builds a PostgreSQL connection string with SSL parameters
func BuildConnectionString(baseURL string, sslCfg *SSLConfig) (string, error) {
	// If no SSL config provided, return base URL as-is
	if sslCfg == nil {
		return baseURL, nil
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse database URL: %w", err)
	}

	query := parsedURL.Query()

	// Set SSL mode (overrides any existing sslmode in URL)
	if sslCfg.Mode != "" {
		query.Set("sslmode", sslCfg.Mode)
	}
	if sslCfg.CertPath != "" {
		query.Set("sslcert", sslCfg.CertPath)
	}
	if sslCfg.KeyPath != "" {
		query.Set("sslkey", sslCfg.KeyPath)
	}
	if sslCfg.RootCertPath != "" {
		query.Set("sslrootcert", sslCfg.RootCertPath)
	}

	parsedURL.RawQuery = query.Encode()

	return parsedURL.String(), nil
}

// Options configures NewClient
type Options struct {
	Driver    string // postgres or sqlite3
	URL       string
	Pool      PoolConfig
	SSL       *SSLConfig
	TxTimeout time.Duration
	// SkipMigrate leaves the schema untouched on connect
	SkipMigrate bool
}

// NewClient opens the database, configures the pool and applies migrations
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	driverName := opts.Driver
	if driverName == "" {
		driverName = dialect.Postgres
	}

	connStr := opts.URL
	if driverName == dialect.Postgres {
		var err error
		connStr, err = BuildConnectionString(opts.URL, opts.SSL)
		if err != nil {
			return nil, fmt.Errorf("failed building connection string: %w", err)
		}
		if opts.SSL != nil && opts.SSL.Mode != "" && opts.SSL.Mode != "disable" {
			log.Printf("🔒 Database SSL enabled (mode: %s)", opts.SSL.Mode)
		}
	}

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed opening connection to %s: %w", driverName, err)
	}

	pool := opts.Pool
	if pool.MaxOpenConns == 0 {
		pool = DefaultPoolConfig()
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	log.Printf("✅ Database connection pool configured (driver: %s, max_open: %d, max_idle: %d)",
		driverName, pool.MaxOpenConns, pool.MaxIdleConns)

	client := NewFromDB(driverName, db, opts.TxTimeout)

	if !opts.SkipMigrate {
		if err := client.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		log.Println("✅ Database connected and migrations applied")
	}

	return client, nil
}

// NewFromDB wraps an already configured *sql.DB
func NewFromDB(driverName string, db *sql.DB, txTimeout time.Duration) *Client {
	if txTimeout <= 0 {
		txTimeout = DefaultTxTimeout
	}
	return &Client{
		Driver:    entsql.OpenDB(driverName, db),
		db:        db,
		txTimeout: txTimeout,
	}
}

// SQL returns a statement builder for the client's dialect
func (c *Client) SQL() *entsql.DialectBuilder {
	return entsql.Dialect(c.Driver.Dialect())
}

// Dialect returns the SQL dialect name
func (c *Client) Dialect() string {
	return c.Driver.Dialect()
}

// OnTx registers a callback told how long each transaction took and
// whether it committed or rolled back
func (c *Client) OnTx(fn func(outcome string, d time.Duration)) {
	c.observeTx = fn
}

// TxTimeout returns the upper bound applied to every transaction
func (c *Client) TxTimeout() time.Duration {
	return c.txTimeout
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.Driver.Close()
}

// Ping checks if the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Stats returns database connection pool statistics
func (c *Client) Stats() sql.DBStats {
	return c.db.Stats()
}
