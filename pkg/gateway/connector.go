package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// StoreConfig holds PostgreSQL connection settings.
type StoreConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	// Pool settings
	MaxConns    int32
	MinConns    int32
	MaxIdleTime time.Duration
}

// DefaultStoreConfig returns sensible defaults.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Host:        "localhost",
		Port:        5432,
		Database:    "gatekit",
		User:        "postgres",
		Password:    "",
		MaxConns:    10,
		MinConns:    2,
		MaxIdleTime: 5 * time.Minute,
	}
}

// ConnectionString builds the pgx connection string.
func (c StoreConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=disable",
		c.Host, c.Port, c.Database, c.User, c.Password,
	)
}

// ParseConnectionString parses a postgres:// URL into a StoreConfig.
func ParseConnectionString(raw string) (StoreConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return StoreConfig{}, fmt.Errorf("invalid connection URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return StoreConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	config := DefaultStoreConfig()
	if host := u.Hostname(); host != "" {
		config.Host = host
	}
	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return StoreConfig{}, fmt.Errorf("invalid port %q", port)
		}
		config.Port = n
	}
	if len(u.Path) > 1 {
		config.Database = u.Path[1:]
	}
	if u.User != nil {
		config.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			config.Password = pw
		}
	}
	return config, nil
}

// Connector manages the PostgreSQL connection pool. It is the explicitly
// constructed store handle passed to constructors; there is no ambient
// global connection state.
type Connector struct {
	pool   *pgxpool.Pool
	config StoreConfig
}

// NewConnector creates a new connector (does not connect yet).
func NewConnector(config StoreConfig) *Connector {
	return &Connector{config: config}
}

// Connect establishes the connection pool.
func (c *Connector) Connect(ctx context.Context) error {
	poolConfig, err := pgxpool.ParseConfig(c.config.ConnectionString())
	if err != nil {
		return fmt.Errorf("invalid connection config: %w", err)
	}

	poolConfig.MaxConns = c.config.MaxConns
	poolConfig.MinConns = c.config.MinConns
	poolConfig.MaxConnIdleTime = c.config.MaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	c.pool = pool
	return nil
}

// Pool returns the underlying connection pool, or nil if not connected.
func (c *Connector) Pool() *pgxpool.Pool {
	return c.pool
}

// IsConnected returns true if the pool is active.
func (c *Connector) IsConnected() bool {
	return c.pool != nil
}

// Ping verifies the connection is alive.
func (c *Connector) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return fmt.Errorf("not connected")
	}
	return c.pool.Ping(ctx)
}

// Close closes the connection pool.
func (c *Connector) Close() {
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}
