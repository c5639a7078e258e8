package eventframe

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectionConfig describes how to build the underlying pgx pool: a plain
// struct with defaulted fields, not a builder chain.
type ConnectionConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	Database       string
	URL            string
	MaxConnections int32
	MinConnections int32
}

// DSN renders the config as a libpq connection string, preferring an
// explicit URL when given.
func (c ConnectionConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.Username, c.Password, c.Host, c.Port, c.Database)
}

// NewPool builds a pgxpool.Pool from a ConnectionConfig, applying
// MaxConnections/MinConnections when set.
func NewPool(ctx context.Context, cfg ConnectionConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, &Error{Kind: KindOther, Op: "NewPool", Err: err}
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &Error{Kind: KindPool, Op: "NewPool", Err: err}
	}
	return pool, nil
}
