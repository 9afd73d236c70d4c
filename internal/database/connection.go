// Package database implements the PostgreSQL side of the engine: the single
// logical connection a Model owns, the schema inspector backing the Metadata
// service, and helpers for classifying PostgreSQL errors.
package database

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"

	"github.com/relata-io/relata/internal/config"
	"github.com/relata-io/relata/internal/relation"
)

// Connection is one logical connection to PostgreSQL. Queries serialize at
// the connection; Ping re-dials when the connection is found broken, which is
// how the engine's single reconnect retry is served.
type Connection struct {
	mu   sync.Mutex
	conn *pgx.Conn
	cfg  config.DatabaseConfig
}

var _ relation.Executor = (*Connection)(nil)

// Connect establishes the connection and registers text codecs for the
// catalog types pgx does not handle by default.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Connection, error) {
	c := &Connection{cfg: cfg}
	if err := c.dial(ctx); err != nil {
		return nil, err
	}
	log.Info().
		Str("database", cfg.Database).
		Str("user", cfg.User).
		Msg("Database connection established")
	return c, nil
}

func (c *Connection) dial(ctx context.Context) error {
	connConfig, err := pgx.ParseConfig(c.cfg.ConnectionString())
	if err != nil {
		return wrapErr(err)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := pgx.ConnectConfig(dialCtx, connConfig)
	if err != nil {
		return wrapErr(err)
	}
	// Register tsvector/tsquery/regclass as text so they scan into any.
	for _, t := range []struct {
		name string
		oid  uint32
	}{{"tsvector", 3614}, {"tsquery", 3615}, {"regclass", 2205}} {
		conn.TypeMap().RegisterType(&pgtype.Type{Name: t.name, OID: t.oid, Codec: pgtype.TextCodec{}})
	}
	c.conn = conn
	return nil
}

// Close terminates the connection.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	err := c.conn.Close(ctx)
	log.Info().Str("database", c.cfg.Database).Msg("Database connection closed")
	return err
}

// Query runs a row-returning statement. The returned rows hold the
// connection until closed or drained.
func (c *Connection) Query(ctx context.Context, sql string, args ...any) (relation.Rows, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &rowsAdapter{rows: rows}, nil
}

// Exec runs a statement without result rows and reports the affected count.
func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	tag, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, wrapErr(err)
	}
	return tag.RowsAffected(), nil
}

// Ping verifies the connection, re-dialing when it is closed or broken.
func (c *Connection) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Ping(ctx); err == nil {
			return nil
		}
		_ = c.conn.Close(ctx)
	}
	return c.dial(ctx)
}

// rowsAdapter turns pgx rows into the engine's name→value row mappings.
type rowsAdapter struct {
	rows pgx.Rows
	cols []string
}

func (r *rowsAdapter) Next() bool { return r.rows.Next() }

func (r *rowsAdapter) Values() (map[string]any, error) {
	if r.cols == nil {
		for _, fd := range r.rows.FieldDescriptions() {
			r.cols = append(r.cols, fd.Name)
		}
	}
	vals, err := r.rows.Values()
	if err != nil {
		return nil, wrapErr(err)
	}
	out := make(map[string]any, len(vals))
	for i, v := range vals {
		out[r.cols[i]] = v
	}
	return out, nil
}

func (r *rowsAdapter) Err() error {
	if err := r.rows.Err(); err != nil {
		return wrapErr(err)
	}
	return nil
}

func (r *rowsAdapter) Close() { r.rows.Close() }

// DisconnectError marks a failure caused by a broken connection. The engine
// retries such failures exactly once after a successful Ping.
type DisconnectError struct {
	Err error
}

func (e *DisconnectError) Error() string      { return "connection broken: " + e.Err.Error() }
func (e *DisconnectError) Unwrap() error      { return e.Err }
func (e *DisconnectError) Disconnected() bool { return true }

// wrapErr classifies driver failures, tagging broken connections.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if isDisconnect(err) {
		return &DisconnectError{Err: err}
	}
	return err
}

// Connection-fatal SQLSTATE codes: class 08 (connection exception),
// 57P01..57P03 (shutdown, crash, cannot connect now), 53300 (too many
// connections).
func isDisconnect(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := pgErr.Code
		return strings.HasPrefix(code, "08") ||
			code == "57P01" || code == "57P02" || code == "57P03" ||
			code == "53300"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return strings.Contains(err.Error(), "conn closed")
}
