package relation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Model binds a database name to an Executor and a Metadata service. It owns
// one logical connection: queries of relations sharing a Model serialize at
// that connection.
type Model struct {
	name string
	exec Executor
	meta Metadata

	// reconnectMu keeps concurrent retrying operations from multiplying the
	// reconnection work.
	reconnectMu sync.Mutex

	txMu    sync.Mutex
	txLevel int
}

// NewModel creates a Model over the given executor and metadata service.
func NewModel(name string, exec Executor, meta Metadata) *Model {
	return &Model{name: name, exec: exec, meta: meta}
}

// Name returns the database name.
func (m *Model) Name() string { return m.name }

// Relation instantiates a relation object for the schema-qualified name
// ("schema.relation").
func (m *Model) Relation(ctx context.Context, qrn string, opts ...Option) (*Relation, error) {
	schema, name, err := splitQRN(qrn)
	if err != nil {
		return nil, err
	}
	meta, err := m.meta.Relation(ctx, FQRN{DB: m.name, Schema: schema, Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to load metadata for %s: %w", qrn, err)
	}
	return newRelation(m, meta, opts...)
}

func splitQRN(qrn string) (string, string, error) {
	parts := strings.SplitN(strings.ReplaceAll(qrn, `"`, ""), ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed qualified relation name %q, want \"schema.relation\"", qrn)
	}
	return parts[0], parts[1], nil
}

// query runs a row-returning statement with the single reconnect retry.
func (m *Model) query(ctx context.Context, mogrify bool, sql string, args []any) (Rows, error) {
	if mogrify {
		log.Debug().Str("sql", sql).Interface("args", args).Msg("mogrify")
	}
	rows, err := m.exec.Query(ctx, sql, args...)
	if err == nil {
		return rows, nil
	}
	if err = m.retry(ctx, err); err != nil {
		return nil, err
	}
	rows, err = m.exec.Query(ctx, sql, args...)
	if err != nil {
		return nil, &ExecutorError{Err: err}
	}
	return rows, nil
}

// execute runs a statement without result rows, with the same retry rule.
func (m *Model) execute(ctx context.Context, mogrify bool, sql string, args []any) (int64, error) {
	if mogrify {
		log.Debug().Str("sql", sql).Interface("args", args).Msg("mogrify")
	}
	affected, err := m.exec.Exec(ctx, sql, args...)
	if err == nil {
		return affected, nil
	}
	if err = m.retry(ctx, err); err != nil {
		return 0, err
	}
	affected, err = m.exec.Exec(ctx, sql, args...)
	if err != nil {
		return 0, &ExecutorError{Err: err}
	}
	return affected, nil
}

// retry decides whether err allows the one permitted reconnect retry. It
// returns nil when the caller should re-run the statement.
func (m *Model) retry(ctx context.Context, err error) error {
	if !isDisconnect(err) {
		return &ExecutorError{Err: err}
	}
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()
	log.Warn().Err(err).Str("model", m.name).Msg("Connection lost, reconnecting")
	if perr := m.exec.Ping(ctx); perr != nil {
		return &ExecutorError{Err: perr}
	}
	return nil
}

// Transaction runs fn in a transaction scope. Re-entrant calls on the same
// Model open savepoints; only the outermost exit commits or rolls back the
// transaction proper.
func (m *Model) Transaction(ctx context.Context, fn func(context.Context) error) (err error) {
	m.txMu.Lock()
	level := m.txLevel
	m.txLevel++
	m.txMu.Unlock()
	defer func() {
		m.txMu.Lock()
		m.txLevel--
		m.txMu.Unlock()
	}()

	begin, commit, rollback := "BEGIN", "COMMIT", "ROLLBACK"
	if level > 0 {
		sp := fmt.Sprintf("relata_sp_%d", level)
		begin = "SAVEPOINT " + sp
		commit = "RELEASE SAVEPOINT " + sp
		rollback = "ROLLBACK TO SAVEPOINT " + sp
	}
	if _, err = m.execute(ctx, false, begin, nil); err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_, _ = m.execute(ctx, false, rollback, nil)
			panic(p)
		}
		if err != nil {
			_, _ = m.execute(ctx, false, rollback, nil)
			return
		}
		_, err = m.execute(ctx, false, commit, nil)
	}()
	return fn(ctx)
}
