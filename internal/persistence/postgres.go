package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"StarLedger/internal/observability"
	"StarLedger/internal/store"
)

// serialization retries before giving up on an Update.
const maxTxRetries = 3

// Postgres is the durable store.Store. Every View/Update maps to one
// serializable SQL transaction over the star_ledger.kv table, so the atomicity
// the core relies on is Postgres's, not ours. Updates that lose a
// serialization race are retried.
type Postgres struct {
	db      *sql.DB
	log     zerolog.Logger
	metrics *observability.Metrics
}

func NewPostgres(db *sql.DB, log zerolog.Logger, metrics *observability.Metrics) *Postgres {
	return &Postgres{db: db, log: log, metrics: metrics}
}

type pgTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *pgTx) Get(key store.Key) ([]byte, bool, error) {
	var value []byte
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT value FROM star_ledger.kv WHERE key = $1`, string(key),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (t *pgTx) Set(key store.Key, value []byte) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO star_ledger.kv (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		string(key), value,
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (t *pgTx) Has(key store.Key) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT EXISTS (SELECT 1 FROM star_ledger.kv WHERE key = $1)`, string(key),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has %s: %w", key, err)
	}
	return exists, nil
}

func (p *Postgres) View(ctx context.Context, fn func(store.Tx) error) error {
	return p.run(ctx, "view", &sql.TxOptions{
		Isolation: sql.LevelSerializable,
		ReadOnly:  true,
	}, fn)
}

func (p *Postgres) Update(ctx context.Context, fn func(store.Tx) error) error {
	return p.run(ctx, "update", &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	}, fn)
}

func (p *Postgres) run(ctx context.Context, op string, opts *sql.TxOptions, fn func(store.Tx) error) error {
	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.StoreTxDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		}
	}()

	var err error
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err = p.attempt(ctx, opts, fn)
		if !isSerializationFailure(err) {
			break
		}
		p.log.Debug().Int("attempt", attempt+1).Msg("serialization conflict, retrying")
	}

	if err != nil && p.metrics != nil {
		p.metrics.StoreTxErrors.WithLabelValues(op).Inc()
	}
	return err
}

func (p *Postgres) attempt(ctx context.Context, opts *sql.TxOptions, fn func(store.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "40001"
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
