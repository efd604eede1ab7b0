// Package postgres реализует хранилище корзин, заказов и служебных таблиц в PostgreSQL (pgx stdlib).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultConnTimeout = 5 * time.Second
	opTimeout          = 5 * time.Second

	pgUniqueViolation = "23505"
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

type poolSettings struct {
	maxConns        int
	connMaxLifetime time.Duration
	connMaxIdleTime time.Duration
}

// StoreOption настраивает пул соединений Store.
type StoreOption func(*poolSettings)

// WithMaxConns ограничивает число открытых (и простаивающих) соединений. n<=0 игнорируется.
func WithMaxConns(n int) StoreOption {
	return func(p *poolSettings) {
		if n > 0 {
			p.maxConns = n
		}
	}
}

// WithConnLifetime задаёт максимальный возраст и время простоя соединения.
func WithConnLifetime(maxLifetime, maxIdle time.Duration) StoreOption {
	return func(p *poolSettings) {
		if maxLifetime > 0 {
			p.connMaxLifetime = maxLifetime
		}
		if maxIdle > 0 {
			p.connMaxIdleTime = maxIdle
		}
	}
}

// Store держит пул подключений к PostgreSQL, общий для всех репозиториев пакета.
type Store struct {
	db *sql.DB
}

// Open открывает пул через драйвер pgx и проверяет, что база отвечает.
func Open(ctx context.Context, dsn string, opts ...StoreOption) (*Store, error) {
	pool := poolSettings{
		maxConns:        25,
		connMaxLifetime: 30 * time.Minute,
		connMaxIdleTime: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(&pool)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(pool.maxConns)
	db.SetMaxIdleConns(pool.maxConns)
	db.SetConnMaxLifetime(pool.connMaxLifetime)
	db.SetConnMaxIdleTime(pool.connMaxIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB отдаёт пул для запросов вне репозиториев (тесты, админские утилиты).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется health-проверкой storage.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// EnsureSchema доводит схему до последней встроенной миграции.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.MigrateUp(ctx, 0)
}

// Close безопасен для nil.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// querier покрывает общее подмножество *sql.DB, *sql.Conn и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx выполняет fn в транзакции; при ошибке fn транзакция откатывается.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	return withTxOptions(ctx, db, nil, fn)
}

// readSnapshot выполняет чтения fn на одном снимке: заголовок и строки агрегата
// не могут разойтись из-за параллельного Save.
func readSnapshot(ctx context.Context, db *sql.DB, fn func(q querier) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	return withTxOptions(ctx, db, opts, func(tx *sql.Tx) error { return fn(tx) })
}

func withTxOptions(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
