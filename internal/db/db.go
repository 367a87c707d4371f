package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/rajivgeraev/rewear-api/internal/config"
	"github.com/rajivgeraev/rewear-api/internal/repository"
)

// NewPool создает пул соединений с базой данных и проверяет подключение
func NewPool(ctx context.Context, cfg *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	log.Info("Подключение к базе данных",
		zap.String("host", cfg.DatabaseConfig.Host),
		zap.String("database", cfg.DatabaseConfig.Name))

	// Создаем контекст с таймаутом для подключения
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка при разборе URL базы данных: %w", err)
	}

	poolConfig.MaxConns = cfg.DatabaseConfig.MaxConns
	poolConfig.MinConns = cfg.DatabaseConfig.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка при создании пула соединений: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка при проверке соединения: %w", err)
	}

	log.Info("✅ Успешное подключение к базе данных")
	return pool, nil
}

// querier общий интерфейс пула и транзакции
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store реализует хранилища поверх PostgreSQL
type Store struct {
	pool    *pgxpool.Pool
	q       querier
	inTx    bool
	timeout time.Duration
}

var _ repository.UnitOfWork = (*Store)(nil)

// NewStore создает хранилище поверх пула. timeout ограничивает каждую операцию вне транзакции.
func NewStore(pool *pgxpool.Pool, timeout time.Duration) *Store {
	return &Store{pool: pool, q: pool, timeout: timeout}
}

// withTimeout возвращает контекст с таймаутом для запросов к базе данных
func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// WithinTx выполняет fn в транзакции READ COMMITTED; блокировки строк берутся через *ForUpdate
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return translate(err, "ошибка начала транзакции")
	}
	defer tx.Rollback(ctx) // no-op после Commit

	txStore := &Store{pool: s.pool, q: tx, inTx: true}
	if err := fn(ctx, txStore); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return translate(err, "ошибка фиксации транзакции")
	}
	return nil
}

// atomic выполняет несколько запросов атомарно: в текущей транзакции, если она есть,
// иначе в новой.
func (s *Store) atomic(ctx context.Context, fn func(q querier) error) error {
	if s.inTx {
		return fn(s.q)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return translate(err, "ошибка начала транзакции")
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err, "ошибка фиксации транзакции")
	}
	return nil
}
