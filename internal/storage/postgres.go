package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"go.uber.org/zap"

	"musiccharts/internal/infrastructure/retry"
)

// kvEntry — строка таблицы kv_entries
type kvEntry struct {
	bun.BaseModel `bun:"table:kv_entries"`

	Key       string    `bun:"key,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// SQLSTATE codes treated as "no space left"
var quotaSQLStates = map[string]bool{
	"53100": true, // disk_full
	"53200": true, // out_of_memory
	"54000": true, // program_limit_exceeded
}

// PostgresConfig configures the PostgreSQL backend
type PostgresConfig struct {
	DatabaseURL string
	QuotaBytes  int64
	Connect     retry.Config
}

// PostgresStore хранит значения в таблице kv_entries через Bun ORM
type PostgresStore struct {
	db     *bun.DB
	quota  int64
	logger *zap.Logger
}

// NewPostgresStore подключается к PostgreSQL с повторами и создает таблицу при необходимости
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, logger *zap.Logger) (*PostgresStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DatabaseURL)))

	// Настраиваем пул соединений
	sqldb.SetMaxOpenConns(10)
	sqldb.SetMaxIdleConns(5)
	sqldb.SetConnMaxLifetime(5 * time.Minute)
	sqldb.SetConnMaxIdleTime(1 * time.Minute)

	db := bun.NewDB(sqldb, pgdialect.New())

	// Добавляем отладку в режиме разработки
	if logger.Core().Enabled(zap.DebugLevel) {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}

	store := &PostgresStore{db: db, quota: cfg.QuotaBytes, logger: logger}

	err := retry.Do(ctx, logger, "postgres connect", cfg.Connect, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return store.Ping(pingCtx)
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.NewCreateTable().Model((*kvEntry)(nil)).IfNotExists().Exec(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create kv_entries: %w", err)
	}

	logger.Info("Connected to PostgreSQL database with Bun ORM")
	return store, nil
}

func (s *PostgresStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	entry := new(kvEntry)
	err := s.db.NewSelect().
		Model(entry).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to select %s: %w", key, err)
	}
	return entry.Value, true, nil
}

func (s *PostgresStore) SetItem(ctx context.Context, key, value string) error {
	if err := checkQuota(s.quota, key, value); err != nil {
		return err
	}

	entry := &kvEntry{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := s.db.NewInsert().
		Model(entry).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		if isQuotaState(err) {
			return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		return fmt.Errorf("failed to upsert %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) RemoveItem(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*kvEntry)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает соединение с базой данных
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// isQuotaState maps storage-full SQLSTATE codes to quota errors
func isQuotaState(err error) bool {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) {
		return false
	}
	return quotaSQLStates[pgErr.Field('C')]
}
