package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Драйвер PostgreSQL, импортируем для регистрации

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
)

const (
	maxOpenConns    = 25              // Максимальное количество открытых соединений
	maxIdleConns    = 25              // Максимальное количество простаивающих соединений
	connMaxLifetime = 5 * time.Minute // Максимальное время жизни соединения
	connMaxIdleTime = 5 * time.Minute // Максимальное время простоя соединения
)

// schema создает таблицы идемпотентно. Запись существует только пока изображение оптимизировано.
const schema = `
CREATE TABLE IF NOT EXISTS image_optimizations (
    asset_id          TEXT PRIMARY KEY,
    shop              TEXT NOT NULL,
    owner_id          TEXT NOT NULL,
    original_url      TEXT NOT NULL,
    optimized_url     TEXT,
    backup_key        TEXT,
    format            TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'optimized',
    original_size_kb  BIGINT NOT NULL DEFAULT 0,
    optimized_size_kb BIGINT NOT NULL DEFAULT 0,
    savings_kb        BIGINT NOT NULL DEFAULT 0,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_image_optimizations_shop ON image_optimizations (shop);

CREATE TABLE IF NOT EXISTS shop_sessions (
    shop         TEXT PRIMARY KEY,
    access_token TEXT NOT NULL,
    scope        TEXT NOT NULL DEFAULT '',
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// NewPostgresDB создает и возвращает новое подключение к PostgreSQL.
func NewPostgresDB(dsn string, log *logger.Logger) (*sqlx.DB, error) {
	log.Info("Подключение к PostgreSQL...")

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	// Проверка соединения
	if err = db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Warn("Ошибка закрытия соединения с БД после неудачного пинга", "error", closeErr)
		}
		return nil, fmt.Errorf("ошибка проверки соединения с БД (ping): %w", err)
	}

	// Настройка пула соединений
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	log.Info("Подключение к PostgreSQL успешно установлено.")
	return db, nil
}

// EnsureSchema создает таблицы хранилища, если их еще нет.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ошибка создания схемы БД: %w", err)
	}
	return nil
}
