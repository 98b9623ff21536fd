package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// AssetFilter ограничивает выборку FindAll. Пустые поля не фильтруют.
type AssetFilter struct {
	Shop   string
	Status models.AssetStatus
}

// AssetRepository определяет методы для работы с записями об оптимизации изображений.
type AssetRepository interface {
	FindAll(ctx context.Context, filter AssetFilter) ([]models.AssetRecord, error)
	FindByKey(ctx context.Context, assetID string) (*models.AssetRecord, error)
	Upsert(ctx context.Context, record *models.AssetRecord) error
	DeleteByKey(ctx context.Context, assetID string) error
	DeleteMany(ctx context.Context, assetIDs []string) (int64, error)
}

const assetColumns = `asset_id, shop, owner_id, original_url, optimized_url, backup_key, format, status,
	original_size_kb, optimized_size_kb, savings_kb, created_at, updated_at`

// postgresAssetRepository реализует AssetRepository для PostgreSQL.
type postgresAssetRepository struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresAssetRepository создает новый экземпляр репозитория записей.
func NewPostgresAssetRepository(db *sqlx.DB, log *logger.Logger) AssetRepository {
	return &postgresAssetRepository{db: db, log: log.With("component", "AssetRepo")}
}

// FindAll возвращает все записи, подходящие под фильтр.
func (r *postgresAssetRepository) FindAll(ctx context.Context, filter AssetFilter) ([]models.AssetRecord, error) {
	var (
		where []string
		args  []any
	)
	if filter.Shop != "" {
		args = append(args, filter.Shop)
		where = append(where, fmt.Sprintf("shop=$%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}

	query := `SELECT ` + assetColumns + ` FROM image_optimizations`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}

	records := make([]models.AssetRecord, 0)
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.log.Error("Ошибка при получении списка записей", "shop", filter.Shop, "error", err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение записей: %w", err)
	}

	r.log.Debug("Получены записи", "shop", filter.Shop, "count", len(records))
	return records, nil
}

// FindByKey находит запись по текущему идентификатору изображения.
func (r *postgresAssetRepository) FindByKey(ctx context.Context, assetID string) (*models.AssetRecord, error) {
	query := `SELECT ` + assetColumns + ` FROM image_optimizations WHERE asset_id=$1`
	var record models.AssetRecord

	err := r.db.GetContext(ctx, &record, query, assetID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.Debug("Запись не найдена", "asset_id", assetID)
			return nil, ErrAssetNotFound
		}
		r.log.Error("Ошибка при поиске записи", "asset_id", assetID, "error", err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение записи: %w", err)
	}
	return &record, nil
}

// Upsert вставляет запись или обновляет существующую с тем же ключом одной командой.
func (r *postgresAssetRepository) Upsert(ctx context.Context, record *models.AssetRecord) error {
	query := `INSERT INTO image_optimizations
	          (asset_id, shop, owner_id, original_url, optimized_url, backup_key, format, status,
	           original_size_kb, optimized_size_kb, savings_kb)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          ON CONFLICT (asset_id) DO UPDATE SET
	           shop=EXCLUDED.shop, owner_id=EXCLUDED.owner_id, original_url=EXCLUDED.original_url,
	           optimized_url=EXCLUDED.optimized_url, backup_key=EXCLUDED.backup_key,
	           format=EXCLUDED.format, status=EXCLUDED.status,
	           original_size_kb=EXCLUDED.original_size_kb, optimized_size_kb=EXCLUDED.optimized_size_kb,
	           savings_kb=EXCLUDED.savings_kb, updated_at=now()`

	_, err := r.db.ExecContext(ctx, query,
		record.AssetID, record.Shop, record.OwnerID, record.OriginalURL, record.OptimizedURL,
		record.BackupKey, record.Format, record.Status,
		record.OriginalSizeKB, record.OptimizedSizeKB, record.SavingsKB,
	)
	if err != nil {
		r.log.Error("Ошибка сохранения записи", "asset_id", record.AssetID, "error", err)
		return fmt.Errorf("ошибка выполнения запроса на сохранение записи: %w", err)
	}

	r.log.Debug("Запись сохранена", "asset_id", record.AssetID, "savings_kb", record.SavingsKB)
	return nil
}

// DeleteByKey удаляет запись. Отсутствие записи ошибкой не считается.
func (r *postgresAssetRepository) DeleteByKey(ctx context.Context, assetID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM image_optimizations WHERE asset_id=$1`, assetID); err != nil {
		r.log.Error("Ошибка удаления записи", "asset_id", assetID, "error", err)
		return fmt.Errorf("ошибка выполнения запроса на удаление записи: %w", err)
	}
	return nil
}

// DeleteMany удаляет набор записей одним запросом и возвращает число удаленных строк.
func (r *postgresAssetRepository) DeleteMany(ctx context.Context, assetIDs []string) (int64, error) {
	if len(assetIDs) == 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM image_optimizations WHERE asset_id = ANY($1)`, pq.Array(assetIDs))
	if err != nil {
		r.log.Error("Ошибка пакетного удаления записей", "count", len(assetIDs), "error", err)
		return 0, fmt.Errorf("ошибка выполнения запроса на пакетное удаление: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ошибка получения числа удаленных записей: %w", err)
	}
	r.log.Info("Удалены записи", "requested", len(assetIDs), "deleted", deleted)
	return deleted, nil
}

// Кастомные ошибки репозитория.
var (
	ErrAssetNotFound = errors.New("запись об изображении не найдена")
)
