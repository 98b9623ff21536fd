package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// ShopRepository хранит офлайн-токены магазинов.
type ShopRepository interface {
	GetCredentials(ctx context.Context, shop string) (*models.ShopCredentials, error)
	SaveCredentials(ctx context.Context, creds *models.ShopCredentials) error
}

type postgresShopRepository struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresShopRepository создает новый экземпляр репозитория магазинов.
func NewPostgresShopRepository(db *sqlx.DB, log *logger.Logger) ShopRepository {
	return &postgresShopRepository{db: db, log: log.With("component", "ShopRepo")}
}

// GetCredentials возвращает токен доступа магазина.
func (r *postgresShopRepository) GetCredentials(ctx context.Context, shop string) (*models.ShopCredentials, error) {
	query := `SELECT shop, access_token, scope, updated_at FROM shop_sessions WHERE shop=$1`
	var creds models.ShopCredentials

	err := r.db.GetContext(ctx, &creds, query, shop)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShopNotFound
		}
		r.log.Error("Ошибка при получении токена магазина", "shop", shop, "error", err)
		return nil, fmt.Errorf("ошибка выполнения запроса на получение токена магазина: %w", err)
	}
	return &creds, nil
}

// SaveCredentials сохраняет или заменяет токен магазина.
func (r *postgresShopRepository) SaveCredentials(ctx context.Context, creds *models.ShopCredentials) error {
	query := `INSERT INTO shop_sessions (shop, access_token, scope) VALUES ($1, $2, $3)
	          ON CONFLICT (shop) DO UPDATE SET access_token=EXCLUDED.access_token, scope=EXCLUDED.scope, updated_at=now()`

	if _, err := r.db.ExecContext(ctx, query, creds.Shop, creds.AccessToken, creds.Scope); err != nil {
		r.log.Error("Ошибка сохранения токена магазина", "shop", creds.Shop, "error", err)
		return fmt.Errorf("ошибка выполнения запроса на сохранение токена магазина: %w", err)
	}
	r.log.Info("Токен магазина сохранен", "shop", creds.Shop)
	return nil
}

var ErrShopNotFound = errors.New("магазин не установлен")
