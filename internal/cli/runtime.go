package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/bulk"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/config"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/repository"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/services"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/shopify"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/storage"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/transcode"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// Runtime - открытые зависимости одной команды.
type Runtime struct {
	Creds   *models.ShopCredentials
	Scanner services.CatalogScanner
	Engine  services.ImageOptimizer
	Pub     bulk.Publisher // может быть nil
	Log     *logger.Logger
	Close   func()
}

// RuntimeBuilder открывает зависимости по глобальным флагам.
type RuntimeBuilder func(ctx context.Context, opts *options) (*Runtime, error)

// DefaultRuntime подключается к БД, удаленному API и (если настроены) к MinIO и Redis.
func DefaultRuntime(ctx context.Context, opts *options) (*Runtime, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.dsn != "" {
		cfg.Database.DSN = opts.dsn
	}
	if cfg.Database.DSN == "" {
		return nil, errors.New("не указана строка подключения к БД (--dsn или " + config.EnvDatabaseDSN + ")")
	}

	log, err := logger.NewFile(opts.logFile)
	if err != nil {
		return nil, err
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		log.Sync()
	}
	fail := func(err error) (*Runtime, error) {
		closeAll()
		return nil, err
	}

	db, err := repository.NewPostgresDB(cfg.Database.DSN, log)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func() { _ = db.Close() })
	if err = repository.EnsureSchema(ctx, db); err != nil {
		return fail(err)
	}
	assets := repository.NewPostgresAssetRepository(db, log)

	creds := &models.ShopCredentials{Shop: opts.shop, AccessToken: opts.token}
	if creds.AccessToken == "" {
		creds, err = repository.NewPostgresShopRepository(db, log).GetCredentials(ctx, opts.shop)
		if err != nil {
			return fail(fmt.Errorf("токен магазина %s: %w", opts.shop, err))
		}
	}

	engineDeps := services.OptimizerDeps{
		Assets:     assets,
		Transcoder: transcode.New(transcode.PolicyFromConfig(cfg.Optimizer), log),
		PresignTTL: cfg.Backup.PresignTTL,
	}
	if cfg.Backup.Enabled() {
		backup, backupErr := storage.NewMinioBackup(ctx, cfg.Backup, log)
		if backupErr != nil {
			return fail(backupErr)
		}
		engineDeps.Backup = backup
	}

	client := shopify.NewClient(cfg.Shopify, log)
	engineDeps.Mutations = client

	rt := &Runtime{
		Creds:   creds,
		Scanner: services.NewScanner(client, assets, cfg.Shopify.PageSize, cfg.Optimizer.ScanCap, log),
		Engine:  services.NewOptimizer(engineDeps, log),
		Log:     log,
	}

	// Прогресс CLI-запуска виден подписчикам сервиса, если шина настроена
	if cfg.Redis.Addr != "" {
		rdb, redisErr := bulk.NewRedisClient(ctx, cfg.Redis.Addr)
		if redisErr != nil {
			log.Warn("Redis недоступен, прогресс виден только в терминале", "error", redisErr)
		} else {
			closers = append(closers, func() { _ = rdb.Close() })
			rt.Pub = bulk.NewRedisPublisher(rdb, cfg.Redis.Channel, log)
		}
	}

	rt.Close = closeAll
	return rt, nil
}
