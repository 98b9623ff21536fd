package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/bulk"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/config"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/handlers"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	appmiddleware "github.com/aniketkhadse/shopify-image-optimizer/internal/middleware"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/repository"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/services"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/shopify"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/storage"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/transcode"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// newPostgresDB подменяется в тестах.
var newPostgresDB = repository.NewPostgresDB

// Структура для хранения инициализированных зависимостей.
type dependencies struct {
	db           *sqlx.DB
	redis        *redis.Client
	manager      *bulk.Manager
	assetHandler *handlers.AssetHandler
	bulkHandler  *handlers.BulkHandler
}

// close освобождает соединения. Безопасно для частично инициализированных зависимостей.
func (d *dependencies) close(log *logger.Logger) {
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			log.Warn("Ошибка закрытия соединения с Redis", "error", err)
		}
	}
	if d.db != nil {
		if err := d.db.Close(); err != nil {
			log.Warn("Ошибка закрытия соединения с БД", "error", err)
		}
	}
}

// main - точка входа. Вызывает run и обрабатывает ошибку.
func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка выполнения сервера: %v\n", err)
		os.Exit(1)
	}
}

// run содержит основную логику запуска сервера и возвращает ошибку.
func run(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(f)
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Запуск сервиса оптимизации изображений", "port", cfg.Server.Port, "tls", cfg.Server.TLSEnabled())

	deps, err := setupDependencies(ctx, cfg, log)
	if deps != nil {
		defer deps.close(log)
	}
	if err != nil {
		return fmt.Errorf("ошибка инициализации зависимостей: %w", err)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           setupRouter(cfg.Shopify.APISecret, log, deps.assetHandler, deps.bulkHandler),
		ReadHeaderTimeout: defaultReadTimeout,
		IdleTimeout:       defaultIdleTimeout,
		// WriteTimeout не задан: поток событий /api/bulk/events живет долго.
	}

	serveErr := make(chan error, 1)
	go func() {
		if cfg.Server.TLSEnabled() {
			log.Info("Запуск HTTPS-сервера", "cert", cfg.Server.CertFile, "key", cfg.Server.KeyFile)
			serveErr <- server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
			return
		}
		log.Warn("TLS не настроен, запуск HTTP-сервера")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ошибка запуска сервера: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Остановка сервера")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	// Отмена ctx уже остановила запуски между элементами. Текущий элемент
	// доводится до конца: его сетевые вызовы от ctx не зависят.
	deps.manager.StopAll()
	if err = server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ошибка остановки сервера: %w", err)
	}
	return nil
}

// setupDependencies инициализирует и возвращает все необходимые зависимости сервера.
// Даже при ошибке возвращает то, что успело открыться, чтобы вызывающий мог это закрыть.
func setupDependencies(ctx context.Context, cfg *config.Config, log *logger.Logger) (*dependencies, error) {
	deps := &dependencies{}
	var err error

	// 1. Подключение к БД и схема
	deps.db, err = newPostgresDB(cfg.Database.DSN, log)
	if err != nil {
		return deps, fmt.Errorf("ошибка инициализации БД: %w", err)
	}
	if err = repository.EnsureSchema(ctx, deps.db); err != nil {
		return deps, err
	}
	assets := repository.NewPostgresAssetRepository(deps.db, log)
	shops := repository.NewPostgresShopRepository(deps.db, log)

	// 2. Архив оригиналов (необязателен)
	engineDeps := services.OptimizerDeps{
		Assets:     assets,
		Transcoder: transcode.New(transcode.PolicyFromConfig(cfg.Optimizer), log),
		PresignTTL: cfg.Backup.PresignTTL,
	}
	if cfg.Backup.Enabled() {
		backup, backupErr := storage.NewMinioBackup(ctx, cfg.Backup, log)
		if backupErr != nil {
			return deps, fmt.Errorf("ошибка инициализации архива MinIO: %w", backupErr)
		}
		engineDeps.Backup = backup
	} else {
		log.Warn("Архив оригиналов отключен: восстановление использует исходные URL")
	}

	// 3. Клиент удаленного API и сервисы
	client := shopify.NewClient(cfg.Shopify, log)
	engineDeps.Mutations = client
	engine := services.NewOptimizer(engineDeps, log)
	scanner := services.NewScanner(client, assets, cfg.Shopify.PageSize, cfg.Optimizer.ScanCap, log)

	// 4. Шина событий массовых запусков
	hub := bulk.NewHub(log)
	var pub bulk.Publisher = hub
	if cfg.Redis.Addr != "" {
		deps.redis, err = bulk.NewRedisClient(ctx, cfg.Redis.Addr)
		if err != nil {
			return deps, fmt.Errorf("ошибка подключения к Redis: %w", err)
		}
		redisPub := bulk.NewRedisPublisher(deps.redis, cfg.Redis.Channel, log)
		if err = redisPub.StartForwarder(ctx, hub); err != nil {
			return deps, err
		}
		pub = bulk.MultiPublisher{hub, redisPub}
		log.Info("События массовых запусков транслируются через Redis", "channel", cfg.Redis.Channel)
	}
	deps.manager = bulk.NewManager(engine, pub, log).WithLockDir(cfg.Bulk.LockDir)

	// 5. Создание обработчиков
	deps.assetHandler = handlers.NewAssetHandler(scanner, engine, shops, log)
	deps.bulkHandler = handlers.NewBulkHandler(ctx, deps.manager, hub, shops, log)

	return deps, nil
}

// setupRouter настраивает и возвращает роутер chi.
func setupRouter(
	secret string,
	log *logger.Logger,
	assetHandler *handlers.AssetHandler,
	bulkHandler *handlers.BulkHandler,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong\n"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(appmiddleware.Authenticator(secret, log))

		r.Route("/assets", func(r chi.Router) {
			r.Get("/", assetHandler.List)
			r.Post("/optimize", assetHandler.Optimize)
			r.Post("/restore", assetHandler.Restore)
		})
		r.Route("/bulk", func(r chi.Router) {
			r.Get("/", bulkHandler.Status)
			r.Post("/", bulkHandler.Start)
			r.Post("/stop", bulkHandler.Stop)
			r.Get("/events", bulkHandler.Events)
		})
	})
	return r
}
