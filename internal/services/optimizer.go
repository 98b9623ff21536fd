package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/repository"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/shopify"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/storage"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/transcode"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

const (
	defaultDownloadTimeout = 30 * time.Second
	maxSourceBytes         = 64 << 20 // 64 МБ
)

// Transcoder - контракт транскодера, которым пользуется движок.
type Transcoder interface {
	Transcode(data []byte, widthHint int) (*transcode.Output, error)
}

// ImageOptimizer - операции над одним изображением: оптимизация и восстановление.
type ImageOptimizer interface {
	Commit(ctx context.Context, creds *models.ShopCredentials, c models.Candidate) (*models.CommitResult, error)
	Restore(ctx context.Context, creds *models.ShopCredentials, c models.Candidate) (*models.RestoreResult, error)
}

var _ ImageOptimizer = (*Optimizer)(nil) // Проверка соответствия интерфейсу

// OptimizerDeps - зависимости движка. Backup и HTTPClient необязательны.
type OptimizerDeps struct {
	Assets          repository.AssetRepository
	Mutations       shopify.MutationClient
	Transcoder      Transcoder
	Backup          storage.BackupStorage
	HTTPClient      *http.Client
	DownloadTimeout time.Duration
	PresignTTL      time.Duration
	MaxSourceBytes  int64
}

// Optimizer выполняет оптимизацию и восстановление изображений.
// Мутации одного магазина выполняются строго по одной.
type Optimizer struct {
	deps OptimizerDeps
	log  *logger.Logger

	mu    sync.Mutex
	gates map[string]*semaphore.Weighted
}

// NewOptimizer создает движок оптимизации.
func NewOptimizer(deps OptimizerDeps, log *logger.Logger) *Optimizer {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{}
	}
	if deps.DownloadTimeout <= 0 {
		deps.DownloadTimeout = defaultDownloadTimeout
	}
	if deps.PresignTTL <= 0 {
		deps.PresignTTL = time.Hour
	}
	if deps.MaxSourceBytes <= 0 {
		deps.MaxSourceBytes = maxSourceBytes
	}
	return &Optimizer{
		deps:  deps,
		log:   log.With("component", "Optimizer"),
		gates: make(map[string]*semaphore.Weighted),
	}
}

// acquire занимает слот мутаций магазина и возвращает функцию освобождения.
func (o *Optimizer) acquire(ctx context.Context, shop string) (func(), error) {
	o.mu.Lock()
	gate, ok := o.gates[shop]
	if !ok {
		gate = semaphore.NewWeighted(1)
		o.gates[shop] = gate
	}
	o.mu.Unlock()

	if err := gate.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("ожидание очереди мутаций: %w", err)
	}
	return func() { gate.Release(1) }, nil
}

// Commit скачивает изображение, перекодирует, заменяет его в магазине и
// переносит запись на новый идентификатор.
func (o *Optimizer) Commit(
	ctx context.Context,
	creds *models.ShopCredentials,
	c models.Candidate,
) (*models.CommitResult, error) {
	if !creds.Valid() {
		return nil, ErrAuthorization
	}
	log := o.log.With("shop", creds.Shop, "asset_id", c.ID)

	release, err := o.acquire(ctx, creds.Shop)
	if err != nil {
		return nil, err
	}
	defer release()

	// Повторная оптимизация сохраняет сведения об исходнике из прежней записи.
	existing, err := o.deps.Assets.FindByKey(ctx, c.ID)
	if err != nil && !errors.Is(err, repository.ErrAssetNotFound) {
		return nil, fmt.Errorf("ошибка чтения записи: %w", err)
	}

	source, contentType, err := o.download(ctx, c.URL)
	if err != nil {
		log.Warn("Не удалось скачать исходник", "url", c.URL, "error", err)
		return nil, err
	}

	out, err := o.deps.Transcoder.Transcode(source, c.Width)
	if err != nil {
		log.Warn("Ошибка транскодирования", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrTranscode, err)
	}

	sourceKB := models.RoundKB(len(source))
	afterKB := models.RoundKB(len(out.Data))
	if afterKB > sourceKB {
		log.Warn("Результат больше исходника, изображение не меняем", "before_kb", sourceKB, "after_kb", afterKB)
		return nil, ErrNotSmaller
	}

	record := &models.AssetRecord{
		Shop:           creds.Shop,
		OwnerID:        c.OwnerID,
		OriginalURL:    c.URL,
		Format:         out.Format,
		Status:         models.StatusOptimized,
		OriginalSizeKB: sourceKB,
	}
	archived := false
	if existing != nil {
		record.OriginalURL = existing.OriginalURL
		record.OriginalSizeKB = existing.OriginalSizeKB
		record.BackupKey = existing.BackupKey
	} else {
		record.BackupKey = o.archive(ctx, log, creds.Shop, c, source, contentType)
		archived = record.BackupKey != nil
	}

	mutation, err := o.deps.Mutations.ReplaceImage(ctx, creds, c.OwnerID, c.ID, shopify.ImageUpload{
		Data:     out.Data,
		Filename: c.ID + "." + out.Format,
		AltText:  c.AltText,
	})
	if err != nil {
		log.Warn("Магазин отклонил замену изображения", "error", err)
		if archived {
			o.dropArchive(log, *record.BackupKey)
		}
		return nil, mutationError(err)
	}

	record.AssetID = mutation.AssetID
	record.OptimizedURL = &mutation.URL
	record.OptimizedSizeKB = afterKB
	record.SavingsKB = record.OriginalSizeKB - afterKB
	if record.SavingsKB < 0 {
		// Повторная оптимизация не должна показывать отрицательную экономию.
		record.OptimizedSizeKB = record.OriginalSizeKB
		record.SavingsKB = 0
	}

	if err = o.deps.Assets.Upsert(ctx, record); err != nil {
		log.Error("Изображение заменено, но запись не сохранена", "new_id", mutation.AssetID, "error", err)
		return nil, fmt.Errorf("ошибка сохранения записи: %w", err)
	}

	if mutation.AssetID != c.ID {
		if err = o.deps.Assets.DeleteByKey(ctx, c.ID); err != nil {
			log.Warn("Не удалось удалить запись под старым идентификатором",
				"old_id", c.ID, "new_id", mutation.AssetID, "error", err)
		}
	}

	result := &models.CommitResult{
		BeforeKB:     record.OriginalSizeKB,
		AfterKB:      record.OptimizedSizeKB,
		Percent:      models.PercentSaved(record.OriginalSizeKB, record.OptimizedSizeKB),
		NewAssetID:   mutation.AssetID,
		OptimizedURL: mutation.URL,
		Format:       out.Format,
	}
	log.Info("Изображение оптимизировано",
		"new_id", result.NewAssetID, "before_kb", result.BeforeKB, "after_kb", result.AfterKB,
		"percent", result.Percent, "format", result.Format)
	return result, nil
}

// Restore возвращает изображению исходный адрес и удаляет запись.
func (o *Optimizer) Restore(
	ctx context.Context,
	creds *models.ShopCredentials,
	c models.Candidate,
) (*models.RestoreResult, error) {
	if !creds.Valid() {
		return nil, ErrAuthorization
	}
	log := o.log.With("shop", creds.Shop, "asset_id", c.ID)

	release, err := o.acquire(ctx, creds.Shop)
	if err != nil {
		return nil, err
	}
	defer release()

	record, err := o.deps.Assets.FindByKey(ctx, c.ID)
	if err != nil {
		if errors.Is(err, repository.ErrAssetNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения записи: %w", err)
	}

	source := o.restoreSource(ctx, log, record)
	if source == "" {
		return nil, ErrNotFound
	}

	ownerID := record.OwnerID
	if ownerID == "" {
		ownerID = c.OwnerID
	}
	mutation, err := o.deps.Mutations.SetImageSource(ctx, creds, ownerID, c.ID, source)
	if err != nil {
		log.Warn("Магазин отклонил восстановление", "error", err)
		return nil, mutationError(err)
	}

	if err = o.deps.Assets.DeleteByKey(ctx, c.ID); err != nil {
		log.Error("Изображение восстановлено, но запись не удалена", "error", err)
		return nil, fmt.Errorf("ошибка удаления записи: %w", err)
	}

	log.Info("Изображение восстановлено", "new_id", mutation.AssetID)
	return &models.RestoreResult{
		Status:  models.RestoreStatusRestored,
		AssetID: mutation.AssetID,
		URL:     mutation.URL,
	}, nil
}

// restoreSource выбирает источник: подписанная ссылка на архивную копию, иначе исходный адрес.
func (o *Optimizer) restoreSource(ctx context.Context, log *logger.Logger, record *models.AssetRecord) string {
	if record.BackupKey != nil && *record.BackupKey != "" && o.deps.Backup != nil {
		link, err := o.deps.Backup.PresignedURL(ctx, *record.BackupKey, o.deps.PresignTTL)
		if err == nil {
			return link
		}
		log.Warn("Не удалось подписать ссылку на архивную копию", "key", *record.BackupKey, "error", err)
	}
	return record.OriginalURL
}

// download скачивает исходные байты изображения.
func (o *Optimizer) download(ctx context.Context, src string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.deps.DownloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", &DownloadError{URL: src, Err: err}
	}
	resp, err := o.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, "", &DownloadError{URL: src, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &DownloadError{URL: src, StatusCode: resp.StatusCode}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, o.deps.MaxSourceBytes+1))
	if err != nil {
		return nil, "", &DownloadError{URL: src, Err: err}
	}
	if int64(len(data)) > o.deps.MaxSourceBytes {
		return nil, "", &DownloadError{
			URL: src,
			Err: fmt.Errorf("%w: больше %d байт", ErrSourceTooLarge, o.deps.MaxSourceBytes),
		}
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// archive сохраняет копию исходника. Ошибка архивации не мешает оптимизации.
func (o *Optimizer) archive(
	ctx context.Context,
	log *logger.Logger,
	shop string,
	c models.Candidate,
	data []byte,
	contentType string,
) *string {
	if o.deps.Backup == nil {
		return nil
	}
	key := storage.ObjectKey(shop, c.OwnerID, c.ID, c.URL)
	if err := o.deps.Backup.Archive(ctx, key, data, contentType); err != nil {
		log.Warn("Оригинал не заархивирован, восстановление пойдет по исходному адресу", "error", err)
		return nil
	}
	return &key
}

func (o *Optimizer) dropArchive(log *logger.Logger, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.deps.DownloadTimeout)
	defer cancel()
	if err := o.deps.Backup.Delete(ctx, key); err != nil {
		log.Warn("Не удалось удалить архивную копию", "key", key, "error", err)
	}
}

// mutationError приводит ошибку клиента магазина к таксономии сервиса.
func mutationError(err error) error {
	if errors.Is(err, shopify.ErrUnauthorized) {
		return fmt.Errorf("%w: %w", ErrAuthorization, err)
	}
	return fmt.Errorf("%w: %w", ErrUpload, err)
}
