package services

import (
	"context"
	"errors"
	"sort"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/repository"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/shopify"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// DefaultScanCap - предел числа изображений за одно сканирование.
const DefaultScanCap = 2500

// CatalogScanner строит список кандидатов магазина.
type CatalogScanner interface {
	Scan(ctx context.Context, creds *models.ShopCredentials) models.ScanResponse
}

// Scanner сверяет каталог магазина с хранилищем записей.
type Scanner struct {
	catalog  shopify.CatalogClient
	assets   repository.AssetRepository
	pageSize int
	scanCap  int
	log      *logger.Logger
}

// NewScanner создает сканер каталога. Неположительный scanCap заменяется на DefaultScanCap.
func NewScanner(
	catalog shopify.CatalogClient,
	assets repository.AssetRepository,
	pageSize, scanCap int,
	log *logger.Logger,
) *Scanner {
	if scanCap <= 0 {
		scanCap = DefaultScanCap
	}
	return &Scanner{
		catalog:  catalog,
		assets:   assets,
		pageSize: pageSize,
		scanCap:  scanCap,
		log:      log.With("component", "Scanner"),
	}
}

// Scan обходит каталог и возвращает кандидатов с текущим состоянием оптимизации.
// Ошибки не возвращаются: при сбое отдается то, что успели собрать.
// Устаревшие записи удаляются только после полного обхода без ошибок и без усечения.
func (s *Scanner) Scan(ctx context.Context, creds *models.ShopCredentials) models.ScanResponse {
	resp := models.ScanResponse{Candidates: make([]models.Candidate, 0)}
	if !creds.Valid() {
		s.log.Warn("Сканирование без действующего токена магазина")
		return resp
	}
	log := s.log.With("shop", creds.Shop)

	complete := true
	records := make(map[string]*models.AssetRecord)
	stored, err := s.assets.FindAll(ctx, repository.AssetFilter{Shop: creds.Shop})
	if err != nil {
		// Без записей все кандидаты окажутся в ожидании; чистить в таком состоянии нельзя.
		log.Error("Не удалось загрузить записи, продолжаем без них", "error", err)
		complete = false
	}
	for i := range stored {
		records[stored[i].AssetID] = &stored[i]
	}

	seen := make(map[string]struct{}, len(records))
	cursor := ""
	pages := 0
paging:
	for {
		page, fetchErr := s.catalog.FetchPage(ctx, creds, cursor, s.pageSize)
		if fetchErr != nil {
			log.Error("Ошибка чтения каталога, возвращаем частичный результат",
				"page", pages+1, "collected", len(resp.Candidates), "error", fetchErr)
			complete = false
			break
		}
		pages++

		for _, container := range page.Containers {
			for _, img := range container.Images {
				if len(resp.Candidates) >= s.scanCap {
					resp.Truncated = true
					break paging
				}
				seen[img.ID] = struct{}{}
				candidate := models.Candidate{
					ID:         img.ID,
					OwnerID:    container.ID,
					OwnerTitle: container.Title,
					URL:        img.URL,
					Width:      img.Width,
					Height:     img.Height,
					AltText:    img.AltText,
				}
				resp.Candidates = append(resp.Candidates, candidate.ApplyRecord(records[img.ID]))
			}
		}

		if !page.HasNext {
			break
		}
		cursor = page.Cursor
	}

	log.Info("Сканирование завершено",
		"pages", pages, "candidates", len(resp.Candidates), "truncated", resp.Truncated, "complete", complete)

	if !complete || resp.Truncated {
		return resp
	}
	resp.StaleRemoved = s.removeStale(ctx, log, records, seen)
	return resp
}

// removeStale удаляет одной командой записи, изображений которых больше нет в каталоге.
func (s *Scanner) removeStale(
	ctx context.Context,
	log *logger.Logger,
	records map[string]*models.AssetRecord,
	seen map[string]struct{},
) int {
	stale := make([]string, 0)
	for id := range records {
		if _, ok := seen[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return 0
	}
	sort.Strings(stale)

	deleted, err := s.assets.DeleteMany(ctx, stale)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Warn("Не удалось удалить устаревшие записи", "count", len(stale), "error", err)
		}
		return 0
	}
	log.Info("Удалены устаревшие записи", "count", deleted)
	return int(deleted)
}
