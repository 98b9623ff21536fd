package handlers

import (
	"net/http"
	"strings"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/repository"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/services"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// AssetHandler обрабатывает сканирование и операции над одним изображением.
type AssetHandler struct {
	scanner services.CatalogScanner
	engine  services.ImageOptimizer
	shops   repository.ShopRepository
	log     *logger.Logger
}

// NewAssetHandler создает новый экземпляр AssetHandler.
func NewAssetHandler(
	scanner services.CatalogScanner,
	engine services.ImageOptimizer,
	shops repository.ShopRepository,
	log *logger.Logger,
) *AssetHandler {
	return &AssetHandler{
		scanner: scanner,
		engine:  engine,
		shops:   shops,
		log:     log.With("component", "AssetHandler"),
	}
}

// List обрабатывает GET /api/assets: сканирование каталога с объединением записей.
func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	creds, err := credentials(r.Context(), h.shops)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	resp := h.scanner.Scan(r.Context(), creds)
	h.log.Info("Каталог просканирован", "shop", creds.Shop,
		"candidates", len(resp.Candidates), "truncated", resp.Truncated, "stale_removed", resp.StaleRemoved)
	writeJSON(w, h.log, http.StatusOK, resp)
}

// Optimize обрабатывает POST /api/assets/optimize. Тело - кандидат из результата сканирования.
func (h *AssetHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	candidate, creds, ok := h.prepare(w, r)
	if !ok {
		return
	}

	res, err := h.engine.Commit(r.Context(), creds, candidate)
	if err != nil {
		h.log.Info("Оптимизация не выполнена", "shop", creds.Shop, "asset_id", candidate.ID, "error", err)
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, res)
}

// Restore обрабатывает POST /api/assets/restore.
func (h *AssetHandler) Restore(w http.ResponseWriter, r *http.Request) {
	candidate, creds, ok := h.prepare(w, r)
	if !ok {
		return
	}

	res, err := h.engine.Restore(r.Context(), creds, candidate)
	if err != nil {
		h.log.Info("Восстановление не выполнено", "shop", creds.Shop, "asset_id", candidate.ID, "error", err)
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, res)
}

// prepare разбирает тело запроса и находит токен магазина. При ошибке ответ уже отправлен.
func (h *AssetHandler) prepare(w http.ResponseWriter, r *http.Request) (models.Candidate, *models.ShopCredentials, bool) {
	var candidate models.Candidate
	if err := decodeJSON(w, r, &candidate); err != nil {
		h.log.Debug("Неверный формат запроса", "error", err)
		writeJSON(w, h.log, http.StatusBadRequest, models.ErrorResponse{Error: "Неверный формат запроса"})
		return candidate, nil, false
	}
	if strings.TrimSpace(candidate.ID) == "" || strings.TrimSpace(candidate.OwnerID) == "" {
		writeJSON(w, h.log, http.StatusBadRequest, models.ErrorResponse{Error: "Не указан идентификатор изображения"})
		return candidate, nil, false
	}

	creds, err := credentials(r.Context(), h.shops)
	if err != nil {
		writeError(w, h.log, err)
		return candidate, nil, false
	}
	return candidate, creds, true
}
