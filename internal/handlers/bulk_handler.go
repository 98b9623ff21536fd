package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/bulk"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/middleware"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/repository"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// Интервал комментариев-пингов в потоке событий.
const defaultHeartbeat = 15 * time.Second

// BulkHandler управляет массовыми запусками и отдает их прогресс.
type BulkHandler struct {
	// runCtx ограничивает время жизни запусков: они переживают HTTP-запрос, но не процесс.
	runCtx    context.Context //nolint:containedctx // контекст жизни сервера
	manager   *bulk.Manager
	hub       *bulk.Hub
	shops     repository.ShopRepository
	log       *logger.Logger
	heartbeat time.Duration
}

// NewBulkHandler создает новый экземпляр BulkHandler.
func NewBulkHandler(
	runCtx context.Context,
	manager *bulk.Manager,
	hub *bulk.Hub,
	shops repository.ShopRepository,
	log *logger.Logger,
) *BulkHandler {
	return &BulkHandler{
		runCtx:    runCtx,
		manager:   manager,
		hub:       hub,
		shops:     shops,
		log:       log.With("component", "BulkHandler"),
		heartbeat: defaultHeartbeat,
	}
}

// Start обрабатывает POST /api/bulk. Ответ 202 приходит до обработки первого элемента.
func (h *BulkHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req models.BulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, models.ErrorResponse{Error: "Неверный формат запроса"})
		return
	}

	creds, err := credentials(r.Context(), h.shops)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	run, err := h.manager.Start(h.runCtx, creds, req.Mode, req.Items)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusAccepted, models.BulkStartResponse{
		RunID: run.ID,
		Token: run.Token,
		Total: run.Total,
	})
}

// Stop обрабатывает POST /api/bulk/stop.
func (h *BulkHandler) Stop(w http.ResponseWriter, r *http.Request) {
	shop, ok := middleware.GetShopFromContext(r.Context())
	if !ok {
		writeError(w, h.log, errNoShop)
		return
	}

	runner := h.manager.Runner(shop)
	if !runner.Stop() {
		writeJSON(w, h.log, http.StatusConflict, models.ErrorResponse{Error: "Нет активного запуска"})
		return
	}
	writeJSON(w, h.log, http.StatusOK, runner.Status())
}

// Status обрабатывает GET /api/bulk.
func (h *BulkHandler) Status(w http.ResponseWriter, r *http.Request) {
	shop, ok := middleware.GetShopFromContext(r.Context())
	if !ok {
		writeError(w, h.log, errNoShop)
		return
	}
	writeJSON(w, h.log, http.StatusOK, h.manager.Runner(shop).Status())
}

// Events обрабатывает GET /api/bulk/events: поток событий магазина в формате SSE.
func (h *BulkHandler) Events(w http.ResponseWriter, r *http.Request) {
	shop, ok := middleware.GetShopFromContext(r.Context())
	if !ok {
		writeError(w, h.log, errNoShop)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Потоковая передача не поддерживается", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := h.hub.Subscribe(shop)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.runCtx.Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Warn("Не удалось сериализовать событие", "error", err)
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		}
	}
}
