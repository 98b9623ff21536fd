// Package handlers содержит HTTP-обработчики встроенного приложения.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/bulk"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/middleware"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/repository"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/services"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// Максимальный размер тела запроса.
const maxBodyBytes = 8 << 20

// errNoShop - middleware не положило магазин в контекст.
var errNoShop = errors.New("магазин не определен")

// credentials находит токен магазина из контекста запроса.
func credentials(ctx context.Context, shops repository.ShopRepository) (*models.ShopCredentials, error) {
	shop, ok := middleware.GetShopFromContext(ctx)
	if !ok {
		return nil, errNoShop
	}
	return shops.GetCredentials(ctx, shop)
}

// statusFor сопоставляет ошибку слоя сервисов HTTP-статусу.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrAuthorization),
		errors.Is(err, repository.ErrShopNotFound),
		errors.Is(err, errNoShop):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrDownload), errors.Is(err, services.ErrUpload):
		return http.StatusBadGateway
	case errors.Is(err, services.ErrTranscode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, bulk.ErrInvalidMode), errors.Is(err, bulk.ErrEmptyBatch):
		return http.StatusBadRequest
	case errors.Is(err, bulk.ErrLocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError отправляет ошибку в JSON. Текст внутренних ошибок наружу не уходит.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("Внутренняя ошибка", "error", err)
		msg = "Внутренняя ошибка сервера"
	}
	writeJSON(w, log, status, models.ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Warn("Ошибка кодирования ответа", "error", err)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(dst)
}
