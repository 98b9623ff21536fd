// Package middleware содержит HTTP-обработчики, общие для всех маршрутов /api.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
)

// Тип для ключа контекста.
type contextKey string

// ShopKey - ключ домена магазина в контексте запроса.
const ShopKey contextKey = "shop"

// ErrMissingDest - в токене нет домена магазина.
var ErrMissingDest = errors.New("токен не содержит домен магазина")

// SessionClaims - claims session token встроенного приложения.
// dest содержит адрес магазина вида https://demo.myshopify.com.
type SessionClaims struct {
	Dest string `json:"dest"`
	jwt.RegisteredClaims
}

// Authenticator возвращает middleware, проверяющее session token (HS256, секрет приложения)
// и кладущее домен магазина в контекст.
func Authenticator(secret string, log *logger.Logger) func(http.Handler) http.Handler {
	log = log.With("component", "AuthMiddleware")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Debug("Заголовок Authorization отсутствует", "path", r.URL.Path)
				http.Error(w, "Требуется аутентификация", http.StatusUnauthorized)
				return
			}

			// Проверяем формат "Bearer token"
			headerParts := strings.Split(authHeader, " ")
			if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
				log.Debug("Неверный формат заголовка Authorization")
				http.Error(w, "Неверный формат токена", http.StatusUnauthorized)
				return
			}

			shop, err := ParseSessionToken(headerParts[1], secret)
			if err != nil {
				log.Info("Невалидный session token", "error", err)
				http.Error(w, "Невалидный токен", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ShopKey, shop)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseSessionToken проверяет подпись и срок действия токена и возвращает домен магазина.
func ParseSessionToken(tokenString, secret string) (string, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("ошибка валидации токена: %w", err)
	}
	if !token.Valid {
		return "", errors.New("токен невалиден")
	}
	return shopFromDest(claims.Dest)
}

func shopFromDest(dest string) (string, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return "", ErrMissingDest
	}
	if !strings.Contains(dest, "://") {
		return strings.ToLower(dest), nil
	}
	u, err := url.Parse(dest)
	if err != nil || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q", ErrMissingDest, dest)
	}
	return strings.ToLower(u.Hostname()), nil
}

// GetShopFromContext извлекает домен магазина из контекста запроса.
func GetShopFromContext(ctx context.Context) (string, bool) {
	shop, ok := ctx.Value(ShopKey).(string)
	return shop, ok && shop != ""
}
