package middleware_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/middleware"
)

const testSecret = "test-app-secret"

// Вспомогательная функция для генерации session token.
func generateToken(t *testing.T, dest, secret string, expiresAt time.Time) string {
	t.Helper()
	claims := middleware.SessionClaims{
		Dest: dest,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			Issuer:    dest + "/admin",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err, "Ошибка генерации тестового токена")
	return token
}

func TestGetShopFromContext(t *testing.T) {
	tests := []struct {
		name     string
		ctx      context.Context
		expected string
		ok       bool
	}{
		{
			name:     "Контекст с магазином",
			ctx:      context.WithValue(context.Background(), middleware.ShopKey, "demo.myshopify.com"),
			expected: "demo.myshopify.com",
			ok:       true,
		},
		{name: "Пустой контекст", ctx: context.Background()},
		{name: "Значение неверного типа", ctx: context.WithValue(context.Background(), middleware.ShopKey, 42)},
		{name: "Пустая строка", ctx: context.WithValue(context.Background(), middleware.ShopKey, "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shop, ok := middleware.GetShopFromContext(tt.ctx)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.expected, shop)
			}
		})
	}
}

func TestAuthenticator(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shop, ok := middleware.GetShopFromContext(r.Context())
		assert.True(t, ok, "магазин должен быть в контексте")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK for " + shop))
	})

	server := httptest.NewServer(middleware.Authenticator(testSecret, logger.Nop())(nextHandler))
	defer server.Close()

	hour := time.Now().Add(time.Hour)
	tests := []struct {
		name           string
		header         string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Успешная аутентификация",
			header:         "Bearer " + generateToken(t, "https://Demo.myshopify.com", testSecret, hour),
			expectedStatus: http.StatusOK,
			expectedBody:   "OK for demo.myshopify.com",
		},
		{
			name:           "Нет заголовка Authorization",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Требуется аутентификация",
		},
		{
			name:           "Неверный формат заголовка (нет Bearer)",
			header:         generateToken(t, "https://demo.myshopify.com", testSecret, hour),
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Неверный формат токена",
		},
		{
			name:           "Неверный секрет",
			header:         "Bearer " + generateToken(t, "https://demo.myshopify.com", "wrong-secret", hour),
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Невалидный токен",
		},
		{
			name:           "Истекший токен",
			header:         "Bearer " + generateToken(t, "https://demo.myshopify.com", testSecret, time.Now().Add(-time.Hour)),
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Невалидный токен",
		},
		{
			name:           "Нет домена магазина",
			header:         "Bearer " + generateToken(t, "", testSecret, hour),
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Невалидный токен",
		},
		{
			name:           "Мусор вместо токена",
			header:         "Bearer garbage",
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   "Невалидный токен",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, server.URL, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tt.expectedBody)
		})
	}
}

func TestParseSessionToken(t *testing.T) {
	t.Run("Домен без схемы", func(t *testing.T) {
		shop, err := middleware.ParseSessionToken(
			generateToken(t, "demo.myshopify.com", testSecret, time.Now().Add(time.Hour)), testSecret)
		require.NoError(t, err)
		assert.Equal(t, "demo.myshopify.com", shop)
	})

	t.Run("Чужой алгоритм подписи", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, middleware.SessionClaims{Dest: "https://demo.myshopify.com"})
		signed, err := token.SignedString([]byte(testSecret))
		require.NoError(t, err)

		_, err = middleware.ParseSessionToken(signed, testSecret)
		assert.Error(t, err)
	})

	t.Run("Пустой dest", func(t *testing.T) {
		_, err := middleware.ParseSessionToken(
			generateToken(t, "  ", testSecret, time.Now().Add(time.Hour)), testSecret)
		assert.ErrorIs(t, err, middleware.ErrMissingDest)
	})
}
