// Package shopify содержит клиентов Admin API магазина: чтение каталога (GraphQL)
// и мутации изображений (REST). Каждый вызов ограничен лимитером магазина и таймаутом.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/config"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

const accessTokenHeader = "X-Shopify-Access-Token" //nolint:gosec // имя заголовка

// ErrUnauthorized возвращается при ответах 401/403 и при отсутствии токена.
var ErrUnauthorized = errors.New("нет доступа к API магазина")

// StatusError - ответ API с кодом вне диапазона 2xx.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("API магазина вернул статус %d", e.StatusCode)
	}
	return fmt.Sprintf("API магазина вернул статус %d: %s", e.StatusCode, e.Body)
}

// Unwrap позволяет проверять 401/403 через errors.Is(err, ErrUnauthorized).
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// Client обращается к Admin API магазинов.
type Client struct {
	httpClient *http.Client
	apiVersion string
	timeout    time.Duration
	rateLimit  rate.Limit
	rateBurst  int
	baseURL    string // Переопределение адреса для тестов; пустое значение - https://{shop}
	log        *logger.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option настраивает Client.
type Option func(*Client)

// WithBaseURL направляет все запросы на указанный адрес вместо домена магазина.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHTTPClient подменяет HTTP-клиент.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient создает клиента Admin API.
func NewClient(cfg config.ShopifyConfig, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		apiVersion: cfg.APIVersion,
		timeout:    cfg.RequestTimeout,
		rateLimit:  rate.Limit(cfg.RateLimit),
		rateBurst:  cfg.RateBurst,
		log:        log.With("component", "ShopifyClient"),
		limiters:   make(map[string]*rate.Limiter),
	}
	if c.rateBurst <= 0 {
		c.rateBurst = 1
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// limiter возвращает лимитер магазина, создавая его при первом обращении.
func (c *Client) limiter(shop string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[shop]
	if !ok {
		l = rate.NewLimiter(c.rateLimit, c.rateBurst)
		c.limiters[shop] = l
	}
	return l
}

func (c *Client) endpoint(shop, path string) string {
	base := c.baseURL
	if base == "" {
		base = "https://" + shop
	}
	return fmt.Sprintf("%s/admin/api/%s/%s", base, c.apiVersion, strings.TrimLeft(path, "/"))
}

// doJSON выполняет запрос с JSON-телом и декодирует JSON-ответ в out (если out != nil).
func (c *Client) doJSON(ctx context.Context, creds *models.ShopCredentials, method, path string, in, out any) error {
	if !creds.Valid() {
		return ErrUnauthorized
	}

	if err := c.limiter(creds.Shop).Wait(ctx); err != nil {
		return fmt.Errorf("ожидание лимита запросов: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("ошибка кодирования тела запроса: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(creds.Shop, path), body)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(accessTokenHeader, creds.AccessToken)

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка выполнения запроса %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug("Ответ API магазина",
		"shop", creds.Shop, "method", method, "path", path,
		"status", resp.StatusCode, "duration", time.Since(started))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ошибка декодирования ответа: %w", err)
	}
	return nil
}

// NumericID превращает глобальный идентификатор gid://shopify/Type/123 в "123".
// Значения без префикса возвращаются как есть.
func NumericID(gid string) string {
	if i := strings.LastIndex(gid, "/"); i >= 0 && strings.HasPrefix(gid, "gid://") {
		id := gid[i+1:]
		if q := strings.IndexByte(id, '?'); q >= 0 {
			id = id[:q]
		}
		return id
	}
	return gid
}
