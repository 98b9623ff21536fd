package models

import (
	"strings"
	"time"
)

// ShopCredentials - офлайн-токен доступа магазина к Admin API.
// Тэги `db` используются для маппинга с полями БД с помощью sqlx.
type ShopCredentials struct {
	Shop        string    `db:"shop" json:"shop"`
	AccessToken string    `db:"access_token" json:"-"` // Не отправляем токен в JSON
	Scope       string    `db:"scope" json:"scope"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Valid сообщает, достаточно ли данных для обращения к удаленному API.
func (c *ShopCredentials) Valid() bool {
	return c != nil && strings.TrimSpace(c.Shop) != "" && strings.TrimSpace(c.AccessToken) != ""
}

// ScanResponse представляет тело ответа на запрос сканирования каталога.
type ScanResponse struct {
	Candidates   []Candidate `json:"candidates"`
	Truncated    bool        `json:"truncated"`
	StaleRemoved int         `json:"stale_removed"`
}

// ErrorResponse представляет тело ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}
