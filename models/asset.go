package models

import (
	"math"
	"time"
)

// AssetStatus - состояние изображения в хранилище записей.
// Отсутствие записи означает "ожидает оптимизации", поэтому единственное значение - optimized.
type AssetStatus string

const (
	StatusOptimized AssetStatus = "optimized"
)

// AssetRecord представляет запись об оптимизированном изображении.
// Ключ - текущий идентификатор изображения в магазине; он меняется при каждой мутации.
type AssetRecord struct {
	AssetID         string      `db:"asset_id" json:"asset_id"`
	Shop            string      `db:"shop" json:"shop"`
	OwnerID         string      `db:"owner_id" json:"owner_id"`         // ID товара-владельца
	OriginalURL     string      `db:"original_url" json:"original_url"` // Источник для восстановления
	OptimizedURL    *string     `db:"optimized_url" json:"optimized_url,omitempty"`
	BackupKey       *string     `db:"backup_key" json:"backup_key,omitempty"` // Ключ копии оригинала в MinIO
	Format          string      `db:"format" json:"format"`
	Status          AssetStatus `db:"status" json:"status"`
	OriginalSizeKB  int64       `db:"original_size_kb" json:"original_size_kb"`
	OptimizedSizeKB int64       `db:"optimized_size_kb" json:"optimized_size_kb"`
	SavingsKB       int64       `db:"savings_kb" json:"savings_kb"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// Candidate - временное представление изображения из каталога, объединенное с записью (если есть).
type Candidate struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id"`
	OwnerTitle   string `json:"owner_title"`
	URL          string `json:"url"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AltText      string `json:"alt_text"`
	Optimized    bool   `json:"optimized"`
	OriginalKB   int64  `json:"original_kb"`
	OptimizedKB  int64  `json:"optimized_kb"`
	SavedKB      int64  `json:"saved_kb"`
	Percent      int    `json:"percent"`
	OptimizedURL string `json:"optimized_url,omitempty"`
}

// ApplyRecord заполняет производные поля кандидата из записи хранилища.
// Запись без статуса optimized игнорируется: кандидат остается в ожидании с нулевой экономией.
func (c Candidate) ApplyRecord(rec *AssetRecord) Candidate {
	c.Optimized = false
	c.OriginalKB, c.OptimizedKB, c.SavedKB, c.Percent = 0, 0, 0, 0
	c.OptimizedURL = ""
	if rec == nil || rec.Status != StatusOptimized {
		return c
	}
	c.Optimized = true
	c.OriginalKB = rec.OriginalSizeKB
	c.OptimizedKB = rec.OptimizedSizeKB
	c.SavedKB = rec.OriginalSizeKB - rec.OptimizedSizeKB
	c.Percent = PercentSaved(rec.OriginalSizeKB, rec.OptimizedSizeKB)
	if rec.OptimizedURL != nil {
		c.OptimizedURL = *rec.OptimizedURL
	}
	return c
}

// PercentSaved возвращает round((before-after)/before*100), 0 при before == 0.
func PercentSaved(before, after int64) int {
	if before <= 0 {
		return 0
	}
	return int(math.Round(float64(before-after) / float64(before) * 100))
}

// RoundKB переводит байты в килобайты с округлением до ближайшего целого.
func RoundKB(sizeBytes int) int64 {
	return int64(math.Round(float64(sizeBytes) / 1024))
}

// CommitResult - результат оптимизации одного изображения.
type CommitResult struct {
	BeforeKB     int64  `json:"before_kb"`
	AfterKB      int64  `json:"after_kb"`
	Percent      int    `json:"percent"`
	NewAssetID   string `json:"new_asset_id"`
	OptimizedURL string `json:"optimized_url"`
	Format       string `json:"format"`
}

// RestoreResult - результат восстановления оригинала.
type RestoreResult struct {
	Status  string `json:"status"`
	AssetID string `json:"asset_id"` // Идентификатор после восстановления, может отличаться от исходного
	URL     string `json:"url,omitempty"`
}

// RestoreStatusRestored - значение RestoreResult.Status при успехе.
const RestoreStatusRestored = "restored"
