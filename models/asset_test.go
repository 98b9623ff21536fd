package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

func TestPercentSaved(t *testing.T) {
	tests := []struct {
		name          string
		before, after int64
		want          int
	}{
		{"Обычная экономия", 500, 120, 76},
		{"Округление вверх", 3, 1, 67},
		{"Нулевой оригинал", 0, 0, 0},
		{"Рост размера", 100, 150, -50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.PercentSaved(tt.before, tt.after))
		})
	}
}

func TestRoundKB(t *testing.T) {
	assert.Equal(t, int64(0), models.RoundKB(0))
	assert.Equal(t, int64(0), models.RoundKB(511))
	assert.Equal(t, int64(1), models.RoundKB(512))
	assert.Equal(t, int64(500), models.RoundKB(500*1024))
}

func TestCandidate_ApplyRecord(t *testing.T) {
	url := "https://cdn.example.com/opt.webp"
	base := models.Candidate{ID: "A", OwnerID: "P1", URL: "https://cdn.example.com/a.jpg"}

	t.Run("Запись есть", func(t *testing.T) {
		got := base.ApplyRecord(&models.AssetRecord{
			AssetID: "A", Status: models.StatusOptimized,
			OriginalSizeKB: 400, OptimizedSizeKB: 100, OptimizedURL: &url,
		})
		assert.True(t, got.Optimized)
		assert.Equal(t, int64(300), got.SavedKB)
		assert.Equal(t, 75, got.Percent)
		assert.Equal(t, url, got.OptimizedURL)
	})

	t.Run("Записи нет", func(t *testing.T) {
		optimized := base
		optimized.Optimized, optimized.SavedKB, optimized.Percent = true, 10, 5
		got := optimized.ApplyRecord(nil)
		assert.False(t, got.Optimized)
		assert.Zero(t, got.SavedKB)
		assert.Zero(t, got.Percent)
	})

	t.Run("Запись без статуса optimized", func(t *testing.T) {
		got := base.ApplyRecord(&models.AssetRecord{AssetID: "A", OriginalSizeKB: 400, OptimizedSizeKB: 100})
		assert.False(t, got.Optimized)
		assert.Zero(t, got.OriginalKB)
	})
}
