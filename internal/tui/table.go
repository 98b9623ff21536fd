package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// RenderScanTable отрисовывает результат сканирования таблицей.
func RenderScanTable(resp models.ScanResponse) string {
	rows := make([][]string, 0, len(resp.Candidates))
	var saved int64
	optimized := 0
	for _, c := range resp.Candidates {
		status := "ожидает"
		if c.Optimized {
			status = "оптимизировано"
			optimized++
			saved += c.SavedKB
		}
		rows = append(rows, []string{
			c.ID,
			truncate(c.OwnerTitle, 32),
			fmt.Sprintf("%dx%d", c.Width, c.Height),
			status,
			savedCell(c),
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(hintStyle).
		Headers("ID", "Товар", "Размер", "Статус", "Экономия").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 3 && row >= 0 && row < len(resp.Candidates) && resp.Candidates[row].Optimized {
				return cellStyle.Foreground(lipgloss.Color("42"))
			}
			return cellStyle
		})

	footer := fmt.Sprintf("Всего: %d, оптимизировано: %d, сэкономлено: %d KB", len(resp.Candidates), optimized, saved)
	if resp.Truncated {
		footer += errStyle.Render("  (список усечен)")
	}
	if resp.StaleRemoved > 0 {
		footer += fmt.Sprintf(", удалено устаревших записей: %d", resp.StaleRemoved)
	}
	return t.Render() + "\n" + footer + "\n"
}

// RenderSummary отрисовывает итог массового запуска одной строкой.
func RenderSummary(s models.BulkSummary) string {
	line := fmt.Sprintf("Обработано: %d, ошибок: %d, всего: %d", s.Processed, s.Errors, s.Total)
	switch {
	case s.Superseded:
		line += hintStyle.Render(" (вытеснен новым запуском)")
	case s.Stopped:
		line += hintStyle.Render(" (остановлен)")
	}
	if s.Errors > 0 {
		return errStyle.Render(line)
	}
	return okStyle.Render(line)
}

func savedCell(c models.Candidate) string {
	if !c.Optimized {
		return "-"
	}
	return strconv.FormatInt(c.SavedKB, 10) + " KB (" + strconv.Itoa(c.Percent) + "%)"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
