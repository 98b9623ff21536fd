package services

import (
	"errors"
	"fmt"
)

// Ошибки сервисного слоя. Обработчики сопоставляют их с HTTP-статусами через errors.Is.
var (
	ErrAuthorization = errors.New("нет действующего доступа к магазину")
	ErrDownload      = errors.New("не удалось скачать исходное изображение")
	ErrTranscode     = errors.New("не удалось перекодировать изображение")
	ErrUpload        = errors.New("магазин отклонил изменение изображения")
	ErrNotFound      = errors.New("нет записи для восстановления изображения")
	ErrNotSmaller    = fmt.Errorf("%w: результат больше исходника", ErrTranscode)

	// ErrSourceTooLarge оборачивается в DownloadError.
	ErrSourceTooLarge = errors.New("исходник слишком большой")
)

// DownloadError - неудачная загрузка исходника. StatusCode == 0 означает сетевую ошибку.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v: %s: статус %d", ErrDownload, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%v: %s: %v", ErrDownload, e.URL, e.Err)
}

// Is делает DownloadError совместимым с errors.Is(err, ErrDownload).
func (e *DownloadError) Is(target error) bool {
	return target == ErrDownload
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}
