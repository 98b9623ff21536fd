package transcode

import (
	"image"
	"io"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
)

// Форматы результата.
const (
	FormatWebP = "webp"
	FormatAVIF = "avif"
)

// Encoder кодирует изображение в один конкретный формат.
type Encoder interface {
	Format() string
	ContentType() string
	Encode(w io.Writer, img image.Image) error
}

// WebPEncoder - основной формат с фиксированным качеством.
type WebPEncoder struct {
	Quality int
}

func (WebPEncoder) Format() string      { return FormatWebP }
func (WebPEncoder) ContentType() string { return "image/webp" }

func (e WebPEncoder) Encode(w io.Writer, img image.Image) error {
	return webp.Encode(w, img, webp.Options{Quality: e.Quality, Method: 4})
}

// AVIFEncoder - более агрессивный дополнительный формат.
type AVIFEncoder struct {
	Quality int
	Speed   int
}

func (AVIFEncoder) Format() string      { return FormatAVIF }
func (AVIFEncoder) ContentType() string { return "image/avif" }

func (e AVIFEncoder) Encode(w io.Writer, img image.Image) error {
	return avif.Encode(w, img, avif.Options{
		Quality:           e.Quality,
		QualityAlpha:      e.Quality,
		Speed:             e.Speed,
		ChromaSubsampling: image.YCbCrSubsampleRatio420,
	})
}
