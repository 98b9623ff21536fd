// Package transcode уменьшает изображения перед заменой в магазине:
// нормализует ориентацию, ограничивает ширину и выбирает формат по размеру исходника.
package transcode

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Регистрация декодера WebP

	"github.com/aniketkhadse/shopify-image-optimizer/internal/config"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/models"
)

// Ошибки транскодирования.
var (
	ErrDecode = errors.New("не удалось декодировать изображение")
	ErrEncode = errors.New("не удалось закодировать изображение")
)

// Policy - настраиваемые параметры транскодирования.
type Policy struct {
	MaxWidth         int
	SizeThresholdKB  int
	PrimaryQuality   int
	SecondaryQuality int
	SecondarySpeed   int
}

// DefaultPolicy возвращает стандартную политику.
func DefaultPolicy() Policy {
	return PolicyFromConfig(config.Default().Optimizer)
}

// PolicyFromConfig берет политику из секции optimizer конфигурации.
func PolicyFromConfig(cfg config.OptimizerConfig) Policy {
	return Policy{
		MaxWidth:         cfg.MaxWidth,
		SizeThresholdKB:  cfg.SizeThresholdKB,
		PrimaryQuality:   cfg.PrimaryQuality,
		SecondaryQuality: cfg.SecondaryQuality,
		SecondarySpeed:   cfg.SecondarySpeed,
	}
}

// Output - результат транскодирования.
type Output struct {
	Data        []byte
	Format      string
	ContentType string
	Width       int
	Height      int
}

// Transcoder применяет политику к байтам изображения. Не имеет побочных эффектов.
type Transcoder struct {
	policy    Policy
	primary   Encoder
	secondary Encoder
	log       *logger.Logger
}

// New создает транскодер с кодировщиками WebP (основной) и AVIF (дополнительный).
func New(policy Policy, log *logger.Logger) *Transcoder {
	return NewWithEncoders(policy,
		WebPEncoder{Quality: policy.PrimaryQuality},
		AVIFEncoder{Quality: policy.SecondaryQuality, Speed: policy.SecondarySpeed},
		log,
	)
}

// NewWithEncoders создает транскодер с произвольными кодировщиками.
func NewWithEncoders(policy Policy, primary, secondary Encoder, log *logger.Logger) *Transcoder {
	return &Transcoder{
		policy:    policy,
		primary:   primary,
		secondary: secondary,
		log:       log.With("component", "Transcoder"),
	}
}

// Policy возвращает действующую политику.
func (t *Transcoder) Policy() Policy {
	return t.policy
}

// Transcode декодирует data, приводит ориентацию, при необходимости уменьшает ширину
// и кодирует в основной формат, а для больших исходников еще и в дополнительный,
// возвращая меньший результат (при равенстве - основной).
// widthHint - ширина из каталога, используется только для журнала расхождений.
func (t *Transcoder) Transcode(data []byte, widthHint int) (*Output, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	width := img.Bounds().Dx()
	if widthHint > 0 && widthHint != width {
		t.log.Debug("Ширина из каталога не совпадает с фактической", "hint", widthHint, "actual", width)
	}
	img = t.fitWidth(img)

	primary, err := encode(t.primary, img)
	if err != nil {
		return nil, err
	}

	inputKB := models.RoundKB(len(data))
	if inputKB < int64(t.policy.SizeThresholdKB) || t.secondary == nil {
		return primary, nil
	}

	secondary, err := encode(t.secondary, img)
	if err != nil {
		return nil, err
	}

	t.log.Debug("Сравнение форматов",
		"primary", primary.Format, "primary_bytes", len(primary.Data),
		"secondary", secondary.Format, "secondary_bytes", len(secondary.Data))
	if len(secondary.Data) < len(primary.Data) {
		return secondary, nil
	}
	return primary, nil
}

// fitWidth уменьшает изображение до MaxWidth с сохранением пропорций. Увеличения не бывает.
func (t *Transcoder) fitWidth(img image.Image) image.Image {
	b := img.Bounds()
	if t.policy.MaxWidth <= 0 || b.Dx() <= t.policy.MaxWidth {
		return img
	}
	height := b.Dy() * t.policy.MaxWidth / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, t.policy.MaxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

func encode(enc Encoder, img image.Image) (*Output, error) {
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w (%s): %w", ErrEncode, enc.Format(), err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w (%s): пустой результат", ErrEncode, enc.Format())
	}
	b := img.Bounds()
	return &Output{
		Data:        buf.Bytes(),
		Format:      enc.Format(),
		ContentType: enc.ContentType(),
		Width:       b.Dx(),
		Height:      b.Dy(),
	}, nil
}
