package transcode_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aniketkhadse/shopify-image-optimizer/internal/logger"
	"github.com/aniketkhadse/shopify-image-optimizer/internal/transcode"
)

// fakeEncoder пишет заданное число байт и запоминает размеры полученного изображения.
type fakeEncoder struct {
	format string
	size   int
	err    error
	calls  int
	bounds image.Rectangle
}

func (f *fakeEncoder) Format() string      { return f.format }
func (f *fakeEncoder) ContentType() string { return "image/" + f.format }

func (f *fakeEncoder) Encode(w io.Writer, img image.Image) error {
	f.calls++
	f.bounds = img.Bounds()
	if f.err != nil {
		return f.err
	}
	_, err := w.Write(bytes.Repeat([]byte{1}, f.size))
	return err
}

// noisyPNG создает PNG со случайным шумом, чтобы файл плохо сжимался.
func noisyPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rnd := rand.New(rand.NewSource(42))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// rotatedJPEG кодирует JPEG w×h и вставляет после SOI сегмент APP1 с EXIF-ориентацией 6
// (для показа изображение поворачивается на 90 градусов).
func rotatedJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	encoded := buf.Bytes()
	require.Equal(t, []byte{0xFF, 0xD8}, encoded[:2])

	tiff := []byte{
		'M', 'M', 0x00, 0x2A, // big-endian
		0x00, 0x00, 0x00, 0x08, // смещение IFD0
		0x00, 0x01, // один тег
		0x01, 0x12, 0x00, 0x03, 0x00, 0x00, 0x00, 0x01, 0x00, 0x06, 0x00, 0x00, // Orientation = 6
		0x00, 0x00, 0x00, 0x00, // следующего IFD нет
	}
	payload := append([]byte("Exif\x00\x00"), tiff...)
	size := len(payload) + 2

	out := []byte{0xFF, 0xD8, 0xFF, 0xE1, byte(size >> 8), byte(size)}
	out = append(out, payload...)
	return append(out, encoded[2:]...)
}

// padded дополняет файл нулями до size байт. Декодеры PNG не читают данные после IEND.
func padded(t *testing.T, data []byte, size int) []byte {
	t.Helper()
	require.LessOrEqual(t, len(data), size)
	out := make([]byte, size)
	copy(out, data)
	return out
}

func testPolicy(thresholdKB int) transcode.Policy {
	p := transcode.DefaultPolicy()
	p.SizeThresholdKB = thresholdKB
	return p
}

func TestTranscode_FormatDecision(t *testing.T) {
	data := noisyPNG(t, 64, 64) // ~16 КБ

	t.Run("Маленький исходник кодируется один раз", func(t *testing.T) {
		primary := &fakeEncoder{format: "webp", size: 100}
		secondary := &fakeEncoder{format: "avif", size: 10}
		tr := transcode.NewWithEncoders(testPolicy(1000), primary, secondary, logger.Nop())

		out, err := tr.Transcode(data, 64)
		require.NoError(t, err)
		assert.Equal(t, "webp", out.Format)
		assert.Len(t, out.Data, 100)
		assert.Equal(t, 1, primary.calls)
		assert.Zero(t, secondary.calls)
	})

	t.Run("Большой исходник: побеждает меньший", func(t *testing.T) {
		primary := &fakeEncoder{format: "webp", size: 100}
		secondary := &fakeEncoder{format: "avif", size: 60}
		tr := transcode.NewWithEncoders(testPolicy(1), primary, secondary, logger.Nop())

		out, err := tr.Transcode(data, 64)
		require.NoError(t, err)
		assert.Equal(t, "avif", out.Format)
		assert.Equal(t, "image/avif", out.ContentType)
		assert.Len(t, out.Data, 60)
		assert.Equal(t, 1, primary.calls)
		assert.Equal(t, 1, secondary.calls)
	})

	t.Run("Большой исходник: основной меньше", func(t *testing.T) {
		primary := &fakeEncoder{format: "webp", size: 50}
		secondary := &fakeEncoder{format: "avif", size: 60}
		tr := transcode.NewWithEncoders(testPolicy(1), primary, secondary, logger.Nop())

		out, err := tr.Transcode(data, 64)
		require.NoError(t, err)
		assert.Equal(t, "webp", out.Format)
	})

	t.Run("Равные размеры: основной формат", func(t *testing.T) {
		primary := &fakeEncoder{format: "webp", size: 70}
		secondary := &fakeEncoder{format: "avif", size: 70}
		tr := transcode.NewWithEncoders(testPolicy(1), primary, secondary, logger.Nop())

		out, err := tr.Transcode(data, 64)
		require.NoError(t, err)
		assert.Equal(t, "webp", out.Format)
	})
}

func TestTranscode_ThresholdRounding(t *testing.T) {
	data := noisyPNG(t, 64, 64)

	t.Run("199.6 КБ округляются до порога", func(t *testing.T) {
		primary := &fakeEncoder{format: "webp", size: 100}
		secondary := &fakeEncoder{format: "avif", size: 60}
		tr := transcode.NewWithEncoders(testPolicy(200), primary, secondary, logger.Nop())

		out, err := tr.Transcode(padded(t, data, 204390), 64)
		require.NoError(t, err)
		assert.Equal(t, 1, secondary.calls)
		assert.Equal(t, "avif", out.Format)
	})

	t.Run("199.4 КБ ниже порога", func(t *testing.T) {
		primary := &fakeEncoder{format: "webp", size: 100}
		secondary := &fakeEncoder{format: "avif", size: 60}
		tr := transcode.NewWithEncoders(testPolicy(200), primary, secondary, logger.Nop())

		out, err := tr.Transcode(padded(t, data, 204185), 64)
		require.NoError(t, err)
		assert.Zero(t, secondary.calls)
		assert.Equal(t, "webp", out.Format)
	})
}

func TestTranscode_Orientation(t *testing.T) {
	t.Run("EXIF-поворот меняет ширину и высоту местами", func(t *testing.T) {
		primary := &fakeEncoder{format: "webp", size: 10}
		tr := transcode.NewWithEncoders(testPolicy(1000), primary, nil, logger.Nop())

		out, err := tr.Transcode(rotatedJPEG(t, 64, 40), 64)
		require.NoError(t, err)
		assert.Equal(t, 40, primary.bounds.Dx())
		assert.Equal(t, 64, primary.bounds.Dy())
		assert.Equal(t, 40, out.Width)
		assert.Equal(t, 64, out.Height)
	})

	t.Run("Поворот до ограничения ширины", func(t *testing.T) {
		policy := testPolicy(1000)
		policy.MaxWidth = 20
		primary := &fakeEncoder{format: "webp", size: 10}
		tr := transcode.NewWithEncoders(policy, primary, nil, logger.Nop())

		out, err := tr.Transcode(rotatedJPEG(t, 64, 40), 64)
		require.NoError(t, err)
		assert.Equal(t, 20, out.Width)
		assert.Equal(t, 32, out.Height)
	})
}

func TestTranscode_Errors(t *testing.T) {
	data := noisyPNG(t, 32, 32)
	encErr := errors.New("wasm panic")

	t.Run("Ошибка основного кодировщика", func(t *testing.T) {
		primary := &fakeEncoder{format: "webp", err: encErr}
		secondary := &fakeEncoder{format: "avif", size: 10}
		tr := transcode.NewWithEncoders(testPolicy(0), primary, secondary, logger.Nop())

		out, err := tr.Transcode(data, 0)
		assert.Nil(t, out)
		require.ErrorIs(t, err, transcode.ErrEncode)
		assert.ErrorIs(t, err, encErr)
		assert.Zero(t, secondary.calls)
	})

	t.Run("Ошибка дополнительного кодировщика без частичного результата", func(t *testing.T) {
		primary := &fakeEncoder{format: "webp", size: 10}
		secondary := &fakeEncoder{format: "avif", err: encErr}
		tr := transcode.NewWithEncoders(testPolicy(0), primary, secondary, logger.Nop())

		out, err := tr.Transcode(data, 0)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, transcode.ErrEncode)
	})

	t.Run("Пустой результат кодирования", func(t *testing.T) {
		primary := &fakeEncoder{format: "webp", size: 0}
		tr := transcode.NewWithEncoders(testPolicy(1000), primary, nil, logger.Nop())

		out, err := tr.Transcode(data, 0)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, transcode.ErrEncode)
	})

	t.Run("Не изображение", func(t *testing.T) {
		primary := &fakeEncoder{format: "webp", size: 10}
		tr := transcode.NewWithEncoders(testPolicy(1000), primary, nil, logger.Nop())

		out, err := tr.Transcode([]byte("<html>not found</html>"), 0)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, transcode.ErrDecode)
		assert.Zero(t, primary.calls)
	})
}

func TestTranscode_Resize(t *testing.T) {
	data := noisyPNG(t, 64, 40)

	t.Run("Уменьшение до максимальной ширины", func(t *testing.T) {
		policy := testPolicy(1000)
		policy.MaxWidth = 32
		primary := &fakeEncoder{format: "webp", size: 10}
		tr := transcode.NewWithEncoders(policy, primary, nil, logger.Nop())

		out, err := tr.Transcode(data, 64)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 32, 20), primary.bounds)
		assert.Equal(t, 32, out.Width)
		assert.Equal(t, 20, out.Height)
	})

	t.Run("Без увеличения", func(t *testing.T) {
		policy := testPolicy(1000)
		policy.MaxWidth = 128
		primary := &fakeEncoder{format: "webp", size: 10}
		tr := transcode.NewWithEncoders(policy, primary, nil, logger.Nop())

		_, err := tr.Transcode(data, 64)
		require.NoError(t, err)
		assert.Equal(t, 64, primary.bounds.Dx())
		assert.Equal(t, 40, primary.bounds.Dy())
	})
}

func TestEncoders(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = uint8(i)
	}

	t.Run("WebP", func(t *testing.T) {
		var buf bytes.Buffer
		enc := transcode.WebPEncoder{Quality: 80}
		require.NoError(t, enc.Encode(&buf, img))
		data := buf.Bytes()
		require.Greater(t, len(data), 12)
		assert.Equal(t, "RIFF", string(data[0:4]))
		assert.Equal(t, "WEBP", string(data[8:12]))
	})

	t.Run("AVIF", func(t *testing.T) {
		var buf bytes.Buffer
		enc := transcode.AVIFEncoder{Quality: 55, Speed: 8}
		require.NoError(t, enc.Encode(&buf, img))
		data := buf.Bytes()
		require.Greater(t, len(data), 8)
		assert.Equal(t, "ftyp", string(data[4:8]))
	})
}

func TestPolicyDefaults(t *testing.T) {
	p := transcode.DefaultPolicy()
	assert.Equal(t, 2048, p.MaxWidth)
	assert.Equal(t, 200, p.SizeThresholdKB)
	assert.Equal(t, 80, p.PrimaryQuality)
	assert.Equal(t, 55, p.SecondaryQuality)
	assert.Equal(t, 8, p.SecondarySpeed)
}
