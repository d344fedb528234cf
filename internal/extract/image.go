package extract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// MaxImagePixels rejects decompression bombs before decoding
	MaxImagePixels = 50_000_000

	// MaxImageSide is the longest side kept for recognition; larger images are downscaled
	MaxImageSide = 4000
)

// ErrImageTooLarge is returned for images above MaxImagePixels
var ErrImageTooLarge = errors.New("image exceeds pixel limit")

// PreprocessedImage is a grayscale, contrast-stretched PNG ready for OCR
type PreprocessedImage struct {
	Data   []byte
	Format string
	Width  int
	Height int
}

// Preprocess decodes an image, converts it to grayscale, stretches its
// contrast to the full range and re-encodes it as PNG. Width and Height are
// those of the source image.
func Preprocess(data []byte) (PreprocessedImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return PreprocessedImage{}, fmt.Errorf("failed to read image header: %w", err)
	}
	if cfg.Width*cfg.Height > MaxImagePixels {
		return PreprocessedImage{}, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return PreprocessedImage{}, fmt.Errorf("failed to decode %s image: %w", format, err)
	}

	gray := toGray(src)
	stretchContrast(gray)

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return PreprocessedImage{}, fmt.Errorf("failed to encode image: %w", err)
	}
	return PreprocessedImage{
		Data:   buf.Bytes(),
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if longest := max(w, h); longest > MaxImageSide {
		w = w * MaxImageSide / longest
		h = h * MaxImageSide / longest
	}
	gray := image.NewGray(image.Rect(0, 0, max(w, 1), max(h, 1)))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(gray, gray.Bounds(), src, b, draw.Src, nil)
	}
	return gray
}

// stretchContrast maps the darkest pixel to black and the brightest to white
func stretchContrast(img *image.Gray) {
	lo, hi := uint8(255), uint8(0)
	for _, p := range img.Pix {
		lo = min(lo, p)
		hi = max(hi, p)
	}
	if hi <= lo {
		return
	}
	scale := 255.0 / float64(hi-lo)
	for i, p := range img.Pix {
		img.Pix[i] = uint8(float64(p-lo)*scale + 0.5)
	}
}
