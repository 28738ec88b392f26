package ocr

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"log/slog"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Phone photos of cards are often small crops; tesseract reads text best
// when glyphs are at least ~20px tall, which a 1200px wide card gives.
const defaultMinWidth = 1200

// Preprocessor enhances an image for OCR: grayscale, upscale of small
// images, contrast stretch. Output is always PNG.
type Preprocessor struct {
	minWidth int
	maxWidth int
}

// NewPreprocessor creates a preprocessor. minWidth <= 0 uses the default.
func NewPreprocessor(minWidth int) *Preprocessor {
	if minWidth <= 0 {
		minWidth = defaultMinWidth
	}
	return &Preprocessor{minWidth: minWidth, maxWidth: 2000}
}

// Process returns the enhanced image, or the original bytes if it cannot be decoded
func (p *Preprocessor) Process(data []byte) []byte {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		slog.Debug("[Preprocessor] decode failed, using original", "error", err)
		return data
	}

	gray := toGray(p.resize(src))
	stretchContrast(gray)

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		slog.Debug("[Preprocessor] encode failed, using original", "error", err)
		return data
	}

	slog.Debug("[Preprocessor] image enhanced", "format", format, "in_bytes", len(data), "out_bytes", buf.Len())
	return buf.Bytes()
}

// resize scales the image so its width falls in [minWidth, maxWidth], keeping aspect ratio
func (p *Preprocessor) resize(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return src
	}

	target := w
	switch {
	case w < p.minWidth:
		target = p.minWidth
	case w > p.maxWidth:
		target = p.maxWidth
	default:
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, target, h*target/w))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func toGray(src image.Image) *image.Gray {
	b := src.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), src, b.Min, draw.Src)
	return gray
}

// stretchContrast maps the darkest pixel to black and the brightest to white
func stretchContrast(img *image.Gray) {
	lo, hi := uint8(255), uint8(0)
	for _, v := range img.Pix {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi <= lo || (lo == 0 && hi == 255) {
		return
	}

	span := float64(hi - lo)
	for i, v := range img.Pix {
		img.Pix[i] = uint8(float64(v-lo) * 255 / span)
	}
}
