// Package imaging turns uploaded or pasted pictures into size-bounded data URIs.
package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // gif decoder
	"image/jpeg"
	"image/png"
	"io"

	_ "golang.org/x/image/bmp"  // bmp decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // webp decoder
)

// ErrDecode is returned when the input is not a readable image.
var ErrDecode = errors.New("image could not be decoded")

const (
	// DefaultMaxPixels bounds the decoded source, about 96 MiB as RGBA.
	DefaultMaxPixels = 24_000_000

	jpegMaxQuality = 85
	jpegMinQuality = 40
	jpegStep       = 10
)

// Normalizer re-encodes images so that the resulting data URI fits MaxBytes.
type Normalizer struct {
	MaxBytes     int // ceiling for the whole data URI
	MaxDimension int // longest edge after scaling
	MaxPixels    int // width*height accepted before decoding, 0 => DefaultMaxPixels
}

// Normalize decodes r and returns a data URI no longer than MaxBytes.
// Transparent images are kept as PNG when that fits; everything else becomes JPEG
// at the highest quality that fits, shrinking the picture when no quality does.
// The header is checked first so a small compressed file cannot expand into a huge bitmap.
func (n Normalizer) Normalize(r io.Reader) (string, error) {
	var head bytes.Buffer
	cfg, _, err := image.DecodeConfig(io.TeeReader(r, &head))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("%w: empty image", ErrDecode)
	}
	if limit := n.maxPixels(); int64(cfg.Width)*int64(cfg.Height) > limit {
		return "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecode, cfg.Width, cfg.Height, limit)
	}

	src, _, err := image.Decode(io.MultiReader(&head, r))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if src.Bounds().Empty() {
		return "", fmt.Errorf("%w: empty image", ErrDecode)
	}

	img := fit(src, n.MaxDimension)
	transparent := !isOpaque(img)

	for {
		if transparent {
			if uri, ok := n.tryPNG(img); ok {
				return uri, nil
			}
		}

		flat := flatten(img)
		for q := jpegMaxQuality; q >= jpegMinQuality; q -= jpegStep {
			if uri, ok := n.tryJPEG(flat, q); ok {
				return uri, nil
			}
		}

		b := img.Bounds()
		w, h := b.Dx()*3/4, b.Dy()*3/4
		if w < 1 || h < 1 {
			return "", fmt.Errorf("image does not fit in %d bytes", n.MaxBytes)
		}
		img = scale(img, w, h)
	}
}

func (n Normalizer) maxPixels() int64 {
	if n.MaxPixels > 0 {
		return int64(n.MaxPixels)
	}
	return DefaultMaxPixels
}

func (n Normalizer) tryPNG(img image.Image) (string, bool) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return "", false
	}
	return n.dataURI("image/png", buf.Bytes())
}

func (n Normalizer) tryJPEG(img image.Image, quality int) (string, bool) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", false
	}
	return n.dataURI("image/jpeg", buf.Bytes())
}

// dataURI builds the URI only when it fits the ceiling.
func (n Normalizer) dataURI(mime string, data []byte) (string, bool) {
	prefix := "data:" + mime + ";base64,"
	if len(prefix)+base64.StdEncoding.EncodedLen(len(data)) > n.MaxBytes {
		return "", false
	}
	return prefix + base64.StdEncoding.EncodeToString(data), true
}

// fit scales img down so its longest edge is at most maxDim. Smaller images are kept.
func fit(img image.Image, maxDim int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return img
	}
	if w >= h {
		h = max(1, h*maxDim/w)
		w = maxDim
	} else {
		w = max(1, w*maxDim/h)
		h = maxDim
	}
	return scale(img, w, h)
}

func scale(img image.Image, w, h int) image.Image {
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// flatten composes img over a white background, as JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

// alphaAt returns the 8-bit alpha of the pixel at (x, y).
func alphaAt(img image.Image, x, y int) uint8 {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA).A
}
