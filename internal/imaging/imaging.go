package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	_ "image/png"
)

const DefaultMaxDimension = 128

const jpegQuality = 85

// ErrUnsupportedFormat is returned when the submitted bytes cannot be
// decoded as an image.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// AllowedExtension reports whether the declared filename carries one of
// the accepted extensions (png, jpg, jpeg), case-insensitively.
func AllowedExtension(name string) bool {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "png", "jpg", "jpeg":
		return true
	}
	return false
}

// Normalized is a downscaled, JPEG-encoded copy of a submitted image,
// ready for archiving and for embedding into a model request.
type Normalized struct {
	JPEG   []byte
	Width  int
	Height int
}

// Normalize decodes raw image bytes and, if either dimension exceeds
// maxDim, downscales preserving the aspect ratio using Catmull-Rom
// resampling. The result is re-encoded as JPEG.
func Normalize(data []byte, maxDim int) (Normalized, error) {
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Normalized{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxDim || h > maxDim {
		if w >= h {
			h = h * maxDim / w
			w = maxDim
		} else {
			w = w * maxDim / h
			h = maxDim
		}
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return Normalized{}, fmt.Errorf("encode jpeg: %w", err)
	}
	return Normalized{JPEG: buf.Bytes(), Width: w, Height: h}, nil
}

// DataURL returns the image as a base64 data URL for embedding into a
// chat-completion request.
func (n Normalized) DataURL() string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(n.JPEG)
}
