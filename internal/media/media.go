// Package media produces reduced-size JPEG renditions of uploaded photos.
// Rendition generation is best effort and must never block a record
// mutation.
package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // register png decoding for uploads saved before the jpeg policy
	"io"
)

const (
	// ThumbnailScale divides each dimension; thumbnails are quarter-size.
	ThumbnailScale = 4
	// JPEGQuality matches the quality used for stored renditions.
	JPEGQuality = 85
)

// Thumbnail decodes the image from r and returns a quarter-size JPEG.
func Thumbnail(r io.Reader) ([]byte, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	bounds := src.Bounds()
	w := bounds.Dx() / ThumbnailScale
	h := bounds.Dy() / ThumbnailScale
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		srcY := bounds.Min.Y + y*bounds.Dy()/h
		for x := 0; x < w; x++ {
			srcX := bounds.Min.X + x*bounds.Dx()/w
			dst.Set(x, y, src.At(srcX, srcY))
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
