package storage

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
)

// PhotoOptions bounds the passport photo kept for an application.
type PhotoOptions struct {
	MaxEdge  int
	MaxBytes int64
}

// NormalizePhoto accepts a JPEG or PNG, flattens it onto white, downsizes it so
// the longest edge is at most MaxEdge and re-encodes it as JPEG under MaxBytes.
func NormalizePhoto(data []byte, opts PhotoOptions) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty photo", ErrUnsupportedType)
	}
	mt := mimetype.Detect(data)
	if !mt.Is("image/jpeg") && !mt.Is("image/png") {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mt.String())
	}
	if opts.MaxEdge <= 0 {
		opts.MaxEdge = 600
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 200 * 1024
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode photo: %v", ErrUnsupportedType, err)
	}

	edge := opts.MaxEdge
	for attempt := 0; attempt < 4; attempt++ {
		img := flatten(downscaleIfNeeded(src, edge, edge))
		for quality := 90; quality >= 40; quality -= 10 {
			buf := new(bytes.Buffer)
			if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
				return nil, fmt.Errorf("encode photo: %w", err)
			}
			if int64(buf.Len()) <= opts.MaxBytes {
				return buf.Bytes(), nil
			}
		}
		edge = int(float64(edge) * 0.75)
	}
	return nil, fmt.Errorf("%w: photo cannot be compressed below %d bytes", ErrTooLarge, opts.MaxBytes)
}

func downscaleIfNeeded(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return src
	}
	scale := math.Min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

// flatten composites transparent PNGs over white so JPEG output has no black halo.
func flatten(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}
