package app

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"go.aimuz.me/iris/llm"
)

const (
	defaultMaxDimension = 1568
	defaultJPEGQuality  = 80
)

// encodeFrame downscales a screenshot so its longest side is at most maxDim
// and re-encodes it as JPEG.
func encodeFrame(data []byte, maxDim, quality int) (llm.Image, error) {
	if maxDim <= 0 {
		maxDim = defaultMaxDimension
	}
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return llm.Image{}, fmt.Errorf("decode screenshot: %w", err)
	}

	if w, h := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), maxDim); w != src.Bounds().Dx() || h != src.Bounds().Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: quality}); err != nil {
		return llm.Image{}, fmt.Errorf("encode screenshot: %w", err)
	}
	return llm.Image{MIMEType: "image/jpeg", Data: buf.Bytes()}, nil
}

// fitWithin scales w x h down, keeping the aspect ratio, so that neither
// side exceeds limit. Sizes already within bounds are returned unchanged.
func fitWithin(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, scaleSide(h, limit, w)
	}
	return scaleSide(w, limit, h), limit
}

func scaleSide(side, num, den int) int {
	n := (side*num + den/2) / den
	if n < 1 {
		return 1
	}
	return n
}
