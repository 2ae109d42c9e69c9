/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package imagecache

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PrintDPI is the target resolution for card images in generated PDFs.
const PrintDPI = 300

// MaxDecodePixels bounds the images Normalize is willing to decode.
const MaxDecodePixels = 40_000_000

// PrintImage is an image ready to be embedded in a PDF.
type PrintImage struct {
	Data []byte
	// Type is "png", "jpg" or "gif".
	Type          string
	Width, Height int
}

// MaxPixels returns the pixel size of a widthMM x heightMM box at PrintDPI.
func MaxPixels(widthMM, heightMM float64) (int, int) {
	px := func(mm float64) int { return int(math.Ceil(mm / 25.4 * PrintDPI)) }
	return px(widthMM), px(heightMM)
}

// ForPrint fetches imageURL and normalises it for a slot of maxW x maxH
// pixels: JPEG, PNG and GIF within bounds pass through untouched, anything
// else (WebP, oversize scans) is decoded, scaled to fit and re-encoded as PNG.
func (c *Cache) ForPrint(ctx context.Context, imageURL string, maxW, maxH int) (PrintImage, error) {
	raw, err := c.Bytes(ctx, imageURL)
	if err != nil {
		return PrintImage{}, err
	}
	return Normalize(raw, maxW, maxH)
}

// Normalize applies the ForPrint rules to raw image bytes.
func Normalize(raw []byte, maxW, maxH int) (PrintImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return PrintImage{}, fmt.Errorf("decode image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxDecodePixels {
		return PrintImage{}, fmt.Errorf("%w: %dx%d pixels", ErrTooLarge, cfg.Width, cfg.Height)
	}
	fits := cfg.Width <= maxW && cfg.Height <= maxH
	switch {
	case fits && format == "jpeg":
		return PrintImage{Data: raw, Type: "jpg", Width: cfg.Width, Height: cfg.Height}, nil
	case fits && format == "gif", fits && format == "png" && plainPNG(raw):
		return PrintImage{Data: raw, Type: format, Width: cfg.Width, Height: cfg.Height}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return PrintImage{}, fmt.Errorf("decode %s image: %w", format, err)
	}
	var dst image.Image
	if fits {
		rgba := image.NewRGBA(src.Bounds())
		draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)
		dst = rgba
	} else {
		dst = scaleToFit(src, maxW, maxH)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return PrintImage{}, fmt.Errorf("encode png: %w", err)
	}
	b := dst.Bounds()
	return PrintImage{Data: buf.Bytes(), Type: "png", Width: b.Dx(), Height: b.Dy()}, nil
}

func scaleToFit(src image.Image, maxW, maxH int) image.Image {
	sb := src.Bounds()
	ratio := math.Min(float64(maxW)/float64(sb.Dx()), float64(maxH)/float64(sb.Dy()))
	w := max(1, int(math.Round(float64(sb.Dx())*ratio)))
	h := max(1, int(math.Round(float64(sb.Dy())*ratio)))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, sb, draw.Over, nil)
	return dst
}

// plainPNG reports an 8-bit, non-interlaced PNG, the only kind gofpdf embeds.
func plainPNG(raw []byte) bool {
	// 8-byte signature, IHDR length+type, then width, height, depth, ...
	const depthAt, interlaceAt = 24, 28
	if len(raw) <= interlaceAt {
		return false
	}
	return raw[depthAt] <= 8 && raw[interlaceAt] == 0
}
