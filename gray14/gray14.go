// Copyright 2017 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gray14 reduces 14 bits radiometric samples to 8 bits intensity.
package gray14

import (
	"image"
)

// Normalizer maps samples linearly to [0, 255].
//
// The zero value does automatic gain control: the scale is the minimum and
// maximum of each frame. When Max is non-zero, [Min, Max] is used as a fixed
// scale and samples outside of it are clamped.
type Normalizer struct {
	Min uint16
	Max uint16
}

// Normalize writes one index per sample of src into dst and returns the scale
// used.
//
// When lo == hi every index is 0.
func (n *Normalizer) Normalize(dst []uint8, src []uint16) (lo, hi uint16) {
	if len(dst) < len(src) {
		src = src[:len(dst)]
	}
	if n.Max != 0 {
		lo, hi = n.Min, n.Max
	} else {
		lo, hi = Range(src)
	}
	if hi <= lo {
		for i := range src {
			dst[i] = 0
		}
		return lo, hi
	}
	delta := uint32(hi - lo)
	for i, v := range src {
		switch {
		case v <= lo:
			dst[i] = 0
		case v >= hi:
			dst[i] = 255
		default:
			dst[i] = uint8(uint32(v-lo) * 255 / delta)
		}
	}
	return lo, hi
}

// Range returns the smallest and largest values. It returns 0, 0 on empty
// input.
func Range(src []uint16) (lo, hi uint16) {
	if len(src) == 0 {
		return 0, 0
	}
	lo, hi = 0xFFFF, 0
	for _, v := range src {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Min returns the smallest non-zero pixel. A zero pixel is a missing sample.
//
// Returns 65535 when there is no sample.
func Min(img *image.Gray16) uint16 {
	m := uint16(0xFFFF)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if v := img.Gray16At(x, y).Y; v != 0 && v < m {
				m = v
			}
		}
	}
	return m
}

// Max returns the largest pixel.
func Max(img *image.Gray16) uint16 {
	m := uint16(0)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if v := img.Gray16At(x, y).Y; v > m {
				m = v
			}
		}
	}
	return m
}

// ToGray16 packs samples in row order into a 16 bits image of size r.
//
// The values are shifted left by 2 so the 14 bits range covers the whole
// 16 bits one.
func ToGray16(src []uint16, r image.Rectangle) *image.Gray16 {
	img := image.NewGray16(r)
	k := 0
	for y := r.Min.Y; y < r.Max.Y && k < len(src); y++ {
		off := img.PixOffset(r.Min.X, y)
		for x := r.Min.X; x < r.Max.X && k < len(src); x++ {
			v := src[k] << 2
			k++
			img.Pix[off] = uint8(v >> 8)
			img.Pix[off+1] = uint8(v)
			off += 2
		}
	}
	return img
}
