// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package palette converts 8 bits intensity into false colors.
package palette

import (
	"fmt"
	"image"
	"image/color"
	"strings"
)

// Palette selects one of the precomputed lookup tables.
type Palette uint8

// Valid values for Palette.
const (
	Grey    Palette = 0
	Iron    Palette = 1
	Rainbow Palette = 2
)

// All lists the valid palettes.
var All = []Palette{Grey, Iron, Rainbow}

// Parse returns the palette named s.
func Parse(s string) (Palette, error) {
	switch strings.ToLower(s) {
	case "grey", "gray":
		return Grey, nil
	case "iron":
		return Iron, nil
	case "rainbow":
		return Rainbow, nil
	default:
		return Grey, fmt.Errorf("palette: unknown %q", s)
	}
}

func (p Palette) String() string {
	switch p {
	case Grey:
		return "grey"
	case Iron:
		return "iron"
	case Rainbow:
		return "rainbow"
	default:
		return fmt.Sprintf("Palette(%d)", uint8(p))
	}
}

// Table is a lookup table of 256 colors.
type Table [256]color.RGBA

// Table returns a copy of the lookup table. Unknown values return Grey.
func (p Palette) Table() Table {
	return *p.table()
}

// At returns the color for an intensity.
func (p Palette) At(i uint8) color.RGBA {
	return p.table()[i]
}

// Map renders intensities into dst with this palette.
func (p Palette) Map(dst *image.RGBA, idx []uint8) {
	p.table().Map(dst, idx)
}

// At returns the color for an intensity.
func (t *Table) At(i uint8) color.RGBA {
	return t[i]
}

// Map renders intensities into dst, in row order starting at dst.Rect.Min.
// Extra pixels are left untouched.
func (t *Table) Map(dst *image.RGBA, idx []uint8) {
	k := 0
	for y := dst.Rect.Min.Y; y < dst.Rect.Max.Y; y++ {
		off := dst.PixOffset(dst.Rect.Min.X, y)
		for x := dst.Rect.Min.X; x < dst.Rect.Max.X; x++ {
			if k == len(idx) {
				return
			}
			c := t[idx[k]]
			k++
			dst.Pix[off] = c.R
			dst.Pix[off+1] = c.G
			dst.Pix[off+2] = c.B
			dst.Pix[off+3] = c.A
			off += 4
		}
	}
}

// Private details.

var tables [3]Table

func init() {
	ramp(&tables[Grey], []stop{{0, 0, 0, 0}, {255, 255, 255, 255}})
	ramp(&tables[Iron], []stop{
		{0, 0, 0, 0},
		{32, 32, 0, 96},
		{80, 128, 0, 160},
		{128, 208, 48, 96},
		{176, 240, 128, 16},
		{224, 255, 208, 32},
		{255, 255, 255, 255},
	})
	ramp(&tables[Rainbow], []stop{
		{0, 0, 0, 255},
		{64, 0, 255, 255},
		{128, 0, 255, 0},
		{192, 255, 255, 0},
		{255, 255, 0, 0},
	})
}

func (p Palette) table() *Table {
	if int(p) >= len(tables) {
		return &tables[Grey]
	}
	return &tables[p]
}

// stop is a control point of a linear gradient.
type stop struct {
	pos     int
	r, g, b int
}

func ramp(t *Table, stops []stop) {
	for i := 1; i < len(stops); i++ {
		a, b := stops[i-1], stops[i]
		span := b.pos - a.pos
		for j := a.pos; j <= b.pos; j++ {
			f := j - a.pos
			t[j] = color.RGBA{
				R: uint8(a.r + (b.r-a.r)*f/span),
				G: uint8(a.g + (b.g-a.g)*f/span),
				B: uint8(a.b + (b.b-a.b)*f/span),
				A: 255,
			}
		}
	}
}
