// Copyright 2017 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gray14

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMin(t *testing.T) {
	i := image.NewGray16(image.Rect(0, 0, 1, 1))
	if m := Min(i); m != 65535 {
		t.Fatal(m)
	}
	i = image.NewGray16(image.Rect(0, 0, 2, 2))
	i.SetGray16(0, 0, color.Gray16{Y: 300})
	i.SetGray16(1, 1, color.Gray16{Y: 200})
	if m := Min(i); m != 200 {
		t.Fatal(m)
	}
	if m := Max(i); m != 300 {
		t.Fatal(m)
	}
}

func TestNormalize(t *testing.T) {
	data := []struct {
		name     string
		n        Normalizer
		src      []uint16
		expected []uint8
		lo, hi   uint16
	}{
		{"flat", Normalizer{}, []uint16{8192, 8192, 8192}, []uint8{0, 0, 0}, 8192, 8192},
		{"full", Normalizer{}, []uint16{0, 16383, 8191}, []uint8{0, 255, 127}, 0, 16383},
		{"agc", Normalizer{}, []uint16{100, 200, 150}, []uint8{0, 255, 127}, 100, 200},
		{"fixed", Normalizer{Min: 100, Max: 200}, []uint16{50, 100, 150, 250}, []uint8{0, 0, 127, 255}, 100, 200},
		{"fixed_flat", Normalizer{Min: 200, Max: 200}, []uint16{50, 300}, []uint8{0, 0}, 200, 200},
		{"empty", Normalizer{}, nil, []uint8{}, 0, 0},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			dst := make([]uint8, len(line.src))
			lo, hi := line.n.Normalize(dst, line.src)
			if lo != line.lo || hi != line.hi {
				t.Fatalf("%d, %d", lo, hi)
			}
			if diff := cmp.Diff(line.expected, dst); diff != "" {
				t.Fatalf("(-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalize_short(t *testing.T) {
	var n Normalizer
	dst := make([]uint8, 2)
	// The 3rd sample is ignored, including for the scale.
	if lo, hi := n.Normalize(dst, []uint16{10, 20, 30000}); lo != 10 || hi != 20 {
		t.Fatal(lo, hi)
	}
	if dst[1] != 255 {
		t.Fatal(dst)
	}
}

func TestToGray16(t *testing.T) {
	img := ToGray16([]uint16{1, 2, 3}, image.Rect(0, 0, 2, 2))
	if v := img.Gray16At(0, 0).Y; v != 4 {
		t.Fatal(v)
	}
	if v := img.Gray16At(0, 1).Y; v != 12 {
		t.Fatal(v)
	}
	if v := img.Gray16At(1, 1).Y; v != 0 {
		t.Fatal(v)
	}
}
