// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/maruel/go-thermal/gray14"
	"github.com/maruel/go-thermal/lepton"
)

// saveSnapshot writes the rendered image and the 16 bits raw samples of a
// frame in dir. It returns the path of the rendered image.
func saveSnapshot(dir string, now time.Time, ev lepton.Event) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	base := filepath.Join(dir, "lepton-"+now.UTC().Format("20060102-150405")+"-"+uuid.NewString()[:8])
	if err := writePNG(base+".png", ev.Image); err != nil {
		return "", err
	}
	raw := gray14.ToGray16(ev.Geometry.Samples(nil, ev.Frame), ev.Geometry.Bounds())
	if err := writePNG(base+"-raw.png", raw); err != nil {
		return "", err
	}
	return base + ".png", nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
