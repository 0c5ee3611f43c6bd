// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"testing"

	"github.com/maruel/go-thermal/lepton/cci"
	"periph.io/x/periph/conn/i2c/i2ctest"
)

func TestQuery_fail(t *testing.T) {
	b := i2ctest.Playback{
		Ops:       []i2ctest.IO{{Addr: cci.Addr, W: []byte{0, 2}, R: []byte{0, 6}}},
		DontPanic: true,
	}
	dev, err := cci.New(&b)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := query(&buf, dev); err == nil {
		t.Fatal("expected error")
	}
	if buf.Len() != 0 {
		t.Fatal(buf.String())
	}
}
