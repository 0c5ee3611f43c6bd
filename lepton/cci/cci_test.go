// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package cci

import (
	"image"
	"testing"
	"time"

	"periph.io/x/periph/conn/i2c/i2ctest"
	"periph.io/x/periph/conn/physic"
)

var idle = i2ctest.IO{Addr: Addr, W: []byte{0, 2}, R: []byte{0, 6}} // waitIdle

func TestNew(t *testing.T) {
	b := i2ctest.Playback{Ops: []i2ctest.IO{idle}}
	if _, err := New(&b); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_fail(t *testing.T) {
	b := i2ctest.Playback{DontPanic: true}
	if _, err := New(&b); err == nil {
		t.Fatal("no device")
	}
}

func TestGetFPATemp(t *testing.T) {
	b := i2ctest.Playback{Ops: []i2ctest.IO{
		idle,
		idle,
		{Addr: Addr, W: []byte{0, 6, 0, 1}},
		{Addr: Addr, W: []byte{0, 4, 0x02, 0x14}},
		idle,
		{Addr: Addr, W: []byte{0, 8}, R: []byte{0x75, 0x30}},
	}}
	d, err := New(&b)
	if err != nil {
		t.Fatal(err)
	}
	temp, err := d.GetFPATemp()
	if err != nil {
		t.Fatal(err)
	}
	if temp != 300*physic.Kelvin {
		t.Fatal(temp)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRunFFC(t *testing.T) {
	b := i2ctest.Playback{Ops: []i2ctest.IO{
		idle,
		idle,
		{Addr: Addr, W: []byte{0, 6, 0, 0}},
		{Addr: Addr, W: []byte{0, 4, 0x02, 0x42}},
		idle,
	}}
	d, err := New(&b)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.RunFFC(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRunFFC_error(t *testing.T) {
	b := i2ctest.Playback{Ops: []i2ctest.IO{
		idle,
		idle,
		{Addr: Addr, W: []byte{0, 6, 0, 0}},
		{Addr: Addr, W: []byte{0, 4, 0x02, 0x42}},
		{Addr: Addr, W: []byte{0, 2}, R: []byte{0xFD, 6}},
	}}
	d, err := New(&b)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.RunFFC(); err == nil {
		t.Fatal("expected error code")
	}
}

func TestSetShutterPos(t *testing.T) {
	b := i2ctest.Playback{Ops: []i2ctest.IO{
		idle,
		idle,
		{Addr: Addr, W: []byte{0, 8, 0, 2, 0, 0}},
		{Addr: Addr, W: []byte{0, 6, 0, 2}},
		{Addr: Addr, W: []byte{0, 4, 0x02, 0x39}},
		idle,
	}}
	d, err := New(&b)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetShutterPos(ShutterPosClosed); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSetShutterMode_unchanged(t *testing.T) {
	// FFCMode is 16 words; the first word pair is the shutter mode.
	r := make([]byte, 32)
	b := i2ctest.Playback{Ops: []i2ctest.IO{
		idle,
		idle,
		{Addr: Addr, W: []byte{0, 6, 0, 16}},
		{Addr: Addr, W: []byte{0, 4, 0x02, 0x3C}},
		idle,
		{Addr: Addr, W: []byte{0, 8}, R: r},
	}}
	d, err := New(&b)
	if err != nil {
		t.Fatal(err)
	}
	// Already manual, nothing is written.
	if err := d.SetShutterMode(FFCShutterModeManual); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestGetModel(t *testing.T) {
	data := []struct {
		r     []byte
		model Model
	}{
		{[]byte{0, 0, 0, 0, 0, 79, 0, 59}, ModelLepton2},
		{[]byte{0, 0, 0, 0, 0, 159, 0, 119}, ModelLepton3},
		{[]byte{0, 0, 0, 0, 0, 10, 0, 10}, ModelUnknown},
	}
	for i, line := range data {
		b := i2ctest.Playback{Ops: []i2ctest.IO{
			idle,
			idle,
			{Addr: Addr, W: []byte{0, 6, 0, 4}},
			{Addr: Addr, W: []byte{0, 4, 0x02, 0x30}},
			idle,
			{Addr: Addr, W: []byte{0, 8}, R: line.r},
		}}
		d, err := New(&b)
		if err != nil {
			t.Fatal(err)
		}
		m, err := d.GetModel()
		if err != nil {
			t.Fatal(err)
		}
		if m != line.model {
			t.Fatalf("#%d: %s != %s", i, m, line.model)
		}
	}
}

func TestGetSceneROI(t *testing.T) {
	b := i2ctest.Playback{Ops: []i2ctest.IO{
		idle,
		idle,
		{Addr: Addr, W: []byte{0, 6, 0, 4}},
		{Addr: Addr, W: []byte{0, 4, 0x02, 0x30}},
		idle,
		{Addr: Addr, W: []byte{0, 8}, R: []byte{0, 0, 0, 0, 0, 79, 0, 59}},
	}}
	d, err := New(&b)
	if err != nil {
		t.Fatal(err)
	}
	r, err := d.GetSceneROI()
	if err != nil {
		t.Fatal(err)
	}
	if r != image.Rect(0, 0, 80, 60) {
		t.Fatal(r)
	}
}

func TestReboot(t *testing.T) {
	b := i2ctest.Playback{Ops: []i2ctest.IO{
		idle,
		idle,
		{Addr: Addr, W: []byte{0, 6, 0, 0}},
		{Addr: Addr, W: []byte{0, 4, 0x48, 0x42}},
	}}
	d, err := New(&b)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Reboot(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestGetUptime(t *testing.T) {
	b := i2ctest.Playback{Ops: []i2ctest.IO{
		idle,
		idle,
		{Addr: Addr, W: []byte{0, 6, 0, 2}},
		{Addr: Addr, W: []byte{0, 4, 0x02, 0x0C}},
		idle,
		// 2000ms in Big16: low word first.
		{Addr: Addr, W: []byte{0, 8}, R: []byte{0x07, 0xD0, 0, 0}},
	}}
	d, err := New(&b)
	if err != nil {
		t.Fatal(err)
	}
	u, err := d.GetUptime()
	if err != nil {
		t.Fatal(err)
	}
	if u != 2*time.Second {
		t.Fatal(u)
	}
}

func TestStrings(t *testing.T) {
	data := []struct {
		s        interface{ String() string }
		expected string
	}{
		{SystemReady, "Ready"},
		{CameraStatus(9), "CameraStatus(9)"},
		{FFCShutterModeAuto, "Auto"},
		{ShutterPosClosed, "Closed"},
		{ShutterPosUnknown, "Unknown"},
		{ModelLepton3, "Lepton 3"},
		{ModelUnknown, "Lepton (unknown model)"},
	}
	for _, line := range data {
		if s := line.s.String(); s != line.expected {
			t.Fatalf("%q != %q", s, line.expected)
		}
	}
}
