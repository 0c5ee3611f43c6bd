// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package leptontest

import (
	"errors"
	"testing"

	"github.com/maruel/go-thermal/lepton"
	"github.com/maruel/go-thermal/lepton/cci"
)

func TestMakePacket(t *testing.T) {
	p := MakePacket(59, 1, 2, 3)
	if p.Seq() != 59 || p.IsDiscard() {
		t.Fatal(p.Seq())
	}
	if !p.ValidCRC() {
		t.Fatal("bad CRC")
	}
	if p.Sample(0) != 1 || p.Sample(2) != 3 || p.Sample(3) != 0 {
		t.Fatal(p.Sample(0))
	}
	if d := DiscardPacket(); !d.IsDiscard() {
		t.Fatal("not discard")
	}
}

func TestScript(t *testing.T) {
	done := 0
	s := Script{Packets: MakeFrame(nil)[:2], Done: func() { done++ }}
	var p lepton.Packet
	for i := 0; i < 4; i++ {
		if err := s.ReadPacket(&p); err != nil {
			t.Fatal(err)
		}
	}
	if !p.IsDiscard() || done != 1 || s.Read() != 2 {
		t.Fatal(done, s.Read())
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	var te *lepton.TransportError
	if err := s.ReadPacket(&p); !errors.As(err, &te) {
		t.Fatal(err)
	}
}

func TestCamera(t *testing.T) {
	c := New()
	var p lepton.Packet
	for i := 0; i < 3; i++ {
		if err := c.ReadPacket(&p); err != nil {
			t.Fatal(err)
		}
		if !p.IsDiscard() {
			t.Fatal(i)
		}
	}
	for i := 0; i < lepton.PacketsPerFrame; i++ {
		if err := c.ReadPacket(&p); err != nil {
			t.Fatal(err)
		}
		if p.Seq() != i || !p.ValidCRC() {
			t.Fatal(i, p.Seq())
		}
		if v := p.Sample(40); v < 8192-128 || v > 8192+128 {
			t.Fatal(v)
		}
	}
	if m, err := c.GetModel(); m != cci.ModelLepton2 || err != nil {
		t.Fatal(m, err)
	}
	if err := c.Reboot(); err != nil {
		t.Fatal(err)
	}
	if c.Count("Reboot") != 1 {
		t.Fatal(c.Calls())
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.ReadPacket(&p); err == nil {
		t.Fatal("closed")
	}
}
