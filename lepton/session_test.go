// Copyright 2017 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lepton

import (
	"errors"
	"testing"

	"github.com/maruel/go-thermal/lepton/cci"
	"periph.io/x/periph/conn/conntest"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/gpio/gpiotest"
	"periph.io/x/periph/conn/i2c/i2ctest"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spitest"
)

// modePort records the mode requested on Connect and fails it.
type modePort struct {
	mode spi.Mode
	n    int
}

func (m *modePort) String() string { return "modePort" }

func (m *modePort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	m.mode = mode
	m.n++
	return nil, errors.New("not connected")
}

func TestOpenSession_mode(t *testing.T) {
	mode0 := spi.Mode0
	data := []struct {
		opts     *SessionOpts
		expected spi.Mode
	}{
		{nil, spi.Mode3},
		{&SessionOpts{}, spi.Mode3},
		{&SessionOpts{Mode: &mode0}, spi.Mode0},
	}
	for i, line := range data {
		p := modePort{mode: spi.Mode2}
		_, err := OpenSession(&p, nil, line.opts)
		var te *TransportError
		if !errors.As(err, &te) || te.Op != "connect" {
			t.Fatal(i, err)
		}
		if p.n != 1 || p.mode != line.expected {
			t.Fatal(i, p.mode)
		}
	}
}

func TestOpenSession(t *testing.T) {
	i := i2ctest.Playback{Ops: initSequence()}
	p := testPacket(3, 0x1234)
	s := spitest.Playback{Playback: conntest.Playback{Ops: []conntest.IO{{R: p[:]}}}}
	d, err := OpenSession(&s, &i, &SessionOpts{Telemetry: true, TelemetryLocation: cci.Header})
	if err != nil {
		t.Fatal(err)
	}
	if st := d.State(); st != SessionConfigured {
		t.Fatal(st)
	}
	if d.Dev() == nil || d.Control() == nil {
		t.Fatal("expected control")
	}
	var got Packet
	if err := d.ReadPacket(&got); err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Fatal(got)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if st := d.State(); st != SessionClosed {
		t.Fatal(st)
	}
	var te *TransportError
	if err := d.ReadPacket(&got); !errors.As(err, &te) || !errors.Is(err, ErrSessionClosed) {
		t.Fatal(err)
	}
	if _, err := d.Control().GetModel(); err != ErrSessionClosed {
		t.Fatal(err)
	}
}

func TestOpenSession_noBus(t *testing.T) {
	s := spitest.Playback{}
	d, err := OpenSession(&s, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if d.Dev() != nil || d.Control() != nil {
		t.Fatal("unexpected control")
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestOpenSession_slow(t *testing.T) {
	s := spitest.Playback{}
	if _, err := OpenSession(&s, nil, &SessionOpts{Speed: physic.MegaHertz}); err == nil {
		t.Fatal("too slow")
	}
}

func TestOpenSession_cciFail(t *testing.T) {
	i := i2ctest.Playback{DontPanic: true}
	s := spitest.Playback{}
	if _, err := OpenSession(&s, &i, nil); err == nil {
		t.Fatal("no device")
	}
}

func TestReadPacket_fail(t *testing.T) {
	s := spitest.Playback{Playback: conntest.Playback{DontPanic: true}}
	d, err := OpenSession(&s, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	var p Packet
	var te *TransportError
	if err := d.ReadPacket(&p); !errors.As(err, &te) || te.Op != "read" {
		t.Fatal(err)
	}
}

func TestSessionControl_reboot(t *testing.T) {
	i := i2ctest.Playback{Ops: append(initSequence()[:6:6],
		i2ctest.IO{Addr: 42, W: []byte{0, 2}, R: []byte{0, 6}}, // waitIdle
		i2ctest.IO{Addr: 42, W: []byte{0, 6, 0, 0}},
		i2ctest.IO{Addr: 42, W: []byte{0, 4, 0x48, 0x42}},
	)}
	s := spitest.Playback{}
	d, err := OpenSession(&s, &i, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Control().Reboot(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSessionControl_resetPin(t *testing.T) {
	pin := &gpiotest.Pin{N: "RESET_L", L: gpio.High}
	s := spitest.Playback{}
	d, err := OpenSession(&s, nil, &SessionOpts{ResetPin: pin})
	if err != nil {
		t.Fatal(err)
	}
	c := d.Control()
	if c == nil {
		t.Fatal("expected control")
	}
	if err := c.RunFFC(); err != errNoControlPlane {
		t.Fatal(err)
	}
	if err := c.Reboot(); err != nil {
		t.Fatal(err)
	}
	if l := pin.Read(); l != gpio.High {
		t.Fatal(l)
	}
}

func TestSessionState_String(t *testing.T) {
	if s := SessionState(9).String(); s != "SessionState(9)" {
		t.Fatal(s)
	}
}

//

// initSequence is cci.New(), SetAGC(false) then SetTelemetry(true, Header).
func initSequence() []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: 42, W: []byte{0, 2}, R: []byte{0, 6}}, // waitIdle
		{Addr: 42, W: []byte{0, 2}, R: []byte{0, 6}}, // waitIdle
		{Addr: 42, W: []byte{0, 8, 0, 0, 0, 0}},      // SetAGC()
		{Addr: 42, W: []byte{0, 6, 0, 0x2}},          //
		{Addr: 42, W: []byte{0, 4, 1, 0x1}},          //
		{Addr: 42, W: []byte{0, 2}, R: []byte{0, 6}}, // waitIdle
		{Addr: 42, W: []byte{0, 2}, R: []byte{0, 6}}, // waitIdle
		{Addr: 42, W: []byte{0, 8, 0, 1, 0, 0}},      // SetTelemetry()
		{Addr: 42, W: []byte{0, 6, 0, 2}},            //
		{Addr: 42, W: []byte{0, 4, 2, 0x19}},         //
		{Addr: 42, W: []byte{0, 2}, R: []byte{0, 6}}, // waitIdle
		{Addr: 42, W: []byte{0, 2}, R: []byte{0, 6}}, // waitIdle
		{Addr: 42, W: []byte{0, 8, 0, 0, 0, 0}},      //
		{Addr: 42, W: []byte{0, 6, 0, 2}},            //
		{Addr: 42, W: []byte{0, 4, 2, 0x1d}},         //
		{Addr: 42, W: []byte{0, 2}, R: []byte{0, 6}}, // waitIdle
	}
}
