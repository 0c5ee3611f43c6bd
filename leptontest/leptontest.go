// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package leptontest implements a fake Lepton and helpers to script the
// packet stream.
package leptontest

import (
	"encoding/binary"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/maruel/go-thermal/lepton"
	"github.com/maruel/go-thermal/lepton/cci"
	"periph.io/x/periph/conn/physic"
)

// ErrClosed is returned by ReadPacket after Close.
var ErrClosed = errors.New("leptontest: closed")

// MakePacket returns a packet with sequence seq, the samples starting at
// index 0 and a valid CRC.
func MakePacket(seq int, samples ...uint16) lepton.Packet {
	var p lepton.Packet
	binary.BigEndian.PutUint16(p[:], uint16(seq)&0x0FFF)
	for i, v := range samples {
		binary.BigEndian.PutUint16(p[4+2*i:], v)
	}
	binary.BigEndian.PutUint16(p[2:], crc(p[:]))
	return p
}

// DiscardPacket returns a packet flagged as discard.
func DiscardPacket() lepton.Packet {
	var p lepton.Packet
	p[0] = 0xF0
	return p
}

// Discards returns n discard packets.
func Discards(n int) []lepton.Packet {
	out := make([]lepton.Packet, n)
	for i := range out {
		out[i] = DiscardPacket()
	}
	return out
}

// MakeFrame returns the 60 packets of a frame. fill is called for each
// sequence number to return the samples of the packet.
func MakeFrame(fill func(seq int) []uint16) []lepton.Packet {
	out := make([]lepton.Packet, lepton.PacketsPerFrame)
	for i := range out {
		var s []uint16
		if fill != nil {
			s = fill(i)
		}
		out[i] = MakePacket(i, s...)
	}
	return out
}

// Script is a PacketSource that replays Packets.
//
// OnRead, if set, is called with the index of each scripted packet returned.
// Once exhausted, Done is called once, then Err is returned if set, otherwise
// discard packets are returned forever.
type Script struct {
	Packets []lepton.Packet
	OnRead  func(i int)
	Done    func()
	Err     error

	mu     sync.Mutex
	read   int
	closed bool
	done   bool
}

// ReadPacket implements lepton.PacketSource.
func (s *Script) ReadPacket(p *lepton.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &lepton.TransportError{Op: "read", Err: ErrClosed}
	}
	if s.read < len(s.Packets) {
		*p = s.Packets[s.read]
		if s.OnRead != nil {
			s.OnRead(s.read)
		}
		s.read++
		return nil
	}
	if !s.done {
		s.done = true
		if s.Done != nil {
			s.Done()
		}
	}
	if s.Err != nil {
		return s.Err
	}
	*p = DiscardPacket()
	return nil
}

// Read returns the number of scripted packets read so far.
func (s *Script) Read() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read
}

// Close implements lepton.PacketSource.
func (s *Script) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed returns true once Close was called.
func (s *Script) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Control is a fake lepton.ControlPlane that records the calls.
type Control struct {
	Model     cci.Model
	Temp      physic.Temperature
	Err       error // Returned by all calls but Reboot.
	RebootErr error

	mu    sync.Mutex
	calls []string
}

// Calls returns the calls done so far.
func (c *Control) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// Count returns how many times name was called.
func (c *Control) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		if v == name {
			n++
		}
	}
	return n
}

// RunFFC implements lepton.ControlPlane.
func (c *Control) RunFFC() error {
	return c.record("RunFFC", c.Err)
}

// SetShutterPos implements lepton.ControlPlane.
func (c *Control) SetShutterPos(p cci.ShutterPos) error {
	return c.record("SetShutterPos("+p.String()+")", c.Err)
}

// SetShutterMode implements lepton.ControlPlane.
func (c *Control) SetShutterMode(m cci.FFCShutterMode) error {
	return c.record("SetShutterMode("+m.String()+")", c.Err)
}

// GetFPATemp implements lepton.ControlPlane.
func (c *Control) GetFPATemp() (physic.Temperature, error) {
	return c.Temp, c.record("GetFPATemp", c.Err)
}

// GetModel implements lepton.ControlPlane.
func (c *Control) GetModel() (cci.Model, error) {
	return c.Model, c.record("GetModel", c.Err)
}

// Reboot implements lepton.ControlPlane.
func (c *Control) Reboot() error {
	return c.record("Reboot", c.RebootErr)
}

func (c *Control) record(name string, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
	return err
}

// Camera is a fake Lepton 2 generating slowly moving blobs at ~9Hz.
//
// It implements both lepton.PacketSource and lepton.ControlPlane.
type Camera struct {
	Control

	mu      sync.Mutex
	noise   *noise
	pending []lepton.Packet
	next    time.Time
	closed  bool
}

// New returns a fake camera.
func New() *Camera {
	return &Camera{
		Control: Control{Model: cci.ModelLepton2, Temp: 30*physic.Celsius + physic.ZeroCelsius},
		noise:   makeNoise(),
	}
}

// ReadPacket implements lepton.PacketSource.
//
// It blocks until the next frame is due, like a real sensor.
func (c *Camera) ReadPacket(p *lepton.Packet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &lepton.TransportError{Op: "read", Err: ErrClosed}
	}
	if len(c.pending) == 0 {
		// ~9hz
		if d := time.Until(c.next); d > 0 {
			time.Sleep(d)
		}
		c.next = time.Now().Add(111 * time.Millisecond)
		c.noise.update()
		c.pending = append(Discards(3), c.noise.render()...)
	}
	*p = c.pending[0]
	c.pending = c.pending[1:]
	return nil
}

// Reboot implements lepton.ControlPlane.
func (c *Camera) Reboot() error {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
	return c.Control.Reboot()
}

// Close implements lepton.PacketSource.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

//

type vector struct {
	intensity float64
	x         float64
	y         float64
}

// noise is cheezy but gets us going for testing without a device.
type noise struct {
	rand    *rand.Rand
	vectors []vector
}

func makeNoise() *noise {
	n := &noise{rand: rand.New(rand.NewSource(0))}
	n.vectors = make([]vector, 10)
	for i := range n.vectors {
		n.vectors[i].intensity = n.rand.NormFloat64() * 10
		n.vectors[i].x = n.rand.NormFloat64()*14 + 40
		n.vectors[i].y = n.rand.NormFloat64()*10 + 30
	}
	return n
}

func (n *noise) update() {
	for i := range n.vectors {
		n.vectors[i].intensity += n.rand.NormFloat64() * 0.1
		n.vectors[i].x += n.rand.NormFloat64() * 0.1
		n.vectors[i].y += n.rand.NormFloat64() * 0.1
	}
}

// render returns one frame, one packet per line.
func (n *noise) render() []lepton.Packet {
	const dynamicRange = 128
	var line [lepton.PacketSamples]uint16
	return MakeFrame(func(y int) []uint16 {
		fy := float64(y)
		for x := range line {
			fx := float64(x)
			value := float64(8192)
			for _, vect := range n.vectors {
				distance := ((vect.x-fx)*(vect.x-fx) + (vect.y-fy)*(vect.y-fy))
				value += vect.intensity / distance
			}
			if value >= float64(8192+dynamicRange) {
				value = float64(8192 + dynamicRange)
			}
			if value < float64(8192-dynamicRange) {
				value = float64(8192 - dynamicRange)
			}
			line[x] = uint16(value)
		}
		return line[:]
	})
}

// crc is the VoSPI checksum: CCITT CRC16 over the packet with the flag nibble
// and the CRC field zeroed.
func crc(p []byte) uint16 {
	var c uint16
	for i, v := range p {
		switch {
		case i == 0:
			v &= 0x0F
		case i == 2 || i == 3:
			v = 0
		}
		c ^= uint16(v) << 8
		for j := 0; j < 8; j++ {
			if c&0x8000 != 0 {
				c = c<<1 ^ 0x1021
			} else {
				c <<= 1
			}
		}
	}
	return c
}
