// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lepton

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/maruel/go-thermal/lepton/cci"
	"periph.io/x/periph/conn/gpio"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
)

// SessionState is the lifecycle of a Session.
type SessionState uint8

// Valid values for SessionState.
const (
	SessionOpened SessionState = iota
	SessionConfigured
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionOpened:
		return "Opened"
	case SessionConfigured:
		return "Configured"
	case SessionClosed:
		return "Closed"
	default:
		return fmt.Sprintf("SessionState(%d)", uint8(s))
	}
}

// SessionOpts is the bus configuration.
type SessionOpts struct {
	// Speed of the SPI port. Defaults to 7.9MHz.
	//
	// Max rate supported by FLIR Lepton is 25MHz. Minimum usable rate is ~4MHz
	// to sustain framerate. Sadly the Lepton will unconditionally send 27fps,
	// even if the effective rate is 9fps. Lower rate is less likely to get
	// electromagnetic interference and reduces unnecessary CPU consumption by
	// reducing the number of dummy packets.
	Speed physic.Frequency
	// Mode of the SPI port. nil means spi.Mode3, the mode the Lepton uses.
	Mode *spi.Mode
	// Telemetry enables the telemetry lines at TelemetryLocation.
	Telemetry         bool
	TelemetryLocation cci.TelemetryLocation
	// ResetPin is the RESET_L line, if wired. It is pulsed when a reboot over
	// i²c fails.
	ResetPin gpio.PinOut
}

// Session owns the buses connected to a Lepton.
type Session struct {
	mu    sync.Mutex
	port  spi.Port
	bus   i2c.Bus
	conn  spi.Conn
	dev   *cci.Dev
	reset gpio.PinOut
	state SessionState
}

// OpenSession connects to the Lepton.
//
// bus may be nil if the i²c lines are not connected, in which case the control
// interface is not available. The Session owns port and bus: they are closed
// by Close, or right away on failure, if they implement io.Closer.
func OpenSession(port spi.Port, bus i2c.Bus, opts *SessionOpts) (*Session, error) {
	s := &Session{port: port, bus: bus}
	if opts == nil {
		opts = &SessionOpts{}
	}
	s.reset = opts.ResetPin
	if err := s.configure(opts); err != nil {
		s.Close()
		return nil, err
	}
	s.state = SessionConfigured
	return s, nil
}

func (s *Session) configure(opts *SessionOpts) error {
	speed := opts.Speed
	if speed == 0 {
		// spi_bcm2708 supports a limited number of frequencies so the actual value
		// will differ. See http://elinux.org/RPi_SPI.
		// Actual rate will be 7.8MHz or 15.6MHz.
		speed = 7900 * physic.KiloHertz
	}
	if speed < 3900*physic.KiloHertz {
		return errors.New("lepton: speed specified is too slow")
	}
	mode := spi.Mode3
	if opts.Mode != nil {
		mode = *opts.Mode
	}
	var err error
	if s.conn, err = s.port.Connect(speed, mode, 8); err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	if s.bus == nil {
		return nil
	}
	if s.dev, err = cci.New(s.bus); err != nil {
		return err
	}
	// Radiometric values are needed.
	if err := s.dev.SetAGC(false); err != nil {
		return err
	}
	if opts.Telemetry {
		if err := s.dev.SetTelemetry(true, opts.TelemetryLocation); err != nil {
			return err
		}
	}
	return nil
}

// String implements fmt.Stringer.
func (s *Session) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev != nil {
		return fmt.Sprintf("Session(%s, %s)", s.conn, s.dev)
	}
	return fmt.Sprintf("Session(%s)", s.conn)
}

// State returns the lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReadPacket implements PacketSource.
//
// Operation must complete within 32ms. Frames occur every 38.4ms. With SPI,
// write must occur as read is being done, dummy data is sent.
func (s *Session) ReadPacket(p *Packet) error {
	s.mu.Lock()
	c := s.conn
	closed := s.state == SessionClosed
	s.mu.Unlock()
	if closed {
		return &TransportError{Op: "read", Err: ErrSessionClosed}
	}
	if err := c.Tx(nil, p[:]); err != nil {
		return &TransportError{Op: "read", Err: err}
	}
	return nil
}

// Dev returns the CCI device, nil if the i²c bus is not connected.
func (s *Session) Dev() *cci.Dev {
	return s.dev
}

// Control returns the control interface, or nil when neither the i²c bus nor
// the reset pin is connected.
func (s *Session) Control() ControlPlane {
	if s.dev == nil && s.reset == nil {
		return nil
	}
	return &sessionControl{s: s}
}

// Close implements PacketSource. It is safe to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionClosed {
		return nil
	}
	s.state = SessionClosed
	var errs []error
	if c, ok := s.port.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, &TransportError{Op: "close", Err: err})
		}
	}
	if c, ok := s.bus.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("lepton: i2c close: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Private details.

// resetPulse is how long RESET_L is held low.
const resetPulse = time.Millisecond

// sessionControl implements ControlPlane and falls back to the reset line.
type sessionControl struct {
	s *Session
}

func (c *sessionControl) RunFFC() error {
	if err := c.check(); err != nil {
		return err
	}
	return c.s.dev.RunFFC()
}

func (c *sessionControl) SetShutterPos(p cci.ShutterPos) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.s.dev.SetShutterPos(p)
}

func (c *sessionControl) SetShutterMode(m cci.FFCShutterMode) error {
	if err := c.check(); err != nil {
		return err
	}
	return c.s.dev.SetShutterMode(m)
}

func (c *sessionControl) GetFPATemp() (physic.Temperature, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	return c.s.dev.GetFPATemp()
}

func (c *sessionControl) GetModel() (cci.Model, error) {
	if err := c.check(); err != nil {
		return cci.ModelUnknown, err
	}
	return c.s.dev.GetModel()
}

// Reboot tries the CCI command first, then the reset line.
func (c *sessionControl) Reboot() error {
	if c.s.State() == SessionClosed {
		return ErrSessionClosed
	}
	var err error
	if c.s.dev != nil {
		if err = c.s.dev.Reboot(); err == nil {
			return nil
		}
		Logf("lepton: cci reboot failed: %s", err)
	}
	if c.s.reset == nil {
		return err
	}
	if err := c.s.reset.Out(gpio.Low); err != nil {
		return err
	}
	time.Sleep(resetPulse)
	return c.s.reset.Out(gpio.High)
}

func (c *sessionControl) check() error {
	if c.s.State() == SessionClosed {
		return ErrSessionClosed
	}
	if c.s.dev == nil {
		return errNoControlPlane
	}
	return nil
}
