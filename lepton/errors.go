// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lepton

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by Loop.Send when commands are not drained fast
	// enough.
	ErrQueueFull = errors.New("lepton: command queue full")
	// ErrAlreadyRunning is returned by Loop.Run when called more than once.
	ErrAlreadyRunning = errors.New("lepton: loop already started")
	// ErrSessionClosed is returned when using a closed Session.
	ErrSessionClosed = errors.New("lepton: session closed")

	errNoControlPlane = errors.New("no control interface")
)

// TransportError is a bus failure. It ends the acquisition session.
type TransportError struct {
	Op  string
	Err error
}

func (t *TransportError) Error() string {
	return fmt.Sprintf("lepton: spi %s: %s", t.Op, t.Err)
}

func (t *TransportError) Unwrap() error {
	return t.Err
}

// ControlError is a failed call into the control interface. It is reported
// but does not stop the acquisition.
type ControlError struct {
	Op  string
	Err error
}

func (c *ControlError) Error() string {
	return fmt.Sprintf("lepton: %s: %s", c.Op, c.Err)
}

func (c *ControlError) Unwrap() error {
	return c.Err
}

// DesyncError is returned when the recovery from a desynchronization required
// a reboot and the reboot failed.
type DesyncError struct {
	Counters ResetCounters
	Err      error
}

func (d *DesyncError) Error() string {
	return fmt.Sprintf("lepton: reboot after %d resync escalations failed: %s", d.Counters.RebootCount, d.Err)
}

func (d *DesyncError) Unwrap() error {
	return d.Err
}
