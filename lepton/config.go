// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lepton

import (
	"errors"
	"fmt"
	"time"

	"github.com/maruel/go-thermal/palette"
)

// Config tunes the acquisition loop.
type Config struct {
	// SegmentResetThreshold is the number of discard packets tolerated before
	// pausing ResetInterval. The pause repeats every SegmentResetThreshold+1
	// discard packets until a valid packet 0.
	SegmentResetThreshold int
	// FrameResetThreshold is the number of abandoned frames before escalating.
	FrameResetThreshold int
	// RebootThreshold is the number of escalations before the sensor is
	// rebooted.
	RebootThreshold int
	ResetInterval   time.Duration
	RebootInterval  time.Duration

	// TelemetryRow is the packet index carrying telemetry, -1 when disabled.
	TelemetryRow int
	// VerifyCRC checks the CRC of every packet; a mismatch is a desync.
	VerifyCRC bool

	Palette palette.Palette
	// ScaleMin and ScaleMax select a fixed scale. Both zero is AGC.
	ScaleMin uint16
	ScaleMax uint16

	// StatusInterval throttles the temperature status text.
	StatusInterval time.Duration
	CommandQueue   int
	EventQueue     int
}

// DefaultConfig returns the recommended values.
func DefaultConfig() *Config {
	return &Config{
		SegmentResetThreshold: 750,
		FrameResetThreshold:   30,
		RebootThreshold:       2,
		ResetInterval:         time.Millisecond,
		RebootInterval:        750 * time.Millisecond,
		TelemetryRow:          -1,
		Palette:               palette.Grey,
		StatusInterval:        time.Second,
		CommandQueue:          16,
		EventQueue:            4,
	}
}

// Validate returns an error if a value is out of range.
func (c *Config) Validate() error {
	var errs []error
	if c.SegmentResetThreshold < 0 || c.FrameResetThreshold < 0 || c.RebootThreshold < 0 {
		errs = append(errs, errors.New("thresholds must be >= 0"))
	}
	if c.ResetInterval < 0 || c.RebootInterval < 0 || c.StatusInterval < 0 {
		errs = append(errs, errors.New("intervals must be >= 0"))
	}
	if c.TelemetryRow < -1 || c.TelemetryRow >= PacketsPerFrame {
		errs = append(errs, fmt.Errorf("telemetry row %d out of range [-1, %d)", c.TelemetryRow, PacketsPerFrame))
	}
	if c.ScaleMax == 0 && c.ScaleMin != 0 {
		errs = append(errs, fmt.Errorf("scale min %d requires a scale max", c.ScaleMin))
	}
	if c.ScaleMax != 0 && c.ScaleMax <= c.ScaleMin {
		errs = append(errs, fmt.Errorf("scale max %d must be above min %d", c.ScaleMax, c.ScaleMin))
	}
	if c.CommandQueue < 1 || c.EventQueue < 1 {
		errs = append(errs, errors.New("queues must hold at least one item"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("lepton: invalid config: %w", err)
	}
	return nil
}
