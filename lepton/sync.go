// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lepton

import (
	"fmt"
	"time"
)

// ResetCounters tracks the recovery state of the packet stream.
type ResetCounters struct {
	// PerSegment counts discard packets since the last valid packet 0.
	PerSegment int
	// PerFrame counts abandoned frames since the last complete frame.
	PerFrame int
	// RebootCount counts escalations since the last reboot.
	RebootCount int
}

// Verdict is what happened to a packet.
type Verdict uint8

// Valid values for Verdict.
const (
	// Discard is a packet flagged as not ready by the sensor.
	Discard Verdict = iota
	// Accept is the next expected packet.
	Accept
	// Desync is an unexpected packet; the frame in progress is abandoned, or
	// was already abandoned and the packet is skipped until the next packet 0.
	Desync
	// Restart is an unexpected packet 0; it starts a new frame.
	Restart
)

func (v Verdict) String() string {
	switch v {
	case Discard:
		return "Discard"
	case Accept:
		return "Accept"
	case Desync:
		return "Desync"
	case Restart:
		return "Restart"
	default:
		return fmt.Sprintf("Verdict(%d)", uint8(v))
	}
}

// step is the outcome of one packet.
type step struct {
	Verdict   Verdict
	Seq       int
	BadCRC    bool
	Abandoned bool // The packet ended a frame in progress.
	Paused    bool
	Escalated bool
	Rebooted  bool
}

// syncMachine gates packets into the assembler.
type syncMachine struct {
	cfg      *Config
	reboot   func() error
	sleep    func(time.Duration)
	c        ResetCounters
	expected int
	desynced bool // Waiting for packet 0; the abandoned frame was counted.
}

func newSyncMachine(cfg *Config, reboot func() error) *syncMachine {
	return &syncMachine{cfg: cfg, reboot: reboot, sleep: time.Sleep}
}

// next classifies p and updates the counters.
//
// The only error is a *DesyncError when a required reboot failed.
func (s *syncMachine) next(p *Packet) (step, error) {
	if p.IsDiscard() {
		st := step{Verdict: Discard, Seq: -1}
		s.c.PerSegment++
		// Pause each time another threshold worth of discards is crossed.
		if n := s.cfg.SegmentResetThreshold + 1; s.c.PerSegment%n == 0 {
			s.sleep(s.cfg.ResetInterval)
			st.Paused = true
		}
		return st, nil
	}
	st := step{Seq: p.Seq()}
	st.BadCRC = s.cfg.VerifyCRC && !p.ValidCRC()
	if st.Seq == s.expected && !st.BadCRC {
		st.Verdict = Accept
		if st.Seq == 0 {
			s.c.PerSegment = 0
			s.desynced = false
		}
		if s.expected++; s.expected == PacketsPerFrame {
			s.expected = 0
			s.c.PerFrame = 0
		}
		return st, nil
	}

	st.Verdict = Desync
	if s.desynced {
		// The rest of an abandoned frame.
		return st, nil
	}
	st.Abandoned = true
	s.expected = 0
	s.desynced = true
	s.c.PerFrame++
	if s.c.PerFrame > s.cfg.FrameResetThreshold {
		st.Escalated = true
		var err error
		if st.Rebooted, err = s.escalate(); err != nil {
			return st, err
		}
	}
	if st.Seq == 0 && !st.BadCRC && !st.Rebooted {
		// This packet starts the next frame.
		st.Verdict = Restart
		s.c.PerSegment = 0
		s.expected = 1
		s.desynced = false
	}
	return st, nil
}

// reset abandons the frame in progress without counting it.
func (s *syncMachine) reset() {
	s.expected = 0
	s.desynced = true
}

func (s *syncMachine) escalate() (bool, error) {
	s.c.RebootCount++
	if s.c.RebootCount <= s.cfg.RebootThreshold {
		s.c.PerFrame = 0
		return false, nil
	}
	err := errNoControlPlane
	if s.reboot != nil {
		err = s.reboot()
	}
	if err != nil {
		return false, &DesyncError{Counters: s.c, Err: err}
	}
	s.sleep(s.cfg.RebootInterval)
	s.c = ResetCounters{}
	return true, nil
}
