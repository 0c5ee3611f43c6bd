// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lepton

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"sync/atomic"
	"time"

	"github.com/maruel/go-thermal/gray14"
	"github.com/maruel/go-thermal/lepton/cci"
	"github.com/maruel/go-thermal/palette"
	"periph.io/x/periph/conn/physic"
)

// PacketSource reads VoSPI packets.
type PacketSource interface {
	io.Closer
	// ReadPacket blocks until exactly one packet is read. Bus failures are
	// returned as *TransportError.
	ReadPacket(p *Packet) error
}

// ControlPlane is the subset of the CCI used by the Loop.
//
// *cci.Dev implements it.
type ControlPlane interface {
	RunFFC() error
	SetShutterPos(p cci.ShutterPos) error
	SetShutterMode(m cci.FFCShutterMode) error
	GetFPATemp() (physic.Temperature, error)
	GetModel() (cci.Model, error)
	Reboot() error
}

// State is the lifecycle of a Loop.
type State int32

// Valid values for State.
const (
	Idle State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Command is a request applied by the Loop between two frames.
type Command struct {
	kind    commandKind
	palette palette.Palette
	shutter cci.ShutterPos
	mode    cci.FFCShutterMode
}

// SetPalette changes the palette starting with the next frame.
func SetPalette(p palette.Palette) Command {
	return Command{kind: cmdPalette, palette: p}
}

// TriggerFFC runs a flat field correction.
func TriggerFFC() Command {
	return Command{kind: cmdFFC}
}

// Snapshot requests an EventSnapshot of the last frame.
func Snapshot() Command {
	return Command{kind: cmdSnapshot}
}

// SetShutter moves the shutter.
func SetShutter(p cci.ShutterPos) Command {
	return Command{kind: cmdShutter, shutter: p}
}

// SetShutterMode selects how the shutter is driven during FFC.
func SetShutterMode(m cci.FFCShutterMode) Command {
	return Command{kind: cmdShutterMode, mode: m}
}

func (c Command) String() string {
	switch c.kind {
	case cmdPalette:
		return "SetPalette(" + c.palette.String() + ")"
	case cmdFFC:
		return "TriggerFFC"
	case cmdSnapshot:
		return "Snapshot"
	case cmdShutter:
		return "SetShutter(" + c.shutter.String() + ")"
	case cmdShutterMode:
		return "SetShutterMode(" + c.mode.String() + ")"
	default:
		return fmt.Sprintf("Command(%d)", c.kind)
	}
}

// EventKind is the type of an Event.
type EventKind uint8

// Valid values for EventKind.
const (
	// EventFrame is sent for each completed frame.
	EventFrame EventKind = iota
	// EventStatus carries a status text.
	EventStatus
	// EventSnapshot answers a Snapshot command with the last frame.
	EventSnapshot
)

func (e EventKind) String() string {
	switch e {
	case EventFrame:
		return "Frame"
	case EventStatus:
		return "Status"
	case EventSnapshot:
		return "Snapshot"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(e))
	}
}

// Event is published by the Loop.
//
// Image and Frame are never modified after being published.
type Event struct {
	Kind     EventKind
	Image    *image.RGBA
	Frame    *Frame
	Geometry Geometry
	Palette  palette.Palette
	Min      uint16 // Scale used to render Image.
	Max      uint16
	// SceneMin and SceneMax are the coldest and hottest image samples.
	SceneMin physic.Temperature
	SceneMax physic.Temperature
	Status   string
	Err      error // Set on EventStatus caused by a failure.
	Stats    Stats
}

// Stats is the acquisition statistics.
type Stats struct {
	GoodFrames    int
	GoodLines     int
	DiscardLines  int
	BadSyncLines  int
	Resyncs       int // Abandoned frames.
	CRCFails      int
	SegmentPauses int
	Escalations   int
	Reboots       int
	TransferFails int
	ControlFails  int
	DroppedEvents int
}

// Loop reads packets, assembles frames and renders them.
//
// All the state is owned by the goroutine calling Run. Other goroutines
// interact only via Send and Events.
type Loop struct {
	src    PacketSource
	cp     ControlPlane
	cfg    Config
	cmds   chan Command
	events chan Event
	state  int32

	sync      *syncMachine
	asm       *assembler
	geom      Geometry
	norm      gray14.Normalizer
	pal       palette.Palette
	stats     Stats
	last      Event
	resyncing bool
	samples   []uint16
	idx       []uint8
	nextTemp  time.Time
	now       func() time.Time
}

// NewLoop returns a Loop reading from src.
//
// cp may be nil, in which case commands needing the control interface fail
// and a required reboot is returned as *DesyncError. cfg may be nil to use
// DefaultConfig().
func NewLoop(src PacketSource, cp ControlPlane, cfg *Config) (*Loop, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	l := &Loop{
		src:    src,
		cp:     cp,
		cfg:    *cfg,
		cmds:   make(chan Command, cfg.CommandQueue),
		events: make(chan Event, cfg.EventQueue),
		asm:    newAssembler(cfg.TelemetryRow),
		norm:   gray14.Normalizer{Min: cfg.ScaleMin, Max: cfg.ScaleMax},
		pal:    cfg.Palette,
		now:    time.Now,
	}
	var reboot func() error
	if cp != nil {
		reboot = cp.Reboot
	}
	l.sync = newSyncMachine(&l.cfg, reboot)
	return l, nil
}

// Send queues a command. It never blocks; it returns ErrQueueFull when the
// queue is full.
func (l *Loop) Send(c Command) error {
	select {
	case l.cmds <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Events returns the channel of published events. It is closed when Run
// returns.
//
// Events are dropped when the channel is full.
func (l *Loop) Events() <-chan Event {
	return l.events
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(atomic.LoadInt32(&l.state))
}

// Run acquires frames until ctx is canceled or the transport fails.
//
// It returns nil on cancellation. The PacketSource is closed upon return. A
// partial frame is never published.
func (l *Loop) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&l.state, int32(Idle), int32(Running)) {
		return ErrAlreadyRunning
	}
	defer close(l.events)
	l.start()
	err := l.run(ctx)
	atomic.StoreInt32(&l.state, int32(Stopping))
	if err2 := l.src.Close(); err2 != nil && err == nil {
		err = &TransportError{Op: "close", Err: err2}
	}
	atomic.StoreInt32(&l.state, int32(Stopped))
	return err
}

func (l *Loop) run(ctx context.Context) error {
	var p Packet
	for ctx.Err() == nil {
		if err := l.src.ReadPacket(&p); err != nil {
			l.stats.TransferFails++
			var t *TransportError
			if !errors.As(err, &t) {
				err = &TransportError{Op: "read", Err: err}
			}
			return err
		}
		if err := l.process(&p); err != nil {
			return err
		}
	}
	return nil
}

// start detects the geometry.
func (l *Loop) start() {
	m := cci.ModelUnknown
	if l.cp != nil {
		var err error
		if m, err = l.cp.GetModel(); err != nil {
			l.controlFailed("get model", err)
		}
	}
	l.geom = NewGeometry(m, l.cfg.TelemetryRow)
	n := l.geom.Bounds().Dx() * l.geom.Bounds().Dy()
	l.samples = make([]uint16, 0, n)
	l.idx = make([]uint8, n)
	l.status(l.geom.String(), nil)
}

// process runs one packet through the state machine and the assembler.
func (l *Loop) process(p *Packet) error {
	st, err := l.sync.next(p)
	if st.Paused {
		l.stats.SegmentPauses++
	}
	if st.BadCRC {
		l.stats.CRCFails++
	}
	if st.Abandoned {
		l.stats.Resyncs++
	}
	if st.Escalated {
		l.stats.Escalations++
	}
	if st.Rebooted {
		l.stats.Reboots++
		l.status("rebooting sensor", nil)
	}
	if err != nil {
		return err
	}
	switch st.Verdict {
	case Discard:
		l.stats.DiscardLines++
	case Accept:
		l.stats.GoodLines++
		l.accept(p)
	case Desync, Restart:
		l.stats.BadSyncLines++
		l.asm.reset()
		if !l.resyncing {
			l.resyncing = true
			l.status("resyncing", nil)
		}
		if st.Verdict == Restart {
			l.accept(p)
		}
	}
	return nil
}

func (l *Loop) accept(p *Packet) {
	f, err := l.asm.accept(p)
	if err != nil {
		// The assembler and the state machine disagree.
		Logf("lepton: %s: seq %d", err, p.Seq())
		l.asm.reset()
		l.sync.reset()
		return
	}
	if f != nil {
		l.frameDone(f)
	}
}

// frameDone renders and publishes f, then handles the queued commands.
func (l *Loop) frameDone(f *Frame) {
	l.resyncing = false
	l.stats.GoodFrames++
	l.samples = l.geom.Samples(l.samples[:0], f)
	lo, hi := l.norm.Normalize(l.idx, l.samples)
	img := image.NewRGBA(l.geom.Bounds())
	l.pal.Map(img, l.idx[:len(l.samples)])
	slo, shi := gray14.Range(l.samples)
	l.last = Event{
		Kind:     EventFrame,
		Image:    img,
		Frame:    f,
		Geometry: l.geom,
		Palette:  l.pal,
		Min:      lo,
		Max:      hi,
		SceneMin: RawToTemperature(slo),
		SceneMax: RawToTemperature(shi),
	}
	l.publish(l.last)
	l.updateTemp(&l.last)
	l.drain()
}

func (l *Loop) updateTemp(ev *Event) {
	now := l.now()
	if now.Before(l.nextTemp) {
		return
	}
	l.nextTemp = now.Add(l.cfg.StatusInterval)
	t := ev.Frame.Metadata.Temp
	if !ev.Frame.HasTelemetry {
		if l.cp == nil {
			return
		}
		var err error
		if t, err = l.cp.GetFPATemp(); err != nil {
			l.controlFailed("get fpa temperature", err)
			return
		}
	}
	l.status(fmt.Sprintf("FPA %.2f°C, scene %.2f°C to %.2f°C", Celsius(t), Celsius(ev.SceneMin), Celsius(ev.SceneMax)), nil)
}

// drain applies all the queued commands.
func (l *Loop) drain() {
	for {
		select {
		case c := <-l.cmds:
			l.apply(c)
		default:
			return
		}
	}
}

func (l *Loop) apply(c Command) {
	var err error
	switch c.kind {
	case cmdPalette:
		l.pal = c.palette
		return
	case cmdSnapshot:
		ev := l.last
		ev.Kind = EventSnapshot
		l.publish(ev)
		return
	}
	if l.cp == nil {
		l.controlFailed(c.String(), errNoControlPlane)
		return
	}
	switch c.kind {
	case cmdFFC:
		err = l.cp.RunFFC()
	case cmdShutter:
		err = l.cp.SetShutterPos(c.shutter)
	case cmdShutterMode:
		err = l.cp.SetShutterMode(c.mode)
	default:
		err = errors.New("unknown command")
	}
	if err != nil {
		l.controlFailed(c.String(), err)
	}
}

func (l *Loop) controlFailed(op string, err error) {
	l.stats.ControlFails++
	e := &ControlError{Op: op, Err: err}
	Logf("%s", e)
	l.status(e.Error(), e)
}

func (l *Loop) status(s string, err error) {
	l.publish(Event{Kind: EventStatus, Status: s, Err: err})
}

// publish never blocks.
func (l *Loop) publish(ev Event) {
	ev.Stats = l.stats
	select {
	case l.events <- ev:
	default:
		l.stats.DroppedEvents++
	}
}

type commandKind uint8

const (
	cmdPalette commandKind = iota
	cmdFFC
	cmdSnapshot
	cmdShutter
	cmdShutterMode
)
