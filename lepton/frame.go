// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lepton

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/maruel/go-thermal/lepton/cci"
	"github.com/maruel/go-thermal/lepton/internal"
	"periph.io/x/periph/conn/physic"
)

// FFCState describes the Flat-Field Correction state.
type FFCState uint8

const (
	// FFCNever means no FFC was requested.
	FFCNever FFCState = 0
	// FFCInProgress means a FFC is running. It lasts 23 frames (at 27fps) so it
	// lasts less than a second.
	FFCInProgress FFCState = 1
	// FFCComplete means a FFC was completed successfully.
	FFCComplete FFCState = 2
)

func (f FFCState) String() string {
	switch f {
	case FFCNever:
		return "Never"
	case FFCInProgress:
		return "InProgress"
	case FFCComplete:
		return "Complete"
	default:
		return fmt.Sprintf("FFCState(%d)", uint8(f))
	}
}

// Metadata is constructed from the telemetry row, which is sent at each frame.
type Metadata struct {
	SinceStartup   time.Duration
	FrameCount     uint32 // Number of frames since the start of the camera, in 27fps (not 9fps).
	AvgValue       uint16 // Average value of the buffer.
	Temp           physic.Temperature
	TempHousing    physic.Temperature
	RawTemp        uint16
	RawTempHousing uint16
	FFCSince       time.Duration // Time since last FFC.
	FFCTemp        physic.Temperature
	FFCTempHousing physic.Temperature
	FFCState       FFCState
	FFCDesired     bool // Asserted at start-up, after period (default 3m) or after temperature change (default 3°K).
	Overtemp       bool // true 10s before self-shutdown.
}

// Frame is one complete VoSPI frame.
//
// Raw holds the 60 packets as received, 82 words each: ID, CRC then 80
// samples. Values are centered around 8192 according to the camera body
// temperature. Effective range is 14 bits, so [0, 16383]. Use RawToTemperature
// to convert a sample in radiometric mode.
type Frame struct {
	Raw          [FrameWords]uint16
	Metadata     Metadata // Valid only when HasTelemetry is true.
	HasTelemetry bool
	Seq          uint64 // Incremented at each completed frame.
}

// Line returns the 80 samples of packet seq.
func (f *Frame) Line(seq int) []uint16 {
	return f.Raw[seq*PacketWords+2 : (seq+1)*PacketWords]
}

// Geometry is how the packets of a frame are laid out in the image.
type Geometry struct {
	Model cci.Model
	// PacketsPerRow is 1 on a Lepton 2 and 2 on a Lepton 3, where a frame is
	// one of the 4 segments.
	PacketsPerRow int
	// TelemetryRow is the packet excluded from the image, -1 if none.
	TelemetryRow int
}

// NewGeometry returns the layout for a sensor model.
//
// On a Lepton 3 each 60 packets segment is published as its own 160x30
// image. AGC is computed per segment and segments are not stitched into a
// 160x120 image.
func NewGeometry(m cci.Model, telemetryRow int) Geometry {
	g := Geometry{Model: m, PacketsPerRow: 1, TelemetryRow: telemetryRow}
	if m == cci.ModelLepton3 {
		g.PacketsPerRow = 2
	}
	return g
}

// Bounds returns the image size.
func (g *Geometry) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.width(), g.height())
}

// Samples appends the image samples of f to dst, in row order.
//
// The telemetry row is skipped. On a Lepton 3 with telemetry, the incomplete
// last row is dropped.
func (g *Geometry) Samples(dst []uint16, f *Frame) []uint16 {
	n := g.width() * g.height()
	for seq := 0; seq < PacketsPerFrame && n > 0; seq++ {
		if seq == g.TelemetryRow {
			continue
		}
		l := f.Line(seq)
		if len(l) > n {
			l = l[:n]
		}
		dst = append(dst, l...)
		n -= len(l)
	}
	return dst
}

func (g *Geometry) String() string {
	b := g.Bounds()
	return fmt.Sprintf("%s %dx%d", g.Model, b.Dx(), b.Dy())
}

func (g *Geometry) width() int {
	return PacketSamples * g.PacketsPerRow
}

func (g *Geometry) height() int {
	n := PacketsPerFrame
	if g.TelemetryRow >= 0 {
		n--
	}
	return n / g.PacketsPerRow
}

// Private details.

var errOutOfOrder = errors.New("lepton: packet out of order")

// assembler accumulates in-order packets into a Frame.
type assembler struct {
	telemetryRow int
	cur          *Frame
	next         int
	seq          uint64
}

func newAssembler(telemetryRow int) *assembler {
	return &assembler{telemetryRow: telemetryRow, cur: &Frame{}}
}

// accept copies p into the frame in progress.
//
// It returns the frame when packet 59 was accepted. The returned Frame is not
// touched afterward.
func (a *assembler) accept(p *Packet) (*Frame, error) {
	seq := p.Seq()
	if seq != a.next {
		return nil, errOutOfOrder
	}
	if seq == 0 {
		a.cur.HasTelemetry = false
		a.cur.Metadata = Metadata{}
	}
	base := seq * PacketWords
	for i := 0; i < PacketWords; i++ {
		a.cur.Raw[base+i] = binary.BigEndian.Uint16(p[2*i:])
	}
	if seq == a.telemetryRow {
		if err := a.cur.Metadata.parseTelemetry(p[4:]); err != nil {
			Logf("lepton: %s", err)
		} else {
			a.cur.HasTelemetry = true
		}
	}
	if a.next++; a.next < PacketsPerFrame {
		return nil, nil
	}
	f := a.cur
	a.seq++
	f.Seq = a.seq
	a.cur = &Frame{}
	a.next = 0
	return f, nil
}

// reset abandons the frame in progress.
func (a *assembler) reset() {
	a.next = 0
}

func (m *Metadata) parseTelemetry(data []byte) error {
	var rowA internal.TelemetryRowA
	if err := binary.Read(bytes.NewReader(data), internal.Big16, &rowA); err != nil {
		return err
	}
	m.SinceStartup = rowA.TimeCounter.ToD()
	m.FrameCount = rowA.FrameCounter
	m.AvgValue = rowA.FrameMean
	m.Temp = rowA.FPATemp.ToT()
	m.TempHousing = rowA.HousingTemp.ToT()
	m.RawTemp = rowA.FPATempCounts
	m.RawTempHousing = rowA.HousingTempCounts
	m.FFCSince = rowA.TimeCounterLastFFC.ToD()
	m.FFCTemp = rowA.FPATempLastFFC.ToT()
	m.FFCTempHousing = rowA.HousingTempLastFFC.ToT()
	if rowA.StatusBits&statusMaskNil != 0 {
		return fmt.Errorf("lepton: (Status: 0x%08X) & (Mask: 0x%08X) = (Extra: 0x%08X) in 0x%08X", rowA.StatusBits, statusMask, rowA.StatusBits&statusMaskNil, statusMaskNil)
	}
	m.FFCDesired = rowA.StatusBits&statusFFCDesired != 0
	m.Overtemp = rowA.StatusBits&statusOvertemp != 0
	fccstate := rowA.StatusBits & statusFFCStateMask >> statusFFCStateShift
	if rowA.TelemetryRevision == 8 {
		switch fccstate {
		case 0:
			m.FFCState = FFCNever
		case 1:
			m.FFCState = FFCInProgress
		case 2:
			m.FFCState = FFCComplete
		default:
			return fmt.Errorf("lepton: unexpected fccstate %d", fccstate)
		}
	} else {
		switch fccstate {
		case 0:
			m.FFCState = FFCNever
		case 2:
			m.FFCState = FFCInProgress
		case 3:
			m.FFCState = FFCComplete
		default:
			return fmt.Errorf("lepton: unexpected fccstate %d", fccstate)
		}
	}
	return nil
}

// Telemetry status bits, see p.19-20.
const (
	statusFFCDesired    uint32 = 1 << 3                                                                                   // 0x00000008
	statusFFCStateMask  uint32 = 1<<4 | 1<<5                                                                              // 0x00000030
	statusFFCStateShift uint32 = 4                                                                                        //
	statusReserved      uint32 = 1 << 11                                                                                  // 0x00000800
	statusAGCState      uint32 = 1 << 12                                                                                  // 0x00001000
	statusOvertemp      uint32 = 1 << 20                                                                                  // 0x00100000
	statusMask                 = statusFFCDesired | statusFFCStateMask | statusAGCState | statusOvertemp | statusReserved // 0x00101838
	statusMaskNil              = ^statusMask                                                                              // 0xFFEFE7C7
)
