// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package internal holds the wire level details shared by the VoSPI reader
// and the CCI control interface.
package internal

import (
	"encoding/binary"
	"time"

	"periph.io/x/periph/conn/physic"
)

// Flag is a CCI boolean, encoded as a 32 bits enum.
type Flag uint32

// Valid values for Flag.
const (
	Disabled Flag = 0
	Enabled  Flag = 1
)

// DurationMS is duration in millisecond.
//
// It is an implementation detail of the protocol.
type DurationMS uint32

// ToD converts to time.Duration.
func (d DurationMS) ToD() time.Duration {
	return time.Duration(d) * time.Millisecond
}

// CentiK is temperature in 0.01°K.
//
// It is an implementation detail of the protocol.
type CentiK uint16

// ToT converts to physic.Temperature.
func (c CentiK) ToT() physic.Temperature {
	return physic.Temperature(c) * 10 * physic.MilliKelvin
}

// Status is the camera status as returned by the camera.
type Status struct {
	CameraStatus uint32
	CommandCount uint16
	Reserved     uint16
}

// FFCMode is the SysFFCMode attribute.
type FFCMode struct {
	FFCShutterMode          uint32     // Default: external
	ShutterTempLockoutState uint32     // Default: inactive
	VideoFreezeDuringFFC    Flag       // Default: Enabled
	FFCDesired              Flag       // Default: Disabled
	ElapsedTimeSinceLastFFC DurationMS // Uptime in ms.
	DesiredFFCPeriod        DurationMS // Default: 300000
	ExplicitCommandToOpen   Flag       // Default: Disabled
	DesiredFFCTempDelta     uint16     // Default: 300
	ImminentDelay           uint16     // Default: 52
}

// ROI is a region of interest, inclusive on all sides.
type ROI struct {
	StartCol uint16
	StartRow uint16
	EndCol   uint16
	EndRow   uint16
}

// TelemetryRowA is the telemetry line as documented at p.19-20 of the
// datasheet. Only the fields that were observed to make sense are named.
type TelemetryRowA struct {
	TelemetryRevision  uint16     // 0
	TimeCounter        DurationMS // 1
	StatusBits         uint32     // 3
	ModuleSerial       [16]uint8  // 5  Is empty.
	SoftwareRevision   uint64     // 13 Junk.
	Reserved17         [3]uint16  // 17
	FrameCounter       uint32     // 20
	FrameMean          uint16     // 22 The average value from the whole frame.
	FPATempCounts      uint16     // 23
	FPATemp            CentiK     // 24
	HousingTempCounts  uint16     // 25
	HousingTemp        CentiK     // 26
	Reserved27         [2]uint16  // 27
	FPATempLastFFC     CentiK     // 29
	TimeCounterLastFFC DurationMS // 30
	HousingTempLastFFC CentiK     // 32
	Reserved33         uint16     // 33
	AGCROI             [4]uint16  // 34
	AGCClipLimitHigh   uint16     // 38
	AGCClipLimitLow    uint16     // 39
	Reserved40         [34]uint16 // 40
	Log2FFCFrames      uint16     // 74 Found 3, should be 27?
	Reserved75         [5]uint16  // 75
}

//

type table [256]uint16

const ccittFalse = 0x1021

var ccittFalseTable table

func init() {
	makeTable(ccittFalse, &ccittFalseTable)
}

func makeTable(poly uint16, t *table) {
	width := uint16(16)
	for i := uint16(0); i < 256; i++ {
		crc := i << (width - 8)
		for j := 0; j < 8; j++ {
			if crc&(1<<(width-1)) != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
}

func update(crc uint16, t *table, p []byte) uint16 {
	for _, v := range p {
		crc = t[byte(crc>>8)^v] ^ (crc << 8)
	}
	return crc
}

// CRC16 calculates the CCITT CRC16 checksum with a zero seed.
func CRC16(d []byte) uint16 {
	return update(0, &ccittFalseTable, d)
}

// PacketCRC returns the checksum of a VoSPI packet.
//
// The checksum covers the whole packet with the 4 flag bits of the ID field
// and the CRC field itself zeroed.
func PacketCRC(p []byte) uint16 {
	var hdr [4]byte
	hdr[1] = p[1]
	hdr[0] = p[0] & 0x0F
	crc := update(0, &ccittFalseTable, hdr[:])
	return update(crc, &ccittFalseTable, p[4:])
}

//

// Big16 translates big endian 16bits words but everything larger is in little
// endian.
//
// It implements binary.ByteOrder.
var Big16 big16

type big16 struct{}

func (big16) Uint16(b []byte) uint16 {
	_ = b[1] // bounds check hint to compiler; see golang.org/issue/14808
	return uint16(b[1]) | uint16(b[0])<<8
}

func (big16) PutUint16(b []byte, v uint16) {
	_ = b[1] // early bounds check to guarantee safety of writes below
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

func (big16) Uint32(b []byte) uint32 {
	_ = b[3] // bounds check hint to compiler; see golang.org/issue/14808
	return uint32(b[1]) | uint32(b[0])<<8 | uint32(b[3])<<16 | uint32(b[2])<<24
}

func (big16) PutUint32(b []byte, v uint32) {
	_ = b[3] // early bounds check to guarantee safety of writes below
	b[1] = byte(v)
	b[0] = byte(v >> 8)
	b[3] = byte(v >> 16)
	b[2] = byte(v >> 24)
}

func (big16) Uint64(b []byte) uint64 {
	_ = b[7] // bounds check hint to compiler; see golang.org/issue/14808
	return uint64(b[1]) | uint64(b[0])<<8 | uint64(b[3])<<16 | uint64(b[2])<<24 |
		uint64(b[5])<<32 | uint64(b[4])<<40 | uint64(b[7])<<48 | uint64(b[6])<<56
}

func (big16) PutUint64(b []byte, v uint64) {
	_ = b[7] // early bounds check to guarantee safety of writes below
	b[1] = byte(v)
	b[0] = byte(v >> 8)
	b[3] = byte(v >> 16)
	b[2] = byte(v >> 24)
	b[5] = byte(v >> 32)
	b[4] = byte(v >> 40)
	b[7] = byte(v >> 48)
	b[6] = byte(v >> 56)
}

func (big16) String() string {
	return "big16"
}

var _ binary.ByteOrder = Big16
