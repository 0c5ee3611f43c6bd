// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lepton takes video from FLIR Lepton connected to a SPI port and
// turns it into color images.
//
// The sensor streams fixed size packets (VoSPI). The bandwidth of SPI is larger
// than the data rate so most packets are discard packets. A frame is 60
// packets received in order; any gap restarts the frame.
//
// References:
//
// FLIR LEPTON® Long Wave Infrared (LWIR) Datasheet
//   http://cvs.flir.com/lepton-data-brief
//   p. 19-21 Telemetry mode
//   p. 28-35 SPI protocol explanation.
//
// Connecting to a Raspberry Pi:
//   https://github.com/PureEngineering/LeptonModule/wiki
//
// Information about the Raspberry Pi SPI driver:
//   http://elinux.org/RPi_SPI
package lepton

import (
	"encoding/binary"
	"log"

	"github.com/maruel/go-thermal/lepton/internal"
	"periph.io/x/periph/conn/physic"
)

// VoSPI geometry.
const (
	PacketSize      = 164                          // Bytes per packet.
	PacketWords     = PacketSize / 2               // 16 bits words per packet, header included.
	PacketSamples   = 80                           // Samples per packet.
	PacketsPerFrame = 60                           // Packets per frame.
	FrameWords      = PacketWords * PacketsPerFrame // 4920
)

// Logf is used for diagnostics. It can be replaced to redirect or mute the
// package.
var Logf = log.Printf

// Packet is one VoSPI packet, also called a line.
//
// Bytes [0:2) are the ID, [2:4) the CRC and [4:164) are 80 big endian 16 bits
// samples.
type Packet [PacketSize]byte

// ID returns the raw identifier field, flag nibble included.
func (p *Packet) ID() uint16 {
	return binary.BigEndian.Uint16(p[:2])
}

// Flags returns the top nibble of the ID.
func (p *Packet) Flags() uint8 {
	return uint8(p.ID() >> 12)
}

// Seq returns the position of the packet within the frame.
func (p *Packet) Seq() int {
	return int(p.ID() & seqMask)
}

// IsDiscard returns true when the sensor flagged the packet as not ready.
// Such a packet must never be used as data.
func (p *Packet) IsDiscard() bool {
	return p.Flags() == flagDiscard
}

// CRC returns the checksum field.
func (p *Packet) CRC() uint16 {
	return binary.BigEndian.Uint16(p[2:4])
}

// ValidCRC returns true when the checksum field matches the content.
func (p *Packet) ValidCRC() bool {
	return internal.PacketCRC(p[:]) == p.CRC()
}

// Sample returns the i-th payload value.
func (p *Packet) Sample(i int) uint16 {
	return binary.BigEndian.Uint16(p[4+2*i:])
}

// RawToTemperature converts a radiometric sample into a temperature.
//
// Each count is 21.7mK above absolute zero.
func RawToTemperature(v uint16) physic.Temperature {
	return physic.Temperature(v) * countTemperature
}

// Celsius returns t in °C.
func Celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Celsius)
}

// Private details.

const countTemperature = 21700 * physic.MicroKelvin

const (
	flagDiscard = 0xF
	seqMask     = 0x0FFF // ID field is 12 bits. Leading 4 bits are flags.
)
