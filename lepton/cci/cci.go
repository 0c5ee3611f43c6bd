// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package cci drives the Command and Control Interface of a FLIR Lepton over
// i²c.
//
// It's essentially little endian encoded stream over big endian 16 bits words.
//
// Lepton™ Software Interface Description Document (IDD):
//   p. 24    i²c command format.
//   p. 36-37 Ping and Status.
//   p. 42-43 Telemetry enable.
package cci

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"github.com/maruel/go-thermal/lepton/internal"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/physic"
)

// Addr is the hardcoded i²c address of the Lepton.
const Addr = 0x2A

// CameraStatus is returned in Status.
type CameraStatus uint32

// Valid values for CameraStatus.
const (
	SystemReady              CameraStatus = 0
	SystemInitializing       CameraStatus = 1
	SystemInLowPowerMode     CameraStatus = 2
	SystemGoingIntoStandby   CameraStatus = 3
	SystemFlatFieldInProcess CameraStatus = 4
)

func (c CameraStatus) String() string {
	switch c {
	case SystemReady:
		return "Ready"
	case SystemInitializing:
		return "Initializing"
	case SystemInLowPowerMode:
		return "LowPowerMode"
	case SystemGoingIntoStandby:
		return "GoingIntoStandby"
	case SystemFlatFieldInProcess:
		return "FlatFieldInProcess"
	default:
		return fmt.Sprintf("CameraStatus(%d)", uint32(c))
	}
}

// Status is returned by Dev.GetStatus().
type Status struct {
	CameraStatus CameraStatus
	CommandCount uint16
}

// FFCShutterMode selects who decides when the shutter closes for a flat field
// correction.
type FFCShutterMode uint32

// Valid values for FFCShutterMode.
const (
	FFCShutterModeManual   FFCShutterMode = 0
	FFCShutterModeAuto     FFCShutterMode = 1
	FFCShutterModeExternal FFCShutterMode = 2
)

func (f FFCShutterMode) String() string {
	switch f {
	case FFCShutterModeManual:
		return "Manual"
	case FFCShutterModeAuto:
		return "Auto"
	case FFCShutterModeExternal:
		return "External"
	default:
		return fmt.Sprintf("FFCShutterMode(%d)", uint32(f))
	}
}

// ShutterPos is the position of the shutter, if present.
type ShutterPos uint32

// Valid values for ShutterPos.
const (
	ShutterPosUnknown ShutterPos = 0xFFFFFFFF // -1
	ShutterPosIdle    ShutterPos = 0
	ShutterPosOpen    ShutterPos = 1
	ShutterPosClosed  ShutterPos = 2
	ShutterPosBrakeOn ShutterPos = 3
)

func (s ShutterPos) String() string {
	switch s {
	case ShutterPosUnknown:
		return "Unknown"
	case ShutterPosIdle:
		return "Idle"
	case ShutterPosOpen:
		return "Open"
	case ShutterPosClosed:
		return "Closed"
	case ShutterPosBrakeOn:
		return "BrakeOn"
	default:
		return fmt.Sprintf("ShutterPos(%d)", uint32(s))
	}
}

// TelemetryLocation is where the telemetry lines are sent in a frame.
type TelemetryLocation uint32

// Valid values for TelemetryLocation.
const (
	Header TelemetryLocation = 0
	Footer TelemetryLocation = 1
)

// Model identifies the sensor generation from its scene extents.
type Model uint8

// Valid values for Model.
const (
	ModelUnknown Model = 0
	ModelLepton2 Model = 2 // 80x60
	ModelLepton3 Model = 3 // 160x120
)

func (m Model) String() string {
	switch m {
	case ModelLepton2:
		return "Lepton 2"
	case ModelLepton3:
		return "Lepton 3"
	default:
		return "Lepton (unknown model)"
	}
}

// FFCMode describes the flat field correction configuration.
type FFCMode struct {
	FFCShutterMode          FFCShutterMode
	ShutterTempLockoutState uint32
	VideoFreezeDuringFFC    bool
	FFCDesired              bool
	ElapsedTimeSinceLastFFC time.Duration
	DesiredFFCPeriod        time.Duration
	ExplicitCommandToOpen   bool
	DesiredFFCTempDelta     physic.Temperature
	ImminentDelay           uint16
}

// Dev is a Lepton reachable over i²c.
type Dev struct {
	c    i2c.Dev
	mu   sync.Mutex
	wait time.Duration
}

// New returns a driver for the FLIR Lepton CCI protocol.
//
// It waits for the device to be booted.
func New(b i2c.Bus) (*Dev, error) {
	d := &Dev{c: i2c.Dev{Bus: b, Addr: Addr}, wait: 5 * time.Millisecond}
	for i := 0; ; i++ {
		status, err := d.waitIdle()
		if err != nil {
			return nil, err
		}
		if status&statusBooted == statusBooted {
			break
		}
		if i == maxBusyPolls {
			return nil, fmt.Errorf("cci: lepton not booted: 0x%04x", status)
		}
		log.Printf("cci: lepton not yet booted: 0x%02x", status)
		time.Sleep(d.wait)
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("Lepton(%s)", &d.c)
}

// GetStatus returns the status of the camera as known by the camera itself.
func (d *Dev) GetStatus() (*Status, error) {
	var v internal.Status
	if err := d.get(sysStatus, &v); err != nil {
		return nil, err
	}
	return &Status{CameraStatus: CameraStatus(v.CameraStatus), CommandCount: v.CommandCount}, nil
}

// GetSerial returns the FLIR Lepton serial number.
func (d *Dev) GetSerial() (uint64, error) {
	var v uint64
	err := d.get(sysSerialNumber, &v)
	return v, err
}

// GetUptime returns the uptime. Rolls over after 1193 hours.
func (d *Dev) GetUptime() (time.Duration, error) {
	var v internal.DurationMS
	err := d.get(sysUptime, &v)
	return v.ToD(), err
}

// GetFPATemp returns the temperature of the focal plane array, which is the
// internal temperature of the sensor.
func (d *Dev) GetFPATemp() (physic.Temperature, error) {
	var v internal.CentiK
	err := d.get(sysFPATemperature, &v)
	return v.ToT(), err
}

// GetTempHousing returns the temperature of the housing.
func (d *Dev) GetTempHousing() (physic.Temperature, error) {
	var v internal.CentiK
	err := d.get(sysHousingTemperature, &v)
	return v.ToT(), err
}

// GetShutterPos returns the position of the shutter if present.
func (d *Dev) GetShutterPos() (ShutterPos, error) {
	var v ShutterPos
	err := d.get(sysShutterPosition, &v)
	return v, err
}

// SetShutterPos opens or closes the shutter.
func (d *Dev) SetShutterPos(p ShutterPos) error {
	return d.set(sysShutterPosition, p)
}

// GetFFCMode returns the flat field correction configuration.
func (d *Dev) GetFFCMode() (*FFCMode, error) {
	var v internal.FFCMode
	if err := d.get(sysFFCMode, &v); err != nil {
		return nil, err
	}
	return &FFCMode{
		FFCShutterMode:          FFCShutterMode(v.FFCShutterMode),
		ShutterTempLockoutState: v.ShutterTempLockoutState,
		VideoFreezeDuringFFC:    v.VideoFreezeDuringFFC == internal.Enabled,
		FFCDesired:              v.FFCDesired == internal.Enabled,
		ElapsedTimeSinceLastFFC: v.ElapsedTimeSinceLastFFC.ToD(),
		DesiredFFCPeriod:        v.DesiredFFCPeriod.ToD(),
		ExplicitCommandToOpen:   v.ExplicitCommandToOpen == internal.Enabled,
		DesiredFFCTempDelta:     physic.Temperature(v.DesiredFFCTempDelta) * 10 * physic.MilliKelvin,
		ImminentDelay:           v.ImminentDelay,
	}, nil
}

// SetShutterMode changes only the shutter mode of the FFC configuration.
func (d *Dev) SetShutterMode(m FFCShutterMode) error {
	var v internal.FFCMode
	if err := d.get(sysFFCMode, &v); err != nil {
		return err
	}
	if FFCShutterMode(v.FFCShutterMode) == m {
		return nil
	}
	v.FFCShutterMode = uint32(m)
	return d.set(sysFFCMode, &v)
}

// RunFFC forces a Flat-Field Correction to be done by the camera for
// recalibration. It takes 23 frames and the camera runs at 27fps so it lasts
// less than a second.
func (d *Dev) RunFFC() error {
	return d.run(sysFFCRunNormalization)
}

// GetSceneROI returns the scene region of interest, which covers the whole
// sensor by default.
func (d *Dev) GetSceneROI() (image.Rectangle, error) {
	var v internal.ROI
	if err := d.get(sysSceneROI, &v); err != nil {
		return image.Rectangle{}, err
	}
	return image.Rect(int(v.StartCol), int(v.StartRow), int(v.EndCol)+1, int(v.EndRow)+1), nil
}

// GetModel deduces the sensor model from its scene extents.
func (d *Dev) GetModel() (Model, error) {
	r, err := d.GetSceneROI()
	if err != nil {
		return ModelUnknown, err
	}
	switch r.Max {
	case image.Pt(80, 60):
		return ModelLepton2, nil
	case image.Pt(160, 120):
		return ModelLepton3, nil
	default:
		return ModelUnknown, nil
	}
}

// SetAGC enables or disables the on-chip automatic gain control. It must be
// disabled to get radiometric values.
func (d *Dev) SetAGC(enable bool) error {
	return d.set(agcEnable, toFlag(enable))
}

// SetTelemetry enables or disables the telemetry lines.
func (d *Dev) SetTelemetry(enable bool, loc TelemetryLocation) error {
	if err := d.set(sysTelemetryEnable, toFlag(enable)); err != nil {
		return err
	}
	if !enable {
		return nil
	}
	return d.set(sysTelemetryLocation, loc)
}

// Reboot restarts the camera. The device does not answer until it is booted
// again, so this function does not wait for completion.
func (d *Dev) Reboot() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.waitIdle(); err != nil {
		return err
	}
	if err := d.writeRegister(regDataLength, 0); err != nil {
		return err
	}
	return d.writeRegister(regCommandID, uint16(oemReboot)|opRun)
}

// Private details.

type command uint16

// All the used commands. The two low bits select get, set or run.
const (
	agcEnable              command = 0x0100 // 2   GET/SET
	sysStatus              command = 0x0204 // 4   GET
	sysSerialNumber        command = 0x0208 // 4   GET
	sysUptime              command = 0x020C // 2   GET
	sysHousingTemperature  command = 0x0210 // 1   GET
	sysFPATemperature      command = 0x0214 // 1   GET
	sysTelemetryEnable     command = 0x0218 // 2   GET/SET
	sysTelemetryLocation   command = 0x021C // 2   GET/SET
	sysSceneROI            command = 0x0230 // 4   GET/SET
	sysShutterPosition     command = 0x0238 // 2   GET/SET
	sysFFCMode             command = 0x023C // 16  GET/SET
	sysFFCRunNormalization command = 0x0240 // 0   RUN
	oemReboot              command = 0x4840 // 0   RUN
)

const (
	opGet = 0
	opSet = 1
	opRun = 2
)

type register uint16

const (
	regStatus      register = 2
	regCommandID   register = 4
	regDataLength  register = 6
	regData0       register = 8
	regDataBuffer0 register = 0xF800
)

// regStatus bitmask.
const (
	statusBusy       = 0x1
	statusBootMode   = 0x2
	statusBootStatus = 0x4
	statusBooted     = statusBootMode | statusBootStatus
	statusErrorMask  = 0xFF00

	maxBusyPolls = 200
)

func toFlag(b bool) internal.Flag {
	if b {
		return internal.Enabled
	}
	return internal.Disabled
}

func (d *Dev) get(cmd command, data interface{}) error {
	nbWords := binary.Size(data) / 2
	if nbWords > 1024 {
		return errors.New("cci: buffer too large")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.waitIdle(); err != nil {
		return err
	}
	if err := d.writeRegister(regDataLength, uint16(nbWords)); err != nil {
		return err
	}
	if err := d.writeRegister(regCommandID, uint16(cmd)|opGet); err != nil {
		return err
	}
	if err := d.waitResult(cmd); err != nil {
		return err
	}
	b := make([]byte, nbWords*2)
	addr := regData0
	if nbWords > 16 {
		addr = regDataBuffer0
	}
	if err := d.c.Tx(putUint16(uint16(addr)), b); err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(b), internal.Big16, data)
}

func (d *Dev) set(cmd command, data interface{}) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, internal.Big16, data); err != nil {
		return err
	}
	b := buf.Bytes()
	nbWords := len(b) / 2
	if nbWords > 1024 {
		return errors.New("cci: buffer too large")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.waitIdle(); err != nil {
		return err
	}
	addr := regData0
	if nbWords > 16 {
		addr = regDataBuffer0
	}
	if err := d.c.Tx(append(putUint16(uint16(addr)), b...), nil); err != nil {
		return err
	}
	if err := d.writeRegister(regDataLength, uint16(nbWords)); err != nil {
		return err
	}
	if err := d.writeRegister(regCommandID, uint16(cmd)|opSet); err != nil {
		return err
	}
	return d.waitResult(cmd)
}

func (d *Dev) run(cmd command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.waitIdle(); err != nil {
		return err
	}
	if err := d.writeRegister(regDataLength, 0); err != nil {
		return err
	}
	if err := d.writeRegister(regCommandID, uint16(cmd)|opRun); err != nil {
		return err
	}
	return d.waitResult(cmd)
}

// waitResult waits for the command to complete and decodes the error code.
func (d *Dev) waitResult(cmd command) error {
	status, err := d.waitIdle()
	if err != nil {
		return err
	}
	if status&statusErrorMask != 0 {
		return fmt.Errorf("cci: command 0x%04x failed with code %d", uint16(cmd), int8(status>>8))
	}
	return nil
}

// waitIdle waits for camera to be ready.
func (d *Dev) waitIdle() (uint16, error) {
	for i := 0; ; i++ {
		value, err := d.readRegister(regStatus)
		if err != nil || value&statusBusy == 0 {
			return value, err
		}
		if i == maxBusyPolls {
			return value, errors.New("cci: device stuck busy")
		}
		time.Sleep(d.wait)
	}
}

func (d *Dev) readRegister(addr register) (uint16, error) {
	var b [2]byte
	if err := d.c.Tx(putUint16(uint16(addr)), b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func (d *Dev) writeRegister(addr register, v uint16) error {
	return d.c.Tx(append(putUint16(uint16(addr)), putUint16(v)...), nil)
}

// putUint16 encodes as big endian.
func putUint16(v uint16) []byte {
	p := make([]byte, 2)
	binary.BigEndian.PutUint16(p, v)
	return p
}
