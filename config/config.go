// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the YAML configuration of the lepton tools.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/maruel/go-thermal/lepton"
	"github.com/maruel/go-thermal/lepton/cci"
	"github.com/maruel/go-thermal/palette"
	"gopkg.in/yaml.v3"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
)

// File is the content of the configuration file.
type File struct {
	SPI       SPIConfig       `yaml:"spi"`
	I2C       I2CConfig       `yaml:"i2c"`
	ResetPin  string          `yaml:"reset_pin"` // GPIO connected to RESET_L, if any.
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Sync      SyncConfig      `yaml:"sync"`
	Display   DisplayConfig   `yaml:"display"`
	Web       WebConfig       `yaml:"web"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
}

// SPIConfig is the VoSPI port.
type SPIConfig struct {
	Name string `yaml:"name"` // Empty means the first port.
	Hz   int64  `yaml:"hz"`
	Mode int    `yaml:"mode"` // 0 to 3; the Lepton uses 3.
}

// I2CConfig is the CCI bus.
type I2CConfig struct {
	Name     string `yaml:"name"`
	Hz       int64  `yaml:"hz"`
	Disabled bool   `yaml:"disabled"` // The i²c lines are not connected.
}

// TelemetryConfig enables the telemetry row.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Location string `yaml:"location"` // header or footer
}

// SyncConfig tunes the resynchronization.
type SyncConfig struct {
	SegmentResetThreshold int           `yaml:"segment_reset_threshold"`
	FrameResetThreshold   int           `yaml:"frame_reset_threshold"`
	RebootThreshold       int           `yaml:"reboot_threshold"`
	ResetInterval         time.Duration `yaml:"reset_interval"`
	RebootInterval        time.Duration `yaml:"reboot_interval"`
	VerifyCRC             bool          `yaml:"verify_crc"`
}

// DisplayConfig is how frames are rendered.
type DisplayConfig struct {
	Palette        string        `yaml:"palette"`
	ScaleMin       uint16        `yaml:"scale_min"`
	ScaleMax       uint16        `yaml:"scale_max"`
	StatusInterval time.Duration `yaml:"status_interval"`
}

// WebConfig is the HTTP server.
type WebConfig struct {
	Port int `yaml:"port"`
}

// MQTTConfig is the optional broker connection.
type MQTTConfig struct {
	Broker   string `yaml:"broker"` // host:port; empty disables MQTT.
	Topic    string `yaml:"topic"`  // Prefix for status and command topics.
	ClientID string `yaml:"client_id"`
	QoS      byte   `yaml:"qos"`
}

// SnapshotsConfig is where snapshots are saved.
type SnapshotsConfig struct {
	Dir string `yaml:"dir"`
}

// Default returns the default configuration.
func Default() *File {
	d := lepton.DefaultConfig()
	return &File{
		SPI:       SPIConfig{Mode: 3},
		Telemetry: TelemetryConfig{Location: "header"},
		Sync: SyncConfig{
			SegmentResetThreshold: d.SegmentResetThreshold,
			FrameResetThreshold:   d.FrameResetThreshold,
			RebootThreshold:       d.RebootThreshold,
			ResetInterval:         d.ResetInterval,
			RebootInterval:        d.RebootInterval,
			VerifyCRC:             true,
		},
		Display: DisplayConfig{
			Palette:        d.Palette.String(),
			StatusInterval: d.StatusInterval,
		},
		Web:       WebConfig{Port: 8010},
		MQTT:      MQTTConfig{Topic: "lepton"},
		Snapshots: SnapshotsConfig{Dir: "."},
	}
}

// Load reads a YAML file on top of Default().
//
// Unknown keys are an error.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content on top of Default().
func Parse(data []byte) (*File, error) {
	f := Default()
	d := yaml.NewDecoder(bytes.NewReader(data))
	d.KnownFields(true)
	if err := d.Decode(f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return f, nil
}

// Validate checks the values.
func (f *File) Validate() error {
	if f.SPI.Mode < 0 || f.SPI.Mode > 3 {
		return fmt.Errorf("spi.mode must be between 0 and 3, got %d", f.SPI.Mode)
	}
	if f.SPI.Hz < 0 || f.I2C.Hz < 0 {
		return errors.New("bus speeds must be >= 0")
	}
	if _, err := f.telemetryLocation(); err != nil {
		return err
	}
	if f.Web.Port < 0 || f.Web.Port > 65535 {
		return fmt.Errorf("web.port %d out of range", f.Web.Port)
	}
	if f.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", f.MQTT.QoS)
	}
	if f.MQTT.Broker != "" && f.MQTT.Topic == "" {
		return errors.New("mqtt.topic is required")
	}
	_, err := f.LoopConfig()
	return err
}

// LoopConfig returns the acquisition loop configuration.
func (f *File) LoopConfig() (*lepton.Config, error) {
	p, err := palette.Parse(f.Display.Palette)
	if err != nil {
		return nil, err
	}
	c := lepton.DefaultConfig()
	c.SegmentResetThreshold = f.Sync.SegmentResetThreshold
	c.FrameResetThreshold = f.Sync.FrameResetThreshold
	c.RebootThreshold = f.Sync.RebootThreshold
	c.ResetInterval = f.Sync.ResetInterval
	c.RebootInterval = f.Sync.RebootInterval
	c.VerifyCRC = f.Sync.VerifyCRC
	c.Palette = p
	c.ScaleMin = f.Display.ScaleMin
	c.ScaleMax = f.Display.ScaleMax
	c.StatusInterval = f.Display.StatusInterval
	if f.Telemetry.Enabled {
		// The telemetry lines are sent as the first or last packet.
		c.TelemetryRow = 0
		if loc, _ := f.telemetryLocation(); loc == cci.Footer {
			c.TelemetryRow = lepton.PacketsPerFrame - 1
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// SessionOpts returns the bus options. The reset pin is left to the caller.
func (f *File) SessionOpts() *lepton.SessionOpts {
	loc, _ := f.telemetryLocation()
	mode := spi.Mode(f.SPI.Mode)
	return &lepton.SessionOpts{
		Speed:             physic.Frequency(f.SPI.Hz) * physic.Hertz,
		Mode:              &mode,
		Telemetry:         f.Telemetry.Enabled,
		TelemetryLocation: loc,
	}
}

func (f *File) telemetryLocation() (cci.TelemetryLocation, error) {
	switch strings.ToLower(f.Telemetry.Location) {
	case "", "header":
		return cci.Header, nil
	case "footer":
		return cci.Footer, nil
	default:
		return cci.Header, fmt.Errorf("telemetry.location must be header or footer, got %q", f.Telemetry.Location)
	}
}
