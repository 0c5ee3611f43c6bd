// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/maruel/go-thermal/lepton"
	"github.com/maruel/go-thermal/lepton/cci"
	"github.com/maruel/go-thermal/palette"
)

// commandSender is implemented by *lepton.Loop.
type commandSender interface {
	Send(c lepton.Command) error
}

// parseCommand converts a textual command like "palette iron" as received
// over HTTP or MQTT.
func parseCommand(s string) (lepton.Command, error) {
	f := strings.Fields(strings.ToLower(s))
	if len(f) == 0 {
		return lepton.Command{}, errors.New("empty command")
	}
	args := f[1:]
	want := 0
	switch f[0] {
	case "palette", "shutter", "shutter_mode":
		want = 1
	}
	if len(args) != want {
		return lepton.Command{}, fmt.Errorf("%s: expected %d argument(s), got %d", f[0], want, len(args))
	}
	switch f[0] {
	case "ffc":
		return lepton.TriggerFFC(), nil
	case "snapshot":
		return lepton.Snapshot(), nil
	case "palette":
		p, err := palette.Parse(args[0])
		if err != nil {
			return lepton.Command{}, err
		}
		return lepton.SetPalette(p), nil
	case "shutter":
		switch args[0] {
		case "open":
			return lepton.SetShutter(cci.ShutterPosOpen), nil
		case "closed", "close":
			return lepton.SetShutter(cci.ShutterPosClosed), nil
		}
		return lepton.Command{}, fmt.Errorf("shutter: unknown position %q", args[0])
	case "shutter_mode":
		switch args[0] {
		case "manual":
			return lepton.SetShutterMode(cci.FFCShutterModeManual), nil
		case "auto":
			return lepton.SetShutterMode(cci.FFCShutterModeAuto), nil
		case "external":
			return lepton.SetShutterMode(cci.FFCShutterModeExternal), nil
		}
		return lepton.Command{}, fmt.Errorf("shutter_mode: unknown mode %q", args[0])
	default:
		return lepton.Command{}, fmt.Errorf("unknown command %q", f[0])
	}
}
