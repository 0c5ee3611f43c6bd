// Copyright 2018 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/maruel/go-thermal/config"
	"github.com/maruel/go-thermal/lepton"
)

// mqttBridge publishes the status to <topic>/status and forwards the
// commands received on <topic>/command to the loop.
type mqttBridge struct {
	client mqtt.Client
	topic  string
	qos    byte
	loop   commandSender

	mu   sync.Mutex
	last lepton.Event // Last frame.
}

func newMQTTBridge(cfg *config.MQTTConfig, loop commandSender) (*mqttBridge, error) {
	m := &mqttBridge{topic: cfg.Topic, qos: cfg.QoS, loop: loop}
	id := cfg.ClientID
	if id == "" {
		id = "lepton-" + uuid.NewString()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + cfg.Broker)
	opts.SetClientID(id)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetWill(m.topic+"/status", `{"status":"offline"}`, m.qos, false)
	// Subscriptions are lost on reconnection when the session is clean.
	opts.OnConnect = func(c mqtt.Client) {
		log.Printf("mqtt: connected to %s as %s", cfg.Broker, id)
		t := c.Subscribe(m.topic+"/command", m.qos, m.onMessage)
		go func() {
			if !t.WaitTimeout(5*time.Second) || t.Error() != nil {
				log.Printf("mqtt: subscribe failed: %v", t.Error())
			}
		}()
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %s", err)
	}
	m.client = mqtt.NewClient(opts)
	t := m.client.Connect()
	if !t.WaitTimeout(5 * time.Second) {
		return nil, errors.New("mqtt: connection timeout")
	}
	if err := t.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connection failed: %w", err)
	}
	return m, nil
}

// onMessage handles one textual command, the same syntax as /api/command.
func (m *mqttBridge) onMessage(_ mqtt.Client, msg mqtt.Message) {
	c, err := parseCommand(string(msg.Payload()))
	if err == nil {
		err = m.loop.Send(c)
	}
	if err != nil {
		log.Printf("mqtt: %s: %s", msg.Topic(), err)
		return
	}
	log.Printf("mqtt: %s", c)
}

// AddFrame remembers the last frame for the next status message.
func (m *mqttBridge) AddFrame(ev lepton.Event) {
	m.mu.Lock()
	m.last = ev
	m.mu.Unlock()
}

// PublishStatus sends the status without waiting for the acknowledgement.
func (m *mqttBridge) PublishStatus(ev lepton.Event) {
	b, err := m.payload(ev)
	if err != nil {
		log.Printf("mqtt: %s", err)
		return
	}
	t := m.client.Publish(m.topic+"/status", m.qos, false, b)
	go func() {
		if !t.WaitTimeout(2*time.Second) || t.Error() != nil {
			log.Printf("mqtt: publish failed: %v", t.Error())
		}
	}()
}

func (m *mqttBridge) payload(ev lepton.Event) ([]byte, error) {
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()
	return json.Marshal(makeStatus(ev, last))
}

func (m *mqttBridge) Close() {
	t := m.client.Unsubscribe(m.topic + "/command")
	t.WaitTimeout(time.Second)
	m.client.Disconnect(250)
}
