// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTT publishes frames to a broker topic. Useful when the "peer" is a host
// on the network rather than a BLE central.
type MQTT struct {
	broker    string
	clientID  string
	topic     string
	newClient func(*mqtt.ClientOptions) mqtt.Client
	client    mqtt.Client
}

var _ Transport = (*MQTT)(nil)

// NewMQTT does not connect.
func NewMQTT(broker, clientID, topic string) *MQTT {
	return &MQTT{
		broker:    broker,
		clientID:  clientID,
		topic:     topic,
		newClient: mqtt.NewClient,
	}
}

// Init connects and publishes the device name, retained, on <topic>/name.
func (m *MQTT) Init(name string) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.broker).
		SetClientID(m.clientID)

	client := m.newClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt: connect %s: %w", m.broker, token.Error())
	}

	if token := client.Publish(m.topic+"/name", 0, true, name); token.Wait() && token.Error() != nil {
		client.Disconnect(250)
		return fmt.Errorf("mqtt: publish name: %w", token.Error())
	}

	m.client = client
	log.Printf("transport/mqtt: connected to %s, publishing on %s", m.broker, m.topic)
	return nil
}

// Send publishes at QoS 0 without waiting for the token. An error is only
// reported if the client already knows the publish failed.
func (m *MQTT) Send(payload []byte) error {
	if m.client == nil {
		return ErrNotInitialized
	}
	if err := checkPayload(payload); err != nil {
		return err
	}
	if !m.client.IsConnectionOpen() {
		return ErrNoPeer
	}
	token := m.client.Publish(m.topic, 0, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: publish: %w", err)
		}
	default:
	}
	return nil
}

func (m *MQTT) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
		m.client = nil
	}
	return nil
}
