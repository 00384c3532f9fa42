// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"fmt"
	"log"

	"tinygo.org/x/bluetooth"
)

// BLE exposes the telemetry as a notify characteristic of a GATT service and
// advertises under the device name.
type BLE struct {
	adapter     *bluetooth.Adapter
	serviceUUID bluetooth.UUID
	charUUID    bluetooth.UUID
	char        bluetooth.Characteristic
	adv         *bluetooth.Advertisement
	ready       bool
}

var _ Transport = (*BLE)(nil)

// NewBLE parses the UUIDs; the adapter is not touched until Init.
func NewBLE(serviceUUID, charUUID string) (*BLE, error) {
	svc, err := bluetooth.ParseUUID(serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: service uuid %q: %w", serviceUUID, err)
	}
	ch, err := bluetooth.ParseUUID(charUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: characteristic uuid %q: %w", charUUID, err)
	}
	return &BLE{
		adapter:     bluetooth.DefaultAdapter,
		serviceUUID: svc,
		charUUID:    ch,
	}, nil
}

func (b *BLE) Init(name string) error {
	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	err := b.adapter.AddService(&bluetooth.Service{
		UUID: b.serviceUUID,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				Handle: &b.char,
				UUID:   b.charUUID,
				Value:  []byte{},
				Flags:  bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicNotifyPermission,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ble: add service %s: %w", b.serviceUUID, err)
	}

	b.adv = b.adapter.DefaultAdvertisement()
	err = b.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    name,
		ServiceUUIDs: []bluetooth.UUID{b.serviceUUID},
	})
	if err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}
	if err := b.adv.Start(); err != nil {
		return fmt.Errorf("ble: start advertisement: %w", err)
	}

	log.Printf("transport/ble: advertising %q (service %s, characteristic %s)", name, b.serviceUUID, b.charUUID)
	b.ready = true
	return nil
}

// Send updates the characteristic value, which notifies subscribed centrals.
// Without a subscriber the update is simply not delivered.
func (b *BLE) Send(payload []byte) error {
	if !b.ready {
		return ErrNotInitialized
	}
	if err := checkPayload(payload); err != nil {
		return err
	}
	if _, err := b.char.Write(payload); err != nil {
		return fmt.Errorf("ble: notify: %w", err)
	}
	return nil
}

func (b *BLE) Close() error {
	if b.adv == nil {
		return nil
	}
	b.ready = false
	return b.adv.Stop()
}
