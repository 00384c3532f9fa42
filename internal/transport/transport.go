// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport carries telemetry frames to a connected peer.
//
// Every Transport is best effort: Send never waits for the peer, never
// retries and never queues beyond a small per-peer buffer. Callers use the
// returned error for accounting only.
package transport

import (
	"errors"
	"fmt"
	"log"
)

// MaxPayload bounds a single Send.
const MaxPayload = 50

var (
	// ErrNoPeer means nobody is connected; the payload was dropped.
	ErrNoPeer = errors.New("transport: no peer connected")
	// ErrPayloadTooLarge is returned for payloads over MaxPayload.
	ErrPayloadTooLarge = errors.New("transport: payload too large")
	// ErrNotInitialized is returned by Send before a successful Init.
	ErrNotInitialized = errors.New("transport: not initialized")
)

// Transport is the wireless link as seen by the sampling loop.
type Transport interface {
	// Init brings the link up and announces name. Must complete before Send.
	Init(name string) error
	// Send hands payload to the link without waiting for delivery.
	Send(payload []byte) error
	Close() error
}

func checkPayload(p []byte) error {
	if len(p) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(p))
	}
	return nil
}

// Named pairs a transport with a label for logging.
type Named struct {
	Name string
	Transport
}

// Multi fans a frame out to several transports.
type Multi struct {
	all  []Named
	live []Named
}

var _ Transport = (*Multi)(nil)

// NewMulti does not initialize anything.
func NewMulti(ts ...Named) *Multi {
	return &Multi{all: ts}
}

// Init initializes every transport and keeps the ones that came up. It fails
// only when none did.
func (m *Multi) Init(name string) error {
	var errs []error
	m.live = m.live[:0]
	for _, t := range m.all {
		if err := t.Init(name); err != nil {
			log.Printf("transport/%s: init failed, disabled: %v", t.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		log.Printf("transport/%s: up as %q", t.Name, name)
		m.live = append(m.live, t)
	}
	if len(m.live) == 0 {
		if len(errs) == 0 {
			return errors.New("transport: none configured")
		}
		return fmt.Errorf("transport: no transport came up: %w", errors.Join(errs...))
	}
	return nil
}

// Send hands payload to every live transport. It succeeds if at least one
// of them accepted it.
func (m *Multi) Send(payload []byte) error {
	if len(m.live) == 0 {
		return ErrNotInitialized
	}
	var errs []error
	accepted, noPeer := 0, 0
	for _, t := range m.live {
		err := t.Send(payload)
		if err == nil {
			accepted++
			continue
		}
		if errors.Is(err, ErrNoPeer) {
			noPeer++
		}
		errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
	}
	if accepted > 0 {
		return nil
	}
	if noPeer == len(m.live) {
		return ErrNoPeer
	}
	return errors.Join(errs...)
}

// Live returns the names of the transports that initialized.
func (m *Multi) Live() []string {
	names := make([]string, 0, len(m.live))
	for _, t := range m.live {
		names = append(names, t.Name)
	}
	return names
}

func (m *Multi) Close() error {
	var errs []error
	for _, t := range m.live {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}
