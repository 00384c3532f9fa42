// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package bus is the register transaction layer on top of a periph.io I2C
// controller.
//
// A *Bus only exists after Configure (or Attach) succeeded, so register
// operations cannot be issued against a controller that was never brought up.
// All transactions on a *Bus are serialized: a combined write-then-read must
// never interleave with another transaction on the same wires.
package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultClockHz is the bus clock used by this deployment.
	DefaultClockHz = 400_000
	// DefaultTimeout bounds a single transaction.
	DefaultTimeout = 1000 * time.Millisecond
)

// ErrTimeout is returned when a transaction does not complete before its deadline.
var ErrTimeout = errors.New("bus: transaction timed out")

// Params selects and configures the I2C controller.
type Params struct {
	Name    string        // periph bus name or number; empty = match by pins
	SDA     string        // data line pin name ("GPIO2" or "2"); empty = don't care
	SCL     string        // clock line pin name
	ClockHz int64         // 0 = DefaultClockHz
	Timeout time.Duration // per transaction; 0 = DefaultTimeout
}

// Bus is a configured I2C controller. It implements i2c.Bus so periph device
// drivers can share it with the register layer.
type Bus struct {
	sem     chan struct{} // 1 slot; holding it owns the controller
	raw     i2c.Bus
	closer  io.Closer
	timeout time.Duration
}

var _ i2c.Bus = (*Bus)(nil)

// Configure initializes the periph host, opens the controller bound to the
// requested pins and sets the clock. Any error is fatal for callers: no
// transaction can succeed without an active controller.
func Configure(p Params) (*Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("bus: periph host init: %w", err)
	}

	raw, err := openController(p)
	if err != nil {
		return nil, err
	}

	b, err := Attach(raw, p)
	if err != nil {
		raw.Close()
		return nil, err
	}
	b.closer = raw
	return b, nil
}

// Attach wraps an already opened controller. It verifies the pin binding when
// the controller reports its pins and applies the clock rate.
func Attach(raw i2c.Bus, p Params) (*Bus, error) {
	if raw == nil {
		return nil, errors.New("bus: nil controller")
	}

	if pins, ok := raw.(i2c.Pins); ok {
		if !pinMatches(pins.SDA(), p.SDA) || !pinMatches(pins.SCL(), p.SCL) {
			return nil, fmt.Errorf("bus: %s is wired to SDA=%s SCL=%s, want SDA=%s SCL=%s",
				raw, pinName(pins.SDA()), pinName(pins.SCL()), p.SDA, p.SCL)
		}
	} else if p.SDA != "" || p.SCL != "" {
		log.Printf("bus: %s does not report its pins, assuming SDA=%s SCL=%s", raw, p.SDA, p.SCL)
	}

	clock := p.ClockHz
	if clock <= 0 {
		clock = DefaultClockHz
	}
	// Linux controllers usually have their clock fixed by the device tree.
	if err := raw.SetSpeed(physic.Frequency(clock) * physic.Hertz); err != nil {
		log.Printf("bus: %s: cannot set clock to %d Hz (keeping controller default): %v", raw, clock, err)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	log.Printf("bus: %s ready (clock %d Hz, timeout %s)", raw, clock, timeout)
	return &Bus{sem: make(chan struct{}, 1), raw: raw, timeout: timeout}, nil
}

func openController(p Params) (i2c.BusCloser, error) {
	if p.Name != "" || (p.SDA == "" && p.SCL == "") {
		b, err := i2creg.Open(p.Name)
		if err != nil {
			return nil, fmt.Errorf("bus: open I2C %q: %w", p.Name, err)
		}
		return b, nil
	}

	for _, ref := range i2creg.All() {
		b, err := ref.Open()
		if err != nil {
			log.Printf("bus: skipping %s: %v", ref.Name, err)
			continue
		}
		if pins, ok := b.(i2c.Pins); ok && pinMatches(pins.SDA(), p.SDA) && pinMatches(pins.SCL(), p.SCL) {
			return b, nil
		}
		b.Close()
	}
	return nil, fmt.Errorf("bus: no I2C controller on SDA=%s SCL=%s", p.SDA, p.SCL)
}

// pinMatches accepts the pin name, its String() form or its number.
func pinMatches(pin gpio.PinIO, want string) bool {
	if want == "" {
		return true
	}
	if pin == nil || pin == gpio.INVALID {
		return false
	}
	if pin.Name() == want || pin.String() == want {
		return true
	}
	n, err := strconv.Atoi(want)
	return err == nil && pin.Number() == n
}

func pinName(pin gpio.PinIO) string {
	if pin == nil {
		return "<none>"
	}
	return pin.Name()
}

func (b *Bus) String() string {
	return b.raw.String()
}

// Tx implements i2c.Bus with the bus default timeout.
func (b *Bus) Tx(addr uint16, w, r []byte) error {
	return b.tx(context.Background(), addr, w, r)
}

// SetSpeed implements i2c.Bus.
func (b *Bus) SetSpeed(f physic.Frequency) error {
	b.sem <- struct{}{}
	defer func() { <-b.sem }()
	return b.raw.SetSpeed(f)
}

// Close releases the controller if Configure opened it.
func (b *Bus) Close() error {
	if b.closer == nil {
		return nil
	}
	b.sem <- struct{}{}
	defer func() { <-b.sem }()
	return b.closer.Close()
}

// Device returns the register view of the peripheral at addr.
func (b *Bus) Device(addr uint16) *Device {
	return &Device{bus: b, addr: addr}
}

type txResult struct {
	err  error
	read []byte
}

// tx runs one transaction under the bus lock with a deadline. When w and r are
// both non-empty the controller issues write, repeated start, read, stop.
// On timeout the late result is discarded; r is only written on success.
// A caller still waiting for the lock gives up at its deadline, so a hung
// controller pins at most the one goroutine inside raw.Tx.
func (b *Bus) tx(ctx context.Context, addr uint16, w, r []byte) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	wb := append([]byte(nil), w...)
	done := make(chan txResult, 1)
	go func() {
		select {
		case b.sem <- struct{}{}:
		case <-ctx.Done():
			done <- txResult{err: ctx.Err()}
			return
		}
		defer func() { <-b.sem }()
		if err := ctx.Err(); err != nil {
			done <- txResult{err: err}
			return
		}
		var rb []byte
		if len(r) > 0 {
			rb = make([]byte, len(r))
		}
		done <- txResult{err: b.raw.Tx(addr, wb, rb), read: rb}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) {
				return ErrTimeout
			}
			return res.err
		}
		copy(r, res.read)
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrTimeout
		}
		return ctx.Err()
	}
}

// Device addresses registers of one peripheral.
type Device struct {
	bus  *Bus
	addr uint16
}

// Addr returns the 7-bit peripheral address.
func (d *Device) Addr() uint16 {
	return d.addr
}

// WriteRegister writes one byte: address+W, reg, val, stop.
func (d *Device) WriteRegister(ctx context.Context, reg, val byte) error {
	if err := d.bus.tx(ctx, d.addr, []byte{reg, val}, nil); err != nil {
		return fmt.Errorf("bus: write 0x%02X to reg 0x%02X at 0x%02X: %w", val, reg, d.addr, err)
	}
	return nil
}

// ReadRegister reads one byte with a combined transaction.
func (d *Device) ReadRegister(ctx context.Context, reg byte) (byte, error) {
	var buf [1]byte
	if err := d.bus.tx(ctx, d.addr, []byte{reg}, buf[:]); err != nil {
		return 0, fmt.Errorf("bus: read reg 0x%02X at 0x%02X: %w", reg, d.addr, err)
	}
	return buf[0], nil
}

// ReadRegisterPair reads the big-endian signed word starting at reg:
// address+W, reg, repeated start, address+R, hi (ACK), lo (NACK), stop.
func (d *Device) ReadRegisterPair(ctx context.Context, reg byte) (int16, error) {
	var buf [2]byte
	if err := d.bus.tx(ctx, d.addr, []byte{reg}, buf[:]); err != nil {
		return 0, fmt.Errorf("bus: read pair 0x%02X at 0x%02X: %w", reg, d.addr, err)
	}
	return Combine(buf[0], buf[1]), nil
}

// Combine joins a big-endian register pair into a signed word.
func Combine(hi, lo byte) int16 {
	return int16(uint16(hi)<<8 | uint16(lo))
}
