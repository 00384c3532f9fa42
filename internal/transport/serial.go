// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"fmt"
	"io"
	"log"

	serial "github.com/jacobsa/go-serial/serial"
)

// Serial drives an HM-10 style BLE-UART bridge module: AT commands on init,
// then every write on the UART is forwarded to the connected central.
type Serial struct {
	opts serial.OpenOptions
	open func(serial.OpenOptions) (io.ReadWriteCloser, error)
	port io.ReadWriteCloser
	buf  []byte
}

var _ Transport = (*Serial)(nil)

// NewSerial does not open the port.
func NewSerial(portName string, baudRate int) *Serial {
	return &Serial{
		opts: serial.OpenOptions{
			PortName:              portName,
			BaudRate:              uint(baudRate),
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		},
		open: serial.Open,
		buf:  make([]byte, 0, MaxPayload+1),
	}
}

// Init opens the UART and sets the module's advertised name.
func (s *Serial) Init(name string) error {
	port, err := s.open(s.opts)
	if err != nil {
		return fmt.Errorf("serial: open %s: %w", s.opts.PortName, err)
	}
	if _, err := io.WriteString(port, "AT+NAME"+name); err != nil {
		port.Close()
		return fmt.Errorf("serial: set module name: %w", err)
	}
	s.port = port
	log.Printf("transport/serial: BLE bridge on %s at %d baud named %q", s.opts.PortName, s.opts.BaudRate, name)
	return nil
}

// Send writes payload followed by a newline.
func (s *Serial) Send(payload []byte) error {
	if s.port == nil {
		return ErrNotInitialized
	}
	if err := checkPayload(payload); err != nil {
		return err
	}
	s.buf = append(s.buf[:0], payload...)
	s.buf = append(s.buf, '\n')
	if _, err := s.port.Write(s.buf); err != nil {
		return fmt.Errorf("serial: write: %w", err)
	}
	return nil
}

func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
