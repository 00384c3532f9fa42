// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/open_ring/internal/bus"
	"github.com/relabs-tech/open_ring/internal/config"
	"github.com/relabs-tech/open_ring/internal/imu"
	"github.com/relabs-tech/open_ring/internal/sensors"
	"github.com/relabs-tech/open_ring/internal/transport"
)

// readErrorLogEvery rate-limits the read failure log line.
const readErrorLogEvery = 5 * time.Second

// Observer is notified of every sample that produced a frame. Observe is
// called from the sampling goroutine and must not block.
type Observer interface {
	Observe(s imu.Sample)
}

// Stats is a snapshot of the loop counters.
type Stats struct {
	Cycles     uint64
	Frames     uint64
	ReadErrors uint64
	SendErrors uint64
}

// Loop is the periodic read → format → emit → send cycle.
type Loop struct {
	Reader      imu.RawReader
	Out         transport.Transport
	Interval    time.Duration
	StatusEvery time.Duration // 0 disables the status line
	LogFrames   bool
	Observers   []Observer

	cycles     atomic.Uint64
	frames     atomic.Uint64
	readErrors atomic.Uint64
	sendErrors atomic.Uint64

	lastReadErrLog time.Time
}

// Cycle runs one iteration without waiting. A sample with any failed read
// produces no frame.
func (l *Loop) Cycle(ctx context.Context) {
	l.cycles.Add(1)

	s, err := l.Reader.ReadRaw(ctx)
	if err != nil {
		n := l.readErrors.Add(1)
		if l.lastReadErrLog.IsZero() || time.Since(l.lastReadErrLog) >= readErrorLogEvery {
			log.Printf("streamer: read failed, frame skipped (%d total): %v", n, err)
			l.lastReadErrLog = time.Now()
		}
		return
	}

	// fresh buffer: transports may hold on to the payload after Send returns
	frame := imu.AppendFrame(make([]byte, 0, imu.MaxFrameLen), s)
	l.frames.Add(1)

	if l.LogFrames {
		log.Printf("%s", frame)
	}
	for _, o := range l.Observers {
		o.Observe(s)
	}

	if err := l.Out.Send(frame); err != nil {
		l.sendErrors.Add(1)
	}
}

// Run cycles every Interval until ctx is cancelled. The first cycle runs
// immediately; ticks missed by a slow cycle are dropped.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	var status <-chan time.Time
	if l.StatusEvery > 0 {
		st := time.NewTicker(l.StatusEvery)
		defer st.Stop()
		status = st.C
	}

	log.Printf("streamer: sampling every %s", l.Interval)
	for {
		if err := ctx.Err(); err != nil {
			l.logStatus()
			return err
		}
		l.Cycle(ctx)

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}

		select {
		case <-status:
			l.logStatus()
		default:
		}
	}
}

// Stats returns the current counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Cycles:     l.cycles.Load(),
		Frames:     l.frames.Load(),
		ReadErrors: l.readErrors.Load(),
		SendErrors: l.sendErrors.Load(),
	}
}

func (l *Loop) logStatus() {
	st := l.Stats()
	log.Printf("streamer: cycles=%d frames=%d read_errors=%d send_errors=%d",
		st.Cycles, st.Frames, st.ReadErrors, st.SendErrors)
}

// ConfigureFunc brings up the I2C controller. bus.Configure in production.
type ConfigureFunc func(bus.Params) (*bus.Bus, error)

// BringUp initializes the transport, then the bus, then wakes the sensor.
// Transport and bus failures are returned; a failed wake is only logged and
// sampling proceeds.
func BringUp(ctx context.Context, cfg *config.Config, out transport.Transport, configure ConfigureFunc) (*bus.Bus, *sensors.MPU, error) {
	if err := out.Init(cfg.DeviceName); err != nil {
		return nil, nil, fmt.Errorf("streamer: transport init: %w", err)
	}

	b, err := configure(busParams(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("streamer: bus configure: %w", err)
	}

	mpu := sensors.NewMPU(b.Device(cfg.IMUI2CAddr))
	if err := mpu.Wake(ctx); err != nil {
		log.Printf("mpu: failed to wake device: %v", err)
	}
	return b, mpu, nil
}

func busParams(cfg *config.Config) bus.Params {
	return bus.Params{
		Name:    cfg.I2CBus,
		SDA:     cfg.I2CSDAPin,
		SCL:     cfg.I2CSCLPin,
		ClockHz: cfg.I2CClockHz,
		Timeout: cfg.TxTimeout(),
	}
}

// BuildTransports creates the transports named by TRANSPORTS. Nothing is
// initialized yet.
func BuildTransports(cfg *config.Config) (*transport.Multi, error) {
	var ts []transport.Named
	for _, name := range cfg.Transports {
		var t transport.Transport
		switch name {
		case "ble":
			ble, err := transport.NewBLE(cfg.BLEServiceUUID, cfg.BLECharUUID)
			if err != nil {
				return nil, err
			}
			t = ble
		case "serial":
			t = transport.NewSerial(cfg.SerialPort, cfg.SerialBaudRate)
		case "mqtt":
			t = transport.NewMQTT(cfg.MQTTBroker, cfg.MQTTClientIDStreamer, cfg.TopicTelemetry)
		case "websocket":
			t = transport.NewWebSocket(fmt.Sprintf(":%d", cfg.WebServerPort))
		default:
			return nil, fmt.Errorf("streamer: unknown transport %q", name)
		}
		ts = append(ts, transport.Named{Name: name, Transport: t})
	}
	return transport.NewMulti(ts...), nil
}

// RunStreamer brings the device up and samples until ctx is cancelled.
func RunStreamer(ctx context.Context, cfg *config.Config) error {
	log.Printf("streamer: starting %s", cfg.DeviceName)

	out, err := BuildTransports(cfg)
	if err != nil {
		return err
	}
	b, mpu, err := BringUp(ctx, cfg, out, bus.Configure)
	if err != nil {
		out.Close()
		return err
	}
	defer out.Close()
	defer b.Close()

	if id, err := mpu.WhoAmI(ctx); err != nil {
		log.Printf("mpu: WHO_AM_I read failed: %v", err)
	} else {
		log.Printf("mpu: WHO_AM_I=0x%02X", id)
	}

	loop := &Loop{
		Reader:      mpu,
		Out:         out,
		Interval:    cfg.SampleInterval(),
		StatusEvery: time.Duration(cfg.StatusLogInterval) * time.Millisecond,
		LogFrames:   cfg.LogFrames,
	}

	if cfg.DisplayEnabled {
		d, err := NewDisplay(b, cfg.DeviceName)
		if err != nil {
			log.Printf("display: disabled: %v", err)
		} else {
			loop.Observers = append(loop.Observers, d)
			go d.Run(ctx, time.Duration(cfg.DisplayUpdateInterval)*time.Millisecond)
		}
	}

	err = loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Println("streamer: shutting down")
		return nil
	}
	return err
}

// RunMockStreamer streams synthetic samples over the configured transports
// without touching the I2C bus.
func RunMockStreamer(ctx context.Context, cfg *config.Config) error {
	log.Printf("streamer: starting %s with mock samples", cfg.DeviceName)

	out, err := BuildTransports(cfg)
	if err != nil {
		return err
	}
	if err := out.Init(cfg.DeviceName); err != nil {
		return fmt.Errorf("streamer: transport init: %w", err)
	}
	defer out.Close()

	loop := &Loop{
		Reader:      imu.NewMockReader(),
		Out:         out,
		Interval:    cfg.SampleInterval(),
		StatusEvery: time.Duration(cfg.StatusLogInterval) * time.Millisecond,
		LogFrames:   cfg.LogFrames,
	}
	if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	log.Println("streamer: shutting down")
	return nil
}
