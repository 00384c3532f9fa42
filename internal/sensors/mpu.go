// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/relabs-tech/open_ring/internal/imu"
)

// Address is the MPU-9250/MPU-6050 I2C address with AD0 low.
const Address = 0x68

// Registers used by the streamer.
const (
	RegAccelXOutH = 0x3B
	RegAccelYOutH = 0x3D
	RegAccelZOutH = 0x3F
	RegGyroXOutH  = 0x43
	RegGyroYOutH  = 0x45
	RegGyroZOutH  = 0x47
	RegPwrMgmt1   = 0x6B
	RegWhoAmI     = 0x75

	pwrMgmt1Wake = 0x00 // clears SLEEP, internal oscillator
)

// SampleRegisters lists the high byte of each register pair in frame order.
var SampleRegisters = [6]byte{
	RegAccelXOutH, RegAccelYOutH, RegAccelZOutH,
	RegGyroXOutH, RegGyroYOutH, RegGyroZOutH,
}

var axisNames = [6]string{"accel X", "accel Y", "accel Z", "gyro X", "gyro Y", "gyro Z"}

// RegisterIO is the register access the MPU needs; *bus.Device implements it.
type RegisterIO interface {
	WriteRegister(ctx context.Context, reg, val byte) error
	ReadRegister(ctx context.Context, reg byte) (byte, error)
	ReadRegisterPair(ctx context.Context, reg byte) (int16, error)
}

// MPU is the device session of one inertial sensor.
type MPU struct {
	dev RegisterIO
}

var _ imu.RawReader = (*MPU)(nil)

// NewMPU does not touch the device.
func NewMPU(dev RegisterIO) *MPU {
	return &MPU{dev: dev}
}

// Wake clears sleep mode. Callers may treat failure as non-fatal: the device
// can already be awake from a previous run.
func (m *MPU) Wake(ctx context.Context) error {
	if err := m.dev.WriteRegister(ctx, RegPwrMgmt1, pwrMgmt1Wake); err != nil {
		return fmt.Errorf("mpu: wake: %w", err)
	}
	log.Println("mpu: device awake")
	return nil
}

// WhoAmI returns the identification register (0x71 for MPU-9250, 0x68 for MPU-6050).
func (m *MPU) WhoAmI(ctx context.Context) (byte, error) {
	id, err := m.dev.ReadRegister(ctx, RegWhoAmI)
	if err != nil {
		return 0, fmt.Errorf("mpu: who am i: %w", err)
	}
	return id, nil
}

// ReadRaw reads the six register pairs in frame order. All six reads are
// issued even if one fails; the returned error joins every failed axis and the
// sample must not be used when it is non-nil.
func (m *MPU) ReadRaw(ctx context.Context) (imu.Sample, error) {
	var axes [6]int16
	var errs []error
	for i, reg := range SampleRegisters {
		v, err := m.dev.ReadRegisterPair(ctx, reg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", axisNames[i], err))
			continue
		}
		axes[i] = v
	}
	if len(errs) > 0 {
		return imu.Sample{}, fmt.Errorf("mpu: read sample: %w", errors.Join(errs...))
	}
	return imu.FromAxes(axes), nil
}
