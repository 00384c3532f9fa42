// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import "context"

// Default full-scale sensitivities (±2 g, ±250 °/s) after a plain wake-up.
const (
	AccelLSBPerG   = 16384.0
	GyroLSBPerDegS = 131.0
)

// Sample is one raw accel+gyro reading in sensor counts.
type Sample struct {
	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// Axes returns the readings in wire order: accel x,y,z then gyro x,y,z.
func (s Sample) Axes() [6]int16 {
	return [6]int16{s.Ax, s.Ay, s.Az, s.Gx, s.Gy, s.Gz}
}

// FromAxes is the inverse of Axes.
func FromAxes(a [6]int16) Sample {
	return Sample{Ax: a[0], Ay: a[1], Az: a[2], Gx: a[3], Gy: a[4], Gz: a[5]}
}

// Scaled is a Sample converted to g and degrees per second.
type Scaled struct {
	Ax, Ay, Az float64 // g
	Gx, Gy, Gz float64 // °/s
}

// Scaled converts raw counts using the default full-scale ranges.
func (s Sample) Scaled() Scaled {
	return Scaled{
		Ax: float64(s.Ax) / AccelLSBPerG,
		Ay: float64(s.Ay) / AccelLSBPerG,
		Az: float64(s.Az) / AccelLSBPerG,
		Gx: float64(s.Gx) / GyroLSBPerDegS,
		Gy: float64(s.Gy) / GyroLSBPerDegS,
		Gz: float64(s.Gz) / GyroLSBPerDegS,
	}
}

// RawReader produces raw samples.
type RawReader interface {
	ReadRaw(ctx context.Context) (Sample, error)
}
