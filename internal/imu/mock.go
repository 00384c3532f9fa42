// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"context"
	"math"
	"time"
)

type mockReader struct {
	start time.Time
	now   func() time.Time
}

// NewMockReader returns a RawReader that generates smoothly changing
// samples: a slow tilt on the accelerometer and a steady turn on the gyro.
func NewMockReader() RawReader {
	return &mockReader{start: time.Now(), now: time.Now}
}

func (m *mockReader) ReadRaw(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}
	elapsed := m.now().Sub(m.start).Seconds()

	roll := 0.35 * math.Sin(elapsed)
	pitch := 0.25 * math.Cos(elapsed*0.7)

	return Sample{
		Ax: int16(AccelLSBPerG * math.Sin(pitch)),
		Ay: int16(-AccelLSBPerG * math.Sin(roll)),
		Az: int16(AccelLSBPerG * math.Cos(roll) * math.Cos(pitch)),
		Gx: int16(GyroLSBPerDegS * 20 * math.Cos(elapsed)),
		Gy: int16(GyroLSBPerDegS * -10 * math.Sin(elapsed*0.7)),
		Gz: int16(GyroLSBPerDegS * 30),
	}, nil
}
