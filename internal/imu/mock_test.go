package imu

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestMockReaderAtRest(t *testing.T) {
	start := time.Unix(1000, 0)
	m := &mockReader{start: start, now: func() time.Time { return start }}

	s, err := m.ReadRaw(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// t=0: no roll, pitch 0.25 rad.
	wantAx := int16(AccelLSBPerG * math.Sin(0.25))
	if s.Ax != wantAx || s.Ay != 0 {
		t.Errorf("accel x,y = %d,%d want %d,0", s.Ax, s.Ay, wantAx)
	}
	if s.Gz != int16(GyroLSBPerDegS*30) {
		t.Errorf("gz = %d", s.Gz)
	}
	// Gravity stays near 1 g.
	if g := math.Hypot(math.Hypot(float64(s.Ax), float64(s.Ay)), float64(s.Az)) / AccelLSBPerG; math.Abs(g-1) > 0.01 {
		t.Errorf("|a| = %.3f g", g)
	}
}

func TestMockReaderFramesFit(t *testing.T) {
	start := time.Unix(1000, 0)
	now := start
	m := &mockReader{start: start, now: func() time.Time { return now }}
	for i := 0; i < 200; i++ {
		now = start.Add(time.Duration(i) * 73 * time.Millisecond)
		s, err := m.ReadRaw(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if n := len(FormatFrame(s)); n > MaxFrameLen {
			t.Fatalf("frame %d bytes", n)
		}
	}
}

func TestMockReaderHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockReader().ReadRaw(ctx); err == nil {
		t.Fatal("expected error")
	}
}
