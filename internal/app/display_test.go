package app

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/open_ring/internal/imu"
)

var _ panel = (*fakePanel)(nil)

type fakePanel struct {
	mu      sync.Mutex
	draws   []image.Image
	drawErr error
	halted  bool
}

func (p *fakePanel) Bounds() image.Rectangle { return image.Rect(0, 0, 128, 64) }

func (p *fakePanel) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draws = append(p.draws, src)
	return p.drawErr
}

func (p *fakePanel) Halt() error {
	p.mu.Lock()
	p.halted = true
	p.mu.Unlock()
	return nil
}

func (p *fakePanel) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.draws)
}

func litPixels(img *image1bit.VerticalLSB) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.BitAt(x, y) == image1bit.On {
				n++
			}
		}
	}
	return n
}

func TestRenderSample(t *testing.T) {
	waiting := renderSample("open-ring", imu.Sample{}, false, 0)
	if litPixels(waiting) == 0 {
		t.Fatal("waiting screen is blank")
	}

	a := renderSample("open-ring", imu.Sample{Ax: 100, Ay: -200, Az: 16384, Gy: 5, Gz: -5}, true, 1)
	b := renderSample("open-ring", imu.Sample{Ax: 100, Ay: -200, Az: 16384, Gy: 5, Gz: -5}, true, 1)
	c := renderSample("open-ring", imu.Sample{Ax: -32768, Ay: 32767, Az: 1, Gx: 1, Gy: 1, Gz: 1}, true, 2)
	if litPixels(a) == 0 {
		t.Fatal("sample screen is blank")
	}
	for i := range a.Pix {
		if a.Pix[i] != b.Pix[i] {
			t.Fatal("rendering is not deterministic")
		}
	}
	same := true
	for i := range a.Pix {
		if a.Pix[i] != c.Pix[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different samples rendered identically")
	}
}

func TestDisplayRunRedrawsAndHalts(t *testing.T) {
	p := &fakePanel{}
	d := newDisplay(p, "open-ring")
	if p.count() != 1 {
		t.Fatalf("splash draws = %d", p.count())
	}
	d.Observe(imu.Sample{Ax: 1})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for p.count() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("draws = %d", p.count())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.halted {
		t.Error("panel not halted")
	}
}

func TestDisplayErrorsDoNotStopLoop(t *testing.T) {
	p := &fakePanel{drawErr: errors.New("nack")}
	d := newDisplay(p, "open-ring")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for p.count() < 4 {
		if time.Now().After(deadline) {
			t.Fatalf("draws = %d", p.count())
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done
}
