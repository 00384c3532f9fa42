// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/open_ring/internal/imu"
)

// panel is the part of *ssd1306.Dev the display uses.
type panel interface {
	Bounds() image.Rectangle
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
	Halt() error
}

// Display shows the latest sample on a 128x64 SSD1306 OLED. It shares the
// I2C bus with the sensor and redraws from its own goroutine.
type Display struct {
	dev  panel
	name string

	mu     sync.Mutex
	latest imu.Sample
	have   bool
	frames uint64
}

var _ Observer = (*Display)(nil)

// NewDisplay initializes the OLED at its fixed address 0x3C and shows a splash
// screen.
func NewDisplay(b i2c.Bus, name string) (*Display, error) {
	dev, err := ssd1306.NewI2C(b, &ssd1306.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized %s", dev)
	return newDisplay(dev, name), nil
}

func newDisplay(dev panel, name string) *Display {
	d := &Display{dev: dev, name: name}
	if err := d.dev.Draw(d.dev.Bounds(), renderSplash(name), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}
	return d
}

// Observe stores s for the next redraw.
func (d *Display) Observe(s imu.Sample) {
	d.mu.Lock()
	d.latest = s
	d.have = true
	d.frames++
	d.mu.Unlock()
}

// Run redraws every interval until ctx is cancelled, then blanks the panel.
func (d *Display) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Println("display: starting update loop")
	for {
		select {
		case <-ctx.Done():
			if err := d.dev.Halt(); err != nil {
				log.Printf("display: halt error: %v", err)
			}
			return
		case <-ticker.C:
			if err := d.update(); err != nil {
				log.Printf("display: error updating display: %v", err)
			}
		}
	}
}

func (d *Display) update() error {
	d.mu.Lock()
	s, have, n := d.latest, d.have, d.frames
	d.mu.Unlock()

	return d.dev.Draw(d.dev.Bounds(), renderSample(d.name, s, have, n), image.Point{})
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func renderSplash(name string) *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawString(name)

	drawer.Dot = fixed.P(10, 43)
	drawer.DrawString("IMU stream")

	return img
}

func renderSample(name string, s imu.Sample, have bool, frames uint64) *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	if !have {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawString(name)
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawString("Waiting...")
		return img
	}

	// Accel
	drawer.Dot = fixed.P(0, 13)
	drawer.DrawString(fmt.Sprintf("A:%6d %6d", s.Ax, s.Ay))
	drawer.Dot = fixed.P(0, 26)
	drawer.DrawString(fmt.Sprintf("  %6d", s.Az))

	// Gyro
	drawer.Dot = fixed.P(0, 39)
	drawer.DrawString(fmt.Sprintf("G:%6d %6d", s.Gx, s.Gy))
	drawer.Dot = fixed.P(0, 52)
	drawer.DrawString(fmt.Sprintf("  %6d  #%d", s.Gz, frames%1000))

	return img
}
