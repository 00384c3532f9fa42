package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/relabs-tech/open_ring/internal/config"
	"github.com/relabs-tech/open_ring/internal/imu"
)

const plotHistory = 120

// dashboard is the terminal view of the telemetry stream: a table with the
// latest raw and scaled values and one line plot each for accel and gyro.
type dashboard struct {
	mu sync.Mutex

	table *widgets.Table
	accel *widgets.Plot
	gyro  *widgets.Plot

	frames    uint64
	malformed uint64
}

func newDashboard() *dashboard {
	table := widgets.NewTable()
	table.Title = "open-ring"
	table.Rows = [][]string{
		{"axis", "raw", "scaled"},
		{"ax", "", ""}, {"ay", "", ""}, {"az", "", ""},
		{"gx", "", ""}, {"gy", "", ""}, {"gz", "", ""},
		{"frames", "0", "malformed 0"},
	}
	table.TextStyle = ui.NewStyle(ui.ColorWhite)
	table.TextAlignment = ui.AlignRight
	table.SetRect(0, 0, 40, 17)

	newPlot := func(title string, y0 int) *widgets.Plot {
		p := widgets.NewPlot()
		p.Title = title
		p.Marker = widgets.MarkerBraille
		p.LineColors = []ui.Color{ui.ColorRed, ui.ColorGreen, ui.ColorBlue}
		// the plot needs two points per series before anything arrives
		p.Data = [][]float64{{0, 0}, {0, 0}, {0, 0}}
		p.SetRect(40, y0, 40+plotHistory+10, y0+12)
		return p
	}

	return &dashboard{
		table: table,
		accel: newPlot("accel x/y/z (g)", 0),
		gyro:  newPlot("gyro x/y/z (°/s)", 12),
	}
}

// push records one frame payload.
func (d *dashboard) push(payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := imu.ParseFrame(string(payload))
	if err != nil {
		d.malformed++
		d.table.Rows[7][2] = fmt.Sprintf("malformed %d", d.malformed)
		return
	}
	d.frames++

	sc := s.Scaled()
	raw := s.Axes()
	scaled := [6]float64{sc.Ax, sc.Ay, sc.Az, sc.Gx, sc.Gy, sc.Gz}
	for i := range raw {
		unit := "g"
		if i >= 3 {
			unit = "°/s"
		}
		d.table.Rows[1+i][1] = fmt.Sprintf("%d", raw[i])
		d.table.Rows[1+i][2] = fmt.Sprintf("%.3f %s", scaled[i], unit)
	}
	d.table.Rows[7][1] = fmt.Sprintf("%d", d.frames)

	for i := 0; i < 3; i++ {
		d.accel.Data[i] = appendHistory(d.accel.Data[i], scaled[i])
		d.gyro.Data[i] = appendHistory(d.gyro.Data[i], scaled[3+i])
	}
}

func appendHistory(series []float64, v float64) []float64 {
	series = append(series, v)
	if len(series) > plotHistory {
		series = series[len(series)-plotHistory:]
	}
	return series
}

func (d *dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()
	ui.Render(d.table, d.accel, d.gyro)
}

// RunConsoleTUI shows the telemetry stream as a terminal dashboard until ctx
// is cancelled or the user presses q.
func RunConsoleTUI(ctx context.Context, cfg *config.Config) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	if err := ui.Init(); err != nil {
		return fmt.Errorf("failed to initialize termui: %w", err)
	}
	defer ui.Close()

	d := newDashboard()
	token := client.Subscribe(cfg.TopicTelemetry, 0, func(_ mqtt.Client, msg mqtt.Message) {
		d.push(msg.Payload())
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	uiEvents := ui.PollEvents()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			}
		case <-ticker.C:
			d.render()
		}
	}
}
