package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"github.com/relabs-tech/open_ring/internal/bus"
	"github.com/relabs-tech/open_ring/internal/config"
	"github.com/relabs-tech/open_ring/internal/imu"
	"github.com/relabs-tech/open_ring/internal/transport"
)

var (
	_ i2c.Bus             = (*eventBus)(nil)
	_ transport.Transport = (*recordTransport)(nil)
	_ imu.RawReader       = (*scriptReader)(nil)
)

// eventLog is shared by fakes that must be checked for relative order.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(format string, args ...any) {
	l.mu.Lock()
	l.events = append(l.events, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// eventBus answers pair reads from regs and logs every transaction.
type eventBus struct {
	log      *eventLog
	regs     map[byte][2]byte
	writeErr error
	readErr  error
	txs      int
}

func (b *eventBus) String() string                { return "event-i2c" }
func (b *eventBus) SetSpeed(physic.Frequency) error { return nil }

func (b *eventBus) Tx(addr uint16, w, r []byte) error {
	b.txs++
	if len(r) == 0 {
		b.log.add("write 0x%02X % X", addr, w)
		return b.writeErr
	}
	b.log.add("read 0x%02X 0x%02X", addr, w[0])
	if b.readErr != nil {
		return b.readErr
	}
	v := b.regs[w[0]]
	copy(r, v[:])
	return nil
}

type recordTransport struct {
	log     *eventLog
	initErr error
	sendErr error

	mu   sync.Mutex
	sent []string
}

func (t *recordTransport) Init(name string) error {
	if t.log != nil {
		t.log.add("init %s", name)
	}
	return t.initErr
}

func (t *recordTransport) Send(p []byte) error {
	t.mu.Lock()
	t.sent = append(t.sent, string(p))
	t.mu.Unlock()
	return t.sendErr
}

func (t *recordTransport) Close() error { return nil }

func (t *recordTransport) frames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

// scriptReader returns samples in turn, failing on the listed calls.
type scriptReader struct {
	samples []imu.Sample
	fail    map[int]error
	calls   int
	after   func(call int)
}

func (r *scriptReader) ReadRaw(ctx context.Context) (imu.Sample, error) {
	r.calls++
	if r.after != nil {
		defer r.after(r.calls)
	}
	if err := r.fail[r.calls]; err != nil {
		return imu.Sample{}, err
	}
	return r.samples[(r.calls-1)%len(r.samples)], nil
}

type sampleSink struct{ got []imu.Sample }

func (s *sampleSink) Observe(v imu.Sample) { s.got = append(s.got, v) }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.I2CSDAPin = ""
	cfg.I2CSCLPin = ""
	return cfg
}

func testRegs() map[byte][2]byte {
	return map[byte][2]byte{
		0x3B: {0x00, 0x64}, // 100
		0x3D: {0xFF, 0x38}, // -200
		0x3F: {0x40, 0x00}, // 16384
		0x43: {0x00, 0x00}, // 0
		0x45: {0x00, 0x05}, // 5
		0x47: {0xFF, 0xFB}, // -5
	}
}

func TestBringUpOrder(t *testing.T) {
	events := &eventLog{}
	tr := &recordTransport{log: events}
	eb := &eventBus{log: events, regs: testRegs()}

	b, mpu, err := BringUp(context.Background(), testConfig(), tr, func(p bus.Params) (*bus.Bus, error) {
		events.add("configure %d", p.ClockHz)
		return bus.Attach(eb, p)
	})
	if err != nil {
		t.Fatal(err)
	}
	if b == nil || mpu == nil {
		t.Fatal("nil bus or mpu")
	}

	s, err := mpu.ReadRaw(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := imu.FormatFrame(s); got != "100,-200,16384,0,5,-5" {
		t.Errorf("frame = %q", got)
	}

	want := []string{
		"init open-ring",
		"configure 400000",
		"write 0x68 6B 00",
		"read 0x68 0x3B",
		"read 0x68 0x3D",
		"read 0x68 0x3F",
		"read 0x68 0x43",
		"read 0x68 0x45",
		"read 0x68 0x47",
	}
	got := events.snapshot()
	if len(got) != len(want) {
		t.Fatalf("events = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBringUpBusFailureIssuesNoTransaction(t *testing.T) {
	tr := &recordTransport{}
	eb := &eventBus{log: &eventLog{}}
	noController := errors.New("no controller")

	_, _, err := BringUp(context.Background(), testConfig(), tr, func(bus.Params) (*bus.Bus, error) {
		return nil, noController
	})
	if !errors.Is(err, noController) {
		t.Fatalf("err = %v", err)
	}
	if eb.txs != 0 {
		t.Fatalf("%d transactions issued", eb.txs)
	}
}

func TestBringUpTransportFailureIsFatal(t *testing.T) {
	configured := false
	tr := &recordTransport{initErr: errors.New("no adapter")}
	_, _, err := BringUp(context.Background(), testConfig(), tr, func(bus.Params) (*bus.Bus, error) {
		configured = true
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if configured {
		t.Error("bus configured after transport failure")
	}
}

func TestBringUpWakeFailureStillSamples(t *testing.T) {
	events := &eventLog{}
	eb := &eventBus{log: events, regs: testRegs(), writeErr: errors.New("nack")}

	_, mpu, err := BringUp(context.Background(), testConfig(), &recordTransport{}, func(p bus.Params) (*bus.Bus, error) {
		return bus.Attach(eb, p)
	})
	if err != nil {
		t.Fatalf("wake failure must not fail bring-up: %v", err)
	}
	out := &recordTransport{}
	loop := &Loop{Reader: mpu, Out: out, Interval: time.Millisecond}
	loop.Cycle(context.Background())

	if f := out.frames(); len(f) != 1 || f[0] != "100,-200,16384,0,5,-5" {
		t.Fatalf("frames = %q", f)
	}
	if got := events.snapshot(); len(got) != 7 {
		t.Fatalf("events = %q", got)
	}
}

func TestCycleEmitsFrame(t *testing.T) {
	out := &recordTransport{}
	sink := &sampleSink{}
	s := imu.Sample{Ax: 100, Ay: -200, Az: 16384, Gx: 0, Gy: 5, Gz: -5}
	loop := &Loop{
		Reader:    &scriptReader{samples: []imu.Sample{s}},
		Out:       out,
		Interval:  time.Millisecond,
		LogFrames: true,
		Observers: []Observer{sink},
	}
	loop.Cycle(context.Background())

	if f := out.frames(); len(f) != 1 || f[0] != "100,-200,16384,0,5,-5" {
		t.Fatalf("frames = %q", f)
	}
	if len(sink.got) != 1 || sink.got[0] != s {
		t.Fatalf("observed %v", sink.got)
	}
	if st := loop.Stats(); st != (Stats{Cycles: 1, Frames: 1}) {
		t.Fatalf("stats = %+v", st)
	}
}

func TestCycleSkipsFrameOnReadError(t *testing.T) {
	out := &recordTransport{}
	sink := &sampleSink{}
	r := &scriptReader{
		samples: []imu.Sample{{Ax: 1}},
		fail:    map[int]error{1: errors.New("nack"), 2: errors.New("nack")},
	}
	loop := &Loop{Reader: r, Out: out, Interval: time.Millisecond, StatusEvery: time.Hour, Observers: []Observer{sink}}

	for i := 0; i < 3; i++ {
		loop.Cycle(context.Background())
	}
	if f := out.frames(); len(f) != 1 || f[0] != "1,0,0,0,0,0" {
		t.Fatalf("frames = %q", f)
	}
	if len(sink.got) != 1 {
		t.Fatalf("observed %d samples", len(sink.got))
	}
	if st := loop.Stats(); st != (Stats{Cycles: 3, Frames: 1, ReadErrors: 2}) {
		t.Fatalf("stats = %+v", st)
	}
}

func TestReadErrorsAreRateLimitedWithoutStatusLine(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	fail := map[int]error{}
	for i := 1; i <= 50; i++ {
		fail[i] = errors.New("nack")
	}
	r := &scriptReader{samples: []imu.Sample{{}}, fail: fail}
	loop := &Loop{Reader: r, Out: &recordTransport{}, Interval: time.Millisecond}

	for i := 0; i < 50; i++ {
		loop.Cycle(context.Background())
	}
	if n := strings.Count(buf.String(), "read failed"); n != 1 {
		t.Fatalf("logged %d read failures, want 1:\n%s", n, buf.String())
	}
	if st := loop.Stats(); st.ReadErrors != 50 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestSendFailureDoesNotAffectNextFrame(t *testing.T) {
	out := &recordTransport{sendErr: transport.ErrNoPeer}
	r := &scriptReader{samples: []imu.Sample{
		{Ax: 1, Ay: 2, Az: 3, Gx: 4, Gy: 5, Gz: 6},
		{Ax: -1, Ay: -2, Az: -3, Gx: -4, Gy: -5, Gz: -6},
	}}
	loop := &Loop{Reader: r, Out: out, Interval: time.Millisecond}

	loop.Cycle(context.Background())
	out.sendErr = nil
	loop.Cycle(context.Background())

	want := []string{"1,2,3,4,5,6", "-1,-2,-3,-4,-5,-6"}
	got := out.frames()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("frames = %q", got)
	}
	if st := loop.Stats(); st.SendErrors != 1 || st.Frames != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestRunKeepsCadenceWhileSendsFail(t *testing.T) {
	const cycles = 6
	const interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &recordTransport{sendErr: errors.New("link down")}
	r := &scriptReader{
		samples: []imu.Sample{{Ax: 7}},
		after: func(call int) {
			if call == cycles {
				cancel()
			}
		},
	}
	loop := &Loop{Reader: r, Out: out, Interval: interval, StatusEvery: time.Millisecond}

	start := time.Now()
	if err := loop.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	elapsed := time.Since(start)

	if r.calls != cycles {
		t.Fatalf("reads = %d, want %d", r.calls, cycles)
	}
	if f := out.frames(); len(f) != cycles {
		t.Fatalf("sent %d frames", len(f))
	}
	for _, f := range out.frames() {
		if f != "7,0,0,0,0,0" {
			t.Fatalf("frame %q", f)
		}
	}
	if floor := (cycles - 2) * interval; elapsed < floor {
		t.Fatalf("ran %d cycles in %s, faster than the %s cadence", cycles, elapsed, interval)
	}
	if st := loop.Stats(); st.SendErrors != cycles {
		t.Fatalf("stats = %+v", st)
	}
}

func TestEndToEndOverPlaybackBus(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x68, W: []byte{0x6B, 0x00}},
			{Addr: 0x68, W: []byte{0x3B}, R: []byte{0x00, 0x64}},
			{Addr: 0x68, W: []byte{0x3D}, R: []byte{0xFF, 0x38}},
			{Addr: 0x68, W: []byte{0x3F}, R: []byte{0x40, 0x00}},
			{Addr: 0x68, W: []byte{0x43}, R: []byte{0x00, 0x00}},
			{Addr: 0x68, W: []byte{0x45}, R: []byte{0x00, 0x05}},
			{Addr: 0x68, W: []byte{0x47}, R: []byte{0xFF, 0xFB}},
		},
	}
	out := &recordTransport{}
	_, mpu, err := BringUp(context.Background(), testConfig(), out, func(p bus.Params) (*bus.Bus, error) {
		return bus.Attach(pb, p)
	})
	if err != nil {
		t.Fatal(err)
	}

	loop := &Loop{Reader: mpu, Out: out, Interval: time.Millisecond}
	loop.Cycle(context.Background())

	if f := out.frames(); len(f) != 1 || f[0] != "100,-200,16384,0,5,-5" {
		t.Fatalf("frames = %q", f)
	}
	if err := pb.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBuildTransports(t *testing.T) {
	cfg := config.Default()
	cfg.Transports = []string{"serial", "mqtt", "websocket"}
	if _, err := BuildTransports(cfg); err != nil {
		t.Fatal(err)
	}

	cfg.Transports = []string{"ble"}
	cfg.BLEServiceUUID = "bogus"
	if _, err := BuildTransports(cfg); err == nil {
		t.Fatal("expected error for bad BLE UUID")
	}

	cfg.Transports = []string{"carrier-pigeon"}
	if _, err := BuildTransports(cfg); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}
