// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/open_ring/internal/bus"
	"github.com/relabs-tech/open_ring/internal/config"
	"github.com/relabs-tech/open_ring/internal/imu"
	"github.com/relabs-tech/open_ring/internal/sensors"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// RegisterCmd is a WebSocket request to the register debugger.
type RegisterCmd struct {
	Action  string `json:"action"` // "get_map", "read", "read_pair", "write", "read_sample"
	Address string `json:"addr,omitempty"`
	Value   string `json:"value,omitempty"`
}

// RegisterResponse is sent back for every command.
type RegisterResponse struct {
	Type        string                 `json:"type"` // "register_map", "register_data", "sample", "error"
	Address     string                 `json:"addr,omitempty"`
	Value       string                 `json:"value,omitempty"`
	Word        *int16                 `json:"word,omitempty"`
	Sample      *imu.Sample            `json:"sample,omitempty"`
	Frame       string                 `json:"frame,omitempty"`
	Timestamp   string                 `json:"timestamp,omitempty"`
	Message     string                 `json:"message,omitempty"`
	RegisterMap []sensors.RegisterInfo `json:"register_map,omitempty"`
}

// RegisterDebug serves register level access to the sensor over WebSocket.
type RegisterDebug struct {
	regs    sensors.RegisterIO
	mpu     *sensors.MPU
	allowed []sensors.AddrRange
	timeout time.Duration
}

// NewRegisterDebug allows writes only to registers inside allowed.
func NewRegisterDebug(regs sensors.RegisterIO, allowed []sensors.AddrRange) *RegisterDebug {
	return &RegisterDebug{
		regs:    regs,
		mpu:     sensors.NewMPU(regs),
		allowed: allowed,
		timeout: 2 * time.Second,
	}
}

// Handler serves /ws and /api/imu.
func (d *RegisterDebug) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.HandleWS)
	mux.HandleFunc("/api/imu", d.HandleIMUData)
	return mux
}

// HandleWS handles one register debugging session. The register map is sent
// on connect.
func (d *RegisterDebug) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("register_debug: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(d.registerMap()); err != nil {
		log.Printf("register_debug: error sending register map: %v", err)
		return
	}

	for {
		var cmd RegisterCmd
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("register_debug: websocket error: %v", err)
			}
			return
		}

		resp := d.dispatch(r.Context(), cmd)
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("register_debug: write error: %v", err)
			return
		}
	}
}

func (d *RegisterDebug) dispatch(ctx context.Context, cmd RegisterCmd) RegisterResponse {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch cmd.Action {
	case "get_map":
		return d.registerMap()
	case "read":
		return d.handleRead(ctx, cmd)
	case "read_pair":
		return d.handleReadPair(ctx, cmd)
	case "write":
		return d.handleWrite(ctx, cmd)
	case "read_sample":
		return d.handleReadSample(ctx)
	case "":
		return errorResponse("missing action field")
	default:
		return errorResponse(fmt.Sprintf("unknown action: %s", cmd.Action))
	}
}

func (d *RegisterDebug) registerMap() RegisterResponse {
	return RegisterResponse{Type: "register_map", RegisterMap: sensors.RegisterMap()}
}

func (d *RegisterDebug) handleRead(ctx context.Context, cmd RegisterCmd) RegisterResponse {
	addr, err := parseByte(cmd.Address)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid address format: %q", cmd.Address))
	}
	value, err := d.regs.ReadRegister(ctx, addr)
	if err != nil {
		return errorResponse(fmt.Sprintf("read error: %v", err))
	}
	return RegisterResponse{
		Type:      "register_data",
		Address:   fmt.Sprintf("0x%02X", addr),
		Value:     fmt.Sprintf("0x%02X", value),
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func (d *RegisterDebug) handleReadPair(ctx context.Context, cmd RegisterCmd) RegisterResponse {
	addr, err := parseByte(cmd.Address)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid address format: %q", cmd.Address))
	}
	word, err := d.regs.ReadRegisterPair(ctx, addr)
	if err != nil {
		return errorResponse(fmt.Sprintf("read error: %v", err))
	}
	return RegisterResponse{
		Type:      "register_data",
		Address:   fmt.Sprintf("0x%02X", addr),
		Value:     fmt.Sprintf("0x%04X", uint16(word)),
		Word:      &word,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func (d *RegisterDebug) handleWrite(ctx context.Context, cmd RegisterCmd) RegisterResponse {
	addr, err := parseByte(cmd.Address)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid address format: %q", cmd.Address))
	}
	value, err := parseByte(cmd.Value)
	if err != nil {
		return errorResponse(fmt.Sprintf("invalid value format: %q", cmd.Value))
	}
	if !sensors.Writable(addr, d.allowed) {
		return errorResponse(fmt.Sprintf("register 0x%02X not in allowed write ranges", addr))
	}
	if err := d.regs.WriteRegister(ctx, addr, value); err != nil {
		return errorResponse(fmt.Sprintf("write error: %v", err))
	}
	log.Printf("register_debug: wrote 0x%02X to 0x%02X", value, addr)
	return RegisterResponse{
		Type:      "register_data",
		Address:   fmt.Sprintf("0x%02X", addr),
		Value:     fmt.Sprintf("0x%02X", value),
		Timestamp: time.Now().Format(time.RFC3339),
		Message:   "write successful",
	}
}

func (d *RegisterDebug) handleReadSample(ctx context.Context) RegisterResponse {
	s, err := d.mpu.ReadRaw(ctx)
	if err != nil {
		return errorResponse(fmt.Sprintf("read error: %v", err))
	}
	return RegisterResponse{
		Type:      "sample",
		Sample:    &s,
		Frame:     imu.FormatFrame(s),
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

// HandleIMUData serves one fresh sample as JSON.
func (d *RegisterDebug) HandleIMUData(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ctx, cancel := context.WithTimeout(r.Context(), d.timeout)
	defer cancel()

	s, err := d.mpu.ReadRaw(ctx)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	json.NewEncoder(w).Encode(s)
}

func errorResponse(message string) RegisterResponse {
	return RegisterResponse{Type: "error", Message: message}
}

// parseByte accepts "0x6B", "107" or "0b01101011".
func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, err
	}
	return byte(v), nil
}

// RunRegisterDebug brings up the bus and serves the register debugger until
// ctx is cancelled.
func RunRegisterDebug(ctx context.Context, cfg *config.Config) error {
	b, err := bus.Configure(busParams(cfg))
	if err != nil {
		return err
	}
	defer b.Close()

	dev := b.Device(cfg.IMUI2CAddr)
	if id, err := sensors.NewMPU(dev).WhoAmI(ctx); err != nil {
		log.Printf("register_debug: warning: %v", err)
	} else {
		log.Printf("register_debug: WHO_AM_I=0x%02X", id)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.RegisterDebugPort),
		Handler: NewRegisterDebug(dev, cfg.RegisterDebugAllowedRanges).Handler(),
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Printf("register_debug: listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
