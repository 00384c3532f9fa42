// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"strconv"
	"strings"
)

// BitField describes a field inside a register.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo is register metadata for the debug tool.
type RegisterInfo struct {
	Address     byte       `json:"-"`
	Hex         string     `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	Pair        bool       `json:"pair,omitempty"` // high byte of a big-endian word
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// RegisterMap returns metadata for the registers this firmware touches plus
// the configuration block around them.
func RegisterMap() []RegisterInfo {
	regs := []RegisterInfo{
		// Configuration
		{Address: 0x19, Name: "SMPLRT_DIV", Description: "Sample Rate Divider", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "7:0", Name: "SMPLRT_DIV", Description: "Sample Rate = Internal_Sample_Rate / (1 + SMPLRT_DIV)", Values: "0-255"},
			}},
		{Address: 0x1A, Name: "CONFIG", Description: "Configuration (DLPF)", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "2:0", Name: "DLPF_CFG", Description: "Digital Low Pass Filter", Values: "0=250Hz, 1=184Hz, 2=92Hz, 3=41Hz, 4=20Hz, 5=10Hz, 6=5Hz, 7=3600Hz"},
			}},
		{Address: 0x1B, Name: "GYRO_CONFIG", Description: "Gyroscope Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4:3", Name: "GYRO_FS_SEL", Description: "Gyro Full Scale Range", Values: "0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s"},
			}},
		{Address: 0x1C, Name: "ACCEL_CONFIG", Description: "Accelerometer Configuration", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "4:3", Name: "ACCEL_FS_SEL", Description: "Accel Full Scale Range", Values: "0=±2g, 1=±4g, 2=±8g, 3=±16g"},
			}},
		{Address: 0x1D, Name: "ACCEL_CONFIG2", Description: "Accelerometer Configuration 2", Access: "RW", Default: "0x00"},

		// Sample data
		{Address: RegAccelXOutH, Name: "ACCEL_XOUT", Description: "Accelerometer X", Access: "R", Pair: true},
		{Address: RegAccelYOutH, Name: "ACCEL_YOUT", Description: "Accelerometer Y", Access: "R", Pair: true},
		{Address: RegAccelZOutH, Name: "ACCEL_ZOUT", Description: "Accelerometer Z", Access: "R", Pair: true},
		{Address: 0x41, Name: "TEMP_OUT", Description: "Temperature", Access: "R", Pair: true},
		{Address: RegGyroXOutH, Name: "GYRO_XOUT", Description: "Gyroscope X", Access: "R", Pair: true},
		{Address: RegGyroYOutH, Name: "GYRO_YOUT", Description: "Gyroscope Y", Access: "R", Pair: true},
		{Address: RegGyroZOutH, Name: "GYRO_ZOUT", Description: "Gyroscope Z", Access: "R", Pair: true},

		// Power and identification
		{Address: RegPwrMgmt1, Name: "PWR_MGMT_1", Description: "Power Management 1", Access: "RW", Default: "0x01",
			BitFields: []BitField{
				{Bits: "7", Name: "H_RESET", Description: "Device reset", Values: "1=Reset device"},
				{Bits: "6", Name: "SLEEP", Description: "Sleep mode", Values: "0=Disabled, 1=Sleep"},
				{Bits: "5", Name: "CYCLE", Description: "Cycle mode", Values: "0=Disabled, 1=Cycle"},
				{Bits: "2:0", Name: "CLKSEL", Description: "Clock source", Values: "0=Internal 20MHz, 1=Auto select best"},
			}},
		{Address: 0x6C, Name: "PWR_MGMT_2", Description: "Power Management 2", Access: "RW", Default: "0x00"},
		{Address: RegWhoAmI, Name: "WHO_AM_I", Description: "Device ID (0x71 MPU-9250, 0x68 MPU-6050)", Access: "R"},
	}
	for i := range regs {
		regs[i].Hex = fmt.Sprintf("0x%02X", regs[i].Address)
	}
	return regs
}

// AddrRange is an inclusive register address range.
type AddrRange struct {
	Lo, Hi byte
}

// ParseRanges parses "0x19-0x1D,0x6B" style lists.
func ParseRanges(s string) ([]AddrRange, error) {
	var out []AddrRange
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		loStr, hiStr, isRange := strings.Cut(part, "-")
		lo, err := strconv.ParseUint(strings.TrimSpace(loStr), 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid register %q: %w", loStr, err)
		}
		hi := lo
		if isRange {
			hi, err = strconv.ParseUint(strings.TrimSpace(hiStr), 0, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid register %q: %w", hiStr, err)
			}
		}
		if hi < lo {
			return nil, fmt.Errorf("invalid register range %q", part)
		}
		out = append(out, AddrRange{Lo: byte(lo), Hi: byte(hi)})
	}
	return out, nil
}

// Writable reports whether reg falls in one of ranges.
func Writable(reg byte, ranges []AddrRange) bool {
	for _, r := range ranges {
		if reg >= r.Lo && reg <= r.Hi {
			return true
		}
	}
	return false
}
