// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxFrameLen is the longest possible frame: six "-32768" and five commas.
const MaxFrameLen = 6*6 + 5

// ErrMalformedFrame is returned by ParseFrame.
var ErrMalformedFrame = errors.New("imu: malformed frame")

// FormatFrame renders s as "ax,ay,az,gx,gy,gz".
func FormatFrame(s Sample) string {
	var buf [MaxFrameLen]byte
	return string(AppendFrame(buf[:0], s))
}

// AppendFrame appends the frame for s to dst.
func AppendFrame(dst []byte, s Sample) []byte {
	for i, v := range s.Axes() {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = strconv.AppendInt(dst, int64(v), 10)
	}
	return dst
}

// ParseFrame decodes a frame produced by FormatFrame. Leading and trailing
// whitespace around the whole frame (line endings) is ignored; anything else
// that is not exactly six comma separated int16 values is rejected.
func ParseFrame(frame string) (Sample, error) {
	parts := strings.Split(strings.TrimSpace(frame), ",")
	if len(parts) != 6 {
		return Sample{}, fmt.Errorf("%w: %d fields in %q", ErrMalformedFrame, len(parts), frame)
	}
	var axes [6]int16
	for i, p := range parts {
		v, err := strconv.ParseInt(p, 10, 16)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, i, err)
		}
		axes[i] = int16(v)
	}
	return FromAxes(axes), nil
}
