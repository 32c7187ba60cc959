/*
 * Copyright 2020 Guardtime, Inc.
 *
 * This file is part of the Guardtime client SDK.
 *
 * Licensed under the Apache License, Version 2.0 (the "License").
 * You may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *     http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES, CONDITIONS, OR OTHER LICENSES OF ANY KIND, either
 * express or implied. See the License for the specific language governing
 * permissions and limitations under the License.
 * "Guardtime" and "KSI" are trademarks or registered trademarks of
 * Guardtime, Inc., and no license to trademarks is granted; Guardtime
 * reserves and retains all trademark rights.
 */

// Package gst implements the Galileo System Time stamp used throughout the OSNMA engine.
package gst

import (
	"fmt"
)

const (
	// SecondsPerWeek is the number of seconds in one GST week.
	SecondsPerWeek = 604800
	// SubframeSeconds is the duration of an I/NAV subframe.
	SubframeSeconds = 30

	wnMask  = 0xfff
	towMask = 0xfffff
)

// GST is the Galileo System Time: week number and time of week in seconds.
type GST struct {
	WN  uint16
	TOW uint32
}

// New returns a normalized GST. A time of week beyond the week length is carried into the week number.
func New(wn uint16, tow uint32) GST {
	return GST{
		WN:  wn + uint16(tow/SecondsPerWeek),
		TOW: tow % SecondsPerWeek,
	}
}

// FromUint32 decodes the 32-bit OSNMA representation, WN (12 bits) followed by TOW (20 bits).
func FromUint32(v uint32) GST {
	return GST{WN: uint16(v>>20) & wnMask, TOW: v & towMask}
}

// Uint32 returns the 32-bit OSNMA representation, WN (12 bits) followed by TOW (20 bits).
func (g GST) Uint32() uint32 {
	return uint32(g.WN&wnMask)<<20 | g.TOW&towMask
}

// Seconds returns the number of seconds since the GST epoch.
func (g GST) Seconds() int64 {
	return int64(g.WN)*SecondsPerWeek + int64(g.TOW)
}

// FromSeconds is the inverse of Seconds. Negative values are clamped to the epoch.
func FromSeconds(s int64) GST {
	if s < 0 {
		s = 0
	}
	return GST{WN: uint16(s / SecondsPerWeek), TOW: uint32(s % SecondsPerWeek)}
}

// Add returns g shifted by the given number of seconds.
func (g GST) Add(sec int64) GST {
	return FromSeconds(g.Seconds() + sec)
}

// Sub returns g - o in seconds.
func (g GST) Sub(o GST) int64 {
	return g.Seconds() - o.Seconds()
}

// Before reports whether g is earlier than o.
func (g GST) Before(o GST) bool {
	return g.WN < o.WN || (g.WN == o.WN && g.TOW < o.TOW)
}

// After reports whether g is later than o.
func (g GST) After(o GST) bool {
	return o.Before(g)
}

// Compare returns -1, 0 or +1 depending on whether g is before, equal to or after o.
func (g GST) Compare(o GST) int {
	switch {
	case g.Before(o):
		return -1
	case o.Before(g):
		return 1
	}
	return 0
}

// IsZero reports whether g is the zero value.
func (g GST) IsZero() bool {
	return g.WN == 0 && g.TOW == 0
}

// SubframeStart returns the start of the subframe containing g.
func (g GST) SubframeStart() GST {
	return GST{WN: g.WN, TOW: g.TOW - g.TOW%SubframeSeconds}
}

// String implements fmt.(Stringer) interface.
func (g GST) String() string {
	return fmt.Sprintf("WN %d TOW %d", g.WN, g.TOW)
}
