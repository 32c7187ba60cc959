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

// Package auth aggregates the tag verification verdicts into per satellite authentication state and declares the
// time to first authenticated fix (TTFAF).
package auth

import (
	"fmt"
	"strings"

	"github.com/guardtime/goosnma/errors"
)

// Field is a bit set of navigation data fields.
type Field uint8

const (
	// Ephemeris is the satellite orbit data.
	Ephemeris Field = 1 << iota
	// Clock is the satellite clock correction data.
	Clock
	// Status is the signal health and validity data.
	Status
	// Timing is the GST-UTC and GST-GPS conversion data.
	Timing

	// NoFields is the empty set.
	NoFields Field = 0
	// FixFields is the minimum set needed for a position fix.
	FixFields = Ephemeris | Clock
)

var fieldNames = []struct {
	f    Field
	name string
}{
	{Ephemeris, "ephemeris"},
	{Clock, "clock"},
	{Status, "status"},
	{Timing, "timing"},
}

// String implements fmt.(Stringer) interface.
func (f Field) String() string {
	if f == NoFields {
		return "none"
	}
	var names []string
	for _, n := range fieldNames {
		if f&n.f != 0 {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Has reports whether every field of o is in f.
func (f Field) Has(o Field) bool {
	return f&o == o
}

// Each calls fn for every single field in the set.
func (f Field) Each(fn func(Field)) {
	for _, n := range fieldNames {
		if f&n.f != 0 {
			fn(n.f)
		}
	}
}

// ParseField parses a '|' or ',' separated list of field names.
func ParseField(s string) (Field, error) {
	var f Field
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		part = strings.ToLower(strings.TrimSpace(part))
		found := false
		for _, n := range fieldNames {
			if n.name == part {
				f |= n.f
				found = true
				break
			}
		}
		if !found {
			return NoFields, errors.New(errors.OsnmaInvalidFormatError).
				AppendMessage(fmt.Sprintf("Unknown navigation data field: %q.", part))
		}
	}
	return f, nil
}

// ADKD classes of the OSNMA tags.
const (
	// ADKDEphemeris authenticates ephemeris, clock and status data.
	ADKDEphemeris uint8 = 0
	// ADKDTiming authenticates the timing data.
	ADKDTiming uint8 = 4
	// ADKDSlowMAC authenticates ephemeris, clock and status data with a delayed key.
	ADKDSlowMAC uint8 = 12
)

// FieldsOf returns the fields authenticated by a tag of the ADKD class. Unknown classes authenticate nothing.
func FieldsOf(adkd uint8) Field {
	switch adkd {
	case ADKDEphemeris, ADKDSlowMAC:
		return Ephemeris | Clock | Status
	case ADKDTiming:
		return Timing
	}
	return NoFields
}

// Verdict is the authentication state of one field.
type Verdict byte

const (
	// Unauthenticated means no verdict has been reached.
	Unauthenticated Verdict = iota
	// Authenticated means a tag covering the field verified.
	Authenticated
	// Failed means a tag covering the field did not verify.
	Failed
	// Expired means the tag could not be verified within the pending window.
	Expired
)

// String implements fmt.(Stringer) interface.
func (v Verdict) String() string {
	switch v {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	case Expired:
		return "expired"
	}
	return fmt.Sprintf("verdict(%d)", byte(v))
}

// supersedes reports whether v may overwrite the current verdict of a record.
func (v Verdict) supersedes(cur Verdict) bool {
	switch cur {
	case Unauthenticated:
		return v != Unauthenticated
	case Expired:
		return v == Authenticated || v == Failed
	case Failed, Authenticated:
		return false
	}
	return false
}
