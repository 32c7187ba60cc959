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

// Package page extracts the OSNMA related fields from a Galileo I/NAV page.
//
// A nominal page is 240 bits long: the even half (bits 0..119) followed by the odd half (bits 120..239). The odd
// half carries the 40-bit OSNMA field, made of the 8-bit HKROOT section and the 32-bit MACK section.
package page

import (
	"fmt"

	"github.com/goblimey/go-crc24q/crc24q"

	"github.com/guardtime/goosnma/bits"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
)

// Band is the Galileo signal band a page has been received on.
type Band byte

const (
	// E1B is the primary authentication band, the only one carrying OSNMA.
	E1B Band = iota
	// E5bI carries the I/NAV navigation data without OSNMA.
	E5bI

	bandCount
)

// String implements fmt.(Stringer) interface.
func (b Band) String() string {
	switch b {
	case E1B:
		return "E1-B"
	case E5bI:
		return "E5b-I"
	}
	return fmt.Sprintf("band(%d)", byte(b))
}

// ParseBand parses the band name as returned by String.
func ParseBand(s string) (Band, error) {
	for b := E1B; b < bandCount; b++ {
		if b.String() == s {
			return b, nil
		}
	}
	return bandCount, errors.New(errors.OsnmaInvalidFormatError).AppendMessage(fmt.Sprintf("Unknown band: %q.", s))
}

// Valid reports whether b is a known band.
func (b Band) Valid() bool {
	return b < bandCount
}

const (
	// Bits is the nominal page length in bits.
	Bits = 240
	// Bytes is the nominal page length in bytes.
	Bytes = Bits / 8
	// PerSubframe is the number of pages in one 30 second subframe.
	PerSubframe = 15
	// WordBits is the length of an I/NAV word (word type and data).
	WordBits = 128

	osnmaPos   = 138
	osnmaBits  = 40
	hkrootPos  = osnmaPos
	hkrootBits = 8
	mackPos    = hkrootPos + hkrootBits
	mackBits   = 32

	oddPos         = 120
	evenCRCBits    = 114
	oddCRCBits     = 82
	crcPos         = oddPos + oddCRCBits
	crcBits        = 24
	evenWordPos    = 2
	evenWordBits   = 112
	oddWordPos     = oddPos + 2
	oddWordBits    = 16
	crcPadBits     = 4
	dsmHeaderIndex = 1
)

// Page is one decoded I/NAV page.
// The OSNMA fields (HKRoot, MACK) are only meaningful when HasOSNMA is true.
type Page struct {
	SVID     uint8
	GST      gst.GST
	Band     Band
	Bits     [Bytes]byte
	CRCValid bool

	HasOSNMA bool
	HKRoot   uint8
	MACK     uint32
}

// New validates the raw payload and extracts the OSNMA fields.
// The payload must be exactly 240 bits long; any other length fails with OsnmaMalformedPage.
func New(svid uint8, t gst.GST, band Band, payload []byte, crcValid bool) (*Page, error) {
	if len(payload) != Bytes {
		return nil, errors.New(errors.OsnmaMalformedPage).
			AppendMessage(fmt.Sprintf("Page payload must be %d bits, got %d.", Bits, len(payload)*8))
	}
	if !band.Valid() {
		return nil, errors.New(errors.OsnmaMalformedPage).AppendMessage(fmt.Sprintf("Unknown band: %d.", band))
	}

	p := &Page{
		SVID:     svid,
		GST:      t,
		Band:     band,
		CRCValid: crcValid,
	}
	copy(p.Bits[:], payload)

	if band == E1B && bits.Uint(p.Bits[:], osnmaPos, osnmaBits) != 0 {
		p.HasOSNMA = true
		p.HKRoot = uint8(bits.Uint(p.Bits[:], hkrootPos, hkrootBits))
		p.MACK = uint32(bits.Uint(p.Bits[:], mackPos, mackBits))
	}
	return p, nil
}

// Index returns the position of the page within its subframe (0..14).
func (p *Page) Index() int {
	if p == nil {
		return -1
	}
	return int(p.GST.TOW%gst.SubframeSeconds) / 2
}

// Subframe returns the start time of the subframe the page belongs to.
func (p *Page) Subframe() gst.GST {
	return p.GST.SubframeStart()
}

// DSMHeader returns the DSM ID and block ID carried in the HKROOT section of the second page of the subframe.
// The ok flag is false for any other page, or when the page carries no OSNMA data.
func (p *Page) DSMHeader() (id, bid uint8, ok bool) {
	if p == nil || !p.HasOSNMA || p.Index() != dsmHeaderIndex {
		return 0, 0, false
	}
	return p.HKRoot >> 4, p.HKRoot & 0x0f, true
}

// Word returns the 128-bit I/NAV word carried by the page: the 112 data bits of the even half followed by the
// 16 data bits of the odd half. The first 6 bits are the word type.
func (p *Page) Word() []byte {
	if p == nil {
		return nil
	}
	w := bits.NewWriter(WordBits)
	w.WriteBits(bits.Slice(p.Bits[:], evenWordPos, evenWordBits), evenWordBits)
	w.WriteBits(bits.Slice(p.Bits[:], oddWordPos, oddWordBits), oddWordBits)
	return w.Bytes()
}

// WordType returns the I/NAV word type of the page.
func (p *Page) WordType() uint8 {
	if p == nil {
		return 0
	}
	return uint8(bits.Uint(p.Bits[:], evenWordPos, 6))
}

func crcInput(raw []byte) []byte {
	w := bits.NewWriter(crcPadBits + evenCRCBits + oddCRCBits)
	w.WriteUint(0, crcPadBits)
	w.WriteBits(bits.Slice(raw, 0, evenCRCBits), evenCRCBits)
	w.WriteBits(bits.Slice(raw, oddPos, oddCRCBits), oddCRCBits)
	return w.Bytes()
}

// CRC computes the CRC-24Q over the protected bits of the raw page.
func CRC(raw []byte) (uint32, error) {
	if len(raw) != Bytes {
		return 0, errors.New(errors.OsnmaMalformedPage).
			AppendMessage(fmt.Sprintf("Page payload must be %d bits, got %d.", Bits, len(raw)*8))
	}
	return crc24q.Hash(crcInput(raw)), nil
}

// CheckCRC recomputes the CRC-24Q of the raw page and compares it with the transmitted value.
func CheckCRC(raw []byte) bool {
	crc, err := CRC(raw)
	if err != nil {
		return false
	}
	return uint64(crc) == bits.Uint(raw, crcPos, crcBits)
}

// Assemble builds a nominal E1-B page from a 128-bit I/NAV word and the 40-bit OSNMA field (HKROOT in the most
// significant byte), and sets the CRC-24Q.
func Assemble(word []byte, hkroot uint8, mack uint32) [Bytes]byte {
	w := bits.NewWriter(Bits)
	// Even half: even/odd flag, page type, word bits 0..111, tail.
	w.WriteUint(0, 2)
	w.WriteBits(bits.Slice(word, 0, evenWordBits), evenWordBits)
	w.WriteUint(0, 6)
	// Odd half: even/odd flag, page type, word bits 112..127, OSNMA, SAR and spare.
	w.WriteUint(1, 1)
	w.WriteUint(0, 1)
	w.WriteBits(bits.Slice(word, evenWordBits, oddWordBits), oddWordBits)
	w.WriteUint(uint64(hkroot), hkrootBits)
	w.WriteUint(uint64(mack), mackBits)
	w.WriteUint(0, 24)

	var raw [Bytes]byte
	copy(raw[:], w.Bytes())
	crc := crc24q.Hash(crcInput(raw[:]))

	w.WriteUint(uint64(crc), crcBits)
	w.WriteUint(0, Bits-crcPos-crcBits)
	copy(raw[:], w.Bytes())
	return raw
}
