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

// Package bits contains the big-endian bit field helpers used to decode the OSNMA bit streams.
//
// Bit positions are counted from the most significant bit of the first byte, the way the Galileo ICD numbers
// the page and message fields.
package bits

// Uint extracts n bits (n <= 64) from buf starting at bit position pos and returns them as an unsigned value.
func Uint(buf []byte, pos, n uint) uint64 {
	var result uint64
	for i := pos; i < pos+n; i++ {
		b := uint64(buf[i/8]>>(7-i%8)) & 1
		result = (result << 1) | b
	}
	return result
}

// Slice extracts n bits from buf starting at bit position pos. The result is left aligned in ceil(n/8) bytes and
// the unused trailing bits are zero.
func Slice(buf []byte, pos, n uint) []byte {
	out := make([]byte, (n+7)/8)
	if pos%8 == 0 {
		copy(out, buf[pos/8:])
		return Truncate(out, n)
	}
	for i := uint(0); i < n; i++ {
		src := pos + i
		if buf[src/8]>>(7-src%8)&1 == 1 {
			out[i/8] |= 0x80 >> (i % 8)
		}
	}
	return out
}

// Truncate returns the first n bits of b, left aligned in ceil(n/8) bytes with the trailing bits cleared.
// The input is not modified.
func Truncate(b []byte, n uint) []byte {
	out := make([]byte, (n+7)/8)
	copy(out, b)
	if r := n % 8; r != 0 {
		out[len(out)-1] &= byte(0xff << (8 - r))
	}
	return out
}

// Writer appends bit fields into a growing big-endian buffer.
type Writer struct {
	buf []byte
	n   uint
}

// NewWriter returns a Writer with room for capBits bits.
func NewWriter(capBits uint) *Writer {
	return &Writer{buf: make([]byte, 0, (capBits+7)/8)}
}

// WriteUint appends the n least significant bits of v.
func (w *Writer) WriteUint(v uint64, n uint) {
	for i := n; i > 0; i-- {
		w.writeBit(byte(v>>(i-1)) & 1)
	}
}

// WriteBits appends the first n bits of the left aligned value b.
func (w *Writer) WriteBits(b []byte, n uint) {
	if w.n%8 == 0 && n%8 == 0 {
		w.buf = append(w.buf, b[:n/8]...)
		w.n += n
		return
	}
	for i := uint(0); i < n; i++ {
		w.writeBit(b[i/8] >> (7 - i%8) & 1)
	}
}

func (w *Writer) writeBit(bit byte) {
	if w.n%8 == 0 {
		w.buf = append(w.buf, 0)
	}
	if bit != 0 {
		w.buf[w.n/8] |= 0x80 >> (w.n % 8)
	}
	w.n++
}

// Len returns the number of bits written.
func (w *Writer) Len() uint {
	return w.n
}

// Bytes returns the written bits, zero padded to the byte boundary.
func (w *Writer) Bytes() []byte {
	return w.buf
}
