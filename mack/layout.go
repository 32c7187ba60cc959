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

// Package mack reassembles and parses the MACK section of the OSNMA messages.
//
// Every page of a subframe carries 32 bits of the 480-bit MACK message. The message starts with the header (Tag0,
// MACSEQ and COP), continues with the tag and info records of the other tags and ends with the TESLA key disclosed
// in the subframe. The tag and key sizes come from the DSM-KROOT of the active chain.
package mack

import (
	"fmt"

	"github.com/guardtime/goosnma/bits"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
)

const (
	// MessageBits is the length of the MACK message.
	MessageBits = 480
	// SliceBits is the MACK section of one page.
	SliceBits = 32

	infoBits = 16
)

// ADKDSlowMAC is the slow MAC class. Its tags are verified with the key disclosed 11 subframes later.
const ADKDSlowMAC = 12

// Layout is the split of the MACK message for given key and tag sizes.
type Layout struct {
	KeyBits int
	TagBits int
	// NT is the number of tags including Tag0.
	NT int
}

// NewLayout computes the layout. The number of tags is floor((480 - KS) / (TS + 16)).
func NewLayout(keyBits, tagBits int) (Layout, error) {
	if keyBits <= 0 || tagBits <= 0 {
		return Layout{}, errors.New(errors.OsnmaMalformedMACK).
			AppendMessage(fmt.Sprintf("Invalid key/tag sizes: %d/%d.", keyBits, tagBits))
	}
	l := Layout{KeyBits: keyBits, TagBits: tagBits}
	if keyBits < MessageBits {
		l.NT = (MessageBits - keyBits) / (tagBits + infoBits)
	}
	if l.NT < 1 || l.NT*(tagBits+infoBits)+keyBits > MessageBits {
		return Layout{}, errors.New(errors.OsnmaMalformedMACK).
			AppendMessage(fmt.Sprintf("Key of %d bits and tags of %d bits do not fit %d bits.", keyBits, tagBits, MessageBits))
	}
	return l, nil
}

// RecordEnd returns the bit position right after tag record n (0 is the header holding Tag0).
func (l Layout) RecordEnd(n int) int {
	return (n + 1) * (l.TagBits + infoBits)
}

// KeyPos returns the bit position of the key.
func (l Layout) KeyPos() int {
	return l.NT * (l.TagBits + infoBits)
}

// KeyEnd returns the bit position right after the key.
func (l Layout) KeyEnd() int {
	return l.KeyPos() + l.KeyBits
}

// Tag is one MAC tag of the MACK message.
type Tag struct {
	// PRND is the satellite whose navigation data is authenticated, PRNA the transmitting one.
	PRND uint8
	PRNA uint8
	// GST is the start of the subframe the tag has been transmitted in.
	GST  gst.GST
	ADKD uint8
	CTR  uint8
	COP  uint8
	// Value is the tag, left aligned.
	Value []byte
	// KeyIndex is the index of the TESLA key that verifies the tag.
	KeyIndex uint32
}

// String implements fmt.(Stringer) interface.
func (t Tag) String() string {
	return fmt.Sprintf("tag %d/%d ADKD %d CTR %d at %s: %x", t.PRNA, t.PRND, t.ADKD, t.CTR, t.GST, t.Value)
}

// Message is a parsed MACK message.
type Message struct {
	GST    gst.GST
	SVID   uint8
	Tag0   []byte
	MACSEQ uint16
	COP    uint8
	// Tags holds every tag of the message, starting with Tag0.
	Tags []Tag
	Key  []byte
	// KeyIndex is the index of the disclosed key.
	KeyIndex uint32
}

// parser extracts the records of one subframe MACK message.
type parser struct {
	layout   Layout
	buf      []byte
	svid     uint8
	sf       gst.GST
	keyIndex uint32
}

func (p *parser) tag(n int) Tag {
	var (
		l   = p.layout
		pos = uint(n * (l.TagBits + infoBits))
		ts  = uint(l.TagBits)
		t   = Tag{
			PRNA:  p.svid,
			GST:   p.sf,
			CTR:   uint8(n + 1),
			Value: bits.Slice(p.buf, pos, ts),
		}
	)
	if n == 0 {
		t.PRND = p.svid
		t.ADKD = 0
		t.COP = uint8(bits.Uint(p.buf, pos+ts+12, 4))
	} else {
		t.PRND = uint8(bits.Uint(p.buf, pos+ts, 8))
		t.ADKD = uint8(bits.Uint(p.buf, pos+ts+8, 4))
		t.COP = uint8(bits.Uint(p.buf, pos+ts+12, 4))
	}
	t.KeyIndex = p.keyIndex + 1
	if t.ADKD == ADKDSlowMAC {
		t.KeyIndex = p.keyIndex + 11
	}
	return t
}

func (p *parser) key() []byte {
	return bits.Slice(p.buf, uint(p.layout.KeyPos()), uint(p.layout.KeyBits))
}

func (p *parser) message() *Message {
	m := &Message{
		GST:      p.sf,
		SVID:     p.svid,
		Tag0:     bits.Slice(p.buf, 0, uint(p.layout.TagBits)),
		MACSEQ:   uint16(bits.Uint(p.buf, uint(p.layout.TagBits), 12)),
		COP:      uint8(bits.Uint(p.buf, uint(p.layout.TagBits)+12, 4)),
		Key:      p.key(),
		KeyIndex: p.keyIndex,
	}
	for n := 0; n < p.layout.NT; n++ {
		m.Tags = append(m.Tags, p.tag(n))
	}
	return m
}

// Parse splits a complete 480-bit MACK message received from the satellite in the subframe starting at sf.
// keyIndex is the index of the key disclosed in that subframe.
func Parse(buf []byte, l Layout, svid uint8, sf gst.GST, keyIndex uint32) (*Message, error) {
	if len(buf)*8 != MessageBits {
		return nil, errors.New(errors.OsnmaMalformedMACK).
			AppendMessage(fmt.Sprintf("MACK message must be %d bits, got %d.", MessageBits, len(buf)*8))
	}
	if l.NT < 1 || l.KeyEnd() > MessageBits {
		return nil, errors.New(errors.OsnmaMalformedMACK).AppendMessage("Invalid MACK layout.")
	}
	p := parser{layout: l, buf: buf, svid: svid, sf: sf, keyIndex: keyIndex}
	return p.message(), nil
}
