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

package mack

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/guardtime/goosnma/dsm"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/log"
	"github.com/guardtime/goosnma/page"
	"github.com/guardtime/goosnma/tesla"
)

const (
	allSlices = 1<<page.PerSubframe - 1
	// Subframes older than this, relative to the newest one of the satellite, are dropped.
	maxAge = 2 * gst.SubframeSeconds

	nmaHeaderPage = 0
	dsmHeaderPage = 1
	dsmBlockPage  = 2
)

type sfKey struct {
	svid uint8
	sf   gst.GST
}

type subframe struct {
	have   uint16
	slices [page.PerSubframe]uint32
	hkroot [page.PerSubframe]uint8

	// Partial extraction state.
	emittedTags int
	keyEmitted  bool
	gap         bool

	complete     bool
	nmahEmitted  bool
	blockEmitted bool
}

func (s *subframe) prefix() int {
	n := 0
	for n < page.PerSubframe && s.have&(1<<uint(n)) != 0 {
		n++
	}
	return n
}

func (s *subframe) buffer() []byte {
	buf := make([]byte, MessageBits/8)
	for i, v := range s.slices {
		binary.BigEndian.PutUint32(buf[i*4:], v)
	}
	return buf
}

// Output is the result of adding one page to the Processor.
type Output struct {
	SVID uint8
	GST  gst.GST

	// NMAH is set when the first page of the subframe delivered the NMA header.
	NMAH *dsm.NMAHeader
	// Block is set when the HKROOT sections of the subframe completed a DSM block.
	Block *dsm.Block

	// Tags lists the tags that became available with this page.
	Tags []Tag
	// Key is set when the disclosed key became available with this page.
	Key *tesla.Key
	// Discarded tells that tags previously emitted for the subframe must be dropped. The subframe is re-derived once
	// complete.
	Discarded bool
	// Message is set once the subframe is complete.
	Message *Message
}

func (o *Output) empty() bool {
	return o.NMAH == nil && o.Block == nil && len(o.Tags) == 0 && o.Key == nil && !o.Discarded && o.Message == nil
}

// Processor accumulates the OSNMA sections of the pages per satellite and subframe.
type Processor struct {
	mu        sync.Mutex
	partial   bool
	subframes map[sfKey]*subframe
}

type (
	// ProcessorOpt is the configuration option for the Processor.
	ProcessorOpt func(*processor) error
	processor    struct {
		obj Processor
	}
)

// ProcessorOptPartial enables the partial extraction: tags are emitted as soon as the contiguous prefix of received
// pages covers them.
func ProcessorOptPartial(enable bool) ProcessorOpt {
	return func(p *processor) error {
		if p == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing processor.")
		}
		p.obj.partial = enable
		return nil
	}
}

// NewProcessor returns a new MACK processor.
func NewProcessor(options ...ProcessorOpt) (*Processor, error) {
	tmp := processor{obj: Processor{subframes: make(map[sfKey]*subframe)}}
	for _, setter := range options {
		if setter == nil {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Provided option is nil.")
		}
		if err := setter(&tmp); err != nil {
			return nil, errors.OsnmaErr(err).AppendMessage("Unable to apply processor option.")
		}
	}
	return &tmp.obj, nil
}

// Add stores the OSNMA sections of the page. The chain is the active TESLA chain and may be nil before the first
// root key; the MACK section is then only buffered. A nil Output means nothing new became available.
func (p *Processor) Add(pg *page.Page, c *tesla.Chain) (*Output, error) {
	if p == nil || pg == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError)
	}
	if !pg.HasOSNMA {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := sfKey{svid: pg.SVID, sf: pg.Subframe()}
	p.evict(key)
	s, ok := p.subframes[key]
	if !ok {
		s = &subframe{}
		p.subframes[key] = s
	}

	idx := pg.Index()
	bit := uint16(1) << uint(idx)
	dup := s.have&bit != 0
	prefixBefore := s.prefix()

	s.have |= bit
	s.slices[idx] = pg.MACK
	s.hkroot[idx] = pg.HKRoot

	out := &Output{SVID: pg.SVID, GST: key.sf}
	p.hkroot(s, out, pg.SVID)

	if c != nil && !s.complete {
		if err := p.mack(s, out, key, c, idx, dup, prefixBefore); err != nil {
			return nil, err
		}
	}
	if out.empty() {
		return nil, nil
	}
	return out, nil
}

func (p *Processor) hkroot(s *subframe, out *Output, svid uint8) {
	if !s.nmahEmitted && s.have&(1<<nmaHeaderPage) != 0 {
		h := dsm.ParseNMAHeader(s.hkroot[nmaHeaderPage])
		out.NMAH = &h
		s.nmahEmitted = true
	}
	if s.blockEmitted || s.have != allSlices {
		return
	}
	s.blockEmitted = true
	b := &dsm.Block{
		ID:   s.hkroot[dsmHeaderPage] >> 4,
		BID:  s.hkroot[dsmHeaderPage] & 0x0f,
		NMAH: dsm.ParseNMAHeader(s.hkroot[nmaHeaderPage]),
	}
	copy(b.Data[:], s.hkroot[dsmBlockPage:])
	out.Block = b
	log.Debug(fmt.Sprintf("DSM %d block %d from satellite %d.", b.ID, b.BID, svid))
}

func (p *Processor) mack(s *subframe, out *Output, key sfKey, c *tesla.Chain, idx int, dup bool, prefixBefore int) error {
	l, err := NewLayout(c.KeyBits, c.TagBits)
	if err != nil {
		return err
	}
	keyIndex, ok := c.IndexAt(key.sf)
	if !ok {
		return errors.New(errors.OsnmaMalformedMACK).
			AppendMessage(fmt.Sprintf("Subframe %s is outside of chain %d.", key.sf, c.ID))
	}
	prs := parser{layout: l, buf: s.buffer(), svid: key.svid, sf: key.sf, keyIndex: keyIndex}
	newKey := func() *tesla.Key {
		return &tesla.Key{ChainID: c.ID, Index: keyIndex, Value: prs.key(), GST: key.sf}
	}

	if p.partial && !s.gap {
		if !dup && idx > prefixBefore {
			// A page has been missed: the prefix no longer grows with this page.
			s.gap = true
			if s.emittedTags > 0 || s.keyEmitted {
				out.Discarded = true
			}
			s.emittedTags = 0
			s.keyEmitted = false
		} else {
			covered := s.prefix() * SliceBits
			for s.emittedTags < l.NT && l.RecordEnd(s.emittedTags) <= covered {
				out.Tags = append(out.Tags, prs.tag(s.emittedTags))
				s.emittedTags++
			}
			if !s.keyEmitted && l.KeyEnd() <= covered {
				out.Key = newKey()
				s.keyEmitted = true
			}
		}
	}

	if s.have != allSlices {
		return nil
	}
	s.complete = true
	out.Message = prs.message()
	if !p.partial || s.gap {
		out.Tags = append(out.Tags, out.Message.Tags...)
		out.Key = newKey()
	}
	return nil
}

// Flush parses the MACK sections of the complete subframes buffered before the chain was known. The outputs are
// ordered by subframe and satellite. Subframes outside of the chain are dropped.
func (p *Processor) Flush(c *tesla.Chain) []*Output {
	if p == nil || c == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var keys []sfKey
	for k, s := range p.subframes {
		if s.have == allSlices && !s.complete {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].sf != keys[j].sf {
			return keys[i].sf.Before(keys[j].sf)
		}
		return keys[i].svid < keys[j].svid
	})

	var out []*Output
	for _, k := range keys {
		s := p.subframes[k]
		o := &Output{SVID: k.svid, GST: k.sf}
		if err := p.mack(s, o, k, c, 0, true, s.prefix()); err != nil {
			log.Debug(fmt.Sprintf("Buffered subframe %s of satellite %d dropped: %s", k.sf, k.svid, err))
			delete(p.subframes, k)
			continue
		}
		out = append(out, o)
	}
	return out
}

func (p *Processor) evict(cur sfKey) {
	for k := range p.subframes {
		if k.svid == cur.svid && cur.sf.Sub(k.sf) > maxAge {
			delete(p.subframes, k)
		}
	}
}

// Pending returns the subframes with buffered pages, in time order.
func (p *Processor) Pending(svid uint8) []gst.GST {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []gst.GST
	for k := range p.subframes {
		if k.svid == svid {
			out = append(out, k.sf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Reset drops every buffered subframe.
func (p *Processor) Reset() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subframes = make(map[sfKey]*subframe)
}
