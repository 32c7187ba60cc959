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

// Package navdata collects the I/NAV words of the received pages and assembles the navigation data authenticated
// by the OSNMA tags of each ADKD class.
package navdata

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/guardtime/goosnma/bits"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/log"
	"github.com/guardtime/goosnma/page"
)

// Provider is the navigation data source of the tag verifier.
type Provider interface {
	NavData(svid uint8, g gst.GST, adkd uint8) ([]byte, int, bool)
}

// segment is a bit range [from, to) of an I/NAV word.
type segment struct {
	word     uint8
	from, to uint
}

// Layout lists the word segments making up the data of an ADKD class.
type Layout []segment

// Bits returns the data length.
func (l Layout) Bits() int {
	n := 0
	for _, s := range l {
		n += int(s.to - s.from)
	}
	return n
}

var (
	// ADKD 0: ephemeris, clock and status (549 bits).
	layoutEphemeris = Layout{{1, 6, 126}, {2, 6, 126}, {3, 6, 128}, {4, 6, 126}, {5, 6, 73}}
	// ADKD 4: GST-UTC and GST-GPS conversion (141 bits).
	layoutTiming = Layout{{6, 6, 105}, {10, 86, 128}}
)

// LayoutOf returns the data layout of the ADKD class. ADKD 12 authenticates the same data as ADKD 0.
func LayoutOf(adkd uint8) (Layout, bool) {
	switch adkd {
	case 0, 12:
		return layoutEphemeris, true
	case 4:
		return layoutTiming, true
	}
	return nil, false
}

const (
	iodPos  = 6
	iodBits = 10

	defaultDepth = 16
)

type snapshot struct {
	sf   gst.GST
	data []byte
}

type satellite struct {
	words   map[uint8][]byte
	history map[uint8][]snapshot
}

// Collector keeps the latest words and the assembled data history per satellite. It is safe for concurrent use.
type Collector struct {
	mu    sync.Mutex
	sats  map[uint8]*satellite
	depth int
}

type (
	// CollectorOpt is the configuration option for the Collector.
	CollectorOpt func(*collector) error
	collector    struct {
		obj Collector
	}
)

// CollectorOptDepth sets the number of assembled data sets remembered per satellite and ADKD class.
func CollectorOptDepth(n int) CollectorOpt {
	return func(c *collector) error {
		if c == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing collector.")
		}
		if n < 1 {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid history depth.")
		}
		c.obj.depth = n
		return nil
	}
}

// NewCollector returns an empty collector.
func NewCollector(options ...CollectorOpt) (*Collector, error) {
	tmp := collector{obj: Collector{sats: make(map[uint8]*satellite), depth: defaultDepth}}
	for _, setter := range options {
		if setter == nil {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Provided option is nil.")
		}
		if err := setter(&tmp); err != nil {
			return nil, errors.OsnmaErr(err).AppendMessage("Unable to apply collector option.")
		}
	}
	return &tmp.obj, nil
}

// Add stores the word of the page. Pages with a failed CRC are ignored.
func (c *Collector) Add(p *page.Page) {
	if c == nil || p == nil || !p.CRCValid {
		return
	}
	wt := p.WordType()
	if !used(wt) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sats[p.SVID]
	if !ok {
		s = &satellite{words: make(map[uint8][]byte), history: make(map[uint8][]snapshot)}
		c.sats[p.SVID] = s
	}
	s.words[wt] = p.Word()

	for _, adkd := range []uint8{0, 4} {
		l, _ := LayoutOf(adkd)
		data, ok := s.assemble(l, adkd == 0)
		if !ok {
			continue
		}
		h := s.history[adkd]
		n := len(h)
		if n > 0 && bytes.Equal(h[n-1].data, data) {
			continue
		}
		log.Debug(fmt.Sprintf("New ADKD %d data for satellite %d at %s.", adkd, p.SVID, p.Subframe()))
		// Within a subframe only the last complete set is kept.
		if n > 0 && h[n-1].sf == p.Subframe() {
			h[n-1].data = data
			continue
		}
		h = append(h, snapshot{sf: p.Subframe(), data: data})
		if len(h) > c.depth {
			h = h[len(h)-c.depth:]
		}
		s.history[adkd] = h
	}
}

func used(wt uint8) bool {
	for _, l := range []Layout{layoutEphemeris, layoutTiming} {
		for _, s := range l {
			if s.word == wt {
				return true
			}
		}
	}
	return false
}

// assemble concatenates the word segments. With checkIOD the words 1 to 4 must carry the same IODnav.
func (s *satellite) assemble(l Layout, checkIOD bool) ([]byte, bool) {
	w := bits.NewWriter(uint(l.Bits()))
	var iod uint64
	for i, seg := range l {
		word, ok := s.words[seg.word]
		if !ok {
			return nil, false
		}
		if checkIOD && seg.word <= 4 {
			v := bits.Uint(word, iodPos, iodBits)
			if i > 0 && v != iod {
				return nil, false
			}
			iod = v
		}
		w.WriteBits(bits.Slice(word, seg.from, seg.to-seg.from), seg.to-seg.from)
	}
	return w.Bytes(), true
}

// NavData returns the newest data of the ADKD class completed before the subframe starting at g.
func (c *Collector) NavData(svid uint8, g gst.GST, adkd uint8) ([]byte, int, bool) {
	if c == nil {
		return nil, 0, false
	}
	l, ok := LayoutOf(adkd)
	if !ok {
		return nil, 0, false
	}
	if adkd == 12 {
		adkd = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sats[svid]
	if !ok {
		return nil, 0, false
	}
	h := s.history[adkd]
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].sf.Before(g) {
			return append([]byte(nil), h[i].data...), l.Bits(), true
		}
	}
	return nil, 0, false
}

// Reset drops every collected word.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sats = make(map[uint8]*satellite)
}

// Combined queries the providers in order and returns the first data found.
type Combined []Provider

// NavData implements Provider interface.
func (c Combined) NavData(svid uint8, g gst.GST, adkd uint8) ([]byte, int, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if data, n, ok := p.NavData(svid, g, adkd); ok {
			return data, n, true
		}
	}
	return nil, 0, false
}
