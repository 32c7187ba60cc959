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

package tag

import (
	"fmt"
	"sort"
	"sync"

	"github.com/guardtime/goosnma/auth"
	"github.com/guardtime/goosnma/dsm"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/hash"
	"github.com/guardtime/goosnma/log"
	"github.com/guardtime/goosnma/mack"
	"github.com/guardtime/goosnma/tesla"
)

// Result is the outcome of a tag verification.
type Result struct {
	Tag     mack.Tag
	Verdict auth.Verdict
	// Err tells why the tag did not verify: OsnmaTagExpired, OsnmaKeyChainBroken or a MAC computation failure.
	// It is nil for a plain tag mismatch.
	Err error
}

type entry struct {
	tag   mack.Tag
	chain *tesla.Chain
	nmas  dsm.NMAStatus
}

// slot identifies the key a tag depends on.
type slot struct {
	svid  uint8
	index uint32
}

type seenKey struct {
	prna uint8
	gst  gst.GST
	ctr  uint8
}

// Verifier holds the pending tags and verifies them once their key and navigation data are available.
type Verifier struct {
	mu sync.Mutex

	keys KeySource
	nav  NavDataProvider

	expiry  int64
	pending map[slot][]*entry
	seen    map[seenKey]struct{}
	broken  map[slot]gst.GST
}

const (
	// DefaultExpiry is the default pending window in seconds, counted from the start of the subframe the key is
	// disclosed in.
	DefaultExpiry = 90
	// Seen tags are remembered for the slow MAC delay on top of the pending window.
	slowMACDelay = 12 * gst.SubframeSeconds
)

type (
	// VerifierOpt is the configuration option for the Verifier.
	VerifierOpt func(*verifier) error
	verifier    struct {
		obj Verifier
	}
)

// VerifierOptExpiry sets the pending window in seconds.
func VerifierOptExpiry(sec int64) VerifierOpt {
	return func(v *verifier) error {
		if v == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing verifier.")
		}
		if sec <= 0 {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid pending window.")
		}
		v.obj.expiry = sec
		return nil
	}
}

// NewVerifier returns a tag verifier using the given key and navigation data sources.
func NewVerifier(keys KeySource, nav NavDataProvider, options ...VerifierOpt) (*Verifier, error) {
	if keys == nil || nav == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing key or navigation data source.")
	}
	tmp := verifier{obj: Verifier{
		keys:    keys,
		nav:     nav,
		expiry:  DefaultExpiry,
		pending: make(map[slot][]*entry),
		seen:    make(map[seenKey]struct{}),
		broken:  make(map[slot]gst.GST),
	}}
	for _, setter := range options {
		if setter == nil {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Provided option is nil.")
		}
		if err := setter(&tmp); err != nil {
			return nil, errors.OsnmaErr(err).AppendMessage("Unable to apply verifier option.")
		}
	}
	return &tmp.obj, nil
}

// Add verifies the tag, or holds it pending. Tags already seen for the same transmitting satellite, subframe and
// position are ignored. The nmas is the NMA status of the subframe the tag was transmitted in.
func (v *Verifier) Add(t mack.Tag, c *tesla.Chain, nmas dsm.NMAStatus, now gst.GST) ([]Result, error) {
	if v == nil || c == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	sk := seenKey{prna: t.PRNA, gst: t.GST, ctr: t.CTR}
	if _, ok := v.seen[sk]; ok {
		return nil, nil
	}
	v.seen[sk] = struct{}{}

	s := slot{svid: t.PRNA, index: t.KeyIndex}
	if _, ok := v.broken[s]; ok {
		return []Result{brokenResult(t)}, nil
	}
	e := &entry{tag: t, chain: c, nmas: nmas}
	if r, done := v.try(e, now); done {
		return []Result{r}, nil
	}
	v.pending[s] = append(v.pending[s], e)
	return nil, nil
}

func brokenResult(t mack.Tag) Result {
	return Result{
		Tag:     t,
		Verdict: auth.Failed,
		Err: errors.New(errors.OsnmaKeyChainBroken).
			AppendMessage(fmt.Sprintf("Key %d of satellite %d failed verification.", t.KeyIndex, t.PRNA)),
	}
}

// try verifies the entry. It returns false if the entry must stay pending.
func (v *Verifier) try(e *entry, now gst.GST) (Result, bool) {
	t := e.tag
	if now.Sub(e.chain.KeyGST(t.KeyIndex)) > v.expiry {
		return Result{
			Tag:     t,
			Verdict: auth.Expired,
			Err: errors.New(errors.OsnmaTagExpired).
				AppendMessage(fmt.Sprintf("Key %d of satellite %d not available in time.", t.KeyIndex, t.PRNA)),
		}, true
	}

	key, ok := v.keys.Key(t.PRNA, e.chain.ID, t.KeyIndex)
	if !ok {
		return Result{}, false
	}
	nav, n, ok := v.nav.NavData(t.PRND, t.GST, t.ADKD)
	if !ok {
		return Result{}, false
	}

	expected, err := Compute(e.chain, key.Value, Message(t, e.nmas, nav, n))
	if err != nil {
		return Result{Tag: t, Verdict: auth.Failed, Err: errors.OsnmaErr(err, errors.OsnmaCryptoFailure)}, true
	}
	if !hash.Equal(expected, t.Value) {
		log.Debug(fmt.Sprintf("Tag mismatch: %s.", t))
		return Result{Tag: t, Verdict: auth.Failed}, true
	}
	return Result{Tag: t, Verdict: auth.Authenticated}, true
}

// Retry attempts every pending tag again and expires the ones out of the pending window.
func (v *Verifier) Retry(now gst.GST) []Result {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []Result
	for _, s := range v.slots() {
		var keep []*entry
		for _, e := range v.pending[s] {
			if r, done := v.try(e, now); done {
				out = append(out, r)
				continue
			}
			keep = append(keep, e)
		}
		if len(keep) == 0 {
			delete(v.pending, s)
		} else {
			v.pending[s] = keep
		}
	}
	v.prune(now)
	return out
}

// slots returns the pending slots in a stable order.
func (v *Verifier) slots() []slot {
	out := make([]slot, 0, len(v.pending))
	for s := range v.pending {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].index != out[j].index {
			return out[i].index < out[j].index
		}
		return out[i].svid < out[j].svid
	})
	return out
}

func (v *Verifier) prune(now gst.GST) {
	horizon := v.expiry + slowMACDelay
	for k := range v.seen {
		if now.Sub(k.gst) > horizon {
			delete(v.seen, k)
		}
	}
	for s, g := range v.broken {
		if now.Sub(g) > horizon {
			delete(v.broken, s)
		}
	}
}

// MarkBroken fails every tag of the satellite depending on the key, pending or arriving later.
func (v *Verifier) MarkBroken(svid uint8, k tesla.Key) []Result {
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	s := slot{svid: svid, index: k.Index}
	v.broken[s] = k.GST
	var out []Result
	for _, e := range v.pending[s] {
		out = append(out, brokenResult(e.tag))
	}
	delete(v.pending, s)
	return out
}

// Discard drops the pending tags transmitted by the satellite in the subframe, and forgets that they were seen, so
// that they can be added again.
func (v *Verifier) Discard(svid uint8, sf gst.GST) {
	if v == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	for s, entries := range v.pending {
		var keep []*entry
		for _, e := range entries {
			if e.tag.PRNA != svid || e.tag.GST != sf {
				keep = append(keep, e)
			}
		}
		if len(keep) == 0 {
			delete(v.pending, s)
		} else {
			v.pending[s] = keep
		}
	}
	for k := range v.seen {
		if k.prna == svid && k.gst == sf {
			delete(v.seen, k)
		}
	}
}

// Pending returns the number of pending tags.
func (v *Verifier) Pending() int {
	if v == nil {
		return 0
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, entries := range v.pending {
		n += len(entries)
	}
	return n
}

// Reset drops every pending tag.
func (v *Verifier) Reset() {
	if v == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pending = make(map[slot][]*entry)
	v.seen = make(map[seenKey]struct{})
	v.broken = make(map[slot]gst.GST)
}
