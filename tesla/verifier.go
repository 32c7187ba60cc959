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

package tesla

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/hash"
	"github.com/guardtime/goosnma/log"
)

// State is the chain verification state of a satellite.
type State byte

const (
	// Unrooted means no trusted root key is known yet.
	Unrooted State = iota
	// Rooted means the satellite has an authentic anchor key.
	Rooted
	// Rejected means the satellite reported that its authentication data must not be used.
	Rejected
)

// String implements fmt.(Stringer) interface.
func (s State) String() string {
	switch s {
	case Unrooted:
		return "unrooted"
	case Rooted:
		return "rooted"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", byte(s))
}

type cacheKey struct {
	chain uint8
	index uint32
}

type satellite struct {
	mu sync.Mutex

	state   State
	chain   *Chain
	anchor  Key
	history []Key
}

// Verifier keeps the per satellite chain state.
type Verifier struct {
	// Guards the satellite and chain maps. Each satellite state has its own lock.
	mu sync.RWMutex

	sats   map[uint8]*satellite
	chains map[uint8]*Chain
	active *Chain
	seeds  map[uint8]Key

	// Cross satellite key cache, nil if disabled.
	cache *lru.Cache[cacheKey, Key]
	// Highest verified key per chain, guarded by hmu.
	hmu     sync.Mutex
	highest map[uint8]Key

	maxSteps   uint32
	regen      bool
	historyLen int
}

const (
	defaultHistory   = 16
	defaultCacheSize = 256
)

type (
	// VerifierOpt is the configuration option for the Verifier.
	// See VerifierOptMaxSteps, VerifierOptCrossSatellite, VerifierOptKeyRegen and VerifierOptHistory.
	VerifierOpt func(*verifier) error
	verifier    struct {
		obj        Verifier
		cacheSize  int
		crossLinks bool
	}
)

// VerifierOptMaxSteps limits the number of one-way function applications used to verify one key. Zero means no
// limit.
func VerifierOptMaxSteps(n uint32) VerifierOpt {
	return func(v *verifier) error {
		if v == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing verifier.")
		}
		v.obj.maxSteps = n
		return nil
	}
}

// VerifierOptCrossSatellite enables the reuse of keys verified on other satellites of the same chain (COP-IOD).
// The verified keys are kept in a LRU cache of the given size.
func VerifierOptCrossSatellite(enable bool, size int) VerifierOpt {
	return func(v *verifier) error {
		if v == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing verifier.")
		}
		if enable && size <= 0 {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid key cache size.")
		}
		v.crossLinks = enable
		v.cacheSize = size
		return nil
	}
}

// VerifierOptKeyRegen enables the derivation of keys older than the anchor, so that tags whose own key was lost can
// still be verified.
func VerifierOptKeyRegen(enable bool) VerifierOpt {
	return func(v *verifier) error {
		if v == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing verifier.")
		}
		v.obj.regen = enable
		return nil
	}
}

// VerifierOptHistory sets the number of verified keys remembered per satellite.
func VerifierOptHistory(n int) VerifierOpt {
	return func(v *verifier) error {
		if v == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing verifier.")
		}
		if n < 1 {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("History must hold at least one key.")
		}
		v.obj.historyLen = n
		return nil
	}
}

// NewVerifier returns a new chain verifier with every satellite Unrooted.
func NewVerifier(options ...VerifierOpt) (*Verifier, error) {
	tmp := verifier{
		obj: Verifier{
			sats:       make(map[uint8]*satellite),
			chains:     make(map[uint8]*Chain),
			seeds:      make(map[uint8]Key),
			highest:    make(map[uint8]Key),
			historyLen: defaultHistory,
		},
		cacheSize: defaultCacheSize,
	}
	for _, setter := range options {
		if setter == nil {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Provided option is nil.")
		}
		if err := setter(&tmp); err != nil {
			return nil, errors.OsnmaErr(err).AppendMessage("Unable to apply verifier option.")
		}
	}
	if tmp.crossLinks {
		cache, err := lru.New[cacheKey, Key](tmp.cacheSize)
		if err != nil {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).SetExtError(err)
		}
		tmp.obj.cache = cache
	}
	return &tmp.obj, nil
}

// Root makes the chain the active one and roots every satellite on it. Rejected satellites are restored.
// It returns false if the same chain is already active.
func (v *Verifier) Root(c *Chain) (bool, error) {
	if v == nil || c == nil {
		return false, errors.New(errors.OsnmaInvalidArgumentError)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.active.Same(c) {
		return false, nil
	}
	v.chains[c.ID] = c
	v.active = c
	v.seeds[c.ID] = c.Root
	for _, s := range v.sats {
		s.mu.Lock()
		s.root(c, c.Root)
		s.mu.Unlock()
	}
	log.Info(fmt.Sprintf("Chain %d rooted at %s.", c.ID, c.Start))
	return true, nil
}

// Seed trusts the given key of an already rooted chain without verification. It is used for the warm start of a
// session from a previously verified anchor. Satellites with a lower anchor are moved to the seed.
func (v *Verifier) Seed(k Key) error {
	if v == nil {
		return errors.New(errors.OsnmaInvalidArgumentError)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	c, ok := v.chains[k.ChainID]
	if !ok {
		return errors.New(errors.OsnmaInvalidStateError).AppendMessage(fmt.Sprintf("Chain %d is not rooted.", k.ChainID))
	}
	if len(k.Value)*8 != c.KeyBits {
		return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Seed key length does not match the chain.")
	}
	k.GST = c.KeyGST(k.Index)
	if seed := v.seeds[k.ChainID]; k.Index > seed.Index {
		v.seeds[k.ChainID] = k
	}
	for _, s := range v.sats {
		s.mu.Lock()
		if s.state == Rooted && s.chain.ID == k.ChainID && s.anchor.Index < k.Index {
			s.anchor = k
			s.remember(k, v.historyLen)
		}
		s.mu.Unlock()
	}
	v.share(k)
	v.setHighest(k)
	return nil
}

func (s *satellite) root(c *Chain, anchor Key) {
	s.state = Rooted
	s.chain = c
	s.anchor = anchor
	s.history = []Key{anchor}
}

func (s *satellite) remember(k Key, n int) {
	s.history = append(s.history, k)
	if len(s.history) > n {
		s.history = s.history[len(s.history)-n:]
	}
}

func (v *Verifier) satellite(svid uint8) *satellite {
	v.mu.RLock()
	s, ok := v.sats[svid]
	v.mu.RUnlock()
	if ok {
		return s
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok = v.sats[svid]; ok {
		return s
	}
	s = &satellite{}
	if v.active != nil {
		s.root(v.active, v.seeds[v.active.ID])
	}
	v.sats[svid] = s
	return s
}

// share publishes a verified key to the cross satellite cache.
func (v *Verifier) share(k Key) {
	if v.cache == nil {
		return
	}
	v.cache.Add(cacheKey{chain: k.ChainID, index: k.Index}, k)
}

func (v *Verifier) highestKey(chain uint8) (Key, bool) {
	if v.cache == nil {
		return Key{}, false
	}
	v.hmu.Lock()
	defer v.hmu.Unlock()
	k, ok := v.highest[chain]
	return k, ok
}

func (v *Verifier) setHighest(k Key) {
	if v.cache == nil {
		return
	}
	v.hmu.Lock()
	defer v.hmu.Unlock()
	if h, ok := v.highest[k.ChainID]; !ok || h.Index < k.Index {
		v.highest[k.ChainID] = k
	}
}

// Verify checks the key disclosed by the satellite. On success the key becomes the new anchor of the satellite and
// is returned with its GST set. A candidate at or below the anchor index is checked against the key derived from the
// anchor and, when authentic, returned without moving the anchor. Any candidate that does not hash down to an
// authentic key fails with OsnmaKeyChainBroken and leaves the anchor unchanged.
func (v *Verifier) Verify(svid uint8, cand Key) (Key, error) {
	if v == nil {
		return Key{}, errors.New(errors.OsnmaInvalidArgumentError)
	}
	s := v.satellite(svid)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Unrooted:
		return Key{}, errors.New(errors.OsnmaInvalidStateError).AppendMessage(fmt.Sprintf("Satellite %d is not rooted.", svid))
	case Rejected:
		return Key{}, errors.New(errors.OsnmaInvalidStateError).AppendMessage(fmt.Sprintf("Satellite %d is rejected.", svid))
	}

	c := s.chain
	if cand.ChainID != c.ID {
		return Key{}, broken(svid, cand, fmt.Sprintf("chain %d is not active", cand.ChainID))
	}
	if len(cand.Value)*8 != c.KeyBits {
		return Key{}, broken(svid, cand, "key length mismatch")
	}
	cand.GST = c.KeyGST(cand.Index)
	if cand.Index <= s.anchor.Index {
		return v.late(svid, s, cand)
	}

	if v.cache != nil {
		if cached, ok := v.cache.Get(cacheKey{chain: c.ID, index: cand.Index}); ok {
			if !hash.Equal(cached.Value, cand.Value) {
				return Key{}, broken(svid, cand, "mismatch with the key verified on another satellite")
			}
			v.accept(s, cand)
			return cand, nil
		}
	}

	ref := s.anchor
	if h, ok := v.highestKey(c.ID); ok && h.Index > ref.Index && h.Index < cand.Index {
		ref = h
	}
	steps := cand.Index - ref.Index
	if v.maxSteps > 0 && steps > v.maxSteps {
		return Key{}, broken(svid, cand, fmt.Sprintf("%d steps from the anchor exceed the limit", steps))
	}
	derived, err := c.Derive(cand, steps)
	if err != nil {
		return Key{}, errors.New(errors.OsnmaKeyChainBroken).SetExtError(err)
	}
	if !hash.Equal(derived.Value, ref.Value) {
		return Key{}, broken(svid, cand, fmt.Sprintf("does not hash down to the key %d", ref.Index))
	}
	v.accept(s, cand)
	return cand, nil
}

// late checks a key at or below the anchor index against the key derived from the anchor. An authentic late key is
// remembered without moving the anchor.
func (v *Verifier) late(svid uint8, s *satellite, cand Key) (Key, error) {
	for _, k := range s.history {
		if k.Index == cand.Index {
			if !hash.Equal(k.Value, cand.Value) {
				return Key{}, broken(svid, cand, fmt.Sprintf("mismatch with the verified key %d", k.Index))
			}
			return cand, nil
		}
	}
	steps := s.anchor.Index - cand.Index
	if v.maxSteps > 0 && steps > v.maxSteps {
		return Key{}, errors.New(errors.OsnmaInvalidStateError).
			AppendMessage(fmt.Sprintf("Late key %d of satellite %d is %d steps below the anchor.", cand.Index, svid, steps))
	}
	derived, err := s.chain.Derive(s.anchor, steps)
	if err != nil {
		return Key{}, errors.New(errors.OsnmaKeyChainBroken).SetExtError(err)
	}
	// The derived key is authentic whatever the candidate holds.
	s.remember(derived, v.historyLen)
	if !hash.Equal(derived.Value, cand.Value) {
		return Key{}, broken(svid, cand, fmt.Sprintf("does not match the key derived from the anchor %d", s.anchor.Index))
	}
	log.Satellite(svid).Debug(fmt.Sprintf("Late key %d of chain %d verified.", cand.Index, cand.ChainID))
	return cand, nil
}

func (v *Verifier) accept(s *satellite, k Key) {
	s.anchor = k
	s.remember(k, v.historyLen)
	v.share(k)
	v.setHighest(k)
}

func broken(svid uint8, k Key, reason string) error {
	return errors.New(errors.OsnmaKeyChainBroken).SetSatellite(svid).
		AppendMessage(fmt.Sprintf("Key %d of chain %d from satellite %d rejected: %s.", k.Index, k.ChainID, svid, reason))
}

// Key returns the authentic key with the given index as known for the satellite: its anchor, a remembered key, a
// key verified on another satellite, or, with key regeneration enabled, a key derived from the anchor.
func (v *Verifier) Key(svid uint8, chain uint8, index uint32) (Key, bool) {
	if v == nil {
		return Key{}, false
	}
	s := v.satellite(svid)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Rooted || s.chain.ID != chain {
		return Key{}, false
	}
	if s.anchor.Index == index {
		return s.anchor, true
	}
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Index == index {
			return s.history[i], true
		}
	}
	if v.cache != nil {
		if k, ok := v.cache.Get(cacheKey{chain: chain, index: index}); ok {
			return k, true
		}
	}
	if v.regen && index < s.anchor.Index {
		steps := s.anchor.Index - index
		if v.maxSteps > 0 && steps > v.maxSteps {
			return Key{}, false
		}
		k, err := s.chain.Derive(s.anchor, steps)
		if err != nil {
			return Key{}, false
		}
		log.Debug(fmt.Sprintf("Regenerated key %d of chain %d for satellite %d.", index, chain, svid))
		return k, true
	}
	return Key{}, false
}

// Reject moves the satellite to the Rejected state. It is left only when a new chain is rooted.
func (v *Verifier) Reject(svid uint8) {
	if v == nil {
		return
	}
	s := v.satellite(svid)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Rejected {
		log.Satellite(svid).Warning("Rejected, authentication data must not be used.")
	}
	s.state = Rejected
}

// State returns the verification state of the satellite.
func (v *Verifier) State(svid uint8) State {
	if v == nil {
		return Unrooted
	}
	s := v.satellite(svid)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Anchor returns the current anchor key of the satellite.
func (v *Verifier) Anchor(svid uint8) (Key, bool) {
	if v == nil {
		return Key{}, false
	}
	s := v.satellite(svid)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Rooted {
		return Key{}, false
	}
	return s.anchor, true
}

// Active returns the active chain, or nil before the first root.
func (v *Verifier) Active() *Chain {
	if v == nil {
		return nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.active
}

// Chain returns the chain with the given ID.
func (v *Verifier) Chain(id uint8) (*Chain, bool) {
	if v == nil {
		return nil, false
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	c, ok := v.chains[id]
	return c, ok
}

// Reset drops every chain and satellite state.
func (v *Verifier) Reset() {
	if v == nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sats = make(map[uint8]*satellite)
	v.chains = make(map[uint8]*Chain)
	v.seeds = make(map[uint8]Key)
	v.hmu.Lock()
	v.highest = make(map[uint8]Key)
	v.hmu.Unlock()
	v.active = nil
	if v.cache != nil {
		v.cache.Purge()
	}
}
