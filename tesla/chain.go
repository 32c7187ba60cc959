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

// Package tesla implements the verification of the OSNMA TESLA key chain.
//
// A chain is rooted by the key K_0 distributed in a DSM-KROOT message. Every following subframe discloses the next
// key of the chain, and the keys are linked by the one-way function
//
//	K_{i-1} = trunc(KS, H(K_i || GST_SF(i-1) || alpha))
//
// where GST_SF(i) is the start of the subframe the key K_i is disclosed in. A disclosed key is authentic if hashing
// it down reproduces a key that is already authentic (the anchor).
package tesla

import (
	"encoding/binary"
	"fmt"

	"github.com/guardtime/goosnma/bits"
	"github.com/guardtime/goosnma/dsm"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/hash"
	"github.com/guardtime/goosnma/mac"
)

// Key is a TESLA chain key.
type Key struct {
	ChainID uint8
	Index   uint32
	Value   []byte
	// GST is the start of the subframe the key is disclosed in.
	GST gst.GST
}

// String implements fmt.(Stringer) interface.
func (k Key) String() string {
	return fmt.Sprintf("K%d[%d] %x", k.ChainID, k.Index, k.Value)
}

// Chain holds the parameters of one TESLA chain, as decoded from its DSM-KROOT.
type Chain struct {
	ID       uint8
	HF       hash.Algorithm
	MF       mac.Function
	KeyBits  int
	TagBits  int
	MACLT    uint8
	Alpha    []byte
	Interval int64

	// Start is GST_SF(0), the subframe the root key is associated with.
	Start gst.GST
	Root  Key
}

// NewChain returns the chain rooted by the DSM-KROOT. Interval is the key disclosure interval in seconds.
func NewChain(k *dsm.KRoot, interval int64) (*Chain, error) {
	if k == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing DSM-KROOT.")
	}
	if interval <= 0 {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid key interval.")
	}
	if !k.HF.Registered() {
		return nil, errors.New(errors.OsnmaUnknownHashAlgorithm).AppendMessage(fmt.Sprintf("Hash function %s is not supported.", k.HF))
	}
	c := &Chain{
		ID:       k.CIDKR,
		HF:       k.HF,
		MF:       k.MF,
		KeyBits:  k.KeyBits,
		TagBits:  k.TagBits,
		MACLT:    k.MACLT,
		Alpha:    append([]byte(nil), k.Alpha...),
		Interval: interval,
		Start:    k.Epoch().Add(-interval),
	}
	c.Root = Key{ChainID: c.ID, Index: 0, Value: append([]byte(nil), k.Key...), GST: c.Start}
	return c, nil
}

// KeyGST returns GST_SF(i), the start of the subframe key i is disclosed in.
func (c *Chain) KeyGST(i uint32) gst.GST {
	return c.Start.Add(int64(i) * c.Interval)
}

// IndexAt returns the index of the key disclosed in the subframe starting at g.
// The ok flag is false if g is before the chain start or not aligned to the key interval.
func (c *Chain) IndexAt(g gst.GST) (uint32, bool) {
	d := g.Sub(c.Start)
	if d < 0 || d%c.Interval != 0 {
		return 0, false
	}
	return uint32(d / c.Interval), true
}

// Same reports whether o describes the same chain with the same root key.
func (c *Chain) Same(o *Chain) bool {
	return c != nil && o != nil && c.ID == o.ID && c.Start == o.Start && hash.Equal(c.Root.Value, o.Root.Value)
}

// Prev applies the one-way function once and returns the key with index k.Index-1.
func (c *Chain) Prev(k Key) (Key, error) {
	if k.Index == 0 {
		return Key{}, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Root key has no predecessor.")
	}
	if len(k.Value)*8 != c.KeyBits {
		return Key{}, errors.New(errors.OsnmaInvalidArgumentError).
			AppendMessage(fmt.Sprintf("Key must be %d bits, got %d.", c.KeyBits, len(k.Value)*8))
	}
	prevGST := c.KeyGST(k.Index - 1)
	var t [4]byte
	binary.BigEndian.PutUint32(t[:], prevGST.Uint32())

	sum, err := c.HF.Sum(k.Value, t[:], c.Alpha)
	if err != nil {
		return Key{}, err
	}
	return Key{
		ChainID: c.ID,
		Index:   k.Index - 1,
		Value:   bits.Truncate(sum, uint(c.KeyBits)),
		GST:     prevGST,
	}, nil
}

// Derive applies the one-way function the given number of times.
func (c *Chain) Derive(k Key, steps uint32) (Key, error) {
	if steps > k.Index {
		return Key{}, errors.New(errors.OsnmaInvalidArgumentError).
			AppendMessage(fmt.Sprintf("Can not derive %d steps down from index %d.", steps, k.Index))
	}
	var err error
	for i := uint32(0); i < steps; i++ {
		if k, err = c.Prev(k); err != nil {
			return Key{}, err
		}
	}
	return k, nil
}

// Generate returns the chain keys K_0..K_n, computed down from the seed used as K_n. The first key is the root of
// the chain.
func (c *Chain) Generate(seed []byte, n uint32) ([]Key, error) {
	keys := make([]Key, n+1)
	keys[n] = Key{ChainID: c.ID, Index: n, Value: bits.Truncate(seed, uint(c.KeyBits)), GST: c.KeyGST(n)}
	for i := n; i > 0; i-- {
		prev, err := c.Prev(keys[i])
		if err != nil {
			return nil, err
		}
		keys[i-1] = prev
	}
	return keys, nil
}
