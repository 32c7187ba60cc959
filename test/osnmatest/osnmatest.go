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

// Package osnmatest generates synthetic OSNMA signals for tests: a signed DSM-KROOT, its TESLA chain, an optional
// alert DSM-PKR with its Merkle tree, and the E1-B and E5b-I pages of every satellite carrying navigation data
// words, HKROOT blocks and MACK messages with valid tags.
package osnmatest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"

	"github.com/guardtime/goosnma/auth"
	"github.com/guardtime/goosnma/bits"
	"github.com/guardtime/goosnma/dsm"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/hash"
	"github.com/guardtime/goosnma/mac"
	"github.com/guardtime/goosnma/mack"
	"github.com/guardtime/goosnma/merkle"
	"github.com/guardtime/goosnma/navdata"
	"github.com/guardtime/goosnma/page"
	"github.com/guardtime/goosnma/tag"
	"github.com/guardtime/goosnma/tesla"
	"github.com/guardtime/goosnma/trust"
)

// Chain parameters of the generated signal.
const (
	ChainID  = 1
	PKID     = 3
	DSMID    = 2
	PKRID    = 12
	Interval = gst.SubframeSeconds

	keyBits = 128
	tagBits = 40
	nb      = 2
)

// Epoch is the chain epoch of the generated DSM-KROOT (WN_K, TOWH_K).
var Epoch = gst.New(1200, 2*3600)

// wordSequence is the I/NAV word type carried by each page of a subframe.
var wordSequence = [page.PerSubframe]uint8{1, 2, 3, 4, 5, 6, 10, 0, 0, 0, 0, 0, 0, 0, 0}

// KeyRef identifies a key disclosed by a satellite.
type KeyRef struct {
	SVID  uint8
	Index uint32
}

// Scenario is a synthetic OSNMA signal.
type Scenario struct {
	Private *ecdsa.PrivateKey
	NMAH    dsm.NMAHeader
	KRoot   *dsm.KRoot
	// Blocks holds the nominal DSM-KROOT blocks followed by the Reed-Solomon parity blocks.
	Blocks  []dsm.Block
	Nominal int
	// PKR holds the DSM-PKR blocks. When set, they are transmitted instead of the DSM-KROOT.
	PKR        []dsm.Block
	MerkleRoot []byte
	Chain    *tesla.Chain
	Keys     []tesla.Key
	Layout   mack.Layout
	SVIDs    []uint8
	Corrupt  map[KeyRef]bool
	navWords map[uint8]map[uint8][]byte
	nav      *navdata.Collector
}

// New generates a signal with the keys K_0..K_n and the given satellites.
func New(n uint32, svids ...uint8) (*Scenario, error) {
	if len(svids) == 0 {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("No satellites.")
	}
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, errors.New(errors.OsnmaCryptoFailure).SetExtError(err)
	}
	s := &Scenario{
		Private:  priv,
		NMAH:     dsm.NMAHeader{NMAS: dsm.NMASOperational, CID: ChainID, CPKS: dsm.CPKSNominal},
		SVIDs:    append([]uint8(nil), svids...),
		Corrupt:  make(map[KeyRef]bool),
		navWords: make(map[uint8]map[uint8][]byte),
	}

	s.KRoot = &dsm.KRoot{
		Header:  s.NMAH,
		NB:      nb,
		PKID:    PKID,
		CIDKR:   ChainID,
		HF:      hash.SHA2_256,
		MF:      mac.HMACSHA256,
		KeyBits: keyBits,
		TagBits: tagBits,
		MACLT:   33,
		WN:      Epoch.WN,
		TOWH:    uint8(Epoch.TOW / 3600),
		Alpha:   random(6),
		Key:     make([]byte, keyBits/8),
	}
	c, err := tesla.NewChain(s.KRoot, Interval)
	if err != nil {
		return nil, err
	}
	if s.Keys, err = c.Generate(random(keyBits/8), n); err != nil {
		return nil, err
	}
	s.KRoot.Key = s.Keys[0].Value
	if s.Chain, err = tesla.NewChain(s.KRoot, Interval); err != nil {
		return nil, err
	}
	raw, err := s.KRoot.Sign(priv)
	if err != nil {
		return nil, err
	}
	s.Nominal = len(raw) / dsm.BlockBytes
	if s.Blocks, err = dsm.Split(DSMID, s.NMAH, raw, true); err != nil {
		return nil, err
	}
	if s.Layout, err = mack.NewLayout(keyBits, tagBits); err != nil {
		return nil, err
	}

	for _, svid := range svids {
		s.navWords[svid] = words(svid)
	}
	// Reference collector fed once with every word, used to compute the tags.
	if s.nav, err = navdata.NewCollector(); err != nil {
		return nil, err
	}
	for _, svid := range svids {
		for j, wt := range wordSequence {
			if wt == 0 {
				continue
			}
			raw := page.Assemble(s.navWords[svid][wt], 0, 0)
			p, err := page.New(svid, s.Chain.Start.Add(int64(2*j)), page.E1B, raw[:], true)
			if err != nil {
				return nil, err
			}
			s.nav.Add(p)
		}
	}
	return s, nil
}

func random(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// words returns the navigation data words of a satellite, with a common IODnav in the words 1 to 4.
func words(svid uint8) map[uint8][]byte {
	out := make(map[uint8][]byte)
	iod := uint64(svid) * 7
	for _, wt := range wordSequence {
		w := bits.NewWriter(page.WordBits)
		w.WriteUint(uint64(wt), 6)
		if wt >= 1 && wt <= 4 {
			w.WriteUint(iod, 10)
		}
		w.WriteBits(random(16), page.WordBits-w.Len())
		out[wt] = w.Bytes()
	}
	return out
}

// Store returns a trust store holding the public key of the signal and the Merkle tree root, if any.
func (s *Scenario) Store() (*trust.Store, error) {
	opts := []trust.StoreOpt{trust.StoreOptPublicKey(PKID, &s.Private.PublicKey)}
	if s.MerkleRoot != nil {
		opts = append(opts, trust.StoreOptMerkleRoot(s.MerkleRoot))
	}
	return trust.NewStore(opts...)
}

// Alert switches the HKROOT transmission to an OSNMA alert message: a DSM-PKR of type 4 authenticated by the leaf
// mid of a new Merkle tree.
func (s *Scenario) Alert(mid uint8) error {
	const nb = 7
	count, err := dsm.BlockCount(PKRID, nb)
	if err != nil {
		return err
	}
	p := &dsm.PKR{
		Header: dsm.NMAHeader{NMAS: s.NMAH.NMAS, CID: ChainID, CPKS: dsm.CPKSAlertMessage},
		NB:     nb,
		MID:    mid,
		NPKT:   dsm.NPKTAlert,
	}
	// The alert body fills the message, there is no padding.
	p.NPK = make([]byte, count*dsm.BlockBytes-1-dsm.TreeDepth*dsm.NodeBytes-1)

	leaves := make([][]byte, merkle.Leaves)
	for i := range leaves {
		leaves[i] = random(33)
	}
	leaves[mid] = p.Leaf()
	tree, err := merkle.Build(leaves)
	if err != nil {
		return err
	}
	path, err := tree.Path(mid)
	if err != nil {
		return err
	}
	copy(p.ITN[:], path)
	raw, err := p.MarshalBinary()
	if err != nil {
		return err
	}
	if s.PKR, err = dsm.Split(PKRID, p.Header, raw, true); err != nil {
		return err
	}
	s.MerkleRoot = tree.Root()
	return nil
}

// SubframeGST returns the start of the subframe disclosing key i.
func (s *Scenario) SubframeGST(i uint32) gst.GST {
	return s.Chain.KeyGST(i)
}

// records returns the PRN_D and ADKD of the tags of the satellite: Tag0, the timing tag of the satellite and the
// cross authentication of the other satellites.
func (s *Scenario) records(svid uint8) ([]uint8, []uint8) {
	var others []uint8
	for _, o := range s.SVIDs {
		if o != svid {
			others = append(others, o)
		}
	}
	prnd := []uint8{svid, svid}
	adkd := []uint8{auth.ADKDEphemeris, auth.ADKDTiming}
	for n := 2; n < s.Layout.NT; n++ {
		if len(others) == 0 {
			prnd = append(prnd, svid)
		} else {
			prnd = append(prnd, others[(n-2)%len(others)])
		}
		adkd = append(adkd, auth.ADKDEphemeris)
	}
	return prnd, adkd
}

// Tags returns the tags transmitted by the satellite in the subframe disclosing key i.
func (s *Scenario) Tags(i uint32, svid uint8) ([]mack.Tag, error) {
	if int(i)+1 >= len(s.Keys) {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage(fmt.Sprintf("Key %d is not generated.", i+1))
	}
	sf := s.SubframeGST(i)
	key := s.Keys[i+1]
	prnd, adkd := s.records(svid)
	out := make([]mack.Tag, s.Layout.NT)
	for n := range out {
		t := mack.Tag{
			PRND:     prnd[n],
			PRNA:     svid,
			GST:      sf,
			ADKD:     adkd[n],
			CTR:      uint8(n + 1),
			COP:      15,
			KeyIndex: i + 1,
		}
		nav, nbits, ok := s.nav.NavData(t.PRND, sf.Add(Interval), t.ADKD)
		if !ok {
			return nil, errors.New(errors.OsnmaInvalidStateError).AppendMessage("Missing navigation data.")
		}
		v, err := tag.Compute(s.Chain, key.Value, tag.Message(t, s.NMAH.NMAS, nav, nbits))
		if err != nil {
			return nil, err
		}
		t.Value = v
		out[n] = t
	}
	return out, nil
}

// MACK returns the 480-bit MACK message of the satellite in the subframe disclosing key i.
func (s *Scenario) MACK(i uint32, svid uint8) ([]byte, error) {
	tags, err := s.Tags(i, svid)
	if err != nil {
		return nil, err
	}
	w := bits.NewWriter(mack.MessageBits)
	w.WriteBits(tags[0].Value, tagBits)
	w.WriteUint(0, 12)
	w.WriteUint(uint64(tags[0].COP), 4)
	for _, t := range tags[1:] {
		w.WriteBits(t.Value, tagBits)
		w.WriteUint(uint64(t.PRND), 8)
		w.WriteUint(uint64(t.ADKD), 4)
		w.WriteUint(uint64(t.COP), 4)
	}
	key := append([]byte(nil), s.Keys[i].Value...)
	if s.Corrupt[KeyRef{SVID: svid, Index: i}] {
		key[0] ^= 0x01
	}
	w.WriteBits(key, keyBits)
	w.WriteUint(0, mack.MessageBits-w.Len())
	return w.Bytes(), nil
}

// Block returns the DSM block the satellite transmits in the subframe disclosing key i. The satellites transmit
// consecutive blocks, cycling through the nominal and the parity blocks.
func (s *Scenario) Block(i uint32, svid uint8) dsm.Block {
	k := 0
	for n, o := range s.SVIDs {
		if o == svid {
			k = n
		}
	}
	blocks := s.Blocks
	if len(s.PKR) > 0 {
		blocks = s.PKR
	}
	return blocks[(int(i)*len(s.SVIDs)+k)%len(blocks)]
}

// Subframe returns the 15 E1-B pages of the satellite in the subframe disclosing key i.
func (s *Scenario) Subframe(i uint32, svid uint8) ([]*page.Page, error) {
	msg, err := s.MACK(i, svid)
	if err != nil {
		return nil, err
	}
	b := s.Block(i, svid)
	hk := append([]byte{s.NMAH.Byte(), b.ID<<4 | b.BID}, b.Data[:]...)
	return s.pages(i, svid, page.E1B, func(j int) (uint8, uint32) {
		return hk[j], uint32(bits.Uint(msg, uint(j*mack.SliceBits), mack.SliceBits))
	})
}

// E5bSubframe returns the 15 E5b-I pages of the satellite in the subframe disclosing key i.
func (s *Scenario) E5bSubframe(i uint32, svid uint8) ([]*page.Page, error) {
	return s.pages(i, svid, page.E5bI, func(int) (uint8, uint32) { return 0, 0 })
}

func (s *Scenario) pages(i uint32, svid uint8, band page.Band, osnma func(int) (uint8, uint32)) ([]*page.Page, error) {
	sf := s.SubframeGST(i)
	out := make([]*page.Page, page.PerSubframe)
	for j := range out {
		hk, m := osnma(j)
		raw := page.Assemble(s.navWords[svid][wordSequence[j]], hk, m)
		p, err := page.New(svid, sf.Add(int64(2*j)), band, raw[:], true)
		if err != nil {
			return nil, err
		}
		out[j] = p
	}
	return out, nil
}

// Pages returns the E1-B pages of every satellite for the subframes disclosing the keys from..to, ordered by GST
// and satellite.
func (s *Scenario) Pages(from, to uint32) ([]*page.Page, error) {
	var out []*page.Page
	for i := from; i <= to; i++ {
		sf := make([][]*page.Page, len(s.SVIDs))
		for n, svid := range s.SVIDs {
			p, err := s.Subframe(i, svid)
			if err != nil {
				return nil, err
			}
			sf[n] = p
		}
		for j := 0; j < page.PerSubframe; j++ {
			for n := range s.SVIDs {
				out = append(out, sf[n][j])
			}
		}
	}
	return out, nil
}
