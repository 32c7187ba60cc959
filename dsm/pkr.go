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

package dsm

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"fmt"

	"github.com/guardtime/goosnma/bits"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/hash"
)

// Public key types (NPKT field).
const (
	NPKTECDSAP256 uint8 = 1
	NPKTECDSAP521 uint8 = 3
	NPKTAlert     uint8 = 4
)

const (
	// TreeDepth is the number of intermediate nodes in a DSM-PKR authentication path.
	TreeDepth = 4
	// NodeBytes is the size of a Merkle tree node.
	NodeBytes = sha256.Size

	pkrFixedBytes = 1 + TreeDepth*NodeBytes + 1
)

// PublicKeyBytes returns the length of the compressed public key for the key type.
func PublicKeyBytes(npkt uint8) (int, error) {
	switch npkt {
	case NPKTECDSAP256:
		return 33, nil
	case NPKTECDSAP521:
		return 67, nil
	}
	return 0, errors.New(errors.OsnmaInvalidDSM).AppendMessage(fmt.Sprintf("Unsupported NPKT value: %d.", npkt))
}

// PKR is the decoded public key renewal message.
type PKR struct {
	Header NMAHeader

	NB    uint8
	MID   uint8
	ITN   [TreeDepth][]byte
	NPKT  uint8
	NPKID uint8
	NPK   []byte

	Padding []byte
}

func parsePKR(h NMAHeader, raw []byte) (*PKR, error) {
	if len(raw) < pkrFixedBytes {
		return nil, errors.New(errors.OsnmaInvalidDSM).AppendMessage("DSM-PKR is too short.")
	}
	p := &PKR{
		Header: h,
		NB:     uint8(bits.Uint(raw, 0, 4)),
		MID:    uint8(bits.Uint(raw, 4, 4)),
	}
	for i := range p.ITN {
		p.ITN[i] = append([]byte(nil), raw[1+i*NodeBytes:1+(i+1)*NodeBytes]...)
	}
	p.NPKT = raw[pkrFixedBytes-1] >> 4
	p.NPKID = raw[pkrFixedBytes-1] & 0x0f

	body := raw[pkrFixedBytes:]
	if p.NPKT == NPKTAlert {
		p.NPK = append([]byte(nil), body...)
		return p, nil
	}
	n, err := PublicKeyBytes(p.NPKT)
	if err != nil {
		return nil, err
	}
	if len(body) < n {
		return nil, errors.New(errors.OsnmaInvalidDSM).AppendMessage("DSM-PKR is too short for the public key.")
	}
	p.NPK = append([]byte(nil), body[:n]...)
	p.Padding = append([]byte(nil), body[n:]...)
	return p, nil
}

// Leaf returns the Merkle tree leaf message: NPKT || NPKID || NPK.
func (p *PKR) Leaf() []byte {
	if p == nil {
		return nil
	}
	return append([]byte{p.NPKT<<4 | p.NPKID&0x0f}, p.NPK...)
}

// IsAlert reports whether the message is an OSNMA alert message.
func (p *PKR) IsAlert() bool {
	return p != nil && p.NPKT == NPKTAlert
}

// PublicKey decodes the compressed public key carried by the message.
func (p *PKR) PublicKey() (*ecdsa.PublicKey, error) {
	if p == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing DSM-PKR.")
	}
	var curve elliptic.Curve
	switch p.NPKT {
	case NPKTECDSAP256:
		curve = elliptic.P256()
	case NPKTECDSAP521:
		curve = elliptic.P521()
	default:
		return nil, errors.New(errors.OsnmaInvalidDSM).AppendMessage(fmt.Sprintf("NPKT %d carries no public key.", p.NPKT))
	}
	x, y := elliptic.UnmarshalCompressed(curve, p.NPK)
	if x == nil {
		return nil, errors.New(errors.OsnmaInvalidDSM).AppendMessage("Invalid compressed public key.")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// CheckPadding verifies the padding against the Merkle tree root: trunc(SHA-256(root || leaf)).
func (p *PKR) CheckPadding(root []byte) bool {
	if p == nil {
		return false
	}
	if len(p.Padding) == 0 {
		return true
	}
	sum := sha256.Sum256(append(append([]byte(nil), root...), p.Leaf()...))
	if len(p.Padding) > len(sum) {
		return false
	}
	return hash.Equal(sum[:len(p.Padding)], p.Padding)
}

// MarshalBinary encodes the message without the padding.
func (p *PKR) MarshalBinary() ([]byte, error) {
	if p == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing DSM-PKR.")
	}
	out := []byte{p.NB<<4 | p.MID&0x0f}
	for _, n := range p.ITN {
		if len(n) != NodeBytes {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid Merkle tree node.")
		}
		out = append(out, n...)
	}
	return append(out, p.Leaf()...), nil
}
