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

import "fmt"

// NMAStatus is the NMAS field of the NMA header.
type NMAStatus uint8

const (
	// NMASReserved is the reserved status value.
	NMASReserved NMAStatus = iota
	// NMASTest indicates the test phase.
	NMASTest
	// NMASOperational indicates the operational phase.
	NMASOperational
	// NMASDontUse indicates that the authentication data must not be used.
	NMASDontUse
)

// String implements fmt.(Stringer) interface.
func (s NMAStatus) String() string {
	switch s {
	case NMASReserved:
		return "reserved"
	case NMASTest:
		return "test"
	case NMASOperational:
		return "operational"
	case NMASDontUse:
		return "don't use"
	}
	return fmt.Sprintf("nmas(%d)", uint8(s))
}

// ChainStatus is the CPKS field of the NMA header.
type ChainStatus uint8

// Chain and public key status values.
const (
	CPKSReserved ChainStatus = iota
	CPKSNominal
	CPKSEndOfChain
	CPKSChainRevoked
	CPKSNewPublicKey
	CPKSPublicKeyRevoked
	CPKSNewMerkleTree
	CPKSAlertMessage
)

// NMAHeader is the 8-bit NMA header transmitted in the first HKROOT section of every subframe.
type NMAHeader struct {
	NMAS NMAStatus
	CID  uint8
	CPKS ChainStatus
}

// ParseNMAHeader decodes the NMA header byte.
func ParseNMAHeader(b byte) NMAHeader {
	return NMAHeader{
		NMAS: NMAStatus(b >> 6),
		CID:  (b >> 4) & 0x03,
		CPKS: ChainStatus((b >> 1) & 0x07),
	}
}

// Byte returns the encoded NMA header.
func (h NMAHeader) Byte() byte {
	return byte(h.NMAS&0x03)<<6 | (h.CID&0x03)<<4 | byte(h.CPKS&0x07)<<1
}

// String implements fmt.(Stringer) interface.
func (h NMAHeader) String() string {
	return fmt.Sprintf("NMAS=%s CID=%d CPKS=%d", h.NMAS, h.CID, h.CPKS)
}
