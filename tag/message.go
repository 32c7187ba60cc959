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

// Package tag verifies the OSNMA MAC tags against the navigation data and the TESLA keys.
//
// A tag is held pending until the key it depends on has been verified and the navigation data it covers is
// available. The MAC is computed over
//
//	PRN_D || PRN_A || GST_SF || CTR || ADKD || NMAS || navigation data
//
// zero padded to the byte boundary, with the MAC function of the chain, and compared to the tag truncated to the
// tag size of the chain.
package tag

import (
	"github.com/guardtime/goosnma/bits"
	"github.com/guardtime/goosnma/dsm"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/mac"
	"github.com/guardtime/goosnma/mack"
	"github.com/guardtime/goosnma/tesla"
)

// NavDataProvider supplies the navigation data bits covered by a tag of class adkd for satellite svid, transmitted
// in the subframe starting at g. The data is left aligned and n is its length in bits.
type NavDataProvider interface {
	NavData(svid uint8, g gst.GST, adkd uint8) (data []byte, n int, ok bool)
}

// KeySource returns authentic TESLA keys as known for the transmitting satellite.
type KeySource interface {
	Key(svid uint8, chain uint8, index uint32) (tesla.Key, bool)
}

const headerBits = 8 + 8 + 32 + 8 + 4 + 2

// Message returns the MAC input of the tag.
func Message(t mack.Tag, nmas dsm.NMAStatus, nav []byte, navBits int) []byte {
	w := bits.NewWriter(uint(headerBits + navBits))
	w.WriteUint(uint64(t.PRND), 8)
	w.WriteUint(uint64(t.PRNA), 8)
	w.WriteUint(uint64(t.GST.Uint32()), 32)
	w.WriteUint(uint64(t.CTR), 8)
	w.WriteUint(uint64(t.ADKD), 4)
	w.WriteUint(uint64(nmas), 2)
	w.WriteBits(nav, uint(navBits))
	return w.Bytes()
}

// Compute returns the tag value of the MAC message for the chain key.
func Compute(c *tesla.Chain, key []byte, msg []byte) ([]byte, error) {
	return mac.Tag(c.MF, key, msg, c.TagBits)
}
