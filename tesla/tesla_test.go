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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guardtime/goosnma/dsm"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/hash"
	"github.com/guardtime/goosnma/mac"
)

func testChain(t *testing.T, hf hash.Algorithm, n uint32) (*Chain, []Key) {
	k := &dsm.KRoot{
		CIDKR:   1,
		HF:      hf,
		MF:      mac.HMACSHA256,
		KeyBits: 128,
		TagBits: 40,
		WN:      1200,
		TOWH:    2,
		Alpha:   []byte{0x61, 0x1b, 0xb2, 0x2c, 0xa4, 0x75},
		Key:     make([]byte, 16),
	}
	c, err := NewChain(k, 30)
	require.NoError(t, err)
	keys, err := c.Generate(bytes.Repeat([]byte{0xc3}, 16), n)
	require.NoError(t, err)
	c.Root = keys[0]
	return c, keys
}

func code(err error) errors.ErrorCode {
	return errors.OsnmaErr(err).Code()
}

func TestUnitChainTiming(t *testing.T) {
	c, _ := testChain(t, hash.SHA2_256, 1)

	require.Equal(t, gst.GST{WN: 1200, TOW: 7170}, c.Start)
	require.Equal(t, gst.GST{WN: 1200, TOW: 7200}, c.KeyGST(1))

	i, ok := c.IndexAt(gst.GST{WN: 1200, TOW: 7290})
	require.True(t, ok)
	require.Equal(t, uint32(4), i)
	_, ok = c.IndexAt(gst.GST{WN: 1200, TOW: 7291})
	require.False(t, ok)
	_, ok = c.IndexAt(gst.GST{WN: 1200, TOW: 0})
	require.False(t, ok)
}

func TestUnitOneWayFunction(t *testing.T) {
	for _, hf := range []hash.Algorithm{hash.SHA2_256, hash.SHA3_256} {
		c, keys := testChain(t, hf, 12)
		for j := range keys {
			for i := 0; i <= j; i++ {
				k, err := c.Derive(keys[j], uint32(j-i))
				require.NoError(t, err)
				require.Equal(t, keys[i].Value, k.Value, "%s K%d from K%d", hf, i, j)
				require.Equal(t, keys[i].GST, k.GST)
			}
		}
		_, err := c.Prev(keys[0])
		require.Error(t, err)
		_, err = c.Derive(keys[2], 3)
		require.Error(t, err)
	}
}

func TestUnitVerifySequence(t *testing.T) {
	c, keys := testChain(t, hash.SHA2_256, 8)
	v, err := NewVerifier()
	require.NoError(t, err)

	_, err = v.Verify(3, keys[1])
	require.Equal(t, errors.OsnmaInvalidStateError, code(err))
	require.Equal(t, Unrooted, v.State(3))

	ok, err := v.Root(c)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = v.Root(c)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, Rooted, v.State(3))

	for i := 1; i <= 3; i++ {
		k, err := v.Verify(3, keys[i])
		require.NoError(t, err)
		require.Equal(t, c.KeyGST(uint32(i)), k.GST)
	}
	// Gaps are allowed.
	_, err = v.Verify(3, keys[6])
	require.NoError(t, err)
	anchor, ok := v.Anchor(3)
	require.True(t, ok)
	require.Equal(t, uint32(6), anchor.Index)

	// Repeated and late authentic keys do not move the anchor.
	_, err = v.Verify(3, keys[6])
	require.NoError(t, err)
	k, err := v.Verify(3, keys[2])
	require.NoError(t, err)
	require.Equal(t, c.KeyGST(2), k.GST)
	anchor, ok = v.Anchor(3)
	require.True(t, ok)
	require.Equal(t, uint32(6), anchor.Index)

	bad := keys[4]
	bad.Value = append([]byte(nil), keys[4].Value...)
	bad.Value[3] ^= 0x01
	_, err = v.Verify(3, bad)
	require.Equal(t, errors.OsnmaKeyChainBroken, code(err))
}

func TestUnitLateKey(t *testing.T) {
	c, keys := testChain(t, hash.SHA2_256, 8)
	v, err := NewVerifier(VerifierOptKeyRegen(false))
	require.NoError(t, err)
	_, err = v.Root(c)
	require.NoError(t, err)

	_, err = v.Verify(2, keys[2])
	require.NoError(t, err)
	_, err = v.Verify(2, keys[4])
	require.NoError(t, err)
	_, ok := v.Key(2, c.ID, 3)
	require.False(t, ok, "Key 3 must not be known without regeneration.")

	// A corrupted late key is rejected, but the authentic key of its index becomes known.
	bad := keys[3]
	bad.Value = append([]byte(nil), keys[3].Value...)
	bad.Value[0] ^= 0x40
	_, err = v.Verify(2, bad)
	require.Equal(t, errors.OsnmaKeyChainBroken, code(err))
	k, ok := v.Key(2, c.ID, 3)
	require.True(t, ok)
	require.Equal(t, keys[3].Value, k.Value)

	// The authentic late key is accepted.
	k, err = v.Verify(2, keys[3])
	require.NoError(t, err)
	require.Equal(t, uint32(3), k.Index)
	anchor, ok := v.Anchor(2)
	require.True(t, ok)
	require.Equal(t, uint32(4), anchor.Index)

	// Too far below the anchor to be checked.
	lim, err := NewVerifier(VerifierOptMaxSteps(1))
	require.NoError(t, err)
	_, err = lim.Root(c)
	require.NoError(t, err)
	_, err = lim.Verify(2, keys[1])
	require.NoError(t, err)
	_, err = lim.Verify(2, keys[2])
	require.NoError(t, err)
	_, err = lim.Verify(2, keys[0])
	require.NoError(t, err, "The root key is remembered.")
	lim2, err := NewVerifier(VerifierOptMaxSteps(1), VerifierOptHistory(1))
	require.NoError(t, err)
	_, err = lim2.Root(c)
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err = lim2.Verify(2, keys[i])
		require.NoError(t, err)
	}
	_, err = lim2.Verify(2, keys[1])
	require.Equal(t, errors.OsnmaInvalidStateError, code(err))
}

func TestUnitVerifyRejectsTampering(t *testing.T) {
	c, keys := testChain(t, hash.SHA2_256, 8)
	v, err := NewVerifier()
	require.NoError(t, err)
	_, err = v.Root(c)
	require.NoError(t, err)

	_, err = v.Verify(5, keys[1])
	require.NoError(t, err)

	// Off by one index.
	shifted := keys[2]
	shifted.Index = 3
	_, err = v.Verify(5, shifted)
	require.Equal(t, errors.OsnmaKeyChainBroken, code(err))

	// Corrupted value.
	bad := keys[2]
	bad.Value = append([]byte(nil), keys[2].Value...)
	bad.Value[0] ^= 0x80
	_, err = v.Verify(5, bad)
	require.Equal(t, errors.OsnmaKeyChainBroken, code(err))

	// Wrong chain and length.
	other := keys[2]
	other.ChainID = 2
	_, err = v.Verify(5, other)
	require.Equal(t, errors.OsnmaKeyChainBroken, code(err))
	short := keys[2]
	short.Value = short.Value[:12]
	_, err = v.Verify(5, short)
	require.Equal(t, errors.OsnmaKeyChainBroken, code(err))

	anchor, _ := v.Anchor(5)
	require.Equal(t, uint32(1), anchor.Index)

	// The chain resumes from the last good anchor.
	_, err = v.Verify(5, keys[3])
	require.NoError(t, err)
}

func TestUnitMaxSteps(t *testing.T) {
	c, keys := testChain(t, hash.SHA2_256, 8)
	v, err := NewVerifier(VerifierOptMaxSteps(2))
	require.NoError(t, err)
	_, err = v.Root(c)
	require.NoError(t, err)

	_, err = v.Verify(1, keys[3])
	require.Equal(t, errors.OsnmaKeyChainBroken, code(err))
	_, err = v.Verify(1, keys[2])
	require.NoError(t, err)
}

func TestUnitCrossSatellite(t *testing.T) {
	c, keys := testChain(t, hash.SHA2_256, 8)
	v, err := NewVerifier(VerifierOptCrossSatellite(true, 16), VerifierOptMaxSteps(3))
	require.NoError(t, err)
	_, err = v.Root(c)
	require.NoError(t, err)

	for i := 1; i <= 6; i++ {
		_, err = v.Verify(11, keys[i])
		require.NoError(t, err)
	}

	// Satellite 12 reuses the key verified on satellite 11, far beyond its own step limit.
	_, err = v.Verify(12, keys[6])
	require.NoError(t, err)
	// The next key is checked against the highest verified key of the chain.
	_, err = v.Verify(13, keys[7])
	require.NoError(t, err)

	bad := keys[6]
	bad.Value = bytes.Repeat([]byte{0x01}, 16)
	_, err = v.Verify(14, bad)
	require.Equal(t, errors.OsnmaKeyChainBroken, code(err))

	k, ok := v.Key(14, c.ID, 4)
	require.True(t, ok)
	require.Equal(t, keys[4].Value, k.Value)

	_, err = NewVerifier(VerifierOptCrossSatellite(true, 0))
	require.Error(t, err)
}

func TestUnitKeyRegen(t *testing.T) {
	c, keys := testChain(t, hash.SHA2_256, 8)

	v, err := NewVerifier()
	require.NoError(t, err)
	_, err = v.Root(c)
	require.NoError(t, err)
	_, err = v.Verify(2, keys[5])
	require.NoError(t, err)

	_, ok := v.Key(2, c.ID, 3)
	require.False(t, ok)
	k, ok := v.Key(2, c.ID, 5)
	require.True(t, ok)
	require.Equal(t, keys[5].Value, k.Value)

	v, err = NewVerifier(VerifierOptKeyRegen(true))
	require.NoError(t, err)
	_, err = v.Root(c)
	require.NoError(t, err)
	_, err = v.Verify(2, keys[5])
	require.NoError(t, err)

	k, ok = v.Key(2, c.ID, 3)
	require.True(t, ok)
	require.Equal(t, keys[3].Value, k.Value)
	require.Equal(t, c.KeyGST(3), k.GST)

	_, ok = v.Key(2, c.ID, 6)
	require.False(t, ok)
	_, ok = v.Key(2, 3, 3)
	require.False(t, ok)
}

func TestUnitRejected(t *testing.T) {
	c, keys := testChain(t, hash.SHA2_256, 8)
	v, err := NewVerifier()
	require.NoError(t, err)
	_, err = v.Root(c)
	require.NoError(t, err)

	v.Reject(7)
	require.Equal(t, Rejected, v.State(7))
	_, err = v.Verify(7, keys[1])
	require.Equal(t, errors.OsnmaInvalidStateError, code(err))
	_, ok := v.Anchor(7)
	require.False(t, ok)

	// A new chain restores the satellite.
	c2, keys2 := testChain(t, hash.SHA3_256, 4)
	_, err = v.Root(c2)
	require.NoError(t, err)
	require.Equal(t, Rooted, v.State(7))
	_, err = v.Verify(7, keys2[1])
	require.NoError(t, err)
	require.Equal(t, c2, v.Active())
}

func TestUnitSeed(t *testing.T) {
	c, keys := testChain(t, hash.SHA2_256, 8)
	v, err := NewVerifier(VerifierOptMaxSteps(1))
	require.NoError(t, err)

	require.Error(t, v.Seed(keys[5]))
	_, err = v.Root(c)
	require.NoError(t, err)
	require.NoError(t, v.Seed(keys[5]))

	// Satellites start from the seed.
	_, err = v.Verify(20, keys[6])
	require.NoError(t, err)

	v.Reset()
	require.Nil(t, v.Active())
	require.Equal(t, Unrooted, v.State(20))
}
