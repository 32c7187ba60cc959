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

package navdata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guardtime/goosnma/bits"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/page"
)

var testSubframe = gst.GST{WN: 1200, TOW: 7200}

// testWord returns a word of the given type with IODnav iod and the rest of the data bits set to fill.
func testWord(wt uint8, iod uint16, fill byte) []byte {
	w := bits.NewWriter(page.WordBits)
	w.WriteUint(uint64(wt), 6)
	w.WriteUint(uint64(iod), 10)
	for w.Len() < page.WordBits {
		w.WriteUint(uint64(fill), 8)
	}
	return w.Bytes()
}

func testPage(t *testing.T, svid uint8, g gst.GST, word []byte, crc bool) *page.Page {
	raw := page.Assemble(word, 0, 0)
	p, err := page.New(svid, g, page.E1B, raw[:], crc)
	require.NoError(t, err)
	return p
}

func TestUnitLayoutBits(t *testing.T) {
	l, ok := LayoutOf(0)
	require.True(t, ok)
	require.Equal(t, 549, l.Bits())
	l, ok = LayoutOf(12)
	require.True(t, ok)
	require.Equal(t, 549, l.Bits())
	l, ok = LayoutOf(4)
	require.True(t, ok)
	require.Equal(t, 141, l.Bits())
	_, ok = LayoutOf(5)
	require.False(t, ok)
}

func TestUnitCollect(t *testing.T) {
	c, err := NewCollector()
	require.NoError(t, err)

	for i, wt := range []uint8{1, 2, 3, 4} {
		c.Add(testPage(t, 5, testSubframe.Add(int64(2*i)), testWord(wt, 77, 0xa5), true))
	}
	_, _, ok := c.NavData(5, testSubframe.Add(30), 0)
	require.False(t, ok)

	c.Add(testPage(t, 5, testSubframe.Add(8), testWord(5, 0, 0xa5), true))
	data, n, ok := c.NavData(5, testSubframe.Add(30), 0)
	require.True(t, ok)
	require.Equal(t, 549, n)
	require.Len(t, data, 69)
	// Word 1 data starts with the IODnav.
	require.Equal(t, uint64(77), bits.Uint(data, 0, 10))

	// Not before the subframe it was completed in.
	_, _, ok = c.NavData(5, testSubframe, 0)
	require.False(t, ok)
	// Slow MAC covers the same data.
	slow, _, ok := c.NavData(5, testSubframe.Add(30), 12)
	require.True(t, ok)
	require.Equal(t, data, slow)
	// Other satellites.
	_, _, ok = c.NavData(6, testSubframe.Add(30), 0)
	require.False(t, ok)
}

func TestUnitIODMismatch(t *testing.T) {
	c, err := NewCollector()
	require.NoError(t, err)
	for i, wt := range []uint8{1, 2, 3, 5} {
		c.Add(testPage(t, 5, testSubframe.Add(int64(2*i)), testWord(wt, 77, 0x11), true))
	}
	c.Add(testPage(t, 5, testSubframe.Add(8), testWord(4, 78, 0x11), true))
	_, _, ok := c.NavData(5, testSubframe.Add(30), 0)
	require.False(t, ok)

	// A failed CRC does not update the words.
	c.Add(testPage(t, 5, testSubframe.Add(10), testWord(4, 77, 0x11), false))
	_, _, ok = c.NavData(5, testSubframe.Add(30), 0)
	require.False(t, ok)

	c.Add(testPage(t, 5, testSubframe.Add(12), testWord(4, 77, 0x11), true))
	_, _, ok = c.NavData(5, testSubframe.Add(30), 0)
	require.True(t, ok)
}

func TestUnitHistory(t *testing.T) {
	c, err := NewCollector(CollectorOptDepth(2))
	require.NoError(t, err)

	feed := func(sf gst.GST, fill byte) {
		c.Add(testPage(t, 9, sf, testWord(6, 0, fill), true))
		c.Add(testPage(t, 9, sf.Add(2), testWord(10, 0, fill), true))
	}
	feed(testSubframe, 0x01)
	feed(testSubframe.Add(30), 0x02)

	old, n, ok := c.NavData(9, testSubframe.Add(30), 4)
	require.True(t, ok)
	require.Equal(t, 141, n)
	cur, _, ok := c.NavData(9, testSubframe.Add(60), 4)
	require.True(t, ok)
	require.NotEqual(t, old, cur)

	// Unchanged data does not push the history.
	feed(testSubframe.Add(60), 0x02)
	got, _, ok := c.NavData(9, testSubframe.Add(30), 4)
	require.True(t, ok)
	require.Equal(t, old, got)

	feed(testSubframe.Add(90), 0x03)
	_, _, ok = c.NavData(9, testSubframe.Add(30), 4)
	require.False(t, ok)

	c.Reset()
	_, _, ok = c.NavData(9, testSubframe.Add(120), 4)
	require.False(t, ok)
}

func TestUnitCombined(t *testing.T) {
	a, err := NewCollector()
	require.NoError(t, err)
	b, err := NewCollector()
	require.NoError(t, err)
	b.Add(testPage(t, 9, testSubframe, testWord(6, 0, 0x01), true))
	b.Add(testPage(t, 9, testSubframe, testWord(10, 0, 0x01), true))

	_, n, ok := Combined{a, nil, b}.NavData(9, testSubframe.Add(30), 4)
	require.True(t, ok)
	require.Equal(t, 141, n)

	_, err = NewCollector(CollectorOptDepth(0))
	require.Error(t, err)
}
