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

package input

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/page"
)

func testPages(t *testing.T) []*page.Page {
	var out []*page.Page
	for i := 0; i < 3; i++ {
		raw := page.Assemble(bytes.Repeat([]byte{byte(i)}, 16), 0x52, uint32(i))
		p, err := page.New(uint8(i+1), gst.New(1200, uint32(7200+2*i)), page.E1B, raw[:], true)
		require.NoError(t, err)
		out = append(out, p)
	}
	raw := page.Assemble(make([]byte, 16), 0, 0)
	p, err := page.New(4, gst.New(1200, 7206), page.E5bI, raw[:], false)
	require.NoError(t, err)
	return append(out, p)
}

func TestUnitSliceSource(t *testing.T) {
	pages := testPages(t)
	src := NewSliceSource(pages...)
	for _, expected := range pages {
		p, err := src.Next()
		require.NoError(t, err)
		require.Equal(t, expected, p)
	}
	_, err := src.Next()
	require.Equal(t, io.EOF, err)
	_, err = src.Next()
	require.Equal(t, io.EOF, err)
}

func TestUnitChanSource(t *testing.T) {
	ch := make(chan *page.Page, 1)
	ch <- testPages(t)[0]
	close(ch)

	src := ChanSource(ch)
	p, err := src.Next()
	require.NoError(t, err)
	require.Equal(t, uint8(1), p.SVID)
	_, err = src.Next()
	require.Equal(t, io.EOF, err)
}

func TestUnitTextRoundTrip(t *testing.T) {
	pages := testPages(t)
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, pages...))

	src, err := NewTextSource(strings.NewReader("# recorded pages\n\n" + buf.String()))
	require.NoError(t, err)
	for _, expected := range pages {
		p, err := src.Next()
		require.NoError(t, err)
		require.Equal(t, expected, p)
	}
	_, err = src.Next()
	require.Equal(t, io.EOF, err)
}

func TestUnitTextMalformed(t *testing.T) {
	good := Format(testPages(t)[0])
	text := strings.Join([]string{
		"1200 7200 1 E1-B 1 abcd",
		"1200 7200 1 L1 1 " + strings.Repeat("00", 30),
		"1200 7200 1",
		good,
	}, "\n")
	src, err := NewTextSource(strings.NewReader(text))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := src.Next()
		require.Error(t, err)
		require.Equal(t, errors.OsnmaMalformedPage, errors.OsnmaErr(err).Code())
	}
	p, err := src.Next()
	require.NoError(t, err)
	require.Equal(t, uint8(1), p.SVID)
}

func TestUnitTextCheckCRC(t *testing.T) {
	p := testPages(t)[0]
	p.Bits[3] ^= 0x10
	src, err := NewTextSource(strings.NewReader(Format(p)), TextSourceOptCheckCRC(true))
	require.NoError(t, err)
	got, err := src.Next()
	require.NoError(t, err)
	require.False(t, got.CRCValid)

	_, err = NewTextSource(nil)
	require.Error(t, err)
}
