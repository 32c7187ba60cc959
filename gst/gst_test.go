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

package gst

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnitOrdering(t *testing.T) {
	a := GST{WN: 1200, TOW: 100}
	b := GST{WN: 1200, TOW: 130}
	c := GST{WN: 1201, TOW: 0}

	require.True(t, a.Before(b))
	require.True(t, b.Before(c))
	require.True(t, c.After(a))
	require.False(t, a.Before(a))
	require.Equal(t, -1, a.Compare(c))
	require.Equal(t, 0, b.Compare(b))
	require.Equal(t, 1, c.Compare(b))
}

func TestUnitArithmetic(t *testing.T) {
	g := GST{WN: 1200, TOW: SecondsPerWeek - 10}

	next := g.Add(40)
	require.Equal(t, GST{WN: 1201, TOW: 30}, next)
	require.Equal(t, int64(40), next.Sub(g))
	require.Equal(t, g, next.Add(-40))
	require.Equal(t, GST{WN: 3, TOW: 5}, New(2, SecondsPerWeek+5))
}

func TestUnitSubframeStart(t *testing.T) {
	require.Equal(t, GST{WN: 10, TOW: 90}, GST{WN: 10, TOW: 119}.SubframeStart())
	require.Equal(t, GST{WN: 10, TOW: 120}, GST{WN: 10, TOW: 120}.SubframeStart())
}

func TestUnitUint32(t *testing.T) {
	g := GST{WN: 0x4d2, TOW: 0x1e0b4}

	v := g.Uint32()
	require.Equal(t, uint32(0x4d21e0b4), v)
	require.Equal(t, g, FromUint32(v))
}
