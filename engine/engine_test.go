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

package engine

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guardtime/goosnma/auth"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/input"
	"github.com/guardtime/goosnma/page"
	"github.com/guardtime/goosnma/tesla"
	"github.com/guardtime/goosnma/test/osnmatest"
)

var testSVIDs = []uint8{1, 2, 3, 4}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) of(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func testScenario(t *testing.T) *osnmatest.Scenario {
	sc, err := osnmatest.New(8, testSVIDs...)
	require.NoError(t, err)
	return sc
}

func testSession(t *testing.T, sc *osnmatest.Scenario, rec *recorder, options ...SessionOpt) *Session {
	store, err := sc.Store()
	require.NoError(t, err)
	options = append([]SessionOpt{SessionOptTrustStore(store), SessionOptListener(rec)}, options...)
	s, err := NewSession(options...)
	require.NoError(t, err)
	return s
}

func process(t *testing.T, s *Session, sc *osnmatest.Scenario, from, to uint32) {
	pages, err := sc.Pages(from, to)
	require.NoError(t, err)
	for _, p := range pages {
		require.NoError(t, s.Process(p))
	}
}

// last returns the GST of the last page of the subframe disclosing key i.
func last(sc *osnmatest.Scenario, i uint32) gst.GST {
	return sc.SubframeGST(i).Add(2 * (page.PerSubframe - 1))
}

func TestUnitColdStart(t *testing.T) {
	sc := testScenario(t)
	rec := &recorder{}
	s := testSession(t, sc, rec)

	process(t, s, sc, 0, 3)

	require.Len(t, rec.of(EventDSM), 1, "Repeated DSM-KROOT must not be reported again.")
	rooted := rec.of(EventChainRooted)
	require.Len(t, rooted, 1)
	require.Equal(t, last(sc, 1), rooted[0].GST)
	require.True(t, rooted[0].Chain.Same(sc.Chain))

	// K1, K2 and K3 from each satellite; the root key retransmission is not verified again.
	require.Len(t, rec.of(EventKeyVerified), 3*len(testSVIDs))
	require.Empty(t, rec.of(EventKeyRejected))
	require.Empty(t, rec.of(EventStructural))
	require.Empty(t, rec.of(EventTrust))

	ttfaf, ok := s.TTFAF()
	require.True(t, ok)
	require.Equal(t, last(sc, 2), ttfaf.GST)
	require.Equal(t, int64(88), ttfaf.Elapsed)
	require.Len(t, rec.of(EventTTFAF), 1)

	for _, svid := range testSVIDs {
		for _, sf := range []uint32{1, 2} {
			for _, f := range []auth.Field{auth.Ephemeris, auth.Clock, auth.Timing} {
				require.Equal(t, auth.Authenticated, s.Record(svid, f, sc.SubframeGST(sf)), "E%02d %s at %d", svid, f, sf)
			}
		}
		// No navigation data precedes the first subframe.
		require.Equal(t, auth.Expired, s.Record(svid, auth.Ephemeris, sc.SubframeGST(0)))

		anchor, ok := s.Anchor(svid)
		require.True(t, ok)
		require.Equal(t, uint32(3), anchor.Index)
		require.Equal(t, tesla.Rooted, s.State(svid))
	}

	snap := s.Snapshot()
	require.NotNil(t, snap.TTFAF)
	require.Equal(t, ttfaf, *snap.TTFAF)
	for _, svid := range testSVIDs {
		require.True(t, snap.Authenticated[svid].Has(auth.FixFields))
	}
	require.Len(t, s.Messages(), 1)
	require.NotNil(t, s.Chain())
}

func TestUnitPartialMACK(t *testing.T) {
	sc := testScenario(t)
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.PartialMACK = true
	s := testSession(t, sc, rec, SessionOptConfig(cfg))

	process(t, s, sc, 0, 3)

	ttfaf, ok := s.TTFAF()
	require.True(t, ok)
	require.Equal(t, last(sc, 2), ttfaf.GST)
	require.Len(t, rec.of(EventKeyVerified), 3*len(testSVIDs))
	require.Equal(t, auth.Authenticated, s.Record(3, auth.Timing, sc.SubframeGST(2)))
}

func TestUnitCorruptedKey(t *testing.T) {
	sc := testScenario(t)
	sc.Corrupt[osnmatest.KeyRef{SVID: 1, Index: 4}] = true
	rec := &recorder{}
	s := testSession(t, sc, rec)

	process(t, s, sc, 0, 4)

	rejected := rec.of(EventKeyRejected)
	require.Len(t, rejected, 1)
	require.Equal(t, uint8(1), rejected[0].SVID)
	require.Equal(t, uint32(4), rejected[0].Key.Index)
	require.Equal(t, last(sc, 4), rejected[0].GST)
	require.Equal(t, errors.OsnmaKeyChainBroken, rejected[0].Err.Code())

	anchor, ok := s.Anchor(1)
	require.True(t, ok)
	require.Equal(t, uint32(3), anchor.Index, "Rejected key must not move the anchor.")
	anchor, ok = s.Anchor(2)
	require.True(t, ok)
	require.Equal(t, uint32(4), anchor.Index)

	// Tags of satellite 1 depending on the rejected key fail.
	require.Equal(t, auth.Failed, s.Record(1, auth.Ephemeris, sc.SubframeGST(3)))
	require.Equal(t, auth.Failed, s.Record(1, auth.Timing, sc.SubframeGST(3)))
	require.Equal(t, auth.Authenticated, s.Record(2, auth.Timing, sc.SubframeGST(3)))

	// The next key of the satellite is verified from the key of the other satellites.
	process(t, s, sc, 5, 5)
	require.Len(t, rec.of(EventKeyRejected), 1)
	anchor, ok = s.Anchor(1)
	require.True(t, ok)
	require.Equal(t, uint32(5), anchor.Index)
	require.Equal(t, auth.Authenticated, s.Record(1, auth.Ephemeris, sc.SubframeGST(4)))
}

func TestUnitLateKey(t *testing.T) {
	sc := testScenario(t)
	cfg := DefaultConfig()
	cfg.KeyRegen = false
	cfg.CrossSatellite = false
	rec := &recorder{}
	s := testSession(t, sc, rec, SessionOptConfig(cfg))

	process(t, s, sc, 0, 2)
	subframe := func(i uint32, svid uint8) {
		pages, err := sc.Subframe(i, svid)
		require.NoError(t, err)
		for _, p := range pages {
			require.NoError(t, s.Process(p))
		}
	}
	for _, sf := range []uint32{3, 4} {
		for _, svid := range testSVIDs[1:] {
			subframe(sf, svid)
		}
	}
	// E01 delivers K4 before K3.
	subframe(4, 1)
	anchor, ok := s.Anchor(1)
	require.True(t, ok)
	require.Equal(t, uint32(4), anchor.Index)
	subframe(3, 1)

	require.Empty(t, rec.of(EventKeyRejected), "An authentic late key must not break the chain.")
	anchor, ok = s.Anchor(1)
	require.True(t, ok)
	require.Equal(t, uint32(4), anchor.Index)
	require.Equal(t, auth.Authenticated, s.Record(1, auth.Timing, sc.SubframeGST(2)))
	require.Equal(t, auth.Authenticated, s.Record(1, auth.Ephemeris, sc.SubframeGST(2)))
	for _, e := range rec.of(EventVerdict) {
		require.NotEqual(t, auth.Failed, e.Record.Verdict, "%s", e.Record)
	}
}

func TestUnitLateCorruptedKey(t *testing.T) {
	sc := testScenario(t)
	sc.Corrupt[osnmatest.KeyRef{SVID: 1, Index: 3}] = true
	cfg := DefaultConfig()
	cfg.KeyRegen = false
	cfg.CrossSatellite = false
	rec := &recorder{}
	s := testSession(t, sc, rec, SessionOptConfig(cfg))

	process(t, s, sc, 0, 2)
	for _, sf := range []uint32{4, 3} {
		pages, err := sc.Subframe(sf, 1)
		require.NoError(t, err)
		for _, p := range pages {
			require.NoError(t, s.Process(p))
		}
	}

	rejected := rec.of(EventKeyRejected)
	require.Len(t, rejected, 1)
	require.Equal(t, uint32(3), rejected[0].Key.Index)
	require.Equal(t, errors.OsnmaKeyChainBroken, rejected[0].Err.Code())
	// The tags of the rejected key index are verified with the key derived from the anchor.
	require.Equal(t, auth.Authenticated, s.Record(1, auth.Timing, sc.SubframeGST(2)))
	anchor, ok := s.Anchor(1)
	require.True(t, ok)
	require.Equal(t, uint32(4), anchor.Index)
}

func TestUnitWarmStart(t *testing.T) {
	sc := testScenario(t)
	rec := &recorder{}
	s, err := NewSession(SessionOptRootKey(sc.KRoot), SessionOptListener(rec))
	require.NoError(t, err)
	require.NotNil(t, s.Chain())

	process(t, s, sc, 3, 5)

	require.Empty(t, rec.of(EventChainRooted))
	require.Empty(t, rec.of(EventKeyRejected))
	// The DSM-KROOT can not be authenticated without a public key.
	require.NotEmpty(t, rec.of(EventTrust))

	ttfaf, ok := s.TTFAF()
	require.True(t, ok)
	require.Equal(t, last(sc, 5), ttfaf.GST)
	require.Equal(t, int64(88), ttfaf.Elapsed)
}

func TestUnitWarmStartAnchor(t *testing.T) {
	sc := testScenario(t)
	cfg := DefaultConfig()
	cfg.MaxChainSteps = 1

	// Three steps from the root key exceed the limit.
	rec := &recorder{}
	s, err := NewSession(SessionOptConfig(cfg), SessionOptRootKey(sc.KRoot), SessionOptListener(rec))
	require.NoError(t, err)
	process(t, s, sc, 3, 3)
	require.NotEmpty(t, rec.of(EventKeyRejected))

	rec = &recorder{}
	s, err = NewSession(SessionOptConfig(cfg), SessionOptRootKey(sc.KRoot), SessionOptAnchor(sc.Keys[2]),
		SessionOptListener(rec))
	require.NoError(t, err)
	process(t, s, sc, 3, 3)
	require.Empty(t, rec.of(EventKeyRejected))
	anchor, ok := s.Anchor(1)
	require.True(t, ok)
	require.Equal(t, uint32(3), anchor.Index)

	_, err = NewSession(SessionOptAnchor(sc.Keys[2]))
	require.Error(t, err)
}

func TestUnitDualFrequency(t *testing.T) {
	sc := testScenario(t)
	rec := &recorder{}
	cfg := DefaultConfig()
	cfg.DualFrequency = true
	s := testSession(t, sc, rec, SessionOptConfig(cfg))

	for i := uint32(0); i <= 2; i++ {
		e1b, err := sc.Pages(i, i)
		require.NoError(t, err)
		for _, p := range e1b {
			require.NoError(t, s.Process(p))
		}
		for _, svid := range testSVIDs {
			e5b, err := sc.E5bSubframe(i, svid)
			require.NoError(t, err)
			for _, p := range e5b {
				require.NoError(t, s.Process(p))
			}
		}
	}

	ttfaf, ok := s.TTFAF()
	require.True(t, ok)
	require.Equal(t, last(sc, 2), ttfaf.GST)
	require.Empty(t, rec.of(EventStructural))
}

func TestUnitSingleBandIgnoresE5b(t *testing.T) {
	sc := testScenario(t)
	rec := &recorder{}
	s := testSession(t, sc, rec)

	pages, err := sc.E5bSubframe(0, 1)
	require.NoError(t, err)
	for _, p := range pages {
		require.NoError(t, s.Process(p))
	}
	require.Empty(t, rec.events)
}

func TestUnitDroppedPage(t *testing.T) {
	sc := testScenario(t)
	rec := &recorder{}
	s := testSession(t, sc, rec)

	pages, err := sc.Subframe(0, 1)
	require.NoError(t, err)
	p, err := page.New(1, pages[0].GST, page.E1B, pages[0].Bits[:], false)
	require.NoError(t, err)
	require.NoError(t, s.Process(p))

	dropped := rec.of(EventPageDropped)
	require.Len(t, dropped, 1)
	require.Equal(t, uint8(1), dropped[0].SVID)
}

func TestUnitClose(t *testing.T) {
	sc := testScenario(t)
	s := testSession(t, sc, &recorder{})
	process(t, s, sc, 0, 2)

	s.Close()
	_, ok := s.TTFAF()
	require.False(t, ok)
	require.Nil(t, s.Chain())

	pages, err := sc.Subframe(3, 1)
	require.NoError(t, err)
	err = s.Process(pages[0])
	require.Error(t, err)
	require.Equal(t, errors.OsnmaInvalidStateError, errors.OsnmaErr(err).Code())
}

func TestUnitRun(t *testing.T) {
	sc := testScenario(t)
	rec := &recorder{}
	s := testSession(t, sc, rec)

	pages, err := sc.Pages(0, 2)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, input.Write(&buf, pages...))
	buf.WriteString("1200 7300 1 E1-B 1 zz\n")

	src, err := input.NewTextSource(&buf)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background(), src))

	_, ok := s.TTFAF()
	require.True(t, ok)
	require.Len(t, rec.of(EventStructural), 1)
}

func TestUnitRunCanceled(t *testing.T) {
	sc := testScenario(t)
	s := testSession(t, sc, &recorder{})

	pages, err := sc.Pages(0, 0)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Equal(t, context.Canceled, s.Run(ctx, input.NewSliceSource(pages...)))
}

func TestUnitNilSession(t *testing.T) {
	var s *Session
	require.Error(t, s.Process(nil))
	_, ok := s.TTFAF()
	require.False(t, ok)
	require.Equal(t, auth.Unauthenticated, s.Record(1, auth.Ephemeris, gst.New(1200, 0)))
	require.Nil(t, s.Chain())

	_, err := NewSession(nil)
	require.Error(t, err)

	cfg := DefaultConfig()
	cfg.KeyInterval = 0
	_, err = NewSession(SessionOptConfig(cfg))
	require.Error(t, err)
}

func TestUnitAlert(t *testing.T) {
	sc := testScenario(t)
	require.NoError(t, sc.Alert(5))
	rec := &recorder{}
	s := testSession(t, sc, rec, SessionOptRootKey(sc.KRoot))

	process(t, s, sc, 0, 4)

	alerts := rec.of(EventAlert)
	require.Len(t, alerts, 1)
	require.Equal(t, last(sc, 3), alerts[0].GST)
	require.True(t, s.Store().Alert())
	require.Nil(t, s.Chain())
	_, ok := s.Anchor(1)
	require.False(t, ok)

	// Authentication stops with the alert.
	for _, e := range rec.of(EventKeyVerified) {
		require.False(t, e.GST.After(alerts[0].GST), "Key verified after the alert: %s", e)
	}
	dsms := rec.of(EventDSM)
	require.Len(t, dsms, 1)
	require.True(t, dsms[0].Message.PKR.IsAlert())

	// The fix declared before the alert is kept.
	ttfaf, ok := s.TTFAF()
	require.True(t, ok)
	require.Equal(t, last(sc, 2), ttfaf.GST)
}
