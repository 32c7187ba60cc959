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

// Package engine runs an OSNMA authentication session.
//
// A Session takes the received pages one at a time and drives the authentication pipeline: the OSNMA fields of the
// E1-B pages are accumulated per satellite and subframe, DSM blocks are reassembled into root keys and public key
// renewals, the disclosed TESLA keys are verified against the chain, and the MAC tags are verified against the
// navigation data collected from the pages. Verdicts are aggregated into authentication records and the time to
// first authenticated fix.
//
// With dual frequency enabled the E5b-I pages feed a second pipeline. E5b-I carries no OSNMA data, so it only adds
// navigation data words; the chain, tag verification and records are shared.
package engine

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/guardtime/goosnma/auth"
	"github.com/guardtime/goosnma/dsm"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/hash"
	"github.com/guardtime/goosnma/input"
	"github.com/guardtime/goosnma/log"
	"github.com/guardtime/goosnma/mack"
	"github.com/guardtime/goosnma/navdata"
	"github.com/guardtime/goosnma/page"
	"github.com/guardtime/goosnma/tag"
	"github.com/guardtime/goosnma/tesla"
	"github.com/guardtime/goosnma/trust"
)

type pipeline struct {
	band page.Band
	mack *mack.Processor
	nav  *navdata.Collector
}

// Session is one authentication session. Pages are processed sequentially; the query methods may be called
// concurrently with the processing.
type Session struct {
	mu sync.Mutex

	cfg     Config
	adkd    map[uint8]bool
	store   *trust.Store
	dsm     *dsm.Reassembler
	chains  *tesla.Verifier
	tags    *tag.Verifier
	tracker *auth.Tracker
	pipes   map[page.Band]*pipeline

	nmas   map[uint8]dsm.NMAStatus
	alert  bool
	closed bool

	listeners []Listener
}

type (
	// SessionOpt is the configuration option for the Session.
	// See SessionOptConfig, SessionOptTrustStore, SessionOptListener, SessionOptRootKey and SessionOptAnchor.
	SessionOpt func(*session) error
	session    struct {
		obj    Session
		cfg    Config
		root   *dsm.KRoot
		anchor *tesla.Key
	}
)

// SessionOptConfig sets the session configuration. Default is DefaultConfig().
func SessionOptConfig(c Config) SessionOpt {
	return func(s *session) error {
		if s == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing session.")
		}
		if err := c.Validate(); err != nil {
			return err
		}
		c.ADKD = append([]uint8(nil), c.ADKD...)
		s.cfg = c
		return nil
	}
}

// SessionOptTrustStore sets the trust anchors used to authenticate the DSM messages.
func SessionOptTrustStore(st *trust.Store) SessionOpt {
	return func(s *session) error {
		if s == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing session.")
		}
		if st == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing trust store.")
		}
		s.obj.store = st
		return nil
	}
}

// SessionOptListener registers an event listener.
func SessionOptListener(l Listener) SessionOpt {
	return func(s *session) error {
		if s == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing session.")
		}
		if l == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing listener.")
		}
		s.obj.listeners = append(s.obj.listeners, l)
		return nil
	}
}

// SessionOptRootKey roots the session on a previously authenticated DSM-KROOT (warm start). The root key is
// trusted as is.
func SessionOptRootKey(k *dsm.KRoot) SessionOpt {
	return func(s *session) error {
		if s == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing session.")
		}
		if k == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing DSM-KROOT.")
		}
		s.root = k
		return nil
	}
}

// SessionOptAnchor seeds the warm started chain with a previously verified key, so that the first disclosed keys
// are verified from it instead of the root key. It requires SessionOptRootKey.
func SessionOptAnchor(k tesla.Key) SessionOpt {
	return func(s *session) error {
		if s == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing session.")
		}
		s.anchor = &k
		return nil
	}
}

// NewSession returns a new session. Without a trust store no DSM message can be authenticated, so the session can
// only be warm started.
func NewSession(options ...SessionOpt) (*Session, error) {
	tmp := session{cfg: DefaultConfig()}
	for _, setter := range options {
		if setter == nil {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Provided option is nil.")
		}
		if err := setter(&tmp); err != nil {
			return nil, errors.OsnmaErr(err).AppendMessage("Unable to apply session option.")
		}
	}
	if tmp.anchor != nil && tmp.root == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Anchor key requires a root key.")
	}

	s := &tmp.obj
	s.cfg = tmp.cfg
	if err := s.init(); err != nil {
		return nil, err
	}
	if tmp.root != nil {
		if err := s.warmStart(tmp.root, tmp.anchor); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Session) init() error {
	var err error
	if s.store == nil {
		if s.store, err = trust.NewStore(); err != nil {
			return err
		}
	}
	if s.dsm, err = dsm.NewReassembler(
		dsm.ReassemblerOptReedSolomon(s.cfg.ReedSolomon),
		dsm.ReassemblerOptAuthenticator(s.store),
	); err != nil {
		return err
	}
	if s.chains, err = tesla.NewVerifier(
		tesla.VerifierOptMaxSteps(s.cfg.MaxChainSteps),
		tesla.VerifierOptCrossSatellite(s.cfg.CrossSatellite, s.cfg.CacheSize),
		tesla.VerifierOptKeyRegen(s.cfg.KeyRegen),
	); err != nil {
		return err
	}
	if s.tracker, err = auth.NewTracker(
		auth.TrackerOptMinFields(s.cfg.MinFields),
		auth.TrackerOptMinSatellites(s.cfg.MinSatellites),
	); err != nil {
		return err
	}

	bands := []page.Band{page.E1B}
	if s.cfg.DualFrequency {
		bands = append(bands, page.E5bI)
	}
	s.pipes = make(map[page.Band]*pipeline, len(bands))
	var nav navdata.Combined
	for _, b := range bands {
		p := &pipeline{band: b}
		if p.mack, err = mack.NewProcessor(mack.ProcessorOptPartial(s.cfg.PartialMACK)); err != nil {
			return err
		}
		if p.nav, err = navdata.NewCollector(); err != nil {
			return err
		}
		s.pipes[b] = p
		nav = append(nav, p.nav)
	}
	if s.tags, err = tag.NewVerifier(s.chains, nav, tag.VerifierOptExpiry(s.cfg.PendingExpiry)); err != nil {
		return err
	}

	s.adkd = make(map[uint8]bool, len(s.cfg.ADKD))
	for _, a := range s.cfg.ADKD {
		s.adkd[a] = true
	}
	s.nmas = make(map[uint8]dsm.NMAStatus)
	return nil
}

func (s *Session) warmStart(root *dsm.KRoot, anchor *tesla.Key) error {
	c, err := tesla.NewChain(root, s.cfg.KeyInterval)
	if err != nil {
		return err
	}
	if _, err := s.chains.Root(c); err != nil {
		return err
	}
	log.Info(fmt.Sprintf("Warm start on chain %d.", c.ID))
	if anchor != nil {
		return s.chains.Seed(*anchor)
	}
	return nil
}

func (s *Session) emit(e Event) {
	for _, l := range s.listeners {
		l.OnEvent(e)
	}
}

func (s *Session) event(t EventType, p *page.Page) Event {
	return Event{Type: t, SVID: p.SVID, Band: p.Band, GST: p.GST}
}

// report emits the error as a structural or trust event.
func (s *Session) report(p *page.Page, err error) {
	e := errors.OsnmaErr(err).SetSatellite(p.SVID)
	t := EventStructural
	if e.Class() == errors.ClassTrust {
		t = EventTrust
	}
	log.Satellite(p.SVID).Debug(fmt.Sprintf("%s at %s.", e.Code(), p.GST))
	ev := s.event(t, p)
	ev.Err = e
	s.emit(ev)
}

// Process runs the page through the pipeline of its band. Errors of the page content are reported as events and
// never returned; Process only fails for invalid arguments or a closed session.
func (s *Session) Process(p *page.Page) error {
	if s == nil || p == nil {
		return errors.New(errors.OsnmaInvalidArgumentError)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New(errors.OsnmaInvalidStateError).AppendMessage("Session is closed.")
	}

	s.tracker.Observe(p.GST)
	if !p.CRCValid {
		s.emit(s.event(EventPageDropped, p))
		return nil
	}
	pipe, ok := s.pipes[p.Band]
	if !ok {
		return nil
	}
	pipe.nav.Add(p)

	if p.HasOSNMA && !s.alert {
		out, err := pipe.mack.Add(p, s.chains.Active())
		if err != nil {
			s.report(p, err)
		} else if out != nil {
			s.handle(p, out)
		}
	}
	s.verdicts(p, s.tags.Retry(p.GST))
	return nil
}

func (s *Session) handle(p *page.Page, out *mack.Output) {
	if out.NMAH != nil {
		s.nmas[out.SVID] = out.NMAH.NMAS
		if out.NMAH.NMAS == dsm.NMASDontUse && s.chains.State(out.SVID) != tesla.Rejected {
			s.chains.Reject(out.SVID)
			s.emit(s.event(EventSatelliteRejected, p))
		}
	}
	if out.Block != nil {
		s.block(p, *out.Block)
		if s.alert {
			return
		}
	}
	if out.Discarded {
		s.tags.Discard(out.SVID, out.GST)
	}
	c := s.chains.Active()
	if c == nil {
		return
	}
	if out.Key != nil {
		s.key(p, *out.Key)
	}
	for _, t := range out.Tags {
		s.tag(p, c, t)
	}
}

func (s *Session) block(p *page.Page, b dsm.Block) {
	msg, err := s.dsm.Add(b)
	if err != nil {
		s.report(p, err)
		return
	}
	if msg == nil {
		return
	}
	ev := s.event(EventDSM, p)
	ev.Message = msg
	s.emit(ev)

	switch msg.Kind {
	case dsm.KindKRoot:
		c, err := tesla.NewChain(msg.KRoot, s.cfg.KeyInterval)
		if err != nil {
			s.report(p, err)
			return
		}
		rooted, err := s.chains.Root(c)
		if err != nil {
			s.report(p, err)
			return
		}
		if rooted {
			ev := s.event(EventChainRooted, p)
			ev.Chain = c
			s.emit(ev)
			s.flush(p, c)
		}
	case dsm.KindPKR:
		if s.store.Alert() && !s.alert {
			s.alert = true
			s.chains.Reset()
			s.tags.Reset()
			log.Warning("OSNMA alert received, authentication stopped.")
			s.emit(s.event(EventAlert, p))
		}
	}
}

// flush handles the subframes completed before the chain was rooted.
func (s *Session) flush(p *page.Page, c *tesla.Chain) {
	for _, b := range []page.Band{page.E1B, page.E5bI} {
		pipe, ok := s.pipes[b]
		if !ok {
			continue
		}
		for _, out := range pipe.mack.Flush(c) {
			src := *p
			src.SVID = out.SVID
			s.handle(&src, out)
		}
	}
}

func (s *Session) key(p *page.Page, k tesla.Key) {
	// Repeats of an authentic key, like the root key retransmitted in its own subframe, are not verified again.
	if known, ok := s.chains.Key(p.SVID, k.ChainID, k.Index); ok && hash.Equal(known.Value, k.Value) {
		return
	}
	verified, err := s.chains.Verify(p.SVID, k)
	if err != nil {
		e := errors.OsnmaErr(err)
		if e.Code() != errors.OsnmaKeyChainBroken {
			log.Satellite(p.SVID).Debug(fmt.Sprintf("Key %d not verified: %s.", k.Index, e.Code()))
			return
		}
		ev := s.event(EventKeyRejected, p)
		ev.Key = &k
		ev.Err = e
		s.emit(ev)
		// Tags of a key index with a known authentic key are still verified with that key.
		if _, ok := s.chains.Key(p.SVID, k.ChainID, k.Index); !ok {
			s.verdicts(p, s.tags.MarkBroken(p.SVID, k))
		}
		return
	}
	ev := s.event(EventKeyVerified, p)
	ev.Key = &verified
	s.emit(ev)
}

func (s *Session) tag(p *page.Page, c *tesla.Chain, t mack.Tag) {
	if !s.adkd[t.ADKD] {
		return
	}
	nmas, ok := s.nmas[t.PRNA]
	if !ok || nmas == dsm.NMASDontUse {
		return
	}
	res, err := s.tags.Add(t, c, nmas, p.GST)
	if err != nil {
		s.report(p, err)
		return
	}
	s.verdicts(p, res)
}

func (s *Session) verdicts(p *page.Page, res []tag.Result) {
	for _, r := range res {
		changed, ttfaf := s.tracker.Update(r.Tag.PRND, auth.FieldsOf(r.Tag.ADKD), r.Tag.GST, r.Verdict)
		for i := range changed {
			ev := s.event(EventVerdict, p)
			ev.Record = &changed[i]
			ev.Err = errors.OsnmaErr(r.Err)
			s.emit(ev)
		}
		if ttfaf != nil {
			ev := s.event(EventTTFAF, p)
			ev.TTFAF = ttfaf
			s.emit(ev)
		}
	}
}

// Run processes the pages of the source until its end, or until the context is done. Malformed pages returned by
// the source are reported as events; any other source error stops the run.
func (s *Session) Run(ctx context.Context, src input.Source) error {
	if s == nil || src == nil {
		return errors.New(errors.OsnmaInvalidArgumentError)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p, err := src.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			e := errors.OsnmaErr(err)
			if e.Class() != errors.ClassStructural {
				return e
			}
			s.mu.Lock()
			s.emit(Event{Type: EventStructural, Err: e})
			s.mu.Unlock()
			continue
		}
		if err := s.Process(p); err != nil {
			return err
		}
	}
}

// Close ends the session and drops all of its state.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.dsm.Reset()
	s.chains.Reset()
	s.tags.Reset()
	s.tracker.Reset()
	for _, p := range s.pipes {
		p.mack.Reset()
		p.nav.Reset()
	}
	s.nmas = make(map[uint8]dsm.NMAStatus)
}

// Record returns the verdict of a single field of the satellite at the GST of the tag subframe.
func (s *Session) Record(svid uint8, f auth.Field, g gst.GST) auth.Verdict {
	if s == nil {
		return auth.Unauthenticated
	}
	return s.tracker.Record(svid, f, g)
}

// TTFAF returns the time to first authenticated fix. The ok flag is false until it has been declared.
func (s *Session) TTFAF() (auth.TTFAF, bool) {
	if s == nil {
		return auth.TTFAF{}, false
	}
	return s.tracker.TTFAF()
}

// Snapshot returns a copy of the authentication records.
func (s *Session) Snapshot() auth.Snapshot {
	if s == nil {
		return auth.Snapshot{}
	}
	return s.tracker.Snapshot()
}

// State returns the chain state of the satellite.
func (s *Session) State(svid uint8) tesla.State {
	if s == nil {
		return tesla.Unrooted
	}
	return s.chains.State(svid)
}

// Anchor returns the highest verified key of the satellite.
func (s *Session) Anchor(svid uint8) (tesla.Key, bool) {
	if s == nil {
		return tesla.Key{}, false
	}
	return s.chains.Anchor(svid)
}

// Chain returns the active chain, or nil before the first root key.
func (s *Session) Chain() *tesla.Chain {
	if s == nil {
		return nil
	}
	return s.chains.Active()
}

// Messages returns the DSM messages completed in the session.
func (s *Session) Messages() []*dsm.Message {
	if s == nil {
		return nil
	}
	return s.dsm.Completed()
}

// Store returns the trust store of the session.
func (s *Session) Store() *trust.Store {
	if s == nil {
		return nil
	}
	return s.store
}
