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

package auth

import (
	"fmt"
	"sort"
	"sync"

	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/log"
)

// Record is the verdict of one navigation data field of a satellite at a GST.
type Record struct {
	SVID    uint8
	Field   Field
	GST     gst.GST
	Verdict Verdict
}

// String implements fmt.(Stringer) interface.
func (r Record) String() string {
	return fmt.Sprintf("E%02d %s at %s: %s", r.SVID, r.Field, r.GST, r.Verdict)
}

// TTFAF is the time to first authenticated fix.
type TTFAF struct {
	// GST is the time the fix field set became authenticated.
	GST gst.GST
	// Elapsed is the number of seconds from the first page of the session.
	Elapsed int64
}

type recordKey struct {
	svid  uint8
	field Field
	gst   gst.GST
}

// Tracker keeps the authentication records of a session. It is safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	records map[recordKey]Verdict
	// Fields that have reached Authenticated per satellite.
	authenticated map[uint8]Field

	minFields Field
	minSats   int

	started bool
	start   gst.GST
	now     gst.GST
	ttfaf   *TTFAF
}

const defaultMinSatellites = 4

type (
	// TrackerOpt is the configuration option for the Tracker.
	TrackerOpt func(*tracker) error
	tracker    struct {
		obj Tracker
	}
)

// TrackerOptMinFields sets the field set every fix satellite must have authenticated. Default is FixFields.
func TrackerOptMinFields(f Field) TrackerOpt {
	return func(t *tracker) error {
		if t == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing tracker.")
		}
		if f == NoFields {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Empty fix field set.")
		}
		t.obj.minFields = f
		return nil
	}
}

// TrackerOptMinSatellites sets the number of satellites needed for a fix. Default is 4.
func TrackerOptMinSatellites(n int) TrackerOpt {
	return func(t *tracker) error {
		if t == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing tracker.")
		}
		if n < 1 {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid number of fix satellites.")
		}
		t.obj.minSats = n
		return nil
	}
}

// NewTracker returns an empty tracker.
func NewTracker(options ...TrackerOpt) (*Tracker, error) {
	tmp := tracker{obj: Tracker{
		records:       make(map[recordKey]Verdict),
		authenticated: make(map[uint8]Field),
		minFields:     FixFields,
		minSats:       defaultMinSatellites,
	}}
	for _, setter := range options {
		if setter == nil {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Provided option is nil.")
		}
		if err := setter(&tmp); err != nil {
			return nil, errors.OsnmaErr(err).AppendMessage("Unable to apply tracker option.")
		}
	}
	return &tmp.obj, nil
}

// Observe advances the session clock. The first observed GST is the session start.
func (t *Tracker) Observe(g gst.GST) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		t.started = true
		t.start = g
		t.now = g
		return
	}
	if g.After(t.now) {
		t.now = g
	}
}

// Update applies the verdict to every field of the set. Authenticated and Failed records are final, Failed wins
// over a pending or expired record. It returns the records that changed, and the TTFAF if it was declared by this
// update.
func (t *Tracker) Update(svid uint8, fields Field, g gst.GST, v Verdict) ([]Record, *TTFAF) {
	if t == nil {
		return nil, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	var changed []Record
	fields.Each(func(f Field) {
		key := recordKey{svid: svid, field: f, gst: g}
		if !v.supersedes(t.records[key]) {
			return
		}
		t.records[key] = v
		changed = append(changed, Record{SVID: svid, Field: f, GST: g, Verdict: v})
		if v == Authenticated {
			t.authenticated[svid] |= f
		}
	})
	if len(changed) == 0 || v != Authenticated || t.ttfaf != nil {
		return changed, nil
	}

	n := 0
	for _, f := range t.authenticated {
		if f.Has(t.minFields) {
			n++
		}
	}
	if n < t.minSats {
		return changed, nil
	}
	t.ttfaf = &TTFAF{GST: t.now, Elapsed: t.now.Sub(t.start)}
	log.Info(fmt.Sprintf("First authenticated fix at %s, %d s after start.", t.ttfaf.GST, t.ttfaf.Elapsed))
	ttfaf := *t.ttfaf
	return changed, &ttfaf
}

// Record returns the verdict of the field of the satellite at g. Only a single field may be queried.
func (t *Tracker) Record(svid uint8, f Field, g gst.GST) Verdict {
	if t == nil {
		return Unauthenticated
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.records[recordKey{svid: svid, field: f, gst: g}]
}

// TTFAF returns the time to first authenticated fix. The ok flag is false until it has been declared.
func (t *Tracker) TTFAF() (TTFAF, bool) {
	if t == nil {
		return TTFAF{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ttfaf == nil {
		return TTFAF{}, false
	}
	return *t.ttfaf, true
}

// Snapshot is a copy of the tracker state.
type Snapshot struct {
	// Authenticated holds the fields that have reached Authenticated per satellite.
	Authenticated map[uint8]Field
	// Records are ordered by satellite, GST and field.
	Records []Record
	TTFAF   *TTFAF
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Authenticated: make(map[uint8]Field, len(t.authenticated)),
		Records:       make([]Record, 0, len(t.records)),
	}
	for svid, f := range t.authenticated {
		s.Authenticated[svid] = f
	}
	for k, v := range t.records {
		s.Records = append(s.Records, Record{SVID: k.svid, Field: k.field, GST: k.gst, Verdict: v})
	}
	sort.Slice(s.Records, func(i, j int) bool {
		a, b := s.Records[i], s.Records[j]
		if a.SVID != b.SVID {
			return a.SVID < b.SVID
		}
		if c := a.GST.Compare(b.GST); c != 0 {
			return c < 0
		}
		return a.Field < b.Field
	})
	if t.ttfaf != nil {
		ttfaf := *t.ttfaf
		s.TTFAF = &ttfaf
	}
	return s
}

// Reset drops every record and the TTFAF.
func (t *Tracker) Reset() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[recordKey]Verdict)
	t.authenticated = make(map[uint8]Field)
	t.started = false
	t.start = gst.GST{}
	t.now = gst.GST{}
	t.ttfaf = nil
}
