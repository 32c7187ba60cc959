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
	"fmt"

	"github.com/guardtime/goosnma/auth"
	"github.com/guardtime/goosnma/dsm"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/page"
	"github.com/guardtime/goosnma/tesla"
)

// EventType is the kind of a session event.
type EventType byte

const (
	// EventPageDropped is a page discarded because of a failed CRC.
	EventPageDropped EventType = iota
	// EventStructural is a discarded page, MACK or DSM message.
	EventStructural
	// EventTrust is a rejected root or public key.
	EventTrust
	// EventDSM is a completed and authenticated DSM message.
	EventDSM
	// EventChainRooted is a new active TESLA chain.
	EventChainRooted
	// EventKeyVerified is an authentic TESLA key.
	EventKeyVerified
	// EventKeyRejected is a TESLA key that failed the chain verification.
	EventKeyRejected
	// EventSatelliteRejected is a satellite reporting that its authentication data must not be used.
	EventSatelliteRejected
	// EventAlert is an authenticated OSNMA alert message. Authentication stops for the session.
	EventAlert
	// EventVerdict is a change of an authentication record.
	EventVerdict
	// EventTTFAF is the declaration of the first authenticated fix.
	EventTTFAF
)

var eventNames = [...]string{
	EventPageDropped:       "page-dropped",
	EventStructural:        "structural",
	EventTrust:             "trust",
	EventDSM:               "dsm",
	EventChainRooted:       "chain-rooted",
	EventKeyVerified:       "key-verified",
	EventKeyRejected:       "key-rejected",
	EventSatelliteRejected: "satellite-rejected",
	EventAlert:             "alert",
	EventVerdict:           "verdict",
	EventTTFAF:             "ttfaf",
}

// String implements fmt.(Stringer) interface.
func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return fmt.Sprintf("event(%d)", byte(t))
}

// Event is emitted by the session on every state change. Only the fields relevant to the event type are set.
type Event struct {
	Type EventType
	SVID uint8
	Band page.Band
	// GST of the page being processed.
	GST gst.GST

	Record  *auth.Record
	TTFAF   *auth.TTFAF
	Key     *tesla.Key
	Chain   *tesla.Chain
	Message *dsm.Message
	Err     *errors.OsnmaError
}

// String implements fmt.(Stringer) interface.
func (e Event) String() string {
	s := fmt.Sprintf("%s E%02d %s %s", e.Type, e.SVID, e.Band, e.GST)
	switch {
	case e.Record != nil:
		s += ": " + e.Record.String()
	case e.Key != nil:
		s += ": " + e.Key.String()
	case e.Message != nil:
		s += ": " + e.Message.String()
	case e.TTFAF != nil:
		s += fmt.Sprintf(": %d s", e.TTFAF.Elapsed)
	}
	if e.Err != nil {
		s += fmt.Sprintf(" (%s)", e.Err.Code())
	}
	return s
}

// Listener receives the session events. It is called synchronously from the processing routine and must not call
// Process.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc is an adapter for using a function as a Listener.
type ListenerFunc func(Event)

// OnEvent implements Listener interface.
func (f ListenerFunc) OnEvent(e Event) {
	f(e)
}
