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

// Package metrics exports the session events as Prometheus metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/guardtime/goosnma/engine"
	"github.com/guardtime/goosnma/errors"
)

const namespace = "osnma"

// Listener is an engine.Listener that updates the session metrics.
type Listener struct {
	events   *prometheus.CounterVec
	errors   *prometheus.CounterVec
	verdicts *prometheus.CounterVec
	keyIndex *prometheus.GaugeVec
	ttfaf    prometheus.Gauge
}

// New returns a Listener with its metrics registered in reg.
func New(reg prometheus.Registerer) (*Listener, error) {
	if reg == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing metrics registerer.")
	}
	l := &Listener{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Number of session events by type.",
		}, []string{"type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Number of reported errors by code.",
		}, []string{"code"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Number of authentication record changes by field and verdict.",
		}, []string{"field", "verdict"}),
		keyIndex: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "key_index",
			Help:      "Index of the last verified TESLA key per satellite.",
		}, []string{"svid"}),
		ttfaf: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ttfaf_seconds",
			Help:      "Time to first authenticated fix, from the first page of the session.",
		}),
	}
	for _, c := range []prometheus.Collector{l.events, l.errors, l.verdicts, l.keyIndex, l.ttfaf} {
		if err := reg.Register(c); err != nil {
			return nil, errors.New(errors.OsnmaExternalError).SetExtError(err).AppendMessage("Unable to register metrics.")
		}
	}
	return l, nil
}

// OnEvent implements engine.Listener interface.
func (l *Listener) OnEvent(e engine.Event) {
	if l == nil {
		return
	}
	l.events.WithLabelValues(e.Type.String()).Inc()
	if e.Err != nil {
		l.errors.WithLabelValues(e.Err.Code().String()).Inc()
	}

	switch e.Type {
	case engine.EventKeyVerified:
		if e.Key != nil {
			l.keyIndex.WithLabelValues(svid(e.SVID)).Set(float64(e.Key.Index))
		}
	case engine.EventVerdict:
		if e.Record != nil {
			l.verdicts.WithLabelValues(e.Record.Field.String(), e.Record.Verdict.String()).Inc()
		}
	case engine.EventTTFAF:
		if e.TTFAF != nil {
			l.ttfaf.Set(float64(e.TTFAF.Elapsed))
		}
	case engine.EventAlert:
		l.keyIndex.Reset()
	}
}

func svid(n uint8) string {
	return fmt.Sprintf("E%02d", n)
}
