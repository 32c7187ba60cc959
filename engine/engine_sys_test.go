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
	"path/filepath"
	"testing"

	"github.com/guardtime/goosnma/input"
	"github.com/guardtime/goosnma/log"
	"github.com/guardtime/goosnma/tesla"
	"github.com/guardtime/goosnma/test"
	"github.com/guardtime/goosnma/test/osnmatest"
)

var testLogDir = filepath.Join(test.OutDir, "engine")

const (
	replayTestOptScenario = iota
	replayTestOptRecording
)

func TestSysReplay(t *testing.T) {
	logger, defFunc, err := test.InitLogger(t, testLogDir, log.DEBUG, t.Name())
	if err != nil {
		t.Fatal("Failed to initialize logger: ", err)
	}
	defer defFunc()
	log.SetLogger(logger)
	defer log.SetLogger(nil)

	sc, err := osnmatest.New(8, testSVIDs...)
	if err != nil {
		t.Fatal("Failed to create scenario: ", err)
	}
	pages, err := sc.Pages(0, 4)
	if err != nil {
		t.Fatal("Failed to create pages: ", err)
	}
	var buf bytes.Buffer
	if err := input.Write(&buf, pages...); err != nil {
		t.Fatal("Failed to write pages: ", err)
	}

	test.Suite{
		{Func: testReplayNominal},
		{Func: testReplayPartial},
		{Func: testReplayOwnKeysOnly},
		{Name: "testReplayNoKeyRegen", Func: testReplayNoKeyRegen},
	}.Runner(t, sc, buf.Bytes())
}

func replay(t *testing.T, cfg Config, opt ...interface{}) (*Session, *recorder) {
	sc := opt[replayTestOptScenario].(*osnmatest.Scenario)
	rec := &recorder{}
	s := testSession(t, sc, rec, SessionOptConfig(cfg))

	src, err := input.NewTextSource(bytes.NewReader(opt[replayTestOptRecording].([]byte)), input.TextSourceOptCheckCRC(true))
	if err != nil {
		t.Fatal("Failed to create text source: ", err)
	}
	if err := s.Run(context.Background(), src); err != nil {
		t.Fatal("Failed to replay recording: ", err)
	}
	return s, rec
}

func checkReplay(t *testing.T, s *Session, rec *recorder) {
	if _, ok := s.TTFAF(); !ok {
		t.Error("Time to first authenticated fix was not reached.")
	}
	if n := len(rec.of(EventKeyRejected)); n != 0 {
		t.Error("Unexpected key rejections: ", n)
	}
	if n := len(rec.of(EventStructural)); n != 0 {
		t.Error("Unexpected structural errors: ", n)
	}
	for _, svid := range testSVIDs {
		if st := s.State(svid); st != tesla.Rooted {
			t.Errorf("E%02d is in state %s.", svid, st)
		}
	}
}

func testReplayNominal(t *testing.T, opt ...interface{}) {
	s, rec := replay(t, DefaultConfig(), opt...)
	checkReplay(t, s, rec)
}

func testReplayPartial(t *testing.T, opt ...interface{}) {
	cfg := DefaultConfig()
	cfg.PartialMACK = true
	s, rec := replay(t, cfg, opt...)
	checkReplay(t, s, rec)
}

func testReplayOwnKeysOnly(t *testing.T, opt ...interface{}) {
	cfg := DefaultConfig()
	cfg.CrossSatellite = false
	s, rec := replay(t, cfg, opt...)
	checkReplay(t, s, rec)
}

func testReplayNoKeyRegen(t *testing.T, opt ...interface{}) {
	cfg := DefaultConfig()
	cfg.KeyRegen = false
	s, rec := replay(t, cfg, opt...)
	checkReplay(t, s, rec)
}
