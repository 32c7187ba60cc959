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

package test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/guardtime/goosnma/log"
)

func testCaseNamed(t *testing.T, opts ...interface{}) {
	*opts[0].(*[]string) = append(*opts[0].(*[]string), t.Name())
}

func TestUnitSuiteNames(t *testing.T) {
	var names []string
	Suite{
		{Func: testCaseNamed},
		{Name: "E11", Func: testCaseNamed},
	}.Runner(t, &names)

	if len(names) != 2 {
		t.Fatalf("Expected 2 cases, got %d.", len(names))
	}
	if names[0] != t.Name()+"/testCaseNamed" {
		t.Errorf("Unexpected case name %s.", names[0])
	}
	if names[1] != t.Name()+"/E11" {
		t.Errorf("Unexpected case name %s.", names[1])
	}
}

func TestUnitInitLoggerSubtest(t *testing.T) {
	dir := t.TempDir()
	logger, fClose, err := InitLogger(t, dir, log.DEBUG, "TestSysReplay/E11")
	if err != nil {
		t.Fatal("Failed to initialize logger: ", err)
	}
	defer fClose()
	logger.Info("Chain rooted.")

	if _, err := os.Stat(filepath.Join(dir, "TestSysReplay_E11.log")); err != nil {
		t.Fatal("Missing log file: ", err)
	}
}
