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

// Package test holds the helpers shared by the system tests, which replay recorded or generated OSNMA pages
// through the engine and keep a debug log of every run under test/out.
package test

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/guardtime/goosnma/log"
)

// OutDir is the root of the test output, relative to a package directory.
var OutDir = filepath.Join("..", "test", "out")

// Case is a test case. If Name is empty, the name of Func is used.
type Case struct {
	Name string
	Func func(t *testing.T, opts ...interface{})
}

// Suite is a collection of test cases sharing the options of the Runner, usually a page source or a session
// configuration.
type Suite []Case

// Runner runs every test case in the receiver test suite.
func (ts Suite) Runner(t *testing.T, opts ...interface{}) {
	t.Helper()

	for _, tc := range ts {
		name := tc.Name
		if name == "" {
			name = funcName(tc.Func)
		}
		log.Debug("---- :::: Run test case: ", name, " :::: ----")
		t.Run(name, func(t *testing.T) { tc.Func(t, opts...) })
	}
}

// funcName returns the function name without the package path, e.g. "testReplayNominal".
func funcName(f interface{}) string {
	name := runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// InitLogger creates the directory path and a log file named after the test. Subtest separators in name are
// replaced, so that every case of a Suite gets its own file.
func InitLogger(t *testing.T, path string, level log.Priority, name string) (logger log.Logger, fClose func(), err error) {
	t.Helper()

	defer func() {
		if err != nil && fClose != nil {
			fClose()
			fClose = nil
		}
	}()

	// Initialize test output directory.
	err = os.MkdirAll(path, os.ModePerm)
	if err != nil {
		return
	}
	// Create log file.
	name = strings.ReplaceAll(name, "/", "_")
	logFile, err := os.Create(filepath.Join(path, name+".log"))
	if err != nil {
		return
	}
	fClose = func() { _ = logFile.Close() }
	// Initialize logger.
	logger, err = log.New(level, logFile)
	if err != nil {
		return
	}
	return
}
