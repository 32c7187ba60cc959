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

// Package log implements the logger used for the OSNMA engine internals.
//
// Logging is disabled until a logger is registered with SetLogger(). Calling SetLogger(nil) disables it again.
//
// The package provides two implementations: WriterLogger, that writes formatted lines to an io.Writer, and
// KlogLogger, that forwards the output to k8s.io/klog/v2. Messages about the data of one satellite should be logged
// through Satellite(), so that they carry the satellite prefix whatever the backend.
package log

import (
	"fmt"
	"sync"
)

var (
	mu     sync.RWMutex
	logger Logger
)

// SetLogger registers the global logger. A nil l disables logging.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

func current() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug logs per page, block and tag details: DSM blocks received, tags held pending or keys regenerated.
func Debug(v ...interface{}) {
	if l := current(); l != nil {
		l.Debug(v...)
	}
}

// Info logs the progress of the session: chains rooted, messages completed and the first authenticated fix.
func Info(v ...interface{}) {
	if l := current(); l != nil {
		l.Info(v...)
	}
}

// Notice logs state changes that do not stop the authentication, like a DSM restart on a new block count.
func Notice(v ...interface{}) {
	if l := current(); l != nil {
		l.Notice(v...)
	}
}

// Warning logs conditions that degrade the authentication: rejected satellites, broken chains and alerts.
func Warning(v ...interface{}) {
	if l := current(); l != nil {
		l.Warning(v...)
	}
}

// Error logs failures the engine can not recover from.
func Error(v ...interface{}) {
	if l := current(); l != nil {
		l.Error(v...)
	}
}

// satLogger prefixes the messages with the satellite, as in "E11: ".
type satLogger string

// Satellite returns a logger that prefixes every message with the satellite and forwards it to the global logger.
func Satellite(svid uint8) Logger {
	return satLogger(fmt.Sprintf("E%02d: ", svid))
}

func (p satLogger) args(v []interface{}) []interface{} {
	return []interface{}{string(p) + fmt.Sprint(v...)}
}

// Debug implements Logger interface.
func (p satLogger) Debug(v ...interface{}) { Debug(p.args(v)...) }

// Info implements Logger interface.
func (p satLogger) Info(v ...interface{}) { Info(p.args(v)...) }

// Notice implements Logger interface.
func (p satLogger) Notice(v ...interface{}) { Notice(p.args(v)...) }

// Warning implements Logger interface.
func (p satLogger) Warning(v ...interface{}) { Warning(p.args(v)...) }

// Error implements Logger interface.
func (p satLogger) Error(v ...interface{}) { Error(p.args(v)...) }
