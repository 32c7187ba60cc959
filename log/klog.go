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

package log

import (
	"fmt"

	"k8s.io/klog/v2"

	"github.com/guardtime/goosnma/errors"
)

// KlogLogger forwards the log output to klog. Debug and notice messages are emitted at a klog verbosity, so they are
// only visible with the klog -v flag set accordingly.
type KlogLogger struct {
	debug  klog.Level
	notice klog.Level
}

const (
	defaultKlogDebug  = 2
	defaultKlogNotice = 1
	// Skips the KlogLogger method and the package level function.
	klogDepth = 2
)

type (
	// KlogOpt is the configuration option for the KlogLogger.
	KlogOpt func(*klogLogger) error
	klogLogger struct {
		obj KlogLogger
	}
)

// KlogOptDebugLevel sets the klog verbosity of the debug messages. Per page and per tag messages are frequent, a
// replay of a few minutes yields thousands of them.
func KlogOptDebugLevel(l klog.Level) KlogOpt {
	return func(k *klogLogger) error {
		if k == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing klog logger.")
		}
		k.obj.debug = l
		return nil
	}
}

// KlogOptNoticeLevel sets the klog verbosity of the notice messages.
func KlogOptNoticeLevel(l klog.Level) KlogOpt {
	return func(k *klogLogger) error {
		if k == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing klog logger.")
		}
		k.obj.notice = l
		return nil
	}
}

// NewKlog returns a Logger backed by k8s.io/klog/v2.
func NewKlog(options ...KlogOpt) (*KlogLogger, error) {
	tmp := klogLogger{obj: KlogLogger{debug: defaultKlogDebug, notice: defaultKlogNotice}}
	for _, setter := range options {
		if setter == nil {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Provided option is nil.")
		}
		if err := setter(&tmp); err != nil {
			return nil, errors.OsnmaErr(err).AppendMessage("Unable to apply klog option.")
		}
	}
	if tmp.obj.notice > tmp.obj.debug {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).
			AppendMessage(fmt.Sprintf("Notice verbosity %d is above debug verbosity %d.", tmp.obj.notice, tmp.obj.debug))
	}
	return &tmp.obj, nil
}

// Enabled tells whether the messages of the priority reach the klog output with the current -v flag.
func (l *KlogLogger) Enabled(p Priority) bool {
	if l == nil {
		return false
	}
	switch p {
	case DEBUG:
		return klog.V(l.debug).Enabled()
	case NOTICE:
		return klog.V(l.notice).Enabled()
	}
	return p < NONE
}

// Debug implements Logger interface.
func (l *KlogLogger) Debug(v ...interface{}) {
	if l == nil {
		return
	}
	klog.V(l.debug).InfoDepth(klogDepth, fmt.Sprint(v...))
}

// Info implements Logger interface.
func (l *KlogLogger) Info(v ...interface{}) {
	if l == nil {
		return
	}
	klog.InfoDepth(klogDepth, fmt.Sprint(v...))
}

// Notice implements Logger interface.
func (l *KlogLogger) Notice(v ...interface{}) {
	if l == nil {
		return
	}
	klog.V(l.notice).InfoDepth(klogDepth, fmt.Sprint(v...))
}

// Warning implements Logger interface.
func (l *KlogLogger) Warning(v ...interface{}) {
	if l == nil {
		return
	}
	klog.WarningDepth(klogDepth, fmt.Sprint(v...))
}

// Error implements Logger interface.
func (l *KlogLogger) Error(v ...interface{}) {
	if l == nil {
		return
	}
	klog.ErrorDepth(klogDepth, fmt.Sprint(v...))
}
