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
	"io"
	"os"
	"sync"
	"time"

	"github.com/guardtime/goosnma/errors"
)

// Priority is the logging level.
type Priority byte

const (
	// DEBUG priority logs everything.
	DEBUG Priority = iota
	// INFO priority.
	INFO
	// NOTICE priority.
	NOTICE
	// WARNING priority.
	WARNING
	// ERROR priority logs only errors.
	ERROR
	// NONE is not a valid logger priority.
	NONE
)

var priorityTags = [...]string{
	DEBUG:   "[D]",
	INFO:    "[I]",
	NOTICE:  "[N]",
	WARNING: "[W]",
	ERROR:   "[E]",
}

// WriterLogger writes formatted log lines into an io.Writer.
type WriterLogger struct {
	level Priority
	mu    sync.Mutex
	w     io.Writer
}

// New returns a new WriterLogger that writes every message with priority level or higher.
// If w is nil, the output is written to os.Stdout.
func New(level Priority, w io.Writer) (*WriterLogger, error) {
	if level >= NONE {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid logger priority.")
	}
	if w == nil {
		w = os.Stdout
	}
	return &WriterLogger{level: level, w: w}, nil
}

func (l *WriterLogger) write(p Priority, v ...interface{}) {
	if l == nil || p < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "%s %s %s", time.Now().UTC().Format("2006-01-02 15:04:05.000"), priorityTags[p], fmt.Sprintln(v...))
}

// Debug implements Logger interface.
func (l *WriterLogger) Debug(v ...interface{}) { l.write(DEBUG, v...) }

// Info implements Logger interface.
func (l *WriterLogger) Info(v ...interface{}) { l.write(INFO, v...) }

// Notice implements Logger interface.
func (l *WriterLogger) Notice(v ...interface{}) { l.write(NOTICE, v...) }

// Warning implements Logger interface.
func (l *WriterLogger) Warning(v ...interface{}) { l.write(WARNING, v...) }

// Error implements Logger interface.
func (l *WriterLogger) Error(v ...interface{}) { l.write(ERROR, v...) }
