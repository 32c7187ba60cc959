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

// Package errors implements the error type of the OSNMA engine.
//
// Every error carries an ErrorCode. The Class of the code tells how the engine reacts: structural errors discard the
// offending page, MACK section or DSM, trust errors reject a candidate key, chain errors leave the anchor in place and
// timing errors are bounded-wait outcomes. Errors caused by the data of one satellite carry its SVID, so that the
// failure can be attributed without parsing the messages.
package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// OsnmaError is the error type returned by the API.
type OsnmaError struct {
	errorCode    ErrorCode
	message      []string
	extError     error
	extErrorCode int
	errorStack   string
	// Transmitting satellite, 0 if the error is not bound to one.
	svid uint8
}

// New construct a new OsnmaError.
func New(code ErrorCode) *OsnmaError {
	return &OsnmaError{
		errorCode:  code,
		errorStack: stack(),
	}
}

// OsnmaErr returns the error as OsnmaError. A foreign error is wrapped with the error code OsnmaExternalError, or with
// the optional code given. An OsnmaError is returned as is, keeping its own code.
func OsnmaErr(err error, code ...ErrorCode) *OsnmaError {
	if err == nil {
		return nil
	}
	if e, ok := err.(*OsnmaError); ok {
		return e
	}
	errCode := OsnmaExternalError
	if len(code) != 0 {
		errCode = code[0]
	}
	return New(errCode).SetExtError(err)
}

// ClassOf returns the class of the error. Foreign errors are ClassGeneric.
func ClassOf(err error) Class {
	if e, ok := err.(*OsnmaError); ok && e != nil {
		return e.errorCode.Class()
	}
	return ClassGeneric
}

// Recoverable tells whether the engine can continue after the error: structural, chain and timing errors are local
// to one page, key or tag.
func Recoverable(err error) bool {
	switch ClassOf(err) {
	case ClassStructural, ClassChain, ClassTiming:
		return true
	}
	return false
}

func stack() string {
	buf := make([]byte, 1024)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, 2*len(buf))
	}
}

// Error implements error interface.
func (e *OsnmaError) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%04x/%d] %s (%s).\n", uint16(e.errorCode), e.extErrorCode, e.errorCode, e.errorCode.Class())
	if e.svid != 0 {
		fmt.Fprintf(&b, "Satellite: E%02d\n", e.svid)
	}
	if len(e.message) > 0 {
		b.WriteString("Error message:")
		for i := len(e.message); i > 0; i-- {
			fmt.Fprintf(&b, "\n  %d: %s", i, e.message[i-1])
		}
		b.WriteString("\n")
	}
	if e.extError != nil {
		fmt.Fprintf(&b, "Extended error: %s\n", e.extError)
	}
	b.WriteString(e.errorStack)
	b.WriteString("\n")
	return b.String()
}

// AppendMessage adds a descriptive message to the error and returns the receiver.
func (e *OsnmaError) AppendMessage(msg string) *OsnmaError {
	if e == nil {
		return nil
	}
	e.message = append(e.message, msg)
	return e
}

// SetExtError sets the underlying error and returns the receiver.
func (e *OsnmaError) SetExtError(err error) *OsnmaError {
	if e == nil {
		return nil
	}
	e.extError = err
	return e
}

// SetExtErrorCode sets the code of the underlying error and returns the receiver.
func (e *OsnmaError) SetExtErrorCode(c int) *OsnmaError {
	if e == nil {
		return nil
	}
	e.extErrorCode = c
	return e
}

// SetSatellite binds the error to the satellite whose data caused it and returns the receiver. The first satellite
// set is kept.
func (e *OsnmaError) SetSatellite(svid uint8) *OsnmaError {
	if e == nil {
		return nil
	}
	if e.svid == 0 {
		e.svid = svid
	}
	return e
}

// Code returns the error code.
func (e *OsnmaError) Code() ErrorCode {
	if e == nil {
		return OsnmaNoError
	}
	return e.errorCode
}

// Class returns the class of the error code.
func (e *OsnmaError) Class() Class {
	return e.Code().Class()
}

// Satellite returns the SVID the error is bound to.
func (e *OsnmaError) Satellite() (uint8, bool) {
	if e == nil || e.svid == 0 {
		return 0, false
	}
	return e.svid, true
}

// Stack returns the stack trace where the error occurred.
func (e *OsnmaError) Stack() string {
	if e == nil {
		return ""
	}
	return e.errorStack
}

// ExtCode returns extended error code.
func (e *OsnmaError) ExtCode() int {
	if e == nil {
		return 0
	}
	return e.extErrorCode
}

// ExtError returns extended error.
func (e *OsnmaError) ExtError() error {
	if e == nil {
		return nil
	}
	return e.extError
}

// Unwrap returns the extended error.
func (e *OsnmaError) Unwrap() error {
	return e.ExtError()
}

// Message returns additional appended messages.
func (e *OsnmaError) Message() []string {
	if e == nil {
		return nil
	}
	return e.message
}

// Is reports whether target is an OsnmaError with the same error code. It makes the error usable with the standard
// library errors.Is().
func (e *OsnmaError) Is(target error) bool {
	t, ok := target.(*OsnmaError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.errorCode == t.errorCode
}
