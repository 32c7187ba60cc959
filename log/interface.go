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

// Logger is the logger interface. The arguments are handled in the manner of fmt.Sprint.
//
// The engine calls the logger synchronously from the goroutine processing the page, so an implementation must not
// call back into the engine.
type Logger interface {
	// Debug logs details of single pages, blocks, keys and tags.
	Debug(v ...interface{})
	// Info logs the session progress.
	Info(v ...interface{})
	// Notice logs state changes that do not stop the authentication.
	Notice(v ...interface{})
	// Warning logs conditions that degrade the authentication.
	Warning(v ...interface{})
	// Error logs unrecoverable failures.
	Error(v ...interface{})
}
