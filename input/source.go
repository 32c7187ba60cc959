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

// Package input provides the page sources feeding an OSNMA session.
//
// A Source is a pull based sequence of pages. It reports the end of the sequence with io.EOF; any other error is a
// failure of the source. Sources are not restartable.
package input

import (
	"io"
	"sync"

	"github.com/guardtime/goosnma/page"
)

// Source returns the received pages in arrival order.
type Source interface {
	// Next returns the next page, or io.EOF at the end of the sequence.
	Next() (*page.Page, error)
}

// SliceSource returns the pages of a slice.
type SliceSource struct {
	mu    sync.Mutex
	pages []*page.Page
	pos   int
}

// NewSliceSource returns a source over the given pages.
func NewSliceSource(pages ...*page.Page) *SliceSource {
	return &SliceSource{pages: pages}
}

// Next implements Source interface.
func (s *SliceSource) Next() (*page.Page, error) {
	if s == nil {
		return nil, io.EOF
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.pages) {
		return nil, io.EOF
	}
	p := s.pages[s.pos]
	s.pos++
	return p, nil
}

// ChanSource returns the pages sent over a channel, until the channel is closed.
type ChanSource <-chan *page.Page

// Next implements Source interface.
func (c ChanSource) Next() (*page.Page, error) {
	p, ok := <-c
	if !ok {
		return nil, io.EOF
	}
	return p, nil
}
