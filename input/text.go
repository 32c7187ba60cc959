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

package input

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/page"
)

// TextSource reads pages from a line oriented text stream. Every line holds one page:
//
//	WN TOW SVID BAND CRC PAYLOAD
//
// where BAND is "E1-B" or "E5b-I", CRC is 1 or 0 and PAYLOAD is the 240-bit page in hex. Empty lines and lines
// starting with '#' are skipped. A line that can not be parsed fails with OsnmaMalformedPage and reading can
// continue with the next line.
type TextSource struct {
	scanner *bufio.Scanner
	line    int
	// Recompute the CRC from the payload instead of trusting the CRC column.
	checkCRC bool
}

type (
	// TextSourceOpt is the configuration option for the TextSource.
	TextSourceOpt func(*textSource) error
	textSource    struct {
		obj TextSource
	}
)

// TextSourceOptCheckCRC makes the source verify the CRC-24Q of every page.
func TextSourceOptCheckCRC(enable bool) TextSourceOpt {
	return func(s *textSource) error {
		if s == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing text source.")
		}
		s.obj.checkCRC = enable
		return nil
	}
}

// NewTextSource returns a source reading from r.
func NewTextSource(r io.Reader, options ...TextSourceOpt) (*TextSource, error) {
	if r == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing reader.")
	}
	tmp := textSource{obj: TextSource{scanner: bufio.NewScanner(r)}}
	for _, setter := range options {
		if setter == nil {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Provided option is nil.")
		}
		if err := setter(&tmp); err != nil {
			return nil, errors.OsnmaErr(err).AppendMessage("Unable to apply text source option.")
		}
	}
	return &tmp.obj, nil
}

// Next implements Source interface.
func (s *TextSource) Next() (*page.Page, error) {
	if s == nil {
		return nil, io.EOF
	}
	for s.scanner.Scan() {
		s.line++
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p, err := s.parse(line)
		if err != nil {
			return nil, errors.OsnmaErr(err, errors.OsnmaMalformedPage).AppendMessage(fmt.Sprintf("Line %d.", s.line))
		}
		return p, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, errors.New(errors.OsnmaIoError).SetExtError(err)
	}
	return nil, io.EOF
}

func (s *TextSource) parse(line string) (*page.Page, error) {
	f := strings.Fields(line)
	if len(f) != 6 {
		return nil, errors.New(errors.OsnmaMalformedPage).AppendMessage(fmt.Sprintf("Expected 6 columns, got %d.", len(f)))
	}
	wn, err := strconv.ParseUint(f[0], 10, 12)
	if err != nil {
		return nil, errors.New(errors.OsnmaMalformedPage).SetExtError(err)
	}
	tow, err := strconv.ParseUint(f[1], 10, 32)
	if err != nil || tow >= gst.SecondsPerWeek {
		return nil, errors.New(errors.OsnmaMalformedPage).AppendMessage(fmt.Sprintf("Invalid TOW: %s.", f[1]))
	}
	svid, err := strconv.ParseUint(f[2], 10, 8)
	if err != nil {
		return nil, errors.New(errors.OsnmaMalformedPage).SetExtError(err)
	}
	band, err := page.ParseBand(f[3])
	if err != nil {
		return nil, errors.New(errors.OsnmaMalformedPage).SetExtError(err)
	}
	crc, err := strconv.ParseBool(f[4])
	if err != nil {
		return nil, errors.New(errors.OsnmaMalformedPage).SetExtError(err)
	}
	payload, err := hex.DecodeString(f[5])
	if err != nil {
		return nil, errors.New(errors.OsnmaMalformedPage).SetExtError(err)
	}
	if s.checkCRC && len(payload) == page.Bytes {
		crc = crc && page.CheckCRC(payload)
	}
	return page.New(uint8(svid), gst.New(uint16(wn), uint32(tow)), band, payload, crc)
}

// Format returns the text line of the page, as read by TextSource.
func Format(p *page.Page) string {
	if p == nil {
		return ""
	}
	crc := 0
	if p.CRCValid {
		crc = 1
	}
	return fmt.Sprintf("%d %d %d %s %d %s", p.GST.WN, p.GST.TOW, p.SVID, p.Band, crc, hex.EncodeToString(p.Bits[:]))
}

// Write writes the pages in the TextSource format.
func Write(w io.Writer, pages ...*page.Page) error {
	bw := bufio.NewWriter(w)
	for _, p := range pages {
		if _, err := fmt.Fprintln(bw, Format(p)); err != nil {
			return errors.New(errors.OsnmaIoError).SetExtError(err)
		}
	}
	if err := bw.Flush(); err != nil {
		return errors.New(errors.OsnmaIoError).SetExtError(err)
	}
	return nil
}
