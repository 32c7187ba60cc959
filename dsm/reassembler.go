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

package dsm

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/klauspost/reedsolomon"

	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/log"
)

// Authenticator validates a completed message before it is released by the Reassembler.
type Authenticator interface {
	Authenticate(*Message) error
}

// Reassembler accumulates DSM blocks per DSM ID.
type Reassembler struct {
	mu sync.Mutex

	rs   bool
	auth Authenticator

	buffers   map[uint8]*buffer
	last      map[uint8][]byte
	completed []*Message
}

type buffer struct {
	// Declared block count, 0 until block 0 has been received.
	count  int
	nmah   NMAHeader
	blocks map[uint8][]byte
}

type (
	// ReassemblerOpt is the configuration option for the Reassembler.
	// See ReassemblerOptReedSolomon and ReassemblerOptAuthenticator.
	ReassemblerOpt func(*reassembler) error
	reassembler    struct {
		obj Reassembler
	}
)

// ReassemblerOptReedSolomon enables the recovery of missing blocks from the parity blocks.
func ReassemblerOptReedSolomon(enable bool) ReassemblerOpt {
	return func(r *reassembler) error {
		if r == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing reassembler.")
		}
		r.obj.rs = enable
		return nil
	}
}

// ReassemblerOptAuthenticator sets the authenticator applied to every completed message. Messages failing the
// authentication are discarded.
func ReassemblerOptAuthenticator(a Authenticator) ReassemblerOpt {
	return func(r *reassembler) error {
		if r == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing reassembler.")
		}
		if a == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing authenticator.")
		}
		r.obj.auth = a
		return nil
	}
}

// NewReassembler returns a new DSM reassembler.
func NewReassembler(options ...ReassemblerOpt) (*Reassembler, error) {
	tmp := reassembler{obj: Reassembler{
		buffers: make(map[uint8]*buffer),
		last:    make(map[uint8][]byte),
	}}
	for _, setter := range options {
		if setter == nil {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Provided option is nil.")
		}
		if err := setter(&tmp); err != nil {
			return nil, errors.OsnmaErr(err).AppendMessage("Unable to apply reassembler option.")
		}
	}
	return &tmp.obj, nil
}

// Add stores the block and returns the message once it is complete and authenticated.
// A nil message with a nil error means that more blocks are needed, or that the completed message is identical to
// the last one released for the same DSM ID.
func (r *Reassembler) Add(b Block) (*Message, error) {
	if r == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing reassembler.")
	}
	if err := b.validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	buf := r.buffers[b.ID]
	if b.BID == 0 {
		count, err := BlockCount(b.ID, b.Data[0]>>4)
		if err != nil {
			delete(r.buffers, b.ID)
			return nil, err
		}
		if buf != nil && buf.count != 0 && buf.count != count {
			log.Info(fmt.Sprintf("DSM %d block count changed from %d to %d, restarting.", b.ID, buf.count, count))
			buf = nil
		}
		if buf == nil {
			buf = &buffer{blocks: make(map[uint8][]byte)}
			r.buffers[b.ID] = buf
		}
		buf.count = count
	} else if buf == nil {
		buf = &buffer{blocks: make(map[uint8][]byte)}
		r.buffers[b.ID] = buf
	}
	buf.blocks[b.BID] = append([]byte(nil), b.Data[:]...)
	buf.nmah = b.NMAH

	if buf.count == 0 {
		return r.recoverUnknown(b.ID, buf), nil
	}
	raw := nominal(buf)
	if raw == nil && r.rs && len(buf.blocks) >= buf.count {
		raw = recoverBlocks(buf, buf.count)
	}
	if raw == nil {
		return nil, nil
	}
	delete(r.buffers, b.ID)

	msg, err := Decode(b.ID, buf.nmah, raw)
	if err != nil {
		return nil, err
	}
	if r.repeated(b.ID, raw) {
		return nil, nil
	}
	if r.auth != nil {
		if err := r.auth.Authenticate(msg); err != nil {
			return nil, errors.OsnmaErr(err).AppendMessage(fmt.Sprintf("Discarding %s.", msg))
		}
	}
	return r.release(b.ID, raw, msg), nil
}

func (r *Reassembler) repeated(id uint8, raw []byte) bool {
	prev, ok := r.last[id]
	return ok && bytes.Equal(prev, raw)
}

func (r *Reassembler) release(id uint8, raw []byte, msg *Message) *Message {
	r.last[id] = raw
	r.completed = append(r.completed, msg)
	log.Debug("Completed ", msg)
	return msg
}

// recoverUnknown recovers a message whose block 0, and so its block count, is missing. Every candidate count is
// tried. A candidate recovered from exactly as many blocks as its count is accepted only once its NB field, its
// decoding and its authentication agree; without an authenticator one extra block is required so that the parity
// check tells the right count. Rejected candidates leave the blocks buffered.
func (r *Reassembler) recoverUnknown(id uint8, buf *buffer) *Message {
	if !r.rs {
		return nil
	}
	for _, n := range candidateCounts(id) {
		need := n
		if r.auth == nil {
			need = n + 1
		}
		if len(buf.blocks) < need {
			continue
		}
		raw := recoverBlocks(buf, n)
		if raw == nil {
			continue
		}
		if c, err := BlockCount(id, raw[0]>>4); err != nil || c != n {
			continue
		}
		msg, err := Decode(id, buf.nmah, raw)
		if err != nil {
			continue
		}
		if r.repeated(id, raw) {
			delete(r.buffers, id)
			return nil
		}
		if r.auth != nil {
			if err := r.auth.Authenticate(msg); err != nil {
				log.Debug(fmt.Sprintf("DSM %d recovered with %d blocks not authenticated: %s", id, n, err))
				continue
			}
		}
		delete(r.buffers, id)
		return r.release(id, raw, msg)
	}
	return nil
}

func nominal(buf *buffer) []byte {
	raw := make([]byte, 0, buf.count*BlockBytes)
	for i := 0; i < buf.count; i++ {
		d, ok := buf.blocks[uint8(i)]
		if !ok {
			return nil
		}
		raw = append(raw, d...)
	}
	return raw
}

func candidateCounts(id uint8) []int {
	var out []int
	for nb := uint8(0); nb < 16; nb++ {
		if n, err := BlockCount(id, nb); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func recoverBlocks(buf *buffer, n int) []byte {
	parity := MaxBlocks - n
	if parity <= 0 {
		return nil
	}
	enc, err := reedsolomon.New(n, parity)
	if err != nil {
		return nil
	}
	shards := make([][]byte, MaxBlocks)
	for bid, d := range buf.blocks {
		shards[bid] = append([]byte(nil), d...)
	}
	if err := enc.Reconstruct(shards); err != nil {
		return nil
	}
	if ok, err := enc.Verify(shards); err != nil || !ok {
		return nil
	}
	raw := make([]byte, 0, n*BlockBytes)
	for _, s := range shards[:n] {
		raw = append(raw, s...)
	}
	return raw
}

// Pending returns the block IDs received so far for the DSM ID, in ascending order.
func (r *Reassembler) Pending(id uint8) []uint8 {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	buf, ok := r.buffers[id]
	if !ok {
		return nil
	}
	out := make([]uint8, 0, len(buf.blocks))
	for bid := range buf.blocks {
		out = append(out, bid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Completed returns the messages released so far, in completion order.
func (r *Reassembler) Completed() []*Message {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.completed...)
}

// Reset drops every buffered block and the audit list.
func (r *Reassembler) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buffers = make(map[uint8]*buffer)
	r.last = make(map[uint8][]byte)
	r.completed = nil
}

// Split cuts the encoded message into blocks. With parity enabled the Reed-Solomon parity blocks are appended, up to
// the 16 addressable block IDs.
func Split(id uint8, h NMAHeader, raw []byte, parity bool) ([]Block, error) {
	if id > MaxID || len(raw) == 0 || len(raw)%BlockBytes != 0 {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid DSM to split.")
	}
	n := len(raw) / BlockBytes
	shards := make([][]byte, n, MaxBlocks)
	for i := range shards {
		shards[i] = raw[i*BlockBytes : (i+1)*BlockBytes]
	}
	if parity && n < MaxBlocks {
		enc, err := reedsolomon.New(n, MaxBlocks-n)
		if err != nil {
			return nil, errors.New(errors.OsnmaCryptoFailure).SetExtError(err)
		}
		for i := n; i < MaxBlocks; i++ {
			shards = append(shards, make([]byte, BlockBytes))
		}
		if err := enc.Encode(shards); err != nil {
			return nil, errors.New(errors.OsnmaCryptoFailure).SetExtError(err)
		}
	}

	out := make([]Block, len(shards))
	for i, s := range shards {
		out[i] = Block{ID: id, BID: uint8(i), NMAH: h}
		copy(out[i].Data[:], s)
	}
	return out, nil
}
