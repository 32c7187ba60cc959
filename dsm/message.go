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

// Package dsm implements the reassembly and decoding of OSNMA Digital Signature Messages.
//
// A DSM is transmitted in 104-bit blocks in the HKROOT section of the navigation pages, one block per subframe and
// satellite. DSM IDs 0..11 carry the TESLA root key (DSM-KROOT), IDs 12..15 carry public key renewals (DSM-PKR).
// Blocks are collected by the Reassembler in any order; once the declared number of blocks is present (or can be
// recovered with the Reed-Solomon parity blocks) the message is decoded into its typed variant.
package dsm

import (
	"fmt"

	"github.com/guardtime/goosnma/errors"
)

// Message is a completed DSM. Exactly one of KRoot and PKR is set, as selected by Kind.
type Message struct {
	ID     uint8
	Kind   Kind
	Header NMAHeader
	Raw    []byte

	KRoot *KRoot
	PKR   *PKR
}

// Decode decodes the reassembled message bytes of the given DSM ID.
func Decode(id uint8, h NMAHeader, raw []byte) (*Message, error) {
	if id > MaxID {
		return nil, errors.New(errors.OsnmaInvalidDSM).AppendMessage(fmt.Sprintf("Invalid DSM ID: %d.", id))
	}
	if len(raw) == 0 || len(raw)%BlockBytes != 0 {
		return nil, errors.New(errors.OsnmaInvalidDSM).
			AppendMessage(fmt.Sprintf("DSM length must be a multiple of %d bytes.", BlockBytes))
	}
	count, err := BlockCount(id, raw[0]>>4)
	if err != nil {
		return nil, err
	}
	if count*BlockBytes != len(raw) {
		return nil, errors.New(errors.OsnmaInvalidDSM).
			AppendMessage(fmt.Sprintf("DSM declares %d blocks, got %d.", count, len(raw)/BlockBytes))
	}

	msg := &Message{
		ID:     id,
		Kind:   KindOf(id),
		Header: h,
		Raw:    append([]byte(nil), raw...),
	}
	switch msg.Kind {
	case KindKRoot:
		if msg.KRoot, err = parseKRoot(h, raw); err != nil {
			return nil, err
		}
	case KindPKR:
		if msg.PKR, err = parsePKR(h, raw); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

// String implements fmt.(Stringer) interface.
func (m *Message) String() string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%s id=%d blocks=%d", m.Kind, m.ID, len(m.Raw)/BlockBytes)
}
