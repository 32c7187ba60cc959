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
	"fmt"

	"github.com/guardtime/goosnma/errors"
)

const (
	// BlockBytes is the size of one DSM block: 104 bits.
	BlockBytes = 13
	// MaxBlocks is the number of addressable block IDs.
	MaxBlocks = 16

	// MaxKRootID is the highest DSM ID used for DSM-KROOT messages.
	MaxKRootID = 11
	// MaxID is the highest DSM ID.
	MaxID = 15
)

// Kind discriminates the DSM message variants.
type Kind byte

const (
	// KindKRoot is the TESLA root key distribution message (DSM-KROOT).
	KindKRoot Kind = iota
	// KindPKR is the public key renewal message (DSM-PKR).
	KindPKR
)

// String implements fmt.(Stringer) interface.
func (k Kind) String() string {
	switch k {
	case KindKRoot:
		return "DSM-KROOT"
	case KindPKR:
		return "DSM-PKR"
	}
	return fmt.Sprintf("kind(%d)", byte(k))
}

// KindOf returns the message kind for the DSM ID.
func KindOf(id uint8) Kind {
	if id <= MaxKRootID {
		return KindKRoot
	}
	return KindPKR
}

// Block is one 104-bit fragment of a DSM message, together with the NMA header of the subframe it was received in.
type Block struct {
	ID   uint8
	BID  uint8
	NMAH NMAHeader
	Data [BlockBytes]byte
}

// BlockCount decodes the number of blocks the message with the given ID consists of from the first 4 bits of
// block 0 (NB_DK for DSM-KROOT, NB_DP for DSM-PKR).
func BlockCount(id uint8, nb uint8) (int, error) {
	switch KindOf(id) {
	case KindKRoot:
		if nb >= 1 && nb <= 8 {
			return int(nb) + 6, nil
		}
	case KindPKR:
		if nb >= 7 && nb <= 10 {
			return int(nb) + 6, nil
		}
	}
	return 0, errors.New(errors.OsnmaInvalidDSM).
		AppendMessage(fmt.Sprintf("Reserved block count value %d for DSM ID %d.", nb, id))
}

func (b *Block) validate() error {
	if b == nil {
		return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing DSM block.")
	}
	if b.ID > MaxID || b.BID >= MaxBlocks {
		return errors.New(errors.OsnmaInvalidDSM).
			AppendMessage(fmt.Sprintf("Invalid DSM header: id %d, bid %d.", b.ID, b.BID))
	}
	return nil
}
