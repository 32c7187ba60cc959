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

// Package merkle implements the OSNMA public key Merkle tree.
//
// The tree has 16 leaves. A leaf is the message NPKT || NPKID || NPK of one public key, and the leaf node value is
// its SHA-256 hash. An internal node is the SHA-256 hash of the concatenated child nodes, without the domain
// separation prefixes of RFC 6962. The inclusion proof of a DSM-PKR (the ITN field) lists the sibling nodes from the
// leaf level up to the level below the root.
package merkle

import (
	"fmt"

	tdmerkle "github.com/transparency-dev/merkle"
	"github.com/transparency-dev/merkle/proof"

	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/hash"
)

const (
	// Leaves is the number of leaves of the OSNMA Merkle tree.
	Leaves = 16
	// Depth is the number of levels below the root.
	Depth = 4
)

// Hasher is the OSNMA Merkle tree hasher. It implements the transparency-dev merkle.LogHasher interface.
type Hasher struct {
	alg hash.Algorithm
}

var _ tdmerkle.LogHasher = (*Hasher)(nil)

// NewHasher returns the SHA-256 tree hasher.
func NewHasher() *Hasher {
	return &Hasher{alg: hash.SHA2_256}
}

func (h *Hasher) sum(data ...[]byte) []byte {
	out, err := h.alg.Sum(data...)
	if err != nil {
		// The algorithm is registered at init.
		panic(err)
	}
	return out
}

// EmptyRoot returns the hash of an empty input.
func (h *Hasher) EmptyRoot() []byte {
	return h.sum()
}

// HashLeaf returns the leaf node value for the leaf message.
func (h *Hasher) HashLeaf(leaf []byte) []byte {
	return h.sum(leaf)
}

// HashChildren returns the internal node value for the two child nodes.
func (h *Hasher) HashChildren(l, r []byte) []byte {
	return h.sum(l, r)
}

// Size returns the node size in bytes.
func (h *Hasher) Size() int {
	return h.alg.Size()
}

// VerifyPath checks that the leaf message at the given index is included in the tree with the given root.
// Any mismatch is reported as OsnmaInvalidSignature.
func VerifyPath(leaf []byte, index uint8, path [][]byte, root []byte) error {
	if index >= Leaves {
		return errors.New(errors.OsnmaInvalidSignature).AppendMessage(fmt.Sprintf("Invalid leaf index: %d.", index))
	}
	if len(path) != Depth {
		return errors.New(errors.OsnmaInvalidSignature).
			AppendMessage(fmt.Sprintf("Authentication path must have %d nodes, got %d.", Depth, len(path)))
	}
	h := NewHasher()
	if err := proof.VerifyInclusion(h, uint64(index), Leaves, h.HashLeaf(leaf), path, root); err != nil {
		return errors.New(errors.OsnmaInvalidSignature).SetExtError(err).
			AppendMessage(fmt.Sprintf("Leaf %d is not included in the Merkle tree.", index))
	}
	return nil
}
