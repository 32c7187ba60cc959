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

package merkle

import (
	"fmt"

	"github.com/guardtime/goosnma/errors"
)

// Tree is a complete OSNMA Merkle tree.
type Tree struct {
	hasher *Hasher
	// levels[0] holds the leaf nodes, levels[Depth] the root.
	levels [Depth + 1][][]byte
}

// Build computes the tree over exactly 16 leaf messages.
func Build(leaves [][]byte) (*Tree, error) {
	if len(leaves) != Leaves {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).
			AppendMessage(fmt.Sprintf("Merkle tree needs %d leaves, got %d.", Leaves, len(leaves)))
	}
	t := &Tree{hasher: NewHasher()}
	for _, l := range leaves {
		t.levels[0] = append(t.levels[0], t.hasher.HashLeaf(l))
	}
	for lvl := 1; lvl <= Depth; lvl++ {
		prev := t.levels[lvl-1]
		for i := 0; i < len(prev); i += 2 {
			t.levels[lvl] = append(t.levels[lvl], t.hasher.HashChildren(prev[i], prev[i+1]))
		}
	}
	return t, nil
}

// Root returns the root node value.
func (t *Tree) Root() []byte {
	if t == nil {
		return nil
	}
	return append([]byte(nil), t.levels[Depth][0]...)
}

// Node returns the node value at level j and position i, with level 0 being the leaf nodes.
func (t *Tree) Node(j, i int) ([]byte, error) {
	if t == nil || j < 0 || j > Depth || i < 0 || i >= len(t.levels[j]) {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage(fmt.Sprintf("No node at %d/%d.", j, i))
	}
	return append([]byte(nil), t.levels[j][i]...), nil
}

// Path returns the authentication path of the leaf, from the leaf level upwards.
func (t *Tree) Path(index uint8) ([][]byte, error) {
	if t == nil || index >= Leaves {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage(fmt.Sprintf("Invalid leaf index: %d.", index))
	}
	path := make([][]byte, 0, Depth)
	pos := int(index)
	for lvl := 0; lvl < Depth; lvl++ {
		path = append(path, append([]byte(nil), t.levels[lvl][pos^1]...))
		pos /= 2
	}
	return path, nil
}
