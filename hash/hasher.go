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

package hash

import (
	"crypto/subtle"
	"fmt"
	"hash"

	"github.com/guardtime/goosnma/errors"
)

// DataHasher is the data hash computation object.
type DataHasher struct {
	algo Algorithm
	hsr  hash.Hash
}

// New returns new hasher for the given hash algo.
// Returns error if the hash function is not linked into the binary.
func (a Algorithm) New() (*DataHasher, error) {
	hFunc, err := a.HashFunc()
	if err != nil {
		return nil, err
	}
	if hFunc == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).
			AppendMessage(fmt.Sprintf("%s hash function is not registered.", a.String()))
	}

	return &DataHasher{
		algo: a,
		hsr:  hFunc,
	}, nil
}

// Sum returns the digest of the concatenation of the provided byte slices.
func (a Algorithm) Sum(data ...[]byte) ([]byte, error) {
	h, err := a.New()
	if err != nil {
		return nil, err
	}
	for _, d := range data {
		if _, err := h.Write(d); err != nil {
			return nil, err
		}
	}
	return h.Sum(), nil
}

// Write (via the embedded io.Writer interface) adds more data to the running hash.
// In case of OsnmaInvalidArgumentError error (e.g. h is nil), function returns non
// standard -1 as count of bytes written.
func (h *DataHasher) Write(p []byte) (int, error) {
	if h == nil || h.hsr == nil {
		return -1, errors.New(errors.OsnmaInvalidArgumentError)
	}
	n, err := h.hsr.Write(p)
	if err != nil {
		return n, errors.New(errors.OsnmaCryptoFailure).SetExtError(err)
	}
	return n, nil
}

// Sum returns the digest of the current computation. It does not change the underlying hash state.
// Returns nil in case the hasher is not initialized.
func (h *DataHasher) Sum() []byte {
	if h == nil || h.hsr == nil {
		return nil
	}
	return h.hsr.Sum(nil)
}

// Reset resets the hasher to its initial state.
func (h *DataHasher) Reset() {
	if h == nil || h.hsr == nil {
		return
	}
	h.hsr.Reset()
}

// Size returns the resulting digest length in bytes for the given hash function.
// In case of an error, a negative value is returned.
func (h *DataHasher) Size() int {
	if h == nil || h.hsr == nil {
		return -1
	}
	return h.algo.Size()
}

// Equal returns true if, and only if, the two values are equal. The time taken is a function of the length of
// the slices and is independent of the contents.
func Equal(l, r []byte) bool {
	return subtle.ConstantTimeCompare(l, r) == 1
}
