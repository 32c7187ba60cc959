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

// Package mac implements the message authentication functions used to compute the OSNMA tags.
//
// The function identifiers (see Function) are the values of the MF field of the DSM-KROOT message:
// HMAC-SHA-256 and CMAC-AES. The key is the TESLA chain key, and the tag is the MAC output truncated to the
// tag size of the chain (see Tag()).
package mac

import (
	"crypto/aes"
	"crypto/hmac"
	"fmt"
	"hash"

	"github.com/aead/cmac"

	"github.com/guardtime/goosnma/bits"
	"github.com/guardtime/goosnma/errors"
	osnmahash "github.com/guardtime/goosnma/hash"
)

// Function is the MAC function identifier.
type Function int

const (
	// HMACSHA256 is HMAC with SHA-256 (MF = 0).
	HMACSHA256 Function = 0x00
	// CMACAES is CMAC with AES (MF = 1). The AES variant follows the chain key size.
	CMACAES Function = 0x01

	// MF_NA defines an invalid function.
	MF_NA Function = 0x100
)

// FromMF returns the MAC function for the DSM-KROOT MF field value.
func FromMF(mf uint8) (Function, error) {
	switch f := Function(mf); f {
	case HMACSHA256, CMACAES:
		return f, nil
	}
	return MF_NA, errors.New(errors.OsnmaUnknownMacFunction).
		AppendMessage(fmt.Sprintf("Unsupported MF value: %d.", mf))
}

// KeySupported tells whether the function accepts keys of the given length in bits. CMAC-AES needs an AES key.
func (f Function) KeySupported(bits int) bool {
	switch f {
	case HMACSHA256:
		return bits > 0 && bits%8 == 0
	case CMACAES:
		return bits == 128 || bits == 192 || bits == 256
	}
	return false
}

// String implements fmt.(Stringer) interface.
func (f Function) String() string {
	switch f {
	case HMACSHA256:
		return "HMAC-SHA-256"
	case CMACAES:
		return "CMAC-AES"
	}
	return ""
}

// Hasher is the message authentication computation object.
type Hasher struct {
	fn Function
	// Crypto library MAC hasher.
	hsr hash.Hash
}

// New returns a new MAC hasher using the given function and key.
func New(fn Function, key []byte) (h *Hasher, e error) {
	if len(key) == 0 {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing MAC key.")
	}

	// Recover method for unforeseen panics.
	defer func() {
		if r := recover(); r != nil {
			if osnmaError, ok := r.(*errors.OsnmaError); ok {
				e = osnmaError
				return
			}
			// Unknown crypto error returned.
			e = errors.New(errors.OsnmaCryptoFailure).
				AppendMessage(fmt.Sprintf("Paniced while MAC initialization: %s", r))
		}
	}()

	switch fn {
	case HMACSHA256:
		return &Hasher{
			fn: fn,
			hsr: hmac.New(
				func() hash.Hash {
					hFunc, err := osnmahash.SHA2_256.HashFunc()
					if err != nil {
						panic(err)
					}
					return hFunc
				},
				key,
			),
		}, nil
	case CMACAES:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, errors.New(errors.OsnmaCryptoFailure).SetExtError(err).
				AppendMessage(fmt.Sprintf("CMAC-AES does not support %d bit keys.", len(key)*8))
		}
		hsr, err := cmac.New(block)
		if err != nil {
			return nil, errors.New(errors.OsnmaCryptoFailure).SetExtError(err)
		}
		return &Hasher{fn: fn, hsr: hsr}, nil
	}
	return nil, errors.New(errors.OsnmaUnknownMacFunction).
		AppendMessage(fmt.Sprintf("MAC function is not supported: %d.", fn))
}

// Write (via the embedded io.Writer interface) adds more data to the running MAC.
// In case of OsnmaInvalidArgumentError error (e.g. h is nil) function returns non
// standard -1 as count of bytes written.
func (h *Hasher) Write(p []byte) (int, error) {
	if h == nil || h.hsr == nil {
		return -1, errors.New(errors.OsnmaInvalidArgumentError)
	}

	n, e := h.hsr.Write(p)
	if e != nil {
		return n, errors.New(errors.OsnmaCryptoFailure).SetExtError(e)
	}
	return n, nil
}

// Sum returns the MAC of the current computation. It does not change the underlying state.
func (h *Hasher) Sum() ([]byte, error) {
	if h == nil || h.hsr == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError)
	}
	return h.hsr.Sum(nil), nil
}

// Size return the resulting MAC length in bytes.
func (h *Hasher) Size() int {
	if h == nil || h.hsr == nil {
		return 0
	}
	return h.hsr.Size()
}

// Reset resets the hasher to its initial state.
func (h *Hasher) Reset() {
	if h == nil || h.hsr == nil {
		return
	}
	h.hsr.Reset()
}

// Tag computes the MAC of msg with key and truncates it to the given number of bits.
// The returned value is left aligned, with the unused trailing bits set to zero.
func Tag(fn Function, key, msg []byte, tagBits int) ([]byte, error) {
	h, err := New(fn, key)
	if err != nil {
		return nil, err
	}
	if tagBits <= 0 || tagBits > h.Size()*8 {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).
			AppendMessage(fmt.Sprintf("Invalid tag size: %d bits.", tagBits))
	}
	if _, err := h.Write(msg); err != nil {
		return nil, err
	}
	sum, err := h.Sum()
	if err != nil {
		return nil, err
	}
	return bits.Truncate(sum, uint(tagBits)), nil
}
