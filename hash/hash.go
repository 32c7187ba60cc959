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

// Package hash implements the OSNMA hash function identifiers (see Algorithm) and hash computation functions.
//
// The identifiers are the values of the HF field of the DSM-KROOT message. The same function is used by the TESLA
// one-way function and for the DSM padding computation.
//
// In order to use a hash function for cryptographic computation, the function must be registered. SHA-256 and
// SHA3-256 are registered by default (see RegisterHash()).
package hash

import (
	"crypto"
	"fmt"
	"hash"
	"strings"

	// Indirectly import packages from std library.
	_ "crypto/sha256"

	"golang.org/x/crypto/sha3"

	"github.com/guardtime/goosnma/errors"
)

// Algorithm is the hash functions identifier.
type Algorithm int

const (
	// SHA2_256 is SHA-256 algorithm (HF = 0).
	SHA2_256 Algorithm = 0x00
	// SHA3_256 is SHA3-256 algorithm (HF = 2).
	SHA3_256 Algorithm = 0x02

	// SHA_NA defines an invalid algorithm.
	SHA_NA Algorithm = 0x100
)

// Default is the hash function used by the operational OSNMA chains.
const Default = SHA2_256

type hashFuncInfo struct {
	// Algorithm ID as defined in the crypto package.
	cryptoId crypto.Hash
	// User registered hasher constructor.
	newHash func() hash.Hash
	// Digest bit count.
	size int
	// Algorithm function underlying block size.
	blockSize int
	// Accepted names for this hash algorithm.
	names []string
}

var hashInfoMap = map[Algorithm]hashFuncInfo{
	SHA2_256: {crypto.SHA256, nil, 256, 512, []string{"SHA-256", "SHA2-256", "SHA256", "DEFAULT"}},
	SHA3_256: {crypto.SHA3_256, nil, 256, 1088, []string{"SHA3-256", "SHA3256"}},
}

func init() {
	if crypto.SHA256.Available() {
		RegisterHash(SHA2_256, crypto.SHA256.New)
	}
	RegisterHash(SHA3_256, sha3.New256)
}

// RegisterHash registers a function that returns a new instance of the given
// hash function. This is intended to be called from the init function in
// packages that implement hash functions.
func RegisterHash(h Algorithm, f func() hash.Hash) {
	if info, ok := hashInfoMap[h]; ok {
		info.newHash = f
		hashInfoMap[h] = info
		return
	}
	panic(fmt.Sprintf("RegisterHash() unknown hash function: %d.", h))
}

// Defined reports whether the given hash function is defined by the library.
func (a Algorithm) Defined() bool {
	_, ok := hashInfoMap[a]
	return ok
}

// Registered checks whether the given hash algorithm is supported,
// meaning the hash value can be calculated using the API.
func (a Algorithm) Registered() bool {
	if info, ok := hashInfoMap[a]; ok {
		return info.newHash != nil
	}
	return false
}

// String returns a string representation of the given hash algorithm.
// Returns empty string in case of unknown algorithm.
func (a Algorithm) String() string {
	if info, ok := hashInfoMap[a]; ok {
		return info.names[0]
	}
	return ""
}

// ByName returns the hash function specified by the case insensitive string parameter name.
//
// Returns hash function, or OsnmaUnknownHashAlgorithm error in case of unrecognized name.
func ByName(name string) (Algorithm, error) {
	for algo, info := range hashInfoMap {
		for _, v := range info.names {
			if strings.EqualFold(v, name) {
				return algo, nil
			}
		}
	}
	return SHA_NA, errors.New(errors.OsnmaUnknownHashAlgorithm).
		AppendMessage(fmt.Sprintf("Unknown hash algorithm: %s.", name))
}

// FromHF returns the hash function for the DSM-KROOT HF field value.
func FromHF(hf uint8) (Algorithm, error) {
	a := Algorithm(hf)
	if !a.Defined() {
		return SHA_NA, errors.New(errors.OsnmaUnknownHashAlgorithm).
			AppendMessage(fmt.Sprintf("Unsupported HF value: %d.", hf))
	}
	return a, nil
}

// HashFunc returns the underling hash function.
func (a Algorithm) HashFunc() (hash.Hash, error) {
	if info, ok := hashInfoMap[a]; ok {
		if info.newHash == nil {
			return nil, errors.New(errors.OsnmaInvalidStateError).
				AppendMessage(fmt.Sprintf("Hash algorithm is not initialized: %s.", a.String()))
		}
		return info.newHash(), nil
	}
	return nil, errors.New(errors.OsnmaUnknownHashAlgorithm).
		AppendMessage(fmt.Sprintf("Hash algorithm is not supported: %d.", a))
}

// Size returns the resulting digest length in bytes.
// In case of an error, a negative value is returned.
func (a Algorithm) Size() int {
	if info, ok := hashInfoMap[a]; ok {
		return info.size >> 3
	}
	return -1
}

// BlockSize returns the size of the data block the underlying hash algorithm operates upon in bytes.
// In case of an error, a negative value is returned.
func (a Algorithm) BlockSize() int {
	if info, ok := hashInfoMap[a]; ok {
		return info.blockSize >> 3
	}
	return -1
}

// ListSupported returns a slice of supported hash functions.
func ListSupported() []Algorithm {
	var tmp []Algorithm
	for algo := range hashInfoMap {
		if algo.Registered() {
			tmp = append(tmp, algo)
		}
	}
	return tmp
}
