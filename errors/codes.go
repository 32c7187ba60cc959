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

package errors

// ErrorCode represent the error code value.
type ErrorCode uint16

const (
	// OsnmaNoError represent a successful result.
	OsnmaNoError = ErrorCode(0)

	/*
		Syntax errors
	*/

	// OsnmaInvalidArgumentError is in case of invalid function input argument (eg. nil pointer).
	OsnmaInvalidArgumentError = ErrorCode(0x100)
	// OsnmaInvalidFormatError the provided value is invalid (eg. out of range).
	OsnmaInvalidFormatError = ErrorCode(0x101)
	// OsnmaInvalidStateError is set in case the objects used are in an invalid state (eg. chain not rooted yet).
	OsnmaInvalidStateError = ErrorCode(0x10a)
	// OsnmaUnknownHashAlgorithm is set in case the hash function ID is invalid or unknown to the API.
	OsnmaUnknownHashAlgorithm = ErrorCode(0x10b)
	// OsnmaUnknownMacFunction is set in case the MAC function ID is invalid or unknown to the API.
	OsnmaUnknownMacFunction = ErrorCode(0x10c)

	/*
		Structural errors. The offending unit is discarded.
	*/

	// OsnmaMalformedPage is set in case a navigation page does not have the nominal length or layout.
	OsnmaMalformedPage = ErrorCode(0x120)
	// OsnmaMalformedMACK is set in case the MACK section layout does not fit into a subframe.
	OsnmaMalformedMACK = ErrorCode(0x121)
	// OsnmaInvalidDSM is set in case a reassembled DSM message has an invalid structure.
	OsnmaInvalidDSM = ErrorCode(0x122)

	/*
		Trust errors. The candidate key is rejected.
	*/

	// OsnmaUntrustedRootKey is set in case the DSM-KROOT digital signature can not be verified.
	OsnmaUntrustedRootKey = ErrorCode(0x140)
	// OsnmaInvalidSignature is set in case a public key renewal does not authenticate against the Merkle tree.
	OsnmaInvalidSignature = ErrorCode(0x141)
	// OsnmaPublicKeyNotFound is set in case the public key referred by PKID is not in the trust store.
	OsnmaPublicKeyNotFound = ErrorCode(0x142)

	/*
		Chain integrity errors.
	*/

	// OsnmaKeyChainBroken is set in case a disclosed TESLA key does not verify against the chain anchor.
	OsnmaKeyChainBroken = ErrorCode(0x160)

	/*
		Timing outcomes.
	*/

	// OsnmaTagExpired is set in case a tag could not be verified within the pending window.
	OsnmaTagExpired = ErrorCode(0x180)

	/*
		System errors
	*/

	// OsnmaIoError is set in case IO error occurred.
	OsnmaIoError = ErrorCode(0x202)
	// OsnmaCryptoFailure is set in case cryptographic operation could not be performed. Likely causes are unsupported
	// cryptographic algorithms, invalid keys and lack of resources.
	OsnmaCryptoFailure = ErrorCode(0x20d)
	// OsnmaExternalError is set in case external error from 3rd party API (eg std library) is returned and wrapped
	// automatically inside OsnmaError.
	OsnmaExternalError = ErrorCode(0x214)

	// OsnmaNotImplemented indicates an invalid API state.
	OsnmaNotImplemented = ErrorCode(0xffff)
)

var errStrings = map[ErrorCode]string{
	OsnmaNoError: "No Error",

	OsnmaInvalidArgumentError: "Invalid Argument",
	OsnmaInvalidFormatError:   "Invalid Format",
	OsnmaInvalidStateError:    "Invalid State",
	OsnmaUnknownHashAlgorithm: "Unknown Hash Algorithm",
	OsnmaUnknownMacFunction:   "Unknown MAC Function",

	OsnmaMalformedPage: "Malformed navigation page",
	OsnmaMalformedMACK: "Malformed MACK section",
	OsnmaInvalidDSM:    "Invalid DSM message",

	OsnmaUntrustedRootKey:  "Untrusted root key",
	OsnmaInvalidSignature:  "Invalid signature",
	OsnmaPublicKeyNotFound: "Public key not found",

	OsnmaKeyChainBroken: "TESLA key chain broken",

	OsnmaTagExpired: "Tag expired",

	OsnmaIoError:       "IO Error",
	OsnmaCryptoFailure: "Cryptographic failure",
	OsnmaExternalError: "Common external error from 3rd party API",

	OsnmaNotImplemented: "Not Implemented",
}

func (c ErrorCode) String() string {
	return errStrings[c]
}

// Class groups the error codes by the way the engine reacts on them.
type Class byte

const (
	// ClassGeneric is any error that is not part of the authentication taxonomy.
	ClassGeneric Class = iota
	// ClassStructural errors discard the offending unit (page, MACK, DSM) and processing continues.
	ClassStructural
	// ClassTrust errors reject the candidate root or public key.
	ClassTrust
	// ClassChain errors leave the chain anchor unchanged.
	ClassChain
	// ClassTiming is a bounded-wait outcome rather than a cryptographic failure.
	ClassTiming
)

// String implements fmt.(Stringer) interface.
func (c Class) String() string {
	switch c {
	case ClassStructural:
		return "structural"
	case ClassTrust:
		return "trust"
	case ClassChain:
		return "chain"
	case ClassTiming:
		return "timing"
	}
	return "generic"
}

// Class returns the taxonomy class of the error code.
func (c ErrorCode) Class() Class {
	switch c {
	case OsnmaMalformedPage, OsnmaMalformedMACK, OsnmaInvalidDSM:
		return ClassStructural
	case OsnmaUntrustedRootKey, OsnmaInvalidSignature, OsnmaPublicKeyNotFound:
		return ClassTrust
	case OsnmaKeyChainBroken:
		return ClassChain
	case OsnmaTagExpired:
		return ClassTiming
	}
	return ClassGeneric
}
