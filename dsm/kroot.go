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
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"math/big"

	"github.com/guardtime/goosnma/bits"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/gst"
	"github.com/guardtime/goosnma/hash"
	"github.com/guardtime/goosnma/mac"
)

const (
	krootFixedBits = 104
	alphaBytes     = 6
)

var (
	keySizes = map[uint8]int{0: 96, 1: 104, 2: 112, 3: 120, 4: 128, 5: 160, 6: 192, 7: 224, 8: 256}
	tagSizes = map[uint8]int{5: 20, 6: 24, 7: 28, 8: 32, 9: 40}
)

// KeySize returns the TESLA key length in bits for the KS field value.
func KeySize(ks uint8) (int, error) {
	if n, ok := keySizes[ks]; ok {
		return n, nil
	}
	return 0, errors.New(errors.OsnmaInvalidDSM).AppendMessage(fmt.Sprintf("Reserved KS value: %d.", ks))
}

// TagSize returns the tag length in bits for the TS field value.
func TagSize(ts uint8) (int, error) {
	if n, ok := tagSizes[ts]; ok {
		return n, nil
	}
	return 0, errors.New(errors.OsnmaInvalidDSM).AppendMessage(fmt.Sprintf("Reserved TS value: %d.", ts))
}

func codeOf(table map[uint8]int, n int) (uint8, bool) {
	for c, v := range table {
		if v == n {
			return c, true
		}
	}
	return 0, false
}

// KRoot is the decoded TESLA root key distribution message.
type KRoot struct {
	Header NMAHeader

	NB      uint8
	PKID    uint8
	CIDKR   uint8
	HF      hash.Algorithm
	MF      mac.Function
	KeyBits int
	TagBits int
	MACLT   uint8
	WN      uint16
	TOWH    uint8
	Alpha   []byte
	Key     []byte

	// Trailer holds the digital signature followed by the padding. The signature length depends on the type of the
	// public key referenced by PKID, so the split is only known at verification time.
	Trailer []byte
}

func parseKRoot(h NMAHeader, raw []byte) (*KRoot, error) {
	if len(raw) < krootFixedBits/8 {
		return nil, errors.New(errors.OsnmaInvalidDSM).AppendMessage("DSM-KROOT is too short.")
	}

	k := &KRoot{
		Header: h,
		NB:     uint8(bits.Uint(raw, 0, 4)),
		PKID:   uint8(bits.Uint(raw, 4, 4)),
		CIDKR:  uint8(bits.Uint(raw, 8, 2)),
		MACLT:  uint8(bits.Uint(raw, 24, 8)),
		WN:     uint16(bits.Uint(raw, 36, 12)),
		TOWH:   uint8(bits.Uint(raw, 48, 8)),
	}

	var err error
	if k.HF, err = hash.FromHF(uint8(bits.Uint(raw, 12, 2))); err != nil {
		return nil, errors.New(errors.OsnmaInvalidDSM).SetExtError(err).AppendMessage("Invalid DSM-KROOT HF.")
	}
	if k.MF, err = mac.FromMF(uint8(bits.Uint(raw, 14, 2))); err != nil {
		return nil, errors.New(errors.OsnmaInvalidDSM).SetExtError(err).AppendMessage("Invalid DSM-KROOT MF.")
	}
	if k.KeyBits, err = KeySize(uint8(bits.Uint(raw, 16, 4))); err != nil {
		return nil, err
	}
	if !k.MF.KeySupported(k.KeyBits) {
		return nil, errors.New(errors.OsnmaInvalidDSM).
			AppendMessage(fmt.Sprintf("DSM-KROOT %s can not use %d bit keys.", k.MF, k.KeyBits))
	}
	if k.TagBits, err = TagSize(uint8(bits.Uint(raw, 20, 4))); err != nil {
		return nil, err
	}
	if k.TOWH >= 168 {
		return nil, errors.New(errors.OsnmaInvalidDSM).AppendMessage(fmt.Sprintf("Invalid TOWH_K: %d.", k.TOWH))
	}

	keyEnd := krootFixedBits/8 + k.KeyBits/8
	if len(raw) < keyEnd {
		return nil, errors.New(errors.OsnmaInvalidDSM).
			AppendMessage(fmt.Sprintf("DSM-KROOT of %d bits can not hold a %d bit key.", len(raw)*8, k.KeyBits))
	}
	k.Alpha = append([]byte(nil), raw[7:7+alphaBytes]...)
	k.Key = append([]byte(nil), raw[krootFixedBits/8:keyEnd]...)
	k.Trailer = append([]byte(nil), raw[keyEnd:]...)
	return k, nil
}

// Epoch returns the GST the chain is anchored at (WN_K, TOWH_K).
func (k *KRoot) Epoch() gst.GST {
	if k == nil {
		return gst.GST{}
	}
	return gst.GST{WN: k.WN, TOW: uint32(k.TOWH) * 3600}
}

// ChainID returns the chain identifier of the root key.
func (k *KRoot) ChainID() uint8 {
	if k == nil {
		return 0
	}
	return k.CIDKR
}

// MarshalFields returns the encoded message fields up to and including the root key, without the signature and
// the padding.
func (k *KRoot) MarshalFields() ([]byte, error) {
	if k == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing DSM-KROOT.")
	}
	ks, ok := codeOf(keySizes, k.KeyBits)
	if !ok || len(k.Key)*8 != k.KeyBits {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid key size.")
	}
	ts, ok := codeOf(tagSizes, k.TagBits)
	if !ok {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid tag size.")
	}
	if len(k.Alpha) != alphaBytes {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Invalid alpha length.")
	}

	w := bits.NewWriter(uint(krootFixedBits + k.KeyBits))
	w.WriteUint(uint64(k.NB), 4)
	w.WriteUint(uint64(k.PKID), 4)
	w.WriteUint(uint64(k.CIDKR), 2)
	w.WriteUint(0, 2)
	w.WriteUint(uint64(k.HF), 2)
	w.WriteUint(uint64(k.MF), 2)
	w.WriteUint(uint64(ks), 4)
	w.WriteUint(uint64(ts), 4)
	w.WriteUint(uint64(k.MACLT), 8)
	w.WriteUint(0, 4)
	w.WriteUint(uint64(k.WN), 12)
	w.WriteUint(uint64(k.TOWH), 8)
	w.WriteBits(k.Alpha, alphaBytes*8)
	w.WriteBits(k.Key, uint(k.KeyBits))
	return w.Bytes(), nil
}

// SignedMessage returns the message covered by the digital signature: the NMA header followed by the fields from
// CIDKR up to and including the root key.
func (k *KRoot) SignedMessage() ([]byte, error) {
	fields, err := k.MarshalFields()
	if err != nil {
		return nil, err
	}
	return append([]byte{k.Header.Byte()}, fields[1:]...), nil
}

// SignatureParams returns the hash function and the raw signature length (r || s) in bytes for the public key.
func SignatureParams(pub *ecdsa.PublicKey) (crypto.Hash, int, error) {
	if pub == nil || pub.Curve == nil {
		return 0, 0, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing public key.")
	}
	switch pub.Curve {
	case elliptic.P256():
		return crypto.SHA256, 64, nil
	case elliptic.P521():
		return crypto.SHA512, 132, nil
	}
	return 0, 0, errors.New(errors.OsnmaInvalidArgumentError).
		AppendMessage(fmt.Sprintf("Unsupported curve: %s.", pub.Curve.Params().Name))
}

// Padding computes the DSM-KROOT padding of n bytes: the truncated hash of the signed message and the signature.
func Padding(h crypto.Hash, msg, sig []byte, n int) ([]byte, error) {
	if n > h.Size() {
		return nil, errors.New(errors.OsnmaInvalidDSM).
			AppendMessage(fmt.Sprintf("Padding of %d bytes exceeds the hash length.", n))
	}
	hsr := h.New()
	hsr.Write(msg)
	hsr.Write(sig)
	return hsr.Sum(nil)[:n], nil
}

// Verify checks the digital signature and the padding of the message with the given public key.
// Any failure is reported as OsnmaUntrustedRootKey.
func (k *KRoot) Verify(pub *ecdsa.PublicKey) error {
	if k == nil {
		return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing DSM-KROOT.")
	}
	h, sigLen, err := SignatureParams(pub)
	if err != nil {
		return errors.New(errors.OsnmaUntrustedRootKey).SetExtError(err)
	}
	if len(k.Trailer) < sigLen {
		return errors.New(errors.OsnmaUntrustedRootKey).
			AppendMessage(fmt.Sprintf("DSM-KROOT is too short for a %d byte signature.", sigLen))
	}
	msg, err := k.SignedMessage()
	if err != nil {
		return errors.New(errors.OsnmaUntrustedRootKey).SetExtError(err)
	}

	sig := k.Trailer[:sigLen]
	hsr := h.New()
	hsr.Write(msg)
	r := new(big.Int).SetBytes(sig[:sigLen/2])
	s := new(big.Int).SetBytes(sig[sigLen/2:])
	if !ecdsa.Verify(pub, hsr.Sum(nil), r, s) {
		return errors.New(errors.OsnmaUntrustedRootKey).
			AppendMessage(fmt.Sprintf("DSM-KROOT signature does not verify with public key %d.", k.PKID))
	}

	if pad := k.Trailer[sigLen:]; len(pad) > 0 {
		expected, err := Padding(h, msg, sig, len(pad))
		if err != nil {
			return errors.New(errors.OsnmaUntrustedRootKey).SetExtError(err)
		}
		if !hash.Equal(expected, pad) {
			return errors.New(errors.OsnmaUntrustedRootKey).AppendMessage("DSM-KROOT padding mismatch.")
		}
	}
	return nil
}

// Sign encodes the message, signs it with the private key and appends the padding, so that the result fills the
// number of blocks declared by NB. The trailer of the receiver is updated.
func (k *KRoot) Sign(priv *ecdsa.PrivateKey) ([]byte, error) {
	if k == nil || priv == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing DSM-KROOT or private key.")
	}
	count, err := BlockCount(0, k.NB)
	if err != nil {
		return nil, err
	}
	h, sigLen, err := SignatureParams(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	fields, err := k.MarshalFields()
	if err != nil {
		return nil, err
	}
	padLen := count*BlockBytes - len(fields) - sigLen
	if padLen < 0 {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).
			AppendMessage(fmt.Sprintf("%d blocks can not hold the signed DSM-KROOT.", count))
	}

	msg := append([]byte{k.Header.Byte()}, fields[1:]...)
	hsr := h.New()
	hsr.Write(msg)
	r, s, err := ecdsa.Sign(rand.Reader, priv, hsr.Sum(nil))
	if err != nil {
		return nil, errors.New(errors.OsnmaCryptoFailure).SetExtError(err)
	}
	sig := make([]byte, sigLen)
	r.FillBytes(sig[:sigLen/2])
	s.FillBytes(sig[sigLen/2:])

	pad, err := Padding(h, msg, sig, padLen)
	if err != nil {
		return nil, err
	}
	k.Trailer = append(sig, pad...)
	return append(fields, k.Trailer...), nil
}
