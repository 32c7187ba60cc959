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

// Package trust holds the trust anchors of an OSNMA session: the public keys used to verify DSM-KROOT signatures and
// the Merkle tree root that authorizes public key renewals.
//
// The Store implements the dsm.Authenticator interface, so that completed DSM messages are only released once they
// trace back to the trust anchors: a DSM-KROOT must be signed with a known public key, a DSM-PKR must be included in
// the Merkle tree. An accepted DSM-PKR adds its public key to the store.
package trust

import (
	"crypto"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/guardtime/goosnma/dsm"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/log"
	"github.com/guardtime/goosnma/merkle"
)

// Store is the trust anchor container.
type Store struct {
	mu sync.RWMutex

	keys  map[uint8]*ecdsa.PublicKey
	root  []byte
	alert bool
}

type (
	// StoreOpt is the configuration option for the Store.
	// See StoreOptPublicKey, StoreOptMerkleRoot, StoreOptPublicKeyFile, StoreOptGSCFile and StoreOptPKCS7File.
	StoreOpt func(*store) error
	store    struct {
		obj Store
	}
)

// NewStore returns a new trust store. Use options to provide the trust anchors.
func NewStore(options ...StoreOpt) (*Store, error) {
	tmp := store{obj: Store{
		keys: make(map[uint8]*ecdsa.PublicKey),
	}}
	for _, setter := range options {
		if setter == nil {
			return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Provided option is nil.")
		}
		if err := setter(&tmp); err != nil {
			return nil, errors.OsnmaErr(err).AppendMessage("Unable to apply trust store option.")
		}
	}
	return &tmp.obj, nil
}

// StoreOptPublicKey adds a trusted public key with the given public key ID.
func StoreOptPublicKey(pkid uint8, pub crypto.PublicKey) StoreOpt {
	return func(s *store) error {
		if s == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing trust store.")
		}
		return s.obj.AddPublicKey(pkid, pub)
	}
}

// StoreOptMerkleRoot sets the trusted Merkle tree root.
func StoreOptMerkleRoot(root []byte) StoreOpt {
	return func(s *store) error {
		if s == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing trust store.")
		}
		if len(root) != dsm.NodeBytes {
			return errors.New(errors.OsnmaInvalidArgumentError).
				AppendMessage(fmt.Sprintf("Merkle root must be %d bytes.", dsm.NodeBytes))
		}
		s.obj.root = append([]byte(nil), root...)
		return nil
	}
}

// AddPublicKey adds or replaces the public key with the given public key ID.
func (s *Store) AddPublicKey(pkid uint8, pub crypto.PublicKey) error {
	if s == nil {
		return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing trust store.")
	}
	if pkid > 0x0f {
		return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage(fmt.Sprintf("Invalid PKID: %d.", pkid))
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok || ecPub == nil {
		return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Public key must be an ECDSA key.")
	}
	if _, _, err := dsm.SignatureParams(ecPub); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[pkid] = ecPub
	log.Debug(fmt.Sprintf("Trusted public key %d (%s).", pkid, ecPub.Curve.Params().Name))
	return nil
}

// PublicKey returns the public key with the given ID.
func (s *Store) PublicKey(pkid uint8) (*ecdsa.PublicKey, error) {
	if s == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing trust store.")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	pub, ok := s.keys[pkid]
	if !ok {
		return nil, errors.New(errors.OsnmaPublicKeyNotFound).AppendMessage(fmt.Sprintf("No public key with PKID %d.", pkid))
	}
	return pub, nil
}

// MerkleRoot returns the trusted Merkle tree root, or nil if not set.
func (s *Store) MerkleRoot() []byte {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]byte(nil), s.root...)
}

// Alert reports whether an OSNMA alert message has been authenticated.
func (s *Store) Alert() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alert
}

// VerifyKRoot checks the DSM-KROOT signature with the public key it references.
func (s *Store) VerifyKRoot(k *dsm.KRoot) error {
	if k == nil {
		return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing DSM-KROOT.")
	}
	pub, err := s.PublicKey(k.PKID)
	if err != nil {
		return errors.New(errors.OsnmaUntrustedRootKey).SetExtError(err).
			AppendMessage(fmt.Sprintf("DSM-KROOT references unknown public key %d.", k.PKID))
	}
	return k.Verify(pub)
}

// ApplyPKR authenticates the DSM-PKR against the Merkle tree root and, on success, adds the renewed public key.
func (s *Store) ApplyPKR(p *dsm.PKR) error {
	if p == nil {
		return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing DSM-PKR.")
	}
	root := s.MerkleRoot()
	if len(root) == 0 {
		return errors.New(errors.OsnmaInvalidSignature).AppendMessage("No trusted Merkle tree root.")
	}
	if err := merkle.VerifyPath(p.Leaf(), p.MID, p.ITN[:], root); err != nil {
		return err
	}
	if !p.CheckPadding(root) {
		return errors.New(errors.OsnmaInvalidSignature).AppendMessage("DSM-PKR padding mismatch.")
	}

	if p.IsAlert() {
		s.mu.Lock()
		s.alert = true
		s.mu.Unlock()
		log.Warning("Authenticated OSNMA alert message.")
		return nil
	}
	pub, err := p.PublicKey()
	if err != nil {
		return errors.New(errors.OsnmaInvalidSignature).SetExtError(err)
	}
	return s.AddPublicKey(p.NPKID, pub)
}

// Authenticate implements dsm.Authenticator interface.
func (s *Store) Authenticate(m *dsm.Message) error {
	if s == nil || m == nil {
		return errors.New(errors.OsnmaInvalidArgumentError)
	}
	switch m.Kind {
	case dsm.KindKRoot:
		return s.VerifyKRoot(m.KRoot)
	case dsm.KindPKR:
		return s.ApplyPKR(m.PKR)
	}
	return errors.New(errors.OsnmaInvalidDSM).AppendMessage(fmt.Sprintf("Unknown DSM kind: %d.", m.Kind))
}
