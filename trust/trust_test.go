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

package trust

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fullsailor/pkcs7"
	"github.com/stretchr/testify/require"

	"github.com/guardtime/goosnma/dsm"
	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/hash"
	"github.com/guardtime/goosnma/mac"
	"github.com/guardtime/goosnma/merkle"
)

func newKey(t *testing.T) *ecdsa.PrivateKey {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return priv
}

func newCert(t *testing.T, cn string, pub *ecdsa.PublicKey, parent *x509.Certificate, signer *ecdsa.PrivateKey, ca bool) *x509.Certificate {
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		BasicConstraintsValid: true,
		IsCA:                  ca,
		KeyUsage:              x509.KeyUsageDigitalSignature,
	}
	if ca {
		tmpl.KeyUsage |= x509.KeyUsageCertSign
	}
	if parent == nil {
		parent = tmpl
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, pub, signer)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert
}

func TestUnitParsePublicKey(t *testing.T) {
	priv := newKey(t)

	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)
	pub, err := ParsePublicKey(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	require.NoError(t, err)
	require.True(t, priv.PublicKey.Equal(pub))

	pub, err = ParsePublicKey(der)
	require.NoError(t, err)
	require.True(t, priv.PublicKey.Equal(pub))

	cert := newCert(t, "osnma", &priv.PublicKey, nil, priv, false)
	pub, err = ParsePublicKey(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
	require.NoError(t, err)
	require.True(t, priv.PublicKey.Equal(pub))

	pub, err = ParsePublicKey(cert.Raw)
	require.NoError(t, err)
	require.True(t, priv.PublicKey.Equal(pub))

	_, err = ParsePublicKey([]byte("garbage"))
	require.Equal(t, errors.OsnmaInvalidFormatError, errors.OsnmaErr(err).Code())
}

func TestUnitStoreOptions(t *testing.T) {
	priv := newKey(t)

	_, err := NewStore(StoreOptMerkleRoot([]byte{1, 2, 3}))
	require.Error(t, err)
	_, err = NewStore(StoreOptPublicKey(16, &priv.PublicKey))
	require.Error(t, err)
	_, err = NewStore(nil)
	require.Error(t, err)

	s, err := NewStore(StoreOptPublicKey(1, &priv.PublicKey), StoreOptMerkleRoot(make([]byte, 32)))
	require.NoError(t, err)
	pub, err := s.PublicKey(1)
	require.NoError(t, err)
	require.True(t, priv.PublicKey.Equal(pub))
	require.Len(t, s.MerkleRoot(), 32)

	_, err = s.PublicKey(2)
	require.Equal(t, errors.OsnmaPublicKeyNotFound, errors.OsnmaErr(err).Code())
}

func TestUnitPublicKeyFile(t *testing.T) {
	priv := newKey(t)
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "pubkey.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), 0o600))

	s, err := NewStore(StoreOptPublicKeyFile(7, path))
	require.NoError(t, err)
	_, err = s.PublicKey(7)
	require.NoError(t, err)

	_, err = NewStore(StoreOptPublicKeyFile(7, filepath.Join(t.TempDir(), "missing.pem")))
	require.Equal(t, errors.OsnmaIoError, errors.OsnmaErr(err).Code())
}

func gscXMLDoc(priv *ecdsa.PrivateKey, pkid uint8, root []byte) []byte {
	point := elliptic.MarshalCompressed(elliptic.P256(), priv.X, priv.Y)
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<signalData>
  <header><GNSS_Header><source>GSC</source></GNSS_Header></header>
  <body>
    <MerkleTree>
      <N>16</N>
      <HashFunction>SHA-256</HashFunction>
      <PublicKey>
        <i>0</i>
        <PKID>%d</PKID>
        <lengthInBits>264</lengthInBits>
        <point>%s</point>
        <PKType>ECDSA P-256/SHA-256</PKType>
      </PublicKey>
      <TreeNode><j>3</j><i>0</i><lengthInBits>256</lengthInBits><x_ji>%s</x_ji></TreeNode>
      <TreeNode><j>4</j><i>0</i><lengthInBits>256</lengthInBits><x_ji>%s</x_ji></TreeNode>
    </MerkleTree>
  </body>
</signalData>`, pkid, hex.EncodeToString(point), hex.EncodeToString(make([]byte, 32)), hex.EncodeToString(root)))
}

func TestUnitParseGSC(t *testing.T) {
	priv := newKey(t)
	root := bytes.Repeat([]byte{0xab}, 32)

	f, err := ParseGSC(gscXMLDoc(priv, 2, root))
	require.NoError(t, err)
	require.Equal(t, root, f.Root)
	require.Len(t, f.Keys, 1)
	require.True(t, priv.PublicKey.Equal(f.Keys[2]))

	path := filepath.Join(t.TempDir(), "OSNMA_MerkleTree.xml")
	require.NoError(t, os.WriteFile(path, gscXMLDoc(priv, 2, root), 0o600))
	s, err := NewStore(StoreOptGSCFile(path))
	require.NoError(t, err)
	require.Equal(t, root, s.MerkleRoot())

	_, err = ParseGSC([]byte("<signalData><body></body></signalData>"))
	require.Error(t, err)
	_, err = ParseGSC([]byte("not xml"))
	require.Error(t, err)
}

func TestUnitPKCS7Bundle(t *testing.T) {
	caKey := newKey(t)
	ca := newCert(t, "GSC root", &caKey.PublicKey, nil, caKey, true)
	leafKey := newKey(t)
	leaf := newCert(t, "OSNMA PK", &leafKey.PublicKey, ca, caKey, false)

	der, err := pkcs7.DegenerateCertificate(append(append([]byte(nil), leaf.Raw...), ca.Raw...))
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(ca)
	b, err := ParseBundle(der, roots)
	require.NoError(t, err)
	require.Len(t, b.Certificates, 2)
	pub, err := b.PublicKey()
	require.NoError(t, err)
	require.True(t, leafKey.PublicKey.Equal(pub))

	path := filepath.Join(t.TempDir(), "bundle.p7b")
	require.NoError(t, os.WriteFile(path, der, 0o600))
	s, err := NewStore(StoreOptPKCS7File(4, path, roots))
	require.NoError(t, err)
	_, err = s.PublicKey(4)
	require.NoError(t, err)

	otherKey := newKey(t)
	other := x509.NewCertPool()
	other.AddCert(newCert(t, "other root", &otherKey.PublicKey, nil, otherKey, true))
	_, err = ParseBundle(der, other)
	require.Equal(t, errors.OsnmaInvalidSignature, errors.OsnmaErr(err).Code())

	_, err = ParseBundle([]byte{0x30, 0x01}, nil)
	require.Equal(t, errors.OsnmaInvalidFormatError, errors.OsnmaErr(err).Code())
}

func signedKRoot(t *testing.T, priv *ecdsa.PrivateKey, pkid uint8) *dsm.Message {
	k := &dsm.KRoot{
		Header:  dsm.NMAHeader{NMAS: dsm.NMASOperational, CID: 0, CPKS: dsm.CPKSNominal},
		NB:      2,
		PKID:    pkid,
		HF:      hash.SHA2_256,
		MF:      mac.HMACSHA256,
		KeyBits: 128,
		TagBits: 40,
		WN:      1200,
		TOWH:    10,
		Alpha:   make([]byte, 6),
		Key:     bytes.Repeat([]byte{0x42}, 16),
	}
	raw, err := k.Sign(priv)
	require.NoError(t, err)
	msg, err := dsm.Decode(0, k.Header, raw)
	require.NoError(t, err)
	return msg
}

func TestUnitVerifyKRoot(t *testing.T) {
	priv := newKey(t)
	msg := signedKRoot(t, priv, 3)

	s, err := NewStore(StoreOptPublicKey(3, &priv.PublicKey))
	require.NoError(t, err)
	require.NoError(t, s.Authenticate(msg))

	err = s.Authenticate(signedKRoot(t, priv, 5))
	require.Equal(t, errors.OsnmaUntrustedRootKey, errors.OsnmaErr(err).Code())

	err = s.Authenticate(signedKRoot(t, newKey(t), 3))
	require.Equal(t, errors.OsnmaUntrustedRootKey, errors.OsnmaErr(err).Code())
}

func pkrMessage(t *testing.T, pub *ecdsa.PublicKey, mid, npkid uint8) (*dsm.Message, []byte) {
	p := &dsm.PKR{
		Header: dsm.NMAHeader{NMAS: dsm.NMASOperational, CPKS: dsm.CPKSNewPublicKey},
		NB:     7,
		MID:    mid,
		NPKT:   dsm.NPKTECDSAP256,
		NPKID:  npkid,
		NPK:    elliptic.MarshalCompressed(elliptic.P256(), pub.X, pub.Y),
	}
	leaves := make([][]byte, merkle.Leaves)
	for i := range leaves {
		leaves[i] = []byte{byte(i)}
	}
	leaves[mid] = p.Leaf()
	tree, err := merkle.Build(leaves)
	require.NoError(t, err)
	path, err := tree.Path(mid)
	require.NoError(t, err)
	copy(p.ITN[:], path)

	body, err := p.MarshalBinary()
	require.NoError(t, err)
	root := tree.Root()
	sum := sha256.Sum256(append(append([]byte(nil), root...), p.Leaf()...))
	raw := append(body, sum[:13*dsm.BlockBytes-len(body)]...)

	msg, err := dsm.Decode(12, p.Header, raw)
	require.NoError(t, err)
	return msg, root
}

func TestUnitApplyPKR(t *testing.T) {
	newPub := newKey(t)
	msg, root := pkrMessage(t, &newPub.PublicKey, 9, 6)

	s, err := NewStore(StoreOptMerkleRoot(root))
	require.NoError(t, err)
	require.NoError(t, s.Authenticate(msg))
	pub, err := s.PublicKey(6)
	require.NoError(t, err)
	require.True(t, newPub.PublicKey.Equal(pub))
	require.False(t, s.Alert())

	s, err = NewStore(StoreOptMerkleRoot(make([]byte, 32)))
	require.NoError(t, err)
	err = s.Authenticate(msg)
	require.Equal(t, errors.OsnmaInvalidSignature, errors.OsnmaErr(err).Code())
	_, err = s.PublicKey(6)
	require.Error(t, err)

	s, err = NewStore()
	require.NoError(t, err)
	err = s.Authenticate(msg)
	require.Equal(t, errors.OsnmaInvalidSignature, errors.OsnmaErr(err).Code())
}
