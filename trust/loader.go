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
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"github.com/fullsailor/pkcs7"

	"github.com/guardtime/goosnma/errors"
	"github.com/guardtime/goosnma/log"
	"github.com/guardtime/goosnma/merkle"
)

// ParsePublicKey decodes an ECDSA public key from a PEM block (PUBLIC KEY or CERTIFICATE) or from DER (PKIX public
// key or X.509 certificate).
func ParsePublicKey(data []byte) (*ecdsa.PublicKey, error) {
	der := data
	if blk, _ := pem.Decode(data); blk != nil {
		der = blk.Bytes
		if blk.Type == "CERTIFICATE" {
			return certificateKey(der)
		}
	}
	if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
		return ecdsaKey(pub)
	}
	return certificateKey(der)
}

func certificateKey(der []byte) (*ecdsa.PublicKey, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.New(errors.OsnmaInvalidFormatError).SetExtError(err).
			AppendMessage("Unable to parse public key.")
	}
	return ecdsaKey(cert.PublicKey)
}

func ecdsaKey(pub interface{}) (*ecdsa.PublicKey, error) {
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New(errors.OsnmaInvalidFormatError).
			AppendMessage(fmt.Sprintf("Unsupported public key type: %T.", pub))
	}
	return ecPub, nil
}

// GSCFile is the content of the public key and Merkle tree XML files distributed by the European GNSS Service Centre.
type GSCFile struct {
	Keys map[uint8]*ecdsa.PublicKey
	Root []byte
}

type gscXML struct {
	XMLName xml.Name `xml:"signalData"`
	Tree    struct {
		N          int    `xml:"N"`
		HashFunc   string `xml:"HashFunction"`
		PublicKeys []struct {
			I      int    `xml:"i"`
			PKID   uint8  `xml:"PKID"`
			Length int    `xml:"lengthInBits"`
			Point  string `xml:"point"`
			PKType string `xml:"PKType"`
		} `xml:"PublicKey"`
		Nodes []struct {
			J      int    `xml:"j"`
			I      int    `xml:"i"`
			Length int    `xml:"lengthInBits"`
			Value  string `xml:"x_ji"`
		} `xml:"TreeNode"`
	} `xml:"body>MerkleTree"`
}

// ParseGSC decodes the GSC XML file. Public keys are compressed EC points, the Merkle root is the node with j=4, i=0.
func ParseGSC(data []byte) (*GSCFile, error) {
	var doc gscXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.New(errors.OsnmaInvalidFormatError).SetExtError(err).
			AppendMessage("Unable to parse GSC XML file.")
	}
	if h := doc.Tree.HashFunc; h != "" && !strings.EqualFold(h, "SHA-256") {
		return nil, errors.New(errors.OsnmaUnknownHashAlgorithm).
			AppendMessage(fmt.Sprintf("Unsupported Merkle tree hash function: %s.", h))
	}

	out := &GSCFile{Keys: make(map[uint8]*ecdsa.PublicKey)}
	for _, pk := range doc.Tree.PublicKeys {
		point, err := hex.DecodeString(strings.TrimSpace(pk.Point))
		if err != nil {
			return nil, errors.New(errors.OsnmaInvalidFormatError).SetExtError(err).
				AppendMessage(fmt.Sprintf("Invalid point of public key %d.", pk.PKID))
		}
		var curve elliptic.Curve
		switch {
		case strings.Contains(pk.PKType, "P-256"):
			curve = elliptic.P256()
		case strings.Contains(pk.PKType, "P-521"):
			curve = elliptic.P521()
		default:
			return nil, errors.New(errors.OsnmaInvalidFormatError).
				AppendMessage(fmt.Sprintf("Unsupported public key type: %s.", pk.PKType))
		}
		x, y := elliptic.UnmarshalCompressed(curve, point)
		if x == nil {
			return nil, errors.New(errors.OsnmaInvalidFormatError).
				AppendMessage(fmt.Sprintf("Invalid compressed point of public key %d.", pk.PKID))
		}
		out.Keys[pk.PKID] = &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
	}
	for _, n := range doc.Tree.Nodes {
		if n.J != merkle.Depth || n.I != 0 {
			continue
		}
		root, err := hex.DecodeString(strings.TrimSpace(n.Value))
		if err != nil {
			return nil, errors.New(errors.OsnmaInvalidFormatError).SetExtError(err).
				AppendMessage("Invalid Merkle tree root.")
		}
		out.Root = root
	}
	if len(out.Keys) == 0 && out.Root == nil {
		return nil, errors.New(errors.OsnmaInvalidFormatError).AppendMessage("GSC XML file holds no trust anchor.")
	}
	return out, nil
}

// Bundle is a parsed PKCS#7 trust bundle.
type Bundle struct {
	Certificates []*x509.Certificate
	// Content is the signed content, empty for a certificates only bundle.
	Content []byte
}

// ParseBundle decodes a DER encoded PKCS#7 bundle. A signed bundle must carry a single signer, whose signature is
// verified. If roots is not nil, the signer certificate (or, for a certificates only bundle, every certificate) must
// chain up to one of the roots, with the other bundle certificates used as intermediates.
func ParseBundle(der []byte, roots *x509.CertPool) (*Bundle, error) {
	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil, errors.New(errors.OsnmaInvalidFormatError).SetExtError(err).
			AppendMessage("Unable to parse PKCS#7 bundle.")
	}
	if p7 == nil {
		return nil, errors.New(errors.OsnmaInvalidFormatError).AppendMessage("Unexpected error - PKCS#7 bundle is nil!")
	}

	verifyOp := x509.VerifyOptions{
		Intermediates: x509.NewCertPool(),
		Roots:         roots,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	for _, c := range p7.Certificates {
		verifyOp.Intermediates.AddCert(c)
	}

	toVerify := p7.Certificates
	if len(p7.Signers) > 0 {
		if err := p7.Verify(); err != nil {
			return nil, errors.New(errors.OsnmaInvalidSignature).SetExtError(err).
				AppendMessage("Unable to verify PKCS#7 bundle signature.")
		}
		signer := p7.GetOnlySigner()
		if signer == nil {
			return nil, errors.New(errors.OsnmaInvalidSignature).
				AppendMessage(fmt.Sprintf("PKCS#7 bundle has %d signers, only 1 is expected.", len(p7.Signers)))
		}
		toVerify = []*x509.Certificate{signer}
	}
	if roots != nil {
		for _, c := range toVerify {
			if _, err := c.Verify(verifyOp); err != nil {
				return nil, errors.New(errors.OsnmaInvalidSignature).SetExtError(err).
					AppendMessage(fmt.Sprintf("Certificate '%s' is not trusted.", c.Subject.CommonName))
			}
		}
	}
	return &Bundle{Certificates: p7.Certificates, Content: p7.Content}, nil
}

// PublicKey returns the public key of the first end entity ECDSA certificate of the bundle.
func (b *Bundle) PublicKey() (*ecdsa.PublicKey, error) {
	if b == nil {
		return nil, errors.New(errors.OsnmaInvalidArgumentError)
	}
	for _, c := range b.Certificates {
		if pub, ok := c.PublicKey.(*ecdsa.PublicKey); ok && !c.IsCA {
			return pub, nil
		}
	}
	return nil, errors.New(errors.OsnmaPublicKeyNotFound).AppendMessage("PKCS#7 bundle holds no ECDSA end entity certificate.")
}

func readFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.OsnmaIoError).SetExtError(err).
			AppendMessage(fmt.Sprintf("Unable to open file '%s'!", path))
	}
	return raw, nil
}

// StoreOptPublicKeyFile adds the public key from a PEM or DER file with the given public key ID.
func StoreOptPublicKeyFile(pkid uint8, path string) StoreOpt {
	return func(s *store) error {
		if s == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing trust store.")
		}
		raw, err := readFile(path)
		if err != nil {
			return err
		}
		pub, err := ParsePublicKey(raw)
		if err != nil {
			return errors.OsnmaErr(err).AppendMessage(fmt.Sprintf("Unable to load public key from '%s'.", path))
		}
		return s.obj.AddPublicKey(pkid, pub)
	}
}

func (s *store) addGSC(f *GSCFile) error {
	for pkid, pub := range f.Keys {
		if err := s.obj.AddPublicKey(pkid, pub); err != nil {
			return err
		}
	}
	if f.Root != nil {
		return StoreOptMerkleRoot(f.Root)(s)
	}
	return nil
}

// StoreOptGSCFile adds the public keys and the Merkle tree root of a GSC XML file.
func StoreOptGSCFile(path string) StoreOpt {
	return func(s *store) error {
		if s == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing trust store.")
		}
		raw, err := readFile(path)
		if err != nil {
			return err
		}
		f, err := ParseGSC(raw)
		if err != nil {
			return errors.OsnmaErr(err).AppendMessage(fmt.Sprintf("Unable to load GSC file '%s'.", path))
		}
		return s.addGSC(f)
	}
}

// StoreOptPKCS7File loads a PKCS#7 trust bundle (see ParseBundle). If the bundle carries signed content, it is
// loaded as a GSC XML file; otherwise the end entity certificate key is added with the given public key ID.
func StoreOptPKCS7File(pkid uint8, path string, roots *x509.CertPool) StoreOpt {
	return func(s *store) error {
		if s == nil {
			return errors.New(errors.OsnmaInvalidArgumentError).AppendMessage("Missing trust store.")
		}
		raw, err := readFile(path)
		if err != nil {
			return err
		}
		if blk, _ := pem.Decode(raw); blk != nil {
			raw = blk.Bytes
		}
		b, err := ParseBundle(raw, roots)
		if err != nil {
			return errors.OsnmaErr(err).AppendMessage(fmt.Sprintf("Unable to load bundle '%s'.", path))
		}
		if content := bytes.TrimSpace(b.Content); len(content) > 0 {
			f, err := ParseGSC(content)
			if err != nil {
				return err
			}
			log.Info(fmt.Sprintf("Loaded %d public keys from signed bundle '%s'.", len(f.Keys), path))
			return s.addGSC(f)
		}
		pub, err := b.PublicKey()
		if err != nil {
			return err
		}
		return s.obj.AddPublicKey(pkid, pub)
	}
}
