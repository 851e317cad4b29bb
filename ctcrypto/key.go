// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

// Package ctcrypto reconstructs the data signed by a CT log for an SCT and
// verifies log signatures over it.
package ctcrypto

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
	"software.sslmate.com/src/sctverify/cttypes"
	"software.sslmate.com/src/sctverify/tlstypes"
)

var (
	oidPublicKeyRSA   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	oidPublicKeyECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
)

var ErrUnsupportedKeyAlgorithm = errors.New("unsupported public key algorithm (CT only allows RSA and ECDSA)")

// KeyAlgorithm is the family of a log's public key.
type KeyAlgorithm uint8

const (
	RSAKey KeyAlgorithm = iota + 1
	ECDSAKey
)

func (a KeyAlgorithm) String() string {
	switch a {
	case RSAKey:
		return "RSA"
	case ECDSAKey:
		return "ECDSA"
	default:
		return fmt.Sprintf("KeyAlgorithm(%d)", uint8(a))
	}
}

// SignatureAlgorithm returns the TLS signature algorithm that a log with a
// key of this family uses to sign SCTs.
func (a KeyAlgorithm) SignatureAlgorithm() tlstypes.SignatureAlgorithm {
	switch a {
	case RSAKey:
		return tlstypes.RSA
	case ECDSAKey:
		return tlstypes.ECDSA
	default:
		return 0
	}
}

// PublicKey is a DER-encoded SubjectPublicKeyInfo.
type PublicKey []byte

// LogID returns the ID of the log which uses this key.
func (key PublicKey) LogID() cttypes.LogID {
	return cttypes.LogIDForKey(key)
}

// Algorithm inspects the algorithm OID of the SubjectPublicKeyInfo.
func (key PublicKey) Algorithm() (KeyAlgorithm, error) {
	input := cryptobyte.String(key)
	var spki, algorithmIdentifier cryptobyte.String
	var oid asn1.ObjectIdentifier
	if !input.ReadASN1(&spki, cbasn1.SEQUENCE) || !input.Empty() {
		return 0, fmt.Errorf("malformed SubjectPublicKeyInfo")
	}
	if !spki.ReadASN1(&algorithmIdentifier, cbasn1.SEQUENCE) {
		return 0, fmt.Errorf("malformed SubjectPublicKeyInfo algorithm")
	}
	if !algorithmIdentifier.ReadASN1ObjectIdentifier(&oid) {
		return 0, fmt.Errorf("malformed SubjectPublicKeyInfo algorithm identifier")
	}
	switch {
	case oid.Equal(oidPublicKeyRSA):
		return RSAKey, nil
	case oid.Equal(oidPublicKeyECDSA):
		return ECDSAKey, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedKeyAlgorithm, oid)
	}
}

// Parse decodes the key and checks that it belongs to a supported family.
func (key PublicKey) Parse() (crypto.PublicKey, KeyAlgorithm, error) {
	algorithm, err := key.Algorithm()
	if err != nil {
		return nil, 0, err
	}
	parsedKey, err := x509.ParsePKIXPublicKey(key)
	if err != nil {
		return nil, 0, fmt.Errorf("error parsing log key: %w", err)
	}
	switch parsedKey.(type) {
	case *rsa.PublicKey:
		if algorithm != RSAKey {
			return nil, 0, fmt.Errorf("log key parsed as RSA but its algorithm is %v", algorithm)
		}
	case *ecdsa.PublicKey:
		if algorithm != ECDSAKey {
			return nil, 0, fmt.Errorf("log key parsed as ECDSA but its algorithm is %v", algorithm)
		}
	default:
		return nil, 0, fmt.Errorf("%w: %T", ErrUnsupportedKeyAlgorithm, parsedKey)
	}
	return parsedKey, algorithm, nil
}

func (key PublicKey) MarshalBinary() ([]byte, error) {
	return bytes.Clone(key), nil
}

func (key *PublicKey) UnmarshalBinary(data []byte) error {
	*key = bytes.Clone(data)
	return nil
}
