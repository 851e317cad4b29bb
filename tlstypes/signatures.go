// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

// Package tlstypes contains the RFC 5246 structures used by Certificate
// Transparency to carry signatures.
package tlstypes

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

type HashAlgorithm uint8

const (
	SHA224 HashAlgorithm = 3
	SHA256 HashAlgorithm = 4
	SHA384 HashAlgorithm = 5
	SHA512 HashAlgorithm = 6
)

func (v HashAlgorithm) String() string {
	switch v {
	case SHA224:
		return "SHA-224"
	case SHA256:
		return "SHA-256"
	case SHA384:
		return "SHA-384"
	case SHA512:
		return "SHA-512"
	default:
		return fmt.Sprintf("hash(%d)", uint8(v))
	}
}

type SignatureAlgorithm uint8

const (
	RSA   SignatureAlgorithm = 1
	ECDSA SignatureAlgorithm = 3
)

func (v SignatureAlgorithm) String() string {
	switch v {
	case RSA:
		return "RSA"
	case ECDSA:
		return "ECDSA"
	default:
		return fmt.Sprintf("signature(%d)", uint8(v))
	}
}

type SignatureAndHashAlgorithm struct {
	Hash      HashAlgorithm
	Signature SignatureAlgorithm
}

func (v SignatureAndHashAlgorithm) String() string {
	return v.Signature.String() + "-" + v.Hash.String()
}

type DigitallySigned struct {
	Algorithm SignatureAndHashAlgorithm
	Signature []byte
}

func (v HashAlgorithm) Marshal(b *cryptobyte.Builder) error {
	b.AddUint8(uint8(v))
	return nil
}
func (v *HashAlgorithm) Unmarshal(s *cryptobyte.String) bool {
	return s.ReadUint8((*uint8)(v))
}

func (v SignatureAlgorithm) Marshal(b *cryptobyte.Builder) error {
	b.AddUint8(uint8(v))
	return nil
}
func (v *SignatureAlgorithm) Unmarshal(s *cryptobyte.String) bool {
	return s.ReadUint8((*uint8)(v))
}

func (v SignatureAndHashAlgorithm) Marshal(b *cryptobyte.Builder) error {
	b.AddValue(v.Hash)
	b.AddValue(v.Signature)
	return nil
}
func (v *SignatureAndHashAlgorithm) Unmarshal(s *cryptobyte.String) bool {
	return v.Hash.Unmarshal(s) && v.Signature.Unmarshal(s)
}

func (v DigitallySigned) Marshal(b *cryptobyte.Builder) error {
	b.AddValue(v.Algorithm)
	b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) { b.AddBytes(v.Signature) })
	return nil
}
func (v *DigitallySigned) Unmarshal(s *cryptobyte.String) bool {
	return v.Algorithm.Unmarshal(s) && s.ReadUint16LengthPrefixed((*cryptobyte.String)(&v.Signature))
}

func (v DigitallySigned) Bytes() []byte {
	b := cryptobyte.NewBuilder(make([]byte, 0, 4+len(v.Signature)))
	b.AddValue(v)
	return b.BytesOrPanic()
}

// Equal reports whether v and other carry the same algorithm and signature bytes.
func (v DigitallySigned) Equal(other DigitallySigned) bool {
	return v.Algorithm == other.Algorithm && bytes.Equal(v.Signature, other.Signature)
}

func ParseDigitallySigned(data []byte) (*DigitallySigned, error) {
	ds := new(DigitallySigned)
	str := cryptobyte.String(bytes.Clone(data))
	if !ds.Unmarshal(&str) {
		return nil, fmt.Errorf("DigitallySigned bytes are malformed")
	}
	if !str.Empty() {
		return nil, fmt.Errorf("trailing bytes after DigitallySigned")
	}
	return ds, nil
}
