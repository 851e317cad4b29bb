// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

// Package cttypes contains the RFC 6962 structures needed to decode and
// verify Signed Certificate Timestamps.
package cttypes

import (
	"fmt"

	"golang.org/x/crypto/cryptobyte"
)

type Version uint8

const (
	V1 Version = 0
)

func (v Version) Marshal(b *cryptobyte.Builder) error {
	b.AddUint8(uint8(v))
	return nil
}
func (v *Version) Unmarshal(s *cryptobyte.String) bool {
	return s.ReadUint8((*uint8)(v))
}

type SignatureType uint8

const (
	CertificateTimestampSignatureType SignatureType = 0
	TreeHashSignatureType             SignatureType = 1
)

func (v SignatureType) Marshal(b *cryptobyte.Builder) error {
	b.AddUint8(uint8(v))
	return nil
}

type LogEntryType uint16

const (
	X509EntryType    LogEntryType = 0
	PrecertEntryType LogEntryType = 1
)

func (v LogEntryType) Marshal(b *cryptobyte.Builder) error {
	b.AddUint16(uint16(v))
	return nil
}
func (v *LogEntryType) Unmarshal(s *cryptobyte.String) bool {
	return s.ReadUint16((*uint16)(v))
}

func (v LogEntryType) String() string {
	switch v {
	case X509EntryType:
		return "x509_entry"
	case PrecertEntryType:
		return "precert_entry"
	default:
		return fmt.Sprintf("entry_type(%d)", uint16(v))
	}
}

type CTExtensions []byte

func (v *CTExtensions) Unmarshal(s *cryptobyte.String) bool {
	return s.ReadUint16LengthPrefixed((*cryptobyte.String)(v))
}
func (v CTExtensions) Marshal(b *cryptobyte.Builder) error {
	b.AddUint16LengthPrefixed(addBytesFunc(v))
	return nil
}

func addBytesFunc(v []byte) cryptobyte.BuilderContinuation {
	return func(b *cryptobyte.Builder) {
		b.AddBytes(v)
	}
}
