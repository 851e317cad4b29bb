// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package cttypes

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/cryptobyte"
	"software.sslmate.com/src/sctverify/tlstypes"
)

type SignedCertificateTimestamp struct {
	SCTVersion Version                  `json:"sct_version"`
	ID         LogID                    `json:"id"`
	Timestamp  uint64                   `json:"timestamp"`
	Extensions CTExtensions             `json:"extensions"`
	Signature  tlstypes.DigitallySigned `json:"signature"`
}

func (sct *SignedCertificateTimestamp) Bytes() ([]byte, error) {
	var builder cryptobyte.Builder
	builder.AddValue(sct)
	return builder.Bytes()
}

func (sct *SignedCertificateTimestamp) Marshal(b *cryptobyte.Builder) error {
	b.AddValue(sct.SCTVersion)
	b.AddValue(sct.ID)
	b.AddUint64(sct.Timestamp)
	b.AddValue(sct.Extensions)
	b.AddValue(sct.Signature)
	return nil
}

func (sct *SignedCertificateTimestamp) Unmarshal(s *cryptobyte.String) error {
	if !sct.SCTVersion.Unmarshal(s) {
		return fmt.Errorf("error reading SCT version")
	}
	if sct.SCTVersion != V1 {
		return fmt.Errorf("unsupported SCT version 0x%02x", sct.SCTVersion)
	}
	if !sct.ID.Unmarshal(s) {
		return fmt.Errorf("error reading SCT id")
	}
	if !s.ReadUint64(&sct.Timestamp) {
		return fmt.Errorf("error reading SCT timestamp")
	}
	if !sct.Extensions.Unmarshal(s) {
		return fmt.Errorf("error reading SCT extensions")
	}
	if !sct.Signature.Unmarshal(s) {
		return fmt.Errorf("error reading SCT signature")
	}
	return nil
}

func (sct *SignedCertificateTimestamp) TimestampTime() time.Time {
	return time.UnixMilli(int64(sct.Timestamp))
}

// SameAs reports whether sct and other have the same log ID, timestamp and
// signature, i.e. they are the same SCT delivered more than once.
func (sct *SignedCertificateTimestamp) SameAs(other *SignedCertificateTimestamp) bool {
	return sct.ID == other.ID && sct.Timestamp == other.Timestamp && sct.Signature.Equal(other.Signature)
}

// ParseSignedCertificateTimestamp decodes a single serialized SCT.  The
// returned SCT does not alias data.
func ParseSignedCertificateTimestamp(data []byte) (*SignedCertificateTimestamp, error) {
	str := cryptobyte.String(bytes.Clone(data))
	sct := new(SignedCertificateTimestamp)
	if err := sct.Unmarshal(&str); err != nil {
		return nil, err
	}
	if !str.Empty() {
		return nil, fmt.Errorf("trailing garbage after SignedCertificateTimestamp")
	}
	return sct, nil
}

var ErrEmptySCTList = errors.New("SignedCertificateTimestampList is empty")

// ParseSCTList splits a serialized SignedCertificateTimestampList into its
// serialized SCTs, without decoding them.
func ParseSCTList(data []byte) ([][]byte, error) {
	str := cryptobyte.String(data)
	var list cryptobyte.String
	if !str.ReadUint16LengthPrefixed(&list) {
		return nil, fmt.Errorf("error reading SignedCertificateTimestampList length")
	}
	if !str.Empty() {
		return nil, fmt.Errorf("trailing garbage after SignedCertificateTimestampList")
	}
	if list.Empty() {
		return nil, ErrEmptySCTList
	}
	var scts [][]byte
	for !list.Empty() {
		var serialized cryptobyte.String
		if !list.ReadUint16LengthPrefixed(&serialized) {
			return nil, fmt.Errorf("error reading SerializedSCT %d", len(scts))
		}
		if serialized.Empty() {
			return nil, fmt.Errorf("SerializedSCT %d is empty", len(scts))
		}
		scts = append(scts, bytes.Clone(serialized))
	}
	return scts, nil
}

// MarshalSCTList serializes scts as a SignedCertificateTimestampList.
func MarshalSCTList(scts []*SignedCertificateTimestamp) ([]byte, error) {
	var builder cryptobyte.Builder
	builder.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
		for _, sct := range scts {
			b.AddUint16LengthPrefixed(func(b *cryptobyte.Builder) {
				b.AddValue(sct)
			})
		}
	})
	return builder.Bytes()
}
