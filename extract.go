// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package sctverify

import (
	"encoding/asn1"
	"errors"
	"fmt"

	"golang.org/x/crypto/ocsp"
	"software.sslmate.com/src/sctverify/cttypes"
)

var (
	ErrMalformedSCTList      = errors.New("malformed SignedCertificateTimestampList")
	ErrMalformedOCSPResponse = errors.New("malformed OCSP response")
)

// Source identifies the channel through which an SCT was delivered.
type Source uint8

const (
	SourceEmbedded Source = iota
	SourceTLSExtension
	SourceOCSP
)

func (s Source) String() string {
	switch s {
	case SourceEmbedded:
		return "embedded"
	case SourceTLSExtension:
		return "tls"
	case SourceOCSP:
		return "ocsp"
	default:
		return fmt.Sprintf("Source(%d)", uint8(s))
	}
}

// EntryType returns the kind of entry which SCTs from this source were
// issued over.
func (s Source) EntryType() cttypes.LogEntryType {
	if s == SourceEmbedded {
		return cttypes.PrecertEntryType
	}
	return cttypes.X509EntryType
}

func parseSCTList(data []byte) ([][]byte, error) {
	scts, err := cttypes.ParseSCTList(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSCTList, err)
	}
	return scts, nil
}

// unwrapSCTListExtension decodes the OCTET STRING which carries a
// SignedCertificateTimestampList inside an X.509 or OCSP extension value.
func unwrapSCTListExtension(value []byte) ([][]byte, error) {
	var list []byte
	if rest, err := asn1.Unmarshal(value, &list); err != nil {
		return nil, fmt.Errorf("%w: extension value is not an OCTET STRING: %w", ErrMalformedSCTList, err)
	} else if len(rest) > 0 {
		return nil, fmt.Errorf("%w: trailing data after extension OCTET STRING", ErrMalformedSCTList)
	}
	return parseSCTList(list)
}

// ExtractEmbeddedSCTs returns the serialized SCTs in the certificate's SCT
// list extension.  A certificate without the extension yields nil and no
// error; a present but corrupt extension yields an error wrapping
// ErrMalformedSCTList.
func ExtractEmbeddedSCTs(tbs *TBSCertificate) ([][]byte, error) {
	exts := tbs.GetExtension(oidExtensionSCT)
	if len(exts) == 0 {
		return nil, nil
	} else if len(exts) > 1 {
		return nil, fmt.Errorf("%w: certificate has more than one SCT list extension", ErrMalformedSCTList)
	}
	return unwrapSCTListExtension(exts[0].Value)
}

// ExtractTLSSCTs returns the serialized SCTs in the payload of a TLS
// signed_certificate_timestamp extension.  An absent payload yields nil.
func ExtractTLSSCTs(list []byte) ([][]byte, error) {
	if len(list) == 0 {
		return nil, nil
	}
	return parseSCTList(list)
}

// ExtractOCSPSCTs returns the serialized SCTs carried in the SCT list
// singleExtension of a DER-encoded OCSP response.  An absent response or
// a response without the extension yields nil.  The response's signature
// is not checked.
func ExtractOCSPSCTs(der []byte) ([][]byte, error) {
	if len(der) == 0 {
		return nil, nil
	}
	resp, err := ocsp.ParseResponse(der, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOCSPResponse, err)
	}
	var value []byte
	found := false
	for _, ext := range resp.Extensions {
		if !ext.Id.Equal(oidExtensionOCSPSCT) {
			continue
		}
		if found {
			return nil, fmt.Errorf("%w: OCSP response has more than one SCT list extension", ErrMalformedSCTList)
		}
		value = ext.Value
		found = true
	}
	if !found {
		return nil, nil
	}
	return unwrapSCTListExtension(value)
}
