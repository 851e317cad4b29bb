// Copyright (C) 2016, 2025 Opsmate, Inc.
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
)

var (
	oidExtensionBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
	oidExtensionExtendedKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 37}
	oidExtensionAuthorityKeyId   = asn1.ObjectIdentifier{2, 5, 29, 35}
	oidExtensionSCT              = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 2}
	oidExtensionCTPoison         = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 3}
	oidExtKeyUsagePrecertSigning = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 4}
	oidExtensionOCSPSCT          = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 5}
)

var ErrMalformedCertificate = errors.New("malformed certificate")

type BasicConstraints struct {
	IsCA       bool `asn1:"optional"`
	MaxPathLen int  `asn1:"optional,default:-1"`
}

// Extension keeps the exact DER of the extension in Raw, which asn1.Marshal
// emits verbatim, so re-encoding a TBSCertificate never alters an extension.
type Extension struct {
	Raw      asn1.RawContent
	Id       asn1.ObjectIdentifier
	Critical bool `asn1:"optional"`
	Value    []byte
}

type TBSCertificate struct {
	Raw asn1.RawContent

	Version            int `asn1:"optional,explicit,default:1,tag:0"`
	SerialNumber       asn1.RawValue
	SignatureAlgorithm asn1.RawValue
	Issuer             asn1.RawValue
	Validity           asn1.RawValue
	Subject            asn1.RawValue
	PublicKey          asn1.RawValue
	UniqueId           asn1.BitString `asn1:"optional,tag:1"`
	SubjectUniqueId    asn1.BitString `asn1:"optional,tag:2"`
	Extensions         []Extension    `asn1:"optional,explicit,tag:3"`
}

type Certificate struct {
	Raw asn1.RawContent

	TBSCertificate     asn1.RawValue
	SignatureAlgorithm asn1.RawValue
	SignatureValue     asn1.RawValue
}

func ParseTBSCertificate(tbsBytes []byte) (*TBSCertificate, error) {
	var tbs TBSCertificate
	if rest, err := asn1.Unmarshal(tbsBytes, &tbs); err != nil {
		return nil, fmt.Errorf("%w: failed to parse TBS: %w", ErrMalformedCertificate, err)
	} else if len(rest) > 0 {
		return nil, fmt.Errorf("%w: trailing data after TBS: %x", ErrMalformedCertificate, rest)
	}
	return &tbs, nil
}

func ParseCertificate(certBytes []byte) (*Certificate, error) {
	var cert Certificate
	if rest, err := asn1.Unmarshal(certBytes, &cert); err != nil {
		return nil, fmt.Errorf("%w: failed to parse certificate: %w", ErrMalformedCertificate, err)
	} else if len(rest) > 0 {
		return nil, fmt.Errorf("%w: trailing data after certificate: %x", ErrMalformedCertificate, rest)
	}
	return &cert, nil
}

func (cert *Certificate) GetRawTBSCertificate() []byte {
	return cert.TBSCertificate.FullBytes
}

func (cert *Certificate) ParseTBSCertificate() (*TBSCertificate, error) {
	return ParseTBSCertificate(cert.GetRawTBSCertificate())
}

func (tbs *TBSCertificate) GetRawPublicKey() []byte {
	return tbs.PublicKey.FullBytes
}

func (tbs *TBSCertificate) GetExtension(id asn1.ObjectIdentifier) []Extension {
	var exts []Extension
	for _, ext := range tbs.Extensions {
		if ext.Id.Equal(id) {
			exts = append(exts, ext)
		}
	}
	return exts
}

// ParseBasicConstraints returns nil if the certificate has no Basic
// Constraints extension.
func (tbs *TBSCertificate) ParseBasicConstraints() (*BasicConstraints, error) {
	constraintExts := tbs.GetExtension(oidExtensionBasicConstraints)
	if len(constraintExts) == 0 {
		return nil, nil
	} else if len(constraintExts) > 1 {
		return nil, fmt.Errorf("certificate has more than one Basic Constraints extension")
	}

	var constraints BasicConstraints
	if rest, err := asn1.Unmarshal(constraintExts[0].Value, &constraints); err != nil {
		return nil, fmt.Errorf("failed to parse Basic Constraints: %w", err)
	} else if len(rest) > 0 {
		return nil, fmt.Errorf("trailing data after Basic Constraints: %x", rest)
	}
	return &constraints, nil
}

func (tbs *TBSCertificate) IsCA() (bool, error) {
	constraints, err := tbs.ParseBasicConstraints()
	if err != nil {
		return false, err
	}
	return constraints != nil && constraints.IsCA, nil
}

func (tbs *TBSCertificate) IsPrecert() bool {
	return len(tbs.GetExtension(oidExtensionCTPoison)) > 0
}

// ParseExtKeyUsage returns the key purposes listed in the Extended Key
// Usage extension, or nil if there is none.
func (tbs *TBSCertificate) ParseExtKeyUsage() ([]asn1.ObjectIdentifier, error) {
	ekuExts := tbs.GetExtension(oidExtensionExtendedKeyUsage)
	if len(ekuExts) == 0 {
		return nil, nil
	} else if len(ekuExts) > 1 {
		return nil, fmt.Errorf("certificate has more than one Extended Key Usage extension")
	}

	var usages []asn1.ObjectIdentifier
	if rest, err := asn1.Unmarshal(ekuExts[0].Value, &usages); err != nil {
		return nil, fmt.Errorf("failed to parse Extended Key Usage: %w", err)
	} else if len(rest) > 0 {
		return nil, fmt.Errorf("trailing data after Extended Key Usage: %x", rest)
	}
	return usages, nil
}

// IsPrecertSigningCert reports whether the certificate is a Precertificate
// Signing Certificate (RFC 6962 section 3.1).
func (tbs *TBSCertificate) IsPrecertSigningCert() (bool, error) {
	usages, err := tbs.ParseExtKeyUsage()
	if err != nil {
		return false, err
	}
	for _, usage := range usages {
		if usage.Equal(oidExtKeyUsagePrecertSigning) {
			return true, nil
		}
	}
	return false, nil
}
