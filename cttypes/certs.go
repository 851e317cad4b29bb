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
	"golang.org/x/crypto/cryptobyte"
)

type TBSCertificate []byte

type ASN1Cert []byte

// Corresponds to the PreCert structure in RFC 6962.  PreCert is a misnomer because this is really a TBSCertificate, not a precertificate.
type PreCert struct {
	IssuerKeyHash  [32]byte
	TBSCertificate TBSCertificate
}

func (v TBSCertificate) Marshal(b *cryptobyte.Builder) error {
	b.AddUint24LengthPrefixed(addBytesFunc(v))
	return nil
}

func (v ASN1Cert) Marshal(b *cryptobyte.Builder) error {
	b.AddUint24LengthPrefixed(addBytesFunc(v))
	return nil
}

func (v *PreCert) Marshal(b *cryptobyte.Builder) error {
	b.AddBytes(v.IssuerKeyHash[:])
	b.AddValue(v.TBSCertificate)
	return nil
}

// CertificateEntry is the signed_entry an SCT was issued over.  It is
// either an *X509Entry or a *PrecertEntry; no other implementations exist.
type CertificateEntry interface {
	cryptobyte.MarshalingValue
	EntryType() LogEntryType
	isCertificateEntry()
}

// X509Entry is used for SCTs delivered in the TLS handshake or in an OCSP
// response, which are issued over the final certificate.
type X509Entry struct {
	Certificate ASN1Cert
}

// PrecertEntry is used for SCTs embedded in a certificate, which were
// issued over the precertificate.
type PrecertEntry struct {
	PreCert PreCert
}

func (*X509Entry) EntryType() LogEntryType    { return X509EntryType }
func (*PrecertEntry) EntryType() LogEntryType { return PrecertEntryType }

func (*X509Entry) isCertificateEntry()    {}
func (*PrecertEntry) isCertificateEntry() {}

func (e *X509Entry) Marshal(b *cryptobyte.Builder) error {
	b.AddValue(e.Certificate)
	return nil
}

func (e *PrecertEntry) Marshal(b *cryptobyte.Builder) error {
	b.AddValue(&e.PreCert)
	return nil
}
