// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package ctcrypto

import (
	"crypto/sha256"

	"golang.org/x/crypto/cryptobyte"
	"software.sslmate.com/src/sctverify/cttypes"
)

type SignatureInput [32]byte

func MakeSignatureInput(message []byte) SignatureInput {
	return sha256.Sum256(message)
}

// SignedData returns the digitally-signed struct from RFC 6962 section 3.2
// which the log signed when it issued sct over entry.
func SignedData(sct *cttypes.SignedCertificateTimestamp, entry cttypes.CertificateEntry) ([]byte, error) {
	var builder cryptobyte.Builder
	builder.AddValue(sct.SCTVersion)
	builder.AddValue(cttypes.CertificateTimestampSignatureType)
	builder.AddUint64(sct.Timestamp)
	builder.AddValue(entry.EntryType())
	builder.AddValue(entry)
	builder.AddValue(sct.Extensions)
	return builder.Bytes()
}

func SignedDataForCertSCT(sct *cttypes.SignedCertificateTimestamp, cert cttypes.ASN1Cert) ([]byte, error) {
	return SignedData(sct, &cttypes.X509Entry{Certificate: cert})
}

func SignedDataForPrecertSCT(sct *cttypes.SignedCertificateTimestamp, precert cttypes.PreCert) ([]byte, error) {
	return SignedData(sct, &cttypes.PrecertEntry{PreCert: precert})
}

func SignatureInputForSCT(sct *cttypes.SignedCertificateTimestamp, entry cttypes.CertificateEntry) (SignatureInput, error) {
	signedData, err := SignedData(sct, entry)
	if err != nil {
		return SignatureInput{}, err
	}
	return MakeSignatureInput(signedData), nil
}
