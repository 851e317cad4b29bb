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
	"crypto/sha256"
	"errors"
	"fmt"

	"software.sslmate.com/src/sctverify/cttypes"
)

var ErrMissingIssuer = errors.New("issuer certificate is not in the chain")

// IssuerKeyHash returns the SHA-256 hash of the public key of the CA which
// issued chain[0], which is the issuer_key_hash of a PreCert.  If chain[1]
// is a Precertificate Signing Certificate, the CA is chain[2].
func IssuerKeyHash(chain [][]byte) ([32]byte, error) {
	if len(chain) < 2 {
		return [32]byte{}, ErrMissingIssuer
	}
	issuer, err := parseChainTBS(chain[1])
	if err != nil {
		return [32]byte{}, fmt.Errorf("error parsing issuer: %w", err)
	}
	isPrecertSigner, err := issuer.IsPrecertSigningCert()
	if err != nil {
		return [32]byte{}, fmt.Errorf("error parsing issuer: %w", err)
	}
	if isPrecertSigner {
		if len(chain) < 3 {
			return [32]byte{}, fmt.Errorf("%w: chain[1] is a Precertificate Signing Certificate", ErrMissingIssuer)
		}
		issuer, err = parseChainTBS(chain[2])
		if err != nil {
			return [32]byte{}, fmt.Errorf("error parsing issuer of Precertificate Signing Certificate: %w", err)
		}
	}
	return sha256.Sum256(issuer.GetRawPublicKey()), nil
}

// PrecertEntry returns the PreCert entry that a log signed when issuing the
// SCTs embedded in chain[0].
func PrecertEntry(chain [][]byte) (*cttypes.PrecertEntry, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrMalformedCertificate)
	}
	tbs, err := parseChainTBS(chain[0])
	if err != nil {
		return nil, err
	}
	issuerKeyHash, err := IssuerKeyHash(chain)
	if err != nil {
		return nil, err
	}
	precertTBS, err := ReconstructPrecertTBS(tbs)
	if err != nil {
		return nil, err
	}
	return &cttypes.PrecertEntry{
		PreCert: cttypes.PreCert{
			IssuerKeyHash:  issuerKeyHash,
			TBSCertificate: cttypes.TBSCertificate(precertTBS.Raw),
		},
	}, nil
}

func parseChainTBS(certBytes []byte) (*TBSCertificate, error) {
	cert, err := ParseCertificate(certBytes)
	if err != nil {
		return nil, err
	}
	return cert.ParseTBSCertificate()
}
