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
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"

	"software.sslmate.com/src/sctverify/cttypes"
	"software.sslmate.com/src/sctverify/tlstypes"
)

var (
	ErrAlgorithmMismatch  = errors.New("signature algorithm does not match log key")
	ErrUnsupportedHash    = errors.New("unsupported hash algorithm (only SHA-256 is allowed in CT)")
	ErrUnsupportedKeyType = errors.New("unsupported key type")
)

// Verifier checks SCT signatures made by a single log.  It is safe for
// concurrent use.
type Verifier struct {
	key       crypto.PublicKey
	algorithm KeyAlgorithm
}

func NewVerifier(key PublicKey) (*Verifier, error) {
	parsedKey, algorithm, err := key.Parse()
	if err != nil {
		return nil, err
	}
	return &Verifier{key: parsedKey, algorithm: algorithm}, nil
}

func (v *Verifier) Algorithm() KeyAlgorithm {
	return v.algorithm
}

// VerifySignature reports whether signature is a valid signature by the
// log over input.  An incorrect signature yields false with a nil error;
// an error is returned only when the signature cannot possibly have been
// made by this log's key.
func (v *Verifier) VerifySignature(input SignatureInput, signature tlstypes.DigitallySigned) (bool, error) {
	if signature.Algorithm.Signature != v.algorithm.SignatureAlgorithm() {
		return false, fmt.Errorf("%w: log key is %v but signature is %v", ErrAlgorithmMismatch, v.algorithm, signature.Algorithm.Signature)
	}
	if signature.Algorithm.Hash != tlstypes.SHA256 {
		return false, fmt.Errorf("%w: %v", ErrUnsupportedHash, signature.Algorithm.Hash)
	}
	switch key := v.key.(type) {
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(key, crypto.SHA256, input[:], signature.Signature) == nil, nil
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(key, input[:], signature.Signature), nil
	default:
		return false, fmt.Errorf("%w %T", ErrUnsupportedKeyType, key)
	}
}

// Verify reports whether sct carries a valid signature by the log over entry.
func (v *Verifier) Verify(sct *cttypes.SignedCertificateTimestamp, entry cttypes.CertificateEntry) (bool, error) {
	input, err := SignatureInputForSCT(sct, entry)
	if err != nil {
		return false, fmt.Errorf("error building signed data: %w", err)
	}
	return v.VerifySignature(input, sct.Signature)
}
