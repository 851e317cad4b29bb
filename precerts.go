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
	"bytes"
	"encoding/asn1"
	"errors"
	"fmt"
)

var ErrReconstruction = errors.New("unable to reconstruct precertificate TBSCertificate")

func bitStringEqual(a, b *asn1.BitString) bool {
	return a.BitLength == b.BitLength && bytes.Equal(a.Bytes, b.Bytes)
}

// ValidatePrecert checks that precertBytes is a precertificate whose
// TBSCertificate matches tbsBytes, as required of the TBSCertificate that a
// log signs for a precertificate.
func ValidatePrecert(precertBytes []byte, tbsBytes []byte) error {
	precert, err := ParseCertificate(precertBytes)
	if err != nil {
		return fmt.Errorf("failed to parse pre-certificate: %w", err)
	}
	precertTBS, err := precert.ParseTBSCertificate()
	if err != nil {
		return fmt.Errorf("failed to parse pre-certificate TBS: %w", err)
	}
	tbs, err := ParseTBSCertificate(tbsBytes)
	if err != nil {
		return fmt.Errorf("failed to parse TBS: %w", err)
	}

	// Everything must be equal except:
	//  issuer
	//  Authority Key Identifier extension (both must have it OR neither can have it)
	//  CT poison extension (precert must have it, TBS must not have it)
	if precertTBS.Version != tbs.Version {
		return errors.New("version not equal")
	}
	if !bytes.Equal(precertTBS.SerialNumber.FullBytes, tbs.SerialNumber.FullBytes) {
		return errors.New("serial number not equal")
	}
	sameIssuer := bytes.Equal(precertTBS.Issuer.FullBytes, tbs.Issuer.FullBytes)
	if !bytes.Equal(precertTBS.SignatureAlgorithm.FullBytes, tbs.SignatureAlgorithm.FullBytes) {
		return errors.New("SignatureAlgorithm not equal")
	}
	if !bytes.Equal(precertTBS.Validity.FullBytes, tbs.Validity.FullBytes) {
		return errors.New("Validity not equal")
	}
	if !bytes.Equal(precertTBS.Subject.FullBytes, tbs.Subject.FullBytes) {
		return errors.New("Subject not equal")
	}
	if !bytes.Equal(precertTBS.PublicKey.FullBytes, tbs.PublicKey.FullBytes) {
		return errors.New("PublicKey not equal")
	}
	if !bitStringEqual(&precertTBS.UniqueId, &tbs.UniqueId) {
		return errors.New("UniqueId not equal")
	}
	if !bitStringEqual(&precertTBS.SubjectUniqueId, &tbs.SubjectUniqueId) {
		return errors.New("SubjectUniqueId not equal")
	}

	precertHasPoison := false
	tbsIndex := 0
	for precertIndex := range precertTBS.Extensions {
		precertExt := &precertTBS.Extensions[precertIndex]

		if precertExt.Id.Equal(oidExtensionCTPoison) {
			if !precertExt.Critical {
				return errors.New("pre-cert poison extension is not critical")
			}
			precertHasPoison = true
			continue
		}

		if tbsIndex >= len(tbs.Extensions) {
			return errors.New("pre-cert contains extension not in TBS")
		}
		tbsExt := &tbs.Extensions[tbsIndex]

		if !precertExt.Id.Equal(tbsExt.Id) {
			return fmt.Errorf("pre-cert and TBS contain different extensions (%v vs %v)", precertExt.Id, tbsExt.Id)
		}
		if precertExt.Critical != tbsExt.Critical {
			return fmt.Errorf("pre-cert and TBS %v extension differs in criticality", precertExt.Id)
		}
		if !precertExt.Id.Equal(oidExtensionAuthorityKeyId) || sameIssuer {
			if !bytes.Equal(precertExt.Value, tbsExt.Value) {
				return fmt.Errorf("pre-cert and TBS %v extension differs in value", precertExt.Id)
			}
		}

		tbsIndex++
	}
	if tbsIndex < len(tbs.Extensions) {
		return errors.New("TBS contains extension not in pre-cert")
	}
	if !precertHasPoison {
		return errors.New("pre-cert does not have poison extension")
	}

	return nil
}

// ReconstructPrecertTBS rebuilds the TBSCertificate of the precertificate
// from which the final certificate tbs was issued, by removing the embedded
// SCT list.  Every other field and extension is carried over byte for byte,
// and the result is re-encoded in DER into the returned TBS's Raw field.
func ReconstructPrecertTBS(tbs *TBSCertificate) (*TBSCertificate, error) {
	precertTBS := TBSCertificate{
		Version:            tbs.Version,
		SerialNumber:       tbs.SerialNumber,
		SignatureAlgorithm: tbs.SignatureAlgorithm,
		Issuer:             tbs.Issuer,
		Validity:           tbs.Validity,
		Subject:            tbs.Subject,
		PublicKey:          tbs.PublicKey,
		UniqueId:           tbs.UniqueId,
		SubjectUniqueId:    tbs.SubjectUniqueId,
	}

	for _, ext := range tbs.Extensions {
		if ext.Id.Equal(oidExtensionCTPoison) {
			return nil, fmt.Errorf("%w: certificate is already a precertificate", ErrReconstruction)
		}
		if !ext.Id.Equal(oidExtensionSCT) {
			precertTBS.Extensions = append(precertTBS.Extensions, ext)
		}
	}

	var err error
	precertTBS.Raw, err = asn1.Marshal(precertTBS)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReconstruction, err)
	}
	return &precertTBS, nil
}
