// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

// Package ctfixture creates CT logs, CAs, certificates with embedded SCTs,
// and OCSP responses for use in tests.
package ctfixture

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/ocsp"
	"software.sslmate.com/src/sctverify/ctcrypto"
	"software.sslmate.com/src/sctverify/cttypes"
	"software.sslmate.com/src/sctverify/tlstypes"
)

var (
	OIDExtensionSCT              = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 2}
	OIDExtensionCTPoison         = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 3}
	OIDExtKeyUsagePrecertSigning = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 4}
	OIDExtensionOCSPSCT          = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 4, 5}
)

// Log is an in-memory CT log which issues SCTs.
type Log struct {
	Signer    crypto.Signer
	Key       ctcrypto.PublicKey
	ID        cttypes.LogID
	Algorithm tlstypes.SignatureAlgorithm
}

func newLog(signer crypto.Signer, algorithm tlstypes.SignatureAlgorithm) (*Log, error) {
	der, err := x509.MarshalPKIXPublicKey(signer.Public())
	if err != nil {
		return nil, err
	}
	return &Log{
		Signer:    signer,
		Key:       der,
		ID:        cttypes.LogIDForKey(der),
		Algorithm: algorithm,
	}, nil
}

func NewECDSALog() (*Log, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return newLog(key, tlstypes.ECDSA)
}

func NewRSALog() (*Log, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	return newLog(key, tlstypes.RSA)
}

// Sign issues an SCT over entry with the given timestamp (milliseconds
// since the epoch).
func (l *Log) Sign(entry cttypes.CertificateEntry, timestamp uint64) (*cttypes.SignedCertificateTimestamp, error) {
	sct := &cttypes.SignedCertificateTimestamp{
		SCTVersion: cttypes.V1,
		ID:         l.ID,
		Timestamp:  timestamp,
		Extensions: cttypes.CTExtensions{},
		Signature: tlstypes.DigitallySigned{
			Algorithm: tlstypes.SignatureAndHashAlgorithm{Hash: tlstypes.SHA256, Signature: l.Algorithm},
		},
	}
	input, err := ctcrypto.SignatureInputForSCT(sct, entry)
	if err != nil {
		return nil, err
	}
	sct.Signature.Signature, err = l.Signer.Sign(rand.Reader, input[:], crypto.SHA256)
	if err != nil {
		return nil, fmt.Errorf("error signing SCT: %w", err)
	}
	return sct, nil
}

// CA is an in-memory certificate authority.
type CA struct {
	Key  *ecdsa.PrivateKey
	Cert *x509.Certificate
	DER  []byte

	serial int64
}

func NewCA(name string) (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             now.Add(-24 * time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	return &CA{Key: key, Cert: cert, DER: der, serial: 1}, nil
}

// IssuerKeyHash is the issuer_key_hash of precertificates issued by the CA.
func (ca *CA) IssuerKeyHash() [32]byte {
	return sha256.Sum256(ca.Cert.RawSubjectPublicKeyInfo)
}

// LeafTemplate returns a template for an end-entity certificate for host,
// carrying one extension beyond those Go emits for the template fields.
func (ca *CA) LeafTemplate(host string) (*x509.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	ca.serial++
	now := time.Now()
	return &x509.Certificate{
		SerialNumber:          big.NewInt(ca.serial),
		Subject:               pkix.Name{CommonName: host},
		DNSNames:              []string{host},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(90 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		PublicKey:             key.Public(),
		ExtraExtensions: []pkix.Extension{
			{Id: asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 55555, 1}, Value: []byte{0x05, 0x00}},
		},
	}, nil
}

func (ca *CA) issue(template *x509.Certificate, extra ...pkix.Extension) ([]byte, error) {
	t := *template
	t.ExtraExtensions = append(append([]pkix.Extension(nil), template.ExtraExtensions...), extra...)
	return x509.CreateCertificate(rand.Reader, &t, ca.Cert, template.PublicKey, ca.Key)
}

// Issue creates a certificate from template with no CT extensions.
func (ca *CA) Issue(template *x509.Certificate) ([]byte, error) {
	return ca.issue(template)
}

// IssuePrecert creates the precertificate for template, and returns it
// along with the entry that a log signs for it.
func (ca *CA) IssuePrecert(template *x509.Certificate) ([]byte, *cttypes.PrecertEntry, error) {
	precert, err := ca.issue(template, pkix.Extension{Id: OIDExtensionCTPoison, Critical: true, Value: []byte{0x05, 0x00}})
	if err != nil {
		return nil, nil, err
	}
	plain, err := ca.issue(template)
	if err != nil {
		return nil, nil, err
	}
	plainCert, err := x509.ParseCertificate(plain)
	if err != nil {
		return nil, nil, err
	}
	entry := &cttypes.PrecertEntry{
		PreCert: cttypes.PreCert{
			IssuerKeyHash:  ca.IssuerKeyHash(),
			TBSCertificate: plainCert.RawTBSCertificate,
		},
	}
	return precert, entry, nil
}

// IssueWithSCTs creates the final certificate for template with scts in
// its SCT list extension.
func (ca *CA) IssueWithSCTs(template *x509.Certificate, scts []*cttypes.SignedCertificateTimestamp) ([]byte, error) {
	ext, err := SCTListExtension(OIDExtensionSCT, scts)
	if err != nil {
		return nil, err
	}
	return ca.issue(template, ext)
}

// IssueEmbedded creates a certificate for host with an SCT embedded from
// each log, all issued at timestamp.  It returns the final certificate.
func (ca *CA) IssueEmbedded(host string, logs []*Log, timestamp uint64) ([]byte, error) {
	template, err := ca.LeafTemplate(host)
	if err != nil {
		return nil, err
	}
	_, entry, err := ca.IssuePrecert(template)
	if err != nil {
		return nil, err
	}
	var scts []*cttypes.SignedCertificateTimestamp
	for _, log := range logs {
		sct, err := log.Sign(entry, timestamp)
		if err != nil {
			return nil, err
		}
		scts = append(scts, sct)
	}
	return ca.IssueWithSCTs(template, scts)
}

// IssuePrecertSigner creates a Precertificate Signing Certificate issued
// by the CA.
func (ca *CA) IssuePrecertSigner() ([]byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	ca.serial++
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(ca.serial),
		Subject:               pkix.Name{CommonName: ca.Cert.Subject.CommonName + " Precertificate Signing"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		UnknownExtKeyUsage:    []asn1.ObjectIdentifier{OIDExtKeyUsagePrecertSigning},
		BasicConstraintsValid: true,
		IsCA:                  true,
		PublicKey:             key.Public(),
	}
	return ca.issue(template)
}

// SCTListExtension returns an extension with the given OID whose value is
// an OCTET STRING containing scts as a SignedCertificateTimestampList.
func SCTListExtension(id asn1.ObjectIdentifier, scts []*cttypes.SignedCertificateTimestamp) (pkix.Extension, error) {
	list, err := cttypes.MarshalSCTList(scts)
	if err != nil {
		return pkix.Extension{}, err
	}
	value, err := asn1.Marshal(list)
	if err != nil {
		return pkix.Extension{}, err
	}
	return pkix.Extension{Id: id, Value: value}, nil
}

// OCSPResponse creates a good OCSP response for leaf signed by the CA, with
// extensions added to its singleExtensions.
func (ca *CA) OCSPResponse(leaf []byte, extensions ...pkix.Extension) ([]byte, error) {
	cert, err := x509.ParseCertificate(leaf)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	template := ocsp.Response{
		Status:          ocsp.Good,
		SerialNumber:    cert.SerialNumber,
		ThisUpdate:      now.Add(-time.Hour),
		NextUpdate:      now.Add(24 * time.Hour),
		ExtraExtensions: extensions,
	}
	return ocsp.CreateResponse(ca.Cert, ca.Cert, template, ca.Key)
}

// OCSPResponseWithSCTs creates a good OCSP response for leaf carrying scts.
func (ca *CA) OCSPResponseWithSCTs(leaf []byte, scts []*cttypes.SignedCertificateTimestamp) ([]byte, error) {
	ext, err := SCTListExtension(OIDExtensionOCSPSCT, scts)
	if err != nil {
		return nil, err
	}
	return ca.OCSPResponse(leaf, ext)
}

// Millis converts t to the SCT timestamp representation.
func Millis(t time.Time) uint64 {
	return uint64(t.UnixMilli())
}
