// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

// Package ctpolicy decides whether a certificate chain carries enough valid
// Signed Certificate Timestamps from trusted logs.
package ctpolicy

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"software.sslmate.com/src/sctverify"
	"software.sslmate.com/src/sctverify/cttypes"
	"software.sslmate.com/src/sctverify/logregistry"
)

var (
	ErrEmptyChain     = errors.New("certificate chain is empty")
	ErrNotEndEntity   = errors.New("leaf is not an end-entity certificate")
	ErrNoSCTs         = errors.New("no SCTs found")
	ErrNoRegistry     = errors.New("no log registry configured")
	ErrMalformedChain = errors.New("malformed certificate chain")
)

// Input is everything known about a server's certificate.
type Input struct {
	// Host is the name the client connected to.  It is only consulted
	// by Verifier.
	Host string

	// Chain is ordered leaf first, DER-encoded.  chain[1] should be the
	// leaf's issuer if the leaf has embedded SCTs.
	Chain [][]byte

	// TLSExtension is the payload of the signed_certificate_timestamp
	// TLS extension, a serialized SignedCertificateTimestampList.
	TLSExtension []byte

	// TLSSCTs are serialized SCTs from the TLS extension which have
	// already been split out of their list, as in tls.ConnectionState.
	TLSSCTs [][]byte

	// OCSPResponse is a DER-encoded OCSP response for the leaf.
	OCSPResponse []byte
}

type Evaluator struct {
	Logs   *logregistry.Store
	Policy Policy

	// Now returns the current time.  If nil, time.Now is used.
	Now func() time.Time

	// Logger receives a line for every SCT evaluated.  If nil, nothing is
	// logged.
	Logger *log.Logger
}

func (e *Evaluator) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}

func (e *Evaluator) now() uint64 {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return uint64(max(now().UnixMilli(), 0))
}

// candidate is an SCT, or a channel which failed to decode.  index is
// the SCT's position within its channel.
type candidate struct {
	source sctverify.Source
	index  int
	raw    []byte
	err    error
}

type candidateList []candidate

// next returns the index of the next candidate from source.
func (c candidateList) next(source sctverify.Source) int {
	n := 0
	for i := range c {
		if c[i].source == source {
			n++
		}
	}
	return n
}

func (c candidateList) collect(source sctverify.Source, scts [][]byte, err error) candidateList {
	index := c.next(source)
	if err != nil {
		return append(c, candidate{source: source, index: index, err: err})
	}
	for i, raw := range scts {
		c = append(c, candidate{source: source, index: index + i, raw: raw})
	}
	return c
}

// Evaluate extracts the SCTs from every channel in input, evaluates each
// one against the current registry, and applies the policy.  The
// registry snapshot and the current time are sampled once per call.
// A nil Evaluator or input yields an Untrusted result, never a panic.
func (e *Evaluator) Evaluate(input *Input) *VerificationResult {
	result := new(VerificationResult)

	if e == nil || e.Logs == nil {
		result.Err = ErrNoRegistry
		return result
	}
	now := e.now()
	registry := e.Logs.Registry()

	if input == nil || len(input.Chain) == 0 {
		result.Err = ErrEmptyChain
		return result
	}
	leaf, err := sctverify.ParseCertificate(input.Chain[0])
	if err != nil {
		result.Err = fmt.Errorf("%w: error parsing leaf: %w", ErrMalformedChain, err)
		return result
	}
	leafTBS, err := leaf.ParseTBSCertificate()
	if err != nil {
		result.Err = fmt.Errorf("%w: error parsing leaf: %w", ErrMalformedChain, err)
		return result
	}
	if isCA, err := leafTBS.IsCA(); err != nil {
		result.Err = fmt.Errorf("%w: error parsing leaf: %w", ErrMalformedChain, err)
		return result
	} else if isCA {
		result.Err = fmt.Errorf("%w: leaf is a CA certificate", ErrNotEndEntity)
		return result
	}
	if leafTBS.IsPrecert() {
		result.Err = fmt.Errorf("%w: leaf is a precertificate", ErrNotEndEntity)
		return result
	}

	var candidates candidateList
	embedded, err := sctverify.ExtractEmbeddedSCTs(leafTBS)
	candidates = candidates.collect(sctverify.SourceEmbedded, embedded, err)

	tlsSCTs, err := sctverify.ExtractTLSSCTs(input.TLSExtension)
	candidates = candidates.collect(sctverify.SourceTLSExtension, tlsSCTs, err)
	candidates = candidates.collect(sctverify.SourceTLSExtension, input.TLSSCTs, nil)

	ocspSCTs, err := sctverify.ExtractOCSPSCTs(input.OCSPResponse)
	candidates = candidates.collect(sctverify.SourceOCSP, ocspSCTs, err)

	if len(candidates) == 0 {
		result.Err = ErrNoSCTs
		return result
	}

	precertEntry := sync.OnceValues(func() (cttypes.CertificateEntry, error) {
		return sctverify.PrecertEntry(input.Chain)
	})
	x509Entry := &cttypes.X509Entry{Certificate: input.Chain[0]}

	result.Outcomes = make([]Outcome, len(candidates))
	for i, c := range candidates {
		outcome := &result.Outcomes[i]
		outcome.Source = c.source
		outcome.Index = c.index
		if c.err != nil {
			outcome.Result = Exception{Kind: KindDecode, Err: c.err}
		} else if c.source == sctverify.SourceEmbedded {
			e.evaluateSCT(outcome, registry, now, c.raw, precertEntry)
		} else {
			e.evaluateSCT(outcome, registry, now, c.raw, func() (cttypes.CertificateEntry, error) { return x509Entry, nil })
		}
		e.logf("%s", outcome)
	}

	e.Policy.apply(result)
	e.logf("%d valid SCTs from %d operators: %s", result.ValidCount, result.DistinctOperators, result.Verdict)
	return result
}

func entryExceptionKind(err error) ExceptionKind {
	if errors.Is(err, sctverify.ErrReconstruction) {
		return KindReconstruction
	}
	return KindIssuer
}

// evaluateSCT fills in outcome for a single serialized SCT.  The checks
// are made in order: decoding, log lookup, timestamp against now,
// timestamp against the log's window, and finally the signature.
func (e *Evaluator) evaluateSCT(outcome *Outcome, registry *logregistry.Registry, now uint64, raw []byte, entry func() (cttypes.CertificateEntry, error)) {
	defer func() {
		if r := recover(); r != nil {
			outcome.Result = Exception{Kind: KindInternal, Err: fmt.Errorf("panic while evaluating SCT: %v", r)}
		}
	}()

	sct, err := cttypes.ParseSignedCertificateTimestamp(raw)
	if err != nil {
		outcome.Result = Exception{Kind: KindDecode, Err: err}
		return
	}
	outcome.SCT = sct

	info, ok := registry.Lookup(sct.ID)
	if !ok {
		outcome.Result = NoVerifierFound{}
		return
	}
	outcome.Operator = info.Operator()

	if sct.Timestamp > now {
		outcome.Result = FutureTimestamp{Timestamp: sct.Timestamp, Now: now}
		return
	}
	validFrom, hasFrom := info.ValidFrom()
	validUntil, hasUntil := info.ValidUntil()
	if (hasFrom && sct.Timestamp < validFrom) || (hasUntil && sct.Timestamp > validUntil) {
		outcome.Result = LogServerUntrusted{Timestamp: sct.Timestamp, ValidFrom: validFrom, ValidUntil: validUntil}
		return
	}

	certEntry, err := entry()
	if err != nil {
		outcome.Result = Exception{Kind: entryExceptionKind(err), Err: err}
		return
	}
	verified, err := info.Verifier().Verify(sct, certEntry)
	if err != nil {
		outcome.Result = Exception{Kind: KindCrypto, Err: err}
	} else if !verified {
		outcome.Result = FailedVerification{}
	} else {
		outcome.Result = Valid{}
	}
}
