// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package ctpolicy

import (
	"fmt"
	"strings"

	"software.sslmate.com/src/sctverify"
	"software.sslmate.com/src/sctverify/cttypes"
)

// SCTResult is the outcome of evaluating a single SCT.  It is one of
// Valid, FailedVerification, NoVerifierFound, FutureTimestamp,
// LogServerUntrusted, or Exception.
type SCTResult interface {
	isSCTResult()
	String() string
}

// Valid means the SCT was issued by a trusted log within its validity
// window, and its signature verified.
type Valid struct{}

// FailedVerification means the SCT's signature does not match the entry.
type FailedVerification struct{}

// NoVerifierFound means the SCT's log is not in the registry.
type NoVerifierFound struct{}

// FutureTimestamp means the SCT is timestamped after the time of
// evaluation.  Both fields are milliseconds since the epoch.
type FutureTimestamp struct {
	Timestamp uint64
	Now       uint64
}

// LogServerUntrusted means the SCT is timestamped outside the window in
// which its log is trusted.  A zero ValidFrom or ValidUntil means the
// window is unbounded on that side.
type LogServerUntrusted struct {
	Timestamp  uint64
	ValidFrom  uint64
	ValidUntil uint64
}

type ExceptionKind uint8

const (
	// KindDecode: the SCT, or the channel which carried it, is malformed.
	KindDecode ExceptionKind = iota + 1
	// KindIssuer: the issuer needed for the PreCert entry is missing or malformed.
	KindIssuer
	// KindReconstruction: the precertificate TBSCertificate could not be rebuilt.
	KindReconstruction
	// KindCrypto: the log's key cannot verify the SCT's signature algorithm.
	KindCrypto
	// KindInternal: evaluation failed unexpectedly.
	KindInternal
)

func (kind ExceptionKind) String() string {
	switch kind {
	case KindDecode:
		return "decode"
	case KindIssuer:
		return "issuer"
	case KindReconstruction:
		return "reconstruction"
	case KindCrypto:
		return "crypto"
	case KindInternal:
		return "internal"
	default:
		return fmt.Sprintf("ExceptionKind(%d)", uint8(kind))
	}
}

// Exception means the SCT could not be evaluated.  It always counts as
// invalid.
type Exception struct {
	Kind ExceptionKind
	Err  error
}

func (Valid) isSCTResult()              {}
func (FailedVerification) isSCTResult() {}
func (NoVerifierFound) isSCTResult()    {}
func (FutureTimestamp) isSCTResult()    {}
func (LogServerUntrusted) isSCTResult() {}
func (Exception) isSCTResult()          {}

func (Valid) String() string              { return "valid" }
func (FailedVerification) String() string { return "signature verification failed" }
func (NoVerifierFound) String() string    { return "log not trusted" }

func (r FutureTimestamp) String() string {
	return fmt.Sprintf("timestamp %d is in the future (now %d)", r.Timestamp, r.Now)
}

func (r LogServerUntrusted) String() string {
	var window []string
	if r.ValidFrom != 0 {
		window = append(window, fmt.Sprintf("from %d", r.ValidFrom))
	}
	if r.ValidUntil != 0 {
		window = append(window, fmt.Sprintf("until %d", r.ValidUntil))
	}
	return fmt.Sprintf("timestamp %d is outside the log's trusted window (%s)", r.Timestamp, strings.Join(window, " "))
}

func (r Exception) String() string {
	return fmt.Sprintf("%s error: %s", r.Kind, r.Err)
}

func (r Exception) Error() string { return r.String() }
func (r Exception) Unwrap() error { return r.Err }

// Outcome records the evaluation of one SCT.  SCT is nil if the SCT, or
// the channel which carried it, could not be decoded.
type Outcome struct {
	Source   sctverify.Source
	Index    int
	SCT      *cttypes.SignedCertificateTimestamp
	Operator string
	Result   SCTResult
	// Counted is true if the SCT counted toward the policy thresholds.
	Counted bool
}

func (outcome *Outcome) Valid() bool {
	_, valid := outcome.Result.(Valid)
	return valid
}

func (outcome *Outcome) String() string {
	if outcome.SCT == nil {
		return fmt.Sprintf("%s SCT #%d: %s", outcome.Source, outcome.Index, outcome.Result)
	}
	return fmt.Sprintf("%s SCT #%d from log %s at %d: %s", outcome.Source, outcome.Index, outcome.SCT.ID, outcome.SCT.Timestamp, outcome.Result)
}

type Verdict uint8

const (
	Untrusted Verdict = iota
	Trusted
	// NotEnforced means the host is not subject to CT enforcement, so the
	// chain was not evaluated.
	NotEnforced
)

func (verdict Verdict) String() string {
	switch verdict {
	case Untrusted:
		return "untrusted"
	case Trusted:
		return "trusted"
	case NotEnforced:
		return "not enforced"
	default:
		return fmt.Sprintf("Verdict(%d)", uint8(verdict))
	}
}

// VerificationResult is the outcome of evaluating a certificate chain.
// Err is set when the chain itself was unusable, in which case Outcomes
// is empty.
type VerificationResult struct {
	Verdict           Verdict
	Outcomes          []Outcome
	ValidCount        int
	DistinctOperators int
	Err               error
}

// Trusted reports whether the connection may proceed: either the chain
// satisfied the policy or the host is not subject to enforcement.
func (result *VerificationResult) Trusted() bool {
	return result.Verdict == Trusted || result.Verdict == NotEnforced
}
