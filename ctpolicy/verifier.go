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
	"crypto/tls"
	"crypto/x509"
	"fmt"
)

// Verifier enforces CT for the hosts selected by Hosts.
type Verifier struct {
	Evaluator *Evaluator
	Hosts     *HostPolicy
}

func (v *Verifier) Verify(input *Input) *VerificationResult {
	if input != nil && !v.Hosts.Enforced(input.Host) {
		return &VerificationResult{Verdict: NotEnforced}
	}
	return v.Evaluator.Evaluate(input)
}

type VerificationError struct {
	Host   string
	Result *VerificationResult
}

func (e *VerificationError) Error() string {
	if e.Result.Err != nil {
		return fmt.Sprintf("certificate for %s does not comply with CT policy: %s", e.Host, e.Result.Err)
	}
	return fmt.Sprintf("certificate for %s does not comply with CT policy: %d valid SCTs from %d operators", e.Host, e.Result.ValidCount, e.Result.DistinctOperators)
}

func (e *VerificationError) Unwrap() error {
	return e.Result.Err
}

// VerifyConnection can be used as tls.Config.VerifyConnection.  If the
// connection's chain was verified, the verified chain is evaluated, since
// it is guaranteed to include the leaf's issuer.
func (v *Verifier) VerifyConnection(state tls.ConnectionState) error {
	certs := state.PeerCertificates
	if len(state.VerifiedChains) > 0 {
		certs = state.VerifiedChains[0]
	}
	input := &Input{
		Host:         state.ServerName,
		Chain:        rawChain(certs),
		TLSSCTs:      state.SignedCertificateTimestamps,
		OCSPResponse: state.OCSPResponse,
	}
	if result := v.Verify(input); !result.Trusted() {
		return &VerificationError{Host: state.ServerName, Result: result}
	}
	return nil
}

func rawChain(certs []*x509.Certificate) [][]byte {
	chain := make([][]byte, len(certs))
	for i, cert := range certs {
		chain[i] = cert.Raw
	}
	return chain
}
