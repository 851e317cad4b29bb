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
	"software.sslmate.com/src/sctverify/cttypes"
)

const DefaultMinValidSCTs = 2

type Policy struct {
	// Minimum number of valid SCTs needed for a chain to be trusted.
	// Zero means DefaultMinValidSCTs.
	MinValidSCTs int

	// Minimum number of distinct operators among the logs which issued
	// the counted SCTs.  Zero disables the requirement.
	MinDistinctOperators int

	// If false, an SCT delivered more than once (same log ID, timestamp,
	// and signature) counts once toward the thresholds.
	CountDuplicates bool
}

func (policy *Policy) minValidSCTs() int {
	if policy.MinValidSCTs <= 0 {
		return DefaultMinValidSCTs
	}
	return policy.MinValidSCTs
}

// apply marks the valid outcomes which count toward the thresholds and
// fills in the result's counts and verdict.
func (policy *Policy) apply(result *VerificationResult) {
	var counted []*cttypes.SignedCertificateTimestamp
	operators := make(map[string]struct{})
	for i := range result.Outcomes {
		outcome := &result.Outcomes[i]
		if !outcome.Valid() {
			continue
		}
		if !policy.CountDuplicates && containsSCT(counted, outcome.SCT) {
			continue
		}
		outcome.Counted = true
		counted = append(counted, outcome.SCT)
		if outcome.Operator != "" {
			operators[outcome.Operator] = struct{}{}
		} else {
			operators["log "+outcome.SCT.ID.String()] = struct{}{}
		}
	}
	result.ValidCount = len(counted)
	result.DistinctOperators = len(operators)
	if result.ValidCount >= policy.minValidSCTs() && result.DistinctOperators >= policy.MinDistinctOperators {
		result.Verdict = Trusted
	} else {
		result.Verdict = Untrusted
	}
}

func containsSCT(scts []*cttypes.SignedCertificateTimestamp, sct *cttypes.SignedCertificateTimestamp) bool {
	for _, other := range scts {
		if other.SameAs(sct) {
			return true
		}
	}
	return false
}
