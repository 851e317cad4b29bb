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
	"bytes"
	"crypto/tls"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"software.sslmate.com/src/sctverify"
	"software.sslmate.com/src/sctverify/ctcrypto"
	"software.sslmate.com/src/sctverify/cttypes"
	"software.sslmate.com/src/sctverify/internal/ctfixture"
	"software.sslmate.com/src/sctverify/logregistry"
	"software.sslmate.com/src/sctverify/tlstypes"
)

// testEnv has three registered logs, operated by "Operator A",
// "Operator B", and "Operator B", plus one unregistered log.
type testEnv struct {
	ca           *ctfixture.CA
	logs         []*ctfixture.Log
	unregistered *ctfixture.Log
	store        *logregistry.Store
	now          time.Time
	sctTime      uint64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ca, err := ctfixture.NewCA("Test CA")
	if err != nil {
		t.Fatal(err)
	}
	env := &testEnv{ca: ca, now: time.Now()}
	env.sctTime = ctfixture.Millis(env.now.Add(-time.Hour))
	for n := 0; n < 4; n++ {
		log, err := ctfixture.NewECDSALog()
		if err != nil {
			t.Fatal(err)
		}
		env.logs = append(env.logs, log)
	}
	env.unregistered = env.logs[3]
	env.logs = env.logs[:3]
	env.store = logregistry.NewStore(env.registry(t, nil))
	return env
}

// registry builds a registry of the three logs, applying modify to each
// entry if it is non-nil.
func (env *testEnv) registry(t *testing.T, modify func(int, *logregistry.Entry)) *logregistry.Registry {
	t.Helper()
	operators := []string{"Operator A", "Operator B", "Operator B"}
	var entries []logregistry.Entry
	for i, log := range env.logs {
		entry := logregistry.Entry{Key: log.Key, Operator: operators[i]}
		if modify != nil {
			modify(i, &entry)
		}
		entries = append(entries, entry)
	}
	registry, err := logregistry.New(entries)
	if err != nil {
		t.Fatal(err)
	}
	return registry
}

func (env *testEnv) evaluator(policy Policy) *Evaluator {
	return &Evaluator{
		Logs:   env.store,
		Policy: policy,
		Now:    func() time.Time { return env.now },
	}
}

// embedded issues a certificate with an SCT from each log embedded.  tamper,
// if non-nil, is applied to each SCT after signing.
func (env *testEnv) embedded(t *testing.T, logs []*ctfixture.Log, timestamp uint64, tamper func(int, *cttypes.SignedCertificateTimestamp)) [][]byte {
	t.Helper()
	template, err := env.ca.LeafTemplate("www.example.com")
	if err != nil {
		t.Fatal(err)
	}
	_, entry, err := env.ca.IssuePrecert(template)
	if err != nil {
		t.Fatal(err)
	}
	var scts []*cttypes.SignedCertificateTimestamp
	for i, log := range logs {
		sct, err := log.Sign(entry, timestamp)
		if err != nil {
			t.Fatal(err)
		}
		if tamper != nil {
			tamper(i, sct)
		}
		scts = append(scts, sct)
	}
	final, err := env.ca.IssueWithSCTs(template, scts)
	if err != nil {
		t.Fatal(err)
	}
	return [][]byte{final, env.ca.DER}
}

// plain issues a certificate without SCTs, and returns its chain and
// serialized SCTs for it from each log.
func (env *testEnv) plain(t *testing.T, logs []*ctfixture.Log) ([][]byte, []*cttypes.SignedCertificateTimestamp) {
	t.Helper()
	template, err := env.ca.LeafTemplate("www.example.com")
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := env.ca.Issue(template)
	if err != nil {
		t.Fatal(err)
	}
	var scts []*cttypes.SignedCertificateTimestamp
	for _, log := range logs {
		sct, err := log.Sign(&cttypes.X509Entry{Certificate: leaf}, env.sctTime)
		if err != nil {
			t.Fatal(err)
		}
		scts = append(scts, sct)
	}
	return [][]byte{leaf, env.ca.DER}, scts
}

func resultTypes(result *VerificationResult) []string {
	var types []string
	for _, outcome := range result.Outcomes {
		switch r := outcome.Result.(type) {
		case Valid:
			types = append(types, "valid")
		case FailedVerification:
			types = append(types, "failed")
		case NoVerifierFound:
			types = append(types, "noverifier")
		case FutureTimestamp:
			types = append(types, "future")
		case LogServerUntrusted:
			types = append(types, "untrusted")
		case Exception:
			types = append(types, "exception:"+r.Kind.String())
		default:
			types = append(types, "unknown")
		}
	}
	return types
}

func checkResult(t *testing.T, result *VerificationResult, verdict Verdict, validCount int, types ...string) {
	t.Helper()
	if result.Verdict != verdict {
		t.Errorf("verdict is %s; expected %s (err: %v)", result.Verdict, verdict, result.Err)
	}
	if result.ValidCount != validCount {
		t.Errorf("valid count is %d; expected %d", result.ValidCount, validCount)
	}
	if diff := cmp.Diff(types, resultTypes(result)); diff != "" {
		t.Errorf("wrong outcomes (-want +got):\n%s", diff)
	}
}

func TestNoSCTs(t *testing.T) {
	env := newTestEnv(t)
	chain, _ := env.plain(t, nil)
	result := env.evaluator(Policy{}).Evaluate(&Input{Chain: chain})
	if result.Verdict != Untrusted || !errors.Is(result.Err, ErrNoSCTs) || len(result.Outcomes) != 0 {
		t.Errorf("got verdict %s, err %v, %d outcomes", result.Verdict, result.Err, len(result.Outcomes))
	}
}

func TestTwoValidEmbeddedSCTs(t *testing.T) {
	env := newTestEnv(t)
	chain := env.embedded(t, env.logs[:2], env.sctTime, nil)
	result := env.evaluator(Policy{}).Evaluate(&Input{Chain: chain})
	checkResult(t, result, Trusted, 2, "valid", "valid")
	if result.Err != nil {
		t.Errorf("unexpected error: %s", result.Err)
	}
	for i, outcome := range result.Outcomes {
		if outcome.Source != sctverify.SourceEmbedded || outcome.Index != i || !outcome.Counted {
			t.Errorf("#%d: wrong outcome %+v", i, outcome)
		}
		if outcome.SCT == nil || outcome.SCT.ID != env.logs[i].ID {
			t.Errorf("#%d: wrong SCT", i)
		}
	}
	if result.DistinctOperators != 2 {
		t.Errorf("%d distinct operators; expected 2", result.DistinctOperators)
	}
}

func TestUnregisteredLogAndThreshold(t *testing.T) {
	env := newTestEnv(t)
	chain := env.embedded(t, []*ctfixture.Log{env.logs[0], env.unregistered, env.logs[1]}, env.sctTime, nil)

	result := env.evaluator(Policy{MinValidSCTs: 2}).Evaluate(&Input{Chain: chain})
	checkResult(t, result, Trusted, 2, "valid", "noverifier", "valid")

	result = env.evaluator(Policy{MinValidSCTs: 3}).Evaluate(&Input{Chain: chain})
	checkResult(t, result, Untrusted, 2, "valid", "noverifier", "valid")
}

func TestNoVerifierFoundIgnoresSignature(t *testing.T) {
	env := newTestEnv(t)
	chain := env.embedded(t, []*ctfixture.Log{env.unregistered}, env.sctTime, func(_ int, sct *cttypes.SignedCertificateTimestamp) {
		sct.Signature.Signature = []byte{1, 2, 3}
	})
	result := env.evaluator(Policy{}).Evaluate(&Input{Chain: chain})
	checkResult(t, result, Untrusted, 0, "noverifier")
}

func TestFlippedSignatureBit(t *testing.T) {
	env := newTestEnv(t)
	chain := env.embedded(t, env.logs, env.sctTime, func(i int, sct *cttypes.SignedCertificateTimestamp) {
		if i == 1 {
			sct.Signature.Signature[len(sct.Signature.Signature)/2] ^= 0x01
		}
	})
	result := env.evaluator(Policy{}).Evaluate(&Input{Chain: chain})
	checkResult(t, result, Trusted, 2, "valid", "failed", "valid")
}

func TestFutureTimestamp(t *testing.T) {
	env := newTestEnv(t)
	future := ctfixture.Millis(env.now.Add(time.Minute))
	chain := env.embedded(t, env.logs[:1], future, nil)
	result := env.evaluator(Policy{MinValidSCTs: 1}).Evaluate(&Input{Chain: chain})
	checkResult(t, result, Untrusted, 0, "future")
	want := FutureTimestamp{Timestamp: future, Now: ctfixture.Millis(env.now)}
	if diff := cmp.Diff(SCTResult(want), result.Outcomes[0].Result); diff != "" {
		t.Errorf("wrong result (-want +got):\n%s", diff)
	}
}

func TestLogValidityWindow(t *testing.T) {
	env := newTestEnv(t)
	chain := env.embedded(t, env.logs, env.sctTime, nil)
	retired := time.UnixMilli(int64(env.sctTime) - 1)
	notYet := time.UnixMilli(int64(env.sctTime) + 1)
	env.store.Replace(env.registry(t, func(i int, entry *logregistry.Entry) {
		switch i {
		case 0:
			entry.ValidUntil = retired
		case 1:
			entry.ValidFrom = notYet
		case 2:
			entry.ValidFrom = retired
			entry.ValidUntil = time.UnixMilli(int64(env.sctTime))
		}
	}))
	result := env.evaluator(Policy{MinValidSCTs: 1}).Evaluate(&Input{Chain: chain})
	checkResult(t, result, Trusted, 1, "untrusted", "untrusted", "valid")
	want := LogServerUntrusted{Timestamp: env.sctTime, ValidUntil: uint64(retired.UnixMilli())}
	if diff := cmp.Diff(SCTResult(want), result.Outcomes[0].Result); diff != "" {
		t.Errorf("wrong result (-want +got):\n%s", diff)
	}
}

func TestRegistryReplacement(t *testing.T) {
	env := newTestEnv(t)
	chain := env.embedded(t, env.logs[:2], env.sctTime, nil)
	evaluator := env.evaluator(Policy{})
	checkResult(t, evaluator.Evaluate(&Input{Chain: chain}), Trusted, 2, "valid", "valid")

	empty, err := logregistry.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	env.store.Replace(empty)
	checkResult(t, evaluator.Evaluate(&Input{Chain: chain}), Untrusted, 0, "noverifier", "noverifier")
}

func TestTLSExtensionSCTs(t *testing.T) {
	env := newTestEnv(t)
	chain, scts := env.plain(t, env.logs[:2])
	list, err := cttypes.MarshalSCTList(scts)
	if err != nil {
		t.Fatal(err)
	}
	result := env.evaluator(Policy{}).Evaluate(&Input{Chain: chain, TLSExtension: list})
	checkResult(t, result, Trusted, 2, "valid", "valid")
	for i, outcome := range result.Outcomes {
		if outcome.Source != sctverify.SourceTLSExtension || outcome.Index != i {
			t.Errorf("#%d: wrong source %s or index %d", i, outcome.Source, outcome.Index)
		}
	}

	var split [][]byte
	for _, sct := range scts {
		raw, err := sct.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		split = append(split, raw)
	}
	result = env.evaluator(Policy{}).Evaluate(&Input{Chain: chain, TLSSCTs: split})
	checkResult(t, result, Trusted, 2, "valid", "valid")
}

func TestOCSPSCTs(t *testing.T) {
	env := newTestEnv(t)
	chain, scts := env.plain(t, env.logs[:2])
	response, err := env.ca.OCSPResponseWithSCTs(chain[0], scts)
	if err != nil {
		t.Fatal(err)
	}
	result := env.evaluator(Policy{}).Evaluate(&Input{Chain: chain, OCSPResponse: response})
	checkResult(t, result, Trusted, 2, "valid", "valid")
	if result.Outcomes[0].Source != sctverify.SourceOCSP {
		t.Errorf("wrong source %s", result.Outcomes[0].Source)
	}
}

func TestAllChannels(t *testing.T) {
	env := newTestEnv(t)
	chain := env.embedded(t, env.logs[:1], env.sctTime, nil)
	tlsSCT, err := env.logs[1].Sign(&cttypes.X509Entry{Certificate: chain[0]}, env.sctTime)
	if err != nil {
		t.Fatal(err)
	}
	tlsList, err := cttypes.MarshalSCTList([]*cttypes.SignedCertificateTimestamp{tlsSCT})
	if err != nil {
		t.Fatal(err)
	}
	ocspSCT, err := env.logs[2].Sign(&cttypes.X509Entry{Certificate: chain[0]}, env.sctTime)
	if err != nil {
		t.Fatal(err)
	}
	response, err := env.ca.OCSPResponseWithSCTs(chain[0], []*cttypes.SignedCertificateTimestamp{ocspSCT})
	if err != nil {
		t.Fatal(err)
	}
	result := env.evaluator(Policy{MinValidSCTs: 3}).Evaluate(&Input{Chain: chain, TLSExtension: tlsList, OCSPResponse: response})
	checkResult(t, result, Trusted, 3, "valid", "valid", "valid")
	sources := []sctverify.Source{sctverify.SourceEmbedded, sctverify.SourceTLSExtension, sctverify.SourceOCSP}
	for i, outcome := range result.Outcomes {
		if outcome.Source != sources[i] || outcome.Index != 0 {
			t.Errorf("#%d: wrong source %s or index %d", i, outcome.Source, outcome.Index)
		}
	}
}

func TestCorruptChannel(t *testing.T) {
	env := newTestEnv(t)
	chain := env.embedded(t, env.logs[:2], env.sctTime, nil)
	result := env.evaluator(Policy{}).Evaluate(&Input{
		Chain:        chain,
		TLSExtension: []byte{0x00, 0x05, 0x00},
		OCSPResponse: []byte{0x30, 0x03, 0x0a, 0x01},
	})
	checkResult(t, result, Trusted, 2, "valid", "valid", "exception:decode", "exception:decode")
	if !errors.Is(result.Outcomes[2].Result.(Exception), sctverify.ErrMalformedSCTList) {
		t.Errorf("TLS exception does not wrap ErrMalformedSCTList: %v", result.Outcomes[2].Result)
	}
	if !errors.Is(result.Outcomes[3].Result.(Exception), sctverify.ErrMalformedOCSPResponse) {
		t.Errorf("OCSP exception does not wrap ErrMalformedOCSPResponse: %v", result.Outcomes[3].Result)
	}
	if result.Outcomes[2].SCT != nil || result.Outcomes[2].Source != sctverify.SourceTLSExtension {
		t.Errorf("wrong TLS outcome %+v", result.Outcomes[2])
	}
}

func TestCorruptTLSExtensionKeepsSplitSCTs(t *testing.T) {
	env := newTestEnv(t)
	chain, scts := env.plain(t, env.logs[:2])
	var split [][]byte
	for _, sct := range scts {
		raw, err := sct.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		split = append(split, raw)
	}
	result := env.evaluator(Policy{}).Evaluate(&Input{
		Chain:        chain,
		TLSExtension: []byte{0x00, 0x05, 0x00},
		TLSSCTs:      split,
	})
	checkResult(t, result, Trusted, 2, "exception:decode", "valid", "valid")
	for i, outcome := range result.Outcomes {
		if outcome.Source != sctverify.SourceTLSExtension || outcome.Index != i {
			t.Errorf("#%d: wrong source %s or index %d", i, outcome.Source, outcome.Index)
		}
	}
}

func TestEvaluateNil(t *testing.T) {
	env := newTestEnv(t)
	if result := env.evaluator(Policy{}).Evaluate(nil); result.Verdict != Untrusted || !errors.Is(result.Err, ErrEmptyChain) {
		t.Errorf("nil input: got verdict %s, err %v", result.Verdict, result.Err)
	}
	var evaluator *Evaluator
	if result := evaluator.Evaluate(&Input{}); result.Verdict != Untrusted || !errors.Is(result.Err, ErrNoRegistry) {
		t.Errorf("nil Evaluator: got verdict %s, err %v", result.Verdict, result.Err)
	}
	verifier := new(Verifier)
	chain, _ := env.plain(t, nil)
	if result := verifier.Verify(&Input{Host: "www.example.com", Chain: chain}); result.Verdict != Untrusted || !errors.Is(result.Err, ErrNoRegistry) {
		t.Errorf("Verifier without Evaluator: got verdict %s, err %v", result.Verdict, result.Err)
	}
	if err := verifier.VerifyConnection(tls.ConnectionState{}); !errors.Is(err, ErrNoRegistry) {
		t.Errorf("VerifyConnection without Evaluator: got error %v", err)
	}
}

func TestMalformedSCT(t *testing.T) {
	env := newTestEnv(t)
	chain, scts := env.plain(t, env.logs[:1])
	raw, err := scts[0].Bytes()
	if err != nil {
		t.Fatal(err)
	}
	badVersion := bytes.Clone(raw)
	badVersion[0] = 1
	result := env.evaluator(Policy{MinValidSCTs: 1}).Evaluate(&Input{
		Chain:   chain,
		TLSSCTs: [][]byte{{0x00}, badVersion, raw, append(bytes.Clone(raw), 0)},
	})
	checkResult(t, result, Trusted, 1, "exception:decode", "exception:decode", "valid", "exception:decode")
}

func TestAlgorithmMismatch(t *testing.T) {
	env := newTestEnv(t)
	chain := env.embedded(t, env.logs[:2], env.sctTime, func(i int, sct *cttypes.SignedCertificateTimestamp) {
		if i == 0 {
			sct.Signature.Algorithm.Signature = tlstypes.RSA
		}
	})
	result := env.evaluator(Policy{}).Evaluate(&Input{Chain: chain})
	checkResult(t, result, Untrusted, 1, "exception:crypto", "valid")
	if !errors.Is(result.Outcomes[0].Result.(Exception), ctcrypto.ErrAlgorithmMismatch) {
		t.Errorf("wrong exception %v", result.Outcomes[0].Result)
	}
}

func TestMissingIssuer(t *testing.T) {
	env := newTestEnv(t)
	chain := env.embedded(t, []*ctfixture.Log{env.logs[0], env.unregistered}, env.sctTime, nil)
	result := env.evaluator(Policy{}).Evaluate(&Input{Chain: chain[:1]})
	checkResult(t, result, Untrusted, 0, "exception:issuer", "noverifier")
	if !errors.Is(result.Outcomes[0].Result.(Exception), sctverify.ErrMissingIssuer) {
		t.Errorf("wrong exception %v", result.Outcomes[0].Result)
	}

	// A TLS SCT does not need the issuer.
	tlsSCT, err := env.logs[1].Sign(&cttypes.X509Entry{Certificate: chain[0]}, env.sctTime)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := tlsSCT.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	result = env.evaluator(Policy{MinValidSCTs: 1}).Evaluate(&Input{Chain: chain[:1], TLSSCTs: [][]byte{raw}})
	checkResult(t, result, Trusted, 1, "exception:issuer", "noverifier", "valid")
}

func TestWrongIssuer(t *testing.T) {
	env := newTestEnv(t)
	other, err := ctfixture.NewCA("Other CA")
	if err != nil {
		t.Fatal(err)
	}
	chain := env.embedded(t, env.logs[:2], env.sctTime, nil)
	chain[1] = other.DER
	result := env.evaluator(Policy{}).Evaluate(&Input{Chain: chain})
	checkResult(t, result, Untrusted, 0, "failed", "failed")
}

func TestInvalidChains(t *testing.T) {
	env := newTestEnv(t)
	template, err := env.ca.LeafTemplate("www.example.com")
	if err != nil {
		t.Fatal(err)
	}
	precert, _, err := env.ca.IssuePrecert(template)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		chain [][]byte
		err   error
	}{
		{nil, ErrEmptyChain},
		{[][]byte{}, ErrEmptyChain},
		{[][]byte{{0x30, 0x00}}, ErrMalformedChain},
		{[][]byte{[]byte("not a certificate")}, ErrMalformedChain},
		{[][]byte{env.ca.DER}, ErrNotEndEntity},
		{[][]byte{precert, env.ca.DER}, ErrNotEndEntity},
	}
	for i, test := range tests {
		result := env.evaluator(Policy{}).Evaluate(&Input{Chain: test.chain})
		if result.Verdict != Untrusted || !errors.Is(result.Err, test.err) || len(result.Outcomes) != 0 {
			t.Errorf("#%d: got verdict %s, err %v, %d outcomes", i, result.Verdict, result.Err, len(result.Outcomes))
		}
	}

	result := (&Evaluator{}).Evaluate(&Input{Chain: [][]byte{env.ca.DER}})
	if !errors.Is(result.Err, ErrNoRegistry) {
		t.Errorf("evaluator without registry: got err %v", result.Err)
	}
}

func TestDuplicateSCTs(t *testing.T) {
	env := newTestEnv(t)
	chain, scts := env.plain(t, env.logs[:1])
	raw, err := scts[0].Bytes()
	if err != nil {
		t.Fatal(err)
	}
	response, err := env.ca.OCSPResponseWithSCTs(chain[0], scts)
	if err != nil {
		t.Fatal(err)
	}
	input := &Input{Chain: chain, TLSSCTs: [][]byte{raw}, OCSPResponse: response}

	result := env.evaluator(Policy{}).Evaluate(input)
	checkResult(t, result, Untrusted, 1, "valid", "valid")
	if !result.Outcomes[0].Counted || result.Outcomes[1].Counted {
		t.Errorf("wrong outcomes counted: %v, %v", result.Outcomes[0].Counted, result.Outcomes[1].Counted)
	}

	result = env.evaluator(Policy{CountDuplicates: true}).Evaluate(input)
	checkResult(t, result, Trusted, 2, "valid", "valid")
}

func TestDistinctOperators(t *testing.T) {
	env := newTestEnv(t)
	sameOperator := env.embedded(t, env.logs[1:], env.sctTime, nil)
	twoOperators := env.embedded(t, env.logs[:2], env.sctTime, nil)

	result := env.evaluator(Policy{}).Evaluate(&Input{Chain: sameOperator})
	checkResult(t, result, Trusted, 2, "valid", "valid")
	if result.DistinctOperators != 1 {
		t.Errorf("%d distinct operators; expected 1", result.DistinctOperators)
	}

	result = env.evaluator(Policy{MinDistinctOperators: 2}).Evaluate(&Input{Chain: sameOperator})
	checkResult(t, result, Untrusted, 2, "valid", "valid")

	result = env.evaluator(Policy{MinDistinctOperators: 2}).Evaluate(&Input{Chain: twoOperators})
	checkResult(t, result, Trusted, 2, "valid", "valid")
}

var equateErrors = cmp.Comparer(func(a, b error) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Error() == b.Error()
})

func TestEvaluateIdempotent(t *testing.T) {
	env := newTestEnv(t)
	chain := env.embedded(t, []*ctfixture.Log{env.logs[0], env.unregistered, env.logs[1]}, env.sctTime, func(i int, sct *cttypes.SignedCertificateTimestamp) {
		if i == 2 {
			sct.Signature.Signature[0] ^= 0x80
		}
	})
	input := &Input{Chain: chain, TLSSCTs: [][]byte{{0xff}}}
	evaluator := env.evaluator(Policy{})
	first := evaluator.Evaluate(input)
	second := evaluator.Evaluate(input)
	if diff := cmp.Diff(first, second, equateErrors); diff != "" {
		t.Errorf("results differ (-first +second):\n%s", diff)
	}
	checkResult(t, first, Untrusted, 1, "valid", "noverifier", "failed", "exception:decode")
}

func TestEvaluateNowSampledOnce(t *testing.T) {
	env := newTestEnv(t)
	chain := env.embedded(t, env.logs[:2], env.sctTime, nil)
	calls := 0
	evaluator := &Evaluator{
		Logs: env.store,
		Now: func() time.Time {
			calls++
			return env.now
		},
	}
	evaluator.Evaluate(&Input{Chain: chain})
	if calls != 1 {
		t.Errorf("Now called %d times", calls)
	}
}
