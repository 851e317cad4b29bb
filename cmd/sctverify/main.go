// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package main

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/pem"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"software.sslmate.com/src/sctverify"
	"software.sslmate.com/src/sctverify/ctpolicy"
	"software.sslmate.com/src/sctverify/logregistry"
)

var programName = os.Args[0]
var Version = "unknown"
var Source = "unknown"

const defaultLogList = "https://www.gstatic.com/ct/log_list/v3/log_list.json"

func sctverifyVersion() (string, string) {
	if buildinfo, ok := debug.ReadBuildInfo(); ok && strings.HasPrefix(buildinfo.Main.Version, "v") {
		return strings.TrimPrefix(buildinfo.Main.Version, "v"), buildinfo.Main.Path
	} else {
		return Version, Source
	}
}

func defaultLogListSource() string {
	if envVar := os.Getenv("SCTVERIFY_LOG_LIST"); envVar != "" {
		return envVar
	} else {
		return defaultLogList
	}
}

func readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	} else {
		return os.ReadFile(path)
	}
}

// parseChain returns the DER of every CERTIFICATE block in pemBytes, in
// order.
func parseChain(pemBytes []byte) ([][]byte, error) {
	var chain [][]byte
	for {
		var block *pem.Block
		block, pemBytes = pem.Decode(pemBytes)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("PEM block type is %q, expected CERTIFICATE", block.Type)
		}
		chain = append(chain, block.Bytes)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no PEM data found")
	}
	return chain, nil
}

// computeTBSHash returns the SHA-256 hash of the TBSCertificate of the
// precertificate corresponding to certDER.
func computeTBSHash(certDER []byte) ([32]byte, error) {
	cert, err := sctverify.ParseCertificate(certDER)
	if err != nil {
		return [32]byte{}, fmt.Errorf("error parsing certificate: %w", err)
	}
	tbs, err := cert.ParseTBSCertificate()
	if err != nil {
		return [32]byte{}, fmt.Errorf("error parsing certificate: %w", err)
	}
	precertTBS, err := sctverify.ReconstructPrecertTBS(tbs)
	if err != nil {
		return [32]byte{}, fmt.Errorf("error reconstructing precertificate TBSCertificate: %w", err)
	}
	return sha256.Sum256(precertTBS.Raw), nil
}

func readHostList(path string) (ctpolicy.HostList, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ctpolicy.ParseHostList(file)
}

// connect performs a TLS handshake with address and returns what the
// server presented.  The chain is verified against the system roots so
// that it includes the leaf's issuer.
func connect(ctx context.Context, address string, serverName string) (*ctpolicy.Input, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 30 * time.Second},
		Config:    &tls.Config{ServerName: serverName},
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	state := conn.(*tls.Conn).ConnectionState()

	certs := state.PeerCertificates
	if len(state.VerifiedChains) > 0 {
		certs = state.VerifiedChains[0]
	}
	input := &ctpolicy.Input{
		Host:         state.ServerName,
		TLSSCTs:      state.SignedCertificateTimestamps,
		OCSPResponse: state.OCSPResponse,
	}
	for _, cert := range certs {
		input.Chain = append(input.Chain, cert.Raw)
	}
	return input, nil
}

func printResult(w io.Writer, input *ctpolicy.Input, result *ctpolicy.VerificationResult) {
	if len(input.Chain) > 0 {
		fmt.Fprintf(w, "Certificate: %s\n", sctverify.Fingerprint(input.Chain[0]))
	}
	for i := range result.Outcomes {
		outcome := &result.Outcomes[i]
		fmt.Fprintf(w, "  %s\n", outcome)
	}
	if result.Err != nil {
		fmt.Fprintf(w, "Error: %s\n", result.Err)
	}
	if result.Verdict == ctpolicy.NotEnforced {
		fmt.Fprintf(w, "Verdict: %s\n", result.Verdict)
	} else {
		fmt.Fprintf(w, "Verdict: %s (%d valid SCTs from %d operators)\n", result.Verdict, result.ValidCount, result.DistinctOperators)
	}
}

type options struct {
	logList         string
	mozilla         string
	minSCTs         int
	minOperators    int
	countDuplicates bool
	tlsSCTs         string
	ocsp            string
	connect         string
	host            string
	include         string
	exclude         string
	printhash       bool
	verbose         bool
	version         bool
}

func main() {
	version, source := sctverifyVersion()

	var flags options

	flag.StringVar(&flags.logList, "loglist", defaultLogListSource(), "File path or https URL of CT log list in Google's v3 format")
	flag.StringVar(&flags.mozilla, "mozilla", "", "File path or https URL of Mozilla's CTKnownLogs.h to use as an additional log list")
	flag.IntVar(&flags.minSCTs, "min_scts", ctpolicy.DefaultMinValidSCTs, "Minimum number of valid SCTs required")
	flag.IntVar(&flags.minOperators, "min_operators", 0, "Minimum number of distinct log operators required")
	flag.BoolVar(&flags.countDuplicates, "count_duplicates", false, "Count an SCT delivered through more than one channel more than once")
	flag.StringVar(&flags.tlsSCTs, "tls_scts", "", "File containing the payload of the TLS signed_certificate_timestamp extension")
	flag.StringVar(&flags.ocsp, "ocsp", "", "File containing a DER-encoded OCSP response for the certificate")
	flag.StringVar(&flags.connect, "connect", "", "Connect to HOST:PORT and verify the certificate it presents")
	flag.StringVar(&flags.host, "host", "", "Host name to check against -include and -exclude (default: host from -connect)")
	flag.StringVar(&flags.include, "include", "", "File listing the hosts which must comply with CT policy (default: all hosts)")
	flag.StringVar(&flags.exclude, "exclude", "", "File listing the hosts exempt from CT policy")
	flag.BoolVar(&flags.printhash, "printhash", false, "Instead of verifying the chain, print the hash of the leaf's precertificate TBSCertificate")
	flag.BoolVar(&flags.verbose, "verbose", false, "Log every step")
	flag.BoolVar(&flags.version, "version", false, "Print version and exit")
	flag.Parse()

	if flags.version {
		fmt.Fprintf(os.Stdout, "sctverify version %s (%s)\n", version, source)
		os.Exit(0)
	}

	args := flag.Args()
	if (flags.connect == "" && len(args) != 1) || (flags.connect != "" && len(args) != 0) {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] -|CHAINFILE\n", programName)
		fmt.Fprintf(os.Stderr, "       %s [options] -connect HOST:PORT\n", programName)
		fmt.Fprintf(os.Stderr, "Purpose: check that a certificate chain carries enough valid Signed Certificate Timestamps.\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if flags.printhash {
		if flags.connect != "" {
			fmt.Fprintf(os.Stderr, "%s: -printhash cannot be used with -connect\n", programName)
			os.Exit(2)
		}
		pemBytes, err := readFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: error reading certificate: %s\n", programName, err)
			os.Exit(1)
		}
		chain, err := parseChain(pemBytes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", programName, args[0], err)
			os.Exit(1)
		}
		tbsHash, err := computeTBSHash(chain[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", programName, args[0], err)
			os.Exit(1)
		}
		fmt.Println(hex.EncodeToString(tbsHash[:]))
		os.Exit(0)
	}

	os.Exit(run(&flags, args))
}

// run verifies the chain named by args, or the one presented by
// flags.connect, and returns the exit status.
func run(flags *options, args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logger *log.Logger
	if flags.verbose {
		logger = log.New(os.Stderr, programName+": ", 0)
	}

	hosts := new(ctpolicy.HostPolicy)
	if flags.include != "" {
		list, err := readHostList(flags.include)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: error reading %s: %s\n", programName, flags.include, err)
			return 1
		}
		hosts.Include = list
	}
	if flags.exclude != "" {
		list, err := readHostList(flags.exclude)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: error reading %s: %s\n", programName, flags.exclude, err)
			return 1
		}
		hosts.Exclude = list
	}

	sources := []logregistry.Source{logregistry.LogListSource(flags.logList)}
	if flags.mozilla != "" {
		sources = append(sources, logregistry.MozillaSource(flags.mozilla))
	}
	store := new(logregistry.Store)
	refresher := logregistry.NewRefresher(store, logregistry.RefresherConfig{Sources: sources, Logger: logger})
	if _, err := refresher.Refresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", programName, err)
		return 1
	}

	var input *ctpolicy.Input
	if flags.connect != "" {
		serverName, _, err := net.SplitHostPort(flags.connect)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", programName, flags.connect, err)
			return 2
		}
		input, err = connect(ctx, flags.connect, serverName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: error connecting to %s: %s\n", programName, flags.connect, err)
			return 1
		}
	} else {
		pemBytes, err := readFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: error reading certificate chain: %s\n", programName, err)
			return 1
		}
		chain, err := parseChain(pemBytes)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s: %s\n", programName, args[0], err)
			return 1
		}
		input = &ctpolicy.Input{Chain: chain}
	}
	if flags.host != "" {
		input.Host = flags.host
	}
	if flags.tlsSCTs != "" {
		payload, err := readFile(flags.tlsSCTs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: error reading TLS SCTs: %s\n", programName, err)
			return 1
		}
		input.TLSExtension = payload
	}
	if flags.ocsp != "" {
		response, err := readFile(flags.ocsp)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: error reading OCSP response: %s\n", programName, err)
			return 1
		}
		input.OCSPResponse = response
	}

	verifier := &ctpolicy.Verifier{
		Evaluator: &ctpolicy.Evaluator{
			Logs: store,
			Policy: ctpolicy.Policy{
				MinValidSCTs:         flags.minSCTs,
				MinDistinctOperators: flags.minOperators,
				CountDuplicates:      flags.countDuplicates,
			},
			Logger: logger,
		},
		Hosts: hosts,
	}
	result := verifier.Verify(input)
	printResult(os.Stdout, input, result)

	if !result.Trusted() {
		return 1
	}
	return 0
}
