// Copyright (C) 2016, 2023, 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package ctpolicy

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/idna"
	"software.sslmate.com/src/sctverify"
)

// HostPattern matches a DNS name.  Each label of the pattern may contain
// '*' wildcards, which match within a single label.
type HostPattern struct {
	domain       []string
	acceptSuffix bool
}

type HostList []HostPattern

func normalizeHost(host string) (string, error) {
	return idna.ToASCII(strings.ToLower(strings.TrimRight(host, ".")))
}

// ParseHostPattern parses a domain name pattern.  A leading "." makes the
// pattern match the domain and all of its subdomains; "." by itself
// matches everything.
func ParseHostPattern(str string) (HostPattern, error) {
	domain := strings.TrimSpace(str)
	if domain == "" {
		return HostPattern{}, fmt.Errorf("empty domain")
	}
	if domain == "." {
		return HostPattern{domain: []string{}, acceptSuffix: true}, nil
	}

	acceptSuffix := false
	if strings.HasPrefix(domain, ".") {
		acceptSuffix = true
		domain = domain[1:]
	}

	asciiDomain, err := normalizeHost(domain)
	if err != nil {
		return HostPattern{}, fmt.Errorf("invalid domain %q (%w)", domain, err)
	}
	return HostPattern{
		domain:       strings.Split(asciiDomain, "."),
		acceptSuffix: acceptSuffix,
	}, nil
}

// ParseHostList parses a pattern per line.  Blank lines and lines starting
// with # are ignored.
func ParseHostList(reader io.Reader) (HostList, error) {
	var list HostList
	scanner := bufio.NewScanner(reader)
	lineNo := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineNo++
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pattern, err := ParseHostPattern(line)
		if err != nil {
			return nil, fmt.Errorf("%w on line %d", err, lineNo)
		}
		list = append(list, pattern)
	}
	return list, scanner.Err()
}

func (pattern HostPattern) String() string {
	if pattern.acceptSuffix {
		return "." + strings.Join(pattern.domain, ".")
	} else {
		return strings.Join(pattern.domain, ".")
	}
}

func (pattern HostPattern) matchesLabels(host []string) bool {
	domain := pattern.domain
	for len(host) > 0 && len(domain) > 0 {
		if !sctverify.MatchesWildcard(host[len(host)-1], domain[len(domain)-1]) {
			return false
		}
		host = host[:len(host)-1]
		domain = domain[:len(domain)-1]
	}
	return len(domain) == 0 && (pattern.acceptSuffix || len(host) == 0)
}

// Matches reports whether host, which may be a Unicode name, matches the
// pattern.
func (pattern HostPattern) Matches(host string) bool {
	asciiHost, err := normalizeHost(host)
	if err != nil {
		return false
	}
	return pattern.matchesLabels(strings.Split(asciiHost, "."))
}

func (list HostList) Matches(host string) (bool, HostPattern) {
	asciiHost, err := normalizeHost(host)
	if err != nil {
		return false, HostPattern{}
	}
	labels := strings.Split(asciiHost, ".")
	for _, pattern := range list {
		if pattern.matchesLabels(labels) {
			return true, pattern
		}
	}
	return false, HostPattern{}
}

// HostPolicy selects the hosts whose certificates must carry SCTs.
// A host is enforced if it matches Include, or Include is empty, and it
// does not match Exclude.  A nil HostPolicy enforces every host.
type HostPolicy struct {
	Include HostList
	Exclude HostList
}

// Enforced reports whether host is subject to CT enforcement.  An empty or
// invalid host is always enforced.
func (policy *HostPolicy) Enforced(host string) bool {
	if policy == nil {
		return true
	}
	if _, err := normalizeHost(host); host == "" || err != nil {
		return true
	}
	if excluded, _ := policy.Exclude.Matches(host); excluded {
		return false
	}
	if len(policy.Include) == 0 {
		return true
	}
	included, _ := policy.Include.Matches(host)
	return included
}
