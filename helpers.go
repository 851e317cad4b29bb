// Copyright (C) 2016 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

// Package sctverify locates the Signed Certificate Timestamps in a
// certificate chain, TLS handshake, or OCSP response, and reconstructs the
// entries that CT logs signed when issuing them.
package sctverify

import (
	"crypto/sha256"
	"encoding/hex"
)

func sha256sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func sha256hex(data []byte) string {
	return hex.EncodeToString(sha256sum(data))
}

// Fingerprint returns the hex-encoded SHA-256 hash of a DER certificate.
func Fingerprint(certBytes []byte) string {
	return sha256hex(certBytes)
}

// MatchesWildcard reports whether dnsName matches pattern, in which each
// '*' matches zero or more characters within a single DNS label.
func MatchesWildcard(dnsName string, pattern string) bool {
	for len(pattern) > 0 {
		if pattern[0] == '*' {
			if len(dnsName) > 0 && dnsName[0] != '.' && MatchesWildcard(dnsName[1:], pattern) {
				return true
			}
			pattern = pattern[1:]
		} else {
			if len(dnsName) == 0 || pattern[0] != dnsName[0] {
				return false
			}
			pattern = pattern[1:]
			dnsName = dnsName[1:]
		}
	}
	return len(dnsName) == 0
}
