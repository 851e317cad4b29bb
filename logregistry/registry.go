// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

// Package logregistry maintains the set of CT logs trusted to issue SCTs,
// as immutable snapshots which can be replaced atomically.
package logregistry

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"time"

	"software.sslmate.com/src/sctverify/ctcrypto"
	"software.sslmate.com/src/sctverify/cttypes"
)

var ErrDuplicateLog = errors.New("log appears more than once")

// Entry describes a trusted log.  A zero ValidFrom or ValidUntil means the
// log's validity is unbounded in that direction.
type Entry struct {
	Key         ctcrypto.PublicKey
	Operator    string
	Description string
	ValidFrom   time.Time
	ValidUntil  time.Time
}

// LogInfo is an immutable description of a trusted log.
type LogInfo struct {
	id          cttypes.LogID
	key         ctcrypto.PublicKey
	verifier    *ctcrypto.Verifier
	operator    string
	description string
	validFrom   uint64
	validUntil  uint64
	hasFrom     bool
	hasUntil    bool
}

func (info *LogInfo) ID() cttypes.LogID                { return info.id }
func (info *LogInfo) Key() ctcrypto.PublicKey          { return bytes.Clone(info.key) }
func (info *LogInfo) Algorithm() ctcrypto.KeyAlgorithm { return info.verifier.Algorithm() }
func (info *LogInfo) Operator() string                 { return info.operator }
func (info *LogInfo) Description() string              { return info.description }

// ValidFrom returns the earliest SCT timestamp, in milliseconds since the
// epoch, that the log is trusted for.  ok is false if there is no bound.
func (info *LogInfo) ValidFrom() (timestamp uint64, ok bool) {
	return info.validFrom, info.hasFrom
}

// ValidUntil returns the latest SCT timestamp, in milliseconds since the
// epoch, that the log is trusted for.  ok is false if there is no bound.
func (info *LogInfo) ValidUntil() (timestamp uint64, ok bool) {
	return info.validUntil, info.hasUntil
}

// Verifier returns the verifier for the log's signatures.
func (info *LogInfo) Verifier() *ctcrypto.Verifier {
	return info.verifier
}

func (info *LogInfo) String() string {
	if info.description != "" {
		return fmt.Sprintf("%s (%s)", info.description, info.id)
	}
	return info.id.String()
}

func millis(t time.Time) (uint64, bool) {
	if t.IsZero() {
		return 0, false
	}
	if t.UnixMilli() < 0 {
		return 0, true
	}
	return uint64(t.UnixMilli()), true
}

func newLogInfo(entry *Entry) (*LogInfo, error) {
	if _, err := entry.Key.Algorithm(); err != nil {
		return nil, err
	}
	verifier, err := ctcrypto.NewVerifier(entry.Key)
	if err != nil {
		return nil, err
	}
	info := &LogInfo{
		id:          entry.Key.LogID(),
		key:         bytes.Clone(entry.Key),
		verifier:    verifier,
		operator:    entry.Operator,
		description: entry.Description,
	}
	info.validFrom, info.hasFrom = millis(entry.ValidFrom)
	info.validUntil, info.hasUntil = millis(entry.ValidUntil)
	if info.hasFrom && info.hasUntil && info.validFrom > info.validUntil {
		return nil, fmt.Errorf("validity window ends before it begins")
	}
	return info, nil
}

// Registry is an immutable set of trusted logs, keyed by log ID.  It is
// safe for concurrent use.  The zero value and nil are empty registries.
type Registry struct {
	logs map[cttypes.LogID]*LogInfo
	ids  []cttypes.LogID
}

// New builds a registry from entries.  It fails if any entry's key is not
// an RSA or ECDSA SubjectPublicKeyInfo, or if two entries have the same key.
func New(entries []Entry) (*Registry, error) {
	registry := &Registry{
		logs: make(map[cttypes.LogID]*LogInfo, len(entries)),
		ids:  make([]cttypes.LogID, 0, len(entries)),
	}
	for i := range entries {
		info, err := newLogInfo(&entries[i])
		if err != nil {
			return nil, fmt.Errorf("log %d (%s): %w", i, entries[i].Description, err)
		}
		if _, exists := registry.logs[info.id]; exists {
			return nil, fmt.Errorf("log %d (%s): %w: %s", i, entries[i].Description, ErrDuplicateLog, info.id)
		}
		registry.logs[info.id] = info
		registry.ids = append(registry.ids, info.id)
	}
	slices.SortFunc(registry.ids, func(a, b cttypes.LogID) int { return bytes.Compare(a[:], b[:]) })
	return registry, nil
}

func (registry *Registry) Lookup(id cttypes.LogID) (*LogInfo, bool) {
	if registry == nil {
		return nil, false
	}
	info, ok := registry.logs[id]
	return info, ok
}

func (registry *Registry) Len() int {
	if registry == nil {
		return 0
	}
	return len(registry.logs)
}

// All returns the logs in the registry ordered by log ID.
func (registry *Registry) All() []*LogInfo {
	if registry == nil {
		return nil
	}
	infos := make([]*LogInfo, len(registry.ids))
	for i, id := range registry.ids {
		infos[i] = registry.logs[id]
	}
	return infos
}
