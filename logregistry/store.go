// Copyright (C) 2025 Opsmate, Inc.
//
// This Source Code Form is subject to the terms of the Mozilla
// Public License, v. 2.0. If a copy of the MPL was not distributed
// with this file, You can obtain one at http://mozilla.org/MPL/2.0/.
//
// This software is distributed WITHOUT A WARRANTY OF ANY KIND.
// See the Mozilla Public License for details.

package logregistry

import (
	"sync/atomic"
)

// Store holds the current Registry.  Readers always observe a complete
// snapshot, either the one before or the one after a Replace.
type Store struct {
	current atomic.Pointer[Registry]
}

func NewStore(initial *Registry) *Store {
	store := new(Store)
	store.Replace(initial)
	return store
}

// Registry returns the current snapshot, which is never nil.
func (store *Store) Registry() *Registry {
	if registry := store.current.Load(); registry != nil {
		return registry
	}
	return &Registry{}
}

// Replace installs registry as the current snapshot and returns the
// previous one.
func (store *Store) Replace(registry *Registry) *Registry {
	if registry == nil {
		registry = &Registry{}
	}
	return store.current.Swap(registry)
}
