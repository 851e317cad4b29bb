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
	"context"
	"errors"
	"fmt"
	"log"
	insecurerand "math/rand"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
	"software.sslmate.com/src/sctverify/cttypes"
	"software.sslmate.com/src/sctverify/loglist"
	"software.sslmate.com/src/sctverify/loglist/mozilla"
)

const (
	defaultReloadIntervalMin  = 30 * time.Minute
	defaultReloadIntervalMax  = 90 * time.Minute
	defaultMinRefreshInterval = time.Minute
)

var ErrNoSources = errors.New("no log list sources configured")

// Source supplies a log list.  The list is trusted as-is: authenticating
// it is the responsibility of Load.
type Source struct {
	Name string
	Load func(context.Context) (*loglist.List, error)
}

// LogListSource loads a log list in Google's v3 JSON schema from an
// https:// URL or a file.
func LogListSource(urlOrFile string) Source {
	return Source{
		Name: urlOrFile,
		Load: func(ctx context.Context) (*loglist.List, error) { return loglist.Load(ctx, urlOrFile) },
	}
}

// MozillaSource loads Mozilla's CTKnownLogs.h from an https:// URL or a file.
func MozillaSource(urlOrFile string) Source {
	return Source{
		Name: urlOrFile,
		Load: func(ctx context.Context) (*loglist.List, error) { return mozilla.Load(ctx, urlOrFile) },
	}
}

type RefresherConfig struct {
	Sources []Source

	// Run reloads the sources after a random interval between
	// ReloadIntervalMin and ReloadIntervalMax (default 30 to 90 minutes).
	ReloadIntervalMin time.Duration
	ReloadIntervalMax time.Duration

	// RequestRefresh performs at most one refresh per MinRefreshInterval
	// (default one minute).
	MinRefreshInterval time.Duration

	// Logger receives progress and errors.  If nil, nothing is logged.
	Logger *log.Logger
}

// Refresher rebuilds the Registry in a Store from its sources.
type Refresher struct {
	store   *Store
	config  RefresherConfig
	flight  singleflight.Group
	limiter *rate.Limiter
}

func NewRefresher(store *Store, config RefresherConfig) *Refresher {
	if config.ReloadIntervalMin <= 0 {
		config.ReloadIntervalMin = defaultReloadIntervalMin
	}
	if config.ReloadIntervalMax < config.ReloadIntervalMin {
		config.ReloadIntervalMax = max(defaultReloadIntervalMax, config.ReloadIntervalMin)
	}
	if config.MinRefreshInterval <= 0 {
		config.MinRefreshInterval = defaultMinRefreshInterval
	}
	return &Refresher{
		store:   store,
		config:  config,
		limiter: rate.NewLimiter(rate.Every(config.MinRefreshInterval), 1),
	}
}

func (r *Refresher) logf(format string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Printf(format, args...)
	}
}

func randomDuration(min, max time.Duration) time.Duration {
	return min + time.Duration(insecurerand.Int63n(int64(max-min+1)))
}

func (r *Refresher) reloadInterval() time.Duration {
	return randomDuration(r.config.ReloadIntervalMin, r.config.ReloadIntervalMax)
}

// Load fetches every source concurrently and merges them into a new
// Registry, without installing it.
func (r *Refresher) Load(ctx context.Context) (*Registry, error) {
	if len(r.config.Sources) == 0 {
		return nil, ErrNoSources
	}
	lists := make([]*loglist.List, len(r.config.Sources))
	group, ctx := errgroup.WithContext(ctx)
	for i, source := range r.config.Sources {
		i, source := i, source
		group.Go(func() error {
			list, err := source.Load(ctx)
			if err != nil {
				return fmt.Errorf("error loading %s: %w", source.Name, err)
			}
			lists[i] = list
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var entries []Entry
	distrusted := make(map[cttypes.LogID]struct{})
	for i, list := range lists {
		listEntries, listDistrusted := entriesFromLogList(list)
		r.logf("loaded %d trusted logs from %s", len(listEntries), r.config.Sources[i].Name)
		entries = append(entries, listEntries...)
		for _, id := range listDistrusted {
			distrusted[id] = struct{}{}
		}
	}
	return New(mergeEntries(entries, distrusted))
}

// mergeEntries combines entries for the same log from different sources.
// The log is trusted only within the intersection of their validity
// windows, and keeps the operator and description of its first entry.
// Logs in distrusted, which some source lists as pending or rejected, are
// dropped.  A log which a source does not list at all is unaffected by
// that source.
func mergeEntries(entries []Entry, distrusted map[cttypes.LogID]struct{}) []Entry {
	merged := make([]Entry, 0, len(entries))
	index := make(map[cttypes.LogID]int)
	for _, entry := range entries {
		id := entry.Key.LogID()
		if _, ok := distrusted[id]; ok {
			continue
		}
		i, exists := index[id]
		if !exists {
			index[id] = len(merged)
			merged = append(merged, entry)
			continue
		}
		existing := &merged[i]
		if entry.ValidFrom.After(existing.ValidFrom) {
			existing.ValidFrom = entry.ValidFrom
		}
		if !entry.ValidUntil.IsZero() && (existing.ValidUntil.IsZero() || entry.ValidUntil.Before(existing.ValidUntil)) {
			existing.ValidUntil = entry.ValidUntil
		}
	}
	return merged
}

// Refresh loads a new Registry and installs it in the Store.  Concurrent
// calls share a single load, which continues even if the caller that
// started it gives up.  On error, the Store is left unchanged.
func (r *Refresher) Refresh(ctx context.Context) (*Registry, error) {
	// The load is shared, so it must outlive the caller which started it.
	loadCtx := context.WithoutCancel(ctx)
	resultChan := r.flight.DoChan("refresh", func() (any, error) {
		registry, err := r.Load(loadCtx)
		if err != nil {
			return nil, err
		}
		r.store.Replace(registry)
		r.logf("installed registry with %d logs", registry.Len())
		return registry, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChan:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*Registry), nil
	}
}

// RequestRefresh refreshes the Store unless a refresh was already
// requested within the last MinRefreshInterval, in which case it returns
// the current Registry and false.
func (r *Refresher) RequestRefresh(ctx context.Context) (*Registry, bool, error) {
	if !r.limiter.Allow() {
		return r.store.Registry(), false, nil
	}
	registry, err := r.Refresh(ctx)
	if err != nil {
		return nil, true, err
	}
	return registry, true, nil
}

// Run performs an initial refresh, failing if it does not succeed, and
// then refreshes periodically until ctx is done.  Failed periodic
// refreshes are logged and the previous Registry is kept.
func (r *Refresher) Run(ctx context.Context) error {
	if _, err := r.Refresh(ctx); err != nil {
		return fmt.Errorf("error loading log list: %w", err)
	}

	reloadTicker := time.NewTicker(r.reloadInterval())
	defer reloadTicker.Stop()

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
		case <-reloadTicker.C:
			if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logf("error reloading log list (will try again later): %s", err)
			}
			reloadTicker.Reset(r.reloadInterval())
		}
	}
	return ctx.Err()
}
