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
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"software.sslmate.com/src/sctverify/cttypes"
	"software.sslmate.com/src/sctverify/internal/ctfixture"
	"software.sslmate.com/src/sctverify/loglist"
)

func writeLogList(t *testing.T, operators map[string][]testListLog) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log_list.json")
	if err := os.WriteFile(path, []byte(makeLogListJSON(operators)), 0666); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRefresherLoad(t *testing.T) {
	shared, err := ctfixture.NewECDSALog()
	if err != nil {
		t.Fatal(err)
	}
	onlyFirst, err := ctfixture.NewECDSALog()
	if err != nil {
		t.Fatal(err)
	}
	retirement := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rejected, err := ctfixture.NewECDSALog()
	if err != nil {
		t.Fatal(err)
	}
	first := writeLogList(t, map[string][]testListLog{
		"First": {{shared, "usable", retirement, false}, {onlyFirst, "usable", retirement, false}, {rejected, "usable", retirement, false}},
	})
	second := writeLogList(t, map[string][]testListLog{
		"Second": {{shared, "retired", retirement, false}, {rejected, "rejected", retirement, false}},
	})

	refresher := NewRefresher(new(Store), RefresherConfig{
		Sources: []Source{LogListSource(first), LogListSource(second)},
	})
	registry, err := refresher.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %s", err)
	}
	if registry.Len() != 2 {
		t.Errorf("registry has %d logs; expected 2", registry.Len())
	}
	if _, ok := registry.Lookup(rejected.ID); ok {
		t.Errorf("log rejected by the second list is in registry")
	}
	info, ok := registry.Lookup(shared.ID)
	if !ok {
		t.Fatalf("shared log not in registry")
	}
	if info.Operator() != "First" {
		t.Errorf("shared log has operator %q", info.Operator())
	}
	if ts, bounded := info.ValidUntil(); !bounded || ts != uint64(retirement.UnixMilli()) {
		t.Errorf("shared log ValidUntil = %d, %v", ts, bounded)
	}
}

func TestMergeEntries(t *testing.T) {
	log, err := ctfixture.NewECDSALog()
	if err != nil {
		t.Fatal(err)
	}
	t1 := time.UnixMilli(1000)
	t2 := time.UnixMilli(2000)
	t3 := time.UnixMilli(3000)
	t4 := time.UnixMilli(4000)
	merged := mergeEntries([]Entry{
		{Key: log.Key, Operator: "A", ValidFrom: t1, ValidUntil: t4},
		{Key: log.Key, Operator: "B", ValidFrom: t2},
		{Key: log.Key, Operator: "C", ValidUntil: t3},
	}, nil)
	if len(merged) != 1 {
		t.Fatalf("got %d entries; expected 1", len(merged))
	}
	if merged[0].Operator != "A" || !merged[0].ValidFrom.Equal(t2) || !merged[0].ValidUntil.Equal(t3) {
		t.Errorf("wrong merged entry: %+v", merged[0])
	}

	merged = mergeEntries([]Entry{{Key: log.Key, Operator: "A"}}, map[cttypes.LogID]struct{}{log.ID: {}})
	if len(merged) != 0 {
		t.Errorf("distrusted log was kept: %+v", merged)
	}
}

func TestRefresherErrors(t *testing.T) {
	ctx := context.Background()
	if _, err := NewRefresher(new(Store), RefresherConfig{}).Load(ctx); !errors.Is(err, ErrNoSources) {
		t.Errorf("no sources: got error %v", err)
	}

	log, err := ctfixture.NewECDSALog()
	if err != nil {
		t.Fatal(err)
	}
	initial, err := New([]Entry{{Key: log.Key}})
	if err != nil {
		t.Fatal(err)
	}
	store := NewStore(initial)
	sourceErr := errors.New("source unavailable")
	refresher := NewRefresher(store, RefresherConfig{
		Sources: []Source{
			LogListSource(writeLogList(t, map[string][]testListLog{})),
			{Name: "broken", Load: func(context.Context) (*loglist.List, error) { return nil, sourceErr }},
		},
	})
	if _, err := refresher.Refresh(ctx); !errors.Is(err, sourceErr) {
		t.Errorf("broken source: got error %v", err)
	}
	if store.Registry() != initial {
		t.Errorf("failed refresh replaced the registry")
	}
	if err := refresher.Run(ctx); !errors.Is(err, sourceErr) {
		t.Errorf("Run with broken source: got error %v", err)
	}
}

// blockingSource counts its loads and blocks each one until release is closed.
type blockingSource struct {
	loads   atomic.Int32
	started chan struct{}
	release chan struct{}
	list    *loglist.List
}

func (source *blockingSource) Source() Source {
	return Source{
		Name: "blocking",
		Load: func(ctx context.Context) (*loglist.List, error) {
			source.loads.Add(1)
			select {
			case source.started <- struct{}{}:
			default:
			}
			select {
			case <-source.release:
				return source.list, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
}

func TestRefreshSharesLoad(t *testing.T) {
	log, err := ctfixture.NewECDSALog()
	if err != nil {
		t.Fatal(err)
	}
	list, err := loglist.Unmarshal([]byte(makeLogListJSON(map[string][]testListLog{
		"Example": {{log, "usable", time.Now(), false}},
	})))
	if err != nil {
		t.Fatal(err)
	}
	source := &blockingSource{started: make(chan struct{}, 1), release: make(chan struct{}), list: list}
	store := new(Store)
	refresher := NewRefresher(store, RefresherConfig{Sources: []Source{source.Source()}})

	const callers = 4
	results := make([]*Registry, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry, err := refresher.Refresh(context.Background())
			if err != nil {
				t.Errorf("Refresh #%d failed: %s", i, err)
			}
			results[i] = registry
		}()
	}
	<-source.started
	time.Sleep(50 * time.Millisecond)
	close(source.release)
	wg.Wait()

	if n := source.loads.Load(); n < 1 || n > callers {
		t.Errorf("source loaded %d times", n)
	}
	for i, registry := range results {
		if registry == nil || registry.Len() != 1 {
			t.Errorf("Refresh #%d returned %v", i, registry)
		}
	}
	if store.Registry().Len() != 1 {
		t.Errorf("store holds %d logs", store.Registry().Len())
	}
}

func TestRefreshSurvivesCanceledCaller(t *testing.T) {
	log, err := ctfixture.NewECDSALog()
	if err != nil {
		t.Fatal(err)
	}
	list, err := loglist.Unmarshal([]byte(makeLogListJSON(map[string][]testListLog{
		"Example": {{log, "usable", time.Now(), false}},
	})))
	if err != nil {
		t.Fatal(err)
	}
	source := &blockingSource{started: make(chan struct{}, 1), release: make(chan struct{}), list: list}
	refresher := NewRefresher(new(Store), RefresherConfig{Sources: []Source{source.Source()}})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := refresher.Refresh(ctxA)
		errA <- err
	}()
	<-source.started

	type refreshResult struct {
		registry *Registry
		err      error
	}
	resultB := make(chan refreshResult, 1)
	go func() {
		registry, err := refresher.Refresh(context.Background())
		resultB <- refreshResult{registry, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("canceled caller: got error %v", err)
	}
	close(source.release)
	result := <-resultB
	if result.err != nil {
		t.Fatalf("other caller failed: %s", result.err)
	}
	if result.registry.Len() != 1 {
		t.Errorf("other caller got registry with %d logs", result.registry.Len())
	}
}

func TestRequestRefreshThrottled(t *testing.T) {
	path := writeLogList(t, map[string][]testListLog{})
	refresher := NewRefresher(new(Store), RefresherConfig{
		Sources:            []Source{LogListSource(path)},
		MinRefreshInterval: time.Hour,
	})
	ctx := context.Background()
	if _, refreshed, err := refresher.RequestRefresh(ctx); err != nil || !refreshed {
		t.Fatalf("first RequestRefresh: refreshed=%v err=%v", refreshed, err)
	}
	registry, refreshed, err := refresher.RequestRefresh(ctx)
	if err != nil || refreshed {
		t.Errorf("second RequestRefresh: refreshed=%v err=%v", refreshed, err)
	}
	if registry == nil {
		t.Errorf("second RequestRefresh returned nil registry")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	path := writeLogList(t, map[string][]testListLog{})
	store := new(Store)
	refresher := NewRefresher(store, RefresherConfig{
		Sources:           []Source{LogListSource(path)},
		ReloadIntervalMin: time.Millisecond,
		ReloadIntervalMax: 5 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- refresher.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancellation")
	}
}
