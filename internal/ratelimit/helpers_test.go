package ratelimit_test

import (
	"context"
	"sync"
	"time"

	"github.com/serroba/ratelimiter/internal/ratelimit"
)

// fakeStore is a minimal Store that lets tests seed and inspect records.
type fakeStore struct {
	mu      sync.Mutex
	records map[string]ratelimit.Record
	err     error
	calls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]ratelimit.Record)}
}

func (f *fakeStore) GetAndUpdate(
	_ context.Context, key string, asOf time.Time, fn ratelimit.UpdateFunc,
) (ratelimit.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	if f.err != nil {
		return ratelimit.Record{}, f.err
	}

	var current *ratelimit.Record
	if r, ok := f.records[key]; ok && !r.Expired(asOf) {
		current = &r
	}

	next := fn(current, asOf)
	f.records[key] = next

	return next, nil
}

func (f *fakeStore) seed(key string, r ratelimit.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records[key] = r
}

func (f *fakeStore) get(key string) ratelimit.Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.records[key]
}
