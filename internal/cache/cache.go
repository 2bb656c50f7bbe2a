// Package cache holds the most recent enrichment record per
// (subject, provider) pair, with TTL freshness and single-flight
// collapsing of concurrent runs.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rotisserie/eris"
	"golang.org/x/sync/singleflight"

	"github.com/bondline/skiptrace/internal/model"
)

// DefaultSize bounds the in-memory record count. One active case file
// rarely touches more than a handful of providers, so this covers
// thousands of concurrently worked cases.
const DefaultSize = 8192

// Key identifies one (subject, provider) cache slot.
type Key struct {
	SubjectID  string
	ProviderID string
}

func (k Key) String() string { return k.SubjectID + "\x00" + k.ProviderID }

// Cache is the keyed enrichment store. Put replaces: at most one current
// record exists per key.
type Cache struct {
	records *lru.Cache[Key, *model.EnrichmentRecord]
	group   singleflight.Group
	now     func() time.Time
}

// New creates a cache bounded to size records (DefaultSize when <= 0).
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	records, err := lru.New[Key, *model.EnrichmentRecord](size)
	if err != nil {
		return nil, eris.Wrap(err, "cache: create lru")
	}
	return &Cache{records: records, now: time.Now}, nil
}

// WithNow fixes the clock for tests.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the current record for a key, if any. Expired records are
// still returned; staleness is computed lazily via IsFresh, never
// written back as a state change.
func (c *Cache) Get(key Key) (*model.EnrichmentRecord, bool) {
	return c.records.Get(key)
}

// Put stores a record, replacing any existing record for the key.
func (c *Cache) Put(key Key, rec *model.EnrichmentRecord) {
	c.records.Add(key, rec)
}

// IsFresh reports whether the record's TTL has not yet elapsed.
func (c *Cache) IsFresh(rec *model.EnrichmentRecord) bool {
	if rec == nil {
		return false
	}
	return rec.IsFresh(c.now())
}

// Run executes fn for a key with single-flight collapsing: while one
// call is in flight, concurrent callers for the same key wait for its
// result instead of triggering a second provider call. shared reports
// whether the result was produced by another caller's flight. The flight
// marker is released on every exit path, success or failure.
func (c *Cache) Run(ctx context.Context, key Key, fn func(ctx context.Context) (*model.EnrichmentRecord, error)) (rec *model.EnrichmentRecord, shared bool, err error) {
	v, err, shared := c.group.Do(key.String(), func() (any, error) {
		return fn(ctx)
	})
	if v != nil {
		rec = v.(*model.EnrichmentRecord)
	}
	return rec, shared, err
}

// Remove drops the record for a key. Used by tests and admin tooling.
func (c *Cache) Remove(key Key) {
	c.records.Remove(key)
}

// Len returns the number of cached records.
func (c *Cache) Len() int { return c.records.Len() }
