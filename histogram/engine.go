// Package histogram computes per-bucket unfiltered and filtered entry
// counts across a set of indexed journal files, caching results for buckets
// that can never change (no online file overlaps them).
package histogram

import (
	"context"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/filter"
	"github.com/netdata/journal/index"
)

// BucketRequest identifies one histogram bucket: a time window plus the
// facets and filter the query was made under (part of the cache key, since
// a different filter yields a different filtered count for the same
// window).
type BucketRequest struct {
	StartSec int64
	EndSec   int64
	Facets   string // caller-supplied cache-key fragment, e.g. a canonicalized facet list
	Filter   filter.BitmapExpr
}

// BucketResponse is the per-bucket result: counts per "field=value" facet
// plus the set of field names seen but not indexed.
type BucketResponse struct {
	Counts          map[string]FacetCount
	UnindexedFields map[string]struct{}
}

// FacetCount is the unfiltered and filtered entry count for one facet
// within a bucket.
type FacetCount struct {
	Unfiltered uint64
	Filtered   uint64
}

// IndexedFile pairs an opened FileIndex with whether it's still being
// written (online). An online file's overlapping buckets are never cached,
// since its counts can still grow.
type IndexedFile struct {
	Index  *index.FileIndex
	Online bool
}

type cacheKey struct {
	startSec int64
	endSec   int64
	facets   string
	filter   string
}

// Engine computes histograms over a set of IndexedFiles, caching
// non-online-overlapping bucket responses in a bounded LRU.
type Engine struct {
	mu    sync.RWMutex
	cache *lru.Cache[cacheKey, BucketResponse]
	log   *zap.SugaredLogger

	maxConcurrency int64
}

// Option configures New.
type Option func(*Engine)

// WithCacheSize overrides the default cache bound.
func WithCacheSize(n int) Option {
	return func(e *Engine) {
		e.cache, _ = lru.New[cacheKey, BucketResponse](n)
	}
}

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(e *Engine) { e.log = log }
}

// WithMaxConcurrency bounds how many files are evaluated in parallel per
// ComputeFromIndexes call.
func WithMaxConcurrency(n int64) Option {
	return func(e *Engine) { e.maxConcurrency = n }
}

const defaultCacheSize = 4096
const defaultMaxConcurrency = 8

// New creates a histogram Engine.
func New(opts ...Option) *Engine {
	e := &Engine{log: zap.NewNop().Sugar(), maxConcurrency: defaultMaxConcurrency}
	for _, opt := range opts {
		opt(e)
	}
	if e.cache == nil {
		e.cache, _ = lru.New[cacheKey, BucketResponse](defaultCacheSize)
	}
	return e
}

// HistogramEntry pairs one request with its resolved response.
type HistogramEntry struct {
	Request  BucketRequest
	Response BucketResponse
}

// ComputeFromIndexes computes one bucket per bucketWidth-aligned slot of
// [startSec, endSec) across files, using the cache where possible and
// fanning out cache-miss file evaluation behind a bounded semaphore.
func (e *Engine) ComputeFromIndexes(ctx context.Context, files []IndexedFile, startSec, endSec, bucketWidth int64, facets string, f filter.BitmapExpr) ([]HistogramEntry, error) {
	requests := bucketRequests(startSec, endSec, bucketWidth, facets, f)

	responses := make([]BucketResponse, len(requests))
	var missing []int

	e.mu.RLock()
	for i, req := range requests {
		if resp, ok := e.cache.Get(keyOf(req)); ok {
			responses[i] = resp
		} else {
			missing = append(missing, i)
		}
	}
	e.mu.RUnlock()

	if len(missing) == 0 {
		return zipEntries(requests, responses), nil
	}

	for _, i := range missing {
		responses[i] = BucketResponse{
			Counts:          make(map[string]FacetCount),
			UnindexedFields: make(map[string]struct{}),
		}
	}

	cacheable := make([]bool, len(requests))
	for _, i := range missing {
		cacheable[i] = true
	}

	var mu sync.Mutex
	var succeeded int32
	var launched int

	sem := semaphore.NewWeighted(e.maxConcurrency)
	g, gctx := errgroup.WithContext(ctx)

	for _, fi := range files {
		fi := fi
		if !overlapsAny(fi.Index, requests, missing) {
			continue
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, err
		}
		launched++

		g.Go(func() error {
			defer sem.Release(1)

			filterBitmap := f.Resolve(fi.Index)
			e.accumulate(fi, filterBitmap, requests, missing, responses, cacheable, &mu)

			mu.Lock()
			succeeded++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if succeeded == 0 && launched > 0 {
		e.log.Warnw("histogram compute: every file failed to evaluate", "files", launched)
		return nil, errs.ErrNoFilesSucceeded
	}

	e.mu.Lock()
	for _, i := range missing {
		if cacheable[i] {
			e.cache.Add(keyOf(requests[i]), responses[i])
		}
	}
	e.mu.Unlock()

	return zipEntries(requests, responses), nil
}

// accumulate folds one file's contribution into every missing bucket it
// overlaps, for every field=value facet the file's index carries.
func (e *Engine) accumulate(fi IndexedFile, filterBitmap *roaring.Bitmap, requests []BucketRequest, missing []int, responses []BucketResponse, cacheable []bool, mu *sync.Mutex) {
	facets := fi.Index.Facets()

	for _, i := range missing {
		req := requests[i]
		if !bucketOverlapsFile(req, fi.Index) {
			continue
		}

		mu.Lock()
		if fi.Online {
			cacheable[i] = false
		}
		for _, field := range fi.Index.UnindexedFields() {
			responses[i].UnindexedFields[field] = struct{}{}
		}
		mu.Unlock()

		for _, key := range facets {
			field, value := splitFacet(key)
			valueBitmap := fi.Index.ValueBitmap(field, value)
			unfiltered := fi.Index.CountEntriesInTimeRange(valueBitmap, req.StartSec, req.EndSec)

			filtered := valueBitmap
			filtered = roaring.And(filtered, filterBitmap)
			filteredCount := fi.Index.CountEntriesInTimeRange(filtered, req.StartSec, req.EndSec)

			mu.Lock()
			c := responses[i].Counts[key]
			c.Unfiltered += unfiltered
			c.Filtered += filteredCount
			responses[i].Counts[key] = c
			mu.Unlock()
		}
	}
}

func bucketRequests(startSec, endSec, width int64, facets string, f filter.BitmapExpr) []BucketRequest {
	var out []BucketRequest
	for s := alignDownTo(startSec, width); s < endSec; s += width {
		out = append(out, BucketRequest{StartSec: s, EndSec: s + width, Facets: facets, Filter: f})
	}
	return out
}

func alignDownTo(sec, width int64) int64 { return (sec / width) * width }

// keyOf derives a cache key from every input that can change a bucket's
// response: the window, the facet set, and the filter. Two requests with the
// same window and facets but different filters must never collide, since a
// filtered count computed under one filter is meaningless for another.
// %#v gives a deterministic, type-and-field-qualified rendering of the
// filter tree without requiring filter.BitmapExpr to grow its own
// serialization method.
func keyOf(r BucketRequest) cacheKey {
	return cacheKey{startSec: r.StartSec, endSec: r.EndSec, facets: r.Facets, filter: fmt.Sprintf("%#v", r.Filter)}
}

func zipEntries(reqs []BucketRequest, resps []BucketResponse) []HistogramEntry {
	out := make([]HistogramEntry, len(reqs))
	for i := range reqs {
		out[i] = HistogramEntry{Request: reqs[i], Response: resps[i]}
	}
	return out
}

func overlapsAny(fi *index.FileIndex, requests []BucketRequest, missing []int) bool {
	for _, i := range missing {
		if bucketOverlapsFile(requests[i], fi) {
			return true
		}
	}
	return false
}

func bucketOverlapsFile(req BucketRequest, fi *index.FileIndex) bool {
	headSec := int64(fi.HeadRealtime() / 1_000_000)
	tailSec := int64(fi.TailRealtime() / 1_000_000)
	return tailSec >= req.StartSec && headSec < req.EndSec
}

func splitFacet(key string) (field, value string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '=' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
