// Package index builds an in-memory roaring-bitmap index over one journal
// file's entries, giving the query layer sub-linear "field=value" lookups
// and per-bucket time-range counts without re-walking the mapped file.
package index

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring"
	"go.uber.org/zap"

	"github.com/netdata/journal/journalfile"
)

// niceBucketSeconds is the fixed set of "nice" histogram bucket durations a
// FileIndex chooses from, picking the largest whose resulting bucket count
// is still >= minBucketCount.
var niceBucketSeconds = []int64{
	1, 2, 5, 10, 15, 30,
	60, 120, 180, 300, 600, 900, 1800,
	3600, 2 * 3600, 6 * 3600, 8 * 3600, 12 * 3600,
	86400, 2 * 86400, 3 * 86400, 5 * 86400, 7 * 86400, 14 * 86400, 30 * 86400,
}

const minBucketCount = 50

// Allowlist is the set of field names a FileIndex bitmaps by value. Fields
// outside it are still observed (contributing to UnindexedFields) but never
// get a per-value bitmap, bounding index memory on high-cardinality fields
// (e.g. MESSAGE).
type Allowlist map[string]struct{}

// DefaultAllowlist indexes the journal fields a facet/filter UI commonly
// offers: unit, priority, identifiers, transport. Free-text fields like
// MESSAGE are deliberately excluded.
func DefaultAllowlist() Allowlist {
	fields := []string{
		"PRIORITY", "_SYSTEMD_UNIT", "_TRANSPORT", "_HOSTNAME", "_COMM",
		"_PID", "_UID", "_GID", "SYSLOG_IDENTIFIER", "_BOOT_ID", "UNIT",
	}
	a := make(Allowlist, len(fields))
	for _, f := range fields {
		a[f] = struct{}{}
	}
	return a
}

func (a Allowlist) allows(field string) bool {
	_, ok := a[field]
	return ok
}

// bucket is one time-histogram slot: [StartSec, StartSec+Width) mapped onto
// the dense entry-index range [FirstEntry, LastEntry].
type bucket struct {
	startSec   int64
	firstEntry uint32
	lastEntry  uint32
}

// FileIndex is an immutable, built-once index over a single journal file.
// Once built it may be shared by reference across goroutines: every query
// method is read-only.
type FileIndex struct {
	path string

	allow Allowlist
	log   *zap.SugaredLogger

	values map[string]*roaring.Bitmap // "field=value" -> entry indexes
	fields map[string]*roaring.Bitmap // field -> union of all its value bitmaps
	all    *roaring.Bitmap

	unindexed map[string]struct{}

	buckets      []bucket
	bucketWidth  int64
	headRealtime uint64
	tailRealtime uint64
	nEntries     uint32
}

// Option configures Build.
type Option func(*FileIndex)

// WithAllowlist overrides DefaultAllowlist.
func WithAllowlist(a Allowlist) Option {
	return func(fi *FileIndex) { fi.allow = a }
}

// WithLogger overrides the no-op default logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(fi *FileIndex) { fi.log = log }
}

// Build scans jf's entries in file order once, assigning each a dense
// entry_index, and constructs the value/field bitmaps and time histogram.
func Build(jf *journalfile.JournalFile, opts ...Option) (*FileIndex, error) {
	fi := &FileIndex{
		path:      jf.Path(),
		allow:     DefaultAllowlist(),
		log:       zap.NewNop().Sugar(),
		values:    make(map[string]*roaring.Bitmap),
		fields:    make(map[string]*roaring.Bitmap),
		all:       roaring.New(),
		unindexed: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(fi)
	}

	r := journalfile.NewReader(jf)
	defer r.Close()

	if err := r.SeekHead(); err != nil {
		return nil, err
	}

	var realtimes []int64
	var idx uint32

	for {
		ok, err := r.Step(true)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}

		realtime, err := r.GetRealtimeUsec()
		if err != nil {
			return nil, err
		}
		if fi.nEntries == 0 {
			fi.headRealtime = realtime
		}
		fi.tailRealtime = realtime
		realtimes = append(realtimes, int64(realtime/1_000_000))

		fi.all.Add(idx)

		r.EntryDataRestart()
		for {
			field, value, ok, err := r.EntryDataEnumerate()
			if err != nil {
				return nil, err
			}
			if !ok {
				break
			}
			fi.observe(string(field), string(value), idx)
		}

		idx++
		fi.nEntries++
	}

	fi.buildHistogram(realtimes)

	return fi, nil
}

func (fi *FileIndex) observe(field, value string, idx uint32) {
	if !fi.allow.allows(field) {
		fi.unindexed[field] = struct{}{}
		return
	}

	key := field + "=" + value
	vb, ok := fi.values[key]
	if !ok {
		vb = roaring.New()
		fi.values[key] = vb
	}
	vb.Add(idx)

	fb, ok := fi.fields[field]
	if !ok {
		fb = roaring.New()
		fi.fields[field] = fb
	}
	fb.Add(idx)
}

// buildHistogram chooses the largest "nice" bucket width whose resulting
// bucket count is still >= minBucketCount, then assigns each entry's dense
// index to its bucket.
func (fi *FileIndex) buildHistogram(realtimesSec []int64) {
	if len(realtimesSec) == 0 {
		return
	}

	start := realtimesSec[0]
	end := realtimesSec[len(realtimesSec)-1]
	span := end - start + 1

	width := niceBucketSeconds[0]
	for _, w := range niceBucketSeconds {
		if span/w >= minBucketCount {
			width = w
		}
	}
	fi.bucketWidth = width

	var buckets []bucket
	var cur *bucket
	curStart := int64(0)

	for i, sec := range realtimesSec {
		slot := alignDown(sec, width)
		if cur == nil || slot != curStart {
			if cur != nil {
				buckets = append(buckets, *cur)
			}
			curStart = slot
			cur = &bucket{startSec: slot, firstEntry: uint32(i), lastEntry: uint32(i)}
		} else {
			cur.lastEntry = uint32(i)
		}
	}
	if cur != nil {
		buckets = append(buckets, *cur)
	}

	fi.buckets = buckets
}

func alignDown(sec, width int64) int64 {
	return (sec / width) * width
}

// ValueBitmap implements filter.Resolver: the bitmap of entries carrying
// field=value, or an empty bitmap if the file never saw that pair.
func (fi *FileIndex) ValueBitmap(field, value string) *roaring.Bitmap {
	if b, ok := fi.values[field+"="+value]; ok {
		return b.Clone()
	}
	return roaring.New()
}

// FieldBitmap implements filter.Resolver: the union of every value bitmap
// for field.
func (fi *FileIndex) FieldBitmap(field string) *roaring.Bitmap {
	if b, ok := fi.fields[field]; ok {
		return b.Clone()
	}
	return roaring.New()
}

// Universe implements filter.Resolver: every indexed entry in the file.
func (fi *FileIndex) Universe() *roaring.Bitmap {
	return fi.all.Clone()
}

// Facets returns every "field=value" key this index has a bitmap for.
func (fi *FileIndex) Facets() []string {
	out := make([]string, 0, len(fi.values))
	for k := range fi.values {
		out = append(out, k)
	}
	return out
}

// UnindexedFields returns every field name observed outside the allowlist.
func (fi *FileIndex) UnindexedFields() []string {
	out := make([]string, 0, len(fi.unindexed))
	for f := range fi.unindexed {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// HeadRealtime and TailRealtime bound the file's entry timestamps (usec).
func (fi *FileIndex) HeadRealtime() uint64 { return fi.headRealtime }
func (fi *FileIndex) TailRealtime() uint64 { return fi.tailRealtime }

// NEntries returns the number of indexed entries.
func (fi *FileIndex) NEntries() uint32 { return fi.nEntries }

// CountEntriesInTimeRange intersects bitmap with the dense entry-index
// range [startSec, endSec) resolved via the time histogram, and returns the
// cardinality of the intersection.
func (fi *FileIndex) CountEntriesInTimeRange(bitmap *roaring.Bitmap, startSec, endSec int64) uint64 {
	lo, hi, ok := fi.entryRangeFor(startSec, endSec)
	if !ok {
		return 0
	}

	windowed := roaring.New()
	windowed.AddRange(uint64(lo), uint64(hi)+1)
	windowed.And(bitmap)

	return windowed.GetCardinality()
}

// entryRangeFor returns the [firstEntry, lastEntry] dense-index range
// covered by buckets overlapping [startSec, endSec).
func (fi *FileIndex) entryRangeFor(startSec, endSec int64) (lo, hi uint32, ok bool) {
	for _, b := range fi.buckets {
		bEnd := b.startSec + fi.bucketWidth
		if bEnd <= startSec || b.startSec >= endSec {
			continue
		}
		if !ok {
			lo, hi = b.firstEntry, b.lastEntry
			ok = true
			continue
		}
		if b.firstEntry < lo {
			lo = b.firstEntry
		}
		if b.lastEntry > hi {
			hi = b.lastEntry
		}
	}
	return lo, hi, ok
}

// Path returns the indexed file's path, for logging/diagnostics.
func (fi *FileIndex) Path() string { return fi.path }

func (fi *FileIndex) String() string {
	return fmt.Sprintf("FileIndex{path=%s entries=%d buckets=%d}", fi.path, fi.nEntries, len(fi.buckets))
}
