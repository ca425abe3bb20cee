// Package journalfile ties the object, cursor, and filter layers together
// into the two user-facing primitives: JournalFile (the open/create
// lifecycle and shared hash-table lookups) and the Reader and Writer built
// on top of it.
package journalfile

import (
	"os"
	"sync"

	"github.com/netdata/journal/clock"
	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/format"
	"github.com/netdata/journal/internal/jenkins"
	"github.com/netdata/journal/internal/xhash"
	"github.com/netdata/journal/mmio"
	"github.com/netdata/journal/object"
	"go.uber.org/zap"
)

// JournalFile is an open systemd-journal-compatible file, backed by a
// windowed memory mapping. It owns the shared header and hash-table lookups
// both Reader and Writer need; a single JournalFile may be wrapped by many
// concurrent Readers but only one Writer.
type JournalFile struct {
	path   string
	file   *os.File
	mgr    *mmio.Manager
	header format.JournalHeader

	writable bool
	keyer    xhash.Keyer
	keyed    bool

	mu       sync.RWMutex
	log      *zap.SugaredLogger
	mmioOpts []mmio.Option
	clk      *clock.Clock
}

// Option configures Open/Create.
type Option func(*JournalFile)

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(jf *JournalFile) { jf.log = log }
}

// WithWindowSize overrides the mmio.Manager's window granule size.
func WithWindowSize(n int64) Option {
	return func(jf *JournalFile) {
		jf.mmioOpts = append(jf.mmioOpts, mmio.WithWindowSize(n))
	}
}

// Open opens an existing journal file read-only.
func Open(path string, opts ...Option) (*JournalFile, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}

	jf := newJournalFile(path, f, false, opts...)

	if err := jf.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}

	return jf, nil
}

// OpenForWrite opens an existing journal file for appending. It refuses
// files that don't declare the keyed-hash incompatible flag, matching the
// writer's hashing contract.
func OpenForWrite(path string, opts ...Option) (*JournalFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	jf := newJournalFile(path, f, true, opts...)

	if err := jf.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if !jf.header.HasKeyedHash() {
		_ = f.Close()
		return nil, errs.ErrKeyedHashRequired
	}

	return jf, nil
}

func newJournalFile(path string, f *os.File, writable bool, opts ...Option) *JournalFile {
	jf := &JournalFile{
		path:     path,
		file:     f,
		writable: writable,
		log:      zap.NewNop().Sugar(),
		clk:      clock.New(),
	}
	for _, opt := range opts {
		opt(jf)
	}
	mgrOpts := append([]mmio.Option{mmio.WithWritable(writable)}, jf.mmioOpts...)
	jf.mgr = mmio.New(f, mgrOpts...)

	return jf
}

func (jf *JournalFile) readHeader() error {
	data, release, err := jf.mgr.View(0, format.HeaderSize)
	if err != nil {
		return err
	}
	defer release()

	var h format.JournalHeader
	if err := h.Parse(data); err != nil {
		return err
	}

	jf.header = h
	jf.keyed = h.HasKeyedHash()
	if jf.keyed {
		jf.keyer = xhash.NewKeyer(h.FileID)
	}

	// Floor the append clock at whatever realtime this file already
	// contains, so a freshly opened writer never stamps an entry earlier
	// than one already on disk.
	jf.clk.Observe(h.TailEntryRealtime)

	return nil
}

// Header returns a copy of the journal header as of the last read.
func (jf *JournalFile) Header() format.JournalHeader {
	jf.mu.RLock()
	defer jf.mu.RUnlock()
	return jf.header
}

// Source exposes the underlying window manager as an object.Source.
func (jf *JournalFile) Source() object.Source { return jf.mgr }

// NowUsec returns the next realtime-usec timestamp for an entry appended to
// this file, monotonically non-decreasing across the file's lifetime.
func (jf *JournalFile) NowUsec() uint64 { return jf.clk.NowUsec() }

// Compact reports whether this file uses the compact (4-byte item) on-disk encoding.
func (jf *JournalFile) Compact() bool { return jf.header.HasCompactMode() }

// Path returns the file's path on disk.
func (jf *JournalFile) Path() string { return jf.path }

// Hash computes the bucket hash for payload using this file's hashing mode
// (keyed xxhash, or Jenkins lookup3 for legacy files).
func (jf *JournalFile) Hash(payload []byte) uint64 {
	if jf.keyed {
		return jf.keyer.Hash64(payload)
	}
	return jenkins.Hash64(payload)
}

// XorHash computes an entry's integrity hash, which always uses Jenkins
// lookup3 regardless of the file's hashing mode.
func XorHash(dataHashes []uint64) uint64 {
	var x uint64
	for _, h := range dataHashes {
		x ^= h
	}
	return x
}

// Close releases the window manager and closes the underlying file.
func (jf *JournalFile) Close() error {
	_ = jf.mgr.Close()
	return jf.file.Close()
}

// hashChainWarnThreshold is the bucket chain length past which a lookup logs
// a HashChainWarning: the file format places no upper bound on chain length,
// so a pathologically hot bucket (e.g. one recurring field value) degrades
// lookups to a long linear walk without this being surfaced anywhere else.
const hashChainWarnThreshold = 1024

// lookupData finds the Data object whose payload equals fieldValue, via the
// file's data hash table. It returns ok=false (not an error) if no such
// object exists in this file.
func (jf *JournalFile) lookupData(fieldValue []byte) (offset uint64, ok bool, err error) {
	hash := jf.Hash(fieldValue)

	h, data, release, err := object.Load(jf.mgr, jf.header.DataHashTableOffset, format.ObjectDataHashTable)
	if err != nil {
		return 0, false, err
	}
	table, err := object.ParseHashTable(h, data, jf.header.DataHashTableOffset)
	if err != nil {
		release()
		return 0, false, err
	}

	idx := table.BucketIndex(hash)
	head, _, err := table.Bucket(int(idx))
	release()
	if err != nil {
		return 0, false, err
	}

	chainLen := 0
	for cur := head; cur != 0; {
		chainLen++
		dh, ddata, drelease, err := object.Load(jf.mgr, cur, format.ObjectData)
		if err != nil {
			return 0, false, err
		}
		d, err := object.ParseData(dh, ddata, cur, jf.Compact())
		if err != nil {
			drelease()
			return 0, false, err
		}

		if d.Hash == hash {
			payload, err := d.Payload()
			if err != nil {
				drelease()
				return 0, false, err
			}
			if string(payload) == string(fieldValue) {
				drelease()
				jf.warnIfChainTooLong("data_hash_table", idx, chainLen)
				return cur, true, nil
			}
		}

		next := d.NextHashOffset
		drelease()
		cur = next
	}

	jf.warnIfChainTooLong("data_hash_table", idx, chainLen)
	return 0, false, nil
}

func (jf *JournalFile) warnIfChainTooLong(table string, bucketIndex uint64, chainLen int) {
	if chainLen <= hashChainWarnThreshold {
		return
	}
	w := errs.HashChainWarning{Table: table, BucketIndex: bucketIndex, ChainLength: chainLen}
	jf.log.Warnw("hash table bucket chain exceeds pathology threshold", "warning", w.String())
}

// lookupField finds the Field object whose name equals field, via the
// file's field hash table.
func (jf *JournalFile) lookupField(field []byte) (offset uint64, ok bool, err error) {
	hash := jf.Hash(field)

	h, data, release, err := object.Load(jf.mgr, jf.header.FieldHashTableOffset, format.ObjectFieldHashTable)
	if err != nil {
		return 0, false, err
	}
	table, err := object.ParseHashTable(h, data, jf.header.FieldHashTableOffset)
	if err != nil {
		release()
		return 0, false, err
	}

	idx := table.BucketIndex(hash)
	head, _, err := table.Bucket(int(idx))
	release()
	if err != nil {
		return 0, false, err
	}

	chainLen := 0
	for cur := head; cur != 0; {
		chainLen++
		fh, fdata, frelease, err := object.Load(jf.mgr, cur, format.ObjectField)
		if err != nil {
			return 0, false, err
		}
		fo, err := object.ParseField(fh, fdata, cur)
		if err != nil {
			frelease()
			return 0, false, err
		}

		if fo.Hash == hash && string(fo.Name) == string(field) {
			frelease()
			jf.warnIfChainTooLong("field_hash_table", idx, chainLen)
			return cur, true, nil
		}

		next := fo.NextHashOffset
		frelease()
		cur = next
	}

	jf.warnIfChainTooLong("field_hash_table", idx, chainLen)
	return 0, false, nil
}
