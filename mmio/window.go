package mmio

import (
	"os"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/netdata/journal/sigbus"
)

// DefaultWindowSize is the granule size the Manager maps at a time, matching
// the systemd journal's mmap cache window (8 MiB) so large files never need
// a single whole-file mapping.
const DefaultWindowSize = 8 << 20

// DefaultWindowCount bounds how many windows may be resident at once.
const DefaultWindowCount = 64

type window struct {
	index  int64 // window index: byte offset index/WindowSize
	base   int64 // absolute file offset of data[0]
	data   []byte
	refs   int32 // live View borrows; cannot unmap while > 0
	stale  atomic.Bool // evicted from the LRU while still borrowed
	mapper Mapper
}

func unmapStale(w *window) error {
	return w.mapper.Unmap(w.data)
}

// Manager maps fixed-size, 8-byte-aligned windows over a single open file on
// demand and keeps at most a bounded number of them resident, evicting the
// least recently used window when the bound is exceeded. A window borrowed
// via View is pinned: eviction marks it stale instead of unmapping it, and
// the last Release unmaps it.
type Manager struct {
	mu         sync.Mutex
	file       *os.File
	fd         int
	mapper     Mapper
	writable   bool
	windowSize int64
	cache      *lru.Cache[int64, *window]
}

// Option configures a Manager.
type Option func(*Manager)

// WithWindowSize overrides DefaultWindowSize.
func WithWindowSize(n int64) Option {
	return func(m *Manager) { m.windowSize = n }
}

// WithWindowCount overrides DefaultWindowCount.
func WithWindowCount(n int) Option {
	return func(m *Manager) {
		c, _ := lru.NewWithEvict(n, m.onEvict)
		m.cache = c
	}
}

// WithMapper overrides the Mapper, for tests.
func WithMapper(mapper Mapper) Option {
	return func(m *Manager) { m.mapper = mapper }
}

// WithWritable marks the mapping PROT_WRITE in addition to PROT_READ, for a
// file opened for appending.
func WithWritable(writable bool) Option {
	return func(m *Manager) { m.writable = writable }
}

// New creates a Manager over file.
func New(file *os.File, opts ...Option) *Manager {
	m := &Manager{
		file:       file,
		fd:         int(file.Fd()),
		mapper:     SyscallMapper{},
		windowSize: DefaultWindowSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache, _ = lru.NewWithEvict(DefaultWindowCount, m.onEvict)
	}
	return m
}

// onEvict runs with m.mu held (golang-lru invokes the callback synchronously
// from within Add).
func (m *Manager) onEvict(_ int64, w *window) {
	if atomic.LoadInt32(&w.refs) > 0 {
		w.stale.Store(true)
		return
	}
	_ = m.mapper.Unmap(w.data)
}

// View is a live borrow of a byte range backed by one or more resident
// windows. Release must be called exactly once.
type View struct {
	data []byte
	refs []*window
}

// Bytes returns the borrowed byte range.
func (v *View) Bytes() []byte { return v.data }

// Release returns the borrow, allowing any window it pinned to be unmapped
// once evicted.
func (v *View) Release() {
	releaseRefs(v.refs)
	v.refs = nil
	v.data = nil
}

func releaseRefs(refs []*window) {
	for _, w := range refs {
		if atomic.AddInt32(&w.refs, -1) == 0 && w.stale.Load() {
			_ = unmapStale(w)
		}
	}
}

// View implements object.Source: it returns a zero-copy (or, when the range
// spans windows, copied) byte slice for [offset, offset+length), plus a
// release function in place of the Acquire/View.Release pair.
func (m *Manager) View(offset uint64, length int) ([]byte, func(), error) {
	v, err := m.Acquire(offset, length)
	if err != nil {
		return nil, nil, err
	}
	return v.Bytes(), v.Release, nil
}

// Acquire returns a view of [offset, offset+length) in the mapped file,
// mapping and caching whatever windows are needed to cover it. The view is
// zero-copy when the range lies within one window; a range spanning windows
// is copied into an owned buffer.
func (m *Manager) Acquire(offset uint64, length int) (*View, error) {
	if length == 0 {
		return &View{}, nil
	}

	start := int64(offset)
	end := start + int64(length)

	winLo := start / m.windowSize
	winHi := (end - 1) / m.windowSize

	if winLo == winHi {
		w, err := m.acquire(winLo)
		if err != nil {
			return nil, err
		}
		lo := start - w.base
		return &View{data: w.data[lo : lo+int64(length)], refs: []*window{w}}, nil
	}

	// Range spans multiple windows: copy into an owned buffer rather than
	// exposing a non-contiguous view, since callers expect a single []byte.
	buf := make([]byte, length)
	var refs []*window
	guardErr := sigbus.Guard(func() error {
		pos := 0
		for idx := winLo; idx <= winHi; idx++ {
			w, err := m.acquire(idx)
			if err != nil {
				releaseRefs(refs)
				return err
			}
			refs = append(refs, w)

			segStart := int64(0)
			if idx == winLo {
				segStart = start - w.base
			}
			segEnd := int64(len(w.data))
			if idx == winHi {
				segEnd = end - w.base
			}
			pos += copy(buf[pos:], w.data[segStart:segEnd])
		}
		return nil
	})
	if guardErr != nil {
		return nil, guardErr
	}

	// The bytes are now independent of the windows; release the pins
	// immediately instead of holding them until the caller's Release.
	releaseRefs(refs)

	return &View{data: buf}, nil
}

func (m *Manager) acquire(index int64) (*window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w, ok := m.cache.Get(index); ok {
		atomic.AddInt32(&w.refs, 1)
		return w, nil
	}

	size, err := fileSize(m.file)
	if err != nil {
		return nil, err
	}

	base := index * m.windowSize
	length := m.windowSize
	if base+length > size {
		length = size - base
	}
	if length <= 0 {
		return nil, os.ErrInvalid
	}

	data, err := m.mapper.Map(m.fd, base, int(length), m.writable)
	if err != nil {
		return nil, err
	}

	w := &window{index: index, base: base, data: data, refs: 1, mapper: m.mapper}
	m.cache.Add(index, w)

	return w, nil
}

// Invalidate drops every resident window, forcing subsequent Views to remap.
// Called after the backing file has grown, since a stale window would hide
// newly appended bytes past its mapped length.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Purge()
}

// Close unmaps every resident window.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Purge()
	return nil
}
