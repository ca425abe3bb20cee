package repository

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/netdata/journal/journalfile"
)

// File is one entry in a Repository's ordered chain: a journal file plus
// the metadata the core needs to decide whether it overlaps a query range,
// without holding it open.
type File struct {
	Path         string
	Name         Name
	HeadRealtime uint64
	TailRealtime uint64
	Active       bool
}

// Repository is an ordered chain of journal files sharing one machine-id
// directory and origin (system/user-N/remote-host). Construct with Scan;
// the chain is immutable once built — pick up new/rotated files with a
// fresh Scan.
type Repository struct {
	dir   string
	files []File
	log   *zap.SugaredLogger
}

// Option configures Scan.
type Option func(*Repository)

// WithLogger overrides the default no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Repository) { r.log = log }
}

// Scan reads every *.journal and *.journal~ entry in dir, parses their
// basenames, opens each long enough to read its header for head/tail
// realtime, and orders the result per the chain ordering rule: disposed
// first, then archived ascending by head realtime, then active last.
func Scan(dir string, opts ...Option) (*Repository, error) {
	r := &Repository{dir: dir, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(r)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base := e.Name()
		if !strings.HasSuffix(base, ".journal") && !strings.HasSuffix(base, ".journal~") {
			continue
		}

		name, err := Parse(base)
		if err != nil {
			r.log.Debugw("skipping unrecognized journal file name", "name", base, "error", err)
			continue
		}

		path := filepath.Join(dir, base)
		f, err := fileMetadata(path, name)
		if err != nil {
			r.log.Warnw("skipping unreadable journal file", "path", path, "error", err)
			continue
		}

		r.files = append(r.files, f)
	}

	sortChain(r.files)

	return r, nil
}

func fileMetadata(path string, name Name) (File, error) {
	jf, err := journalfile.Open(path)
	if err != nil {
		return File{}, err
	}
	defer jf.Close()

	h := jf.Header()
	return File{
		Path:         path,
		Name:         name,
		HeadRealtime: h.HeadEntryRealtime,
		TailRealtime: h.TailEntryRealtime,
		Active:       name.State == StateActive,
	}, nil
}

// sortChain orders files per spec: disposed first, then archived ascending
// by head realtime, then active last. Disposed files have no reliable
// head realtime from their name alone so they sort by name (their hex
// timestamp prefix) to keep the ordering deterministic.
func sortChain(files []File) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if a.Name.State != b.Name.State {
			return a.Name.State < b.Name.State
		}
		if a.Name.State == StateArchived {
			return a.HeadRealtime < b.HeadRealtime
		}
		if a.Name.State == StateDisposed {
			return a.Name.DisposedTSHex < b.Name.DisposedTSHex
		}
		return false
	})
}

// FindFilesInRange returns every file whose [head_realtime, tail_realtime)
// interval overlaps [startSec, endSec). Active files are assumed to extend
// to +infinity. An active file's head is its own head realtime; the file
// preceding it in the chain is not consulted.
func (r *Repository) FindFilesInRange(startSec, endSec int64) []File {
	startUsec := uint64(startSec) * 1_000_000
	endUsec := uint64(endSec) * 1_000_000

	var out []File
	for _, f := range r.files {
		head := f.HeadRealtime
		tail := f.TailRealtime
		if f.Active {
			tail = ^uint64(0)
		}

		if tail <= startUsec || head >= endUsec {
			continue
		}
		out = append(out, f)
	}

	return out
}

// Files returns the full ordered chain.
func (r *Repository) Files() []File { return r.files }
