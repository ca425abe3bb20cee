package object

import (
	"github.com/netdata/journal/errs"
	"github.com/netdata/journal/format"
)

// Source is the window-manager-backed byte provider objects are read
// through. Implemented by *mmio.Manager; mocked directly with a plain byte
// slice in tests.
type Source interface {
	// View returns a slice covering [offset, offset+length) and a release
	// function that must be called once the caller is done with it.
	View(offset uint64, length int) ([]byte, func(), error)
}

// Load fetches an object's header to learn its declared size, then re-fetches
// the full object and validates it, returning the full byte slice (index 0
// == offset) and a release function for it. The caller is responsible for
// calling release once done; the peek view is always released internally.
func Load(src Source, offset uint64, want format.ObjectType) (format.ObjectHeader, []byte, func(), error) {
	peek, release, err := src.View(offset, format.ObjectHeaderSize)
	if err != nil {
		return format.ObjectHeader{}, nil, nil, errs.NewOffsetError("load object", offset, err)
	}

	size, _, err := PeekSize(peek, offset)
	release()
	if err != nil {
		return format.ObjectHeader{}, nil, nil, err
	}
	if size < format.ObjectHeaderSize {
		return format.ObjectHeader{}, nil, nil, errs.NewOffsetError("load object", offset, errs.ErrSizeOverflow)
	}

	full, release, err := src.View(offset, int(size))
	if err != nil {
		return format.ObjectHeader{}, nil, nil, errs.NewOffsetError("load object", offset, err)
	}

	h, err := Header(full, offset, want)
	if err != nil {
		release()
		return format.ObjectHeader{}, nil, nil, err
	}

	return h, full, release, nil
}
