// Package mmio provides the memory-mapped window manager that backs
// zero-copy reads of journal files, and the single-borrow guard primitive
// that protects callers from a window being remapped out from under them.
package mmio

import (
	"os"

	"golang.org/x/sys/unix"
)

// Mapper abstracts the mmap/munmap syscalls so the window manager can be
// exercised without a real file descriptor in tests.
type Mapper interface {
	Map(fd int, offset int64, length int, writable bool) ([]byte, error)
	Unmap(data []byte) error
}

// SyscallMapper is the production Mapper, backed by golang.org/x/sys/unix.
type SyscallMapper struct{}

func (SyscallMapper) Map(fd int, offset int64, length int, writable bool) ([]byte, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}

	data, err := unix.Mmap(fd, offset, length, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	return data, nil
}

func (SyscallMapper) Unmap(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	return unix.Munmap(data)
}

// fileSize returns the current size of the open file, used by the window
// manager to decide whether a requested range still fits.
func fileSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
