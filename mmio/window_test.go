package mmio

import (
	"errors"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// failOnNthMapper is a Mapper whose Map call fails exactly on its nth
// invocation (1-indexed), for exercising window-manager recovery from a
// remap failure without touching real mmap syscalls.
type failOnNthMapper struct {
	calls  int32
	failOn int32
}

func (m *failOnNthMapper) Map(fd int, offset int64, length int, writable bool) ([]byte, error) {
	if atomic.AddInt32(&m.calls, 1) == m.failOn {
		return nil, errors.New("mock mmap failure")
	}
	return make([]byte, length), nil
}

func (m *failOnNthMapper) Unmap(data []byte) error { return nil }

func tempFile(t *testing.T, size int) *os.File {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "journal-*.test")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(int64(size)))

	t.Cleanup(func() { _ = f.Close() })

	return f
}

func TestManagerViewWithinSingleWindow(t *testing.T) {
	f := tempFile(t, 4096)

	b := make([]byte, 16)
	copy(b, "hello, journal!!")
	_, err := f.WriteAt(b, 100)
	require.NoError(t, err)

	m := New(f, WithWindowSize(1024))
	defer m.Close()

	v, err := m.Acquire(100, 16)
	require.NoError(t, err)
	defer v.Release()

	require.Equal(t, b, v.Bytes())
}

func TestManagerViewSpanningWindows(t *testing.T) {
	f := tempFile(t, 4096)

	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err := f.WriteAt(payload, 1000)
	require.NoError(t, err)

	m := New(f, WithWindowSize(1024))
	defer m.Close()

	v, err := m.Acquire(1000, 32)
	require.NoError(t, err)
	defer v.Release()

	require.Equal(t, payload, v.Bytes())
}

func TestManagerEvictsLeastRecentlyUsed(t *testing.T) {
	f := tempFile(t, 64*1024)

	m := New(f, WithWindowSize(1024), WithWindowCount(2))
	defer m.Close()

	for i := 0; i < 8; i++ {
		v, err := m.Acquire(uint64(i*1024), 8)
		require.NoError(t, err)
		v.Release()
	}
}

func TestManagerInvalidate(t *testing.T) {
	f := tempFile(t, 4096)

	m := New(f, WithWindowSize(1024))
	defer m.Close()

	v, err := m.Acquire(0, 8)
	require.NoError(t, err)
	v.Release()

	m.Invalidate()

	v2, err := m.Acquire(0, 8)
	require.NoError(t, err)
	v2.Release()
}

// TestManagerRecoversFromFailedRemap exercises window-manager recovery from
// a failed remap: a mapping that fails on its 2nd call must leave the
// Manager's cache in a state where a previously-successful range can still
// be re-acquired afterward, rather than wedged by the partially-completed
// multi-window attempt.
func TestManagerRecoversFromFailedRemap(t *testing.T) {
	f := tempFile(t, 8192)

	mapper := &failOnNthMapper{failOn: 2}
	m := New(f, WithWindowSize(100), WithMapper(mapper))
	defer m.Close()

	v, err := m.Acquire(0, 100)
	require.NoError(t, err)
	v.Release()

	_, err = m.Acquire(100, 3900)
	require.Error(t, err)

	v2, err := m.Acquire(0, 100)
	require.NoError(t, err, "state must have been rolled back after the failed remap")
	v2.Release()
}

func TestViewZeroLength(t *testing.T) {
	f := tempFile(t, 4096)

	m := New(f, WithWindowSize(1024))
	defer m.Close()

	data, release, err := m.View(0, 0)
	require.NoError(t, err)
	require.Nil(t, data)
	release()
}
