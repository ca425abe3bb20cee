package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/netdata/journal/journalfile"
)

func writeJournalWithEntries(t *testing.T, path string, realtimes ...uint64) {
	t.Helper()

	jf, err := journalfile.Create(path)
	require.NoError(t, err)
	defer jf.Close()

	w, err := journalfile.NewWriter(jf)
	require.NoError(t, err)

	bootID := [16]byte{}
	for _, rt := range realtimes {
		_, err := w.AddEntry([]journalfile.Field{
			{Name: "MESSAGE", Value: []byte("entry")},
		}, rt, rt, bootID)
		require.NoError(t, err)
	}
}

func TestScanOrdersChainAndSkipsUnparseable(t *testing.T) {
	dir := t.TempDir()

	writeJournalWithEntries(t, filepath.Join(dir, "system.journal"), 5_000_000, 6_000_000)
	writeJournalWithEntries(t, filepath.Join(dir,
		"system@0123456789abcdef0123456789abcdef-0000000000000001-0000000000000001.journal"),
		1_000_000, 2_000_000)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "not-a-journal.txt"), []byte("ignored"), 0644))

	r, err := Scan(dir)
	require.NoError(t, err)

	files := r.Files()
	require.Len(t, files, 2)
	require.Equal(t, StateArchived, files[0].Name.State)
	require.Equal(t, StateActive, files[1].Name.State)
}

func TestFindFilesInRangeOverlap(t *testing.T) {
	dir := t.TempDir()

	writeJournalWithEntries(t, filepath.Join(dir, "system.journal"), 5_000_000, 6_000_000)

	r, err := Scan(dir)
	require.NoError(t, err)

	inRange := r.FindFilesInRange(4, 10)
	require.Len(t, inRange, 1)

	outOfRange := r.FindFilesInRange(0, 4)
	require.Len(t, outOfRange, 0)
}
