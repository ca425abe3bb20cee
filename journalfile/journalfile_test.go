package journalfile

import (
	"path/filepath"
	"testing"

	"github.com/netdata/journal/errs"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func createTestFile(t *testing.T) *JournalFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "system.journal")
	jf, err := Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = jf.Close() })
	return jf
}

func TestWriterAddEntryThenReaderRoundTrip(t *testing.T) {
	jf := createTestFile(t)

	w, err := NewWriter(jf)
	require.NoError(t, err)

	bootID := [16]byte{1, 2, 3, 4}

	_, err = w.AddEntry([]Field{
		{Name: "MESSAGE", Value: []byte("hello world")},
		{Name: "PRIORITY", Value: []byte("6")},
	}, 1000, 500, bootID)
	require.NoError(t, err)

	_, err = w.AddEntry([]Field{
		{Name: "MESSAGE", Value: []byte("second entry")},
		{Name: "PRIORITY", Value: []byte("3")},
	}, 2000, 1500, bootID)
	require.NoError(t, err)

	r := NewReader(jf)
	defer r.Close()

	require.NoError(t, r.SeekHead())

	ok, err := r.Step(true)
	require.NoError(t, err)
	require.True(t, ok)

	seqnum, err := r.GetSeqnum()
	require.NoError(t, err)
	require.Equal(t, uint64(1), seqnum)

	realtime, err := r.GetRealtimeUsec()
	require.NoError(t, err)
	require.Equal(t, uint64(1000), realtime)

	r.EntryDataRestart()
	fields := map[string]string{}
	for {
		field, value, ok, err := r.EntryDataEnumerate()
		require.NoError(t, err)
		if !ok {
			break
		}
		fields[string(field)] = string(value)
	}
	require.Equal(t, "hello world", fields["MESSAGE"])
	require.Equal(t, "6", fields["PRIORITY"])

	ok, err = r.Step(true)
	require.NoError(t, err)
	require.True(t, ok)

	seqnum, err = r.GetSeqnum()
	require.NoError(t, err)
	require.Equal(t, uint64(2), seqnum)

	ok, err = r.Step(true)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReaderAddMatchFilters(t *testing.T) {
	jf := createTestFile(t)

	w, err := NewWriter(jf)
	require.NoError(t, err)

	bootID := [16]byte{}
	_, err = w.AddEntry([]Field{{Name: "PRIORITY", Value: []byte("6")}}, 1000, 500, bootID)
	require.NoError(t, err)
	_, err = w.AddEntry([]Field{{Name: "PRIORITY", Value: []byte("3")}}, 2000, 1500, bootID)
	require.NoError(t, err)

	r := NewReader(jf)
	defer r.Close()

	require.NoError(t, r.AddMatch("PRIORITY", "3"))
	r.ApplyMatches()
	require.NoError(t, r.SeekHead())

	ok, err := r.Step(true)
	require.NoError(t, err)
	require.True(t, ok)

	realtime, err := r.GetRealtimeUsec()
	require.NoError(t, err)
	require.Equal(t, uint64(2000), realtime)

	ok, err = r.Step(true)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFieldsEnumerateAndQueryUnique(t *testing.T) {
	jf := createTestFile(t)

	w, err := NewWriter(jf)
	require.NoError(t, err)

	bootID := [16]byte{}
	_, err = w.AddEntry([]Field{{Name: "UNIT", Value: []byte("a.service")}}, 1000, 500, bootID)
	require.NoError(t, err)
	_, err = w.AddEntry([]Field{{Name: "UNIT", Value: []byte("b.service")}}, 2000, 1500, bootID)
	require.NoError(t, err)
	_, err = w.AddEntry([]Field{{Name: "UNIT", Value: []byte("a.service")}}, 3000, 2500, bootID)
	require.NoError(t, err)

	r := NewReader(jf)
	defer r.Close()

	r.FieldsRestart()
	var names []string
	for {
		name, ok, err := r.FieldsEnumerate()
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, string(name))
	}
	require.Contains(t, names, "UNIT")

	values, err := r.FieldDataQueryUnique([]byte("UNIT"))
	require.NoError(t, err)
	require.Len(t, values, 2)
}

func TestWarnIfChainTooLongLogsPastThreshold(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	jf := &JournalFile{log: zap.New(core).Sugar()}

	jf.warnIfChainTooLong("data_hash_table", 7, hashChainWarnThreshold)
	require.Equal(t, 0, logs.Len(), "must not warn at exactly the threshold")

	jf.warnIfChainTooLong("data_hash_table", 7, hashChainWarnThreshold+1)
	require.Equal(t, 1, logs.Len())
}

func TestAddEntryNowStampsMonotonicRealtime(t *testing.T) {
	jf := createTestFile(t)

	w, err := NewWriter(jf)
	require.NoError(t, err)

	bootID := [16]byte{}
	_, err = w.AddEntryNow([]Field{{Name: "MESSAGE", Value: []byte("first")}}, bootID)
	require.NoError(t, err)
	_, err = w.AddEntryNow([]Field{{Name: "MESSAGE", Value: []byte("second")}}, bootID)
	require.NoError(t, err)

	r := NewReader(jf)
	defer r.Close()
	require.NoError(t, r.SeekHead())

	ok, err := r.Step(true)
	require.NoError(t, err)
	require.True(t, ok)
	first, err := r.GetRealtimeUsec()
	require.NoError(t, err)

	ok, err = r.Step(true)
	require.NoError(t, err)
	require.True(t, ok)
	second, err := r.GetRealtimeUsec()
	require.NoError(t, err)

	require.Greater(t, second, first)
}

func TestLongFieldNameRemapsAndMaterializesOriginal(t *testing.T) {
	jf := createTestFile(t)

	w, err := NewWriter(jf)
	require.NoError(t, err)

	longName := "THIS_IS_A_VERY_LONG_FIELD_NAME_THAT_EXCEEDS_THE_SIXTY_FOUR_BYTE_LIMIT_FOR_FIELD_NAMES"
	require.Greater(t, len(longName), maxFieldNameLength)

	bootID := [16]byte{}
	_, err = w.AddEntry([]Field{
		{Name: longName, Value: []byte("v1")},
		{Name: "MESSAGE", Value: []byte("hi")},
	}, 1000, 500, bootID)
	require.NoError(t, err)

	_, err = w.AddEntry([]Field{
		{Name: longName, Value: []byte("v2")},
	}, 2000, 1500, bootID)
	require.NoError(t, err)

	r := NewReader(jf)
	defer r.Close()
	require.NoError(t, r.SeekHead())

	var seenValues []string
	for {
		ok, err := r.Step(true)
		require.NoError(t, err)
		if !ok {
			break
		}
		r.EntryDataRestart()
		fields := map[string]string{}
		for {
			field, value, ok, err := r.EntryDataEnumerate()
			require.NoError(t, err)
			if !ok {
				break
			}
			fields[string(field)] = string(value)
		}
		if v, ok := fields[longName]; ok {
			seenValues = append(seenValues, v)
		}
	}
	require.ElementsMatch(t, []string{"v1", "v2"}, seenValues, "both values must decode back under the original long field name")

	r2 := NewReader(jf)
	defer r2.Close()
	require.NoError(t, r2.AddMatch(longName, "v2"))
	r2.ApplyMatches()
	require.NoError(t, r2.SeekHead())

	ok, err := r2.Step(true)
	require.NoError(t, err)
	require.True(t, ok)
	realtime, err := r2.GetRealtimeUsec()
	require.NoError(t, err)
	require.Equal(t, uint64(2000), realtime, "AddMatch must translate the original field name through the remapping table")

	values, err := r2.FieldDataQueryUnique([]byte(longName))
	require.NoError(t, err)
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = string(v)
	}
	require.ElementsMatch(t, []string{"v1", "v2"}, strs)

	r3 := NewReader(jf)
	defer r3.Close()
	r3.FieldsRestart()
	var names []string
	for {
		name, ok, err := r3.FieldsEnumerate()
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, string(name))
	}
	require.Contains(t, names, longName, "the original long field name must be enumerated")
	require.NotContains(t, names, remappingMarkerField, "the internal marker field must never be surfaced")
}

func TestWriterAddEntryFailsFastOnConcurrentAppend(t *testing.T) {
	jf := createTestFile(t)

	w, err := NewWriter(jf)
	require.NoError(t, err)

	g, err := w.guard.TryGuard()
	require.NoError(t, err)
	defer g.Release()

	_, err = w.AddEntry([]Field{{Name: "MESSAGE", Value: []byte("x")}}, 1000, 500, [16]byte{})
	require.ErrorIs(t, err, errs.ErrValueGuardInUse)
}

func TestReaderVerifyXorHashToggle(t *testing.T) {
	jf := createTestFile(t)

	w, err := NewWriter(jf)
	require.NoError(t, err)

	bootID := [16]byte{}
	_, err = w.AddEntry([]Field{{Name: "MESSAGE", Value: []byte("intact")}}, 1000, 500, bootID)
	require.NoError(t, err)

	r := NewReader(jf)
	defer r.Close()
	require.NoError(t, r.SeekHead())
	ok, err := r.Step(true)
	require.NoError(t, err)
	require.True(t, ok, "an uncorrupted entry must still verify cleanly")

	r2 := NewReader(jf)
	defer r2.Close()
	r2.SetVerifyXorHash(false)
	require.NoError(t, r2.SeekHead())
	ok, err = r2.Step(true)
	require.NoError(t, err)
	require.True(t, ok, "disabling verification must still resolve the entry")
}
