package hashtable

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/halvardlabs/txmap/internal/htm"
)

// dumpedBucket is a parsed line of DumpBuckets output, for tests that need
// to assert on per-bucket figures rather than just the raw text.
type dumpedBucket struct {
	Bucket, Slots, Live int
}

func parseDump(t *testing.T, m *Map[int, int]) []dumpedBucket {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, m.DumpBuckets(&buf))
	var out []dumpedBucket
	for _, line := range bytes.Split(bytes.TrimRight(buf.Bytes(), "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		var d dumpedBucket
		_, err := fmt.Sscanf(string(line), "bucket=%d slots=%d live=%d", &d.Bucket, &d.Slots, &d.Live)
		require.NoError(t, err)
		out = append(out, d)
	}
	return out
}

func TestMapInsertFindRoundTrip(t *testing.T) {
	m := New[string, int]()

	it, inserted := m.Insert("a", 1)
	require.True(t, inserted)
	_, v, ok := it.Get()
	require.True(t, ok)
	require.Equal(t, 1, v)

	found, ok := m.Find("a")
	require.True(t, ok)
	_, v, ok = found.Get()
	require.True(t, ok)
	require.Equal(t, 1, v)

	_, ok = m.Find("missing")
	require.False(t, ok)
}

func TestMapInsertDoesNotOverwrite(t *testing.T) {
	m := New[string, int]()

	_, inserted := m.Insert("a", 1)
	require.True(t, inserted)

	it, inserted := m.Insert("a", 2)
	require.False(t, inserted)
	_, v, ok := it.Get()
	require.True(t, ok)
	require.Equal(t, 1, v)

	found, ok := m.Find("a")
	require.True(t, ok)
	_, v, ok = found.Get()
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestMapFindComposedIntoEraseRemovesEntry(t *testing.T) {
	m := New[string, int]()
	m.Insert("a", 1)

	it, ok := m.Find("a")
	require.True(t, ok)
	require.True(t, m.Erase(it))

	_, ok = m.Find("a")
	require.False(t, ok)
}

func TestMapEraseRemovesAndReportsPresence(t *testing.T) {
	m := New[string, int]()
	it, _ := m.Insert("a", 1)

	require.True(t, m.Erase(it))
	_, ok := m.Find("a")
	require.False(t, ok)

	require.False(t, m.Erase(it))
}

func TestMapEraseOnEndIteratorReturnsFalse(t *testing.T) {
	m := New[string, int]()
	require.False(t, m.Erase(m.End()))
}

func TestMapSizeAndEmpty(t *testing.T) {
	m := New[int, int]()
	require.True(t, m.Empty())
	require.Equal(t, 0, m.Size())

	its := make([]Iterator[int, int], 0, 50)
	for i := 0; i < 50; i++ {
		it, _ := m.Insert(i, i*i)
		its = append(its, it)
	}
	require.False(t, m.Empty())
	require.Equal(t, 50, m.Size())

	for i := 0; i < 25; i++ {
		require.True(t, m.Erase(its[i]))
	}
	require.Equal(t, 25, m.Size())
}

func TestMapClearResetsSizeAndEntries(t *testing.T) {
	m := New[int, int]()
	for i := 0; i < 30; i++ {
		m.Insert(i, i)
	}
	m.Clear()
	require.True(t, m.Empty())
	for i := 0; i < 30; i++ {
		_, ok := m.Find(i)
		require.False(t, ok)
	}
}

func TestMapReserveRefusesOnNonEmpty(t *testing.T) {
	m := New[int, int]()
	m.Insert(1, 1)
	err := m.Reserve(7)
	require.ErrorIs(t, err, ErrReserveOnNonEmpty)
}

func TestMapReserveChangesBucketCountOnEmpty(t *testing.T) {
	m := New[int, int](WithBucketCount[int, int](4))
	require.NoError(t, m.Reserve(17))
	require.Len(t, parseDump(t, m), 17)

	m.Insert(1, 1)
	found, ok := m.Find(1)
	require.True(t, ok)
	_, v, ok := found.Get()
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestMapGrowsBucketsBeyondInitialCapacity(t *testing.T) {
	m := NewWithBuckets[int, int](1)
	for i := 0; i < 200; i++ {
		m.Insert(i, i)
	}
	require.Equal(t, 200, m.Size())
	for i := 0; i < 200; i++ {
		found, ok := m.Find(i)
		require.True(t, ok)
		_, v, ok := found.Get()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestMapDumpBucketsTracksSizeAndCount(t *testing.T) {
	m := NewWithBuckets[int, int](8)
	for i := 0; i < 40; i++ {
		m.Insert(i, i)
	}
	dump := parseDump(t, m)
	require.Len(t, dump, 8)
	total := 0
	for i, d := range dump {
		require.Equal(t, i, d.Bucket)
		require.GreaterOrEqual(t, d.Slots, d.Live)
		total += d.Live
	}
	require.Equal(t, 40, total)
}

func TestMapEraseShrinksTrailingEmptySlots(t *testing.T) {
	m := NewWithBuckets[int, int](1)
	its := make([]Iterator[int, int], 0, 10)
	for i := 0; i < 10; i++ {
		it, _ := m.Insert(i*4, i)
		its = append(its, it)
	}
	for _, it := range its {
		require.True(t, m.Erase(it))
	}
	dump := parseDump(t, m)
	require.Equal(t, 0, dump[0].Live)
	require.Equal(t, 0, dump[0].Slots)
}

func TestMapIteratesEveryOccupiedSlotExactlyOnce(t *testing.T) {
	m := NewWithBuckets[int, string](4)
	want := map[int]string{}
	for i := 0; i < 37; i++ {
		want[i] = fmt.Sprintf("v%d", i)
		m.Insert(i, want[i])
	}

	got := map[int]string{}
	for it := m.Begin(); !it.IsEnd(); {
		k, v, ok := it.Get()
		require.True(t, ok)
		got[k] = v
		it, ok = it.Next()
		if !ok {
			break
		}
	}
	require.Equal(t, want, got)
}

func TestMapEndIteratorIsAlwaysEnd(t *testing.T) {
	m := New[int, int]()
	require.True(t, m.End().IsEnd())
	_, _, ok := m.End().Get()
	require.False(t, ok)
}

func TestMapEmptyMapBeginIsEnd(t *testing.T) {
	m := New[int, int]()
	require.True(t, m.Begin().IsEnd())
}

func TestMapConcurrentInsertsAllSucceedExactlyOnce(t *testing.T) {
	m := NewWithBuckets[int, int](16)
	const n = 2000
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m.Insert(i, i)
		}(i)
	}
	wg.Wait()
	require.Equal(t, n, m.Size())
	for i := 0; i < n; i++ {
		found, ok := m.Find(i)
		require.True(t, ok)
		_, v, ok := found.Get()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
}

func TestMapConcurrentInsertsOfSameKeyLandExactlyOneWinner(t *testing.T) {
	m := New[string, int]()
	const n = 64
	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, inserted := m.Insert("shared", i)
			results[i] = inserted
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, r := range results {
		if r {
			wins++
		}
	}
	require.Equal(t, 1, wins)
	require.Equal(t, 1, m.Size())
}

func TestMapConcurrentFindDuringInsertsNeverObservesTornEntry(t *testing.T) {
	m := NewWithBuckets[int, int](4)
	const n = 500
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			m.Insert(i, i)
		}
		close(stop)
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for i := 0; i < n; i++ {
					if found, ok := m.Find(i); ok {
						_, v, ok := found.Get()
						require.True(t, ok)
						require.Equal(t, i, v)
					}
				}
			}
		}()
	}
	wg.Wait()
}

func TestMapWithForcedPessimisticPathBehavesIdentically(t *testing.T) {
	htm.ForceDisable(true)
	t.Cleanup(func() { htm.ForceDisable(false) })

	m := New[string, int]()
	it, inserted := m.Insert("a", 1)
	require.True(t, inserted)
	found, ok := m.Find("a")
	require.True(t, ok)
	_, v, ok := found.Get()
	require.True(t, ok)
	require.Equal(t, 1, v)
	require.True(t, m.Erase(it))
}

func TestMapCustomHasherAndEqual(t *testing.T) {
	type key struct{ id int }
	calls := 0
	m := New[key, string](
		WithHasher[key, string](func(k key) uint64 {
			calls++
			return uint64(k.id)
		}),
		WithEqual[key, string](func(a, b key) bool {
			return a.id == b.id
		}),
	)

	m.Insert(key{id: 1}, "one")
	found, ok := m.Find(key{id: 1})
	require.True(t, ok)
	_, v, ok := found.Get()
	require.True(t, ok)
	require.Equal(t, "one", v)
	require.Greater(t, calls, 0)
}
