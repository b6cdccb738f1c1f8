package history

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentmonitor/pkg/types"
)

func record(i int) types.AnalysisRecord {
	return types.AnalysisRecord{"status": "ok", "face_count": 1, "seq": i}
}

func seqs(records []types.AnalysisRecord) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r["seq"].(int)
	}
	return out
}

func TestBuffer_NewBufferDefaults(t *testing.T) {
	b := NewBuffer(0)
	assert.Equal(t, DefaultCapacity, b.Capacity())
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Recent(DefaultSnapshotSize))
	assert.NotNil(t, b.Recent(DefaultSnapshotSize))
}

func TestBuffer_RecentReturnsSuffixInOrder(t *testing.T) {
	for _, n := range []int{0, 1, 49, 50, 51, 999, 1000} {
		b := NewBuffer(DefaultCapacity)
		for i := 0; i < n; i++ {
			b.Append(record(i))
		}

		want := n
		if want > 50 {
			want = 50
		}
		got := seqs(b.Recent(50))
		require.Len(t, got, want, "n=%d", n)
		for i, s := range got {
			assert.Equal(t, n-want+i, s, "n=%d position=%d", n, i)
		}
	}
}

func TestBuffer_EvictsExactlyOldestAtCapacity(t *testing.T) {
	b := NewBuffer(DefaultCapacity)
	for i := 0; i <= DefaultCapacity; i++ {
		b.Append(record(i))
	}

	assert.Equal(t, DefaultCapacity, b.Len())
	assert.Equal(t, uint64(DefaultCapacity+1), b.Total())

	all := seqs(b.Recent(DefaultCapacity))
	require.Len(t, all, DefaultCapacity)
	assert.Equal(t, 1, all[0])
	assert.Equal(t, DefaultCapacity, all[len(all)-1])
	for i := 1; i < len(all); i++ {
		assert.Equal(t, all[i-1]+1, all[i])
	}
}

func TestBuffer_SizeNeverExceedsCapacity(t *testing.T) {
	b := NewBuffer(7)
	for i := 0; i < 100; i++ {
		b.Append(record(i))
		assert.LessOrEqual(t, b.Len(), 7)

		recent := seqs(b.Recent(5))
		for j := 1; j < len(recent); j++ {
			assert.Equal(t, recent[j-1]+1, recent[j], "gap or reorder after %d appends", i+1)
		}
		assert.Equal(t, i, recent[len(recent)-1])
	}
}

func TestBuffer_RecentDoesNotAliasInternalStorage(t *testing.T) {
	b := NewBuffer(3)
	b.Append(record(0))
	b.Append(record(1))

	snapshot := b.Recent(2)
	snapshot[0] = record(99)

	assert.Equal(t, []int{0, 1}, seqs(b.Recent(2)))
}

func TestBuffer_NegativeRecent(t *testing.T) {
	b := NewBuffer(3)
	b.Append(record(0))
	assert.Empty(t, b.Recent(-5))
}

func TestBuffer_ConcurrentAppendAndRead(t *testing.T) {
	b := NewBuffer(100)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				b.Append(record(i))
			}
		}()
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				assert.LessOrEqual(t, len(b.Recent(50)), 50)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, b.Len())
	assert.Equal(t, uint64(4000), b.Total())
}
