package history

import (
	"sync"

	"studentmonitor/pkg/types"
)

const (
	// DefaultCapacity is the number of records kept for late-joining consumers
	DefaultCapacity = 1000

	// DefaultSnapshotSize is how many records a consumer receives on connect
	DefaultSnapshotSize = 50
)

// Buffer is a bounded FIFO of analysis records.
// Backed by a fixed ring so Append is O(1) and eviction never shifts memory.
type Buffer struct {
	mu       sync.RWMutex
	records  []types.AnalysisRecord
	head     int // index of the oldest record
	size     int
	total    uint64
	capacity int
}

// NewBuffer creates a buffer holding at most capacity records.
// A non-positive capacity falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		records:  make([]types.AnalysisRecord, capacity),
		capacity: capacity,
	}
}

// Append adds record as the newest entry, evicting the oldest when full
func (b *Buffer) Append(record types.AnalysisRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == b.capacity {
		// Overwrite the oldest slot and advance head: single eviction
		b.records[b.head] = record
		b.head = (b.head + 1) % b.capacity
	} else {
		b.records[(b.head+b.size)%b.capacity] = record
		b.size++
	}
	b.total++
}

// Recent returns the last min(n, Len()) records, oldest first.
// The returned slice is a copy; the buffer is not modified.
func (b *Buffer) Recent(n int) []types.AnalysisRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.size {
		n = b.size
	}
	if n < 0 {
		n = 0
	}

	out := make([]types.AnalysisRecord, n)
	start := b.head + b.size - n
	for i := 0; i < n; i++ {
		out[i] = b.records[(start+i)%b.capacity]
	}
	return out
}

// Len returns the number of buffered records
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the maximum number of buffered records
func (b *Buffer) Capacity() int {
	return b.capacity
}

// Total returns how many records were ever appended, evicted ones included
func (b *Buffer) Total() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}
