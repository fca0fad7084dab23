// Package buffer keeps the supervisor's recent improvements in a bounded,
// thread-safe ring so they can be logged at shutdown.
package buffer

import (
	"fmt"
	"sync"
	"time"

	"github.com/bebsworthy/arcset/internal/protocol"
)

// DefaultCapacity is the number of improvements kept when none is configured
const DefaultCapacity = 16

// Entry is one recorded improvement
type Entry struct {
	Sequence  uint64
	Solution  protocol.Solution
	Timestamp time.Time
}

// RingBuffer is a thread-safe ring buffer of improvements
type RingBuffer struct {
	mutex    sync.RWMutex
	entries  []*Entry
	head     int // Points to the next position to write
	tail     int // Points to the oldest entry
	size     int
	capacity int
	sequence uint64
}

// NewRingBuffer creates a new ring buffer with the specified capacity.
// A capacity of zero yields a buffer that records nothing.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &RingBuffer{
		entries:  make([]*Entry, capacity),
		capacity: capacity,
	}
}

// NewDefaultRingBuffer creates a new ring buffer with default capacity
func NewDefaultRingBuffer() *RingBuffer {
	return NewRingBuffer(DefaultCapacity)
}

// Add records a copy of s, evicting the oldest entry when full
func (rb *RingBuffer) Add(s protocol.Solution) *Entry {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	rb.sequence++
	entry := &Entry{
		Sequence:  rb.sequence,
		Solution:  s.Clone(),
		Timestamp: time.Now(),
	}

	if rb.capacity == 0 {
		return entry
	}

	rb.entries[rb.head] = entry
	rb.head = (rb.head + 1) % rb.capacity

	if rb.size == rb.capacity {
		rb.tail = (rb.tail + 1) % rb.capacity
	} else {
		rb.size++
	}

	return entry
}

// Get returns up to lines most recent entries, oldest first. lines <= 0
// returns everything held.
func (rb *RingBuffer) Get(lines int) []*Entry {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	result := rb.getAllEntriesUnsafe()
	if lines > 0 && len(result) > lines {
		result = result[len(result)-lines:]
	}
	return result
}

// Latest returns the newest entry, or nil when empty
func (rb *RingBuffer) Latest() *Entry {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	if rb.size == 0 {
		return nil
	}
	return rb.entries[(rb.head-1+rb.capacity)%rb.capacity]
}

// getAllEntriesUnsafe returns all entries in chronological order without locking
func (rb *RingBuffer) getAllEntriesUnsafe() []*Entry {
	result := make([]*Entry, 0, rb.size)
	for i := 0; i < rb.size; i++ {
		idx := (rb.tail + i) % rb.capacity
		if rb.entries[idx] != nil {
			result = append(result, rb.entries[idx])
		}
	}
	return result
}

// GetStats returns statistics about the ring buffer
func (rb *RingBuffer) GetStats() Stats {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	stats := Stats{
		EntryCount: rb.size,
		Capacity:   rb.capacity,
		Recorded:   rb.sequence,
	}
	if rb.size > 0 {
		entries := rb.getAllEntriesUnsafe()
		stats.OldestTimestamp = &entries[0].Timestamp
		stats.NewestTimestamp = &entries[len(entries)-1].Timestamp
	}
	return stats
}

// Clear removes all entries from the ring buffer
func (rb *RingBuffer) Clear() {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	for i := range rb.entries {
		rb.entries[i] = nil
	}
	rb.head = 0
	rb.tail = 0
	rb.size = 0
}

// Stats represents statistics about the ring buffer
type Stats struct {
	EntryCount      int        // Number of entries held
	Capacity        int        // Maximum number of entries the buffer can hold
	Recorded        uint64     // Entries ever added, including evicted ones
	OldestTimestamp *time.Time // nil if empty
	NewestTimestamp *time.Time // nil if empty
}

// String returns a human-readable string representation of the stats
func (s Stats) String() string {
	if s.EntryCount == 0 {
		return "History is empty"
	}

	return fmt.Sprintf("History: %d/%d entries, %d recorded, oldest: %v, newest: %v",
		s.EntryCount, s.Capacity, s.Recorded,
		s.OldestTimestamp.Format(time.RFC3339), s.NewestTimestamp.Format(time.RFC3339))
}
