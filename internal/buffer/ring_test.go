package buffer

import (
	"sync"
	"testing"

	"github.com/bebsworthy/arcset/internal/protocol"
)

func solution(count int) protocol.Solution {
	edges := make([]protocol.Edge, count)
	for i := range edges {
		edges[i] = protocol.Edge{From: int32(i), To: int32(i + 1)}
	}
	return protocol.NewSolution(edges)
}

func TestNewRingBuffer(t *testing.T) {
	rb := NewRingBuffer(4)

	if rb.capacity != 4 {
		t.Errorf("Expected capacity 4, got %d", rb.capacity)
	}

	stats := rb.GetStats()
	if stats.EntryCount != 0 {
		t.Errorf("Expected empty buffer, got %d entries", stats.EntryCount)
	}
	if rb.Latest() != nil {
		t.Error("Expected no latest entry in an empty buffer")
	}
}

func TestNewDefaultRingBuffer(t *testing.T) {
	rb := NewDefaultRingBuffer()

	if rb.capacity != DefaultCapacity {
		t.Errorf("Expected default capacity %d, got %d", DefaultCapacity, rb.capacity)
	}
}

func TestRingBuffer_AddAndGet(t *testing.T) {
	rb := NewRingBuffer(3)

	for _, n := range []int{5, 4, 2} {
		rb.Add(solution(n))
	}

	entries := rb.Get(0)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	for i, want := range []uint32{5, 4, 2} {
		if entries[i].Solution.Count != want {
			t.Errorf("Entry %d: expected count %d, got %d", i, want, entries[i].Solution.Count)
		}
		if entries[i].Sequence != uint64(i+1) {
			t.Errorf("Entry %d: expected sequence %d, got %d", i, i+1, entries[i].Sequence)
		}
	}

	last := rb.Get(1)
	if len(last) != 1 || last[0].Solution.Count != 2 {
		t.Errorf("Expected only the newest entry, got %+v", last)
	}
}

func TestRingBuffer_Overflow(t *testing.T) {
	rb := NewRingBuffer(2)

	rb.Add(solution(9))
	rb.Add(solution(7))
	rb.Add(solution(3))

	entries := rb.Get(0)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Solution.Count != 7 || entries[1].Solution.Count != 3 {
		t.Errorf("Expected oldest entry to be evicted, got %d and %d",
			entries[0].Solution.Count, entries[1].Solution.Count)
	}
	if rb.Latest().Solution.Count != 3 {
		t.Errorf("Expected latest count 3, got %d", rb.Latest().Solution.Count)
	}

	stats := rb.GetStats()
	if stats.Recorded != 3 {
		t.Errorf("Expected 3 recorded, got %d", stats.Recorded)
	}
	if stats.OldestTimestamp == nil || stats.NewestTimestamp == nil {
		t.Error("Expected timestamps in stats")
	}
}

func TestRingBuffer_CopiesSolution(t *testing.T) {
	rb := NewRingBuffer(1)
	s := solution(2)

	rb.Add(s)
	s.Edges[0] = protocol.Edge{From: 42, To: 42}

	if rb.Latest().Solution.Edges[0].From == 42 {
		t.Error("Expected the buffer to hold its own copy of the edges")
	}
}

func TestRingBuffer_ZeroCapacity(t *testing.T) {
	rb := NewRingBuffer(0)

	entry := rb.Add(solution(1))
	if entry.Sequence != 1 {
		t.Errorf("Expected sequence 1, got %d", entry.Sequence)
	}
	if len(rb.Get(0)) != 0 {
		t.Error("Expected a zero capacity buffer to hold nothing")
	}
	if rb.GetStats().String() != "History is empty" {
		t.Errorf("Unexpected stats string %q", rb.GetStats().String())
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(3)
	rb.Add(solution(1))
	rb.Add(solution(2))

	rb.Clear()

	if len(rb.Get(0)) != 0 {
		t.Error("Expected no entries after Clear")
	}

	rb.Add(solution(4))
	if rb.Latest().Solution.Count != 4 {
		t.Error("Expected buffer to be usable after Clear")
	}
}

func TestRingBuffer_Concurrent(t *testing.T) {
	rb := NewRingBuffer(8)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				rb.Add(solution(n))
				_ = rb.Get(2)
			}
		}(i)
	}
	wg.Wait()

	stats := rb.GetStats()
	if stats.Recorded != 400 {
		t.Errorf("Expected 400 recorded, got %d", stats.Recorded)
	}
	if stats.EntryCount != 8 {
		t.Errorf("Expected a full buffer, got %d", stats.EntryCount)
	}
}
