package history

import (
	"fmt"
	"testing"
	"time"
)

func TestRing_EvictsOldest(t *testing.T) {
	base := time.Unix(1700000000, 0)

	for _, capacity := range []int{4, 16, 64} {
		t.Run(fmt.Sprintf("capacity %d", capacity), func(t *testing.T) {
			r := NewRing[int](capacity)
			for i := 0; i <= capacity; i++ {
				r.Push(i, base.Add(time.Duration(i)*time.Second))
			}

			if r.Count() != capacity {
				t.Fatalf("Count() = %d, want %d", r.Count(), capacity)
			}
			if got := r.At(0).Value; got != 1 {
				t.Errorf("At(0).Value = %d, want 1 (second pushed)", got)
			}
			if got := r.At(0).Timestamp; !got.Equal(base.Add(time.Second)) {
				t.Errorf("At(0).Timestamp = %v, want %v", got, base.Add(time.Second))
			}
			if got := r.Newest().Value; got != capacity {
				t.Errorf("Newest().Value = %d, want %d", got, capacity)
			}
			for i := 0; i < r.Count(); i++ {
				if got := r.At(i).Value; got != i+1 {
					t.Errorf("At(%d).Value = %d, want %d", i, got, i+1)
				}
			}
		})
	}
}

func TestRing_RoundsCapacityUp(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{1, 1},
		{3, 4},
		{4, 4},
		{5, 8},
		{100, 128},
		{0, DefaultCapacity},
		{-1, DefaultCapacity},
	}
	for _, tc := range tests {
		if got := NewRing[string](tc.in).Cap(); got != tc.want {
			t.Errorf("NewRing(%d).Cap() = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestRing_SlotIsZeroedOnReuse(t *testing.T) {
	type packet struct {
		Data []byte
		Note string
	}
	r := NewRing[packet](2)
	r.Push(packet{Data: []byte{1, 2, 3}, Note: "first"}, time.Time{})
	r.Push(packet{Data: []byte{4}, Note: "second"}, time.Time{})

	at := time.Unix(5, 0)
	slot := r.Slot(at)
	if slot.Value.Data != nil || slot.Value.Note != "" {
		t.Errorf("reused slot not zeroed: %+v", slot.Value)
	}
	if !slot.Timestamp.Equal(at) {
		t.Errorf("Slot().Timestamp = %v, want %v", slot.Timestamp, at)
	}
	if r.At(0).Value.Note != "second" {
		t.Errorf("At(0).Value.Note = %q, want %q", r.At(0).Value.Note, "second")
	}
}

func TestRing_AtOutOfRange(t *testing.T) {
	r := NewRing[int](4)
	if r.At(0) != nil || r.Newest() != nil || r.Oldest() != nil {
		t.Error("empty ring returned an entry")
	}
	r.Push(1, time.Time{})
	if r.At(1) != nil {
		t.Error("At(Count()) returned an entry")
	}
	if r.At(-1) != nil {
		t.Error("At(-1) returned an entry")
	}
}

func TestRing_EachAndValues(t *testing.T) {
	r := NewRing[int](4)
	for i := 0; i < 6; i++ {
		r.Push(i, time.Time{})
	}

	got := r.Values()
	want := []int{2, 3, 4, 5}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Values() = %v, want %v", got, want)
	}

	var visited []int
	r.Each(func(i int, e *Entry[int]) bool {
		visited = append(visited, e.Value)
		return i < 1
	})
	if fmt.Sprint(visited) != "[2 3]" {
		t.Errorf("Each() visited %v, want [2 3]", visited)
	}
}

func TestRing_Reset(t *testing.T) {
	r := NewRing[string](4)
	r.Push("a", time.Time{})
	r.Push("b", time.Time{})
	r.Reset()

	if r.Count() != 0 {
		t.Errorf("Count() after Reset = %d, want 0", r.Count())
	}
	r.Push("c", time.Time{})
	if r.Oldest().Value != "c" {
		t.Errorf("Oldest().Value = %q, want %q", r.Oldest().Value, "c")
	}
}
