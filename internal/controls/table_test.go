package controls

import (
	"math"
	"testing"
	"time"

	"github.com/flight-control/mixerd/internal/mixer"
)

func TestTableSnapshotFreshValues(t *testing.T) {
	table := NewTable(100 * time.Millisecond)
	now := time.Now()

	if err := table.Publish(0, []float32{0.1, -0.2}, now); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	var frame mixer.ControlFrame
	table.Snapshot(&frame, now.Add(50*time.Millisecond))

	if v, ok := frame.Fetch(0, 1); !ok || v != -0.2 {
		t.Errorf("Fetch(0,1) = %v, %v; want -0.2, true", v, ok)
	}
	if _, ok := frame.Fetch(0, 2); ok {
		t.Error("Expected index past published count to be unavailable")
	}
	if _, ok := frame.Fetch(1, 0); ok {
		t.Error("Expected unpublished group to be unavailable")
	}
}

func TestTableStaleness(t *testing.T) {
	table := NewTable(100 * time.Millisecond)
	now := time.Now()
	table.Publish(2, []float32{0.5}, now)

	var frame mixer.ControlFrame
	table.Snapshot(&frame, now.Add(100*time.Millisecond))
	if _, ok := frame.Fetch(2, 0); !ok {
		t.Error("Expected group fresh at exactly StaleAfter")
	}

	table.Snapshot(&frame, now.Add(101*time.Millisecond))
	if _, ok := frame.Fetch(2, 0); ok {
		t.Error("Expected group stale past StaleAfter")
	}

	table.Publish(2, []float32{0.6}, now.Add(150*time.Millisecond))
	table.Invalidate(2)
	table.Snapshot(&frame, now.Add(160*time.Millisecond))
	if _, ok := frame.Fetch(2, 0); ok {
		t.Error("Expected invalidated group to be unavailable")
	}
}

func TestTableRejectsBadPublish(t *testing.T) {
	table := NewTable(0)
	if table.StaleAfter() != DefaultStaleAfter {
		t.Errorf("Expected default stale window, got %v", table.StaleAfter())
	}
	if err := table.Publish(mixer.MaxControlGroups, []float32{0}, time.Now()); err == nil {
		t.Error("Expected error for group out of range")
	}
	if err := table.Publish(0, make([]float32, mixer.MaxControlsPerGroup+1), time.Now()); err == nil {
		t.Error("Expected error for too many values")
	}
}

func TestFrameFiltersNonFinite(t *testing.T) {
	table := NewTable(time.Second)
	now := time.Now()
	table.Publish(1, []float32{float32(math.NaN()), float32(math.Inf(-1)), 0.25}, now)

	var frame mixer.ControlFrame
	table.Snapshot(&frame, now)
	for i := uint8(0); i < 2; i++ {
		if _, ok := frame.Fetch(1, i); ok {
			t.Errorf("Expected non-finite value at index %d to be unavailable", i)
		}
	}
	if v, ok := frame.Fetch(1, 2); !ok || v != 0.25 {
		t.Errorf("Fetch(1,2) = %v, %v", v, ok)
	}
}

func TestSnapshotDoesNotAllocate(t *testing.T) {
	table := NewTable(time.Second)
	now := time.Now()
	table.Publish(0, []float32{0.1, 0.2, 0.3, 0.4}, now)
	var frame mixer.ControlFrame

	allocs := testing.AllocsPerRun(100, func() {
		table.Snapshot(&frame, now)
	})
	if allocs != 0 {
		t.Errorf("Expected zero allocations, got %v", allocs)
	}
}

func TestStatus(t *testing.T) {
	table := NewTable(time.Second)
	now := time.Now()
	table.Publish(3, []float32{1, 2}, now)

	st := table.Status(now)
	if len(st) != mixer.MaxControlGroups {
		t.Fatalf("Expected %d groups, got %d", mixer.MaxControlGroups, len(st))
	}
	if !st[3].Fresh || st[3].Count != 2 {
		t.Errorf("Unexpected status for group 3: %+v", st[3])
	}
	if st[0].Fresh {
		t.Error("Expected group 0 stale")
	}
}
