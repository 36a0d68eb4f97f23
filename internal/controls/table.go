// Package controls holds the control-group input table written by the
// transport and read once per tick by the control loop.
package controls

import (
	"fmt"
	"sync"
	"time"

	"github.com/flight-control/mixerd/internal/mixer"
)

// DefaultStaleAfter matches the receiver failsafe timeout.
const DefaultStaleAfter = 500 * time.Millisecond

// Table stores the latest values per control group with the time they
// arrived. A group that has not been published within StaleAfter is
// reported unavailable to the mixers.
type Table struct {
	mu         sync.Mutex
	values     [mixer.MaxControlGroups][mixer.MaxControlsPerGroup]float32
	counts     [mixer.MaxControlGroups]int
	updatedAt  [mixer.MaxControlGroups]time.Time
	valid      [mixer.MaxControlGroups]bool
	staleAfter time.Duration
}

// NewTable creates an empty table. A non-positive staleAfter uses
// DefaultStaleAfter.
func NewTable(staleAfter time.Duration) *Table {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Table{staleAfter: staleAfter}
}

// StaleAfter returns the freshness window.
func (t *Table) StaleAfter() time.Duration {
	return t.staleAfter
}

// Publish replaces the values of one group.
func (t *Table) Publish(group uint8, values []float32, at time.Time) error {
	if int(group) >= mixer.MaxControlGroups {
		return fmt.Errorf("control group %d outside 0..%d", group, mixer.MaxControlGroups-1)
	}
	if len(values) > mixer.MaxControlsPerGroup {
		return fmt.Errorf("control group %d has %d values, max %d", group, len(values), mixer.MaxControlsPerGroup)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.values[group] = [mixer.MaxControlsPerGroup]float32{}
	copy(t.values[group][:], values)
	t.counts[group] = len(values)
	t.updatedAt[group] = at
	t.valid[group] = true
	return nil
}

// Invalidate marks a group unavailable until it is published again.
func (t *Table) Invalidate(group uint8) {
	if int(group) >= mixer.MaxControlGroups {
		return
	}
	t.mu.Lock()
	t.valid[group] = false
	t.mu.Unlock()
}

// Snapshot copies the table into frame as seen at now. It does not
// allocate.
func (t *Table) Snapshot(frame *mixer.ControlFrame, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for g := 0; g < mixer.MaxControlGroups; g++ {
		if !t.valid[g] || now.Sub(t.updatedAt[g]) > t.staleAfter {
			frame.MarkStale(uint8(g))
			continue
		}
		frame.SetGroup(uint8(g), t.values[g][:t.counts[g]])
	}
}

// GroupStatus describes one control group.
type GroupStatus struct {
	Group     int       `json:"group"`
	Count     int       `json:"count"`
	Fresh     bool      `json:"fresh"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Status reports freshness of every group at now.
func (t *Table) Status(now time.Time) []GroupStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]GroupStatus, mixer.MaxControlGroups)
	for g := range out {
		out[g] = GroupStatus{
			Group:     g,
			Count:     t.counts[g],
			Fresh:     t.valid[g] && now.Sub(t.updatedAt[g]) <= t.staleAfter,
			UpdatedAt: t.updatedAt[g],
		}
	}
	return out
}
