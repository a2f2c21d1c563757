// Tests for stats.go

package latesched_internal

import (
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStatsSnapStatsIsIndependentCopy(t *testing.T) {
	mu := &sync.Mutex{}
	stats := NewStats()
	stats.TotalTasks = 2
	stats.TaskDurations[0] = time.Second

	snap := stats.SnapStats(mu)
	if diff := cmp.Diff(stats, snap); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}

	// Mutating the live stats after the snapshot was taken must not affect it:
	stats.TotalTasks = 99
	stats.TaskDurations[0] = 5 * time.Second
	stats.TaskDurations[1] = time.Minute

	if snap.TotalTasks != 2 {
		t.Fatalf("snap.TotalTasks: want 2, got %d", snap.TotalTasks)
	}
	if snap.TaskDurations[0] != time.Second {
		t.Fatalf("snap.TaskDurations[0]: want %s, got %s", time.Second, snap.TaskDurations[0])
	}
	if _, ok := snap.TaskDurations[1]; ok {
		t.Fatal("snap.TaskDurations must not observe keys added after the snapshot")
	}
}

func TestSchedulerStatsEchoesStragglerPercentile(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.StragglerPercentile = 0.42

	scheduler := testNewScheduler(t, cfg)
	if got := scheduler.Stats().StragglerPercentile; got != 0.42 {
		t.Fatalf("Stats().StragglerPercentile: want 0.42, got %f", got)
	}
}
