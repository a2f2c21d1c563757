// Scheduler statistics snapshot, mirroring the original SchedulerStats.

package latesched_internal

import (
	"sync"
	"time"

	"github.com/huandu/go-clone"
)

type Stats struct {
	TotalTasks         uint64
	SpeculativeTasks   uint64
	StragglersDetected uint64
	TasksCompleted     uint64
	// Sum of len(data) over every completed task, original and speculative;
	// used to report human-readable throughput (see stdout_sink.go).
	BytesProcessed uint64
	// Keyed by task id, including speculative ids.
	TaskDurations map[int]time.Duration
	// Echo of the SchedulerConfig.StragglerPercentile the scheduler was
	// constructed with, set once at NewScheduler and never mutated
	// afterwards.
	StragglerPercentile float64
}

func NewStats() *Stats {
	return &Stats{
		TaskDurations: make(map[int]time.Duration),
	}
}

// SnapStats returns a deep copy of stats, safe to read and retain after the
// caller releases mu. go-clone handles the map copy; the teacher's own
// SnapStats methods (see scheduler.go, compressor_pool.go) do the same thing
// by hand for slices, but TaskDurations is a map keyed by an id space that
// grows at runtime (speculative copies), so a generic deep clone is the
// better fit than a bespoke copy loop.
func (s *Stats) SnapStats(mu *sync.Mutex) *Stats {
	mu.Lock()
	defer mu.Unlock()
	return clone.Clone(s).(*Stats)
}
