// Tests for scheduler.go

package latesched_internal

import (
	"testing"
	"time"

	latesched_testutils "github.com/late-sched/latesched/testutils"
)

func testNewScheduler(t *testing.T, cfg *SchedulerConfig) *Scheduler {
	scheduler, err := NewScheduler(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return scheduler
}

func TestSchedulerAddNodeAddTask(t *testing.T) {
	tlc := latesched_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	scheduler := testNewScheduler(t, nil)

	if err := scheduler.AddNode(0, 1.0); err != nil {
		t.Fatal(err)
	}
	if err := scheduler.AddNode(0, 1.0); err == nil {
		t.Fatal("want error adding duplicate node id, got nil")
	}
	if err := scheduler.AddNode(1, -1.0); err != nil {
		t.Fatalf("non-positive speed factor should be a no-op, not an error: %v", err)
	}
	if n := scheduler.NumNodes(); n != 1 {
		t.Fatalf("NumNodes(): want 1, got %d", n)
	}

	if err := scheduler.AddTask(0, []byte("data")); err != nil {
		t.Fatal(err)
	}
	if err := scheduler.AddTask(0, []byte("data")); err == nil {
		t.Fatal("want error adding duplicate task id, got nil")
	}
	if err := scheduler.AddTask(TaskSpeculativeIdOffset, []byte("data")); err == nil {
		t.Fatal("want ErrTaskIDReserved for id >= TaskSpeculativeIdOffset, got nil")
	}
}

// TestSchedulerEndToEnd runs a handful of tasks against a handful of nodes
// with very small simulated work units and verifies that the scheduler
// eventually completes all tasks and reports consistent stats.
func TestSchedulerEndToEnd(t *testing.T) {
	tlc := latesched_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	cfg := DefaultSchedulerConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.UnitWorkDuration = 20 * time.Millisecond
	scheduler := testNewScheduler(t, cfg)

	const numNodes, numTasks = 3, 8
	for i := 0; i < numNodes; i++ {
		if err := scheduler.AddNode(i, 1.0); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < numTasks; i++ {
		if err := scheduler.AddTask(i, []byte("payload")); err != nil {
			t.Fatal(err)
		}
	}

	if err := scheduler.Start(); err != nil {
		t.Fatal(err)
	}
	if err := scheduler.Start(); err == nil {
		t.Fatal("want error starting an already-started scheduler, got nil")
	}

	done := make(chan struct{})
	go func() {
		scheduler.Join()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("scheduler did not finish within the timeout")
	}

	stats := scheduler.Stats()
	if stats.TotalTasks < numTasks {
		t.Fatalf("TotalTasks: want >= %d, got %d", numTasks, stats.TotalTasks)
	}
	if stats.TasksCompleted != uint64(numTasks) {
		t.Fatalf("TasksCompleted: want %d (deduped by base id), got %d", numTasks, stats.TasksCompleted)
	}
	for i := 0; i < numTasks; i++ {
		if _, ok := stats.TaskDurations[i]; !ok {
			t.Errorf("task %d: missing duration in stats", i)
		}
	}
}

// TestSchedulerSpeculation forces a single, much slower node so that its
// task becomes a straggler and a speculative duplicate gets created.
func TestSchedulerSpeculation(t *testing.T) {
	tlc := latesched_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	cfg := DefaultSchedulerConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.UnitWorkDuration = 40 * time.Millisecond
	cfg.SpeculativeLimit = 1
	cfg.StragglerPercentile = 1.0
	scheduler := testNewScheduler(t, cfg)

	if err := scheduler.AddNode(0, 0.1); err != nil { // very slow
		t.Fatal(err)
	}
	if err := scheduler.AddNode(1, 10.0); err != nil { // very fast
		t.Fatal(err)
	}
	if err := scheduler.AddTask(0, []byte("slow")); err != nil {
		t.Fatal(err)
	}
	if err := scheduler.AddTask(1, []byte("slow-too")); err != nil {
		t.Fatal(err)
	}

	if err := scheduler.Start(); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		scheduler.Join()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("scheduler did not finish within the timeout")
	}

	stats := scheduler.Stats()
	if stats.SpeculativeTasks == 0 {
		t.Fatal("want at least one speculative task to have been created")
	}
	if stats.StragglersDetected != stats.SpeculativeTasks {
		t.Fatalf(
			"StragglersDetected (%d) should match SpeculativeTasks (%d)",
			stats.StragglersDetected, stats.SpeculativeTasks,
		)
	}
	// TotalTasks must stay at the original count, never inflated by
	// speculative duplicates, or TasksCompleted (deduped by base id) could
	// never catch up and the control loop would spin forever:
	if stats.TotalTasks != 2 {
		t.Fatalf("TotalTasks: want 2 (originals only), got %d", stats.TotalTasks)
	}
	if stats.TasksCompleted != 2 {
		t.Fatalf("TasksCompleted: want 2, got %d", stats.TasksCompleted)
	}
}

// TestSchedulerZeroStragglerPercentile pins the REDESIGN decision that a
// straggler_percentile of 0 still yields at least one speculation
// candidate rather than disabling speculation outright.
func TestSchedulerZeroStragglerPercentile(t *testing.T) {
	tlc := latesched_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	cfg := DefaultSchedulerConfig()
	cfg.TickInterval = 5 * time.Millisecond
	cfg.UnitWorkDuration = 40 * time.Millisecond
	cfg.SpeculativeLimit = 1
	cfg.StragglerPercentile = 0
	scheduler := testNewScheduler(t, cfg)

	if err := scheduler.AddNode(0, 0.1); err != nil {
		t.Fatal(err)
	}
	if err := scheduler.AddTask(0, []byte("slow")); err != nil {
		t.Fatal(err)
	}

	if err := scheduler.Start(); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		scheduler.Join()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("scheduler did not finish within the timeout")
	}

	stats := scheduler.Stats()
	if stats.SpeculativeTasks == 0 {
		t.Fatal("straggler_percentile=0 should still floor to at least 1 candidate")
	}
}
