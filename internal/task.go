// Task: the unit of work scheduled onto a node, and the LATE progress model
// used to decide when it is a straggler.

package latesched_internal

import (
	"time"

	"github.com/huandu/go-clone"
)

const (
	// A speculative duplicate of task k carries the id k + TaskSpeculativeIdOffset.
	// Ids at or above the offset are reserved and may not be supplied by callers
	// of AddTask.
	TaskSpeculativeIdOffset = 10_000

	// getEstimatedTimeToEnd() sentinel for a task that hasn't made any
	// measurable progress yet (progress rate == 0).
	TaskEstimatedTimeToEndUnknown = 9999.0
)

// Task mirrors the original C++ Task: an id, an opaque data payload and the
// bookkeeping needed to compute LATE's progress score. Unlike the original,
// which protects completed/isSpeculative/inProgress with std::atomic<bool>,
// every field here is owned by the Scheduler's mutex: the scheduler is the
// only goroutine that ever mutates or inspects more than one task at a time,
// so a shared lock is simpler than per-field atomics and it is what the
// teacher's own Scheduler does for its task map.
type Task struct {
	id   int
	data []byte

	completed     bool
	isSpeculative bool
	inProgress    bool

	// Speed factor of the node the task is running (or ran) on. Only
	// meaningful once the task has been assigned.
	nodeSpeedFactor float64

	// Simulated duration of one unit of work at speed factor 1.0. Must match
	// whatever duration the node pool actually sleeps for (see
	// node_pool.go's simulateWork), or getProgress would score against a
	// unit of work the task was never actually timed against. The scheduler
	// sets this from its own (normalized) SchedulerConfig.UnitWorkDuration
	// before marking the task started; it defaults to 1s here only so that
	// a bare NewTask used outside a scheduler (as in this package's own
	// tests) has a sensible baseline.
	unitWorkDuration time.Duration

	startTime time.Time
	endTime   time.Time
}

func NewTask(id int, data []byte) *Task {
	return &Task{
		id:               id,
		data:             data,
		nodeSpeedFactor:  1.0,
		unitWorkDuration: time.Second,
	}
}

func (t *Task) Id() int { return t.id }

func (t *Task) Data() []byte { return t.data }

func (t *Task) IsSpeculative() bool { return t.isSpeculative }

func (t *Task) IsCompleted() bool { return t.completed }

func (t *Task) IsInProgress() bool { return t.inProgress }

// NewSpeculativeCopy returns the speculative duplicate of t, per the
// id+TaskSpeculativeIdOffset contract. The payload is deep-cloned so the
// duplicate can never alias, and later observe a mutation of, the
// original's buffer. The copy starts out not in progress; the scheduler
// will assign it to a node like any other eligible task.
func (t *Task) NewSpeculativeCopy() *Task {
	spec := NewTask(t.id+TaskSpeculativeIdOffset, clone.Clone(t.data).([]byte))
	spec.isSpeculative = true
	return spec
}

// setUnitWorkDuration overrides the duration of one unit of work at speed
// factor 1.0. The scheduler calls this with its own (normalized)
// SchedulerConfig.UnitWorkDuration before assigning a task to a node, so
// that getProgress's denominator always matches what node_pool.go actually
// simulates.
func (t *Task) setUnitWorkDuration(d time.Duration) {
	if d > 0 {
		t.unitWorkDuration = d
	}
}

// markStarted records the moment the task began executing on a node of the
// given speed factor.
func (t *Task) markStarted(nodeSpeedFactor float64) {
	t.startTime = time.Now()
	t.nodeSpeedFactor = nodeSpeedFactor
	t.inProgress = true
}

// markCompleted records the moment the task finished.
func (t *Task) markCompleted() {
	t.endTime = time.Now()
	t.completed = true
	t.inProgress = false
}

// Duration returns how long the task ran, valid only after markCompleted.
func (t *Task) Duration() time.Duration {
	return t.endTime.Sub(t.startTime)
}

// getProgress returns the fraction, capped at 1.0, of the simulated unit of
// work completed so far: elapsed / (unitWorkDuration / nodeSpeedFactor). A
// task that hasn't been started yet has made no progress -- the original
// leaves startTime default-initialized and relies on callers never asking
// before markStarted; here the zero value is checked explicitly instead,
// since nothing stops a caller (or a test) from asking early.
func (t *Task) getProgress(now time.Time) float64 {
	if !t.inProgress && !t.completed {
		return 0
	}
	elapsed := now.Sub(t.startTime).Seconds()
	progress := elapsed / (t.unitWorkDuration.Seconds() / t.nodeSpeedFactor)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// getProgressRate returns progress/elapsed, or 0 if no time has elapsed yet.
func (t *Task) getProgressRate(now time.Time) float64 {
	elapsed := now.Sub(t.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return t.getProgress(now) / elapsed
}

// getEstimatedTimeToEnd is LATE's straggler score: the higher it is, the
// longer the task is predicted to still need. A task with no observed
// progress rate gets the unknown sentinel so it sorts as the worst case.
func (t *Task) getEstimatedTimeToEnd(now time.Time) float64 {
	rate := t.getProgressRate(now)
	if rate == 0 {
		return TaskEstimatedTimeToEndUnknown
	}
	return (1.0 - t.getProgress(now)) / rate
}
