// LATE (Longest Approximate Time to End) scheduler: assigns tasks to idle
// nodes and speculatively duplicates the slowest in-flight tasks so that a
// single straggler node cannot block job completion.
//
//  Scheduler Architecture
//  =======================
//
//          +-------------------+        +--------------------+
//          |   assign phase    |  --->  | monitor-speculation |
//          +-------------------+        +--------------------+
//                    ^                             |
//                    |        sleep ~tickInterval   |
//                    +-----------------------------+
//
// Each tick, the assign phase pairs every idle node (see NodePool) with the
// first eligible task; the monitor phase ranks in-flight tasks by estimated
// time to end and creates speculative duplicates of the worst ones, subject
// to a per-tick credit budget (see rate_controller.go). The loop terminates
// once every original task has completed at least once, whichever of its
// copies (original or speculative) gets there first.

package latesched_internal

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/docker/go-units"
)

const (
	SCHEDULER_CONFIG_SPECULATIVE_LIMIT_DEFAULT           = 2
	SCHEDULER_CONFIG_STRAGGLER_PERCENTILE_DEFAULT        = 0.2
	SCHEDULER_CONFIG_TICK_INTERVAL_DEFAULT               = 200 * time.Millisecond
	SCHEDULER_CONFIG_UNIT_WORK_DURATION_DEFAULT          = 1 * time.Second
	SCHEDULER_CONFIG_SPECULATION_PROGRESS_CUTOFF_DEFAULT = 0.9
)

type SchedulerState int

var (
	SchedulerStateCreated SchedulerState = 0
	SchedulerStateRunning SchedulerState = 1
	SchedulerStateStopped SchedulerState = 2
)

var schedulerStateMap = map[SchedulerState]string{
	SchedulerStateCreated: "Created",
	SchedulerStateRunning: "Running",
	SchedulerStateStopped: "Stopped",
}

func (state SchedulerState) String() string {
	return schedulerStateMap[state]
}

var schedulerLog = NewCompLogger("scheduler")

type SchedulerConfig struct {
	// How many speculative duplicates may be created in a single tick:
	SpeculativeLimit int `yaml:"speculative_limit"`
	// Fraction of in-flight tasks eligible to become speculation candidates
	// this may select, floored to at least 1 candidate whenever the
	// candidate set is non-empty -- see REDESIGN notes for the 0 case:
	StragglerPercentile float64 `yaml:"straggler_percentile"`
	// Tasks at or above this fraction of completion are no longer considered
	// for speculative duplication, even if they are otherwise the slowest:
	SpeculationProgressCutoff float64 `yaml:"speculation_progress_cutoff"`
	// Interval between control loop ticks:
	TickInterval time.Duration `yaml:"tick_interval"`
	// Simulated duration of one unit of work at speed factor 1.0:
	UnitWorkDuration time.Duration `yaml:"unit_work_duration"`
}

func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SpeculativeLimit:          SCHEDULER_CONFIG_SPECULATIVE_LIMIT_DEFAULT,
		StragglerPercentile:       SCHEDULER_CONFIG_STRAGGLER_PERCENTILE_DEFAULT,
		SpeculationProgressCutoff: SCHEDULER_CONFIG_SPECULATION_PROGRESS_CUTOFF_DEFAULT,
		TickInterval:              SCHEDULER_CONFIG_TICK_INTERVAL_DEFAULT,
		UnitWorkDuration:          SCHEDULER_CONFIG_UNIT_WORK_DURATION_DEFAULT,
	}
}

type Scheduler struct {
	// General purpose lock guarding tasks, taskOrder, completedBase, stats
	// and state. Shared rather than per-field because contention is minimal,
	// matching the teacher's Scheduler/CompressorPool locking convention.
	mu *sync.Mutex

	nodePool *NodePool

	tasks map[int]*Task
	// Stable add order, scanned linearly by the assign phase, matching the
	// original's vector<Task> iteration.
	taskOrder []int
	// Set of base task ids (original, pre-speculation) that have completed
	// at least once -- see RecordCompletion.
	completedBase map[int]bool

	stats *Stats

	speculativeLimit          int
	stragglerPercentile       float64
	speculationProgressCutoff float64
	tickInterval              time.Duration
	// Normalized SchedulerConfig.UnitWorkDuration: the same value handed to
	// NewNodePool, so that a task's progress denominator (see task.go's
	// setUnitWorkDuration) always matches what the node pool actually
	// simulates.
	unitWorkDuration time.Duration

	// Per-tick budget on speculative task creation, replenished every
	// tickInterval up to speculativeLimit. See rate_controller.go.
	credit *Credit

	state  SchedulerState
	doneCh chan struct{}
	wg     *sync.WaitGroup
}

func NewScheduler(schedulerCfg *SchedulerConfig) (*Scheduler, error) {
	if schedulerCfg == nil {
		schedulerCfg = DefaultSchedulerConfig()
	}

	if schedulerCfg.SpeculativeLimit < 0 {
		return nil, fmt.Errorf("NewScheduler: speculative_limit %d < 0", schedulerCfg.SpeculativeLimit)
	}
	if schedulerCfg.StragglerPercentile < 0 || schedulerCfg.StragglerPercentile > 1 {
		return nil, fmt.Errorf(
			"NewScheduler: straggler_percentile %.3f out of [0, 1]", schedulerCfg.StragglerPercentile,
		)
	}

	unitWorkDuration := schedulerCfg.UnitWorkDuration
	if unitWorkDuration <= 0 {
		unitWorkDuration = SCHEDULER_CONFIG_UNIT_WORK_DURATION_DEFAULT
	}

	stats := NewStats()
	stats.StragglerPercentile = schedulerCfg.StragglerPercentile

	scheduler := &Scheduler{
		mu:                        &sync.Mutex{},
		nodePool:                  NewNodePool(unitWorkDuration),
		tasks:                     make(map[int]*Task),
		taskOrder:                 make([]int, 0),
		completedBase:             make(map[int]bool),
		stats:                     stats,
		speculativeLimit:          schedulerCfg.SpeculativeLimit,
		stragglerPercentile:       schedulerCfg.StragglerPercentile,
		speculationProgressCutoff: schedulerCfg.SpeculationProgressCutoff,
		tickInterval:              schedulerCfg.TickInterval,
		unitWorkDuration:          unitWorkDuration,
		state:                     SchedulerStateCreated,
		doneCh:                    make(chan struct{}),
		wg:                        &sync.WaitGroup{},
	}

	schedulerLog.Infof(
		"speculative_limit=%d, straggler_percentile=%.3f, tick_interval=%s, unit_work_duration=%s",
		scheduler.speculativeLimit, scheduler.stragglerPercentile,
		scheduler.tickInterval, scheduler.unitWorkDuration,
	)

	return scheduler, nil
}

// AddNode registers a worker node, only permitted before Start. A
// non-positive speed factor is rejected at the boundary as a no-op plus a
// logged warning, per this module's error handling convention.
func (s *Scheduler) AddNode(id int, speedFactor float64) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != SchedulerStateCreated {
		return ErrSchedulerNotConfigurable
	}

	if speedFactor <= 0 {
		schedulerLog.Warnf("node %d: non-positive speed factor %.3f rejected", id, speedFactor)
		return nil
	}

	return s.nodePool.AddNode(NewNode(id, speedFactor))
}

// AddTask registers a task, only permitted before Start. Ids at or above
// TaskSpeculativeIdOffset are reserved for speculative duplicates minted by
// the scheduler itself and are rejected here.
func (s *Scheduler) AddTask(id int, data []byte) error {
	if id >= TaskSpeculativeIdOffset {
		return fmt.Errorf("AddTask(%d): %w", id, ErrTaskIDReserved)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SchedulerStateCreated {
		return ErrSchedulerNotConfigurable
	}
	return s.addTaskLocked(NewTask(id, data))
}

// addTaskLocked registers task while s.mu is already held. It is used both
// by AddTask (after the reserved-id check) and by monitorSpeculation, which
// mints ids >= TaskSpeculativeIdOffset by construction.
func (s *Scheduler) addTaskLocked(task *Task) error {
	if _, exists := s.tasks[task.id]; exists {
		return fmt.Errorf("addTask(%d): %w", task.id, ErrTaskIDDuplicate)
	}
	s.tasks[task.id] = task
	s.taskOrder = append(s.taskOrder, task.id)
	// TotalTasks only counts originals, never speculative duplicates:
	// RecordCompletion dedupes TasksCompleted by base id, so a speculative
	// copy must not inflate the denominator it is compared against, or the
	// termination predicate in controlLoop becomes unsatisfiable as soon as
	// any speculation fires.
	if !task.isSpeculative {
		s.stats.TotalTasks++
	}
	schedulerLog.Infof("add task %d: size=%s", task.id, units.BytesSize(float64(len(task.data))))
	return nil
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.state != SchedulerStateCreated {
		s.mu.Unlock()
		return ErrSchedulerAlreadyStarted
	}
	s.state = SchedulerStateRunning
	s.mu.Unlock()

	s.credit = NewCredit(s.speculativeLimit, s.speculativeLimit, s.tickInterval)
	s.nodePool.Start(s)

	s.wg.Add(1)
	go s.controlLoop()

	schedulerLog.Info("scheduler started")
	return nil
}

// Join blocks until every original task has completed at least once (via
// itself or its speculative copy), the tasks still running on nodes have
// finished and the scheduler has released its nodes. Speculative copies that
// were never assigned to a node are not run. Join returns no error: called
// before Start, it blocks until the scheduler has been started and finishes.
func (s *Scheduler) Join() {
	<-s.doneCh
}

func (s *Scheduler) controlLoop() {
	defer s.wg.Done()
	schedulerLog.Info("start scheduler control loop")

	for {
		s.assignTasks()
		s.monitorSpeculation()

		s.mu.Lock()
		finished := s.stats.TotalTasks > 0 && s.stats.TasksCompleted >= s.stats.TotalTasks
		s.mu.Unlock()
		if finished {
			break
		}
		time.Sleep(s.tickInterval)
	}

	s.mu.Lock()
	s.state = SchedulerStateStopped
	s.mu.Unlock()

	s.nodePool.Shutdown()
	s.credit.StopReplenishWait()
	schedulerLog.Info("scheduler finished")
	close(s.doneCh)
}

// assignTasks pairs every idle node with the first not-yet-started,
// not-completed task, in task add-order -- a direct translation of the
// original's linear scan, now expressed as a NodePool callback so that the
// busy-check and the hand-off happen atomically from the pool's point of
// view.
func (s *Scheduler) assignTasks() {
	s.nodePool.AssignNext(func(nodeId int, speedFactor float64) *Task {
		s.mu.Lock()
		defer s.mu.Unlock()
		for _, id := range s.taskOrder {
			task := s.tasks[id]
			if !task.completed && !task.inProgress {
				task.setUnitWorkDuration(s.unitWorkDuration)
				task.markStarted(speedFactor)
				return task
			}
		}
		return nil
	})
}

// monitorSpeculation ranks in-flight, non-speculative tasks by estimated
// time to end (descending) and creates speculative duplicates of the
// worst ones, up to min(speculativeLimit, max(1, candidates*percentile))
// candidates, further capped by the per-tick credit budget.
func (s *Scheduler) monitorSpeculation() {
	now := time.Now()

	s.mu.Lock()
	candidates := make([]*Task, 0)
	for _, id := range s.taskOrder {
		task := s.tasks[id]
		if !task.completed && !task.isSpeculative && task.inProgress &&
			task.getProgress(now) < s.speculationProgressCutoff {
			candidates = append(candidates, task)
		}
	}
	if len(candidates) == 0 {
		s.mu.Unlock()
		return
	}

	sort.Slice(candidates, func(i, j int) bool {
		etaI, etaJ := candidates[i].getEstimatedTimeToEnd(now), candidates[j].getEstimatedTimeToEnd(now)
		if etaI != etaJ {
			return etaI > etaJ
		}
		return candidates[i].id < candidates[j].id
	})

	// stragglerPercentile == 0 still yields at least 1 candidate, per the
	// REDESIGN notes: this is deliberate, not a bug.
	byPercentile := int(float64(len(candidates)) * s.stragglerPercentile)
	if byPercentile < 1 {
		byPercentile = 1
	}
	limit := s.speculativeLimit
	if byPercentile < limit {
		limit = byPercentile
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}
	s.mu.Unlock()

	if limit <= 0 {
		return
	}
	granted := s.credit.GetCredit(limit, 0)

	for i := 0; i < granted; i++ {
		spec := candidates[i].NewSpeculativeCopy()
		s.mu.Lock()
		err := s.addTaskLocked(spec)
		if err == nil {
			s.stats.SpeculativeTasks++
			s.stats.StragglersDetected++
		}
		s.mu.Unlock()
		if err != nil {
			schedulerLog.Warnf("speculative task %d: %v", spec.id, err)
		}
	}
}

// RecordCompletion implements CompletionRecorder. It is called back from a
// NodePool worker goroutine, so it -- not the worker -- is responsible for
// marking the task completed: every Task field mutation happens under s.mu,
// never from the pool side (see node_pool.go's loop).
//
// A speculative duplicate whose original (or sibling) already completed is
// allowed to run to completion, but it no longer advances TasksCompleted --
// completion is deduped by base id so the termination check stays monotone
// even when both copies of a pair eventually report in.
func (s *Scheduler) RecordCompletion(task *Task, nodeId int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task.markCompleted()

	baseId := task.id
	if task.isSpeculative {
		baseId -= TaskSpeculativeIdOffset
	}
	if !s.completedBase[baseId] {
		s.completedBase[baseId] = true
		s.stats.TasksCompleted++
	}
	s.stats.TaskDurations[task.id] = task.Duration()
	s.stats.BytesProcessed += uint64(len(task.data))

	schedulerLog.Infof("task %d completed on node %d in %s", task.id, nodeId, task.Duration())
}

// Stats returns a deep copy of the current statistics, safe to retain.
func (s *Scheduler) Stats() *Stats {
	return s.stats.SnapStats(s.mu)
}

func (s *Scheduler) NumNodes() int {
	return s.nodePool.NumNodes()
}
