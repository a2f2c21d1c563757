// Node pool: pairs every registered Node with a single-slot channel and a
// persistent goroutine, so that task execution never spawns a goroutine per
// task -- it only ever hands a *Task to the fixed worker already running for
// that node. Modelled on the teacher's CompressorPool persistent-worker-pool
// pattern, which pairs a fixed number of persistent goroutines with a shared
// channel; here each node gets its own channel instead of a shared one, since
// assignment always targets a specific idle node.

package latesched_internal

import (
	"sync"
	"time"
)

var nodePoolLog = NewCompLogger("node_pool")

type NodePoolState int

var (
	NodePoolStateCreated NodePoolState = 0
	NodePoolStateRunning NodePoolState = 1
	NodePoolStateStopped NodePoolState = 2
)

var nodePoolStateMap = map[NodePoolState]string{
	NodePoolStateCreated: "Created",
	NodePoolStateRunning: "Running",
	NodePoolStateStopped: "Stopped",
}

func (state NodePoolState) String() string {
	return nodePoolStateMap[state]
}

// CompletionRecorder is implemented by the Scheduler; NodePool calls it back
// every time a node finishes executing a task.
type CompletionRecorder interface {
	RecordCompletion(task *Task, nodeId int)
}

type nodeWorker struct {
	node   *Node
	busy   bool
	taskCh chan *Task
}

type NodePool struct {
	// Simulated duration of one unit of work (node_speed_factor == 1.0). The
	// original hardcodes this to 1 real second via simulateWork(); it is
	// exposed here as a knob so that tests don't have to run in real time.
	unitDuration time.Duration

	workers map[int]*nodeWorker
	// Stable add-order, so that assignment scans nodes in the same order they
	// were registered, matching the original's vector iteration.
	order []int

	state NodePoolState
	mu    *sync.Mutex
	wg    *sync.WaitGroup
}

func NewNodePool(unitDuration time.Duration) *NodePool {
	if unitDuration <= 0 {
		unitDuration = time.Second
	}
	return &NodePool{
		unitDuration: unitDuration,
		workers:      make(map[int]*nodeWorker),
		order:        make([]int, 0),
		state:        NodePoolStateCreated,
		mu:           &sync.Mutex{},
		wg:           &sync.WaitGroup{},
	}
}

func (p *NodePool) AddNode(node *Node) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.workers[node.Id()]; exists {
		return ErrNodeIDDuplicate
	}
	p.workers[node.Id()] = &nodeWorker{
		node:   node,
		taskCh: make(chan *Task, 1),
	}
	p.order = append(p.order, node.Id())
	nodePoolLog.Infof("add node %d: speed_factor=%.3f", node.Id(), node.SpeedFactor())
	return nil
}

func (p *NodePool) NumNodes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}

// AssignNext scans nodes in add-order and, for every idle one, invokes
// pickTask to decide what to run on it. pickTask returns nil if there is
// nothing eligible for that node right now. This mirrors assignTasks() in the
// original scheduler: a single linear pass pairing idle nodes with the first
// eligible task.
func (p *NodePool) AssignNext(pickTask func(nodeId int, speedFactor float64) *Task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.order {
		w := p.workers[id]
		if w.busy {
			continue
		}
		task := pickTask(id, w.node.speedFactor)
		if task == nil {
			continue
		}
		w.busy = true
		nodePoolLog.Infof("node %d assigned task %d", id, task.Id())
		w.taskCh <- task
	}
}

func (p *NodePool) Start(recorder CompletionRecorder) {
	p.mu.Lock()
	canStart := p.state == NodePoolStateCreated
	if canStart {
		p.state = NodePoolStateRunning
	}
	p.mu.Unlock()

	if !canStart {
		nodePoolLog.Warnf("node pool can only be started from %q state", NodePoolStateCreated)
		return
	}

	for _, id := range p.order {
		p.wg.Add(1)
		go p.loop(p.workers[id], recorder)
	}
}

// loop only ever touches Task through the CompletionRecorder callback, never
// directly: Task's start/completion bookkeeping is owned by the Scheduler's
// mutex (see task.go), and this goroutine runs concurrently with the
// scheduler's own control loop, so it must not mutate Task fields itself.
// By the time a task reaches taskCh it has already been marked started (by
// assignTasks, under the scheduler's lock); this loop only simulates the
// work and hands the finished task back for the scheduler to mark complete.
func (p *NodePool) loop(w *nodeWorker, recorder CompletionRecorder) {
	defer func() {
		nodePoolLog.Infof("node %d worker stopped", w.node.Id())
		p.wg.Done()
	}()

	for task := range w.taskCh {
		simulateWork(p.unitDuration, w.node.speedFactor)

		if recorder != nil {
			recorder.RecordCompletion(task, w.node.Id())
		}

		p.mu.Lock()
		w.busy = false
		p.mu.Unlock()
	}
}

func (p *NodePool) Shutdown() {
	p.mu.Lock()
	canStop := p.state != NodePoolStateStopped
	p.state = NodePoolStateStopped
	channels := make([]chan *Task, 0, len(p.order))
	for _, id := range p.order {
		channels = append(channels, p.workers[id].taskCh)
	}
	p.mu.Unlock()

	if !canStop {
		nodePoolLog.Warn("node pool already stopped")
		return
	}

	for _, ch := range channels {
		close(ch)
	}
	p.wg.Wait()
	nodePoolLog.Info("all node workers stopped")
}

// simulateWork sleeps for the duration of one unit of work scaled by the
// node's speed factor, the Go equivalent of the original's
// simulateWork(1.0 / speed_factor).
func simulateWork(unitDuration time.Duration, speedFactor float64) {
	if speedFactor <= 0 {
		speedFactor = 1.0
	}
	time.Sleep(time.Duration(float64(unitDuration) / speedFactor))
}
