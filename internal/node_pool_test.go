// Unit tests for node_pool.go

package latesched_internal

import (
	"sync"
	"testing"
	"time"

	latesched_testutils "github.com/late-sched/latesched/testutils"
)

type RecorderMock struct {
	mu        *sync.Mutex
	completed []int
	nodeOf    map[int]int
}

func NewRecorderMock() *RecorderMock {
	return &RecorderMock{
		mu:     &sync.Mutex{},
		nodeOf: make(map[int]int),
	}
}

func (r *RecorderMock) RecordCompletion(task *Task, nodeId int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, task.Id())
	r.nodeOf[task.Id()] = nodeId
}

func (r *RecorderMock) Completed() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.completed))
	copy(out, r.completed)
	return out
}

func TestNodePoolAssignAndComplete(t *testing.T) {
	tlc := latesched_testutils.NewTestLogCollect(t, RootLogger, nil)
	defer tlc.RestoreLog()

	pool := NewNodePool(10 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := pool.AddNode(NewNode(i, 1.0)); err != nil {
			t.Fatal(err)
		}
	}
	if err := pool.AddNode(NewNode(0, 1.0)); err == nil {
		t.Fatal("want error adding duplicate node id, got nil")
	}
	if n := pool.NumNodes(); n != 3 {
		t.Fatalf("NumNodes(): want 3, got %d", n)
	}

	recorder := NewRecorderMock()
	pool.Start(recorder)
	defer pool.Shutdown()

	tasks := []*Task{NewTask(1, nil), NewTask(2, nil), NewTask(3, nil)}
	pending := map[int]*Task{1: tasks[0], 2: tasks[1], 3: tasks[2]}

	pool.AssignNext(func(nodeId int, speedFactor float64) *Task {
		for id, task := range pending {
			delete(pending, id)
			return task
		}
		return nil
	})

	// A 2nd pass immediately after should find no idle nodes left (all 3
	// busy with the tasks just assigned), so pickTask must not be invoked:
	pickCalled := false
	pool.AssignNext(func(nodeId int, speedFactor float64) *Task {
		pickCalled = true
		return nil
	})
	if pickCalled {
		t.Fatal("AssignNext invoked pickTask for a fully busy pool")
	}

	deadline := time.After(2 * time.Second)
	for len(recorder.Completed()) < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for completions, got %v", recorder.Completed())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
