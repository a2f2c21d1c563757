// Sentinel errors for the scheduler package.

package latesched_internal

import "errors"

var (
	// Returned by AddTask when the caller supplies an id already reserved for
	// speculative duplicates (>= TaskSpeculativeIdOffset). Speculative ids are
	// minted exclusively by the scheduler itself.
	ErrTaskIDReserved = errors.New("task id is reserved for speculative duplicates")

	// Returned by AddTask when a task with the same id was already added.
	ErrTaskIDDuplicate = errors.New("task id already exists")

	// Returned by AddNode when a node with the same id was already added.
	ErrNodeIDDuplicate = errors.New("node id already exists")

	// Returned by AddNode/AddTask once the scheduler has left the Created
	// state: nodes and tasks may only be registered before Start.
	ErrSchedulerNotConfigurable = errors.New("scheduler is no longer configurable")

	// Returned by Start if the scheduler is not in the Created state.
	ErrSchedulerAlreadyStarted = errors.New("scheduler already started")
)
