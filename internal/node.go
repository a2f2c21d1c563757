// Node: a simulated worker, identified by id and a processing speed factor.

package latesched_internal

import "math/rand"

const (
	// Range for RandomSpeedFactor, matching the original generateSpeedFactor.
	NodeSpeedFactorMin = 0.5
	NodeSpeedFactorMax = 1.5
)

// Node carries only the static attributes of a worker: its id and its speed
// factor. Unlike the original C++ Node, it does not hold a back-reference to
// the Scheduler and it does not run task execution itself -- that is owned by
// NodePool, which pairs every Node with a single-slot channel and a
// persistent goroutine (see node_pool.go). Keeping Node a plain value type
// means the scheduler can reason about node attributes (speed factor, id)
// without reaching into pool internals.
type Node struct {
	id          int
	speedFactor float64
}

func NewNode(id int, speedFactor float64) *Node {
	return &Node{id: id, speedFactor: speedFactor}
}

func (n *Node) Id() int { return n.id }

func (n *Node) SpeedFactor() float64 { return n.speedFactor }

// RandomSpeedFactor draws a uniform speed factor in [0.5, 1.5), the same
// range as the original generateSpeedFactor helper.
func RandomSpeedFactor() float64 {
	return NodeSpeedFactorMin + rand.Float64()*(NodeSpeedFactorMax-NodeSpeedFactorMin)
}
