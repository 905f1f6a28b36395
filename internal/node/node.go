// Package node defines the runnable vertex of a round's dependency graph.
package node

import (
	"sync/atomic"

	"github.com/specialistvlad/passgrid/internal/nodeid"
	"github.com/specialistvlad/passgrid/internal/pass"
)

// State represents the execution state of a node in the graph.
type State int32

const (
	// Pending indicates the node is waiting for its predecessors.
	Pending State = iota
	// Ready indicates every predecessor released the node.
	Ready
	// Submitted indicates the node was handed to the worker pool.
	Submitted
	// Running indicates a worker is executing the node.
	Running
	// Done indicates the node collected and applied successfully.
	Done
	// Canceled indicates the node stopped because its round was canceled.
	Canceled
	// Failed indicates the node's collect or apply step faulted.
	Failed
)

var stateNames = [...]string{"pending", "ready", "submitted", "running", "done", "canceled", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Node is a single vertex in the round's graph, wrapping one pass
// descriptor.
type Node struct {
	key        nodeid.Key
	descriptor pass.Descriptor
	round      *Round

	// onSubmit are released as soon as this node starts running.
	onSubmit []*Node
	// onCompletion are released once this node applied its results.
	onCompletion []*Node

	// remaining is an atomic counter of predecessors that have not released
	// this node yet.
	remaining atomic.Int32
	// state is the node's current execution state, managed atomically.
	state atomic.Int32
}

// New creates a pending node. The descriptor may be nil while the node is
// only known as somebody's predecessor; the graph builder fills it in.
func New(key nodeid.Key, d pass.Descriptor) *Node {
	return &Node{key: key, descriptor: d}
}

// Key returns the node's arena key.
func (n *Node) Key() nodeid.Key {
	return n.key
}

// ID returns the canonical string form of the node's key.
func (n *Node) ID() string {
	return n.key.String()
}

// Document returns the document the node belongs to.
func (n *Node) Document() string {
	return n.key.Document
}

// Descriptor returns the wrapped pass descriptor.
func (n *Node) Descriptor() pass.Descriptor {
	return n.descriptor
}

// Round returns the shared round bookkeeping.
func (n *Node) Round() *Round {
	return n.round
}

// Attach binds the node to its round. Called once, before submission.
func (n *Node) Attach(r *Round) {
	n.round = r
}

// AddSubmitSuccessor registers s to be released when n starts running and
// counts the edge on s.
func (n *Node) AddSubmitSuccessor(s *Node) {
	n.onSubmit = append(n.onSubmit, s)
	s.remaining.Add(1)
}

// AddCompletionSuccessor registers s to be released when n finished applying
// and counts the edge on s.
func (n *Node) AddCompletionSuccessor(s *Node) {
	n.onCompletion = append(n.onCompletion, s)
	s.remaining.Add(1)
}

// SubmitSuccessors returns the nodes released when n starts.
func (n *Node) SubmitSuccessors() []*Node {
	return n.onSubmit
}

// CompletionSuccessors returns the nodes released when n finishes.
func (n *Node) CompletionSuccessors() []*Node {
	return n.onCompletion
}

// Remaining atomically returns the number of unreleased predecessor edges.
func (n *Node) Remaining() int32 {
	return n.remaining.Load()
}

// Release atomically consumes one predecessor edge and reports whether it
// was the last one. When it was, the node moves to Ready.
func (n *Node) Release() bool {
	if n.remaining.Add(-1) != 0 {
		return false
	}
	n.state.CompareAndSwap(int32(Pending), int32(Ready))
	return true
}

// MarkReady moves a node without predecessors to Ready.
func (n *Node) MarkReady() {
	n.state.CompareAndSwap(int32(Pending), int32(Ready))
}

// MarkSubmitted moves the node from Ready to Submitted. Only the first
// caller succeeds, which is what keeps a node from entering the pool twice.
func (n *Node) MarkSubmitted() bool {
	return n.state.CompareAndSwap(int32(Ready), int32(Submitted))
}

// SetState atomically sets the node's execution state.
func (n *Node) SetState(s State) {
	n.state.Store(int32(s))
}

// GetState atomically retrieves the node's execution state.
func (n *Node) GetState() State {
	return State(n.state.Load())
}

func (n *Node) String() string {
	return n.ID()
}
