package dag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/specialistvlad/passgrid/internal/ctxlog"
	"github.com/specialistvlad/passgrid/internal/node"
	"github.com/specialistvlad/passgrid/internal/nodeid"
	"github.com/specialistvlad/passgrid/internal/pass"
)

var (
	// ErrCycle is returned when the declared predecessors form a cycle.
	ErrCycle = errors.New("dependency cycle")
	// ErrDuplicatePass is returned when a document lists the same pass id
	// twice.
	ErrDuplicatePass = errors.New("duplicate pass id")
)

// EdgeKind distinguishes the two ways a predecessor can release a successor.
type EdgeKind int

const (
	// StartEdge releases the successor when the predecessor starts.
	StartEdge EdgeKind = iota
	// CompletionEdge releases the successor when the predecessor finished.
	CompletionEdge
)

func (k EdgeKind) String() string {
	if k == StartEdge {
		return "start"
	}
	return "completion"
}

// DroppedEdge records a predecessor reference that did not resolve.
type DroppedEdge struct {
	From nodeid.Key
	To   pass.ID
	Kind EdgeKind
}

// Document is one document's ordered list of passes.
type Document struct {
	Name        string
	Descriptors []pass.Descriptor
}

// Graph is the arena of one round. It is built single-threaded and becomes
// read-only once handed to the scheduler.
type Graph struct {
	nodes    map[nodeid.Key]*node.Node
	order    []*node.Node
	ready    []*node.Node
	readySet map[nodeid.Key]struct{}
	dropped  []DroppedEdge
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[nodeid.Key]*node.Node),
		readySet: make(map[nodeid.Key]struct{}),
	}
}

// Build adds every document to a new graph and validates the result.
func Build(ctx context.Context, docs []Document) (*Graph, error) {
	g := New()
	for _, doc := range docs {
		if err := g.Add(ctx, doc.Name, doc.Descriptors); err != nil {
			return nil, err
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	return len(g.order)
}

// Nodes returns every node in construction order.
func (g *Graph) Nodes() []*node.Node {
	return g.order
}

// Ready returns the nodes without predecessors, deduplicated, in
// construction order.
func (g *Graph) Ready() []*node.Node {
	return g.ready
}

// Node looks a node up by key.
func (g *Graph) Node(key nodeid.Key) (*node.Node, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

// Dropped returns the predecessor references that did not resolve.
func (g *Graph) Dropped() []DroppedEdge {
	return g.dropped
}

// Add wires one document's descriptors into the graph.
func (g *Graph) Add(ctx context.Context, document string, descriptors []pass.Descriptor) error {
	logger := ctxlog.FromContext(ctx).With("document", document)

	// Every id of the document is known up front so that references resolve
	// in either direction.
	byID := make(map[pass.ID]*node.Node, len(descriptors))
	for _, d := range descriptors {
		if err := nodeid.Validate(d.ID()); err != nil {
			return fmt.Errorf("document %s: %w", document, err)
		}
		key := nodeid.New(document, d.ID())
		if _, exists := g.Node(key); exists {
			return fmt.Errorf("document %s: %w: %s", document, ErrDuplicatePass, d.ID())
		}
		byID[d.ID()] = g.create(key, d)
	}

	var prev *node.Node
	for _, d := range descriptors {
		n := byID[d.ID()]
		start, completion := d.StartPredecessors(), d.CompletionPredecessors()

		for _, id := range distinct(start) {
			if pred := g.resolve(logger, byID, n, id, StartEdge); pred != nil {
				pred.AddSubmitSuccessor(n)
			}
		}
		for _, id := range distinct(completion) {
			if pred := g.resolve(logger, byID, n, id, CompletionEdge); pred != nil {
				pred.AddCompletionSuccessor(n)
			}
		}
		if len(start) == 0 && len(completion) == 0 && prev != nil {
			logger.Debug("Chaining pass to its predecessor in list order.", "pass", d.ID(), "after", prev.Key().Pass)
			prev.AddCompletionSuccessor(n)
		}
		prev = n
	}

	for _, d := range descriptors {
		n := byID[d.ID()]
		if n.Remaining() != 0 {
			continue
		}
		if _, seen := g.readySet[n.Key()]; seen {
			continue
		}
		n.MarkReady()
		g.readySet[n.Key()] = struct{}{}
		g.ready = append(g.ready, n)
	}

	logger.Debug("Document added to graph.", "passes", len(descriptors), "ready", len(g.ready))
	return nil
}

// create adds the node for key to the arena.
func (g *Graph) create(key nodeid.Key, d pass.Descriptor) *node.Node {
	n := node.New(key, d)
	g.nodes[key] = n
	g.order = append(g.order, n)
	return n
}

func (g *Graph) resolve(logger *slog.Logger, byID map[pass.ID]*node.Node, n *node.Node, id pass.ID, kind EdgeKind) *node.Node {
	pred, ok := byID[id]
	if !ok {
		logger.Warn("Dropping edge to unknown predecessor.", "pass", n.Key().Pass, "predecessor", id, "kind", kind.String())
		g.dropped = append(g.dropped, DroppedEdge{From: n.Key(), To: id, Kind: kind})
		return nil
	}
	return pred
}

// Validate checks the graph for cycles over both edge kinds using Kahn's
// algorithm. The error names every node that could never be released.
func (g *Graph) Validate() error {
	indegree := make(map[*node.Node]int32, len(g.order))
	queue := make([]*node.Node, 0, len(g.order))
	for _, n := range g.order {
		indegree[n] = n.Remaining()
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	visited := 0
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		visited++
		for _, succ := range successors(n) {
			indegree[succ]--
			if indegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}
	if visited == len(g.order) {
		return nil
	}

	var stuck []string
	for n, deg := range indegree {
		if deg > 0 {
			stuck = append(stuck, n.ID())
		}
	}
	sort.Strings(stuck)
	return fmt.Errorf("%w involving %s", ErrCycle, strings.Join(stuck, ", "))
}

func successors(n *node.Node) []*node.Node {
	out := make([]*node.Node, 0, len(n.SubmitSuccessors())+len(n.CompletionSuccessors()))
	out = append(out, n.SubmitSuccessors()...)
	return append(out, n.CompletionSuccessors()...)
}

// distinct returns ids with duplicates removed, keeping first occurrences.
func distinct(ids []pass.ID) []pass.ID {
	if len(ids) < 2 {
		return ids
	}
	seen := make(map[pass.ID]struct{}, len(ids))
	out := make([]pass.ID, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
