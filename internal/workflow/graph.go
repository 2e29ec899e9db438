package workflow

import (
	"errors"
	"fmt"

	"github.com/e-m-dev/remedy/internal/models"
)

var (
	// ErrCyclicGraph means the step graph contains a cycle. A cyclic graph
	// is rejected before any step executes.
	ErrCyclicGraph = errors.New("workflow graph contains a cycle")

	// ErrUnknownNode means an edge references a node id that does not
	// exist in the graph.
	ErrUnknownNode = errors.New("edge references unknown node")
)

// Branch labels for conditional edges. Unlabeled edges are unconditional.
const (
	BranchTrue  = "true"
	BranchFalse = "false"
)

// Node is one unit of work in a run's graph.
type Node struct {
	ID   string
	Step models.ActionStep
}

// Edge is a dependency between two nodes. A labeled edge only admits the
// downstream node when the upstream node's output matches the label.
type Edge struct {
	From   string
	To     string
	Branch string
}

// Graph is the node/edge abstraction both template step lists and visual
// workflow graphs reduce to. Build it fully, then execute; it is not safe to
// mutate a graph while a run walks it.
type Graph struct {
	nodes    map[string]*Node
	order    []string // insertion order, keeps Kahn's output deterministic
	edges    []Edge
	incoming map[string][]Edge
}

// NewGraph creates an empty workflow graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		incoming: make(map[string][]Edge),
	}
}

// AddNode adds a step as a graph node. Step ids must be unique.
func (g *Graph) AddNode(step models.ActionStep) error {
	if step.ID == "" {
		return fmt.Errorf("step id is required")
	}
	if _, exists := g.nodes[step.ID]; exists {
		return fmt.Errorf("duplicate node id %q", step.ID)
	}

	g.nodes[step.ID] = &Node{ID: step.ID, Step: step}
	g.order = append(g.order, step.ID)
	return nil
}

// AddEdge adds a dependency from -> to, optionally labeled with a branch
// value ("true"/"false") for conditional routing.
func (g *Graph) AddEdge(from, to, branch string) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, to)
	}

	edge := Edge{From: from, To: to, Branch: branch}
	g.edges = append(g.edges, edge)
	g.incoming[to] = append(g.incoming[to], edge)
	return nil
}

// FromTemplate builds a linear graph from a template's ordered step list.
func FromTemplate(template *models.RemediationTemplate) (*Graph, error) {
	g := NewGraph()

	for _, step := range template.Steps {
		if err := g.AddNode(step); err != nil {
			return nil, err
		}
	}

	for i := 1; i < len(template.Steps); i++ {
		if err := g.AddEdge(template.Steps[i-1].ID, template.Steps[i].ID, ""); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// Node returns a node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Incoming returns the edges feeding a node.
func (g *Graph) Incoming(id string) []Edge {
	return g.incoming[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// TopologicalOrder computes an execution order via Kahn's algorithm,
// in-degree zero nodes first. Returns ErrCyclicGraph when any node remains
// unreachable after processing.
func (g *Graph) TopologicalOrder() ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		inDegree[id] = 0
	}
	for _, edge := range g.edges {
		inDegree[edge.To]++
	}

	// Seed the queue in insertion order so runs are reproducible
	var queue []string
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, id)

		for _, edge := range g.edges {
			if edge.From != id {
				continue
			}
			inDegree[edge.To]--
			if inDegree[edge.To] == 0 {
				queue = append(queue, edge.To)
			}
		}
	}

	if len(result) != len(g.nodes) {
		return nil, ErrCyclicGraph
	}

	return result, nil
}
