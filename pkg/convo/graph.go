package convo

import (
	"sync"
)

// Graph is the mutable conversation tree. Nodes and edges are kept in
// insertion order, with an id index and parent-to-children adjacency so that
// lookups and ancestor walks never scan the collection.
//
// Every mutation either replaces a single node by id or swaps the whole
// state through Reconcile, always under the graph lock, so concurrent
// completions writing different nodes never lose each other's updates.
type Graph struct {
	mu sync.RWMutex

	nodes     []Node
	edges     []Edge
	index     map[string]int
	edgeIndex map[string]int
	children  map[string][]string

	// done is closed when the node reaches a terminal status.
	done map[string]chan struct{}

	subs    map[int]chan Event
	nextSub int
}

// New creates a graph holding only the root node. The root has no question,
// so it is completed from the start and can be branched from immediately.
func New(rootTitle string) *Graph {
	g := &Graph{
		index:     make(map[string]int),
		edgeIndex: make(map[string]int),
		children:  make(map[string][]string),
		done:      make(map[string]chan struct{}),
		subs:      make(map[int]chan Event),
	}

	root := Node{
		ID:     RootID,
		Data:   NodeData{Title: rootTitle},
		Status: StatusCompleted,
	}
	g.insertNode(root)

	return g
}

// insertNode must be called with g.mu held.
func (g *Graph) insertNode(n Node) {
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)

	done := make(chan struct{})
	if n.Completed() {
		close(done)
	}
	g.done[n.ID] = done
}

// insertEdge must be called with g.mu held.
func (g *Graph) insertEdge(e Edge) {
	g.edgeIndex[e.ID] = len(g.edges)
	g.edges = append(g.edges, e)
	g.children[e.Source] = append(g.children[e.Source], e.Target)
}

// AddNode appends a node. Nodes carrying a question start pending.
func (g *Graph) AddNode(n Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.index[n.ID]; ok {
		return ErrDuplicate{ID: n.ID}
	}
	if n.Status == "" {
		n.Status = StatusPending
		if n.Data.Question == "" {
			n.Status = StatusCompleted
		}
	}

	g.insertNode(n)
	g.publish(EventNodeAdded, n.ID)
	return nil
}

// AddEdge appends an edge between two existing nodes.
func (g *Graph) AddEdge(e Edge) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.edgeIndex[e.ID]; ok {
		return ErrDuplicate{ID: e.ID}
	}
	if _, ok := g.index[e.Source]; !ok {
		return ErrNotFound{ID: e.Source}
	}
	if _, ok := g.index[e.Target]; !ok {
		return ErrNotFound{ID: e.Target}
	}

	g.insertEdge(e)
	g.publish(EventEdgeAdded, e.Target)
	return nil
}

// Branch creates a child of parentID asking question, together with the edge
// from the parent, in one step. It does not deduplicate: asking the same
// question twice yields two branches.
func (g *Graph) Branch(parentID, question string, pos Position) (Node, Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.index[parentID]; !ok {
		return Node{}, Edge{}, ErrNotFound{ID: parentID}
	}

	node := Node{
		ID:       NewNodeID(),
		Position: pos,
		Data: NodeData{
			Question: question,
			ParentID: parentID,
		},
		Status: StatusPending,
	}
	edge := Edge{
		ID:     EdgeID(parentID, node.ID),
		Source: parentID,
		Target: node.ID,
		Label:  question,
	}

	g.insertNode(node)
	g.publish(EventNodeAdded, node.ID)
	g.insertEdge(edge)
	g.publish(EventEdgeAdded, node.ID)

	return node, edge, nil
}

// Get returns a copy of the node with the given id.
func (g *Graph) Get(id string) (Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	i, ok := g.index[id]
	if !ok {
		return Node{}, ErrNotFound{ID: id}
	}
	return g.nodes[i], nil
}

// Nodes returns a copy of all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return append([]Node(nil), g.nodes...)
}

// Edges returns a copy of all edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return append([]Edge(nil), g.edges...)
}

// Snapshot returns consistent copies of nodes and edges.
func (g *Graph) Snapshot() ([]Node, []Edge) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return append([]Node(nil), g.nodes...), append([]Edge(nil), g.edges...)
}

// Children returns the ids of the direct children of id, in creation order.
func (g *Graph) Children(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return append([]string(nil), g.children[id]...)
}

// Counts returns the number of nodes and edges.
func (g *Graph) Counts() (nodes int, edges int) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.nodes), len(g.edges)
}

// Done returns a channel closed once the node reaches a terminal status.
func (g *Graph) Done(id string) (<-chan struct{}, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ch, ok := g.done[id]
	if !ok {
		return nil, ErrNotFound{ID: id}
	}
	return ch, nil
}

// update replaces node id with fn(node) and publishes t.
// Must be called without g.mu held.
func (g *Graph) update(id string, t EventType, fn func(n *Node)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	i, ok := g.index[id]
	if !ok {
		return ErrNotFound{ID: id}
	}

	n := g.nodes[i]
	fn(&n)
	g.nodes[i] = n

	g.publish(t, id)
	return nil
}

// BeginStream moves a node from pending to streaming. It reports false when
// the node has no question, already has content, or was started before, so
// a completion runs at most once per question.
func (g *Graph) BeginStream(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	i, ok := g.index[id]
	if !ok {
		return false
	}

	n := &g.nodes[i]
	if n.Status != StatusPending || n.Data.Question == "" || n.Data.Content != "" {
		return false
	}
	n.Status = StatusStreaming
	return true
}

// SetContent replaces the node's accumulated answer.
func (g *Graph) SetContent(id, content string) error {
	return g.update(id, EventContentUpdated, func(n *Node) {
		n.Data.Content = content
	})
}

// Complete marks the node terminal. A nil err means completed, otherwise
// failed with err as the reason. Content is left as accumulated.
func (g *Graph) Complete(id string, err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	i, ok := g.index[id]
	if !ok {
		return ErrNotFound{ID: id}
	}

	n := &g.nodes[i]
	if n.Completed() {
		return nil
	}

	n.Status = StatusCompleted
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
	}
	close(g.done[id])

	g.publish(EventNodeCompleted, id)
	return nil
}

// SetMeasured records the rendered box a client measured for the node.
func (g *Graph) SetMeasured(id string, size Size) error {
	return g.update(id, EventNodeMeasured, func(n *Node) {
		n.Measured = &size
	})
}

// Move sets the node position directly, as a drag on the canvas would.
func (g *Graph) Move(id string, pos Position) error {
	return g.update(id, EventNodeMoved, func(n *Node) {
		n.Position = pos
	})
}

// Reconcile replaces the whole node and edge state with fn's result. fn runs
// under the graph lock with copies of the latest state, so it never works
// from a stale snapshot. Indexes are rebuilt from the returned collections.
func (g *Graph) Reconcile(fn func(nodes []Node, edges []Edge) ([]Node, []Edge)) {
	g.mu.Lock()
	defer g.mu.Unlock()

	nodes, edges := fn(append([]Node(nil), g.nodes...), append([]Edge(nil), g.edges...))

	g.nodes = nodes
	g.edges = edges
	g.index = make(map[string]int, len(nodes))
	for i, n := range nodes {
		g.index[n.ID] = i
		if _, ok := g.done[n.ID]; !ok {
			done := make(chan struct{})
			if n.Completed() {
				close(done)
			}
			g.done[n.ID] = done
		}
	}
	g.edgeIndex = make(map[string]int, len(edges))
	g.children = make(map[string][]string)
	for i, e := range edges {
		g.edgeIndex[e.ID] = i
		g.children[e.Source] = append(g.children[e.Source], e.Target)
	}

	g.publish(EventReconciled, "")
}
