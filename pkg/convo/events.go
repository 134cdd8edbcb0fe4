package convo

// EventType names a graph mutation.
type EventType string

const (
	EventNodeAdded      EventType = "node_added"
	EventEdgeAdded      EventType = "edge_added"
	EventContentUpdated EventType = "content_updated"
	EventNodeCompleted  EventType = "node_completed"
	EventNodeMeasured   EventType = "node_measured"
	EventNodeMoved      EventType = "node_moved"
	EventReconciled     EventType = "reconciled"
)

// Event notifies subscribers that the graph changed. Events are hints: a
// slow subscriber may miss some, and should re-read state from the graph.
type Event struct {
	Type   EventType
	NodeID string

	// Counts after the mutation.
	NodeCount int
	EdgeCount int
}

// Subscribe registers an observer. The returned cancel func unregisters it
// and closes the channel.
func (g *Graph) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	g.mu.Lock()
	id := g.nextSub
	g.nextSub++
	g.subs[id] = ch
	g.mu.Unlock()

	cancel := func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if _, ok := g.subs[id]; ok {
			delete(g.subs, id)
			close(ch)
		}
	}

	return ch, cancel
}

// publish must be called with g.mu held.
func (g *Graph) publish(t EventType, nodeID string) {
	ev := Event{
		Type:      t,
		NodeID:    nodeID,
		NodeCount: len(g.nodes),
		EdgeCount: len(g.edges),
	}

	for _, ch := range g.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
