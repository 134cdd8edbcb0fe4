package convo

import (
	"slices"

	"github.com/papercomputeco/branches/pkg/llm"
)

// HistoryOrder selects the order in which ancestor exchanges are emitted.
type HistoryOrder string

const (
	// NearestFirst emits the immediate parent's exchange first and the
	// root-most exchange last. This is the order conversations have always
	// been sent in and remains the default.
	NearestFirst HistoryOrder = "nearest-first"

	// Chronological emits the root-most exchange first.
	Chronological HistoryOrder = "chronological"
)

// Ancestors returns the nodes reachable by following ParentID from id,
// nearest first. The node itself is not included. The walk stops silently at
// the first parent id that is not in the graph.
func (g *Graph) Ancestors(id string) ([]Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	i, ok := g.index[id]
	if !ok {
		return nil, ErrNotFound{ID: id}
	}

	var ancestors []Node
	parentID := g.nodes[i].Data.ParentID
	for parentID != "" {
		j, ok := g.index[parentID]
		if !ok {
			break
		}
		parent := g.nodes[j]
		ancestors = append(ancestors, parent)
		parentID = parent.Data.ParentID
	}

	return ancestors, nil
}

// History reconstructs the conversation leading to id as role-tagged
// messages: for every ancestor holding both a question and an answer, a user
// message followed by an assistant message. Ancestors without content (the
// root, or answers still streaming) contribute nothing. The node's own
// question is not included.
func (g *Graph) History(id string, order HistoryOrder) ([]llm.Message, error) {
	ancestors, err := g.Ancestors(id)
	if err != nil {
		return nil, err
	}

	if order == Chronological {
		slices.Reverse(ancestors)
	}

	messages := make([]llm.Message, 0, 2*len(ancestors))
	for _, n := range ancestors {
		if n.Data.Question == "" || n.Data.Content == "" {
			continue
		}
		messages = append(messages,
			llm.UserMessage(n.Data.Question),
			llm.AssistantMessage(n.Data.Content),
		)
	}

	return messages, nil
}

// Leaves returns nodes without children.
func (g *Graph) Leaves() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var leaves []Node
	for _, n := range g.nodes {
		if len(g.children[n.ID]) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// Depth returns the number of ancestors of id (0 for the root).
func (g *Graph) Depth(id string) (int, error) {
	ancestors, err := g.Ancestors(id)
	if err != nil {
		return 0, err
	}
	return len(ancestors), nil
}
