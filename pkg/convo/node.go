// Package convo holds the in-memory conversation tree: question/answer nodes
// connected by parent-to-child edges.
package convo

import (
	"github.com/google/uuid"
)

// RootID is the id of the node every conversation tree starts from.
const RootID = "root"

// Status tracks a node's answer through its lifecycle.
type Status string

const (
	StatusPending   Status = "pending"   // question set, completion not started
	StatusStreaming Status = "streaming" // fragments arriving
	StatusCompleted Status = "completed" // stream exhausted
	StatusFailed    Status = "failed"    // stream terminated with an error
)

// Position is a 2-D canvas coordinate, top-left anchored.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a rendered bounding box.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// NodeData is the question/answer payload of a node.
type NodeData struct {
	Title    string `json:"title,omitempty"`
	Question string `json:"question,omitempty"`
	Content  string `json:"content,omitempty"`
	ParentID string `json:"parentId,omitempty"`
}

// Node is a single question/answer exchange positioned on the canvas.
type Node struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
	Data     NodeData `json:"data"`
	Status   Status   `json:"status"`

	// Error is the failure reason when Status is StatusFailed.
	Error string `json:"error,omitempty"`

	// Measured is the box last reported by a rendering client, if any.
	Measured *Size `json:"measured,omitempty"`
}

// Completed reports whether the node's completion has finished, successfully
// or not. Completed nodes can be branched from.
func (n Node) Completed() bool {
	return n.Status == StatusCompleted || n.Status == StatusFailed
}

// Edge is a directed parent-to-child link labelled with the branching question.
type Edge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// NewNodeID returns a fresh random node id.
func NewNodeID() string {
	return "node-" + uuid.NewString()
}

// EdgeID derives an edge id from its endpoints.
func EdgeID(source, target string) string {
	return "edge-" + source + "-" + target
}
