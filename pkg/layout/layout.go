// Package layout positions conversation trees on a 2-D canvas with a layered
// left-to-right layout and keeps the positions current as the tree grows.
package layout

import (
	"math"

	"github.com/nulab/autog"
	"github.com/nulab/autog/graph"

	"github.com/papercomputeco/branches/pkg/convo"
)

const (
	// DefaultNodeSep is the vertical gap between nodes of one column.
	DefaultNodeSep = 50.0
	// DefaultRankSep is the horizontal gap between ranks (tree depths).
	DefaultRankSep = 50.0
)

// Point is a center-anchored layout coordinate.
type Point struct {
	X float64
	Y float64
}

// Box is a node to be laid out together with its size.
type Box struct {
	ID   string
	Size convo.Size
}

// Engine computes a layered left-to-right layout with autog's Sugiyama
// pipeline. autog stacks layers top to bottom, so the engine hands it
// transposed sizes and swaps the axes of the result: layers become columns
// and the order inside a layer runs down the canvas. The result depends only
// on the boxes and edges, never on previous positions, so repeated runs on
// the same input give identical coordinates.
type Engine struct {
	NodeSep float64
	RankSep float64
}

// NewEngine returns an engine with the default separations.
func NewEngine() *Engine {
	return &Engine{NodeSep: DefaultNodeSep, RankSep: DefaultRankSep}
}

// Layout returns the center of every box. Edges that reference unknown ids
// and self loops are ignored. Boxes without any edge are stacked in their
// own column below the laid out graph.
func (e *Engine) Layout(boxes []Box, edges []convo.Edge) map[string]Point {
	positions := make(map[string]Point, len(boxes))
	if len(boxes) == 0 {
		return positions
	}

	sizes := make(map[string]convo.Size, len(boxes))
	for _, b := range boxes {
		sizes[b.ID] = b.Size
	}

	var adj [][]string
	linked := make(map[string]bool)
	seen := make(map[[2]string]bool)
	for _, edge := range edges {
		if edge.Source == edge.Target {
			continue
		}
		if _, ok := sizes[edge.Source]; !ok {
			continue
		}
		if _, ok := sizes[edge.Target]; !ok {
			continue
		}
		key := [2]string{edge.Source, edge.Target}
		if seen[key] {
			continue
		}
		seen[key] = true
		adj = append(adj, []string{edge.Source, edge.Target})
		linked[edge.Source] = true
		linked[edge.Target] = true
	}

	top := 0.0
	if len(adj) > 0 {
		top = e.layered(adj, linked, sizes, positions) + e.NodeSep
	}

	for _, b := range boxes {
		if linked[b.ID] {
			continue
		}
		positions[b.ID] = Point{X: b.Size.Width / 2, Y: top + b.Size.Height/2}
		top += b.Size.Height + e.NodeSep
	}

	return positions
}

// layered runs autog over adj, writes the centers of the linked boxes into
// positions and returns the bottom edge of the drawing. Coordinates are
// shifted so the drawing starts at the origin.
func (e *Engine) layered(adj [][]string, linked map[string]bool, sizes map[string]convo.Size, positions map[string]Point) float64 {
	transposed := make(map[string]graph.Size, len(linked))
	for id := range linked {
		s := sizes[id]
		transposed[id] = graph.Size{W: s.Height, H: s.Width}
	}

	out := autog.Layout(
		graph.EdgeSlice(adj),
		autog.WithNodeSize(transposed),
		autog.WithLayerSpacing(e.RankSep),
		autog.WithNodeSpacing(e.NodeSep),
	)

	minX, minY := math.Inf(1), math.Inf(1)
	for _, n := range out.Nodes {
		if !linked[n.ID] {
			continue
		}
		minX = min(minX, n.Y)
		minY = min(minY, n.X)
	}

	bottom := 0.0
	for _, n := range out.Nodes {
		if !linked[n.ID] {
			continue
		}
		s := sizes[n.ID]
		left, upper := n.Y-minX, n.X-minY
		positions[n.ID] = Point{X: left + s.Width/2, Y: upper + s.Height/2}
		bottom = max(bottom, upper+s.Height)
	}
	return bottom
}

// TopLeft converts a center-anchored point into the top-left position used
// for rendering.
func TopLeft(center Point, size convo.Size) convo.Position {
	return convo.Position{
		X: center.X - size.Width/2,
		Y: center.Y - size.Height/2,
	}
}

// Arrange returns copies of nodes positioned by the engine, with sizes taken
// from the measurer.
func Arrange(engine *Engine, measurer Measurer, nodes []convo.Node, edges []convo.Edge) []convo.Node {
	boxes := make([]Box, len(nodes))
	for i, n := range nodes {
		boxes[i] = Box{ID: n.ID, Size: measurer.Measure(n)}
	}

	centers := engine.Layout(boxes, edges)

	arranged := make([]convo.Node, len(nodes))
	for i, n := range nodes {
		n.Position = TopLeft(centers[n.ID], boxes[i].Size)
		arranged[i] = n
	}
	return arranged
}
