// Package render draws a positioned conversation tree as SVG.
package render

import (
	"fmt"
	"io"
	"math"
	"strings"
	"unicode/utf8"

	svg "github.com/ajstarks/svgo"

	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/layout"
)

const (
	margin       = 40
	cardRadius   = 10
	textInset    = 14
	lineSpacing  = 18
	previewLines = 6
	previewChars = 70
	labelChars   = 40
)

var statusFill = map[convo.Status]string{
	convo.StatusPending:   "#2a2f3a",
	convo.StatusStreaming: "#1f3b57",
	convo.StatusCompleted: "#1e3a2b",
	convo.StatusFailed:    "#4a1f24",
}

const (
	background = "#12141a"
	edgeStroke = "#6b7280"
	textColor  = "#e5e7eb"
	mutedText  = "#9ca3af"
	fontFamily = "font-family:system-ui,sans-serif"
)

type card struct {
	node convo.Node
	x, y int
	w, h int
}

// SVG writes the nodes at their current positions, sized by measurer, with a
// bezier curve for every edge labelled with its question.
func SVG(w io.Writer, nodes []convo.Node, edges []convo.Edge, measurer layout.Measurer) error {
	cards := make(map[string]card, len(nodes))

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range nodes {
		size := measurer.Measure(n)
		minX = math.Min(minX, n.Position.X)
		minY = math.Min(minY, n.Position.Y)
		maxX = math.Max(maxX, n.Position.X+size.Width)
		maxY = math.Max(maxY, n.Position.Y+size.Height)
	}
	if len(nodes) == 0 {
		minX, minY, maxX, maxY = 0, 0, 0, 0
	}

	for _, n := range nodes {
		size := measurer.Measure(n)
		cards[n.ID] = card{
			node: n,
			x:    int(math.Round(n.Position.X-minX)) + margin,
			y:    int(math.Round(n.Position.Y-minY)) + margin,
			w:    int(math.Round(size.Width)),
			h:    int(math.Round(size.Height)),
		}
	}

	width := int(math.Ceil(maxX-minX)) + 2*margin
	height := int(math.Ceil(maxY-minY)) + 2*margin

	canvas := svg.New(w)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, "fill:"+background)

	canvas.Gstyle("fill:none;stroke:" + edgeStroke + ";stroke-width:2")
	for _, e := range edges {
		from, ok := cards[e.Source]
		if !ok {
			continue
		}
		to, ok := cards[e.Target]
		if !ok {
			continue
		}
		drawEdge(canvas, from, to)
	}
	canvas.Gend()

	for _, e := range edges {
		from, ok := cards[e.Source]
		if !ok {
			continue
		}
		to, ok := cards[e.Target]
		if !ok || e.Label == "" {
			continue
		}
		sx, sy := from.x+from.w, from.y+from.h/2
		tx, ty := to.x, to.y+to.h/2
		canvas.Text((sx+tx)/2, (sy+ty)/2-6, preview(e.Label, labelChars),
			"fill:"+mutedText+";font-size:11px;text-anchor:middle;"+fontFamily)
	}

	for _, n := range nodes {
		drawCard(canvas, cards[n.ID])
	}

	canvas.End()
	return nil
}

func drawEdge(canvas *svg.SVG, from, to card) {
	sx, sy := from.x+from.w, from.y+from.h/2
	tx, ty := to.x, to.y+to.h/2
	bend := (tx - sx) / 2

	canvas.Bezier(sx, sy, sx+bend, sy, tx-bend, ty, tx, ty)
}

func drawCard(canvas *svg.SVG, c card) {
	fill, ok := statusFill[c.node.Status]
	if !ok {
		fill = statusFill[convo.StatusPending]
	}
	canvas.Roundrect(c.x, c.y, c.w, c.h, cardRadius, cardRadius,
		fmt.Sprintf("fill:%s;stroke:%s;stroke-width:1", fill, edgeStroke))

	y := c.y + textInset + 8
	text := func(s, style string) {
		if y > c.y+c.h-textInset/2 {
			return
		}
		canvas.Text(c.x+textInset, y, s, style+";"+fontFamily)
		y += lineSpacing
	}

	if c.node.Data.Title != "" {
		text(preview(c.node.Data.Title, previewChars), "fill:"+textColor+";font-size:14px;font-weight:600")
	}
	if c.node.Data.Question != "" {
		text(preview(c.node.Data.Question, previewChars), "fill:"+mutedText+";font-size:12px;font-style:italic")
	}

	lines := strings.Split(strings.TrimSpace(c.node.Data.Content), "\n")
	for i, line := range lines {
		if i == previewLines {
			text("…", "fill:"+textColor+";font-size:12px")
			break
		}
		if line == "" {
			continue
		}
		text(preview(line, previewChars), "fill:"+textColor+";font-size:12px")
	}

	if c.node.Status == convo.StatusFailed && c.node.Error != "" {
		text(preview(c.node.Error, previewChars), "fill:#f87171;font-size:11px")
	}
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
