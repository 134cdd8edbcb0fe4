package layout

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/branches/pkg/convo"
)

// Measurer reports the rendered size of a node.
type Measurer interface {
	Measure(n convo.Node) convo.Size
}

// MeasurerFunc adapts a function to Measurer.
type MeasurerFunc func(n convo.Node) convo.Size

func (f MeasurerFunc) Measure(n convo.Node) convo.Size { return f(n) }

// Card geometry of the answer card as rendered by clients.
const (
	cardMinWidth      = 160.0
	cardMaxWidth      = 600.0
	cardPadding       = 16.0
	cardBorder        = 1.0
	cardTitleHeight   = 28.0
	cardActionHeight  = 32.0
	cardMaxBodyHeight = 500.0
	charWidth         = 7.5
	lineHeight        = 20.0
)

// CardMeasurer estimates card sizes from their text. It prefers the box a
// client has reported for the node, since only the renderer knows the real
// size after paint.
type CardMeasurer struct{}

func (CardMeasurer) Measure(n convo.Node) convo.Size {
	if n.Measured != nil && n.Measured.Width > 0 && n.Measured.Height > 0 {
		return *n.Measured
	}
	return EstimateCard(n)
}

// EstimateCard computes the card box for n: width follows the longest line up
// to the card's maximum, the body wraps at that width and scrolls beyond its
// maximum height.
func EstimateCard(n convo.Node) convo.Size {
	inner := 2 * (cardPadding + cardBorder)

	longest := 0
	lines := strings.Split(n.Data.Content, "\n")
	for _, line := range lines {
		longest = max(longest, utf8.RuneCountInString(line))
	}
	longest = max(longest, utf8.RuneCountInString(n.Data.Title))

	width := math.Min(cardMaxWidth, math.Max(cardMinWidth, float64(longest)*charWidth+inner))

	textWidth := width - inner
	body := 0.0
	if n.Data.Content != "" {
		wrapped := 0
		for _, line := range lines {
			w := float64(utf8.RuneCountInString(line)) * charWidth
			wrapped += max(1, int(math.Ceil(w/textWidth)))
		}
		body = math.Min(cardMaxBodyHeight, float64(wrapped)*lineHeight)
	}

	height := inner + body
	if n.Data.Title != "" {
		height += cardTitleHeight
	}
	if n.Completed() {
		height += cardActionHeight
	}

	return convo.Size{Width: width, Height: height}
}
