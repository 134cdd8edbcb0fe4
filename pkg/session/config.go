package session

import (
	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/llm"
)

// LayoutMode selects how new nodes are placed.
type LayoutMode string

const (
	// LayoutAuto leaves new nodes at the origin for the layout adapter.
	LayoutAuto LayoutMode = "auto"

	// LayoutManual places each new node to the right of its parent, snapped
	// to the grid, and never moves it again.
	LayoutManual LayoutMode = "manual"
)

const (
	// GridSize is the snapping grid for manual placement.
	GridSize = 50.0

	// ManualGap is the horizontal distance between a parent's right edge
	// and a manually placed child.
	ManualGap = 200.0
)

// Config is the session configuration.
type Config struct {
	// LLM is the provider configuration used to build completion requests.
	LLM llm.Config

	// IncludeHistory sends the reconstructed ancestor exchanges with each
	// question. When false only the bare question is sent.
	IncludeHistory bool

	// HistoryOrder is the order of ancestor exchanges in the request.
	HistoryOrder convo.HistoryOrder

	// LayoutMode decides where new nodes start.
	LayoutMode LayoutMode
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		IncludeHistory: true,
		HistoryOrder:   convo.NearestFirst,
		LayoutMode:     LayoutAuto,
	}
}
