// Package providers builds an llm.Provider from an llm.Config.
package providers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/branches/pkg/llm"
	"github.com/papercomputeco/branches/pkg/llm/echo"
	"github.com/papercomputeco/branches/pkg/llm/gemini"
	"github.com/papercomputeco/branches/pkg/llm/ollama"
)

// New returns the provider named by cfg.Provider.
func New(cfg llm.Config, logger *zap.Logger) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "gemini":
		return gemini.New(cfg, logger), nil
	case "ollama":
		return ollama.New(cfg, logger), nil
	case "echo":
		return echo.New(0), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
