// Package config loads the branches configuration from a TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/layout"
	"github.com/papercomputeco/branches/pkg/llm"
	"github.com/papercomputeco/branches/pkg/session"
)

// Environment variables that override the file.
const (
	EnvAPIKey       = "BRANCHES_API_KEY"
	EnvGoogleAPIKey = "GOOGLE_GENAI_API_KEY"
	EnvProvider     = "BRANCHES_PROVIDER"
	EnvModel        = "BRANCHES_MODEL"
)

// Config is the complete branches configuration.
type Config struct {
	Server       ServerConfig       `toml:"server"`
	Provider     llm.Config         `toml:"provider"`
	Conversation ConversationConfig `toml:"conversation"`
	Layout       LayoutConfig       `toml:"layout"`
	Log          LogConfig          `toml:"log"`
}

type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Listen string `toml:"listen"`
}

type ConversationConfig struct {
	// RootTitle is the title of the root node.
	RootTitle string `toml:"root_title"`

	IncludeHistory bool   `toml:"include_history"`
	HistoryOrder   string `toml:"history_order"`
}

type LayoutConfig struct {
	// Mode is "auto" or "manual".
	Mode    string   `toml:"mode"`
	NodeSep float64  `toml:"node_sep"`
	RankSep float64  `toml:"rank_sep"`
	Delay   Duration `toml:"delay"`
}

type LogConfig struct {
	Debug bool `toml:"debug"`

	// File receives logs from the terminal UI, which owns stdout.
	File string `toml:"file"`
}

// Duration is a time.Duration written as a string such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: ":8090",
		},
		Provider: llm.Config{
			Provider:    "gemini",
			Temperature: 0,
		},
		Conversation: ConversationConfig{
			RootTitle:      "Start a conversation",
			IncludeHistory: true,
			HistoryOrder:   string(convo.NearestFirst),
		},
		Layout: LayoutConfig{
			Mode:    string(session.LayoutAuto),
			NodeSep: layout.DefaultNodeSep,
			RankSep: layout.DefaultRankSep,
		},
		Log: LogConfig{
			File: "branches.log",
		},
	}
}

// Load reads the file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("could not load config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvProvider); ok && v != "" {
		c.Provider.Provider = v
	}
	if v, ok := lookup(EnvModel); ok && v != "" {
		c.Provider.Model = v
	}
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.Provider.APIKey = v
	}
	if c.Provider.APIKey == "" {
		if v, ok := lookup(EnvGoogleAPIKey); ok {
			c.Provider.APIKey = v
		}
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider.Provider {
	case "", "gemini", "ollama", "echo":
	default:
		errs = append(errs, fmt.Errorf("provider.name: unknown provider %q", c.Provider.Provider))
	}

	if p := c.Provider.TopP; p != nil && (*p < 0 || *p > 1) {
		errs = append(errs, fmt.Errorf("provider.top_p: must be between 0 and 1, got %v", *p))
	}
	if k := c.Provider.TopK; k != nil && *k <= 0 {
		errs = append(errs, fmt.Errorf("provider.top_k: must be positive, got %d", *k))
	}
	if n := c.Provider.MaxTokens; n != nil && *n <= 0 {
		errs = append(errs, fmt.Errorf("provider.max_tokens: must be positive, got %d", *n))
	}

	switch convo.HistoryOrder(c.Conversation.HistoryOrder) {
	case convo.NearestFirst, convo.Chronological:
	default:
		errs = append(errs, fmt.Errorf("conversation.history_order: must be %q or %q, got %q",
			convo.NearestFirst, convo.Chronological, c.Conversation.HistoryOrder))
	}

	switch session.LayoutMode(c.Layout.Mode) {
	case session.LayoutAuto, session.LayoutManual:
	default:
		errs = append(errs, fmt.Errorf("layout.mode: must be %q or %q, got %q",
			session.LayoutAuto, session.LayoutManual, c.Layout.Mode))
	}

	if c.Layout.NodeSep < 0 {
		errs = append(errs, errors.New("layout.node_sep: must not be negative"))
	}
	if c.Layout.RankSep < 0 {
		errs = append(errs, errors.New("layout.rank_sep: must not be negative"))
	}
	if c.Layout.Delay.Duration < 0 {
		errs = append(errs, errors.New("layout.delay: must not be negative"))
	}

	if c.Server.Listen == "" {
		errs = append(errs, errors.New("server.listen: must not be empty"))
	}

	return errors.Join(errs...)
}

// Session returns the session settings.
func (c *Config) Session() session.Config {
	return session.Config{
		LLM:            c.Provider,
		IncludeHistory: c.Conversation.IncludeHistory,
		HistoryOrder:   convo.HistoryOrder(c.Conversation.HistoryOrder),
		LayoutMode:     session.LayoutMode(c.Layout.Mode),
	}
}

// Engine returns a layout engine with the configured separations.
func (c *Config) Engine() *layout.Engine {
	return &layout.Engine{
		NodeSep: c.Layout.NodeSep,
		RankSep: c.Layout.RankSep,
	}
}

// AutoLayout reports whether the layout adapter should run.
func (c *Config) AutoLayout() bool {
	return session.LayoutMode(c.Layout.Mode) == session.LayoutAuto
}
