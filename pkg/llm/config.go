package llm

// Config is the explicitly constructed provider configuration. It is built
// once by the caller (usually from pkg/config) and handed to a provider
// constructor; providers never read the process environment themselves.
type Config struct {
	// Provider selects the backend: "gemini", "ollama" or "echo".
	Provider string `toml:"name"`

	// APIKey authenticates against the provider, if it needs one.
	APIKey string `toml:"api_key"`

	// Model is the fixed model identifier sent with every request.
	Model string `toml:"model"`

	// Temperature is the fixed sampling temperature. Zero means deterministic.
	Temperature float64 `toml:"temperature"`

	// BaseURL overrides the provider endpoint.
	BaseURL string `toml:"base_url"`

	// Optional sampling settings. Unset values leave the provider default.
	TopP      *float64 `toml:"top_p"`
	TopK      *int     `toml:"top_k"`
	Seed      *int     `toml:"seed"`
	MaxTokens *int     `toml:"max_tokens"`
	Stop      []string `toml:"stop"`

	// KeepAlive tells Ollama how long to keep the model loaded, e.g. "10m".
	KeepAlive string `toml:"keep_alive"`
}

// Request builds a ChatRequest carrying the configured model and sampling
// settings.
func (c Config) Request(messages []Message) *ChatRequest {
	return &ChatRequest{
		Model:    c.Model,
		Messages: messages,
		Options: &Options{
			Temperature: Float64(c.Temperature),
			TopP:        c.TopP,
			TopK:        c.TopK,
			Seed:        c.Seed,
			NumPredict:  c.MaxTokens,
			Stop:        c.Stop,
		},
	}
}
