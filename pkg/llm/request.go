package llm

// ChatRequest is a provider-neutral streaming chat completion request.
type ChatRequest struct {
	Model    string    `json:"model"`             // Model identifier, e.g. "gemini-1.5-flash-latest"
	Messages []Message `json:"messages"`          // Conversation history, last message is the new user turn
	Options  *Options  `json:"options,omitempty"` // Generation options
}
