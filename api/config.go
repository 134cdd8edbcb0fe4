package api

// Config is the API server configuration.
type Config struct {
	// Address to listen on (e.g., ":8090")
	ListenAddr string
}
