// Package api serves a conversation tree over HTTP: the graph, per-node
// history, branching new questions and streaming answers as they arrive.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/layout"
	"github.com/papercomputeco/branches/pkg/llm"
	"github.com/papercomputeco/branches/pkg/render"
	"github.com/papercomputeco/branches/pkg/session"
)

// Server exposes a session over HTTP.
type Server struct {
	config   Config
	session  *session.Session
	adapter  *layout.Adapter
	measurer layout.Measurer
	gatherer prometheus.Gatherer
	mcp      http.Handler
	validate *validator.Validate
	logger   *zap.Logger
	server   *fiber.App
}

// Option configures a Server.
type Option func(*Server)

// WithLayout enables POST /layout through adapter.
func WithLayout(adapter *layout.Adapter) Option {
	return func(s *Server) { s.adapter = adapter }
}

// WithMetrics serves the gatherer's metrics at /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = gatherer }
}

// WithMCP mounts an MCP streamable HTTP handler at /mcp.
func WithMCP(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// WithMeasurer sets the card sizes used for SVG rendering.
func WithMeasurer(m layout.Measurer) Option {
	return func(s *Server) { s.measurer = m }
}

// New creates a new Server.
func New(config Config, sess *session.Session, logger *zap.Logger, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		session:  sess,
		measurer: layout.CardMeasurer{},
		validate: validator.New(),
		logger:   logger,
		server:   app,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	// Graph inspection endpoints
	app.Get("/graph", s.handleGetGraph)
	app.Get("/graph/stats", s.handleGraphStats)
	app.Get("/graph/svg", s.handleGraphSVG)
	app.Post("/layout", s.handleLayout)

	// Node endpoints
	app.Get("/nodes/:id", s.handleGetNode)
	app.Get("/nodes/:id/history", s.handleGetHistory)
	app.Get("/nodes/:id/stream", s.handleStream)
	app.Post("/nodes/:id/questions", s.handleAsk)
	app.Put("/nodes/:id/dimensions", s.handleDimensions)
	app.Put("/nodes/:id/position", s.handlePosition)

	if s.gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	if s.mcp != nil {
		app.All("/mcp", adaptor.HTTPHandler(s.mcp))
	}

	return s
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting api server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("provider", s.session.ProviderName()),
	)

	return s.server.Listen(s.config.ListenAddr)
}

// RunWithListener starts the server on ln.
func (s *Server) RunWithListener(ln net.Listener) error {
	s.logger.Info("starting api server",
		zap.String("listen", ln.Addr().String()),
		zap.String("provider", s.session.ProviderName()),
	)

	return s.server.Listener(ln)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.server.Shutdown()
}

// GraphResponse is a snapshot of the whole tree.
type GraphResponse struct {
	Nodes []convo.Node `json:"nodes"`
	Edges []convo.Edge `json:"edges"`
}

func (s *Server) handleGetGraph(c *fiber.Ctx) error {
	nodes, edges := s.session.Graph().Snapshot()
	return c.JSON(GraphResponse{Nodes: nodes, Edges: edges})
}

// handleGraphStats returns counts of nodes by status.
func (s *Server) handleGraphStats(c *fiber.Ctx) error {
	graph := s.session.Graph()
	nodes, edges := graph.Snapshot()

	byStatus := map[convo.Status]int{}
	for _, n := range nodes {
		byStatus[n.Status]++
	}

	stats := map[string]any{
		"total_nodes": len(nodes),
		"total_edges": len(edges),
		"leaf_count":  len(graph.Leaves()),
		"pending":     byStatus[convo.StatusPending],
		"streaming":   byStatus[convo.StatusStreaming],
		"completed":   byStatus[convo.StatusCompleted],
		"failed":      byStatus[convo.StatusFailed],
	}

	return c.JSON(stats)
}

func (s *Server) handleGraphSVG(c *fiber.Ctx) error {
	nodes, edges := s.session.Graph().Snapshot()

	c.Set(fiber.HeaderContentType, "image/svg+xml")
	if err := render.SVG(c, nodes, edges, s.measurer); err != nil {
		s.logger.Error("failed to render graph", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to render graph"})
	}
	return nil
}

// handleLayout runs a layout pass immediately, whatever the edge count.
func (s *Server) handleLayout(c *fiber.Ctx) error {
	if s.adapter == nil {
		return c.Status(fiber.StatusConflict).JSON(llm.ErrorResponse{Error: "automatic layout is disabled"})
	}

	s.adapter.Apply()
	return s.handleGetGraph(c)
}

// handleGetNode returns a single node by its id.
func (s *Server) handleGetNode(c *fiber.Ctx) error {
	node, err := s.session.Graph().Get(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}

	return c.JSON(node)
}

// HistoryResponse contains the messages a completion for a node is sent.
type HistoryResponse struct {
	NodeID string `json:"node_id"`

	// Order is the order of the ancestor exchanges.
	Order convo.HistoryOrder `json:"order"`

	// Messages ends with the node's own question.
	Messages []llm.Message `json:"messages"`

	// Depth is the number of ancestors of the node.
	Depth int `json:"depth"`
}

func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	id := c.Params("id")

	messages, err := s.session.History(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}

	depth, err := s.session.Graph().Depth(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}

	return c.JSON(HistoryResponse{
		NodeID:   id,
		Order:    s.session.Config().HistoryOrder,
		Messages: messages,
		Depth:    depth,
	})
}

// AskRequest is the body of POST /nodes/:id/questions.
type AskRequest struct {
	Question string `json:"question" validate:"required"`
}

// AskResponse holds the node and edge created for a question.
type AskResponse struct {
	Node convo.Node `json:"node"`
	Edge convo.Edge `json:"edge"`
}

// handleAsk branches a question off the node and starts its completion. The
// answer is not awaited; follow it with GET /nodes/:id/stream.
func (s *Server) handleAsk(c *fiber.Ctx) error {
	parentID := c.Params("id")

	var req AskRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Error("failed to parse request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: session.ErrEmptyQuestion.Error()})
	}

	node, edge, err := s.session.Ask(c.UserContext(), parentID, req.Question)
	if err != nil {
		var notFound convo.ErrNotFound
		switch {
		case errors.Is(err, session.ErrEmptyQuestion):
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
		case errors.As(err, &notFound):
			return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
		case errors.Is(err, session.ErrParentPending):
			return c.Status(fiber.StatusConflict).JSON(llm.ErrorResponse{Error: err.Error()})
		case errors.Is(err, session.ErrClosed):
			return c.Status(fiber.StatusServiceUnavailable).JSON(llm.ErrorResponse{Error: err.Error()})
		default:
			s.logger.Error("failed to ask question", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "internal error"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(AskResponse{Node: node, Edge: edge})
}

// DimensionsRequest is a rendered box reported by a client.
type DimensionsRequest struct {
	Width  float64 `json:"width" validate:"gt=0"`
	Height float64 `json:"height" validate:"gt=0"`
}

func (s *Server) handleDimensions(c *fiber.Ctx) error {
	var req DimensionsRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "width and height must be positive"})
	}

	id := c.Params("id")
	if err := s.session.Graph().SetMeasured(id, convo.Size{Width: req.Width, Height: req.Height}); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// PositionRequest moves a node on the canvas.
type PositionRequest struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
}

func (s *Server) handlePosition(c *fiber.Ctx) error {
	var req PositionRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}
	if err := s.validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "x and y are required"})
	}

	id := c.Params("id")
	if err := s.session.Graph().Move(id, convo.Position{X: *req.X, Y: *req.Y}); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}

	node, err := s.session.Graph().Get(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}
	return c.JSON(node)
}

// StreamChunk is one NDJSON line of GET /nodes/:id/stream. Content is the
// whole answer so far; Delta is what was added since the previous line.
type StreamChunk struct {
	NodeID  string       `json:"node_id"`
	Status  convo.Status `json:"status"`
	Content string       `json:"content"`
	Delta   string       `json:"delta,omitempty"`
	Error   string       `json:"error,omitempty"`
	Done    bool         `json:"done"`
}

// handleStream writes a line every time the node's answer changes, ending
// with a done line once the node has completed or failed.
func (s *Server) handleStream(c *fiber.Ctx) error {
	id := c.Params("id")
	graph := s.session.Graph()

	done, err := graph.Done(id)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}

	// Subscribe before the first read so no change between the read and the
	// subscription is missed.
	events, cancel := graph.Subscribe(64)

	c.Set("Content-Type", "application/x-ndjson")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		startTime := time.Now()
		var sent string
		var lastStatus convo.Status

		write := func(n convo.Node) bool {
			chunk := StreamChunk{
				NodeID:  n.ID,
				Status:  n.Status,
				Content: n.Data.Content,
				Error:   n.Error,
				Done:    n.Completed(),
			}
			if strings.HasPrefix(n.Data.Content, sent) {
				chunk.Delta = n.Data.Content[len(sent):]
			}
			sent = n.Data.Content
			lastStatus = n.Status

			line, err := json.Marshal(chunk)
			if err != nil {
				s.logger.Error("failed to marshal chunk", zap.Error(err))
				return false
			}
			w.Write(line)
			w.Write([]byte("\n"))
			if err := w.Flush(); err != nil {
				s.logger.Debug("stream client went away", zap.String("node", id), zap.Error(err))
				return false
			}
			return true
		}

		node, err := graph.Get(id)
		if err != nil || !write(node) || node.Completed() {
			return
		}

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.NodeID != id && ev.Type != convo.EventReconciled {
					continue
				}
			case <-done:
			}

			node, err := graph.Get(id)
			if err != nil {
				return
			}
			if node.Data.Content == sent && node.Status == lastStatus {
				continue
			}

			s.logger.Debug("streaming chunk",
				zap.String("node", id),
				zap.Bool("done", node.Completed()),
				zap.String("content", truncate(node.Data.Content, 50)),
			)

			if !write(node) || node.Completed() {
				s.logger.Debug("streaming complete",
					zap.String("node", id),
					zap.String("full_content_preview", truncate(node.Data.Content, 200)),
					zap.Duration("duration", time.Since(startTime)),
				)
				return
			}
		}
	}))

	return nil
}

// truncate shortens a string for logging to at most maxLen runes.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return fmt.Sprintf("%s...", string([]rune(s)[:maxLen]))
}
