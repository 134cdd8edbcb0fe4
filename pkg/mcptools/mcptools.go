// Package mcptools exposes a conversation tree to MCP clients as tools for
// asking questions, reading history and waiting for answers.
package mcptools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/llm"
	"github.com/papercomputeco/branches/pkg/session"
)

const (
	serverName = "branches"

	defaultWait = 60 * time.Second
)

// AskInput is the input of ask_question.
type AskInput struct {
	ParentID string `json:"parent_id,omitempty" jsonschema:"id of the completed node to branch from; use root to start a new conversation"`
	Question string `json:"question" jsonschema:"the question to ask"`
	Wait     bool   `json:"wait,omitempty" jsonschema:"wait for the answer before returning"`
}

// AnswerOutput describes a node's answer.
type AnswerOutput struct {
	NodeID   string       `json:"node_id"`
	ParentID string       `json:"parent_id,omitempty"`
	Question string       `json:"question,omitempty"`
	Status   convo.Status `json:"status"`
	Content  string       `json:"content,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// HistoryInput is the input of get_history.
type HistoryInput struct {
	NodeID string `json:"node_id" jsonschema:"id of the node whose conversation to reconstruct"`
}

// HistoryOutput is the conversation sent for a node.
type HistoryOutput struct {
	NodeID   string        `json:"node_id"`
	Messages []llm.Message `json:"messages"`
}

// GraphInput is the (empty) input of get_graph.
type GraphInput struct{}

// GraphOutput is a snapshot of the whole tree.
type GraphOutput struct {
	Nodes []convo.Node `json:"nodes"`
	Edges []convo.Edge `json:"edges"`
}

// WaitInput is the input of wait_for_answer.
type WaitInput struct {
	NodeID         string `json:"node_id" jsonschema:"id of the node to wait for"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" jsonschema:"how long to wait; defaults to 60"`
}

// Tools implements the MCP tool handlers over a session.
type Tools struct {
	session *session.Session
}

// NewServer returns an MCP server exposing sess.
func NewServer(sess *session.Session, version string) *mcp.Server {
	t := &Tools{session: sess}

	server := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "ask_question",
		Description: "Branch a new question off a completed node of the conversation tree and start answering it.",
	}, t.Ask)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_history",
		Description: "Return the messages sent to the model for a node: its ancestor exchanges followed by its question.",
	}, t.History)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_graph",
		Description: "Return every node and edge of the conversation tree.",
	}, t.Graph)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "wait_for_answer",
		Description: "Wait until a node's answer has finished streaming and return it.",
	}, t.Wait)

	return server
}

// NewHTTPHandler serves server over the MCP streamable HTTP transport.
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

func (t *Tools) Ask(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (*mcp.CallToolResult, AnswerOutput, error) {
	parentID := in.ParentID
	if parentID == "" {
		parentID = convo.RootID
	}

	node, _, err := t.session.Ask(ctx, parentID, in.Question)
	if err != nil {
		return nil, AnswerOutput{}, describe(err)
	}

	if in.Wait {
		ctx, cancel := context.WithTimeout(ctx, defaultWait)
		defer cancel()
		id := node.ID
		if node, err = t.session.Wait(ctx, id); err != nil {
			return nil, AnswerOutput{}, fmt.Errorf("waiting for %s: %w", id, err)
		}
	}

	return nil, answer(node), nil
}

func (t *Tools) History(_ context.Context, _ *mcp.CallToolRequest, in HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
	messages, err := t.session.History(in.NodeID)
	if err != nil {
		return nil, HistoryOutput{}, describe(err)
	}
	if messages == nil {
		messages = []llm.Message{}
	}
	return nil, HistoryOutput{NodeID: in.NodeID, Messages: messages}, nil
}

func (t *Tools) Graph(_ context.Context, _ *mcp.CallToolRequest, _ GraphInput) (*mcp.CallToolResult, GraphOutput, error) {
	out := GraphOutput{Nodes: []convo.Node{}, Edges: []convo.Edge{}}
	nodes, edges := t.session.Graph().Snapshot()
	out.Nodes = append(out.Nodes, nodes...)
	out.Edges = append(out.Edges, edges...)
	return nil, out, nil
}

func (t *Tools) Wait(ctx context.Context, _ *mcp.CallToolRequest, in WaitInput) (*mcp.CallToolResult, AnswerOutput, error) {
	timeout := defaultWait
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	node, err := t.session.Wait(ctx, in.NodeID)
	if errors.Is(err, context.DeadlineExceeded) {
		// Still streaming: return what has arrived so far.
		if node, err = t.session.Graph().Get(in.NodeID); err == nil {
			return nil, answer(node), nil
		}
	}
	if err != nil {
		return nil, AnswerOutput{}, describe(err)
	}
	return nil, answer(node), nil
}

func answer(n convo.Node) AnswerOutput {
	return AnswerOutput{
		NodeID:   n.ID,
		ParentID: n.Data.ParentID,
		Question: n.Data.Question,
		Status:   n.Status,
		Content:  n.Data.Content,
		Error:    n.Error,
	}
}

// describe turns session errors into messages a model can act on.
func describe(err error) error {
	var notFound convo.ErrNotFound
	switch {
	case errors.As(err, &notFound):
		return fmt.Errorf("no node with id %q; call get_graph to list nodes", notFound.ID)
	case errors.Is(err, session.ErrParentPending):
		return fmt.Errorf("%w; call wait_for_answer on the parent first", err)
	default:
		return err
	}
}
