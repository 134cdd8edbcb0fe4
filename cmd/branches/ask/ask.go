package askcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/branches/api"
	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/llm"
)

const askLongDesc string = `Ask a question on a remote branches server.

Branches the question off the given node, then follows the answer as it
streams and prints it. Use "root" as the node id to start a new
conversation. The new node id is printed first so follow-ups can branch
off it.

Examples:
  branches ask http://localhost:8090 root "What is a B-tree?"
  branches ask http://localhost:8090 node-1b2c... "How does it split?"`

const askShortDesc string = "Ask a question on a remote branches server"

type askCommander struct {
	quiet bool
}

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <server-url> <node-id> <question>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd, args[0], args[1], args[2])
		},
	}

	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Print only the answer")

	return cmd
}

func (c *askCommander) run(ctx context.Context, cmd *cobra.Command, serverURL, parentID, question string) error {
	serverURL = strings.TrimRight(serverURL, "/")
	out := cmd.OutOrStdout()

	created, err := c.postQuestion(ctx, serverURL, parentID, question)
	if err != nil {
		return err
	}

	if !c.quiet {
		fmt.Fprintf(out, "Asked %s (branched from %s)\n\n", created.Node.ID, parentID)
	}

	last, err := c.followAnswer(ctx, serverURL, created.Node.ID, out)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)

	if last.Status == convo.StatusFailed {
		return fmt.Errorf("answer failed: %s", last.Error)
	}
	return nil
}

func (c *askCommander) postQuestion(ctx context.Context, serverURL, parentID, question string) (*api.AskResponse, error) {
	body, err := json.Marshal(api.AskRequest{Question: question})
	if err != nil {
		return nil, fmt.Errorf("could not marshal question: %w", err)
	}

	url := serverURL + "/nodes/" + parentID + "/questions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, serverError(resp)
	}

	var result api.AskResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("could not decode response: %w", err)
	}

	return &result, nil
}

// followAnswer prints each delta of the node's answer until the server
// reports it done, and returns the final chunk.
func (c *askCommander) followAnswer(ctx context.Context, serverURL, nodeID string, out io.Writer) (*api.StreamChunk, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, serverURL+"/nodes/"+nodeID+"/stream", nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}

	var last api.StreamChunk
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var chunk api.StreamChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			return nil, fmt.Errorf("could not decode stream chunk: %w", err)
		}

		fmt.Fprint(out, chunk.Delta)
		last = chunk
		if chunk.Done {
			return &last, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading stream: %w", err)
	}

	return nil, fmt.Errorf("stream for %s ended before the answer finished", nodeID)
}

func serverError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var e llm.ErrorResponse
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
}
