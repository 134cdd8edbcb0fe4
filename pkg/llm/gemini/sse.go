package gemini

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds a single SSE line. Long completions arrive in one
// event, so the bufio default of 64 KiB is not enough.
const maxLineSize = 1 << 20

// sseScanner reads "data:" payloads from a Server-Sent Events body.
type sseScanner struct {
	scanner *bufio.Scanner
}

func newSSEScanner(r io.Reader) *sseScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &sseScanner{scanner: scanner}
}

// next returns the next event payload, or io.EOF when the body is exhausted.
// Consecutive data lines of one event are joined with newlines.
func (s *sseScanner) next() (string, error) {
	var data []string

	for s.scanner.Scan() {
		line := s.scanner.Text()

		if line == "" {
			if len(data) > 0 {
				return strings.Join(data, "\n"), nil
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimSpace(payload))
		}
	}

	if err := s.scanner.Err(); err != nil {
		return "", fmt.Errorf("reading event stream: %w", err)
	}

	if len(data) > 0 {
		return strings.Join(data, "\n"), nil
	}

	return "", io.EOF
}
