package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/branches/pkg/llm"
)

func sseEvent(text string) string {
	return fmt.Sprintf("data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":%q}]}}]}\n\n", text)
}

var _ = Describe("Gemini Provider", func() {
	var (
		ctx      context.Context
		upstream *httptest.Server
		received request
		path     string
		apiKey   string
		respond  func(w http.ResponseWriter)
	)

	BeforeEach(func() {
		ctx = context.Background()
		path = ""
		apiKey = ""
		respond = func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, sseEvent("Hello"))
			fmt.Fprint(w, ": keepalive\n\n")
			fmt.Fprint(w, sseEvent(", world"))
		}

		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path + "?" + r.URL.RawQuery
			apiKey = r.Header.Get("x-goog-api-key")
			body, _ := io.ReadAll(r.Body)
			received = request{}
			_ = json.Unmarshal(body, &received)
			respond(w)
		}))
	})

	AfterEach(func() {
		upstream.Close()
	})

	newProvider := func() *Provider {
		return New(llm.Config{APIKey: "test-key", BaseURL: upstream.URL + "/"}, zap.NewNop())
	}

	It("streams fragments and completes", func() {
		stream := newProvider().Stream(ctx, &llm.ChatRequest{
			Messages: []llm.Message{llm.UserMessage("Hi")},
		})

		var results []llm.StreamResult
		for res := range stream {
			results = append(results, res)
		}

		Expect(results).To(HaveLen(3))
		Expect(results[0]).To(Equal(llm.Fragment("Hello")))
		Expect(results[1]).To(Equal(llm.Fragment(", world")))
		Expect(results[2].Status).To(Equal(llm.StreamCompleted))

		Expect(path).To(Equal("/v1beta/models/" + DefaultModel + ":streamGenerateContent?alt=sse"))
		Expect(apiKey).To(Equal("test-key"))
	})

	It("maps roles and options to the wire format", func() {
		seed, maxTokens := 3, 128
		req := llm.Config{Model: "gemini-test", Temperature: 0.5, Seed: &seed, MaxTokens: &maxTokens}.Request([]llm.Message{
			{Role: llm.RoleSystem, Content: "Be brief."},
			llm.UserMessage("Q1"),
			llm.AssistantMessage("A1"),
			llm.UserMessage("Q2"),
		})

		_, err := llm.Collect(newProvider().Stream(ctx, req))
		Expect(err).NotTo(HaveOccurred())

		Expect(path).To(HavePrefix("/v1beta/models/gemini-test:"))
		Expect(received.SystemInstruction).NotTo(BeNil())
		Expect(received.SystemInstruction.Parts[0].Text).To(Equal("Be brief."))
		Expect(received.Contents).To(HaveLen(3))
		Expect(received.Contents[1].Role).To(Equal("model"))
		Expect(received.Contents[2].Parts[0].Text).To(Equal("Q2"))
		Expect(received.GenerationConfig).NotTo(BeNil())
		Expect(*received.GenerationConfig.Temperature).To(Equal(0.5))
		Expect(received.GenerationConfig.Seed).To(HaveValue(Equal(3)))
		Expect(received.GenerationConfig.MaxTokens).To(HaveValue(Equal(128)))
		Expect(received.GenerationConfig.TopP).To(BeNil())
	})

	It("fails with the upstream error message", func() {
		respond = func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`)
		}

		text, err := llm.Collect(newProvider().Stream(ctx, &llm.ChatRequest{
			Messages: []llm.Message{llm.UserMessage("Hi")},
		}))
		Expect(text).To(BeEmpty())

		var perr *llm.ProviderError
		Expect(err).To(BeAssignableToTypeOf(perr))
		perr = err.(*llm.ProviderError)
		Expect(perr.StatusCode).To(Equal(http.StatusBadRequest))
		Expect(perr.Message).To(Equal("API key not valid"))
	})

	It("skips events it cannot parse", func() {
		respond = func(w http.ResponseWriter) {
			fmt.Fprint(w, "data: not json\n\n")
			fmt.Fprint(w, sseEvent("ok"))
		}

		text, err := llm.Collect(newProvider().Stream(ctx, &llm.ChatRequest{}))
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("ok"))
	})

	It("fails without contacting upstream when the key is missing", func() {
		p := New(llm.Config{BaseURL: upstream.URL}, zap.NewNop())

		_, err := llm.Collect(p.Stream(ctx, &llm.ChatRequest{}))
		Expect(err).To(MatchError(ContainSubstring("api key is not set")))
		Expect(path).To(BeEmpty())
	})

	It("stops reading when the consumer breaks early", func() {
		count := 0
		for res := range newProvider().Stream(ctx, &llm.ChatRequest{}) {
			count++
			Expect(res.Status).To(Equal(llm.StreamFragment))
			break
		}
		Expect(count).To(Equal(1))
	})
})

var _ = Describe("SSE scanner", func() {
	It("joins multi-line data and ignores other fields", func() {
		s := newSSEScanner(strings.NewReader("event: message\ndata: a\ndata: b\n\nid: 2\ndata: c"))

		first, err := s.next()
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(Equal("a\nb"))

		second, err := s.next()
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal("c"))

		_, err = s.next()
		Expect(err).To(Equal(io.EOF))
	})
})
