package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/layout"
	"github.com/papercomputeco/branches/pkg/llm"
	"github.com/papercomputeco/branches/pkg/llm/echo"
	"github.com/papercomputeco/branches/pkg/prompt"
	"github.com/papercomputeco/branches/pkg/session"
)

var _ = Describe("Session", func() {
	var (
		ctx    context.Context
		graph  *convo.Graph
		config session.Config
		sess   *session.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		graph = convo.New("Start")
		config = session.DefaultConfig()
		config.LLM = llm.Config{Provider: "echo", Model: "echo-1"}
		sess = session.New(config, graph, echo.New(0), zap.NewNop())
	})

	AfterEach(func() {
		Expect(sess.Close()).To(Succeed())
	})

	// reopen replaces the session built above with one using the current
	// config, closing the old one first.
	reopen := func(opts ...session.Option) {
		Expect(sess.Close()).To(Succeed())
		sess = session.New(config, graph, echo.New(0), zap.NewNop(), opts...)
	}

	Describe("Ask", func() {
		It("creates one node and one edge and streams the answer into it", func() {
			node, edge, err := sess.Ask(ctx, convo.RootID, "What is Go?")
			Expect(err).NotTo(HaveOccurred())
			Expect(edge.Source).To(Equal(convo.RootID))
			Expect(edge.Target).To(Equal(node.ID))
			Expect(edge.Label).To(Equal("What is Go?"))

			nodes, edges := graph.Counts()
			Expect(nodes).To(Equal(2))
			Expect(edges).To(Equal(1))

			done, err := sess.Wait(ctx, node.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Status).To(Equal(convo.StatusCompleted))
			Expect(done.Data.Content).To(Equal("You asked: What is Go?"))
		})

		It("rejects an empty question without touching the graph", func() {
			_, _, err := sess.Ask(ctx, convo.RootID, "")
			Expect(err).To(MatchError(session.ErrEmptyQuestion))

			nodes, edges := graph.Counts()
			Expect(nodes).To(Equal(1))
			Expect(edges).To(BeZero())
		})

		It("accepts whitespace-only questions", func() {
			node, _, err := sess.Ask(ctx, convo.RootID, "   ")
			Expect(err).NotTo(HaveOccurred())
			_, err = sess.Wait(ctx, node.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("reports an unknown parent", func() {
			_, _, err := sess.Ask(ctx, "node-missing", "Hello?")

			var notFound convo.ErrNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.ID).To(Equal("node-missing"))
		})

		It("creates independent branches for identical questions", func() {
			a, _, err := sess.Ask(ctx, convo.RootID, "Same?")
			Expect(err).NotTo(HaveOccurred())
			b, _, err := sess.Ask(ctx, convo.RootID, "Same?")
			Expect(err).NotTo(HaveOccurred())

			Expect(a.ID).NotTo(Equal(b.ID))
			Expect(graph.Children(convo.RootID)).To(ConsistOf(a.ID, b.ID))
		})

		It("refuses to branch off an answer still streaming", func() {
			gated := &scriptedProvider{
				results: []llm.StreamResult{llm.Fragment("slow"), llm.Completed()},
				gate:    make(chan struct{}),
			}
			sess.SetProvider(config.LLM, gated)

			node, _, err := sess.Ask(ctx, convo.RootID, "Take your time")
			Expect(err).NotTo(HaveOccurred())

			_, _, err = sess.Ask(ctx, node.ID, "Follow up")
			Expect(err).To(MatchError(session.ErrParentPending))

			close(gated.gate)
			_, err = sess.Wait(ctx, node.ID)
			Expect(err).NotTo(HaveOccurred())

			_, _, err = sess.Ask(ctx, node.ID, "Follow up")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("completion", func() {
		It("grows content monotonically, one fragment at a time", func() {
			var seen []string
			provider := &scriptedProvider{
				results: []llm.StreamResult{
					llm.Fragment("Hel"), llm.Fragment("lo, "), llm.Fragment("world"), llm.Completed(),
				},
			}
			var id string
			var mu sync.Mutex
			provider.afterYield = func(res llm.StreamResult) {
				if res.Status != llm.StreamFragment {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				n, _ := graph.Get(id)
				seen = append(seen, n.Data.Content)
			}
			sess.SetProvider(config.LLM, provider)

			mu.Lock()
			node, _, err := sess.Ask(ctx, convo.RootID, "Greet me")
			id = node.ID
			mu.Unlock()
			Expect(err).NotTo(HaveOccurred())

			_, err = sess.Wait(ctx, node.ID)
			Expect(err).NotTo(HaveOccurred())

			mu.Lock()
			defer mu.Unlock()
			Expect(seen).To(Equal([]string{"Hel", "Hello, ", "Hello, world"}))
		})

		It("completes with empty content when the stream yields nothing", func() {
			sess.SetProvider(config.LLM, &scriptedProvider{results: []llm.StreamResult{llm.Completed()}})

			node, _, err := sess.Ask(ctx, convo.RootID, "Anything?")
			Expect(err).NotTo(HaveOccurred())

			done, err := sess.Wait(ctx, node.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Status).To(Equal(convo.StatusCompleted))
			Expect(done.Data.Content).To(BeEmpty())
		})

		It("fails the node but keeps partial content and allows branching", func() {
			sess.SetProvider(config.LLM, &scriptedProvider{results: []llm.StreamResult{
				llm.Fragment("partial"),
				llm.Failed(&llm.ProviderError{Provider: "scripted", StatusCode: 401, Message: "API key not valid"}),
			}})

			node, _, err := sess.Ask(ctx, convo.RootID, "Will this work?")
			Expect(err).NotTo(HaveOccurred())

			done, err := sess.Wait(ctx, node.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Status).To(Equal(convo.StatusFailed))
			Expect(done.Completed()).To(BeTrue())
			Expect(done.Error).To(ContainSubstring("API key not valid"))
			Expect(done.Data.Content).To(Equal("partial"))

			sess.SetProvider(config.LLM, echo.New(0))
			_, _, err = sess.Ask(ctx, node.ID, "Try again")
			Expect(err).NotTo(HaveOccurred())
		})

		It("completes the node when the stream ends without a terminal result", func() {
			sess.SetProvider(config.LLM, &scriptedProvider{results: []llm.StreamResult{llm.Fragment("cut")}})

			node, _, err := sess.Ask(ctx, convo.RootID, "Short?")
			Expect(err).NotTo(HaveOccurred())

			done, err := sess.Wait(ctx, node.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Status).To(Equal(convo.StatusCompleted))
			Expect(done.Data.Content).To(Equal("cut"))
		})

		It("sends the ancestor exchanges nearest first, then the question", func() {
			a, _, err := sess.Ask(ctx, convo.RootID, "A?")
			Expect(err).NotTo(HaveOccurred())
			_, err = sess.Wait(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())

			b, _, err := sess.Ask(ctx, a.ID, "B?")
			Expect(err).NotTo(HaveOccurred())
			_, err = sess.Wait(ctx, b.ID)
			Expect(err).NotTo(HaveOccurred())

			provider := &scriptedProvider{results: []llm.StreamResult{llm.Completed()}}
			sess.SetProvider(config.LLM, provider)

			c, _, err := sess.Ask(ctx, b.ID, "C?")
			Expect(err).NotTo(HaveOccurred())
			_, err = sess.Wait(ctx, c.ID)
			Expect(err).NotTo(HaveOccurred())

			requests := provider.Requests()
			Expect(requests).To(HaveLen(1))
			Expect(requests[0].Model).To(Equal("echo-1"))
			Expect(requests[0].Options.Temperature).NotTo(BeNil())
			Expect(*requests[0].Options.Temperature).To(BeZero())
			Expect(requests[0].Messages).To(Equal([]llm.Message{
				llm.UserMessage("B?"),
				llm.AssistantMessage("You asked: B?"),
				llm.UserMessage("A?"),
				llm.AssistantMessage("You asked: A?"),
				llm.UserMessage("C?"),
			}))
		})

		It("runs independent completions concurrently", func() {
			var nodes []convo.Node
			for i := range 10 {
				node, _, err := sess.Ask(ctx, convo.RootID, fmt.Sprintf("Question %d", i))
				Expect(err).NotTo(HaveOccurred())
				nodes = append(nodes, node)
			}

			for i, node := range nodes {
				done, err := sess.Wait(ctx, node.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(done.Data.Content).To(Equal(fmt.Sprintf("You asked: Question %d", i)))
			}
		})

		It("fails running completions on Close", func() {
			gated := &scriptedProvider{
				results: []llm.StreamResult{llm.Fragment("never"), llm.Completed()},
				gate:    make(chan struct{}),
			}
			sess.SetProvider(config.LLM, gated)

			node, _, err := sess.Ask(ctx, convo.RootID, "Hang?")
			Expect(err).NotTo(HaveOccurred())

			Expect(sess.Close()).To(Succeed())

			n, err := graph.Get(node.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(n.Status).To(Equal(convo.StatusFailed))
			Expect(n.Error).To(Equal(context.Canceled.Error()))
		})

		It("refuses new questions once closed", func() {
			Expect(sess.Close()).To(Succeed())

			_, _, err := sess.Ask(ctx, convo.RootID, "Still there?")
			Expect(err).To(MatchError(session.ErrClosed))

			nodes, edges := graph.Counts()
			Expect(nodes).To(Equal(1))
			Expect(edges).To(Equal(0))
		})
	})

	Describe("History", func() {
		It("sends only the bare question when history is disabled", func() {
			config.IncludeHistory = false
			reopen()

			a, _, err := sess.Ask(ctx, convo.RootID, "A?")
			Expect(err).NotTo(HaveOccurred())
			_, err = sess.Wait(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			b, _, err := sess.Ask(ctx, a.ID, "B?")
			Expect(err).NotTo(HaveOccurred())

			messages, err := sess.History(b.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(messages).To(Equal([]llm.Message{llm.UserMessage("B?")}))
		})

		It("honors chronological order", func() {
			config.HistoryOrder = convo.Chronological
			reopen()

			a, _, err := sess.Ask(ctx, convo.RootID, "A?")
			Expect(err).NotTo(HaveOccurred())
			_, err = sess.Wait(ctx, a.ID)
			Expect(err).NotTo(HaveOccurred())
			b, _, err := sess.Ask(ctx, a.ID, "B?")
			Expect(err).NotTo(HaveOccurred())
			_, err = sess.Wait(ctx, b.ID)
			Expect(err).NotTo(HaveOccurred())
			c, _, err := sess.Ask(ctx, b.ID, "C?")
			Expect(err).NotTo(HaveOccurred())

			messages, err := sess.History(c.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(messages).To(Equal([]llm.Message{
				llm.UserMessage("A?"),
				llm.AssistantMessage("You asked: A?"),
				llm.UserMessage("B?"),
				llm.AssistantMessage("You asked: B?"),
				llm.UserMessage("C?"),
			}))
		})
	})

	Describe("manual layout", func() {
		BeforeEach(func() {
			config.LayoutMode = session.LayoutManual
			fixed := layout.MeasurerFunc(func(convo.Node) convo.Size {
				return convo.Size{Width: 280, Height: 100}
			})
			reopen(session.WithMeasurer(fixed))
		})

		It("places children right of the parent on the grid", func() {
			Expect(graph.Move(convo.RootID, convo.Position{X: 10, Y: 30})).To(Succeed())

			node, _, err := sess.Ask(ctx, convo.RootID, "Where am I?")
			Expect(err).NotTo(HaveOccurred())

			// 10 + 280 + 200 = 490, snapped to 500; 30 snapped to 50.
			Expect(node.Position).To(Equal(convo.Position{X: 500, Y: 50}))
		})
	})

	Describe("AskFrom", func() {
		It("asks once the request is submitted", func() {
			req := prompt.New(convo.RootID)
			go func() {
				time.Sleep(10 * time.Millisecond)
				req.Submit("Deferred?")
			}()

			node, _, err := sess.AskFrom(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(node.Data.Question).To(Equal("Deferred?"))
			Expect(node.Data.ParentID).To(Equal(convo.RootID))
		})

		It("creates nothing when the request is canceled", func() {
			req := prompt.New(convo.RootID)
			req.Cancel()

			_, _, err := sess.AskFrom(ctx, req)
			Expect(err).To(MatchError(prompt.ErrCanceled))

			nodes, _ := graph.Counts()
			Expect(nodes).To(Equal(1))
		})
	})
})
