package askcmder

import (
	"bytes"
	"context"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/branches/api"
	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/llm"
	"github.com/papercomputeco/branches/pkg/llm/echo"
	"github.com/papercomputeco/branches/pkg/session"
)

// failingProvider rejects every request the way an upstream with a bad key does.
type failingProvider struct{}

func (failingProvider) Name() string { return "failing" }

func (failingProvider) Stream(context.Context, *llm.ChatRequest) llm.Stream {
	return llm.FailedStream(&llm.ProviderError{Provider: "failing", StatusCode: 401, Message: "API key not valid"})
}

var _ = Describe("Ask Command", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	startServer := func(provider llm.Provider) (string, *session.Session, func()) {
		logger := zap.NewNop()
		sess := session.New(session.DefaultConfig(), convo.New("Start"), provider, logger)

		srv := api.New(api.Config{ListenAddr: ":0"}, sess, logger)

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		go func() {
			_ = srv.RunWithListener(listener)
		}()

		addr := "http://" + listener.Addr().String()
		cleanup := func() {
			srv.Shutdown()
			sess.Close()
		}
		return addr, sess, cleanup
	}

	It("asks a question and prints the streamed answer", func() {
		addr, sess, cleanup := startServer(echo.New(5 * time.Millisecond))
		defer cleanup()

		var out bytes.Buffer
		cmd := NewAskCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{addr, "root", "What is a tree?"})
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())

		Expect(out.String()).To(ContainSubstring("You asked: What is a tree?"))
		Expect(out.String()).To(ContainSubstring("branched from root"))

		children := sess.Graph().Children(convo.RootID)
		Expect(children).To(HaveLen(1))
		Expect(out.String()).To(ContainSubstring(children[0]))
	})

	It("prints only the answer when quiet", func() {
		addr, _, cleanup := startServer(echo.New(0))
		defer cleanup()

		var out bytes.Buffer
		cmd := NewAskCmd()
		cmd.SetOut(&out)
		cmd.SetArgs([]string{"--quiet", addr + "/", "root", "Hi?"})
		Expect(cmd.ExecuteContext(ctx)).To(Succeed())

		Expect(out.String()).To(Equal("You asked: Hi?\n"))
	})

	It("reports an unknown parent", func() {
		addr, _, cleanup := startServer(echo.New(0))
		defer cleanup()

		cmd := NewAskCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{addr, "node-missing", "Hi?"})

		err := cmd.ExecuteContext(ctx)
		Expect(err).To(MatchError(ContainSubstring("404")))
	})

	It("reports a failed answer", func() {
		addr, _, cleanup := startServer(failingProvider{})
		defer cleanup()

		cmd := NewAskCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{addr, "root", "Hi?"})

		err := cmd.ExecuteContext(ctx)
		Expect(err).To(MatchError(ContainSubstring("API key not valid")))
	})
})
