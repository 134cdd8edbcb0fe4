package tui_test

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/llm/echo"
	"github.com/papercomputeco/branches/pkg/session"
	"github.com/papercomputeco/branches/pkg/tui"
)

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var _ = Describe("Model", func() {
	var (
		ctx   context.Context
		sess  *session.Session
		model tea.Model
	)

	update := func(msg tea.Msg) tea.Cmd {
		var cmd tea.Cmd
		model, cmd = model.Update(msg)
		return cmd
	}

	BeforeEach(func() {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)

		sess = session.New(session.DefaultConfig(), convo.New("Start here"), echo.New(0), zap.NewNop())
		DeferCleanup(sess.Close)

		model = tui.New(ctx, sess, zap.NewNop(), tui.WithStyle("notty"))
		update(tea.WindowSizeMsg{Width: 120, Height: 40})
	})

	It("shows the root node", func() {
		Expect(model.View()).To(ContainSubstring("Start here"))
		Expect(model.(tui.Model).Selected()).To(Equal(convo.RootID))
	})

	It("branches a question through the prompt", func() {
		askCmd := update(key("a"))
		Expect(askCmd).NotTo(BeNil())

		update(key("Why?"))
		Expect(model.View()).To(ContainSubstring("Why?"))
		update(tea.KeyMsg{Type: tea.KeyEnter})

		msg := askCmd()
		update(msg)

		selected := model.(tui.Model).Selected()
		Expect(selected).NotTo(Equal(convo.RootID))

		node, err := sess.Wait(ctx, selected)
		Expect(err).NotTo(HaveOccurred())
		Expect(node.Data.Question).To(Equal("Why?"))

		update(tea.WindowSizeMsg{Width: 120, Height: 40})
		Expect(model.View()).To(ContainSubstring("You asked: Why?"))
	})

	It("ignores an empty submission and creates nothing on escape", func() {
		askCmd := update(key("a"))
		update(tea.KeyMsg{Type: tea.KeyEnter})
		update(tea.KeyMsg{Type: tea.KeyEsc})

		update(askCmd())

		nodes, _ := sess.Graph().Counts()
		Expect(nodes).To(Equal(1))
		Expect(model.View()).To(ContainSubstring("canceled"))
	})

	It("moves the selection", func() {
		node, _, err := sess.Ask(ctx, convo.RootID, "Second?")
		Expect(err).NotTo(HaveOccurred())
		_, err = sess.Wait(ctx, node.ID)
		Expect(err).NotTo(HaveOccurred())

		cmd := model.Init()
		update(cmd())

		update(key("j"))
		Expect(model.(tui.Model).Selected()).To(Equal(node.ID))
		update(key("k"))
		Expect(model.(tui.Model).Selected()).To(Equal(convo.RootID))
	})
})
