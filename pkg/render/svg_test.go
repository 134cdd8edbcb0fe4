package render_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/branches/pkg/convo"
	"github.com/papercomputeco/branches/pkg/layout"
	"github.com/papercomputeco/branches/pkg/render"
)

var _ = Describe("SVG", func() {
	var fixed layout.Measurer

	BeforeEach(func() {
		fixed = layout.MeasurerFunc(func(convo.Node) convo.Size {
			return convo.Size{Width: 200, Height: 100}
		})
	})

	It("draws an empty document for an empty graph", func() {
		var buf bytes.Buffer
		Expect(render.SVG(&buf, nil, nil, fixed)).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("<svg"))
		Expect(buf.String()).To(ContainSubstring("</svg>"))
	})

	It("draws a card per node and a curve per edge", func() {
		nodes := []convo.Node{
			{ID: convo.RootID, Data: convo.NodeData{Title: "Start"}, Status: convo.StatusCompleted},
			{
				ID:       "node-a",
				Position: convo.Position{X: 250},
				Data:     convo.NodeData{Question: "Why is the sky blue?", Content: "Rayleigh scattering.", ParentID: convo.RootID},
				Status:   convo.StatusCompleted,
			},
		}
		edges := []convo.Edge{{ID: "edge-root-node-a", Source: convo.RootID, Target: "node-a", Label: "Why is the sky blue?"}}

		var buf bytes.Buffer
		Expect(render.SVG(&buf, nodes, edges, fixed)).To(Succeed())

		out := buf.String()
		Expect(strings.Count(out, "<rect")).To(Equal(3)) // background + two cards
		Expect(strings.Count(out, "<path")).To(Equal(1))
		Expect(out).To(ContainSubstring("Rayleigh scattering."))
		Expect(out).To(ContainSubstring("Start"))
		Expect(out).To(ContainSubstring(`width="530"`))
	})

	It("escapes node text", func() {
		nodes := []convo.Node{{ID: "x", Data: convo.NodeData{Content: "a < b & c"}, Status: convo.StatusCompleted}}

		var buf bytes.Buffer
		Expect(render.SVG(&buf, nodes, nil, fixed)).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("a &lt; b &amp; c"))
	})
})
