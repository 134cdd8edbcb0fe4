package prompt_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/branches/pkg/prompt"
)

var _ = Describe("Request", func() {
	It("delivers submitted text to a waiting reader", func() {
		req := prompt.New("root")
		go func() {
			defer GinkgoRecover()
			time.Sleep(10 * time.Millisecond)
			Expect(req.Submit("What next?")).To(BeTrue())
		}()

		text, err := req.Response(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("What next?"))
		Expect(req.Done()).To(BeClosed())
	})

	It("reports cancellation", func() {
		req := prompt.New("root")
		Expect(req.Cancel()).To(BeTrue())

		_, err := req.Response(context.Background())
		Expect(err).To(MatchError(prompt.ErrCanceled))
	})

	It("resolves only once", func() {
		req := prompt.New("root")
		Expect(req.Submit("first")).To(BeTrue())
		Expect(req.Submit("second")).To(BeFalse())
		Expect(req.Cancel()).To(BeFalse())

		text, err := req.Response(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("first"))
	})

	It("stops waiting when the context ends", func() {
		req := prompt.New("root")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := req.Response(ctx)
		Expect(err).To(MatchError(context.DeadlineExceeded))
		Expect(req.Done()).NotTo(BeClosed())
	})
})
