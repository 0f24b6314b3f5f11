package nop_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/saamerm/particle/pkg/eventstream"
	"github.com/saamerm/particle/pkg/eventstream/nop"
)

var _ = Describe("Publisher", func() {
	var _ eventstream.Publisher = nop.NewPublisher()

	It("returns ErrNilEvent for nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishEvent(context.Background(), nil)
		Expect(err).To(MatchError(eventstream.ErrNilEvent))
	})

	It("succeeds for non-nil events", func() {
		p := nop.NewPublisher()
		err := p.PublishEvent(context.Background(), &eventstream.DeviceEventReceived{})
		Expect(err).NotTo(HaveOccurred())
	})

	It("closes successfully", func() {
		p := nop.NewPublisher()
		Expect(p.Close()).To(Succeed())
	})
})
