package eventsource_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/saamerm/particle/pkg/eventsource"
)

var _ = Describe("State", func() {
	DescribeTable("String",
		func(s eventsource.State, want string) {
			Expect(s.String()).To(Equal(want))
		},
		Entry("closed", eventsource.StateClosed, "closed"),
		Entry("connecting", eventsource.StateConnecting, "connecting"),
		Entry("open", eventsource.StateOpen, "open"),
		Entry("out of range", eventsource.State(42), "unknown"),
	)
})
