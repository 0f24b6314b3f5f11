package storage_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/saamerm/particle/pkg/storage"
	testutils "github.com/saamerm/particle/pkg/utils/test"
)

var _ = Describe("Filter", func() {
	rec := testutils.NewTestRecord("r1", "dev1", "temp/kitchen", "21")

	DescribeTable("Matches",
		func(filter storage.Filter, want bool) {
			Expect(filter.Matches(rec)).To(Equal(want))
		},
		Entry("zero filter", storage.Filter{}, true),
		Entry("same device", storage.Filter{DeviceID: "dev1"}, true),
		Entry("other device", storage.Filter{DeviceID: "dev2"}, false),
		Entry("name prefix", storage.Filter{NamePrefix: "temp/"}, true),
		Entry("full name", storage.Filter{NamePrefix: "temp/kitchen"}, true),
		Entry("prefix is case sensitive", storage.Filter{NamePrefix: "Temp"}, false),
		Entry("both", storage.Filter{DeviceID: "dev1", NamePrefix: "temp"}, true),
	)
})

var _ = Describe("NotFoundError", func() {
	It("names the missing id", func() {
		Expect(storage.NotFoundError{ID: "r1"}.Error()).To(Equal("record not found: r1"))
		Expect(storage.NotFoundError{}.Error()).To(Equal("record not found"))
	})
})
