package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/saamerm/particle/pkg/storage"
	"github.com/saamerm/particle/pkg/storage/inmemory"
	testutils "github.com/saamerm/particle/pkg/utils/test"
)

var _ = Describe("Driver", func() {
	testutils.DriverBehaviors(func() storage.Driver {
		return inmemory.NewDriver()
	})

	It("returns copies that callers cannot mutate", func() {
		d := inmemory.NewDriver()
		ctx := context.Background()

		_, err := d.Put(ctx, testutils.NewTestRecord("r1", "dev1", "temp", "21"))
		Expect(err).NotTo(HaveOccurred())

		got, err := d.Get(ctx, "r1")
		Expect(err).NotTo(HaveOccurred())
		got.Event.Data = "changed"

		again, err := d.Get(ctx, "r1")
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Event.Data).To(Equal("21"))
	})

	It("rejects writes after Close", func() {
		d := inmemory.NewDriver()
		Expect(d.Close()).To(Succeed())

		_, err := d.Put(context.Background(), testutils.NewTestRecord("r1", "dev1", "temp", "21"))
		Expect(err).To(HaveOccurred())
	})
})
