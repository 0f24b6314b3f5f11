package testutils

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/saamerm/particle/pkg/storage"
)

// DriverBehaviors registers the specs every storage.Driver must pass.
// newDriver is called before each spec; the driver is closed after it.
func DriverBehaviors(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			driver.Close()
			driver = nil
		}
	})

	seed := func() {
		for _, rec := range []*storage.Record{
			NewTestRecord("r1", "dev1", "temp", "20"),
			NewTestRecord("r2", "dev2", "temp", "21"),
			NewTestRecord("r3", "dev1", "humidity", "40"),
			NewTestRecord("r4", "dev1", "Temp", "22"),
		} {
			inserted, err := driver.Put(ctx, rec)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())
		}
	}

	Describe("Put and Get", func() {
		It("stores and retrieves a record", func() {
			rec := NewTestRecord("r1", "dev1", "temp", "21.5")

			inserted, err := driver.Put(ctx, rec)
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeTrue())

			got, err := driver.Get(ctx, "r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("r1"))
			Expect(got.StreamURL).To(Equal(rec.StreamURL))
			Expect(got.ReceivedAt).To(BeTemporally("==", rec.ReceivedAt))
			Expect(got.Event.DeviceID).To(Equal("dev1"))
			Expect(got.Event.Name).To(Equal("temp"))
			Expect(got.Event.Data).To(Equal("21.5"))
			Expect(got.Event.TTL).To(Equal(60))
			Expect(got.Event.PublishedAt).To(BeTemporally("==", rec.Event.PublishedAt))
		})

		It("ignores a duplicate id", func() {
			_, err := driver.Put(ctx, NewTestRecord("r1", "dev1", "temp", "first"))
			Expect(err).NotTo(HaveOccurred())

			inserted, err := driver.Put(ctx, NewTestRecord("r1", "dev1", "temp", "second"))
			Expect(err).NotTo(HaveOccurred())
			Expect(inserted).To(BeFalse())

			got, err := driver.Get(ctx, "r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Event.Data).To(Equal("first"))
		})

		It("stamps a missing received time", func() {
			rec := NewTestRecord("r1", "dev1", "temp", "x")
			rec.ReceivedAt = time.Time{}

			_, err := driver.Put(ctx, rec)
			Expect(err).NotTo(HaveOccurred())

			got, err := driver.Get(ctx, "r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ReceivedAt).NotTo(BeZero())
		})

		It("rejects a nil record", func() {
			_, err := driver.Put(ctx, nil)
			Expect(err).To(MatchError(storage.ErrNilRecord))
		})

		It("returns NotFoundError for an unknown id", func() {
			_, err := driver.Get(ctx, "missing")
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})
	})

	Describe("List", func() {
		BeforeEach(seed)

		It("returns records newest first", func() {
			recs, err := driver.List(ctx, storage.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(recs)).To(Equal([]string{"r4", "r3", "r2", "r1"}))
		})

		It("filters by device", func() {
			recs, err := driver.List(ctx, storage.Filter{DeviceID: "dev1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(recs)).To(Equal([]string{"r4", "r3", "r1"}))
		})

		It("filters by case-sensitive name prefix", func() {
			recs, err := driver.List(ctx, storage.Filter{NamePrefix: "te"})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(recs)).To(Equal([]string{"r2", "r1"}))
		})

		It("treats LIKE wildcards in the prefix literally", func() {
			recs, err := driver.List(ctx, storage.Filter{NamePrefix: "%"})
			Expect(err).NotTo(HaveOccurred())
			Expect(recs).To(BeEmpty())
		})

		It("combines filters and limits", func() {
			recs, err := driver.List(ctx, storage.Filter{DeviceID: "dev1", NamePrefix: "temp", Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(recs)).To(Equal([]string{"r1"}))

			recs, err = driver.List(ctx, storage.Filter{Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(ids(recs)).To(Equal([]string{"r4", "r3"}))
		})
	})

	Describe("Count", func() {
		BeforeEach(seed)

		It("counts matching records and ignores the limit", func() {
			n, err := driver.Count(ctx, storage.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(4))

			n, err = driver.Count(ctx, storage.Filter{DeviceID: "dev1", Limit: 1})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))

			n, err = driver.Count(ctx, storage.Filter{DeviceID: "dev3"})
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})
}

func ids(recs []*storage.Record) []string {
	out := make([]string, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.ID)
	}
	return out
}
