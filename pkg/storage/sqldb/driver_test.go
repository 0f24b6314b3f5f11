package sqldb

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/saamerm/particle/pkg/storage"
)

var _ = Describe("Driver", func() {
	Describe("rebind", func() {
		It("leaves question marks alone by default", func() {
			d := &Driver{}
			Expect(d.rebind("a = ? AND b = ?")).To(Equal("a = ? AND b = ?"))
		})

		It("numbers placeholders for numbered dialects", func() {
			d := &Driver{Dialect: Dialect{Numbered: true}}
			Expect(d.rebind("a = ? AND b = ?")).To(Equal("a = $1 AND b = $2"))
		})
	})

	Describe("where", func() {
		d := &Driver{Dialect: Dialect{NamePrefix: "substr(name, 1, length(?)) = ?"}}

		It("is empty for a zero filter", func() {
			clause, args := d.where(storage.Filter{Limit: 5})
			Expect(clause).To(BeEmpty())
			Expect(args).To(BeEmpty())
		})

		It("repeats the prefix for every placeholder in the dialect clause", func() {
			clause, args := d.where(storage.Filter{DeviceID: "dev1", NamePrefix: "temp"})
			Expect(clause).To(Equal(" WHERE device_id = ? AND substr(name, 1, length(?)) = ?"))
			Expect(args).To(Equal([]any{"dev1", "temp", "temp"}))
		})
	})

	Describe("timestamps", func() {
		It("maps the zero time to zero", func() {
			Expect(toNanos(time.Time{})).To(BeZero())
			Expect(fromNanos(0).IsZero()).To(BeTrue())
		})

		It("round-trips nanoseconds in UTC", func() {
			t := time.Date(2021, 1, 1, 0, 0, 0, 123456789, time.UTC)
			Expect(fromNanos(toNanos(t))).To(Equal(t))
		})
	})
})
