package postgres_test

import (
	"context"
	"fmt"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/saamerm/particle/pkg/storage"
	"github.com/saamerm/particle/pkg/storage/postgres"
	testutils "github.com/saamerm/particle/pkg/utils/test"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("PARTICLE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("PARTICLE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	testutils.DriverBehaviors(func() storage.Driver {
		ctx := context.Background()

		d, err := postgres.NewDriver(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		// Clean all events before each test for isolation.
		_, err = d.DB.ExecContext(ctx, "TRUNCATE events RESTART IDENTITY")
		Expect(err).NotTo(HaveOccurred())

		return d
	})

	Describe("NewDriver", func() {
		It("returns an error for invalid connection string", func() {
			_, err := postgres.NewDriver(context.Background(), "host=invalid port=9999 user=bad dbname=bad sslmode=disable connect_timeout=1")
			Expect(err).To(HaveOccurred())
			fmt.Fprintf(GinkgoWriter, "expected error: %v\n", err)
		})
	})
})
