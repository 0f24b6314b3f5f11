package particle_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/saamerm/particle/pkg/particle"
)

var _ = Describe("AccessToken", func() {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	It("anchors expires_in at the given time", func() {
		tok := particle.NewAccessToken(&particle.TokenResponse{
			AccessToken:  "abc",
			RefreshToken: "def",
			ExpiresIn:    3600,
		}, now)

		Expect(tok.Token).To(Equal("abc"))
		Expect(tok.RefreshToken).To(Equal("def"))
		Expect(tok.ExpiresAt).To(Equal(now.Add(time.Hour)))
	})

	It("is valid before expiry and expired at expiry", func() {
		tok := &particle.AccessToken{Token: "abc", ExpiresAt: now}

		Expect(tok.Valid(now.Add(-time.Second))).To(BeTrue())
		Expect(tok.Expired(now)).To(BeTrue())
		Expect(tok.Valid(now)).To(BeFalse())
	})

	It("never expires with a zero expiry", func() {
		tok := &particle.AccessToken{Token: "abc"}
		Expect(tok.Valid(now.Add(100 * 365 * 24 * time.Hour))).To(BeTrue())
	})

	It("is invalid when nil or empty", func() {
		var tok *particle.AccessToken
		Expect(tok.Valid(now)).To(BeFalse())
		Expect((&particle.AccessToken{}).Valid(now)).To(BeFalse())
	})
})

var _ = Describe("Errors", func() {
	It("matches UpstreamError against ErrUpstream", func() {
		err := &particle.UpstreamError{StatusCode: 401, Message: "invalid_token"}
		Expect(err).To(MatchError(particle.ErrUpstream))
		Expect(err.Error()).To(Equal("upstream error (status 401): invalid_token"))
	})

	It("omits the status when unknown", func() {
		err := &particle.UpstreamError{Message: "stream closed"}
		Expect(err.Error()).To(Equal("upstream error: stream closed"))
	})

	It("prefers error_description over errors and error", func() {
		resp := &particle.GeneralResponse{
			Error:            "invalid_grant",
			ErrorDescription: "User credentials are invalid",
			Errors:           []string{"other"},
		}
		Expect(resp.Message()).To(Equal("User credentials are invalid"))

		resp.ErrorDescription = ""
		Expect(resp.Message()).To(Equal("other"))

		resp.Errors = nil
		Expect(resp.Message()).To(Equal("invalid_grant"))
	})
})
