package particle

import "time"

// AccessToken is an OAuth access token issued by the cloud.
type AccessToken struct {
	Token        string    `json:"access_token" toml:"access_token"`
	RefreshToken string    `json:"refresh_token" toml:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at" toml:"expires_at"`
}

// NewAccessToken builds an AccessToken from a token response, anchoring the
// relative expiry at now. A response without an expiry yields a token that
// never expires.
func NewAccessToken(resp *TokenResponse, now time.Time) *AccessToken {
	tok := &AccessToken{
		Token:        resp.AccessToken,
		RefreshToken: resp.RefreshToken,
	}
	if resp.ExpiresIn > 0 {
		tok.ExpiresAt = now.Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return tok
}

// Valid reports whether the token is present and unexpired at now.
// A zero expiry never expires.
func (t *AccessToken) Valid(now time.Time) bool {
	if t == nil || t.Token == "" {
		return false
	}

	return !t.Expired(now)
}

// Expired reports whether the token expired at or before now.
func (t *AccessToken) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}

	return !now.Before(t.ExpiresAt)
}
