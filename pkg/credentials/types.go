package credentials

import "time"

// Credentials represents the stored session in credentials.toml.
type Credentials struct {
	Version int          `toml:"version"`
	Session *Session     `toml:"session,omitempty"`
	OAuth   *OAuthClient `toml:"oauth,omitempty"`
}

// Session holds the logged in user's tokens.
type Session struct {
	Username     string    `toml:"username"`
	AccessToken  string    `toml:"access_token"`
	RefreshToken string    `toml:"refresh_token,omitempty"`
	ExpiresAt    time.Time `toml:"expires_at,omitempty"`
}

// OAuthClient holds a dedicated OAuth client created for this install.
type OAuthClient struct {
	ID     string `toml:"id"`
	Secret string `toml:"secret"`
}
