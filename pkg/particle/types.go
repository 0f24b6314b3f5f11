package particle

import "time"

// Device describes a device registered to the logged in user.
type Device struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	LastApp       string            `json:"last_app,omitempty"`
	LastIPAddress string            `json:"last_ip_address,omitempty"`
	LastHeard     time.Time         `json:"last_heard"`
	ProductID     int               `json:"product_id"`
	PlatformID    int               `json:"platform_id"`
	Connected     bool              `json:"connected"`
	Cellular      bool              `json:"cellular"`
	Status        string            `json:"status,omitempty"`
	Notes         string            `json:"notes,omitempty"`
	Functions     []string          `json:"functions,omitempty"`
	Variables     map[string]string `json:"variables,omitempty"`
}

// PublishRequest is an event published to the cloud on behalf of the user.
type PublishRequest struct {
	Name    string
	Data    string
	Private bool

	// TTL is the time to live in seconds. Zero leaves the cloud default.
	TTL int
}

// TokenResponse is the body of a successful OAuth token exchange.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// OAuthClientResponse is the body returned when creating an OAuth client.
type OAuthClientResponse struct {
	OK     bool `json:"ok"`
	Client struct {
		Name   string `json:"name"`
		Type   string `json:"type"`
		ID     string `json:"id"`
		Secret string `json:"secret"`
	} `json:"client"`
}

// GeneralResponse is the generic ok/errors envelope used by most endpoints.
type GeneralResponse struct {
	OK               bool     `json:"ok"`
	Errors           []string `json:"errors,omitempty"`
	Error            string   `json:"error,omitempty"`
	ErrorDescription string   `json:"error_description,omitempty"`
}

// Message returns the most specific error message in the response, or an
// empty string when the response carries none.
func (r *GeneralResponse) Message() string {
	switch {
	case r.ErrorDescription != "":
		return r.ErrorDescription
	case len(r.Errors) > 0 && r.Errors[0] != "":
		return r.Errors[0]
	default:
		return r.Error
	}
}

// ClaimResponse is the body returned when claiming a device.
type ClaimResponse struct {
	GeneralResponse
	UserID    string `json:"user_id"`
	ID        string `json:"id"`
	Connected bool   `json:"connected"`
}
