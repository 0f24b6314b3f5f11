// Package cloud is the facade over the Particle cloud REST API: OAuth token
// exchange, user signup, device listing and claiming, event publishing, and
// construction of authenticated event stream clients.
//
// There is no shared instance. Hosts build one Client and pass it to whatever
// needs it.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/saamerm/particle/pkg/eventsource"
	"github.com/saamerm/particle/pkg/logger"
	"github.com/saamerm/particle/pkg/particle"
)

const (
	// DefaultAPIURL is the production cloud endpoint.
	DefaultAPIURL = "https://api.particle.io"

	// DefaultClientID and DefaultClientSecret identify the public OAuth client
	// used until CreateOAuthClient installs a dedicated one.
	DefaultClientID     = "particle"
	DefaultClientSecret = "particle"

	defaultTimeout = 20 * time.Second
)

// Config configures a Client.
type Config struct {
	// APIURL is the cloud base url. Defaults to DefaultAPIURL.
	APIURL string

	// ClientID and ClientSecret are the OAuth client credentials. They default
	// to DefaultClientID and DefaultClientSecret.
	ClientID     string
	ClientSecret string

	// Token is an access token from a previous session, if any.
	Token *particle.AccessToken

	// Username is the user the Token belongs to, if known.
	Username string

	// HTTPClient is used for the request/response calls. Defaults to a client
	// with a 20 second timeout.
	HTTPClient *http.Client

	// StreamHTTPClient is handed to event stream clients. It must not carry a
	// timeout. Defaults to the event stream client's own default.
	StreamHTTPClient *http.Client

	// Logger is the provided logger. Defaults to a no-op logger.
	Logger *slog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Client talks to the cloud API on behalf of one user.
type Client struct {
	apiURL     string
	httpClient *http.Client
	streamHTTP *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu           sync.RWMutex
	clientID     string
	clientSecret string
	token        *particle.AccessToken
	username     string
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	c := &Client{
		apiURL:       strings.TrimSuffix(cfg.APIURL, "/"),
		httpClient:   cfg.HTTPClient,
		streamHTTP:   cfg.StreamHTTPClient,
		logger:       logger.OrNop(cfg.Logger),
		now:          cfg.Now,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		token:        cfg.Token,
		username:     cfg.Username,
	}

	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.clientID == "" {
		c.clientID = DefaultClientID
	}
	if c.clientSecret == "" {
		c.clientSecret = DefaultClientSecret
	}

	return c
}

// APIURL returns the cloud base url.
func (c *Client) APIURL() string {
	return c.apiURL
}

// OAuthClient returns the OAuth client id and secret in use.
func (c *Client) OAuthClient() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID, c.clientSecret
}

// Token returns a copy of the current access token, or nil when logged out.
func (c *Client) Token() *particle.AccessToken {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.token == nil {
		return nil
	}
	tok := *c.token
	return &tok
}

// SetToken installs an access token obtained elsewhere.
func (c *Client) SetToken(tok *particle.AccessToken, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = tok
	c.username = username
}

// Username returns the logged in username, if known.
func (c *Client) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// IsLoggedIn reports whether the client holds an unexpired access token.
func (c *Client) IsLoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token.Valid(c.now())
}

// Logout forgets the access token and username.
func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = nil
	c.username = ""
}

// CreateOAuthClient creates an installed-app OAuth client named appName and
// switches this Client over to its credentials.
func (c *Client) CreateOAuthClient(ctx context.Context, accessToken, appName string) error {
	if accessToken == "" || appName == "" {
		return fmt.Errorf("%w: access token and app name are required", particle.ErrInvalidInput)
	}

	form := url.Values{
		"name":         {appName},
		"type":         {"installed"},
		"access_token": {accessToken},
	}

	var resp particle.OAuthClientResponse
	if err := c.do(ctx, http.MethodPost, "/v1/clients", form, "", &resp); err != nil {
		return err
	}

	if !resp.OK || resp.Client.ID == "" {
		return &particle.UpstreamError{Message: "oauth client was not created"}
	}

	c.mu.Lock()
	c.clientID = resp.Client.ID
	c.clientSecret = resp.Client.Secret
	c.mu.Unlock()

	c.logger.Info("oauth client created", "app", appName, "client_id", resp.Client.ID)
	return nil
}

// Login exchanges a username and password for an access token.
func (c *Client) Login(ctx context.Context, username, password string) (*particle.AccessToken, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", particle.ErrInvalidInput)
	}

	clientID, clientSecret := c.OAuthClient()
	form := url.Values{
		"grant_type":    {"password"},
		"username":      {username},
		"password":      {password},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	tok, err := c.exchangeToken(ctx, form)
	if err != nil {
		return nil, err
	}

	c.SetToken(tok, username)
	c.logger.Info("logged in", "username", username, "expires_at", tok.ExpiresAt)

	return c.Token(), nil
}

// RefreshToken trades the current refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context) (*particle.AccessToken, error) {
	current := c.Token()
	if current == nil || current.RefreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", particle.ErrInvalidState)
	}

	clientID, clientSecret := c.OAuthClient()
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {current.RefreshToken},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	tok, err := c.exchangeToken(ctx, form)
	if err != nil {
		return nil, err
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = current.RefreshToken
	}

	c.SetToken(tok, c.Username())
	c.logger.Info("access token refreshed", "expires_at", tok.ExpiresAt)

	return c.Token(), nil
}

func (c *Client) exchangeToken(ctx context.Context, form url.Values) (*particle.AccessToken, error) {
	var resp particle.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/oauth/token", form, "", &resp); err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return nil, &particle.UpstreamError{Message: "token response carried no access token"}
	}

	return particle.NewAccessToken(&resp, c.now()), nil
}

// Signup registers a new user.
func (c *Client) Signup(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("%w: username and password are required", particle.ErrInvalidInput)
	}

	form := url.Values{
		"username": {username},
		"password": {password},
	}

	var resp particle.GeneralResponse
	if err := c.do(ctx, http.MethodPost, "/v1/users", form, "", &resp); err != nil {
		return err
	}

	if !resp.OK {
		msg := resp.Message()
		if msg == "" {
			msg = "signup failed"
		}
		return &particle.UpstreamError{Message: msg}
	}

	c.logger.Info("user signed up", "username", username)
	return nil
}

// Devices lists the devices claimed by the logged in user.
func (c *Client) Devices(ctx context.Context) ([]particle.Device, error) {
	token, err := c.bearer()
	if err != nil {
		return nil, err
	}

	var devices []particle.Device
	if err := c.do(ctx, http.MethodGet, "/v1/devices", nil, token, &devices); err != nil {
		return nil, err
	}

	return devices, nil
}

// Device returns a single device by id.
func (c *Client) Device(ctx context.Context, deviceID string) (*particle.Device, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", particle.ErrInvalidInput)
	}

	token, err := c.bearer()
	if err != nil {
		return nil, err
	}

	var device particle.Device
	if err := c.do(ctx, http.MethodGet, "/v1/devices/"+url.PathEscape(deviceID), nil, token, &device); err != nil {
		return nil, err
	}

	return &device, nil
}

// ClaimDevice claims an unregistered device for the logged in user.
func (c *Client) ClaimDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("%w: device id is required", particle.ErrInvalidInput)
	}

	token, err := c.bearer()
	if err != nil {
		return err
	}

	var resp particle.ClaimResponse
	if err := c.do(ctx, http.MethodPost, "/v1/devices", url.Values{"id": {deviceID}}, token, &resp); err != nil {
		return err
	}

	if !resp.OK && !resp.Connected {
		msg := resp.Message()
		if msg == "" {
			msg = "device was not claimed"
		}
		return &particle.UpstreamError{Message: msg}
	}

	c.logger.Info("device claimed", "device_id", deviceID)
	return nil
}

// PublishEvent publishes an event to the user's event stream. Success is read
// from the typed "ok" field of the response.
func (c *Client) PublishEvent(ctx context.Context, req particle.PublishRequest) error {
	if req.Name == "" {
		return fmt.Errorf("%w: event name is required", particle.ErrInvalidInput)
	}
	if req.TTL < 0 {
		return fmt.Errorf("%w: ttl must not be negative", particle.ErrInvalidInput)
	}

	token, err := c.bearer()
	if err != nil {
		return err
	}

	form := url.Values{
		"name":    {req.Name},
		"data":    {req.Data},
		"private": {strconv.FormatBool(req.Private)},
	}
	if req.TTL > 0 {
		form.Set("ttl", strconv.Itoa(req.TTL))
	}

	var resp particle.GeneralResponse
	if err := c.do(ctx, http.MethodPost, "/v1/devices/events", form, token, &resp); err != nil {
		return err
	}

	if !resp.OK {
		msg := resp.Message()
		if msg == "" {
			msg = "event was not published"
		}
		return &particle.UpstreamError{Message: msg}
	}

	c.logger.Debug("event published", "name", req.Name, "private", req.Private)
	return nil
}

// SubscribeToAllEventsWithPrefix returns a stream client for the public events
// whose name starts with prefix. The prefix is required.
func (c *Client) SubscribeToAllEventsWithPrefix(prefix string, opts ...eventsource.Option) (*eventsource.Client, error) {
	if prefix == "" {
		return nil, fmt.Errorf("%w: a prefix is required for public events", particle.ErrInvalidInput)
	}

	return c.stream("/v1/events/"+url.PathEscape(prefix), opts)
}

// SubscribeToMyDevicesEventsWithPrefix returns a stream client for the events
// of the user's devices. An empty prefix subscribes to all of them.
func (c *Client) SubscribeToMyDevicesEventsWithPrefix(prefix string, opts ...eventsource.Option) (*eventsource.Client, error) {
	return c.stream(withPrefix("/v1/devices/events", prefix), opts)
}

// SubscribeToDeviceEventsWithPrefix returns a stream client for the events of
// one device. An empty prefix subscribes to all of them.
func (c *Client) SubscribeToDeviceEventsWithPrefix(deviceID, prefix string, opts ...eventsource.Option) (*eventsource.Client, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", particle.ErrInvalidInput)
	}

	return c.stream(withPrefix("/v1/devices/"+url.PathEscape(deviceID)+"/events", prefix), opts)
}

// stream builds a stream client for path. Caller options are applied after
// the client's own logger and HTTP client.
func (c *Client) stream(path string, extra []eventsource.Option) (*eventsource.Client, error) {
	token, err := c.bearer()
	if err != nil {
		return nil, err
	}

	opts := []eventsource.Option{
		eventsource.WithLogger(c.logger.With("component", "eventsource")),
	}
	if c.streamHTTP != nil {
		opts = append(opts, eventsource.WithHTTPClient(c.streamHTTP))
	}
	opts = append(opts, extra...)

	return eventsource.New(c.apiURL+path, token, opts...), nil
}

// bearer returns the current access token or ErrInvalidState when there is
// none or it expired.
func (c *Client) bearer() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case c.token == nil || c.token.Token == "":
		return "", fmt.Errorf("%w: not logged in", particle.ErrInvalidState)
	case c.token.Expired(c.now()):
		return "", fmt.Errorf("%w: access token expired", particle.ErrInvalidState)
	default:
		return c.token.Token, nil
	}
}

func withPrefix(path, prefix string) string {
	if prefix == "" {
		return path
	}
	return path + "/" + url.PathEscape(prefix)
}

// IsAuthError reports whether err means the caller must log in again.
func IsAuthError(err error) bool {
	if errors.Is(err, particle.ErrInvalidState) {
		return true
	}

	var upstream *particle.UpstreamError
	return errors.As(err, &upstream) && upstream.StatusCode == http.StatusUnauthorized
}
