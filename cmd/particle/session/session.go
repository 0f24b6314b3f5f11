// Package session builds the cloud client a particle command talks through
// from the resolved configuration and the stored credentials.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/saamerm/particle/pkg/cloud"
	"github.com/saamerm/particle/pkg/config"
	"github.com/saamerm/particle/pkg/credentials"
	"github.com/saamerm/particle/pkg/logger"
	"github.com/saamerm/particle/pkg/particle"
)

// ErrNotLoggedIn is returned by RequireLogin when no usable session is stored.
var ErrNotLoggedIn = errors.New("not logged in, run 'particle login' first")

// Session is what a command needs to reach the cloud as the stored user.
type Session struct {
	Cloud  *cloud.Client
	Creds  *credentials.Manager
	Viper  *viper.Viper
	Logger *slog.Logger
}

// FromCommand opens a session using the persistent --config-dir, --debug and
// --api-url flags of cmd. Extra registry keys are bound to viper as well.
func FromCommand(cmd *cobra.Command, registryKeys ...string) (*Session, error) {
	v, err := Viper(cmd, registryKeys...)
	if err != nil {
		return nil, err
	}

	configDir, _ := cmd.Flags().GetString("config-dir")
	return Open(v, configDir, Logger(cmd))
}

// Viper resolves configuration for cmd with the --api-url flag and the given
// registry keys bound on top of env, file and defaults.
func Viper(cmd *cobra.Command, registryKeys ...string) (*viper.Viper, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, append([]string{config.FlagAPIURL}, registryKeys...))

	return v, nil
}

// Logger builds the terminal logger for cmd, writing to its error stream.
func Logger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")

	return logger.New(
		logger.WithDebug(debug),
		logger.WithPretty(true),
		logger.WithWriter(cmd.ErrOrStderr()),
	)
}

// Open builds a Session from resolved configuration. A stored OAuth client
// takes precedence over the configured client id and secret.
func Open(v *viper.Viper, configDir string, log *slog.Logger) (*Session, error) {
	creds, err := credentials.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	cfg := cloud.Config{
		APIURL:       v.GetString("cloud.api_url"),
		ClientID:     v.GetString("cloud.client_id"),
		ClientSecret: v.GetString("cloud.client_secret"),
		Logger:       log,
	}

	oauth, err := creds.OAuthClient()
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	if oauth != nil && oauth.ID != "" {
		cfg.ClientID = oauth.ID
		cfg.ClientSecret = oauth.Secret
	}

	username, tok, err := creds.Session()
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	cfg.Token = tok
	cfg.Username = username

	return &Session{
		Cloud:  cloud.New(cfg),
		Creds:  creds,
		Viper:  v,
		Logger: logger.OrNop(log),
	}, nil
}

// RequireLogin makes sure the session holds a live access token. An expired
// token is refreshed once and the new one is stored.
func (s *Session) RequireLogin(ctx context.Context) error {
	if s.Cloud.IsLoggedIn() {
		return nil
	}

	s.Logger.Debug("access token expired, refreshing")
	return s.Refresh(ctx)
}

// Refresh trades the stored refresh token for a new access token and stores
// it.
func (s *Session) Refresh(ctx context.Context) error {
	tok := s.Cloud.Token()
	if tok == nil || tok.RefreshToken == "" {
		return ErrNotLoggedIn
	}

	if _, err := s.Cloud.RefreshToken(ctx); err != nil {
		return fmt.Errorf("%w: refreshing token: %w", ErrNotLoggedIn, err)
	}

	return s.Persist()
}

// Persist stores the client's current token under its username.
func (s *Session) Persist() error {
	tok := s.Cloud.Token()
	if tok == nil {
		return s.Creds.ClearSession()
	}

	if err := s.Creds.SaveSession(s.Cloud.Username(), tok); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}

	return nil
}

// Describe prefixes cloud errors with what went wrong from the user's side.
// The original error stays in the chain.
func Describe(err error) error {
	switch {
	case errors.Is(err, particle.ErrUpstream):
		return fmt.Errorf("cloud refused the request: %w", err)
	case errors.Is(err, particle.ErrNetwork):
		return fmt.Errorf("could not reach the cloud: %w", err)
	default:
		return err
	}
}
