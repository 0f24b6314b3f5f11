package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/saamerm/particle/pkg/dotdir"
	"github.com/saamerm/particle/pkg/particle"
)

const (
	credentialsFile = "credentials.toml"

	currentVersion = 0
)

// Manager manages reading and writing credentials.toml in the .particle/ directory.
type Manager struct {
	ddm        *dotdir.Manager
	targetPath string
}

// NewManager creates a new credentials Manager. If override is non-empty it is
// used as the .particle/ directory; otherwise the standard dotdir resolution applies.
func NewManager(override string) (*Manager, error) {
	mgr := &Manager{}
	mgr.ddm = dotdir.NewManager()

	target, err := mgr.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	mgr.targetPath = filepath.Join(target, credentialsFile)

	return mgr, nil
}

// Load reads credentials.toml from the target directory.
// Returns empty Credentials if the file does not exist.
func (m *Manager) Load() (*Credentials, error) {
	data, err := os.ReadFile(m.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Credentials{Version: currentVersion}, nil
		}
		return nil, fmt.Errorf("reading credentials: %w", err)
	}

	creds := &Credentials{}
	if err := toml.Unmarshal(data, creds); err != nil {
		return nil, fmt.Errorf("parsing credentials: %w", err)
	}

	return creds, nil
}

// Save writes credentials to credentials.toml with 0600 permissions.
func (m *Manager) Save(creds *Credentials) error {
	if creds == nil {
		return errors.New("cannot save nil credentials")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(creds); err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := os.WriteFile(m.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}

	return nil
}

// SaveSession stores the token issued to username, replacing any previous
// session.
func (m *Manager) SaveSession(username string, tok *particle.AccessToken) error {
	if tok == nil || tok.Token == "" {
		return errors.New("cannot save an empty access token")
	}

	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.Session = &Session{
		Username:     username,
		AccessToken:  tok.Token,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
	}

	return m.Save(creds)
}

// Session returns the stored username and token.
// Returns "", nil, nil when nobody is logged in.
func (m *Manager) Session() (string, *particle.AccessToken, error) {
	creds, err := m.Load()
	if err != nil {
		return "", nil, err
	}

	if creds.Session == nil || creds.Session.AccessToken == "" {
		return "", nil, nil
	}

	return creds.Session.Username, &particle.AccessToken{
		Token:        creds.Session.AccessToken,
		RefreshToken: creds.Session.RefreshToken,
		ExpiresAt:    creds.Session.ExpiresAt,
	}, nil
}

// ClearSession forgets the stored session. The OAuth client is kept.
func (m *Manager) ClearSession() error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	if creds.Session == nil {
		return nil
	}

	creds.Session = nil

	return m.Save(creds)
}

// SetOAuthClient stores the credentials of a dedicated OAuth client.
func (m *Manager) SetOAuthClient(id, secret string) error {
	creds, err := m.Load()
	if err != nil {
		return err
	}

	creds.OAuth = &OAuthClient{ID: id, Secret: secret}

	return m.Save(creds)
}

// OAuthClient returns the stored OAuth client, or nil when none was created.
func (m *Manager) OAuthClient() (*OAuthClient, error) {
	creds, err := m.Load()
	if err != nil {
		return nil, err
	}

	return creds.OAuth, nil
}

// GetTarget returns the resolved path to the credentials file.
func (m *Manager) GetTarget() string {
	return m.targetPath
}
