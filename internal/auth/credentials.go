package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Credentials is the persisted auth state for one backend.
type Credentials struct {
	BaseURL  string    `json:"base_url"`
	Username string    `json:"username"`
	Token    string    `json:"token"`
	SavedAt  time.Time `json:"saved_at"`
}

// DefaultPath places the token file under the user's home directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".radcase/credentials.json"
	}
	return filepath.Join(home, ".radcase", "credentials.json")
}

// Load reads credentials from the given path. A missing file returns empty
// credentials without error; any other read/parse error is returned.
func Load(path string) (Credentials, error) {
	if path == "" {
		return Credentials{}, errors.New("empty credentials path")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, nil
		}
		return Credentials{}, fmt.Errorf("stat credentials file: %w", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials file: %w", err)
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return Credentials{}, fmt.Errorf("unmarshal credentials: %w", err)
	}
	c.Token = strings.TrimSpace(c.Token)
	return c, nil
}

// Save writes credentials to the given path, creating parent directories if
// needed. The file holds a bearer token, so it is written owner-only.
func Save(path string, c Credentials) error {
	if path == "" {
		return errors.New("empty credentials path")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mk credentials dir: %w", err)
	}
	c.SavedAt = time.Now().UTC()
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Clear removes the token file. Missing files are fine.
func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
