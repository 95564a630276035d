package browser

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Storage is the serialisable session state of a browser: cookies plus the
// local storage entries of each visited origin.
type Storage struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Cookie mirrors the subset of CDP cookie fields needed to restore a session.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Origin holds the local storage of one origin (scheme://host).
type Origin struct {
	Origin       string  `json:"origin"`
	LocalStorage []Entry `json:"localStorage"`
}

// Entry is a local storage key/value pair.
type Entry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Empty reports whether the storage carries nothing worth restoring.
func (s *Storage) Empty() bool {
	if s == nil {
		return true
	}
	for _, o := range s.Origins {
		if len(o.LocalStorage) > 0 {
			return false
		}
	}
	return len(s.Cookies) == 0
}

// LoadStorage reads a storage file. A missing file returns os.ErrNotExist
// (wrapped) so callers can treat it as "no prior session".
func LoadStorage(path string) (*Storage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("browser: read storage: %w", err)
	}
	var s Storage
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("browser: decode storage %s: %w", path, err)
	}
	return &s, nil
}

// Save writes the storage atomically with owner-only permissions: the file
// holds session cookies and tokens.
func (s *Storage) Save(path string) error {
	if s == nil {
		return errors.New("browser: save nil storage")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("browser: encode storage: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("browser: mkdir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("browser: write storage: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("browser: rename storage: %w", err)
	}
	return nil
}
