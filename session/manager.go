// CLAUDE:SUMMARY Session manager: launches the browser seeded with the persisted artifact, persists storage, best-effort ordered teardown.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hazyhaar/discordweb/browser"
)

// ErrNoPage is returned by operations that need a live browser.
var ErrNoPage = errors.New("session: no live page")

// InitError reports a browser that could not be launched.
type InitError struct {
	Err error
}

func (e *InitError) Error() string { return "session: launch browser: " + e.Err.Error() }
func (e *InitError) Unwrap() error { return e.Err }

// DefaultArtifactName is the session file created in the home directory.
const DefaultArtifactName = ".discordweb_session.json"

// DefaultArtifactPath returns ~/.discordweb_session.json, or the bare name
// when the home directory is unknown.
func DefaultArtifactPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultArtifactName
	}
	return filepath.Join(home, DefaultArtifactName)
}

// HasArtifact reports whether a session artifact exists at path.
func HasArtifact(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// RemoveArtifact deletes the artifact. A missing file is not an error.
func RemoveArtifact(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: remove artifact: %w", err)
	}
	return nil
}

// Manager creates, persists and tears down browser sessions.
type Manager struct {
	driver browser.Driver
	logger *slog.Logger
}

// NewManager creates a Manager launching browsers through driver.
func NewManager(driver browser.Driver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{driver: driver, logger: logger}
}

// Acquire returns st unchanged when it already holds a live page. Otherwise
// it launches a browser, seeded with the artifact when one exists.
func (m *Manager) Acquire(ctx context.Context, st State) (State, error) {
	if st.Live() {
		return st, nil
	}

	opts := browser.LaunchOptions{Headless: st.Headless()}
	if path := st.ArtifactPath(); path != "" {
		storage, err := browser.LoadStorage(path)
		switch {
		case err == nil:
			opts.Storage = storage
			m.logger.Info("session: artifact loaded", "path", path, "cookies", len(storage.Cookies))
		case errors.Is(err, os.ErrNotExist):
			m.logger.Debug("session: no artifact", "path", path)
		default:
			// A corrupt artifact only costs a fresh login.
			m.logger.Warn("session: artifact unreadable", "path", path, "error", err)
		}
	}

	inst, err := m.driver.Launch(ctx, opts)
	if err != nil {
		return st, &InitError{Err: err}
	}
	if inst == nil || inst.Page == nil {
		if inst != nil {
			m.release(inst)
		}
		return st, &InitError{Err: ErrNoPage}
	}

	m.logger.Info("session: browser acquired", "headless", st.Headless(), "seeded", opts.Storage != nil)
	return st.WithInstance(inst), nil
}

// Persist writes the browser's cookies and local storage to the artifact path.
func (m *Manager) Persist(ctx context.Context, st State) error {
	if !st.Live() {
		return ErrNoPage
	}
	if st.ArtifactPath() == "" {
		return nil
	}
	storage, err := st.Instance().Browser.Storage(ctx)
	if err != nil {
		return fmt.Errorf("session: capture storage: %w", err)
	}
	if err := storage.Save(st.ArtifactPath()); err != nil {
		return fmt.Errorf("session: persist: %w", err)
	}
	m.logger.Info("session: artifact saved", "path", st.ArtifactPath(), "cookies", len(storage.Cookies))
	return nil
}

// Release closes the page, the browser and the process, in that order.
// Every close is attempted; failures are logged.
func (m *Manager) Release(st State) {
	if inst := st.Instance(); inst != nil {
		m.release(inst)
	}
}

// Reset releases st and returns a fresh unauthenticated state with the same
// credentials, headless flag and artifact path.
func (m *Manager) Reset(st State) State {
	m.Release(st)
	return st.Fresh()
}

func (m *Manager) release(inst *browser.Instance) {
	steps := []struct {
		name string
		c    browser.Closer
	}{
		{"page", inst.Page},
		{"browser", inst.Browser},
		{"process", inst.Process},
	}
	for _, s := range steps {
		if s.c == nil {
			continue
		}
		if err := s.c.Close(); err != nil {
			m.logger.Warn("session: close failed", "resource", s.name, "error", err)
		}
	}
}
