// CLAUDE:SUMMARY Immutable session snapshot (credentials, headless flag, browser handles, login flag, artifact path).
// Package session owns the single browser session: its immutable State value
// and the Manager that acquires, persists and releases it.
package session

import (
	"github.com/hazyhaar/discordweb/browser"
)

// Credentials are the account email and password. String never prints the password.
type Credentials struct {
	Email    string
	Password string
}

func (c Credentials) String() string {
	if c.Password == "" {
		return c.Email
	}
	return c.Email + ":[redacted]"
}

// Complete reports whether both fields are set.
func (c Credentials) Complete() bool {
	return c.Email != "" && c.Password != ""
}

// State is a snapshot of the session. It is never mutated: With* methods
// return a modified copy. LoggedIn implies a live page.
type State struct {
	creds    Credentials
	headless bool
	artifact string
	inst     *browser.Instance
	loggedIn bool
}

// New returns an unauthenticated state with no browser.
func New(creds Credentials, headless bool, artifactPath string) State {
	return State{creds: creds, headless: headless, artifact: artifactPath}
}

func (s State) Credentials() Credentials    { return s.creds }
func (s State) Headless() bool              { return s.headless }
func (s State) ArtifactPath() string        { return s.artifact }
func (s State) Instance() *browser.Instance { return s.inst }
func (s State) LoggedIn() bool              { return s.loggedIn }

// Page returns the page handle, or nil when no browser is held.
func (s State) Page() browser.Page {
	if s.inst == nil {
		return nil
	}
	return s.inst.Page
}

// Live reports whether the state holds a browser with a page.
func (s State) Live() bool {
	return s.inst != nil && s.inst.Page != nil
}

// WithInstance attaches new browser handles. The login flag is cleared: a
// new page has not been observed on an authenticated view yet.
func (s State) WithInstance(inst *browser.Instance) State {
	s.inst = inst
	s.loggedIn = false
	return s
}

// WithLoggedIn sets the login flag. Setting it without a live page is ignored.
func (s State) WithLoggedIn(v bool) State {
	if v && !s.Live() {
		return s
	}
	s.loggedIn = v
	return s
}

// Fresh drops handles and the login flag, keeping credentials, the headless
// flag and the artifact path. It does not close anything.
func (s State) Fresh() State {
	return New(s.creds, s.headless, s.artifact)
}
