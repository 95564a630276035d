// CLAUDE:SUMMARY Login state machine types: Status/Result, staged auth errors, selector and timeout configuration.
// Package auth establishes an authenticated web-client session, either by
// reusing persisted cookies or by submitting credentials and waiting out the
// email verification step.
package auth

import (
	"errors"
	"strings"
	"time"
)

// Status classifies a session after a check or a login attempt.
type Status int

const (
	StatusUnknown Status = iota
	StatusAuthenticated
	StatusLoginRequired
	StatusVerificationRequired
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticated:
		return "authenticated"
	case StatusLoginRequired:
		return "login_required"
	case StatusVerificationRequired:
		return "verification_required"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of Probe or Login.
type Result struct {
	Status Status
	// Reason explains any status other than StatusAuthenticated.
	Reason string
	// Fresh is true when credentials were submitted (as opposed to cookie reuse).
	Fresh bool
}

// Stage names the login step an Error comes from.
type Stage string

const (
	StageSubmit       Stage = "submit credentials"
	StageRedirect     Stage = "leave login page"
	StageVerification Stage = "await verification"
	StageConfirm      Stage = "confirm session"
)

// ErrNotAuthenticated is wrapped when the post-login check fails.
var ErrNotAuthenticated = errors.New("auth: landing view not authenticated")

// Error is an authentication failure at a given stage.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return "auth: " + string(e.Stage) + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Config tunes the login flow. Zero durations take the defaults; a negative
// delay disables it.
type Config struct {
	// BaseURL of the web client. Default: https://discord.com
	BaseURL string

	// LandmarkTimeout bounds the wait for the guild sidebar. Default: 15s.
	LandmarkTimeout time.Duration
	// RedirectTimeout bounds the wait for leaving the login page. Default: 60s.
	RedirectTimeout time.Duration
	// VerificationTimeout bounds the human email verification step. Default: 120s.
	VerificationTimeout time.Duration
	// PollInterval between URL checks. Default: 500ms.
	PollInterval time.Duration

	// FormDelay lets the login form hydrate before typing. Default: 2s.
	FormDelay time.Duration
	// RedirectSettle runs after the login page is left. Default: 3s.
	RedirectSettle time.Duration
	// ConfirmSettle runs before and after the final landing navigation. Default: 3s.
	ConfirmSettle time.Duration

	GuildLandmark    string
	EmailInput       string
	PasswordInput    string
	SubmitButton     string
	VerificationText string
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://discord.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.LandmarkTimeout <= 0 {
		c.LandmarkTimeout = 15 * time.Second
	}
	if c.RedirectTimeout <= 0 {
		c.RedirectTimeout = 60 * time.Second
	}
	if c.VerificationTimeout <= 0 {
		c.VerificationTimeout = 120 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.FormDelay == 0 {
		c.FormDelay = 2 * time.Second
	}
	if c.RedirectSettle == 0 {
		c.RedirectSettle = 3 * time.Second
	}
	if c.ConfirmSettle == 0 {
		c.ConfirmSettle = 3 * time.Second
	}
	if c.GuildLandmark == "" {
		c.GuildLandmark = `[data-list-id="guildsnav"] [role="treeitem"]`
	}
	if c.EmailInput == "" {
		c.EmailInput = `input[name="email"]`
	}
	if c.PasswordInput == "" {
		c.PasswordInput = `input[name="password"]`
	}
	if c.SubmitButton == "" {
		c.SubmitButton = `button[type="submit"]`
	}
	if c.VerificationText == "" {
		c.VerificationText = "Check your email"
	}
}

// LandingURL is the authenticated-only view used for checks.
func (c Config) LandingURL() string { return c.BaseURL + "/channels/@me" }

// LoginURL is the credential form.
func (c Config) LoginURL() string { return c.BaseURL + "/login" }
