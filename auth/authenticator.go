package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hazyhaar/discordweb/browser"
	"github.com/hazyhaar/discordweb/session"
)

// Authenticator drives the login flow over a session.Manager.
type Authenticator struct {
	sessions *session.Manager
	cfg      Config
	logger   *slog.Logger
}

// New creates an Authenticator.
func New(sessions *session.Manager, cfg Config, logger *slog.Logger) *Authenticator {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{sessions: sessions, cfg: cfg, logger: logger}
}

// Config returns the resolved configuration.
func (a *Authenticator) Config() Config { return a.cfg }

// Check reports whether page is on an authenticated session. It never fails:
// any error or timeout counts as not authenticated.
func (a *Authenticator) Check(ctx context.Context, page browser.Page) bool {
	return a.Probe(ctx, page).Status == StatusAuthenticated
}

// Probe navigates to the landing view and classifies it. The session counts
// as authenticated only when the URL is outside login/register, inside the
// landing area, and the guild sidebar is rendered.
func (a *Authenticator) Probe(ctx context.Context, page browser.Page) Result {
	required := func(reason string) Result {
		a.logger.Debug("auth: not authenticated", "reason", reason)
		return Result{Status: StatusLoginRequired, Reason: reason}
	}
	if page == nil {
		return required("no page")
	}

	if err := page.Navigate(ctx, a.cfg.LandingURL()); err != nil {
		return required("navigate: " + err.Error())
	}
	if err := page.WaitVisible(ctx, a.cfg.GuildLandmark, a.cfg.LandmarkTimeout); err != nil {
		return required("landmark: " + err.Error())
	}

	url, err := page.URL(ctx)
	if err != nil {
		return required("url: " + err.Error())
	}
	if strings.Contains(url, "/login") || strings.Contains(url, "/register") {
		return required("redirected to " + url)
	}
	if !strings.Contains(url, "/channels/@me") {
		return required("unexpected location " + url)
	}

	n, err := page.Count(ctx, a.cfg.GuildLandmark)
	if err != nil {
		return required("landmark count: " + err.Error())
	}
	if n == 0 {
		return required("landmark absent")
	}
	return Result{Status: StatusAuthenticated}
}

// Login returns st unchanged when already logged in. Otherwise it acquires a
// browser and tries the persisted cookies first; only when they do not
// authenticate does it submit credentials. A session.InitError is returned
// as-is; every other failure is an *Error naming the stage.
//
// Credentials are submitted once. On failure the caller resets the session.
func (a *Authenticator) Login(ctx context.Context, st session.State) (session.State, Result, error) {
	if st.LoggedIn() {
		return st, Result{Status: StatusAuthenticated}, nil
	}

	st, err := a.sessions.Acquire(ctx, st)
	if err != nil {
		return st, Result{Status: StatusFailed, Reason: err.Error()}, err
	}
	page := st.Page()

	if a.Check(ctx, page) {
		a.logger.Info("auth: session restored from cookies")
		return st.WithLoggedIn(true), Result{Status: StatusAuthenticated}, nil
	}

	fail := func(stage Stage, err error) (session.State, Result, error) {
		e := &Error{Stage: stage, Err: err}
		a.logger.Warn("auth: login failed", "stage", string(stage), "error", err)
		return st, Result{Status: StatusFailed, Reason: e.Error(), Fresh: true}, e
	}

	a.logger.Info("auth: submitting credentials", "email", st.Credentials().Email)
	if err := a.submit(ctx, page, st.Credentials()); err != nil {
		return fail(StageSubmit, err)
	}

	err = browser.Poll(ctx, a.cfg.PollInterval, a.cfg.RedirectTimeout, func(ctx context.Context) (bool, error) {
		url, err := page.URL(ctx)
		if err != nil {
			return false, err
		}
		return !strings.Contains(url, "/login"), nil
	})
	if err != nil {
		return fail(StageRedirect, err)
	}
	if err := browser.Sleep(ctx, a.cfg.RedirectSettle); err != nil {
		return fail(StageRedirect, err)
	}

	if a.needsVerification(ctx, page) {
		a.logger.Info("auth: awaiting email verification", "timeout", a.cfg.VerificationTimeout)
		err := browser.Poll(ctx, a.cfg.PollInterval, a.cfg.VerificationTimeout, func(ctx context.Context) (bool, error) {
			url, err := page.URL(ctx)
			if err != nil {
				return false, err
			}
			return strings.Contains(url, "/channels/"), nil
		})
		if err != nil {
			return fail(StageVerification, err)
		}
	}

	if res := a.Probe(ctx, page); res.Status != StatusAuthenticated {
		return fail(StageConfirm, fmt.Errorf("%w: %s", ErrNotAuthenticated, res.Reason))
	}
	st = st.WithLoggedIn(true)

	if err := browser.Sleep(ctx, a.cfg.ConfirmSettle); err != nil {
		return fail(StageConfirm, err)
	}
	if err := page.Navigate(ctx, a.cfg.LandingURL()); err != nil {
		return fail(StageConfirm, err)
	}
	if err := browser.Sleep(ctx, a.cfg.ConfirmSettle); err != nil {
		return fail(StageConfirm, err)
	}

	// Cookie reuse returned earlier: this login was fresh.
	if err := a.sessions.Persist(ctx, st); err != nil {
		a.logger.Warn("auth: persist session failed", "error", err)
	}
	a.logger.Info("auth: logged in")
	return st, Result{Status: StatusAuthenticated, Fresh: true}, nil
}

func (a *Authenticator) submit(ctx context.Context, page browser.Page, creds session.Credentials) error {
	if err := page.Navigate(ctx, a.cfg.LoginURL()); err != nil {
		return err
	}
	if err := browser.Sleep(ctx, a.cfg.FormDelay); err != nil {
		return err
	}
	if err := page.Fill(ctx, a.cfg.EmailInput, creds.Email); err != nil {
		return err
	}
	if err := page.Fill(ctx, a.cfg.PasswordInput, creds.Password); err != nil {
		return err
	}
	return page.Click(ctx, a.cfg.SubmitButton)
}

func (a *Authenticator) needsVerification(ctx context.Context, page browser.Page) bool {
	if url, err := page.URL(ctx); err == nil && strings.Contains(url, "/verify") {
		return true
	}
	found, err := page.ContainsText(ctx, a.cfg.VerificationText)
	return err == nil && found
}
