package auth

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/discordweb/browser"
	"github.com/hazyhaar/discordweb/browser/browsertest"
	"github.com/hazyhaar/discordweb/session"
)

const base = "https://discord.test"

const landingHTML = `<html><head><title>Discord</title></head><body>
<nav><div data-list-id="guildsnav">
  <div role="treeitem" data-list-item-id="guildsnav___home"><span>Direct Messages</span></div>
  <div role="treeitem" data-list-item-id="guildsnav___123456789012345678"><span>General Chat</span></div>
</div></nav></body></html>`

const loginHTML = `<html><body><form>
<input name="email" type="email"><input name="password" type="password">
<button type="submit">Log In</button>
</form></body></html>`

var authed = browsertest.Route{HTML: landingHTML, Title: "Discord"}

func testConfig() Config {
	return Config{
		BaseURL:             base,
		LandmarkTimeout:     50 * time.Millisecond,
		RedirectTimeout:     100 * time.Millisecond,
		VerificationTimeout: time.Second,
		PollInterval:        5 * time.Millisecond,
		FormDelay:           -1,
		RedirectSettle:      -1,
		ConfirmSettle:       -1,
	}
}

// newSite serves the login form, and the landing view only when loggedIn.
func newSite(loggedIn bool) *browsertest.Page {
	p := browsertest.NewPage(nil)
	p.SetRoute(base+"/login", browsertest.Route{HTML: loginHTML, Title: "Discord"})
	if loggedIn {
		p.SetRoute(base+"/channels/@me", authed)
	} else {
		p.SetRoute(base+"/channels/@me", browsertest.Route{Redirect: base + "/login"})
	}
	return p
}

// acceptLogin makes the submit button authenticate the page.
func acceptLogin(p *browsertest.Page) {
	p.OnClick = func(p *browsertest.Page, sel string, _ int) {
		p.SetRoute(base+"/channels/@me", authed)
		p.Load(base+"/channels/@me", authed)
	}
}

func newAuth(t *testing.T, d *browsertest.Driver) (*Authenticator, session.State) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.json")
	a := New(session.NewManager(d, nil), testConfig(), nil)
	st := session.New(session.Credentials{Email: "user@example.com", Password: "pw"}, true, path)
	return a, st
}

func TestCheck_Idempotent(t *testing.T) {
	a := New(nil, testConfig(), nil)
	ctx := context.Background()

	for _, loggedIn := range []bool{true, false} {
		p := newSite(loggedIn)
		first := a.Check(ctx, p)
		second := a.Check(ctx, p)
		if first != second {
			t.Errorf("loggedIn=%v: checks disagree: %v then %v", loggedIn, first, second)
		}
		if first != loggedIn {
			t.Errorf("loggedIn=%v: Check = %v", loggedIn, first)
		}
	}
}

func TestProbe_Classification(t *testing.T) {
	a := New(nil, testConfig(), nil)
	ctx := context.Background()

	tests := []struct {
		name string
		page func() browser.Page
		want Status
	}{
		{"no page", func() browser.Page { return nil }, StatusLoginRequired},
		{"authenticated", func() browser.Page { return newSite(true) }, StatusAuthenticated},
		{"redirected to login", func() browser.Page { return newSite(false) }, StatusLoginRequired},
		{"landmark on register page", func() browser.Page {
			p := newSite(false)
			p.SetRoute(base+"/channels/@me", browsertest.Route{Redirect: base + "/register"})
			p.SetRoute(base+"/register", authed)
			return p
		}, StatusLoginRequired},
		{"outside landing area", func() browser.Page {
			p := newSite(false)
			p.SetRoute(base+"/channels/@me", browsertest.Route{Redirect: base + "/app"})
			p.SetRoute(base+"/app", authed)
			return p
		}, StatusLoginRequired},
		{"landing without sidebar", func() browser.Page {
			p := newSite(false)
			p.SetRoute(base+"/channels/@me", browsertest.Route{HTML: "<p>loading</p>"})
			return p
		}, StatusLoginRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Probe(ctx, tt.page())
			if res.Status != tt.want {
				t.Errorf("status = %v (%s), want %v", res.Status, res.Reason, tt.want)
			}
			if res.Status != StatusAuthenticated && res.Reason == "" {
				t.Error("missing reason")
			}
		})
	}
}

func TestLogin_FreshPersistsArtifact(t *testing.T) {
	var page *browsertest.Page
	d := &browsertest.Driver{
		Captured: &browser.Storage{Cookies: []browser.Cookie{{Name: "token", Value: "t", Domain: "discord.test", Path: "/"}}},
		Site: func(browser.LaunchOptions) *browsertest.Page {
			page = newSite(false)
			acceptLogin(page)
			return page
		},
	}
	a, st := newAuth(t, d)

	st, res, err := a.Login(context.Background(), st)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !st.LoggedIn() || res.Status != StatusAuthenticated || !res.Fresh {
		t.Fatalf("state logged_in=%v result=%+v", st.LoggedIn(), res)
	}
	if v, _ := page.Filled(`input[name="email"]`); v != "user@example.com" {
		t.Errorf("email filled with %q", v)
	}
	if v, _ := page.Filled(`input[name="password"]`); v != "pw" {
		t.Errorf("password filled with %q", v)
	}
	if !session.HasArtifact(st.ArtifactPath()) {
		t.Error("artifact not persisted after fresh login")
	}
	if url, _ := page.URL(context.Background()); url != base+"/channels/@me" {
		t.Errorf("ended on %s, want landing view", url)
	}
}

func TestLogin_CookieReuseSkipsCredentials(t *testing.T) {
	var page *browsertest.Page
	d := &browsertest.Driver{
		Site: func(opts browser.LaunchOptions) *browsertest.Page {
			// Seeded cookies authenticate the landing view.
			page = newSite(opts.Storage != nil)
			return page
		},
	}
	a, st := newAuth(t, d)
	saved := &browser.Storage{Cookies: []browser.Cookie{{Name: "token", Value: "t", Domain: "discord.test", Path: "/"}}}
	if err := saved.Save(st.ArtifactPath()); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	st, res, err := a.Login(context.Background(), st)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !st.LoggedIn() || res.Fresh {
		t.Errorf("logged_in=%v fresh=%v", st.LoggedIn(), res.Fresh)
	}
	if n := page.FilledCount(); n != 0 {
		t.Errorf("credential fields touched %d times", n)
	}
	for _, nav := range page.Navigations() {
		if nav == base+"/login" {
			t.Error("login page visited on cookie reuse")
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cookie login took %s", elapsed)
	}

	// The artifact is not rewritten on reuse.
	got, err := browser.LoadStorage(st.ArtifactPath())
	if err != nil || len(got.Cookies) != 1 {
		t.Errorf("artifact changed: %+v, %v", got, err)
	}
}

func TestLogin_AlreadyLoggedInIsNoop(t *testing.T) {
	d := &browsertest.Driver{Site: func(browser.LaunchOptions) *browsertest.Page { return newSite(true) }}
	a, st := newAuth(t, d)
	ctx := context.Background()

	st, _, err := a.Login(ctx, st)
	if err != nil {
		t.Fatal(err)
	}
	navs := len(d.LastPage().Navigations())

	again, res, err := a.Login(ctx, st)
	if err != nil || res.Status != StatusAuthenticated {
		t.Fatalf("second login: %+v, %v", res, err)
	}
	if again.Instance() != st.Instance() || len(d.Launches()) != 1 {
		t.Error("second login relaunched the browser")
	}
	if len(d.LastPage().Navigations()) != navs {
		t.Error("second login navigated")
	}
}

func TestLogin_Verification(t *testing.T) {
	d := &browsertest.Driver{
		Site: func(browser.LaunchOptions) *browsertest.Page {
			p := newSite(false)
			p.OnClick = func(p *browsertest.Page, _ string, _ int) {
				p.Load(base+"/verify", browsertest.Route{HTML: "<h1>Check your email</h1>"})
				// The user clicks the emailed link a moment later.
				time.AfterFunc(30*time.Millisecond, func() {
					p.SetRoute(base+"/channels/@me", authed)
					p.Load(base+"/channels/@me", authed)
				})
			}
			return p
		},
	}
	a, st := newAuth(t, d)

	st, res, err := a.Login(context.Background(), st)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !st.LoggedIn() || !res.Fresh {
		t.Errorf("logged_in=%v result=%+v", st.LoggedIn(), res)
	}
}

func TestLogin_Failures(t *testing.T) {
	tests := []struct {
		name      string
		onClick   func(p *browsertest.Page, sel string, n int)
		stage     Stage
		isTimeout bool
	}{
		{
			name:      "stays on login page",
			onClick:   func(*browsertest.Page, string, int) {},
			stage:     StageRedirect,
			isTimeout: true,
		},
		{
			name: "verification never completes",
			onClick: func(p *browsertest.Page, _ string, _ int) {
				p.Load(base+"/verify", browsertest.Route{HTML: "<h1>Check your email</h1>"})
			},
			stage:     StageVerification,
			isTimeout: true,
		},
		{
			name: "landing still unauthenticated",
			onClick: func(p *browsertest.Page, _ string, _ int) {
				p.Load(base+"/app", browsertest.Route{HTML: "<p>loading</p>"})
			},
			stage: StageConfirm,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &browsertest.Driver{
				Site: func(browser.LaunchOptions) *browsertest.Page {
					p := newSite(false)
					p.OnClick = tt.onClick
					return p
				},
			}
			a, st := newAuth(t, d)
			a.cfg.VerificationTimeout = 50 * time.Millisecond

			st, res, err := a.Login(context.Background(), st)
			var ae *Error
			if !errors.As(err, &ae) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if ae.Stage != tt.stage {
				t.Errorf("stage = %q, want %q", ae.Stage, tt.stage)
			}
			if got := errors.Is(err, browser.ErrTimeout); got != tt.isTimeout {
				t.Errorf("timeout = %v, want %v (%v)", got, tt.isTimeout, err)
			}
			if tt.stage == StageConfirm && !errors.Is(err, ErrNotAuthenticated) {
				t.Errorf("confirm failure does not wrap ErrNotAuthenticated: %v", err)
			}
			if st.LoggedIn() || res.Status != StatusFailed {
				t.Errorf("logged_in=%v status=%v", st.LoggedIn(), res.Status)
			}
			if session.HasArtifact(st.ArtifactPath()) {
				t.Error("artifact written after failed login")
			}
		})
	}
}

func TestLogin_InitError(t *testing.T) {
	d := &browsertest.Driver{LaunchErr: errors.New("no chrome")}
	a, st := newAuth(t, d)
	_, res, err := a.Login(context.Background(), st)
	var ie *session.InitError
	if !errors.As(err, &ie) {
		t.Fatalf("err = %v, want *session.InitError", err)
	}
	if res.Status != StatusFailed {
		t.Errorf("status = %v", res.Status)
	}
}

func TestStatus_String(t *testing.T) {
	for s, want := range map[Status]string{
		StatusAuthenticated:        "authenticated",
		StatusLoginRequired:        "login_required",
		StatusVerificationRequired: "verification_required",
		StatusFailed:               "failed",
		StatusUnknown:              "unknown",
	} {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
