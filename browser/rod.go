// CLAUDE:SUMMARY Rod-backed Driver: launches or connects Chrome, applies stealth and resource blocking, seeds persisted storage.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodConfig configures RodDriver.
type RodConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Bin overrides the Chrome binary. Empty = launcher's lookup/download.
	Bin string

	// Stealth creates pages through go-rod/stealth. Default true via NewRodDriver.
	Stealth bool

	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	// XvfbDisplay is used for headful launches on hosts without $DISPLAY.
	// Default: ":99".
	XvfbDisplay string

	// NavigationTimeout bounds a single Navigate call. Default: 30s.
	NavigationTimeout time.Duration

	Logger *slog.Logger
}

func (c *RodConfig) defaults() {
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// RodDriver launches Chrome through go-rod.
type RodDriver struct {
	cfg RodConfig
}

// NewRodDriver creates a RodDriver.
func NewRodDriver(cfg RodConfig) *RodDriver {
	cfg.defaults()
	return &RodDriver{cfg: cfg}
}

// Launch starts (or connects to) Chrome, seeds it with opts.Storage and opens
// one page. On failure every handle acquired so far is released.
func (d *RodDriver) Launch(ctx context.Context, opts LaunchOptions) (*Instance, error) {
	log := d.cfg.Logger
	proc := &rodProcess{logger: log}

	var wsURL string
	if d.cfg.RemoteURL != "" {
		wsURL = d.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(opts.Headless)
		if d.cfg.Bin != "" {
			l = l.Bin(d.cfg.Bin)
		}
		if !opts.Headless && os.Getenv("DISPLAY") == "" {
			if err := proc.startXvfb(d.cfg.XvfbDisplay); err != nil {
				return nil, fmt.Errorf("browser: xvfb: %w", err)
			}
			l = l.Env(append(os.Environ(), "DISPLAY="+d.cfg.XvfbDisplay)...)
		}

		// Anti-detection flag.
		l = l.Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			proc.Close()
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		proc.lnch = l
		log.Info("browser: launched local chrome", "headless", opts.Headless)
	}

	// The websocket is owned here so Close can drop the connection: disposing
	// an incognito context leaves the remote Chrome and our socket open.
	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, wsURL, nil); err != nil {
		proc.Close()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	root := rod.New().Client(cdp.New().Start(ws))
	if err := root.Connect(); err != nil {
		ws.Close()
		proc.Close()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	// A remote Chrome is shared: work in a disposable context so Close only
	// drops our cookies and tabs.
	b := root
	if d.cfg.RemoteURL != "" {
		inc, err := root.Incognito()
		if err != nil {
			ws.Close()
			proc.Close()
			return nil, fmt.Errorf("browser: incognito: %w", err)
		}
		b = inc
	}

	if err := seedCookies(b, opts.Storage); err != nil {
		log.Warn("browser: seed cookies failed", "error", err)
	}

	var page *rod.Page
	var err error
	if d.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		(&rodBrowser{b: b, conn: ws}).Close()
		proc.Close()
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	if err := seedLocalStorage(page, opts.Storage); err != nil {
		log.Warn("browser: seed local storage failed", "error", err)
	}

	rp := &rodPage{page: page, navTimeout: d.cfg.NavigationTimeout, logger: log}
	if len(d.cfg.ResourceBlocking) > 0 {
		router, err := applyResourceBlocking(page, d.cfg.ResourceBlocking)
		if err != nil {
			log.Warn("browser: resource blocking failed", "error", err)
		} else {
			rp.router = router
		}
	}

	return &Instance{
		Process: proc,
		Browser: &rodBrowser{b: b, page: page, conn: ws},
		Page:    rp,
	}, nil
}

// rodProcess owns the local Chrome process and the optional Xvfb display.
type rodProcess struct {
	lnch   *launcher.Launcher
	xvfb   *exec.Cmd
	logger *slog.Logger
}

func (p *rodProcess) Close() error {
	if p.lnch != nil {
		p.lnch.Kill()
		p.lnch.Cleanup()
		p.lnch = nil
	}
	p.stopXvfb()
	return nil
}

// rodBrowser is the browser connection plus the page used for storage capture.
type rodBrowser struct {
	b    *rod.Browser
	page *rod.Page
	conn io.Closer
}

// Close disposes the browser (or its incognito context), then closes the
// DevTools connection.
func (b *rodBrowser) Close() error {
	err := b.b.Close()
	if b.conn != nil {
		if cerr := b.conn.Close(); err == nil {
			err = cerr
		}
		b.conn = nil
	}
	return err
}

// captureStorageJS reads local storage of the current origin. The web client
// deletes window.localStorage after boot, so fall back to a fresh iframe's.
const captureStorageJS = `() => {
	let ls = null;
	try { ls = window.localStorage; } catch (e) {}
	let frame = null;
	if (!ls && document.body) {
		try {
			frame = document.createElement('iframe');
			frame.style.display = 'none';
			document.body.appendChild(frame);
			ls = frame.contentWindow.localStorage;
		} catch (e) {}
	}
	const items = [];
	if (ls) {
		for (let i = 0; i < ls.length; i++) {
			const k = ls.key(i);
			items.push({name: k, value: ls.getItem(k)});
		}
	}
	if (frame) frame.remove();
	return JSON.stringify({origin: location.origin, localStorage: items});
}`

func (b *rodBrowser) Storage(ctx context.Context) (*Storage, error) {
	cookies, err := b.b.Context(ctx).GetCookies()
	if err != nil {
		return nil, fmt.Errorf("browser: get cookies: %w", err)
	}

	s := &Storage{}
	for _, c := range cookies {
		s.Cookies = append(s.Cookies, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}

	res, err := b.page.Context(ctx).Eval(captureStorageJS)
	if err != nil {
		return nil, fmt.Errorf("browser: capture local storage: %w", err)
	}
	var origin Origin
	if err := json.Unmarshal([]byte(res.Value.Str()), &origin); err != nil {
		return nil, fmt.Errorf("browser: decode local storage: %w", err)
	}
	if origin.Origin != "" && origin.Origin != "null" {
		s.Origins = append(s.Origins, origin)
	}
	return s, nil
}

func seedCookies(b *rod.Browser, s *Storage) error {
	params := cookieParams(s)
	if len(params) == 0 {
		return nil
	}
	return b.SetCookies(params)
}

// cookieParams maps saved cookies to CDP parameters. Session cookies are
// saved with Expires -1 and must be sent without an expiry, otherwise CDP
// creates them already expired.
func cookieParams(s *Storage) []*proto.NetworkCookieParam {
	if s == nil {
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, p)
	}
	return params
}

// seedLocalStorage installs a script that restores local storage before any
// page script of a matching origin runs.
func seedLocalStorage(page *rod.Page, s *Storage) error {
	if s == nil || len(s.Origins) == 0 {
		return nil
	}
	byOrigin := make(map[string][]Entry, len(s.Origins))
	for _, o := range s.Origins {
		byOrigin[o.Origin] = append(byOrigin[o.Origin], o.LocalStorage...)
	}
	data, err := json.Marshal(byOrigin)
	if err != nil {
		return err
	}
	script := fmt.Sprintf(`(() => {
	const items = (%s)[location.origin];
	if (!items) return;
	try {
		for (const it of items) window.localStorage.setItem(it.name, it.value);
	} catch (e) {}
})();`, data)
	_, err = page.EvalOnNewDocument(script)
	return err
}
