// Package browsertest provides an in-memory browser.Driver whose pages serve
// fixture HTML per URL. Selectors are evaluated with goquery, so extraction
// code runs against the same markup it would see in Chrome.
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/discordweb/browser"
)

// Route is the document served for a URL.
type Route struct {
	HTML  string
	Title string
	// Redirect makes a navigation to this URL land on another one.
	Redirect string
}

// Page is a fake browser.Page.
type Page struct {
	mu     sync.Mutex
	routes map[string]Route
	url    string
	title  string
	html   string
	closed bool

	filled   map[string]string
	actions  []string
	navs     []string
	pressed  []browser.Key
	scrolls  int
	onClosed func()

	// ScrollSteps is how many ScrollBy calls it takes to reach the end.
	ScrollSteps int
	// OnClick runs after a successful Click/ClickNth (n = -1 for Click).
	OnClick func(p *Page, selector string, n int)
	// OnPress runs after each key press.
	OnPress func(p *Page, key browser.Key)
	// OnNavigate runs after each navigation, once the route is loaded.
	OnNavigate func(p *Page, url string)
}

var _ browser.Page = (*Page)(nil)

// NewPage returns a page serving routes, positioned on about:blank.
func NewPage(routes map[string]Route) *Page {
	if routes == nil {
		routes = make(map[string]Route)
	}
	return &Page{
		routes: routes,
		url:    "about:blank",
		html:   "<html><body></body></html>",
		filled: make(map[string]string),
	}
}

// SetRoute adds or replaces a route.
func (p *Page) SetRoute(url string, r Route) {
	p.mu.Lock()
	p.routes[url] = r
	p.mu.Unlock()
}

// Load replaces the current document without a navigation (simulates the
// client-side router or a lazy render).
func (p *Page) Load(url string, r Route) {
	p.mu.Lock()
	p.url, p.title, p.html = url, r.Title, r.HTML
	p.mu.Unlock()
}

// SetURL changes the location without touching the document.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
}

// Filled returns the last text filled into selector.
func (p *Page) Filled(selector string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.filled[selector]
	return v, ok
}

// FilledCount returns how many distinct selectors were filled.
func (p *Page) FilledCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.filled)
}

// Actions returns the log of mutating actions ("fill <sel>", "click <sel>", ...).
func (p *Page) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// Navigations returns every URL passed to Navigate.
func (p *Page) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navs...)
}

// Pressed returns the keys pressed so far.
func (p *Page) Pressed() []browser.Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Key(nil), p.pressed...)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return browser.ErrClosed
	}
	p.navs = append(p.navs, url)
	target := url
	r, ok := p.routes[target]
	for hops := 0; ok && r.Redirect != "" && hops < 5; hops++ {
		target = r.Redirect
		r, ok = p.routes[target]
	}
	p.url = target
	if ok {
		p.title, p.html = r.Title, r.HTML
	} else {
		p.title, p.html = "", "<html><body></body></html>"
	}
	hook := p.OnNavigate
	p.mu.Unlock()

	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", browser.ErrClosed
	}
	return p.url, nil
}

func (p *Page) Title(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", browser.ErrClosed
	}
	return p.title, nil
}

func (p *Page) doc() (*goquery.Document, error) {
	p.mu.Lock()
	html, closed := p.html, p.closed
	p.mu.Unlock()
	if closed {
		return nil, browser.ErrClosed
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	n, err := p.Count(ctx, selector)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("browsertest: wait %q: %w", selector, browser.ErrTimeout)
	}
	return nil
}

func (p *Page) Count(_ context.Context, selector string) (int, error) {
	d, err := p.doc()
	if err != nil {
		return 0, err
	}
	return d.Find(selector).Length(), nil
}

func (p *Page) HTML(_ context.Context, selector string) (string, error) {
	if selector == "" {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			return "", browser.ErrClosed
		}
		return p.html, nil
	}
	d, err := p.doc()
	if err != nil {
		return "", err
	}
	sel := d.Find(selector).First()
	if sel.Length() == 0 {
		return "", fmt.Errorf("browsertest: html %q: %w", selector, browser.ErrNotFound)
	}
	return goquery.OuterHtml(sel)
}

func (p *Page) ContainsText(_ context.Context, text string) (bool, error) {
	d, err := p.doc()
	if err != nil {
		return false, err
	}
	return strings.Contains(d.Text(), text), nil
}

func (p *Page) ScrollBy(context.Context, string, int) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	return p.scrolls >= p.ScrollSteps, nil
}

// Scrolls returns the number of ScrollBy calls.
func (p *Page) Scrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolls
}

func (p *Page) ScrollToBottom(_ context.Context, selector string) error {
	p.record("scroll-bottom " + selector)
	return nil
}

func (p *Page) Fill(ctx context.Context, selector, text string) error {
	if err := p.require(ctx, selector, 0); err != nil {
		return err
	}
	p.mu.Lock()
	p.filled[selector] = text
	p.actions = append(p.actions, "fill "+selector)
	p.mu.Unlock()
	return nil
}

func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.require(ctx, selector, 0); err != nil {
		return err
	}
	p.record("click " + selector)
	if p.OnClick != nil {
		p.OnClick(p, selector, -1)
	}
	return nil
}

func (p *Page) ClickNth(ctx context.Context, selector string, n int) error {
	if err := p.require(ctx, selector, n); err != nil {
		return err
	}
	p.record(fmt.Sprintf("click %s[%d]", selector, n))
	if p.OnClick != nil {
		p.OnClick(p, selector, n)
	}
	return nil
}

func (p *Page) Press(_ context.Context, key browser.Key) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return browser.ErrClosed
	}
	p.pressed = append(p.pressed, key)
	p.actions = append(p.actions, "press "+string(key))
	p.mu.Unlock()
	if p.OnPress != nil {
		p.OnPress(p, key)
	}
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	p.closed = true
	hook := p.onClosed
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (p *Page) require(ctx context.Context, selector string, n int) error {
	count, err := p.Count(ctx, selector)
	if err != nil {
		return err
	}
	if n >= count {
		return fmt.Errorf("browsertest: %q[%d]: %w", selector, n, browser.ErrNotFound)
	}
	return nil
}

func (p *Page) record(action string) {
	p.mu.Lock()
	p.actions = append(p.actions, action)
	p.mu.Unlock()
}
