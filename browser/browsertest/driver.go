package browsertest

import (
	"context"
	"errors"
	"sync"

	"github.com/hazyhaar/discordweb/browser"
)

// Driver is a fake browser.Driver. Each Launch asks Site for a fresh page.
type Driver struct {
	mu sync.Mutex

	// Site builds the page of a new instance. Nil = an empty page.
	Site func(opts browser.LaunchOptions) *Page
	// LaunchErr makes Launch fail.
	LaunchErr error
	// Captured is what Browser.Storage returns. Nil = empty storage.
	Captured *browser.Storage
	// StorageErr makes Browser.Storage fail.
	StorageErr error
	// CloseErr makes the named handle's Close fail ("page", "browser", "process").
	CloseErr map[string]error

	launches []browser.LaunchOptions
	pages    []*Page
	closed   []string
}

var _ browser.Driver = (*Driver)(nil)

func (d *Driver) Launch(ctx context.Context, opts browser.LaunchOptions) (*browser.Instance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.launches = append(d.launches, opts)
	launchErr := d.LaunchErr
	d.mu.Unlock()
	if launchErr != nil {
		return nil, launchErr
	}

	var p *Page
	if d.Site != nil {
		p = d.Site(opts)
	}
	if p == nil {
		p = NewPage(nil)
	}
	p.mu.Lock()
	p.onClosed = func() { d.noteClosed("page") }
	p.mu.Unlock()

	d.mu.Lock()
	d.pages = append(d.pages, p)
	d.mu.Unlock()

	return &browser.Instance{
		Process: &closer{d: d, name: "process"},
		Browser: &fakeBrowser{closer: closer{d: d, name: "browser"}},
		Page:    &pageHandle{Page: p, d: d},
	}, nil
}

// Launches returns the options of every Launch call.
func (d *Driver) Launches() []browser.LaunchOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.LaunchOptions(nil), d.launches...)
}

// Pages returns the pages handed out so far.
func (d *Driver) Pages() []*Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Page(nil), d.pages...)
}

// LastPage returns the most recent page, or nil.
func (d *Driver) LastPage() *Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pages) == 0 {
		return nil
	}
	return d.pages[len(d.pages)-1]
}

// Closed returns the handles closed so far, in order.
func (d *Driver) Closed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.closed...)
}

func (d *Driver) noteClosed(name string) {
	d.mu.Lock()
	d.closed = append(d.closed, name)
	d.mu.Unlock()
}

func (d *Driver) closeErr(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.CloseErr[name]
}

type closer struct {
	d    *Driver
	name string
}

func (c *closer) Close() error {
	c.d.noteClosed(c.name)
	return c.d.closeErr(c.name)
}

type fakeBrowser struct {
	closer
}

func (b *fakeBrowser) Storage(ctx context.Context) (*browser.Storage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.d.mu.Lock()
	defer b.d.mu.Unlock()
	if b.d.StorageErr != nil {
		return nil, b.d.StorageErr
	}
	if b.d.Captured == nil {
		return &browser.Storage{}, nil
	}
	cp := *b.d.Captured
	cp.Cookies = append([]browser.Cookie(nil), b.d.Captured.Cookies...)
	cp.Origins = append([]browser.Origin(nil), b.d.Captured.Origins...)
	return &cp, nil
}

// pageHandle injects configured close failures while still closing the page.
type pageHandle struct {
	*Page
	d *Driver
}

func (h *pageHandle) Close() error {
	err := h.Page.Close()
	if cerr := h.d.closeErr("page"); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}
