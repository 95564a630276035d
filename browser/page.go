package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// rodPage implements Page over a *rod.Page.
type rodPage struct {
	page       *rod.Page
	router     *rod.HijackRouter
	navTimeout time.Duration
	logger     *slog.Logger
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()

	pg := p.page.Context(navCtx)
	wait := pg.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := pg.Navigate(url); err != nil {
		if navCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("browser: navigate %s: %w", url, ErrTimeout)
		}
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	wait()
	return nil
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.Title, nil
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := p.page.Context(waitCtx).Element(selector)
	if err == nil {
		err = el.Context(waitCtx).WaitVisible()
	}
	if err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("browser: wait %q: %w", selector, ErrTimeout)
		}
		return fmt.Errorf("browser: wait %q: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Count(ctx context.Context, selector string) (int, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	return len(els), nil
}

func (p *rodPage) HTML(ctx context.Context, selector string) (string, error) {
	pg := p.page.Context(ctx)
	if selector == "" {
		html, err := pg.HTML()
		if err != nil {
			return "", fmt.Errorf("browser: document html: %w", err)
		}
		return html, nil
	}
	el, err := p.first(pg, selector)
	if err != nil {
		return "", err
	}
	html, err := el.HTML()
	if err != nil {
		return "", fmt.Errorf("browser: html %q: %w", selector, err)
	}
	return html, nil
}

func (p *rodPage) ContainsText(ctx context.Context, text string) (bool, error) {
	res, err := p.page.Context(ctx).Eval(`(t) => !!document.body && document.body.innerText.includes(t)`, text)
	if err != nil {
		return false, fmt.Errorf("browser: text search: %w", err)
	}
	return res.Value.Bool(), nil
}

// scrollByJS scrolls the nearest scrollable ancestor-or-self of the match.
const scrollByJS = `(sel, dy) => {
	let el = document.querySelector(sel);
	if (!el) return true;
	while (el && el !== document.body && el.scrollHeight <= el.clientHeight) el = el.parentElement;
	if (!el || el === document.body) {
		window.scrollBy(0, dy);
		return window.innerHeight + window.scrollY >= document.body.scrollHeight - 10;
	}
	el.scrollBy(0, dy);
	return el.scrollTop + el.clientHeight >= el.scrollHeight - 10;
}`

func (p *rodPage) ScrollBy(ctx context.Context, selector string, dy int) (bool, error) {
	res, err := p.page.Context(ctx).Eval(scrollByJS, selector, dy)
	if err != nil {
		return false, fmt.Errorf("browser: scroll %q: %w", selector, err)
	}
	return res.Value.Bool(), nil
}

const scrollBottomJS = `(sel) => {
	let el = document.querySelector(sel);
	while (el && el !== document.body && el.scrollHeight <= el.clientHeight) el = el.parentElement;
	if (el && el !== document.body) el.scrollTo(0, el.scrollHeight);
	window.scrollTo(0, document.body ? document.body.scrollHeight : 0);
}`

func (p *rodPage) ScrollToBottom(ctx context.Context, selector string) error {
	if _, err := p.page.Context(ctx).Eval(scrollBottomJS, selector); err != nil {
		return fmt.Errorf("browser: scroll to bottom %q: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Fill(ctx context.Context, selector, text string) error {
	el, err := p.first(p.page.Context(ctx), selector)
	if err != nil {
		return err
	}
	el = el.Context(ctx)
	// Select existing content so Input replaces it; editable divs may refuse.
	if err := el.SelectAllText(); err != nil {
		p.logger.Debug("browser: select text failed", "selector", selector, "error", err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("browser: fill %q: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.first(p.page.Context(ctx), selector)
	if err != nil {
		return err
	}
	if err := el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %q: %w", selector, err)
	}
	return nil
}

func (p *rodPage) ClickNth(ctx context.Context, selector string, n int) error {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return fmt.Errorf("browser: query %q: %w", selector, err)
	}
	if n < 0 || n >= len(els) {
		return fmt.Errorf("browser: click %q[%d]: %w", selector, n, ErrNotFound)
	}
	if err := els[n].Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %q[%d]: %w", selector, n, err)
	}
	return nil
}

var rodKeys = map[Key]input.Key{
	KeyEnter:  input.Enter,
	KeyPageUp: input.PageUp,
}

func (p *rodPage) Press(ctx context.Context, key Key) error {
	k, ok := rodKeys[key]
	if !ok {
		return fmt.Errorf("browser: unsupported key %q", key)
	}
	// Page.Keyboard stays bound to the original page context, so the events
	// are dispatched on the context page directly.
	if err := pressKey(p.page.Context(ctx), k); err != nil {
		return fmt.Errorf("browser: press %s: %w", key, err)
	}
	return nil
}

// pressKey sends a key down then key up through c.
func pressKey(c proto.Client, k input.Key) error {
	for _, t := range []proto.InputDispatchKeyEventType{
		proto.InputDispatchKeyEventTypeKeyDown,
		proto.InputDispatchKeyEventTypeKeyUp,
	} {
		if err := k.Encode(t, 0).Call(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *rodPage) Close() error {
	if p.router != nil {
		if err := p.router.Stop(); err != nil {
			p.logger.Debug("browser: stop hijack router", "error", err)
		}
		p.router = nil
	}
	return p.page.Close()
}

// first returns the first match without waiting for it to appear.
func (p *rodPage) first(pg *rod.Page, selector string) (*rod.Element, error) {
	has, el, err := pg.Has(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("browser: query %q: %w", selector, ErrTimeout)
		}
		return nil, fmt.Errorf("browser: query %q: %w", selector, err)
	}
	if !has {
		return nil, fmt.Errorf("browser: query %q: %w", selector, ErrNotFound)
	}
	return el, nil
}
