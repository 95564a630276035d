// CLAUDE:SUMMARY Browser automation surface: Page/Driver interfaces, launch options, instance handles and sentinel errors.
// Package browser is the automation surface the rest of discordweb drives.
//
// The core never talks to Chrome directly: it sees a Page (navigate, wait for
// landmarks, snapshot HTML, type, click, press keys) and a Driver that
// launches an Instance (process, browser, page). RodDriver is the production
// implementation; browsertest provides a fixture-backed fake for tests.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned (wrapped) when a bounded wait expires. Callers use
// errors.Is to tell a timeout apart from a hard failure.
var ErrTimeout = errors.New("browser: timed out")

// ErrNotFound is returned when a selector matches nothing.
var ErrNotFound = errors.New("browser: element not found")

// ErrClosed is returned by operations on a closed page.
var ErrClosed = errors.New("browser: page closed")

// Key is a named keyboard key.
type Key string

const (
	KeyEnter  Key = "Enter"
	KeyPageUp Key = "PageUp"
)

// Page is a single browser tab.
type Page interface {
	// Navigate loads url and waits for the document to be parsed.
	Navigate(ctx context.Context, url string) error
	// URL returns the current location.
	URL(ctx context.Context) (string, error)
	// Title returns the document title.
	Title(ctx context.Context) (string, error)

	// WaitVisible blocks until selector matches a visible element or the
	// timeout expires (ErrTimeout).
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	// Count returns the number of elements currently matching selector.
	Count(ctx context.Context, selector string) (int, error)
	// HTML returns the outer HTML of the first element matching selector, or
	// of the whole document when selector is empty. ErrNotFound if no match.
	HTML(ctx context.Context, selector string) (string, error)
	// ContainsText reports whether the visible page text contains text.
	ContainsText(ctx context.Context, text string) (bool, error)

	// ScrollBy scrolls the nearest scrollable container of the first element
	// matching selector by dy pixels and reports whether its end was reached.
	ScrollBy(ctx context.Context, selector string, dy int) (atEnd bool, err error)
	// ScrollToBottom scrolls the container of selector, and the window, to the end.
	ScrollToBottom(ctx context.Context, selector string) error

	// Fill replaces the value of the first input or editable element matching selector.
	Fill(ctx context.Context, selector, text string) error
	// Click clicks the first element matching selector.
	Click(ctx context.Context, selector string) error
	// ClickNth clicks the n-th (0-based) element matching selector.
	ClickNth(ctx context.Context, selector string, n int) error
	// Press sends a single key press to the focused element.
	Press(ctx context.Context, key Key) error

	Close() error
}

// Closer is a releasable resource.
type Closer interface {
	Close() error
}

// Browser is the browser connection owning the page.
type Browser interface {
	Closer
	// Storage captures cookies and the local storage of the page's origin.
	Storage(ctx context.Context) (*Storage, error)
}

// Instance groups the three handles of a launched browser. Each can be
// closed independently; release order is Page, Browser, Process.
type Instance struct {
	Process Closer
	Browser Browser
	Page    Page
}

// LaunchOptions configures a single launch.
type LaunchOptions struct {
	Headless bool
	// Storage seeds the new browser with a persisted session. Nil = blank profile.
	Storage *Storage
}

// Driver launches browser instances.
type Driver interface {
	Launch(ctx context.Context, opts LaunchOptions) (*Instance, error)
}
