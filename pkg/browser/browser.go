// Package browser defines the narrow browser-control capability the replay
// engine consumes, plus a chromedp-backed implementation of it. The engine
// owns no rendering logic; everything it needs from a browser goes through
// these interfaces so tests can substitute fakes.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// QueryBy selects the query language for element lookups.
type QueryBy string

const (
	ByCSS   QueryBy = "css"
	ByXPath QueryBy = "xpath"
)

// Query addresses elements on a page.
type Query struct {
	Selector string
	By       QueryBy
}

// CSS builds a CSS query.
func CSS(selector string) Query { return Query{Selector: selector, By: ByCSS} }

// XPath builds an XPath query.
func XPath(expr string) Query { return Query{Selector: expr, By: ByXPath} }

// FindExpr returns a JS expression evaluating to the first element matching
// the query, or null. Useful for callers composing their own page scripts.
func FindExpr(q Query) string {
	if q.By == ByXPath {
		return fmt.Sprintf(
			"document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue",
			jsString(q.Selector))
	}
	return fmt.Sprintf("document.querySelector(%s)", jsString(q.Selector))
}

// jsString encodes a Go string as a JS string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// LaunchOptions configure a browser process launch.
type LaunchOptions struct {
	Kind     string // chrome, chromium; informational for screenshot naming
	Headless bool
	ExecPath string // explicit binary path; discovered when empty
}

// ContextOptions configure an isolated browsing context.
type ContextOptions struct {
	Width             int
	Height            int
	DeviceScaleFactor float64
	UserAgent         string
	Mobile            bool
	RecordVideo       bool
}

// SelectBy chooses how a select option is matched.
type SelectBy string

const (
	SelectByValue SelectBy = "value"
	SelectByLabel SelectBy = "label"
	SelectByIndex SelectBy = "index"
)

// ClickOptions configure a click dispatch.
type ClickOptions struct {
	Button     string // left, right, middle; empty means left
	ClickCount int    // 0 means 1
	OffsetX    float64
	OffsetY    float64
	HasOffset  bool // click at the recorded offset from the element's top-left
}

// Launcher starts browser sessions.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Session, error)
}

// Session is a running browser process.
type Session interface {
	NewContext(ctx context.Context, opts ContextOptions) (BrowserContext, error)
	Close(ctx context.Context) error
}

// BrowserContext is an isolated browsing context (own cookies and storage).
type BrowserContext interface {
	NewPage(ctx context.Context) (Page, error)
	// VideoPath returns the recorded video file for this context, or empty
	// when video capture is unavailable or disabled.
	VideoPath() string
	Close(ctx context.Context) error
}

// Page is one open page. All operations take a context whose deadline bounds
// the underlying browser I/O.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// GoHistory traverses the session history by delta entries (negative is
	// back). The caller verifies the resulting URL.
	GoHistory(ctx context.Context, delta int) error
	CurrentURL(ctx context.Context) (string, error)

	// Count reports how many elements match the query right now, without
	// waiting.
	Count(ctx context.Context, q Query) (int, error)
	WaitVisible(ctx context.Context, q Query, timeout time.Duration) error
	WaitHidden(ctx context.Context, q Query, timeout time.Duration) error

	Click(ctx context.Context, q Query, opts ClickOptions) error
	Clear(ctx context.Context, q Query) error
	// Type sends text key by key; perKey > 0 inserts a delay between
	// keystrokes, otherwise the value is set in one operation.
	Type(ctx context.Context, q Query, text string, perKey time.Duration) error
	SelectOption(ctx context.Context, q Query, by SelectBy, value string) error
	Hover(ctx context.Context, q Query) error
	SetUploadFiles(ctx context.Context, q Query, files []string) error
	Press(ctx context.Context, key string) error

	// Evaluate runs a script in the page and unmarshals the result into out
	// (out may be nil when the result is irrelevant).
	Evaluate(ctx context.Context, expr string, out any) error
	// WaitReady waits, best effort, for the page to reach a loaded and
	// network-quiet state, bounded by timeout.
	WaitReady(ctx context.Context, timeout time.Duration) error

	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}
