package replay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"webreplay/pkg/browser"
)

// fakePage is a scriptable browser.Page. Selector match counts come from the
// counts map; URL changes are driven by navigations and click effects.
type fakePage struct {
	mu sync.Mutex

	url     string
	counts  map[string]int // selector -> current match count
	hidden  map[string]bool
	history []string
	hIndex  int

	// clickNavigates maps a selector to the URL the page moves to when it is
	// clicked.
	clickNavigates map[string]string
	failClicks     map[string]error

	clicks    []string
	typed     map[string]string
	cleared   []string
	selected  map[string]string
	hovered   []string
	uploads   map[string][]string
	evaluated []string
	pressed   []string
	shots     int

	navigateErr error
	closed      bool
}

func newFakePage(startURL string) *fakePage {
	return &fakePage{
		url:            startURL,
		counts:         make(map[string]int),
		hidden:         make(map[string]bool),
		history:        []string{startURL},
		clickNavigates: make(map[string]string),
		failClicks:     make(map[string]error),
		typed:          make(map[string]string),
		selected:       make(map[string]string),
		uploads:        make(map[string][]string),
	}
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.navigateErr != nil {
		return p.navigateErr
	}
	p.history = p.history[:p.hIndex+1]
	p.history = append(p.history, url)
	p.hIndex++
	p.url = url
	return nil
}

func (p *fakePage) GoHistory(ctx context.Context, delta int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.hIndex + delta
	if idx < 0 || idx >= len(p.history) {
		return fmt.Errorf("history index out of range")
	}
	p.hIndex = idx
	p.url = p.history[idx]
	return nil
}

func (p *fakePage) CurrentURL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Count(ctx context.Context, q browser.Query) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[q.Selector], nil
}

func (p *fakePage) WaitVisible(ctx context.Context, q browser.Query, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts[q.Selector] == 0 || p.hidden[q.Selector] {
		return fmt.Errorf("element %s not visible", q.Selector)
	}
	return nil
}

func (p *fakePage) WaitHidden(ctx context.Context, q browser.Query, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts[q.Selector] > 0 && !p.hidden[q.Selector] {
		return fmt.Errorf("element %s still visible", q.Selector)
	}
	return nil
}

func (p *fakePage) Click(ctx context.Context, q browser.Query, opts browser.ClickOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, q.Selector)
	if err := p.failClicks[q.Selector]; err != nil {
		return err
	}
	if dest, ok := p.clickNavigates[q.Selector]; ok {
		p.history = p.history[:p.hIndex+1]
		p.history = append(p.history, dest)
		p.hIndex++
		p.url = dest
	}
	return nil
}

func (p *fakePage) Clear(ctx context.Context, q browser.Query) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, q.Selector)
	p.typed[q.Selector] = ""
	return nil
}

func (p *fakePage) Type(ctx context.Context, q browser.Query, text string, perKey time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed[q.Selector] += text
	return nil
}

func (p *fakePage) SelectOption(ctx context.Context, q browser.Query, by browser.SelectBy, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.selected[q.Selector] = string(by) + "=" + value
	return nil
}

func (p *fakePage) Hover(ctx context.Context, q browser.Query) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hovered = append(p.hovered, q.Selector)
	return nil
}

func (p *fakePage) SetUploadFiles(ctx context.Context, q browser.Query, files []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uploads[q.Selector] = files
	return nil
}

func (p *fakePage) Press(ctx context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pressed = append(p.pressed, key)
	return nil
}

func (p *fakePage) Evaluate(ctx context.Context, expr string, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evaluated = append(p.evaluated, expr)
	switch v := out.(type) {
	case *bool:
		*v = true
	case *int:
		*v = 0
	case *float64:
		*v = 0
	case *string:
		if strings.Contains(expr, "tagName") {
			*v = "div"
		}
	}
	return nil
}

func (p *fakePage) WaitReady(ctx context.Context, timeout time.Duration) error { return nil }

func (p *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shots++
	return []byte("png"), nil
}

func (p *fakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// setCount marks a selector as present with n matches.
func (p *fakePage) setCount(selector string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[selector] = n
}

type fakeContext struct {
	page  *fakePage
	video string
}

func (c *fakeContext) NewPage(ctx context.Context) (browser.Page, error) { return c.page, nil }
func (c *fakeContext) VideoPath() string                                 { return c.video }
func (c *fakeContext) Close(ctx context.Context) error                   { return nil }

type fakeSession struct {
	bctx *fakeContext
}

func (s *fakeSession) NewContext(ctx context.Context, opts browser.ContextOptions) (browser.BrowserContext, error) {
	return s.bctx, nil
}
func (s *fakeSession) Close(ctx context.Context) error { return nil }

type fakeLauncher struct {
	page      *fakePage
	launchErr error
}

func (l *fakeLauncher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Session, error) {
	if l.launchErr != nil {
		return nil, l.launchErr
	}
	return &fakeSession{bctx: &fakeContext{page: l.page}}, nil
}
