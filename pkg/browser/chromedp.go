package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromeLauncher launches Chrome/Chromium through the DevTools protocol.
type ChromeLauncher struct {
	logger *zap.Logger
}

// NewChromeLauncher returns a launcher logging through the given logger.
func NewChromeLauncher(logger *zap.Logger) *ChromeLauncher {
	return &ChromeLauncher{logger: logger.Named("browser")}
}

// Launch starts a Chrome process with automation signals suppressed.
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Session, error) {
	execPath := opts.ExecPath
	if execPath == "" {
		execPath = findChromePath()
	}
	if execPath == "" {
		return nil, fmt.Errorf("chrome browser not found; install Google Chrome or Chromium")
	}

	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.ExecPath(execPath),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
	)
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}

	l.logger.Info("launching browser",
		zap.String("path", execPath),
		zap.Bool("headless", opts.Headless))

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	return &chromeSession{allocCtx: allocCtx, cancel: cancel, logger: l.logger}, nil
}

type chromeSession struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
}

func (s *chromeSession) NewContext(ctx context.Context, opts ContextOptions) (BrowserContext, error) {
	tabCtx, cancel := chromedp.NewContext(s.allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}),
	)

	scale := opts.DeviceScaleFactor
	if scale <= 0 {
		scale = 1.0
	}

	setup := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
	}
	if opts.Width > 0 && opts.Height > 0 {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetDeviceMetricsOverride(
				int64(opts.Width), int64(opts.Height), scale, opts.Mobile,
			).Do(ctx)
		}))
	}
	if opts.UserAgent != "" {
		setup = append(setup, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(opts.UserAgent).Do(ctx)
		}))
	}

	if err := chromedp.Run(tabCtx, setup...); err != nil {
		cancel()
		return nil, fmt.Errorf("browsing context setup: %w", err)
	}

	if opts.RecordVideo {
		s.logger.Warn("video recording requested but not supported by this transport")
	}

	s.logger.Debug("browsing context ready",
		zap.Int("width", opts.Width), zap.Int("height", opts.Height),
		zap.Float64("scale", scale))

	return &chromeBrowserContext{ctx: tabCtx, cancel: cancel, logger: s.logger}, nil
}

func (s *chromeSession) Close(context.Context) error {
	s.cancel()
	return nil
}

type chromeBrowserContext struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

func (c *chromeBrowserContext) NewPage(context.Context) (Page, error) {
	return &chromePage{ctx: c.ctx, logger: c.logger}, nil
}

// VideoPath always returns empty: the DevTools transport used here does not
// produce video files.
func (c *chromeBrowserContext) VideoPath() string { return "" }

func (c *chromeBrowserContext) Close(context.Context) error {
	c.cancel()
	return nil
}

type chromePage struct {
	ctx    context.Context
	logger *zap.Logger
}

// run executes chromedp actions against the page, honoring the caller's
// deadline and cancellation on top of the page's own lifetime.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var dcancel context.CancelFunc
		runCtx, dcancel = context.WithDeadline(runCtx, deadline)
		defer dcancel()
	}
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *chromePage) GoHistory(ctx context.Context, delta int) error {
	if err := p.run(ctx, chromedp.Evaluate(fmt.Sprintf("history.go(%d)", delta), nil)); err != nil {
		return err
	}
	// History traversal fires asynchronously; give the document a moment and
	// then wait for the body of whatever page we landed on.
	select {
	case <-time.After(200 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.run(ctx, chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *chromePage) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

// countExpr returns a JS expression evaluating to the match count.
func countExpr(q Query) string {
	if q.By == ByXPath {
		return fmt.Sprintf(
			"document.evaluate(%s, document, null, XPathResult.ORDERED_NODE_SNAPSHOT_TYPE, null).snapshotLength",
			jsString(q.Selector))
	}
	return fmt.Sprintf("document.querySelectorAll(%s).length", jsString(q.Selector))
}

func (p *chromePage) Count(ctx context.Context, q Query) (int, error) {
	var count int
	expr := fmt.Sprintf("(() => { try { return %s; } catch (e) { return 0; } })()", countExpr(q))
	if err := p.run(ctx, chromedp.Evaluate(expr, &count)); err != nil {
		return 0, err
	}
	return count, nil
}

const visibleCheck = `(() => {
	const el = %s;
	if (!el) return false;
	const style = window.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0 &&
		style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
})()`

func (p *chromePage) WaitVisible(ctx context.Context, q Query, timeout time.Duration) error {
	return p.pollUntil(ctx, fmt.Sprintf(visibleCheck, FindExpr(q)), timeout,
		fmt.Sprintf("element %q did not become visible", q.Selector))
}

func (p *chromePage) WaitHidden(ctx context.Context, q Query, timeout time.Duration) error {
	hiddenCheck := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) return true;
		const style = window.getComputedStyle(el);
		const rect = el.getBoundingClientRect();
		return rect.width === 0 || rect.height === 0 ||
			style.display === 'none' || style.visibility === 'hidden';
	})()`, FindExpr(q))
	return p.pollUntil(ctx, hiddenCheck, timeout,
		fmt.Sprintf("element %q did not become hidden", q.Selector))
}

// pollUntil evaluates a boolean expression every 100ms until it returns true
// or the timeout elapses.
func (p *chromePage) pollUntil(ctx context.Context, expr string, timeout time.Duration, what string) error {
	deadline := time.Now().Add(timeout)
	for {
		var ok bool
		if err := p.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s within %v", what, timeout)
		}
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type elementRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// geometry scrolls the element into view and returns its viewport rect.
func (p *chromePage) geometry(ctx context.Context, q Query) (*elementRect, error) {
	expr := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) return null;
		el.scrollIntoView({ block: 'center', inline: 'center' });
		const r = el.getBoundingClientRect();
		return { x: r.x, y: r.y, width: r.width, height: r.height };
	})()`, FindExpr(q))
	var rect *elementRect
	if err := p.run(ctx, chromedp.Evaluate(expr, &rect)); err != nil {
		return nil, err
	}
	if rect == nil {
		return nil, fmt.Errorf("element %q not found or not visible", q.Selector)
	}
	return rect, nil
}

func (p *chromePage) Click(ctx context.Context, q Query, opts ClickOptions) error {
	button := strings.ToLower(opts.Button)
	if button == "" {
		button = "left"
	}
	count := opts.ClickCount
	if count < 1 {
		count = 1
	}

	// Plain left single clicks go through the protocol's node click, which
	// retries against a live node. Everything else needs coordinates.
	if button == "left" && count == 1 && !opts.HasOffset {
		by := chromedp.ByQuery
		if q.By == ByXPath {
			by = chromedp.BySearch
		}
		return p.run(ctx, chromedp.Click(q.Selector, by))
	}

	rect, err := p.geometry(ctx, q)
	if err != nil {
		return err
	}
	x := rect.X + rect.Width/2
	y := rect.Y + rect.Height/2
	if opts.HasOffset {
		x = rect.X + opts.OffsetX
		y = rect.Y + opts.OffsetY
	}

	mouseOpt := func(params *input.DispatchMouseEventParams) *input.DispatchMouseEventParams {
		return params.
			WithButton(input.MouseButton(button)).
			WithClickCount(int64(count))
	}
	return p.run(ctx, chromedp.MouseClickXY(x, y, mouseOpt))
}

func (p *chromePage) Clear(ctx context.Context, q Query) error {
	// Clearing through JS with synthetic events is more reliable than the
	// protocol-level value set on transiently non-interactable fields.
	expr := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) return false;
		el.value = '';
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		return true;
	})()`, FindExpr(q))
	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("element %q not found or not visible", q.Selector)
	}
	return nil
}

func (p *chromePage) Type(ctx context.Context, q Query, text string, perKey time.Duration) error {
	by := chromedp.ByQuery
	if q.By == ByXPath {
		by = chromedp.BySearch
	}
	if perKey <= 0 {
		// Instantaneous fill: set the value in one shot and fire the events
		// reactive frameworks listen for.
		expr := fmt.Sprintf(`(() => {
			const el = %s;
			if (!el) return false;
			el.value = %s;
			el.dispatchEvent(new Event('input', { bubbles: true }));
			el.dispatchEvent(new Event('change', { bubbles: true }));
			return true;
		})()`, FindExpr(q), jsString(text))
		var ok bool
		if err := p.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("element %q not found or not visible", q.Selector)
		}
		return nil
	}

	for _, r := range text {
		if err := p.run(ctx, chromedp.SendKeys(q.Selector, string(r), by)); err != nil {
			return err
		}
		select {
		case <-time.After(perKey):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *chromePage) SelectOption(ctx context.Context, q Query, by SelectBy, value string) error {
	// Protocol-level value sets are unreliable for <select>; drive the element
	// through JS and dispatch a change event manually.
	expr := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el || !/^select$/i.test(el.tagName)) return false;
		const mode = %s;
		const want = %s;
		let matched = false;
		if (mode === 'value') {
			el.value = want;
			matched = el.value === want;
		} else if (mode === 'label') {
			for (let i = 0; i < el.options.length; i++) {
				if (el.options[i].text.trim() === want.trim()) {
					el.selectedIndex = i;
					matched = true;
					break;
				}
			}
		} else {
			const idx = parseInt(want, 10);
			if (!isNaN(idx) && idx >= 0 && idx < el.options.length) {
				el.selectedIndex = idx;
				matched = true;
			}
		}
		if (matched) {
			el.dispatchEvent(new Event('change', { bubbles: true }));
			el.dispatchEvent(new Event('input', { bubbles: true }));
		}
		return matched;
	})()`, FindExpr(q), jsString(string(by)), jsString(value))

	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(expr, &ok)); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no option matched %s=%q on %q", by, value, q.Selector)
	}
	return nil
}

func (p *chromePage) Hover(ctx context.Context, q Query) error {
	rect, err := p.geometry(ctx, q)
	if err != nil {
		return err
	}
	return p.run(ctx, chromedp.MouseEvent(input.MouseMoved, rect.X+rect.Width/2, rect.Y+rect.Height/2))
}

func (p *chromePage) SetUploadFiles(ctx context.Context, q Query, files []string) error {
	by := chromedp.ByQuery
	if q.By == ByXPath {
		by = chromedp.BySearch
	}
	return p.run(ctx, chromedp.SetUploadFiles(q.Selector, files, by))
}

func (p *chromePage) Press(ctx context.Context, key string) error {
	return p.run(ctx, chromedp.KeyEvent(key))
}

func (p *chromePage) Evaluate(ctx context.Context, expr string, out any) error {
	return p.run(ctx, chromedp.Evaluate(expr, out))
}

func (p *chromePage) WaitReady(ctx context.Context, timeout time.Duration) error {
	// Loaded plus quiet: readyState complete and no in-flight fetches that
	// the page exposes through the resource timing buffer growing.
	expr := `(() => document.readyState === 'complete')()`
	return p.pollUntil(ctx, expr, timeout, "page did not finish loading")
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close is a no-op: the page's lifetime is owned by its browsing context.
func (p *chromePage) Close(context.Context) error { return nil }
