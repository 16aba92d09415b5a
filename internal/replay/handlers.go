package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"webreplay/internal/recording"
	"webreplay/pkg/browser"
)

const (
	// authSettleTimeout extends the post-navigation wait on authentication
	// pages, which routinely chain redirects.
	authSettleTimeout = 8 * time.Second
	// hoverIncidentalMs is the recorded duration below which a hover is
	// treated as the pointer passing through, not an intentional hover.
	hoverIncidentalMs = 300
	// submitEchoWindowMs is the recorded gap within which a submit action is
	// considered an echo of the click that triggered it.
	submitEchoWindowMs = 500
)

var (
	authURLPattern = regexp.MustCompile(`(?i)(login|log-in|signin|sign-in|signup|sign-up|auth|oauth|sso|challenge)`)

	// overlayPattern flags strategies pointing at decorative layers a hover
	// cannot meaningfully target.
	overlayPattern = regexp.MustCompile(`(?i)(overlay|backdrop|scrim|mask|spinner|loading|skeleton)`)

	submitControlPattern = regexp.MustCompile(`(?i)(submit|login|log-in|signin|sign-in|search|send|confirm|continue|save|next)`)
)

// resolveTarget resolves an action's element strategy, translating locator
// failures into outcomes. A nil return means the element is live in res.
func (x *run) resolveTarget(ctx context.Context, a *recording.Action) (Resolved, *Outcome) {
	res, err := x.locator.Resolve(ctx, x.page, a.Strategy, x.opts.ElementTimeout)
	if err != nil {
		if a.SkipIfNotFound && errors.Is(err, ErrElementNotFound) {
			o := skipped("target element absent and action marked skippable")
			return Resolved{}, &o
		}
		o := fromError(fmt.Errorf("action %s: %w", a.ID, err))
		return Resolved{}, &o
	}
	return res, nil
}

// sleepCtx pauses for d or until the context is done.
func (x *run) sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// observeNavigation polls the page URL for up to window, returning the URL
// the page settled on and whether it differs from before. Auth-looking
// destinations get extra settle time for their redirect chains.
func (x *run) observeNavigation(ctx context.Context, before string, window time.Duration) (string, bool) {
	deadline := time.Now().Add(window)
	for {
		current, err := x.page.CurrentURL(ctx)
		if err == nil && current != "" && !urlsEquivalent(current, before) {
			settle := 2 * time.Second
			if authURLPattern.MatchString(current) {
				settle = authSettleTimeout
			}
			_ = x.page.WaitReady(ctx, settle)
			if landed, lerr := x.page.CurrentURL(ctx); lerr == nil && landed != "" {
				current = landed
			}
			return current, true
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return before, false
		}
		if err := x.sleepCtx(ctx, 100*time.Millisecond); err != nil {
			return before, false
		}
	}
}

// dismissOverlays clicks away full-viewport overlays (cookie walls, promo
// backdrops) that would swallow the next interaction. Best effort only.
func (x *run) dismissOverlays(ctx context.Context) {
	const script = `(() => {
		const sel = '[class*="overlay"], [class*="backdrop"], [class*="cookie"], [id*="cookie"], [class*="consent"]';
		let dismissed = 0;
		for (const el of document.querySelectorAll(sel)) {
			const r = el.getBoundingClientRect();
			if (r.width < window.innerWidth * 0.5 || r.height < window.innerHeight * 0.3) continue;
			const close = el.querySelector('[aria-label*="close" i], [class*="close"], [class*="dismiss"], [class*="accept"], button');
			if (close) { close.click(); dismissed++; }
		}
		return dismissed;
	})()`
	var dismissed int
	if err := x.page.Evaluate(ctx, script, &dismissed); err == nil && dismissed > 0 {
		x.logger.Debug("dismissed blocking overlays", zap.Int("count", dismissed))
	}
}

// elementTag returns the lowercase tag name of the query's first match.
func (x *run) elementTag(ctx context.Context, q browser.Query) string {
	expr := fmt.Sprintf(`(() => { const el = %s; return el ? el.tagName.toLowerCase() : ''; })()`,
		browser.FindExpr(q))
	var tag string
	if err := x.page.Evaluate(ctx, expr, &tag); err != nil {
		return ""
	}
	return tag
}

func (x *run) handleClick(ctx context.Context, a *recording.Action) Outcome {
	res, blocked := x.resolveTarget(ctx, a)
	if blocked != nil {
		return *blocked
	}
	x.dismissOverlays(ctx)

	params := a.Click
	if params == nil {
		params = &recording.ClickParams{}
	}
	opts := browser.ClickOptions{Button: params.Button, ClickCount: params.ClickCount}
	if params.Offset != nil {
		opts.HasOffset = true
		opts.OffsetX = params.Offset.X
		opts.OffsetY = params.Offset.Y
	}
	// Right-clicks recorded on native form controls are capture artifacts
	// (context menu grabs); replay them as plain left clicks.
	if opts.Button == "right" {
		switch x.elementTag(ctx, res.Query) {
		case "input", "select", "textarea", "button", "option":
			x.logger.Debug("normalizing right-click on native form control",
				zap.String("action", a.ID), zap.String("selector", res.Query.Selector))
			opts.Button = "left"
		}
	}

	before, _ := x.page.CurrentURL(ctx)
	if err := x.page.Click(ctx, res.Query, opts); err != nil {
		out := fromError(fmt.Errorf("click %s: %w", res.Query.Selector, err))
		if out.Status != OutcomeExpected {
			return out
		}
		// The click tore down its own execution context: the navigation it
		// was meant to trigger is underway. Observe it and move on.
		x.logger.Debug("click interrupted by navigation", zap.String("action", a.ID))
	}
	if after, moved := x.observeNavigation(ctx, before, x.opts.NavObserveWindow); moved {
		x.history.Record(after)
		x.state.noteNavigation(time.Now())
		x.logger.Debug("click navigated",
			zap.String("action", a.ID), zap.String("url", after))
	}
	return success(res.Query.Selector)
}

func (x *run) handleInput(ctx context.Context, a *recording.Action) Outcome {
	params := a.Input
	if params == nil {
		return fromError(fmt.Errorf("input action %s carries no parameters: %w", a.ID, ErrRecordingMalformed))
	}
	res, blocked := x.resolveTarget(ctx, a)
	if blocked != nil {
		return *blocked
	}

	switch params.Category {
	case recording.InputCheckbox:
		if err := x.page.Click(ctx, res.Query, browser.ClickOptions{}); err != nil {
			return fromError(fmt.Errorf("toggle %s: %w", res.Query.Selector, err))
		}
		return success(res.Query.Selector)

	case recording.InputFile:
		path, synthesized, err := x.resolveUploadFile(params.Value)
		if err != nil {
			return fromError(fmt.Errorf("upload for action %s: %w", a.ID, err))
		}
		if synthesized {
			x.logger.Warn("recorded upload file not found, substituting placeholder",
				zap.String("wanted", params.Value), zap.String("using", path))
		}
		if err := x.page.SetUploadFiles(ctx, res.Query, []string{path}); err != nil {
			return fromError(fmt.Errorf("set upload files on %s: %w", res.Query.Selector, err))
		}
		return success(res.Query.Selector)

	default:
		if err := x.page.Clear(ctx, res.Query); err != nil {
			return fromError(fmt.Errorf("clear %s: %w", res.Query.Selector, err))
		}
		perKey := time.Duration(params.TypingDelayMs) * time.Millisecond
		if err := x.page.Type(ctx, res.Query, params.Value, perKey); err != nil {
			return fromError(fmt.Errorf("type into %s: %w", res.Query.Selector, err))
		}
		return success(res.Query.Selector)
	}
}

// resolveUploadFile finds the recorded upload by base name in the usual drop
// locations, falling back to a synthesized placeholder so the flow can
// proceed.
func (x *run) resolveUploadFile(recorded string) (path string, synthesized bool, err error) {
	if recorded != "" {
		if _, statErr := os.Stat(recorded); statErr == nil {
			return recorded, false, nil
		}
	}
	base := filepath.Base(recorded)
	if base == "." || base == string(filepath.Separator) || base == "" {
		base = "upload.txt"
	}
	dirs := []string{".", "uploads", "testdata", "files"}
	if home, herr := os.UserHomeDir(); herr == nil {
		dirs = append(dirs, filepath.Join(home, "Downloads"))
	}
	dirs = append(dirs, os.TempDir())
	for _, dir := range dirs {
		candidate := filepath.Join(dir, base)
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, false, nil
		}
	}
	placeholder := filepath.Join(os.TempDir(), base)
	if werr := os.WriteFile(placeholder, []byte("placeholder upload generated during replay\n"), 0o644); werr != nil {
		return "", false, fmt.Errorf("%w: %v", ErrFileUploadMissing, werr)
	}
	return placeholder, true, nil
}

func (x *run) handleSelect(ctx context.Context, a *recording.Action) Outcome {
	params := a.Select
	if params == nil || (params.Value == "" && params.Label == "" && params.Index == nil) {
		return fromError(fmt.Errorf("select action %s captured no option criteria: %w", a.ID, ErrRecordingMalformed))
	}
	res, blocked := x.resolveTarget(ctx, a)
	if blocked != nil {
		return *blocked
	}

	var lastErr error
	if params.Value != "" {
		if lastErr = x.page.SelectOption(ctx, res.Query, browser.SelectByValue, params.Value); lastErr == nil {
			return success(res.Query.Selector)
		}
	}
	if params.Label != "" {
		if lastErr = x.page.SelectOption(ctx, res.Query, browser.SelectByLabel, params.Label); lastErr == nil {
			return success(res.Query.Selector)
		}
	}
	if params.Index != nil {
		if lastErr = x.page.SelectOption(ctx, res.Query, browser.SelectByIndex, fmt.Sprintf("%d", *params.Index)); lastErr == nil {
			return success(res.Query.Selector)
		}
	}
	return fromError(fmt.Errorf("select on %s: %w", res.Query.Selector, lastErr))
}

// handleHover replays intentional hovers and drops incidental ones: pointer
// pass-throughs, decorative overlays, and hovers immediately followed by a
// click on the same element (the click already moves the pointer there).
func (x *run) handleHover(ctx context.Context, a *recording.Action, next *recording.Action) Outcome {
	if a.Strategy != nil && (overlayPattern.MatchString(a.Strategy.CSS) ||
		overlayPattern.MatchString(a.Strategy.ID) ||
		overlayPattern.MatchString(a.Strategy.Label)) {
		return skipped("hover targets a decorative overlay")
	}
	if a.Hover != nil && a.Hover.DurationMs > 0 && a.Hover.DurationMs < hoverIncidentalMs {
		return skipped("incidental hover below the intent threshold")
	}
	if next != nil && next.Kind == recording.KindClick &&
		a.Strategy != nil && next.Strategy != nil &&
		a.Strategy.Key() != "" && a.Strategy.Key() == next.Strategy.Key() {
		return skipped("next action clicks the same element")
	}

	res, blocked := x.resolveTarget(ctx, a)
	if blocked != nil {
		return *blocked
	}
	if err := x.page.Hover(ctx, res.Query); err != nil {
		return fromError(fmt.Errorf("hover %s: %w", res.Query.Selector, err))
	}
	return success(res.Query.Selector)
}

func (x *run) handleScroll(ctx context.Context, a *recording.Action) Outcome {
	params := a.Scroll
	if params == nil {
		return fromError(fmt.Errorf("scroll action %s carries no parameters: %w", a.ID, ErrRecordingMalformed))
	}

	if params.Target != nil {
		res, err := x.locator.Resolve(ctx, x.page, params.Target, x.opts.ElementTimeout)
		if err != nil {
			if a.SkipIfNotFound && errors.Is(err, ErrElementNotFound) {
				return skipped("scroll container absent and action marked skippable")
			}
			return fromError(fmt.Errorf("scroll container for action %s: %w", a.ID, err))
		}
		expr := fmt.Sprintf(`(() => {
			const el = %s;
			if (!el) return false;
			el.scrollTo ? el.scrollTo({ left: %g, top: %g, behavior: 'smooth' })
			            : (el.scrollLeft = %g, el.scrollTop = %g);
			return true;
		})()`, browser.FindExpr(res.Query), params.X, params.Y, params.X, params.Y)
		var ok bool
		if err := x.page.Evaluate(ctx, expr, &ok); err != nil {
			return fromError(fmt.Errorf("scroll %s: %w", res.Query.Selector, err))
		}
		return success(res.Query.Selector)
	}

	// Window scroll, eased so lazy-loaded content fires its observers the
	// way it did during capture.
	var currentY float64
	_ = x.page.Evaluate(ctx, "window.scrollY", &currentY)
	distance := params.Y - currentY
	if distance < 0 {
		distance = -distance
	}
	durMs := 200 + int(distance)/5
	if durMs > 800 {
		durMs = 800
	}
	expr := fmt.Sprintf(`(() => {
		const sx = window.scrollX, sy = window.scrollY;
		const dx = %g - sx, dy = %g - sy, dur = %d;
		const t0 = performance.now();
		const step = (now) => {
			const p = Math.min((now - t0) / dur, 1);
			const e = p < 0.5 ? 2 * p * p : 1 - Math.pow(-2 * p + 2, 2) / 2;
			window.scrollTo(sx + dx * e, sy + dy * e);
			if (p < 1) requestAnimationFrame(step);
		};
		requestAnimationFrame(step);
		return true;
	})()`, params.X, params.Y, durMs)
	var ok bool
	if err := x.page.Evaluate(ctx, expr, &ok); err != nil {
		return fromError(fmt.Errorf("window scroll: %w", err))
	}
	if err := x.sleepCtx(ctx, time.Duration(durMs)*time.Millisecond); err != nil {
		return fromError(err)
	}
	return success("")
}

func (x *run) handleNavigation(ctx context.Context, a *recording.Action) Outcome {
	params := a.Navigation
	if params == nil || params.URL == "" {
		return fromError(fmt.Errorf("navigation action %s has no URL: %w", a.ID, ErrRecordingMalformed))
	}

	current, _ := x.page.CurrentURL(ctx)
	if params.ViaSubmit && urlsEquivalent(current, params.URL) {
		return skipped("navigation already performed by the form submit")
	}
	if x.state.navigatedRecently(time.Now()) && urlsEquivalent(current, params.URL) {
		return skipped("destination already reached by a preceding action")
	}

	result, err := x.history.Navigate(ctx, x.page, params.URL, x.opts.NavigationTimeout)
	if err != nil {
		return fromError(err)
	}
	x.state.noteNavigation(time.Now())
	x.logger.Debug("navigation satisfied",
		zap.String("action", a.ID),
		zap.String("url", params.URL),
		zap.String("method", string(result.Method)))
	return success("")
}

// looksLikeSubmitControl reports whether a strategy plausibly points at the
// control that submits a form.
func looksLikeSubmitControl(s *recording.Strategy) bool {
	if s == nil {
		return false
	}
	if strings.Contains(s.CSS, `[type="submit"]`) || strings.Contains(s.CSS, "[type=submit]") {
		return true
	}
	return submitControlPattern.MatchString(s.Text) ||
		submitControlPattern.MatchString(s.Label) ||
		submitControlPattern.MatchString(s.ID) ||
		submitControlPattern.MatchString(s.TestID)
}

func (x *run) handleSubmit(ctx context.Context, a *recording.Action) Outcome {
	// Captures typically record the triggering click and the form submit as
	// separate events milliseconds apart; replaying both double-submits.
	if prev := x.state.lastExecuted; prev != nil &&
		prev.Kind == recording.KindClick &&
		a.Timestamp-prev.Timestamp <= submitEchoWindowMs &&
		looksLikeSubmitControl(prev.Strategy) {
		return skipped("redundant submit after a submit-control click")
	}

	res, blocked := x.resolveTarget(ctx, a)
	if blocked != nil {
		return *blocked
	}
	before, _ := x.page.CurrentURL(ctx)

	// Prefer clicking the form's own submit control: that path runs any
	// attached handlers exactly as a user would.
	if res.Query.By == browser.ByCSS {
		sel := res.Query.Selector
		if strings.Contains(sel, ",") {
			// A compound selector list must be grouped before a descendant
			// combinator is appended, or the list's first alternative becomes
			// the bare form element itself.
			sel = ":is(" + sel + ")"
		}
		inner := browser.CSS(fmt.Sprintf(`%s [type="submit"], %s button:not([type="button"])`, sel, sel))
		if n, err := x.page.Count(ctx, inner); err == nil && n > 0 {
			if err := x.page.Click(ctx, inner, browser.ClickOptions{}); err != nil {
				out := fromError(fmt.Errorf("click submit control in %s: %w", sel, err))
				if out.Status != OutcomeExpected {
					return out
				}
			}
			if after, moved := x.observeNavigation(ctx, before, x.opts.NavObserveWindow); moved {
				x.history.Record(after)
				x.state.noteNavigation(time.Now())
			}
			return success(inner.Selector)
		}
	}

	expr := fmt.Sprintf(`(() => {
		const el = %s;
		if (!el) return false;
		const form = el.tagName === 'FORM' ? el : (el.form || el.closest('form'));
		if (!form) return false;
		form.requestSubmit ? form.requestSubmit() : form.submit();
		return true;
	})()`, browser.FindExpr(res.Query))
	var ok bool
	if err := x.page.Evaluate(ctx, expr, &ok); err != nil {
		out := fromError(fmt.Errorf("submit via %s: %w", res.Query.Selector, err))
		if out.Status != OutcomeExpected {
			return out
		}
		ok = true
	}
	if !ok {
		return fromError(fmt.Errorf("action %s: element %s belongs to no form", a.ID, res.Query.Selector))
	}
	if after, moved := x.observeNavigation(ctx, before, x.opts.NavObserveWindow); moved {
		x.history.Record(after)
		x.state.noteNavigation(time.Now())
	}
	return success(res.Query.Selector)
}

// handleModal synchronizes with modal lifecycle moments. Waits are tolerant:
// a modal that fails to appear is a page difference, not a replay failure,
// and subsequent actions will report their own errors if it matters.
func (x *run) handleModal(ctx context.Context, a *recording.Action) Outcome {
	params := a.Modal
	if params == nil {
		return skipped("modal action carries no parameters")
	}
	settle := x.opts.ModalSettleDelay

	switch params.Phase {
	case recording.ModalOpened:
		if a.Strategy != nil {
			if _, err := x.locator.Resolve(ctx, x.page, a.Strategy, x.opts.ElementTimeout); err != nil {
				x.logger.Debug("modal did not become visible",
					zap.String("modal", params.ModalID), zap.Error(err))
			}
		}
		if err := x.sleepCtx(ctx, settle); err != nil {
			return fromError(err)
		}
		x.state.setModal(params.ModalID, true)
		return success("")

	case recording.ModalClosed:
		if a.Strategy != nil {
			kinds := populatedKinds(a.Strategy)
			if len(kinds) > 0 {
				q := queryFor(a.Strategy, kinds[0])
				if err := x.page.WaitHidden(ctx, q, x.opts.ElementTimeout); err != nil {
					x.logger.Debug("modal did not disappear",
						zap.String("modal", params.ModalID), zap.Error(err))
				}
			}
		}
		if err := x.sleepCtx(ctx, settle); err != nil {
			return fromError(err)
		}
		x.state.setModal(params.ModalID, false)
		return success("")

	default: // state change inside an open modal; content needs a beat
		if err := x.sleepCtx(ctx, settle); err != nil {
			return fromError(err)
		}
		return success("")
	}
}
