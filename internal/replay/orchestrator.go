package replay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"webreplay/internal/recording"
	"webreplay/pkg/browser"
)

// Options configure a Runner. Zero values get sensible defaults.
type Options struct {
	BrowserKind string // chrome, chromium; used in screenshot names
	Headless    bool
	ExecPath    string
	RecordVideo bool
	// Device selects an emulation preset that overrides the recording's
	// captured viewport and user agent. Empty means replay as captured.
	Device string

	Mode          Mode    // timing mode; default realistic
	SpeedOverride float64 // >0 overrides the mode's multiplier
	MaxDelay      time.Duration

	ElementTimeout    time.Duration
	RetryCeiling      int
	BackoffBase       time.Duration
	NavigationTimeout time.Duration
	// NavObserveWindow bounds how long click and submit handlers watch for a
	// resulting navigation before concluding none happened.
	NavObserveWindow time.Duration
	ModalSettleDelay time.Duration

	ScreenshotDir  string
	CaptureOnError bool
}

func (o *Options) applyDefaults() {
	if o.BrowserKind == "" {
		o.BrowserKind = "chrome"
	}
	if o.Mode == "" {
		o.Mode = ModeRealistic
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 5 * time.Second
	}
	if o.ElementTimeout <= 0 {
		o.ElementTimeout = 10 * time.Second
	}
	if o.RetryCeiling <= 0 {
		o.RetryCeiling = 2
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.NavigationTimeout <= 0 {
		o.NavigationTimeout = 30 * time.Second
	}
	if o.NavObserveWindow <= 0 {
		o.NavObserveWindow = 3 * time.Second
	}
	if o.ModalSettleDelay <= 0 {
		o.ModalSettleDelay = 300 * time.Millisecond
	}
}

// multiplier resolves the effective timing multiplier.
func (o Options) multiplier() float64 {
	if o.SpeedOverride > 0 {
		return o.SpeedOverride
	}
	return o.Mode.Multiplier()
}

// Runner replays recordings. It is safe to share across goroutines; all
// per-run state lives in the run struct.
type Runner struct {
	launcher browser.Launcher
	logger   *zap.Logger
	reporter Reporter
	opts     Options
}

// NewRunner builds a Runner. A nil reporter discards progress events.
func NewRunner(launcher browser.Launcher, logger *zap.Logger, reporter Reporter, opts Options) *Runner {
	if reporter == nil {
		reporter = NopReporter{}
	}
	opts.applyDefaults()
	return &Runner{
		launcher: launcher,
		logger:   logger.Named("replay"),
		reporter: reporter,
		opts:     opts,
	}
}

// run is the mutable state of one replay. Owned by a single goroutine.
type run struct {
	opts     Options
	logger   *zap.Logger
	reporter Reporter
	launcher browser.Launcher

	id  string
	rec *recording.Recording

	session browser.Session
	bctx    browser.BrowserContext
	page    browser.Page

	history *History
	locator *Locator
	state   *runState

	result      *RunResult
	shotIndex   int
	browserKind string
}

// Run replays the recording and returns the result record. Nothing else
// crosses the run boundary: setup failures, action failures, panics, and
// cancellation all end up inside the RunResult.
func (r *Runner) Run(ctx context.Context, rec *recording.Recording) *RunResult {
	runID := uuid.New().String()
	pre, warnings := recording.Preprocess(rec)

	x := &run{
		opts:        r.opts,
		logger:      r.logger.With(zap.String("runId", runID), zap.String("recording", pre.Name)),
		reporter:    r.reporter,
		launcher:    r.launcher,
		id:          runID,
		rec:         pre,
		history:     NewHistory(r.logger),
		locator:     NewLocator(r.logger, r.opts.RetryCeiling, r.opts.BackoffBase),
		state:       newRunState(),
		browserKind: r.opts.BrowserKind,
		result: &RunResult{
			RunID:        runID,
			Recording:    pre.Name,
			Status:       StatusSuccess,
			TotalActions: len(pre.Actions),
			Warnings:     warnings,
		},
	}

	x.logger.Info("run starting",
		zap.Int("actions", len(pre.Actions)),
		zap.Int("warnings", len(warnings)),
		zap.String("mode", string(r.opts.Mode)))
	x.reporter.RunStarted(pre.Name, len(pre.Actions))
	started := time.Now()

	func() {
		defer func() {
			if p := recover(); p != nil {
				x.logger.Error("run panicked",
					zap.Any("panic", p),
					zap.ByteString("stack", debug.Stack()))
				x.result.Status = StatusFailed
				x.result.Errors = append(x.result.Errors, ErrorRecord{
					Type:      "panic",
					Message:   fmt.Sprint(p),
					Timestamp: time.Now(),
				})
			}
		}()
		x.execute(ctx)
	}()

	// Teardown runs on a fresh context so caller cancellation never skips
	// browser cleanup.
	x.teardown(context.Background())

	x.result.Duration = time.Since(started)
	x.logger.Info("run finished",
		zap.String("status", string(x.result.Status)),
		zap.Int("executed", x.result.ExecutedActions),
		zap.Int("failed", x.result.FailedActions),
		zap.Int("skipped", len(x.result.Skipped)),
		zap.Duration("duration", x.result.Duration))
	x.reporter.RunCompleted(x.result.Status, x.result.Duration,
		x.result.ExecutedActions, x.result.FailedActions, x.result.VideoPath)
	return x.result
}

func (x *run) execute(ctx context.Context) {
	if err := x.setup(ctx); err != nil {
		if isCancellation(err) || errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
			x.result.Status = StatusCancelled
			return
		}
		x.recordFailure(ctx, "", err)
		x.result.Status = StatusFailed
		return
	}

	mult := x.opts.multiplier()
	actions := x.rec.Actions

	for i := range actions {
		a := &actions[i]
		// Cancellation is honored at action boundaries; the result keeps
		// everything executed so far.
		if ctx.Err() != nil {
			x.result.Status = StatusCancelled
			return
		}
		var next *recording.Action
		if i+1 < len(actions) {
			next = &actions[i+1]
		}

		x.reporter.ActionStarted(a.ID, i)

		if i > 0 {
			x.applyDelay(ctx, a.Timestamp-actions[i-1].Timestamp, mult)
			if ctx.Err() != nil {
				x.result.Status = StatusCancelled
				return
			}
		}

		if reason, dup := x.state.isDuplicate(a); dup {
			x.recordSkip(a, i, reason)
			continue
		}
		if reason, skip := x.skipReason(ctx, a); skip {
			x.recordSkip(a, i, reason)
			continue
		}
		if out, handled := x.validatePageState(ctx, a); handled {
			x.apply(ctx, a, i, out, time.Now())
			if x.result.Status == StatusFailed || x.result.Status == StatusCancelled {
				return
			}
			continue
		}

		actionStart := time.Now()
		out := x.dispatch(ctx, a, next)

		// An action interrupted by caller cancellation is not a failure.
		if ctx.Err() != nil && (out.Status == OutcomeRecoverable || out.Status == OutcomeFatal) {
			x.result.Status = StatusCancelled
			return
		}

		x.apply(ctx, a, i, out, actionStart)
		if x.result.Status == StatusFailed {
			return
		}
	}
}

// setup launches the browser, opens an isolated context sized to the
// capture, and loads the start URL.
func (x *run) setup(ctx context.Context) error {
	session, err := x.launcher.Launch(ctx, browser.LaunchOptions{
		Kind:     x.opts.BrowserKind,
		Headless: x.opts.Headless,
		ExecPath: x.opts.ExecPath,
	})
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	x.session = session

	width, height := x.rec.Viewport.Width, x.rec.Viewport.Height
	if !x.opts.Headless && x.rec.Window != nil {
		// Headed runs size the window itself so chrome decorations do not
		// shrink the usable viewport below the captured one.
		width, height = x.rec.Window.Width, x.rec.Window.Height
	}
	if width <= 0 || height <= 0 {
		width, height = 1280, 800
	}
	ctxOpts := browser.ContextOptions{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: x.rec.DeviceScaleFactor,
		UserAgent:         x.rec.UserAgent,
		RecordVideo:       x.opts.RecordVideo,
	}
	if x.opts.Device != "" {
		device, ok := browser.LookupDevice(x.opts.Device)
		if !ok {
			return fmt.Errorf("unknown device preset %q (available: %v)", x.opts.Device, browser.DeviceNames())
		}
		ctxOpts = device.Apply(ctxOpts)
		x.logger.Info("device emulation enabled", zap.String("device", device.Name))
	}
	bctx, err := session.NewContext(ctx, ctxOpts)
	if err != nil {
		return fmt.Errorf("create browsing context: %w", err)
	}
	x.bctx = bctx

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	x.page = page

	navCtx, cancel := context.WithTimeout(ctx, x.opts.NavigationTimeout)
	defer cancel()
	if err := page.Navigate(navCtx, x.rec.StartURL); err != nil {
		// A slow start page that still got there is usable.
		if landed, lerr := page.CurrentURL(ctx); lerr != nil || !urlsEquivalent(landed, x.rec.StartURL) {
			return fmt.Errorf("load start URL %s: %v: %w", x.rec.StartURL, err, ErrNavigationFailure)
		}
	}
	x.history.Record(x.rec.StartURL)
	x.state.noteNavigation(time.Now())
	x.logger.Info("start URL loaded", zap.String("url", x.rec.StartURL))
	return nil
}

func (x *run) teardown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if x.page != nil {
		if err := x.page.Close(ctx); err != nil {
			x.logger.Debug("page close", zap.Error(err))
		}
	}
	if x.bctx != nil {
		x.result.VideoPath = x.bctx.VideoPath()
		if err := x.bctx.Close(ctx); err != nil {
			x.logger.Debug("context close", zap.Error(err))
		}
	}
	if x.session != nil {
		if err := x.session.Close(ctx); err != nil {
			x.logger.Debug("session close", zap.Error(err))
		}
	}
}

// applyDelay paces the run by the recorded gap, scaled and capped.
func (x *run) applyDelay(ctx context.Context, gapMs int64, mult float64) {
	if gapMs <= 0 || mult <= 0 {
		return
	}
	d := time.Duration(float64(gapMs)*mult) * time.Millisecond
	if d > x.opts.MaxDelay {
		d = x.opts.MaxDelay
	}
	_ = x.sleepCtx(ctx, d)
}

// skipReason evaluates the pre-execution skip rules that depend on run
// state: completed success flows, broken dependencies, and closed modals.
func (x *run) skipReason(ctx context.Context, a *recording.Action) (string, bool) {
	if x.state.groupComplete(a) {
		return "action group already reached its success flow", true
	}
	if a.Context != nil && x.state.dependencyNavigatedAway(a.Context.DependsOn) {
		current, err := x.page.CurrentURL(ctx)
		if err == nil && a.URL != "" && !urlsEquivalent(current, a.URL) {
			return "prerequisite terminal action navigated away from this page", true
		}
	}
	if a.ModalID != "" && !x.state.modalOpen(a.ModalID) {
		return "enclosing modal is closed", true
	}
	return "", false
}

// validatePageState checks that the page is where the action expects it.
// Returns handled=false when the action should execute normally; otherwise
// the returned outcome (skip or failure) stands in for execution.
func (x *run) validatePageState(ctx context.Context, a *recording.Action) (Outcome, bool) {
	if a.Kind == recording.KindNavigation || a.URL == "" {
		return Outcome{}, false
	}
	if x.state.consumeSkipValidation() || x.state.navigatedRecently(time.Now()) {
		return Outcome{}, false
	}
	if prev := x.state.lastExecuted; prev != nil {
		gap := time.Duration(a.Timestamp-prev.Timestamp) * time.Millisecond
		if gap >= 0 && gap < sameInteractionWindow {
			// Burst of interactions on one page; re-checking each would only
			// add latency.
			return Outcome{}, false
		}
	}

	current, err := x.page.CurrentURL(ctx)
	if err != nil || urlsEquivalent(current, a.URL) {
		return Outcome{}, false
	}

	// Being past the action's page can mean the flow already succeeded.
	if a.Context != nil && a.Context.SuccessURLPattern != "" {
		if re, rerr := regexp.Compile(a.Context.SuccessURLPattern); rerr == nil && re.MatchString(current) {
			x.state.markGroupComplete(a.Context.Group)
			return skipped("current page already matches the expected post-action URL"), true
		}
	}

	x.logger.Debug("page state mismatch, correcting",
		zap.String("action", a.ID),
		zap.String("current", current),
		zap.String("expected", a.URL))
	if _, nerr := x.history.Navigate(ctx, x.page, a.URL, x.opts.NavigationTimeout); nerr == nil {
		x.state.noteNavigation(time.Now())
		x.state.skipValidation = true
		return Outcome{}, false
	}
	return fromError(fmt.Errorf("action %s expects page %s but browser is on %s: %w",
		a.ID, a.URL, current, ErrNavigationFailure)), true
}

// dispatch routes one action to its kind handler.
func (x *run) dispatch(ctx context.Context, a, next *recording.Action) Outcome {
	switch a.Kind {
	case recording.KindClick:
		return x.handleClick(ctx, a)
	case recording.KindInput:
		return x.handleInput(ctx, a)
	case recording.KindSelect:
		return x.handleSelect(ctx, a)
	case recording.KindHover:
		return x.handleHover(ctx, a, next)
	case recording.KindScroll:
		return x.handleScroll(ctx, a)
	case recording.KindNavigation:
		return x.handleNavigation(ctx, a)
	case recording.KindSubmit:
		return x.handleSubmit(ctx, a)
	case recording.KindModal:
		return x.handleModal(ctx, a)
	default:
		return skipped(fmt.Sprintf("unsupported action kind %q", a.Kind))
	}
}

// apply folds one action outcome into the run result and state.
func (x *run) apply(ctx context.Context, a *recording.Action, idx int, out Outcome, started time.Time) {
	elapsed := time.Since(started)

	switch out.Status {
	case OutcomeSuccess, OutcomeExpected:
		x.result.ExecutedActions++
		x.state.noteExecuted(a)
		x.reporter.ActionSucceeded(a.ID, idx, elapsed, out.SelectorUsed)
		if a.Context != nil {
			if a.Context.IsTerminal && x.state.navigatedRecently(time.Now()) {
				x.state.noteTerminalNavigation(a.ID)
			}
			x.checkSuccessFlow(ctx, a)
		}

	case OutcomeSkipped:
		x.recordSkip(a, idx, out.Reason)

	case OutcomeRecoverable:
		// Optional actions and modal synchronization degrade to skips; their
		// absence is a page difference, not a broken flow.
		if a.Optional || a.Kind == recording.KindModal {
			reason := "optional action failed: " + out.Err.Error()
			x.logger.Warn("optional action failed, continuing",
				zap.String("action", a.ID), zap.Error(out.Err))
			x.recordSkip(a, idx, reason)
			return
		}
		x.logger.Warn("action failed",
			zap.String("action", a.ID),
			zap.String("kind", string(a.Kind)),
			zap.Error(out.Err))
		x.recordFailure(ctx, a.ID, out.Err)
		x.reporter.ActionFailed(a.ID, idx, out.Err.Error(), elapsed)
		x.recoverPage(ctx, a)
		if x.result.Status == StatusSuccess {
			x.result.Status = StatusPartial
		}

	case OutcomeFatal:
		x.logger.Error("browser session lost",
			zap.String("action", a.ID), zap.Error(out.Err))
		if a.Optional || a.Kind == recording.KindModal {
			// The action itself still degrades to a skip; the lost session
			// ends the run regardless because nothing is left to drive.
			x.recordSkip(a, idx, "optional action failed: "+out.Err.Error())
			x.recordFailure(ctx, "", out.Err)
		} else {
			x.recordFailure(ctx, a.ID, out.Err)
			x.reporter.ActionFailed(a.ID, idx, out.Err.Error(), elapsed)
		}
		x.result.Status = StatusFailed
	}
}

func (x *run) recordSkip(a *recording.Action, idx int, reason string) {
	x.logger.Debug("action skipped",
		zap.String("action", a.ID),
		zap.String("kind", string(a.Kind)),
		zap.String("reason", reason))
	x.result.Skipped = append(x.result.Skipped, SkipRecord{
		ActionID: a.ID,
		Kind:     a.Kind,
		Reason:   reason,
	})
	x.reporter.ActionSkipped(a.ID, idx, reason)
}

func (x *run) recordFailure(ctx context.Context, actionID string, err error) {
	x.result.FailedActions++
	rec := ErrorRecord{
		ActionID:  actionID,
		Type:      errorType(err),
		Message:   err.Error(),
		Timestamp: time.Now(),
	}
	if actionID != "" && !isSessionTerminated(err) {
		rec.Screenshot = x.captureScreenshot(ctx, actionID)
	}
	x.result.Errors = append(x.result.Errors, rec)
}

// recoverPage is the bounded attempt to make the page usable again after a
// recoverable failure: renavigate within the origin, clear overlays, settle.
func (x *run) recoverPage(ctx context.Context, a *recording.Action) {
	if x.page == nil || ctx.Err() != nil {
		return
	}
	if a.URL != "" {
		current, err := x.page.CurrentURL(ctx)
		if err == nil && !urlsEquivalent(current, a.URL) && sameOrigin(current, a.URL) {
			if _, nerr := x.history.Navigate(ctx, x.page, a.URL, x.opts.NavigationTimeout); nerr == nil {
				x.state.noteNavigation(time.Now())
				x.state.skipValidation = true
			}
		}
	}
	x.dismissOverlays(ctx)
	_ = x.page.WaitReady(ctx, 2*time.Second)
}

// checkSuccessFlow marks the action's group complete when the post-action
// URL matches its expected-change pattern.
func (x *run) checkSuccessFlow(ctx context.Context, a *recording.Action) {
	pattern := a.Context.SuccessURLPattern
	if pattern == "" || a.Context.Group == "" {
		return
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		x.logger.Debug("invalid expected-URL pattern",
			zap.String("action", a.ID), zap.String("pattern", pattern))
		return
	}
	current, err := x.page.CurrentURL(ctx)
	if err != nil {
		return
	}
	if re.MatchString(current) {
		x.logger.Info("success flow reached, remaining group actions will be skipped",
			zap.String("group", a.Context.Group),
			zap.String("url", current))
		x.state.markGroupComplete(a.Context.Group)
	}
}

// captureScreenshot writes a failure screenshot named
// {runId}-{browser}-{index}-{actionId}.png and registers it on the result.
func (x *run) captureScreenshot(ctx context.Context, actionID string) string {
	if !x.opts.CaptureOnError || x.opts.ScreenshotDir == "" || x.page == nil {
		return ""
	}
	buf, err := x.page.Screenshot(ctx)
	if err != nil {
		x.logger.Debug("screenshot capture failed", zap.Error(err))
		return ""
	}
	if err := os.MkdirAll(x.opts.ScreenshotDir, 0o755); err != nil {
		x.logger.Debug("screenshot dir", zap.Error(err))
		return ""
	}
	x.shotIndex++
	name := fmt.Sprintf("%s-%s-%03d-%s.png", x.id, x.browserKind, x.shotIndex, actionID)
	path := filepath.Join(x.opts.ScreenshotDir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		x.logger.Debug("screenshot write", zap.Error(err))
		return ""
	}
	x.result.Screenshots = append(x.result.Screenshots, path)
	return path
}

// errorType maps an error to the stable type string used in ErrorRecord.
func errorType(err error) string {
	switch {
	case errors.Is(err, ErrElementNotFound):
		return "element_not_found"
	case errors.Is(err, ErrNavigationTimeout):
		return "navigation_timeout"
	case errors.Is(err, ErrNavigationFailure):
		return "navigation_failure"
	case errors.Is(err, ErrSessionTerminated):
		return "session_terminated"
	case errors.Is(err, ErrFileUploadMissing):
		return "upload_missing"
	case errors.Is(err, ErrRecordingMalformed):
		return "recording_malformed"
	case isSessionTerminated(err):
		return "session_terminated"
	default:
		return "action_error"
	}
}
