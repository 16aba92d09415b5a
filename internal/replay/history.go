package replay

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"webreplay/pkg/browser"
)

// NavMethod names the strategy that got the page to a target URL.
type NavMethod string

const (
	NavCurrent NavMethod = "current" // already there
	NavHistory NavMethod = "history" // session-history traversal
	NavDirect  NavMethod = "direct"  // direct load
)

// NavResult reports how a navigation request was satisfied.
type NavResult struct {
	OK     bool
	Method NavMethod
}

// History tracks the URLs actually reached during one run and knows several
// ways to get back to one of them. One instance per run; not safe for
// concurrent use and never shared across runs.
type History struct {
	logger  *zap.Logger
	visited []string
}

// NewHistory returns an empty per-run navigation history.
func NewHistory(logger *zap.Logger) *History {
	return &History{logger: logger.Named("history")}
}

// Record appends a URL that the page actually reached. The list is
// append-only.
func (h *History) Record(rawURL string) {
	if rawURL == "" {
		return
	}
	h.visited = append(h.visited, rawURL)
}

// Visited returns a copy of the recorded URL list.
func (h *History) Visited() []string {
	out := make([]string, len(h.visited))
	copy(out, h.visited)
	return out
}

// Navigate brings the page to target, trying session-history traversal
// before a direct load. A timeout that nonetheless lands on the target
// counts as success. The reached URL is recorded.
func (h *History) Navigate(ctx context.Context, page browser.Page, target string, timeout time.Duration) (NavResult, error) {
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	current, err := page.CurrentURL(opCtx)
	if err == nil && urlsEquivalent(current, target) {
		return NavResult{OK: true, Method: NavCurrent}, nil
	}

	if delta, ok := h.historyDelta(target); ok {
		if err := page.GoHistory(opCtx, delta); err == nil {
			if landed, lerr := page.CurrentURL(opCtx); lerr == nil && urlsEquivalent(landed, target) {
				h.logger.Debug("reached target via history traversal",
					zap.String("target", target), zap.Int("delta", delta))
				h.Record(landed)
				return NavResult{OK: true, Method: NavHistory}, nil
			}
		} else if isSessionTerminated(err) {
			return NavResult{}, fmt.Errorf("history traversal: %w", err)
		}
		h.logger.Debug("history traversal missed target, falling back to direct load",
			zap.String("target", target))
	}

	navErr := page.Navigate(opCtx, target)
	landed, lerr := page.CurrentURL(ctx)
	if lerr == nil && urlsEquivalent(landed, target) {
		// Even a timed-out load that ended up on the target is a success.
		h.Record(landed)
		return NavResult{OK: true, Method: NavDirect}, nil
	}
	if navErr != nil {
		if opCtx.Err() == context.DeadlineExceeded {
			return NavResult{}, fmt.Errorf("load of %s: %w", target, ErrNavigationTimeout)
		}
		return NavResult{}, fmt.Errorf("load of %s: %v: %w", target, navErr, ErrNavigationFailure)
	}
	return NavResult{}, fmt.Errorf("loaded %s but landed on %s: %w", target, landed, ErrNavigationFailure)
}

// historyDelta computes the history.go offset from the most recent entry to
// the most recent occurrence of target, when target was visited.
func (h *History) historyDelta(target string) (int, bool) {
	for i := len(h.visited) - 1; i >= 0; i-- {
		if urlsEquivalent(h.visited[i], target) {
			return i - (len(h.visited) - 1), true
		}
	}
	return 0, false
}

// urlsEquivalent compares URLs ignoring fragments and trailing slashes.
func urlsEquivalent(a, b string) bool {
	return normalizeURL(a) == normalizeURL(b)
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.TrimSuffix(raw, "/")
	}
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// sameOrigin reports whether two URLs share scheme and host.
func sameOrigin(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return ua.Scheme == ub.Scheme && ua.Host == ub.Host
}
