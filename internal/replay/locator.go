package replay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"webreplay/internal/recording"
	"webreplay/pkg/browser"
)

// Resolved is a live element reference: the query that matched plus the
// lookup method that produced it.
type Resolved struct {
	Query  browser.Query
	Method recording.StrategyKind
}

// Disambiguator is an extension point for content-signature matching when a
// query resolves to more than one element. It receives the matching query
// and the match count and may return a narrower query. The default (nil)
// keeps the first match, consistent with single-strategy fallback.
type Disambiguator func(ctx context.Context, page browser.Page, q browser.Query, count int) (browser.Query, bool)

// Locator resolves identification strategies to live elements. It holds no
// per-run state and is safe to share across actions and runs.
type Locator struct {
	logger       *zap.Logger
	retryCeiling int
	backoffBase  time.Duration
	disambiguate Disambiguator

	// sleep is swappable so tests can assert the backoff schedule.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLocator builds a locator with the given retry ceiling (full passes over
// the priority list after the first) and backoff base delay.
func NewLocator(logger *zap.Logger, retryCeiling int, backoffBase time.Duration) *Locator {
	if backoffBase <= 0 {
		backoffBase = 500 * time.Millisecond
	}
	if retryCeiling < 0 {
		retryCeiling = 0
	}
	return &Locator{
		logger:       logger.Named("locator"),
		retryCeiling: retryCeiling,
		backoffBase:  backoffBase,
		sleep: func(ctx context.Context, d time.Duration) error {
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// WithDisambiguator installs a multi-candidate disambiguation hook.
func (l *Locator) WithDisambiguator(d Disambiguator) *Locator {
	l.disambiguate = d
	return l
}

// Resolve walks the strategy's priority list in order. A candidate with zero
// matches is passed over immediately; the first candidate with matches is
// waited on (bounded by timeout) until visible and returned. When a full
// pass finds nothing the locator sleeps with exponential backoff (base
// doubling each pass) and rescans, up to the retry ceiling.
func (l *Locator) Resolve(ctx context.Context, page browser.Page, strategy *recording.Strategy, timeout time.Duration) (Resolved, error) {
	if strategy == nil || len(populatedKinds(strategy)) == 0 {
		return Resolved{}, fmt.Errorf("strategy has no populated candidates: %w", ErrElementNotFound)
	}
	kinds := populatedKinds(strategy)

	for pass := 0; ; pass++ {
		for _, kind := range kinds {
			q := queryFor(strategy, kind)
			count, err := page.Count(ctx, q)
			if err != nil {
				return Resolved{}, fmt.Errorf("query %q: %w", q.Selector, err)
			}
			if count == 0 {
				continue
			}
			if count > 1 && l.disambiguate != nil {
				if narrowed, ok := l.disambiguate(ctx, page, q, count); ok {
					q = narrowed
				}
			}
			if err := page.WaitVisible(ctx, q, timeout); err != nil {
				if ctx.Err() != nil {
					return Resolved{}, ctx.Err()
				}
				// Present but never became visible; let the next candidate
				// or the next pass have a go.
				l.logger.Debug("matched element never became visible",
					zap.String("selector", q.Selector), zap.Error(err))
				continue
			}
			l.logger.Debug("element resolved",
				zap.String("method", string(kind)),
				zap.String("selector", q.Selector),
				zap.Int("matches", count),
				zap.Int("pass", pass))
			return Resolved{Query: q, Method: kind}, nil
		}

		if pass >= l.retryCeiling {
			return Resolved{}, fmt.Errorf("all %d strategy candidates exhausted after %d passes: %w",
				len(kinds), pass+1, ErrElementNotFound)
		}
		delay := l.backoffBase << uint(pass)
		l.logger.Debug("strategy pass found nothing, backing off",
			zap.Duration("delay", delay), zap.Int("pass", pass))
		if err := l.sleep(ctx, delay); err != nil {
			return Resolved{}, err
		}
	}
}

// populatedKinds returns the priority order restricted to candidates that
// actually carry a value.
func populatedKinds(s *recording.Strategy) []recording.StrategyKind {
	out := make([]recording.StrategyKind, 0, len(s.Priority))
	for _, kind := range s.Priority {
		if s.Has(kind) {
			out = append(out, kind)
		}
	}
	return out
}

// queryFor translates one strategy candidate into a page query.
func queryFor(s *recording.Strategy, kind recording.StrategyKind) browser.Query {
	switch kind {
	case recording.ByID:
		// Known-brittle ids carry recorded equivalents; all of them go into
		// one compound query so a single lookup covers every variant.
		ids := append([]string{s.ID}, s.EquivalentIDs...)
		parts := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != "" {
				parts = append(parts, fmt.Sprintf(`[id=%q]`, id))
			}
		}
		return browser.CSS(strings.Join(parts, ", "))
	case recording.ByTestID:
		// Both test-id attribute spellings seen in the wild.
		return browser.CSS(fmt.Sprintf(`[data-testid=%q], [data-test-id=%q]`, s.TestID, s.TestID))
	case recording.ByLabel:
		return browser.CSS(fmt.Sprintf(`[aria-label=%q]`, s.Label))
	case recording.ByName:
		return browser.CSS(fmt.Sprintf(`[name=%q]`, s.Name))
	case recording.ByCSS:
		return browser.CSS(s.CSS)
	case recording.ByXPath:
		return browser.XPath(s.XPath)
	case recording.ByPosition:
		return browser.CSS(fmt.Sprintf("%s > :nth-child(%d)", s.Position.Parent, s.Position.Index+1))
	case recording.ByText:
		return browser.XPath(fmt.Sprintf("//*[normalize-space(text())=%s]", xpathLiteral(s.Text)))
	}
	return browser.CSS("")
}

// xpathLiteral quotes a string for use inside an XPath expression, handling
// embedded quotes via concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if part != "" {
			quoted = append(quoted, `"`+part+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
