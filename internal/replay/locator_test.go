package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"webreplay/internal/recording"
	"webreplay/pkg/browser"
)

func testLocator(t *testing.T, ceiling int) *Locator {
	t.Helper()
	return NewLocator(zap.NewNop(), ceiling, 500*time.Millisecond)
}

func TestResolveFollowsPriorityOrder(t *testing.T) {
	page := newFakePage("https://example.com")
	page.setCount(`[name="email"]`, 1)

	strategy := &recording.Strategy{
		ID:       "email-field",
		Name:     "email",
		CSS:      "form input.email",
		Priority: []recording.StrategyKind{recording.ByID, recording.ByName, recording.ByCSS},
	}

	loc := testLocator(t, 0)
	loc.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	res, err := loc.Resolve(context.Background(), page, strategy, time.Second)
	require.NoError(t, err)
	// The id candidate matched nothing, so the name candidate wins without
	// the css candidate ever being consulted.
	assert.Equal(t, recording.ByName, res.Method)
	assert.Equal(t, `[name="email"]`, res.Query.Selector)
}

func TestResolveSkipsUnpopulatedCandidates(t *testing.T) {
	page := newFakePage("https://example.com")
	page.setCount("div.card", 1)

	strategy := &recording.Strategy{
		CSS:      "div.card",
		Priority: []recording.StrategyKind{recording.ByID, recording.ByTestID, recording.ByCSS},
	}

	res, err := testLocator(t, 0).Resolve(context.Background(), page, strategy, time.Second)
	require.NoError(t, err)
	assert.Equal(t, recording.ByCSS, res.Method)
}

func TestResolveBackoffSchedule(t *testing.T) {
	page := newFakePage("https://example.com")

	strategy := &recording.Strategy{
		ID:       "ghost",
		Priority: []recording.StrategyKind{recording.ByID},
	}

	loc := testLocator(t, 2)
	var slept []time.Duration
	loc.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	_, err := loc.Resolve(context.Background(), page, strategy, time.Second)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrElementNotFound))
	// Two retries after the initial pass: 500ms, then doubled.
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, slept)
}

func TestResolveRetryFindsLateElement(t *testing.T) {
	page := newFakePage("https://example.com")

	strategy := &recording.Strategy{
		ID:       "late",
		Priority: []recording.StrategyKind{recording.ByID},
	}

	loc := testLocator(t, 2)
	loc.sleep = func(ctx context.Context, d time.Duration) error {
		// The element appears while the locator is backing off.
		page.setCount(`[id="late"]`, 1)
		return nil
	}

	res, err := loc.Resolve(context.Background(), page, strategy, time.Second)
	require.NoError(t, err)
	assert.Equal(t, recording.ByID, res.Method)
}

func TestResolveNoCandidates(t *testing.T) {
	page := newFakePage("https://example.com")
	_, err := testLocator(t, 0).Resolve(context.Background(), page, &recording.Strategy{}, time.Second)
	assert.True(t, errors.Is(err, ErrElementNotFound))

	_, err = testLocator(t, 0).Resolve(context.Background(), page, nil, time.Second)
	assert.True(t, errors.Is(err, ErrElementNotFound))
}

func TestQueryForCompoundIDs(t *testing.T) {
	s := &recording.Strategy{
		ID:            "react-select-3-input",
		EquivalentIDs: []string{"react-select-4-input"},
	}
	q := queryFor(s, recording.ByID)
	assert.Equal(t, browser.ByCSS, q.By)
	assert.Equal(t, `[id="react-select-3-input"], [id="react-select-4-input"]`, q.Selector)
}

func TestQueryForTestIDCoversBothSpellings(t *testing.T) {
	s := &recording.Strategy{TestID: "submit-btn"}
	q := queryFor(s, recording.ByTestID)
	assert.Equal(t, `[data-testid="submit-btn"], [data-test-id="submit-btn"]`, q.Selector)
}

func TestQueryForPosition(t *testing.T) {
	s := &recording.Strategy{Position: &recording.RelativePosition{Parent: "ul.menu", Index: 2}}
	q := queryFor(s, recording.ByPosition)
	assert.Equal(t, "ul.menu > :nth-child(3)", q.Selector)
}

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", `"plain"`},
		{`with "quotes"`, `'with "quotes"'`},
		{`mixed "double" and 'single'`, `concat("mixed ", '"', "double", '"', " and 'single'")`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, xpathLiteral(tt.in), "input %q", tt.in)
	}
}
