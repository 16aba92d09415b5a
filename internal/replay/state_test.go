package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"webreplay/internal/recording"
)

func clickAt(ts int64, strategy *recording.Strategy) *recording.Action {
	return &recording.Action{
		ID:        "a",
		Timestamp: ts,
		Kind:      recording.KindClick,
		Strategy:  strategy,
	}
}

func TestDuplicateClickWithinWindowSuppressed(t *testing.T) {
	st := newRunState()
	target := &recording.Strategy{ID: "buy-now"}

	first := clickAt(1000, target)
	st.noteExecuted(first)

	// 150ms of recorded time later: an accidental double click.
	_, dup := st.isDuplicate(clickAt(1150, target))
	assert.True(t, dup)

	// 600ms later: deliberate repeat, replays.
	_, dup = st.isDuplicate(clickAt(1600, target))
	assert.False(t, dup)
}

func TestCarouselClicksGetNarrowWindow(t *testing.T) {
	st := newRunState()
	arrow := &recording.Strategy{CSS: "button.carousel-next"}

	st.noteExecuted(clickAt(1000, arrow))

	// 600ms apart: paging clicks on a carousel arrow replay.
	_, dup := st.isDuplicate(clickAt(1600, arrow))
	assert.False(t, dup)

	// 200ms apart is still too fast even for a carousel.
	_, dup = st.isDuplicate(clickAt(1200, arrow))
	assert.True(t, dup)
}

func TestCarouselConsecutiveCap(t *testing.T) {
	st := newRunState()
	arrow := &recording.Strategy{Label: "Next slide"}

	ts := int64(0)
	for i := 0; i < carouselConsecutiveCap; i++ {
		ts += 600
		a := clickAt(ts, arrow)
		_, dup := st.isDuplicate(a)
		assert.False(t, dup, "click %d should replay", i+1)
		st.noteExecuted(a)
	}

	reason, dup := st.isDuplicate(clickAt(ts+600, arrow))
	assert.True(t, dup)
	assert.Contains(t, reason, "cap")
}

func TestDifferentTargetsNeverDuplicate(t *testing.T) {
	st := newRunState()
	st.noteExecuted(clickAt(1000, &recording.Strategy{ID: "one"}))

	_, dup := st.isDuplicate(clickAt(1010, &recording.Strategy{ID: "two"}))
	assert.False(t, dup)
}

func TestDifferentKindsNeverDuplicate(t *testing.T) {
	st := newRunState()
	target := &recording.Strategy{ID: "field"}
	st.noteExecuted(clickAt(1000, target))

	hover := &recording.Action{Timestamp: 1010, Kind: recording.KindHover, Strategy: target}
	_, dup := st.isDuplicate(hover)
	assert.False(t, dup)
}

func TestIsCarouselControl(t *testing.T) {
	assert.True(t, isCarouselControl(&recording.Strategy{CSS: ".swiper-button-next"}))
	assert.True(t, isCarouselControl(&recording.Strategy{Label: "Previous"}))
	assert.True(t, isCarouselControl(&recording.Strategy{ID: "hero-slider-arrow"}))
	assert.False(t, isCarouselControl(&recording.Strategy{ID: "checkout"}))
	assert.False(t, isCarouselControl(nil))
}

func TestModalTracking(t *testing.T) {
	st := newRunState()

	// Untracked modals are treated as open.
	assert.True(t, st.modalOpen("newsletter"))

	st.setModal("newsletter", true)
	assert.True(t, st.modalOpen("newsletter"))

	st.setModal("newsletter", false)
	assert.False(t, st.modalOpen("newsletter"))
}

func TestGroupCompletion(t *testing.T) {
	st := newRunState()
	a := &recording.Action{Context: &recording.ActionContext{Group: "signup"}}

	assert.False(t, st.groupComplete(a))
	st.markGroupComplete("signup")
	assert.True(t, st.groupComplete(a))

	assert.False(t, st.groupComplete(&recording.Action{}))
}

func TestTerminalNavigationTracking(t *testing.T) {
	st := newRunState()
	st.noteTerminalNavigation("submit-order")

	assert.True(t, st.dependencyNavigatedAway([]string{"submit-order"}))
	assert.False(t, st.dependencyNavigatedAway([]string{"something-else"}))
	assert.False(t, st.dependencyNavigatedAway(nil))
}

func TestSkipValidationIsOneShot(t *testing.T) {
	st := newRunState()
	st.skipValidation = true
	assert.True(t, st.consumeSkipValidation())
	assert.False(t, st.consumeSkipValidation())
}

func TestModeMultiplier(t *testing.T) {
	assert.Equal(t, float64(0), ModeInstant.Multiplier())
	assert.Equal(t, 0.25, ModeFast.Multiplier())
	assert.Equal(t, float64(1), ModeRealistic.Multiplier())
}
