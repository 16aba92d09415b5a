package replay

import (
	"regexp"
	"time"

	"webreplay/internal/recording"
)

// Mode scales recorded inter-action timing during replay.
type Mode string

const (
	ModeInstant   Mode = "instant"
	ModeFast      Mode = "fast"
	ModeRealistic Mode = "realistic"
)

// Multiplier returns the factor applied to recorded timestamp deltas.
func (m Mode) Multiplier() float64 {
	switch m {
	case ModeInstant:
		return 0
	case ModeFast:
		return 0.25
	default:
		return 1
	}
}

// Duplicate-suppression windows over recorded timestamps. Carousel controls
// get a narrower window so legitimate rapid paging still replays, plus a cap
// on consecutive clicks so runaway repeats do not.
const (
	duplicateWindow        = 500 * time.Millisecond
	carouselWindow         = 250 * time.Millisecond
	carouselConsecutiveCap = 15
	recentNavigationWindow = 3 * time.Second
	sameInteractionWindow  = 1 * time.Second
)

// carouselPattern matches accessible labels and class names of slider and
// carousel paging controls.
var carouselPattern = regexp.MustCompile(`(?i)(carousel|slider|swiper|slick|splide|glide|flickity|next|prev(ious)?|arrow)`)

// isCarouselControl applies the carousel heuristic to an element strategy.
func isCarouselControl(s *recording.Strategy) bool {
	if s == nil {
		return false
	}
	return carouselPattern.MatchString(s.Label) ||
		carouselPattern.MatchString(s.CSS) ||
		carouselPattern.MatchString(s.ID) ||
		carouselPattern.MatchString(s.TestID)
}

// runState is the mutable state owned by exactly one run. It is never shared
// across concurrent runs.
type runState struct {
	lastExecuted     *recording.Action
	lastClickKey     string
	consecutiveHits  int // consecutive clicks on the same element
	completedGroups  map[string]bool
	modals           map[string]bool // modal id -> open
	terminalNavs     map[string]bool // terminal action id -> execution navigated away
	lastNavigationAt time.Time
	skipValidation   bool // one-shot flag
}

func newRunState() *runState {
	return &runState{
		completedGroups: make(map[string]bool),
		modals:          make(map[string]bool),
		terminalNavs:    make(map[string]bool),
	}
}

// noteTerminalNavigation records that executing the given terminal action
// moved the page somewhere else.
func (st *runState) noteTerminalNavigation(actionID string) {
	if actionID != "" {
		st.terminalNavs[actionID] = true
	}
}

// dependencyNavigatedAway reports whether any of the listed prerequisite
// actions was a terminal action whose execution navigated away.
func (st *runState) dependencyNavigatedAway(ids []string) bool {
	for _, id := range ids {
		if st.terminalNavs[id] {
			return true
		}
	}
	return false
}

// isDuplicate reports whether the action repeats the immediately preceding
// one (same kind, same target) within the suppression window of recorded
// time. Carousel controls use the narrower window and the consecutive cap.
func (st *runState) isDuplicate(a *recording.Action) (string, bool) {
	if st.lastExecuted == nil || a.Strategy == nil {
		return "", false
	}
	if a.Kind != st.lastExecuted.Kind {
		return "", false
	}
	key := a.Strategy.Key()
	if key == "" || key != st.lastExecuted.Strategy.Key() {
		return "", false
	}
	gap := time.Duration(a.Timestamp-st.lastExecuted.Timestamp) * time.Millisecond

	if a.Kind == recording.KindClick && isCarouselControl(a.Strategy) {
		if st.consecutiveHits >= carouselConsecutiveCap {
			return "carousel click cap reached", true
		}
		if gap < carouselWindow {
			return "repeated carousel click inside suppression window", true
		}
		return "", false
	}

	if gap < duplicateWindow {
		return "duplicate of previous action on the same element", true
	}
	return "", false
}

// noteExecuted records the action as the most recently executed one.
func (st *runState) noteExecuted(a *recording.Action) {
	if a.Kind == recording.KindClick && a.Strategy != nil {
		key := a.Strategy.Key()
		if key == st.lastClickKey {
			st.consecutiveHits++
		} else {
			st.consecutiveHits = 1
		}
		st.lastClickKey = key
	} else {
		st.consecutiveHits = 0
	}
	st.lastExecuted = a
}

// noteNavigation records that the page navigated just now.
func (st *runState) noteNavigation(at time.Time) {
	st.lastNavigationAt = at
}

// navigatedRecently reports whether a navigation completed within the
// recent-navigation window.
func (st *runState) navigatedRecently(now time.Time) bool {
	return !st.lastNavigationAt.IsZero() && now.Sub(st.lastNavigationAt) < recentNavigationWindow
}

// consumeSkipValidation returns and clears the one-shot validation skip.
func (st *runState) consumeSkipValidation() bool {
	v := st.skipValidation
	st.skipValidation = false
	return v
}

// groupComplete reports whether an action's group already reached its
// success flow.
func (st *runState) groupComplete(a *recording.Action) bool {
	if a.Context == nil || a.Context.Group == "" {
		return false
	}
	return st.completedGroups[a.Context.Group]
}

// markGroupComplete records a group's success flow as reached.
func (st *runState) markGroupComplete(group string) {
	if group != "" {
		st.completedGroups[group] = true
	}
}

// modalOpen reports the tracked state of a modal. Untracked modals are
// treated as open: the recording only contains actions that were possible at
// capture time, and the modal's lifecycle actions may predate the capture.
func (st *runState) modalOpen(id string) bool {
	open, tracked := st.modals[id]
	return !tracked || open
}

func (st *runState) setModal(id string, open bool) {
	if id != "" {
		st.modals[id] = open
	}
}
