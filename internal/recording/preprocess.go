package recording

import (
	"fmt"
	"sort"
)

// Warning is a non-fatal finding produced while preparing a recording for
// replay. Warnings never block execution.
type Warning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	ActionID string `json:"actionId,omitempty"`
	Index    int    `json:"index"`
}

const (
	WarnUnrecordedNavigation = "unrecorded_navigation"
	WarnMissingPrerequisite  = "missing_prerequisite"
	WarnMissingStrategy      = "missing_strategy"
	WarnSelectNoCriteria     = "select_no_criteria"
	WarnOutOfOrder           = "out_of_order_timestamps"
	WarnDuplicateInput       = "duplicate_input_dropped"
)

// Preprocess transforms a raw recording into an execution-ready copy:
// structural analysis, missing-prerequisite detection (diagnostic only),
// timestamp normalization, chronological sort, and input deduplication.
// The input recording is never mutated, and the result is deterministic.
func Preprocess(rec *Recording) (*Recording, []Warning) {
	out := rec.Clone()
	warnings := make([]Warning, 0)

	warnings = append(warnings, analyzeStructure(out.Actions)...)
	warnings = append(warnings, detectMissingPrerequisites(out.Actions)...)

	normalizeTimestamps(out.Actions)
	warnings = append(warnings, sortChronological(out.Actions)...)

	var dedupWarnings []Warning
	out.Actions, dedupWarnings = deduplicateInputs(out.Actions)
	warnings = append(warnings, dedupWarnings...)

	return out, warnings
}

// canNavigate reports whether an action kind is able to change the page URL
// as a side effect.
func canNavigate(kind ActionKind) bool {
	switch kind {
	case KindClick, KindSubmit, KindNavigation:
		return true
	}
	return false
}

// analyzeStructure flags recording anomalies: URL changes with no action that
// could have caused them, element actions without any lookup strategy, and
// select actions missing all selection criteria.
func analyzeStructure(actions []Action) []Warning {
	var warnings []Warning
	for i, a := range actions {
		switch a.Kind {
		case KindClick, KindInput, KindSelect, KindHover, KindSubmit:
			if a.Strategy == nil || len(a.Strategy.Priority) == 0 {
				warnings = append(warnings, Warning{
					Code:     WarnMissingStrategy,
					Message:  fmt.Sprintf("%s action has no element lookup strategy", a.Kind),
					ActionID: a.ID,
					Index:    i,
				})
			}
		}
		if a.Kind == KindSelect {
			if a.Select == nil || (a.Select.Value == "" && a.Select.Label == "" && a.Select.Index == nil) {
				warnings = append(warnings, Warning{
					Code:     WarnSelectNoCriteria,
					Message:  "select action captured without value, label, or index",
					ActionID: a.ID,
					Index:    i,
				})
			}
		}
		if i == 0 {
			continue
		}
		prev := actions[i-1]
		if a.URL != "" && prev.URL != "" && a.URL != prev.URL && !canNavigate(prev.Kind) && a.Kind != KindNavigation {
			warnings = append(warnings, Warning{
				Code:     WarnUnrecordedNavigation,
				Message:  fmt.Sprintf("page URL changed from %s to %s with no recorded navigation", prev.URL, a.URL),
				ActionID: a.ID,
				Index:    i,
			})
		}
	}
	return warnings
}

// detectMissingPrerequisites scans action-to-action URL deltas for implied,
// unrecorded UI steps and reports the insertion points. It only diagnoses;
// the action list is never modified.
func detectMissingPrerequisites(actions []Action) []Warning {
	var warnings []Warning
	for i := 1; i < len(actions); i++ {
		prev, cur := actions[i-1], actions[i]
		if cur.URL == "" || prev.URL == "" || cur.URL == prev.URL {
			continue
		}
		// A non-navigating action followed by a URL change implies a step the
		// capture missed (e.g. a click on a link that was not recorded).
		if !canNavigate(prev.Kind) {
			warnings = append(warnings, Warning{
				Code:     WarnMissingPrerequisite,
				Message:  fmt.Sprintf("an unrecorded step is implied before action %s to reach %s", cur.ID, cur.URL),
				ActionID: cur.ID,
				Index:    i,
			})
		}
	}
	return warnings
}

// normalizeTimestamps rebases absolute capture timestamps to milliseconds
// from the recording start. Already-relative recordings are left unchanged.
func normalizeTimestamps(actions []Action) {
	if len(actions) == 0 {
		return
	}
	base := actions[0].Timestamp
	for _, a := range actions {
		if a.Timestamp < base {
			base = a.Timestamp
		}
	}
	if base == 0 {
		return
	}
	for i := range actions {
		actions[i].Timestamp -= base
	}
}

// sortChronological stably sorts actions by timestamp and warns when the
// recorded order disagreed with timestamp order.
func sortChronological(actions []Action) []Warning {
	ordered := sort.SliceIsSorted(actions, func(i, j int) bool {
		return actions[i].Timestamp < actions[j].Timestamp
	})
	if ordered {
		return nil
	}
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Timestamp < actions[j].Timestamp
	})
	return []Warning{{
		Code:    WarnOutOfOrder,
		Message: "recorded action order disagreed with timestamps; actions were re-sorted",
	}}
}

// fieldIdentity computes the deduplication key for an input action: the
// capture URL plus the strongest available field identifier.
func fieldIdentity(a Action) string {
	s := a.Strategy
	switch {
	case s != nil && s.ID != "":
		return a.URL + "|id:" + s.ID
	case s != nil && s.Name != "":
		return a.URL + "|name:" + s.Name
	case s != nil && s.CSS != "":
		return a.URL + "|css:" + s.CSS
	default:
		return fmt.Sprintf("%s|%s:%d", a.URL, a.Kind, a.Timestamp)
	}
}

// deduplicateInputs keeps, for every (URL, field) pair, only the input action
// with the latest timestamp: the value the user ended up with. Intermediate
// keystrokes captured as separate input actions are dropped.
func deduplicateInputs(actions []Action) ([]Action, []Warning) {
	latest := make(map[string]int) // identity -> index of surviving action
	for i, a := range actions {
		if a.Kind != KindInput {
			continue
		}
		id := fieldIdentity(a)
		if prev, ok := latest[id]; !ok || actions[i].Timestamp >= actions[prev].Timestamp {
			latest[id] = i
		}
	}

	var warnings []Warning
	out := make([]Action, 0, len(actions))
	for i, a := range actions {
		if a.Kind == KindInput {
			if keep, ok := latest[fieldIdentity(a)]; ok && keep != i {
				warnings = append(warnings, Warning{
					Code:     WarnDuplicateInput,
					Message:  fmt.Sprintf("superseded input on the same field dropped in favor of action %s", actions[keep].ID),
					ActionID: a.ID,
					Index:    i,
				})
				continue
			}
		}
		out = append(out, a)
	}
	return out, warnings
}
