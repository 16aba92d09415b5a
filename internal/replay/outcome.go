package replay

import (
	"context"
	"errors"
	"strings"
)

// Sentinel errors for the failure taxonomy. Handlers wrap these with %w so
// severity classification can rely on errors.Is.
var (
	ErrElementNotFound    = errors.New("element not found")
	ErrNavigationFailure  = errors.New("navigation failed")
	ErrNavigationTimeout  = errors.New("navigation timed out")
	ErrSessionTerminated  = errors.New("browser session terminated")
	ErrFileUploadMissing  = errors.New("upload file missing")
	ErrRecordingMalformed = errors.New("recording malformed")
)

// OutcomeStatus is the result category a handler reports for one action.
type OutcomeStatus int

const (
	// OutcomeSuccess: the action executed.
	OutcomeSuccess OutcomeStatus = iota
	// OutcomeSkipped: the action was deliberately not executed.
	OutcomeSkipped
	// OutcomeExpected: a benign navigation signal interrupted the action;
	// treated as a non-error.
	OutcomeExpected
	// OutcomeRecoverable: the action failed but the run can continue.
	OutcomeRecoverable
	// OutcomeFatal: the browser session is gone; the run must stop.
	OutcomeFatal
)

// Outcome is the explicit per-action result handlers return instead of
// driving control flow through panics or raw errors.
type Outcome struct {
	Status       OutcomeStatus
	Reason       string // human-readable skip reason
	Err          error
	SelectorUsed string // selector that resolved the element, when any
}

func success(selector string) Outcome {
	return Outcome{Status: OutcomeSuccess, SelectorUsed: selector}
}

func skipped(reason string) Outcome {
	return Outcome{Status: OutcomeSkipped, Reason: reason}
}

func fromError(err error) Outcome {
	return Outcome{Status: classify(err), Err: err}
}

// classify maps an error to its severity. Session teardown is fatal, benign
// navigation interruptions are expected, everything else is recoverable.
func classify(err error) OutcomeStatus {
	if err == nil {
		return OutcomeSuccess
	}
	if isSessionTerminated(err) {
		return OutcomeFatal
	}
	if isBenignNavigationSignal(err) {
		return OutcomeExpected
	}
	return OutcomeRecoverable
}

// isSessionTerminated reports whether the error means the browser, context,
// or page was destroyed.
func isSessionTerminated(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionTerminated) {
		return true
	}
	msg := err.Error()
	for _, sig := range []string{
		"target closed",
		"browser closed",
		"target crashed",
		"session closed",
		"websocket: close",
		"connection reset",
	} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// isBenignNavigationSignal reports whether the error is the browser telling
// us a navigation tore down the execution context mid-action. The action's
// purpose (triggering that navigation) was typically achieved.
func isBenignNavigationSignal(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sig := range []string{
		"execution context destroyed",
		"execution context was destroyed",
		"frame detached",
		"net::ERR_ABORTED",
		"document unloaded",
	} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// isCancellation reports whether the error is caller-initiated cancellation,
// which is terminal but never recorded as a failure.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
