package replay

import "time"

// Reporter receives ordered progress events during a run. Calls are
// synchronous and always arrive from the single goroutine driving the run.
type Reporter interface {
	RunStarted(recordingName string, totalActions int)
	ActionStarted(actionID string, index int)
	ActionSucceeded(actionID string, index int, duration time.Duration, selectorUsed string)
	ActionFailed(actionID string, index int, errorMessage string, duration time.Duration)
	ActionSkipped(actionID string, index int, reason string)
	RunCompleted(status RunStatus, duration time.Duration, executed, failed int, videoPath string)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) RunStarted(string, int)                                  {}
func (NopReporter) ActionStarted(string, int)                               {}
func (NopReporter) ActionSucceeded(string, int, time.Duration, string)      {}
func (NopReporter) ActionFailed(string, int, string, time.Duration)         {}
func (NopReporter) ActionSkipped(string, int, string)                       {}
func (NopReporter) RunCompleted(RunStatus, time.Duration, int, int, string) {}

// MultiReporter fans every event out to each reporter in order.
func MultiReporter(reporters ...Reporter) Reporter {
	return multiReporter(reporters)
}

type multiReporter []Reporter

func (m multiReporter) RunStarted(name string, total int) {
	for _, r := range m {
		r.RunStarted(name, total)
	}
}

func (m multiReporter) ActionStarted(id string, idx int) {
	for _, r := range m {
		r.ActionStarted(id, idx)
	}
}

func (m multiReporter) ActionSucceeded(id string, idx int, d time.Duration, selector string) {
	for _, r := range m {
		r.ActionSucceeded(id, idx, d, selector)
	}
}

func (m multiReporter) ActionFailed(id string, idx int, msg string, d time.Duration) {
	for _, r := range m {
		r.ActionFailed(id, idx, msg, d)
	}
}

func (m multiReporter) ActionSkipped(id string, idx int, reason string) {
	for _, r := range m {
		r.ActionSkipped(id, idx, reason)
	}
}

func (m multiReporter) RunCompleted(status RunStatus, d time.Duration, executed, failed int, video string) {
	for _, r := range m {
		r.RunCompleted(status, d, executed, failed, video)
	}
}
