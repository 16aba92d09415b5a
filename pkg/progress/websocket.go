package progress

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"webreplay/internal/replay"
)

const wsWriteTimeout = 5 * time.Second

// Event is one progress message on the WebSocket stream.
type Event struct {
	Type      string `json:"type"` // run_started, action_started, action_succeeded, action_failed, action_skipped, run_completed
	Recording string `json:"recording,omitempty"`
	ActionID  string `json:"actionId,omitempty"`
	Index     int    `json:"index,omitempty"`
	Total     int    `json:"total,omitempty"`
	Executed  int    `json:"executed,omitempty"`
	Failed    int    `json:"failed,omitempty"`
	Status    string `json:"status,omitempty"`
	Selector  string `json:"selector,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
	TookMs    int64  `json:"tookMs,omitempty"`
	VideoPath string `json:"videoPath,omitempty"`
	At        int64  `json:"at"` // unix milliseconds
}

// WSReporter streams progress events to a WebSocket endpoint. Send failures
// are logged and the stream degrades silently; progress delivery must never
// fail a run.
type WSReporter struct {
	conn   *websocket.Conn
	logger *zap.Logger
	broken bool
}

// DialWS connects to the progress endpoint.
func DialWS(url string, logger *zap.Logger) (*WSReporter, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &WSReporter{conn: conn, logger: logger.Named("progress-ws")}, nil
}

// Close shuts the stream down cleanly.
func (w *WSReporter) Close() error {
	deadline := time.Now().Add(wsWriteTimeout)
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return w.conn.Close()
}

func (w *WSReporter) send(ev Event) {
	if w.broken {
		return
	}
	ev.At = time.Now().UnixMilli()
	_ = w.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := w.conn.WriteJSON(ev); err != nil {
		w.logger.Warn("progress stream broken, disabling", zap.Error(err))
		w.broken = true
	}
}

func (w *WSReporter) RunStarted(name string, total int) {
	w.send(Event{Type: "run_started", Recording: name, Total: total})
}

func (w *WSReporter) ActionStarted(id string, idx int) {
	w.send(Event{Type: "action_started", ActionID: id, Index: idx})
}

func (w *WSReporter) ActionSucceeded(id string, idx int, d time.Duration, selector string) {
	w.send(Event{Type: "action_succeeded", ActionID: id, Index: idx, TookMs: d.Milliseconds(), Selector: selector})
}

func (w *WSReporter) ActionFailed(id string, idx int, msg string, d time.Duration) {
	w.send(Event{Type: "action_failed", ActionID: id, Index: idx, TookMs: d.Milliseconds(), Error: msg})
}

func (w *WSReporter) ActionSkipped(id string, idx int, reason string) {
	w.send(Event{Type: "action_skipped", ActionID: id, Index: idx, Reason: reason})
}

func (w *WSReporter) RunCompleted(status replay.RunStatus, d time.Duration, executed, failed int, video string) {
	w.send(Event{Type: "run_completed", Status: string(status), TookMs: d.Milliseconds(),
		Executed: executed, Failed: failed, VideoPath: video})
}
