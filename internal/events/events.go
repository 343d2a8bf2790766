// Package events provides run lifecycle and job completion notifications.
package events

import "time"

// EventType はイベントの種類
type EventType string

const (
	// EventRunStarted is emitted when the coordinator launches the workers
	EventRunStarted EventType = "run_started"
	// EventStateChanged is emitted on every coordinator state transition
	EventStateChanged EventType = "state_changed"
	// EventJobCompleted is emitted once per record the collector delivers
	EventJobCompleted EventType = "job_completed"
	// EventRunFinished is emitted when a run reaches Done without error
	EventRunFinished EventType = "run_finished"
	// EventRunFailed is emitted when a run reaches Done with an error
	EventRunFailed EventType = "run_failed"
)

// AllTypes は定義済みのイベント種類を返す
func AllTypes() []EventType {
	return []EventType{EventRunStarted, EventStateChanged, EventJobCompleted, EventRunFinished, EventRunFailed}
}

// Terminal は実行の終了を表す種類かどうかを返す
func (t EventType) Terminal() bool {
	return t == EventRunFinished || t == EventRunFailed
}

// Event はイベント
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id"`
	WorkerID  int       `json:"worker_id"`
	Data      EventData `json:"data,omitempty"`
}

// EventData はイベント固有のデータ
type EventData struct {
	State     string `json:"state,omitempty"`
	Jobs      int    `json:"jobs,omitempty"`
	Workers   int    `json:"workers,omitempty"`
	Seq       int    `json:"seq,omitempty"`
	Value     int64  `json:"value,omitempty"`
	Completed int    `json:"completed,omitempty"`
	Elapsed   string `json:"elapsed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// NewRunStartedEvent は実行開始イベントを作成する
func NewRunStartedEvent(runID string, jobs, workers int) Event {
	return Event{
		Type:      EventRunStarted,
		Timestamp: time.Now(),
		RunID:     runID,
		WorkerID:  -1,
		Data: EventData{
			Jobs:    jobs,
			Workers: workers,
		},
	}
}

// NewStateChangedEvent は状態遷移イベントを作成する
func NewStateChangedEvent(runID string, state string) Event {
	return Event{
		Type:      EventStateChanged,
		Timestamp: time.Now(),
		RunID:     runID,
		WorkerID:  -1,
		Data: EventData{
			State: state,
		},
	}
}

// NewJobCompletedEvent はジョブ完了イベントを作成する
// completed はそのワーカーの完了数
func NewJobCompletedEvent(runID string, workerID, seq int, value int64, completed int) Event {
	return Event{
		Type:      EventJobCompleted,
		Timestamp: time.Now(),
		RunID:     runID,
		WorkerID:  workerID,
		Data: EventData{
			Seq:       seq,
			Value:     value,
			Completed: completed,
		},
	}
}

// NewRunFinishedEvent は実行完了イベントを作成する
func NewRunFinishedEvent(runID string, completed int, elapsed time.Duration) Event {
	return Event{
		Type:      EventRunFinished,
		Timestamp: time.Now(),
		RunID:     runID,
		WorkerID:  -1,
		Data: EventData{
			Completed: completed,
			Elapsed:   elapsed.String(),
		},
	}
}

// NewRunFailedEvent は実行失敗イベントを作成する
func NewRunFailedEvent(runID string, completed int, elapsed time.Duration, err error) Event {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	return Event{
		Type:      EventRunFailed,
		Timestamp: time.Now(),
		RunID:     runID,
		WorkerID:  -1,
		Data: EventData{
			Completed: completed,
			Elapsed:   elapsed.String(),
			Error:     errMsg,
		},
	}
}
