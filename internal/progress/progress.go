// Package progress aggregates job completion notifications into per-worker
// and overall completion fractions.
//
// The collector is the only caller of OnJobCompleted; a Tracker is owned by
// whoever observes the run (the CLI, the web UI) and is never written by
// worker code.
package progress

import (
	"sync"
)

// Observer はジョブ完了通知を受け取る
type Observer interface {
	OnJobCompleted(workerID int)
}

// ObserverFunc は関数をObserverとして使うためのアダプタ
type ObserverFunc func(workerID int)

// OnJobCompleted はfを呼ぶ
func (f ObserverFunc) OnJobCompleted(workerID int) {
	f(workerID)
}

// Tracker はワーカー別・全体の進捗を集計する
type Tracker struct {
	mu        sync.RWMutex
	assigned  []int
	completed []int
	total     int
	done      int
	finished  chan struct{}
}

// NewTracker はワーカーごとの割り当て数から Tracker を作成する
func NewTracker(assigned []int) *Tracker {
	t := &Tracker{
		assigned:  append([]int(nil), assigned...),
		completed: make([]int, len(assigned)),
		finished:  make(chan struct{}),
	}
	for _, n := range assigned {
		t.total += n
	}
	if t.total == 0 {
		close(t.finished)
	}
	return t
}

// OnJobCompleted は1件の完了を記録する
// 範囲外のワーカーIDは無視する
func (t *Tracker) OnJobCompleted(workerID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if workerID < 0 || workerID >= len(t.completed) {
		return
	}
	t.completed[workerID]++
	t.done++
	if t.done == t.total {
		close(t.finished)
	}
}

// WorkerFraction はワーカーの進捗（完了数/割り当て数）を返す
// 割り当てが0件のワーカーは1.0
func (t *Tracker) WorkerFraction(workerID int) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if workerID < 0 || workerID >= len(t.assigned) {
		return 0
	}
	return fraction(t.completed[workerID], t.assigned[workerID])
}

// Overall は全体の進捗（完了数合計/総ジョブ数）を返す
func (t *Tracker) Overall() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fraction(t.done, t.total)
}

// Done は全ジョブが完了したかどうかを返す
func (t *Tracker) Done() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.done >= t.total
}

// Finished は全ジョブ完了時にcloseされるチャネルを返す
func (t *Tracker) Finished() <-chan struct{} {
	return t.finished
}

// Completed はワーカーの完了数を返す
func (t *Tracker) Completed(workerID int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if workerID < 0 || workerID >= len(t.completed) {
		return 0
	}
	return t.completed[workerID]
}

// WorkerProgress はワーカー1つの進捗
type WorkerProgress struct {
	WorkerID  int     `json:"worker_id"`
	Completed int     `json:"completed"`
	Assigned  int     `json:"assigned"`
	Fraction  float64 `json:"fraction"`
}

// Snapshot は進捗のスナップショット
type Snapshot struct {
	Workers   []WorkerProgress `json:"workers"`
	Completed int              `json:"completed"`
	Total     int              `json:"total"`
	Overall   float64          `json:"overall"`
	Done      bool             `json:"done"`
}

// Snapshot は現在の進捗を返す
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		Workers:   make([]WorkerProgress, len(t.assigned)),
		Completed: t.done,
		Total:     t.total,
		Overall:   fraction(t.done, t.total),
		Done:      t.done >= t.total,
	}
	for w := range t.assigned {
		snap.Workers[w] = WorkerProgress{
			WorkerID:  w,
			Completed: t.completed[w],
			Assigned:  t.assigned[w],
			Fraction:  fraction(t.completed[w], t.assigned[w]),
		}
	}
	return snap
}

func fraction(done, total int) float64 {
	if total == 0 {
		return 1
	}
	return float64(done) / float64(total)
}
