package sink

import (
	"context"
	"errors"
	"iter"
	"sync"
)

// ErrClosed はクローズ後にEnqueueされたことを表す
var ErrClosed = errors.New("enqueue on closed sink")

// Record はワーカー1件分の計算結果
type Record struct {
	WorkerID int   `json:"worker_id"`
	Seq      int   `json:"seq"`
	Value    int64 `json:"value"`
}

// Sink は結果キュー
type Sink struct {
	mu       sync.Mutex
	queue    []Record
	capacity int
	closed   bool

	// changed は状態が変わるたびにcloseされ、作り直される
	changed chan struct{}

	enqueued  uint64
	delivered uint64
}

// New は新しいSinkを作成する
// capacity が 0 以下の場合は上限なし
func New(capacity int) *Sink {
	if capacity < 0 {
		capacity = 0
	}
	return &Sink{
		capacity: capacity,
		changed:  make(chan struct{}),
	}
}

// notifyLocked は待機中のゴルーチンを起こす（mu保持中に呼ぶ）
func (s *Sink) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Sink) lenLocked() int {
	return len(s.queue)
}

// Enqueue はレコードを追加する
// 上限付きで満杯の場合は空きが出るまで待つ
func (s *Sink) Enqueue(ctx context.Context, rec Record) error {
	s.mu.Lock()
	for {
		if s.closed {
			s.mu.Unlock()
			return ErrClosed
		}
		if s.capacity == 0 || s.lenLocked() < s.capacity {
			break
		}
		wait := s.changed
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
		s.mu.Lock()
	}

	s.queue = append(s.queue, rec)
	s.enqueued++
	s.notifyLocked()
	s.mu.Unlock()
	return nil
}

// Close はSinkをクローズする（冪等）
// キュー済みのレコードは破棄しない
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.notifyLocked()
}

// next はレコードを1件取り出す
// 空かつクローズ済みなら ok=false
func (s *Sink) next() (Record, bool) {
	s.mu.Lock()
	for s.lenLocked() == 0 {
		if s.closed {
			s.mu.Unlock()
			return Record{}, false
		}
		wait := s.changed
		s.mu.Unlock()
		<-wait
		s.mu.Lock()
	}

	rec := s.queue[0]
	s.queue = s.queue[1:]
	s.delivered++
	s.notifyLocked()
	s.mu.Unlock()
	return rec, true
}

// Drain はレコードを到着順に返すシーケンス
// 消費者は1つだけを想定する
func (s *Sink) Drain() iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for {
			rec, ok := s.next()
			if !ok {
				return
			}
			if !yield(rec) {
				return
			}
		}
	}
}

// Len は未配信のレコード数を返す
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lenLocked()
}

// Closed はクローズ済みかどうかを返す
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Capacity は上限を返す（0は上限なし）
func (s *Sink) Capacity() int {
	return s.capacity
}

// Stats はSinkの統計
type Stats struct {
	Enqueued  uint64
	Delivered uint64
	Pending   int
	Closed    bool
}

// Stats は現在の統計を返す
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Enqueued:  s.enqueued,
		Delivered: s.delivered,
		Pending:   s.lenLocked(),
		Closed:    s.closed,
	}
}
