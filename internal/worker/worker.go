package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"fibpool/internal/logger"
	"fibpool/internal/partition"
	"fibpool/internal/sink"
)

// Job はワーカーが処理するジョブ
// Seq は元のジョブ列での位置、Input は計算関数への入力
type Job struct {
	Seq   int `json:"seq"`
	Input int `json:"input"`
}

// JobChannel はジョブを計算する経路（プロセス内またはメッセージ送受信）
type JobChannel interface {
	Do(ctx context.Context, job Job) (int64, error)
}

// Emitter は結果の送り先
type Emitter interface {
	Enqueue(ctx context.Context, rec sink.Record) error
}

// Recorder は計算時間を記録する
type Recorder interface {
	RecordSuccess(workerID int, latency time.Duration)
	RecordFailure(workerID int, latency time.Duration)
}

// ComputeError はジョブの計算に失敗したことを表す
type ComputeError struct {
	WorkerID int
	Seq      int
	Input    int
	Err      error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("worker %d: job %d (input %d): %v", e.WorkerID, e.Seq, e.Input, e.Err)
}

func (e *ComputeError) Unwrap() error {
	return e.Err
}

// Option はWorkerの設定
type Option func(*Worker)

// WithDelay は処理間の待機戦略を設定する
func WithDelay(d Delay) Option {
	return func(w *Worker) {
		if d != nil {
			w.delay = d
		}
	}
}

// WithRecorder は計算時間の記録先を設定する
func WithRecorder(r Recorder) Option {
	return func(w *Worker) {
		w.recorder = r
	}
}

// Worker は割り当てられたジョブを順に処理する
type Worker struct {
	id       int
	source   partition.Source[Job]
	channel  JobChannel
	emitter  Emitter
	delay    Delay
	recorder Recorder

	processed atomic.Int64
}

// New は新しいWorkerを作成する
func New(id int, source partition.Source[Job], channel JobChannel, emitter Emitter, opts ...Option) *Worker {
	w := &Worker{
		id:      id,
		source:  source,
		channel: channel,
		emitter: emitter,
		delay:   NoDelay(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// ID はワーカーIDを返す
func (w *Worker) ID() int {
	return w.id
}

// Processed は送出済みの結果数を返す
func (w *Worker) Processed() int {
	return int(w.processed.Load())
}

// Run はジョブがなくなるまで処理する
// ctx がキャンセルされると次のジョブを取らずに戻る
func (w *Worker) Run(ctx context.Context) error {
	log := logger.ForWorker(w.id)
	log.Debug("started")

	for {
		if err := ctx.Err(); err != nil {
			log.Debug("stopped after %d jobs: %v", w.Processed(), err)
			return err
		}

		job, ok := w.source.Next()
		if !ok {
			break
		}

		start := time.Now()
		value, err := w.channel.Do(ctx, job)
		latency := time.Since(start)
		if err != nil {
			if w.recorder != nil {
				w.recorder.RecordFailure(w.id, latency)
			}
			log.Error("job %d failed: %v", job.Seq, err)
			return &ComputeError{WorkerID: w.id, Seq: job.Seq, Input: job.Input, Err: err}
		}
		if w.recorder != nil {
			w.recorder.RecordSuccess(w.id, latency)
		}

		rec := sink.Record{WorkerID: w.id, Seq: job.Seq, Value: value}
		if err := w.emitter.Enqueue(ctx, rec); err != nil {
			return fmt.Errorf("worker %d: emit job %d: %w", w.id, job.Seq, err)
		}
		w.processed.Add(1)
		log.Debug("job %d -> %d (%v)", job.Seq, value, latency)

		if err := w.delay.Pause(ctx); err != nil {
			return err
		}
	}

	log.Debug("finished %d jobs", w.Processed())
	return nil
}
