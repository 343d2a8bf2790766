// Package collector drains the result sink on a single goroutine and
// reports every record in arrival order.
package collector

import (
	"fmt"
	"io"
	"sync"

	"fibpool/internal/logger"
	"fibpool/internal/progress"
	"fibpool/internal/sink"
)

var log = logger.For("collector")

// Option はCollectorの設定
type Option func(*Collector)

// WithObserver は完了通知の受け取り手を追加する
func WithObserver(o progress.Observer) Option {
	return func(c *Collector) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithRecordHook はレコードごとに呼ぶ関数を追加する
func WithRecordHook(fn func(sink.Record)) Option {
	return func(c *Collector) {
		if fn != nil {
			c.hooks = append(c.hooks, fn)
		}
	}
}

// Collector は結果を1件ずつ報告する
type Collector struct {
	source    *sink.Sink
	out       io.Writer
	observers []progress.Observer
	hooks     []func(sink.Record)

	mu      sync.Mutex
	started bool
	count   int
	done    chan struct{}
}

// New は新しいCollectorを作成する
// out が nil の場合は行を出力しない
func New(source *sink.Sink, out io.Writer, opts ...Option) *Collector {
	c := &Collector{
		source: source,
		out:    out,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start は別ゴルーチンで Run を開始する（2回目以降は何もしない）
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}
	c.started = true
	go c.run()
}

// Run はSinkが閉じられて空になるまで報告を続け、件数を返す
func (c *Collector) Run() int {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return c.Wait()
	}
	c.started = true
	c.mu.Unlock()

	c.run()
	return c.Count()
}

func (c *Collector) run() {
	defer close(c.done)

	for rec := range c.source.Drain() {
		c.report(rec)
	}
	log.Debug("drained %d records", c.Count())
}

func (c *Collector) report(rec sink.Record) {
	if c.out != nil {
		if _, err := fmt.Fprintf(c.out, "%d, %d\n", rec.WorkerID, rec.Value); err != nil {
			log.Warn("write failed: %v", err)
		}
	}

	c.mu.Lock()
	c.count++
	c.mu.Unlock()

	for _, hook := range c.hooks {
		hook(rec)
	}
	for _, o := range c.observers {
		o.OnJobCompleted(rec.WorkerID)
	}
}

// Wait はCollectorの終了を待ち、件数を返す
func (c *Collector) Wait() int {
	<-c.done
	return c.Count()
}

// Done は終了時にcloseされるチャネルを返す
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Count は報告済みの件数を返す
func (c *Collector) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}
