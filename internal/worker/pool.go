package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"fibpool/internal/logger"
)

// Pool はワーカー群を起動し、全員の終了を待つ
type Pool struct {
	workers []*Worker

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// NewPool は新しいワーカープールを作成する
func NewPool(workers ...*Worker) *Pool {
	return &Pool{
		workers: workers,
	}
}

// Start は全ワーカーを起動する（2回目以降は何もしない）
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	var groupCtx context.Context
	p.group, groupCtx = errgroup.WithContext(ctx)

	for _, w := range p.workers {
		p.group.Go(func() error {
			return w.Run(groupCtx)
		})
	}

	logger.Info("", "WorkerPool started with %d workers", len(p.workers))
}

// Wait は全ワーカーの終了を待ち、最初のエラーを返す
// 起動前に呼ばれた場合は nil を返す
func (p *Pool) Wait() error {
	p.mu.Lock()
	group := p.group
	cancel := p.cancel
	p.mu.Unlock()

	if group == nil {
		return nil
	}
	err := group.Wait()
	cancel()
	return err
}

// Stop は全ワーカーに停止を要求し、終了を待つ
func (p *Pool) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	err := p.Wait()
	logger.Info("", "WorkerPool stopped")
	return err
}

// NumWorkers はワーカー数を返す
func (p *Pool) NumWorkers() int {
	return len(p.workers)
}

// Processed は全ワーカーの送出済み結果数の合計を返す
func (p *Pool) Processed() int {
	total := 0
	for _, w := range p.workers {
		total += w.Processed()
	}
	return total
}
