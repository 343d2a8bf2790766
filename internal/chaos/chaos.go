package chaos

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"fibpool/internal/logger"
	"fibpool/internal/worker"
)

// ErrInjected は注入された計算失敗
var ErrInjected = errors.New("injected failure")

// AttackType は障害の種類を表す
type AttackType int

const (
	AttackFail AttackType = iota
	AttackDelay
)

func (a AttackType) String() string {
	switch a {
	case AttackFail:
		return "fail"
	case AttackDelay:
		return "delay"
	default:
		return "unknown"
	}
}

// Config は障害注入の設定
type Config struct {
	FailEvery  int           // N件ごとに失敗させる（0で無効）
	FailSeqs   []int         // 失敗させるジョブのSeq
	DelayEvery int           // N件ごとに遅延させる（0で無効）
	Delay      time.Duration // 遅延時間
}

// Enabled は何らかの障害が設定されているかを返す
func (c Config) Enabled() bool {
	return c.FailEvery > 0 || len(c.FailSeqs) > 0 || (c.DelayEvery > 0 && c.Delay > 0)
}

// Validate は設定を検証する
func (c Config) Validate() error {
	if c.FailEvery < 0 {
		return fmt.Errorf("fail_every must be non-negative")
	}
	if c.DelayEvery < 0 {
		return fmt.Errorf("delay_every must be non-negative")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay must be non-negative")
	}
	for _, seq := range c.FailSeqs {
		if seq < 0 {
			return fmt.Errorf("fail_seqs must be non-negative, got %d", seq)
		}
	}
	return nil
}

// Stats は障害注入の統計情報
type Stats struct {
	TotalAttacks uint64            `json:"total_attacks"`
	ByType       map[string]uint64 `json:"attacks_by_type"`
}

// Ensure Injector implements worker.JobChannel
var _ worker.JobChannel = (*Injector)(nil)

// Injector はJobChannelに障害を注入する
type Injector struct {
	config Config
	inner  worker.JobChannel

	attackCount atomic.Uint64
	mu          sync.Mutex
	byType      map[AttackType]uint64
}

// Wrap は inner に障害注入を被せる
func Wrap(inner worker.JobChannel, config Config) *Injector {
	return &Injector{
		config: config,
		inner:  inner,
		byType: make(map[AttackType]uint64),
	}
}

// Do は必要に応じて障害を起こしてから inner に委譲する
func (i *Injector) Do(ctx context.Context, job worker.Job) (int64, error) {
	if i.shouldFail(job.Seq) {
		i.record(AttackFail)
		logger.Debug("chaos", "failing job %d", job.Seq)
		return 0, fmt.Errorf("job %d: %w", job.Seq, ErrInjected)
	}

	if i.shouldDelay(job.Seq) {
		i.record(AttackDelay)
		timer := time.NewTimer(i.config.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		case <-timer.C:
		}
	}

	return i.inner.Do(ctx, job)
}

func (i *Injector) shouldFail(seq int) bool {
	if i.config.FailEvery > 0 && (seq+1)%i.config.FailEvery == 0 {
		return true
	}
	return slices.Contains(i.config.FailSeqs, seq)
}

func (i *Injector) shouldDelay(seq int) bool {
	return i.config.Delay > 0 && i.config.DelayEvery > 0 && (seq+1)%i.config.DelayEvery == 0
}

func (i *Injector) record(a AttackType) {
	i.attackCount.Add(1)
	i.mu.Lock()
	i.byType[a]++
	i.mu.Unlock()
}

// AttackCount は注入した障害の総数を返す
func (i *Injector) AttackCount() uint64 {
	return i.attackCount.Load()
}

// Stats は統計情報を返す
func (i *Injector) Stats() Stats {
	i.mu.Lock()
	defer i.mu.Unlock()

	byType := make(map[string]uint64, len(i.byType))
	for a, n := range i.byType {
		byType[a.String()] = n
	}
	return Stats{
		TotalAttacks: i.attackCount.Load(),
		ByType:       byType,
	}
}
