package worker

import (
	"context"
	"math/rand"
	"time"
)

// Delay はジョブ間の待機戦略
// 待機は実行の混ざり方にだけ影響し、結果には影響しない
type Delay interface {
	Pause(ctx context.Context) error
}

// DelayFunc は関数をDelayとして使うためのアダプタ
type DelayFunc func(ctx context.Context) error

// Pause はfを呼ぶ
func (f DelayFunc) Pause(ctx context.Context) error {
	return f(ctx)
}

// NoDelay は待機しない
func NoDelay() Delay {
	return DelayFunc(func(ctx context.Context) error {
		return nil
	})
}

// Sleep は毎回dだけ待機する
func Sleep(d time.Duration) Delay {
	if d <= 0 {
		return NoDelay()
	}
	return DelayFunc(func(ctx context.Context) error {
		return sleepContext(ctx, d)
	})
}

// Jitter は [base, base+spread) の範囲でランダムに待機する
func Jitter(base, spread time.Duration) Delay {
	if spread <= 0 {
		return Sleep(base)
	}
	return DelayFunc(func(ctx context.Context) error {
		return sleepContext(ctx, base+time.Duration(rand.Int63n(int64(spread))))
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
