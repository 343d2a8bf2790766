package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fibpool/internal/compute"
	"fibpool/internal/worker"
)

// Kind はJobChannelの種類
type Kind string

const (
	KindInProcess Kind = "inprocess"
	KindRemote    Kind = "remote"
)

// ParseKind は文字列からKindを取得する
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case "", KindInProcess:
		return KindInProcess, nil
	case KindRemote:
		return KindRemote, nil
	default:
		return "", fmt.Errorf("unknown transport: %s", s)
	}
}

// Ensure InProcess implements worker.JobChannel
var _ worker.JobChannel = (*InProcess)(nil)

// InProcess はワーカーのゴルーチン内で計算する
type InProcess struct {
	fn compute.Func
}

// NewInProcess は新しいInProcessを作成する
func NewInProcess(fn compute.Func) *InProcess {
	return &InProcess{fn: fn}
}

// Do はジョブを計算する
func (p *InProcess) Do(ctx context.Context, job worker.Job) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return p.fn(job.Input)
}

// ErrNoRemoteAddrs はremote指定で接続先がないことを表す
var ErrNoRemoteAddrs = errors.New("remote transport needs at least one address")

// Open はワーカーごとのJobChannelを用意する
// remote の場合はワーカーごとに1接続を張り、接続先は addrs を順に割り当てる
// 返される close 関数で全接続を閉じる
func Open(ctx context.Context, kind Kind, fn compute.Func, addrs []string, workers int) ([]worker.JobChannel, func(), error) {
	channels := make([]worker.JobChannel, workers)

	switch kind {
	case "", KindInProcess:
		local := NewInProcess(fn)
		for w := range channels {
			channels[w] = local
		}
		return channels, func() {}, nil

	case KindRemote:
		if len(addrs) == 0 {
			return nil, nil, ErrNoRemoteAddrs
		}
		remotes := make([]*Remote, 0, workers)
		closeAll := func() {
			for _, r := range remotes {
				_ = r.Close()
			}
		}
		for w := range channels {
			r, err := Dial(ctx, addrs[w%len(addrs)])
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			remotes = append(remotes, r)
			channels[w] = r
		}
		return channels, closeAll, nil

	default:
		return nil, nil, fmt.Errorf("unknown transport: %s", kind)
	}
}

// request はワーカープロセスへのメッセージ
type request struct {
	Seq int `json:"seq"`
	N   int `json:"n"`
}

// response はワーカープロセスからの返信
type response struct {
	Seq    int    `json:"seq"`
	Result int64  `json:"result"`
	Error  string `json:"error,omitempty"`
}
