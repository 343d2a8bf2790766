package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fibpool/internal/logger"
	"fibpool/internal/worker"
)

var (
	// ErrSeqMismatch は返信のseqが送信したジョブと一致しないことを表す
	ErrSeqMismatch = errors.New("reply does not match job")
	// ErrBroken は以前の失敗で接続が使えなくなったことを表す
	ErrBroken = errors.New("remote connection is broken")
)

// RemoteError はワーカープロセス側の計算エラー
type RemoteError struct {
	Addr    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Addr, e.Message)
}

// Ensure Remote implements worker.JobChannel
var _ worker.JobChannel = (*Remote)(nil)

// Remote はwebsocket越しにワーカープロセスで計算する
type Remote struct {
	addr string

	mu     sync.Mutex
	conn   *websocket.Conn
	broken bool
}

// Dial はワーカープロセスに接続する
func Dial(ctx context.Context, addr string) (*Remote, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	logger.Debug("", "connected to remote worker %s", addr)
	return &Remote{addr: addr, conn: conn}, nil
}

// Addr は接続先を返す
func (r *Remote) Addr() string {
	return r.addr
}

// Do はジョブを送信し、返信を待つ
func (r *Remote) Do(ctx context.Context, job worker.Job) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.broken {
		return 0, ErrBroken
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// ctx の終了で読み書きを打ち切る
	stop := context.AfterFunc(ctx, func() {
		_ = r.conn.SetReadDeadline(time.Now())
		_ = r.conn.SetWriteDeadline(time.Now())
	})
	defer stop()

	// 期限は ctx 側で扱う。接続の期限は AfterFunc だけが設定する
	_ = r.conn.SetWriteDeadline(time.Time{})
	_ = r.conn.SetReadDeadline(time.Time{})

	if err := r.conn.WriteJSON(request{Seq: job.Seq, N: job.Input}); err != nil {
		r.broken = true
		return 0, r.wrap(ctx, err)
	}

	var resp response
	if err := r.conn.ReadJSON(&resp); err != nil {
		r.broken = true
		return 0, r.wrap(ctx, err)
	}
	if resp.Seq != job.Seq {
		r.broken = true
		return 0, fmt.Errorf("%w: sent %d, got %d", ErrSeqMismatch, job.Seq, resp.Seq)
	}
	if resp.Error != "" {
		return 0, &RemoteError{Addr: r.addr, Message: resp.Error}
	}
	return resp.Result, nil
}

func (r *Remote) wrap(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			return context.DeadlineExceeded
		}
	}
	return fmt.Errorf("remote %s: %w", r.addr, err)
}

// Close は接続を閉じる
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	_ = r.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return r.conn.Close()
}
