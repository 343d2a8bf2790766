package transport

import (
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"fibpool/internal/compute"
	"fibpool/internal/logger"
)

// Handler はリモートワーカーのサーバー側
// 接続ごとにジョブを1件ずつ受け取り、計算して返信する
type Handler struct {
	fn       compute.Func
	upgrader websocket.Upgrader

	connections atomic.Int64
	served      atomic.Uint64
}

// NewHandler は新しいHandlerを作成する
func NewHandler(fn compute.Func) *Handler {
	return &Handler{
		fn: fn,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// ServeHTTP は接続をwebsocketにアップグレードして処理する
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("remote", "upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	h.connections.Add(1)
	defer h.connections.Add(-1)
	logger.Info("remote", "coordinator connected from %s", r.RemoteAddr)

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("remote", "connection from %s ended: %v", r.RemoteAddr, err)
			}
			return
		}

		resp := response{Seq: req.Seq}
		value, err := h.fn(req.N)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = value
		}

		if err := conn.WriteJSON(resp); err != nil {
			logger.Warn("remote", "reply to %s failed: %v", r.RemoteAddr, err)
			return
		}
		h.served.Add(1)
	}
}

// Connections は現在の接続数を返す
func (h *Handler) Connections() int {
	return int(h.connections.Load())
}

// Served は処理済みジョブ数を返す
func (h *Handler) Served() uint64 {
	return h.served.Load()
}
