package api

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"fibpool/internal/coordinator"
	"fibpool/internal/events"
	"fibpool/internal/logger"
	"fibpool/internal/progress"
	"fibpool/internal/sink"
	"fibpool/internal/store"
)

//go:embed static/*
var staticFiles embed.FS

// History は実行履歴の保存先
type History interface {
	SaveRun(ctx context.Context, r *coordinator.Result) error
	ListRuns(ctx context.Context, limit int) ([]*store.Run, error)
	GetRun(ctx context.Context, id string) (*store.Run, error)
	Records(ctx context.Context, id string) ([]sink.Record, error)
}

// Server はAPIサーバー
type Server struct {
	addr    string
	base    coordinator.Config
	bus     *events.Bus
	history History

	mu        sync.RWMutex
	running   bool
	engine    *coordinator.Engine
	cancel    context.CancelFunc
	last      *coordinator.Result
	done      chan struct{}
	wsClients map[*websocket.Conn]bool

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
// base はリクエストで上書きされない項目の既定値
func NewServer(addr string, base coordinator.Config) *Server {
	return &Server{
		addr:      addr,
		base:      base,
		bus:       events.NewBus(),
		wsClients: make(map[*websocket.Conn]bool),
	}
}

// SetHistory は実行履歴の保存先を設定する
func (s *Server) SetHistory(h History) {
	s.history = h
}

// Bus はイベントバスを返す
func (s *Server) Bus() *events.Bus {
	return s.bus
}

// Router はルーティング済みのハンドラを返す
func (s *Server) Router() (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(requestLogger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/progress", s.handleProgress)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/presets", s.handlePresets)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleRunList)
			r.Post("/", s.handleRunStart)
			r.Post("/stop", s.handleRunStop)
			r.Get("/{id}", s.handleRunGet)
		})
	})

	// WebSocket
	r.Handle("/ws", websocket.Handler(s.handleWebSocket))

	// Static files
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("failed to get static files: %w", err)
	}
	r.Handle("/*", http.FileServer(http.FS(staticFS)))

	return r, nil
}

// Start はサーバーを開始する
func (s *Server) Start(ctx context.Context) error {
	handler, err := s.Router()
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// バックグラウンドで進捗を配信
	go s.broadcastLoop(ctx)

	logger.Info("api", "API Server starting on http://%s", s.addr)

	go func() {
		<-ctx.Done()
		s.stopRun()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.bus.Close()
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("api", "%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// LastRun は直前の実行の要約
type LastRun struct {
	RunID     string `json:"run_id"`
	Name      string `json:"name"`
	Delivered int    `json:"delivered"`
	Jobs      int    `json:"jobs"`
	Elapsed   string `json:"elapsed"`
	Error     string `json:"error,omitempty"`
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	Running bool     `json:"running"`
	RunName string   `json:"run_name,omitempty"`
	RunID   string   `json:"run_id,omitempty"`
	State   string   `json:"state"`
	History bool     `json:"history"`
	Last    *LastRun `json:"last,omitempty"`
}

func (s *Server) status() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := StatusResponse{
		Running: s.running,
		State:   coordinator.StateIdle.String(),
		History: s.history != nil,
	}
	if s.engine != nil {
		resp.RunName = s.engine.Config().Name
		resp.RunID = s.engine.RunID()
		resp.State = s.engine.State().String()
	}
	if s.last != nil {
		resp.Last = &LastRun{
			RunID:     s.last.RunID,
			Name:      s.last.Name,
			Delivered: s.last.Delivered,
			Jobs:      s.last.Jobs,
			Elapsed:   s.last.Elapsed.String(),
		}
		if s.last.Err != nil {
			resp.Last.Error = s.last.Err.Error()
		}
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) progress() progress.Snapshot {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()

	if engine != nil {
		if p := engine.Progress(); p != nil {
			return *p
		}
	}
	return progress.Snapshot{Workers: []progress.WorkerProgress{}}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.progress())
}

// MetricsResponse はメトリクスレスポンス
type MetricsResponse struct {
	TotalJobs     uint64         `json:"total_jobs"`
	SuccessJobs   uint64         `json:"success_jobs"`
	FailedJobs    uint64         `json:"failed_jobs"`
	JobsPerSecond float64        `json:"jobs_per_second"`
	AvgLatencyMs  float64        `json:"avg_latency_ms"`
	P99LatencyMs  float64        `json:"p99_latency_ms"`
	ErrorRate     float64        `json:"error_rate"`
	PerWorker     map[int]uint64 `json:"per_worker"`
	Pending       int            `json:"pending"`

	EventsPublished uint64 `json:"events_published"`
	EventsDropped   uint64 `json:"events_dropped"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	engine := s.engine
	s.mu.RUnlock()

	resp := MetricsResponse{
		PerWorker:       map[int]uint64{},
		EventsPublished: s.bus.Published(),
		EventsDropped:   s.bus.Dropped(),
	}
	if engine != nil {
		if m := engine.Metrics(); m != nil {
			resp.TotalJobs = m.TotalJobs
			resp.SuccessJobs = m.SuccessJobs
			resp.FailedJobs = m.FailedJobs
			resp.JobsPerSecond = m.JobsPerSecond
			resp.AvgLatencyMs = float64(m.AverageLatency) / float64(time.Millisecond)
			resp.P99LatencyMs = float64(m.P99Latency) / float64(time.Millisecond)
			resp.ErrorRate = m.ErrorRate
			resp.PerWorker = m.PerWorker
		}
		if st := engine.SinkStats(); st != nil {
			resp.Pending = st.Pending
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// RunRequest は実行開始リクエスト
// 指定のない項目はプリセット（なければサーバーの既定値）のまま
type RunRequest struct {
	Preset   string `json:"preset,omitempty"`
	Jobs     *int   `json:"jobs,omitempty"`
	Workload *int   `json:"workload,omitempty"`
	Workers  *int   `json:"workers,omitempty"`
	Function string `json:"function,omitempty"`
	Strategy string `json:"strategy,omitempty"`
	Delay    string `json:"delay,omitempty"`
}

func (req RunRequest) config(base coordinator.Config) (coordinator.Config, error) {
	config := base
	if req.Preset != "" {
		preset, ok := coordinator.GetPreset(req.Preset)
		if !ok {
			return config, fmt.Errorf("unknown preset: %s", req.Preset)
		}
		config = preset
		config.Transport = base.Transport
		config.RemoteURLs = base.RemoteURLs
	}

	// オーバーライド
	if req.Jobs != nil {
		config.JobCount = *req.Jobs
	}
	if req.Workload != nil {
		config.Workload = *req.Workload
	}
	if req.Workers != nil {
		config.WorkerCount = *req.Workers
	}
	if req.Function != "" {
		config.Function = req.Function
	}
	if req.Strategy != "" {
		strategy, err := coordinator.ParseStrategy(req.Strategy)
		if err != nil {
			return config, err
		}
		config.Strategy = strategy
	}
	if req.Delay != "" {
		d, err := time.ParseDuration(req.Delay)
		if err != nil {
			return config, fmt.Errorf("invalid delay: %w", err)
		}
		config.Delay = d
	}
	return config, config.Validate()
}

func (s *Server) handleRunStart(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	config, err := req.config(s.base)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.writeError(w, http.StatusConflict, "Run already in progress")
		return
	}

	engine := coordinator.New(config)
	engine.SetEventBus(s.bus)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	runID := engine.ReserveRunID()

	s.engine = engine
	s.cancel = cancel
	s.done = done
	s.running = true
	s.mu.Unlock()

	// バックグラウンドで実行
	go func() {
		defer close(done)
		defer cancel()

		result, err := engine.Run(ctx)
		if err != nil {
			logger.Error("api", "Run failed: %v", err)
		} else {
			logger.Info("api", "Run completed: %d results in %v", result.Delivered, result.Elapsed)
		}

		if result != nil && s.history != nil {
			if err := s.history.SaveRun(context.Background(), result); err != nil {
				logger.Error("api", "Failed to save run %s: %v", result.RunID, err)
			}
		}

		s.mu.Lock()
		s.running = false
		s.cancel = nil
		if result != nil {
			s.last = result
		}
		s.mu.Unlock()

		s.broadcast(map[string]any{
			"type":   "status",
			"status": s.status(),
		})
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "started",
		"run":     config.Name,
		"run_id":  runID,
		"jobs":    config.JobCount,
		"workers": config.WorkerCount,
	})
}

// stopRun は実行中の実行をキャンセルし、終了を待つ
func (s *Server) stopRun() bool {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	running := s.running
	s.mu.RUnlock()

	if !running || cancel == nil {
		return false
	}
	cancel()
	<-done
	return true
}

func (s *Server) handleRunStop(w http.ResponseWriter, r *http.Request) {
	if !s.stopRun() {
		s.writeError(w, http.StatusBadRequest, "No run in progress")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleRunList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "Run history is disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// RunDetail は保存済み実行の詳細
type RunDetail struct {
	*store.Run
	Records []sink.Record `json:"records"`
}

func (s *Server) handleRunGet(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "Run history is disabled")
		return
	}

	id := chi.URLParam(r, "id")
	run, err := s.history.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	records, err := s.history.Records(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, RunDetail{Run: run, Records: records})
}

// PresetInfo はプリセット情報
type PresetInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Jobs        int    `json:"jobs"`
	Workload    int    `json:"workload"`
	Workers     int    `json:"workers"`
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	presets := []PresetInfo{}
	for _, name := range coordinator.ListPresets() {
		config, _ := coordinator.GetPreset(name)
		presets = append(presets, PresetInfo{
			Name:        name,
			Description: config.Description,
			Jobs:        config.JobCount,
			Workload:    config.Workload,
			Workers:     config.WorkerCount,
		})
	}

	s.writeJSON(w, http.StatusOK, presets)
}

// WebSocket handling
// クエリ run と types でイベントを絞り込める (例: /ws?types=job_completed,run_finished)
// run を指定した接続はその実行の終了イベントを送ったところで閉じる
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	defer func() { _ = ws.Close() }()

	filter, err := wsFilter(ws.Request())
	if err != nil {
		_ = websocket.JSON.Send(ws, map[string]string{"type": "error", "error": err.Error()})
		return
	}

	// 初期ステータスより前に購読し、その後のイベントを取りこぼさない
	ch := s.bus.SubscribeFilter(filter)
	defer s.bus.Unsubscribe(ch)

	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
	}()

	if err := websocket.JSON.Send(ws, map[string]any{"type": "status", "status": s.status()}); err != nil {
		return
	}

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			var msg string
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if err := websocket.JSON.Send(ws, event); err != nil {
				return
			}
			if filter.RunID != "" && event.Type.Terminal() {
				return
			}
		}
	}
}

func wsFilter(r *http.Request) (events.Filter, error) {
	q := r.URL.Query()
	types, err := events.ParseTypes(q.Get("types"))
	if err != nil {
		return events.Filter{}, err
	}
	return events.ForRun(q.Get("run"), types...), nil
}

// ClientCount は接続中のWebSocketクライアント数を返す
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			running := s.running
			s.mu.RUnlock()
			if !running {
				continue
			}

			s.broadcast(map[string]any{
				"type":     "progress",
				"progress": s.progress(),
			})
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("api", "Failed to encode JSON: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
