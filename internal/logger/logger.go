package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Level はログレベルを表す
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel は文字列からログレベルを取得する
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// Format は出力形式
type Format int

const (
	// FormatText は "[ts] [LEVEL] [source] msg" の行形式
	FormatText Format = iota
	// FormatJSON は1行1オブジェクトのJSON形式
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// ParseFormat は文字列から出力形式を取得する
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// Logger はスレッドセーフなロガー
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	minLevel Level
	format   Format
	json     *slog.Logger // FormatJSON のときだけ使う
}

// Default はデフォルトのロガー
// 結果行は標準出力に出すため、ログは標準エラーに出力する
var Default = New(os.Stderr, LevelInfo)

// New は新しいロガーを作成する
func New(out io.Writer, minLevel Level) *Logger {
	return &Logger{
		out:      out,
		minLevel: minLevel,
	}
}

// SetLevel はログレベルを設定する
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// SetOutput は出力先を差し替える
func (l *Logger) SetOutput(out io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = out
	l.rebuild()
}

// SetFormat は出力形式を切り替える
func (l *Logger) SetFormat(format Format) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.format = format
	l.rebuild()
}

// rebuild は mu を保持した状態で呼ぶ
func (l *Logger) rebuild() {
	l.json = nil
	if l.format == FormatJSON {
		// レベル判定は minLevel で行うのでハンドラ側は全て通す
		l.json = slog.New(slog.NewJSONHandler(l.out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

// Enabled は指定レベルが出力対象かどうかを返す
func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.minLevel
}

func (l *Logger) log(level Level, source string, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	msg := fmt.Sprintf(format, args...)

	if l.json != nil {
		var attrs []any
		if source != "" {
			attrs = append(attrs, slog.String("source", source))
		}
		l.json.Log(context.Background(), level.slogLevel(), msg, attrs...)
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	if source != "" {
		_, _ = fmt.Fprintf(l.out, "[%s] [%s] [%s] %s\n", timestamp, level, source, msg)
	} else {
		_, _ = fmt.Fprintf(l.out, "[%s] [%s] %s\n", timestamp, level, msg)
	}
}

// Debug はデバッグログを出力する
func (l *Logger) Debug(source string, format string, args ...any) {
	l.log(LevelDebug, source, format, args...)
}

// Info は情報ログを出力する
func (l *Logger) Info(source string, format string, args ...any) {
	l.log(LevelInfo, source, format, args...)
}

// Warn は警告ログを出力する
func (l *Logger) Warn(source string, format string, args ...any) {
	l.log(LevelWarn, source, format, args...)
}

// Error はエラーログを出力する
func (l *Logger) Error(source string, format string, args ...any) {
	l.log(LevelError, source, format, args...)
}

// Source はソースタグを固定したロガー
type Source struct {
	l    *Logger
	name string
}

// For はソースタグを固定したロガーを返す
func (l *Logger) For(source string) Source {
	return Source{l: l, name: source}
}

// Name はソースタグを返す
func (s Source) Name() string {
	return s.name
}

func (s Source) Debug(format string, args ...any) { s.l.log(LevelDebug, s.name, format, args...) }
func (s Source) Info(format string, args ...any)  { s.l.log(LevelInfo, s.name, format, args...) }
func (s Source) Warn(format string, args ...any)  { s.l.log(LevelWarn, s.name, format, args...) }
func (s Source) Error(format string, args ...any) { s.l.log(LevelError, s.name, format, args...) }

// グローバル関数（デフォルトロガーを使用）

// For はデフォルトロガーでソースタグを固定したロガーを返す
func For(source string) Source {
	return Default.For(source)
}

// ForWorker はワーカー用のロガーを返す（ソースタグ worker-<id>）
func ForWorker(workerID int) Source {
	return Default.For(fmt.Sprintf("worker-%d", workerID))
}

// Debug はデバッグログを出力する
func Debug(source string, format string, args ...any) {
	Default.Debug(source, format, args...)
}

// Info は情報ログを出力する
func Info(source string, format string, args ...any) {
	Default.Info(source, format, args...)
}

// Warn は警告ログを出力する
func Warn(source string, format string, args ...any) {
	Default.Warn(source, format, args...)
}

// Error はエラーログを出力する
func Error(source string, format string, args ...any) {
	Default.Error(source, format, args...)
}
