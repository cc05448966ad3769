package httpapi

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer. Nop until SetLogger.
var zlog = zerolog.Nop()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel is read once from NPUD_REQUEST_LOG.
var defaultLogLevel = parseLevel(os.Getenv("NPUD_REQUEST_LOG"))

// SetRequestLogLevel sets the default per-request log level.
func SetRequestLogLevel(s string) { defaultLogLevel = parseLevel(s) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// requestLog is the start/end logging of one generation request.
type requestLog struct {
	r     *http.Request
	lvl   LogLevel
	op    string
	model string
	start time.Time
}

func newRequestLog(r *http.Request, op, model string) *requestLog {
	rl := &requestLog{r: r, lvl: requestLogLevel(r), op: op, model: model, start: time.Now()}
	if rl.lvl >= LevelInfo {
		rl.event(zlog.Info()).Msg(op + " start")
	}
	return rl
}

func (rl *requestLog) event(e *zerolog.Event) *zerolog.Event {
	e = e.Str("path", rl.r.URL.Path).Str("model", rl.model)
	if rid := middleware.GetReqID(rl.r.Context()); rid != "" {
		e = e.Str("request_id", rid)
	}
	return e
}

// chunk logs streamed text at debug level.
func (rl *requestLog) chunk(text string) {
	if rl.lvl >= LevelDebug {
		rl.event(zlog.Debug()).Str("text", text).Msg(rl.op + ">")
	}
}

func (rl *requestLog) end(status int, err error) {
	if rl.lvl < LevelError || (err == nil && rl.lvl < LevelInfo) {
		return
	}
	e := zlog.Info()
	if err != nil && status >= 500 {
		e = zlog.Error()
	}
	e = rl.event(e).Int("status", status).Dur("dur", time.Since(rl.start))
	if err != nil {
		e = e.Err(err)
	}
	e.Msg(rl.op + " end")
}
