package httpapi

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"npud/internal/manager"
	"npud/internal/session"
	"npud/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Running() []types.RunningModel
	Status() types.StatusResponse
	Profile() session.Profile
	Version() string
	Ready() bool
	Generate(ctx context.Context, req types.GenerateRequest, w manager.StreamWriter) error
	Chat(ctx context.Context, req types.ChatRequest, w manager.StreamWriter) error
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(corsAllowedMethods, []string{"GET", "POST", "OPTIONS"}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Content-Type", "Authorization", "X-Log-Level"}),
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	h := &handlers{svc: svc, cancels: newCancelRegistry()}
	r.Group(func(r chi.Router) {
		r.Use(InflightMiddleware)
		r.Post("/api/generate", h.generate)
		r.Post("/api/chat", h.chat)
		r.Post("/v1/chat/completions", h.chatCompletions)
	})

	r.Post("/api/cancel", h.cancelRequest)
	r.Get("/api/npu/status", h.npuStatus)
	r.Get("/api/tags", h.tags)
	r.Get("/api/ps", h.ps)
	r.Get("/api/version", h.version)
	r.Get("/api/profile", h.profile)
	r.Get("/status", h.status)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}

type handlers struct {
	svc     Service
	cancels *cancelRegistry
}

// tags godoc
// @Summary      List models
// @Description  Returns every model of the catalog with its details.
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.ModelsResponse
// @Router       /api/tags [get]
func (h *handlers) tags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: nonNil(h.svc.ListModels())})
}

// ps godoc
// @Summary      Loaded models
// @Tags         models
// @Produce      json
// @Success      200  {object}  types.PSResponse
// @Router       /api/ps [get]
func (h *handlers) ps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.PSResponse{Models: nonNil(h.svc.Running())})
}

// version godoc
// @Summary      Server version
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.VersionResponse
// @Router       /api/version [get]
func (h *handlers) version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.VersionResponse{Version: h.svc.Version()})
}

// profile godoc
// @Summary      Latency profile
// @Description  Accumulated per-phase latencies of the loaded model.
// @Tags         status
// @Produce      json
// @Success      200  {object}  session.Profile
// @Router       /api/profile [get]
func (h *handlers) profile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Profile())
}

// status godoc
// @Summary      Runtime status
// @Tags         status
// @Produce      json
// @Success      200  {object}  types.StatusResponse
// @Router       /status [get]
func (h *handlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// generate godoc
// @Summary      Generate a completion
// @Description  Runs the prompt as a user turn. Streams NDJSON when stream is true.
// @Tags         inference
// @Accept       json
// @Produce      json,application/x-ndjson
// @Param        request  body      types.GenerateRequest  true  "Generation request"
// @Success      200      {object}  types.GenerateResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /api/generate [post]
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rl := newRequestLog(r, "generate", req.Model)
	gw := &generateWriter{responseWriter: newResponseWriter(w, rl), model: req.Model, stream: req.Stream}
	ctx, cancel := h.startGeneration(w, r)
	defer cancel()
	h.finish(r, gw.responseWriter, h.svc.Generate(ctx, req, gw), false)
}

// chat godoc
// @Summary      Chat
// @Description  Answers the last user message of a conversation. Streams NDJSON when stream is true.
// @Tags         inference
// @Accept       json
// @Produce      json,application/x-ndjson
// @Param        request  body      types.ChatRequest  true  "Chat request"
// @Success      200      {object}  types.ChatResponse
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /api/chat [post]
func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	var req types.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rl := newRequestLog(r, "chat", req.Model)
	cw := &chatWriter{responseWriter: newResponseWriter(w, rl), model: req.Model, stream: req.Stream}
	ctx, cancel := h.startGeneration(w, r)
	defer cancel()
	h.finish(r, cw.responseWriter, h.svc.Chat(ctx, req, cw), false)
}

// chatCompletions godoc
// @Summary      OpenAI compatible chat completions
// @Description  Streams server-sent events terminated by "data: [DONE]" when stream is true.
// @Tags         inference
// @Accept       json
// @Produce      json,text/event-stream
// @Param        request  body      types.ChatCompletionRequest  true  "Completion request"
// @Success      200      {object}  types.ChatCompletion
// @Failure      400      {object}  types.ErrorResponse
// @Failure      404      {object}  types.ErrorResponse
// @Failure      503      {object}  types.ErrorResponse
// @Router       /v1/chat/completions [post]
func (h *handlers) chatCompletions(w http.ResponseWriter, r *http.Request) {
	var req types.ChatCompletionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	rl := newRequestLog(r, "chat_completions", req.Model)
	cw := newCompletionWriter(newResponseWriter(w, rl), req.Model, req.Stream)
	ctx, cancel := h.startGeneration(w, r)
	defer cancel()
	h.finish(r, cw.responseWriter, h.svc.Chat(ctx, completionToChat(req), cw), true)
}

// finish writes err (if any) and logs the end of the request.
func (h *handlers) finish(r *http.Request, rw *responseWriter, err error, sse bool) {
	if err == nil {
		rw.log.end(http.StatusOK, nil)
		return
	}
	if canceled(r) && !manager.IsTooBusy(err) {
		clientDisconnectsTotal.WithLabelValues(routePatternOrPath(r)).Inc()
		rw.log.end(statusClientClosed, err)
		return
	}
	rw.log.end(rw.fail(err, sse), err)
}

func completionToChat(req types.ChatCompletionRequest) types.ChatRequest {
	return types.ChatRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		Stream:    req.Stream,
		MaxTokens: req.MaxTokens,
		Options: types.Options{
			Temperature:      req.Temperature,
			TopP:             req.TopP,
			FrequencyPenalty: req.FrequencyPenalty,
			Seed:             req.Seed,
		},
	}
}

// decodeBody reads a JSON body into v. It writes the error response and
// returns false when the body is unusable.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil || mt != "application/json" {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return false
		}
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
