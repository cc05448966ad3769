package types

// Options are per-request sampling overrides. Unset fields keep the
// session's current value.
type Options struct {
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
	// example: 10
	TopK *int `json:"top_k,omitempty" example:"10"`
	// example: 0.05
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty" example:"0.05"`
	// example: 0.1
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" example:"0.1"`
	// Random seed for reproducibility; 0 or omitted keeps the current source.
	// example: 42
	Seed *int64 `json:"seed,omitempty" example:"42"`
}

// GenerateRequest is the body of POST /api/generate.
type GenerateRequest struct {
	// Model tag. If empty, the server default is used.
	// example: llama3.2:1b
	Model string `json:"model,omitempty" example:"llama3.2:1b"`
	// Prompt text; it is wrapped in the model's chat template as a user turn.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Stream NDJSON chunks instead of a single response.
	Stream bool `json:"stream,omitempty"`
	// Toggle think mode for models that allow it.
	Think *bool `json:"think,omitempty"`
	// Maximum number of new tokens; zero or negative means unlimited.
	// example: 128
	MaxTokens int     `json:"max_tokens,omitempty" example:"128"`
	Options   Options `json:"options,omitempty"`
}

// Metrics are the timing fields shared by generate and chat responses.
// Durations are in nanoseconds.
type Metrics struct {
	TotalDuration      int64 `json:"total_duration,omitempty"`
	LoadDuration       int64 `json:"load_duration,omitempty"`
	PromptEvalCount    int   `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64 `json:"prompt_eval_duration,omitempty"`
	EvalCount          int   `json:"eval_count,omitempty"`
	EvalDuration       int64 `json:"eval_duration,omitempty"`
}

// GenerateResponse is one NDJSON line (or the whole body) of /api/generate.
type GenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	// One of stop, length, cancelled.
	DoneReason string `json:"done_reason,omitempty"`
	// Token ids of the whole conversation so far.
	Context []int `json:"context,omitempty"`
	Metrics
}

// ChatMessage is one conversation turn.
type ChatMessage struct {
	// example: user
	Role string `json:"role" example:"user"`
	// example: Why is the sky blue?
	Content string `json:"content" example:"Why is the sky blue?"`
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	// example: llama3.2:1b
	Model     string        `json:"model,omitempty" example:"llama3.2:1b"`
	Messages  []ChatMessage `json:"messages"`
	Stream    bool          `json:"stream,omitempty"`
	Think     *bool         `json:"think,omitempty"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	Options   Options       `json:"options,omitempty"`
}

// ChatResponse is one NDJSON line (or the whole body) of /api/chat.
type ChatResponse struct {
	Model      string      `json:"model"`
	CreatedAt  string      `json:"created_at"`
	Message    ChatMessage `json:"message"`
	Done       bool        `json:"done"`
	DoneReason string      `json:"done_reason,omitempty"`
	Metrics
}

// ChatCompletionRequest is the body of POST /v1/chat/completions.
type ChatCompletionRequest struct {
	Model            string        `json:"model,omitempty"`
	Messages         []ChatMessage `json:"messages"`
	Stream           bool          `json:"stream,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Temperature      *float64      `json:"temperature,omitempty"`
	TopP             *float64      `json:"top_p,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
	Seed             *int64        `json:"seed,omitempty"`
}

// Usage counts tokens of a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChoice is a full message choice.
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatCompletion is the non-streamed /v1/chat/completions response.
type ChatCompletion struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   Usage                  `json:"usage"`
}

// ChunkChoice is a streamed delta.
type ChunkChoice struct {
	Index        int         `json:"index"`
	Delta        ChatMessage `json:"delta"`
	FinishReason *string     `json:"finish_reason"`
}

// ChatCompletionChunk is one SSE event of a streamed completion.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   *Usage        `json:"usage,omitempty"`
}

// ModelsResponse wraps the list of models returned by GET /api/tags.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// RunningModel describes the loaded model for GET /api/ps.
type RunningModel struct {
	Name          string       `json:"name"`
	Model         string       `json:"model"`
	ContextLength int          `json:"context_length"`
	ContextTokens int          `json:"context_tokens"`
	Details       ModelDetails `json:"details"`
}

// PSResponse is returned by GET /api/ps.
type PSResponse struct {
	Models []RunningModel `json:"models"`
}

// VersionResponse is returned by GET /api/version.
type VersionResponse struct {
	// example: 0.1.0
	Version string `json:"version" example:"0.1.0"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// AcceleratorStatus summarizes what the accelerator manager has registered.
type AcceleratorStatus struct {
	// example: 5
	Binaries int `json:"binaries" example:"5"`
	// example: 7
	Apps int `json:"apps" example:"7"`
	// Hardware loads performed for the current model.
	// example: 5
	Loads int `json:"loads" example:"5"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Session state (unloaded, ready, prefilling, decoding).
	// example: ready
	State string `json:"state" example:"ready"`
	// Tag of the loaded model.
	// example: llama3.2:1b
	Model string `json:"model,omitempty" example:"llama3.2:1b"`
	// Tokens currently in context.
	// example: 312
	ContextTokens int `json:"context_tokens" example:"312"`
	// Context length limit.
	// example: 4096
	MaxContext int `json:"max_context" example:"4096"`
	// Whether a generation request would be admitted now.
	Available bool `json:"available"`
	// Requests holding the NPU.
	// example: 0
	Active      int                `json:"active" example:"0"`
	Accelerator *AcceleratorStatus `json:"accelerator,omitempty"`
	// Total number of model loads.
	// example: 3
	LoadsTotal uint64 `json:"loads_total" example:"3"`
	// Duration of the most recent model load in milliseconds.
	// example: 2150
	LastLoadMs int64 `json:"last_load_ms,omitempty" example:"2150"`
	// Last error observed by the manager (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}

// CancelRequest is the body of POST /api/cancel.
type CancelRequest struct {
	// X-Request-Id of the generation to stop.
	// example: host/abc123-000001
	RequestID string `json:"request_id" example:"host/abc123-000001"`
}

// CancelResponse is returned by POST /api/cancel.
type CancelResponse struct {
	Cancelled bool `json:"cancelled"`
	// example: Request cancelled successfully
	Message string `json:"message" example:"Request cancelled successfully"`
}

// NPUStatusResponse is returned by GET /api/npu/status.
type NPUStatusResponse struct {
	NPUAvailable bool `json:"npu_available"`
	// example: 0
	ActiveRequests int `json:"active_requests" example:"0"`
	// example: NPU is available
	Message string `json:"message" example:"NPU is available"`
}
