// Package docs registers the OpenAPI description of the npud HTTP API with
// swag. Regenerate with `swag init -g cmd/npud/docs.go` after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "npud maintainers"},
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/tags": {
            "get": {
                "tags": ["models"],
                "summary": "List models",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}}}
            }
        },
        "/api/ps": {
            "get": {
                "tags": ["models"],
                "summary": "Loaded models",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.PSResponse"}}}
            }
        },
        "/api/version": {
            "get": {
                "tags": ["status"],
                "summary": "Server version",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.VersionResponse"}}}
            }
        },
        "/status": {
            "get": {
                "tags": ["status"],
                "summary": "Runtime status",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}}
            }
        },
        "/api/npu/status": {
            "get": {
                "tags": ["status"],
                "summary": "NPU availability",
                "produces": ["application/json"],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/types.NPUStatusResponse"}}}
            }
        },
        "/api/cancel": {
            "post": {
                "tags": ["inference"],
                "summary": "Cancel a running generation",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.CancelRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.CancelResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/generate": {
            "post": {
                "tags": ["inference"],
                "summary": "Generate a completion",
                "consumes": ["application/json"],
                "produces": ["application/json", "application/x-ndjson"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.GenerateRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.GenerateResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/api/chat": {
            "post": {
                "tags": ["inference"],
                "summary": "Chat",
                "consumes": ["application/json"],
                "produces": ["application/json", "application/x-ndjson"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.ChatRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ChatResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/v1/chat/completions": {
            "post": {
                "tags": ["inference"],
                "summary": "OpenAI compatible chat completions",
                "consumes": ["application/json"],
                "produces": ["application/json", "text/event-stream"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/types.ChatCompletionRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ChatCompletion"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ChatMessage": {
            "type": "object",
            "properties": {
                "role": {"type": "string", "example": "user"},
                "content": {"type": "string", "example": "Why is the sky blue?"}
            }
        },
        "types.Options": {
            "type": "object",
            "properties": {
                "temperature": {"type": "number", "example": 0.7},
                "top_p": {"type": "number", "example": 0.9},
                "top_k": {"type": "integer", "example": 10},
                "repeat_penalty": {"type": "number", "example": 0.05},
                "frequency_penalty": {"type": "number", "example": 0.1},
                "seed": {"type": "integer", "example": 42}
            }
        },
        "types.GenerateRequest": {
            "type": "object",
            "properties": {
                "model": {"type": "string", "example": "llama3.2:1b"},
                "prompt": {"type": "string", "example": "Write a haiku about the ocean."},
                "stream": {"type": "boolean"},
                "think": {"type": "boolean"},
                "max_tokens": {"type": "integer", "example": 128},
                "options": {"$ref": "#/definitions/types.Options"}
            }
        },
        "types.GenerateResponse": {
            "type": "object",
            "properties": {
                "model": {"type": "string"},
                "created_at": {"type": "string"},
                "response": {"type": "string"},
                "done": {"type": "boolean"},
                "done_reason": {"type": "string"},
                "context": {"type": "array", "items": {"type": "integer"}},
                "total_duration": {"type": "integer"},
                "eval_count": {"type": "integer"}
            }
        },
        "types.ChatRequest": {
            "type": "object",
            "properties": {
                "model": {"type": "string", "example": "llama3.2:1b"},
                "messages": {"type": "array", "items": {"$ref": "#/definitions/types.ChatMessage"}},
                "stream": {"type": "boolean"},
                "think": {"type": "boolean"},
                "max_tokens": {"type": "integer"},
                "options": {"$ref": "#/definitions/types.Options"}
            }
        },
        "types.ChatResponse": {
            "type": "object",
            "properties": {
                "model": {"type": "string"},
                "created_at": {"type": "string"},
                "message": {"$ref": "#/definitions/types.ChatMessage"},
                "done": {"type": "boolean"},
                "done_reason": {"type": "string"}
            }
        },
        "types.ChatCompletionRequest": {
            "type": "object",
            "properties": {
                "model": {"type": "string"},
                "messages": {"type": "array", "items": {"$ref": "#/definitions/types.ChatMessage"}},
                "stream": {"type": "boolean"},
                "max_tokens": {"type": "integer"},
                "temperature": {"type": "number"},
                "top_p": {"type": "number"},
                "frequency_penalty": {"type": "number"},
                "seed": {"type": "integer"}
            }
        },
        "types.ChatCompletion": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "object": {"type": "string"},
                "created": {"type": "integer"},
                "model": {"type": "string"}
            }
        },
        "types.Model": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "llama3.2:1b"},
                "name": {"type": "string"},
                "path": {"type": "string"},
                "size": {"type": "integer"},
                "context_length": {"type": "integer"}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {"models": {"type": "array", "items": {"$ref": "#/definitions/types.Model"}}}
        },
        "types.PSResponse": {
            "type": "object",
            "properties": {"models": {"type": "array", "items": {"type": "object"}}}
        },
        "types.CancelRequest": {
            "type": "object",
            "required": ["request_id"],
            "properties": {"request_id": {"type": "string"}}
        },
        "types.CancelResponse": {
            "type": "object",
            "properties": {"cancelled": {"type": "boolean"}, "message": {"type": "string"}}
        },
        "types.NPUStatusResponse": {
            "type": "object",
            "properties": {
                "npu_available": {"type": "boolean"},
                "active_requests": {"type": "integer"},
                "message": {"type": "string"}
            }
        },
        "types.VersionResponse": {
            "type": "object",
            "properties": {"version": {"type": "string"}}
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string"},
                "model": {"type": "string"},
                "context_tokens": {"type": "integer"},
                "max_context": {"type": "integer"},
                "available": {"type": "boolean"},
                "active": {"type": "integer"},
                "loads_total": {"type": "integer"},
                "last_load_ms": {"type": "integer"},
                "last_error": {"type": "string"},
                "uptime_seconds": {"type": "integer"}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "npud API",
	Description:      "HTTP API of the local NPU inference runtime.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
