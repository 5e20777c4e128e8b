// Package docs holds the OpenAPI document served at /swagger/doc.json.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/infer": {
            "post": {
                "description": "Streams NDJSON token lines by default; set stream=false for a single JSON body.",
                "consumes": ["application/json"],
                "produces": ["application/x-ndjson", "application/json"],
                "tags": ["inference"],
                "summary": "Generate a continuation",
                "parameters": [
                    {
                        "description": "Prompt and sampling overrides",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.InferRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.TokenLine"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Scheduler status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 400},
                "error": {"type": "string", "example": "invalid JSON body"}
            }
        },
        "types.InferRequest": {
            "type": "object",
            "properties": {
                "cache": {"type": "integer", "example": 0},
                "n_batch": {"type": "integer", "example": 8},
                "num_predict": {"type": "integer", "example": 128},
                "prompt": {"type": "string", "example": "Hello"},
                "repeat_penalty": {"type": "number", "example": 1.3},
                "stream": {"type": "boolean", "example": true},
                "temp": {"type": "number", "example": 0.8},
                "top_k": {"type": "integer", "example": 40},
                "top_p": {"type": "number", "example": 0.95}
            }
        },
        "types.InferResponse": {
            "type": "object",
            "properties": {
                "content": {"type": "string"},
                "tokens": {"type": "integer"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "backend": {"type": "string", "example": "llama"},
                "current_request": {"type": "string"},
                "dropped_tokens_total": {"type": "integer"},
                "failed_total": {"type": "integer"},
                "inflight": {"type": "integer"},
                "last_error": {"type": "string"},
                "model": {"type": "string"},
                "processed_total": {"type": "integer"},
                "queue_len": {"type": "integer"},
                "restored_from": {"type": "string"},
                "server_time_unix": {"type": "integer"},
                "state": {"type": "string", "example": "ready"},
                "tokens_total": {"type": "integer"},
                "uptime_seconds": {"type": "integer"}
            }
        },
        "types.TokenLine": {
            "type": "object",
            "properties": {
                "done": {"type": "boolean"},
                "error": {"type": "string"},
                "token": {"type": "string"},
                "tokens": {"type": "integer"}
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
	Title:            "llmserve API",
	Description:      "HTTP API for serialized LLM inference over a single loaded model.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
