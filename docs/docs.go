// Package docs registers the status server's OpenAPI document with swag so
// the /docs UI can serve it.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "description": "Returns the agent name, version and where to find docs.",
                "produces": ["application/json"],
                "tags": ["meta"],
                "summary": "Agent info",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/health": {
            "get": {
                "description": "Returns basic health status, uptime and timestamp.",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/health/cache": {
            "get": {
                "description": "Returns the stats cache entry counts and TTL.",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Cache health check",
                "responses": {"200": {"description": "OK", "schema": {"type": "object"}}}
            }
        },
        "/status": {
            "get": {
                "description": "Returns the scheduler state, current holder, window size, delta, impatience deadline and last action result.",
                "produces": ["application/json"],
                "tags": ["agent"],
                "summary": "Scheduler status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/scheduler.Status"}}}
            }
        },
        "/leaderboard": {
            "get": {
                "description": "Ranks players by total hold time. Scores come from the stats cache; the holder is always read live.",
                "produces": ["application/json"],
                "tags": ["game"],
                "summary": "Leaderboard",
                "parameters": [
                    {"type": "integer", "description": "Rows to return (1-100, default 10)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "description": "Prometheus exposition format.",
                "produces": ["text/plain"],
                "tags": ["meta"],
                "summary": "Metrics",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "definitions": {
        "respond.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "detail": {"type": "string"}
                    }
                }
            }
        },
        "scheduler.Status": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "enum": ["wait_for_snapshot", "holding", "deciding", "acting", "cooldown"]},
                "self_id": {"type": "string"},
                "strategy": {"type": "string"},
                "holder_id": {"type": "string"},
                "holder_name": {"type": "string"},
                "window_len": {"type": "integer"},
                "window_cap": {"type": "integer"},
                "delta": {"type": "object", "additionalProperties": {"type": "integer"}},
                "deadline": {"type": "string", "format": "date-time"},
                "last_result": {"type": "string"},
                "last_action_at": {"type": "string", "format": "date-time"},
                "cycles": {"type": "integer"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "yoinker status API",
	Description:      "Read-only view of the yoink agent: scheduler status, cached leaderboard and metrics.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
