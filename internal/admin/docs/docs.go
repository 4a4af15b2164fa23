// Package docs holds the OpenAPI description of the rating service admin
// API. Regenerate with swag init -g internal/admin/handler.go -o internal/admin/docs.
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
        "/caches": {
            "get": {
                "description": "Get kind, source and published snapshot of every configured cache",
                "produces": ["application/json"],
                "tags": ["caches"],
                "summary": "List named caches",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/cache.Stats"}}
                    }
                }
            }
        },
        "/caches/reload": {
            "post": {
                "description": "Rebuild the named caches, or all caches when none are given. A failed rebuild keeps the previous snapshot.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["caches"],
                "summary": "Reload caches",
                "parameters": [
                    {
                        "description": "Caches to reload",
                        "name": "request",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/admin.ReloadRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/admin.ReloadResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/admin.ReloadResponse"}}
                }
            }
        },
        "/lookup/prefix": {
            "get": {
                "description": "Resolve the longest-prefix match for one key per field",
                "produces": ["application/json"],
                "tags": ["lookup"],
                "summary": "Prefix lookup",
                "parameters": [
                    {"type": "string", "description": "Prefix cache name", "name": "cache", "in": "query", "required": true},
                    {"type": "array", "items": {"type": "string"}, "collectionFormat": "multi", "description": "Key per field, in field order", "name": "key", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/admin.PrefixLookupResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        },
        "/lookup/validity/{mode}": {
            "get": {
                "description": "Find the segments of (group, resource) effective at a timestamp. Mode first and all use bounded ranges, from uses start dates only.",
                "produces": ["application/json"],
                "tags": ["lookup"],
                "summary": "Validity lookup",
                "parameters": [
                    {"enum": ["first", "all", "from"], "type": "string", "description": "Lookup mode", "name": "mode", "in": "path", "required": true},
                    {"type": "string", "description": "Validity cache name", "name": "cache", "in": "query", "required": true},
                    {"type": "string", "description": "Group, for example a rate plan", "name": "group", "in": "query", "required": true},
                    {"type": "string", "description": "Resource id, for example a zone", "name": "resource", "in": "query", "required": true},
                    {"type": "string", "description": "RFC 3339 timestamp", "name": "at", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/admin.ValidityLookupResponse"}},
                    "400": {"description": "Bad Request", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "admin.PrefixLookupResponse": {
            "type": "object",
            "properties": {
                "cache": {"type": "string"},
                "generation": {"type": "integer"},
                "keys": {"type": "array", "items": {"type": "string"}},
                "result": {"type": "array", "items": {"type": "string"}},
                "valid": {"type": "boolean"},
                "with_child_data": {"type": "array", "items": {"type": "string"}}
            }
        },
        "admin.ReloadRequest": {
            "type": "object",
            "properties": {
                "caches": {"type": "array", "items": {"type": "string"}}
            }
        },
        "admin.ReloadResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "outcomes": {"type": "array", "items": {"$ref": "#/definitions/reload.Outcome"}}
            }
        },
        "admin.ValidityLookupResponse": {
            "type": "object",
            "properties": {
                "at": {"type": "string"},
                "cache": {"type": "string"},
                "generation": {"type": "integer"},
                "group": {"type": "string"},
                "mode": {"type": "string"},
                "resource": {"type": "string"},
                "result": {"type": "array", "items": {"type": "string"}},
                "valid": {"type": "boolean"},
                "with_child_data": {"type": "array", "items": {"type": "array", "items": {"type": "string"}}}
            }
        },
        "cache.Stats": {
            "type": "object",
            "properties": {
                "entries": {"type": "integer"},
                "generation": {"type": "integer"},
                "kind": {"type": "string"},
                "loaded": {"type": "boolean"},
                "loaded_at": {"type": "string"},
                "name": {"type": "string"},
                "source": {"type": "string"}
            }
        },
        "reload.Outcome": {
            "type": "object",
            "properties": {
                "cache": {"type": "string"},
                "duration_ns": {"type": "integer"},
                "entries": {"type": "integer"},
                "error": {"type": "string"},
                "generation": {"type": "integer"},
                "kind": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Rating Service Admin API",
	Description:      "Cache status, reloads and ad-hoc lookups for the rating core.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
