// Package docs registers the OpenAPI document served at /swagger when
// SWAGGER_ENABLED is set. Regenerate with `swag init -g cmd/server/main.go`.
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
        "/messages/send": {
            "post": {
                "description": "Sends text, a file (text becomes the caption) or a voice note through the staff user's gateway instance and stores it in the conversation.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Messages"],
                "summary": "Send a WhatsApp message to a client",
                "operationId": "sendMessage",
                "parameters": [
                    {"type": "string", "description": "Staff user id (used when userId is absent)", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "description": "Idempotency key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Compose payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SendMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SendMessageResponse"}},
                    "400": {"description": "Invalid request or incomplete credentials", "schema": {"$ref": "#/definitions/handlers.PipelineError"}},
                    "404": {"description": "Credentials or conversation not found", "schema": {"$ref": "#/definitions/handlers.PipelineError"}},
                    "409": {"description": "Idempotency key reused for another conversation", "schema": {"$ref": "#/definitions/handlers.PipelineError"}},
                    "500": {"description": "Gateway or upload failure", "schema": {"$ref": "#/definitions/handlers.PipelineError"}}
                }
            }
        },
        "/conversations/{id}/messages": {
            "get": {
                "description": "Returns a page of messages ordered by sent time. Supports weak ETag via If-None-Match and may return 304.",
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "List messages in a conversation",
                "operationId": "listMessages",
                "parameters": [
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"},
                    {"type": "string", "format": "uuid", "description": "Conversation ID (UUID)", "name": "id", "in": "path", "required": true},
                    {"minimum": 1, "type": "integer", "default": 1, "description": "Page number", "name": "page", "in": "query"},
                    {"maximum": 200, "minimum": 1, "type": "integer", "default": 50, "description": "Items per page", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListMessagesResponse"}, "headers": {"ETag": {"type": "string", "description": "Weak ETag for current result"}}},
                    "304": {"description": "Not Modified", "schema": {"type": "string"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Conversation not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/read": {
            "post": {
                "description": "Stamps read_at on every unread client message of the conversation and pushes the new unread total.",
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "Mark a conversation read",
                "operationId": "markConversationRead",
                "parameters": [
                    {"type": "string", "format": "uuid", "description": "Conversation ID (UUID)", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MarkReadResponse"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Conversation not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/unread": {
            "get": {
                "description": "Returns the unread total and the unread count of every conversation that has any.",
                "produces": ["application/json"],
                "tags": ["Conversations"],
                "summary": "Unread client messages",
                "operationId": "unreadSummary",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UnreadResponse"}},
                    "500": {"description": "Internal error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "conversation_id": {"type": "string"},
                "message_id": {"type": "string"},
                "sender": {"type": "string"},
                "from_me": {"type": "boolean"},
                "content": {"type": "string"},
                "message_type": {"type": "string"},
                "media_url": {"type": "string"},
                "media_type": {"type": "string"},
                "file_name": {"type": "string"},
                "file_size": {"type": "integer"},
                "sent_at": {"type": "string"},
                "read_at": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string", "example": "resource not found"}
            }
        },
        "handlers.PipelineError": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "provider_error"},
                "error": {"type": "string", "example": "Failed to send message"},
                "details": {"type": "string"},
                "evolutionResponse": {"type": "object"}
            }
        },
        "services.Attachment": {
            "type": "object",
            "properties": {
                "base64": {"type": "string"},
                "name": {"type": "string"},
                "mimeType": {"type": "string"}
            }
        },
        "handlers.SendMessageRequest": {
            "type": "object",
            "properties": {
                "userId": {"type": "string", "example": "staff-42"},
                "conversationId": {"type": "string"},
                "clientPhone": {"type": "string", "example": "5511988887777"},
                "evolutionInstance": {"type": "string", "example": "farmacia-centro"},
                "message": {"type": "string"},
                "file": {"$ref": "#/definitions/services.Attachment"},
                "audio": {"$ref": "#/definitions/services.Attachment"}
            }
        },
        "handlers.SendMessageResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "evolutionResponse": {"type": "object"},
                "mediaUrl": {"type": "string"},
                "message": {"$ref": "#/definitions/domain.Message"}
            }
        },
        "handlers.Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total": {"type": "integer"},
                "total_pages": {"type": "integer"},
                "has_next": {"type": "boolean"}
            }
        },
        "handlers.ListMessagesResponse": {
            "type": "object",
            "properties": {
                "messages": {"type": "array", "items": {"$ref": "#/definitions/domain.Message"}},
                "pagination": {"$ref": "#/definitions/handlers.Pagination"}
            }
        },
        "handlers.MarkReadResponse": {
            "type": "object",
            "properties": {
                "marked": {"type": "integer"},
                "unread": {"type": "integer"}
            }
        },
        "repo.UnreadCount": {
            "type": "object",
            "properties": {
                "conversation_id": {"type": "string"},
                "unread": {"type": "integer"}
            }
        },
        "handlers.UnreadResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "conversations": {"type": "array", "items": {"$ref": "#/definitions/repo.UnreadCount"}}
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
	Title:            "WhatsApp Inbox API",
	Description:      "Pharmacy WhatsApp inbox: gateway webhooks, operator dispatch, history and unread sync.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
