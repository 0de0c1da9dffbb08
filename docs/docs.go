// Package docs registers the OpenAPI document served by gin-swagger under
// /swagger. Regenerate with `swag init -g cmd/server/main.go` after changing
// handler annotations.
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
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/auth/register": {"post": {"operationId": "register", "tags": ["Auth"], "summary": "Create an account",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RegisterRequest"}}],
            "responses": {"201": {"description": "Created"}, "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}, "409": {"description": "Email taken", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/auth/login": {"post": {"operationId": "login", "tags": ["Auth"], "summary": "Log in",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.LoginRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.TokenResponse"}}, "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/auth/refresh": {"post": {"operationId": "refresh", "tags": ["Auth"], "summary": "New access token from a refresh token",
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RefreshRequest"}}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.TokenResponse"}}, "401": {"description": "Invalid refresh token", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/auth/logout": {"post": {"operationId": "logout", "tags": ["Auth"], "summary": "Revoke the session", "security": [{"BearerAuth": []}],
            "responses": {"204": {"description": "No Content"}, "401": {"description": "Unauthenticated", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}, "403": {"description": "Forgery check failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/auth/csrf": {"get": {"operationId": "csrf", "tags": ["Auth"], "summary": "Issue an anti-forgery token", "security": [{"BearerAuth": []}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.CSRFResponse"}}}}},
        "/users/me": {"get": {"operationId": "me", "tags": ["Users"], "summary": "Current user", "security": [{"BearerAuth": []}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.User"}}}}},
        "/conversations": {"get": {"operationId": "listConversations", "tags": ["Conversations"], "summary": "Conversations of the caller", "security": [{"BearerAuth": []}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListConversationsResponse"}}, "304": {"description": "Not Modified"}}}},
        "/conversations/personal": {"post": {"operationId": "createPersonal", "tags": ["Conversations"], "summary": "Open a personal conversation", "security": [{"BearerAuth": []}],
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreatePersonalRequest"}}],
            "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Conversation"}}, "409": {"description": "Already exists", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}}}},
        "/conversations/group": {"post": {"operationId": "createGroup", "tags": ["Conversations"], "summary": "Create a group", "security": [{"BearerAuth": []}],
            "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.CreateGroupRequest"}}],
            "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Conversation"}}}}},
        "/conversations/{id}": {"get": {"operationId": "getConversation", "tags": ["Conversations"], "summary": "Conversation details", "security": [{"BearerAuth": []}],
            "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Conversation"}}, "403": {"description": "Not a member"}, "404": {"description": "Not found"}}}},
        "/conversations/{id}/members": {
            "get": {"operationId": "listMembers", "tags": ["Conversations"], "summary": "Members", "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MembersResponse"}}}},
            "post": {"operationId": "addMember", "tags": ["Conversations"], "summary": "Add a group member", "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}, {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AddMemberRequest"}}],
                "responses": {"204": {"description": "No Content"}, "403": {"description": "Not creator or admin"}, "409": {"description": "Already a member"}}}},
        "/conversations/{id}/members/{userID}": {"delete": {"operationId": "removeMember", "tags": ["Conversations"], "summary": "Remove a group member", "security": [{"BearerAuth": []}],
            "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}, {"in": "path", "name": "userID", "type": "string", "required": true}],
            "responses": {"204": {"description": "No Content"}, "404": {"description": "Not a member"}}}},
        "/conversations/{id}/messages": {
            "get": {"operationId": "listMessages", "tags": ["Messages"], "summary": "Message history", "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}, {"in": "query", "name": "limit", "type": "integer"}, {"in": "query", "name": "offset", "type": "integer"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListMessagesResponse"}}, "304": {"description": "Not Modified"}}},
            "post": {"operationId": "postMessage", "tags": ["Messages"], "summary": "Send a message", "security": [{"BearerAuth": []}],
                "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}, {"in": "header", "name": "Idempotency-Key", "type": "string", "required": true}, {"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PostMessageRequest"}}],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.PostMessageResponse"}}, "200": {"description": "Replayed", "schema": {"$ref": "#/definitions/handlers.PostMessageResponse"}}}}},
        "/messages/{id}/read": {"post": {"operationId": "markRead", "tags": ["Messages"], "summary": "Mark a message read", "security": [{"BearerAuth": []}],
            "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}],
            "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MarkReadResponse"}}}}},
        "/ws/conversations/{id}": {"get": {"operationId": "serveWS", "tags": ["Realtime"], "summary": "WebSocket for one conversation",
            "parameters": [{"in": "path", "name": "id", "type": "string", "required": true}, {"in": "query", "name": "token", "type": "string"}],
            "responses": {"101": {"description": "Switching Protocols"}}}}
    },
    "definitions": {
        "handlers.ErrorResponse": {"type": "object", "properties": {"request_id": {"type": "string"}, "code": {"type": "string"}, "message": {"type": "string"}}},
        "handlers.RegisterRequest": {"type": "object", "required": ["name", "email", "password"], "properties": {"name": {"type": "string"}, "email": {"type": "string"}, "password": {"type": "string"}}},
        "handlers.LoginRequest": {"type": "object", "required": ["email", "password"], "properties": {"email": {"type": "string"}, "password": {"type": "string"}}},
        "handlers.RefreshRequest": {"type": "object", "required": ["refresh_token"], "properties": {"refresh_token": {"type": "string"}}},
        "handlers.TokenResponse": {"type": "object", "properties": {"access_token": {"type": "string"}, "refresh_token": {"type": "string"}, "csrf_token": {"type": "string"}, "token_type": {"type": "string"}, "expires_in": {"type": "integer"}, "user": {"$ref": "#/definitions/domain.User"}}},
        "handlers.CSRFResponse": {"type": "object", "properties": {"csrf_token": {"type": "string"}}},
        "handlers.CreatePersonalRequest": {"type": "object", "required": ["user_id"], "properties": {"user_id": {"type": "string"}}},
        "handlers.CreateGroupRequest": {"type": "object", "required": ["name"], "properties": {"name": {"type": "string"}}},
        "handlers.AddMemberRequest": {"type": "object", "required": ["user_id"], "properties": {"user_id": {"type": "string"}}},
        "handlers.ListConversationsResponse": {"type": "object", "properties": {"conversations": {"type": "array", "items": {"$ref": "#/definitions/domain.Conversation"}}}},
        "handlers.MembersResponse": {"type": "object", "properties": {"members": {"type": "array", "items": {"$ref": "#/definitions/domain.User"}}}},
        "handlers.PostMessageRequest": {"type": "object", "required": ["text"], "properties": {"text": {"type": "string"}}},
        "handlers.PostMessageResponse": {"type": "object", "properties": {"message": {"$ref": "#/definitions/domain.Message"}, "replayed": {"type": "boolean"}}},
        "handlers.ListMessagesResponse": {"type": "object", "properties": {"messages": {"type": "array", "items": {"$ref": "#/definitions/domain.Message"}}, "pagination": {"$ref": "#/definitions/handlers.Pagination"}}},
        "handlers.Pagination": {"type": "object", "properties": {"limit": {"type": "integer"}, "offset": {"type": "integer"}, "total": {"type": "integer"}, "has_next": {"type": "boolean"}}},
        "handlers.MarkReadResponse": {"type": "object", "properties": {"message": {"$ref": "#/definitions/domain.Message"}, "changed": {"type": "boolean"}}},
        "domain.User": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "email": {"type": "string"}, "role": {"type": "string"}, "created_at": {"type": "string"}}},
        "domain.Conversation": {"type": "object", "properties": {"id": {"type": "string"}, "name": {"type": "string"}, "kind": {"type": "string"}, "creator_id": {"type": "string"}, "created_at": {"type": "string"}}},
        "domain.Message": {"type": "object", "properties": {"id": {"type": "string"}, "conversation_id": {"type": "string"}, "sender_id": {"type": "string"}, "text": {"type": "string"}, "is_read": {"type": "boolean"}, "created_at": {"type": "string"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Realtime Chat API",
	Description:      "Personal and group conversations with JWT sessions, idempotent messages, and WebSocket fanout.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
