package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "InboxVault API",
        "description": "Archive control surface for live conversation lists",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Operator session"},
        {"name": "Archive", "description": "Archived conversation management"},
        {"name": "Transfer", "description": "Archive export and import"},
        {"name": "View", "description": "Live view mirroring"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate the operator",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Describe the current session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Missing or invalid token"}
                }
            }
        },
        "/archive": {
            "get": {
                "tags": ["Archive"],
                "summary": "List archived conversations",
                "parameters": [
                    {"name": "q", "in": "query", "type": "string"},
                    {"name": "sort", "in": "query", "type": "string", "enum": ["newest", "oldest"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Archive"],
                "summary": "Archive live conversation entries",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ArchiveRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid payload"}
                }
            },
            "delete": {
                "tags": ["Archive"],
                "summary": "Drop the whole archive",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/archive/restore": {
            "post": {
                "tags": ["Archive"],
                "summary": "Restore archived conversations to the live view",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RestoreRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/archive/{id}/notes": {
            "put": {
                "tags": ["Archive"],
                "summary": "Replace the notes on an archived conversation",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/NotesRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Record not found"}
                }
            }
        },
        "/archive/export": {
            "get": {
                "tags": ["Transfer"],
                "summary": "Download the archive",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["json", "csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Export file"},
                    "400": {"description": "Unsupported format"}
                }
            }
        },
        "/archive/import": {
            "post": {
                "tags": ["Transfer"],
                "summary": "Import an exported archive",
                "parameters": [
                    {"name": "mode", "in": "query", "type": "string", "enum": ["merge", "replace"]},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportEnvelope"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Unrecognized envelope"}
                }
            }
        },
        "/view/items": {
            "get": {
                "tags": ["View"],
                "summary": "Read the mirrored live view",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["View"],
                "summary": "Push a live view re-render",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ViewIngestRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit": {
            "get": {
                "tags": ["Audit"],
                "summary": "List recent audit log entries",
                "parameters": [
                    {"name": "limit", "in": "query", "type": "integer", "default": 50}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid limit"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["username", "password"],
            "properties": {
                "username": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "RawItem": {
            "type": "object",
            "properties": {
                "externalId": {"type": "string"},
                "html": {"type": "string"},
                "text": {"type": "string"}
            }
        },
        "ArchiveRequest": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/RawItem"}},
                "handles": {"type": "array", "items": {"type": "integer"}}
            }
        },
        "RestoreRequest": {
            "type": "object",
            "required": ["ids"],
            "properties": {
                "ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "NotesRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            }
        },
        "ExportEnvelope": {
            "type": "object",
            "properties": {
                "archivedMessages": {"type": "array", "items": {"type": "object"}},
                "exportDate": {"type": "string", "format": "date-time"},
                "version": {"type": "string"}
            }
        },
        "ViewIngestRequest": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/RawItem"}}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
