// Package docs registers the OpenAPI document served at /swagger.
//
// Regenerate with: swag init -g cmd/api/main.go -o internal/docs
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
        "/accounts": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "List accounts",
                "parameters": [
                    {"type": "integer", "description": "Page number", "name": "page", "in": "query"},
                    {"type": "integer", "description": "Page size", "name": "page_size", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Create an account",
                "parameters": [{"description": "Account", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateAccountRequest"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            }
        },
        "/accounts/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Get an account",
                "parameters": [{"type": "string", "description": "Account ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            }
        },
        "/accounts/{id}/default": {
            "put": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["accounts"],
                "summary": "Make an account the default",
                "parameters": [{"type": "string", "description": "Account ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            }
        },
        "/accounts/{id}/budget": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["budget"],
                "summary": "Budget and this month's expenses for an account",
                "parameters": [{"type": "string", "description": "Account ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            }
        },
        "/accounts/{id}/transactions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "List an account's transactions",
                "parameters": [{"type": "string", "description": "Account ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            }
        },
        "/transactions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "List transactions",
                "parameters": [
                    {"type": "string", "description": "From date", "name": "from_date", "in": "query"},
                    {"type": "string", "description": "To date", "name": "to_date", "in": "query"},
                    {"type": "string", "description": "INCOME or EXPENSE", "name": "type", "in": "query"},
                    {"type": "string", "description": "Category", "name": "category", "in": "query"},
                    {"type": "boolean", "description": "Recurring templates only", "name": "is_recurring", "in": "query"}
                ],
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Create a transaction",
                "parameters": [{"description": "Transaction", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransactionRequest"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}, "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            }
        },
        "/transactions/bulk-delete": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Delete several transactions",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            }
        },
        "/transactions/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Get a transaction",
                "parameters": [{"type": "string", "description": "Transaction ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Replace a transaction",
                "parameters": [
                    {"type": "string", "description": "Transaction ID", "name": "id", "in": "path", "required": true},
                    {"description": "Transaction", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransactionRequest"}}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["transactions"],
                "summary": "Delete a transaction",
                "parameters": [{"type": "string", "description": "Transaction ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            }
        },
        "/budget": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["budget"],
                "summary": "Budget progress for the current month",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["budget"],
                "summary": "Set the monthly budget",
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            }
        },
        "/stats/monthly": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["stats"],
                "summary": "Monthly income and expense totals",
                "parameters": [{"type": "string", "description": "Month as YYYY-MM", "name": "month", "in": "query"}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            }
        },
        "/profile": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["profile"],
                "summary": "Current user",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}}}
            }
        },
        "/pipeline/jobs/recurring": {
            "post": {
                "security": [{"PipelineKey": []}],
                "produces": ["application/json"],
                "tags": ["pipeline"],
                "summary": "Run recurring transactions",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/pipeline/jobs/budget-alerts": {
            "post": {
                "security": [{"PipelineKey": []}],
                "produces": ["application/json"],
                "tags": ["pipeline"],
                "summary": "Run budget alerts",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/pipeline/jobs/monthly-reports": {
            "post": {
                "security": [{"PipelineKey": []}],
                "produces": ["application/json"],
                "tags": ["pipeline"],
                "summary": "Send monthly reports",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        }
    },
    "definitions": {
        "CreateAccountRequest": {
            "type": "object",
            "required": ["name", "type"],
            "properties": {
                "name": {"type": "string"},
                "type": {"type": "string", "enum": ["CURRENT", "SAVINGS"]},
                "balance": {"type": "string", "example": "100.00"},
                "is_default": {"type": "boolean"}
            }
        },
        "TransactionRequest": {
            "type": "object",
            "required": ["account_id", "type", "amount"],
            "properties": {
                "account_id": {"type": "string"},
                "type": {"type": "string", "enum": ["INCOME", "EXPENSE"]},
                "amount": {"type": "string", "example": "42.50"},
                "description": {"type": "string"},
                "date": {"type": "string"},
                "category": {"type": "string"},
                "receipt_url": {"type": "string"},
                "is_recurring": {"type": "boolean"},
                "recurring_interval": {"type": "string", "enum": ["DAILY", "WEEKLY", "MONTHLY", "YEARLY"]}
            }
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"}
                    }
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"description": "Type \"Bearer\" followed by a space and the identity token.", "type": "apiKey", "name": "Authorization", "in": "header"},
        "PipelineKey": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Flow API",
	Description:      "Flow tracks accounts, transactions, budgets and recurring payments.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
