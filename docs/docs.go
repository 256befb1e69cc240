// Package docs holds the swagger document served under /docs.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        },
        "/api": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Action dispatcher",
                "parameters": [
                    {
                        "enum": ["startImport", "startUpdate", "importStatus", "updateStatus", "stopImport", "stopUpdate", "exportImages", "archiveImage", "deleteAllImages"],
                        "type": "string",
                        "description": "Operation name",
                        "name": "action",
                        "in": "query",
                        "required": true
                    }
                ],
                "responses": {
                    "400": {"description": "Unknown action", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/startImport": {
            "get": {
                "description": "Enumerates the content directory, queues new files and starts a worker",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Start an import job",
                "parameters": [
                    {"type": "integer", "description": "Owner id", "name": "user_id", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StartImportResponse"}},
                    "400": {"description": "Invalid owner or nothing to import", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Owner already has an active job", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/startUpdate": {
            "get": {
                "description": "Reads the metadata file, queues its records and starts a worker",
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Start a metadata update job",
                "parameters": [
                    {"type": "integer", "description": "Owner id", "name": "user_id", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StartUpdateResponse"}},
                    "400": {"description": "Invalid owner or nothing to update", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Owner already has an active job", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/importStatus": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Import job status",
                "parameters": [
                    {"type": "integer", "description": "Job id", "name": "job_id", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ImportStatusResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/updateStatus": {
            "get": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Update job status",
                "parameters": [
                    {"type": "integer", "description": "Job id", "name": "job_id", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UpdateStatusResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/stopImport": {
            "post": {
                "description": "Flags the job stopped; the worker exits at its next checkpoint. The job's queue rows are purged.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Stop an import job",
                "parameters": [
                    {"type": "integer", "description": "Job id", "name": "job_id", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StopResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/stopUpdate": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Stop an update job",
                "parameters": [
                    {"type": "integer", "description": "Job id", "name": "job_id", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StopResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/queue/{kind}": {
            "delete": {
                "produces": ["application/json"],
                "tags": ["jobs"],
                "summary": "Purge finished queue rows",
                "parameters": [
                    {"enum": ["import", "update"], "type": "string", "description": "Job kind", "name": "kind", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.PurgeQueueResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/exportImages": {
            "get": {
                "produces": ["text/csv", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "tags": ["catalog"],
                "summary": "Export the catalog",
                "parameters": [
                    {"enum": ["csv", "xlsx"], "type": "string", "default": "csv", "description": "Export format", "name": "format", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/archiveImage": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["catalog"],
                "summary": "Archive an image",
                "parameters": [
                    {"type": "integer", "description": "Image id", "name": "image_id", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ArchiveResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/deleteAllImages": {
            "delete": {
                "produces": ["application/json"],
                "tags": ["catalog"],
                "summary": "Delete the whole catalog",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.DeleteAllResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "job_id": {"type": "integer"},
                "job_status": {"type": "string", "enum": ["pending", "running", "stopped", "completed"]}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "database": {"type": "string"},
                "workers": {"type": "integer"}
            }
        },
        "handlers.StartImportResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "job_id": {"type": "integer"},
                "added_images": {"type": "integer"}
            }
        },
        "handlers.StartUpdateResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "job_id": {"type": "integer"},
                "added_records": {"type": "integer"}
            }
        },
        "handlers.ImportStatusResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "job_status": {"type": "string", "enum": ["pending", "running", "stopped", "completed"]},
                "total": {"type": "integer"},
                "pending": {"type": "integer"},
                "not_pending": {"type": "integer"},
                "processing_filename": {"type": "string"},
                "failed": {"type": "integer"},
                "worker_alive": {"type": "boolean"}
            }
        },
        "handlers.UpdateStatusResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "status": {"type": "string", "enum": ["pending", "running", "stopped", "completed"]},
                "total": {"type": "integer"},
                "pending": {"type": "integer"},
                "not_pending": {"type": "integer"},
                "failed": {"type": "integer"},
                "worker_alive": {"type": "boolean"}
            }
        },
        "handlers.StopResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "job_id": {"type": "integer"},
                "job_status": {"type": "string"},
                "purged": {"type": "integer"}
            }
        },
        "handlers.PurgeQueueResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "kind": {"type": "string", "enum": ["import", "update"]},
                "purged": {"type": "integer"}
            }
        },
        "handlers.ArchiveResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "image_id": {"type": "integer"}
            }
        },
        "handlers.DeleteAllResponse": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "deleted_images": {"type": "integer"},
                "files_removed": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Catalog Service API",
	Description:      "Background import and metadata update jobs for the photo catalog.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
