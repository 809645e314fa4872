package handlers

import (
	"encoding/json"
	"net/http"

	"labdash/internal/models"
)

func categoryParam() map[string]interface{} {
	enum := make([]string, len(models.Categories))
	for i, c := range models.Categories {
		enum[i] = string(c)
	}
	return map[string]interface{}{
		"name":     "category",
		"in":       "path",
		"required": true,
		"schema":   map[string]interface{}{"type": "string", "enum": enum},
	}
}

func queryParam(name, description, schemaType string) map[string]interface{} {
	schema := map[string]string{"type": schemaType}
	if schemaType == "date" {
		schema = map[string]string{"type": "string", "format": "date"}
	}
	return map[string]interface{}{
		"name":        name,
		"in":          "query",
		"description": description,
		"required":    false,
		"schema":      schema,
	}
}

func jsonResponse(description string, schema interface{}) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{"schema": schema},
		},
	}
}

func ref(name string) map[string]string {
	return map[string]string{"$ref": "#/components/schemas/" + name}
}

var idParam = map[string]interface{}{
	"name":     "id",
	"in":       "path",
	"required": true,
	"schema":   map[string]string{"type": "integer"},
}

var filterParams = []map[string]interface{}{
	categoryParam(),
	queryParam("point", "Filter by sampling point or site code", "string"),
	queryParam("parameter", "Filter by analyte parameter", "string"),
	queryParam("start_date", "First measurement date (YYYY-MM-DD)", "date"),
	queryParam("end_date", "Last measurement date (YYYY-MM-DD)", "date"),
}

// OpenAPISpec returns the OpenAPI 3.0 document for the measurement API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	envelope := jsonResponse("Failure", ref("Envelope"))

	doc := map[string]interface{}{
		"openapi": "3.0.0",
		"info": map[string]interface{}{
			"title":       "Lab Measurements API",
			"description": "Ingestion, validation and querying of water-quality lab measurements",
			"version":     "1.0.0",
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": map[string]interface{}{
			"/api/measurements/{category}": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Submit one measurement",
					"description": "Validates a single form entry and stores it synchronously",
					"parameters":  []map[string]interface{}{categoryParam()},
					"requestBody": map[string]interface{}{
						"required": true,
						"content": map[string]interface{}{
							"application/json": map[string]interface{}{"schema": ref("Submission")},
						},
					},
					"responses": map[string]interface{}{
						"201": jsonResponse("Stored", ref("Envelope")),
						"400": envelope,
						"503": envelope,
					},
				},
				"get": map[string]interface{}{
					"summary": "List measurements",
					"parameters": append(append([]map[string]interface{}{}, filterParams...),
						queryParam("page", "Page number (default: 1)", "integer"),
						queryParam("limit", "Records per page (default: 100, max: 1000)", "integer"),
					),
					"responses": map[string]interface{}{
						"200": jsonResponse("Page of measurements", map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"success":     map[string]string{"type": "boolean"},
								"message":     map[string]string{"type": "string"},
								"data":        map[string]interface{}{"type": "array", "items": ref("Measurement")},
								"total":       map[string]string{"type": "integer"},
								"page":        map[string]string{"type": "integer"},
								"limit":       map[string]string{"type": "integer"},
								"total_pages": map[string]string{"type": "integer"},
							},
						}),
						"400": envelope,
					},
				},
				"delete": map[string]interface{}{
					"summary":    "Delete every measurement of a category",
					"parameters": []map[string]interface{}{categoryParam()},
					"responses":  map[string]interface{}{"200": jsonResponse("Deleted", ref("Envelope"))},
				},
			},
			"/api/measurements/{category}/import": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Import a spreadsheet or delimited file",
					"description": "Rows are validated independently; valid rows are stored even when others fail",
					"parameters":  []map[string]interface{}{categoryParam()},
					"requestBody": map[string]interface{}{
						"required": true,
						"content": map[string]interface{}{
							"multipart/form-data": map[string]interface{}{
								"schema": map[string]interface{}{
									"type": "object",
									"properties": map[string]interface{}{
										"file":      map[string]string{"type": "string", "format": "binary"},
										"separator": map[string]string{"type": "string"},
									},
								},
							},
						},
					},
					"responses": map[string]interface{}{
						"200": jsonResponse("Import report", ref("ImportResult")),
						"400": envelope,
						"413": envelope,
						"422": jsonResponse("No valid rows", ref("ImportResult")),
						"503": envelope,
					},
				},
			},
			"/api/measurements/{category}/stats": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "Category statistics",
					"parameters": filterParams,
					"responses":  map[string]interface{}{"200": jsonResponse("Statistics", ref("Envelope"))},
				},
			},
			"/api/measurements/{category}/{id}": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":    "Get one measurement",
					"parameters": []map[string]interface{}{categoryParam(), idParam},
					"responses": map[string]interface{}{
						"200": jsonResponse("Measurement", ref("Envelope")),
						"404": envelope,
					},
				},
				"delete": map[string]interface{}{
					"summary":    "Delete one measurement",
					"parameters": []map[string]interface{}{categoryParam(), idParam},
					"responses": map[string]interface{}{
						"200": jsonResponse("Deleted", ref("Envelope")),
						"404": envelope,
					},
				},
			},
			"/api/guardar": map[string]interface{}{
				"post": map[string]interface{}{
					"summary":     "Submit one measurement (legacy form)",
					"description": "Same as POST /api/measurements/{category} with the category in the body as categoria; only toc, ph and conductividad",
					"responses": map[string]interface{}{
						"201": jsonResponse("Stored", ref("Envelope")),
						"400": envelope,
					},
				},
			},
			"/api/stats": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":   "Statistics for every category",
					"responses": map[string]interface{}{"200": jsonResponse("Statistics", ref("Envelope"))},
				},
			},
			"/health": map[string]interface{}{
				"get": map[string]interface{}{
					"summary": "Health check",
					"responses": map[string]interface{}{
						"200": jsonResponse("Healthy", ref("Envelope")),
						"503": envelope,
					},
				},
			},
			"/metrics": map[string]interface{}{
				"get": map[string]interface{}{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": map[string]interface{}{
						"200": map[string]interface{}{
							"description": "Prometheus metrics in text format",
							"content": map[string]interface{}{
								"text/plain": map[string]interface{}{
									"schema": map[string]string{"type": "string"},
								},
							},
						},
					},
				},
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"Envelope": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"success": map[string]string{"type": "boolean"},
						"message": map[string]string{"type": "string"},
						"data":    map[string]string{"type": "object"},
					},
				},
				"Submission": map[string]interface{}{
					"type":        "object",
					"description": "toc, ph and conductividad require fecha, dato, pu; fisicoquimica and microbiologia require fecha, punto, parametro, dato",
					"properties": map[string]interface{}{
						"fecha":     map[string]string{"type": "string", "example": "2025-01-10"},
						"dato":      map[string]string{"type": "string", "example": "145,2"},
						"pu":        map[string]string{"type": "string", "example": "003"},
						"punto":     map[string]string{"type": "string"},
						"parametro": map[string]string{"type": "string"},
						"tipo":      map[string]string{"type": "string", "example": "agua"},
						"nota":      map[string]string{"type": "string"},
					},
				},
				"Measurement": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"id":          map[string]string{"type": "integer"},
						"category":    map[string]string{"type": "string"},
						"sub_type":    map[string]interface{}{"type": "string", "nullable": true},
						"point":       map[string]string{"type": "string"},
						"parameter":   map[string]interface{}{"type": "string", "nullable": true},
						"measured_on": map[string]string{"type": "string", "format": "date-time"},
						"value":       map[string]string{"type": "number"},
						"note":        map[string]interface{}{"type": "string", "nullable": true},
						"created_at":  map[string]string{"type": "string", "format": "date-time"},
					},
				},
				"ImportResult": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"success":     map[string]string{"type": "boolean"},
						"message":     map[string]string{"type": "string"},
						"batch_id":    map[string]string{"type": "string"},
						"category":    map[string]string{"type": "string"},
						"total_rows":  map[string]string{"type": "integer"},
						"attempted":   map[string]string{"type": "integer"},
						"inserted":    map[string]string{"type": "integer"},
						"error_count": map[string]string{"type": "integer"},
						"errors":      map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}
