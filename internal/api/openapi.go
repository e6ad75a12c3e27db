package api

import (
	"net/http"

	"github.com/mattjoyce/hwcd/internal/display"
)

// operationNames lists every tag accepted by POST /display/perform.
func operationNames() []string {
	tags := []display.Tag{
		display.TagSetMetadataRefreshEnable,
		display.TagForceRefreshRate,
		display.TagSetDisplayMode,
		display.TagSetSolidFill,
		display.TagUnsetSolidFill,
	}
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, t.String())
	}
	return out
}

func protected(summary, scope string, responses map[string]any) map[string]any {
	responses["401"] = map[string]any{"description": "Missing or invalid bearer token"}
	responses["403"] = map[string]any{"description": "Insufficient scope (" + scope + ")"}
	return map[string]any{
		"summary":   summary,
		"security":  []any{map[string]any{"BearerAuth": []string{}}},
		"responses": responses,
	}
}

func jsonBody(schema map[string]any) map[string]any {
	return map[string]any{
		"required": true,
		"content":  map[string]any{"application/json": map[string]any{"schema": schema}},
	}
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the display API.
func buildOpenAPIDoc() map[string]any {
	perform := protected("Dispatch a display operation", "display:rw", map[string]any{
		"200": map[string]any{"description": "Operation applied"},
		"400": map[string]any{"description": "Unknown operation or malformed body"},
		"409": map[string]any{"description": "Forced refresh rate could not be applied"},
	})
	perform["requestBody"] = jsonBody(map[string]any{
		"type":     "object",
		"required": []string{"operation"},
		"properties": map[string]any{
			"operation": map[string]any{"type": "string", "enum": operationNames()},
			"value":     map[string]any{"type": "integer", "minimum": 0},
		},
	})

	secure := protected("Set the secure display state", "display:rw", map[string]any{
		"200": map[string]any{"description": "Session flags"},
	})
	secure["requestBody"] = jsonBody(map[string]any{
		"type":       "object",
		"properties": map[string]any{"active": map[string]any{"type": "boolean"}},
	})

	paused := protected("Pause or resume composition", "display:rw", map[string]any{
		"200": map[string]any{"description": "Session flags"},
	})
	paused["requestBody"] = jsonBody(map[string]any{
		"type":       "object",
		"properties": map[string]any{"paused": map[string]any{"type": "boolean"}},
	})

	paths := map[string]any{
		"/healthz": map[string]any{"get": map[string]any{
			"summary":   "Liveness and current refresh rate",
			"responses": map[string]any{"200": map[string]any{"description": "Healthy"}},
		}},
		"/display": map[string]any{"get": protected("Session snapshot", "display:ro", map[string]any{
			"200": map[string]any{"description": "Snapshot"},
		})},
		"/display/sessions": map[string]any{"get": protected("Recent sessions", "display:ro", map[string]any{
			"200": map[string]any{"description": "Session records, newest first"},
		})},
		"/display/perform": map[string]any{"post": perform},
		"/display/refresh": map[string]any{"post": protected("Out-of-band refresh", "display:rw", map[string]any{
			"200": map[string]any{"description": "invalidated or not_supported; the rate dropped either way"},
			"503": map[string]any{"description": "No invalidate channel registered"},
		})},
		"/display/secure": map[string]any{"put": secure},
		"/display/paused": map[string]any{"put": paused},
		"/properties": map[string]any{"get": protected("Current property values", "display:ro", map[string]any{
			"200": map[string]any{"description": "Property map"},
		})},
		"/properties/reload": map[string]any{"post": protected("Reload the properties file", "display:rw", map[string]any{
			"200": map[string]any{"description": "Reloaded property map"},
			"422": map[string]any{"description": "Properties file is malformed"},
		})},
		"/events": map[string]any{"get": protected("Server-sent event stream", "events:ro", map[string]any{
			"200": map[string]any{"description": "text/event-stream"},
		})},
		"/metrics": map[string]any{"get": protected("Prometheus metrics", "metrics:ro", map[string]any{
			"200": map[string]any{"description": "Prometheus text exposition"},
		})},
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "hwcd display API",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

// handleOpenAPI handles GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc())
}
