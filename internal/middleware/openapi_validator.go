package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

// OpenAPIValidatorConfig holds configuration for OpenAPI validation middleware
type OpenAPIValidatorConfig struct {
	// SpecPath is the path to the OpenAPI specification file
	SpecPath string
	// ValidateResponses enables response validation (impacts performance)
	ValidateResponses bool
	// SkipPaths are served without validation, matched exactly or as a
	// path prefix ending at a slash
	SkipPaths []string
}

// DefaultOpenAPIValidatorConfig validates requests against specPath
func DefaultOpenAPIValidatorConfig(specPath string) *OpenAPIValidatorConfig {
	return &OpenAPIValidatorConfig{
		SpecPath: specPath,
		SkipPaths: []string{
			"/health",
			"/metrics",
			"/ws",
		},
	}
}

// NewOpenAPIValidator loads the specification and returns a middleware that
// rejects requests not described by it with 400
func NewOpenAPIValidator(config *OpenAPIValidatorConfig) (func(http.Handler) http.Handler, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromFile(config.SpecPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec %s: %w", config.SpecPath, err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAPI router: %w", err)
	}

	slog.Info("OpenAPI validation enabled",
		slog.Bool("validate_responses", config.ValidateResponses),
		slog.String("spec_path", config.SpecPath))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if shouldSkipPath(r.URL.Path, config.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				slog.Warn("request path not found in OpenAPI spec",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path))
				writeValidationError(w, fmt.Sprintf("Path not found in OpenAPI spec: %s %s", r.Method, r.URL.Path))
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				slog.Warn("request validation failed",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()))
				writeValidationError(w, fmt.Sprintf("Request validation failed: %s", err.Error()))
				return
			}

			if !config.ValidateResponses {
				next.ServeHTTP(w, r)
				return
			}

			recorder := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(recorder, r)
			validateResponse(r, route, pathParams, recorder)
		})
	}, nil
}

// validateResponse only logs; the response has already been sent
func validateResponse(r *http.Request, route *routers.Route, pathParams map[string]string, recorder *responseRecorder) {
	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: pathParams,
			Route:      route,
		},
		Status: recorder.statusCode,
		Header: recorder.Header(),
		Body:   io.NopCloser(bytes.NewReader(recorder.body)),
		Options: &openapi3filter.Options{
			AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
		},
	}

	if err := openapi3filter.ValidateResponse(r.Context(), input); err != nil {
		slog.Warn("response validation failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", recorder.statusCode),
			slog.String("error", err.Error()))
	}
}

func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skip := range skipPaths {
		if path == skip || strings.HasPrefix(path, strings.TrimSuffix(skip, "/")+"/") {
			return true
		}
	}
	return false
}

func writeValidationError(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// responseRecorder wraps http.ResponseWriter to capture response data
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return r.ResponseWriter.Write(b)
}
