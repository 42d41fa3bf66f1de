package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"commandops/internal/apperr"
	"commandops/internal/engine"
	"commandops/internal/engine/auth"
	"commandops/internal/logging"
	"commandops/internal/ratelimit"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	Auth     auth.Service
	Limiter  ratelimit.Limiter
	BasePath string
	Logger   *slog.Logger
}

type apiErrorBody struct {
	Code      string         `json:"code" example:"business_logic"`
	Message   string         `json:"message" example:"active quest limit exceeded: 3 of 3 active, use emergency override"`
	Details   map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
	Retryable bool           `json:"retryable"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

type routes struct {
	engine  engine.Engine
	limiter ratelimit.Limiter
	log     *slog.Logger
}

// New returns an HTTP handler exposing the Command Ops API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Limiter == nil {
		return nil, errors.New("rate limiter required")
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil, false)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema and request decoding problems are caller input errors.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			msgs := make([]string, 0, len(errs))
			for _, err := range errs {
				msgs = append(msgs, err.Error())
			}
			details = map[string]any{"errors": msgs}
		}
		return newAPIError(status, "", msg, details, false)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(newAuthMiddleware(basePath, cfg.Auth))

	hcfg := huma.DefaultConfig("Command Ops API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	r := routes{engine: cfg.Engine, limiter: cfg.Limiter, log: logger}
	registerHealth(group)
	r.registerMissions(group)
	r.registerQuests(group)
	r.registerArchive(group)
	r.registerReadModels(group)
	r.registerFeedback(group)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any, retryable bool) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:      code,
			Message:   message,
			Details:   details,
			Retryable: retryable,
		},
	}
}

// handleError renders err in the envelope. Errors outside the taxonomy are
// logged and reported as a retryable internal error.
func (r routes) handleError(ctx context.Context, op string, err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Database(err)
	}
	if ae.Kind == apperr.KindDatabase {
		logging.From(ctx, r.log).Error("operation failed", "operation", op, "error", err)
		return newAPIError(ae.HTTPStatus(), string(ae.Kind), "internal error", nil, true)
	}
	return newAPIError(ae.HTTPStatus(), string(ae.Kind), ae.Message, ae.Details, ae.Retryable())
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return string(apperr.KindValidation)
	case http.StatusUnauthorized:
		return string(apperr.KindAuthentication)
	case http.StatusForbidden:
		return string(apperr.KindAuthorization)
	case http.StatusNotFound:
		return string(apperr.KindNotFound)
	case http.StatusTooManyRequests:
		return string(apperr.KindRateLimit)
	case http.StatusUnprocessableEntity:
		return string(apperr.KindBusinessLogic)
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// guard resolves the caller and applies the per-action rate limit. Limiter
// failures are logged and the request proceeds.
func (r routes) guard(ctx context.Context, action string) (string, error) {
	ownerID, err := ownerFromContext(ctx)
	if err != nil {
		return "", err
	}
	d, err := r.limiter.Allow(ctx, action, ownerID)
	if err != nil {
		logging.From(ctx, r.log).Warn("rate limiter unavailable", "action", action, "owner_id", ownerID, "error", err)
		return ownerID, nil
	}
	if !d.Allowed {
		retry := int(math.Ceil(d.RetryAfter.Seconds()))
		return "", apperr.RateLimited("too many requests").
			WithDetail("action", action).
			WithDetail("retry_after_seconds", retry)
	}
	return ownerID, nil
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(req.Context())
			scoped := logger.With("request_id", reqID)
			ww := middleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req.WithContext(logging.Into(req.Context(), scoped)))
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			scoped.Info("request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	registry := oas.Components.Schemas
	errSchema := registry.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
	for _, item := range oas.Paths {
		for _, op := range operations(item) {
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {Schema: errSchema},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range operations(item) {
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func operations(item *huma.PathItem) []*huma.Operation {
	var ops []*huma.Operation
	for _, op := range []*huma.Operation{
		item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
	} {
		if op != nil {
			ops = append(ops, op)
		}
	}
	return ops
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}
