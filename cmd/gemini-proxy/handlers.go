package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sternrassler/gemini-mind/pkg/client"
	"github.com/Sternrassler/gemini-mind/pkg/metrics"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// maxRequestBody caps the size of a generate request.
	maxRequestBody = 1 << 20

	requestIDHeader = "X-Request-ID"
)

var validate = validator.New()

type generateRequest struct {
	Text              string         `json:"text" validate:"required"`
	Model             string         `json:"model,omitempty" validate:"omitempty,excludesall=/?#"`
	SystemInstruction *string        `json:"system_instruction,omitempty"`
	Options           map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Text           *string               `json:"text"`
	Successful     bool                  `json:"successful"`
	ContentBlocked bool                  `json:"content_blocked"`
	FinishReason   string                `json:"finish_reason,omitempty"`
	SafetyRatings  []any                 `json:"safety_ratings"`
	Usage          client.UsageMetadata  `json:"usage"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

func newMux(geminiClient *client.Client, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", healthHandler)
	r.Get("/ready", readyHandler(geminiClient))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post("/v1/generate", generateHandler(geminiClient, logger))
	return r
}

// requestID echoes the caller's X-Request-ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "OK")
}

// readyHandler reports whether the configured cache is usable. The proxy
// keeps serving without it, so a lost cache is reported but not fatal.
func readyHandler(geminiClient *client.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if geminiClient.Config().CacheEnabled {
			if m := geminiClient.Cache(); m == nil || !m.Enabled() {
				w.WriteHeader(http.StatusOK)
				fmt.Fprintf(w, "DEGRADED: cache disabled")
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	}
}

func generateHandler(geminiClient *client.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Kind: "request", Message: "invalid JSON body: " + err.Error()}})
			return
		}
		check := req
		check.Text = strings.TrimSpace(req.Text)
		if err := validate.Struct(check); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Kind: "request", Message: err.Error()}})
			return
		}

		opts, err := requestOptions(req)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: errorDetail{Kind: "request", Message: err.Error()}})
			return
		}

		resp, err := geminiClient.GenerateContent(r.Context(), req.Text, opts)
		if err != nil {
			status := statusForError(err)
			logger.Debug().
				Err(err).
				Str("request_id", r.Header.Get(requestIDHeader)).
				Int("status", status).
				Msg("Generate request failed")

			detail := errorDetail{Kind: string(client.KindOf(err)), Message: err.Error()}
			var e *client.Error
			if errors.As(err, &e) {
				detail.Message = e.Message
				detail.StatusCode = e.StatusCode
			}
			writeJSON(w, status, errorBody{Error: detail})
			return
		}

		out := generateResponse{
			Successful:     resp.Successful(),
			ContentBlocked: resp.ContentBlocked(),
			FinishReason:   resp.FinishReason(),
			SafetyRatings:  resp.SafetyRatingsRaw(),
			Usage:          resp.Usage(),
		}
		if text, ok := resp.Text(); ok {
			out.Text = &text
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// requestOptions lifts model and system_instruction out of the options
// object; the top-level fields win.
func requestOptions(req generateRequest) (client.GenerateOptions, error) {
	opts, err := client.ParseGenerateOptions(req.Options)
	if err != nil {
		return client.GenerateOptions{}, err
	}
	if req.Model != "" {
		opts.Model = req.Model
	}
	if req.SystemInstruction != nil {
		opts.SystemInstruction = req.SystemInstruction
	}
	if strings.ContainsAny(opts.Model, "/?#") {
		return client.GenerateOptions{}, fmt.Errorf("model %q must not contain '/', '?' or '#'", opts.Model)
	}
	return opts, nil
}

// statusForError maps the error taxonomy onto proxy status codes.
func statusForError(err error) int {
	switch kind := client.KindOf(err); {
	case kind == client.KindRateLimit:
		return http.StatusTooManyRequests
	case kind == client.KindNotFound:
		return http.StatusNotFound
	case kind == client.KindService:
		return http.StatusServiceUnavailable
	case kind == client.KindTimeout:
		return http.StatusGatewayTimeout
	case kind.Refines(client.KindConnection), kind.Refines(client.KindAPI):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
