// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/okian/platewatch/internal/adapters/repository"
	service "github.com/okian/platewatch/internal/app"
	"github.com/okian/platewatch/internal/domain/model"
	"github.com/okian/platewatch/internal/domain/plate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals // shared codec

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	StatsProvider

	IngestReading(ctx context.Context, r service.Reading) (service.Result, error)

	Query(ctx context.Context, q repository.Query) (repository.Page, error)
	Get(ctx context.Context, text string) (model.PlateRecord, error)
	Verify(ctx context.Context, text, note string) (model.PlateRecord, error)
	Flag(ctx context.Context, text, reason string) (model.PlateRecord, error)
	Delete(ctx context.Context, text string) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	readingsHandler *ReadingsHandler
	platesHandler   *PlatesHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	v := validator.New()
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(deps),
		readingsHandler: NewReadingsHandler(deps, v),
		platesHandler:   NewPlatesHandler(deps, v),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", MetricsMiddleware(s.healthHandler.HandleMetrics, "metrics"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /readings", MetricsMiddleware(s.readingsHandler.HandlePostReading, "readings"))
	mux.HandleFunc("GET /plates", MetricsMiddleware(s.platesHandler.HandleList, "plates"))
	mux.HandleFunc("GET /plates/{text}", MetricsMiddleware(s.platesHandler.HandleGet, "plate"))
	mux.HandleFunc("DELETE /plates/{text}", MetricsMiddleware(s.platesHandler.HandleDelete, "plate"))
	mux.HandleFunc("POST /plates/{text}/verify", MetricsMiddleware(s.platesHandler.HandleVerify, "verify"))
	mux.HandleFunc("POST /plates/{text}/flag", MetricsMiddleware(s.platesHandler.HandleFlag, "flag"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps ledger and validator errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, op string, err error) {
	wrapped := fmt.Errorf("%s: %w", op, err)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", wrapped)
	case errors.Is(err, repository.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", wrapped)
	case errors.Is(err, plate.ErrRejected):
		writeError(w, http.StatusUnprocessableEntity, "rejected", wrapped)
	case errors.Is(err, repository.ErrInvalidObservation),
		errors.Is(err, repository.ErrInvalidQuery),
		errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", wrapped)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", wrapped)
	}
}

// plateText reads the {text} path value in canonical form. Text that fits
// no grammar is only trimmed and uppercased so restored rows stay reachable.
func plateText(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.PathValue("text"))
	if raw == "" {
		return "", ErrNoPlate
	}
	if res, err := plate.Validate(raw); err == nil {
		return res.Text, nil
	}
	return strings.ToUpper(raw), nil
}

// decodeBody decodes an optional JSON body into v and validates it.
func decodeBody(r *http.Request, v any, validate *validator.Validate) error {
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(v); err != nil {
			if !errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: %w", ErrBadRequest, err)
			}
		}
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
