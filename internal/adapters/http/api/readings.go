package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/platewatch/internal/app"
	"github.com/okian/platewatch/internal/domain/model"
)

// ReadingDependencies defines what POST /readings needs.
type ReadingDependencies interface {
	IngestReading(ctx context.Context, r service.Reading) (service.Result, error)
}

// readingRequest is the body of POST /readings, sent by cameras that run
// their own OCR.
type readingRequest struct {
	PlateText   string            `json:"plate_text" validate:"required,max=32"`
	Confidence  *float64          `json:"confidence" validate:"required,gte=0,lte=1"`
	Location    string            `json:"location" validate:"required,max=128"`
	Coordinates model.Coordinates `json:"coordinates"`
	Timestamp   *time.Time        `json:"timestamp,omitempty"`
}

type readingResponse struct {
	ID             string  `json:"id"`
	PlateText      string  `json:"plate_text"`
	PatternKind    string  `json:"pattern_kind"`
	Confidence     float64 `json:"confidence"`
	DetectionCount int     `json:"detection_count"`
	Created        bool    `json:"created"`
	BestImproved   bool    `json:"best_improved"`
}

// ReadingsHandler handles reading ingestion.
type ReadingsHandler struct {
	deps     ReadingDependencies
	validate *validator.Validate
}

// NewReadingsHandler creates a new readings handler.
func NewReadingsHandler(deps ReadingDependencies, v *validator.Validate) *ReadingsHandler {
	return &ReadingsHandler{deps: deps, validate: v}
}

// HandlePostReading handles POST /readings requests. A new plate answers
// 201, a repeated sighting 200.
func (h *ReadingsHandler) HandlePostReading(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_reading"
	var req readingRequest
	if err := decodeBody(r, &req, h.validate); err != nil {
		writeDomainError(w, op, err)
		return
	}

	reading := service.Reading{
		Text:        req.PlateText,
		Confidence:  *req.Confidence,
		Coordinates: req.Coordinates,
		Location:    req.Location,
	}
	if req.Timestamp != nil {
		reading.Timestamp = req.Timestamp.UTC()
	}

	res, err := h.deps.IngestReading(r.Context(), reading)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}

	status := http.StatusOK
	if res.Ack.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, readingResponse{
		ID:             res.Ack.ID,
		PlateText:      res.Observation.Text,
		PatternKind:    res.Observation.PatternKind,
		Confidence:     res.Observation.Confidence,
		DetectionCount: res.Ack.DetectionCount,
		Created:        res.Ack.Created,
		BestImproved:   res.Ack.BestImproved,
	})
}
