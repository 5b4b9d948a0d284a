package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/okian/platewatch/internal/adapters/repository"
	"github.com/okian/platewatch/internal/domain/model"
)

// PlateDependencies defines the ledger operations behind /plates.
type PlateDependencies interface {
	Query(ctx context.Context, q repository.Query) (repository.Page, error)
	Get(ctx context.Context, text string) (model.PlateRecord, error)
	Verify(ctx context.Context, text, note string) (model.PlateRecord, error)
	Flag(ctx context.Context, text, reason string) (model.PlateRecord, error)
	Delete(ctx context.Context, text string) error
}

type listRequest struct {
	Search string `validate:"max=64"`
	Status string `validate:"omitempty,oneof=detected verified flagged"`
	Sort   string `validate:"omitempty,oneof=plate_text confidence detection_count first_seen last_seen"`
	Order  string `validate:"omitempty,oneof=asc desc"`
	Page   int    `validate:"gte=0"`
	Limit  int    `validate:"gte=0"`
}

type verifyRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

type flagRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type listResponse struct {
	Plates     []model.PlateRecord `json:"plates"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
	TotalPages int                 `json:"total_pages"`
	HasNext    bool                `json:"has_next"`
	HasPrev    bool                `json:"has_prev"`
}

// PlatesHandler handles plate listing and review.
type PlatesHandler struct {
	deps     PlateDependencies
	validate *validator.Validate
}

// NewPlatesHandler creates a new plates handler.
func NewPlatesHandler(deps PlateDependencies, v *validator.Validate) *PlatesHandler {
	return &PlatesHandler{deps: deps, validate: v}
}

// HandleList handles GET /plates?q=&status=&sort=&order=&page=&limit=.
// Results are newest first unless order=asc.
func (h *PlatesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_plates"
	req, err := parseList(r.URL.Query())
	if err == nil {
		err = h.validate.Struct(req)
	}
	if err != nil {
		writeDomainError(w, op, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}

	page, err := h.deps.Query(r.Context(), repository.Query{
		Search: req.Search,
		Status: model.Status(req.Status),
		SortBy: req.Sort,
		Desc:   req.Order != "asc",
		Page:   req.Page,
		Limit:  req.Limit,
	})
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	plates := page.Records
	if plates == nil {
		plates = []model.PlateRecord{}
	}
	writeJSON(w, http.StatusOK, listResponse{
		Plates:     plates,
		Total:      page.Total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: page.TotalPages,
		HasNext:    page.HasNext,
		HasPrev:    page.HasPrev,
	})
}

func parseList(v url.Values) (listRequest, error) {
	req := listRequest{
		Search: v.Get("q"),
		Status: v.Get("status"),
		Sort:   v.Get("sort"),
		Order:  v.Get("order"),
	}
	var err error
	if s := v.Get("page"); s != "" {
		if req.Page, err = strconv.Atoi(s); err != nil {
			return req, fmt.Errorf("invalid page %q", s)
		}
	}
	if s := v.Get("limit"); s != "" {
		if req.Limit, err = strconv.Atoi(s); err != nil {
			return req, fmt.Errorf("invalid limit %q", s)
		}
	}
	return req, nil
}

// HandleGet handles GET /plates/{text}.
func (h *PlatesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_plate"
	text, err := plateText(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	rec, err := h.deps.Get(r.Context(), text)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleVerify handles POST /plates/{text}/verify.
func (h *PlatesHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	const op = "api.verify_plate"
	text, err := plateText(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req verifyRequest
	if err := decodeBody(r, &req, h.validate); err != nil {
		writeDomainError(w, op, err)
		return
	}
	rec, err := h.deps.Verify(r.Context(), text, req.Note)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleFlag handles POST /plates/{text}/flag.
func (h *PlatesHandler) HandleFlag(w http.ResponseWriter, r *http.Request) {
	const op = "api.flag_plate"
	text, err := plateText(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req flagRequest
	if err := decodeBody(r, &req, h.validate); err != nil {
		writeDomainError(w, op, err)
		return
	}
	rec, err := h.deps.Flag(r.Context(), text, req.Reason)
	if err != nil {
		writeDomainError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleDelete handles DELETE /plates/{text}.
func (h *PlatesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_plate"
	text, err := plateText(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.deps.Delete(r.Context(), text); err != nil {
		writeDomainError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
