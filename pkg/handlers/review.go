package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	chiRoute "github.com/go-chi/chi/v5"

	"recognition-review-backend/pkg/middleware"
	"recognition-review-backend/pkg/models"
	"recognition-review-backend/pkg/review"
	"recognition-review-backend/pkg/utils"
)

// ReviewHandler exposes the review workflow over HTTP.
type ReviewHandler struct {
	svc    *review.Service
	loc    *time.Location
	logger *slog.Logger
}

func NewReviewHandler(svc *review.Service, loc *time.Location, logger *slog.Logger) *ReviewHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ReviewHandler{svc: svc, loc: loc, logger: logger}
}

type decisionRequest struct {
	Role     models.ReviewRole `json:"role" validate:"required,oneof=adviser compliance"`
	Outcome  models.Outcome    `json:"outcome" validate:"required,oneof=approve reject"`
	Reason   string            `json:"reason" validate:"max=2000"`
	Deadline string            `json:"deadline,omitempty"`
}

type submitRequest struct {
	OwnerID              string              `json:"owner_id" validate:"required"`
	BatchID              string              `json:"batch_id,omitempty"`
	DocumentType         models.DocumentType `json:"document_type" validate:"required,max=100"`
	FilePath             string              `json:"file_path" validate:"required,max=1024"`
	SupersedesDocumentID string              `json:"supersedes_document_id,omitempty"`
}

type createBatchRequest struct {
	OwnerID string `json:"owner_id" validate:"required"`
	Title   string `json:"title" validate:"required,max=200"`
}

type registerOwnerRequest struct {
	Kind           string                `json:"kind" validate:"required"`
	Name           string                `json:"name" validate:"required,max=200"`
	LifecycleStage models.LifecycleStage `json:"lifecycle_stage,omitempty" validate:"omitempty,oneof=new established"`
}

type stageRequest struct {
	LifecycleStage models.LifecycleStage `json:"lifecycle_stage" validate:"required,oneof=new established"`
}

// POST /api/documents/{id}/decision
func (h *ReviewHandler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.RequireActor(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	var req decisionRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid decision request", err.Error())
		return
	}
	deadline, err := review.ParseDeadline(req.Deadline, h.loc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	result, err := h.svc.Decide(r.Context(), actor, review.DecisionRequest{
		DocumentID: chiRoute.URLParam(r, "id"),
		Role:       req.Role,
		Outcome:    req.Outcome,
		Reason:     req.Reason,
		Deadline:   deadline,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, result)
}

// POST /api/documents
func (h *ReviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.RequireActor(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	var req submitRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid document submission", err.Error())
		return
	}
	doc, err := h.svc.Submit(r.Context(), actor, review.SubmitRequest{
		OwnerID:              req.OwnerID,
		BatchID:              req.BatchID,
		DocumentType:         req.DocumentType,
		FilePath:             req.FilePath,
		SupersedesDocumentID: req.SupersedesDocumentID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, doc)
}

// POST /api/batches
func (h *ReviewHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	actor, err := middleware.RequireActor(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	var req createBatchRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid batch request", err.Error())
		return
	}
	batch, err := h.svc.CreateBatch(r.Context(), actor, req.OwnerID, req.Title)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, batch)
}

// GET /api/batches?owner_id=&document_type=&from=&to=&archived=
func (h *ReviewHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := review.BatchFilter{
		OwnerID:      strings.TrimSpace(q.Get("owner_id")),
		DocumentType: models.DocumentType(strings.TrimSpace(q.Get("document_type"))),
	}
	var err error
	if filter.From, err = h.parseBound(q.Get("from"), false); err != nil {
		utils.WriteBadRequestResponse(w, "from must be RFC3339 or YYYY-MM-DD")
		return
	}
	if filter.To, err = h.parseBound(q.Get("to"), true); err != nil {
		utils.WriteBadRequestResponse(w, "to must be RFC3339 or YYYY-MM-DD")
		return
	}
	if v := q.Get("archived"); v != "" {
		if filter.IncludeArchived, err = strconv.ParseBool(v); err != nil {
			utils.WriteBadRequestResponse(w, "archived must be a boolean")
			return
		}
	}

	batches, err := h.svc.ListVisibleBatches(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WritePaginatedResponse(w, batches, 1, len(batches), len(batches))
}

// POST /api/owners
func (h *ReviewHandler) RegisterOwner(w http.ResponseWriter, r *http.Request) {
	var req registerOwnerRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid owner request", err.Error())
		return
	}
	kind, err := models.ParseOwnerKind(req.Kind)
	if err != nil {
		utils.WriteBadRequestResponse(w, err.Error())
		return
	}
	owner, err := h.svc.RegisterOwner(r.Context(), kind, req.Name, req.LifecycleStage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteCreatedResponse(w, owner)
}

// GET /api/owners/{kind}/{id}/recognition
func (h *ReviewHandler) GetChecklist(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.resolveOwner(w, r)
	if !ok {
		return
	}
	actor, err := middleware.RequireActor(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return
	}
	if actor.Role != models.RoleCompliance && !actor.BoundTo(owner.ID) {
		utils.WriteForbiddenResponse(w, "Not allowed to view this owner")
		return
	}
	checklist, err := h.svc.GetChecklist(r.Context(), owner.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, checklist)
}

// POST /api/owners/{kind}/{id}/recognition/recompute
func (h *ReviewHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.resolveOwner(w, r)
	if !ok {
		return
	}
	status, err := h.svc.RecomputeRecognition(r.Context(), owner.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"owner_id":           owner.ID,
		"recognition_status": status,
		"changed":            status != owner.RecognitionStatus,
	})
}

// PUT /api/owners/{kind}/{id}/stage
func (h *ReviewHandler) SetStage(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.resolveOwner(w, r)
	if !ok {
		return
	}
	var req stageRequest
	if err := middleware.DecodeJSON(r, &req); err != nil {
		utils.WriteValidationErrorResponse(w, "Invalid stage request", err.Error())
		return
	}
	status, err := h.svc.SetLifecycleStage(r.Context(), owner.ID, req.LifecycleStage)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	utils.WriteSuccessResponse(w, map[string]interface{}{
		"owner_id":           owner.ID,
		"lifecycle_stage":    req.LifecycleStage,
		"recognition_status": status,
	})
}

// resolveOwner turns the {kind}/{id} path pair into a verified owner.
func (h *ReviewHandler) resolveOwner(w http.ResponseWriter, r *http.Request) (*models.Owner, bool) {
	kind, err := models.ParseOwnerKind(chiRoute.URLParam(r, "kind"))
	if err != nil {
		utils.WriteNotFoundResponse(w, err.Error())
		return nil, false
	}
	owner, err := h.svc.GetOwner(r.Context(), models.OwnerRef{Kind: kind, ID: chiRoute.URLParam(r, "id")})
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return owner, true
}

// parseBound reads a listing date bound. A bare date as the upper bound covers the whole day.
func (h *ReviewHandler) parseBound(s string, upper bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	if upper {
		return review.ParseDeadline(s, h.loc)
	}
	t, err := time.ParseInLocation("2006-01-02", s, h.loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// writeError maps review error codes onto HTTP statuses.
func (h *ReviewHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if utils.WriteReviewErrorResponse(w, err) {
		return
	}
	h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	utils.WriteInternalServerErrorResponse(w, "Internal server error occurred")
}
