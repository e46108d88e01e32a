// Package handler exposes the employee-file API over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"dossier/internal/hr/catalog"
	"dossier/internal/hr/models"
	"dossier/internal/platform/middleware"
	id "dossier/pkg/domain"
	dErrors "dossier/pkg/domain-errors"
	"dossier/pkg/platform/httputil"
	"dossier/pkg/requestcontext"
)

// Service defines the operations the HTTP layer needs.
type Service interface {
	Dispatch(ctx context.Context, org id.OrgID, employeeRef string, key models.ActionKey, effective models.Date, payload json.RawMessage, idempotencyKey string, actor id.ActorID) (*models.ActionResult, error)
	EmployeeFile(ctx context.Context, org id.OrgID, employeeRef string, timelineLimit int) (*models.EmployeeFile, error)
	Catalog() []catalog.ActionDescriptor
}

// Handler handles employee-file endpoints.
type Handler struct {
	logger       *slog.Logger
	service      Service
	jwtValidator middleware.JWTValidator
}

// New creates a new Handler.
func New(service Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		jwtValidator: jwtValidator,
	}
}

// Register registers the employee-file routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	hrRouter := chi.NewRouter()
	hrRouter.Use(middleware.Recovery(h.logger))
	hrRouter.Use(middleware.RequestID)
	hrRouter.Use(middleware.RequestTime)
	hrRouter.Use(middleware.Logger(h.logger))
	hrRouter.Use(middleware.Timeout(30 * time.Second))
	hrRouter.Use(middleware.ContentTypeJSON)
	hrRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	hrRouter.Get("/actions/catalog", h.handleCatalog)
	hrRouter.Post("/orgs/{orgID}/actions", h.handleDispatch)
	hrRouter.Post("/orgs/{orgID}/employees/{employeeRef}/actions", h.handleDispatch)
	hrRouter.Get("/orgs/{orgID}/employees/{employeeRef}/file", h.handleEmployeeFile)

	r.Mount("/", hrRouter)
}

// dispatchRequest is the wire shape of a dispatch call. The action payload
// stays raw; the service decodes it against the catalog.
type dispatchRequest struct {
	ActionKey      models.ActionKey `json:"action_key"`
	EffectiveDate  models.Date      `json:"effective_date"`
	IdempotencyKey string           `json:"idempotency_key"`
	Payload        json.RawMessage  `json:"payload"`
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	org, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	actor := requestcontext.ActorID(ctx)
	if actor.IsNil() {
		// This should never happen if RequireAuth middleware is configured correctly
		h.logger.ErrorContext(ctx, "actor missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid dispatch request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.ActionKey == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "action_key is required"))
		return
	}
	if req.EffectiveDate.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "effective_date is required"))
		return
	}

	employeeRef := chi.URLParam(r, "employeeRef")

	result, err := h.service.Dispatch(ctx, org, employeeRef, req.ActionKey, req.EffectiveDate, req.Payload, req.IdempotencyKey, actor)
	if err != nil {
		h.writeDispatchError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if result.IdempotentReplay {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, result)
}

func (h *Handler) handleEmployeeFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	org, err := id.ParseOrgID(chi.URLParam(r, "orgID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	timelineLimit := 0
	if raw := r.URL.Query().Get("timeline_limit"); raw != "" {
		timelineLimit, err = strconv.Atoi(raw)
		if err != nil || timelineLimit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "timeline_limit must be a non-negative integer"))
			return
		}
	}

	file, err := h.service.EmployeeFile(ctx, org, chi.URLParam(r, "employeeRef"), timelineLimit)
	if err != nil {
		h.writeDispatchError(ctx, w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, file)
}

func (h *Handler) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"actions": h.service.Catalog(),
	})
}

// writeDispatchError logs server-side failures and hides their detail from
// the caller; coded client errors pass through.
func (h *Handler) writeDispatchError(ctx context.Context, w http.ResponseWriter, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeUnavailable, dErrors.CodeInternal:
		h.logger.ErrorContext(ctx, "request failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "request failed"))
	default:
		h.logger.WarnContext(ctx, "request rejected",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
	}
}
