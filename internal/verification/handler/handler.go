package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"anagolay/internal/platform/middleware"
	"anagolay/internal/verification/models"
	"anagolay/pkg/domain"
	dErrors "anagolay/pkg/domain-errors"
	"anagolay/pkg/platform/httputil"
	"anagolay/pkg/requestcontext"
)

// DefaultLimit applies when a search does not set one.
const DefaultLimit = 100

// Service is the verification surface exposed over HTTP. Status submissions
// are unsigned and only reach the runtime through the local worker.
type Service interface {
	RequestVerification(ctx context.Context, origin domain.Origin, vctx models.Context, action models.Action) (models.Request, error)
	PerformVerification(ctx context.Context, origin domain.Origin, request models.Request) (models.Request, error)
	GetRequests(ctx context.Context, query models.RequestQuery) ([]models.Request, error)
	Request(ctx context.Context, holder domain.AccountID, vctx models.Context) (models.Request, error)
}

type Handler struct {
	logger       *slog.Logger
	service      Service
	jwtValidator middleware.JWTValidator
}

func New(service Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		jwtValidator: jwtValidator,
	}
}

// Register registers the verification routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestTime)
	router.Use(middleware.ClientMetadata)
	router.Use(middleware.Logger(h.logger))

	router.Post("/requests/search", h.handleSearchRequests)
	router.Get("/requests/{holder}/{context}", h.handleGetRequest)

	router.Group(func(auth chi.Router) {
		auth.Use(middleware.RequireAccount(h.jwtValidator, h.logger))
		auth.Post("/requests", h.handleRequestVerification)
		auth.Post("/perform", h.handlePerformVerification)
	})

	r.Mount("/verification", router)
}

func (h *Handler) handleRequestVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[RequestVerificationRequest](r)
	if err != nil {
		h.writeError(ctx, w, "invalid request verification body", err)
		return
	}

	created, err := h.service.RequestVerification(ctx, requestcontext.Origin(ctx), req.Context, req.Action)
	if err != nil {
		h.writeError(ctx, w, "request verification failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(created))
}

func (h *Handler) handlePerformVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[PerformVerificationRequest](r)
	if err != nil {
		h.writeError(ctx, w, "invalid perform verification body", err)
		return
	}
	holder, err := domain.ParseAccountID(req.Holder)
	if err != nil {
		h.writeError(ctx, w, "invalid holder", err)
		return
	}

	pending, err := h.service.PerformVerification(ctx, requestcontext.Origin(ctx), models.Request{
		Context: req.Context,
		Action:  models.ActionDNSTXTRecord,
		Holder:  holder,
		ID:      req.ID,
	})
	if err != nil {
		h.writeError(ctx, w, "perform verification failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, toResponse(pending))
}

func (h *Handler) handleSearchRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[SearchRequestsRequest](r)
	if err != nil {
		h.writeError(ctx, w, "invalid search body", err)
		return
	}
	query, err := req.toQuery()
	if err != nil {
		h.writeError(ctx, w, "invalid search body", err)
		return
	}

	found, err := h.service.GetRequests(ctx, query)
	if err != nil {
		h.writeError(ctx, w, "search requests failed", err)
		return
	}
	resp := SearchResponse{Requests: make([]RequestResponse, 0, len(found))}
	for _, req := range found {
		resp.Requests = append(resp.Requests, toResponse(req))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	holder, err := domain.ParseAccountID(chi.URLParam(r, "holder"))
	if err != nil {
		h.writeError(ctx, w, "invalid holder", err)
		return
	}
	vctx, err := models.DecodeContextKey(chi.URLParam(r, "context"))
	if err != nil {
		h.writeError(ctx, w, "invalid context key", dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid context key"))
		return
	}

	req, err := h.service.Request(ctx, holder, vctx)
	if err != nil {
		h.writeError(ctx, w, "get request failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(req))
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, msg,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
