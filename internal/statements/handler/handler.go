// Package handler exposes statements over HTTP. Writes are dispatched through
// the runtime so they are stamped with the block they land in.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"anagolay/internal/platform/middleware"
	"anagolay/internal/statements"
	"anagolay/internal/verification/models"
	"anagolay/pkg/cid"
	"anagolay/pkg/domain"
	dErrors "anagolay/pkg/domain-errors"
	"anagolay/pkg/platform/httputil"
	"anagolay/pkg/requestcontext"
)

type Dispatcher interface {
	CreateStatement(ctx context.Context, origin domain.Origin, claim statements.Claim) (statements.Statement, error)
	RevokeStatement(ctx context.Context, origin domain.Origin, id cid.ID) error
}

type Reader interface {
	Get(ctx context.Context, id cid.ID) (statements.Statement, error)
	ListByContext(ctx context.Context, vctx models.Context) ([]statements.Statement, error)
}

type Handler struct {
	dispatcher   Dispatcher
	reader       Reader
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(dispatcher Dispatcher, reader Reader, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		dispatcher:   dispatcher,
		reader:       reader,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(h.logger))

	router.Get("/{id}", h.handleGet)
	router.Get("/contexts/{context}", h.handleListByContext)

	router.Group(func(auth chi.Router) {
		auth.Use(middleware.RequireAccount(h.jwtValidator, h.logger))
		auth.Post("/", h.handleCreate)
		auth.Delete("/{id}", h.handleRevoke)
	})

	r.Mount("/statements", router)
}

type CreateStatementRequest struct {
	Kind       statements.ClaimKind `json:"kind" validate:"required,oneof=ownership copyright"`
	Subject    string               `json:"subject" validate:"required,max=256"`
	Context    models.Context       `json:"context" validate:"required"`
	Expiration uint64               `json:"expiration,omitempty"`
}

type ListResponse struct {
	Statements []statements.Statement `json:"statements"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := httputil.DecodeJSON[CreateStatementRequest](r)
	if err != nil {
		h.writeError(ctx, w, "invalid create statement body", err)
		return
	}

	stmt, err := h.dispatcher.CreateStatement(ctx, requestcontext.Origin(ctx), statements.Claim{
		Kind:       req.Kind,
		Subject:    req.Subject,
		Context:    req.Context,
		Expiration: domain.BlockNumber(req.Expiration),
	})
	if err != nil {
		h.writeError(ctx, w, "create statement failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, stmt)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := cid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "invalid statement id", dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid statement id"))
		return
	}
	if err := h.dispatcher.RevokeStatement(ctx, requestcontext.Origin(ctx), id); err != nil {
		h.writeError(ctx, w, "revoke statement failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := cid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(ctx, w, "invalid statement id", dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid statement id"))
		return
	}
	stmt, err := h.reader.Get(ctx, id)
	if err != nil {
		h.writeError(ctx, w, "get statement failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stmt)
}

func (h *Handler) handleListByContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vctx, err := models.DecodeContextKey(chi.URLParam(r, "context"))
	if err != nil {
		h.writeError(ctx, w, "invalid context key", dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid context key"))
		return
	}
	found, err := h.reader.ListByContext(ctx, vctx)
	if err != nil {
		h.writeError(ctx, w, "list statements failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Statements: found})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	} else {
		h.logger.WarnContext(ctx, msg, "request_id", requestcontext.RequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
