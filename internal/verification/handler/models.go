package handler

import (
	"anagolay/internal/verification/models"
	"anagolay/pkg/domain"
)

type RequestVerificationRequest struct {
	Context models.Context `json:"context" validate:"required"`
	Action  models.Action  `json:"action" validate:"required,oneof=dns_txt_record"`
}

// PerformVerificationRequest names the request to queue by its holder and
// context; ID is the record the verification is performed for.
type PerformVerificationRequest struct {
	Holder  string         `json:"holder" validate:"required,account"`
	Context models.Context `json:"context" validate:"required"`
	ID      *string        `json:"id,omitempty" validate:"omitempty,max=128"`
}

type SearchRequestsRequest struct {
	Contexts []models.Context `json:"contexts" validate:"max=64,dive"`
	Status   string           `json:"status,omitempty" validate:"omitempty,oneof=waiting pending success failure"`
	Holder   string           `json:"holder,omitempty" validate:"omitempty,account"`
	Offset   uint64           `json:"offset"`
	Limit    uint16           `json:"limit" validate:"max=1000"`
}

func (r SearchRequestsRequest) toQuery() (models.RequestQuery, error) {
	q := models.RequestQuery{
		Contexts: r.Contexts,
		Offset:   r.Offset,
		Limit:    r.Limit,
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if r.Status != "" {
		status := models.StatusKind(r.Status)
		q.Status = &status
	}
	if r.Holder != "" {
		holder, err := domain.ParseAccountID(r.Holder)
		if err != nil {
			return models.RequestQuery{}, err
		}
		q.Holder = &holder
	}
	return q, nil
}

type RequestResponse struct {
	Context    models.Context `json:"context"`
	ContextKey string         `json:"context_key"`
	Action     models.Action  `json:"action"`
	Status     models.Status  `json:"status"`
	Holder     string         `json:"holder"`
	Key        string         `json:"key"`
	ID         *string        `json:"id,omitempty"`
}

type SearchResponse struct {
	Requests []RequestResponse `json:"requests"`
}

func toResponse(r models.Request) RequestResponse {
	return RequestResponse{
		Context:    r.Context,
		ContextKey: r.Context.Key(),
		Action:     r.Action,
		Status:     r.Status,
		Holder:     r.Holder.String(),
		Key:        r.Key,
		ID:         r.ID,
	}
}
