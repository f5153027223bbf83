package service

import (
	"context"
	"errors"

	"anagolay/internal/verification/models"
	"anagolay/pkg/domain"
	"anagolay/pkg/platform/sentinel"
)

// GetRequests lists stored requests for the given contexts, or for every
// known context when none are given, filtered by status and holder and then
// sliced by offset and limit. Ordering follows store insertion order.
func (s *Service) GetRequests(ctx context.Context, query models.RequestQuery) ([]models.Request, error) {
	contexts := query.Contexts
	if len(contexts) == 0 {
		var err error
		if query.Holder != nil {
			contexts, err = s.store.ListContextsByHolder(ctx, *query.Holder)
		} else {
			contexts, err = s.store.ListContexts(ctx)
		}
		if err != nil {
			return nil, translateStoreError(err, "failed to list verification contexts")
		}
	}

	var matched []models.Request
	for _, vctx := range contexts {
		vctx = vctx.Normalize()
		holders, err := s.store.ListHolders(ctx, vctx)
		if err != nil {
			return nil, translateStoreError(err, "failed to list holders")
		}
		for _, holder := range holders {
			if query.Holder != nil && holder != *query.Holder {
				continue
			}
			req, err := s.store.FindRequest(ctx, holder, vctx)
			if errors.Is(err, sentinel.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, translateStoreError(err, "failed to load verification request")
			}
			if query.Matches(req) {
				matched = append(matched, req)
			}
		}
	}
	return models.Paginate(matched, query.Offset, query.Limit), nil
}

// Request returns the stored request of holder for vctx.
func (s *Service) Request(ctx context.Context, holder domain.AccountID, vctx models.Context) (models.Request, error) {
	req, err := s.store.FindRequest(ctx, holder, vctx.Normalize())
	if err != nil {
		return models.Request{}, translateStoreError(err, "failed to load verification request")
	}
	return req, nil
}
