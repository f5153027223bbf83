package service

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"anagolay/internal/verification/models"
	"anagolay/pkg/domain"
	dErrors "anagolay/pkg/domain-errors"
	"anagolay/pkg/platform/events"
	"anagolay/pkg/platform/sentinel"
	"anagolay/pkg/requestcontext"
)

const (
	CallRequestVerification      = "request_verification"
	CallPerformVerification      = "perform_verification"
	CallSubmitVerificationStatus = "submit_verification_status"
)

func startSpan(ctx context.Context, call string, vctx models.Context, holder domain.AccountID) (context.Context, trace.Span) {
	return tracer.Start(ctx, "verification."+call, trace.WithAttributes(
		attribute.String("context", vctx.String()),
		attribute.String("holder", holder.String()),
		attribute.Int64("block", int64(requestcontext.BlockNumber(ctx))),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// RequestVerification opens a Waiting request for the signer on vctx and
// reserves the registration fee. A pair whose last request failed may be
// requested again; any other existing request is rejected.
func (s *Service) RequestVerification(ctx context.Context, origin domain.Origin, vctx models.Context, action models.Action) (request models.Request, err error) {
	vctx = vctx.Normalize()
	ctx, span := startSpan(ctx, CallRequestVerification, vctx, origin.Account)
	defer func() {
		endSpan(span, err)
		s.observeCall(CallRequestVerification, err)
	}()

	holder, err := origin.EnsureSigned()
	if err != nil {
		return models.Request{}, err
	}
	if err := vctx.Validate(); err != nil {
		return models.Request{}, err
	}
	if !action.Valid() {
		return models.Request{}, dErrors.New(dErrors.CodeValidation, "unknown verification action")
	}

	fee := s.cfg.RegistrationFee
	reserved := false
	var previous models.StatusKind
	err = s.tx.RunInTx(ctx, func(st Store) error {
		existing, err := st.FindRequest(ctx, holder, vctx)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return translateStoreError(err, "failed to load verification request")
		}
		if err == nil {
			if !existing.Status.IsFailure() {
				return models.ErrVerificationAlreadyIssued
			}
			previous = existing.Status.Kind
		}

		strat, ok := s.strategies.Find(vctx, action)
		if !ok {
			return models.ErrNoMatchingVerificationStrategy
		}
		req, err := strat.NewRequest(holder, vctx, action)
		if err != nil {
			return err
		}

		if err := st.AddHolder(ctx, vctx, holder, s.cfg.MaxRequestsPerContext); err != nil {
			return translateStoreError(err, "failed to index holder")
		}
		if err := st.SaveRequest(ctx, req); err != nil {
			return translateStoreError(err, "failed to save verification request")
		}
		if tracker, ok := s.invalidator.(ContextTracker); ok {
			if err := tracker.TrackContext(ctx, vctx); err != nil {
				return fmt.Errorf("%w: %v", models.ErrVerificationInvalidation, err)
			}
		}

		if err := s.currency.Reserve(ctx, holder, fee); err != nil {
			s.logger.DebugContext(ctx, "registration fee reserve rejected",
				"holder", holder.String(),
				"fee", uint64(fee),
				"error", err,
			)
			return models.ErrCannotReserveRegistrationFee
		}
		reserved = true
		request = req
		return nil
	})
	if err != nil {
		if reserved {
			s.currency.Unreserve(ctx, holder, fee)
			s.logger.WarnContext(ctx, "registration fee released after failed commit",
				"holder", holder.String(),
				"error", err,
			)
		}
		return models.Request{}, err
	}

	if previous != "" {
		s.metrics.ObserveTransition(string(previous), string(models.StatusWaiting))
	}
	s.logger.InfoContext(ctx, "verification requested",
		"holder", holder.String(),
		"context", vctx.String(),
		"key", request.Key,
	)
	s.emit(ctx, events.Event{
		Kind:      events.KindVerificationRequested,
		Block:     requestcontext.BlockNumber(ctx),
		Account:   holder,
		Actor:     holder,
		Context:   vctx.String(),
		Status:    request.Status.String(),
		Key:       request.Key,
		RequestID: requestcontext.RequestID(ctx),
	})
	return request, nil
}

// PerformVerification moves the stored request to Pending and queues it for
// the off-chain worker at the current block. The signer becomes the verifier.
// Pending and Success requests may be re-queued; Failure requests must be
// requested again.
func (s *Service) PerformVerification(ctx context.Context, origin domain.Origin, request models.Request) (stored models.Request, err error) {
	request.Context = request.Context.Normalize()
	ctx, span := startSpan(ctx, CallPerformVerification, request.Context, request.Holder)
	defer func() {
		endSpan(span, err)
		s.observeCall(CallPerformVerification, err)
	}()

	verifier, err := origin.EnsureSigned()
	if err != nil {
		return models.Request{}, err
	}
	block := requestcontext.BlockNumber(ctx)

	var previous models.StatusKind
	err = s.tx.RunInTx(ctx, func(st Store) error {
		current, err := st.FindRequest(ctx, request.Holder, request.Context)
		if err != nil {
			return translateStoreError(err, "failed to load verification request")
		}
		if current.Status.IsFailure() {
			return models.ErrInvalidVerificationStatus
		}
		previous = current.Status.Kind
		current.ID = request.Clone().ID
		current.Status = models.Pending()
		if err := st.SaveRequest(ctx, current); err != nil {
			return translateStoreError(err, "failed to save verification request")
		}
		data := models.IndexingData{Verifier: verifier, Request: current}
		if err := s.indexer.Index(ctx, block, data); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to index verification for off-chain worker")
		}
		stored = current
		return nil
	})
	if err != nil {
		return models.Request{}, err
	}

	s.metrics.ObserveTransition(string(previous), string(models.StatusPending))
	s.logger.InfoContext(ctx, "verification queued for off-chain check",
		"holder", stored.Holder.String(),
		"verifier", verifier.String(),
		"context", stored.Context.String(),
		"block", uint64(block),
	)
	s.emit(ctx, events.Event{
		Kind:      events.KindVerificationPending,
		Block:     block,
		Account:   stored.Holder,
		Actor:     verifier,
		Context:   stored.Context.String(),
		Status:    stored.Status.String(),
		Key:       stored.Key,
		RequestID: requestcontext.RequestID(ctx),
	})
	return stored, nil
}

// SubmitVerificationStatus records the off-chain worker's verdict for a
// Pending request. Only the unsigned origin with a valid worker signature is
// accepted, and the verdict must carry the stored request's key and record
// ID. A Failure settles the registration fee, to the verifier when the
// verifier is not the holder, and invalidates dependants of the context once
// the call commits.
func (s *Service) SubmitVerificationStatus(ctx context.Context, origin domain.Origin, submission models.StatusSubmission) (err error) {
	data := submission.Data
	ctx, span := startSpan(ctx, CallSubmitVerificationStatus, data.Request.Context, data.Request.Holder)
	defer func() {
		endSpan(span, err)
		s.observeCall(CallSubmitVerificationStatus, err)
	}()

	if err := origin.EnsureNone(); err != nil {
		return err
	}
	if err := s.authority.Verify(data, submission.Signature); err != nil {
		return err
	}
	status := data.Request.Status
	if !status.IsTerminal() {
		return models.ErrInvalidVerificationStatus
	}

	holder, verifier, fee := data.Request.Holder, data.Verifier, s.cfg.RegistrationFee
	slash := verifier != holder
	settled := false
	var (
		resolved     models.Request
		invalidation models.Invalidation
	)
	err = s.tx.RunInTx(ctx, func(st Store) error {
		current, err := st.FindRequest(ctx, holder, data.Request.Context)
		if err != nil {
			return translateStoreError(err, "failed to load verification request")
		}
		if current.Status.Kind != models.StatusPending {
			return models.ErrInvalidVerificationStatus
		}
		if !sameRound(current, data.Request) {
			return models.ErrStaleVerificationStatus
		}
		current.Status = status
		if err := st.SaveRequest(ctx, current); err != nil {
			return translateStoreError(err, "failed to save verification request")
		}
		resolved = current

		if !status.IsFailure() {
			return nil
		}
		if slash {
			if err := s.currency.RepatriateReserved(ctx, holder, verifier, fee); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to transfer registration fee to verifier")
			}
		} else if missing := s.currency.Unreserve(ctx, holder, fee); missing > 0 {
			s.logger.ErrorContext(ctx, "registration fee was not fully reserved",
				"holder", holder.String(),
				"missing", uint64(missing),
			)
		}
		settled = true

		invalidation, err = s.invalidator.Invalidate(ctx, current)
		if err != nil {
			return fmt.Errorf("%w: %v", models.ErrVerificationInvalidation, err)
		}
		return nil
	})
	if err != nil {
		if invalidation != nil {
			invalidation.Rollback(ctx)
		}
		if settled {
			s.revertSettlement(ctx, holder, verifier, fee, slash)
		}
		return err
	}
	if invalidation != nil {
		invalidation.Commit(ctx)
	}

	kind, outcome := events.KindVerificationSuccessful, "bonded"
	if status.IsFailure() {
		kind, outcome = events.KindVerificationFailed, "refunded"
		if slash {
			outcome = "slashed"
		}
	}
	s.metrics.ObserveTransition(string(models.StatusPending), string(status.Kind))
	s.metrics.ObserveSettlement(outcome)
	s.logger.InfoContext(ctx, "verification resolved",
		"holder", holder.String(),
		"verifier", verifier.String(),
		"context", resolved.Context.String(),
		"status", status.String(),
		"settlement", outcome,
	)
	s.emit(ctx, events.Event{
		Kind:      kind,
		Block:     requestcontext.BlockNumber(ctx),
		Account:   holder,
		Actor:     verifier,
		Context:   resolved.Context.String(),
		Status:    string(status.Kind),
		Reason:    status.Reason,
		Key:       resolved.Key,
		RequestID: requestcontext.RequestID(ctx),
	})
	return nil
}

// sameRound reports whether a verdict was produced for the stored request's
// current round: same challenge key and same record ID.
func sameRound(stored, verdict models.Request) bool {
	if stored.Key != verdict.Key || stored.Action != verdict.Action {
		return false
	}
	switch {
	case stored.ID == nil && verdict.ID == nil:
		return true
	case stored.ID == nil || verdict.ID == nil:
		return false
	default:
		return *stored.ID == *verdict.ID
	}
}

// revertSettlement restores the fee reservation after the store rejected the
// commit of a Failure.
func (s *Service) revertSettlement(ctx context.Context, holder, verifier domain.AccountID, fee domain.Balance, slashed bool) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if slashed {
		err = s.currency.Reserve(ctx, verifier, fee)
		if err == nil {
			err = s.currency.RepatriateReserved(ctx, verifier, holder, fee)
		}
	}
	if err == nil {
		err = s.currency.Reserve(ctx, holder, fee)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to restore registration fee after aborted settlement",
			"holder", holder.String(),
			"verifier", verifier.String(),
			"fee", uint64(fee),
			"error", err,
		)
	}
}
