package models

import (
	"anagolay/pkg/domain"
)

// Action names how the holder proves a context.
type Action string

const (
	ActionDNSTXTRecord Action = "dns_txt_record"
)

func (a Action) Valid() bool {
	return a == ActionDNSTXTRecord
}

// StatusKind is the phase of a verification request.
type StatusKind string

const (
	StatusWaiting StatusKind = "waiting"
	StatusPending StatusKind = "pending"
	StatusSuccess StatusKind = "success"
	StatusFailure StatusKind = "failure"
)

func (k StatusKind) Valid() bool {
	switch k {
	case StatusWaiting, StatusPending, StatusSuccess, StatusFailure:
		return true
	}
	return false
}

// Status is the verification status. Reason is only set on failure.
type Status struct {
	Kind   StatusKind `json:"kind"`
	Reason string     `json:"reason,omitempty"`
}

func Waiting() Status { return Status{Kind: StatusWaiting} }
func Pending() Status { return Status{Kind: StatusPending} }
func Success() Status { return Status{Kind: StatusSuccess} }

func Failure(reason string) Status {
	return Status{Kind: StatusFailure, Reason: reason}
}

// IsTerminal reports whether the status ends a verification round.
func (s Status) IsTerminal() bool {
	return s.Kind == StatusSuccess || s.Kind == StatusFailure
}

func (s Status) IsFailure() bool {
	return s.Kind == StatusFailure
}

func (s Status) String() string {
	if s.Reason != "" {
		return string(s.Kind) + "(" + s.Reason + ")"
	}
	return string(s.Kind)
}

// Request is one verification attempt of a holder for a context. At most one
// non-failure request exists per (holder, context).
type Request struct {
	Context Context          `json:"context"`
	Action  Action           `json:"action"`
	Status  Status           `json:"status"`
	Holder  domain.AccountID `json:"holder"`
	Key     string           `json:"key"`
	ID      *string          `json:"id,omitempty"`
}

// Clone returns a deep copy.
func (r Request) Clone() Request {
	if r.ID != nil {
		id := *r.ID
		r.ID = &id
	}
	return r
}

// IndexingData is the envelope handed from perform_verification to the
// off-chain worker.
type IndexingData struct {
	Verifier domain.AccountID `json:"verifier"`
	Request  Request          `json:"request"`
}

func (d IndexingData) Clone() IndexingData {
	d.Request = d.Request.Clone()
	return d
}

// RequestQuery filters GetRequests. An empty Contexts list means every known
// context.
type RequestQuery struct {
	Contexts []Context
	Status   *StatusKind
	Holder   *domain.AccountID
	Offset   uint64
	Limit    uint16
}

// Matches reports whether r passes the status and holder filters.
func (q RequestQuery) Matches(r Request) bool {
	if q.Status != nil && r.Status.Kind != *q.Status {
		return false
	}
	if q.Holder != nil && r.Holder != *q.Holder {
		return false
	}
	return true
}

// Paginate slices filtered results by offset and limit.
func Paginate(requests []Request, offset uint64, limit uint16) []Request {
	if offset >= uint64(len(requests)) {
		return []Request{}
	}
	end := offset + uint64(limit)
	if end > uint64(len(requests)) {
		end = uint64(len(requests))
	}
	return requests[offset:end]
}

// StatusSubmission is the payload of submit_verification_status: the
// envelope with the verified status, signed by the local worker key.
type StatusSubmission struct {
	Data      IndexingData `json:"verification_data"`
	Signature string       `json:"signature"`
}
