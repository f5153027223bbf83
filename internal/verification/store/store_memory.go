// Package store persists verification requests and the per-context holder index.
package store

import (
	"context"
	"slices"
	"sync"

	"anagolay/internal/verification/models"
	"anagolay/pkg/domain"
	"anagolay/pkg/platform/sentinel"
)

type requestKey struct {
	context string
	holder  domain.AccountID
}

type memState struct {
	contexts []models.Context
	holders  map[string][]domain.AccountID
	requests map[requestKey]models.Request
	byHolder map[domain.AccountID][]string
}

func newMemState() *memState {
	return &memState{
		holders:  make(map[string][]domain.AccountID),
		requests: make(map[requestKey]models.Request),
		byHolder: make(map[domain.AccountID][]string),
	}
}

// InMemoryStore keeps verification state in memory.
type InMemoryStore struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state *memState
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{state: newMemState()}
}

// Atomically runs fn against a Staged view of the store. Writes go to an
// overlay holding only the keys fn touched; they are applied when fn returns
// nil and dropped otherwise. Transactions are serialized.
func (s *InMemoryStore) Atomically(ctx context.Context, fn func(staged *Staged) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	staged := newStaged(s)
	if err := fn(staged); err != nil {
		return err
	}

	s.mu.Lock()
	staged.applyLocked()
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) FindRequest(_ context.Context, holder domain.AccountID, vctx models.Context) (models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.requests[requestKey{vctx.Key(), holder}]
	if !ok {
		return models.Request{}, sentinel.ErrNotFound
	}
	return r.Clone(), nil
}

// SaveRequest upserts the request for (holder, context). The holder must
// already be indexed under the context.
func (s *InMemoryStore) SaveRequest(_ context.Context, request models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := request.Context.Key()
	if !slices.Contains(s.state.holders[key], request.Holder) {
		return sentinel.ErrInvalidState
	}
	s.state.requests[requestKey{key, request.Holder}] = request.Clone()
	return nil
}

func (s *InMemoryStore) ListHolders(_ context.Context, vctx models.Context) ([]domain.AccountID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.holders[vctx.Key()]), nil
}

// AddHolder indexes holder under the context. Adding a holder twice is a
// no-op; adding past limit returns sentinel.ErrLimitReached.
func (s *InMemoryStore) AddHolder(_ context.Context, vctx models.Context, holder domain.AccountID, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := vctx.Key()
	holders, known := s.state.holders[key]
	if slices.Contains(holders, holder) {
		return nil
	}
	if len(holders) >= limit {
		return sentinel.ErrLimitReached
	}
	if !known {
		s.state.contexts = append(s.state.contexts, vctx)
	}
	s.state.holders[key] = append(holders, holder)
	s.state.byHolder[holder] = append(s.state.byHolder[holder], key)
	return nil
}

func (s *InMemoryStore) ListContexts(_ context.Context) ([]models.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.state.contexts), nil
}

func (s *InMemoryStore) ListContextsByHolder(_ context.Context, holder domain.AccountID) ([]models.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return contextsByKeys(s.state.contexts, s.state.byHolder[holder]), nil
}

func contextsByKeys(contexts []models.Context, keys []string) []models.Context {
	out := make([]models.Context, 0, len(keys))
	for _, c := range contexts {
		if slices.Contains(keys, c.Key()) {
			out = append(out, c)
		}
	}
	return out
}

// Staged is the view an Atomically callback works on. Reads see the
// callback's own writes layered over the committed state.
type Staged struct {
	base *InMemoryStore

	contexts []models.Context
	holders  map[string][]domain.AccountID
	requests map[requestKey]models.Request
	byHolder map[domain.AccountID][]string
}

func newStaged(base *InMemoryStore) *Staged {
	return &Staged{
		base:     base,
		holders:  make(map[string][]domain.AccountID),
		requests: make(map[requestKey]models.Request),
		byHolder: make(map[domain.AccountID][]string),
	}
}

func (t *Staged) holdersOf(key string) ([]domain.AccountID, bool) {
	if h, ok := t.holders[key]; ok {
		return h, true
	}
	t.base.mu.RLock()
	defer t.base.mu.RUnlock()
	h, ok := t.base.state.holders[key]
	return h, ok
}

func (t *Staged) keysOf(holder domain.AccountID) []string {
	if k, ok := t.byHolder[holder]; ok {
		return k
	}
	t.base.mu.RLock()
	defer t.base.mu.RUnlock()
	return t.base.state.byHolder[holder]
}

func (t *Staged) FindRequest(ctx context.Context, holder domain.AccountID, vctx models.Context) (models.Request, error) {
	if r, ok := t.requests[requestKey{vctx.Key(), holder}]; ok {
		return r.Clone(), nil
	}
	return t.base.FindRequest(ctx, holder, vctx)
}

func (t *Staged) SaveRequest(_ context.Context, request models.Request) error {
	key := request.Context.Key()
	holders, _ := t.holdersOf(key)
	if !slices.Contains(holders, request.Holder) {
		return sentinel.ErrInvalidState
	}
	t.requests[requestKey{key, request.Holder}] = request.Clone()
	return nil
}

func (t *Staged) ListHolders(_ context.Context, vctx models.Context) ([]domain.AccountID, error) {
	holders, _ := t.holdersOf(vctx.Key())
	return slices.Clone(holders), nil
}

func (t *Staged) AddHolder(_ context.Context, vctx models.Context, holder domain.AccountID, limit int) error {
	key := vctx.Key()
	holders, known := t.holdersOf(key)
	if slices.Contains(holders, holder) {
		return nil
	}
	if len(holders) >= limit {
		return sentinel.ErrLimitReached
	}
	if !known {
		t.contexts = append(t.contexts, vctx)
	}
	t.holders[key] = append(slices.Clone(holders), holder)
	t.byHolder[holder] = append(slices.Clone(t.keysOf(holder)), key)
	return nil
}

func (t *Staged) ListContexts(ctx context.Context) ([]models.Context, error) {
	committed, err := t.base.ListContexts(ctx)
	if err != nil {
		return nil, err
	}
	return append(committed, t.contexts...), nil
}

func (t *Staged) ListContextsByHolder(ctx context.Context, holder domain.AccountID) ([]models.Context, error) {
	all, err := t.ListContexts(ctx)
	if err != nil {
		return nil, err
	}
	return contextsByKeys(all, t.keysOf(holder)), nil
}

// applyLocked writes the overlay into the base state. The caller holds base.mu.
func (t *Staged) applyLocked() {
	state := t.base.state
	state.contexts = append(state.contexts, t.contexts...)
	for k, v := range t.holders {
		state.holders[k] = v
	}
	for k, v := range t.byHolder {
		state.byHolder[k] = v
	}
	for k, v := range t.requests {
		state.requests[k] = v
	}
}
