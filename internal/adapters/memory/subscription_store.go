// Package memory holds in-process adapters used by tests and by the
// memory store driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/VictorLirio/nimbus-api/internal/domain"
	"github.com/VictorLirio/nimbus-api/internal/domain/ports"
	"github.com/VictorLirio/nimbus-api/pkg/timeutil"
)

// SubscriptionStore keeps subscriptions in a map guarded by a mutex and
// serializes per-user scopes with one-slot semaphores.
type SubscriptionStore struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*domain.Subscription
	byRef map[string]uuid.UUID
	clock timeutil.Clock

	locksMu sync.Mutex
	locks   map[string]chan struct{}

	saveHook func(sub *domain.Subscription) error
}

// NewSubscriptionStore creates an empty store
func NewSubscriptionStore(clock timeutil.Clock) *SubscriptionStore {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &SubscriptionStore{
		byID:  make(map[uuid.UUID]*domain.Subscription),
		byRef: make(map[string]uuid.UUID),
		clock: clock,
		locks: make(map[string]chan struct{}),
	}
}

// FailSavesWith makes every Save return the hook's error when it is non-nil.
// Passing nil removes the hook.
func (s *SubscriptionStore) FailSavesWith(hook func(sub *domain.Subscription) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveHook = hook
}

// Len returns the number of stored subscriptions
func (s *SubscriptionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *SubscriptionStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.byID[id]
	if !ok {
		return nil, domain.NewSubscriptionNotFound(id.String())
	}
	return sub.Clone(), nil
}

func (s *SubscriptionStore) FindByExternalReference(ctx context.Context, ref string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byRef[ref]
	if !ok {
		return nil, domain.NewSubscriptionNotFound(ref).WithDetail("external_reference_id", ref)
	}
	return s.byID[id].Clone(), nil
}

func (s *SubscriptionStore) FindActiveForUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	all, _ := s.FindAllForUser(ctx, userID)
	for _, sub := range all {
		if sub.IsLive() {
			return sub, nil
		}
	}
	return nil, nil
}

func (s *SubscriptionStore) FindAllForUser(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	s.mu.RLock()
	out := make([]*domain.Subscription, 0)
	for _, sub := range s.byID {
		if sub.UserID == userID {
			out = append(out, sub.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *SubscriptionStore) Save(ctx context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(sub, sub.Version); err != nil {
		return err
	}
	sub.Version++
	s.putLocked(sub.Clone())
	return nil
}

// checkLocked validates a write of sub that expects the stored version to
// be expected (zero for an insert).
func (s *SubscriptionStore) checkLocked(sub *domain.Subscription, expected int64) error {
	if s.saveHook != nil {
		if err := s.saveHook(sub); err != nil {
			return err
		}
	}

	if ref := sub.ExternalRef(); ref != "" {
		if owner, ok := s.byRef[ref]; ok && owner != sub.ID {
			return domain.NewDomainError(domain.ErrorCodeConflict, "external reference already in use").
				WithDetail("external_reference_id", ref)
		}
	}

	existing, exists := s.byID[sub.ID]
	switch {
	case expected == 0 && exists:
		return domain.NewVersionConflict(sub.ID.String())
	case expected != 0 && !exists:
		return domain.NewSubscriptionNotFound(sub.ID.String())
	case exists && existing.Version != expected:
		return domain.NewVersionConflict(sub.ID.String())
	}
	return nil
}

func (s *SubscriptionStore) putLocked(stored *domain.Subscription) {
	if existing, ok := s.byID[stored.ID]; ok && existing.ExternalRef() != "" && existing.ExternalRef() != stored.ExternalRef() {
		delete(s.byRef, existing.ExternalRef())
	}
	s.byID[stored.ID] = stored
	if ref := stored.ExternalRef(); ref != "" {
		s.byRef[ref] = stored.ID
	}
}

func (s *SubscriptionStore) FindExpiringWithin(ctx context.Context, window time.Duration) ([]*domain.Subscription, error) {
	now := s.clock.Now()
	until := now.Add(window)

	s.mu.RLock()
	out := make([]*domain.Subscription, 0)
	for _, sub := range s.byID {
		if !sub.IsLive() {
			continue
		}
		if sub.CurrentPeriodEnd.Before(now) || sub.CurrentPeriodEnd.After(until) {
			continue
		}
		out = append(out, sub.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CurrentPeriodEnd.Before(out[j].CurrentPeriodEnd)
	})
	return out, nil
}

func (s *SubscriptionStore) userLock(userID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[userID] = l
	}
	return l
}

// WithUserLock runs fn holding the user's scope. Saves made through the
// scoped store are buffered and applied together when fn returns nil.
func (s *SubscriptionStore) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, store ports.SubscriptionStore) error) error {
	lock := s.userLock(userID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return domain.NewPersistenceError("acquire user scope", ctx.Err())
	}
	defer func() { <-lock }()

	scoped := &scopedStore{parent: s, pending: make(map[uuid.UUID]*pendingWrite)}
	if err := fn(ctx, scoped); err != nil {
		return err
	}
	return scoped.commit()
}

// scopedStore overlays uncommitted saves on the parent store.
type scopedStore struct {
	parent  *SubscriptionStore
	pending map[uuid.UUID]*pendingWrite
	order   []uuid.UUID
}

type pendingWrite struct {
	sub  *domain.Subscription
	base int64
}

func (t *scopedStore) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	if p, ok := t.pending[id]; ok {
		return p.sub.Clone(), nil
	}
	return t.parent.FindByID(ctx, id)
}

func (t *scopedStore) FindByExternalReference(ctx context.Context, ref string) (*domain.Subscription, error) {
	for _, p := range t.pending {
		if p.sub.ExternalRef() == ref {
			return p.sub.Clone(), nil
		}
	}
	return t.parent.FindByExternalReference(ctx, ref)
}

func (t *scopedStore) FindActiveForUser(ctx context.Context, userID string) (*domain.Subscription, error) {
	all, err := t.FindAllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, sub := range all {
		if sub.IsLive() {
			return sub, nil
		}
	}
	return nil, nil
}

func (t *scopedStore) FindAllForUser(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	committed, err := t.parent.FindAllForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Subscription, 0, len(committed)+len(t.pending))
	for _, sub := range committed {
		if p, ok := t.pending[sub.ID]; ok {
			out = append(out, p.sub.Clone())
			continue
		}
		out = append(out, sub)
	}
	for _, id := range t.order {
		p := t.pending[id]
		if p.base != 0 || p.sub.UserID != userID {
			continue
		}
		out = append(out, p.sub.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *scopedStore) Save(ctx context.Context, sub *domain.Subscription) error {
	p, ok := t.pending[sub.ID]
	if ok {
		if p.sub.Version != sub.Version {
			return domain.NewVersionConflict(sub.ID.String())
		}
	} else {
		p = &pendingWrite{base: sub.Version}
		t.pending[sub.ID] = p
		t.order = append(t.order, sub.ID)
	}
	sub.Version++
	p.sub = sub.Clone()
	return nil
}

func (t *scopedStore) FindExpiringWithin(ctx context.Context, window time.Duration) ([]*domain.Subscription, error) {
	return t.parent.FindExpiringWithin(ctx, window)
}

func (t *scopedStore) commit() error {
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	for _, id := range t.order {
		p := t.pending[id]
		if err := t.parent.checkLocked(p.sub, p.base); err != nil {
			return err
		}
	}
	for _, id := range t.order {
		t.parent.putLocked(t.pending[id].sub.Clone())
	}
	return nil
}

var (
	_ ports.SubscriptionStore = (*SubscriptionStore)(nil)
	_ ports.UserScope         = (*SubscriptionStore)(nil)
)
