package repository

import (
	"context"
	"sync"
	"time"

	"agendamento/internal/models"
)

// MemoryDraftRepository keeps drafts in process memory. Used when Redis is
// not configured or is down.
type MemoryDraftRepository struct {
	mu         sync.Mutex
	drafts     map[string]draftEntry
	rateLimits map[string]*rateLimitEntry
	ttl        time.Duration
	now        func() time.Time
}

type draftEntry struct {
	draft     models.Draft
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryDraftRepository(ttl time.Duration) *MemoryDraftRepository {
	return &MemoryDraftRepository{
		drafts:     make(map[string]draftEntry),
		rateLimits: make(map[string]*rateLimitEntry),
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *MemoryDraftRepository) GetDraft(_ context.Context, userID string) (*models.Draft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.drafts[userID]
	if !ok {
		return nil, nil
	}
	if r.ttl > 0 && r.now().After(entry.expiresAt) {
		delete(r.drafts, userID)
		return nil, nil
	}
	d := entry.draft
	return &d, nil
}

func (r *MemoryDraftRepository) SetDraft(_ context.Context, draft *models.Draft) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.drafts[draft.UserID] = draftEntry{draft: *draft, expiresAt: r.now().Add(r.ttl)}
	return nil
}

func (r *MemoryDraftRepository) ClearDraft(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.drafts, userID)
	return nil
}

func (r *MemoryDraftRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++

	return entry.count <= limit, nil
}
