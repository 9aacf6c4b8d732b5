package persistence

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dfryer1193/miblog/blog/domain"
	"github.com/google/uuid"
)

var _ domain.PostRepository = (*MemoryPostRepository)(nil)

// MemoryPostRepository implements domain.PostRepository in process memory.
// Nothing survives a restart.
type MemoryPostRepository struct {
	mu    sync.RWMutex
	posts map[string]*domain.Post
	now   func() time.Time
}

func NewMemoryPostRepository() *MemoryPostRepository {
	return &MemoryPostRepository{
		posts: make(map[string]*domain.Post),
		now:   time.Now,
	}
}

// WithClock replaces the clock used to refresh ModifiedAt on replace.
func (r *MemoryPostRepository) WithClock(now func() time.Time) *MemoryPostRepository {
	r.now = now
	return r
}

func (r *MemoryPostRepository) FindByID(_ context.Context, id string) (*domain.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.posts[id].Clone(), nil
}

func (r *MemoryPostRepository) FindByTitle(_ context.Context, title string) (*domain.Post, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.posts {
		if p.Title == title {
			return p.Clone(), nil
		}
	}
	return nil, nil
}

func (r *MemoryPostRepository) Save(_ context.Context, p *domain.Post) (*domain.Post, error) {
	if p == nil {
		return nil, fmt.Errorf("post cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, other := range r.posts {
		if other.Title == p.Title && id != p.ID {
			return nil, fmt.Errorf("%w: title %q is taken", domain.ErrAlreadyExists, p.Title)
		}
	}

	stored := p.Clone()
	stored.CreatedAt = stored.CreatedAt.UTC()
	stored.ModifiedAt = stored.ModifiedAt.UTC()

	if stored.ID == "" {
		stored.ID = uuid.NewString()
	} else {
		existing, ok := r.posts[stored.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, stored.ID)
		}
		stored.CreatedAt = existing.CreatedAt
		stored.ModifiedAt = r.now().UTC()
	}

	r.posts[stored.ID] = stored
	return stored.Clone(), nil
}

func (r *MemoryPostRepository) FindByTitleOrSummaryMatchingOrTagsIn(_ context.Context, titlePattern, summaryPattern string, tags []string) ([]*domain.Post, error) {
	titlePattern = strings.ToLower(titlePattern)
	summaryPattern = strings.ToLower(summaryPattern)

	return r.filter(func(p *domain.Post) bool {
		return strings.Contains(strings.ToLower(p.Title), titlePattern) ||
			strings.Contains(strings.ToLower(p.Summary), summaryPattern) ||
			hasAnyTag(p, tags)
	}), nil
}

func (r *MemoryPostRepository) FindByTagsIn(_ context.Context, tags []string) ([]*domain.Post, error) {
	return r.filter(func(p *domain.Post) bool {
		return hasAnyTag(p, tags)
	}), nil
}

func (r *MemoryPostRepository) FindByCreatedAtBetween(_ context.Context, start, end time.Time) ([]*domain.Post, error) {
	return r.filter(func(p *domain.Post) bool {
		return !p.CreatedAt.Before(start) && !p.CreatedAt.After(end)
	}), nil
}

// filter returns matching posts, newest first.
func (r *MemoryPostRepository) filter(match func(*domain.Post) bool) []*domain.Post {
	r.mu.RLock()
	defer r.mu.RUnlock()

	posts := make([]*domain.Post, 0)
	for _, p := range r.posts {
		if match(p) {
			posts = append(posts, p.Clone())
		}
	}

	slices.SortFunc(posts, func(a, b *domain.Post) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return posts
}

func hasAnyTag(p *domain.Post, tags []string) bool {
	for _, tag := range p.Tags {
		if slices.Contains(tags, tag) {
			return true
		}
	}
	return false
}
