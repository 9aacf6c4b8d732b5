package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dfryer1193/miblog/blog/domain"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

var _ domain.PostRepository = (*CachedPostRepository)(nil)

const (
	postKeyFormat   = "post:%s" // <postID>
	defaultCacheTTL = time.Hour
)

func PostKey(postID string) string {
	return fmt.Sprintf(postKeyFormat, postID)
}

// CachedPostRepository keeps posts looked up by ID in Redis in front of
// another repository. Cache failures are logged and never fail a call;
// queries other than FindByID always go to the wrapped repository.
type CachedPostRepository struct {
	next domain.PostRepository
	rdb  *redis.Client
	ttl  time.Duration
}

func NewCachedPostRepository(next domain.PostRepository, rdb *redis.Client, ttl time.Duration) *CachedPostRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedPostRepository{
		next: next,
		rdb:  rdb,
		ttl:  ttl,
	}
}

func (r *CachedPostRepository) FindByID(ctx context.Context, id string) (*domain.Post, error) {
	key := PostKey(id)

	value, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached cachedPost
		decodeErr := json.Unmarshal(value, &cached)
		if decodeErr == nil {
			return cached.toDomain(), nil
		}
		log.Warn().Err(decodeErr).Str("key", key).Msg("Discarding undecodable cached post")
	case !errors.Is(err, redis.Nil):
		log.Warn().Err(err).Str("key", key).Msg("Failed to read post from redis")
	}

	post, err := r.next.FindByID(ctx, id)
	if err != nil || post == nil {
		return post, err
	}

	r.store(ctx, post)
	return post, nil
}

func (r *CachedPostRepository) FindByTitle(ctx context.Context, title string) (*domain.Post, error) {
	return r.next.FindByTitle(ctx, title)
}

// Save writes to the wrapped repository and evicts the cache entry so the next
// FindByID repopulates it. A FindByID that read the old row before the save
// committed can still cache it after the eviction; such an entry lives at
// most one TTL.
func (r *CachedPostRepository) Save(ctx context.Context, p *domain.Post) (*domain.Post, error) {
	saved, err := r.next.Save(ctx, p)
	if err != nil {
		if p != nil && p.ID != "" {
			r.evict(ctx, p.ID)
		}
		return nil, err
	}

	r.evict(ctx, saved.ID)
	return saved, nil
}

func (r *CachedPostRepository) FindByTitleOrSummaryMatchingOrTagsIn(ctx context.Context, titlePattern, summaryPattern string, tags []string) ([]*domain.Post, error) {
	return r.next.FindByTitleOrSummaryMatchingOrTagsIn(ctx, titlePattern, summaryPattern, tags)
}

func (r *CachedPostRepository) FindByTagsIn(ctx context.Context, tags []string) ([]*domain.Post, error) {
	return r.next.FindByTagsIn(ctx, tags)
}

func (r *CachedPostRepository) FindByCreatedAtBetween(ctx context.Context, start, end time.Time) ([]*domain.Post, error) {
	return r.next.FindByCreatedAtBetween(ctx, start, end)
}

func (r *CachedPostRepository) store(ctx context.Context, p *domain.Post) {
	key := PostKey(p.ID)

	value, err := json.Marshal(newCachedPost(p))
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to encode post for redis")
		return
	}

	if err := r.rdb.Set(ctx, key, value, r.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Failed to write post to redis")
		r.evict(ctx, p.ID)
	}
}

func (r *CachedPostRepository) evict(ctx context.Context, id string) {
	if err := r.rdb.Del(ctx, PostKey(id)).Err(); err != nil {
		log.Warn().Err(err).Str("postID", id).Msg("Failed to evict post from redis")
	}
}

type cachedPost struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ContentURL string    `json:"content_url"`
	Summary    string    `json:"summary"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Visible    bool      `json:"visible"`
}

func newCachedPost(p *domain.Post) cachedPost {
	return cachedPost{
		ID:         p.ID,
		Title:      p.Title,
		ContentURL: p.ContentURL,
		Summary:    p.Summary,
		Tags:       p.Tags,
		CreatedAt:  p.CreatedAt,
		ModifiedAt: p.ModifiedAt,
		Visible:    p.Visible,
	}
}

func (c cachedPost) toDomain() *domain.Post {
	return &domain.Post{
		ID:         c.ID,
		Title:      c.Title,
		ContentURL: c.ContentURL,
		Summary:    c.Summary,
		Tags:       c.Tags,
		CreatedAt:  c.CreatedAt,
		ModifiedAt: c.ModifiedAt,
		Visible:    c.Visible,
	}
}
