package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dfryer1193/miblog/blog/domain"
	"github.com/rs/zerolog/log"
)

const defaultRecentWindowDays = 30

// RecencyMode controls how GetRecentPosts treats an explicit date.
type RecencyMode string

const (
	// RecencyDay restricts the query to the calendar day of the given date.
	RecencyDay RecencyMode = "day"
	// RecencySince queries from the start of the given date through the end of today.
	RecencySince RecencyMode = "since"
)

// ParseRecencyMode maps a config value onto a RecencyMode. Empty means RecencyDay.
func ParseRecencyMode(s string) (RecencyMode, error) {
	switch RecencyMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RecencyDay:
		return RecencyDay, nil
	case RecencySince:
		return RecencySince, nil
	default:
		return "", fmt.Errorf("unknown recency mode %q", s)
	}
}

type PostService struct {
	repo domain.PostRepository

	now          func() time.Time
	loc          *time.Location
	recentWindow int
	recencyMode  RecencyMode
}

type Option func(*PostService)

// WithClock overrides the time source used for timestamps and date ranges.
func WithClock(now func() time.Time) Option {
	return func(s *PostService) {
		s.now = now
	}
}

// WithLocation sets the time zone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(s *PostService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithRecentWindow sets how many days back GetRecentPosts looks without a date.
func WithRecentWindow(days int) Option {
	return func(s *PostService) {
		if days > 0 {
			s.recentWindow = days
		}
	}
}

func WithRecencyMode(mode RecencyMode) Option {
	return func(s *PostService) {
		s.recencyMode = mode
	}
}

func NewPostService(repo domain.PostRepository, opts ...Option) *PostService {
	s := &PostService{
		repo:         repo,
		now:          time.Now,
		loc:          time.Local,
		recentWindow: defaultRecentWindowDays,
		recencyMode:  RecencyDay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePost stores a new post with the candidate's visibility. The title
// collision check runs before field validation, so a duplicate title with blank
// fields reports ErrAlreadyExists.
func (s *PostService) CreatePost(ctx context.Context, candidate *domain.Post) (*domain.Post, error) {
	if candidate == nil {
		return nil, fmt.Errorf("%w: post is required", domain.ErrInvalidData)
	}

	existing, err := s.repo.FindByTitle(ctx, candidate.Title)
	if err != nil {
		log.Error().Err(err).Str("title", candidate.Title).Msg("Failed to look up post by title")
		return nil, err
	}
	if existing != nil {
		log.Debug().Str("title", candidate.Title).Msg("Rejected post with duplicate title")
		return nil, fmt.Errorf("%w: a post titled %q already exists", domain.ErrAlreadyExists, candidate.Title)
	}

	if err := validateNewPost(candidate); err != nil {
		log.Debug().Err(err).Str("title", candidate.Title).Msg("Rejected invalid post")
		return nil, err
	}

	now := s.now()
	post := candidate.Clone()
	post.ID = ""
	post.CreatedAt = now
	post.ModifiedAt = now

	saved, err := s.repo.Save(ctx, post)
	if err != nil {
		log.Error().Err(err).Str("title", post.Title).Msg("Failed to save new post")
		return nil, err
	}

	log.Info().Str("postID", saved.ID).Str("title", saved.Title).Msg("Post created")
	return saved, nil
}

func (s *PostService) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	return s.findExisting(ctx, id)
}

// SearchByKeyword matches the lowercased keyword as a substring of title or
// summary, or exactly against tags.
func (s *PostService) SearchByKeyword(ctx context.Context, keyword string) ([]*domain.Post, error) {
	pattern := strings.ToLower(keyword)

	posts, err := s.repo.FindByTitleOrSummaryMatchingOrTagsIn(ctx, pattern, pattern, []string{pattern})
	if err != nil {
		log.Error().Err(err).Str("keyword", keyword).Msg("Failed to search posts by keyword")
		return nil, err
	}
	return posts, nil
}

// SearchByTags returns posts carrying any of tags. An empty tag list never
// reaches the repository.
func (s *PostService) SearchByTags(ctx context.Context, tags []string) ([]*domain.Post, error) {
	if len(tags) == 0 {
		return []*domain.Post{}, nil
	}

	posts, err := s.repo.FindByTagsIn(ctx, tags)
	if err != nil {
		log.Error().Err(err).Strs("tags", tags).Msg("Failed to search posts by tags")
		return nil, err
	}
	return posts, nil
}

// GetRecentPosts returns posts created within the recency window. Without a
// date the window covers the configured number of days up to the end of today.
// With a date it covers that single day, or runs through today in RecencySince mode.
func (s *PostService) GetRecentPosts(ctx context.Context, fromDate *time.Time) ([]*domain.Post, error) {
	start, end := s.RecentWindow(fromDate)

	posts, err := s.repo.FindByCreatedAtBetween(ctx, start, end)
	if err != nil {
		log.Error().Err(err).Time("start", start).Time("end", end).Msg("Failed to list recent posts")
		return nil, err
	}
	return posts, nil
}

// RecentWindow derives the closed [start, end] range used by GetRecentPosts.
func (s *PostService) RecentWindow(fromDate *time.Time) (time.Time, time.Time) {
	now := s.now().In(s.loc)

	if fromDate == nil {
		return startOfDay(now.AddDate(0, 0, -s.recentWindow)), endOfDay(now)
	}

	day := fromDate.In(s.loc)
	if s.recencyMode == RecencySince {
		return startOfDay(day), endOfDay(now)
	}
	return startOfDay(day), endOfDay(day)
}

// UpdatePost replaces the mutable fields of an existing post. Unlike creation,
// the content URL is not required and the title is not checked for collisions.
func (s *PostService) UpdatePost(ctx context.Context, id string, updated *domain.Post) (*domain.Post, error) {
	existing, err := s.findExisting(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := validateUpdate(updated); err != nil {
		log.Debug().Err(err).Str("postID", id).Msg("Rejected invalid post update")
		return nil, err
	}

	existing.Title = updated.Title
	existing.Summary = updated.Summary
	existing.Tags = append([]string(nil), updated.Tags...)
	existing.ContentURL = updated.ContentURL
	existing.Visible = updated.Visible

	saved, err := s.repo.Save(ctx, existing)
	if err != nil {
		log.Error().Err(err).Str("postID", id).Msg("Failed to save updated post")
		return nil, err
	}

	log.Info().Str("postID", id).Msg("Post updated")
	return saved, nil
}

// SetVisibility hides or restores a post.
func (s *PostService) SetVisibility(ctx context.Context, id string, visible bool) error {
	existing, err := s.findExisting(ctx, id)
	if err != nil {
		return err
	}

	existing.Visible = visible
	if _, err := s.repo.Save(ctx, existing); err != nil {
		log.Error().Err(err).Str("postID", id).Bool("visible", visible).Msg("Failed to save post visibility")
		return err
	}

	log.Info().Str("postID", id).Bool("visible", visible).Msg("Post visibility changed")
	return nil
}

func (s *PostService) findExisting(ctx context.Context, id string) (*domain.Post, error) {
	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		log.Error().Err(err).Str("postID", id).Msg("Failed to look up post")
		return nil, err
	}
	if post == nil {
		log.Debug().Str("postID", id).Msg("Post not found")
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return post, nil
}

func validateNewPost(p *domain.Post) error {
	if isBlank(p.Title) || isBlank(p.ContentURL) || isBlank(p.Summary) {
		return fmt.Errorf("%w: title, summary and content URL are required", domain.ErrInvalidData)
	}
	return validateTags(p.Tags)
}

// validateUpdate deliberately leaves the content URL optional.
func validateUpdate(p *domain.Post) error {
	if p == nil || isBlank(p.Title) {
		return fmt.Errorf("%w: title is required", domain.ErrInvalidData)
	}
	if isBlank(p.Summary) {
		return fmt.Errorf("%w: summary is required", domain.ErrInvalidData)
	}
	return validateTags(p.Tags)
}

func validateTags(tags []string) error {
	for _, tag := range tags {
		if !domain.ValidTag(tag) {
			return fmt.Errorf("%w: tag %q must be between %d and %d characters",
				domain.ErrInvalidData, tag, domain.MinTagLength, domain.MaxTagLength)
		}
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// endOfDay is the last representable instant of t's calendar day.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999999999, t.Location())
}
