package domain

import (
	"context"
	"time"
	"unicode/utf8"
)

const (
	MinTagLength = 3
	MaxTagLength = 20
)

// Post represents a blog post.
// The content itself lives elsewhere; ContentURL only points at it.
// Posts are never physically deleted, they are hidden by clearing Visible.
type Post struct {
	ID         string
	Title      string
	ContentURL string
	Summary    string
	Tags       []string
	CreatedAt  time.Time
	ModifiedAt time.Time
	Visible    bool
}

// Clone returns a deep copy of the post so callers can't alias stored tag slices.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	c := *p
	if p.Tags != nil {
		c.Tags = append([]string(nil), p.Tags...)
	}
	return &c
}

// ValidTag reports whether a tag token has an acceptable length.
func ValidTag(tag string) bool {
	n := utf8.RuneCountInString(tag)
	return n >= MinTagLength && n <= MaxTagLength
}

// PostRepository is the persistence collaborator of the post service.
// Lookups return (nil, nil) when nothing matches.
type PostRepository interface {
	FindByID(ctx context.Context, id string) (*Post, error)
	FindByTitle(ctx context.Context, title string) (*Post, error)

	// Save inserts the post when it has no ID, assigning one, and replaces the
	// stored record otherwise. The stored CreatedAt survives a replace and
	// ModifiedAt is refreshed.
	Save(ctx context.Context, p *Post) (*Post, error)

	// FindByTitleOrSummaryMatchingOrTagsIn returns posts whose title contains
	// titlePattern or whose summary contains summaryPattern (case-insensitive),
	// plus posts carrying any of tags.
	FindByTitleOrSummaryMatchingOrTagsIn(ctx context.Context, titlePattern, summaryPattern string, tags []string) ([]*Post, error)
	FindByTagsIn(ctx context.Context, tags []string) ([]*Post, error)
	// FindByCreatedAtBetween matches start <= CreatedAt <= end.
	FindByCreatedAtBetween(ctx context.Context, start, end time.Time) ([]*Post, error)
}
