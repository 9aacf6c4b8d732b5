package api

import "time"

type Post struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ContentURL string    `json:"contentUrl"`
	Summary    string    `json:"summary"`
	Tags       []string  `json:"tags"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
	Visible    bool      `json:"visible"`
}

// CreatePostRequest creates a post. A missing visible means true.
type CreatePostRequest struct {
	Title      string   `json:"title"`
	ContentURL string   `json:"contentUrl"`
	Summary    string   `json:"summary"`
	Tags       []string `json:"tags"`
	Visible    *bool    `json:"visible"`
}

// UpdatePostRequest replaces the mutable fields of a post. A missing visible means true.
type UpdatePostRequest struct {
	Title      string   `json:"title"`
	ContentURL string   `json:"contentUrl"`
	Summary    string   `json:"summary"`
	Tags       []string `json:"tags"`
	Visible    *bool    `json:"visible"`
}

type VisibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
