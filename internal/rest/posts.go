package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dfryer1193/miblog/api"
	"github.com/dfryer1193/miblog/blog/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const dateLayout = "2006-01-02"

// PostService is the set of post operations exposed over HTTP.
type PostService interface {
	CreatePost(ctx context.Context, candidate *domain.Post) (*domain.Post, error)
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)
	SearchByKeyword(ctx context.Context, keyword string) ([]*domain.Post, error)
	SearchByTags(ctx context.Context, tags []string) ([]*domain.Post, error)
	GetRecentPosts(ctx context.Context, fromDate *time.Time) ([]*domain.Post, error)
	UpdatePost(ctx context.Context, id string, updated *domain.Post) (*domain.Post, error)
	SetVisibility(ctx context.Context, id string, visible bool) error
}

type PostHandler struct {
	service PostService
	loc     *time.Location
}

// NewPostHandler builds the post endpoints. loc is the zone fromDate is read in.
func NewPostHandler(service PostService, loc *time.Location) *PostHandler {
	if loc == nil {
		loc = time.Local
	}
	return &PostHandler{
		service: service,
		loc:     loc,
	}
}

func (h *PostHandler) CreatePost(c *gin.Context) {
	req := &api.CreatePostRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	created, err := h.service.CreatePost(c.Request.Context(), &domain.Post{
		Title:      req.Title,
		ContentURL: req.ContentURL,
		Summary:    req.Summary,
		Tags:       req.Tags,
		Visible:    visibleOrDefault(req.Visible),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(created))
}

func (h *PostHandler) GetPost(c *gin.Context) {
	post, err := h.service.GetPostByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(post))
}

func (h *PostHandler) SearchByKeyword(c *gin.Context) {
	keyword, ok := c.GetQuery("keyword")
	if !ok {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "keyword query parameter is required"})
		return
	}

	posts, err := h.service.SearchByKeyword(c.Request.Context(), keyword)
	if err != nil {
		writeError(c, err)
		return
	}

	writeList(c, posts)
}

func (h *PostHandler) SearchByTags(c *gin.Context) {
	tags := parseTags(c.QueryArray("tags"))
	if len(tags) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	posts, err := h.service.SearchByTags(c.Request.Context(), tags)
	if err != nil {
		writeError(c, err)
		return
	}

	writeList(c, posts)
}

func (h *PostHandler) GetRecentPosts(c *gin.Context) {
	var fromDate *time.Time
	if raw := c.Query("fromDate"); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, h.loc)
		if err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "fromDate must be formatted as YYYY-MM-DD"})
			return
		}
		fromDate = &parsed
	}

	posts, err := h.service.GetRecentPosts(c.Request.Context(), fromDate)
	if err != nil {
		writeError(c, err)
		return
	}

	writeList(c, posts)
}

func (h *PostHandler) UpdatePost(c *gin.Context) {
	req := &api.UpdatePostRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
		return
	}

	updated, err := h.service.UpdatePost(c.Request.Context(), c.Param("id"), &domain.Post{
		Title:      req.Title,
		ContentURL: req.ContentURL,
		Summary:    req.Summary,
		Tags:       req.Tags,
		Visible:    visibleOrDefault(req.Visible),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(updated))
}

func (h *PostHandler) SetVisibility(c *gin.Context) {
	req := &api.VisibilityRequest{}
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "visible is required"})
		return
	}

	if err := h.service.SetVisibility(c.Request.Context(), c.Param("id"), *req.Visible); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

// visibleOrDefault treats an omitted visible field as true.
func visibleOrDefault(visible *bool) bool {
	if visible == nil {
		return true
	}
	return *visible
}

// parseTags accepts both repeated tags parameters and comma separated lists.
func parseTags(values []string) []string {
	tags := make([]string, 0, len(values))
	for _, value := range values {
		for _, tag := range strings.Split(value, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}

func writeList(c *gin.Context, posts []*domain.Post) {
	if len(posts) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	resp := make([]api.Post, len(posts))
	for i, p := range posts {
		resp[i] = toResponse(p)
	}
	c.JSON(http.StatusOK, resp)
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidData):
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAlreadyExists):
		c.JSON(http.StatusConflict, api.ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{Error: err.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "internal server error"})
	}
}

func toResponse(p *domain.Post) api.Post {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return api.Post{
		ID:         p.ID,
		Title:      p.Title,
		ContentURL: p.ContentURL,
		Summary:    p.Summary,
		Tags:       tags,
		CreatedAt:  p.CreatedAt,
		ModifiedAt: p.ModifiedAt,
		Visible:    p.Visible,
	}
}
