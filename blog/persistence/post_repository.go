package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dfryer1193/miblog/blog/domain"
	"github.com/dfryer1193/miblog/shared/db"
	sqlitedb "github.com/dfryer1193/miblog/shared/db/sqlite"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var _ domain.PostRepository = (*SQLitePostRepository)(nil)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLitePostRepository implements domain.PostRepository using SQLite
type SQLitePostRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostRepository creates a new SQLitePostRepository from a standard sql.DB
func NewPostRepository(db *sql.DB) *SQLitePostRepository {
	return &SQLitePostRepository{
		db:  db,
		now: time.Now,
	}
}

// WithClock replaces the clock used to refresh modified_at on replace.
func (r *SQLitePostRepository) WithClock(now func() time.Time) *SQLitePostRepository {
	r.now = now
	return r
}

const postColumns = `id, title, content_url, summary, tags, visible, created_at, modified_at`

const getPostQuery = `SELECT ` + postColumns + ` FROM posts WHERE id = ?`

func (r *SQLitePostRepository) FindByID(ctx context.Context, id string) (*domain.Post, error) {
	return r.findOne(ctx, r.db, getPostQuery, id)
}

const getPostByTitleQuery = `SELECT ` + postColumns + ` FROM posts WHERE title = ?`

func (r *SQLitePostRepository) FindByTitle(ctx context.Context, title string) (*domain.Post, error) {
	return r.findOne(ctx, r.db, getPostByTitleQuery, title)
}

const insertPostQuery = `
	INSERT INTO posts (id, title, content_url, summary, tags, visible, created_at, modified_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

const replacePostQuery = `
	UPDATE posts
	SET title = ?, content_url = ?, summary = ?, tags = ?, visible = ?, modified_at = ?
	WHERE id = ?
`

// Save inserts or replaces a post and returns the stored row.
func (r *SQLitePostRepository) Save(ctx context.Context, p *domain.Post) (*domain.Post, error) {
	if p == nil {
		return nil, fmt.Errorf("post cannot be nil")
	}

	tags, err := encodeTags(p.Tags)
	if err != nil {
		return nil, err
	}

	var saved *domain.Post
	err = db.RunInTransaction(ctx, r.db, func(txCtx context.Context) error {
		executor := db.GetExecutor(txCtx, r.db)
		id := p.ID

		if id == "" {
			id = uuid.NewString()
			_, err := executor.ExecContext(txCtx, insertPostQuery,
				id,
				p.Title,
				p.ContentURL,
				p.Summary,
				tags,
				p.Visible,
				formatTime(p.CreatedAt),
				formatTime(p.ModifiedAt),
			)
			if err != nil {
				return wrapWriteError("insert", err)
			}
		} else {
			res, err := executor.ExecContext(txCtx, replacePostQuery,
				p.Title,
				p.ContentURL,
				p.Summary,
				tags,
				p.Visible,
				formatTime(r.now()),
				id,
			)
			if err != nil {
				return wrapWriteError("replace", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to replace post: %w", err)
			}
			if affected == 0 {
				return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
			}
		}

		post, err := r.findOne(txCtx, executor, getPostQuery, id)
		if err != nil {
			return err
		}
		saved = post
		return nil
	})
	if err != nil {
		return nil, err
	}

	return saved, nil
}

const searchPostsQuery = `
	SELECT ` + postColumns + `
	FROM posts
	WHERE instr(` + sqlitedb.LowerFunc + `(title), ?) > 0
	   OR instr(` + sqlitedb.LowerFunc + `(summary), ?) > 0
	   OR %s
	ORDER BY created_at DESC
`

func (r *SQLitePostRepository) FindByTitleOrSummaryMatchingOrTagsIn(ctx context.Context, titlePattern, summaryPattern string, tags []string) ([]*domain.Post, error) {
	tagClause, tagArgs := tagsInClause(tags)
	args := append([]any{strings.ToLower(titlePattern), strings.ToLower(summaryPattern)}, tagArgs...)

	return r.findMany(ctx, fmt.Sprintf(searchPostsQuery, tagClause), args...)
}

const postsByTagsQuery = `
	SELECT ` + postColumns + `
	FROM posts
	WHERE %s
	ORDER BY created_at DESC
`

func (r *SQLitePostRepository) FindByTagsIn(ctx context.Context, tags []string) ([]*domain.Post, error) {
	tagClause, tagArgs := tagsInClause(tags)
	return r.findMany(ctx, fmt.Sprintf(postsByTagsQuery, tagClause), tagArgs...)
}

const postsCreatedBetweenQuery = `
	SELECT ` + postColumns + `
	FROM posts
	WHERE created_at BETWEEN ? AND ?
	ORDER BY created_at DESC
`

func (r *SQLitePostRepository) FindByCreatedAtBetween(ctx context.Context, start, end time.Time) ([]*domain.Post, error) {
	return r.findMany(ctx, postsCreatedBetweenQuery, formatTime(start), formatTime(end))
}

// tagsInClause matches rows whose JSON tag array shares an element with tags.
func tagsInClause(tags []string) (string, []any) {
	if len(tags) == 0 {
		return "0", nil
	}

	placeholders := make([]string, len(tags))
	args := make([]any, len(tags))
	for i, tag := range tags {
		placeholders[i] = "?"
		args[i] = tag
	}

	clause := "EXISTS (SELECT 1 FROM json_each(posts.tags) WHERE json_each.value IN (" +
		strings.Join(placeholders, ", ") + "))"
	return clause, args
}

func (r *SQLitePostRepository) findOne(ctx context.Context, executor db.Executor, query string, arg any) (*domain.Post, error) {
	var row postRow
	err := executor.QueryRowContext(ctx, query, arg).Scan(row.fields()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return row.toDomain()
}

func (r *SQLitePostRepository) findMany(ctx context.Context, query string, args ...any) ([]*domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*domain.Post, 0)
	for rows.Next() {
		var row postRow
		if err := rows.Scan(row.fields()...); err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		post, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}

	return posts, nil
}

func wrapWriteError(op string, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%w: %v", domain.ErrAlreadyExists, err)
	}
	return fmt.Errorf("failed to %s post: %w", op, err)
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// postRow is a private struct used to scan database rows
type postRow struct {
	ID         string
	Title      string
	ContentURL string
	Summary    string
	Tags       string
	Visible    bool
	CreatedAt  string
	ModifiedAt string
}

func (pr *postRow) fields() []any {
	return []any{
		&pr.ID,
		&pr.Title,
		&pr.ContentURL,
		&pr.Summary,
		&pr.Tags,
		&pr.Visible,
		&pr.CreatedAt,
		&pr.ModifiedAt,
	}
}

func (pr *postRow) toDomain() (*domain.Post, error) {
	post := &domain.Post{
		ID:         pr.ID,
		Title:      pr.Title,
		ContentURL: pr.ContentURL,
		Summary:    pr.Summary,
		Visible:    pr.Visible,
	}

	if err := json.Unmarshal([]byte(pr.Tags), &post.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags of post %s: %w", pr.ID, err)
	}

	var err error
	if post.CreatedAt, err = time.Parse(timeLayout, pr.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at of post %s: %w", pr.ID, err)
	}
	if post.ModifiedAt, err = time.Parse(timeLayout, pr.ModifiedAt); err != nil {
		return nil, fmt.Errorf("failed to parse modified_at of post %s: %w", pr.ID, err)
	}

	return post, nil
}
