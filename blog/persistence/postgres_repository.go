package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dfryer1193/miblog/blog/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ domain.PostRepository = (*PostgresPostRepository)(nil)

const pgUniqueViolation = "23505"

// PostgresPostRepository implements domain.PostRepository on a pgx pool.
// Tags live in a TEXT[] column so tag membership is the && overlap operator.
type PostgresPostRepository struct {
	db  *pgxpool.Pool
	now func() time.Time
}

func NewPostgresPostRepository(db *pgxpool.Pool) *PostgresPostRepository {
	return &PostgresPostRepository{
		db:  db,
		now: time.Now,
	}
}

// WithClock replaces the clock used to refresh modified_at on replace.
func (r *PostgresPostRepository) WithClock(now func() time.Time) *PostgresPostRepository {
	r.now = now
	return r
}

func (r *PostgresPostRepository) FindByID(ctx context.Context, id string) (*domain.Post, error) {
	return r.findOne(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
}

func (r *PostgresPostRepository) FindByTitle(ctx context.Context, title string) (*domain.Post, error) {
	return r.findOne(ctx, `SELECT `+postColumns+` FROM posts WHERE title = $1`, title)
}

func (r *PostgresPostRepository) Save(ctx context.Context, p *domain.Post) (*domain.Post, error) {
	if p == nil {
		return nil, fmt.Errorf("post cannot be nil")
	}

	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	if p.ID == "" {
		row := r.db.QueryRow(ctx,
			`INSERT INTO posts (id, title, content_url, summary, tags, visible, created_at, modified_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING `+postColumns,
			uuid.NewString(),
			p.Title,
			p.ContentURL,
			p.Summary,
			tags,
			p.Visible,
			p.CreatedAt.UTC(),
			p.ModifiedAt.UTC(),
		)
		post, err := scanPgPost(row)
		if err != nil {
			return nil, wrapPgWriteError("insert", err)
		}
		return post, nil
	}

	row := r.db.QueryRow(ctx,
		`UPDATE posts
		SET title = $1, content_url = $2, summary = $3, tags = $4, visible = $5, modified_at = $6
		WHERE id = $7
		RETURNING `+postColumns,
		p.Title,
		p.ContentURL,
		p.Summary,
		tags,
		p.Visible,
		r.now().UTC(),
		p.ID,
	)
	post, err := scanPgPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, p.ID)
	}
	if err != nil {
		return nil, wrapPgWriteError("replace", err)
	}
	return post, nil
}

func (r *PostgresPostRepository) FindByTitleOrSummaryMatchingOrTagsIn(ctx context.Context, titlePattern, summaryPattern string, tags []string) ([]*domain.Post, error) {
	if tags == nil {
		tags = []string{}
	}
	return r.findMany(ctx,
		`SELECT `+postColumns+`
		FROM posts
		WHERE strpos(lower(title), $1) > 0
		   OR strpos(lower(summary), $2) > 0
		   OR tags && $3
		ORDER BY created_at DESC`,
		strings.ToLower(titlePattern),
		strings.ToLower(summaryPattern),
		tags,
	)
}

func (r *PostgresPostRepository) FindByTagsIn(ctx context.Context, tags []string) ([]*domain.Post, error) {
	if tags == nil {
		tags = []string{}
	}
	return r.findMany(ctx,
		`SELECT `+postColumns+` FROM posts WHERE tags && $1 ORDER BY created_at DESC`,
		tags,
	)
}

func (r *PostgresPostRepository) FindByCreatedAtBetween(ctx context.Context, start, end time.Time) ([]*domain.Post, error) {
	return r.findMany(ctx,
		`SELECT `+postColumns+` FROM posts WHERE created_at BETWEEN $1 AND $2 ORDER BY created_at DESC`,
		start.UTC(),
		end.UTC(),
	)
}

func (r *PostgresPostRepository) findOne(ctx context.Context, query string, arg any) (*domain.Post, error) {
	post, err := scanPgPost(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

func (r *PostgresPostRepository) findMany(ctx context.Context, query string, args ...any) ([]*domain.Post, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*domain.Post, 0)
	for rows.Next() {
		post, err := scanPgPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		posts = append(posts, post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating post rows: %w", err)
	}

	return posts, nil
}

func scanPgPost(row pgx.Row) (*domain.Post, error) {
	var p domain.Post
	if err := row.Scan(
		&p.ID,
		&p.Title,
		&p.ContentURL,
		&p.Summary,
		&p.Tags,
		&p.Visible,
		&p.CreatedAt,
		&p.ModifiedAt,
	); err != nil {
		return nil, err
	}

	p.CreatedAt = p.CreatedAt.UTC()
	p.ModifiedAt = p.ModifiedAt.UTC()
	return &p, nil
}

func wrapPgWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, pgErr.Detail)
	}
	return fmt.Errorf("failed to %s post: %w", op, err)
}
