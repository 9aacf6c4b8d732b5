package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dfryer1193/miblog/blog/domain"
)

// repoFactory builds an empty repository whose replace path reads the given clock.
type repoFactory func(t *testing.T, now func() time.Time) domain.PostRepository

var baseTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newPost(title, summary string, createdAt time.Time, tags ...string) *domain.Post {
	return &domain.Post{
		Title:      title,
		ContentURL: "https://example.com/" + title,
		Summary:    summary,
		Tags:       tags,
		CreatedAt:  createdAt,
		ModifiedAt: createdAt,
		Visible:    true,
	}
}

func mustSave(t *testing.T, repo domain.PostRepository, p *domain.Post) *domain.Post {
	t.Helper()
	saved, err := repo.Save(context.Background(), p)
	if err != nil {
		t.Fatalf("Save(%q) error = %v", p.Title, err)
	}
	return saved
}

func titles(posts []*domain.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Title
	}
	return out
}

func assertTitles(t *testing.T, got []*domain.Post, want ...string) {
	t.Helper()
	gotTitles := titles(got)
	if len(gotTitles) != len(want) {
		t.Fatalf("got titles %v, want %v", gotTitles, want)
	}
	for i := range want {
		if gotTitles[i] != want[i] {
			t.Fatalf("got titles %v, want %v", gotTitles, want)
		}
	}
}

// runRepositoryContract exercises the behavior every PostRepository must share.
func runRepositoryContract(t *testing.T, newRepo repoFactory) {
	ctx := context.Background()

	t.Run("insert assigns id and keeps timestamps", func(t *testing.T) {
		repo := newRepo(t, fixedClock(baseTime))

		saved := mustSave(t, repo, newPost("Relatividad", "Einstein", baseTime, "physics"))
		if saved.ID == "" {
			t.Fatal("Save() did not assign an ID")
		}
		if !saved.CreatedAt.Equal(baseTime) || !saved.ModifiedAt.Equal(baseTime) {
			t.Errorf("timestamps = %v / %v, want %v", saved.CreatedAt, saved.ModifiedAt, baseTime)
		}

		found, err := repo.FindByID(ctx, saved.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if found == nil {
			t.Fatal("FindByID() returned nil for a saved post")
		}
		if found.Title != "Relatividad" || found.Summary != "Einstein" || !found.Visible {
			t.Errorf("FindByID() = %+v", found)
		}
		if len(found.Tags) != 1 || found.Tags[0] != "physics" {
			t.Errorf("Tags = %v, want [physics]", found.Tags)
		}
	})

	t.Run("missing id and title are not errors", func(t *testing.T) {
		repo := newRepo(t, fixedClock(baseTime))

		post, err := repo.FindByID(ctx, "does-not-exist")
		if err != nil || post != nil {
			t.Errorf("FindByID() = %v, %v; want nil, nil", post, err)
		}

		post, err = repo.FindByTitle(ctx, "nothing")
		if err != nil || post != nil {
			t.Errorf("FindByTitle() = %v, %v; want nil, nil", post, err)
		}
	})

	t.Run("find by title is exact", func(t *testing.T) {
		repo := newRepo(t, fixedClock(baseTime))
		saved := mustSave(t, repo, newPost("Relatividad", "Einstein", baseTime))

		found, err := repo.FindByTitle(ctx, "Relatividad")
		if err != nil {
			t.Fatalf("FindByTitle() error = %v", err)
		}
		if found == nil || found.ID != saved.ID {
			t.Errorf("FindByTitle() = %v, want post %s", found, saved.ID)
		}

		found, err = repo.FindByTitle(ctx, "relatividad")
		if err != nil {
			t.Fatalf("FindByTitle() error = %v", err)
		}
		if found != nil {
			t.Errorf("FindByTitle() with different case = %v, want nil", found)
		}
	})

	t.Run("replace keeps created and refreshes modified", func(t *testing.T) {
		later := baseTime.Add(48 * time.Hour)
		repo := newRepo(t, fixedClock(later))
		saved := mustSave(t, repo, newPost("Relatividad", "Einstein", baseTime))

		saved.Summary = "General relativity"
		saved.CreatedAt = baseTime.Add(time.Hour)
		saved.Visible = false

		replaced := mustSave(t, repo, saved)
		if replaced.ID != saved.ID {
			t.Errorf("ID = %s, want %s", replaced.ID, saved.ID)
		}
		if !replaced.CreatedAt.Equal(baseTime) {
			t.Errorf("CreatedAt = %v, want %v", replaced.CreatedAt, baseTime)
		}
		if !replaced.ModifiedAt.Equal(later) {
			t.Errorf("ModifiedAt = %v, want %v", replaced.ModifiedAt, later)
		}
		if replaced.Summary != "General relativity" || replaced.Visible {
			t.Errorf("replaced = %+v", replaced)
		}
	})

	t.Run("replace unknown id", func(t *testing.T) {
		repo := newRepo(t, fixedClock(baseTime))
		p := newPost("Ghost", "Nobody", baseTime)
		p.ID = "missing"

		_, err := repo.Save(ctx, p)
		if !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("Save() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("duplicate title", func(t *testing.T) {
		repo := newRepo(t, fixedClock(baseTime))
		mustSave(t, repo, newPost("Relatividad", "Einstein", baseTime))

		_, err := repo.Save(ctx, newPost("Relatividad", "Again", baseTime))
		if !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("Save() error = %v, want ErrAlreadyExists", err)
		}
	})

	t.Run("keyword search", func(t *testing.T) {
		repo := newRepo(t, fixedClock(baseTime))
		mustSave(t, repo, newPost("Teoria de la Relatividad", "Einstein", baseTime))
		mustSave(t, repo, newPost("Gravedad", "Sobre la relatividad general", baseTime.Add(time.Hour)))
		mustSave(t, repo, newPost("Cosmos", "Estrellas", baseTime.Add(2*time.Hour), "relatividad"))
		mustSave(t, repo, newPost("Cocina", "Recetas", baseTime.Add(3*time.Hour), "food"))

		got, err := repo.FindByTitleOrSummaryMatchingOrTagsIn(ctx, "relatividad", "relatividad", []string{"relatividad"})
		if err != nil {
			t.Fatalf("FindByTitleOrSummaryMatchingOrTagsIn() error = %v", err)
		}
		assertTitles(t, got, "Cosmos", "Gravedad", "Teoria de la Relatividad")

		got, err = repo.FindByTitleOrSummaryMatchingOrTagsIn(ctx, "nada", "nada", []string{"nada"})
		if err != nil {
			t.Fatalf("FindByTitleOrSummaryMatchingOrTagsIn() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("got %v, want no posts", titles(got))
		}
	})

	t.Run("keyword search folds non-ASCII case", func(t *testing.T) {
		repo := newRepo(t, fixedClock(baseTime))
		mustSave(t, repo, newPost("ÉXITO EN MADRID", "Ñandú", baseTime))

		for _, pattern := range []string{"éxito", "ñandú", "madrid"} {
			got, err := repo.FindByTitleOrSummaryMatchingOrTagsIn(ctx, pattern, pattern, []string{pattern})
			if err != nil {
				t.Fatalf("FindByTitleOrSummaryMatchingOrTagsIn(%q) error = %v", pattern, err)
			}
			assertTitles(t, got, "ÉXITO EN MADRID")
		}
	})

	t.Run("tags any of", func(t *testing.T) {
		repo := newRepo(t, fixedClock(baseTime))
		mustSave(t, repo, newPost("One", "a", baseTime, "java", "spring"))
		mustSave(t, repo, newPost("Two", "b", baseTime.Add(time.Hour), "golang"))
		mustSave(t, repo, newPost("Three", "c", baseTime.Add(2*time.Hour), "rust"))

		got, err := repo.FindByTagsIn(ctx, []string{"spring", "golang"})
		if err != nil {
			t.Fatalf("FindByTagsIn() error = %v", err)
		}
		assertTitles(t, got, "Two", "One")

		got, err = repo.FindByTagsIn(ctx, []string{})
		if err != nil {
			t.Fatalf("FindByTagsIn() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("FindByTagsIn(empty) = %v, want no posts", titles(got))
		}
	})

	t.Run("created between is inclusive", func(t *testing.T) {
		repo := newRepo(t, fixedClock(baseTime))
		start := baseTime
		end := baseTime.Add(24 * time.Hour)

		mustSave(t, repo, newPost("Before", "x", start.Add(-time.Nanosecond)))
		mustSave(t, repo, newPost("AtStart", "x", start))
		mustSave(t, repo, newPost("Middle", "x", start.Add(6*time.Hour)))
		mustSave(t, repo, newPost("AtEnd", "x", end))
		mustSave(t, repo, newPost("After", "x", end.Add(time.Second)))

		got, err := repo.FindByCreatedAtBetween(ctx, start, end)
		if err != nil {
			t.Fatalf("FindByCreatedAtBetween() error = %v", err)
		}
		assertTitles(t, got, "AtEnd", "Middle", "AtStart")
	})

	t.Run("created between accepts other zones", func(t *testing.T) {
		repo := newRepo(t, fixedClock(baseTime))
		mustSave(t, repo, newPost("Noon", "x", baseTime))

		zone := time.FixedZone("UTC-5", -5*60*60)
		start := time.Date(2024, 3, 10, 0, 0, 0, 0, zone)
		end := time.Date(2024, 3, 10, 23, 59, 59, 999999999, zone)

		got, err := repo.FindByCreatedAtBetween(ctx, start, end)
		if err != nil {
			t.Fatalf("FindByCreatedAtBetween() error = %v", err)
		}
		assertTitles(t, got, "Noon")
	})
}
