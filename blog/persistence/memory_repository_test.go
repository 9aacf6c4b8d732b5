package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dfryer1193/miblog/blog/domain"
)

func TestMemoryPostRepository_Contract(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T, now func() time.Time) domain.PostRepository {
		return NewMemoryPostRepository().WithClock(now)
	})
}

func TestMemoryPostRepository_ReturnsCopies(t *testing.T) {
	repo := NewMemoryPostRepository()
	saved := mustSave(t, repo, newPost("Original", "x", baseTime, "golang"))

	saved.Title = "Mutated"
	saved.Tags[0] = "mutated"

	found, err := repo.FindByID(context.Background(), saved.ID)
	if err != nil {
		t.Fatalf("FindByID() error = %v", err)
	}
	if found.Title != "Original" || found.Tags[0] != "golang" {
		t.Errorf("stored post changed through returned pointer: %+v", found)
	}
}

func TestMemoryPostRepository_ConcurrentSaves(t *testing.T) {
	repo := NewMemoryPostRepository()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for range 20 {
		wg.Go(func() {
			_, err := repo.Save(context.Background(), newPost("Same", "x", baseTime))
			errs <- err
		})
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}
	if succeeded != 1 {
		t.Errorf("%d concurrent saves with one title succeeded, want 1", succeeded)
	}
}
