package repository

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/resumekit/resumekit/internal/domain"
)

func newResumeRepoForTest(t *testing.T) ResumeRepository {
	t.Helper()
	db := newRepositoryDBForTest(t)
	if err := db.AutoMigrate(&domain.Resume{}); err != nil {
		t.Fatalf("migrate resume: %v", err)
	}
	return NewResumeRepository(db)
}

func TestResumeRepositoryCRUDAndPagination(t *testing.T) {
	repo := newResumeRepoForTest(t)

	const owner = uint(1)
	created := make([]*domain.Resume, 0, 3)
	for i := 0; i < 3; i++ {
		r := &domain.Resume{
			AccountID: owner,
			Title:     fmt.Sprintf("Resume %c", 'A'+i),
			Theme:     "classic",
			Body:      `{"sections":[]}`,
		}
		if err := repo.Create(r); err != nil {
			t.Fatalf("create resume %d: %v", i, err)
		}
		created = append(created, r)
		time.Sleep(5 * time.Millisecond)
	}

	page, err := repo.ListByAccountPaged(owner, PageRequest{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page result: %+v", page)
	}
	if page.Items[0].ID != created[2].ID {
		t.Fatalf("expected most recently updated first, got id=%d want=%d", page.Items[0].ID, created[2].ID)
	}

	if err := repo.Update(owner, created[0].ID, map[string]any{"title": "Renamed", "theme": "modern"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, err := repo.FindByID(owner, created[0].ID)
	if err != nil {
		t.Fatalf("find updated: %v", err)
	}
	if updated.Title != "Renamed" || updated.Theme != "modern" {
		t.Fatalf("unexpected updated resume: %+v", updated)
	}

	if err := repo.DeleteByID(owner, created[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.FindByID(owner, created[1].ID); !errors.Is(err, ErrResumeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestResumeRepositoryScopesByOwner(t *testing.T) {
	repo := newResumeRepoForTest(t)

	mine := &domain.Resume{AccountID: 1, Title: "Mine", Theme: "classic"}
	if err := repo.Create(mine); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := repo.FindByID(2, mine.ID); !errors.Is(err, ErrResumeNotFound) {
		t.Fatalf("expected foreign owner to get not found, got %v", err)
	}
	if err := repo.Update(2, mine.ID, map[string]any{"title": "Stolen"}); !errors.Is(err, ErrResumeNotFound) {
		t.Fatalf("expected foreign update to fail, got %v", err)
	}
	if err := repo.DeleteByID(2, mine.ID); !errors.Is(err, ErrResumeNotFound) {
		t.Fatalf("expected foreign delete to fail, got %v", err)
	}

	page, err := repo.ListByAccountPaged(2, PageRequest{})
	if err != nil {
		t.Fatalf("list foreign: %v", err)
	}
	if page.Total != 0 || len(page.Items) != 0 {
		t.Fatalf("expected empty page for foreign owner, got %+v", page)
	}
}
