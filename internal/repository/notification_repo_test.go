package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"github.com/kursadbilgin/notification-pipeline/internal/repository"
	"github.com/kursadbilgin/notification-pipeline/internal/repository/repositorytest"
)

var baseTime = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func seedNotifications(t *testing.T, repo *repository.GormNotificationRepo, count int, recipientFor func(i int) string) []domain.Notification {
	t.Helper()

	created := make([]domain.Notification, 0, count)
	for i := 0; i < count; i++ {
		n := domain.Notification{
			ID:          fmt.Sprintf("00000000-0000-0000-0000-%012d", i+1),
			RecipientID: recipientFor(i),
			TemplateID:  "t1",
			Subject:     fmt.Sprintf("subject-%02d", i),
			Message:     "M",
			Channel:     domain.ChannelEmail,
			Status:      domain.StatusCreated,
			CreatedAt:   baseTime.Add(time.Duration(i) * time.Second),
			UpdatedAt:   baseTime.Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(context.Background(), &n); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		created = append(created, n)
	}
	return created
}

func sameRecipient(string) func(int) string {
	return func(int) string { return "u1" }
}

func ids(notifications []domain.Notification) []string {
	out := make([]string, 0, len(notifications))
	for _, n := range notifications {
		out = append(out, n.ID)
	}
	return out
}

func TestGormNotificationRepoCreateAndGet(t *testing.T) {
	t.Parallel()

	repo := repository.NewGormNotificationRepo(repositorytest.NewDB(t))
	seeded := seedNotifications(t, repo, 1, sameRecipient("u1"))

	got, err := repo.GetByID(context.Background(), seeded[0].ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.RecipientID != "u1" || got.Subject != "subject-00" || got.Channel != domain.ChannelEmail {
		t.Fatalf("GetByID() = %+v", got)
	}
	if got.Status != domain.StatusCreated {
		t.Fatalf("Status = %s, want CREATED", got.Status)
	}
	if got.LastSentAt != nil {
		t.Fatalf("LastSentAt = %v, want nil", got.LastSentAt)
	}
	if got.RecipientName != "" || got.RecipientAddress != "" {
		t.Fatalf("profile fields = %q/%q, want empty", got.RecipientName, got.RecipientAddress)
	}

	_, err = repo.GetByID(context.Background(), "00000000-0000-0000-0000-999999999999")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestGormNotificationRepoUpdateWritesMutableFieldsOnly(t *testing.T) {
	t.Parallel()

	repo := repository.NewGormNotificationRepo(repositorytest.NewDB(t))
	seeded := seedNotifications(t, repo, 1, sameRecipient("u1"))

	sentAt := baseTime.Add(time.Hour)
	n := seeded[0]
	n.RecipientID = "someone-else"
	n.Subject = "rewritten"
	n.RecipientName = "Alice"
	n.RecipientAddress = "a@x.com"
	n.Status = domain.StatusSent
	n.LastSentAt = &sentAt

	if err := repo.Update(context.Background(), &n); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.RecipientID != "u1" {
		t.Fatalf("RecipientID = %q, want u1 (immutable)", got.RecipientID)
	}
	if got.Subject != "subject-00" {
		t.Fatalf("Subject = %q, want subject-00 (not a mutable field)", got.Subject)
	}
	if got.RecipientName != "Alice" || got.RecipientAddress != "a@x.com" {
		t.Fatalf("profile fields = %q/%q, want Alice/a@x.com", got.RecipientName, got.RecipientAddress)
	}
	if got.Status != domain.StatusSent {
		t.Fatalf("Status = %s, want SENT", got.Status)
	}
	if got.LastSentAt == nil || !got.LastSentAt.Equal(sentAt) {
		t.Fatalf("LastSentAt = %v, want %v", got.LastSentAt, sentAt)
	}
	if !got.UpdatedAt.After(seeded[0].UpdatedAt) {
		t.Fatalf("UpdatedAt = %v, want after %v", got.UpdatedAt, seeded[0].UpdatedAt)
	}
	if !got.CreatedAt.Equal(seeded[0].CreatedAt) {
		t.Fatalf("CreatedAt = %v, want %v", got.CreatedAt, seeded[0].CreatedAt)
	}
}

func TestGormNotificationRepoUpdateMissing(t *testing.T) {
	t.Parallel()

	repo := repository.NewGormNotificationRepo(repositorytest.NewDB(t))

	err := repo.Update(context.Background(), &domain.Notification{ID: "00000000-0000-0000-0000-000000000042"})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestGormNotificationRepoUpdateIfStatus(t *testing.T) {
	t.Parallel()

	repo := repository.NewGormNotificationRepo(repositorytest.NewDB(t))
	seeded := seedNotifications(t, repo, 1, sameRecipient("u1"))
	ctx := context.Background()

	sentAt := baseTime.Add(time.Hour)
	sent := seeded[0]
	sent.Status = domain.StatusSent
	sent.LastSentAt = &sentAt
	if err := repo.UpdateIfStatus(ctx, &sent, domain.StatusEnriched); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("UpdateIfStatus(from ENRICHED) error = %v, want ErrConflict", err)
	}
	if err := repo.UpdateIfStatus(ctx, &sent, domain.StatusCreated, domain.StatusEnriched); err != nil {
		t.Fatalf("UpdateIfStatus(from CREATED) error = %v", err)
	}

	regressed := seeded[0]
	regressed.Status = domain.StatusEnriched
	regressed.RecipientName = "Alice Smith"
	err := repo.UpdateIfStatus(ctx, &regressed, domain.StatusCreated, domain.StatusEnriched)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("UpdateIfStatus() over SENT error = %v, want ErrConflict", err)
	}

	got, err := repo.GetByID(ctx, seeded[0].ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != domain.StatusSent || got.LastSentAt == nil || got.RecipientName != "" {
		t.Fatalf("stored = %+v, want untouched SENT record", got)
	}

	missing := &domain.Notification{ID: "00000000-0000-0000-0000-000000000042", Status: domain.StatusEnriched}
	if err := repo.UpdateIfStatus(ctx, missing, domain.StatusCreated); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("UpdateIfStatus() of missing row error = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateIfStatus(ctx, &sent); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("UpdateIfStatus() without source status error = %v, want ErrValidation", err)
	}
}

func TestGormNotificationRepoDelete(t *testing.T) {
	t.Parallel()

	repo := repository.NewGormNotificationRepo(repositorytest.NewDB(t))
	seeded := seedNotifications(t, repo, 2, sameRecipient("u1"))

	if err := repo.Delete(context.Background(), seeded[0].ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.GetByID(context.Background(), seeded[0].ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(context.Background(), seeded[0].ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Delete() twice error = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetByID(context.Background(), seeded[1].ID); err != nil {
		t.Fatalf("GetByID() of untouched record error = %v", err)
	}
}

func TestGormNotificationRepoPagination(t *testing.T) {
	t.Parallel()

	repo := repository.NewGormNotificationRepo(repositorytest.NewDB(t))
	seeded := seedNotifications(t, repo, 7, sameRecipient("u1"))

	// Full set sorted by -created_at.
	sorted := make([]string, 0, len(seeded))
	for i := len(seeded) - 1; i >= 0; i-- {
		sorted = append(sorted, seeded[i].ID)
	}

	for _, pageSize := range []int{1, 2, 3, 7, 50} {
		for page := 1; page <= 8; page++ {
			got, total, err := repo.List(context.Background(), repository.ListParams{Page: page, PageSize: pageSize})
			if err != nil {
				t.Fatalf("List(page=%d, pageSize=%d) error = %v", page, pageSize, err)
			}
			if total != int64(len(seeded)) {
				t.Fatalf("total = %d, want %d", total, len(seeded))
			}

			from := min((page-1)*pageSize, len(sorted))
			to := min(page*pageSize, len(sorted))
			want := sorted[from:to]
			gotIDs := ids(got)
			if fmt.Sprint(gotIDs) != fmt.Sprint(want) {
				t.Fatalf("List(page=%d, pageSize=%d) = %v, want %v", page, pageSize, gotIDs, want)
			}
		}
	}
}

func TestGormNotificationRepoDefaultSortIsNonIncreasing(t *testing.T) {
	t.Parallel()

	repo := repository.NewGormNotificationRepo(repositorytest.NewDB(t))
	seedNotifications(t, repo, 5, sameRecipient("u1"))

	got, _, err := repo.GetMany(context.Background(), "", 1, 0)
	if err != nil {
		t.Fatalf("GetMany() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].CreatedAt.After(got[i-1].CreatedAt) {
			t.Fatalf("created_at increased at %d: %v > %v", i, got[i].CreatedAt, got[i-1].CreatedAt)
		}
	}
}

func TestGormNotificationRepoSortExpressions(t *testing.T) {
	t.Parallel()

	repo := repository.NewGormNotificationRepo(repositorytest.NewDB(t))
	seeded := seedNotifications(t, repo, 3, sameRecipient("u1"))

	tests := []struct {
		sort string
		want []string
	}{
		{sort: "+created_at", want: []string{seeded[0].ID, seeded[1].ID, seeded[2].ID}},
		{sort: "created_at", want: []string{seeded[0].ID, seeded[1].ID, seeded[2].ID}},
		{sort: "-subject", want: []string{seeded[2].ID, seeded[1].ID, seeded[0].ID}},
		{sort: "createdAt", want: []string{seeded[0].ID, seeded[1].ID, seeded[2].ID}},
	}

	for _, tt := range tests {
		got, _, err := repo.List(context.Background(), repository.ListParams{Sort: tt.sort})
		if err != nil {
			t.Fatalf("List(sort=%q) error = %v", tt.sort, err)
		}
		if fmt.Sprint(ids(got)) != fmt.Sprint(tt.want) {
			t.Fatalf("List(sort=%q) = %v, want %v", tt.sort, ids(got), tt.want)
		}
	}

	_, _, err := repo.List(context.Background(), repository.ListParams{Sort: "-password"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("List(sort=-password) error = %v, want ErrValidation", err)
	}
}

func TestGormNotificationRepoListByRecipient(t *testing.T) {
	t.Parallel()

	repo := repository.NewGormNotificationRepo(repositorytest.NewDB(t))
	seedNotifications(t, repo, 6, func(i int) string {
		if i%2 == 0 {
			return "u1"
		}
		return "u2"
	})

	got, total, err := repo.GetManyByRecipient(context.Background(), "u2", "", 1, 2)
	if err != nil {
		t.Fatalf("GetManyByRecipient() error = %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, n := range got {
		if n.RecipientID != "u2" {
			t.Fatalf("RecipientID = %q, want u2", n.RecipientID)
		}
	}
}

func TestGormNotificationRepoPageSizeIsCapped(t *testing.T) {
	t.Parallel()

	repo := repository.NewGormNotificationRepo(repositorytest.NewDB(t))
	seedNotifications(t, repo, repository.MaxPageSize+5, sameRecipient("u1"))

	got, total, err := repo.List(context.Background(), repository.ListParams{Page: 1, PageSize: 1000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != int64(repository.MaxPageSize+5) {
		t.Fatalf("total = %d, want %d", total, repository.MaxPageSize+5)
	}
	if len(got) != repository.MaxPageSize {
		t.Fatalf("len = %d, want %d", len(got), repository.MaxPageSize)
	}
}

func TestGormNotificationRepoListByStatus(t *testing.T) {
	t.Parallel()

	repo := repository.NewGormNotificationRepo(repositorytest.NewDB(t))
	seeded := seedNotifications(t, repo, 5, sameRecipient("u1"))
	ctx := context.Background()

	for _, i := range []int{1, 3} {
		n := seeded[i]
		n.Status = domain.StatusUnresolvable
		if err := repo.Update(ctx, &n); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
	}

	status := domain.StatusUnresolvable
	recipient := "u1"
	got, total, err := repo.List(ctx, repository.ListParams{RecipientID: &recipient, Status: &status, Sort: "createdAt"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	want := []string{seeded[1].ID, seeded[3].ID}
	if gotIDs := ids(got); len(gotIDs) != 2 || gotIDs[0] != want[0] || gotIDs[1] != want[1] {
		t.Fatalf("ids = %v, want %v", gotIDs, want)
	}
}
