package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/memberhub/internal/model"
)

func strPtr(s string) *string { return &s }

func TestMemoryUserRepo_CreateFindAndClone(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepo(NewMemoryStore())

	u := &model.User{ID: "u1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	if err := repo.Create(ctx, u); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	got, err := repo.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if got == nil || got.FirstName != "Ada" {
		t.Fatalf("FindByID = %+v, want Ada", got)
	}
	if got.SubscribedToUserIDs == nil {
		t.Error("SubscribedToUserIDs should be empty slice, got nil")
	}

	// 取得結果を書き換えてもストアには影響しない
	got.FirstName = "Changed"
	got.SubscribedToUserIDs = append(got.SubscribedToUserIDs, "x")
	again, _ := repo.FindByID(ctx, "u1")
	if again.FirstName != "Ada" || len(again.SubscribedToUserIDs) != 0 {
		t.Errorf("store was mutated through returned snapshot: %+v", again)
	}
}

func TestMemoryUserRepo_FindByID_NotFound(t *testing.T) {
	repo := NewMemoryUserRepo(NewMemoryStore())

	got, err := repo.FindByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestMemoryUserRepo_ListPreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepo(NewMemoryStore())

	for _, id := range []string{"c", "a", "b"} {
		if err := repo.Create(ctx, &model.User{ID: id}); err != nil {
			t.Fatalf("Create(%s) returned error: %v", id, err)
		}
	}
	if _, err := repo.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	users, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(users) != 2 || users[0].ID != "c" || users[1].ID != "b" {
		t.Errorf("List order = %v, want [c b]", userIDs(users))
	}
}

func TestMemoryUserRepo_ListBySubscribedTo(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepo(NewMemoryStore())

	_ = repo.Create(ctx, &model.User{ID: "t1", SubscribedToUserIDs: []string{"f"}})
	_ = repo.Create(ctx, &model.User{ID: "t2"})
	_ = repo.Create(ctx, &model.User{ID: "t3", SubscribedToUserIDs: []string{"g", "f"}})

	users, err := repo.ListBySubscribedTo(ctx, "f")
	if err != nil {
		t.Fatalf("ListBySubscribedTo returned error: %v", err)
	}
	if got := userIDs(users); len(got) != 2 || got[0] != "t1" || got[1] != "t3" {
		t.Errorf("ListBySubscribedTo = %v, want [t1 t3]", got)
	}
}

func TestMemoryUserRepo_UpdateAndSetSubscriptions(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepo(NewMemoryStore())
	_ = repo.Create(ctx, &model.User{ID: "u1", FirstName: "Ada", Email: "a@example.com"})

	updated, err := repo.Update(ctx, "u1", model.UserPatch{FirstName: strPtr("Grace")})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.FirstName != "Grace" || updated.Email != "a@example.com" {
		t.Errorf("Update = %+v", updated)
	}

	ids := []string{"x", "y"}
	set, err := repo.SetSubscriptions(ctx, "u1", ids)
	if err != nil {
		t.Fatalf("SetSubscriptions returned error: %v", err)
	}
	ids[0] = "mutated"
	if set.SubscribedToUserIDs[0] != "x" {
		t.Error("SetSubscriptions should copy the input slice")
	}

	if _, err := repo.Update(ctx, "missing", model.UserPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := repo.SetSubscriptions(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetSubscriptions(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryUserRepo_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepo(NewMemoryStore())
	_ = repo.Create(ctx, &model.User{ID: "u1", FirstName: "Ada"})

	deleted, err := repo.Delete(ctx, "u1")
	if err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if deleted.FirstName != "Ada" {
		t.Errorf("Delete returned %+v", deleted)
	}
	if _, err := repo.Delete(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryUserRepo_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := NewMemoryUserRepo(NewMemoryStore())

	if _, err := repo.FindByID(ctx, "u1"); !errors.Is(err, context.Canceled) {
		t.Errorf("FindByID error = %v, want context.Canceled", err)
	}
	if err := repo.Create(ctx, &model.User{ID: "u1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Create error = %v, want context.Canceled", err)
	}
}

func TestMemoryProfileRepo_FindByUserIDAndUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryProfileRepo(NewMemoryStore())

	_ = repo.Create(ctx, &model.Profile{ID: "p1", UserID: "u1", City: "Tokyo", MemberTypeID: model.MemberTypeBasic})

	p, err := repo.FindByUserID(ctx, "u1")
	if err != nil || p == nil || p.ID != "p1" {
		t.Fatalf("FindByUserID = %+v, %v", p, err)
	}
	if none, _ := repo.FindByUserID(ctx, "u2"); none != nil {
		t.Errorf("FindByUserID(u2) = %+v, want nil", none)
	}

	business := model.MemberTypeBusiness
	updated, err := repo.Update(ctx, "p1", model.ProfilePatch{MemberTypeID: &business})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.MemberTypeID != model.MemberTypeBusiness || updated.City != "Tokyo" {
		t.Errorf("Update = %+v", updated)
	}

	if _, err := repo.Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := repo.Delete(ctx, "p1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryPostRepo_ListByUserID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPostRepo(NewMemoryStore())

	_ = repo.Create(ctx, &model.Post{ID: "p1", UserID: "u1", Title: "one"})
	_ = repo.Create(ctx, &model.Post{ID: "p2", UserID: "u2", Title: "two"})
	_ = repo.Create(ctx, &model.Post{ID: "p3", UserID: "u1", Title: "three"})

	posts, err := repo.ListByUserID(ctx, "u1")
	if err != nil {
		t.Fatalf("ListByUserID returned error: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != "p1" || posts[1].ID != "p3" {
		t.Errorf("ListByUserID = %+v", posts)
	}

	empty, _ := repo.ListByUserID(ctx, "nobody")
	if empty == nil || len(empty) != 0 {
		t.Errorf("ListByUserID(nobody) = %v, want empty slice", empty)
	}

	updated, err := repo.Update(ctx, "p2", model.PostPatch{Title: strPtr("renamed")})
	if err != nil || updated.Title != "renamed" {
		t.Errorf("Update = %+v, %v", updated, err)
	}
}

func TestMemoryMemberTypeRepo_SeededAndUpdatable(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryMemberTypeRepo(NewMemoryStore())

	types, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(types) != 2 || types[0].ID != model.MemberTypeBasic || types[1].ID != model.MemberTypeBusiness {
		t.Fatalf("List = %+v", types)
	}
	if types[1].Discount != 5 || types[1].MonthPostsLimit != 100 {
		t.Errorf("business = %+v", types[1])
	}

	limit := 30
	updated, err := repo.Update(ctx, model.MemberTypeBasic, model.MemberTypePatch{MonthPostsLimit: &limit})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.MonthPostsLimit != 30 || updated.Discount != 0 {
		t.Errorf("Update = %+v", updated)
	}

	if _, err := repo.Update(ctx, "premium", model.MemberTypePatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(premium) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_PingContext(t *testing.T) {
	store := NewMemoryStore()
	if err := store.PingContext(context.Background()); err != nil {
		t.Errorf("PingContext returned error: %v", err)
	}
}

func userIDs(users []*model.User) []string {
	ids := make([]string, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}
	return ids
}
