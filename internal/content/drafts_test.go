package content

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/freecorps/pulse/internal/model"
)

func newTestDrafts(t *testing.T, posts *mockPostRepo, delay time.Duration, hook func(model.SyncStatus)) *DraftManager {
	t.Helper()
	m := NewDraftManager(posts, DraftConfig{
		Delay:           delay,
		IdleTTL:         time.Minute,
		CleanupInterval: time.Hour,
	}, hook, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	t.Cleanup(func() { m.Close(context.Background()) })
	return m
}

func TestDraftManager_EditMergesPatches(t *testing.T) {
	posts := newMockPostRepo(&model.Post{ID: "p1"})
	m := newTestDrafts(t, posts, time.Hour, nil)
	ctx := context.Background()

	status, err := m.Edit(ctx, "p1", model.PostPatch{Title: strPtr("Draft")})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if status != model.SyncStatusSaving {
		t.Errorf("status = %s, want saving", status)
	}
	if _, err := m.Edit(ctx, "p1", model.PostPatch{Content: strPtr(`{"v":2}`)}); err != nil {
		t.Fatalf("Edit: %v", err)
	}

	if err := m.Flush(ctx, "p1"); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	patches := posts.appliedPatches()
	if len(patches) != 1 {
		t.Fatalf("applied %d patches, want 1", len(patches))
	}
	if patches[0].Title == nil || *patches[0].Title != "Draft" || patches[0].Content == nil {
		t.Errorf("patch = %+v, want merged title and content", patches[0])
	}
	if got := m.Status("p1"); got != model.SyncStatusSaved {
		t.Errorf("status = %s, want saved", got)
	}
}

func TestDraftManager_UnknownPost(t *testing.T) {
	m := newTestDrafts(t, newMockPostRepo(), time.Hour, nil)

	_, err := m.Edit(context.Background(), "nope", model.PostPatch{Title: strPtr("x")})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodePostNotFound {
		t.Errorf("err = %v, want POST_NOT_FOUND", err)
	}
	if m.Count() != 0 {
		t.Error("no draft should be created for an unknown post")
	}
}

func TestDraftManager_InvalidPatch(t *testing.T) {
	m := newTestDrafts(t, newMockPostRepo(&model.Post{ID: "p1"}), time.Hour, nil)

	if _, err := m.Edit(context.Background(), "p1", model.PostPatch{}); err == nil {
		t.Error("expected validation error for empty patch")
	}
}

func TestDraftManager_SaveFailureSetsError(t *testing.T) {
	posts := newMockPostRepo(&model.Post{ID: "p1"})
	posts.applyErr = errors.New("db down")
	m := newTestDrafts(t, posts, time.Hour, nil)
	ctx := context.Background()

	m.Edit(ctx, "p1", model.PostPatch{Title: strPtr("x")})
	if err := m.Flush(ctx, "p1"); err == nil {
		t.Fatal("expected flush error")
	}
	if got := m.Status("p1"); got != model.SyncStatusError {
		t.Errorf("status = %s, want error", got)
	}
}

func TestDraftManager_StatusUnknownPostIsSaved(t *testing.T) {
	m := newTestDrafts(t, newMockPostRepo(), time.Hour, nil)
	if got := m.Status("none"); got != model.SyncStatusSaved {
		t.Errorf("status = %s, want saved", got)
	}
}

func TestDraftManager_DebouncedSaveWithRealTimer(t *testing.T) {
	posts := newMockPostRepo(&model.Post{ID: "p1"})

	var mu sync.Mutex
	var statuses []model.SyncStatus
	hook := func(s model.SyncStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	}
	m := newTestDrafts(t, posts, 20*time.Millisecond, hook)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m.Edit(ctx, "p1", model.PostPatch{Title: strPtr("v")})
	}

	deadline := time.Now().Add(2 * time.Second)
	for m.Status("p1") != model.SyncStatusSaved {
		if time.Now().After(deadline) {
			t.Fatal("draft was not saved in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n := len(posts.appliedPatches()); n != 1 {
		t.Errorf("applied %d patches, want 1", n)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) == 0 || statuses[len(statuses)-1] != model.SyncStatusSaved {
		t.Errorf("statuses = %v, want last saved", statuses)
	}
}

func TestDraftManager_EvictIdleFlushesPending(t *testing.T) {
	posts := newMockPostRepo(&model.Post{ID: "p1"}, &model.Post{ID: "p2"})
	m := newTestDrafts(t, posts, time.Hour, nil)
	ctx := context.Background()

	m.Edit(ctx, "p1", model.PostPatch{Title: strPtr("a")})
	m.Edit(ctx, "p2", model.PostPatch{Title: strPtr("b")})

	if n := m.evictIdle(ctx, time.Now().Add(30*time.Second)); n != 0 {
		t.Errorf("evicted %d before ttl", n)
	}
	if n := m.evictIdle(ctx, time.Now().Add(2*time.Minute)); n != 2 {
		t.Errorf("evicted %d, want 2", n)
	}
	if m.Count() != 0 {
		t.Errorf("count = %d, want 0", m.Count())
	}
	if n := len(posts.appliedPatches()); n != 2 {
		t.Errorf("applied %d patches on eviction, want 2", n)
	}
}

func TestDraftManager_Discard(t *testing.T) {
	posts := newMockPostRepo(&model.Post{ID: "p1"})
	m := newTestDrafts(t, posts, time.Hour, nil)

	m.Edit(context.Background(), "p1", model.PostPatch{Title: strPtr("a")})
	m.Discard("p1")

	if err := m.FlushAll(context.Background()); err != nil {
		t.Fatalf("FlushAll: %v", err)
	}
	if n := len(posts.appliedPatches()); n != 0 {
		t.Errorf("discarded draft was saved %d times", n)
	}
}

func TestDraftManager_EditAfterDiscardStartsFreshDraft(t *testing.T) {
	posts := newMockPostRepo(&model.Post{ID: "p1"})
	m := newTestDrafts(t, posts, time.Hour, nil)
	ctx := context.Background()

	m.Edit(ctx, "p1", model.PostPatch{Title: strPtr("discarded")})
	m.Discard("p1")

	status, err := m.Edit(ctx, "p1", model.PostPatch{Content: strPtr(`{"v":3}`)})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if status != model.SyncStatusSaving {
		t.Errorf("status = %s, want saving", status)
	}
	if m.Count() != 1 {
		t.Errorf("count = %d, want 1", m.Count())
	}

	if err := m.Flush(ctx, "p1"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	patches := posts.appliedPatches()
	if len(patches) != 1 {
		t.Fatalf("applied %d patches, want 1", len(patches))
	}
	if patches[0].Title != nil {
		t.Errorf("title = %q, discarded edit must not be saved", *patches[0].Title)
	}
	if patches[0].Content == nil {
		t.Error("expected content from the new edit")
	}
}

func TestDraftManager_EditAfterEvictionRecreatesDraft(t *testing.T) {
	posts := newMockPostRepo(&model.Post{ID: "p1"})
	m := newTestDrafts(t, posts, time.Hour, nil)
	ctx := context.Background()

	m.Edit(ctx, "p1", model.PostPatch{Title: strPtr("a")})
	if n := m.evictIdle(ctx, time.Now().Add(2*time.Minute)); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}

	if _, err := m.Edit(ctx, "p1", model.PostPatch{Title: strPtr("b")}); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got := m.Status("p1"); got != model.SyncStatusSaving {
		t.Errorf("status = %s, want saving", got)
	}
	if err := m.Flush(ctx, "p1"); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	patches := posts.appliedPatches()
	if len(patches) != 2 {
		t.Fatalf("applied %d patches, want 2", len(patches))
	}
	if *patches[1].Title != "b" {
		t.Errorf("title = %q, want b", *patches[1].Title)
	}
}

func TestDraftManager_ConcurrentEditAndDiscard(t *testing.T) {
	posts := newMockPostRepo(&model.Post{ID: "p1"})
	m := newTestDrafts(t, posts, 30*time.Millisecond, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := m.Edit(ctx, "p1", model.PostPatch{Title: strPtr("t")}); err != nil {
					t.Errorf("Edit: %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 50; j++ {
			m.Discard("p1")
		}
	}()
	wg.Wait()

	m.Discard("p1")
	time.Sleep(10 * time.Millisecond)
	before := len(posts.appliedPatches())
	time.Sleep(80 * time.Millisecond)

	if after := len(posts.appliedPatches()); after != before {
		t.Errorf("saved %d patches after discard", after-before)
	}
	if m.Count() != 0 {
		t.Errorf("count = %d, want 0", m.Count())
	}
}
