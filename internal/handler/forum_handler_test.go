package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/freecorps/pulse/internal/forum"
	"github.com/freecorps/pulse/internal/middleware"
	"github.com/freecorps/pulse/internal/model"
)

// mockForumService はForumServiceInterfaceのモック実装。
type mockForumService struct {
	listPostsFn        func(ctx context.Context, limit, offset int) ([]*model.ForumPost, error)
	createPostFn       func(ctx context.Context, userID, title, content, description string) (*model.ForumPost, error)
	createCommentFn    func(ctx context.Context, userID, postID, content string) (*model.Comment, error)
	getProfileByUserFn func(ctx context.Context, userID string) (*model.Profile, error)
	createProfileFn    func(ctx context.Context, userID, handle, imageURL string) (*model.Profile, error)
}

func (m *mockForumService) ListPosts(ctx context.Context, limit, offset int) ([]*model.ForumPost, error) {
	if m.listPostsFn != nil {
		return m.listPostsFn(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockForumService) GetPost(ctx context.Context, id string) (*model.ForumPost, error) {
	return &model.ForumPost{ID: id}, nil
}

func (m *mockForumService) CreatePost(ctx context.Context, userID, title, content, description string) (*model.ForumPost, error) {
	if m.createPostFn != nil {
		return m.createPostFn(ctx, userID, title, content, description)
	}
	return &model.ForumPost{}, nil
}

func (m *mockForumService) DeletePost(ctx context.Context, userID, id string) error {
	return nil
}

func (m *mockForumService) ListComments(ctx context.Context, postID string) ([]*model.Comment, error) {
	return []*model.Comment{{ID: "c1", PostID: postID}}, nil
}

func (m *mockForumService) CreateComment(ctx context.Context, userID, postID, content string) (*model.Comment, error) {
	if m.createCommentFn != nil {
		return m.createCommentFn(ctx, userID, postID, content)
	}
	return &model.Comment{}, nil
}

func (m *mockForumService) DeleteComment(ctx context.Context, userID, id string) error {
	return nil
}

func (m *mockForumService) GetProfile(ctx context.Context, id string) (*model.Profile, error) {
	return &model.Profile{ID: id}, nil
}

func (m *mockForumService) GetProfileByUser(ctx context.Context, userID string) (*model.Profile, error) {
	if m.getProfileByUserFn != nil {
		return m.getProfileByUserFn(ctx, userID)
	}
	return &model.Profile{UserID: userID}, nil
}

func (m *mockForumService) CreateProfile(ctx context.Context, userID, handle, imageURL string) (*model.Profile, error) {
	if m.createProfileFn != nil {
		return m.createProfileFn(ctx, userID, handle, imageURL)
	}
	return &model.Profile{UserID: userID, Handle: handle}, nil
}

func (m *mockForumService) UpdateProfile(ctx context.Context, userID, handle, imageURL string) (*model.Profile, error) {
	return &model.Profile{UserID: userID, Handle: handle}, nil
}

// newForumRouter はフォーラムのルートを組み込んだルーターを返すヘルパー。
// userIDが空でなければ全リクエストをそのユーザーとして扱う。
func newForumRouter(svc ForumServiceInterface, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID != "" {
				r = withUserID(r, userID)
			}
			next.ServeHTTP(w, r)
		})
	})
	SetupForumRoutes(r, NewForumHandler(svc), middleware.RequireUser)
	return r
}

func TestForumHandler_ListPosts_Paging(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", forum.DefaultPageSize, 0},
		{"explicit", "?limit=5&offset=10", 5, 10},
		{"capped", "?limit=100000", forum.MaxPageSize, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotLimit, gotOffset int
			svc := &mockForumService{
				listPostsFn: func(ctx context.Context, limit, offset int) ([]*model.ForumPost, error) {
					gotLimit, gotOffset = limit, offset
					return nil, nil
				},
			}

			req := httptest.NewRequest(http.MethodGet, "/api/forum/posts"+tt.query, nil)
			w := httptest.NewRecorder()
			newForumRouter(svc, "").ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if gotLimit != tt.wantLimit || gotOffset != tt.wantOffset {
				t.Errorf("ListPosts(%d, %d), want (%d, %d)", gotLimit, gotOffset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestForumHandler_CreatePost(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		body       string
		serviceErr error
		wantStatus int
	}{
		{"created", "user-1", `{"title":"Best build?","content":"<p>Share yours</p>"}`, nil, http.StatusCreated},
		{"anonymous", "", `{"title":"Best build?","content":"x"}`, nil, http.StatusUnauthorized},
		{"missing content", "user-1", `{"title":"Best build?"}`, nil, http.StatusBadRequest},
		{"no profile", "user-1", `{"title":"Best build?","content":"x"}`, model.NewProfileRequiredError(), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockForumService{
				createPostFn: func(ctx context.Context, userID, title, content, description string) (*model.ForumPost, error) {
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					return &model.ForumPost{ID: "fp-1", Title: title, Content: content, UserID: userID}, nil
				},
			}

			req := jsonRequest(http.MethodPost, "/api/forum/posts", tt.body)
			w := httptest.NewRecorder()
			newForumRouter(svc, tt.userID).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body: %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}

func TestForumHandler_CreateComment_UsesPostIDFromPath(t *testing.T) {
	var gotPostID string
	svc := &mockForumService{
		createCommentFn: func(ctx context.Context, userID, postID, content string) (*model.Comment, error) {
			gotPostID = postID
			return &model.Comment{ID: "c-1", PostID: postID, Content: content, UserID: userID}, nil
		},
	}

	req := jsonRequest(http.MethodPost, "/api/forum/posts/fp-9/comments", `{"content":"gg"}`)
	w := httptest.NewRecorder()
	newForumRouter(svc, "user-1").ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d (body: %s)", w.Code, http.StatusCreated, w.Body.String())
	}
	if gotPostID != "fp-9" {
		t.Errorf("postID = %q, want %q", gotPostID, "fp-9")
	}
}

func TestForumHandler_CreateProfile_HandleTaken(t *testing.T) {
	svc := &mockForumService{
		createProfileFn: func(ctx context.Context, userID, handle, imageURL string) (*model.Profile, error) {
			return nil, model.NewHandleTakenError(handle)
		},
	}

	req := jsonRequest(http.MethodPost, "/api/forum/profile", `{"handle":"neo"}`)
	w := httptest.NewRecorder()
	newForumRouter(svc, "user-1").ServeHTTP(w, req)

	assertAPIError(t, w, http.StatusConflict, model.ErrCodeHandleTaken)
}

func TestForumHandler_GetMyProfile_NotFound(t *testing.T) {
	svc := &mockForumService{
		getProfileByUserFn: func(ctx context.Context, userID string) (*model.Profile, error) {
			return nil, model.NewProfileNotFoundError()
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/forum/profile", nil)
	w := httptest.NewRecorder()
	newForumRouter(svc, "user-1").ServeHTTP(w, req)

	assertAPIError(t, w, http.StatusNotFound, model.ErrCodeProfileNotFound)
}

func TestForumHandler_PublicRoutes(t *testing.T) {
	paths := []string{
		"/api/forum/posts/fp-1",
		"/api/forum/posts/fp-1/comments",
		"/api/forum/profiles/pr-1",
	}

	for _, p := range paths {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		w := httptest.NewRecorder()
		newForumRouter(&mockForumService{}, "").ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want %d", p, w.Code, http.StatusOK)
		}
	}
}
