package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/freecorps/pulse/internal/forum"
	"github.com/freecorps/pulse/internal/model"
)

// ForumServiceInterface はフォーラムハンドラーが必要とするサービスインターフェース。
type ForumServiceInterface interface {
	ListPosts(ctx context.Context, limit, offset int) ([]*model.ForumPost, error)
	GetPost(ctx context.Context, id string) (*model.ForumPost, error)
	CreatePost(ctx context.Context, userID, title, content, description string) (*model.ForumPost, error)
	DeletePost(ctx context.Context, userID, id string) error

	ListComments(ctx context.Context, postID string) ([]*model.Comment, error)
	CreateComment(ctx context.Context, userID, postID, content string) (*model.Comment, error)
	DeleteComment(ctx context.Context, userID, id string) error

	GetProfile(ctx context.Context, id string) (*model.Profile, error)
	GetProfileByUser(ctx context.Context, userID string) (*model.Profile, error)
	CreateProfile(ctx context.Context, userID, handle, imageURL string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, userID, handle, imageURL string) (*model.Profile, error)
}

// ForumHandler はフォーラムの投稿・コメント・プロフィールのHTTPハンドラー。
type ForumHandler struct {
	service ForumServiceInterface
}

// NewForumHandler はForumHandlerを生成する。
func NewForumHandler(service ForumServiceInterface) *ForumHandler {
	return &ForumHandler{service: service}
}

type forumPostRequest struct {
	Title       string `json:"title" validate:"required"`
	Content     string `json:"content" validate:"required"`
	Description string `json:"description"`
}

type commentRequest struct {
	Content string `json:"content" validate:"required"`
}

type profileRequest struct {
	Handle   string `json:"handle" validate:"required"`
	ImageURL string `json:"imageURL" validate:"omitempty,url"`
}

type forumPostResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Description string    `json:"description"`
	UserID      string    `json:"userId"`
	ProfileID   string    `json:"profileId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type commentResponse struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	Content   string    `json:"content"`
	UserID    string    `json:"userId"`
	ProfileID string    `json:"profileId"`
	CreatedAt time.Time `json:"createdAt"`
}

type profileResponse struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	ImageURL string `json:"imageURL"`
	UserID   string `json:"userId"`
}

// ListPosts は投稿を新しい順に返す。
// GET /api/forum/posts?limit=20&offset=0
func (h *ForumHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", forum.DefaultPageSize, forum.MaxPageSize)
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset", 0, -1)
	if !ok {
		return
	}

	posts, err := h.service.ListPosts(r.Context(), limit, offset)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]forumPostResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toForumPostResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPost は投稿を返す。
// GET /api/forum/posts/{id}
func (h *ForumHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.service.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toForumPostResponse(post))
}

// CreatePost は投稿を作成する。プロフィールが必要。
// POST /api/forum/posts
func (h *ForumHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req forumPostRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	post, err := h.service.CreatePost(r.Context(), userID, req.Title, req.Content, req.Description)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toForumPostResponse(post))
}

// DeletePost は自分の投稿を削除する。
// DELETE /api/forum/posts/{id}
func (h *ForumHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePost(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListComments は投稿へのコメントを返す。
// GET /api/forum/posts/{id}/comments
func (h *ForumHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.service.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]commentResponse, 0, len(comments))
	for _, c := range comments {
		resp = append(resp, toCommentResponse(c))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateComment は投稿にコメントする。
// POST /api/forum/posts/{id}/comments
func (h *ForumHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req commentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	comment, err := h.service.CreateComment(r.Context(), userID, chi.URLParam(r, "id"), req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(comment))
}

// DeleteComment は自分のコメントを削除する。
// DELETE /api/forum/comments/{id}
func (h *ForumHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteComment(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetProfile はプロフィールを返す。
// GET /api/forum/profiles/{id}
func (h *ForumHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.GetProfile(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// GetMyProfile はログイン中のユーザーのプロフィールを返す。
// GET /api/forum/profile
func (h *ForumHandler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	profile, err := h.service.GetProfileByUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// CreateProfile はログイン中のユーザーのプロフィールを作成する。
// POST /api/forum/profile
func (h *ForumHandler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.service.CreateProfile(r.Context(), userID, req.Handle, req.ImageURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfileResponse(profile))
}

// UpdateProfile はログイン中のユーザーのプロフィールを更新する。
// PUT /api/forum/profile
func (h *ForumHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), userID, req.Handle, req.ImageURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// SetupForumRoutes はフォーラムのルーティングを設定する。
func SetupForumRoutes(r chi.Router, h *ForumHandler, requireUser func(http.Handler) http.Handler) {
	r.Route("/api/forum", func(r chi.Router) {
		r.Get("/posts", h.ListPosts)
		r.Get("/posts/{id}", h.GetPost)
		r.Get("/posts/{id}/comments", h.ListComments)
		r.Get("/profiles/{id}", h.GetProfile)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Post("/posts", h.CreatePost)
			r.Delete("/posts/{id}", h.DeletePost)
			r.Post("/posts/{id}/comments", h.CreateComment)
			r.Delete("/comments/{id}", h.DeleteComment)

			r.Get("/profile", h.GetMyProfile)
			r.Post("/profile", h.CreateProfile)
			r.Put("/profile", h.UpdateProfile)
		})
	})
}

// --- ヘルパー関数 ---

func toForumPostResponse(p *model.ForumPost) forumPostResponse {
	return forumPostResponse{
		ID:          p.ID,
		Title:       p.Title,
		Content:     p.Content,
		Description: p.Description,
		UserID:      p.UserID,
		ProfileID:   p.ProfileID,
		CreatedAt:   p.CreatedAt,
	}
}

func toCommentResponse(c *model.Comment) commentResponse {
	return commentResponse{
		ID:        c.ID,
		PostID:    c.PostID,
		Content:   c.Content,
		UserID:    c.UserID,
		ProfileID: c.ProfileID,
		CreatedAt: c.CreatedAt,
	}
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		ID:       p.ID,
		Handle:   p.Handle,
		ImageURL: p.ImageURL,
		UserID:   p.UserID,
	}
}
