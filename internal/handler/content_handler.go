package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/freecorps/pulse/internal/content"
	"github.com/freecorps/pulse/internal/model"
)

// maxPostListLimit は記事一覧で一度に取得できる最大件数。
const maxPostListLimit = 100

// ContentServiceInterface は記事・ゲーム・編集者ハンドラーが必要とするサービスインターフェース。
type ContentServiceInterface interface {
	RequireEditor(ctx context.Context, userID string) error

	ListPosts(ctx context.Context, filter model.PostFilter) ([]*model.Post, error)
	GetPost(ctx context.Context, id string) (*model.Post, error)
	CreatePost(ctx context.Context, userID string, in content.PostInput) (*model.Post, error)
	DeletePost(ctx context.Context, userID, id string) error

	ListGames(ctx context.Context) ([]*model.Game, error)
	GetGame(ctx context.Context, id string) (*model.Game, error)
	CreateGame(ctx context.Context, userID string, in content.GameInput) (*model.Game, error)
	UpdateGame(ctx context.Context, userID, id string, in content.GameInput) (*model.Game, error)
	DeleteGame(ctx context.Context, userID, id string) error

	ListEditors(ctx context.Context) ([]*model.Editor, error)
	GetEditor(ctx context.Context, id string) (*model.Editor, error)
	CreateEditor(ctx context.Context, userID string, in content.EditorInput) (*model.Editor, error)
	UpdateEditor(ctx context.Context, userID, id string, in content.EditorInput) (*model.Editor, error)
	DeleteEditor(ctx context.Context, userID, id string) error
}

// DraftEditor は記事の下書きの自動保存を管理する。
type DraftEditor interface {
	Edit(ctx context.Context, postID string, patch model.PostPatch) (model.SyncStatus, error)
	Status(postID string) model.SyncStatus
	Flush(ctx context.Context, postID string) error
	Discard(postID string)
}

// ContentHandler は記事・ゲーム・編集者のHTTPハンドラー。
type ContentHandler struct {
	service ContentServiceInterface
	drafts  DraftEditor
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(service ContentServiceInterface, drafts DraftEditor) *ContentHandler {
	return &ContentHandler{
		service: service,
		drafts:  drafts,
	}
}

type createPostRequest struct {
	Title       string `json:"title" validate:"required"`
	ImageURL    string `json:"imageURL" validate:"omitempty,url"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Content     string `json:"content"`
	GameID      string `json:"gameId"`
	EditorID    string `json:"editorId"`
}

type gameRequest struct {
	Name          string `json:"name" validate:"required"`
	ImageURL      string `json:"imageURL" validate:"omitempty,url"`
	Abbreviation  string `json:"abbreviation"`
	ImageURLUpper string `json:"imageURLUpper" validate:"omitempty,url"`
}

type editorRequest struct {
	Name        string `json:"name" validate:"required"`
	ImageURL    string `json:"imageURL" validate:"omitempty,url"`
	Description string `json:"description"`
}

type postResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	ImageURL    string    `json:"imageURL"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Content     string    `json:"content"`
	GameID      string    `json:"gameId,omitempty"`
	EditorID    string    `json:"editorId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type gameResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ImageURL      string `json:"imageURL"`
	Abbreviation  string `json:"abbreviation"`
	ImageURLUpper string `json:"imageURLUpper"`
}

type editorResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ImageURL    string `json:"imageURL"`
	Description string `json:"description"`
}

type syncStatusResponse struct {
	PostID string           `json:"postId"`
	Status model.SyncStatus `json:"status"`
}

// ListPosts は記事を新しい順に返す。
// GET /api/posts?gameIds=a,b&editorId=x&type=news&limit=20&offset=0
func (h *ContentHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.PostFilter{
		EditorID: q.Get("editorId"),
		Type:     model.PostType(q.Get("type")),
	}
	if ids := q.Get("gameIds"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				filter.GameIDs = append(filter.GameIDs, id)
			}
		}
	}

	var ok bool
	if filter.Limit, ok = queryInt(w, r, "limit", 0, maxPostListLimit); !ok {
		return
	}
	if filter.Offset, ok = queryInt(w, r, "offset", 0, -1); !ok {
		return
	}

	posts, err := h.service.ListPosts(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]postResponse, 0, len(posts))
	for _, p := range posts {
		resp = append(resp, toPostResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPost は記事を返す。
// GET /api/posts/{id}
func (h *ContentHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.service.GetPost(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPostResponse(post))
}

// CreatePost は記事を作成する。編集部のメンバーのみ実行できる。
// POST /api/editor/posts
func (h *ContentHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req createPostRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	post, err := h.service.CreatePost(r.Context(), userID, content.PostInput{
		Title:       req.Title,
		ImageURL:    req.ImageURL,
		Type:        model.PostType(req.Type),
		Description: req.Description,
		Content:     req.Content,
		GameID:      req.GameID,
		EditorID:    req.EditorID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

// DeletePost は記事を削除する。保存待ちの下書きは破棄する。
// DELETE /api/editor/posts/{id}
func (h *ContentHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	postID := chi.URLParam(r, "id")

	if err := h.service.DeletePost(r.Context(), userID, postID); err != nil {
		handleServiceError(w, err)
		return
	}
	h.drafts.Discard(postID)
	w.WriteHeader(http.StatusNoContent)
}

// EditDraft は記事の下書きに部分更新を反映し、自動保存を予約する。
// PATCH /api/editor/posts/{id}/draft
func (h *ContentHandler) EditDraft(w http.ResponseWriter, r *http.Request) {
	if !h.requireEditor(w, r) {
		return
	}
	var patch model.PostPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	postID := chi.URLParam(r, "id")

	status, err := h.drafts.Edit(r.Context(), postID, patch)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, syncStatusResponse{PostID: postID, Status: status})
}

// FlushDraft は保存待ちの下書きを即座に保存する。
// POST /api/editor/posts/{id}/draft/flush
func (h *ContentHandler) FlushDraft(w http.ResponseWriter, r *http.Request) {
	if !h.requireEditor(w, r) {
		return
	}
	postID := chi.URLParam(r, "id")

	if err := h.drafts.Flush(r.Context(), postID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncStatusResponse{PostID: postID, Status: h.drafts.Status(postID)})
}

// SyncStatus は記事の自動保存の状態を返す。
// GET /api/editor/posts/{id}/sync-status
func (h *ContentHandler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireEditor(w, r) {
		return
	}
	postID := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, syncStatusResponse{PostID: postID, Status: h.drafts.Status(postID)})
}

// ListGames はゲームの一覧を返す。
// GET /api/games
func (h *ContentHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	games, err := h.service.ListGames(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]gameResponse, 0, len(games))
	for _, g := range games {
		resp = append(resp, toGameResponse(g))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetGame はゲームを返す。
// GET /api/games/{id}
func (h *ContentHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	game, err := h.service.GetGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGameResponse(game))
}

// CreateGame はゲームを作成する。
// POST /api/editor/games
func (h *ContentHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req gameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	game, err := h.service.CreateGame(r.Context(), userID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toGameResponse(game))
}

// UpdateGame はゲームを更新する。
// PUT /api/editor/games/{id}
func (h *ContentHandler) UpdateGame(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req gameRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	game, err := h.service.UpdateGame(r.Context(), userID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toGameResponse(game))
}

// DeleteGame はゲームを削除する。
// DELETE /api/editor/games/{id}
func (h *ContentHandler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGame(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListEditors は編集者の一覧を返す。
// GET /api/editors
func (h *ContentHandler) ListEditors(w http.ResponseWriter, r *http.Request) {
	editors, err := h.service.ListEditors(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := make([]editorResponse, 0, len(editors))
	for _, e := range editors {
		resp = append(resp, toEditorResponse(e))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetEditor は編集者を返す。
// GET /api/editors/{id}
func (h *ContentHandler) GetEditor(w http.ResponseWriter, r *http.Request) {
	editor, err := h.service.GetEditor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEditorResponse(editor))
}

// CreateEditor は編集者を作成する。
// POST /api/editor/editors
func (h *ContentHandler) CreateEditor(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req editorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	editor, err := h.service.CreateEditor(r.Context(), userID, req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEditorResponse(editor))
}

// UpdateEditor は編集者を更新する。
// PUT /api/editor/editors/{id}
func (h *ContentHandler) UpdateEditor(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	var req editorRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	editor, err := h.service.UpdateEditor(r.Context(), userID, chi.URLParam(r, "id"), req.toInput())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEditorResponse(editor))
}

// DeleteEditor は編集者を削除する。
// DELETE /api/editor/editors/{id}
func (h *ContentHandler) DeleteEditor(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteEditor(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireEditor はログイン中のユーザーが編集部のメンバーかを確認する。
func (h *ContentHandler) requireEditor(w http.ResponseWriter, r *http.Request) bool {
	userID, ok := requireUserID(w, r)
	if !ok {
		return false
	}
	if err := h.service.RequireEditor(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return false
	}
	return true
}

// SetupContentRoutes は記事・ゲーム・編集者のルーティングを設定する。
// 閲覧は誰でも、/api/editor 以下は編集部のメンバーのみ実行できる。
func SetupContentRoutes(r chi.Router, h *ContentHandler, requireUser func(http.Handler) http.Handler) {
	r.Get("/api/posts", h.ListPosts)
	r.Get("/api/posts/{id}", h.GetPost)
	r.Get("/api/games", h.ListGames)
	r.Get("/api/games/{id}", h.GetGame)
	r.Get("/api/editors", h.ListEditors)
	r.Get("/api/editors/{id}", h.GetEditor)

	r.Route("/api/editor", func(r chi.Router) {
		r.Use(requireUser)

		r.Post("/posts", h.CreatePost)
		r.Route("/posts/{id}", func(r chi.Router) {
			r.Delete("/", h.DeletePost)
			r.Patch("/draft", h.EditDraft)
			r.Post("/draft/flush", h.FlushDraft)
			r.Get("/sync-status", h.SyncStatus)
		})

		r.Post("/games", h.CreateGame)
		r.Put("/games/{id}", h.UpdateGame)
		r.Delete("/games/{id}", h.DeleteGame)

		r.Post("/editors", h.CreateEditor)
		r.Put("/editors/{id}", h.UpdateEditor)
		r.Delete("/editors/{id}", h.DeleteEditor)
	})
}

// --- ヘルパー関数 ---

func (req gameRequest) toInput() content.GameInput {
	return content.GameInput{
		Name:          req.Name,
		ImageURL:      req.ImageURL,
		Abbreviation:  req.Abbreviation,
		ImageURLUpper: req.ImageURLUpper,
	}
}

func (req editorRequest) toInput() content.EditorInput {
	return content.EditorInput{
		Name:        req.Name,
		ImageURL:    req.ImageURL,
		Description: req.Description,
	}
}

func toPostResponse(p *model.Post) postResponse {
	return postResponse{
		ID:          p.ID,
		Title:       p.Title,
		ImageURL:    p.ImageURL,
		Type:        string(p.Type),
		Description: p.Description,
		Content:     p.Content,
		GameID:      p.GameID,
		EditorID:    p.EditorID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toGameResponse(g *model.Game) gameResponse {
	return gameResponse{
		ID:            g.ID,
		Name:          g.Name,
		ImageURL:      g.ImageURL,
		Abbreviation:  g.Abbreviation,
		ImageURLUpper: g.ImageURLUpper,
	}
}

func toEditorResponse(e *model.Editor) editorResponse {
	return editorResponse{
		ID:          e.ID,
		Name:        e.Name,
		ImageURL:    e.ImageURL,
		Description: e.Description,
	}
}

// queryInt はクエリパラメータを0以上の整数として読み取る。
// 未指定ならdef、upperが0以上ならupperで丸める。不正な値は400を書き込んでfalseを返す。
func queryInt(w http.ResponseWriter, r *http.Request, key string, def, upper int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError(key+" は0以上の整数を指定してください"))
		return 0, false
	}
	if upper >= 0 && n > upper {
		n = upper
	}
	return n, true
}
