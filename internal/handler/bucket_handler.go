package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/freecorps/pulse/internal/bucket"
	"github.com/freecorps/pulse/internal/model"
)

// BucketServiceInterface はユーザーバケットハンドラーが必要とするサービスインターフェース。
type BucketServiceInterface interface {
	Get(ctx context.Context, userID string) (*bucket.Status, error)
	Ensure(ctx context.Context, userID string) (*bucket.Status, error)
	Upload(ctx context.Context, userID, name string, data []byte) (*bucket.UploadedFile, error)
	Delete(ctx context.Context, userID, fileID string) error
	ImportFromURL(ctx context.Context, userID, rawURL string) (*bucket.UploadedFile, error)
}

// BucketHandler はユーザーバケットとファイルのHTTPハンドラー。
type BucketHandler struct {
	service BucketServiceInterface
}

// NewBucketHandler はBucketHandlerを生成する。serviceがnilの場合は503を返す。
func NewBucketHandler(service BucketServiceInterface) *BucketHandler {
	return &BucketHandler{service: service}
}

type ensureBucketRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type ensureBucketResponse struct {
	Message  string `json:"message"`
	BucketID string `json:"bucketId"`
	Exists   bool   `json:"exists"`
}

type importFileRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// Ensure はユーザーのバケットがなければ作成する。
// POST /api/user-bucket
func (h *BucketHandler) Ensure(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeUnavailable(w, "ストレージ")
		return
	}

	var req ensureBucketRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !authorizeUser(w, r, req.UserID) {
		return
	}

	st, err := h.service.Ensure(r.Context(), req.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	msg := "バケットを作成しました"
	if st.Exists {
		msg = "バケットは作成済みです"
	}
	writeJSON(w, http.StatusOK, ensureBucketResponse{Message: msg, BucketID: st.BucketID, Exists: st.Exists})
}

// Get はユーザーのバケットの有無を返す。
// GET /api/user-bucket?userId=xxx
func (h *BucketHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeUnavailable(w, "ストレージ")
		return
	}

	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("userId は必須です"))
		return
	}
	if !authorizeUser(w, r, userID) {
		return
	}

	st, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Upload はmultipartの file フィールドの画像をユーザーのバケットに保存する。
// POST /api/user-bucket/files
func (h *BucketHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeUnavailable(w, "ストレージ")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, bucket.MaxFileSize+(1<<20))
	f, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("ファイルサイズは10MB以下にしてください"))
			return
		}
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("file フィールドは必須です"))
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, bucket.MaxFileSize+1))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("ファイルを読み取れませんでした"))
		return
	}

	uploaded, err := h.service.Upload(r.Context(), userID, header.Filename, data)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploaded)
}

// Import は外部URLの画像をユーザーのバケットに取り込む。
// POST /api/user-bucket/files/import
func (h *BucketHandler) Import(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeUnavailable(w, "ストレージ")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req importFileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	uploaded, err := h.service.ImportFromURL(r.Context(), userID, req.URL)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, uploaded)
}

// DeleteFile はユーザーのバケットからファイルを削除する。
// DELETE /api/user-bucket/files/{fileID}
func (h *BucketHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeUnavailable(w, "ストレージ")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "fileID")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
