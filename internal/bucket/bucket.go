// Package bucket はユーザーごとのオブジェクトストレージを管理する。
package bucket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/freecorps/pulse/internal/appwrite"
	"github.com/freecorps/pulse/internal/model"
	"github.com/freecorps/pulse/internal/security"
)

// MaxFileSize はアップロードできるファイルの最大サイズ（10MiB）。
const MaxFileSize = 10 << 20

// AllowedExtensions はアップロードを許可する拡張子。
var AllowedExtensions = []string{"jpg", "jpeg", "png", "gif", "webp"}

// importTimeout は外部画像の取得タイムアウト。
const importTimeout = 15 * time.Second

// StorageClient はオブジェクトストレージAPIのインターフェース。
type StorageClient interface {
	GetBucket(ctx context.Context, bucketID string) (*appwrite.Bucket, error)
	CreateBucket(ctx context.Context, bucket appwrite.Bucket) (*appwrite.Bucket, error)
	CreateFile(ctx context.Context, bucketID, fileID, name string, data []byte, permissions []string) (*appwrite.File, error)
	DeleteFile(ctx context.Context, bucketID, fileID string) error
	FileViewURL(bucketID, fileID string) string
}

var _ StorageClient = (*appwrite.Storage)(nil)

// Status はバケットの存在確認結果。
type Status struct {
	BucketID string           `json:"bucketId"`
	Exists   bool             `json:"exists"`
	Bucket   *appwrite.Bucket `json:"bucket,omitempty"`
}

// UploadedFile はアップロード済みファイルの情報。
type UploadedFile struct {
	ID       string `json:"id"`
	BucketID string `json:"bucketId"`
	Name     string `json:"name"`
	URL      string `json:"url"`
}

// Service はユーザーバケットの作成とファイル操作を提供する。
type Service struct {
	storage StorageClient
	guard   security.SSRFGuardService
	client  *http.Client
	logger  *slog.Logger
	newID   func() string
}

// NewService はServiceを生成する。外部画像の取得にはSSRF防止付きクライアントを使う。
func NewService(storage StorageClient, guard security.SSRFGuardService, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		storage: storage,
		guard:   guard,
		client:  guard.NewSafeClient(importTimeout, MaxFileSize),
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// ID はユーザーのバケットIDを返す。
func ID(userID string) string {
	return "user_" + userID + "_files"
}

// Policy はユーザーバケットの作成設定を返す。
// 誰でも閲覧でき、本人だけが書き込める。
func Policy(userID string) appwrite.Bucket {
	user := model.RoleUser(userID)
	return appwrite.Bucket{
		ID:   ID(userID),
		Name: fmt.Sprintf("User %s Files", userID),
		Permissions: []string{
			model.PermissionRead(model.RoleAny()),
			model.PermissionWrite(user),
			model.PermissionCreate(user),
			model.PermissionUpdate(user),
			model.PermissionDelete(user),
		},
		FileSecurity:          true,
		Enabled:               true,
		MaximumFileSize:       MaxFileSize,
		AllowedFileExtensions: AllowedExtensions,
		Compression:           "gzip",
		Encryption:            true,
		Antivirus:             true,
	}
}

// Get はバケットの存在を確認する。存在しない場合はExists=falseを返す。
func (s *Service) Get(ctx context.Context, userID string) (*Status, error) {
	bucketID := ID(userID)
	b, err := s.storage.GetBucket(ctx, bucketID)
	if err != nil {
		if appwrite.IsNotFound(err) {
			return &Status{BucketID: bucketID, Exists: false}, nil
		}
		return nil, fmt.Errorf("bucket lookup %s: %w", bucketID, err)
	}
	return &Status{BucketID: bucketID, Exists: true, Bucket: b}, nil
}

// Ensure はバケットがなければ作成する。
// Existsは呼び出し前から存在していたかを表す。
func (s *Service) Ensure(ctx context.Context, userID string) (*Status, error) {
	st, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if st.Exists {
		return st, nil
	}

	b, err := s.storage.CreateBucket(ctx, Policy(userID))
	if err != nil {
		return nil, fmt.Errorf("bucket create %s: %w", st.BucketID, err)
	}
	s.logger.Info("user bucket created",
		slog.String("bucket_id", st.BucketID),
	)
	return &Status{BucketID: st.BucketID, Exists: false, Bucket: b}, nil
}

// Upload はユーザーのバケットにファイルを保存する。
func (s *Service) Upload(ctx context.Context, userID, name string, data []byte) (*UploadedFile, error) {
	if err := validateFile(name, len(data)); err != nil {
		return nil, err
	}

	bucketID := ID(userID)
	user := model.RoleUser(userID)
	perms := []string{
		model.PermissionRead(model.RoleAny()),
		model.PermissionUpdate(user),
		model.PermissionDelete(user),
	}

	f, err := s.storage.CreateFile(ctx, bucketID, s.newID(), name, data, perms)
	if err != nil {
		if appwrite.IsNotFound(err) {
			return nil, model.NewBucketNotFoundError(bucketID)
		}
		return nil, fmt.Errorf("file upload to %s: %w", bucketID, err)
	}
	return &UploadedFile{
		ID:       f.ID,
		BucketID: bucketID,
		Name:     f.Name,
		URL:      s.storage.FileViewURL(bucketID, f.ID),
	}, nil
}

// Delete はユーザーのバケットからファイルを削除する。
func (s *Service) Delete(ctx context.Context, userID, fileID string) error {
	if err := s.storage.DeleteFile(ctx, ID(userID), fileID); err != nil {
		if appwrite.IsNotFound(err) {
			return model.NewBucketNotFoundError(ID(userID))
		}
		return fmt.Errorf("file delete %s: %w", fileID, err)
	}
	return nil
}

// ViewURL はファイルの公開URLを返す。
func (s *Service) ViewURL(userID, fileID string) string {
	return s.storage.FileViewURL(ID(userID), fileID)
}

// ImportFromURL は外部の画像をダウンロードしてユーザーのバケットに保存する。
func (s *Service) ImportFromURL(ctx context.Context, userID, rawURL string) (*UploadedFile, error) {
	if err := s.guard.ValidateURL(rawURL); err != nil {
		return nil, model.NewSSRFBlockedError()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, model.NewInvalidURLError(err.Error())
	}
	req.Header.Set("Accept", "image/*")

	resp, err := s.client.Do(req)
	if errors.Is(err, security.ErrResponseTooLarge) {
		return nil, fileTooLargeError()
	}
	if err != nil {
		return nil, fmt.Errorf("image fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewValidationError(fmt.Sprintf("画像を取得できませんでした（HTTP %d）", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if errors.Is(err, security.ErrResponseTooLarge) {
		return nil, fileTooLargeError()
	}
	if err != nil {
		return nil, fmt.Errorf("image read %s: %w", rawURL, err)
	}

	name := importName(rawURL, resp.Header.Get("Content-Type"), s.newID())
	return s.Upload(ctx, userID, name, data)
}

// importName は取り込んだ画像のファイル名を決める。
// URLの拡張子が許可されていなければContent-Typeから推定する。
func importName(rawURL, contentType, fallback string) string {
	base := path.Base(strings.SplitN(rawURL, "?", 2)[0])
	if ext := extension(base); isAllowedExtension(ext) {
		return base
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "image/jpeg":
			return fallback + ".jpg"
		case "image/png":
			return fallback + ".png"
		case "image/gif":
			return fallback + ".gif"
		case "image/webp":
			return fallback + ".webp"
		}
	}
	return base
}

func validateFile(name string, size int) error {
	if size == 0 {
		return model.NewValidationError("ファイルが空です")
	}
	if size > MaxFileSize {
		return fileTooLargeError()
	}
	if !isAllowedExtension(extension(name)) {
		return model.NewValidationError("jpg, jpeg, png, gif, webp のいずれかの画像を選択してください")
	}
	return nil
}

func extension(name string) string {
	return strings.TrimPrefix(strings.ToLower(path.Ext(name)), ".")
}

func isAllowedExtension(ext string) bool {
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

func fileTooLargeError() *model.APIError {
	return model.NewValidationError("ファイルサイズは10MB以下にしてください")
}
