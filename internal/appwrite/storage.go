package appwrite

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
)

// chunkSize はファイルアップロードの分割単位。これを超えるファイルは分割して送信する。
const chunkSize = 5 * 1024 * 1024

// Storage はStorage APIのクライアント。サーバー権限（APIキー付き）で使う。
type Storage struct {
	client *Client
}

// NewStorage はStorageを生成する。
func NewStorage(client *Client) *Storage {
	return &Storage{client: client}
}

// Bucket はストレージバケットの設定。
type Bucket struct {
	ID                    string   `json:"$id"`
	Name                  string   `json:"name"`
	Permissions           []string `json:"$permissions"`
	FileSecurity          bool     `json:"fileSecurity"`
	Enabled               bool     `json:"enabled"`
	MaximumFileSize       int64    `json:"maximumFileSize"`
	AllowedFileExtensions []string `json:"allowedFileExtensions"`
	Compression           string   `json:"compression"`
	Encryption            bool     `json:"encryption"`
	Antivirus             bool     `json:"antivirus"`
}

// File はバケットに保存されたファイル。
type File struct {
	ID           string   `json:"$id"`
	BucketID     string   `json:"bucketId"`
	Name         string   `json:"name"`
	MimeType     string   `json:"mimeType"`
	SizeOriginal int64    `json:"sizeOriginal"`
	Permissions  []string `json:"$permissions"`
}

// GetBucket はバケットを取得する。
func (s *Storage) GetBucket(ctx context.Context, bucketID string) (*Bucket, error) {
	var b Bucket
	if err := s.client.Call(ctx, http.MethodGet, "/storage/buckets/"+url.PathEscape(bucketID), nil, &b); err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}
	return &b, nil
}

// CreateBucket はバケットを作成する。
func (s *Storage) CreateBucket(ctx context.Context, bucket Bucket) (*Bucket, error) {
	params := map[string]any{
		"bucketId":              bucket.ID,
		"name":                  bucket.Name,
		"permissions":           bucket.Permissions,
		"fileSecurity":          bucket.FileSecurity,
		"enabled":               bucket.Enabled,
		"maximumFileSize":       bucket.MaximumFileSize,
		"allowedFileExtensions": bucket.AllowedFileExtensions,
		"compression":           bucket.Compression,
		"encryption":            bucket.Encryption,
		"antivirus":             bucket.Antivirus,
	}

	var b Bucket
	if err := s.client.Call(ctx, http.MethodPost, "/storage/buckets", params, &b); err != nil {
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}
	return &b, nil
}

// CreateFile はファイルをアップロードする。
// chunkSizeを超える場合はContent-Rangeを付けて分割送信する。
func (s *Storage) CreateFile(ctx context.Context, bucketID, fileID, name string, data []byte, permissions []string) (*File, error) {
	path := fmt.Sprintf("/storage/buckets/%s/files", url.PathEscape(bucketID))
	total := len(data)
	if total == 0 {
		return nil, fmt.Errorf("empty file: %s", name)
	}

	var file File
	for start := 0; start < total; start += chunkSize {
		end := start + chunkSize
		if end > total {
			end = total
		}

		body, contentType, err := encodeFilePart(fileID, name, data[start:end], permissions)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.client.endpoint+path, body)
		if err != nil {
			return nil, fmt.Errorf("failed to create upload request: %w", err)
		}
		req.Header.Set("Content-Type", contentType)
		if total > chunkSize {
			req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, total))
			if start > 0 {
				req.Header.Set("X-Appwrite-ID", fileID)
			}
		}

		if err := s.client.send(req, &file); err != nil {
			return nil, fmt.Errorf("failed to upload file: %w", err)
		}
	}
	return &file, nil
}

// encodeFilePart はアップロード用のmultipartボディを組み立てる。
func encodeFilePart(fileID, name string, chunk []byte, permissions []string) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	if err := w.WriteField("fileId", fileID); err != nil {
		return nil, "", fmt.Errorf("failed to write fileId field: %w", err)
	}
	for _, p := range permissions {
		if err := w.WriteField("permissions[]", p); err != nil {
			return nil, "", fmt.Errorf("failed to write permissions field: %w", err)
		}
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(chunk); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

// DeleteFile はファイルを削除する。
func (s *Storage) DeleteFile(ctx context.Context, bucketID, fileID string) error {
	path := fmt.Sprintf("/storage/buckets/%s/files/%s", url.PathEscape(bucketID), url.PathEscape(fileID))
	if err := s.client.Call(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// FileViewURL はファイルを表示するための公開URLを返す。
func (s *Storage) FileViewURL(bucketID, fileID string) string {
	return fmt.Sprintf("%s/storage/buckets/%s/files/%s/view?project=%s",
		s.client.endpoint, url.PathEscape(bucketID), url.PathEscape(fileID), url.QueryEscape(s.client.projectID))
}
