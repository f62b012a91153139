// Package storage talks to the Supabase object store that holds menu item
// images. Uploads go under a per-tenant prefix; the purge path works back
// from the public URLs recorded on items.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tablecode/tablecode/internal/apperr"
)

type Storage interface {
	Upload(ctx context.Context, bucket, path string, data io.Reader, contentType string) error
	Delete(ctx context.Context, bucket, path string) error
	DeleteByURL(ctx context.Context, ref string) error
	GetPublicURL(bucket, path string) string
}

type SupabaseStorage struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
}

func NewSupabaseStorage(supabaseURL, serviceKey string) *SupabaseStorage {
	return &SupabaseStorage{
		baseURL:    supabaseURL + "/storage/v1",
		serviceKey: serviceKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *SupabaseStorage) Upload(ctx context.Context, bucket, path string, data io.Reader, contentType string) error {
	url := fmt.Sprintf("%s/object/%s/%s", s.baseURL, bucket, path)

	buf := &bytes.Buffer{}
	if _, err := io.Copy(buf, data); err != nil {
		return fmt.Errorf("read upload data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, buf)
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload failed (%d): %s", resp.StatusCode, string(body))
	}

	return nil
}

func (s *SupabaseStorage) Delete(ctx context.Context, bucket, path string) error {
	url := fmt.Sprintf("%s/object/%s/%s", s.baseURL, bucket, path)

	req, err := http.NewRequestWithContext(ctx, "DELETE", url, nil)
	if err != nil {
		return fmt.Errorf("create delete request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete failed (%d)", resp.StatusCode)
	}

	return nil
}

// DeleteByURL removes the object behind a recorded public URL. URLs that
// do not point at this store are ignored.
func (s *SupabaseStorage) DeleteByURL(ctx context.Context, ref string) error {
	bucket, path, ok := ParsePublicURL(ref)
	if !ok {
		return nil
	}
	return s.Delete(ctx, bucket, path)
}

func (s *SupabaseStorage) GetPublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/object/public/%s/%s", s.baseURL, bucket, path)
}

// ParsePublicURL splits a Supabase public object URL into bucket and path.
func ParsePublicURL(ref string) (bucket, path string, ok bool) {
	const marker = "/storage/v1/object/public/"
	i := strings.Index(ref, marker)
	if i < 0 {
		return "", "", false
	}
	rest := ref[i+len(marker):]
	slash := strings.IndexByte(rest, '/')
	if slash <= 0 || slash == len(rest)-1 {
		return "", "", false
	}
	return rest[:slash], rest[slash+1:], true
}

// StoreImage validates an upload by its magic bytes and writes it under
// the tenant's prefix with a fresh random name, returning the public URL
// to record on the item row.
func StoreImage(ctx context.Context, store Storage, bucket string, tenantID uuid.UUID, data []byte) (string, error) {
	contentType, ok := DetectImageType(data)
	if !ok {
		return "", apperr.Validation("image", "must be a JPEG, PNG or WebP file")
	}

	path := fmt.Sprintf("%s/%s%s", tenantID, uuid.NewString(), extFor(contentType))
	if err := store.Upload(ctx, bucket, path, bytes.NewReader(data), contentType); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return store.GetPublicURL(bucket, path), nil
}

func extFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	return ".jpg"
}

// DetectImageType sniffs the magic bytes of an upload and returns the
// content type, or false for anything that is not JPEG, PNG or WebP.
func DetectImageType(data []byte) (string, bool) {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg", true
	case len(data) >= 4 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "image/png", true
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "image/webp", true
	}
	return "", false
}
