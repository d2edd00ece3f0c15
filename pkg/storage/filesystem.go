package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage persists files on disk under a base directory and hands out
// HMAC-signed links served by the API itself.
type LocalStorage struct {
	baseDir string
	baseURL string
	signer  *SignedURLSigner
}

// NewLocalStorage ensures the base directory exists and returns a handle.
// baseURL is the absolute URL of the file download route.
func NewLocalStorage(baseDir, baseURL string, signer *SignedURLSigner) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if signer == nil {
		return nil, fmt.Errorf("local storage requires a url signer")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, baseURL: strings.TrimRight(baseURL, "/"), signer: signer}, nil
}

// Put writes the object under a freshly generated file id.
func (s *LocalStorage) Put(ctx context.Context, obj Object) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fileID := NewFileID(obj.Folder, obj.ContentType)
	path, err := s.resolve(fileID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare upload directory: %w", err)
	}
	tmp := path + ".part"
	if err := os.WriteFile(tmp, obj.Data, 0o644); err != nil {
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("commit upload file: %w", err)
	}
	return fileID, nil
}

// URL returns a signed download link for fileID.
func (s *LocalStorage) URL(_ context.Context, fileID string, mode URLMode) (string, error) {
	if _, err := cleanFileID(fileID); err != nil {
		return "", err
	}
	if !mode.Valid() {
		mode = ModeView
	}
	token, _, err := s.signer.Generate(string(mode), fileID)
	if err != nil {
		return "", fmt.Errorf("sign file url: %w", err)
	}
	return s.baseURL + "?token=" + url.QueryEscape(token), nil
}

// Verify checks a download token and returns the file it grants access to.
func (s *LocalStorage) Verify(token string) (string, URLMode, error) {
	scope, fileID, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", "", err
	}
	mode := URLMode(scope)
	if !mode.Valid() {
		return "", "", fmt.Errorf("unknown url mode %q", scope)
	}
	if _, err := cleanFileID(fileID); err != nil {
		return "", "", err
	}
	return fileID, mode, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(fileID string) (*os.File, error) {
	path, err := s.resolve(fileID)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(_ context.Context, fileID string) error {
	path, err := s.resolve(fileID)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete upload file: %w", err)
	}
	return nil
}

func (s *LocalStorage) resolve(fileID string) (string, error) {
	cleaned, err := cleanFileID(fileID)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(cleaned)), nil
}
