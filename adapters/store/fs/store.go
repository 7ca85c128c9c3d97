package storefs

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-nbexport/nbexport"
)

// ArtifactInfo describes a stored artifact. It doubles as the sidecar
// payload written next to each file.
type ArtifactInfo struct {
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store provides filesystem-backed storage for rendered documents.
type Store struct {
	Root string
	Now  func() time.Time
}

var _ nbexport.ArtifactStore = (*Store)(nil)

// NewStore creates a filesystem-backed artifact store.
func NewStore(root string) *Store {
	return &Store{Root: root, Now: time.Now}
}

// Save writes an artifact to disk atomically via a temp file rename.
func (s *Store) Save(ctx context.Context, key string, contentType string, body []byte) error {
	_ = ctx
	pathOnDisk, err := s.resolve(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(pathOnDisk)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".nbexport-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(body); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), pathOnDisk); err != nil {
		return err
	}

	info := ArtifactInfo{
		ContentType: contentType,
		Size:        int64(len(body)),
		CreatedAt:   s.now(),
	}
	if info.ContentType == "" {
		info.ContentType = mime.TypeByExtension(filepath.Ext(pathOnDisk))
	}
	return s.writeInfo(pathOnDisk, info)
}

// Open reads an artifact from disk.
func (s *Store) Open(ctx context.Context, key string) ([]byte, error) {
	_ = ctx
	pathOnDisk, err := s.resolve(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(pathOnDisk)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nbexport.NewError(nbexport.KindNotFound, fmt.Sprintf("artifact %q not found", key), err)
		}
		return nil, err
	}
	return data, nil
}

// Stat returns artifact metadata, falling back to file info and the
// extension-derived MIME type when the sidecar is missing.
func (s *Store) Stat(ctx context.Context, key string) (ArtifactInfo, error) {
	_ = ctx
	pathOnDisk, err := s.resolve(key)
	if err != nil {
		return ArtifactInfo{}, err
	}

	fileInfo, err := os.Stat(pathOnDisk)
	if err != nil {
		if os.IsNotExist(err) {
			return ArtifactInfo{}, nbexport.NewError(nbexport.KindNotFound, fmt.Sprintf("artifact %q not found", key), err)
		}
		return ArtifactInfo{}, err
	}

	info := s.readInfo(pathOnDisk)
	if info.ContentType == "" {
		info.ContentType = mime.TypeByExtension(filepath.Ext(pathOnDisk))
	}
	if info.Size == 0 {
		info.Size = fileInfo.Size()
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = fileInfo.ModTime()
	}
	return info, nil
}

// Delete removes an artifact and its sidecar. Deleting a missing artifact is
// not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_ = ctx
	pathOnDisk, err := s.resolve(key)
	if err != nil {
		return err
	}
	_ = os.Remove(pathOnDisk)
	_ = os.Remove(infoPath(pathOnDisk))
	return nil
}

func (s *Store) resolve(key string) (string, error) {
	if s == nil {
		return "", nbexport.NewError(nbexport.KindInternal, "store is nil", nil)
	}
	if s.Root == "" {
		return "", nbexport.NewError(nbexport.KindValidation, "store root is required", nil)
	}
	if key == "" {
		return "", nbexport.NewError(nbexport.KindValidation, "artifact key is required", nil)
	}

	clean := path.Clean("/" + key)
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" || rel == "." {
		return "", nbexport.NewError(nbexport.KindValidation, "invalid artifact key", nil)
	}

	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", err
	}
	target := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) && target != root {
		return "", nbexport.NewError(nbexport.KindValidation, "artifact key escapes root", nil)
	}
	return target, nil
}

func (s *Store) writeInfo(pathOnDisk string, info ArtifactInfo) error {
	payload, err := json.Marshal(info)
	if err != nil {
		return err
	}
	dir := filepath.Dir(pathOnDisk)
	tmp, err := os.CreateTemp(dir, ".info-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(payload); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), infoPath(pathOnDisk))
}

func (s *Store) readInfo(pathOnDisk string) ArtifactInfo {
	data, err := os.ReadFile(infoPath(pathOnDisk))
	if err != nil {
		return ArtifactInfo{}
	}
	var info ArtifactInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return ArtifactInfo{}
	}
	return info
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func infoPath(pathOnDisk string) string {
	return pathOnDisk + ".info.json"
}
