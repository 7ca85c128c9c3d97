package notebook

import (
	"context"
	"fmt"
	"io"
	"os"
)

// DefaultMaxFileSize caps notebook reads at 32 MiB unless configured.
const DefaultMaxFileSize int64 = 32 << 20

// Source resolves a path to a parsed notebook.
type Source interface {
	Load(ctx context.Context, path string) (*Notebook, error)
}

// FSSource loads notebooks from the local filesystem with a size cap.
type FSSource struct {
	MaxFileSize int64
}

var _ Source = (*FSSource)(nil)

// Load reads and parses the notebook at path.
func (s *FSSource) Load(ctx context.Context, path string) (*Notebook, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxSize := DefaultMaxFileSize
	if s != nil && s.MaxFileSize > 0 {
		maxSize = s.MaxFileSize
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, info.Size(), maxSize)
	}

	return Parse(io.LimitReader(f, maxSize))
}

// CallbackSource adapts a function to a Source. Useful for tests and for
// callers that keep notebooks somewhere other than the filesystem.
type CallbackSource func(ctx context.Context, path string) (*Notebook, error)

// Load invokes the callback.
func (f CallbackSource) Load(ctx context.Context, path string) (*Notebook, error) {
	if f == nil {
		return nil, os.ErrInvalid
	}
	return f(ctx, path)
}
