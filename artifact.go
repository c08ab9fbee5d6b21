package uplink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/phrazzld/uplink/job"
)

// ArtifactInfo describes a local artifact.
type ArtifactInfo struct {
	// Size is the artifact's length in bytes.
	Size int64
}

// ArtifactSource resolves artifact references to local content. A missing
// artifact surfaces as job.ErrArtifactMissing.
type ArtifactSource interface {
	// Stat describes the artifact at ref.
	Stat(ctx context.Context, ref string) (ArtifactInfo, error)

	// Open returns a reader over the artifact's content and its size.
	Open(ctx context.Context, ref string) (io.ReadCloser, int64, error)
}

// FileSource is an ArtifactSource over the local filesystem, where refs
// are file paths.
type FileSource struct{}

// NewFileSource creates a filesystem-backed ArtifactSource.
func NewFileSource() *FileSource {
	return &FileSource{}
}

// Stat describes the file at ref.
func (s *FileSource) Stat(ctx context.Context, ref string) (ArtifactInfo, error) {
	if err := ctx.Err(); err != nil {
		return ArtifactInfo{}, err
	}

	info, err := os.Stat(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ArtifactInfo{}, fmt.Errorf("%w: %s", job.ErrArtifactMissing, ref)
		}
		return ArtifactInfo{}, fmt.Errorf("failed to stat artifact: %w", err)
	}

	return ArtifactInfo{Size: info.Size()}, nil
}

// Open returns a reader over the file at ref.
func (s *FileSource) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	f, err := os.Open(ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", job.ErrArtifactMissing, ref)
		}
		return nil, 0, fmt.Errorf("failed to open artifact: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("failed to stat artifact: %w", err)
	}

	return f, info.Size(), nil
}

var _ ArtifactSource = (*FileSource)(nil)
