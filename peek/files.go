package peek

import (
	"context"
	"os"
)

// FileSource reads whole files by path. Implementations should give up
// once ctx is done.
type FileSource interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// OSFiles reads from the local filesystem.
type OSFiles struct{}

func (OSFiles) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(name)
}
