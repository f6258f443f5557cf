package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalFetcher is a minimal default Fetcher: it expects the requested
// binary to already exist in a source directory (e.g. populated by a
// separate release-download step outside this module's scope) and stages
// a throwaway copy of it for the caller to install and later remove. It
// exists so the CLI has something concrete to wire against; a real
// deployment would replace it with a collaborator that downloads from a
// release server given Request.Version or Request.URL.
type LocalFetcher struct {
	SourceDir string
}

// NewLocalFetcher returns a LocalFetcher reading from sourceDir.
func NewLocalFetcher(sourceDir string) *LocalFetcher {
	return &LocalFetcher{SourceDir: sourceDir}
}

func (f *LocalFetcher) Fetch(ctx context.Context, req Request) (string, error) {
	name := string(req.Kind)
	srcPath := filepath.Join(f.SourceDir, name)
	if _, err := os.Stat(srcPath); err != nil {
		return "", fmt.Errorf("local fetcher: %s not found in %s: %w", name, f.SourceDir, err)
	}

	staged, err := os.CreateTemp("", name+"-staged-*")
	if err != nil {
		return "", fmt.Errorf("local fetcher: stage %s: %w", name, err)
	}
	defer staged.Close()

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("local fetcher: open %s: %w", srcPath, err)
	}
	defer src.Close()

	if _, err := io.Copy(staged, src); err != nil {
		return "", fmt.Errorf("local fetcher: copy %s: %w", srcPath, err)
	}
	if err := os.Chmod(staged.Name(), 0o755); err != nil {
		return "", fmt.Errorf("local fetcher: chmod %s: %w", staged.Name(), err)
	}

	return staged.Name(), nil
}
