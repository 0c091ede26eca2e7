package deploy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashmap-kz/katomik-global-deploy/internal/resource"
)

// applyDir materializes a fresh temporary directory containing exactly one
// entry per applyable resource, linked back to its source file. kubectl
// apply -f <dir> then sees exactly the intended set and nothing else.
// Scoped acquisition with guaranteed release: callers must always call the
// returned cleanup func, on every exit path.
func applyDir(resources []*resource.Resource) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "katomik-global-deploy-apply-*")
	if err != nil {
		return "", func() {}, fmt.Errorf("creating temporary apply directory: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	for i, r := range resources {
		target := filepath.Join(dir, fmt.Sprintf("%03d-%s", i, filepath.Base(r.FilePath)))
		if err := linkOrCopy(r.FilePath, target); err != nil {
			cleanup()
			return "", func() {}, fmt.Errorf("staging %s into apply directory: %w", r.Identity(), err)
		}
	}

	return dir, cleanup, nil
}

// linkOrCopy symlinks src into dst, falling back to a file copy when
// symlinks are not supported on the destination filesystem (not every
// filesystem this engine might run on supports them).
func linkOrCopy(src, dst string) error {
	if err := os.Symlink(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
