package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileSaver writes downloads into a directory. Used by the CLI export command.
type FileSaver struct {
	Dir string
	// Written is the path of the last saved file.
	Written string
}

func (s *FileSaver) Save(ctx context.Context, d Download) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, filepath.Base(d.Filename))
	if err := os.WriteFile(path, d.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	s.Written = path
	return nil
}
