package indexer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// maxNeighbors is the number of sibling names shared as context.
const maxNeighbors = 10

// fileTask is a file found by the walk with the context of its directory.
type fileTask struct {
	Path      string
	Name      string
	Neighbors []string
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// walk visits the non-hidden files of dir before descending into its
// non-hidden subdirectories. Directories in skip are not entered. Only an
// unreadable root is an error; unreadable subdirectories are logged.
func (idx *Indexer) walk(ctx context.Context, dir string, skip map[string]bool, visit func(fileTask) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var (
		files []string
		dirs  []string
	)
	for _, e := range entries {
		name := e.Name()
		if isHidden(name) {
			continue
		}
		path := filepath.Join(dir, name)

		switch {
		case e.IsDir():
			if !skip[path] {
				dirs = append(dirs, path)
			}
		case e.Type().IsRegular():
			files = append(files, name)
		case e.Type()&os.ModeSymlink != 0:
			// Symlinked files are followed, symlinked directories are not.
			if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
				files = append(files, name)
			}
		}
	}

	neighbors := files
	if len(neighbors) > maxNeighbors {
		neighbors = neighbors[:maxNeighbors]
	}
	neighbors = append([]string(nil), neighbors...)

	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := visit(fileTask{Path: filepath.Join(dir, name), Name: name, Neighbors: neighbors}); err != nil {
			return err
		}
	}

	for _, sub := range dirs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := idx.walk(ctx, sub, skip, visit); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			idx.logger.Warn("skipping unreadable directory", zap.String("dir", sub), zap.Error(err))
		}
	}
	return nil
}
