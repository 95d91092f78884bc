package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/MeKo-Tech/shapedetect/internal/utils"
)

// nameFilter selects files by glob patterns on their base name. Excludes win
// over includes; no includes means everything not excluded passes.
type nameFilter struct {
	include []string
	exclude []string
}

func (f nameFilter) matches(patterns []string, path string) bool {
	base := filepath.Base(path)
	return slices.ContainsFunc(patterns, func(p string) bool {
		ok, _ := filepath.Match(p, base)
		return ok
	})
}

func (f nameFilter) accepts(path string) bool {
	if f.matches(f.exclude, path) {
		return false
	}
	return len(f.include) == 0 || f.matches(f.include, path)
}

// discoverImageFiles expands args into image paths. Files named explicitly
// only have to pass the patterns; directories contribute files with a
// supported image extension.
func discoverImageFiles(args []string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	filter := nameFilter{include: includePatterns, exclude: excludePatterns}

	var found []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			if filter.accepts(arg) {
				found = append(found, arg)
			}
			continue
		}
		files, err := walkImages(arg, recursive, filter)
		if err != nil {
			return nil, err
		}
		found = append(found, files...)
	}
	return found, nil
}

func discoverInDirectory(dir string, recursive bool, includePatterns, excludePatterns []string) ([]string, error) {
	return walkImages(dir, recursive, nameFilter{include: includePatterns, exclude: excludePatterns})
}

func walkImages(root string, recursive bool, filter nameFilter) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir() && path != root && !recursive:
			return filepath.SkipDir
		case d.IsDir():
			return nil
		case utils.IsSupportedImage(path) && filter.accepts(path):
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

func shouldIncludeFile(path string, includePatterns, excludePatterns []string) bool {
	return nameFilter{include: includePatterns, exclude: excludePatterns}.accepts(path)
}
