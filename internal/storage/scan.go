package storage

import (
	"path/filepath"
	"sort"
	"strings"

	apperrors "go-image-tagger/internal/errors"

	"github.com/karrick/godirwalk"
)

// ScanImages returns the image files under each root in lexical order.
// Hidden files and directories are skipped. A root may also be a single file.
func ScanImages(roots ...string) ([]string, error) {
	var found []string
	for _, root := range roots {
		root = filepath.Clean(root)
		err := godirwalk.Walk(root, &godirwalk.Options{
			Callback: func(path string, de *godirwalk.Dirent) error {
				if path != root && strings.HasPrefix(filepath.Base(path), ".") {
					return godirwalk.SkipThis
				}
				if de.IsDir() {
					return nil
				}
				if imageExtensions[strings.ToLower(filepath.Ext(path))] {
					found = append(found, path)
				}
				return nil
			},
			Unsorted:          true,
			AllowNonDirectory: true,
		})
		if err != nil {
			return nil, apperrors.NewValidationError("failed to scan "+root, err)
		}
	}
	sort.Strings(found)
	return found, nil
}
