// Package appdata provides access to the application data folder where
// deployment packages unpack the files bundled with recipe steps.
package appdata

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/openfroyo/recipes/pkg/recipe"
)

// Folder is a rooted view of the app data directory.
type Folder struct {
	fs afero.Fs
}

// NewFolder returns a folder rooted at root on the OS filesystem.
func NewFolder(root string) *Folder {
	return &Folder{fs: afero.NewBasePathFs(afero.NewOsFs(), root)}
}

// NewFolderFs returns a folder backed by an arbitrary filesystem.
func NewFolderFs(fsys afero.Fs) *Folder {
	return &Folder{fs: fsys}
}

// Fs returns the underlying filesystem.
func (f *Folder) Fs() afero.Fs {
	return f.fs
}

// DirExists reports whether dir exists and is a directory.
func (f *Folder) DirExists(dir string) bool {
	ok, err := afero.DirExists(f.fs, clean(dir))
	return err == nil && ok
}

// ListFiles returns the paths of all regular files under dir, recursively,
// in lexical order. Paths are relative to the folder root.
func (f *Folder) ListFiles(dir string) ([]string, error) {
	var files []string
	err := afero.Walk(f.fs, clean(dir), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list files under %s: %w", dir, err)
	}
	return files, nil
}

// OpenFile opens a file for reading.
func (f *Folder) OpenFile(p string) (io.ReadCloser, error) {
	file, err := f.fs.Open(clean(p))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", p, err)
	}
	return file, nil
}

// Files enumerates the files under dir as FileToImport values. Nothing is
// listed until the sequence is ranged over, and no file is opened until its
// Open func is called. Each range re-lists the directory. A listing
// error is yielded once and ends the sequence.
func (f *Folder) Files(dir string) iter.Seq2[recipe.FileToImport, error] {
	base := clean(dir)
	return func(yield func(recipe.FileToImport, error) bool) {
		paths, err := f.ListFiles(base)
		if err != nil {
			yield(recipe.FileToImport{}, err)
			return
		}
		for _, p := range paths {
			rel, err := filepath.Rel(base, p)
			if err != nil {
				yield(recipe.FileToImport{}, fmt.Errorf("failed to resolve %s under %s: %w", p, base, err))
				return
			}
			filePath := p
			file := recipe.FileToImport{
				Path: filepath.ToSlash(rel),
				Open: func() (io.ReadCloser, error) {
					return f.OpenFile(filePath)
				},
			}
			if !yield(file, nil) {
				return
			}
		}
	}
}

// clean normalizes a slash- or OS-separated relative path.
func clean(p string) string {
	p = path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	return filepath.FromSlash(p)
}
