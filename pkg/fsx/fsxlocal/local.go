package fsxlocal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Abraxas-365/mailroom/pkg/fsx"
)

// LocalFileSystem implements fsx.FileSystem on local disk under basePath.
type LocalFileSystem struct {
	basePath string
}

// NewLocalFileSystem creates basePath if needed and roots the file system there.
func NewLocalFileSystem(basePath string) (*LocalFileSystem, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	return &LocalFileSystem{basePath: abs}, nil
}

func (fs *LocalFileSystem) BasePath() string {
	return fs.basePath
}

func (fs *LocalFileSystem) resolve(p string) (string, error) {
	cleaned, err := fsx.CleanPath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.basePath, filepath.FromSlash(cleaned)), nil
}

func (fs *LocalFileSystem) ReadFile(_ context.Context, p string) ([]byte, error) {
	full, err := fs.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fsx.NotFound(p)
		}
		return nil, fsx.IOError(p, err)
	}
	return data, nil
}

func (fs *LocalFileSystem) Exists(_ context.Context, p string) (bool, error) {
	full, err := fs.resolve(p)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fsx.IOError(p, err)
	}
	return true, nil
}

// List returns the entries of dir sorted by name.
func (fs *LocalFileSystem) List(_ context.Context, dir string) ([]fsx.FileInfo, error) {
	full, err := fs.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fsx.NotFound(dir)
		}
		return nil, fsx.IOError(dir, err)
	}

	infos := make([]fsx.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, fsx.FileInfo{
			Name:        info.Name(),
			Size:        info.Size(),
			ModTime:     info.ModTime(),
			IsDir:       info.IsDir(),
			ContentType: fsx.ContentType(info.Name()),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func (fs *LocalFileSystem) WriteFile(_ context.Context, p string, data []byte) error {
	full, err := fs.resolve(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fsx.IOError(p, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fsx.IOError(p, err)
	}
	return nil
}

// DeleteFile removes p. Deleting a missing file is not an error.
func (fs *LocalFileSystem) DeleteFile(_ context.Context, p string) error {
	full, err := fs.resolve(p)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fsx.IOError(p, err)
	}
	return nil
}
