package fsx

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/errx"
)

var fsxErrors = errx.NewRegistry("FSX")

var (
	ErrNotFound    = fsxErrors.Register("NOT_FOUND", errx.TypeNotFound, 0, "File not found")
	ErrInvalidPath = fsxErrors.Register("INVALID_PATH", errx.TypeValidation, 0, "Invalid file path")
	ErrIO          = fsxErrors.Register("IO", errx.TypeInternal, 0, "File storage operation failed")
)

// FileInfo describes a stored file.
type FileInfo struct {
	Name        string
	Size        int64
	ModTime     time.Time
	IsDir       bool
	ContentType string
}

// FileReader provides read-only operations. A missing file is reported as
// an *errx.Error with code ErrNotFound.
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	List(ctx context.Context, dir string) ([]FileInfo, error)
}

// FileWriter provides write operations. Parent directories are implicit.
type FileWriter interface {
	WriteFile(ctx context.Context, path string, data []byte) error
	DeleteFile(ctx context.Context, path string) error
}

// FileSystem combines all file operations.
type FileSystem interface {
	FileReader
	FileWriter
}

// NotFound builds the not-found error for path.
func NotFound(p string) error {
	return fsxErrors.New(ErrNotFound).WithDetail("path", p)
}

// IOError wraps a backend failure for path.
func IOError(p string, cause error) error {
	return fsxErrors.NewWithCause(ErrIO, cause).WithDetail("path", p)
}

// CleanPath normalizes a relative, slash-separated path and rejects paths
// that escape the root.
func CleanPath(p string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(p, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fsxErrors.New(ErrInvalidPath).WithDetail("path", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fsxErrors.New(ErrInvalidPath).WithDetail("path", p)
		}
	}
	return cleaned, nil
}

// ContentType guesses a MIME type from the file extension.
func ContentType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".eml":
		return "message/rfc822"
	case ".json":
		return "application/json"
	case ".gif":
		return "image/gif"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
