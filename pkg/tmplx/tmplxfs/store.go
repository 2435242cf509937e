package tmplxfs

import (
	"context"
	"strings"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/fsx"
	"github.com/Abraxas-365/mailroom/pkg/tmplx"
)

const (
	layoutExt  = ".html"
	defaultDir = "templates"
)

// Store reads layouts from an fsx file system. Template "welcome" lives at
// <dir>/welcome.html.
type Store struct {
	fs  fsx.FileReader
	dir string
}

// NewStore roots the store at dir, "templates" when empty.
func NewStore(fs fsx.FileReader, dir string) *Store {
	dir = strings.Trim(dir, "/")
	if dir == "" {
		dir = defaultDir
	}
	return &Store{fs: fs, dir: dir}
}

func (s *Store) path(id string) string {
	return s.dir + "/" + id + layoutExt
}

func (s *Store) Get(ctx context.Context, id string) (string, error) {
	if !tmplx.ValidTemplateID(id) {
		return "", tmplx.InvalidID(id)
	}

	data, err := s.fs.ReadFile(ctx, s.path(id))
	if err != nil {
		if errx.IsCode(err, fsx.ErrNotFound) {
			return "", tmplx.NotFound(id)
		}
		return "", tmplx.StoreError(id, err)
	}
	return string(data), nil
}

// IDs lists the template ids available in the store.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	infos, err := s.fs.List(ctx, s.dir)
	if err != nil {
		if errx.IsCode(err, fsx.ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}

	ids := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir || !strings.HasSuffix(info.Name, layoutExt) {
			continue
		}
		if id := strings.TrimSuffix(info.Name, layoutExt); tmplx.ValidTemplateID(id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
