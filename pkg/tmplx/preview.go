package tmplx

import (
	"context"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// ContentPlaceholder is where a layout receives the previewed content.
const ContentPlaceholder = "content"

// TemplateStore is a read-only key-value store of HTML layouts.
type TemplateStore interface {
	// Get returns the layout stored under id, or ErrTemplateNotFound.
	Get(ctx context.Context, id string) (string, error)
}

var templateIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,127}$`)

// ValidTemplateID reports whether id is safe to use as a store key.
func ValidTemplateID(id string) bool {
	return templateIDPattern.MatchString(id)
}

// PreviewRequest is the input of a template preview.
type PreviewRequest struct {
	Content    string `json:"content"`
	TemplateID string `json:"template_id,omitempty"`
	Subject    string `json:"subject,omitempty"`
	Preheader  string `json:"preheader,omitempty"`
}

// PreviewResult is renderable markup plus the placeholders it still contains.
type PreviewResult struct {
	Markup     string   `json:"markup"`
	Unresolved []string `json:"unresolved,omitempty"`
}

// Previewer renders previews. It never touches the mail queue.
type Previewer struct {
	store TemplateStore
}

// NewPreviewer creates a previewer. store may be nil, in which case
// previews with a template id fail with ErrTemplateNotFound.
func NewPreviewer(store TemplateStore) *Previewer {
	return &Previewer{store: store}
}

func (p *Previewer) Preview(ctx context.Context, req PreviewRequest) (PreviewResult, error) {
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	if req.TemplateID == "" && strings.TrimSpace(req.Content) == "" {
		return PreviewResult{}, tmplxErrors.New(ErrInvalidPreview).WithDetail("reason", "content or template_id is required")
	}

	markup := req.Content
	if req.TemplateID != "" {
		if !ValidTemplateID(req.TemplateID) {
			return PreviewResult{}, InvalidID(req.TemplateID)
		}
		if p.store == nil {
			return PreviewResult{}, NotFound(req.TemplateID)
		}
		layout, err := p.store.Get(ctx, req.TemplateID)
		if err != nil {
			return PreviewResult{}, err
		}
		markup = Render(layout, map[string]any{ContentPlaceholder: req.Content})
	}

	markup = Render(markup, map[string]any{
		"subject":   req.Subject,
		"preheader": req.Preheader,
	})

	return PreviewResult{Markup: markup, Unresolved: Placeholders(markup)}, nil
}

// MapStore is an in-memory TemplateStore.
type MapStore struct {
	mu        sync.RWMutex
	templates map[string]string
}

func NewMapStore(templates map[string]string) *MapStore {
	s := &MapStore{templates: make(map[string]string, len(templates))}
	for k, v := range templates {
		s.templates[k] = v
	}
	return s
}

func (s *MapStore) Put(id, layout string) {
	s.mu.Lock()
	s.templates[id] = layout
	s.mu.Unlock()
}

// IDs returns the stored ids in sorted order.
func (s *MapStore) IDs(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(maps.Keys(s.templates)), nil
}

func (s *MapStore) Get(_ context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	layout, ok := s.templates[id]
	if !ok {
		return "", NotFound(id)
	}
	return layout, nil
}
