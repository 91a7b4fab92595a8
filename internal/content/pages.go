package content

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
)

//go:embed pages/*.md
var embedded embed.FS

// Page is a rendered static policy page.
type Page struct {
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	Summary   string    `json:"summary,omitempty"`
	HTML      string    `json:"html"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type frontMatter struct {
	Title     string `yaml:"title"`
	Summary   string `yaml:"summary"`
	UpdatedAt string `yaml:"updated_at"`
}

// Library renders markdown pages on first request and serves them from memory afterwards.
type Library struct {
	source   fs.FS
	markdown goldmark.Markdown
	policy   *bluemonday.Policy

	mu    sync.RWMutex
	pages map[string]Page
}

// NewLibrary serves the policy pages bundled with the binary.
func NewLibrary() *Library {
	sub, err := fs.Sub(embedded, "pages")
	if err != nil {
		panic(fmt.Sprintf("content: embedded pages: %v", err))
	}
	return NewLibraryFS(sub)
}

// NewLibraryFS serves <slug>.md files from the root of source.
func NewLibraryFS(source fs.FS) *Library {
	return &Library{
		source:   source,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:   newPagePolicy(),
		pages:    map[string]Page{},
	}
}

func newPagePolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	policy.AllowURLSchemes("mailto", "tel", "https")
	return policy
}

// Slugs lists the available pages.
func (l *Library) Slugs() ([]string, error) {
	entries, err := fs.ReadDir(l.source, ".")
	if err != nil {
		return nil, fmt.Errorf("content: list pages: %w", err)
	}
	out := []string{}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".md" {
			continue
		}
		out = append(out, strings.TrimSuffix(entry.Name(), ".md"))
	}
	sort.Strings(out)
	return out, nil
}

// Get returns the rendered page for slug.
func (l *Library) Get(slug string) (Page, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !validSlug(slug) {
		return Page{}, notFound(slug)
	}

	l.mu.RLock()
	page, ok := l.pages[slug]
	l.mu.RUnlock()
	if ok {
		return page, nil
	}

	page, err := l.render(slug)
	if err != nil {
		return Page{}, err
	}
	l.mu.Lock()
	l.pages[slug] = page
	l.mu.Unlock()
	return page, nil
}

func (l *Library) render(slug string) (Page, error) {
	data, err := fs.ReadFile(l.source, slug+".md")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Page{}, notFound(slug)
		}
		return Page{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read page")
	}

	fm, body := splitFrontMatter(string(data))
	var front frontMatter
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return Page{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("parse front matter for %s", slug))
		}
	}

	var buf bytes.Buffer
	if err := l.markdown.Convert([]byte(body), &buf); err != nil {
		return Page{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("render %s", slug))
	}

	page := Page{
		Slug:      slug,
		Title:     strings.TrimSpace(front.Title),
		Summary:   strings.TrimSpace(front.Summary),
		HTML:      strings.TrimSpace(l.policy.Sanitize(buf.String())),
		UpdatedAt: parseDate(front.UpdatedAt),
	}
	if page.Title == "" {
		page.Title = prettifySlug(slug)
	}
	return page, nil
}

func notFound(slug string) error {
	return pkgerrors.New(pkgerrors.CodeNotFound, "page not found").WithDetails(map[string]any{"slug": slug})
}

func validSlug(slug string) bool {
	if slug == "" {
		return false
	}
	for _, r := range slug {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
			return false
		}
	}
	return true
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			fm := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimLeft(body, "\n\r")
		}
	}
	return "", input
}

func parseDate(v string) time.Time {
	v = strings.TrimSpace(v)
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func prettifySlug(slug string) string {
	words := strings.Split(slug, "-")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
