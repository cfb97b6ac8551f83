package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"sync"
	texttemplate "text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/sync/singleflight"
)

// Renderer converts markdown templates with YAML frontmatter to HTML.
type Renderer struct {
	fs fs.FS
	md goldmark.Markdown

	// parsed sources only, never rendered output
	templates   parseCache[*cachedTemplate]
	layouts     parseCache[*template.Template]
	templateDir string
	layoutDir   string
}

// cachedTemplate holds parsed template data for reuse.
type cachedTemplate struct {
	metadata map[string]any
	tmpl     *texttemplate.Template
}

// RendererConfig configures the renderer.
type RendererConfig struct {
	TemplateDir string // Default: "."
	LayoutDir   string // Default: "layouts"
}

// NewRenderer creates a new renderer with default config.
func NewRenderer(filesystem fs.FS) *Renderer {
	return NewRendererWithConfig(filesystem, RendererConfig{})
}

// NewRendererWithConfig creates a new renderer with custom config.
func NewRendererWithConfig(filesystem fs.FS, opts RendererConfig) *Renderer {
	if opts.TemplateDir == "" {
		opts.TemplateDir = "."
	}
	if opts.LayoutDir == "" {
		opts.LayoutDir = "layouts"
	}

	return &Renderer{
		fs:          filesystem,
		templateDir: opts.TemplateDir,
		layoutDir:   opts.LayoutDir,
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Table),
		),
	}
}

// RenderResult is one rendered message body.
type RenderResult struct {
	Metadata map[string]any
	HTML     string
	// Text is the processed markdown, used as the plain text part.
	Text string
}

// Check parses the layout and template without rendering them, so a broken
// catalog fails at startup instead of on the first send.
func (r *Renderer) Check(layout, templateName string) error {
	if _, err := r.getTemplate(templateName); err != nil {
		return err
	}
	_, err := r.getLayout(layout)
	return err
}

// Render executes the template with data, converts the markdown to HTML and
// wraps it in the layout.
func (r *Renderer) Render(layout, templateName string, data any) (*RenderResult, error) {
	cached, err := r.getTemplate(templateName)
	if err != nil {
		return nil, err
	}

	var processedMarkdown bytes.Buffer
	if err := cached.tmpl.Execute(&processedMarkdown, data); err != nil {
		return nil, fmt.Errorf("%w: %s: execute: %v", ErrRenderFailed, templateName, err)
	}

	plainText := processedMarkdown.String()

	var htmlContent bytes.Buffer
	if err := r.md.Convert(processedMarkdown.Bytes(), &htmlContent); err != nil {
		return nil, fmt.Errorf("%w: %s: markdown: %v", ErrRenderFailed, templateName, err)
	}

	layoutTmpl, err := r.getLayout(layout)
	if err != nil {
		return nil, err
	}

	var finalHTML bytes.Buffer
	layoutData := map[string]any{
		"Content":  template.HTML(htmlContent.String()),
		"Metadata": cached.metadata,
	}

	if err := layoutTmpl.Execute(&finalHTML, layoutData); err != nil {
		return nil, fmt.Errorf("%w: %s: execute layout: %v", ErrRenderFailed, layout, err)
	}

	return &RenderResult{
		HTML:     finalHTML.String(),
		Text:     plainText,
		Metadata: cached.metadata,
	}, nil
}

func (r *Renderer) getTemplate(name string) (*cachedTemplate, error) {
	return r.templates.load(name, func() (*cachedTemplate, error) {
		content, err := fs.ReadFile(r.fs, path.Join(r.templateDir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrTemplateNotFound, name, err)
		}

		parsed, err := ParseTemplate(content)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrRenderFailed, name, err)
		}

		tmpl, err := texttemplate.New(name).Parse(parsed.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: parse body: %v", ErrRenderFailed, name, err)
		}
		return &cachedTemplate{metadata: parsed.Metadata, tmpl: tmpl}, nil
	})
}

func (r *Renderer) getLayout(name string) (*template.Template, error) {
	return r.layouts.load(name, func() (*template.Template, error) {
		content, err := fs.ReadFile(r.fs, path.Join(r.layoutDir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLayoutNotFound, name, err)
		}

		tmpl, err := template.New(name).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: parse layout: %v", ErrRenderFailed, name, err)
		}
		return tmpl, nil
	})
}

// parseCache keeps parsed templates by name. Concurrent misses for the same
// name share one parse. Failures are not cached, so a fixed file is picked up
// on the next call.
type parseCache[T any] struct {
	mu     sync.RWMutex
	items  map[string]T
	flight singleflight.Group
}

func (c *parseCache[T]) load(name string, parse func() (T, error)) (T, error) {
	c.mu.RLock()
	item, ok := c.items[name]
	c.mu.RUnlock()
	if ok {
		return item, nil
	}

	v, err, _ := c.flight.Do(name, func() (any, error) {
		item, err := parse()
		if err != nil {
			return item, err
		}
		c.mu.Lock()
		if c.items == nil {
			c.items = make(map[string]T)
		}
		c.items[name] = item
		c.mu.Unlock()
		return item, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
