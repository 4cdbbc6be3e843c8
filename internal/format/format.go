// Package format reads source documents into pages and writes translated pages back out.
package format

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dgallion1/doctranslate/internal/document"
)

// ErrUnsupportedFormat is returned for file extensions with no registered handler.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Handler converts between a file on disk and an ordered list of page texts.
type Handler interface {
	Read(path string) ([]document.Page, error)
	Write(path string, pages []string) error
}

// LayoutPreserver is implemented by handlers whose page text carries meaningful
// indentation, such as Markdown lists and indented code blocks.
type LayoutPreserver interface {
	PreservesLayout() bool
}

// PreservesLayout reports whether h asks for its page text to reach the translator untouched.
func PreservesLayout(h Handler) bool {
	lp, ok := h.(LayoutPreserver)
	return ok && lp.PreservesLayout()
}

// Options configures the built-in handlers.
type Options struct {
	DOCXPageChars     int
	FallbackPdftotext bool
	ValidatePDF       bool
	PDFFont           string
}

// Registry maps normalized extensions (".pdf") to handlers.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// DefaultRegistry registers every built-in handler.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	r.Register(&PDFHandler{FallbackPdftotext: opts.FallbackPdftotext, Validate: opts.ValidatePDF, FontPath: opts.PDFFont}, ".pdf")
	r.Register(&DOCXHandler{PageChars: opts.DOCXPageChars}, ".docx", ".doc")
	r.Register(&TextHandler{}, ".txt")
	r.Register(&MarkdownHandler{}, ".md", ".markdown")
	r.Register(&HTMLHandler{}, ".html", ".htm")
	return r
}

// Register binds h to each extension, replacing any previous binding.
func (r *Registry) Register(h Handler, exts ...string) {
	for _, ext := range exts {
		r.handlers[NormalizeExt(ext)] = h
	}
}

// ForExtension returns the handler for ext, with or without a leading dot.
func (r *Registry) ForExtension(ext string) (Handler, error) {
	norm := NormalizeExt(ext)
	h, ok := r.handlers[norm]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, norm)
	}
	return h, nil
}

// ForFile returns the handler for a path's extension.
func (r *Registry) ForFile(path string) (Handler, error) {
	return r.ForExtension(filepath.Ext(strings.TrimSpace(path)))
}

// Supports reports whether a handler is registered for the path's extension.
func (r *Registry) Supports(path string) bool {
	_, ok := r.handlers[NormalizeExt(filepath.Ext(strings.TrimSpace(path)))]
	return ok
}

// Extensions lists registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	exts := make([]string, 0, len(r.handlers))
	for ext := range r.handlers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// NormalizeExt lowercases and trims ext and ensures a leading dot. Empty stays empty.
func NormalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || ext == "." {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// writeAtomic writes through a temp file in the target directory and renames it into place.
// check, when non-nil, runs against the finished temp file before the rename.
func writeAtomic(path string, write func(io.Writer) error, check func(tmpPath string) error) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if check != nil {
		if err := check(tmpPath); err != nil {
			return err
		}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

// nonBlankLines splits text into trimmed-right lines, dropping blank ones.
func nonBlankLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
