package format

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgallion1/doctranslate/internal/document"
)

// TextHandler treats a plain text file as one page, or one page per form feed.
type TextHandler struct{}

func (h *TextHandler) Read(path string) ([]document.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.Contains(text, "\f") {
		return document.NewPages(text), nil
	}
	return document.NewPages(strings.Split(strings.TrimRight(text, "\f"), "\f")...), nil
}

func (h *TextHandler) Write(path string, pages []string) error {
	return writeAtomic(path, func(w io.Writer) error {
		_, err := io.WriteString(w, strings.Join(pages, "\n\n"))
		return err
	}, nil)
}
