package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// TranslateInput is what the translate command needs from the user.
type TranslateInput struct {
	Path     string
	Language string
	Pages    int // 0 means all pages
	Prompt   string
}

// Prompter fills in missing translate inputs.
type Prompter func(in *TranslateInput) error

// HuhPrompter asks for the document, target language, page count and extra instructions,
// prefilled with whatever was given on the command line.
func HuhPrompter(in *TranslateInput) error {
	pages := ""
	if in.Pages > 0 {
		pages = strconv.Itoa(in.Pages)
	}

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Document").
			Description("Path to a PDF, DOCX, TXT, Markdown or HTML file").
			Value(&in.Path).
			Validate(validatePath),
		huh.NewInput().
			Title("Target language").
			Description("e.g. Spanish, Japanese, pt-BR").
			Value(&in.Language).
			Validate(validateLanguage),
		huh.NewInput().
			Title("Pages to translate").
			Description("Leave empty to translate every page").
			Value(&pages).
			Validate(validatePages),
		huh.NewText().
			Title("Additional instructions").
			Description("Optional, appended to the translation prompt").
			Value(&in.Prompt),
	))
	if err := form.Run(); err != nil {
		return fmt.Errorf("prompt: %w", err)
	}

	in.Path = strings.TrimSpace(in.Path)
	in.Language = strings.TrimSpace(in.Language)
	in.Prompt = strings.TrimSpace(in.Prompt)
	n, err := parsePages(pages)
	if err != nil {
		return err
	}
	in.Pages = n
	return nil
}

func validatePath(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("a file is required")
	}
	info, err := os.Stat(s)
	if err != nil {
		return fmt.Errorf("cannot read %s", s)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", s)
	}
	return nil
}

func validateLanguage(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("a target language is required")
	}
	return nil
}

func validatePages(s string) error {
	_, err := parsePages(s)
	return err
}

func parsePages(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("pages must be a non-negative number, got %q", s)
	}
	return n, nil
}
