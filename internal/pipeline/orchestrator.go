package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"

	"github.com/dgallion1/doctranslate/internal/document"
	"github.com/dgallion1/doctranslate/internal/format"
)

// Orchestrator translates whole files: read, assemble, write.
type Orchestrator struct {
	formats      *format.Registry
	assembler    *Assembler
	outputFormat string
	log          *slog.Logger
}

// NewOrchestrator builds an orchestrator. A non-empty outputFormat ("docx", ".pdf")
// forces every output into that format; otherwise output matches the input.
func NewOrchestrator(formats *format.Registry, assembler *Assembler, outputFormat string, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		formats:      formats,
		assembler:    assembler,
		outputFormat: format.NormalizeExt(outputFormat),
		log:          log,
	}
}

// FileResult describes a finished file translation.
type FileResult struct {
	OutputPath string
	Document   *document.Document
	Assembly   *Assembly
}

// TranslateFile translates the document at path and returns the output path.
func (o *Orchestrator) TranslateFile(ctx context.Context, path string, opts Options) (string, error) {
	res, err := o.TranslateFileDetailed(ctx, path, opts)
	if err != nil {
		return "", err
	}
	return res.OutputPath, nil
}

// TranslateFileDetailed is TranslateFile plus the per-chunk outcome summary.
func (o *Orchestrator) TranslateFileDetailed(ctx context.Context, path string, opts Options) (*FileResult, error) {
	path = strings.TrimSpace(path)
	log := o.log.With("file", filepath.Base(path), "language", opts.TargetLanguage)

	in, err := o.formats.ForFile(path)
	if err != nil {
		log.Error("unsupported input", "error", err)
		return nil, err
	}
	outExt := format.NormalizeExt(opts.OutputFormat)
	if outExt == "" {
		outExt = o.outputFormat
	}
	if outExt == "" {
		outExt = format.NormalizeExt(filepath.Ext(path))
	}
	out, err := o.formats.ForExtension(outExt)
	if err != nil {
		log.Error("unsupported output", "error", err)
		return nil, err
	}
	outPath := OutputPath(path, opts.TargetLanguage, outExt)
	if opts.Whitespace == "" && o.assembler.cfg.Whitespace == WhitespaceLines && format.PreservesLayout(in) {
		opts.Whitespace = WhitespacePreserve
	}

	opts.stage(StageReading)
	pages, err := in.Read(path)
	if err != nil {
		log.Error("read failed", "error", err)
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc := &document.Document{
		Title:  strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Source: path,
		Pages:  pages,
	}
	log.Info("document read", "pages", len(pages))

	opts.stage(StageTranslating)
	asm, err := o.assembler.TranslateDocument(ctx, pages, opts)
	if err != nil {
		log.Error("translation failed", "error", err)
		return nil, fmt.Errorf("translate %s: %w", path, err)
	}
	if len(asm.Pages) == 0 {
		log.Warn("no text to translate")
	}

	opts.stage(StageWriting)
	if err := out.Write(outPath, asm.PageTexts()); err != nil {
		log.Error("write failed", "output", outPath, "error", err)
		return nil, fmt.Errorf("write %s: %w", outPath, err)
	}
	log.Info("translation written", "output", outPath, "complete", asm.Complete())

	return &FileResult{OutputPath: outPath, Document: doc, Assembly: asm}, nil
}

// OutputPath inserts "_translated_<language>" before the extension. A non-empty
// outputExt replaces the input extension.
func OutputPath(inputPath, language, outputExt string) string {
	dir := filepath.Dir(inputPath)
	ext := filepath.Ext(inputPath)
	base := strings.TrimSuffix(filepath.Base(inputPath), ext)
	if e := format.NormalizeExt(outputExt); e != "" {
		ext = e
	}
	name := base + "_translated"
	if s := slug.Make(language); s != "" {
		name += "_" + s
	}
	return filepath.Join(dir, name+ext)
}
