package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/doctranslate/internal/chunker"
	"github.com/dgallion1/doctranslate/internal/document"
	"github.com/dgallion1/doctranslate/internal/translator"
)

// ChunkTranslator translates one chunk; *translator.Requester implements it.
type ChunkTranslator interface {
	Translate(ctx context.Context, prompt, chunk, prevContext string) (translator.Result, error)
}

// WhitespacePolicy selects how page text is normalized before chunking.
type WhitespacePolicy string

const (
	// WhitespacePreserve leaves page text untouched.
	WhitespacePreserve WhitespacePolicy = "preserve"
	// WhitespaceLines trims each line, squeezes runs of spaces and keeps at most one blank line.
	WhitespaceLines WhitespacePolicy = "lines"
	// WhitespaceCollapse joins all words with single spaces, dropping line structure.
	WhitespaceCollapse WhitespacePolicy = "collapse"
)

// ParseWhitespacePolicy accepts the policy names case-insensitively; empty means lines.
func ParseWhitespacePolicy(s string) (WhitespacePolicy, error) {
	switch p := WhitespacePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return WhitespaceLines, nil
	case WhitespacePreserve, WhitespaceLines, WhitespaceCollapse:
		return p, nil
	default:
		return "", fmt.Errorf("unknown whitespace policy %q", s)
	}
}

var (
	spaceRun = regexp.MustCompile(`[ \t\v]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

// Normalize applies the policy to text.
func (p WhitespacePolicy) Normalize(text string) string {
	switch p {
	case WhitespacePreserve:
		return text
	case WhitespaceCollapse:
		return strings.Join(strings.Fields(text), " ")
	default:
		text = strings.ReplaceAll(text, "\r\n", "\n")
		lines := strings.Split(text, "\n")
		for i, line := range lines {
			lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(line, " "))
		}
		text = blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
		return strings.TrimSpace(text)
	}
}

// Options are the per-document translation parameters.
type Options struct {
	TargetLanguage string
	MaxPages       int // <= 0 means all pages
	CustomPrompt   string
	// OutputFormat overrides the orchestrator's output extension for this file.
	OutputFormat string
	// Whitespace, when set, replaces the assembler's normalization policy for this document.
	Whitespace WhitespacePolicy

	// Progress, when set, receives every page state change. Calls are serialized.
	Progress func(PageProgress)
	// Stage, when set, is told when a file moves between reading, translating and writing.
	Stage func(Stage)
}

// Stage is a coarse step of TranslateFile.
type Stage string

const (
	StageReading     Stage = "reading"
	StageTranslating Stage = "translating"
	StageWriting     Stage = "writing"
)

func (o Options) stage(s Stage) {
	if o.Stage != nil {
		o.Stage(s)
	}
}

// PageState is a page's position in PENDING → CHUNKING → TRANSLATING → ASSEMBLED.
type PageState string

const (
	StatePending     PageState = "pending"
	StateChunking    PageState = "chunking"
	StateTranslating PageState = "translating"
	StateAssembled   PageState = "assembled"
	StateSkipped     PageState = "skipped"
)

// PageProgress reports one page state change. Chunk counts are set while translating.
type PageProgress struct {
	Page   int
	Pages  int // pages being processed after the MaxPages cut
	State  PageState
	Chunk  int // chunks finished so far
	Chunks int
}

// TranslatedPage holds a page's chunk results and its marker-wrapped text.
type TranslatedPage struct {
	Number  int
	Results []translator.Result
	Text    string
}

// Assembly is the outcome of translating a document.
type Assembly struct {
	Pages   []TranslatedPage
	Skipped []int // page numbers with no text after normalization

	Translated int
	Blocked    int
	Failed     int
}

// Text joins the translated pages with a blank line.
func (a *Assembly) Text() string {
	return strings.Join(a.PageTexts(), "\n\n")
}

// PageTexts returns each translated page's marker-wrapped text.
func (a *Assembly) PageTexts() []string {
	out := make([]string, len(a.Pages))
	for i, p := range a.Pages {
		out[i] = p.Text
	}
	return out
}

// Chunks is the number of chunks sent for translation.
func (a *Assembly) Chunks() int {
	return a.Translated + a.Blocked + a.Failed
}

// Complete reports whether every chunk was translated.
func (a *Assembly) Complete() bool {
	return a.Blocked == 0 && a.Failed == 0
}

// PageMarkers wraps a page body in its start/end markers.
func PageMarkers(number int, body string) string {
	return fmt.Sprintf("[PAGE %d START]\n%s\n[PAGE %d END]", number, body, number)
}

// AssemblerConfig tunes chunking and scheduling.
type AssemblerConfig struct {
	MaxChunkSize int
	ContextChars int // trailing runes of the previous translation sent with the next chunk
	Concurrency  int // parallel chunks per page; only used when ContextChars is 0
	Whitespace   WhitespacePolicy
}

// Assembler translates pages chunk by chunk and assembles the marked-up result.
type Assembler struct {
	tr  ChunkTranslator
	cfg AssemblerConfig
	log *slog.Logger
}

func NewAssembler(tr ChunkTranslator, cfg AssemblerConfig, log *slog.Logger) *Assembler {
	if cfg.MaxChunkSize <= 0 {
		cfg.MaxChunkSize = chunker.DefaultMaxChunkSize
	}
	if cfg.ContextChars < 0 {
		cfg.ContextChars = 0
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Whitespace == "" {
		cfg.Whitespace = WhitespaceLines
	}
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{tr: tr, cfg: cfg, log: log}
}

// TranslateDocument translates up to opts.MaxPages pages in order. Blocked and failed
// chunks are embedded in the page text; only hard errors and cancellation abort.
func (a *Assembler) TranslateDocument(ctx context.Context, pages []document.Page, opts Options) (*Assembly, error) {
	if opts.MaxPages > 0 && opts.MaxPages < len(pages) {
		pages = pages[:opts.MaxPages]
	}
	prompt := translator.BuildPrompt(opts.TargetLanguage, opts.CustomPrompt)
	policy := a.cfg.Whitespace
	if opts.Whitespace != "" {
		policy = opts.Whitespace
	}
	total := len(pages)
	base := progressReporter(opts.Progress)
	report := func(p PageProgress) {
		p.Pages = total
		base(p)
	}

	asm := &Assembly{}
	for _, page := range pages {
		log := a.log.With("page", page.Number)
		report(PageProgress{Page: page.Number, State: StatePending})

		page.Text = policy.Normalize(page.Text)
		if page.IsBlank() {
			log.Debug("skipping empty page")
			asm.Skipped = append(asm.Skipped, page.Number)
			report(PageProgress{Page: page.Number, State: StateSkipped})
			continue
		}

		report(PageProgress{Page: page.Number, State: StateChunking})
		chunks := chunker.Split(page.Text, a.cfg.MaxChunkSize)
		log.Info("translating page", "chunks", len(chunks), "chars", len(page.Text))

		results, err := a.translateChunks(ctx, page.Number, prompt, chunks, report)
		if err != nil {
			return nil, err
		}

		rendered := make([]string, len(results))
		for i, res := range results {
			rendered[i] = res.Render()
			switch res.Outcome {
			case translator.OutcomeTranslated:
				asm.Translated++
			case translator.OutcomeBlocked:
				asm.Blocked++
			case translator.OutcomeFailed:
				asm.Failed++
			}
		}
		asm.Pages = append(asm.Pages, TranslatedPage{
			Number:  page.Number,
			Results: results,
			Text:    PageMarkers(page.Number, strings.Join(rendered, "\n")),
		})
		report(PageProgress{Page: page.Number, State: StateAssembled, Chunk: len(chunks), Chunks: len(chunks)})
	}

	a.log.Info("document assembled",
		"pages", len(asm.Pages), "skipped", len(asm.Skipped),
		"translated", asm.Translated, "blocked", asm.Blocked, "failed", asm.Failed)
	return asm, nil
}

func (a *Assembler) translateChunks(ctx context.Context, pageNum int, prompt string, chunks []string, report func(PageProgress)) ([]translator.Result, error) {
	results := make([]translator.Result, len(chunks))
	total := len(chunks)

	if a.cfg.ContextChars > 0 || a.cfg.Concurrency <= 1 || total == 1 {
		var prev string
		for i, chunk := range chunks {
			report(PageProgress{Page: pageNum, State: StateTranslating, Chunk: i, Chunks: total})
			res, err := a.tr.Translate(ctx, prompt, chunk, prev)
			if err != nil {
				return nil, fmt.Errorf("page %d chunk %d/%d: %w", pageNum, i+1, total, err)
			}
			results[i] = res
			if a.cfg.ContextChars > 0 {
				prev = ""
				if res.OK() {
					prev = chunker.Trailing(res.Text, a.cfg.ContextChars)
				}
			}
		}
		return results, nil
	}

	var mu sync.Mutex
	done := 0
	report(PageProgress{Page: pageNum, State: StateTranslating, Chunk: 0, Chunks: total})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			res, err := a.tr.Translate(gctx, prompt, chunk, "")
			if err != nil {
				return fmt.Errorf("page %d chunk %d/%d: %w", pageNum, i+1, total, err)
			}
			results[i] = res
			mu.Lock()
			done++
			n := done
			mu.Unlock()
			if n < total {
				report(PageProgress{Page: pageNum, State: StateTranslating, Chunk: n, Chunks: total})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// progressReporter serializes calls to fn; a nil fn becomes a no-op.
func progressReporter(fn func(PageProgress)) func(PageProgress) {
	if fn == nil {
		return func(PageProgress) {}
	}
	var mu sync.Mutex
	return func(p PageProgress) {
		mu.Lock()
		defer mu.Unlock()
		fn(p)
	}
}
