package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/doctranslate/internal/api"
	"github.com/dgallion1/doctranslate/internal/config"
	"github.com/dgallion1/doctranslate/internal/format"
	"github.com/dgallion1/doctranslate/internal/gemini"
	"github.com/dgallion1/doctranslate/internal/openaicompat"
	"github.com/dgallion1/doctranslate/internal/pipeline"
	"github.com/dgallion1/doctranslate/internal/translator"
)

// GeneratorFactory builds the remote API client selected by cfg. The returned func releases it.
type GeneratorFactory func(ctx context.Context, cfg config.Config) (translator.Generator, func(), error)

// NewGenerator builds a Gemini or OpenAI-compatible client.
func NewGenerator(ctx context.Context, cfg config.Config) (translator.Generator, func(), error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		c := openaicompat.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.RequestTimeout)
		return c, c.Close, nil
	case config.ProviderGemini:
		c, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.RequestTimeout)
		if err != nil {
			return nil, nil, fmt.Errorf("create gemini client: %w", err)
		}
		return c, c.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// stack is the translation pipeline built from one Config.
type stack struct {
	formats   *format.Registry
	requester *translator.Requester
	orch      *pipeline.Orchestrator
	close     func()
}

func (a *App) buildStack(ctx context.Context, cfg config.Config) (*stack, error) {
	ws, err := pipeline.ParseWhitespacePolicy(cfg.WhitespacePolicy)
	if err != nil {
		return nil, err
	}
	gen, closeGen, err := a.NewGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}

	formats := format.DefaultRegistry(format.Options{
		DOCXPageChars:     cfg.DOCXPageChars,
		FallbackPdftotext: cfg.PDFFallbackPdftotext,
		ValidatePDF:       cfg.PDFValidateOutput,
		PDFFont:           cfg.PDFFont,
	})
	policy := translator.Policy{MaxAttempts: cfg.MaxRetries, BaseDelay: cfg.RetryBaseDelay}
	req := translator.NewRequester(gen, policy, translator.NewLatencyStats(time.Hour), a.log)
	asm := pipeline.NewAssembler(req, pipeline.AssemblerConfig{
		MaxChunkSize: cfg.MaxChunkSize,
		ContextChars: cfg.ContextChars,
		Concurrency:  cfg.ChunkConcurrency,
		Whitespace:   ws,
	}, a.log)

	st := &stack{
		formats:   formats,
		requester: req,
		orch:      pipeline.NewOrchestrator(formats, asm, cfg.OutputFormat, a.log),
		close:     func() {},
	}
	if closeGen != nil {
		st.close = closeGen
	}
	return st, nil
}

func (a *App) runTranslate(cmd *cobra.Command, args []string) error {
	in, err := a.translateInput(args)
	if err != nil {
		return err
	}
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := cmd.Context()
	st, err := a.buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	log := a.log.With("language", in.Language, "model", st.requester.Model())
	opts := pipeline.Options{
		TargetLanguage: in.Language,
		MaxPages:       in.Pages,
		CustomPrompt:   in.Prompt,
		Progress: func(p pipeline.PageProgress) {
			switch p.State {
			case pipeline.StateAssembled:
				log.Info("page translated", "page", p.Page, "of", p.Pages, "chunks", p.Chunks)
			case pipeline.StateSkipped:
				log.Info("page skipped, no text", "page", p.Page)
			case pipeline.StateTranslating:
				log.Debug("chunk done", "page", p.Page, "chunk", p.Chunk, "chunks", p.Chunks)
			}
		},
		Stage: func(s pipeline.Stage) {
			log.Debug("stage", "stage", s)
		},
	}

	res, err := st.orch.TranslateFileDetailed(ctx, in.Path, opts)
	if err != nil {
		return err
	}
	attrs := []any{"output", res.OutputPath, "title", res.Document.Title,
		"pages", len(res.Document.Pages), "skipped", len(res.Assembly.Skipped)}
	if stats := st.requester.Stats(); stats != nil {
		snap := stats.Snapshot()
		attrs = append(attrs, "calls", snap.Calls, "retries", snap.Retries, "avg_ms", snap.AvgMs)
	}
	log.Info("translation finished", attrs...)

	fmt.Fprintln(cmd.OutOrStdout(), res.OutputPath)
	if !res.Assembly.Complete() {
		printWarning(cmd.ErrOrStderr(), res.Assembly)
	}
	return nil
}

// printWarning summarizes chunks that were not translated. Their markers are in the output.
func printWarning(w io.Writer, asm *pipeline.Assembly) {
	fmt.Fprintf(w, "warning: %d of %d chunks were not translated (%d blocked, %d failed); "+
		"look for the warning markers in the output\n",
		asm.Blocked+asm.Failed, asm.Chunks(), asm.Blocked, asm.Failed)
}

func (a *App) runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := cmd.Context()
	st, err := a.buildStack(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.close()

	svc := pipeline.NewService(pipeline.ServiceConfig{
		WorkerCount:  cfg.WorkerCount,
		MaxQueueSize: cfg.MaxQueueSize,
		JobTTL:       cfg.JobTTL,
	}, st.orch, a.log)
	svc.Start(ctx)

	srv := api.NewServer(svc, st.formats, st.requester, a.log, cfg)
	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting doctranslate", "port", cfg.Port, "provider", cfg.Provider, "model", st.requester.Model())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		svc.Stop()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = httpServer.Shutdown(shutdownCtx)
	svc.Stop()
	return err
}
