package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dgallion1/doctranslate/internal/config"
)

// App carries the state shared by the commands.
type App struct {
	Flags *Flags
	Viper *viper.Viper

	// Prompt fills in a missing file or language. Nil disables prompting.
	Prompt Prompter
	// NewGenerator builds the remote translation client.
	NewGenerator GeneratorFactory

	log *slog.Logger
}

// NewApp returns an App with interactive prompts and the real API clients.
func NewApp() *App {
	return &App{
		Flags:        NewFlags(),
		Viper:        viper.New(),
		Prompt:       HuhPrompter,
		NewGenerator: NewGenerator,
	}
}

// Execute runs the doctranslate command line until ctx is cancelled.
func Execute(ctx context.Context) error {
	return CreateRootCommand(NewApp()).ExecuteContext(ctx)
}

// CreateRootCommand creates and configures the root cobra command
func CreateRootCommand(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "doctranslate",
		Short: "Translate PDF, DOCX, text, Markdown and HTML documents",
		Long: `doctranslate translates documents page by page with a generative-language API.

Examples:
  doctranslate translate report.pdf --lang Spanish
  doctranslate translate notes.docx --lang German --pages 3 --output-format docx
  doctranslate translate                  # prompt for file and language
  doctranslate serve --port 8091          # run the HTTP job API`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.setup(cmd.ErrOrStderr())
		},
	}

	setupGlobalFlags(rootCmd.PersistentFlags(), app.Flags)
	rootCmd.AddCommand(newTranslateCommand(app), newServeCommand(app))
	return rootCmd
}

func setupGlobalFlags(fs *pflag.FlagSet, flags *Flags) {
	fs.StringVar(&flags.CfgFile, "config", "", "config file (default is $HOME/.doctranslate.yaml)")
	fs.StringVar(&flags.EnvFile, "env-file", flags.EnvFile, "dotenv file loaded before reading the environment")
	fs.StringVar(&flags.LogFormat, "log-format", flags.LogFormat, "Log format: text or json")
	fs.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "Log level: debug, info, warn, error")

	fs.StringVar(&flags.Provider, "provider", "", "Translation API: gemini or openai")
	fs.StringVar(&flags.Model, "model", "", "Model name for the selected provider")
	fs.StringVar(&flags.OutputFormat, "output-format", "", "Write output in this format (pdf, docx, txt, md, html) instead of the input's")
	fs.IntVar(&flags.ChunkSize, "chunk-size", 0, "Maximum characters per translation request")
	fs.IntVar(&flags.ContextChars, "context-chars", 0, "Trailing characters of the previous translation sent as context")
	fs.IntVar(&flags.Concurrency, "concurrency", 0, "Parallel chunk requests per page when no context is carried")
	fs.StringVar(&flags.Whitespace, "whitespace", "", "Whitespace policy: preserve, lines or collapse (Markdown keeps its indentation under lines)")
}

func newTranslateCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate [file]",
		Short: "Translate one document and print the output path",
		Long: `Translate one document and print the output path.

The output is written next to the input as <name>_translated_<language><ext>.
The language part is lowercased and slugged, so --lang "Brazilian Portuguese"
turns report.pdf into report_translated_brazilian-portuguese.pdf.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  app.runTranslate,
	}
	fs := cmd.Flags()
	fs.StringVarP(&app.Flags.Language, "lang", "l", "", "Target language; lowercased and slugged in the output file name")
	fs.IntVarP(&app.Flags.Pages, "pages", "p", 0, "Translate only the first N pages (0 = all)")
	fs.StringVar(&app.Flags.Prompt, "prompt", "", "Additional instructions for the translator")
	return cmd
}

func newServeCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP translation job API",
		Args:  cobra.NoArgs,
		RunE:  app.runServe,
	}
	cmd.Flags().StringVar(&app.Flags.Port, "port", "", "Listen port (default $PORT or 8091)")
	return cmd
}

// setup loads the dotenv and config files, binds flags and builds the logger.
func (a *App) setup(stderr io.Writer) error {
	if a.Viper == nil {
		a.Viper = viper.New()
	}
	log, err := NewLogger(stderr, a.Flags.LogFormat, a.Flags.LogLevel)
	if err != nil {
		return err
	}
	a.log = log

	if a.Flags.EnvFile != "" {
		if err := config.LoadEnvFile(a.Flags.EnvFile); err != nil {
			return err
		}
	}
	if err := InitConfig(a.Viper, a.Flags.CfgFile); err != nil {
		return err
	}
	if used := a.Viper.ConfigFileUsed(); used != "" {
		a.log.Debug("using config file", "path", used)
	}
	return nil
}

// bindCommand binds cmd's local and inherited flags to the app's viper.
func (a *App) bindCommand(cmd *cobra.Command) error {
	if err := bindFlagsToViper(a.Viper, cmd.Flags()); err != nil {
		return err
	}
	return bindFlagsToViper(a.Viper, cmd.InheritedFlags())
}

// loadConfig layers environment, config file and flags.
func (a *App) loadConfig(cmd *cobra.Command) (config.Config, error) {
	if err := a.bindCommand(cmd); err != nil {
		return config.Config{}, err
	}
	cfg := config.Load()
	ApplyOverrides(a.Viper, &cfg)
	return cfg, nil
}

var errMissingInput = errors.New("a file and --lang are required")

func (a *App) translateInput(args []string) (TranslateInput, error) {
	in := TranslateInput{
		Language: a.Flags.Language,
		Pages:    a.Flags.Pages,
		Prompt:   a.Flags.Prompt,
	}
	if len(args) == 1 {
		in.Path = args[0]
	}
	if in.Pages < 0 {
		return in, fmt.Errorf("--pages must be >= 0, got %d", in.Pages)
	}
	if in.Path != "" && in.Language != "" {
		return in, nil
	}
	if a.Prompt == nil {
		return in, errMissingInput
	}
	if err := a.Prompt(&in); err != nil {
		return in, err
	}
	if in.Path == "" || in.Language == "" {
		return in, errMissingInput
	}
	return in, nil
}
