package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dgallion1/doctranslate/internal/config"
	"github.com/dgallion1/doctranslate/internal/translator"
)

type upperGenerator struct{ calls int }

func (g *upperGenerator) Generate(_ context.Context, req translator.Request) (*translator.Response, error) {
	g.calls++
	return &translator.Response{Text: strings.ToUpper(req.Text)}, nil
}

func (g *upperGenerator) Model() string { return "upper" }

type blockingGenerator struct{}

func (blockingGenerator) Generate(context.Context, translator.Request) (*translator.Response, error) {
	return &translator.Response{Blocked: true, Categories: []string{"HARM_CATEGORY_HARASSMENT"}}, nil
}

func (blockingGenerator) Model() string { return "blocker" }

// testApp returns an App isolated from the user's environment, config file and .env.
func testApp(t *testing.T, gen translator.Generator) *App {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TRANSLATOR_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("OUTPUT_FORMAT", "")
	t.Setenv("WHITESPACE_POLICY", "")
	t.Setenv("CONTEXT_CHARS", "")

	app := NewApp()
	app.Flags.EnvFile = ""
	app.Prompt = nil
	app.NewGenerator = func(context.Context, config.Config) (translator.Generator, func(), error) {
		return gen, nil, nil
	}
	return app
}

func run(t *testing.T, app *App, args ...string) (string, string, error) {
	t.Helper()
	root := CreateRootCommand(app)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestNewFlags(t *testing.T) {
	flags := NewFlags()
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"EnvFile", flags.EnvFile, ".env"},
		{"LogFormat", flags.LogFormat, "text"},
		{"LogLevel", flags.LogLevel, "info"},
		{"CfgFile", flags.CfgFile, ""},
		{"Language", flags.Language, ""},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
		}
	}
	if flags.Pages != 0 {
		t.Errorf("Pages = %d, want 0", flags.Pages)
	}
}

func TestCommandFlags(t *testing.T) {
	root := CreateRootCommand(NewApp())

	for _, name := range []string{"config", "env-file", "log-format", "log-level", "provider", "model",
		"output-format", "chunk-size", "context-chars", "concurrency", "whitespace"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Errorf("missing global flag --%s", name)
		}
	}

	translate, _, err := root.Find([]string{"translate"})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"lang", "pages", "prompt"} {
		if translate.Flags().Lookup(name) == nil {
			t.Errorf("missing translate flag --%s", name)
		}
	}

	serve, _, err := root.Find([]string{"serve"})
	if err != nil {
		t.Fatal(err)
	}
	if serve.Flags().Lookup("port") == nil {
		t.Error("missing serve flag --port")
	}
}

func TestInitConfigAndApplyOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doctranslate.yaml")
	yaml := `provider: openai
model: gpt-test
chunk_size: 500
context_chars: 80
request_timeout: 30s
pdf_validate_output: true
whitespace: COLLAPSE
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	if err := InitConfig(v, path); err != nil {
		t.Fatalf("InitConfig: %v", err)
	}

	cfg := config.Config{Provider: config.ProviderGemini, GeminiModel: "gemini-1.5-flash", MaxChunkSize: 10000}
	ApplyOverrides(v, &cfg)

	if cfg.Provider != config.ProviderOpenAI {
		t.Errorf("Provider = %q", cfg.Provider)
	}
	if cfg.OpenAIModel != "gpt-test" || cfg.GeminiModel != "gemini-1.5-flash" {
		t.Errorf("model applied to wrong provider: openai=%q gemini=%q", cfg.OpenAIModel, cfg.GeminiModel)
	}
	if cfg.MaxChunkSize != 500 || cfg.ContextChars != 80 {
		t.Errorf("chunking = %d/%d", cfg.MaxChunkSize, cfg.ContextChars)
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if !cfg.PDFValidateOutput {
		t.Error("PDFValidateOutput not applied")
	}
	if cfg.WhitespacePolicy != "collapse" {
		t.Errorf("WhitespacePolicy = %q", cfg.WhitespacePolicy)
	}
	// Unset keys keep clamped defaults.
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want default 5", cfg.MaxRetries)
	}
}

func TestInitConfig_MissingFiles(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if err := InitConfig(viper.New(), ""); err != nil {
		t.Errorf("missing default config should be ignored, got %v", err)
	}
	if err := InitConfig(viper.New(), filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestApplyOverrides_FlagsBeatFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte("chunk_size: 500\nconcurrency: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	flags := NewFlags()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	setupGlobalFlags(fs, flags)
	if err := fs.Parse([]string{"--chunk-size=42"}); err != nil {
		t.Fatal(err)
	}

	v := viper.New()
	if err := bindFlagsToViper(v, fs); err != nil {
		t.Fatal(err)
	}
	if err := InitConfig(v, path); err != nil {
		t.Fatal(err)
	}

	var cfg config.Config
	ApplyOverrides(v, &cfg)
	if cfg.MaxChunkSize != 42 {
		t.Errorf("MaxChunkSize = %d, want flag value 42", cfg.MaxChunkSize)
	}
	if cfg.ChunkConcurrency != 3 {
		t.Errorf("ChunkConcurrency = %d, want file value 3", cfg.ChunkConcurrency)
	}
	if cfg.ContextChars != 0 {
		t.Errorf("unchanged flag overrode ContextChars: %d", cfg.ContextChars)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLogger(&buf, "json", "info")
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("hidden")
	log.Info("shown", "page", 3)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug line written at info level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"page":3`) {
		t.Errorf("unexpected json output %q", out)
	}

	buf.Reset()
	log, err = NewLogger(&buf, "text", "debug")
	if err != nil {
		t.Fatal(err)
	}
	log.Debug("chunk done", "chunk", 2)
	if !strings.Contains(buf.String(), "chunk done") {
		t.Errorf("unexpected text output %q", buf.String())
	}

	if _, err := NewLogger(&buf, "xml", "info"); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := NewLogger(&buf, "text", "loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestTranslateCommand(t *testing.T) {
	gen := &upperGenerator{}
	app := testApp(t, gen)

	input := filepath.Join(t.TempDir(), "Letter.txt")
	if err := os.WriteFile(input, []byte("hola\fmundo\fadios"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := run(t, app, "translate", input, "--lang", "English", "--pages", "2", "--log-level", "error")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}

	want := filepath.Join(filepath.Dir(input), "Letter_translated_english.txt")
	if strings.TrimSpace(out) != want {
		t.Fatalf("printed %q, want %q", out, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	expected := "[PAGE 1 START]\nHOLA\n[PAGE 1 END]\n\n[PAGE 2 START]\nMUNDO\n[PAGE 2 END]"
	if string(data) != expected {
		t.Errorf("output = %q, want %q", data, expected)
	}
	if gen.calls != 2 {
		t.Errorf("expected 2 calls with --pages 2, got %d", gen.calls)
	}
}

func TestTranslateCommand_LanguageSlugAndSummary(t *testing.T) {
	app := testApp(t, &upperGenerator{})
	input := filepath.Join(t.TempDir(), "Report.txt")
	if err := os.WriteFile(input, []byte("ola\f \fmundo"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, stderr, err := run(t, app, "translate", input, "--lang", "Brazilian Portuguese", "--log-format", "json")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	want := filepath.Join(filepath.Dir(input), "Report_translated_brazilian-portuguese.txt")
	if strings.TrimSpace(out) != want {
		t.Errorf("printed %q, want %q", out, want)
	}
	for _, s := range []string{`"msg":"translation finished"`, `"title":"Report"`, `"pages":3`, `"skipped":1`} {
		if !strings.Contains(stderr, s) {
			t.Errorf("summary log missing %s in %q", s, stderr)
		}
	}
}

func TestTranslateCommand_HelpDescribesOutputName(t *testing.T) {
	out, _, err := run(t, NewApp(), "translate", "--help")
	if err != nil {
		t.Fatalf("help: %v", err)
	}
	for _, s := range []string{"<name>_translated_<language><ext>", "lowercased and slugged", "report_translated_brazilian-portuguese.pdf"} {
		if !strings.Contains(out, s) {
			t.Errorf("translate help missing %q", s)
		}
	}
}

func TestTranslateCommand_OutputFormatFlag(t *testing.T) {
	app := testApp(t, &upperGenerator{})
	input := filepath.Join(t.TempDir(), "memo.txt")
	if err := os.WriteFile(input, []byte("uno"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := run(t, app, "translate", input, "--lang", "Italian", "--output-format", "docx", "--log-level", "error")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "memo_translated_italian.docx") {
		t.Errorf("unexpected output path %q", out)
	}
}

func TestTranslateCommand_PartialWarning(t *testing.T) {
	app := testApp(t, blockingGenerator{})
	input := filepath.Join(t.TempDir(), "x.txt")
	if err := os.WriteFile(input, []byte("something"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := run(t, app, "translate", input, "--lang", "French", "--log-level", "error")
	if err != nil {
		t.Fatalf("partial results must not fail the command: %v", err)
	}
	if !strings.Contains(stderr, "1 of 1 chunks were not translated (1 blocked, 0 failed)") {
		t.Errorf("missing warning summary in %q", stderr)
	}
}

func TestTranslateCommand_Prompts(t *testing.T) {
	app := testApp(t, &upperGenerator{})
	input := filepath.Join(t.TempDir(), "p.txt")
	if err := os.WriteFile(input, []byte("ciao"), 0o644); err != nil {
		t.Fatal(err)
	}

	var asked TranslateInput
	app.Prompt = func(in *TranslateInput) error {
		asked = *in
		in.Path = input
		in.Language = "Dutch"
		return nil
	}

	out, _, err := run(t, app, "translate", "--pages", "1", "--log-level", "error")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if asked.Pages != 1 || asked.Path != "" {
		t.Errorf("prompt not prefilled from flags: %+v", asked)
	}
	if !strings.HasSuffix(strings.TrimSpace(out), "p_translated_dutch.txt") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestTranslateCommand_Errors(t *testing.T) {
	t.Run("missing language without prompts", func(t *testing.T) {
		app := testApp(t, &upperGenerator{})
		_, _, err := run(t, app, "translate", "a.txt", "--log-level", "error")
		if !errors.Is(err, errMissingInput) {
			t.Errorf("expected errMissingInput, got %v", err)
		}
	})

	t.Run("missing credential", func(t *testing.T) {
		app := testApp(t, &upperGenerator{})
		t.Setenv("GEMINI_API_KEY", "")
		_, _, err := run(t, app, "translate", "a.txt", "--lang", "French", "--log-level", "error")
		if err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY") {
			t.Errorf("expected credential error, got %v", err)
		}
	})

	t.Run("unsupported file", func(t *testing.T) {
		app := testApp(t, &upperGenerator{})
		_, _, err := run(t, app, "translate", "a.xyz", "--lang", "French", "--log-level", "error")
		if err == nil || !strings.Contains(err.Error(), "unsupported") {
			t.Errorf("expected unsupported format error, got %v", err)
		}
	})

	t.Run("bad whitespace policy", func(t *testing.T) {
		app := testApp(t, &upperGenerator{})
		_, _, err := run(t, app, "translate", "a.txt", "--lang", "French", "--whitespace", "squash", "--log-level", "error")
		if err == nil {
			t.Error("expected error for unknown whitespace policy")
		}
	})
}

func TestPromptValidators(t *testing.T) {
	file := filepath.Join(t.TempDir(), "doc.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := validatePath(file); err != nil {
		t.Errorf("validatePath(file) = %v", err)
	}
	if err := validatePath(filepath.Dir(file)); err == nil {
		t.Error("directory accepted")
	}
	if err := validatePath(" "); err == nil {
		t.Error("empty path accepted")
	}
	if err := validateLanguage("  "); err == nil {
		t.Error("blank language accepted")
	}

	pages := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{" 4 ", 4, false},
		{"0", 0, false},
		{"-2", 0, true},
		{"all", 0, true},
	}
	for _, tt := range pages {
		got, err := parsePages(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parsePages(%q) = %d, %v", tt.in, got, err)
		}
	}
}
