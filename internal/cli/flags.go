package cli

// Flags holds all command-line flag values
type Flags struct {
	// Global flags
	CfgFile   string
	EnvFile   string
	LogFormat string
	LogLevel  string

	// Settings that override the environment and config file
	Provider     string
	Model        string
	OutputFormat string
	ChunkSize    int
	ContextChars int
	Concurrency  int
	Whitespace   string

	// translate
	Language string
	Pages    int
	Prompt   string

	// serve
	Port string
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	return &Flags{
		EnvFile:   ".env",
		LogFormat: "text",
		LogLevel:  "info",
	}
}
