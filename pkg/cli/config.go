package cli

import (
	"context"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltbeat/pkg/adapter"
	"github.com/m-mizutani/moltbeat/pkg/model"
	"github.com/m-mizutani/moltbeat/pkg/repository"
	"github.com/m-mizutani/moltbeat/pkg/service/writer"
	"github.com/m-mizutani/moltbeat/pkg/usecase/heartbeat"
	"github.com/m-mizutani/moltbeat/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	// Repository
	statePath   string
	contentPath string

	// Platform
	baseURL string
	apiKey  string

	// Generation backend
	backend        string
	ollamaURL      string
	ollamaModel    string
	geminiProject  string
	geminiLocation string
	geminiModel    string

	// Engagement profile
	configPath  string
	personaPath string
	policyDir   string

	// Logging
	logLevel  string
	logFormat string
}

// loggingFlags returns logging flags with destination config
func loggingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("MOLTBEAT_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console or json)",
			Value:       "console",
			Sources:     cli.EnvVars("MOLTBEAT_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// loggerContext installs the configured logger as default and attaches it
// to the context.
func (cfg *config) loggerContext(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, cfg.logFormat, os.Stdout)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// stateFlags returns state persistence flags with destination config
func stateFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "state",
			Aliases:     []string{"s"},
			Usage:       "Path to the agent state file",
			Value:       "moltbeat_state.json",
			Sources:     cli.EnvVars("MOLTBEAT_STATE"),
			Destination: &cfg.statePath,
		},
		&cli.StringFlag{
			Name:        "content-log",
			Usage:       "Path to the generated-content log (JSONL)",
			Sources:     cli.EnvVars("MOLTBEAT_CONTENT_LOG"),
			Destination: &cfg.contentPath,
		},
	}
}

// platformFlags returns Moltbook API flags with destination config
func platformFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Moltbook API base URL",
			Value:       "https://www.moltbook.com/api/v1",
			Sources:     cli.EnvVars("MOLTBOOK_BASE_URL"),
			Destination: &cfg.baseURL,
		},
		&cli.StringFlag{
			Name:        "api-key",
			Usage:       "Moltbook API key",
			Sources:     cli.EnvVars("MOLTBOOK_API_KEY"),
			Destination: &cfg.apiKey,
		},
	}
}

// backendFlags returns generation backend flags with destination config
func backendFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Generation backend (ollama or gemini)",
			Value:       "ollama",
			Sources:     cli.EnvVars("MOLTBEAT_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "ollama-url",
			Usage:       "Ollama chat endpoint",
			Value:       "http://localhost:11434/api/chat",
			Sources:     cli.EnvVars("OLLAMA_URL"),
			Destination: &cfg.ollamaURL,
		},
		&cli.StringFlag{
			Name:        "ollama-model",
			Usage:       "Ollama model name",
			Sources:     cli.EnvVars("OLLAMA_MODEL"),
			Destination: &cfg.ollamaModel,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model name",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// profileFlags returns engagement profile flags with destination config
func profileFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to the engagement profile YAML",
			Sources:     cli.EnvVars("MOLTBEAT_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "persona",
			Usage:       "Path to a persona file overriding the built-in one",
			Sources:     cli.EnvVars("MOLTBEAT_PERSONA"),
			Destination: &cfg.personaPath,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies consulted before publishing",
			Sources:     cli.EnvVars("MOLTBEAT_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
	}
}

// newRepository creates a new repository instance
func (cfg *config) newRepository() (repository.Repository, error) {
	var opts []repository.LocalOption
	if cfg.contentPath != "" {
		opts = append(opts, repository.WithContentLog(cfg.contentPath))
	}

	repo, err := repository.NewLocal(cfg.statePath, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newPlatform creates a new Moltbook client
func (cfg *config) newPlatform() (adapter.Moltbook, error) {
	return adapter.NewMoltbook(cfg.baseURL, cfg.apiKey)
}

// newGenerator creates the configured generation backend
func (cfg *config) newGenerator(ctx context.Context) (adapter.Generator, error) {
	switch strings.ToLower(cfg.backend) {
	case "ollama":
		var opts []adapter.OllamaOption
		if cfg.ollamaModel != "" {
			opts = append(opts, adapter.WithOllamaModel(cfg.ollamaModel))
		}
		return adapter.NewOllama(cfg.ollamaURL, opts...)

	case "gemini":
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required for the gemini backend")
		}
		var opts []adapter.GeminiOption
		if cfg.geminiModel != "" {
			opts = append(opts, adapter.WithGeminiModel(cfg.geminiModel))
		}
		return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)

	default:
		return nil, goerr.New("unknown backend", goerr.V("backend", cfg.backend))
	}
}

// loadProfile reads the engagement profile YAML, or the defaults
func (cfg *config) loadProfile() (*model.Config, error) {
	return model.LoadConfig(cfg.configPath)
}

// persona returns the system prompt text
func (cfg *config) persona() (string, error) {
	if cfg.personaPath == "" {
		return writer.DefaultPersona, nil
	}
	data, err := os.ReadFile(cfg.personaPath)
	if err != nil {
		return "", goerr.Wrap(err, "failed to read persona file", goerr.V("path", cfg.personaPath))
	}
	return string(data), nil
}

// newWriter assembles the content writer on top of the generator
func (cfg *config) newWriter(ctx context.Context, profile *model.Config) (*writer.Writer, error) {
	gen, err := cfg.newGenerator(ctx)
	if err != nil {
		return nil, err
	}
	persona, err := cfg.persona()
	if err != nil {
		return nil, err
	}
	return writer.New(gen, persona, profile)
}

// newUseCase wires the full orchestrator from flags
func (cfg *config) newUseCase(ctx context.Context) (*heartbeat.UseCase, error) {
	profile, err := cfg.loadProfile()
	if err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository()
	if err != nil {
		return nil, err
	}

	platform, err := cfg.newPlatform()
	if err != nil {
		return nil, err
	}

	w, err := cfg.newWriter(ctx, profile)
	if err != nil {
		return nil, err
	}

	return heartbeat.New(ctx, heartbeat.NewInput{
		Repo:      repo,
		Platform:  platform,
		Writer:    w,
		Config:    profile,
		PolicyDir: cfg.policyDir,
	})
}
