package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/ai/gemini"
	"github.com/spigell/cv-screener/internal/extract"
	"github.com/spigell/cv-screener/internal/filtering"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/scoring"
	"github.com/spigell/cv-screener/internal/screening"
	"github.com/spigell/cv-screener/internal/secrets"
	"github.com/spigell/cv-screener/internal/skills"
)

// newPipeline wires the dictionary, scorer and extractor described by config.
func newPipeline(config *Config, log *zap.Logger) (*screening.Pipeline, *extract.Extractor, error) {
	dict := skills.Default()
	if path := strings.TrimSpace(config.Skills.DictionaryFile); path != "" {
		loaded, err := skills.LoadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("loading skill dictionary: %w", err)
		}
		dict = loaded
		log.Info("using custom skill dictionary", zap.String("path", path), zap.Int("skills", dict.Len()))
	}

	scorer := scoring.New(skills.NewMatcher(dict), scoring.WithLogger(log))
	extractor := extract.New(log)

	pipeline := screening.NewPipeline(scorer, extractor, screening.Config{
		Workers:       config.Screening.Workers,
		MinTextLength: config.Screening.MinTextLength,
	}, log)

	return pipeline, extractor, nil
}

func filteringConfig(config *Config) *filtering.Config {
	return &filtering.Config{
		MinScore:    config.Screening.MinScore,
		ExcludeFile: config.Screening.ExcludeFile,
		AI: &filtering.AIConfig{
			Enabled:           config.AI.Enabled,
			Provider:          config.AI.Provider,
			MinimumFitScore:   config.AI.MinimumFitScore,
			RequestsPerSecond: config.AI.RequestsPerSecond,
			ReviewTop:         config.AI.ReviewTop,
			Gemini: &filtering.GeminiConfig{
				Model:        config.AI.Gemini.Model,
				MaxRetries:   config.AI.Gemini.MaxRetries,
				MaxLogLength: config.AI.Gemini.MaxLogLength,
			},
		},
	}
}

func newAIReviewer(ctx context.Context, cfg AIConfig, log *zap.Logger) (ai.Reviewer, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != gemini.ProviderName {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY_FILE)", err)
	}

	genLogger := logger.WithCommonFields(log, gemini.ProviderName, cfg.Gemini.Model).
		With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries))

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewReviewer(generator, gemini.ReviewerConfig{
		MinimumFitScore:   cfg.MinimumFitScore,
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxLogLength:      cfg.Gemini.MaxLogLength,
	}, log.With(zap.Float64("minimum_fit_score", cfg.MinimumFitScore))), nil
}
