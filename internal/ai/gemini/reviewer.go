package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/utils"
)

const (
	ProviderName = "gemini"

	defaultMaxLogLength = 200
	// Résumé text beyond this many runes is cut before it reaches the prompt.
	maxResumeRunes = 12000
)

//go:embed prompt.md
var promptTemplate string

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// ReviewerConfig tunes a Reviewer.
type ReviewerConfig struct {
	// MinimumFitScore turns a positive verdict into a rejection when the
	// returned score is lower. Zero disables the threshold.
	MinimumFitScore float64
	// RequestsPerSecond limits outgoing calls. Zero means unlimited.
	RequestsPerSecond float64
	MaxLogLength      int
}

// Reviewer asks Gemini for a second opinion on a scored résumé.
type Reviewer struct {
	generator contentGenerator
	minScore  float64
	limiter   *rate.Limiter
	logger    *zap.Logger
	maxLogLen int
}

func NewReviewer(generator contentGenerator, cfg ReviewerConfig, log *zap.Logger) *Reviewer {
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = defaultMaxLogLength
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Reviewer{
		generator: generator,
		minScore:  cfg.MinimumFitScore,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger.WithCommonFields(log, ProviderName, generator.Model()),
		maxLogLen: cfg.MaxLogLength,
	}
}

func (r *Reviewer) Review(ctx context.Context, req ai.ReviewRequest) (*ai.Assessment, error) {
	if strings.TrimSpace(req.Resume) == "" {
		return nil, errors.New("resume text is required")
	}
	if strings.TrimSpace(req.JobDescription) == "" {
		return nil, errors.New("job description is required")
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	prompt := buildPrompt(req)

	r.logger.Debug("gemini generate content request",
		zap.String(logger.FieldCandidate, req.File),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, r.maxLogLen)),
	)

	raw, err := r.generator.GenerateContent(ctx, prompt)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("gemini generate content response",
		zap.String(logger.FieldCandidate, req.File),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, r.maxLogLen)),
	)

	assessment, err := parseResponse(raw)
	if err != nil {
		return nil, err
	}

	if r.minScore > 0 && assessment.Score < r.minScore && assessment.Fit {
		r.logger.Debug("set fit to false by score threshold",
			zap.String(logger.FieldCandidate, req.File),
			zap.Float64("ai_score", assessment.Score),
			zap.Float64("threshold", r.minScore),
		)
		assessment.Fit = false
	}

	assessment.Raw = raw
	return assessment, nil
}

func buildPrompt(req ai.ReviewRequest) string {
	mustHaves := "none"
	if len(req.MustHaves) > 0 {
		mustHaves = strings.Join(req.MustHaves, ", ")
	}

	resume := strings.TrimSpace(req.Resume)
	if utf8.RuneCountInString(resume) > maxResumeRunes {
		resume = string([]rune(resume)[:maxResumeRunes])
	}

	return strings.NewReplacer(
		"{{JOB_DESCRIPTION}}", strings.TrimSpace(req.JobDescription),
		"{{MUST_HAVES}}", mustHaves,
		"{{SCORE}}", strconv.FormatFloat(req.Score, 'f', 2, 64),
		"{{FILE}}", req.File,
		"{{RESUME}}", resume,
	).Replace(promptTemplate)
}

type response struct {
	Fit    bool    `mapstructure:"fit"`
	Score  float64 `mapstructure:"score"`
	Reason string  `mapstructure:"reason"`
}

func parseResponse(raw string) (*ai.Assessment, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	var out response
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(yesNoHook, stringifyHook),
		Result:           &out,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}

	if math.IsNaN(out.Score) || math.IsInf(out.Score, 0) {
		out.Score = 0
	}

	return &ai.Assessment{
		Fit:    out.Fit,
		Score:  out.Score,
		Reason: strings.TrimSpace(out.Reason),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

// yesNoHook accepts "yes" and "no" for boolean fields.
func yesNoHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Bool {
		return data, nil
	}
	switch strings.ToLower(strings.TrimSpace(data.(string))) {
	case "yes", "y":
		return true, nil
	case "no", "n", "":
		return false, nil
	}
	return data, nil
}

// stringifyHook renders structured values as JSON when a string is expected.
func stringifyHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Map, reflect.Slice:
		encoded, err := json.Marshal(data)
		if err != nil {
			return fmt.Sprint(data), nil
		}
		return string(encoded), nil
	}
	return data, nil
}
