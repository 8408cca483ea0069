package filtering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/screening"
)

type aiReviewFilter struct {
	disabled    bool
	reason      string
	config      *AIConfig
	excludeFile string
}

// NewAIReview creates the AI-based filtering step. Candidates the provider
// rejects are dropped and recorded in the exclude file.
func NewAIReview() Filter {
	return &aiReviewFilter{}
}

func (f *aiReviewFilter) Name() string { return "ai_review" }

func (f *aiReviewFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *aiReviewFilter) IsEnabled() bool { return !f.disabled }

func (f *aiReviewFilter) Validate(cfg *Config) error {
	f.config = nil
	f.excludeFile = ""
	if cfg != nil {
		f.config = cfg.AI
		f.excludeFile = strings.TrimSpace(cfg.ExcludeFile)
	}
	if !f.IsEnabled() {
		return nil
	}
	if f.config == nil {
		return fmt.Errorf("ai configuration is required when ai filter is enabled")
	}
	if f.config.Gemini == nil {
		return fmt.Errorf("gemini configuration is required when ai filter is enabled")
	}
	if strings.TrimSpace(f.config.Gemini.Model) == "" {
		return fmt.Errorf("gemini model is required when ai filter is enabled")
	}
	return nil
}

func (f *aiReviewFilter) Apply(ctx context.Context, deps Deps, c *screening.Candidates) (*screening.Candidates, Step, error) {
	initial := c.Len()
	if deps.Reviewer == nil {
		deps.Logger.Info("ai reviewer is not configured; skipping ai_review filter")
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}
	if deps.Extractor == nil {
		return c, Step{}, fmt.Errorf("text extractor is required for AI review")
	}

	limit := c.Len()
	if f.config != nil && f.config.ReviewTop > 0 && f.config.ReviewTop < limit {
		limit = f.config.ReviewTop
	}

	approved := make([]*screening.Candidate, 0, initial)
	rejected := &screening.Candidates{}

	for i, candidate := range c.Items {
		if i >= limit {
			approved = append(approved, candidate)
			continue
		}
		if err := ctx.Err(); err != nil {
			return c, Step{}, err
		}

		assessment, err := deps.Reviewer.Review(ctx, ai.ReviewRequest{
			File:           candidate.File,
			JobDescription: deps.Batch.JobDescription,
			MustHaves:      deps.Batch.MustHaves,
			Resume:         deps.Extractor.Text(candidate.Path),
			Score:          candidate.Score,
		})
		if err != nil {
			deps.Logger.Warn("AI review failed",
				zap.String(logger.FieldCandidate, candidate.File),
				zap.Error(err),
			)
			candidate.AI = &screening.AIReview{Error: err.Error()}
			approved = append(approved, candidate)
			continue
		}

		candidate.AI = &screening.AIReview{
			Fit:    assessment.Fit,
			Score:  assessment.Score,
			Reason: assessment.Reason,
		}

		if !assessment.Fit {
			deps.Logger.Info("candidate rejected by AI provider",
				zap.String(logger.FieldCandidate, candidate.File),
				zap.Float64("ai_score", assessment.Score),
				zap.String("reason", assessment.Reason),
			)
			f.recordRejection(deps.Logger, candidate, assessment.Reason)
			rejected.Items = append(rejected.Items, candidate)
			continue
		}

		deps.Logger.Info("candidate approved by AI",
			zap.String(logger.FieldCandidate, candidate.File),
			zap.Float64("ai_score", assessment.Score),
		)
		approved = append(approved, candidate)
	}

	c.Items = approved

	deps.Logger.Info("AI review completed",
		zap.Int("initial_candidates", initial),
		zap.Int("approved_candidates", len(approved)),
	)

	return c, Step{Initial: initial, Dropped: rejected.Len(), Left: c.Len()}, nil
}

func (f *aiReviewFilter) recordRejection(log *zap.Logger, candidate *screening.Candidate, reason string) {
	if f.excludeFile == "" {
		return
	}

	add := (&screening.Candidates{Items: []*screening.Candidate{candidate}}).
		ToExclusions(screening.ExcludeActorAI, reason)
	if err := screening.AppendExclusions(f.excludeFile, add); err != nil {
		log.Warn("failed to append candidate to exclude file",
			zap.String(logger.FieldCandidate, candidate.File),
			zap.Error(err),
		)
		return
	}

	log.Info("candidate appended to exclude file",
		zap.String(logger.FieldCandidate, candidate.File),
		zap.String("exclude_file", f.excludeFile),
	)
}

func (f *aiReviewFilter) Status() Status {
	details := map[string]string{}
	if f.config != nil {
		details["minimum_fit_score"] = fmt.Sprintf("%.2f", f.config.MinimumFitScore)
		if f.config.ReviewTop > 0 {
			details["review_top"] = strconv.Itoa(f.config.ReviewTop)
		}
		if f.config.Gemini != nil {
			details["model"] = f.config.Gemini.Model
			details["max_retries"] = strconv.Itoa(f.config.Gemini.MaxRetries)
			details["max_log_length"] = strconv.Itoa(f.config.Gemini.MaxLogLength)
		}
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
