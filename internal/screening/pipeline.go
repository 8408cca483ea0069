// Package screening scores batches of résumés against a job description.
package screening

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/scoring"
)

const (
	DefaultMinTextLength = 50
	defaultProgressEvery = 10
)

// TextExtractor returns the lowercased text of a document, or an empty
// string when the document is unreadable.
type TextExtractor interface {
	Text(path string) string
}

// Batch is one screening request.
type Batch struct {
	JobDescription string
	MustHaves      []string
	Documents      []string
}

// Progress is called with the number of processed documents. Calls are
// serialized.
type Progress func(processed, total int)

type Config struct {
	Workers       int
	MinTextLength int
	// ProgressEvery controls how often Progress fires. The final document
	// always triggers a call.
	ProgressEvery int
}

// Summary counts what happened to the documents of a batch.
type Summary struct {
	Total     int
	Processed int
	Scored    int
	Skipped   int
}

type Pipeline struct {
	scorer    *scoring.Scorer
	extractor TextExtractor
	config    Config
	logger    *zap.Logger
}

func NewPipeline(scorer *scoring.Scorer, extractor TextExtractor, config Config, log *zap.Logger) *Pipeline {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.MinTextLength <= 0 {
		config.MinTextLength = DefaultMinTextLength
	}
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = defaultProgressEvery
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Pipeline{
		scorer:    scorer,
		extractor: extractor,
		config:    config,
		logger:    log,
	}
}

// Run extracts and scores every document of the batch. The returned
// candidates are sorted. Documents with too little text are counted as
// processed but produce no candidate.
func (p *Pipeline) Run(ctx context.Context, batch Batch, progress Progress) (*Candidates, Summary, error) {
	total := len(batch.Documents)
	summary := Summary{Total: total}
	job := p.scorer.Prepare(batch.JobDescription)

	p.logger.Info("screening started",
		zap.Int("documents", total),
		zap.Int("must_haves", len(batch.MustHaves)),
		zap.Int("job_skills", len(job.Skills)),
		zap.Int("workers", p.config.Workers),
	)

	results := make([]*Candidate, total)

	var mu sync.Mutex
	done := 0
	report := func() {
		mu.Lock()
		defer mu.Unlock()

		done++
		if progress != nil && (done%p.config.ProgressEvery == 0 || done == total) {
			progress(done, total)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Workers)

	for i, path := range batch.Documents {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			defer report()

			text := p.extractor.Text(path)
			if utf8.RuneCountInString(text) <= p.config.MinTextLength {
				p.logger.Debug("skipping document with too little text",
					zap.String(logger.FieldCandidate, filepath.Base(path)),
					zap.Int("length", utf8.RuneCountInString(text)),
				)
				return nil
			}

			res := p.scorer.Score(job.Apply(scoring.Request{
				ResumeText: text,
				MustHaves:  batch.MustHaves,
			}))
			results[i] = NewCandidate(path, filepath.Base(path), res)

			p.logger.Debug("document scored", logger.CandidateFields(filepath.Base(path), res.Score)...)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, summary, err
	}

	candidates := &Candidates{}
	for _, c := range results {
		if c == nil {
			summary.Skipped++
			continue
		}
		candidates.Items = append(candidates.Items, c)
	}
	candidates.Sort()

	summary.Processed = total
	summary.Scored = candidates.Len()

	p.logger.Info("screening finished",
		zap.Int("scored", summary.Scored),
		zap.Int("skipped", summary.Skipped),
	)

	return candidates, summary, nil
}
