// Package scoring turns a job description, a résumé and a list of
// must-have skills into a bounded 0-100 relevance score with the skills
// that explain it.
package scoring

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/similarity"
	"github.com/spigell/cv-screener/internal/skills"
)

const (
	maxScore = 100

	relevantSkillPoints = 15
	otherSkillPoints    = 5
	skillShare          = 50
	similarityShare     = 0.5

	// Each missing must-have keeps 20% of the score.
	missingPenalty = 0.2

	reactBonus     = 10
	fullStackBonus = 5
)

// Request is a single résumé to score against a job description.
type Request struct {
	JobDescription string
	// ResumeText is expected to be lowercased already; it is lowercased again
	// before matching.
	ResumeText string
	MustHaves  []string

	// JobDescriptionLower and SkillsInJobDesc are optional precomputed values
	// shared by every résumé scored against the same job description. Empty
	// and nil mean "compute it".
	JobDescriptionLower string
	SkillsInJobDesc     map[string]struct{}
}

// Result is the outcome of scoring one résumé.
type Result struct {
	Score           float64  `json:"score"`
	MissingCritical []string `json:"missing_skills"`
	FoundSkills     []string `json:"found_skills"`
}

// JobContext holds values derived from a job description once per batch.
type JobContext struct {
	Description      string
	DescriptionLower string
	Skills           map[string]struct{}
}

// Apply copies the precomputed values into the request.
func (jc JobContext) Apply(req Request) Request {
	req.JobDescription = jc.Description
	req.JobDescriptionLower = jc.DescriptionLower
	req.SkillsInJobDesc = jc.Skills
	return req
}

// Scorer is stateless apart from the matcher's pattern cache and is safe for
// concurrent use.
type Scorer struct {
	matcher    *skills.Matcher
	similarity similarity.Provider
	logger     *zap.Logger
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithSimilarity replaces the TF-IDF similarity provider.
func WithSimilarity(p similarity.Provider) Option {
	return func(s *Scorer) {
		s.similarity = p
	}
}

// WithLogger sets the logger used for degraded-input diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a scorer. A nil matcher uses the embedded skill dictionary.
func New(matcher *skills.Matcher, opts ...Option) *Scorer {
	if matcher == nil {
		matcher = skills.NewMatcher(nil)
	}

	s := &Scorer{
		matcher:    matcher,
		similarity: similarity.TFIDF{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Matcher returns the skill matcher in use.
func (s *Scorer) Matcher() *skills.Matcher {
	return s.matcher
}

// Prepare precomputes the job description values reused across résumés.
func (s *Scorer) Prepare(jobDescription string) JobContext {
	lower := strings.ToLower(jobDescription)
	return JobContext{
		Description:      jobDescription,
		DescriptionLower: lower,
		Skills:           s.matcher.SkillsMentionedIn(lower),
	}
}

// Score computes the relevance score of a résumé. It never fails: degraded
// inputs fall back to zero contributions.
func (s *Scorer) Score(req Request) Result {
	jdLower := req.JobDescriptionLower
	if jdLower == "" {
		jdLower = strings.ToLower(req.JobDescription)
	}
	resume := strings.ToLower(req.ResumeText)

	missing := s.missingMustHaves(resume, req.MustHaves)

	cosine, err := s.similarity.Similarity(jdLower, resume)
	if err != nil {
		s.logger.Debug("similarity unavailable, using zero", zap.Error(err))
		cosine = 0
	}
	cosine *= 100

	jdSkills := req.SkillsInJobDesc
	if jdSkills == nil {
		jdSkills = s.matcher.SkillsMentionedIn(jdLower)
	}

	var weighted, maxPossible float64
	found := make([]string, 0)
	for _, entry := range s.matcher.Found(resume) {
		found = append(found, entry.Name)

		points := otherSkillPoints * entry.Weight
		if _, ok := jdSkills[entry.Key()]; ok {
			points = relevantSkillPoints * entry.Weight
		}
		// Both sums grow together, so any match puts the skill part at its
		// ceiling. Kept as is: existing rankings depend on it.
		weighted += points
		maxPossible += points
	}

	var skillScore float64
	if maxPossible > 0 {
		skillScore = weighted / maxPossible * skillShare
	}

	final := cosine*similarityShare + skillScore
	if len(missing) > 0 {
		final *= math.Pow(missingPenalty, float64(len(missing)))
	}

	final += bonus(jdLower, found)

	return Result{
		Score:           round2(clamp(final, 0, maxScore)),
		MissingCritical: missing,
		FoundSkills:     found,
	}
}

func (s *Scorer) missingMustHaves(resume string, mustHaves []string) []string {
	missing := make([]string, 0)
	for _, raw := range mustHaves {
		skill := CleanSkill(raw)
		if skill == "" {
			continue
		}
		if !s.matcher.Contains(resume, skill) {
			missing = append(missing, skill)
		}
	}
	return missing
}

// CleanSkill normalizes a user supplied must-have: surrounding whitespace and
// quote characters are removed and the result is lowercased.
func CleanSkill(raw string) string {
	skill := strings.NewReplacer(`"`, "", `'`, "").Replace(strings.TrimSpace(raw))
	return strings.ToLower(strings.TrimSpace(skill))
}

// ParseMustHaves splits a comma separated list, dropping blank items.
func ParseMustHaves(list string) []string {
	out := make([]string, 0)
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func bonus(jdLower string, found []string) float64 {
	var extra float64

	if strings.Contains(jdLower, "react") && containsFold(found, func(s string) bool { return s == "react" }) {
		extra += reactBonus
	}
	if strings.Contains(jdLower, "full stack") && containsFold(found, func(s string) bool { return strings.Contains(s, "full stack") }) {
		extra += fullStackBonus
	}

	return extra
}

func containsFold(items []string, match func(string) bool) bool {
	for _, item := range items {
		if match(strings.ToLower(item)) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

// round2 rounds to two decimals, exact halves to even.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
