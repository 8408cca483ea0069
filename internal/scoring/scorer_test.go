package scoring

import (
	"errors"
	"math/rand/v2"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-screener/internal/similarity"
	"github.com/spigell/cv-screener/internal/skills"
)

const (
	caseAJob    = "Need a Python developer with React experience"
	caseAResume = "experienced python react developer, used django and postgresql"
	caseBResume = "java spring boot developer"
)

type fixedSimilarity struct {
	value float64
	err   error
}

func (f fixedSimilarity) Similarity(string, string) (float64, error) {
	return f.value, f.err
}

func newTestScorer(t *testing.T, sim similarity.Provider, entries ...skills.Entry) *Scorer {
	t.Helper()

	dict, err := skills.New(entries)
	require.NoError(t, err)
	return New(skills.NewMatcher(dict), WithSimilarity(sim))
}

func TestScoreCaseA(t *testing.T) {
	t.Parallel()

	s := New(nil)
	res := s.Score(Request{JobDescription: caseAJob, ResumeText: caseAResume, MustHaves: []string{"python"}})

	assert.Empty(t, res.MissingCritical)
	assert.Subset(t, res.FoundSkills, []string{"python", "react", "django", "postgresql"})
	assert.Greater(t, res.Score, 60.0, "skill share, react bonus and a positive similarity")
	assert.LessOrEqual(t, res.Score, 100.0)
}

func TestScoreCaseB(t *testing.T) {
	t.Parallel()

	s := New(nil)
	withoutMustHave := s.Score(Request{JobDescription: caseAJob, ResumeText: caseBResume})
	res := s.Score(Request{JobDescription: caseAJob, ResumeText: caseBResume, MustHaves: []string{"python"}})

	assert.Equal(t, []string{"python"}, res.MissingCritical)
	assert.Equal(t, []string{"java", "spring boot", "spring"}, res.FoundSkills)
	assert.InDelta(t, withoutMustHave.Score*0.2, res.Score, 0.01)
	assert.Less(t, res.Score, withoutMustHave.Score)
}

func TestScoreMissingMustHaves(t *testing.T) {
	t.Parallel()

	s := New(nil)
	res := s.Score(Request{
		JobDescription: "backend engineer",
		ResumeText:     "python developer with flask",
		MustHaves:      []string{"Python", "Django"},
	})

	assert.Equal(t, []string{"django"}, res.MissingCritical)
}

func TestScoreMustHaveCleaning(t *testing.T) {
	t.Parallel()

	s := New(nil)
	res := s.Score(Request{
		JobDescription: "backend engineer",
		ResumeText:     "python developer",
		MustHaves:      []string{`  "Python" `, "'Kafka'", "   ", `""`, " Go "},
	})

	assert.Equal(t, []string{"kafka", "go"}, res.MissingCritical)
}

func TestScorePenaltyIsMonotonic(t *testing.T) {
	t.Parallel()

	s := New(nil)
	mustHaves := []string{"python", "kafka", "rust", "terraform"}

	prev := s.Score(Request{JobDescription: caseAJob, ResumeText: caseAResume}).Score
	for i := 1; i <= len(mustHaves); i++ {
		res := s.Score(Request{JobDescription: caseAJob, ResumeText: caseAResume, MustHaves: mustHaves[:i]})
		assert.LessOrEqual(t, res.Score, prev, "must-haves %v", mustHaves[:i])
		prev = res.Score
	}
}

func TestScorePenaltyDecay(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t, fixedSimilarity{value: 0.4}, skills.Entry{Name: "python", Weight: 1.3})

	base := s.Score(Request{JobDescription: "python", ResumeText: "python"})
	require.Equal(t, 70.0, base.Score)

	one := s.Score(Request{JobDescription: "python", ResumeText: "python", MustHaves: []string{"kafka"}})
	two := s.Score(Request{JobDescription: "python", ResumeText: "python", MustHaves: []string{"kafka", "scala"}})

	assert.Equal(t, 14.0, one.Score)
	assert.Equal(t, 2.8, two.Score)
}

func TestScoreReactBonus(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t, fixedSimilarity{value: 0.2},
		skills.Entry{Name: "react", Weight: 1.3},
		skills.Entry{Name: "vue", Weight: 1.2},
	)

	without := s.Score(Request{JobDescription: "frontend developer", ResumeText: "react and vue"})
	with := s.Score(Request{JobDescription: "React frontend developer", ResumeText: "react and vue"})

	assert.Equal(t, 60.0, without.Score)
	assert.Equal(t, 70.0, with.Score)
}

func TestScoreFullStackBonus(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t, fixedSimilarity{value: 0.2},
		skills.Entry{Name: "full stack developer", Weight: 1.3},
	)

	res := s.Score(Request{JobDescription: "full stack role", ResumeText: "senior full stack developer"})
	assert.Equal(t, 65.0, res.Score)

	res = s.Score(Request{JobDescription: "backend role", ResumeText: "senior full stack developer"})
	assert.Equal(t, 60.0, res.Score)
}

func TestScoreIsClamped(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t, fixedSimilarity{value: 1},
		skills.Entry{Name: "react", Weight: 1.3},
		skills.Entry{Name: "full stack developer", Weight: 1.3},
	)

	res := s.Score(Request{
		JobDescription: "react full stack developer",
		ResumeText:     "react full stack developer",
	})
	assert.Equal(t, 100.0, res.Score)
}

func TestScoreWithoutSkillsIsPureSimilarity(t *testing.T) {
	t.Parallel()

	s := newTestScorer(t, fixedSimilarity{value: 0.333}, skills.Entry{Name: "cobol", Weight: 1})

	res := s.Score(Request{JobDescription: "anything", ResumeText: "nothing relevant"})
	assert.Equal(t, 16.65, res.Score)
	assert.Empty(t, res.FoundSkills)
}

func TestScoreSimilarityFailureDegrades(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	dict, err := skills.New([]skills.Entry{{Name: "python", Weight: 1.3}})
	require.NoError(t, err)

	s := New(skills.NewMatcher(dict),
		WithSimilarity(fixedSimilarity{err: errors.New("boom")}),
		WithLogger(zap.New(core)),
	)

	res := s.Score(Request{JobDescription: "python", ResumeText: "python"})
	assert.Equal(t, 50.0, res.Score)
	assert.Equal(t, 1, logs.FilterMessage("similarity unavailable, using zero").Len())
}

func TestScoreDegenerateInput(t *testing.T) {
	t.Parallel()

	s := New(nil)
	res := s.Score(Request{JobDescription: "", ResumeText: "", MustHaves: nil})

	assert.Equal(t, 0.0, res.Score)
	assert.Empty(t, res.MissingCritical)
	assert.Empty(t, res.FoundSkills)
}

func TestScoreIsIdempotent(t *testing.T) {
	t.Parallel()

	s := New(nil)
	req := Request{JobDescription: caseAJob, ResumeText: caseAResume, MustHaves: []string{"python", "docker"}}

	first := s.Score(req)
	second := s.Score(req)
	assert.Equal(t, first, second)
}

func TestScorePrecomputeEquivalence(t *testing.T) {
	t.Parallel()

	s := New(nil)
	resumes := []string{caseAResume, caseBResume, "devops engineer with docker, kubernetes and aws", ""}

	jc := s.Prepare(caseAJob)
	for _, resume := range resumes {
		req := Request{JobDescription: caseAJob, ResumeText: resume, MustHaves: []string{"python"}}
		assert.Equal(t, s.Score(req), s.Score(jc.Apply(req)), resume)
	}

	manual := Request{
		JobDescription:      caseAJob,
		ResumeText:          caseAResume,
		JobDescriptionLower: strings.ToLower(caseAJob),
		SkillsInJobDesc:     s.Matcher().SkillsMentionedIn(caseAJob),
	}
	assert.Equal(t, s.Score(Request{JobDescription: caseAJob, ResumeText: caseAResume}), s.Score(manual))
}

func TestScoreRangeInvariant(t *testing.T) {
	t.Parallel()

	vocabulary := []string{
		"python", "react", "full", "stack", "developer", "java", "go", "mango",
		"docker", "kubernetes", "aws", "sql", "postgresql", "the", "and", "with",
		"c++", "node.js", "r", "ml", "ai", "leadership", "figma", ",", ".",
	}
	rng := rand.New(rand.NewPCG(1, 2))
	text := func(n int) string {
		words := make([]string, n)
		for i := range words {
			words[i] = vocabulary[rng.IntN(len(vocabulary))]
		}
		return strings.Join(words, " ")
	}

	s := New(nil)
	for i := 0; i < 300; i++ {
		mustHaves := strings.Fields(text(rng.IntN(4)))
		res := s.Score(Request{
			JobDescription: text(rng.IntN(30)),
			ResumeText:     text(rng.IntN(80)),
			MustHaves:      mustHaves,
		})
		require.GreaterOrEqual(t, res.Score, 0.0)
		require.LessOrEqual(t, res.Score, 100.0)

		dict := s.Matcher().Dictionary()
		for _, skill := range res.FoundSkills {
			require.True(t, dict.Has(skill))
		}
	}
}

func TestScoreConcurrent(t *testing.T) {
	t.Parallel()

	s := New(nil)
	jc := s.Prepare(caseAJob)
	want := s.Score(Request{JobDescription: caseAJob, ResumeText: caseAResume})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := s.Score(jc.Apply(Request{ResumeText: caseAResume}))
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestParseMustHaves(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"python", "django", "rest api"}, ParseMustHaves(" python, django,, rest api ,"))
	assert.Empty(t, ParseMustHaves(""))
}

func TestScoreIgnoresSkillsInsideNonASCIIWords(t *testing.T) {
	t.Parallel()

	s := New(nil)
	res := s.Score(Request{
		JobDescription: "python developer",
		ResumeText:     "опытpython разработчик, ájava",
		MustHaves:      []string{"python"},
	})

	assert.Equal(t, []string{"python"}, res.MissingCritical)
	assert.Empty(t, res.FoundSkills)
	assert.Less(t, res.Score, 50.0)
}

func TestRound2TiesToEven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want float64
	}{
		{in: 0.125, want: 0.12},
		{in: 0.375, want: 0.38},
		{in: 12.5, want: 12.5},
		{in: 72.456, want: 72.46},
		{in: 0, want: 0},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, round2(tt.in), "round2(%v)", tt.in)
	}
}
