package gemini

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/cv-screener/internal/ai"
)

type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
	calls      int
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.lastPrompt = prompt
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubGenerator) Model() string {
	return "stub-model"
}

func sampleRequest() ai.ReviewRequest {
	return ai.ReviewRequest{
		File:           "jane.pdf",
		JobDescription: "Backend engineer with Python and Kafka",
		MustHaves:      []string{"python", "kafka"},
		Resume:         "python developer, kafka streams, postgresql",
		Score:          72.5,
	}
}

func TestReviewerReview(t *testing.T) {
	stub := &stubGenerator{response: `{"fit": true, "score": 0.9, "reason": "Matches skills"}`}
	reviewer := NewReviewer(stub, ReviewerConfig{MinimumFitScore: 0.5}, zap.NewNop())

	assessment, err := reviewer.Review(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !assessment.Fit {
		t.Fatalf("expected fit to be true")
	}
	if assessment.Score != 0.9 {
		t.Fatalf("expected score 0.9, got %v", assessment.Score)
	}
	if assessment.Reason != "Matches skills" {
		t.Fatalf("unexpected reason: %q", assessment.Reason)
	}
	if assessment.Raw != stub.response {
		t.Fatalf("expected raw response to be kept")
	}

	for _, want := range []string{
		"Backend engineer with Python and Kafka",
		"Must-have skills:\npython, kafka",
		"Keyword screening score (0-100): 72.50",
		"Résumé (jane.pdf):\npython developer, kafka streams, postgresql",
	} {
		if !strings.Contains(stub.lastPrompt, want) {
			t.Fatalf("prompt is missing %q:\n%s", want, stub.lastPrompt)
		}
	}
	if strings.Contains(stub.lastPrompt, "{{") {
		t.Fatalf("prompt has unreplaced placeholders:\n%s", stub.lastPrompt)
	}
}

func TestReviewerNoMustHaves(t *testing.T) {
	stub := &stubGenerator{response: `{"fit": true, "score": 1}`}
	reviewer := NewReviewer(stub, ReviewerConfig{}, nil)

	req := sampleRequest()
	req.MustHaves = nil
	if _, err := reviewer.Review(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stub.lastPrompt, "Must-have skills:\nnone") {
		t.Fatalf("expected none placeholder:\n%s", stub.lastPrompt)
	}
}

func TestReviewerThreshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	stub := &stubGenerator{response: "```json\n{\"fit\": true, \"score\": 0.3, \"reason\": \"Weak\"}\n```"}
	reviewer := NewReviewer(stub, ReviewerConfig{MinimumFitScore: 0.5}, zap.New(core))

	assessment, err := reviewer.Review(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assessment.Fit {
		t.Fatalf("expected fit to be false due to threshold")
	}

	entries := logs.FilterMessage("set fit to false by score threshold").All()
	if len(entries) != 1 {
		t.Fatalf("expected threshold log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["ai_provider"] != ProviderName || fields["ai_model"] != "stub-model" {
		t.Fatalf("expected provider fields, got %v", fields)
	}
}

func TestReviewerRejectsEmptyInput(t *testing.T) {
	stub := &stubGenerator{response: `{}`}
	reviewer := NewReviewer(stub, ReviewerConfig{}, nil)

	req := sampleRequest()
	req.Resume = "  "
	if _, err := reviewer.Review(context.Background(), req); err == nil {
		t.Fatal("expected error for empty resume")
	}

	req = sampleRequest()
	req.JobDescription = ""
	if _, err := reviewer.Review(context.Background(), req); err == nil {
		t.Fatal("expected error for empty job description")
	}

	if stub.calls != 0 {
		t.Fatalf("generator must not be called, got %d calls", stub.calls)
	}
}

func TestReviewerGeneratorError(t *testing.T) {
	stub := &stubGenerator{err: errors.New("boom")}
	reviewer := NewReviewer(stub, ReviewerConfig{}, nil)

	if _, err := reviewer.Review(context.Background(), sampleRequest()); err == nil {
		t.Fatal("expected generator error")
	}
}

func TestReviewerRateLimitHonoursContext(t *testing.T) {
	stub := &stubGenerator{response: `{"fit": true, "score": 1}`}
	reviewer := NewReviewer(stub, ReviewerConfig{RequestsPerSecond: 0.001}, nil)

	if _, err := reviewer.Review(context.Background(), sampleRequest()); err != nil {
		t.Fatalf("first request should pass: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := reviewer.Review(ctx, sampleRequest()); err == nil {
		t.Fatal("expected rate limiter error")
	}
	if stub.calls != 1 {
		t.Fatalf("expected a single generator call, got %d", stub.calls)
	}
}

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		want    ai.Assessment
		wantErr bool
	}{
		{
			name: "plain",
			raw:  `{"fit": true, "score": 0.8, "reason": " ok "}`,
			want: ai.Assessment{Fit: true, Score: 0.8, Reason: "ok"},
		},
		{
			name: "fenced",
			raw:  "```json\n{\"fit\": false, \"score\": 0.1}\n```",
			want: ai.Assessment{Fit: false, Score: 0.1},
		},
		{
			name: "strings",
			raw:  `{"fit": "yes", "score": "0.75", "reason": "fine"}`,
			want: ai.Assessment{Fit: true, Score: 0.75, Reason: "fine"},
		},
		{
			name: "numeric fit and structured reason",
			raw:  `{"fit": 1, "score": 1, "reason": ["python", "kafka"]}`,
			want: ai.Assessment{Fit: true, Score: 1, Reason: `["python","kafka"]`},
		},
		{
			name: "empty score",
			raw:  `{"fit": "no", "score": ""}`,
			want: ai.Assessment{},
		},
		{
			name:    "not json",
			raw:     "I think they fit",
			wantErr: true,
		},
		{
			name:    "unparseable score",
			raw:     `{"fit": true, "score": "high"}`,
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseResponse(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, *got)
			}
		})
	}
}

func TestBuildPromptTruncatesResume(t *testing.T) {
	req := sampleRequest()
	req.Resume = strings.Repeat("я", maxResumeRunes+100)

	prompt := buildPrompt(req)
	if strings.Contains(prompt, strings.Repeat("я", maxResumeRunes+1)) {
		t.Fatal("expected resume to be truncated")
	}
	if !strings.Contains(prompt, strings.Repeat("я", maxResumeRunes)) {
		t.Fatal("expected truncated resume to be present")
	}
}
