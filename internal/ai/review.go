// Package ai describes optional LLM reviews of screened candidates.
package ai

import "context"

// Assessment is a provider's opinion about one résumé.
type Assessment struct {
	Fit    bool
	Score  float64
	Reason string
	Raw    string
}

// ReviewRequest carries everything a provider sees about a candidate.
type ReviewRequest struct {
	File           string
	JobDescription string
	MustHaves      []string
	Resume         string
	// Score is the deterministic score the candidate already received.
	Score float64
}

type Reviewer interface {
	Review(ctx context.Context, req ReviewRequest) (*Assessment, error)
}
