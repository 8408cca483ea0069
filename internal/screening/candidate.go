package screening

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spigell/cv-screener/internal/scoring"
)

// DefaultShortlistSize is the number of candidates a shortlist holds.
const DefaultShortlistSize = 5

type Candidates struct {
	Items []*Candidate
}

// Candidate is a scored résumé.
type Candidate struct {
	File    string    `json:"filename"`
	Path    string    `json:"-"`
	Score   float64   `json:"score"`
	Missing []string  `json:"missing_skills"`
	Found   []string  `json:"found_skills"`
	AI      *AIReview `json:"ai,omitempty"`
}

// AIReview is the optional LLM opinion attached to a candidate.
type AIReview struct {
	Fit    bool    `json:"fit"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// NewCandidate builds a candidate from a scoring result.
func NewCandidate(path, file string, res scoring.Result) *Candidate {
	return &Candidate{
		File:    file,
		Path:    path,
		Score:   res.Score,
		Missing: res.MissingCritical,
		Found:   res.FoundSkills,
	}
}

func (c *Candidates) Len() int {
	return len(c.Items)
}

// Sort orders candidates by score, highest first; ties keep file name order.
func (c *Candidates) Sort() {
	sort.SliceStable(c.Items, func(i, j int) bool {
		if c.Items[i].Score != c.Items[j].Score {
			return c.Items[i].Score > c.Items[j].Score
		}
		return c.Items[i].File < c.Items[j].File
	})
}

// Shortlist returns up to n best candidates with a positive score. The
// receiver is expected to be sorted.
func (c *Candidates) Shortlist(n int) *Candidates {
	if n <= 0 {
		n = DefaultShortlistSize
	}

	out := &Candidates{}
	for _, candidate := range c.Items {
		if len(out.Items) == n {
			break
		}
		if candidate.Score > 0 {
			out.Items = append(out.Items, candidate)
		}
	}
	return out
}

// Top returns the first n candidates regardless of score.
func (c *Candidates) Top(n int) *Candidates {
	if n < 0 || n > len(c.Items) {
		n = len(c.Items)
	}
	return &Candidates{Items: c.Items[:n]}
}

func (c *Candidates) FindByFile(file string) *Candidate {
	for _, candidate := range c.Items {
		if candidate.File == file {
			return candidate
		}
	}
	return nil
}

// Files returns the file names in the current order.
func (c *Candidates) Files() []string {
	files := make([]string, 0, len(c.Items))
	for _, candidate := range c.Items {
		files = append(files, candidate.File)
	}
	return files
}

// Exclude removes candidates whose file name is listed in files and returns
// the removed names. The remaining order is preserved.
func (c *Candidates) Exclude(files []string) []string {
	drop := make(map[string]struct{}, len(files))
	for _, f := range files {
		drop[f] = struct{}{}
	}

	var excluded []string
	kept := c.Items[:0]
	for _, candidate := range c.Items {
		if _, ok := drop[candidate.File]; ok {
			excluded = append(excluded, candidate.File)
			continue
		}
		kept = append(kept, candidate)
	}
	c.Items = kept

	return excluded
}

// ReportBySkill groups candidate file names by the skills found in them.
func (c *Candidates) ReportBySkill() map[string][]string {
	report := make(map[string][]string)
	for _, candidate := range c.Items {
		for _, skill := range candidate.Found {
			report[skill] = append(report[skill], candidate.File)
		}
	}
	return report
}

// Summary renders one line per candidate.
func (c *Candidates) Summary() []string {
	lines := make([]string, 0, len(c.Items))
	for i, candidate := range c.Items {
		line := fmt.Sprintf("%d. %s  score: %.2f  skills: %s",
			i+1, candidate.File, candidate.Score, strings.Join(candidate.Found, ", "))
		if len(candidate.Missing) > 0 {
			line += fmt.Sprintf("  missing: %s", strings.Join(candidate.Missing, ", "))
		}
		if candidate.AI != nil && candidate.AI.Error == "" {
			line += fmt.Sprintf("  ai: %.2f", candidate.AI.Score)
		}
		lines = append(lines, line)
	}
	return lines
}

// DumpToTmpFile writes the candidates as indented JSON into a new temporary
// file and returns its name.
func (c *Candidates) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "candidates_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(c); err != nil {
		return "", err
	}
	return file.Name(), nil
}
