package screening

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/gofrs/flock"
)

const (
	ExcludeActorUser = "user"
	ExcludeActorAI   = "ai"
)

// Exclusions lists résumés that were already handled and must not be
// shortlisted again.
type Exclusions struct {
	Items []*Exclusion
}

type Exclusion struct {
	File       string
	Score      float64
	Actor      string
	Reason     string `json:",omitempty"`
	ExcludedAt time.Time
}

// ToExclusions converts candidates into exclusion records.
func (c *Candidates) ToExclusions(actor, reason string) *Exclusions {
	excluded := &Exclusions{}
	for _, candidate := range c.Items {
		excluded.Items = append(excluded.Items, &Exclusion{
			File:       candidate.File,
			Score:      candidate.Score,
			Actor:      actor,
			Reason:     reason,
			ExcludedAt: time.Now().UTC(),
		})
	}
	return excluded
}

// LoadExclusions reads an exclusions file. Missing and empty files yield an
// empty list.
func LoadExclusions(path string) (*Exclusions, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Exclusions{}, nil
	}
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return &Exclusions{}, nil
	}

	var excluded Exclusions
	if err := json.Unmarshal(data, &excluded); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &excluded, nil
}

func (e *Exclusions) Append(other *Exclusions) {
	e.Items = append(e.Items, other.Items...)
}

func (e *Exclusions) Files() []string {
	files := make([]string, 0, len(e.Items))
	for _, item := range e.Items {
		files = append(files, item.File)
	}
	return files
}

// ToFile overwrites path with the exclusions as indented JSON.
func (e *Exclusions) ToFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(e)
}

// AppendExclusions adds records to the file at path while holding an
// exclusive lock, so concurrent writers do not lose entries.
func AppendExclusions(path string, add *Exclusions) error {
	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock()

	existing, err := LoadExclusions(path)
	if err != nil {
		return err
	}

	existing.Append(add)
	return existing.ToFile(path)
}
