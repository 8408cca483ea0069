package skills

import (
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
	"unicode/utf8"
)

// extraPatterns leaves room in the cache for must-have skills that are not
// part of the dictionary.
const extraPatterns = 256

// Matcher tests whole-word presence of skills in text. Compiled patterns are
// memoized per skill string; it is safe for concurrent use.
type Matcher struct {
	dict *Dictionary

	patterns sync.Map // string -> *regexp.Regexp
	cached   atomic.Int64
	limit    int64
}

// NewMatcher creates a matcher over the given dictionary. A nil dictionary
// means the embedded default.
func NewMatcher(dict *Dictionary) *Matcher {
	if dict == nil {
		dict = Default()
	}
	return &Matcher{
		dict:  dict,
		limit: int64(dict.Len() + extraPatterns),
	}
}

// Dictionary returns the dictionary the matcher scans with.
func (m *Matcher) Dictionary() *Dictionary {
	return m.dict
}

// Pattern returns the compiled whole-word matcher for the exact skill string.
// Matching is case-sensitive: callers lowercase both the skill and the text.
func (m *Matcher) Pattern(skill string) *regexp.Regexp {
	if p, ok := m.patterns.Load(skill); ok {
		return p.(*regexp.Regexp)
	}

	compiled := compile(skill)

	// Past the limit patterns are still usable, just not retained.
	if m.cached.Load() >= m.limit {
		return compiled
	}

	actual, loaded := m.patterns.LoadOrStore(skill, compiled)
	if !loaded {
		m.cached.Add(1)
	}
	return actual.(*regexp.Regexp)
}

// CacheSize returns the number of retained patterns.
func (m *Matcher) CacheSize() int {
	return int(m.cached.Load())
}

// Contains reports whether skill occurs in text as a delimited token or phrase.
func (m *Matcher) Contains(text, skill string) bool {
	return m.Pattern(skill).MatchString(text)
}

// Found returns the dictionary entries present in text, in dictionary order.
// Skills shorter than two characters are never reported.
func (m *Matcher) Found(text string) []Entry {
	lower := strings.ToLower(text)

	var found []Entry
	for _, e := range m.dict.entries {
		if !e.Scannable() {
			continue
		}
		if m.Contains(lower, e.key) {
			found = append(found, e)
		}
	}
	return found
}

// SkillsMentionedIn returns the set of lowercased dictionary skills found in text.
func (m *Matcher) SkillsMentionedIn(text string) map[string]struct{} {
	found := m.Found(text)
	set := make(map[string]struct{}, len(found))
	for _, e := range found {
		set[e.key] = struct{}{}
	}
	return set
}

const (
	wordClass    = `[\p{L}\p{N}_]`
	nonWordClass = `[^\p{L}\p{N}_]`
)

// compile builds a Unicode-aware word boundary around skill. RE2's \b only
// knows ASCII word characters, so each edge is spelled out: a word rune at the
// edge needs a non-word neighbour (or the text edge), a symbol at the edge
// needs a word neighbour. Neighbours are consumed, which is fine for
// MatchString.
func compile(skill string) *regexp.Regexp {
	if skill == "" {
		return regexp.MustCompile(`\b`)
	}

	first, _ := utf8.DecodeRuneInString(skill)
	last, _ := utf8.DecodeLastRuneInString(skill)

	var b strings.Builder
	if isWordRune(first) {
		b.WriteString(`(?:^|` + nonWordClass + `)`)
	} else {
		b.WriteString(wordClass)
	}
	b.WriteString(regexp.QuoteMeta(skill))
	if isWordRune(last) {
		b.WriteString(`(?:$|` + nonWordClass + `)`)
	} else {
		b.WriteString(wordClass)
	}
	return regexp.MustCompile(b.String())
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r)
}
