// Package lexicon holds the word lists that drive insight extraction and
// capsule scoring. Tables are loaded once from TOML and treated as immutable.
package lexicon

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/BurntSushi/toml"
)

// DefaultCategory is the interdisciplinary sentinel: returned when no bucket
// matches, and accepted by persona filtering as "any domain".
const DefaultCategory = "interdisciplinary"

//go:embed lexicon.toml
var defaultTOML []byte

// Terms is a normalized (trimmed, lowercased, non-empty) word list.
type Terms []string

// Dimensions holds the four scoring word lists.
type Dimensions struct {
	Truth        Terms `toml:"truth"`
	Goodness     Terms `toml:"goodness"`
	Beauty       Terms `toml:"beauty"`
	Intelligence Terms `toml:"intelligence"`
}

// Category is one ordered keyword bucket.
type Category struct {
	Name  string `toml:"name"`
	Terms Terms  `toml:"terms"`
}

// Lexicon is the full set of tables.
type Lexicon struct {
	Consensus     Terms      `toml:"consensus"`
	Dissent       Terms      `toml:"dissent"`
	Innovation    Terms      `toml:"innovation"`
	Interrogative Terms      `toml:"interrogative"`
	Significance  Terms      `toml:"significance"`
	Justification Terms      `toml:"justification"`
	Prescriptive  Terms      `toml:"prescriptive"`
	Dimensions    Dimensions `toml:"dimensions"`
	Categories    []Category `toml:"categories"`
}

var (
	defaultOnce sync.Once
	defaultLex  *Lexicon
)

// Default returns the built-in tables.
func Default() *Lexicon {
	defaultOnce.Do(func() {
		lex, err := Parse(defaultTOML)
		if err != nil {
			panic(fmt.Sprintf("lexicon: built-in tables invalid: %v", err))
		}
		defaultLex = lex
	})
	return defaultLex
}

// Load reads tables from a TOML file. An empty path returns Default().
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return Parse(data)
}

// Parse decodes and normalizes TOML tables.
func Parse(data []byte) (*Lexicon, error) {
	var lex Lexicon
	md, err := toml.Decode(string(data), &lex)
	if err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("decode lexicon: unknown keys %v", undecoded)
	}

	lex.normalize()
	if len(lex.Categories) == 0 {
		return nil, fmt.Errorf("lexicon: at least one category is required")
	}
	for i, c := range lex.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("lexicon: category %d has no name", i)
		}
	}
	return &lex, nil
}

func (l *Lexicon) normalize() {
	for _, t := range []*Terms{
		&l.Consensus, &l.Dissent, &l.Innovation, &l.Interrogative,
		&l.Significance, &l.Justification, &l.Prescriptive,
		&l.Dimensions.Truth, &l.Dimensions.Goodness, &l.Dimensions.Beauty, &l.Dimensions.Intelligence,
	} {
		*t = normalizeTerms(*t)
	}
	for i := range l.Categories {
		l.Categories[i].Name = strings.TrimSpace(l.Categories[i].Name)
		l.Categories[i].Terms = normalizeTerms(l.Categories[i].Terms)
	}
}

func normalizeTerms(in Terms) Terms {
	seen := make(map[string]bool, len(in))
	out := make(Terms, 0, len(in))
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Categorize returns the first bucket with a hit in text, else DefaultCategory.
func (l *Lexicon) Categorize(text string) string {
	lower := strings.ToLower(text)
	for _, c := range l.Categories {
		if c.Terms.anyLower(lower) {
			return c.Name
		}
	}
	return DefaultCategory
}

// Any reports whether text contains at least one term.
func (t Terms) Any(text string) bool {
	return t.anyLower(strings.ToLower(text))
}

// Count returns how many distinct terms appear in text.
func (t Terms) Count(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, term := range t {
		if containsTerm(lower, term) {
			n++
		}
	}
	return n
}

func (t Terms) anyLower(lower string) bool {
	for _, term := range t {
		if containsTerm(lower, term) {
			return true
		}
	}
	return false
}

// containsTerm reports whether term occurs in text (both already lowercased).
// An ASCII word character at either edge of the term must not touch another
// ASCII word character in text.
func containsTerm(text, term string) bool {
	if term == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(term)
	last, _ := utf8.DecodeLastRuneInString(term)
	checkStart := isASCIIWord(first)
	checkEnd := isASCIIWord(last)

	offset := 0
	for {
		idx := strings.Index(text[offset:], term)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(term)

		ok := true
		if checkStart && start > 0 {
			prev, _ := utf8.DecodeLastRuneInString(text[:start])
			ok = !isASCIIWord(prev)
		}
		if ok && checkEnd && end < len(text) {
			next, _ := utf8.DecodeRuneInString(text[end:])
			ok = !isASCIIWord(next)
		}
		if ok {
			return true
		}

		_, size := utf8.DecodeRuneInString(text[start:])
		offset = start + size
	}
}

func isASCIIWord(r rune) bool {
	return r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
}
