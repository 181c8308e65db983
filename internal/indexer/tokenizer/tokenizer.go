// Package tokenizer provides text analysis for the search engine.
// It lower-cases input, splits on non-alphanumeric boundaries, removes
// stop-words, and can optionally apply the Snowball English stemmer.
package tokenizer

import (
	"strings"
	"unicode"

	snowballeng "github.com/kljensen/snowball/english"
)

// englishStopWords is the classic English stop set used by Lucene-style
// standard analyzers.
var englishStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for",
	"if", "in", "into", "is", "it", "no", "not", "of", "on", "or",
	"such", "that", "the", "their", "then", "there", "these", "they",
	"this", "to", "was", "will", "with",
}

// EnglishStopWords returns a fresh copy of the default stop set.
func EnglishStopWords() map[string]struct{} {
	set := make(map[string]struct{}, len(englishStopWords))
	for _, w := range englishStopWords {
		set[w] = struct{}{}
	}
	return set
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Analyzer turns raw text into index terms. It is immutable once built
// and safe for concurrent use.
type Analyzer struct {
	stopWords map[string]struct{}
	stem      bool
	minLength int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithStopwords replaces the stop set. Words are lower-cased.
func WithStopwords(words []string) Option {
	return func(a *Analyzer) {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[strings.ToLower(w)] = struct{}{}
		}
		a.stopWords = set
	}
}

// WithoutStopwords disables stop-word removal.
func WithoutStopwords() Option {
	return func(a *Analyzer) {
		a.stopWords = nil
	}
}

// WithStemming toggles Snowball English stemming.
func WithStemming(enabled bool) Option {
	return func(a *Analyzer) {
		a.stem = enabled
	}
}

// WithMinLength drops tokens shorter than n runes. Values below 1 are
// treated as 1.
func WithMinLength(n int) Option {
	return func(a *Analyzer) {
		if n < 1 {
			n = 1
		}
		a.minLength = n
	}
}

// New builds an Analyzer. Without options it lower-cases, splits and
// removes English stop-words; it does not stem.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		stopWords: EnglishStopWords(),
		minLength: 1,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var defaultAnalyzer = New()

// Default returns the shared default Analyzer.
func Default() *Analyzer {
	return defaultAnalyzer
}

// Tokenize analyses text with the default Analyzer.
func Tokenize(text string) []Token {
	return defaultAnalyzer.Tokenize(text)
}

// Tokenize breaks text into lowercased Tokens with stop-words removed.
// Positions count kept tokens only.
func (a *Analyzer) Tokenize(text string) []Token {
	text = strings.ToLower(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]Token, 0, len(words))
	pos := 0
	for _, word := range words {
		if len([]rune(word)) < a.minLength {
			continue
		}
		if _, isStop := a.stopWords[word]; isStop {
			continue
		}
		if a.stem {
			word = snowballeng.Stem(word, false)
			if word == "" {
				continue
			}
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
		pos++
	}
	return tokens
}

// Terms returns only the term strings of Tokenize(text).
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Tokenize(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}
