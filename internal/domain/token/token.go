// Package token provides deterministic term extraction for mixed-script
// text and the per-query corpus statistics required by BM25.
//
// Latin-script runs become case-folded words of length >= 2 runes. CJK runs
// become overlapping character n-grams of length 2-4 (whitespace-delimited
// tokenization is meaningless for unsegmented scripts). Digit runs are kept
// as words so that year-like tokens remain matchable.
package token

import "unicode"

// n-gram window for unsegmented (CJK) runs.
const (
	minNGram = 2
	maxNGram = 4
)

// minWordLen is the minimum rune length of a Latin/digit token.
const minWordLen = 2

// Tokenize splits text into scorable terms. It never fails; empty or
// non-lexical input yields an empty slice.
func Tokenize(text string) []string {
	var (
		tokens []string
		word   []rune // current Latin/digit word
		run    []rune // current CJK run
	)

	flushWord := func() {
		if len(word) >= minWordLen {
			tokens = append(tokens, string(word))
		}
		word = word[:0]
	}
	flushRun := func() {
		tokens = append(tokens, ngrams(run)...)
		run = run[:0]
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flushWord()
			run = append(run, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			flushRun()
			word = append(word, unicode.ToLower(r))
		default:
			flushWord()
			flushRun()
		}
	}
	flushWord()
	flushRun()

	return tokens
}

// ngrams emits every substring of length 2-4 over a CJK run, sliding by one
// character with no gaps. A single-character run is emitted as-is so that
// one-character queries stay matchable.
func ngrams(run []rune) []string {
	if len(run) == 0 {
		return nil
	}
	if len(run) == 1 {
		return []string{string(run)}
	}
	var out []string
	for n := minNGram; n <= maxNGram; n++ {
		for i := 0; i+n <= len(run); i++ {
			out = append(out, string(run[i:i+n]))
		}
	}
	return out
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

// Corpus holds per-query aggregate statistics over the current candidate
// set. Recomputed every query, never cached across queries.
type Corpus struct {
	DocumentCount    int
	AverageDocLength float64
	// DocFrequency maps term -> number of documents containing it.
	DocFrequency map[string]int
}

// BuildCorpus accumulates corpus statistics from already-tokenized
// documents. Zero-length documents contribute zero-length entries.
func BuildCorpus(docs [][]string) Corpus {
	c := Corpus{
		DocumentCount: len(docs),
		DocFrequency:  make(map[string]int),
	}
	if len(docs) == 0 {
		return c
	}

	total := 0
	seen := make(map[string]struct{})
	for _, toks := range docs {
		total += len(toks)
		clear(seen)
		for _, t := range toks {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			c.DocFrequency[t]++
		}
	}
	c.AverageDocLength = float64(total) / float64(len(docs))
	return c
}

// TermFrequencies counts term occurrences within one tokenized document.
func TermFrequencies(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}
