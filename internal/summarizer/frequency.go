// Package summarizer condenses retrieved filing passages into a few
// representative sentences.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// DefaultSentences is used when a caller asks for zero sentences.
const DefaultSentences = 5

var (
	tokenRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	// A sentence ends at . ! or ? followed by whitespace.
	sentenceEndRe = regexp.MustCompile(`[.!?]["')\]]?\s+`)
	markerRe      = regexp.MustCompile(`\[(?:TABLE_START|TABLE_END|PAGE BREAK)\]`)
)

// Frequency ranks sentences by the normalised frequency of their
// non-stopword tokens and keeps the best ones in document order.
type Frequency struct {
	stopwords map[string]struct{}
}

func NewFrequency() *Frequency {
	return &Frequency{stopwords: defaultStopwords()}
}

// Summarize returns up to maxSentences sentences of text, in their original
// order, joined by single spaces.
func (s *Frequency) Summarize(text string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = DefaultSentences
	}
	sentences := splitSentences(markerRe.ReplaceAllString(text, " "))
	if len(sentences) <= maxSentences {
		return strings.Join(sentences, " ")
	}

	freq := map[string]float64{}
	for _, sent := range sentences {
		for _, tok := range s.tokens(sent) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(sentences))
	for i, sent := range sentences {
		toks := s.tokens(sent)
		sum := 0.0
		for _, tok := range toks {
			sum += freq[tok] / maxF
		}
		// Normalised by sqrt(length) so long sentences do not always win.
		if len(toks) > 0 {
			sum /= math.Sqrt(float64(len(toks)))
		}
		scores[i] = scored{i, sum}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	selected := make([]int, maxSentences)
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = sentences[idx]
	}
	return strings.Join(out, " ")
}

func (s *Frequency) tokens(text string) []string {
	all := tokenRe.FindAllString(strings.ToLower(text), -1)
	out := all[:0]
	for _, t := range all {
		if _, stop := s.stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		out = appendSentence(out, text[last:loc[1]])
		last = loc[1]
	}
	return appendSentence(out, text[last:])
}

func appendSentence(out []string, s string) []string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return out
	}
	return append(out, s)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "should", "now",
		"we", "our", "us", "may", "also", "other", "including", "which", "has", "have", "had", "not", "any", "each",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
