// Package tokenizer counts tokens with the BPE vocabulary used by the
// embedding model, so every size decision is made in real tokens.
package tokenizer

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the vocabulary of text-embedding-3-small.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens for a span of text.
type Tokenizer interface {
	Count(text string) int
}

// BPE is a Tokenizer backed by a tiktoken encoding.
type BPE struct {
	enc *tiktoken.Tiktoken
}

// New loads the named encoding. An empty name selects DefaultEncoding.
func New(encoding string) (*BPE, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &BPE{enc: enc}, nil
}

// Count returns the number of tokens in text. Special-token markers are
// counted as ordinary text.
func (b *BPE) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(b.enc.EncodeOrdinary(text))
}

// Words counts whitespace-separated words. It is used where a BPE
// vocabulary is not wanted, e.g. deterministic fixtures.
type Words struct{}

// Count returns the number of whitespace-separated fields in text.
func (Words) Count(text string) int {
	return len(strings.Fields(text))
}
