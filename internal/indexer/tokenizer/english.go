package tokenizer

import (
	"strings"
	"unicode/utf8"

	"github.com/clipperhouse/uax29/v2/words"
	snowballeng "github.com/kljensen/snowball/english"
	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/config"
)

type english struct {
	minLen int
	stem   bool
	stop   map[string]struct{}
}

func newEnglish(cfg config.TokenizerConfig) *english {
	return &english{
		minLen: cfg.MinTokenLength,
		stem:   cfg.Stem,
		stop:   stopSet(cfg.StopWords, englishStopWords),
	}
}

// Tokenize lower-cases text, splits it on UAX#29 word boundaries, removes
// stop-words and applies the Snowball English stemmer.
func (e *english) Tokenize(text string) []Token {
	parts := splitWords(text)
	tokens := make([]Token, 0, len(parts))
	for _, word := range parts {
		if utf8.RuneCountInString(word) < e.minLen {
			continue
		}
		if _, isStop := e.stop[word]; isStop {
			continue
		}
		if e.stem {
			word = snowballeng.Stem(word, false)
		}
		if word == "" {
			continue
		}
		tokens = append(tokens, Token{
			Term:     word,
			Position: len(tokens),
		})
	}
	return tokens
}

// splitWords NFKC-normalises and case-folds text, then returns its UAX#29
// words with punctuation and whitespace segments removed.
func splitWords(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))
	segments := words.FromString(text)
	out := make([]string, 0, len(text)/6+1)
	for segments.Next() {
		w := segments.Value()
		if isWordlike(w) {
			out = append(out, w)
		}
	}
	return out
}
