package tokenizer

import (
	"fmt"
	"unicode/utf8"

	"github.com/bbalet/stopwords"
	"github.com/kljensen/snowball"
)

// snowballLanguage pairs the Snowball stemmer name with the ISO code the
// stop-word lists are keyed by.
type snowballLanguage struct {
	stemmer  string
	stopCode string
}

var snowballLanguages = map[Mode]snowballLanguage{
	ModeFrench:    {stemmer: "french", stopCode: "fr"},
	ModeSpanish:   {stemmer: "spanish", stopCode: "es"},
	ModeRussian:   {stemmer: "russian", stopCode: "ru"},
	ModeSwedish:   {stemmer: "swedish", stopCode: "sv"},
	ModeNorwegian: {stemmer: "norwegian", stopCode: "no"},
	ModeHungarian: {stemmer: "hungarian", stopCode: "hu"},
}

type snowballStrategy struct {
	lang   snowballLanguage
	minLen int
	stem   bool
	stop   bool
}

func snowballFactory(lang snowballLanguage) Factory {
	return func(r *Registry) (Strategy, error) {
		// Probe once so an unsupported stemmer fails at lookup, not per word.
		if _, err := snowball.Stem("test", lang.stemmer, false); err != nil {
			return nil, fmt.Errorf("snowball %s: %w", lang.stemmer, err)
		}
		return &snowballStrategy{
			lang:   lang,
			minLen: r.cfg.MinTokenLength,
			stem:   r.cfg.Stem,
			stop:   r.cfg.StopWords,
		}, nil
	}
}

func (s *snowballStrategy) Tokenize(text string) []Token {
	if s.stop {
		text = stopwords.CleanString(text, s.lang.stopCode, false)
	}
	parts := splitWords(text)
	tokens := make([]Token, 0, len(parts))
	for _, word := range parts {
		if utf8.RuneCountInString(word) < s.minLen {
			continue
		}
		if s.stem {
			stemmed, err := snowball.Stem(word, s.lang.stemmer, false)
			if err == nil && stemmed != "" {
				word = stemmed
			}
		}
		tokens = append(tokens, Token{Term: word, Position: len(tokens)})
	}
	return tokens
}
