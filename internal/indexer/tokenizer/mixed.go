package tokenizer

import (
	"unicode"
)

// mixed handles text that interleaves CJK and Latin (or other) scripts. It
// splits the text into script runs and hands each run to the matching
// strategy, keeping the runs in their original order.
type mixed struct {
	cjk   Strategy
	other Strategy
}

type scriptRun struct {
	text string
	cjk  bool
}

func (m *mixed) Tokenize(text string) []Token {
	return m.tokenize(text, false)
}

func (m *mixed) TokenizeFull(text string) []Token {
	return m.tokenize(text, true)
}

func (m *mixed) tokenize(text string, full bool) []Token {
	var tokens []Token
	for _, run := range splitScriptRuns(text) {
		var part []Token
		switch {
		case !run.cjk:
			part = m.other.Tokenize(run.text)
		case full:
			if fs, ok := m.cjk.(FullSegmenter); ok {
				part = fs.TokenizeFull(run.text)
			} else {
				part = m.cjk.Tokenize(run.text)
			}
		default:
			part = m.cjk.Tokenize(run.text)
		}
		for _, t := range part {
			tokens = append(tokens, Token{Term: t.Term, Position: len(tokens)})
		}
	}
	if tokens == nil {
		tokens = []Token{}
	}
	return tokens
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r)
}

// splitScriptRuns cuts text wherever it switches between CJK and non-CJK
// characters.
func splitScriptRuns(text string) []scriptRun {
	var runs []scriptRun
	start := 0
	inCJK := false
	for i, r := range text {
		c := isCJK(r)
		if i == 0 {
			inCJK = c
			continue
		}
		if c != inCJK {
			runs = append(runs, scriptRun{text: text[start:i], cjk: inCJK})
			start = i
			inCJK = c
		}
	}
	if start < len(text) {
		runs = append(runs, scriptRun{text: text[start:], cjk: inCJK})
	}
	return runs
}
