package tokenizer

import (
	"fmt"
	"strings"

	"github.com/go-ego/gse"
	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/config"
)

// Segmenter splits unspaced text into words. Cut returns the single best
// segmentation; CutAll returns every dictionary word, overlaps included.
// *gse.Segmenter satisfies it.
type Segmenter interface {
	Cut(text string, hmm ...bool) []string
	CutAll(text string) []string
}

// NewDictSegmenter returns a gse segmenter loaded from dictionary text, one
// "word frequency [pos]" entry per line.
func NewDictSegmenter(dict string) (Segmenter, error) {
	seg := new(gse.Segmenter)
	seg.SkipLog = true
	if err := seg.LoadDictStr(dict); err != nil {
		return nil, fmt.Errorf("loading segmentation dictionary: %w", err)
	}
	return seg, nil
}

// loadSegmenter loads the dictionary named in cfg, or gse's embedded
// simplified-Chinese dictionary when none is configured.
func loadSegmenter(cfg config.TokenizerConfig) (Segmenter, error) {
	seg := new(gse.Segmenter)
	seg.SkipLog = true
	if cfg.ChineseDict != "" {
		if err := seg.LoadDict(cfg.ChineseDict); err != nil {
			return nil, fmt.Errorf("loading dictionary %s: %w", cfg.ChineseDict, err)
		}
		return seg, nil
	}
	if err := seg.LoadDictEmbed(); err != nil {
		return nil, fmt.Errorf("loading embedded dictionary: %w", err)
	}
	return seg, nil
}

type chinese struct {
	seg  Segmenter
	hmm  bool
	stop map[string]struct{}
}

func newChinese(cfg config.TokenizerConfig, seg Segmenter) (*chinese, error) {
	if seg == nil {
		var err error
		seg, err = loadSegmenter(cfg)
		if err != nil {
			return nil, err
		}
	}
	return &chinese{
		seg:  seg,
		hmm:  cfg.ChineseHMM,
		stop: stopSet(cfg.ChineseStopWords, chineseStopWords),
	}, nil
}

// Tokenize uses precise segmentation; this is the mode the index is built
// with.
func (c *chinese) Tokenize(text string) []Token {
	return c.collect(c.seg.Cut(normalizeCJK(text), c.hmm))
}

func (c *chinese) TokenizeFull(text string) []Token {
	return c.collect(c.seg.CutAll(normalizeCJK(text)))
}

func (c *chinese) collect(pieces []string) []Token {
	tokens := make([]Token, 0, len(pieces))
	for _, piece := range pieces {
		word := strings.TrimSpace(piece)
		if !isWordlike(word) {
			continue
		}
		if _, isStop := c.stop[word]; isStop {
			continue
		}
		tokens = append(tokens, Token{Term: word, Position: len(tokens)})
	}
	return tokens
}

// normalizeCJK folds full-width forms to their canonical equivalents and
// lower-cases embedded Latin words.
func normalizeCJK(text string) string {
	return strings.ToLower(norm.NFKC.String(text))
}
