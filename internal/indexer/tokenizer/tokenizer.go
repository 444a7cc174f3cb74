// Package tokenizer turns raw text into normalised terms. Each language mode
// (english, chinese, mixed and the Snowball languages) is a Strategy held in
// a Registry; the index records the mode it was built with so queries are
// tokenized the same way.
package tokenizer

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
)

// Mode names a language strategy.
type Mode string

const (
	ModeEnglish   Mode = "english"
	ModeChinese   Mode = "chinese"
	ModeMixed     Mode = "mixed"
	ModeFrench    Mode = "french"
	ModeSpanish   Mode = "spanish"
	ModeRussian   Mode = "russian"
	ModeSwedish   Mode = "swedish"
	ModeNorwegian Mode = "norwegian"
	ModeHungarian Mode = "hungarian"
)

// ParseMode folds case and surrounding space. It does not check that the
// mode is registered.
func ParseMode(s string) Mode {
	return Mode(strings.ToLower(strings.TrimSpace(s)))
}

// Token represents a single normalised term and its position in the
// tokenized output.
type Token struct {
	Term     string
	Position int
}

// Strategy tokenizes text for one language mode. Implementations must be
// deterministic and safe for concurrent use.
type Strategy interface {
	Tokenize(text string) []Token
}

// FullSegmenter is implemented by strategies that can also produce an
// exhaustive segmentation in which words may overlap.
type FullSegmenter interface {
	TokenizeFull(text string) []Token
}

// Factory builds a Strategy on first use.
type Factory func(r *Registry) (Strategy, error)

type entry struct {
	once     sync.Once
	factory  Factory
	strategy Strategy
	err      error
}

// Registry maps modes to strategies. Strategies are constructed lazily, once,
// so a process that never sees Chinese text never loads a dictionary.
type Registry struct {
	mu        sync.RWMutex
	entries   map[Mode]*entry
	cfg       config.TokenizerConfig
	segmenter Segmenter
}

// Option customises a Registry.
type Option func(*Registry)

// WithSegmenter replaces the dictionary-backed Chinese segmenter.
func WithSegmenter(seg Segmenter) Option {
	return func(r *Registry) {
		r.segmenter = seg
	}
}

// NewRegistry returns a Registry with every built-in mode registered.
func NewRegistry(cfg config.TokenizerConfig, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[Mode]*entry),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.Register(ModeEnglish, func(r *Registry) (Strategy, error) {
		return newEnglish(r.cfg), nil
	})
	for mode, lang := range snowballLanguages {
		r.Register(mode, snowballFactory(lang))
	}
	r.Register(ModeChinese, func(r *Registry) (Strategy, error) {
		return newChinese(r.cfg, r.segmenter)
	})
	r.Register(ModeMixed, func(r *Registry) (Strategy, error) {
		cjk, err := r.Lookup(ModeChinese)
		if err != nil {
			return nil, err
		}
		other, err := r.Lookup(ModeEnglish)
		if err != nil {
			return nil, err
		}
		return &mixed{cjk: cjk, other: other}, nil
	})
	return r
}

// Register adds or replaces the strategy for mode.
func (r *Registry) Register(mode Mode, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[mode] = &entry{factory: factory}
}

// RegisterStrategy adds a ready-made strategy.
func (r *Registry) RegisterStrategy(mode Mode, s Strategy) {
	r.Register(mode, func(*Registry) (Strategy, error) { return s, nil })
}

// Lookup resolves the strategy for mode, building it on first use.
func (r *Registry) Lookup(mode Mode) (Strategy, error) {
	r.mu.RLock()
	e, ok := r.entries[mode]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrUnsupportedLanguage, http.StatusBadRequest,
			"no tokenizer registered for mode %q", mode)
	}
	e.once.Do(func() {
		e.strategy, e.err = e.factory(r)
		if e.err != nil {
			e.err = fmt.Errorf("initialising %s tokenizer: %w", mode, e.err)
		}
	})
	return e.strategy, e.err
}

// Modes lists the registered modes in name order.
func (r *Registry) Modes() []Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	modes := make([]Mode, 0, len(r.entries))
	for m := range r.entries {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}

// Tokenize breaks text into terms using the strategy registered for mode.
// Empty text yields an empty slice.
func (r *Registry) Tokenize(text string, mode Mode) ([]Token, error) {
	s, err := r.Lookup(mode)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return []Token{}, nil
	}
	return s.Tokenize(text), nil
}

// Segment is Tokenize with a choice of segmentation: full=true asks for the
// exhaustive, overlapping segmentation, which only CJK-aware modes provide.
func (r *Registry) Segment(text string, mode Mode, full bool) ([]Token, error) {
	if !full {
		return r.Tokenize(text, mode)
	}
	s, err := r.Lookup(mode)
	if err != nil {
		return nil, err
	}
	fs, ok := s.(FullSegmenter)
	if !ok {
		return nil, apperrors.Invalid("mode", "mode %q does not support full segmentation", mode)
	}
	if strings.TrimSpace(text) == "" {
		return []Token{}, nil
	}
	return fs.TokenizeFull(text), nil
}

// Terms returns the term strings of tokens in order.
func Terms(tokens []Token) []string {
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}

// isWordlike reports whether s carries at least one letter or digit, which
// drops the whitespace and punctuation segments word breakers emit.
func isWordlike(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func stopSet(enabled bool, words map[string]struct{}) map[string]struct{} {
	if !enabled {
		return nil
	}
	return words
}
