// Package parser turns a raw query into the bag of terms the ranker scores.
// Queries carry no operators: every word is tokenized with the index's
// language mode and repeated terms count once.
package parser

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/ranker"
)

type QueryPlan struct {
	Terms    []string       `json:"terms"`
	Mode     tokenizer.Mode `json:"mode"`
	RawQuery string         `json:"query"`
}

func (p *QueryPlan) Empty() bool {
	return len(p.Terms) == 0
}

// Parse tokenizes query with the strategy registered for mode.
func Parse(reg *tokenizer.Registry, query string, mode tokenizer.Mode) (*QueryPlan, error) {
	plan := &QueryPlan{
		Terms:    make([]string, 0),
		Mode:     mode,
		RawQuery: query,
	}
	if strings.TrimSpace(query) == "" {
		// Still resolve the mode so an unknown one is reported.
		if _, err := reg.Lookup(mode); err != nil {
			return nil, err
		}
		return plan, nil
	}
	tokens, err := reg.Tokenize(query, mode)
	if err != nil {
		return nil, err
	}
	plan.Terms = ranker.Distinct(tokenizer.Terms(tokens))
	return plan, nil
}

// FromTerms builds a plan from terms that were tokenized elsewhere. They are
// used as given apart from dropping duplicates and empty strings.
func FromTerms(terms []string, mode tokenizer.Mode) *QueryPlan {
	return &QueryPlan{
		Terms:    ranker.Distinct(terms),
		Mode:     mode,
		RawQuery: strings.Join(terms, " "),
	}
}
