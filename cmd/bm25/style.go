package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/ranker"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	rankStyle   = lipgloss.NewStyle().Faint(true).Width(4).Align(lipgloss.Right)
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Width(8)
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Width(10)
	termStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	labelStyle  = lipgloss.NewStyle().Faint(true).Width(18)
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

const snippetWidth = 72

func renderResults(w io.Writer, query string, results []indexer.Result) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d result(s) for %q", len(results), query)))
	for i, r := range results {
		line := rankStyle.Render(fmt.Sprintf("%d.", i+1)) + " " +
			idStyle.Render(fmt.Sprintf("doc %d", r.DocID)) +
			scoreStyle.Render(fmt.Sprintf("%.4f", r.Score))
		if r.Text != "" {
			line += " " + snippet(r.Text)
		}
		fmt.Fprintln(w, line)
	}
}

func renderExplanation(w io.Writer, ex ranker.Explanation) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("doc %d scores %.6f", ex.DocID, ex.Score)))
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("length %d, avg %.3f, k1 %g, b %g", ex.DocLength, ex.AvgDocLength, ex.K1, ex.B)))
	for _, t := range ex.Terms {
		fmt.Fprintf(w, "  %s df=%d idf=%.4f tf=%d → %.6f\n",
			termStyle.Render(t.Term), t.DocFreq, t.IDF, t.TermFreq, t.Contribution)
	}
}

func renderStats(w io.Writer, st index.Stats, top []termCount) {
	fmt.Fprintln(w, headerStyle.Render("index"))
	rows := [][2]string{
		{"mode", st.Mode},
		{"documents", fmt.Sprint(st.TotalDocs)},
		{"vocabulary", fmt.Sprint(st.VocabularySize)},
		{"tokens", fmt.Sprint(st.TotalTokens)},
		{"avg doc length", fmt.Sprintf("%.3f", st.AvgDocLength)},
		{"k1 / b", fmt.Sprintf("%g / %g", st.K1, st.B)},
	}
	if st.Fingerprint != "" {
		rows = append(rows, [2]string{"fingerprint", st.Fingerprint})
	}
	for _, r := range rows {
		fmt.Fprintln(w, labelStyle.Render(r[0])+r[1])
	}
	if len(top) > 0 {
		fmt.Fprintln(w, headerStyle.Render("most frequent terms"))
		for _, tc := range top {
			fmt.Fprintf(w, "  %s %d\n", termStyle.Render(tc.Term), tc.DocFreq)
		}
	}
}

func renderTokens(w io.Writer, terms []string) {
	styled := make([]string, len(terms))
	for i, t := range terms {
		styled[i] = termStyle.Render(t)
	}
	fmt.Fprintln(w, strings.Join(styled, dimStyle.Render(" | ")))
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= snippetWidth {
		return text
	}
	return string(r[:snippetWidth-1]) + "…"
}
