package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
)

const corpusText = `this is a sample document about machine learning
machine learning is fascinating and useful
this document discusses deep learning techniques
another sample about artificial intelligence
`

func writeCorpus(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "docs.txt")
	if err := os.WriteFile(path, []byte(corpusText), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestSearchCommandJSON(t *testing.T) {
	corpus := writeCorpus(t)
	out, err := runCLI(t, "search", "--corpus", corpus, "-k", "2", "--json", "machine", "learning")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	var results []indexer.Result
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	ids := map[int]bool{results[0].DocID: true, results[1].DocID: true}
	if !ids[0] || !ids[1] {
		t.Errorf("top two = %+v", results)
	}
}

func TestBuildQueryInspect(t *testing.T) {
	corpus := writeCorpus(t)
	indexPath := filepath.Join(t.TempDir(), "index.bm25")

	if _, err := runCLI(t, "build", "--corpus", corpus, "--out", indexPath); err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := os.Stat(indexPath); err != nil {
		t.Fatalf("index not written: %v", err)
	}

	out, err := runCLI(t, "query", "--index", indexPath, "--corpus", corpus, "--json", "artificial intelligence")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	var results []indexer.Result
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].DocID != 3 || !strings.Contains(results[0].Text, "artificial") {
		t.Errorf("results = %+v", results)
	}

	out, err = runCLI(t, "query", "--index", indexPath, "--explain", "1", "--json", "machine learning")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if !strings.Contains(out, `"doc_id": 1`) {
		t.Errorf("explain output = %s", out)
	}

	out, err = runCLI(t, "inspect", "--index", indexPath, "--terms", "1", "--json")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var inspected struct {
		Index struct {
			TotalDocs int `json:"total_docs"`
		} `json:"index"`
		TopTerms []termCount `json:"top_terms"`
	}
	if err := json.Unmarshal([]byte(out), &inspected); err != nil {
		t.Fatal(err)
	}
	if inspected.Index.TotalDocs != 4 {
		t.Errorf("total_docs = %d", inspected.Index.TotalDocs)
	}
	if len(inspected.TopTerms) != 1 || inspected.TopTerms[0].Term != "learn" || inspected.TopTerms[0].DocFreq != 3 {
		t.Errorf("top_terms = %+v", inspected.TopTerms)
	}
}

func TestBuildToStore(t *testing.T) {
	corpus := writeCorpus(t)
	dir := t.TempDir()
	t.Setenv("BM25_SNAPSHOT_BACKEND", "sqlite")
	t.Setenv("BM25_SNAPSHOT_SQLITE_PATH", filepath.Join(dir, "snapshots.db"))

	if _, err := runCLI(t, "build", "--corpus", corpus, "--key", "docs", "--format", "json"); err != nil {
		t.Fatalf("build: %v", err)
	}
	out, err := runCLI(t, "query", "--key", "docs", "--json", "deep")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if !strings.Contains(out, `"doc_id": 2`) {
		t.Errorf("output = %s", out)
	}
}

func TestStyledOutput(t *testing.T) {
	corpus := writeCorpus(t)
	out, err := runCLI(t, "search", "--corpus", corpus, "sample")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2 result(s)") || !strings.Contains(out, "doc 3") {
		t.Errorf("output = %q", out)
	}
}

func TestSegmentCommand(t *testing.T) {
	out, err := runCLI(t, "segment", "--json", "Running", "runners", "ran")
	if err != nil {
		t.Fatal(err)
	}
	var terms []string
	if err := json.Unmarshal([]byte(out), &terms); err != nil {
		t.Fatal(err)
	}
	if len(terms) != 3 || terms[0] != "run" {
		t.Errorf("terms = %v", terms)
	}
	if _, err := runCLI(t, "segment", "--full", "english text"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("full english segmentation error = %v", err)
	}
}

func TestUsageErrors(t *testing.T) {
	if _, err := runCLI(t); exitCode(err) != 2 {
		t.Errorf("no command: err=%v", err)
	}
	if _, err := runCLI(t, "frobnicate"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("unknown command: err=%v", err)
	}
	corpus := writeCorpus(t)
	if _, err := runCLI(t, "search", "--corpus", corpus); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("missing query: err=%v", err)
	}
	if _, err := runCLI(t, "search", "--corpus", corpus, "--mode", "klingon", "x"); !errors.Is(err, apperrors.ErrUnsupportedLanguage) {
		t.Errorf("unknown mode: err=%v", err)
	}
	if _, err := runCLI(t, "build", "--corpus", corpus); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("build without target: err=%v", err)
	}
	if _, err := runCLI(t, "search", "--help"); err == nil {
		t.Error("--help returned nil, want pflag.ErrHelp")
	}
}
