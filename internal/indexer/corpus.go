package indexer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
)

// ReadCorpus loads documents from path. The layout follows the extension:
//
//	.json   an array of strings, or of objects with a "text" field
//	.jsonl  one JSON string or {"text": ...} object per line
//	other   one document per line
//
// Document ids are positions in the returned slice.
func ReadCorpus(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("reading corpus: %w", err)
		}
		return parseJSONCorpus(data)
	case ".jsonl", ".ndjson":
		return readLines(f, parseJSONLine)
	default:
		return readLines(f, func(line string) (string, error) { return line, nil })
	}
}

type corpusDoc struct {
	Text string `json:"text"`
}

func parseJSONCorpus(data []byte) ([]string, error) {
	data = jsonc.ToJSON(data)
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.Invalid("corpus", "corpus must be a JSON array: %v", err)
	}
	docs := make([]string, len(raw))
	for i, r := range raw {
		text, err := parseJSONLine(string(r))
		if err != nil {
			return nil, apperrors.Invalid("corpus", "document %d: %v", i, err)
		}
		docs[i] = text
	}
	return docs, nil
}

func parseJSONLine(line string) (string, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, `"`) {
		var s string
		if err := json.Unmarshal([]byte(line), &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var doc corpusDoc
	if err := json.Unmarshal([]byte(line), &doc); err != nil {
		return "", err
	}
	return doc.Text, nil
}

func readLines(r io.Reader, parse func(string) (string, error)) ([]string, error) {
	docs := make([]string, 0)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		doc, err := parse(text)
		if err != nil {
			return nil, apperrors.Invalid("corpus", "line %d: %v", line, err)
		}
		docs = append(docs, doc)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}
	return docs, nil
}
