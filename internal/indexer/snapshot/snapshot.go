// Package snapshot serialises an index.Index to bytes and back. Three
// encodings share one logical layout: json and yaml for inspection and
// hand-editing, and a compact binary form for production snapshots. Every
// encoding starts with a format name and version that are checked before the
// body is parsed.
package snapshot

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
)

const (
	FormatName = "bm25-index"
	Version    = 1
)

type Format string

const (
	FormatJSON   Format = "json"
	FormatYAML   Format = "yaml"
	FormatBinary Format = "binary"
)

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

// Codec converts between an index and its persisted bytes.
type Codec interface {
	Format() Format
	Encode(idx *index.Index) ([]byte, error)
	Decode(data []byte) (*index.Index, error)
}

// Snapshot is the logical content shared by the text encodings.
type Snapshot struct {
	Format       string       `json:"format" yaml:"format"`
	Version      int          `json:"version" yaml:"version"`
	Mode         string       `json:"mode" yaml:"mode"`
	K1           float64      `json:"k1" yaml:"k1"`
	B            float64      `json:"b" yaml:"b"`
	DocCount     int          `json:"doc_count" yaml:"doc_count"`
	AvgDocLength float64      `json:"avg_doc_length" yaml:"avg_doc_length"`
	Fingerprint  string       `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	DocLengths   []int        `json:"doc_lengths" yaml:"doc_lengths,flow"`
	Terms        []TermRecord `json:"terms" yaml:"terms"`
}

type TermRecord struct {
	Term     string          `json:"term" yaml:"term"`
	DocFreq  int             `json:"df" yaml:"df"`
	Postings []index.Posting `json:"postings" yaml:"postings,flow"`
}

// envelope is decoded on its own so the version can be checked before the
// body is parsed.
type envelope struct {
	Format  string `json:"format" yaml:"format"`
	Version int    `json:"version" yaml:"version"`
}

func (e envelope) check() error {
	if e.Format != FormatName {
		return apperrors.Corrupt("format", "expected %q, found %q", FormatName, e.Format)
	}
	return checkVersion(e.Version)
}

// requiredFields mirrors the body fields that have no safe default. They are
// decoded as pointers so an absent key is told apart from a zero value.
type requiredFields struct {
	Mode         *string  `json:"mode" yaml:"mode"`
	K1           *float64 `json:"k1" yaml:"k1"`
	B            *float64 `json:"b" yaml:"b"`
	DocCount     *int     `json:"doc_count" yaml:"doc_count"`
	AvgDocLength *float64 `json:"avg_doc_length" yaml:"avg_doc_length"`
}

func (r requiredFields) check() error {
	for _, f := range []struct {
		name    string
		present bool
	}{
		{"mode", r.Mode != nil},
		{"k1", r.K1 != nil},
		{"b", r.B != nil},
		{"doc_count", r.DocCount != nil},
		{"avg_doc_length", r.AvgDocLength != nil},
	} {
		if !f.present {
			return missingField(f.name)
		}
	}
	return nil
}

func missingField(name string) error {
	return apperrors.Corrupt(name, "required field %q is missing", name)
}

func checkVersion(v int) error {
	if v != Version {
		err := apperrors.Newf(apperrors.ErrFormatVersionMismatch, http.StatusUnprocessableEntity,
			"snapshot version %d, this build reads version %d", v, Version)
		err.Field = "version"
		return err
	}
	return nil
}

func FromIndex(idx *index.Index) *Snapshot {
	p := idx.Params()
	s := &Snapshot{
		Format:       FormatName,
		Version:      Version,
		Mode:         string(idx.Mode()),
		K1:           p.K1,
		B:            p.B,
		DocCount:     idx.TotalDocs(),
		AvgDocLength: idx.AvgDocLength(),
		Fingerprint:  idx.Fingerprint(),
		DocLengths:   idx.DocLengths(),
	}
	entries := idx.Entries()
	s.Terms = make([]TermRecord, 0, len(entries))
	for _, e := range entries {
		s.Terms = append(s.Terms, TermRecord{
			Term:     e.Term,
			DocFreq:  len(e.Postings),
			Postings: e.Postings,
		})
	}
	return s
}

// Index validates the snapshot and rebuilds the index it describes.
func (s *Snapshot) Index() (*index.Index, error) {
	if err := (envelope{Format: s.Format, Version: s.Version}).check(); err != nil {
		return nil, err
	}
	entries := make([]index.TermEntry, 0, len(s.Terms))
	for i, t := range s.Terms {
		if t.DocFreq != len(t.Postings) {
			return nil, apperrors.Corrupt(fmt.Sprintf("terms[%d].df", i),
				"term %q has df %d but %d postings", t.Term, t.DocFreq, len(t.Postings))
		}
		entries = append(entries, index.TermEntry{Term: t.Term, Postings: t.Postings})
	}
	docLengths := s.DocLengths
	if docLengths == nil {
		docLengths = []int{}
	}
	return index.FromEntries(index.Meta{
		Mode:         tokenizer.Mode(s.Mode),
		Params:       index.Params{K1: s.K1, B: s.B},
		DocCount:     s.DocCount,
		DocLengths:   docLengths,
		AvgDocLength: s.AvgDocLength,
		Fingerprint:  s.Fingerprint,
	}, entries)
}

// New returns the codec for format. compression applies to the binary
// format only.
func New(format Format, compression Compression) (Codec, error) {
	switch format {
	case FormatJSON:
		return jsonCodec{}, nil
	case FormatYAML:
		return yamlCodec{}, nil
	case FormatBinary:
		switch compression {
		case "", CompressionNone:
			return binaryCodec{}, nil
		case CompressionZstd:
			return binaryCodec{compress: true}, nil
		default:
			return nil, apperrors.Invalid("compression", "unknown compression %q", compression)
		}
	default:
		return nil, apperrors.Invalid("format", "unknown snapshot format %q", format)
	}
}

// Detect sniffs the encoding of data: binary snapshots start with the magic
// bytes, JSON with a brace or a comment, and YAML carries a format key.
func Detect(data []byte) (Format, error) {
	if bytes.HasPrefix(data, magic[:]) {
		return FormatBinary, nil
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) == 0 {
		return "", apperrors.Corrupt("format", "snapshot is empty")
	}
	switch trimmed[0] {
	case '{', '/':
		return FormatJSON, nil
	}
	if bytes.Contains(trimmed, []byte("format:")) {
		return FormatYAML, nil
	}
	return "", apperrors.Corrupt("format", "unrecognised snapshot encoding")
}

// Decode detects the encoding of data and decodes it.
func Decode(data []byte) (*index.Index, error) {
	format, err := Detect(data)
	if err != nil {
		return nil, err
	}
	codec, err := New(format, CompressionNone)
	if err != nil {
		return nil, err
	}
	return codec.Decode(data)
}

// FormatForPath picks a format from a file extension, returning fallback
// when the extension is not recognised.
func FormatForPath(path string, fallback Format) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".bm25", ".bin", ".idx":
		return FormatBinary
	default:
		return fallback
	}
}
