package snapshot

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
)

func sampleIndex(t *testing.T) *index.Index {
	t.Helper()
	b := index.NewBuilder(tokenizer.ModeMixed)
	b.AddDocument([]string{"sampl", "document", "machin", "learn"})
	b.AddDocument([]string{"machin", "learn", "fascin", "use"})
	b.AddDocument([]string{"document", "discuss", "deep", "learn", "techniqu"})
	b.AddDocument([]string{"anoth", "sampl", "artifici", "intellig", "机器", "机器"})
	b.AddDocument(nil)
	b.SetFingerprint(Fingerprint([]string{"a", "b", "c", "d", ""}))
	idx, err := b.Build(index.Params{K1: 1.2, B: 0.6})
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func allCodecs(t *testing.T) []Codec {
	t.Helper()
	var codecs []Codec
	for _, c := range []struct {
		f Format
		c Compression
	}{
		{FormatJSON, CompressionNone},
		{FormatYAML, CompressionNone},
		{FormatBinary, CompressionNone},
		{FormatBinary, CompressionZstd},
	} {
		codec, err := New(c.f, c.c)
		if err != nil {
			t.Fatalf("New(%s, %s): %v", c.f, c.c, err)
		}
		codecs = append(codecs, codec)
	}
	return codecs
}

func TestRoundTripPreservesScores(t *testing.T) {
	orig := sampleIndex(t)
	queries := [][]string{
		{"machin", "learn"},
		{"sampl"},
		{"机器", "document"},
		{"missing"},
	}
	for _, codec := range allCodecs(t) {
		t.Run(string(codec.Format()), func(t *testing.T) {
			data, err := codec.Encode(orig)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			loaded, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if loaded.Stats() != orig.Stats() {
				t.Errorf("stats = %+v, want %+v", loaded.Stats(), orig.Stats())
			}
			if !reflect.DeepEqual(loaded.Entries(), orig.Entries()) {
				t.Error("entries differ after round trip")
			}
			for _, q := range queries {
				want := ranker.Rank(orig, q, 10)
				got := ranker.Rank(loaded, q, 10)
				if len(got) != len(want) {
					t.Fatalf("%v: %d results, want %d", q, len(got), len(want))
				}
				for i := range want {
					if got[i].DocID != want[i].DocID || math.Abs(got[i].Score-want[i].Score) > 1e-9 {
						t.Errorf("%v[%d] = %+v, want %+v", q, i, got[i], want[i])
					}
				}
			}

			auto, err := Decode(data)
			if err != nil {
				t.Fatalf("auto-detect Decode: %v", err)
			}
			if auto.Stats() != orig.Stats() {
				t.Error("auto-detected decode differs")
			}
		})
	}
}

func TestRoundTripEmptyIndex(t *testing.T) {
	empty, err := index.NewBuilder(tokenizer.ModeEnglish).Build(index.DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	for _, codec := range allCodecs(t) {
		data, err := codec.Encode(empty)
		if err != nil {
			t.Fatalf("%s Encode: %v", codec.Format(), err)
		}
		loaded, err := codec.Decode(data)
		if err != nil {
			t.Fatalf("%s Decode: %v", codec.Format(), err)
		}
		if loaded.TotalDocs() != 0 || loaded.AvgDocLength() != 0 {
			t.Errorf("%s: stats %+v", codec.Format(), loaded.Stats())
		}
	}
}

func TestVersionMismatchCheckedFirst(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"json", `{"format": "bm25-index", "version": 2, "terms": "not even a list"}`},
		{"yaml", "format: bm25-index\nversion: 7\nterms: 12\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			if !errors.Is(err, apperrors.ErrFormatVersionMismatch) {
				t.Fatalf("error = %v, want ErrFormatVersionMismatch", err)
			}
		})
	}

	codec, _ := New(FormatBinary, CompressionZstd)
	data, err := codec.Encode(sampleIndex(t))
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(data[4:8], 99)
	// Damage the body too; the version must be reported, not the damage.
	data[HeaderSize+1] ^= 0xff
	if _, err := codec.Decode(data); !errors.Is(err, apperrors.ErrFormatVersionMismatch) {
		t.Fatalf("binary error = %v, want ErrFormatVersionMismatch", err)
	}
}

func TestBinaryCorruption(t *testing.T) {
	codec, _ := New(FormatBinary, CompressionZstd)
	good, err := codec.Encode(sampleIndex(t))
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		mutate func([]byte) []byte
		field  string
	}{
		{"truncated", func(d []byte) []byte { return d[:len(d)-3] }, "header"},
		{"too short", func(d []byte) []byte { return d[:10] }, "header"},
		{"bad magic", func(d []byte) []byte { d[0] = 'X'; return d }, "magic"},
		{"flipped meta byte", func(d []byte) []byte { d[HeaderSize+2] ^= 0x01; return d }, "checksum"},
		{"flipped postings byte", func(d []byte) []byte { d[len(d)-FooterSize-1] ^= 0x01; return d }, "checksum"},
		{"unknown flag", func(d []byte) []byte { d[8] |= 0x80; return d }, "flags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(append([]byte(nil), good...))
			_, err := codec.Decode(data)
			if !errors.Is(err, apperrors.ErrCorruptPersistedData) {
				t.Fatalf("error = %v, want ErrCorruptPersistedData", err)
			}
			if f := apperrors.FieldOf(err); f != tt.field {
				t.Errorf("field = %q, want %q", f, tt.field)
			}
		})
	}
}

func TestJSONCorruption(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{
			"df disagrees",
			`{"format":"bm25-index","version":1,"mode":"english","k1":1.5,"b":0.75,"doc_count":1,
			  "avg_doc_length":1,"doc_lengths":[1],"terms":[{"term":"a","df":2,"postings":[{"doc_id":0,"tf":1}]}]}`,
			"terms[0].df",
		},
		{
			"wrong type",
			`{"format":"bm25-index","version":1,"mode":"english","doc_count":"one"}`,
			"doc_count",
		},
		{
			"not json",
			`{"format":"bm25-index","version":1,`,
			"document",
		},
		{
			"foreign format",
			`{"format":"lucene","version":1}`,
			"format",
		},
		{
			"doc count mismatch",
			`{"format":"bm25-index","version":1,"mode":"english","k1":1.5,"b":0.75,"doc_count":3,
			  "avg_doc_length":1,"doc_lengths":[1],"terms":[]}`,
			"doc_lengths",
		},
	}
	codec, _ := New(FormatJSON, CompressionNone)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode([]byte(tt.data))
			if !errors.Is(err, apperrors.ErrCorruptPersistedData) {
				t.Fatalf("error = %v, want ErrCorruptPersistedData", err)
			}
			if f := apperrors.FieldOf(err); f != tt.field {
				t.Errorf("field = %q, want %q", f, tt.field)
			}
		})
	}
}

func TestJSONToleratesCommentsAndUnknownFields(t *testing.T) {
	data := `// hand-edited snapshot
{
	"format": "bm25-index",
	"version": 1,
	"mode": "english",
	"k1": 1.5,
	"b": 0.75,
	"doc_count": 2,
	"avg_doc_length": 1.5,
	"doc_lengths": [2, 1,],
	"built_by": "someone", /* unknown field */
	"terms": [
		{"term": "cat", "df": 2, "postings": [{"doc_id": 0, "tf": 1}, {"doc_id": 1, "tf": 1}]},
		{"term": "dog", "df": 1, "postings": [{"doc_id": 0, "tf": 1},]},
	],
}`
	idx, err := Decode([]byte(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if idx.TotalDocs() != 2 || idx.DocFreq("cat") != 2 || idx.Mode() != tokenizer.ModeEnglish {
		t.Errorf("unexpected index %+v", idx.Stats())
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		data string
		want Format
	}{
		{"BM25\x01\x00", FormatBinary},
		{"  {\"format\":1}", FormatJSON},
		{"// note\n{}", FormatJSON},
		{"format: bm25-index\n", FormatYAML},
	}
	for _, tt := range tests {
		got, err := Detect([]byte(tt.data))
		if err != nil || got != tt.want {
			t.Errorf("Detect(%q) = %q, %v; want %q", tt.data, got, err, tt.want)
		}
	}
	if _, err := Detect([]byte("   ")); !errors.Is(err, apperrors.ErrCorruptPersistedData) {
		t.Errorf("empty input error = %v", err)
	}
}

func TestFormatForPath(t *testing.T) {
	tests := map[string]Format{
		"idx.json":      FormatJSON,
		"idx.JSONC":     FormatJSON,
		"idx.yml":       FormatYAML,
		"data/idx.bm25": FormatBinary,
		"idx":           FormatYAML,
	}
	for path, want := range tests {
		if got := FormatForPath(path, FormatYAML); got != want {
			t.Errorf("FormatForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New("xml", CompressionNone); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("error = %v", err)
	}
	if _, err := New(FormatBinary, "lzma"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("error = %v", err)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]string{"ab", "c"})
	if a != Fingerprint([]string{"ab", "c"}) {
		t.Error("fingerprint not deterministic")
	}
	if a == Fingerprint([]string{"a", "bc"}) {
		t.Error("document boundaries not part of the fingerprint")
	}
	if a == Fingerprint([]string{"c", "ab"}) {
		t.Error("document order not part of the fingerprint")
	}
	if !strings.HasPrefix(a, "blake3:") {
		t.Errorf("fingerprint %q lacks algorithm prefix", a)
	}
}

func TestZstdShrinksRepetitivePostings(t *testing.T) {
	b := index.NewBuilder(tokenizer.ModeEnglish)
	for i := 0; i < 2000; i++ {
		b.AddDocument([]string{"alpha", "beta", "gamma", "alpha"})
	}
	idx, _ := b.Build(index.DefaultParams())
	plain, _ := New(FormatBinary, CompressionNone)
	packed, _ := New(FormatBinary, CompressionZstd)
	p, _ := plain.Encode(idx)
	z, _ := packed.Encode(idx)
	if len(z) >= len(p) {
		t.Errorf("zstd snapshot %d bytes, plain %d", len(z), len(p))
	}
}

// requiredSnapshotFields are written in order so one can be dropped at a time.
var requiredSnapshotFields = []struct{ key, json, yaml string }{
	{"mode", `"mode":"english"`, "mode: english"},
	{"k1", `"k1":1.5`, "k1: 1.5"},
	{"b", `"b":0.75`, "b: 0.75"},
	{"doc_count", `"doc_count":1`, "doc_count: 1"},
	{"avg_doc_length", `"avg_doc_length":1`, "avg_doc_length: 1"},
}

func jsonWithout(skip string) string {
	parts := []string{`"format":"bm25-index"`, `"version":1`}
	for _, f := range requiredSnapshotFields {
		if f.key != skip {
			parts = append(parts, f.json)
		}
	}
	parts = append(parts, `"doc_lengths":[1]`, `"terms":[{"term":"a","df":1,"postings":[{"doc_id":0,"tf":1}]}]`)
	return "{" + strings.Join(parts, ",") + "}"
}

func yamlWithout(skip string) string {
	lines := []string{"format: bm25-index", "version: 1"}
	for _, f := range requiredSnapshotFields {
		if f.key != skip {
			lines = append(lines, f.yaml)
		}
	}
	lines = append(lines, "doc_lengths: [1]", "terms:", "  - term: a", "    df: 1", "    postings: [{doc_id: 0, tf: 1}]")
	return strings.Join(lines, "\n") + "\n"
}

func TestTextCodecsRejectMissingRequiredFields(t *testing.T) {
	jsonCodec, _ := New(FormatJSON, CompressionNone)
	yamlCodec, _ := New(FormatYAML, CompressionNone)

	for _, c := range []struct {
		codec Codec
		doc   func(string) string
	}{{jsonCodec, jsonWithout}, {yamlCodec, yamlWithout}} {
		if _, err := c.codec.Decode([]byte(c.doc(""))); err != nil {
			t.Fatalf("%s: complete snapshot rejected: %v", c.codec.Format(), err)
		}
		for _, f := range requiredSnapshotFields {
			t.Run(string(c.codec.Format())+"/"+f.key, func(t *testing.T) {
				_, err := c.codec.Decode([]byte(c.doc(f.key)))
				if !errors.Is(err, apperrors.ErrCorruptPersistedData) {
					t.Fatalf("error = %v, want ErrCorruptPersistedData", err)
				}
				if got := apperrors.FieldOf(err); got != f.key {
					t.Errorf("field = %q, want %q", got, f.key)
				}
			})
		}
	}
}

func TestBinaryRejectsMissingRequiredFields(t *testing.T) {
	mode, k1, b, avgdl := "english", 1.5, 0.75, 1.0
	complete := binaryMeta{Mode: &mode, K1: &k1, B: &b, AvgDocLength: &avgdl, DocLengths: []int{1}}
	tests := []struct {
		field string
		drop  func(*binaryMeta)
	}{
		{"mode", func(m *binaryMeta) { m.Mode = nil }},
		{"k1", func(m *binaryMeta) { m.K1 = nil }},
		{"b", func(m *binaryMeta) { m.B = nil }},
		{"avg_doc_length", func(m *binaryMeta) { m.AvgDocLength = nil }},
	}
	codec, _ := New(FormatBinary, CompressionNone)
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			meta := complete
			tt.drop(&meta)
			_, err := codec.Decode(rawBinary(t, meta))
			if !errors.Is(err, apperrors.ErrCorruptPersistedData) {
				t.Fatalf("error = %v, want ErrCorruptPersistedData", err)
			}
			if got := apperrors.FieldOf(err); got != tt.field {
				t.Errorf("field = %q, want %q", got, tt.field)
			}
		})
	}
}

// rawBinary frames meta as a one-document snapshot with valid checksums.
func rawBinary(t *testing.T, meta binaryMeta) []byte {
	t.Helper()
	metaData, err := encMode.Marshal(meta)
	if err != nil {
		t.Fatal(err)
	}
	h := header{
		Version:    Version,
		DocCount:   1,
		MetaOffset: HeaderSize,
		MetaSize:   uint64(len(metaData)),
		PostOffset: HeaderSize + uint64(len(metaData)),
	}
	out := append(h.marshal(), metaData...)
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(metaData))
	out = binary.LittleEndian.AppendUint32(out, crc32.ChecksumIEEE(nil))
	return out
}

func TestInflatedSizeIsNotTrusted(t *testing.T) {
	if got := preallocSize(1<<31, 100); got != 100*maxPreallocRatio {
		t.Errorf("preallocSize(2GiB, 100) = %d", got)
	}
	if got := preallocSize(500, 100); got != 500 {
		t.Errorf("preallocSize(500, 100) = %d", got)
	}

	codec, _ := New(FormatBinary, CompressionZstd)
	data, err := codec.Encode(sampleIndex(t))
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint64(data[56:64], maxPostingsSize)
	_, err = codec.Decode(data)
	if !errors.Is(err, apperrors.ErrCorruptPersistedData) || apperrors.FieldOf(err) != "postings" {
		t.Fatalf("error = %v, want corrupt postings", err)
	}
}
