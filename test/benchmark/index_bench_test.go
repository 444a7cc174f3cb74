// Package benchmark contains Go benchmarks for tokenization, index
// construction, snapshot codecs and ranking, measuring throughput and
// allocation behaviour.
package benchmark

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/config"
)

var vocabulary = strings.Fields(`search engine ranking index document query term
	frequency corpus token stem stop word length score relevance inverted posting
	shard cache snapshot language chinese english mixed segment dictionary model
	retrieval precision recall vector sparse dense analyzer filter normalize`)

// syntheticCorpus returns n deterministic English documents whose lengths
// vary between 8 and 39 words.
func syntheticCorpus(n int) []string {
	docs := make([]string, n)
	var sb strings.Builder
	for i := range docs {
		sb.Reset()
		words := 8 + (i*7)%32
		for w := 0; w < words; w++ {
			if w > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(vocabulary[(i*31+w*17+w*w)%len(vocabulary)])
		}
		docs[i] = sb.String()
	}
	return docs
}

func benchConfig(workers int) *config.Config {
	cfg := config.Default()
	cfg.Index.Mode = string(tokenizer.ModeEnglish)
	cfg.Index.Workers = workers
	cfg.Tokenizer.ChineseHMM = false
	return cfg
}

func buildIndex(b *testing.B, n int) *index.Index {
	b.Helper()
	english := benchStrategy(b, tokenizer.ModeEnglish)
	builder := index.NewBuilder(tokenizer.ModeEnglish)
	for _, doc := range syntheticCorpus(n) {
		builder.AddDocument(tokenizer.Terms(english.Tokenize(doc)))
	}
	idx, err := builder.Build(index.DefaultParams())
	if err != nil {
		b.Fatalf("Build: %v", err)
	}
	return idx
}

// BenchmarkBuilderAdd measures per-document insert throughput into the
// index builder with pre-tokenized input.
func BenchmarkBuilderAdd(b *testing.B) {
	english := benchStrategy(b, tokenizer.ModeEnglish)
	docs := syntheticCorpus(1000)
	terms := make([][]string, len(docs))
	for i, d := range docs {
		terms[i] = tokenizer.Terms(english.Tokenize(d))
	}

	builder := index.NewBuilder(tokenizer.ModeEnglish)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		builder.AddDocument(terms[i%len(terms)])
	}
}

// BenchmarkBuild measures finalising the builder into an immutable index.
func BenchmarkBuild(b *testing.B) {
	english := benchStrategy(b, tokenizer.ModeEnglish)
	for _, size := range []int{100, 1000, 10000} {
		docs := syntheticCorpus(size)
		terms := make([][]string, len(docs))
		for i, d := range docs {
			terms[i] = tokenizer.Terms(english.Tokenize(d))
		}
		b.Run(fmt.Sprintf("docs_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				builder := index.NewBuilder(tokenizer.ModeEnglish)
				for _, t := range terms {
					builder.AddDocument(t)
				}
				if _, err := builder.Build(index.DefaultParams()); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// BenchmarkEngineCreate measures end-to-end index construction, tokenization
// included, at several worker counts.
func BenchmarkEngineCreate(b *testing.B) {
	docs := syntheticCorpus(5000)
	ctx := context.Background()
	for _, workers := range []int{1, 4, 8} {
		cfg := benchConfig(workers)
		b.Run(fmt.Sprintf("workers_%d", workers), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := indexer.Create(ctx, docs, cfg); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkFingerprint(b *testing.B) {
	docs := syntheticCorpus(10000)
	var size int64
	for _, d := range docs {
		size += int64(len(d))
	}
	b.ReportAllocs()
	b.SetBytes(size)
	for i := 0; i < b.N; i++ {
		_ = snapshot.Fingerprint(docs)
	}
}

var codecCases = []struct {
	format      snapshot.Format
	compression snapshot.Compression
}{
	{snapshot.FormatJSON, snapshot.CompressionNone},
	{snapshot.FormatYAML, snapshot.CompressionNone},
	{snapshot.FormatBinary, snapshot.CompressionNone},
	{snapshot.FormatBinary, snapshot.CompressionZstd},
}

// BenchmarkSnapshotEncode measures serialising a 5 000 document index with
// each codec.
func BenchmarkSnapshotEncode(b *testing.B) {
	idx := buildIndex(b, 5000)
	for _, c := range codecCases {
		codec, err := snapshot.New(c.format, c.compression)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(fmt.Sprintf("%s_%s", c.format, c.compression), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				data, err := codec.Encode(idx)
				if err != nil {
					b.Fatal(err)
				}
				b.SetBytes(int64(len(data)))
			}
		})
	}
}

// BenchmarkSnapshotDecode measures loading the same index back, format
// detection included.
func BenchmarkSnapshotDecode(b *testing.B) {
	idx := buildIndex(b, 5000)
	for _, c := range codecCases {
		codec, err := snapshot.New(c.format, c.compression)
		if err != nil {
			b.Fatal(err)
		}
		data, err := codec.Encode(idx)
		if err != nil {
			b.Fatal(err)
		}
		b.Run(fmt.Sprintf("%s_%s", c.format, c.compression), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(data)))
			for i := 0; i < b.N; i++ {
				if _, err := snapshot.Decode(data); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
