// bm25 builds, stores and queries BM25 indexes from the command line.
//
//	bm25 search  --corpus docs.txt [--mode english] [-k 10] <query>
//	bm25 build   --corpus docs.txt (--out index.bm25 | --key corpus) [--publish]
//	bm25 query   (--index index.bm25 | --key corpus) [--corpus docs.txt] [--explain N] <query>
//	bm25 inspect (--index index.bm25 | --key corpus) [--terms 20]
//	bm25 segment [--mode chinese] [--full] <text>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/store"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/multilingual-bm25/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates bad invocations (2) from runtime failures (1).
func exitCode(err error) int {
	if errors.Is(err, apperrors.ErrInvalidInput) || errors.Is(err, apperrors.ErrUnsupportedLanguage) {
		return 2
	}
	return 1
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, c *cli, args []string) error
}

var commands = []command{
	{"search", "build an in-memory index over a corpus and query it", runSearch},
	{"build", "build an index and save it to a file or snapshot store", runBuild},
	{"query", "query a saved index", runQuery},
	{"inspect", "print statistics for a saved index", runInspect},
	{"segment", "show how text is tokenized", runSegment},
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(stdout)
		if len(args) == 0 {
			return apperrors.Invalid("command", "no command given")
		}
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			c := &cli{out: stdout, flags: pflag.NewFlagSet("bm25 "+cmd.name, pflag.ContinueOnError)}
			return cmd.run(ctx, c, args[1:])
		}
	}
	usage(stdout)
	return apperrors.Invalid("command", "unknown command %q", args[0])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, headerStyle.Render("usage: bm25 <command> [flags]"))
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", cmd.name, cmd.summary)
	}
}

// cli carries the flags every command shares.
type cli struct {
	out        io.Writer
	flags      *pflag.FlagSet
	configPath string
	mode       string
	logLevel   string
	jsonOut    bool
	cfg        *config.Config
}

func (c *cli) parse(args []string) error {
	c.flags.StringVarP(&c.configPath, "config", "c", "", "config file (defaults plus BM25_* environment when empty)")
	c.flags.StringVarP(&c.mode, "mode", "m", "", "language mode (overrides index.mode)")
	c.flags.StringVar(&c.logLevel, "log-level", "warn", "log level written to stderr")
	c.flags.BoolVar(&c.jsonOut, "json", false, "print JSON instead of styled text")
	if err := c.flags.Parse(args); err != nil {
		return err
	}
	logger.SetupWriter(os.Stderr, c.logLevel, "text")

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.mode != "" {
		cfg.Index.Mode = c.mode
	}
	c.cfg = cfg
	return nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) query() (string, error) {
	q := strings.Join(c.flags.Args(), " ")
	if strings.TrimSpace(q) == "" {
		return "", apperrors.Invalid("query", "a query is required")
	}
	return q, nil
}

func runSearch(ctx context.Context, c *cli, args []string) error {
	corpusPath := c.flags.String("corpus", "", "corpus file (.txt one doc per line, .json, .jsonl)")
	topK := c.flags.IntP("top-k", "k", 10, "number of results")
	if err := c.parse(args); err != nil {
		return err
	}
	q, err := c.query()
	if err != nil {
		return err
	}
	corpus, err := readCorpusFlag(*corpusPath)
	if err != nil {
		return err
	}
	results, err := indexer.Search(ctx, corpus, q, c.cfg.Index.Mode, *topK)
	if err != nil {
		return err
	}
	if c.jsonOut {
		return c.printJSON(results)
	}
	renderResults(c.out, q, results)
	return nil
}

func runBuild(ctx context.Context, c *cli, args []string) error {
	corpusPath := c.flags.String("corpus", "", "corpus file (.txt one doc per line, .json, .jsonl)")
	out := c.flags.StringP("out", "o", "", "write the index to this file; format follows the extension")
	key := c.flags.String("key", "", "store the index under this key in the configured snapshot store")
	format := c.flags.String("format", "", "snapshot format: json, yaml or binary")
	compression := c.flags.String("compression", "", "binary postings compression: none or zstd")
	noFingerprint := c.flags.Bool("no-fingerprint", false, "do not record a corpus fingerprint")
	publish := c.flags.Bool("publish", false, "announce the stored snapshot on Kafka")
	if err := c.parse(args); err != nil {
		return err
	}
	if (*out == "") == (*key == "") {
		return apperrors.Invalid("out", "exactly one of --out or --key is required")
	}
	if *format != "" {
		c.cfg.Snapshot.Format = *format
	}
	if *compression != "" {
		c.cfg.Snapshot.Compression = *compression
	}
	codecFormat := snapshot.FormatForPath(*out, snapshot.Format(c.cfg.Snapshot.Format))
	if _, err := snapshot.New(codecFormat, snapshot.Compression(c.cfg.Snapshot.Compression)); err != nil {
		return err
	}
	if *noFingerprint {
		c.cfg.Index.Fingerprint = false
	}
	corpus, err := readCorpusFlag(*corpusPath)
	if err != nil {
		return err
	}
	e, err := indexer.Create(ctx, corpus, c.cfg)
	if err != nil {
		return err
	}

	if *out != "" {
		if err := e.Save(*out); err != nil {
			return err
		}
		fmt.Fprintln(c.out, dimStyle.Render("saved "+*out))
	} else {
		st, err := store.Open(c.cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := e.SaveTo(ctx, st, *key); err != nil {
			return err
		}
		fmt.Fprintln(c.out, dimStyle.Render(fmt.Sprintf("stored %s in %s", *key, st.Name())))
		if *publish {
			producer := kafka.NewProducer(c.cfg.Kafka, c.cfg.Kafka.SnapshotTopic)
			defer producer.Close()
			stats := e.Stats()
			err := producer.PublishSnapshot(ctx, kafka.SnapshotEvent{
				Key:         *key,
				Backend:     st.Name(),
				Format:      c.cfg.Snapshot.Format,
				Mode:        stats.Mode,
				Docs:        stats.TotalDocs,
				Fingerprint: stats.Fingerprint,
			})
			if err != nil {
				return err
			}
		}
	}
	if c.jsonOut {
		return c.printJSON(e.Stats())
	}
	renderStats(c.out, e.Stats(), nil)
	return nil
}

// indexFlags registers the flags that pick a saved index.
type indexFlags struct {
	path   *string
	key    *string
	corpus *string
}

func addIndexFlags(fs *pflag.FlagSet) indexFlags {
	return indexFlags{
		path:   fs.StringP("index", "i", "", "saved index file"),
		key:    fs.String("key", "", "snapshot key in the configured store"),
		corpus: fs.String("corpus", "", "original corpus, to show document text"),
	}
}

func (f indexFlags) open(ctx context.Context, cfg *config.Config) (*indexer.Engine, error) {
	if (*f.path == "") == (*f.key == "") {
		return nil, apperrors.Invalid("index", "exactly one of --index or --key is required")
	}
	var corpus []string
	if *f.corpus != "" {
		var err error
		if corpus, err = indexer.ReadCorpus(*f.corpus); err != nil {
			return nil, err
		}
	}
	if *f.path != "" {
		return indexer.Open(*f.path, corpus, cfg)
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	return indexer.OpenFrom(ctx, st, *f.key, corpus, cfg)
}

func runQuery(ctx context.Context, c *cli, args []string) error {
	idxFlags := addIndexFlags(c.flags)
	topK := c.flags.IntP("top-k", "k", 10, "number of results")
	explain := c.flags.Int("explain", -1, "explain the score of this document instead of ranking")
	if err := c.parse(args); err != nil {
		return err
	}
	q, err := c.query()
	if err != nil {
		return err
	}
	e, err := idxFlags.open(ctx, c.cfg)
	if err != nil {
		return err
	}
	if *explain >= 0 {
		ex, err := e.Explain(q, *explain)
		if err != nil {
			return err
		}
		if c.jsonOut {
			return c.printJSON(ex)
		}
		renderExplanation(c.out, ex)
		return nil
	}
	results, err := e.Search(q, *topK)
	if err != nil {
		return err
	}
	if c.jsonOut {
		return c.printJSON(results)
	}
	renderResults(c.out, q, results)
	return nil
}

type termCount struct {
	Term    string `json:"term"`
	DocFreq int    `json:"df"`
}

func runInspect(ctx context.Context, c *cli, args []string) error {
	idxFlags := addIndexFlags(c.flags)
	terms := c.flags.Int("terms", 10, "list this many terms with the highest document frequency")
	if err := c.parse(args); err != nil {
		return err
	}
	e, err := idxFlags.open(ctx, c.cfg)
	if err != nil {
		return err
	}
	top := topTerms(e, *terms)
	if c.jsonOut {
		return c.printJSON(map[string]any{"index": e.Stats(), "top_terms": top})
	}
	renderStats(c.out, e.Stats(), top)
	return nil
}

func topTerms(e *indexer.Engine, n int) []termCount {
	if n <= 0 {
		return nil
	}
	idx := e.Index()
	all := make([]termCount, 0, idx.VocabularySize())
	for _, t := range idx.Terms() {
		all = append(all, termCount{Term: t, DocFreq: idx.DocFreq(t)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].DocFreq > all[j].DocFreq })
	if len(all) > n {
		all = all[:n]
	}
	return all
}

func runSegment(_ context.Context, c *cli, args []string) error {
	full := c.flags.Bool("full", false, "exhaustive segmentation with overlapping words (CJK modes)")
	if err := c.parse(args); err != nil {
		return err
	}
	text, err := c.query()
	if err != nil {
		return err
	}
	reg := tokenizer.NewRegistry(c.cfg.Tokenizer)
	tokens, err := reg.Segment(text, tokenizer.ParseMode(c.cfg.Index.Mode), *full)
	if err != nil {
		return err
	}
	terms := tokenizer.Terms(tokens)
	if c.jsonOut {
		return c.printJSON(terms)
	}
	renderTokens(c.out, terms)
	return nil
}

func readCorpusFlag(path string) ([]string, error) {
	if path == "" {
		return nil, apperrors.Invalid("corpus", "--corpus is required")
	}
	return indexer.ReadCorpus(path)
}
