package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"embedalign/config"
	"embedalign/corpus"
	"embedalign/runlog"
	"embedalign/sgram"
	"embedalign/train"
)

const buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "train":
		err = runTrain(ctx, os.Args[2:], os.Stdout)
	case "vocab":
		err = runVocab(os.Args[2:], os.Stdout)
	default:
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		logrus.Fatal(err)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "embedalign - bilingual word embeddings from sentence-aligned corpora")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  embedalign train --l1 FILE --l2 FILE [--config FILE] [--out DIR] [options]")
	fmt.Fprintln(w, "  embedalign vocab --corpus FILE [--lang LANG] [--window N]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  train    Train the model and write checkpoints, vocabularies and metrics")
	fmt.Fprintln(w, "  vocab    Print vocabulary, skip-gram and sampling table statistics")
}

type trainFlags struct {
	L1, L2     string
	ConfigPath string
	Out        string
	Epochs     int
	Batch      int
	ReadLines  int
	Seed       uint64
	RunDB      string
	LogFormat  string
	Metrics    string
}

// parseTrainFlags reads the train flags and resolves the final config.
// Flags given explicitly override the config file, which overrides the
// defaults.
func parseTrainFlags(args []string) (trainFlags, config.Config, error) {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)

	var f trainFlags
	fs.StringVar(&f.L1, "l1", "", "Path to the L1 corpus, one sentence per line (required)")
	fs.StringVar(&f.L2, "l2", "", "Path to the sentence-aligned L2 corpus (required)")
	fs.StringVar(&f.ConfigPath, "config", "", "Path to a YAML config")
	fs.StringVar(&f.Out, "out", "", "Output directory")
	fs.IntVar(&f.Epochs, "epochs", 0, "Number of epochs")
	fs.IntVar(&f.Batch, "batch", 0, "Batch size")
	fs.IntVar(&f.ReadLines, "read-lines", 0, "Read at most this many lines per corpus (0 = all)")
	fs.Uint64Var(&f.Seed, "seed", 0, "Random seed")
	fs.StringVar(&f.RunDB, "run-db", "", "SQLite file to record the run in")
	fs.StringVar(&f.LogFormat, "log-format", "text", "Log format: text or json")
	fs.StringVar(&f.Metrics, "metrics-addr", "", "Serve Prometheus metrics on this address while training")

	if err := fs.Parse(args); err != nil {
		return f, config.Config{}, err
	}
	if f.L1 == "" || f.L2 == "" {
		return f, config.Config{}, errors.New("--l1 and --l2 are required")
	}
	if f.LogFormat != "text" && f.LogFormat != "json" {
		return f, config.Config{}, fmt.Errorf("unknown --log-format %q", f.LogFormat)
	}

	cfg := config.Default()
	if f.ConfigPath != "" {
		var err error
		cfg, err = config.Load(f.ConfigPath)
		if err != nil {
			return f, config.Config{}, fmt.Errorf("load config: %w", err)
		}
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "out":
			cfg.OutDir = f.Out
		case "epochs":
			cfg.Epochs = f.Epochs
		case "batch":
			cfg.BatchSize = f.Batch
		case "read-lines":
			cfg.ReadLines = f.ReadLines
		case "seed":
			cfg.Seed = f.Seed
		case "run-db":
			cfg.RunDB = f.RunDB
		}
	})
	return f, cfg, cfg.Validate()
}

func runTrain(ctx context.Context, args []string, out io.Writer) error {
	f, cfg, err := parseTrainFlags(args)
	if err != nil {
		return err
	}

	l1, h1, err := readCorpus(f.L1, cfg.L1Language, cfg.ReadLines)
	if err != nil {
		return err
	}
	l2, h2, err := readCorpus(f.L2, cfg.L2Language, cfg.ReadLines)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Read %d L1 and %d L2 sentences\n", len(l1), len(l2))

	logger := logrus.New()
	logger.SetOutput(out)
	if f.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	opts := []train.Option{train.WithLogger(logger)}

	if f.Metrics != "" {
		reg := prometheus.NewRegistry()
		srv := &http.Server{Addr: f.Metrics, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{})}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Warn("metrics server stopped")
			}
		}()
		defer srv.Close()
		opts = append(opts, train.WithRegisterer(reg))
	}
	if cfg.RunDB != "" {
		rl, err := runlog.Open(ctx, cfg.RunDB)
		if err != nil {
			return fmt.Errorf("open run log: %w", err)
		}
		defer rl.Close()
		opts = append(opts, train.WithRunLog(rl))
	}

	tr, err := train.New(cfg, l1, l2, opts...)
	if err != nil {
		return err
	}
	defer tr.Close()

	v1, v2 := tr.Vocabularies()
	fmt.Fprintf(out, "Vocabulary: L1 %d words (%d kept), L2 %d words (%d kept)\n",
		v1.Len(), v1.FilteredLen(), v2.Len(), v2.FilteredLen())

	res, err := tr.Train(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Best loss %.4f at epoch %d\n", res.BestLoss, res.BestEpoch)

	manifest := train.Manifest{
		RunID:          res.RunID,
		L1Path:         f.L1,
		L1Hash:         h1,
		L2Path:         f.L2,
		L2Hash:         h2,
		Sentences:      len(l1),
		VocabL1:        v1.Len(),
		VocabL2:        v2.Len(),
		FilteredL1:     v1.FilteredLen(),
		FilteredL2:     v2.FilteredLen(),
		Epochs:         cfg.Epochs,
		BatchSize:      cfg.BatchSize,
		SentenceLength: cfg.SentenceLength,
		EmbeddingDim:   cfg.EmbeddingDim,
		HiddenDim:      cfg.HiddenDim,
		DimZ:           cfg.DimZ,
		DecoderHidden:  cfg.DecoderHidden,
		IgnoreLess:     cfg.IgnoreLess,
		LearnRate:      cfg.LearnRate,
		Seed:           cfg.Seed,
		BestLoss:       res.BestLoss,
		TrainedAt:      time.Now(),
		BuildVersion:   buildVersion,
	}
	if err := train.WriteManifest(cfg.OutDir, manifest); err != nil {
		return fmt.Errorf("save manifest: %w", err)
	}
	fmt.Fprintf(out, "Model written to %s\n", cfg.OutDir)
	return nil
}

// readCorpus tokenizes a corpus file and returns it with a short content hash.
func readCorpus(path, lang string, readLines int) ([][]string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read corpus: %w", err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(data))[:16]

	tok, err := corpus.NewLanguageTokenizer(lang)
	if err != nil {
		return nil, "", err
	}
	sentences, err := corpus.NewReader(tok, readLines).ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	return sentences, hash, nil
}

func runVocab(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("vocab", flag.ContinueOnError)
	path := fs.String("corpus", "", "Path to the corpus (required)")
	lang := fs.String("lang", "", "Stopword language (empty keeps every word)")
	configPath := fs.String("config", "", "Path to a YAML config")
	window := fs.Int("window", 0, "Skip-gram window size (default from config)")
	negatives := fs.Int("negatives", 0, "Negative samples to draw per pair in the preview (default from config)")
	readLines := fs.Int("read-lines", 0, "Read at most this many lines (0 = all)")
	seed := fs.Uint64("seed", 0, "Random seed for the preview (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *path == "" {
		return errors.New("--corpus is required")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "window":
			cfg.Window = *window
		case "negatives":
			cfg.Negatives = *negatives
		case "read-lines":
			cfg.ReadLines = *readLines
		case "seed":
			cfg.Seed = *seed
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	sentences, hash, err := readCorpus(*path, *lang, cfg.ReadLines)
	if err != nil {
		return err
	}

	sg, err := sgram.NewSkipGram(sentences, cfg.Window)
	if err != nil {
		return err
	}
	bag := sgram.NewBagSkipGram(sentences, cfg.Window)

	v := sg.Vocab
	fmt.Fprintf(out, "corpus:         %s (%s)\n", *path, hash)
	fmt.Fprintf(out, "sentences:      %d\n", len(sentences))
	fmt.Fprintf(out, "tokens:         %d\n", v.TotalCount())
	fmt.Fprintf(out, "vocabulary:     %d\n", v.Len())
	fmt.Fprintf(out, "frequent (>%d): %d\n", v.IgnoreLess, len(v.Frequent()))
	fmt.Fprintf(out, "pairs:          %d\n", len(sg.Data))
	fmt.Fprintf(out, "bag windows:    %d\n", len(bag.Data))
	fmt.Fprintf(out, "table size:     %d\n", sg.Table.Len())

	if len(sg.Data) == 0 {
		return nil
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	first := sg.Data[:1]
	negs := sg.Negatives(rng, first, cfg.Negatives)[0]
	center, _ := v.Word(first[0].Center)
	ctxWord, _ := v.Word(first[0].Context)
	words := make([]string, len(negs))
	for i, id := range negs {
		words[i], _ = v.Word(id)
	}
	fmt.Fprintf(out, "sample:         (%s, %s) negatives %v\n", center, ctxWord, words)
	return nil
}
